// Package render draws the live camera preview onto a fixed-size terminal
// surface on a steady cadence.
package render

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fakeyudi/cuecam/internal/device"
)

// PlaceholderText is shown while no camera frame is available.
const PlaceholderText = "Loading Webcam..."

// ramp maps luminance to glyphs, darkest first.
const ramp = " .:-=+*#%@"

// MaxCols bounds the preview width in terminal cells.
const MaxCols = 64

var placeholderStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("15")).
	Background(lipgloss.Color("0"))

// Surface is the intermediate drawing target for the preview. Width and Height
// are the pixel dimensions requested from the camera; Cols and Rows are the
// terminal cell grid the frame is painted onto.
type Surface struct {
	Width  int
	Height int
	Cols   int
	Rows   int

	locked bool
}

// SurfaceFor sizes the preview from the prompt video's dimensions: half the
// prompt width, same aspect ratio.
func SurfaceFor(promptW, promptH int) Surface {
	if promptW <= 0 || promptH <= 0 {
		promptW, promptH = 1280, 720
	}
	w := promptW / 2
	h := w * promptH / promptW
	if h < 1 {
		h = 1
	}
	s := Surface{Width: w, Height: h}
	s.Cols, s.Rows = grid(w, h)
	return s
}

// grid fits w x h pixels into at most MaxCols cells. Cells are roughly twice
// as tall as they are wide.
func grid(w, h int) (cols, rows int) {
	cols = w
	if cols > MaxCols {
		cols = MaxCols
	}
	if cols < 1 {
		cols = 1
	}
	rows = cols * h / w / 2
	if rows < 1 {
		rows = 1
	}
	return cols, rows
}

// Lock fixes the surface dimensions for the rest of the session.
func (s *Surface) Lock() { s.locked = true }

// Locked reports whether Lock has been called.
func (s Surface) Locked() bool { return s.locked }

// Resize replaces the dimensions unless the surface is locked. It reports
// whether the size changed.
func (s *Surface) Resize(promptW, promptH int) bool {
	if s.locked {
		return false
	}
	n := SurfaceFor(promptW, promptH)
	if n.Width == s.Width && n.Height == s.Height {
		return false
	}
	*s = n
	return true
}

// Paint draws f scaled to the cell grid using a luminance ramp.
func (s Surface) Paint(f device.Frame) string {
	if f.Width <= 0 || f.Height <= 0 || len(f.Pix) < f.Width*f.Height*3 {
		return s.Placeholder(PlaceholderText)
	}
	var b strings.Builder
	b.Grow((s.Cols + 1) * s.Rows)
	for r := 0; r < s.Rows; r++ {
		y := r * f.Height / s.Rows
		for c := 0; c < s.Cols; c++ {
			x := c * f.Width / s.Cols
			i := (y*f.Width + x) * 3
			b.WriteByte(ramp[luma(f.Pix[i], f.Pix[i+1], f.Pix[i+2])*(len(ramp)-1)/255])
		}
		if r < s.Rows-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Placeholder fills the surface with a solid background and centres text.
func (s Surface) Placeholder(text string) string {
	return lipgloss.Place(s.Cols, s.Rows, lipgloss.Center, lipgloss.Center,
		placeholderStyle.Render(text),
		lipgloss.WithWhitespaceBackground(lipgloss.Color("0")))
}

// luma returns Rec. 601 luminance in [0,255].
func luma(r, g, b byte) int {
	return (299*int(r) + 587*int(g) + 114*int(b)) / 1000
}
