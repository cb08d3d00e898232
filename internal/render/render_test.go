package render

import (
	"strings"
	"testing"

	"github.com/fakeyudi/cuecam/internal/device"
	"pgregory.net/rapid"
)

type stubSource struct {
	frame device.Frame
	ok    bool
}

func (s *stubSource) LatestFrame() (device.Frame, bool) { return s.frame, s.ok }

func solidFrame(w, h int, v byte, seq uint64) device.Frame {
	pix := make([]byte, w*h*3)
	for i := range pix {
		pix[i] = v
	}
	return device.Frame{Width: w, Height: h, Pix: pix, Seq: seq}
}

func TestSurfaceForHalvesPromptWidth(t *testing.T) {
	s := SurfaceFor(1280, 720)
	if s.Width != 640 || s.Height != 360 {
		t.Fatalf("got %dx%d, want 640x360", s.Width, s.Height)
	}
	if s.Cols != MaxCols {
		t.Errorf("Cols = %d, want %d", s.Cols, MaxCols)
	}
	if s.Rows != MaxCols*360/640/2 {
		t.Errorf("Rows = %d", s.Rows)
	}
}

// Feature: preview surface, Property 1: aspect ratio follows the prompt
func TestSurfaceAspectProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		w := rapid.IntRange(2, 4096).Draw(t, "w")
		h := rapid.IntRange(2, 4096).Draw(t, "h")
		s := SurfaceFor(w, h)
		if s.Width != w/2 {
			t.Fatalf("Width = %d, want %d", s.Width, w/2)
		}
		if s.Height != max(1, (w/2)*h/w) {
			t.Fatalf("Height = %d", s.Height)
		}
		if s.Cols < 1 || s.Cols > MaxCols || s.Rows < 1 {
			t.Fatalf("bad grid %dx%d", s.Cols, s.Rows)
		}
	})
}

func TestSurfaceLock(t *testing.T) {
	s := SurfaceFor(1280, 720)
	if !s.Resize(640, 480) {
		t.Fatal("expected resize before lock")
	}
	s.Lock()
	if s.Resize(1920, 1080) {
		t.Fatal("resize must be refused after lock")
	}
	if s.Width != 320 {
		t.Errorf("Width = %d, want 320", s.Width)
	}
}

func TestPaintUsesRamp(t *testing.T) {
	s := SurfaceFor(64, 32)
	dark := s.Paint(solidFrame(8, 8, 0, 1))
	bright := s.Paint(solidFrame(8, 8, 255, 2))
	if strings.Trim(dark, " \n") != "" {
		t.Errorf("black frame should paint blanks, got %q", dark)
	}
	if !strings.Contains(bright, "@") {
		t.Errorf("white frame should paint '@', got %q", bright)
	}
	if n := strings.Count(bright, "\n"); n != s.Rows-1 {
		t.Errorf("got %d line breaks, want %d", n, s.Rows-1)
	}
}

func TestPaintShortFrameFallsBack(t *testing.T) {
	s := SurfaceFor(64, 32)
	out := s.Paint(device.Frame{Width: 8, Height: 8, Pix: []byte{1, 2, 3}})
	if !strings.Contains(out, PlaceholderText) {
		t.Fatalf("expected placeholder, got %q", out)
	}
}

func TestLoopPlaceholderUntilFrameReady(t *testing.T) {
	src := &stubSource{}
	l, cmd := NewLoop(30).Start(SurfaceFor(128, 64), src)
	if cmd == nil {
		t.Fatal("Start must schedule a tick")
	}
	if !strings.Contains(l.View(), PlaceholderText) {
		t.Fatal("expected placeholder before the first frame")
	}

	src.frame, src.ok = solidFrame(4, 4, 255, 1), true
	l, cmd = l.Update(FrameMsg{ID: l.ID(), tag: l.tag})
	if cmd == nil {
		t.Fatal("running loop must reschedule")
	}
	if strings.Contains(l.View(), PlaceholderText) {
		t.Fatal("expected painted frame")
	}
	if l.Frames() != 1 {
		t.Errorf("Frames = %d, want 1", l.Frames())
	}

	// Same frame again is not redrawn.
	l, _ = l.Update(FrameMsg{ID: l.ID(), tag: l.tag})
	if l.Frames() != 1 {
		t.Errorf("Frames = %d after duplicate, want 1", l.Frames())
	}
}

func TestLoopIgnoresStaleAndForeignTicks(t *testing.T) {
	l, _ := NewLoop(30).Start(SurfaceFor(128, 64), &stubSource{})
	stale := FrameMsg{ID: l.ID(), tag: l.tag}
	l, _ = l.Start(SurfaceFor(128, 64), &stubSource{})

	if _, cmd := l.Update(stale); cmd != nil {
		t.Error("stale generation must not reschedule")
	}
	if _, cmd := l.Update(FrameMsg{ID: l.ID() + 1000, tag: l.tag}); cmd != nil {
		t.Error("foreign loop id must be ignored")
	}
}

func TestLoopStopIsIdempotent(t *testing.T) {
	l := NewLoop(30)
	l = l.Stop()
	if l.Running() {
		t.Fatal("unstarted loop must not run")
	}

	l, _ = l.Start(SurfaceFor(128, 64), &stubSource{})
	current := FrameMsg{ID: l.ID(), tag: l.tag}
	l = l.Stop()
	tag := l.tag
	l = l.Stop()
	if l.tag != tag {
		t.Error("second Stop must not change the generation")
	}
	if _, cmd := l.Update(current); cmd != nil {
		t.Error("stopped loop must not reschedule")
	}
}
