// Package report renders the last take for `cuecam status`.
package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/fakeyudi/cuecam/internal/session"
)

// Renderer serializes a take to bytes.
type Renderer interface {
	Render(t *session.Take) ([]byte, error)
}

// ForFormat returns the renderer for "text", "markdown" or "json".
func ForFormat(format string) (Renderer, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return &TextRenderer{}, nil
	case "markdown", "md":
		return &MarkdownRenderer{}, nil
	case "json":
		return &JSONRenderer{}, nil
	}
	return nil, fmt.Errorf("unknown format %q: use text, markdown or json", format)
}

// JSONRenderer renders a take as indented JSON.
type JSONRenderer struct{}

func (r *JSONRenderer) Render(t *session.Take) ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

// MarkdownRenderer renders a take as a human-readable Markdown summary.
type MarkdownRenderer struct{}

func (r *MarkdownRenderer) Render(t *session.Take) ([]byte, error) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Take %s\n\n", t.ID)

	sb.WriteString("## Recording\n\n")
	fmt.Fprintf(&sb, "- Recorded: %s (%s)\n", t.RecordedAt.Format("2006-01-02 15:04:05 MST"), humanize.Time(t.RecordedAt))
	fmt.Fprintf(&sb, "- Status: %s\n", t.Status)
	fmt.Fprintf(&sb, "- Size: %s in %d chunks\n", humanize.Bytes(uint64(max(t.Bytes, 0))), t.Chunks)
	if t.MimeType != "" {
		fmt.Fprintf(&sb, "- Format: %s\n", t.MimeType)
	}
	if t.PromptRef != "" {
		fmt.Fprintf(&sb, "- Prompt: %s\n", t.PromptRef)
	}
	if t.SpoolPath != "" {
		fmt.Fprintf(&sb, "- Spooled at: `%s`\n", t.SpoolPath)
	}
	sb.WriteString("\n")

	sb.WriteString("## Merge\n\n")
	if t.ResponseID == "" && t.MergedVideoURL == "" {
		sb.WriteString("_Not merged yet._\n")
	} else {
		fmt.Fprintf(&sb, "- Response: %s\n", orDash(t.ResponseID))
		fmt.Fprintf(&sb, "- Merged video: %s\n", orDash(t.MergedVideoURL))
		fmt.Fprintf(&sb, "- Accepted: %s\n", yesNo(t.Accepted))
	}
	if t.Error != "" {
		fmt.Fprintf(&sb, "\n> Last error: %s\n", t.Error)
	}
	sb.WriteString("\n")

	return []byte(sb.String()), nil
}

// TextRenderer renders a take as a two-column terminal table.
type TextRenderer struct{}

func (r *TextRenderer) Render(t *session.Take) ([]byte, error) {
	rows := [][]string{
		{"Take", t.ID},
		{"Recorded", fmt.Sprintf("%s (%s)", t.RecordedAt.Local().Format("2006-01-02 15:04:05"), humanize.Time(t.RecordedAt))},
		{"Status", string(t.Status)},
		{"Size", fmt.Sprintf("%s / %d chunks", humanize.Bytes(uint64(max(t.Bytes, 0))), t.Chunks)},
		{"Format", orDash(t.MimeType)},
		{"Response", orDash(t.ResponseID)},
		{"Merged video", orDash(t.MergedVideoURL)},
		{"Accepted", yesNo(t.Accepted)},
	}
	if t.Error != "" {
		rows = append(rows, []string{"Last error", t.Error})
	}
	return []byte(Table([]string{"Field", "Value"}, rows) + "\n"), nil
}

// Table renders rows under headers with rounded borders.
func Table(headers []string, rows [][]string) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
