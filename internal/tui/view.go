package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/fakeyudi/cuecam/internal/session"
)

// ── Styles ────────────

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	stateStyles = map[session.State]lipgloss.Style{
		session.StateIdle:        lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		session.StateRecording:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		session.StateStopping:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		session.StateReviewing:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		session.StateMerging:     lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
		session.StateMergedReady: lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true),
		session.StateError:       lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true)

	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("178"))

	diagnosticStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("196")).
			Foreground(lipgloss.Color("15")).
			Padding(0, 1)

	noticeStyle = diagnosticStyle.BorderForeground(lipgloss.Color("82"))

	urlStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Underline(true)
)

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	mc := m.machine
	var sb strings.Builder

	state := stateStyles[mc.State].Render(strings.ToUpper(mc.State.String()))
	title := titleStyle.Render("cuecam")
	sb.WriteString(title + "  " + state + "\n\n")

	sb.WriteString(m.loop.View())
	sb.WriteString("\n\n")

	row := func(label, value string) {
		sb.WriteString(labelStyle.Render(fmt.Sprintf("  %-10s", label)) + "  " + value + "\n")
	}

	row("Prompt", m.promptBar.View())
	switch mc.State {
	case session.StateRecording, session.StateStopping, session.StateReviewing:
		row("Captured", fmt.Sprintf("%d chunks · %s", mc.Chunks, humanize.Bytes(uint64(max(mc.Bytes, 0)))))
	case session.StateMerging:
		row("Merging", m.spinner.View()+" "+m.uploadBar.View())
		if mc.UploadTotal > 0 {
			row("", dimStyle.Render(fmt.Sprintf("%s of %s packaged, waiting for the server",
				humanize.Bytes(uint64(mc.UploadSent)), humanize.Bytes(uint64(mc.UploadTotal)))))
		}
	case session.StateMergedReady:
		if mc.Result != nil {
			row("Response", mc.Result.ResponseID)
		}
		row("Merged", urlStyle.Render(mc.MergedURL))
		if mc.Accepted {
			row("Accepted", accentStyle.Render("yes"))
		} else if mc.Accepting {
			row("Accepted", m.spinner.View()+" updating")
		}
	}

	if mc.Hint != "" {
		sb.WriteString("\n" + hintStyle.Render("  "+mc.Hint) + "\n")
	}
	if mc.Diagnostic != "" {
		style := diagnosticStyle
		if mc.Accepted && mc.State == session.StateMergedReady {
			style = noticeStyle
		}
		if m.width > 4 {
			style = style.MaxWidth(m.width - 2)
		}
		sb.WriteString("\n" + style.Render(mc.Diagnostic) + "\n")
	}
	for _, w := range mc.Warnings {
		if w == mc.Diagnostic {
			continue
		}
		sb.WriteString(dimStyle.Render("  ! "+w) + "\n")
	}

	sb.WriteString("\n" + m.help.View(m.keys))
	return sb.String()
}
