package dashboard

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rileyhilliard/dozer/internal/api"
	"github.com/rileyhilliard/dozer/internal/ui"
)

const sparkWidth = 30

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(ui.ColorPrimary)
	mutedStyle  = lipgloss.NewStyle().Foreground(ui.ColorMuted)
	errStyle    = lipgloss.NewStyle().Foreground(ui.ColorError)
	warnStyle   = lipgloss.NewStyle().Foreground(ui.ColorWarning)
	paneStyle   = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(ui.ColorMuted)
)

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.showHelp {
		return renderHelp()
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("dozer") + mutedStyle.Render(" · "+m.server))
	if !m.connected && m.connErr != "" {
		b.WriteString("  " + errStyle.Render(ui.SymbolFail+" disconnected, retrying"))
	}
	b.WriteString("\n\n")

	switch {
	case m.status != nil:
		b.WriteString(ui.RenderStatus(*m.status, ui.StatusOptions{
			Now:        m.now(),
			CPUHistory: m.history.CPU(sparkWidth),
			GPUHistory: m.history.GPU(sparkWidth),
			Boxed:      true,
		}))
	case m.connErr != "":
		b.WriteString(errStyle.Render(m.connErr))
	default:
		b.WriteString(m.wait.View())
	}
	b.WriteString("\n")

	if m.pending != "" {
		b.WriteString("\n" + warnStyle.Render(ui.SymbolWaking+" "+m.pending+" in progress..."))
	} else if m.flash != "" {
		b.WriteString("\n" + m.flash)
	}

	if m.showLogs && len(m.logs) > 0 {
		b.WriteString("\n" + paneStyle.Render(m.logView.View()))
	}

	b.WriteString("\n" + mutedStyle.Render("w wake · s sleep · l log · ? help · q quit"))
	return b.String()
}

func formatLog(e api.LogEntry) string {
	ts := mutedStyle.Render(e.Timestamp.Local().Format("15:04:05"))
	msg := e.Message
	switch e.Level {
	case "error":
		msg = errStyle.Render(msg)
	case "warn":
		msg = warnStyle.Render(msg)
	}
	return ts + " " + msg
}
