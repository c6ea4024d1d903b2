package dashboard

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rileyhilliard/dozer/internal/ui"
)

// Key bindings.
const (
	KeyQuit       = "q"
	KeyQuitAlt    = "ctrl+c"
	KeyWake       = "w"
	KeySleep      = "s"
	KeyToggleLogs = "l"
	KeyToggleHelp = "?"
	KeyClose      = "esc"
)

// HelpBinding is one row of the help overlay.
type HelpBinding struct {
	Key  string
	Desc string
}

var helpBindings = []HelpBinding{
	{Key: "q / Ctrl+C", Desc: "Quit"},
	{Key: "w", Desc: "Wake the target"},
	{Key: "s", Desc: "Put the target to sleep"},
	{Key: "l", Desc: "Show or hide the log"},
	{Key: "up / down", Desc: "Scroll the log"},
	{Key: "?", Desc: "Toggle this help"},
}

var (
	helpBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ui.ColorSecondary).
			Padding(1, 2)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(ui.ColorPrimary).
			Bold(true).
			Width(14)

	helpDescStyle = lipgloss.NewStyle().Foreground(ui.ColorMuted)
)

// handleKey processes keyboard input. It reports whether the key was
// consumed.
func (m *Model) handleKey(msg tea.KeyMsg) (bool, tea.Cmd) {
	key := msg.String()

	if key == KeyToggleHelp {
		m.showHelp = !m.showHelp
		return true, nil
	}
	if m.showHelp && key == KeyClose {
		m.showHelp = false
		return true, nil
	}

	switch key {
	case KeyQuit, KeyQuitAlt:
		m.quitting = true
		return true, tea.Quit
	case KeyWake:
		if m.pending != "" || m.control == nil {
			return true, nil
		}
		m.pending = "Wake"
		m.flash = ""
		return true, m.powerCmd("Wake")
	case KeySleep:
		if m.pending != "" || m.control == nil {
			return true, nil
		}
		m.pending = "Sleep"
		m.flash = ""
		return true, m.powerCmd("Sleep")
	case KeyToggleLogs:
		m.showLogs = !m.showLogs
		m.resize()
		return true, nil
	}
	return false, nil
}

func renderHelp() string {
	lines := []string{lipgloss.NewStyle().Bold(true).Render("Keyboard Shortcuts"), ""}
	for _, b := range helpBindings {
		lines = append(lines, helpKeyStyle.Render(b.Key)+helpDescStyle.Render(b.Desc))
	}
	return helpBoxStyle.Render(strings.Join(lines, "\n"))
}
