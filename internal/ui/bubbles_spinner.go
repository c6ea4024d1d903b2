package ui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// WaitFrames animate the Bubble Tea spinner used while a TUI waits on data.
var WaitFrames = spinner.Spinner{
	Frames: []string{"◐", "◓", "◑", "◒"},
	FPS:    time.Second / 10,
}

// WaitIndicator is a spinner plus label for composing into Bubble Tea
// models. It animates until Done is called.
type WaitIndicator struct {
	spinner spinner.Model
	Label   string
	done    bool
}

// NewWaitIndicator creates an animating indicator.
func NewWaitIndicator(label string) WaitIndicator {
	sp := spinner.New()
	sp.Spinner = WaitFrames
	sp.Style = lipgloss.NewStyle().Foreground(ColorSecondary)
	return WaitIndicator{spinner: sp, Label: label}
}

// Tick starts the animation.
func (w WaitIndicator) Tick() tea.Cmd {
	return w.spinner.Tick
}

// Update advances the animation on spinner ticks.
func (w WaitIndicator) Update(msg tea.Msg) (WaitIndicator, tea.Cmd) {
	if w.done {
		return w, nil
	}
	if tick, ok := msg.(spinner.TickMsg); ok {
		var cmd tea.Cmd
		w.spinner, cmd = w.spinner.Update(tick)
		return w, cmd
	}
	return w, nil
}

// Done stops the animation.
func (w *WaitIndicator) Done() {
	w.done = true
}

// Active reports whether the indicator is still animating.
func (w WaitIndicator) Active() bool {
	return !w.done
}

// View renders "◐ label...", or nothing once done.
func (w WaitIndicator) View() string {
	if w.done {
		return ""
	}
	return w.spinner.View() + " " + w.Label + "..."
}
