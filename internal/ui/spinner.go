package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var spinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

const spinnerInterval = 80 * time.Millisecond

// Spinner is a one-line progress indicator for CLI commands that wait on the
// gateway (wake --wait, sleep). It redraws in place with carriage returns.
type Spinner struct {
	mu      sync.Mutex
	w       io.Writer
	label   string
	frame   int
	started time.Time
	width   int // runes drawn last time, for clearing
	stop    chan struct{}
	done    chan struct{}
}

// NewSpinner creates a spinner that draws to w.
func NewSpinner(w io.Writer, label string) *Spinner {
	return &Spinner{w: w, label: label}
}

// Start begins animating. Calling it twice is a no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		return
	}
	s.started = time.Now()
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.drawLocked()
	s.mu.Unlock()

	go s.animate()
}

// SetLabel changes the text next to the spinner.
func (s *Spinner) SetLabel(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.label = label
}

// Success stops the spinner and prints a green check with msg.
func (s *Spinner) Success(msg string) {
	s.finish(successStyle.Render(SymbolSuccess), msg)
}

// Fail stops the spinner and prints a red cross with msg.
func (s *Spinner) Fail(msg string) {
	s.finish(errorStyle.Render(SymbolFail), msg)
}

// Elapsed returns the time since Start.
func (s *Spinner) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started.IsZero() {
		return 0
	}
	return time.Since(s.started)
}

func (s *Spinner) animate() {
	t := time.NewTicker(spinnerInterval)
	defer t.Stop()
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			s.mu.Lock()
			s.frame = (s.frame + 1) % len(spinnerFrames)
			s.drawLocked()
			s.mu.Unlock()
		}
	}
}

func (s *Spinner) halt() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.mu.Unlock()
	if stop == nil {
		return
	}
	select {
	case <-stop:
	default:
		close(stop)
	}
	<-done
}

func (s *Spinner) finish(symbol, msg string) {
	s.halt()
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg == "" {
		msg = s.label
	}
	s.clearLocked()
	timing := ""
	if !s.started.IsZero() {
		timing = " " + mutedStyle.Render(FormatDuration(time.Since(s.started)))
	}
	fmt.Fprintf(s.w, "%s %s%s\n", symbol, msg, timing)
}

func (s *Spinner) drawLocked() {
	s.clearLocked()
	glyph := lipgloss.NewStyle().Foreground(ColorSecondary).Render(spinnerFrames[s.frame])
	line := glyph + " " + s.label + "..."
	fmt.Fprint(s.w, line)
	s.width = lipgloss.Width(line)
}

func (s *Spinner) clearLocked() {
	if s.width > 0 {
		fmt.Fprint(s.w, "\r"+strings.Repeat(" ", s.width)+"\r")
		s.width = 0
	}
}

// FormatDuration renders short durations with one decimal ("2.4s") and
// long ones in whole units ("3m12s").
func FormatDuration(d time.Duration) string {
	switch {
	case d < 100*time.Millisecond:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return d.Round(time.Second).String()
	}
}
