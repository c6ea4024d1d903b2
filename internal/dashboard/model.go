// Package dashboard is the live terminal view behind "dozer watch". It
// follows the gateway's event stream, so it redraws exactly when the
// monitor publishes and never polls.
package dashboard

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/rileyhilliard/dozer/internal/api"
	"github.com/rileyhilliard/dozer/internal/client"
	"github.com/rileyhilliard/dozer/internal/monitor"
	"github.com/rileyhilliard/dozer/internal/power"
	"github.com/rileyhilliard/dozer/internal/ui"
)

// Tuning for the log pane and reconnects.
const (
	MaxLogLines    = 200
	LogPaneHeight  = 8
	ReconnectDelay = 2 * time.Second
	ActionTimeout  = 30 * time.Second
)

// Stream is an open event stream. *client.Stream satisfies it.
type Stream interface {
	Next() (client.Event, error)
	Close() error
}

// Dialer opens a new event stream.
type Dialer func(ctx context.Context) (Stream, error)

// Control sends wake and sleep commands. *client.Client satisfies it.
type Control interface {
	Wake(ctx context.Context) (power.Result, error)
	Sleep(ctx context.Context) (power.Result, error)
}

// Model is the Bubble Tea model for the dashboard.
type Model struct {
	server  string
	dial    Dialer
	control Control
	now     func() time.Time

	stream    Stream
	connected bool
	connErr   string

	status   *monitor.Status
	history  *History
	logs     []api.LogEntry
	logView  viewport.Model
	showLogs bool
	showHelp bool

	wait     ui.WaitIndicator
	pending  string // action in flight
	flash    string // last action result
	width    int
	height   int
	quitting bool
}

// Options configures a Model.
type Options struct {
	// Server is shown in the header.
	Server  string
	Dial    Dialer
	Control Control
	// Now defaults to time.Now.
	Now func() time.Time
}

type (
	connectedMsg struct{ stream Stream }
	connectErrMsg struct{ err error }
	eventMsg      struct{ ev client.Event }
	streamErrMsg  struct{ err error }
	reconnectMsg  struct{}
	powerMsg      struct {
		action string
		res    power.Result
		err    error
	}
)

// New creates a dashboard model.
func New(opts Options) Model {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return Model{
		server:   opts.Server,
		dial:     opts.Dial,
		control:  opts.Control,
		now:      opts.Now,
		history:  NewHistory(DefaultHistorySize),
		logView:  viewport.New(80, LogPaneHeight),
		showLogs: true,
		wait:     ui.NewWaitIndicator("Connecting to " + opts.Server),
	}
}

// Init connects and starts the wait animation.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.connectCmd(), m.wait.Tick())
}

// Update handles messages and updates the model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if handled, cmd := m.handleKey(msg); handled {
			return m, cmd
		}
		var cmd tea.Cmd
		m.logView, cmd = m.logView.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()

	case connectedMsg:
		m.stream = msg.stream
		m.connected = true
		m.connErr = ""
		return m, m.nextCmd()

	case connectErrMsg:
		m.connected = false
		m.connErr = msg.err.Error()
		return m, reconnectAfter(ReconnectDelay)

	case eventMsg:
		m.apply(msg.ev)
		return m, m.nextCmd()

	case streamErrMsg:
		if m.quitting {
			return m, nil
		}
		if m.stream != nil {
			_ = m.stream.Close()
			m.stream = nil
		}
		m.connected = false
		m.connErr = "event stream closed: " + msg.err.Error()
		return m, reconnectAfter(ReconnectDelay)

	case reconnectMsg:
		return m, m.connectCmd()

	case powerMsg:
		m.pending = ""
		if msg.err != nil {
			m.flash = ui.RenderPowerResult(msg.action, power.Result{Message: msg.err.Error()})
		} else {
			m.flash = ui.RenderPowerResult(msg.action, msg.res)
		}

	default:
		var cmd tea.Cmd
		m.wait, cmd = m.wait.Update(msg)
		return m, cmd
	}
	return m, nil
}

// apply folds one event into the model.
func (m *Model) apply(ev client.Event) {
	switch {
	case ev.Status != nil:
		if m.status == nil {
			m.wait.Done()
		}
		if !ev.Status.IsOnline {
			m.history.Clear()
		} else {
			p := ev.Status.Performance
			m.history.Push(p.CPUUsage, p.GPUUsage)
		}
		st := *ev.Status
		m.status = &st
	case ev.Log != nil:
		m.logs = append(m.logs, *ev.Log)
		if len(m.logs) > MaxLogLines {
			m.logs = m.logs[len(m.logs)-MaxLogLines:]
		}
		atBottom := m.logView.AtBottom()
		m.logView.SetContent(renderLogs(m.logs))
		if atBottom {
			m.logView.GotoBottom()
		}
	}
}

func (m *Model) resize() {
	if m.width > 0 {
		m.logView.Width = m.width
	}
	m.logView.Height = LogPaneHeight
}

// Close releases the event stream.
func (m Model) Close() {
	if m.stream != nil {
		_ = m.stream.Close()
	}
}

// Status returns the last status received, if any.
func (m Model) Status() *monitor.Status {
	return m.status
}

// Logs returns the buffered log lines.
func (m Model) Logs() []api.LogEntry {
	return m.logs
}

func (m Model) connectCmd() tea.Cmd {
	dial := m.dial
	return func() tea.Msg {
		stream, err := dial(context.Background())
		if err != nil {
			return connectErrMsg{err: err}
		}
		return connectedMsg{stream: stream}
	}
}

func (m Model) nextCmd() tea.Cmd {
	stream := m.stream
	return func() tea.Msg {
		ev, err := stream.Next()
		if err != nil {
			return streamErrMsg{err: err}
		}
		return eventMsg{ev: ev}
	}
}

func (m Model) powerCmd(action string) tea.Cmd {
	control := m.control
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), ActionTimeout)
		defer cancel()
		var res power.Result
		var err error
		if action == "Wake" {
			res, err = control.Wake(ctx)
		} else {
			res, err = control.Sleep(ctx)
		}
		return powerMsg{action: action, res: res, err: err}
	}
}

func reconnectAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return reconnectMsg{} })
}

func renderLogs(entries []api.LogEntry) string {
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = formatLog(e)
	}
	return strings.Join(lines, "\n")
}
