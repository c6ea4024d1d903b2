package dashboard

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhilliard/dozer/internal/api"
	"github.com/rileyhilliard/dozer/internal/client"
	"github.com/rileyhilliard/dozer/internal/monitor"
	"github.com/rileyhilliard/dozer/internal/perf"
	"github.com/rileyhilliard/dozer/internal/power"
)

func init() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeStream struct {
	events []client.Event
	closed bool
}

func (s *fakeStream) Next() (client.Event, error) {
	if len(s.events) == 0 {
		return client.Event{}, stderrors.New("eof")
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type fakeControl struct {
	woke, slept int
	err         error
}

func (c *fakeControl) Wake(context.Context) (power.Result, error) {
	c.woke++
	return power.Result{Success: true, Message: "Wake-on-LAN packet sent"}, c.err
}

func (c *fakeControl) Sleep(context.Context) (power.Result, error) {
	c.slept++
	return power.Result{Success: true, Message: "Suspend command sent"}, c.err
}

func pct(v float64) *float64 { return &v }

func onlineStatus(cpu, gpu float64) *monitor.Status {
	seen := now
	return &monitor.Status{
		IsOnline: true,
		LastSeen: &seen,
		Services: monitor.Services{Ping: true, ControlChannel: true, ServicePortOpen: true, ServiceHealthy: true},
		Performance: monitor.Performance{Snapshot: perf.Snapshot{
			CPUUsage: pct(cpu),
			GPUUsage: pct(gpu),
		}},
		Target:     monitor.TargetInfo{Address: "192.168.1.50", HTTPPort: 11434},
		ObservedAt: now,
	}
}

func newModel(stream *fakeStream, control Control) Model {
	return New(Options{
		Server:  "http://localhost:3000",
		Dial:    func(context.Context) (Stream, error) { return stream, nil },
		Control: control,
		Now:     func() time.Time { return now },
	})
}

// drive runs cmd and feeds its message back into the model.
func drive(t *testing.T, m Model, cmd tea.Cmd) (Model, tea.Cmd) {
	t.Helper()
	require.NotNil(t, cmd)
	next, cmd := m.Update(cmd())
	return next.(Model), cmd
}

func TestHistory_RingBuffer(t *testing.T) {
	h := NewHistory(3)
	assert.Nil(t, h.CPU(5))

	for i := 1; i <= 4; i++ {
		h.Push(pct(float64(i*10)), nil)
	}
	assert.Equal(t, []float64{20, 30, 40}, h.CPU(5))
	assert.Equal(t, []float64{30, 40}, h.CPU(2))
	assert.Nil(t, h.GPU(3), "nil samples are skipped")

	h.Clear()
	assert.Nil(t, h.CPU(3))
}

func TestModel_ConnectsAndAppliesStatus(t *testing.T) {
	stream := &fakeStream{events: []client.Event{
		{Type: api.EventStatus, Status: onlineStatus(40, 70)},
	}}
	m := newModel(stream, nil)
	assert.Contains(t, m.View(), "Connecting to http://localhost:3000")

	m, cmd := drive(t, m, m.connectCmd())
	assert.True(t, m.connected)

	m, _ = drive(t, m, cmd)
	require.NotNil(t, m.Status())
	assert.True(t, m.Status().IsOnline)
	assert.Equal(t, []float64{40}, m.history.CPU(10))
	assert.Equal(t, []float64{70}, m.history.GPU(10))

	view := m.View()
	assert.Contains(t, view, "192.168.1.50:11434")
	assert.NotContains(t, view, "Connecting")
}

func TestModel_OfflineClearsHistory(t *testing.T) {
	m := newModel(&fakeStream{}, nil)
	m.apply(client.Event{Type: api.EventStatus, Status: onlineStatus(10, 10)})
	require.Len(t, m.history.CPU(10), 1)

	m.apply(client.Event{Type: api.EventStatus, Status: &monitor.Status{ObservedAt: now}})
	assert.Nil(t, m.history.CPU(10))
	assert.False(t, m.Status().IsOnline)
}

func TestModel_LogTail(t *testing.T) {
	m := newModel(&fakeStream{}, nil)
	for i := 0; i < MaxLogLines+5; i++ {
		m.apply(client.Event{Type: api.EventLog, Log: &api.LogEntry{
			Level: "info", Message: fmt.Sprintf("line %d", i), Timestamp: now,
		}})
	}
	logs := m.Logs()
	require.Len(t, logs, MaxLogLines)
	assert.Equal(t, "line 5", logs[0].Message)
	assert.Equal(t, fmt.Sprintf("line %d", MaxLogLines+4), logs[len(logs)-1].Message)

	m.apply(client.Event{Type: api.EventStatus, Status: onlineStatus(1, 1)})
	assert.Contains(t, m.View(), fmt.Sprintf("line %d", MaxLogLines+4), "log pane follows the tail")

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(KeyToggleLogs)})
	m = next.(Model)
	assert.NotContains(t, m.View(), "line 204")
}

func TestModel_StreamErrorReconnects(t *testing.T) {
	stream := &fakeStream{}
	m := newModel(stream, nil)
	m, cmd := drive(t, m, m.connectCmd())

	m, cmd = drive(t, m, cmd) // fakeStream is empty, so Next fails
	assert.False(t, m.connected)
	assert.True(t, stream.closed)
	assert.Contains(t, m.View(), "disconnected, retrying")
	assert.NotNil(t, cmd, "schedules a reconnect")

	next, cmd := m.Update(reconnectMsg{})
	m = next.(Model)
	m, _ = drive(t, m, cmd)
	assert.True(t, m.connected)
}

func TestModel_DialFailure(t *testing.T) {
	m := New(Options{
		Server: "http://nowhere:3000",
		Dial: func(context.Context) (Stream, error) {
			return nil, stderrors.New("Can't open the event stream")
		},
	})
	m, cmd := drive(t, m, m.connectCmd())
	assert.Contains(t, m.View(), "Can't open the event stream")
	assert.NotNil(t, cmd)
}

func TestModel_WakeAndSleepKeys(t *testing.T) {
	control := &fakeControl{}
	m := newModel(&fakeStream{}, control)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(KeyWake)})
	m = next.(Model)
	assert.Equal(t, "Wake", m.pending)
	assert.Contains(t, m.View(), "Wake in progress")

	// A second press while one is in flight is ignored.
	_, dup := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(KeySleep)})
	assert.Nil(t, dup)

	m, _ = drive(t, m, cmd)
	assert.Equal(t, 1, control.woke)
	assert.Empty(t, m.pending)
	assert.Contains(t, m.View(), "Wake: Wake-on-LAN packet sent")

	next, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(KeySleep)})
	m = next.(Model)
	control.err = stderrors.New("Rate limit exceeded (HTTP 429)")
	m, _ = drive(t, m, cmd)
	assert.Equal(t, 1, control.slept)
	assert.Contains(t, m.View(), "Sleep failed: Rate limit exceeded (HTTP 429)")
}

func TestModel_HelpAndQuit(t *testing.T) {
	m := newModel(&fakeStream{}, nil)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(KeyToggleHelp)})
	m = next.(Model)
	assert.Contains(t, m.View(), "Keyboard Shortcuts")

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(Model)
	assert.NotContains(t, m.View(), "Keyboard Shortcuts")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(KeyQuit)})
	m = next.(Model)
	assert.Empty(t, m.View())
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}
