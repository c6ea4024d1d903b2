package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhilliard/dozer/internal/logger"
	"github.com/rileyhilliard/dozer/internal/monitor"
	"github.com/rileyhilliard/dozer/internal/observability"
)

type wireEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dialEvents(t *testing.T, h *harness) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(h.srv.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev wireEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestEvents_GreetingThenUpdates(t *testing.T) {
	h := newHarness(t)
	conn := dialEvents(t, h)

	ev := readEvent(t, conn)
	assert.Equal(t, EventStatus, ev.Type)
	var st monitor.Status
	require.NoError(t, json.Unmarshal(ev.Data, &st))
	assert.True(t, st.IsOnline)

	require.Eventually(t, func() bool { return h.srv.Hub().Listeners() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.EventListeners))

	h.mon.emit(monitor.Status{IsOnline: false})
	ev = readEvent(t, conn)
	assert.Equal(t, EventStatus, ev.Type)
	require.NoError(t, json.Unmarshal(ev.Data, &st))
	assert.False(t, st.IsOnline)
}

func TestEvents_ListenerLeaves(t *testing.T) {
	h := newHarness(t)
	conn := dialEvents(t, h)
	readEvent(t, conn)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return h.srv.Hub().Listeners() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.EventListeners))
}

func TestEvents_CloseDisconnects(t *testing.T) {
	h := newHarness(t)
	conn := dialEvents(t, h)
	readEvent(t, conn)

	h.srv.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestHub_DropsSlowListener(t *testing.T) {
	metrics := observability.NewMetrics()
	log := logger.NewBufferLogger()
	hub := NewHub(log, metrics)

	slow := &listener{id: "slow", send: make(chan []byte, 2)}
	fast := &listener{id: "fast", send: make(chan []byte, 8)}
	require.True(t, hub.add(slow))
	require.True(t, hub.add(fast))

	for i := 0; i < 3; i++ {
		hub.Publish(Event{Type: EventStatus, Data: i})
	}

	assert.Equal(t, 1, hub.Listeners())
	assert.Equal(t, 3, len(fast.send))
	assert.True(t, log.Contains("Event listener slow is too slow"))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EventListeners))

	// The slow listener's channel is closed after what it had buffered.
	<-slow.send
	<-slow.send
	_, open := <-slow.send
	assert.False(t, open)
}

func TestHub_RefusesAfterClose(t *testing.T) {
	hub := NewHub(nil, nil)
	hub.Close()
	assert.False(t, hub.add(&listener{id: "late", send: make(chan []byte, 1)}))
}

func TestLogSink(t *testing.T) {
	parent := logger.NewBufferLogger()
	hub := NewHub(logger.Noop(), nil)
	l := &listener{id: "tail", send: make(chan []byte, 8)}
	require.True(t, hub.add(l))

	sink := NewLogSink(parent, hub)
	sink.Debug("hidden %d", 1)
	sink.Info("Server %s came online", "gpu")
	logger.With(sink, "gateway").Warn("slow")

	assert.True(t, parent.Contains("hidden 1"))
	assert.True(t, parent.Contains("Server gpu came online"))
	require.Len(t, l.send, 2)

	var ev struct {
		Type string   `json:"type"`
		Data LogEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(<-l.send, &ev))
	assert.Equal(t, EventLog, ev.Type)
	assert.Equal(t, "info", ev.Data.Level)
	assert.Equal(t, "Server gpu came online", ev.Data.Message)

	require.NoError(t, json.Unmarshal(<-l.send, &ev))
	assert.Equal(t, "warn", ev.Data.Level)
}
