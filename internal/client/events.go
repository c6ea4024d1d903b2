package client

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/rileyhilliard/dozer/internal/api"
	"github.com/rileyhilliard/dozer/internal/errors"
	"github.com/rileyhilliard/dozer/internal/monitor"
)

// Event is a decoded event from /api/events. Exactly one of Status and Log
// is set for known types.
type Event struct {
	Type   string
	Status *monitor.Status
	Log    *api.LogEntry
}

// Stream reads events until Close or until its context is done.
type Stream struct {
	conn      *websocket.Conn
	stop      func() bool
	closeOnce sync.Once
}

// Events opens the event stream. The first event is the current status.
func (c *Client) Events(ctx context.Context) (*Stream, error) {
	u := *c.base
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u = *u.JoinPath("/api/events")

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.httpClient.Timeout,
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrAPI,
			"Can't open the event stream at "+u.String(),
			"Is 'dozer serve' running? Point --server at it if it listens elsewhere")
	}

	s := &Stream{conn: conn}
	s.stop = context.AfterFunc(ctx, func() { _ = s.shutdown() })
	return s, nil
}

// Next blocks for the next event. Unknown event types come back with only
// Type set.
func (s *Stream) Next() (Event, error) {
	var raw struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := s.conn.ReadJSON(&raw); err != nil {
		return Event{}, errors.WrapWithCode(err, errors.ErrAPI, "Event stream closed", "")
	}

	ev := Event{Type: raw.Type}
	switch raw.Type {
	case api.EventStatus:
		var st monitor.Status
		if err := json.Unmarshal(raw.Data, &st); err != nil {
			return Event{}, errors.WrapWithCode(err, errors.ErrAPI, "Malformed status event", "")
		}
		ev.Status = &st
	case api.EventLog:
		var entry api.LogEntry
		if err := json.Unmarshal(raw.Data, &entry); err != nil {
			return Event{}, errors.WrapWithCode(err, errors.ErrAPI, "Malformed log event", "")
		}
		ev.Log = &entry
	}
	return ev, nil
}

// Close ends the stream.
func (s *Stream) Close() error {
	s.stop()
	return s.shutdown()
}

func (s *Stream) shutdown() error {
	var err error
	s.closeOnce.Do(func() { err = s.conn.Close() })
	return err
}
