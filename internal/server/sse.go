package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cadenza-ai/cadenza/internal/event"
)

// heartbeatInterval keeps idle SSE connections alive through proxies.
const heartbeatInterval = 30 * time.Second

type sseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	if _, ok := w.(http.Flusher); !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	return &sseWriter{w: w, rc: http.NewResponseController(w)}, nil
}

func (s *sseWriter) writeEvent(e event.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", e.Type, data); err != nil {
		return err
	}
	return s.rc.Flush()
}

func (s *sseWriter) writeHeartbeat() error {
	if _, err := fmt.Fprint(s.w, ": heartbeat\n\n"); err != nil {
		return err
	}
	return s.rc.Flush()
}

// events streams the bus over SSE. An optional ?session= query narrows
// the feed to one session's events; untagged events always pass.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := sse.writeEvent(event.Event{Type: "server.connected", Data: map[string]any{}}); err != nil {
		return
	}

	sessionFilter := r.URL.Query().Get("session")

	events := make(chan event.Event, 64)
	unsub := event.SubscribeAll(func(e event.Event) {
		select {
		case events <- e:
		default:
			// A stalled client drops events rather than blocking the bus.
		}
	})
	defer unsub()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if err := sse.writeHeartbeat(); err != nil {
				return
			}
		case e := <-events:
			if sessionFilter != "" && !eventMatchesSession(e, sessionFilter) {
				continue
			}
			if err := sse.writeEvent(e); err != nil {
				return
			}
		}
	}
}

// eventMatchesSession checks the event payload's session tag. Payloads
// without one (config updates, permission resolutions) always match.
func eventMatchesSession(e event.Event, sessionID string) bool {
	switch data := e.Data.(type) {
	case event.SessionData:
		return data.Session != nil && data.Session.ID == sessionID
	case event.SessionCompactedData:
		return data.SessionID == sessionID
	case event.SessionErrorData:
		return data.SessionID == sessionID
	case event.SessionIdleData:
		return data.SessionID == sessionID
	case event.MessageData:
		return data.Message != nil && data.Message.SessionID == sessionID
	case event.PartData:
		return data.SessionID == sessionID
	case event.PermissionAskedData:
		return data.SessionID == sessionID
	default:
		return true
	}
}
