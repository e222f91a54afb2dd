package permission

import (
	"context"
	"sync"

	"github.com/cadenza-ai/cadenza/internal/event"
)

// Responder is a PromptFunc backed by the event bus: it publishes
// permission.asked and blocks until some presentation layer calls Respond
// with the request id. This is how the HTTP server routes consent dialogs.
type Responder struct {
	mu      sync.Mutex
	pending map[string]chan Reply
}

// NewResponder creates a Responder with no pending asks.
func NewResponder() *Responder {
	return &Responder{pending: make(map[string]chan Reply)}
}

// Prompt implements PromptFunc.
func (r *Responder) Prompt(ctx context.Context, req Request) (Reply, error) {
	ch := make(chan Reply, 1)

	r.mu.Lock()
	r.pending[req.ID] = ch
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.pending, req.ID)
		r.mu.Unlock()
	}()

	event.Publish(event.Event{
		Type: event.PermissionAsked,
		Data: event.PermissionAskedData{
			ID:         req.ID,
			SessionID:  req.SessionID,
			Permission: req.Permission,
			Patterns:   req.Patterns,
			Title:      req.Title,
			Metadata:   req.Metadata,
		},
	})

	select {
	case <-ctx.Done():
		return ReplyDeny, ctx.Err()
	case reply := <-ch:
		return reply, nil
	}
}

// Respond answers a pending ask. Unknown ids are ignored so a late or
// duplicate response cannot wedge anything.
func (r *Responder) Respond(requestID string, reply Reply) {
	r.mu.Lock()
	ch, ok := r.pending[requestID]
	r.mu.Unlock()

	if ok {
		select {
		case ch <- reply:
		default:
		}
	}

	event.Publish(event.Event{
		Type: event.PermissionResolved,
		Data: event.PermissionResolvedData{
			ID:      requestID,
			Reply:   string(reply),
			Granted: reply != ReplyDeny,
		},
	})
}

// Pending returns the ids of unanswered asks.
func (r *Responder) Pending() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.pending))
	for id := range r.pending {
		ids = append(ids, id)
	}
	return ids
}
