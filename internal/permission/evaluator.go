package permission

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"
)

// PromptFunc asks the user for consent. It is the seam to any UI: the
// server wires it to an event-bus prompt, tests wire it to a stub. It must
// honor ctx cancellation.
type PromptFunc func(ctx context.Context, req Request) (Reply, error)

// Evaluator answers permission questions for tool executions. It is safe
// for concurrent use; prompts are serialized per session so the user never
// sees two simultaneous ask dialogs for one conversation.
type Evaluator struct {
	store  *ApprovalStore
	prompt PromptFunc

	mu    sync.Mutex
	gates map[string]chan struct{}
}

// NewEvaluator creates an Evaluator. store may not be nil; prompt may be
// nil, in which case every ask is denied.
func NewEvaluator(store *ApprovalStore, prompt PromptFunc) *Evaluator {
	return &Evaluator{
		store:  store,
		prompt: prompt,
		gates:  make(map[string]chan struct{}),
	}
}

// Evaluate resolves a single permission/value against remembered
// approvals first, then the given ruleset. No match defaults to ask.
func (e *Evaluator) Evaluate(permission, value string, rules Ruleset) Action {
	if action, ok := e.store.Evaluate(permission, value); ok {
		return action
	}
	return rules.Evaluate(permission, value)
}

// Ask resolves every pattern in the request, prompting where the rules say
// ask. A deny rule or a deny reply returns RejectedError immediately. An
// "always" reply is remembered in the approval store before continuing.
func (e *Evaluator) Ask(ctx context.Context, req Request, rules Ruleset) error {
	patterns := req.Patterns
	if len(patterns) == 0 {
		patterns = []string{"*"}
	}

	for _, pattern := range patterns {
		switch e.Evaluate(req.Permission, pattern, rules) {
		case ActionAllow:
			continue

		case ActionDeny:
			return &RejectedError{
				SessionID:  req.SessionID,
				Permission: req.Permission,
				Pattern:    pattern,
				CallID:     req.CallID,
				Message:    "permission denied by configuration",
			}

		case ActionAsk:
			if err := e.askOne(ctx, req, pattern); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Evaluator) askOne(ctx context.Context, req Request, pattern string) error {
	if e.prompt == nil {
		return &RejectedError{
			SessionID:  req.SessionID,
			Permission: req.Permission,
			Pattern:    pattern,
			CallID:     req.CallID,
			Message:    "no prompt handler configured",
		}
	}

	if err := e.acquireGate(ctx, req.SessionID); err != nil {
		return err
	}
	defer e.releaseGate(req.SessionID)

	// Another ask may have been answered "always" while we waited.
	if action, ok := e.store.Evaluate(req.Permission, pattern); ok && action == ActionAllow {
		return nil
	}

	ask := req
	ask.Patterns = []string{pattern}
	if ask.ID == "" {
		ask.ID = ulid.Make().String()
	}

	reply, err := e.prompt(ctx, ask)
	if err != nil {
		return err
	}

	switch reply {
	case ReplyOnce:
		return nil
	case ReplyAlways:
		return e.store.Approve(ctx, req.Permission, pattern)
	default:
		return &RejectedError{
			SessionID:  req.SessionID,
			Permission: req.Permission,
			Pattern:    pattern,
			CallID:     req.CallID,
			Message:    "permission rejected by user",
		}
	}
}

// acquireGate takes the per-session prompt slot, unblocking on ctx
// cancellation.
func (e *Evaluator) acquireGate(ctx context.Context, sessionID string) error {
	e.mu.Lock()
	gate, ok := e.gates[sessionID]
	if !ok {
		gate = make(chan struct{}, 1)
		e.gates[sessionID] = gate
	}
	e.mu.Unlock()

	select {
	case gate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Evaluator) releaseGate(sessionID string) {
	e.mu.Lock()
	gate := e.gates[sessionID]
	e.mu.Unlock()
	if gate != nil {
		<-gate
	}
}
