package session

import (
	"context"
	"fmt"

	"github.com/cadenza-ai/cadenza/pkg/types"
)

// runResult is what a finished loop run hands to its caller and to every
// waiter that joined while it was in flight.
type runResult struct {
	message *types.Message
	err     error
}

// flight tracks one in-flight loop run for a session.
type flight struct {
	cancel  context.CancelFunc
	waiters []chan runResult
}

// Run drives the session's loop to completion and returns the final
// assistant message. Runs are single-flight per session: a concurrent Run
// for the same session does not start a second loop, it waits for the
// in-flight one and receives the same result.
func (r *Runner) Run(ctx context.Context, sessionID string) (msg *types.Message, err error) {
	r.mu.Lock()
	if f, ok := r.flights[sessionID]; ok {
		waiter := make(chan runResult, 1)
		f.waiters = append(f.waiters, waiter)
		r.mu.Unlock()

		select {
		case res := <-waiter:
			return res.message, res.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	f := &flight{cancel: cancel}
	r.flights[sessionID] = f
	r.mu.Unlock()

	// Release the flight and resolve waiters even if the run panics;
	// otherwise the session stays wedged for the process lifetime.
	defer func() {
		cancel()

		if rec := recover(); rec != nil {
			msg = nil
			err = fmt.Errorf("session run panic: %v", rec)
			r.log.Error().Str("session", sessionID).Interface("panic", rec).Msg("loop run panicked")
		}

		r.mu.Lock()
		delete(r.flights, sessionID)
		waiters := f.waiters
		r.mu.Unlock()

		res := runResult{message: msg, err: err}
		for _, w := range waiters {
			w <- res
		}
	}()

	msg, err = r.run(runCtx, sessionID)
	return msg, err
}

// Abort cancels the in-flight run for a session, if any. It reports
// whether a run was actually cancelled.
func (r *Runner) Abort(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.flights[sessionID]
	if !ok {
		return false
	}
	f.cancel()
	return true
}

// Running reports whether a loop run is in flight for the session.
func (r *Runner) Running(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.flights[sessionID]
	return ok
}
