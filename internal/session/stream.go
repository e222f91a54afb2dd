package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/cadenza-ai/cadenza/internal/event"
	"github.com/cadenza-ai/cadenza/internal/permission"
	"github.com/cadenza-ai/cadenza/internal/provider"
	"github.com/cadenza-ai/cadenza/pkg/types"
)

const (
	retryInitialInterval = 2 * time.Second
	retryMaxInterval     = 60 * time.Second

	// retryMaxAttempts counts the first call plus retries.
	retryMaxAttempts = 5
)

// newRetryBackoff builds the per-step backoff: exponential with jitter,
// capped, bounded by attempt count rather than elapsed time.
func newRetryBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval
	b.RandomizationFactor = 0.2
	b.Multiplier = 2.0
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, retryMaxAttempts-1)
}

// stepState accumulates the parts of one assistant step as the stream
// arrives. Tool call arguments buffer here until the step finishes.
type stepState struct {
	assistant *types.Message
	text      *types.TextPart
	reasoning *types.ReasoningPart
	tools     map[string]*types.ToolPart
	order     []string
	args      map[string]*strings.Builder
}

func newStepState(assistant *types.Message) *stepState {
	return &stepState{
		assistant: assistant,
		tools:     make(map[string]*types.ToolPart),
		args:      make(map[string]*strings.Builder),
	}
}

// step performs one model call: build the request, stream the response
// with retries, persist parts as they arrive, then execute any tool calls.
func (r *Runner) step(ctx context.Context, sess *types.Session, agent *Agent, prov provider.Provider, model *types.Model, msgs []*types.Message, assistant *types.Message) (signal, error) {
	req, err := r.buildRequest(ctx, sess, agent, model, msgs)
	if err != nil {
		return signalStop, err
	}

	state := newStepState(assistant)
	bo := newRetryBackoff()

	for {
		if ctx.Err() != nil {
			return r.finishAborted(ctx, state)
		}

		stream, err := prov.CreateCompletion(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return r.finishAborted(ctx, state)
			}
			if wait, retry := nextRetry(bo, err); retry {
				r.log.Warn().Err(err).Dur("wait", wait).Msg("completion failed, retrying")
				if !sleepCtx(ctx, wait) {
					return r.finishAborted(ctx, state)
				}
				continue
			}
			return signalStop, err
		}

		fin, err := r.consume(ctx, stream, state)
		stream.Close()
		if err != nil {
			if ctx.Err() != nil {
				return r.finishAborted(ctx, state)
			}
			if wait, retry := nextRetry(bo, err); retry {
				r.log.Warn().Err(err).Dur("wait", wait).Msg("stream failed, retrying")
				r.resetStream(ctx, state)
				if !sleepCtx(ctx, wait) {
					return r.finishAborted(ctx, state)
				}
				continue
			}
			return signalStop, err
		}

		return r.finishStep(ctx, sess, agent, model, state, fin)
	}
}

// nextRetry decides whether err warrants another attempt and how long to
// wait. A provider-supplied retry-after hint overrides the backoff.
func nextRetry(bo backoff.BackOff, err error) (time.Duration, bool) {
	if !isRetryable(err) {
		return 0, false
	}
	wait := bo.NextBackOff()
	if wait == backoff.Stop {
		return 0, false
	}
	if hint, ok := retryAfterHint(err); ok && hint > 0 {
		wait = hint
	}
	return wait, true
}

// sleepCtx waits for d, returning false if the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// consume drains one completion stream, applying each decoded event to the
// step state and persisting parts incrementally.
func (r *Runner) consume(ctx context.Context, stream *provider.CompletionStream, state *stepState) (provider.Finish, error) {
	dec := provider.NewDecoder()

	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return provider.Finish{}, err
		}

		for _, ev := range dec.Decode(chunk) {
			if err := r.apply(ctx, state, ev); err != nil {
				return provider.Finish{}, err
			}
		}
	}

	return dec.Finish(), nil
}

// apply folds one stream event into the step state. The switch covers the
// whole event type; a new event kind must be handled here.
func (r *Runner) apply(ctx context.Context, state *stepState, ev provider.StreamEvent) error {
	msg := state.assistant

	switch e := ev.(type) {
	case provider.StepStart:
		return nil

	case provider.TextDelta:
		if state.text == nil {
			now := time.Now().UnixMilli()
			state.text = &types.TextPart{
				ID:        r.messages.NewID(),
				SessionID: msg.SessionID,
				MessageID: msg.ID,
				Type:      "text",
				Time:      types.PartTime{Start: &now},
			}
		}
		state.text.Text += e.Text
		return r.savePart(ctx, msg, state.text, e.Text)

	case provider.ReasoningDelta:
		if state.reasoning == nil {
			now := time.Now().UnixMilli()
			state.reasoning = &types.ReasoningPart{
				ID:        r.messages.NewID(),
				SessionID: msg.SessionID,
				MessageID: msg.ID,
				Type:      "reasoning",
				Time:      types.PartTime{Start: &now},
			}
		}
		state.reasoning.Text += e.Text
		return r.savePart(ctx, msg, state.reasoning, e.Text)

	case provider.ToolCallBegin:
		part := &types.ToolPart{
			ID:        r.messages.NewID(),
			SessionID: msg.SessionID,
			MessageID: msg.ID,
			Type:      "tool",
			CallID:    e.CallID,
			Tool:      e.Tool,
			State:     types.ToolState{Status: types.ToolPending},
		}
		state.tools[e.CallID] = part
		state.order = append(state.order, e.CallID)
		return r.savePart(ctx, msg, part, "")

	case provider.ToolCallDelta:
		buf := state.args[e.CallID]
		if buf == nil {
			buf = &strings.Builder{}
			state.args[e.CallID] = buf
		}
		buf.WriteString(e.Arguments)
		return nil

	case provider.Finish:
		return nil

	default:
		return fmt.Errorf("unhandled stream event %T", ev)
	}
}

// savePart persists a part and publishes its update with the delta.
func (r *Runner) savePart(ctx context.Context, msg *types.Message, part types.Part, delta string) error {
	if err := r.messages.SavePart(ctx, msg.ID, part); err != nil {
		return err
	}
	event.Publish(event.Event{
		Type: event.PartUpdated,
		Data: event.PartData{SessionID: msg.SessionID, MessageID: msg.ID, Part: part, Delta: delta},
	})
	return nil
}

// finishStep persists the finished assistant message, parses buffered tool
// arguments and dispatches on the finish reason.
func (r *Runner) finishStep(ctx context.Context, sess *types.Session, agent *Agent, model *types.Model, state *stepState, fin provider.Finish) (signal, error) {
	assistant := state.assistant
	usage := fin.Usage
	assistant.Tokens = &usage
	assistant.Finish = ptr(fin.Reason)

	for _, callID := range state.order {
		part := state.tools[callID]
		buf := state.args[callID]
		if buf == nil {
			continue
		}
		var input map[string]any
		if err := json.Unmarshal([]byte(buf.String()), &input); err != nil {
			continue
		}
		part.Input = input
		if err := r.savePart(ctx, assistant, part, ""); err != nil {
			return signalStop, err
		}
	}

	if err := r.messages.Update(ctx, assistant); err != nil {
		return signalStop, err
	}

	// Any finish reason can leave the window overflowing, including a
	// terminal one: compact now so the next turn starts with headroom.
	needsCompact := r.compactor.IsOverflowing(usage, model.ContextWindow)

	switch fin.Reason {
	case types.FinishToolUse:
		if err := r.executeTools(ctx, sess, agent, state); err != nil {
			if ctx.Err() != nil {
				return r.finishAborted(ctx, state)
			}
			if permission.IsRejected(err) {
				assistant.Finish = ptr(types.FinishError)
				assistant.Error = types.NewPermissionError(err.Error())
				if uerr := r.messages.Update(ctx, assistant); uerr != nil {
					return signalStop, uerr
				}
				return signalStop, nil
			}
			return signalStop, err
		}

	case types.FinishMaxTokens:
		assistant.Error = &types.MessageError{
			Name: types.ErrNameOutput,
			Data: types.MessageErrorData{Message: "output length limit reached"},
		}
		if err := r.messages.Update(ctx, assistant); err != nil {
			return signalStop, err
		}
	}

	if needsCompact {
		return signalCompact, nil
	}
	return signalContinue, nil
}

// finishAborted marks the step's message and any unfinished tool parts as
// interrupted. The work already persisted stays in the log.
func (r *Runner) finishAborted(ctx context.Context, state *stepState) (signal, error) {
	bg := context.WithoutCancel(ctx)
	assistant := state.assistant

	for _, callID := range state.order {
		part := state.tools[callID]
		if part.State.Status == types.ToolCompleted || part.State.Status == types.ToolError {
			continue
		}
		if part.State.Status == types.ToolPending {
			_ = part.Transition(types.ToolRunning)
		}
		_ = part.Transition(types.ToolError)
		part.State.Error = "interrupted"
		if err := r.savePart(bg, assistant, part, ""); err != nil {
			r.log.Error().Err(err).Msg("failed to persist interrupted tool part")
		}
	}

	assistant.Finish = ptr(types.FinishAborted)
	assistant.Error = types.NewAbortedError()
	if err := r.messages.Update(bg, assistant); err != nil {
		r.log.Error().Err(err).Msg("failed to persist aborted message")
	}

	return signalStop, nil
}

// resetStream rolls streamed content back before a retry so the replayed
// stream does not duplicate it.
func (r *Runner) resetStream(ctx context.Context, state *stepState) {
	assistant := state.assistant

	if state.text != nil && state.text.Text != "" {
		state.text.Text = ""
		_ = r.savePart(ctx, assistant, state.text, "")
	}
	if state.reasoning != nil && state.reasoning.Text != "" {
		state.reasoning.Text = ""
		_ = r.savePart(ctx, assistant, state.reasoning, "")
	}

	for _, callID := range state.order {
		part := state.tools[callID]
		if part.State.Status != types.ToolPending {
			continue
		}
		_ = part.Transition(types.ToolRunning)
		_ = part.Transition(types.ToolError)
		part.State.Error = "stream interrupted before execution"
		_ = r.savePart(ctx, assistant, part, "")
	}

	state.text = nil
	state.reasoning = nil
	state.tools = make(map[string]*types.ToolPart)
	state.order = nil
	state.args = make(map[string]*strings.Builder)
}
