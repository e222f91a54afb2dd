package session

import (
	"context"
	"fmt"
	"time"

	"github.com/cadenza-ai/cadenza/internal/permission"
	"github.com/cadenza-ai/cadenza/internal/tool"
	"github.com/cadenza-ai/cadenza/pkg/types"
)

// executeTools runs the step's tool calls in stream order. Execution
// failures are recorded on the part and the loop continues; a permission
// rejection or cancellation aborts the remaining calls and is returned.
func (r *Runner) executeTools(ctx context.Context, sess *types.Session, agent *Agent, state *stepState) error {
	assistant := state.assistant

	// Repetition is only meaningful within one assistant turn; drop the
	// history once the step's calls are done, on every exit path.
	defer r.doomLoop.Forget(assistant.ID)

	for _, callID := range state.order {
		part := state.tools[callID]

		if err := ctx.Err(); err != nil {
			return err
		}

		t, ok := r.tools.Get(part.Tool)
		if !ok || !agent.ToolEnabled(part.Tool) {
			r.failTool(ctx, assistant, part, fmt.Sprintf("tool %q is not available", part.Tool))
			continue
		}
		if part.Input == nil {
			r.failTool(ctx, assistant, part, "tool arguments did not parse")
			continue
		}

		// A run of identical calls needs explicit consent before it can
		// continue, regardless of what the rules say about the tool.
		if r.doomLoop.Observe(assistant.ID, part.Tool, part.Input) {
			req := permission.Request{
				SessionID:  sess.ID,
				MessageID:  assistant.ID,
				CallID:     part.CallID,
				Permission: permission.DoomLoop,
				Patterns:   []string{part.Tool},
				Title:      fmt.Sprintf("Allow repeating %q with the same input?", part.Tool),
			}
			if err := r.evaluator.Ask(ctx, req, agent.Rules); err != nil {
				r.failTool(ctx, assistant, part, err.Error())
				return err
			}
			r.doomLoop.Forget(assistant.ID)
		}

		if spec := t.Permission(part.Input); spec != nil {
			req := permission.Request{
				SessionID:  sess.ID,
				MessageID:  assistant.ID,
				CallID:     part.CallID,
				Permission: spec.ID,
				Patterns:   spec.Patterns,
				Title:      spec.Title,
				Metadata:   spec.Metadata,
			}
			if err := r.evaluator.Ask(ctx, req, agent.Rules); err != nil {
				r.failTool(ctx, assistant, part, err.Error())
				return err
			}
		}

		now := time.Now().UnixMilli()
		part.State.Time.Start = &now
		if err := part.Transition(types.ToolRunning); err != nil {
			r.failTool(ctx, assistant, part, err.Error())
			continue
		}
		if err := r.savePart(ctx, assistant, part, ""); err != nil {
			return err
		}

		tc := &tool.Context{
			SessionID: sess.ID,
			MessageID: assistant.ID,
			CallID:    part.CallID,
			Agent:     agent.Name,
			WorkDir:   sess.Directory,
			Metadata: func(title string, meta map[string]any) {
				part.State.Title = title
				part.State.Metadata = meta
				_ = r.savePart(ctx, assistant, part, "")
			},
		}

		result, err := t.Execute(ctx, part.Input, tc)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.failTool(ctx, assistant, part, err.Error())
			continue
		}

		end := time.Now().UnixMilli()
		part.State.Time.End = &end
		part.State.Title = result.Title
		part.State.Output = result.Output
		if result.Metadata != nil {
			part.State.Metadata = result.Metadata
		}
		if err := part.Transition(types.ToolCompleted); err != nil {
			r.failTool(ctx, assistant, part, err.Error())
			continue
		}
		if err := r.savePart(ctx, assistant, part, ""); err != nil {
			return err
		}
	}

	return nil
}

// failTool records a failure on a tool part. Pending parts pass through
// running so the transition stays forward-only.
func (r *Runner) failTool(ctx context.Context, assistant *types.Message, part *types.ToolPart, msg string) {
	if part.State.Status == types.ToolPending {
		_ = part.Transition(types.ToolRunning)
	}
	if part.State.Status == types.ToolRunning {
		_ = part.Transition(types.ToolError)
	}
	part.State.Error = msg
	end := time.Now().UnixMilli()
	part.State.Time.End = &end
	if err := r.savePart(context.WithoutCancel(ctx), assistant, part, ""); err != nil {
		r.log.Error().Err(err).Str("tool", part.Tool).Msg("failed to persist tool error")
	}
}
