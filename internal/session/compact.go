package session

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/cadenza-ai/cadenza/internal/config"
	"github.com/cadenza-ai/cadenza/internal/event"
	"github.com/cadenza-ai/cadenza/internal/logging"
	"github.com/cadenza-ai/cadenza/internal/message"
	"github.com/cadenza-ai/cadenza/internal/provider"
	"github.com/cadenza-ai/cadenza/internal/token"
	"github.com/cadenza-ai/cadenza/pkg/types"
)

const (
	// DefaultOverflowPercent of the context window at which the loop
	// compacts before the next model call.
	DefaultOverflowPercent = 90

	// DefaultKeepRecent messages survive a compaction pass verbatim.
	DefaultKeepRecent = 10

	// DefaultProtectedTokens is the budget, counted from the newest
	// message backwards, that the prune pass leaves untouched.
	DefaultProtectedTokens = 40000

	// summaryMaxTokens caps the generated summary.
	summaryMaxTokens = 2000

	prunedPlaceholder = "[old tool output removed to free context]"
)

// SummarizeFunc produces a summary of a conversation transcript. The
// production implementation calls a model; tests substitute a stub.
type SummarizeFunc func(ctx context.Context, transcript string) (string, error)

// Compactor shrinks a session's model-visible history once it approaches
// the context window: first by pruning old tool outputs, then by folding
// old messages into a summary message.
type Compactor struct {
	messages  *message.Store
	estimator *token.Estimator
	summarize SummarizeFunc
	log       zerolog.Logger

	overflowPercent int
	keepRecent      int
	protectedTokens int
}

// NewCompactor creates a compactor. cfg may be nil for defaults.
func NewCompactor(messages *message.Store, estimator *token.Estimator, summarize SummarizeFunc, cfg *config.CompactionConfig) *Compactor {
	c := &Compactor{
		messages:        messages,
		estimator:       estimator,
		summarize:       summarize,
		log:             logging.Component("compact"),
		overflowPercent: DefaultOverflowPercent,
		keepRecent:      DefaultKeepRecent,
		protectedTokens: DefaultProtectedTokens,
	}
	if cfg != nil {
		if cfg.ThresholdPercent > 0 {
			c.overflowPercent = cfg.ThresholdPercent
		}
		if cfg.KeepRecent > 0 {
			c.keepRecent = cfg.KeepRecent
		}
		if cfg.ProtectedTokens > 0 {
			c.protectedTokens = cfg.ProtectedTokens
		}
	}
	return c
}

// IsOverflowing reports whether a completion's usage fills the threshold
// share of the context window. Input, cache reads and output all occupy
// the window; cache writes do not. An unknown window never overflows.
func (c *Compactor) IsOverflowing(usage types.TokenUsage, contextWindow int) bool {
	if contextWindow <= 0 {
		return false
	}
	return usage.Total()*100 >= contextWindow*c.overflowPercent
}

// Compact runs one compaction pass: prune old tool outputs outside the
// protected budget, summarize everything older than the newest keepRecent
// messages into a summary message, and mark the summarized messages
// compacted. Already-compacted messages are never touched again, so the
// pass is idempotent. It returns the summary message id and how many
// messages were folded.
func (c *Compactor) Compact(ctx context.Context, sessionID string) (string, int, error) {
	msgs, err := c.messages.List(ctx, sessionID)
	if err != nil {
		return "", 0, err
	}

	if err := c.prune(ctx, msgs); err != nil {
		return "", 0, err
	}

	if len(msgs) <= c.keepRecent {
		return "", 0, nil
	}

	old := msgs[:len(msgs)-c.keepRecent]

	// The summary of a previous pass may still sit in the old range; it
	// gets folded into the new summary and marked compacted with the
	// rest, so only the newest summary stays model-visible.
	transcript, err := c.transcript(ctx, old)
	if err != nil {
		return "", 0, err
	}

	summary, err := c.summarize(ctx, transcript)
	if err != nil {
		return "", 0, fmt.Errorf("summarize: %w", err)
	}

	now := time.Now().UnixMilli()
	summaryMsg := &types.Message{
		SessionID: sessionID,
		Role:      types.RoleAssistant,
		Summary:   true,
		Finish:    ptr(types.FinishStop),
		Time:      types.MessageTime{Created: now},
	}
	if err := c.messages.Create(ctx, summaryMsg); err != nil {
		return "", 0, err
	}

	textPart := &types.TextPart{
		ID:        c.messages.NewID(),
		SessionID: sessionID,
		MessageID: summaryMsg.ID,
		Type:      "text",
		Text:      summary,
	}
	if err := c.messages.SavePart(ctx, summaryMsg.ID, textPart); err != nil {
		return "", 0, err
	}

	ids := make([]string, 0, len(old))
	for _, m := range old {
		ids = append(ids, m.ID)
	}
	if err := c.messages.MarkCompacted(ctx, sessionID, ids); err != nil {
		return "", 0, err
	}

	c.log.Info().
		Str("session", sessionID).
		Int("compacted", len(ids)).
		Str("summary", summaryMsg.ID).
		Msg("session compacted")

	event.Publish(event.Event{
		Type: event.SessionCompacted,
		Data: event.SessionCompactedData{
			SessionID: sessionID,
			SummaryID: summaryMsg.ID,
			Compacted: len(ids),
		},
	})

	return summaryMsg.ID, len(ids), nil
}

// prune replaces completed tool outputs with a placeholder in messages
// older than the protected token budget, newest first.
func (c *Compactor) prune(ctx context.Context, msgs []*types.Message) error {
	budget := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		parts, err := c.messages.Parts(ctx, msgs[i].ID)
		if err != nil {
			return err
		}

		cost := c.estimator.CountParts(parts)
		// The newest message is protected even when it alone exceeds
		// the budget.
		if i == len(msgs)-1 || budget+cost <= c.protectedTokens {
			budget += cost
			continue
		}

		// Outside the protected range: strip bulky tool outputs.
		for _, part := range parts {
			tp, ok := part.(*types.ToolPart)
			if !ok || tp.State.Status != types.ToolCompleted {
				continue
			}
			if tp.State.Output == "" || tp.State.Output == prunedPlaceholder {
				continue
			}
			tp.State.Output = prunedPlaceholder
			if err := c.messages.SavePart(ctx, msgs[i].ID, tp); err != nil {
				return err
			}
		}
		budget += cost
	}
	return nil
}

// transcript renders old messages for the summarizer.
func (c *Compactor) transcript(ctx context.Context, msgs []*types.Message) (string, error) {
	var sb strings.Builder
	for _, m := range msgs {
		switch m.Role {
		case types.RoleUser:
			sb.WriteString("USER:\n")
		default:
			sb.WriteString("ASSISTANT:\n")
		}

		parts, err := c.messages.Parts(ctx, m.ID)
		if err != nil {
			return "", err
		}
		for _, part := range parts {
			switch p := part.(type) {
			case *types.TextPart:
				sb.WriteString(p.Text)
				sb.WriteString("\n")
			case *types.ToolPart:
				fmt.Fprintf(&sb, "[tool %s]\n", p.Tool)
				output := p.State.Output
				if len(output) > 500 {
					output = output[:500] + "..."
				}
				if output != "" {
					sb.WriteString(output)
					sb.WriteString("\n")
				}
			}
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

const summarySystemPrompt = `You are a conversation summarizer. Summarize the conversation so work can continue with the summary as the only remaining context.

Preserve:
1. What was accomplished
2. Current work in progress
3. Files involved
4. Next steps
5. Key user requests and constraints

Be concise but complete enough that work continues seamlessly.`

// summarizeWithModel runs a one-shot completion for a compaction summary.
func summarizeWithModel(ctx context.Context, prov provider.Provider, model *types.Model, transcript string) (string, error) {
	stream, err := prov.CreateCompletion(ctx, &provider.CompletionRequest{
		Model: model.ID,
		Messages: []*schema.Message{
			{Role: schema.System, Content: summarySystemPrompt},
			{Role: schema.User, Content: transcript},
		},
		MaxTokens: summaryMaxTokens,
	})
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		sb.WriteString(chunk.Content)
	}

	if sb.Len() == 0 {
		return "", fmt.Errorf("summary model returned no content")
	}
	return sb.String(), nil
}

func ptr[T any](v T) *T { return &v }
