package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cadenza-ai/cadenza/pkg/types"
)

// PromptInput is one user turn.
type PromptInput struct {
	SessionID string          `json:"sessionID"`
	Text      string          `json:"text"`
	Agent     string          `json:"agent,omitempty"`
	Model     *types.ModelRef `json:"model,omitempty"`
}

// Prompt appends a user message to the session and drives the loop until
// the turn completes, returning the final assistant message.
func (r *Runner) Prompt(ctx context.Context, in PromptInput) (*types.Message, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, fmt.Errorf("prompt text is empty")
	}
	if _, err := r.sessions.Get(ctx, in.SessionID); err != nil {
		return nil, err
	}

	user := &types.Message{
		SessionID: in.SessionID,
		Role:      types.RoleUser,
		Agent:     in.Agent,
		Model:     in.Model,
	}
	if err := r.messages.Create(ctx, user); err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	part := &types.TextPart{
		ID:        r.messages.NewID(),
		SessionID: in.SessionID,
		MessageID: user.ID,
		Type:      "text",
		Text:      in.Text,
		Time:      types.PartTime{Start: &now},
	}
	if err := r.savePart(ctx, user, part, in.Text); err != nil {
		return nil, err
	}

	r.sessions.Touch(ctx, in.SessionID)
	return r.Run(ctx, in.SessionID)
}
