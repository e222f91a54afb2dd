package types

import (
	"encoding/json"
	"fmt"
)

// Part is a sub-unit of a message: plain text, reasoning text, or a tool
// call with its lifecycle state.
type Part interface {
	PartID() string
	PartType() string
}

// PartTime carries start/end timestamps for a part in Unix millis.
type PartTime struct {
	Start *int64 `json:"start,omitempty"`
	End   *int64 `json:"end,omitempty"`
}

// TextPart holds streamed assistant text or a user's prompt text.
type TextPart struct {
	ID        string   `json:"id"`
	SessionID string   `json:"sessionID,omitempty"`
	MessageID string   `json:"messageID,omitempty"`
	Type      string   `json:"type"` // always "text"
	Text      string   `json:"text"`
	Time      PartTime `json:"time,omitempty"`
}

func (p *TextPart) PartID() string   { return p.ID }
func (p *TextPart) PartType() string { return "text" }

// ReasoningPart holds extended-thinking text streamed before the answer.
type ReasoningPart struct {
	ID        string   `json:"id"`
	SessionID string   `json:"sessionID,omitempty"`
	MessageID string   `json:"messageID,omitempty"`
	Type      string   `json:"type"` // always "reasoning"
	Text      string   `json:"text"`
	Time      PartTime `json:"time,omitempty"`
}

func (p *ReasoningPart) PartID() string   { return p.ID }
func (p *ReasoningPart) PartType() string { return "reasoning" }

// ToolStatus is the lifecycle state of a tool call.
type ToolStatus string

const (
	ToolPending   ToolStatus = "pending"
	ToolRunning   ToolStatus = "running"
	ToolCompleted ToolStatus = "completed"
	ToolError     ToolStatus = "error"
)

// rank orders statuses so transitions can be validated as forward-only.
func (s ToolStatus) rank() int {
	switch s {
	case ToolPending:
		return 0
	case ToolRunning:
		return 1
	case ToolCompleted, ToolError:
		return 2
	}
	return -1
}

// ToolPart records one tool call issued by the model, from the streamed
// call through execution to its result or error.
type ToolPart struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionID,omitempty"`
	MessageID string         `json:"messageID,omitempty"`
	Type      string         `json:"type"` // always "tool"
	CallID    string         `json:"callID"`
	Tool      string         `json:"tool"`
	Input     map[string]any `json:"input,omitempty"`
	State     ToolState      `json:"state"`
}

func (p *ToolPart) PartID() string   { return p.ID }
func (p *ToolPart) PartType() string { return "tool" }

// Transition moves the tool call to the given status. States are never
// revisited; a backward move is an error.
func (p *ToolPart) Transition(to ToolStatus) error {
	if to.rank() <= p.State.Status.rank() {
		return fmt.Errorf("tool part %s: invalid transition %s -> %s", p.ID, p.State.Status, to)
	}
	p.State.Status = to
	return nil
}

// ToolState is the mutable execution state of a ToolPart.
type ToolState struct {
	Status   ToolStatus     `json:"status"`
	Title    string         `json:"title,omitempty"`
	Output   string         `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Time     PartTime       `json:"time,omitempty"`
}

// UnmarshalPart decodes a stored part into its concrete type.
func UnmarshalPart(data []byte) (Part, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}

	switch probe.Type {
	case "text":
		var p TextPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "reasoning":
		var p ReasoningPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "tool":
		var p ToolPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	default:
		return nil, fmt.Errorf("unknown part type %q", probe.Type)
	}
}
