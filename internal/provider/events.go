package provider

import (
	"github.com/cloudwego/eino/schema"

	"github.com/cadenza-ai/cadenza/pkg/types"
)

// StreamEvent is one normalized event decoded from a provider stream. The
// set of implementations is closed: StepStart, TextDelta, ReasoningDelta,
// ToolCallBegin, ToolCallDelta and Finish. Consumers switch over all of
// them, so an unknown event is a programming error, not a runtime case.
type StreamEvent interface {
	streamEvent()
}

// StepStart opens one assistant step.
type StepStart struct{}

// TextDelta appends text to the current text part.
type TextDelta struct {
	Text string
}

// ReasoningDelta appends extended-thinking text.
type ReasoningDelta struct {
	Text string
}

// ToolCallBegin announces a tool call. Arguments may follow in
// ToolCallDelta fragments keyed by the same CallID.
type ToolCallBegin struct {
	CallID string
	Tool   string
}

// ToolCallDelta carries an argument fragment for an announced call.
type ToolCallDelta struct {
	CallID    string
	Arguments string
}

// Finish closes the step with a normalized reason and the usage the
// provider reported.
type Finish struct {
	Reason string
	Usage  types.TokenUsage
}

func (StepStart) streamEvent()      {}
func (TextDelta) streamEvent()      {}
func (ReasoningDelta) streamEvent() {}
func (ToolCallBegin) streamEvent()  {}
func (ToolCallDelta) streamEvent()  {}
func (Finish) streamEvent()         {}

// NormalizeFinishReason maps provider finish vocabularies onto ours.
func NormalizeFinishReason(reason string) string {
	switch reason {
	case "stop", "end_turn", "stop_sequence":
		return types.FinishStop
	case "tool_use", "tool_calls", "function_call":
		return types.FinishToolUse
	case "length", "max_tokens":
		return types.FinishMaxTokens
	case "":
		return ""
	default:
		return types.FinishUnknown
	}
}

// Decoder turns raw Eino message chunks into StreamEvents. One decoder
// serves one stream; it tracks which tool calls it has announced so
// argument fragments attach to the right call.
type Decoder struct {
	started  bool
	announce map[string]bool
	lastCall string
	usage    types.TokenUsage
	reason   string
}

// NewDecoder creates a decoder for one completion stream.
func NewDecoder() *Decoder {
	return &Decoder{announce: make(map[string]bool)}
}

// Decode converts one chunk into zero or more events, in stream order.
func (d *Decoder) Decode(chunk *schema.Message) []StreamEvent {
	var events []StreamEvent

	if !d.started {
		d.started = true
		events = append(events, StepStart{})
	}

	if chunk.ReasoningContent != "" {
		events = append(events, ReasoningDelta{Text: chunk.ReasoningContent})
	}
	if chunk.Content != "" {
		events = append(events, TextDelta{Text: chunk.Content})
	}

	for _, tc := range chunk.ToolCalls {
		id := tc.ID
		if id == "" {
			// Argument-only fragments arrive without an id; they belong
			// to the most recent call.
			id = d.lastCall
		}
		if id == "" {
			continue
		}

		if !d.announce[id] {
			d.announce[id] = true
			d.lastCall = id
			events = append(events, ToolCallBegin{CallID: id, Tool: tc.Function.Name})
		}
		if tc.Function.Arguments != "" {
			events = append(events, ToolCallDelta{CallID: id, Arguments: tc.Function.Arguments})
		}
	}

	if meta := chunk.ResponseMeta; meta != nil {
		if u := meta.Usage; u != nil {
			d.usage.Input = u.PromptTokens
			d.usage.Output = u.CompletionTokens
		}
		if meta.FinishReason != "" {
			d.reason = NormalizeFinishReason(meta.FinishReason)
		}
	}

	return events
}

// Finish produces the terminal event once the stream reports io.EOF. A
// stream that never carried a finish reason finishes as unknown.
func (d *Decoder) Finish() Finish {
	reason := d.reason
	if reason == "" {
		reason = types.FinishUnknown
	}
	return Finish{Reason: reason, Usage: d.usage}
}
