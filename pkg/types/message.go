// Package types defines the shared data model for sessions, messages and
// message parts.
package types

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Finish reasons recorded on assistant messages. Providers report a wider
// vocabulary; the stream decoder normalizes to these values.
const (
	FinishStop      = "stop"
	FinishToolUse   = "tool_use"
	FinishMaxTokens = "max_tokens"
	FinishAborted   = "aborted"
	FinishError     = "error"
	FinishUnknown   = "unknown"
)

// TerminalFinish reports whether a finish reason ends the agentic loop.
// A tool-use finish means the model wants another turn, and an unknown or
// missing reason means the turn never completed.
func TerminalFinish(reason string) bool {
	switch reason {
	case "", FinishToolUse, FinishUnknown:
		return false
	}
	return true
}

// Message is one entry in a session's conversation log. IDs are monotonic
// ULIDs, so lexicographic order within a session is causal order.
type Message struct {
	ID        string      `json:"id"`
	SessionID string      `json:"sessionID"`
	Role      Role        `json:"role"`
	Time      MessageTime `json:"time"`

	// User message fields.
	Agent string    `json:"agent,omitempty"`
	Model *ModelRef `json:"model,omitempty"`

	// Assistant message fields. ParentID links to the user message that
	// prompted this response.
	ParentID   string        `json:"parentID,omitempty"`
	ProviderID string        `json:"providerID,omitempty"`
	ModelID    string        `json:"modelID,omitempty"`
	Finish     *string       `json:"finish,omitempty"`
	Tokens     *TokenUsage   `json:"tokens,omitempty"`
	Error      *MessageError `json:"error,omitempty"`

	// Summary marks the message produced by a compaction pass. Compacted
	// messages are excluded from the model's view but kept for audit.
	Summary   bool `json:"summary,omitempty"`
	Compacted bool `json:"compacted,omitempty"`
}

// Finished reports whether the message carries a finish reason.
func (m *Message) Finished() bool {
	return m.Finish != nil && *m.Finish != ""
}

// MessageTime carries creation and last-update timestamps in Unix millis.
type MessageTime struct {
	Created int64  `json:"created"`
	Updated *int64 `json:"updated,omitempty"`
}

// ModelRef names a model on a specific provider.
type ModelRef struct {
	ProviderID string `json:"providerID"`
	ModelID    string `json:"modelID"`
}

// TokenUsage is the usage reported by a provider for one completion.
type TokenUsage struct {
	Input  int        `json:"input"`
	Output int        `json:"output"`
	Cache  CacheUsage `json:"cache"`
}

// CacheUsage counts prompt-cache reads and writes.
type CacheUsage struct {
	Read  int `json:"read"`
	Write int `json:"write"`
}

// Total returns the tokens that occupy the context window: the prompt
// (fresh plus cache-read) and the generated output.
func (u TokenUsage) Total() int {
	return u.Input + u.Cache.Read + u.Output
}

// MessageError records a failure on a message. Name distinguishes the
// error classes the presentation layer cares about.
type MessageError struct {
	Name string           `json:"name"`
	Data MessageErrorData `json:"data"`
}

// MessageErrorData carries the error details.
type MessageErrorData struct {
	Message    string `json:"message"`
	ProviderID string `json:"providerID,omitempty"`
}

const (
	ErrNameAPI        = "APIError"
	ErrNameAuth       = "ProviderAuthError"
	ErrNameAborted    = "AbortedError"
	ErrNamePermission = "PermissionRejectedError"
	ErrNameOutput     = "OutputLengthError"
	ErrNameMaxSteps   = "MaxStepsError"
)

// NewAPIError wraps a provider failure that exhausted retries.
func NewAPIError(message string) *MessageError {
	return &MessageError{Name: ErrNameAPI, Data: MessageErrorData{Message: message}}
}

// NewAuthError reports invalid or missing provider credentials.
func NewAuthError(providerID, message string) *MessageError {
	return &MessageError{Name: ErrNameAuth, Data: MessageErrorData{Message: message, ProviderID: providerID}}
}

// NewAbortedError marks a message cut short by cancellation.
func NewAbortedError() *MessageError {
	return &MessageError{Name: ErrNameAborted, Data: MessageErrorData{Message: "processing aborted"}}
}

// NewPermissionError marks a turn blocked by a permission rejection.
func NewPermissionError(message string) *MessageError {
	return &MessageError{Name: ErrNamePermission, Data: MessageErrorData{Message: message}}
}
