package event

import (
	"encoding/json"

	"github.com/cadenza-ai/cadenza/pkg/types"
)

// Type identifies an event on the bus.
type Type string

const (
	SessionCreated     Type = "session.created"
	SessionUpdated     Type = "session.updated"
	SessionDeleted     Type = "session.deleted"
	SessionCompacted   Type = "session.compacted"
	SessionError       Type = "session.error"
	SessionIdle        Type = "session.idle"
	MessageCreated     Type = "message.created"
	MessageUpdated     Type = "message.updated"
	PartUpdated        Type = "part.updated"
	PermissionAsked    Type = "permission.asked"
	PermissionResolved Type = "permission.resolved"
	ConfigUpdated      Type = "config.updated"
)

// Event is one notification on the bus.
type Event struct {
	Type Type `json:"type"`
	Data any  `json:"data"`
}

// SessionData accompanies session lifecycle events.
type SessionData struct {
	Session *types.Session `json:"session"`
}

// SessionCompactedData reports a finished compaction pass.
type SessionCompactedData struct {
	SessionID string `json:"sessionID"`
	SummaryID string `json:"summaryID,omitempty"`
	Compacted int    `json:"compacted"`
}

// SessionErrorData reports a loop-terminating failure.
type SessionErrorData struct {
	SessionID string              `json:"sessionID"`
	Error     *types.MessageError `json:"error,omitempty"`
}

// SessionIdleData signals that a session's loop run finished.
type SessionIdleData struct {
	SessionID string `json:"sessionID"`
}

// MessageData accompanies message.created and message.updated.
type MessageData struct {
	Message *types.Message `json:"message"`
}

// PartData accompanies part.updated. Delta carries the appended text when
// the update is an incremental streaming append.
type PartData struct {
	SessionID string     `json:"sessionID"`
	MessageID string     `json:"messageID"`
	Part      types.Part `json:"part"`
	Delta     string     `json:"delta,omitempty"`
}

// UnmarshalJSON restores the Part interface from its tagged wire form.
func (d *PartData) UnmarshalJSON(b []byte) error {
	var aux struct {
		SessionID string          `json:"sessionID"`
		MessageID string          `json:"messageID"`
		Part      json.RawMessage `json:"part"`
		Delta     string          `json:"delta"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	d.SessionID = aux.SessionID
	d.MessageID = aux.MessageID
	d.Delta = aux.Delta
	d.Part = nil
	if len(aux.Part) > 0 && string(aux.Part) != "null" {
		part, err := types.UnmarshalPart(aux.Part)
		if err != nil {
			return err
		}
		d.Part = part
	}
	return nil
}

// PermissionAskedData is published when a tool call needs user consent.
type PermissionAskedData struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"sessionID"`
	Permission string         `json:"permission"`
	Patterns   []string       `json:"patterns,omitempty"`
	Title      string         `json:"title"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// PermissionResolvedData is published once an ask has been answered.
type PermissionResolvedData struct {
	ID      string `json:"id"`
	Reply   string `json:"reply"`
	Granted bool   `json:"granted"`
}
