package event

import "encoding/json"

// envelope is the wire form an event takes on the gochannel.
type envelope struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data"`
}

// decodeEvent restores a typed event from its gochannel payload.
func decodeEvent(payload []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Event{}, err
	}
	data, err := decodeData(env.Type, env.Data)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: env.Type, Data: data}, nil
}

// decodeData maps an event type back to its payload struct so subscribers
// can keep type-switching on Data. Types without a registered struct
// decode generically.
func decodeData(t Type, raw json.RawMessage) (any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	switch t {
	case SessionCreated, SessionUpdated, SessionDeleted:
		var d SessionData
		return d, json.Unmarshal(raw, &d)
	case SessionCompacted:
		var d SessionCompactedData
		return d, json.Unmarshal(raw, &d)
	case SessionError:
		var d SessionErrorData
		return d, json.Unmarshal(raw, &d)
	case SessionIdle:
		var d SessionIdleData
		return d, json.Unmarshal(raw, &d)
	case MessageCreated, MessageUpdated:
		var d MessageData
		return d, json.Unmarshal(raw, &d)
	case PartUpdated:
		var d PartData
		return d, json.Unmarshal(raw, &d)
	case PermissionAsked:
		var d PermissionAskedData
		return d, json.Unmarshal(raw, &d)
	case PermissionResolved:
		var d PermissionResolvedData
		return d, json.Unmarshal(raw, &d)
	default:
		var d any
		return d, json.Unmarshal(raw, &d)
	}
}
