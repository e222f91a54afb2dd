// Package message implements the conversation log: an ordered
// append/update store of messages and their parts, one log per session.
//
// Message and part ids are monotonic ULIDs, so within a session the
// lexicographic order of ids is creation order. The underlying storage
// scans keys in sorted order, which makes listing naturally causal.
package message

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cadenza-ai/cadenza/internal/event"
	"github.com/cadenza-ai/cadenza/internal/storage"
	"github.com/cadenza-ai/cadenza/pkg/types"
)

// Store reads and writes messages and parts. All mutation is by id; the
// log is never rewritten wholesale, so concurrent readers always observe a
// monotonically growing history.
type Store struct {
	storage *storage.Storage

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewStore creates a Store over the given storage.
func NewStore(st *storage.Storage) *Store {
	return &Store{
		storage: st,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NewID returns a fresh ULID. The entropy source is monotonic within a
// millisecond, so ids assigned later always compare greater.
func (s *Store) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Now(), s.entropy).String()
}

// Create persists a new message, assigning an id and creation time when
// absent, and publishes message.created.
func (s *Store) Create(ctx context.Context, msg *types.Message) error {
	if msg.ID == "" {
		msg.ID = s.NewID()
	}
	if msg.Time.Created == 0 {
		msg.Time.Created = time.Now().UnixMilli()
	}

	if err := s.storage.Put(ctx, []string{"message", msg.SessionID, msg.ID}, msg); err != nil {
		return err
	}

	event.Publish(event.Event{
		Type: event.MessageCreated,
		Data: event.MessageData{Message: msg},
	})
	return nil
}

// Update persists changed message fields and publishes message.updated.
func (s *Store) Update(ctx context.Context, msg *types.Message) error {
	now := time.Now().UnixMilli()
	msg.Time.Updated = &now

	if err := s.storage.Put(ctx, []string{"message", msg.SessionID, msg.ID}, msg); err != nil {
		return err
	}

	event.Publish(event.Event{
		Type: event.MessageUpdated,
		Data: event.MessageData{Message: msg},
	})
	return nil
}

// Get loads one message by id.
func (s *Store) Get(ctx context.Context, sessionID, messageID string) (*types.Message, error) {
	var msg types.Message
	if err := s.storage.Get(ctx, []string{"message", sessionID, messageID}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// List returns the session's messages in causal order, excluding compacted
// ones. This is the view sent to the model.
func (s *Store) List(ctx context.Context, sessionID string) ([]*types.Message, error) {
	return s.list(ctx, sessionID, false)
}

// ListAll returns every message including compacted ones, for audit.
func (s *Store) ListAll(ctx context.Context, sessionID string) ([]*types.Message, error) {
	return s.list(ctx, sessionID, true)
}

func (s *Store) list(ctx context.Context, sessionID string, includeCompacted bool) ([]*types.Message, error) {
	var messages []*types.Message
	err := s.storage.Scan(ctx, []string{"message", sessionID}, func(key string, data json.RawMessage) error {
		var msg types.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		if msg.Compacted && !includeCompacted {
			return nil
		}
		messages = append(messages, &msg)
		return nil
	})
	return messages, err
}

// MarkCompacted flags the given messages as compacted. They disappear from
// List but stay on disk. A summary that ages into a later pass is marked
// like any other message; its content lives on in the newer summary.
func (s *Store) MarkCompacted(ctx context.Context, sessionID string, messageIDs []string) error {
	for _, id := range messageIDs {
		msg, err := s.Get(ctx, sessionID, id)
		if err != nil {
			return err
		}
		if msg.Compacted {
			continue
		}
		msg.Compacted = true
		if err := s.Update(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// SavePart persists a part under its message. Callers publish part.updated
// themselves so streaming deltas can be attached.
func (s *Store) SavePart(ctx context.Context, messageID string, part types.Part) error {
	return s.storage.Put(ctx, []string{"part", messageID, part.PartID()}, part)
}

// Parts returns a message's parts in creation order.
func (s *Store) Parts(ctx context.Context, messageID string) ([]types.Part, error) {
	var parts []types.Part
	err := s.storage.Scan(ctx, []string{"part", messageID}, func(key string, data json.RawMessage) error {
		part, err := types.UnmarshalPart(data)
		if err != nil {
			return err
		}
		parts = append(parts, part)
		return nil
	})
	return parts, err
}
