package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cadenza-ai/cadenza/internal/event"
	"github.com/cadenza-ai/cadenza/internal/message"
	"github.com/cadenza-ai/cadenza/internal/storage"
	"github.com/cadenza-ai/cadenza/pkg/types"
)

// Service manages session records. The Runner handles execution; the two
// are wired together by the server.
type Service struct {
	storage  *storage.Storage
	messages *message.Store
}

// NewService creates a session service over the given storage.
func NewService(store *storage.Storage, messages *message.Store) *Service {
	return &Service{storage: store, messages: messages}
}

// Create starts a new session rooted at directory.
func (s *Service) Create(ctx context.Context, directory, title string) (*types.Session, error) {
	if title == "" {
		title = "New Session"
	}
	now := time.Now().UnixMilli()

	sess := &types.Session{
		ID:        ulid.Make().String(),
		ProjectID: hashDirectory(directory),
		Directory: directory,
		Title:     title,
		Time:      types.SessionTime{Created: now, Updated: now},
	}

	if err := s.put(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	event.Publish(event.Event{Type: event.SessionCreated, Data: event.SessionData{Session: sess}})
	return sess, nil
}

// Get finds a session by id in any project.
func (s *Service) Get(ctx context.Context, sessionID string) (*types.Session, error) {
	projects, err := s.storage.List(ctx, []string{"session"})
	if err != nil {
		return nil, err
	}

	for _, projectID := range projects {
		var sess types.Session
		if err := s.storage.Get(ctx, []string{"session", projectID, sessionID}, &sess); err == nil {
			return &sess, nil
		}
	}
	return nil, storage.ErrNotFound
}

// Rename updates a session's title.
func (s *Service) Rename(ctx context.Context, sessionID, title string) (*types.Session, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sess.Title = title
	sess.Time.Updated = time.Now().UnixMilli()

	if err := s.put(ctx, sess); err != nil {
		return nil, err
	}
	event.Publish(event.Event{Type: event.SessionUpdated, Data: event.SessionData{Session: sess}})
	return sess, nil
}

// Delete removes a session and its messages.
func (s *Service) Delete(ctx context.Context, sessionID string) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	msgs, err := s.messages.ListAll(ctx, sessionID)
	if err == nil {
		for _, msg := range msgs {
			_ = s.storage.Delete(ctx, []string{"message", sessionID, msg.ID})
		}
	}

	if err := s.storage.Delete(ctx, []string{"session", sess.ProjectID, sess.ID}); err != nil {
		return err
	}
	event.Publish(event.Event{Type: event.SessionDeleted, Data: event.SessionData{Session: sess}})
	return nil
}

// List returns the sessions for a directory's project, newest first.
func (s *Service) List(ctx context.Context, directory string) ([]*types.Session, error) {
	projectID := hashDirectory(directory)

	ids, err := s.storage.List(ctx, []string{"session", projectID})
	if err != nil {
		return nil, err
	}

	sessions := make([]*types.Session, 0, len(ids))
	for _, id := range ids {
		var sess types.Session
		if err := s.storage.Get(ctx, []string{"session", projectID, id}, &sess); err != nil {
			continue
		}
		sessions = append(sessions, &sess)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Time.Updated > sessions[j].Time.Updated
	})
	return sessions, nil
}

// Fork creates a child session containing the history up to and including
// messageID. An empty messageID copies the whole history.
func (s *Service) Fork(ctx context.Context, sessionID, messageID string) (*types.Session, error) {
	parent, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	child, err := s.Create(ctx, parent.Directory, parent.Title+" (fork)")
	if err != nil {
		return nil, err
	}
	child.ParentID = &parent.ID
	if err := s.put(ctx, child); err != nil {
		return nil, err
	}

	msgs, err := s.messages.ListAll(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for _, msg := range msgs {
		copied := *msg
		copied.ID = s.messages.NewID()
		copied.SessionID = child.ID
		if err := s.messages.Create(ctx, &copied); err != nil {
			return nil, err
		}
		parts, err := s.messages.Parts(ctx, msg.ID)
		if err != nil {
			continue
		}
		for _, part := range parts {
			clone := clonePart(part, s.messages.NewID(), child.ID, copied.ID)
			if clone == nil {
				continue
			}
			_ = s.messages.SavePart(ctx, copied.ID, clone)
		}
		if msg.ID == messageID {
			break
		}
	}

	return child, nil
}

// clonePart duplicates a part under new identifiers so forked history
// never aliases the original's storage.
func clonePart(part types.Part, id, sessionID, messageID string) types.Part {
	switch p := part.(type) {
	case *types.TextPart:
		c := *p
		c.ID, c.SessionID, c.MessageID = id, sessionID, messageID
		return &c
	case *types.ReasoningPart:
		c := *p
		c.ID, c.SessionID, c.MessageID = id, sessionID, messageID
		return &c
	case *types.ToolPart:
		c := *p
		c.ID, c.SessionID, c.MessageID = id, sessionID, messageID
		return &c
	}
	return nil
}

// Touch bumps the session's updated timestamp.
func (s *Service) Touch(ctx context.Context, sessionID string) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return
	}
	sess.Time.Updated = time.Now().UnixMilli()
	_ = s.put(ctx, sess)
}

func (s *Service) put(ctx context.Context, sess *types.Session) error {
	return s.storage.Put(ctx, []string{"session", sess.ProjectID, sess.ID}, sess)
}

// hashDirectory derives the project id a directory's sessions group under.
func hashDirectory(directory string) string {
	sum := sha256.Sum256([]byte(directory))
	return hex.EncodeToString(sum[:8])
}
