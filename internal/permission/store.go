package permission

import (
	"context"
	"errors"
	"sync"

	"github.com/cadenza-ai/cadenza/internal/storage"
)

// ApprovalStore holds rules created by "always allow" answers. It is
// consulted before the configured ruleset and persists across loop runs;
// with a backing storage it also persists across processes.
type ApprovalStore struct {
	mu        sync.RWMutex
	rules     Ruleset
	storage   *storage.Storage
	namespace string
}

// NewApprovalStore creates an in-memory approval store.
func NewApprovalStore() *ApprovalStore {
	return &ApprovalStore{}
}

// OpenApprovalStore loads remembered approvals for a namespace (typically
// a project id) from storage.
func OpenApprovalStore(ctx context.Context, st *storage.Storage, namespace string) (*ApprovalStore, error) {
	s := &ApprovalStore{storage: st, namespace: namespace}

	var rules Ruleset
	err := st.Get(ctx, []string{"permission", namespace}, &rules)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	s.rules = rules
	return s, nil
}

// Evaluate checks remembered approvals. The second return is false when no
// remembered rule applies.
func (s *ApprovalStore) Evaluate(permission, value string) (Action, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.rules {
		if r.Matches(permission, value) {
			return r.Action, true
		}
	}
	return ActionAsk, false
}

// Approve remembers an allow rule. The rule is prepended so the newest,
// most specific approval wins, and the store is persisted when backed.
func (s *ApprovalStore) Approve(ctx context.Context, permission, pattern string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rules = append(Ruleset{{Permission: permission, Pattern: pattern, Action: ActionAllow}}, s.rules...)
	return s.persist(ctx)
}

// Rules returns a copy of the remembered rules.
func (s *ApprovalStore) Rules() Ruleset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(Ruleset(nil), s.rules...)
}

// Clear forgets all approvals.
func (s *ApprovalStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rules = nil
	return s.persist(ctx)
}

func (s *ApprovalStore) persist(ctx context.Context) error {
	if s.storage == nil {
		return nil
	}
	return s.storage.Put(ctx, []string{"permission", s.namespace}, s.rules)
}
