package message

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadenza-ai/cadenza/internal/storage"
	"github.com/cadenza-ai/cadenza/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(storage.New(t.TempDir()))
}

func TestNewIDMonotonic(t *testing.T) {
	s := newTestStore(t)

	ids := make([]string, 1000)
	for i := range ids {
		ids[i] = s.NewID()
	}

	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	assert.Equal(t, sorted, ids, "ids must be strictly increasing in creation order")

	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestCreateAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		role := types.RoleUser
		if i%2 == 1 {
			role = types.RoleAssistant
		}
		require.NoError(t, s.Create(ctx, &types.Message{SessionID: "s1", Role: role}))
	}

	msgs, err := s.List(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	for i := 1; i < len(msgs); i++ {
		assert.Less(t, msgs[i-1].ID, msgs[i].ID, "list must be in causal order")
	}
}

func TestListExcludesCompacted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		msg := &types.Message{SessionID: "s1", Role: types.RoleUser}
		require.NoError(t, s.Create(ctx, msg))
		ids = append(ids, msg.ID)
	}

	require.NoError(t, s.MarkCompacted(ctx, "s1", ids[:2]))

	visible, err := s.List(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, visible, 2)
	for _, m := range visible {
		assert.False(t, m.Compacted)
	}

	all, err := s.ListAll(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, all, 4, "compacted messages are retained for audit")
}

func TestMarkCompactedIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg := &types.Message{SessionID: "s1", Role: types.RoleUser}
	require.NoError(t, s.Create(ctx, msg))

	require.NoError(t, s.MarkCompacted(ctx, "s1", []string{msg.ID}))
	require.NoError(t, s.MarkCompacted(ctx, "s1", []string{msg.ID}))

	got, err := s.Get(ctx, "s1", msg.ID)
	require.NoError(t, err)
	assert.True(t, got.Compacted)
}

func TestPartsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg := &types.Message{SessionID: "s1", Role: types.RoleAssistant}
	require.NoError(t, s.Create(ctx, msg))

	text := &types.TextPart{ID: s.NewID(), MessageID: msg.ID, Type: "text", Text: "hello"}
	tool := &types.ToolPart{
		ID: s.NewID(), MessageID: msg.ID, Type: "tool",
		CallID: "call_1", Tool: "ls",
		State: types.ToolState{Status: types.ToolPending},
	}
	require.NoError(t, s.SavePart(ctx, msg.ID, text))
	require.NoError(t, s.SavePart(ctx, msg.ID, tool))

	parts, err := s.Parts(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].PartType())
	assert.Equal(t, "tool", parts[1].PartType())
}

func TestUpdatePartByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg := &types.Message{SessionID: "s1", Role: types.RoleAssistant}
	require.NoError(t, s.Create(ctx, msg))

	part := &types.TextPart{ID: s.NewID(), MessageID: msg.ID, Type: "text", Text: "par"}
	require.NoError(t, s.SavePart(ctx, msg.ID, part))

	part.Text = "partial text grown"
	require.NoError(t, s.SavePart(ctx, msg.ID, part))

	parts, err := s.Parts(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, "partial text grown", parts[0].(*types.TextPart).Text)
}
