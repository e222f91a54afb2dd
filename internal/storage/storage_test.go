package storage

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestPutGet(t *testing.T) {
	st := New(t.TempDir())
	ctx := context.Background()

	in := record{Name: "alpha", Count: 3}
	require.NoError(t, st.Put(ctx, []string{"ns", "a"}, in))

	var out record
	require.NoError(t, st.Get(ctx, []string{"ns", "a"}, &out))
	assert.Equal(t, in, out)
}

func TestGetMissing(t *testing.T) {
	st := New(t.TempDir())

	var out record
	err := st.Get(context.Background(), []string{"nope"}, &out)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	st := New(t.TempDir())
	ctx := context.Background()

	require.NoError(t, st.Put(ctx, []string{"x"}, record{Name: "gone"}))
	require.NoError(t, st.Delete(ctx, []string{"x"}))
	assert.False(t, st.Exists(ctx, []string{"x"}))

	// Deleting twice is fine.
	require.NoError(t, st.Delete(ctx, []string{"x"}))
}

func TestListSorted(t *testing.T) {
	st := New(t.TempDir())
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, st.Put(ctx, []string{"items", id}, record{Name: id}))
	}

	names, err := st.List(ctx, []string{"items"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, names)

	empty, err := st.List(ctx, []string{"void"})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestScanOrder(t *testing.T) {
	st := New(t.TempDir())
	ctx := context.Background()

	for _, id := range []string{"03", "01", "02"} {
		require.NoError(t, st.Put(ctx, []string{"seq", id}, record{Name: id}))
	}

	var keys []string
	err := st.Scan(ctx, []string{"seq"}, func(key string, data json.RawMessage) error {
		var r record
		require.NoError(t, json.Unmarshal(data, &r))
		assert.Equal(t, key, r.Name)
		keys = append(keys, key)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"01", "02", "03"}, keys)
}

func TestConcurrentPut(t *testing.T) {
	st := New(t.TempDir())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = st.Put(ctx, []string{"hot"}, record{Count: n})
		}(i)
	}
	wg.Wait()

	// The file must hold one intact document, whichever writer won.
	var out record
	require.NoError(t, st.Get(ctx, []string{"hot"}, &out))
	assert.GreaterOrEqual(t, out.Count, 0)
	assert.Less(t, out.Count, 20)
}
