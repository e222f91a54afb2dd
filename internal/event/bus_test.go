package event

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadenza-ai/cadenza/pkg/types"
)

func TestSubscribePublishSync(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var got []Event
	bus.Subscribe(MessageCreated, func(e Event) {
		got = append(got, e)
	})

	bus.PublishSync(Event{Type: MessageCreated, Data: "a"})
	bus.PublishSync(Event{Type: MessageUpdated, Data: "ignored"})

	require.Len(t, got, 1)
	assert.Equal(t, MessageCreated, got[0].Type)
	assert.Equal(t, "a", got[0].Data)
}

func TestPublishAsync(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var wg sync.WaitGroup
	wg.Add(2)

	var mu sync.Mutex
	count := 0
	for i := 0; i < 2; i++ {
		bus.Subscribe(PartUpdated, func(e Event) {
			mu.Lock()
			count++
			mu.Unlock()
			wg.Done()
		})
	}

	bus.Publish(Event{Type: PartUpdated})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async delivery timed out")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, count)
}

func TestPublishPreservesOrder(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	const n = 20
	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	bus.Subscribe(PartUpdated, func(e Event) {
		data := e.Data.(PartData)
		mu.Lock()
		got = append(got, data.Delta)
		if len(got) == n {
			close(done)
		}
		mu.Unlock()
	})

	want := make([]string, n)
	for i := 0; i < n; i++ {
		want[i] = fmt.Sprintf("delta-%02d", i)
		bus.Publish(Event{Type: PartUpdated, Data: PartData{
			SessionID: "s1",
			MessageID: "m1",
			Delta:     want[i],
		}})
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("delivery timed out")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, got)
}

func TestPublishCarriesTypedData(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	got := make(chan Event, 1)
	bus.Subscribe(PartUpdated, func(e Event) { got <- e })

	part := &types.TextPart{ID: "p1", SessionID: "s1", MessageID: "m1", Type: "text", Text: "hello"}
	bus.Publish(Event{Type: PartUpdated, Data: PartData{
		SessionID: "s1",
		MessageID: "m1",
		Part:      part,
		Delta:     "hello",
	}})

	select {
	case e := <-got:
		data, ok := e.Data.(PartData)
		require.True(t, ok, "async delivery must keep the payload typed")
		assert.Equal(t, "s1", data.SessionID)
		text, ok := data.Part.(*types.TextPart)
		require.True(t, ok)
		assert.Equal(t, "hello", text.Text)
	case <-time.After(time.Second):
		t.Fatal("delivery timed out")
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var mu sync.Mutex
	var seen []Type
	bus.SubscribeAll(func(e Event) {
		mu.Lock()
		seen = append(seen, e.Type)
		mu.Unlock()
	})

	bus.PublishSync(Event{Type: SessionCreated})
	bus.PublishSync(Event{Type: PermissionAsked})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Type{SessionCreated, PermissionAsked}, seen)
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	calls := 0
	unsub := bus.Subscribe(MessageUpdated, func(e Event) { calls++ })

	bus.PublishSync(Event{Type: MessageUpdated})
	unsub()
	bus.PublishSync(Event{Type: MessageUpdated})

	assert.Equal(t, 1, calls)
}

func TestClosedBusDropsEvents(t *testing.T) {
	bus := NewBus()

	calls := 0
	bus.Subscribe(MessageUpdated, func(e Event) { calls++ })

	require.NoError(t, bus.Close())
	bus.PublishSync(Event{Type: MessageUpdated})

	assert.Zero(t, calls)

	// Subscribing after close is a no-op.
	unsub := bus.Subscribe(MessageUpdated, func(e Event) {})
	unsub()
}
