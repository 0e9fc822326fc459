package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func changed(kind, owner string) DocumentChanged {
	return DocumentChanged{
		Kind:        kind,
		OwnerID:     owner,
		PartitionID: "global",
		Payload:     json.RawMessage(`{}`),
		Source:      "cloud",
		Timestamp:   time.Now(),
	}
}

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(4, nil)
	all := bus.Subscribe(nil)
	themes := bus.Subscribe(ForKind("theme"))
	defer all.Close()
	defer themes.Close()

	bus.Publish(changed("theme", "abc"))
	bus.Publish(changed("custom_names", "abc"))

	require.Len(t, all.C, 2)
	require.Len(t, themes.C, 1)
	got := <-themes.C
	assert.Equal(t, "theme", got.Kind)
	assert.Equal(t, uint64(2), bus.Published())
}

func TestBus_OwnerFilter(t *testing.T) {
	bus := NewBus(4, nil)
	sub := bus.Subscribe(ForOwner("abc"))
	defer sub.Close()

	bus.Publish(changed("theme", "xyz"))
	bus.Publish(changed("theme", "abc"))

	require.Len(t, sub.C, 1)
	assert.Equal(t, "abc", (<-sub.C).OwnerID)
}

func TestBus_FullBufferDrops(t *testing.T) {
	bus := NewBus(1, nil)
	sub := bus.Subscribe(nil)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			bus.Publish(changed("theme", "abc"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	assert.Equal(t, uint64(4), sub.Dropped())
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	bus := NewBus(0, nil)
	sub := bus.Subscribe(nil)
	assert.Equal(t, 1, bus.Subscribers())

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, bus.Subscribers())

	_, ok := <-sub.C
	assert.False(t, ok, "channel closed after Close")

	// publishing after close must not panic
	bus.Publish(changed("theme", "abc"))
}
