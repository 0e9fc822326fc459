// Package events carries "document changed" notifications from the sync
// engine to in-process observers.
package events

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBufferSize is the per-subscriber channel capacity.
const DefaultBufferSize = 32

// DocumentChanged is published after a successful cloud write and after every
// aggregation pass.
type DocumentChanged struct {
	Kind        string          `json:"kind"`
	OwnerID     string          `json:"ownerId"`
	PartitionID string          `json:"partitionId"`
	ObjectKey   string          `json:"objectKey,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	Source      string          `json:"source"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Filter selects events for a subscription. A nil filter accepts everything.
type Filter func(DocumentChanged) bool

// ForKind accepts events of a single kind.
func ForKind(kind string) Filter {
	return func(e DocumentChanged) bool { return e.Kind == kind }
}

// ForOwner accepts events for a single owner.
func ForOwner(owner string) Filter {
	return func(e DocumentChanged) bool { return e.OwnerID == owner }
}

// Subscription receives events on C until Close is called.
type Subscription struct {
	C <-chan DocumentChanged

	ch      chan DocumentChanged
	filter  Filter
	bus     *Bus
	once    sync.Once
	dropped atomic.Uint64
}

// Dropped returns how many events were discarded because C was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unsubscribes and closes C.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.remove(s)
	})
}

// Bus is a typed publish/subscribe hub. Publish never blocks.
type Bus struct {
	mu         sync.RWMutex
	subs       map[*Subscription]struct{}
	bufferSize int
	published  atomic.Uint64
	logger     *slog.Logger
}

// NewBus creates a bus whose subscriptions buffer bufferSize events.
func NewBus(bufferSize int, logger *slog.Logger) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = slog.Default().With("component", "events")
	}
	return &Bus{
		subs:       make(map[*Subscription]struct{}),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Subscribe registers a new subscription.
func (b *Bus) Subscribe(filter Filter) *Subscription {
	ch := make(chan DocumentChanged, b.bufferSize)
	sub := &Subscription{C: ch, ch: ch, filter: filter, bus: b}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Publish delivers e to every matching subscriber without blocking.
func (b *Bus) Publish(e DocumentChanged) {
	b.published.Add(1)

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		if sub.filter != nil && !sub.filter(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			sub.dropped.Add(1)
			b.logger.Warn("subscriber buffer full, dropping event",
				"kind", e.Kind, "owner", e.OwnerID, "partition", e.PartitionID)
		}
	}
}

// Published returns the number of Publish calls.
func (b *Bus) Published() uint64 {
	return b.published.Load()
}

// Subscribers returns the current subscriber count.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
}
