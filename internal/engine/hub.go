package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/memorykeep/docsync/internal/events"
	"github.com/memorykeep/docsync/internal/kinds"
	"github.com/memorykeep/docsync/pkg/errors"
	"github.com/memorykeep/docsync/pkg/types"
)

// Syncer is the kind-independent view of an Engine.
type Syncer interface {
	Info() kinds.Info
	ReadJSON(ctx context.Context, owner, partition string) Result[json.RawMessage]
	WriteJSON(ctx context.Context, owner, partition string, payload json.RawMessage) Result[json.RawMessage]
	Clean(ctx context.Context, owner, partition string) (CleanReport, error)
	Wait()
}

// ReadJSON is Read with the payload encoded as JSON.
func (e *Engine[T]) ReadJSON(ctx context.Context, owner, partition string) Result[json.RawMessage] {
	return ToJSON(e.Read(ctx, owner, partition))
}

// WriteJSON decodes payload into the kind's type and writes it.
func (e *Engine[T]) WriteJSON(ctx context.Context, owner, partition string, payload json.RawMessage) Result[json.RawMessage] {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return Result[json.RawMessage]{
			Data:    payload,
			Code:    errors.ErrCodeMalformedDocument,
			Message: fmt.Sprintf("rejected: %v", errors.Wrap(err, errors.ErrCodeMalformedDocument, "decoding payload")),
		}
	}
	return ToJSON(e.Write(ctx, owner, partition, v))
}

// StartupReport is the outcome of a startup sync for one owner.
type StartupReport struct {
	OwnerID string                             `json:"ownerId"`
	Skipped bool                               `json:"skipped"`
	Results map[string]Result[json.RawMessage] `json:"results,omitempty"`
}

// Hub owns one engine per kind and coordinates startup syncs.
type Hub struct {
	Theme     *Engine[kinds.Theme]
	Names     *Engine[kinds.DisplayNames]
	Timeline  *Engine[kinds.Timeline]
	BirthDate *Engine[kinds.BirthDate]

	aggregator *Aggregator
	syncers    map[string]Syncer

	flights singleflight.Group
	mu      sync.Mutex
	synced  map[string]bool
}

// NewHub builds engines for every kind over shared collaborators.
func NewHub(store types.BlobStore, cache, fallback types.Cache, opts Options) *Hub {
	opts = opts.withDefaults()

	h := &Hub{
		Theme:     New(kinds.ThemeKind(), store, cache, fallback, opts),
		Names:     New(kinds.DisplayNamesKind(), store, cache, fallback, opts),
		Timeline:  New(kinds.TimelineKind(), store, cache, fallback, opts),
		BirthDate: New(kinds.BirthDateKind(opts.Clock), store, cache, fallback, opts),
		synced:    make(map[string]bool),
	}
	// DisplayNamesKind is always aggregated
	h.aggregator, _ = NewAggregator(h.Names)

	h.syncers = map[string]Syncer{}
	for _, s := range []Syncer{h.Theme, h.Names, h.Timeline, h.BirthDate} {
		h.syncers[s.Info().Name] = s
	}
	return h
}

// Bus returns the event bus every engine publishes to.
func (h *Hub) Bus() *events.Bus {
	return h.Theme.bus
}

// Kinds returns the names of every kind the hub serves, sorted.
func (h *Hub) Kinds() []string {
	names := make([]string, 0, len(h.syncers))
	for name := range h.syncers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Syncer returns the engine for a kind name.
func (h *Hub) Syncer(kind string) (Syncer, bool) {
	s, ok := h.syncers[kind]
	return s, ok
}

// Read reads a document of any kind as JSON.
func (h *Hub) Read(ctx context.Context, kind, owner, partition string) Result[json.RawMessage] {
	s, ok := h.syncers[kind]
	if !ok {
		return unknownKind(kind)
	}
	return s.ReadJSON(ctx, owner, partition)
}

// Write writes a JSON document of any kind.
func (h *Hub) Write(ctx context.Context, kind, owner, partition string, payload json.RawMessage) Result[json.RawMessage] {
	s, ok := h.syncers[kind]
	if !ok {
		return unknownKind(kind)
	}
	return s.WriteJSON(ctx, owner, partition, payload)
}

// Clean runs the cleaner for one identity of any kind.
func (h *Hub) Clean(ctx context.Context, kind, owner, partition string) (CleanReport, error) {
	s, ok := h.syncers[kind]
	if !ok {
		return CleanReport{}, errors.NewError(errors.ErrCodeUnsupported, "unknown kind").WithContext("kind", kind)
	}
	return s.Clean(ctx, owner, partition)
}

// Aggregate returns owner's merged display-name map.
func (h *Hub) Aggregate(ctx context.Context, owner string) Result[kinds.DisplayNames] {
	return h.aggregator.Aggregate(ctx, owner)
}

// StartupSync reads every kind for owner's default partition and the display
// name aggregate, concurrently and without writing. An owner is synced once
// per hub unless force is set, and only a run that reached the blob store
// counts; concurrent calls for one owner share a run.
func (h *Hub) StartupSync(ctx context.Context, owner string, force bool) StartupReport {
	if !force && h.isSynced(owner) {
		return StartupReport{OwnerID: owner, Skipped: true}
	}

	v, _, _ := h.flights.Do(owner, func() (any, error) {
		return h.startupSync(ctx, owner), nil
	})
	return v.(StartupReport)
}

func (h *Hub) startupSync(ctx context.Context, owner string) StartupReport {
	var (
		mu      sync.Mutex
		results = make(map[string]Result[json.RawMessage], len(h.syncers))
	)
	set := func(kind string, r Result[json.RawMessage]) {
		mu.Lock()
		results[kind] = r
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	for name, s := range h.syncers {
		if s.Info().Aggregated {
			g.Go(func() error {
				set(name, ToJSON(h.aggregator.Aggregate(gctx, owner)))
				return nil
			})
			continue
		}
		g.Go(func() error {
			set(name, s.ReadJSON(gctx, owner, DefaultPartition))
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() == nil && reachedStore(results) {
		h.mu.Lock()
		h.synced[owner] = true
		h.mu.Unlock()
	}

	return StartupReport{OwnerID: owner, Results: results}
}

// reachedStore reports whether every read got an answer from the blob store,
// even an empty one. Results served from a local tier after a store failure
// carry the failure's code.
func reachedStore(results map[string]Result[json.RawMessage]) bool {
	for _, r := range results {
		if r.Code != "" {
			return false
		}
	}
	return true
}

func (h *Hub) isSynced(owner string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.synced[owner]
}

// Wait blocks until every engine's background cleanups have finished.
func (h *Hub) Wait() {
	for _, s := range h.syncers {
		s.Wait()
	}
}

func unknownKind(kind string) Result[json.RawMessage] {
	return Result[json.RawMessage]{
		Data:    json.RawMessage("null"),
		Code:    errors.ErrCodeUnsupported,
		Message: fmt.Sprintf("unknown kind %q", kind),
	}
}
