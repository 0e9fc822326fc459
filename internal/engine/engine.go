// Package engine synchronizes small JSON documents through a blob store that
// offers no transactions and no compare-and-swap.
//
// One Engine serves one document kind. Reads discover the newest valid blob
// of an identity and fall back to the local cache, the local fallback store
// and finally the kind default. Writes are deduplicated against the cache and
// land on the pinned name; when the store is unreachable they are kept in the
// fallback store instead. Hub ties the four kinds together.
package engine

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/memorykeep/docsync/internal/events"
	"github.com/memorykeep/docsync/internal/kinds"
	"github.com/memorykeep/docsync/pkg/types"
)

// Engine synchronizes documents of one kind.
type Engine[T any] struct {
	kind     kinds.Kind[T]
	store    types.BlobStore
	cache    types.Cache
	fallback types.Cache
	opts     Options
	logger   *slog.Logger
	recorder types.MetricsRecorder
	bus      *events.Bus

	cleanups sync.WaitGroup
}

// New creates an engine for kind. cache holds last-known-good snapshots and
// fallback holds writes that could not reach the store; they must be separate
// namespaces.
func New[T any](kind kinds.Kind[T], store types.BlobStore, cache, fallback types.Cache, opts Options) *Engine[T] {
	opts = opts.withDefaults()
	return &Engine[T]{
		kind:     kind,
		store:    store,
		cache:    cache,
		fallback: fallback,
		opts:     opts,
		logger:   opts.Logger.With("component", "engine", "kind", kind.Name),
		recorder: opts.Recorder,
		bus:      opts.Bus,
	}
}

// Info returns the kind metadata.
func (e *Engine[T]) Info() kinds.Info {
	return e.kind.Info
}

// Wait blocks until background cleanups started by writes have finished.
func (e *Engine[T]) Wait() {
	e.cleanups.Wait()
}

func (e *Engine[T]) identity(owner, partition string) Identity {
	if partition == "" {
		partition = DefaultPartition
	}
	return Identity{OwnerID: owner, PartitionID: partition}
}

func (e *Engine[T]) loadEntry(store types.Cache, id Identity) (CacheEntry, T, bool) {
	var zero T
	if store == nil {
		return CacheEntry{}, zero, false
	}
	data, ok := store.Get(CacheKey(e.kind.Name, id))
	if !ok {
		return CacheEntry{}, zero, false
	}
	entry, payload, err := decodeEntry[T](data)
	if err != nil {
		e.logger.Warn("discarding unreadable cache entry", "identity", id.String(), "error", err)
		return CacheEntry{}, zero, false
	}
	if err := e.kind.Validate(payload); err != nil {
		e.logger.Warn("discarding invalid cache entry", "identity", id.String(), "error", err)
		return CacheEntry{}, zero, false
	}
	return entry, payload, true
}

func (e *Engine[T]) storeEntry(store types.Cache, id Identity, payload T, objectKey string) error {
	if store == nil {
		return nil
	}
	data, err := encodeEntry(e.kind.Name, id, payload, objectKey, e.opts.Clock())
	if err != nil {
		return err
	}
	return store.Set(CacheKey(e.kind.Name, id), data)
}

func (e *Engine[T]) publish(id Identity, payload T, objectKey string, source Source) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	e.bus.Publish(events.DocumentChanged{
		Kind:        e.kind.Name,
		OwnerID:     id.OwnerID,
		PartitionID: id.PartitionID,
		ObjectKey:   objectKey,
		Payload:     raw,
		Source:      string(source),
		Timestamp:   e.opts.Clock(),
	})
}
