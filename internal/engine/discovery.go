package engine

import (
	"context"

	"github.com/memorykeep/docsync/pkg/errors"
	"github.com/memorykeep/docsync/pkg/types"
)

// Probe skip reasons, reported to the metrics recorder.
const (
	skipFetch   = "fetch"
	skipDecode  = "decode"
	skipForeign = "foreign"
	skipInvalid = "invalid"
)

type found[T any] struct {
	payload T
	meta    Metadata
	key     string
}

// listCandidates lists prefix, retrying exactly once with the reduced page
// size when the store reports the request as too large.
func listCandidates(ctx context.Context, store types.BlobStore, prefix string, opts Options) ([]types.ObjectInfo, error) {
	listed, err := store.List(ctx, prefix, opts.ListPageSize)
	if errors.IsCode(err, errors.ErrCodeRequestTooLarge) {
		opts.Logger.Debug("listing too large, retrying with reduced page",
			"prefix", prefix, "page_size", opts.ReducedPageSize)
		listed, err = store.List(ctx, prefix, opts.ReducedPageSize)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageRead, "listing candidates").
			WithComponent("discovery").
			WithOperation("list").
			WithContext("prefix", prefix)
	}
	return listed, nil
}

// candidates lists, filters and ranks the blobs of id.
func (e *Engine[T]) candidates(ctx context.Context, id Identity) ([]types.ObjectInfo, error) {
	listed, err := listCandidates(ctx, e.store, FolderPath(e.opts.Root, id), e.opts)
	if err != nil {
		return nil, err
	}
	m := NewMatcher(e.kind.Info, id)
	return Rank(Filter(m, listed), m.Pinned()), nil
}

// discover returns the first valid document of id, or nil when no candidate
// validates. It refreshes the cache entry on success.
func (e *Engine[T]) discover(ctx context.Context, id Identity) (*found[T], error) {
	ranked, err := e.candidates(ctx, id)
	if err != nil {
		return nil, err
	}

	f := e.probe(ctx, id, ranked)
	if f == nil {
		return nil, nil
	}

	if err := e.storeEntry(e.cache, id, f.payload, f.key); err != nil {
		e.logger.Warn("failed to refresh cache entry", "identity", id.String(), "error", err)
	}
	return f, nil
}

// probe fetches ranked candidates in order and stops at the first one that
// decodes, belongs to id and passes kind validation.
func (e *Engine[T]) probe(ctx context.Context, id Identity, ranked []types.ObjectInfo) *found[T] {
	for _, c := range ranked {
		if ctx.Err() != nil {
			return nil
		}

		data, err := e.store.Fetch(ctx, e.store.PublicURL(c.Key))
		if err != nil {
			e.skip(c.Key, skipFetch, err)
			continue
		}

		meta, payload, err := DecodeEnvelope[T](data)
		if err != nil {
			e.skip(c.Key, skipDecode, err)
			continue
		}
		if !meta.belongsTo(id) {
			e.skip(c.Key, skipForeign, errors.NewError(errors.ErrCodeForeignDocument, "envelope identity mismatch").
				WithContext("owner", meta.OwnerID).
				WithContext("partition", meta.PartitionID))
			continue
		}
		if err := e.kind.Validate(payload); err != nil {
			e.skip(c.Key, skipInvalid, err)
			continue
		}

		return &found[T]{payload: payload, meta: meta, key: c.Key}
	}
	return nil
}

func (e *Engine[T]) skip(key, reason string, err error) {
	e.recorder.RecordProbeSkip(e.kind.Name, reason)
	e.logger.Debug("skipping candidate", "key", key, "reason", reason, "error", err)
}
