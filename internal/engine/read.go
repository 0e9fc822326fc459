package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/memorykeep/docsync/pkg/errors"
)

// Read returns the document of (owner, partition), preferring the cloud and
// falling back to the local cache, the pending local write and finally the
// kind default. It always succeeds.
func (e *Engine[T]) Read(ctx context.Context, owner, partition string) Result[T] {
	start := time.Now()
	id := e.identity(owner, partition)

	res := e.read(ctx, id)

	e.recorder.RecordReadSource(e.kind.Name, string(res.Source))
	e.recorder.RecordOperation("read", e.kind.Name, string(res.Source), time.Since(start))
	return res
}

func (e *Engine[T]) read(ctx context.Context, id Identity) Result[T] {
	f, err := e.discover(ctx, id)
	if err == nil && f != nil {
		return Result[T]{
			Success:   true,
			Data:      f.payload,
			Source:    SourceCloud,
			Message:   "loaded from cloud",
			ObjectKey: f.key,
		}
	}

	reason := "no valid document in cloud"
	var code errors.ErrorCode
	if err != nil {
		if code = errors.CodeOf(err); code == "" {
			code = errors.ErrCodeStorageRead
		}
		reason = fmt.Sprintf("cloud unavailable: %v", err)
		e.logger.Warn("discovery failed, falling back", "identity", id.String(), "error", err)
	}

	if entry, payload, ok := e.loadEntry(e.cache, id); ok {
		return Result[T]{
			Success:   true,
			Data:      payload,
			Source:    SourceLocalCache,
			Code:      code,
			Message:   reason + "; loaded from local cache",
			ObjectKey: entry.ObjectKey,
		}
	}

	if _, payload, ok := e.loadEntry(e.fallback, id); ok {
		return Result[T]{
			Success:  true,
			Data:     payload,
			Source:   SourceLocalFallback,
			Fallback: FallbackLocal,
			Code:     code,
			Message:  reason + "; loaded unsynced local copy",
		}
	}

	return Result[T]{
		Success: true,
		Data:    e.kind.Default(),
		Source:  SourceDefault,
		Code:    code,
		Message: reason + "; using default",
	}
}
