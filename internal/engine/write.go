package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/memorykeep/docsync/pkg/errors"
)

// Write persists payload for (owner, partition). An unchanged payload is not
// uploaded. When the upload fails the payload is kept in the fallback store
// and the result carries Fallback "local".
func (e *Engine[T]) Write(ctx context.Context, owner, partition string, payload T) Result[T] {
	start := time.Now()
	id := e.identity(owner, partition)

	res := e.write(ctx, id, payload)

	outcome := string(res.Source)
	switch {
	case !res.Success:
		outcome = "error"
	case !res.Changed:
		outcome = "noop"
	}
	e.recorder.RecordOperation("write", e.kind.Name, outcome, time.Since(start))
	return res
}

func (e *Engine[T]) write(ctx context.Context, id Identity, payload T) Result[T] {
	if err := e.kind.Validate(payload); err != nil {
		return rejected(payload, err)
	}

	if entry, cached, ok := e.loadEntry(e.cache, id); ok && cmp.Equal(payload, cached, cmpopts.EquateEmpty()) {
		e.logger.Debug("payload unchanged, skipping upload", "identity", id.String())
		e.clearPending(id)
		return Result[T]{
			Success:   true,
			Data:      payload,
			Source:    SourceLocalCache,
			Message:   "already current",
			ObjectKey: entry.ObjectKey,
		}
	}

	now := e.opts.Clock()
	content, err := EncodeEnvelope(payload, id, now)
	if err != nil {
		return rejected(payload, err)
	}

	fileName := PinnedName(e.kind.Info, id)
	if e.opts.WriteTimestamped {
		fileName = TimestampedName(e.kind.Info, id, now)
	}

	uploaded, err := e.store.Upload(ctx, content, fileName, FolderPath(e.opts.Root, id))
	if err == nil && (uploaded == nil || !uploaded.Success) {
		err = errors.NewError(errors.ErrCodeStorageWrite, "store reported an unsuccessful upload")
	}
	if err != nil {
		return e.writeFallback(id, payload, err)
	}

	if e.opts.WriteTimestamped {
		e.retirePinned(ctx, id, content)
	}

	if err := e.storeEntry(e.cache, id, payload, uploaded.Key); err != nil {
		e.logger.Warn("saved to cloud but cache update failed", "identity", id.String(), "error", err)
	}
	e.clearPending(id)

	e.publish(id, payload, uploaded.Key, SourceCloud)

	if e.opts.CleanupOnWrite {
		e.scheduleCleanup(id)
	}

	return Result[T]{
		Success:   true,
		Data:      payload,
		Source:    SourceCloud,
		Message:   "saved to cloud",
		ObjectKey: uploaded.Key,
		Changed:   true,
	}
}

func (e *Engine[T]) writeFallback(id Identity, payload T, cause error) Result[T] {
	e.logger.Warn("upload failed, keeping document locally", "identity", id.String(), "error", cause)

	code := errors.CodeOf(cause)
	if code == "" {
		code = errors.ErrCodeStorageWrite
	}
	if e.fallback == nil {
		return Result[T]{Data: payload, Code: code, Message: fmt.Sprintf("cloud save failed: %v", cause)}
	}
	if err := e.storeEntry(e.fallback, id, payload, ""); err != nil {
		e.logger.Error("local fallback write failed", "identity", id.String(), "error", err)
		return Result[T]{
			Data:    payload,
			Code:    errors.ErrCodeCacheWrite,
			Message: fmt.Sprintf("cloud save failed: %v; local save failed: %v", cause, err),
		}
	}

	return Result[T]{
		Success:  true,
		Data:     payload,
		Source:   SourceLocalFallback,
		Fallback: FallbackLocal,
		Code:     code,
		Message:  fmt.Sprintf("saved on this device only, cloud save failed: %v", cause),
		Changed:  true,
	}
}

func rejected[T any](payload T, err error) Result[T] {
	return Result[T]{
		Data:    payload,
		Code:    errors.ErrCodeValidationFailed,
		Message: fmt.Sprintf("rejected: %v", err),
	}
}

// clearPending drops the fallback entry of id once the cloud holds the
// current payload.
func (e *Engine[T]) clearPending(id Identity) {
	if e.fallback == nil {
		return
	}
	if err := e.fallback.Delete(CacheKey(e.kind.Name, id)); err != nil {
		e.logger.Warn("failed to clear pending local write", "identity", id.String(), "error", err)
	}
}

// retirePinned keeps a pinned blob from shadowing a timestamped write. Rank
// always prefers the pinned name, so it is deleted, or overwritten with the
// new content when the delete fails.
func (e *Engine[T]) retirePinned(ctx context.Context, id Identity, content []byte) {
	folder := FolderPath(e.opts.Root, id)
	pinned := PinnedName(e.kind.Info, id)

	err := e.store.Delete(ctx, folder+pinned)
	if err == nil {
		return
	}
	e.logger.Warn("failed to delete pinned version, overwriting it", "key", folder+pinned, "error", err)
	if _, err := e.store.Upload(ctx, content, pinned, folder); err != nil {
		e.logger.Error("pinned version still shadows the timestamped write",
			"key", folder+pinned, "error", err)
	}
}

func (e *Engine[T]) scheduleCleanup(id Identity) {
	e.cleanups.Add(1)
	go func() {
		defer e.cleanups.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.opts.CleanupTimeout)
		defer cancel()
		if _, err := e.clean(ctx, id); err != nil {
			e.logger.Warn("background cleanup failed", "identity", id.String(), "error", err)
		}
	}()
}
