package engine

import (
	"context"
	"time"

	"github.com/memorykeep/docsync/pkg/types"
)

// CleanReport summarizes one cleanup pass.
type CleanReport struct {
	Listed      int      `json:"listed"`
	Kept        int      `json:"kept"`
	Deleted     int      `json:"deleted"`
	Failed      int      `json:"failed"`
	Foreign     int      `json:"foreign"`
	DeletedKeys []string `json:"deletedKeys,omitempty"`
}

// Clean deletes every candidate of (owner, partition) ranked below the
// retention threshold. Content is not probed, so only blobs named with the
// kind's own prefix are considered; other matches are counted as Foreign. Delete failures are logged and
// counted; only a listing failure is returned.
func (e *Engine[T]) Clean(ctx context.Context, owner, partition string) (CleanReport, error) {
	start := time.Now()
	report, err := e.clean(ctx, e.identity(owner, partition))

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	e.recorder.RecordOperation("clean", e.kind.Name, outcome, time.Since(start))
	return report, err
}

func (e *Engine[T]) clean(ctx context.Context, id Identity) (CleanReport, error) {
	ranked, err := e.candidates(ctx, id)
	if err != nil {
		return CleanReport{}, err
	}

	m := NewMatcher(e.kind.Info, id)
	owned := make([]types.ObjectInfo, 0, len(ranked))
	for _, c := range ranked {
		if m.Owns(c.Key) {
			owned = append(owned, c)
		}
	}

	report := CleanReport{Listed: len(ranked), Kept: len(owned), Foreign: len(ranked) - len(owned)}
	if len(owned) <= e.opts.RetentionThreshold {
		return report, nil
	}

	report.Kept = e.opts.RetentionThreshold
	for _, c := range owned[e.opts.RetentionThreshold:] {
		if err := e.store.Delete(ctx, c.Key); err != nil {
			report.Failed++
			e.recorder.RecordDelete(e.kind.Name, false)
			e.logger.Warn("failed to delete stale version", "key", c.Key, "error", err)
			continue
		}
		report.Deleted++
		report.DeletedKeys = append(report.DeletedKeys, c.Key)
		e.recorder.RecordDelete(e.kind.Name, true)
	}

	e.logger.Debug("cleanup finished", "identity", id.String(),
		"listed", report.Listed, "deleted", report.Deleted, "failed", report.Failed)
	return report, nil
}
