package engine

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/memorykeep/docsync/internal/kinds"
	"github.com/memorykeep/docsync/pkg/errors"
	"github.com/memorykeep/docsync/pkg/types"
)

// Aggregator unions the display-name maps of every partition an owner has.
type Aggregator struct {
	engine *Engine[kinds.DisplayNames]
}

// NewAggregator wraps an engine whose kind is marked Aggregated.
func NewAggregator(e *Engine[kinds.DisplayNames]) (*Aggregator, error) {
	if !e.kind.Aggregated {
		return nil, errors.NewError(errors.ErrCodeUnsupported, "kind is not aggregated").
			WithComponent("aggregator").
			WithContext("kind", e.kind.Name)
	}
	return &Aggregator{engine: e}, nil
}

type partitionGroup struct {
	partition string
	listed    []types.ObjectInfo
}

// Aggregate returns the union of owner's per-partition maps merged with the
// cached aggregate. Partitions are processed in the order they first appear
// in the listing and a later partition overwrites an earlier one on key
// collision, so the winner of a collision follows the store's listing order.
func (a *Aggregator) Aggregate(ctx context.Context, owner string) Result[kinds.DisplayNames] {
	start := time.Now()
	res := a.aggregate(ctx, owner)

	e := a.engine
	e.recorder.RecordReadSource(e.kind.Name, string(res.Source))
	e.recorder.RecordOperation("aggregate", e.kind.Name, string(res.Source), time.Since(start))
	return res
}

func (a *Aggregator) aggregate(ctx context.Context, owner string) Result[kinds.DisplayNames] {
	e := a.engine
	aggID := Identity{OwnerID: owner, PartitionID: AggregatePartition}

	_, cached, haveCache := e.loadEntry(e.cache, aggID)

	listed, err := listCandidates(ctx, e.store, OwnerPrefix(e.opts.Root, owner), e.opts)
	if err != nil {
		e.logger.Warn("aggregate listing failed, falling back", "owner", owner, "error", err)
		return a.fallbackResult(cached, haveCache, errors.CodeOf(err), fmt.Sprintf("cloud unavailable: %v", err))
	}

	union := map[string]string{}
	contributed := 0
	for _, g := range groupByPartition(e.opts.Root, owner, listed) {
		id := Identity{OwnerID: owner, PartitionID: g.partition}
		m := NewMatcher(e.kind.Info, id)

		f := e.probe(ctx, id, Rank(Filter(m, g.listed), m.Pinned()))
		if f == nil {
			continue
		}
		contributed++
		maps.Copy(union, f.payload.CustomNames)

		if err := e.storeEntry(e.cache, id, f.payload, f.key); err != nil {
			e.logger.Warn("failed to refresh cache entry", "identity", id.String(), "error", err)
		}
	}

	if contributed == 0 {
		return a.fallbackResult(cached, haveCache, "", "no display names in cloud")
	}

	merged := mergeNames(union, cached.CustomNames)
	doc := kinds.DisplayNames{CustomNames: merged}

	if err := e.storeEntry(e.cache, aggID, doc, ""); err != nil {
		e.logger.Warn("failed to cache aggregate", "owner", owner, "error", err)
	}
	e.publish(aggID, doc, "", SourceCloud)

	return Result[kinds.DisplayNames]{
		Success: true,
		Data:    doc,
		Source:  SourceCloud,
		Message: fmt.Sprintf("merged display names from %d partitions", contributed),
	}
}

func (a *Aggregator) fallbackResult(cached kinds.DisplayNames, haveCache bool, code errors.ErrorCode, reason string) Result[kinds.DisplayNames] {
	if haveCache {
		return Result[kinds.DisplayNames]{
			Success: true,
			Data:    cached,
			Source:  SourceLocalCache,
			Code:    code,
			Message: reason + "; loaded from local cache",
		}
	}
	return Result[kinds.DisplayNames]{
		Success: true,
		Data:    a.engine.kind.Default(),
		Source:  SourceDefault,
		Code:    code,
		Message: reason + "; using default",
	}
}

// groupByPartition buckets listed keys by partition, ordering groups by the
// first appearance of each partition.
func groupByPartition(root, owner string, listed []types.ObjectInfo) []partitionGroup {
	var groups []partitionGroup
	index := map[string]int{}
	for _, obj := range listed {
		partition, ok := PartitionFromKey(root, owner, obj.Key)
		if !ok || partition == AggregatePartition {
			continue
		}
		i, seen := index[partition]
		if !seen {
			i = len(groups)
			index[partition] = i
			groups = append(groups, partitionGroup{partition: partition})
		}
		groups[i].listed = append(groups[i].listed, obj)
	}
	return groups
}

// mergeNames overlays cloud on cached: cloud wins on collision and cached
// entries only fill keys the cloud lacks or left blank.
func mergeNames(cloud, cached map[string]string) map[string]string {
	merged := make(map[string]string, len(cloud)+len(cached))
	maps.Copy(merged, cloud)
	for k, v := range cached {
		if existing, ok := merged[k]; !ok || (existing == "" && v != "") {
			merged[k] = v
		}
	}
	return merged
}
