/*
Package cache provides the local stores the sync engine keeps beside the
blob store: a snapshot cache of the last known good document per identity,
and a fallback store for writes that could not be uploaded.

# Implementations

	┌──────────────────────────────────────────┐
	│            engine (types.Cache)          │
	└──────────────────────────────────────────┘
	                     │
	┌──────────────────────────────────────────┐
	│            MultiLevelCache               │
	│  ┌────────────────────────────────────┐  │
	│  │  MemoryCache  (LRU, bounded)       │  │
	│  └────────────────────────────────────┘  │
	│                    │                     │
	│  ┌────────────────────────────────────┐  │
	│  │  BoltCache    (bbolt bucket)       │  │
	│  └────────────────────────────────────┘  │
	└──────────────────────────────────────────┘

MemoryCache is a mutex-guarded LRU. With no bound it is also the in-memory
fallback store used by tests and by hosts that run without a cache file.

BoltCache stores one namespace per bbolt bucket. A single BoltDB file holds
both the "cache" and the "fallback" buckets, so snapshots and pending local
writes survive a restart together.

MultiLevelCache puts a bounded MemoryCache in front of a BoltCache. Hits in
the durable level are promoted; writes reach the durable level first.

# Usage

	db, err := cache.OpenBolt(path)
	if err != nil {
		return err
	}
	defer db.Close()

	durable, err := db.Namespace(cache.BucketCache)
	if err != nil {
		return err
	}
	snapshots, err := cache.NewMultiLevelCache(
		cache.CacheLevel{Name: "memory", Cache: cache.NewMemoryCache(1000)},
		cache.CacheLevel{Name: "bolt", Cache: durable},
	)

# Statistics

Every implementation reports types.CacheStats (hits, misses, writes, entry
count and hit rate). The serve command publishes them as the
docsync_cache_entries and docsync_cache_hit_rate gauges.
*/
package cache
