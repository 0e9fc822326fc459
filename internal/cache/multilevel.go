package cache

import (
	stderr "errors"
	"sync"

	"github.com/memorykeep/docsync/pkg/errors"
	"github.com/memorykeep/docsync/pkg/types"
)

// CacheLevel is one tier of a MultiLevelCache.
type CacheLevel struct {
	Name  string
	Cache types.Cache
}

// MultiLevelStats tracks multi-level cache statistics
type MultiLevelStats struct {
	TotalHits   uint64            `json:"total_hits"`
	TotalMisses uint64            `json:"total_misses"`
	Writes      uint64            `json:"writes"`
	LevelHits   map[string]uint64 `json:"level_hits"`
	HitRatio    float64           `json:"hit_ratio"`
}

// MultiLevelCache layers caches from fastest to most durable, typically a
// bounded MemoryCache in front of a BoltCache. Reads promote hits into the
// faster levels. Writes go to the most durable level first, so a value is
// never visible in a faster level unless it was persisted.
type MultiLevelCache struct {
	levels []CacheLevel

	mu    sync.Mutex
	stats MultiLevelStats
}

// NewMultiLevelCache creates a cache over levels, fastest first.
func NewMultiLevelCache(levels ...CacheLevel) (*MultiLevelCache, error) {
	if len(levels) == 0 {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "multi-level cache needs at least one level").
			WithComponent("cache")
	}
	for _, level := range levels {
		if level.Cache == nil {
			return nil, errors.NewError(errors.ErrCodeInvalidConfig, "cache level has no cache").
				WithComponent("cache").
				WithContext("level", level.Name)
		}
	}

	return &MultiLevelCache{
		levels: levels,
		stats:  MultiLevelStats{LevelHits: make(map[string]uint64)},
	}, nil
}

// Get returns the value from the fastest level holding key.
func (c *MultiLevelCache) Get(key string) ([]byte, bool) {
	for i, level := range c.levels {
		data, ok := level.Cache.Get(key)
		if !ok {
			continue
		}
		c.recordHit(level.Name)
		for _, faster := range c.levels[:i] {
			// promotion is best effort
			_ = faster.Cache.Set(key, data)
		}
		return data, true
	}

	c.mu.Lock()
	c.stats.TotalMisses++
	c.updateHitRatio()
	c.mu.Unlock()
	return nil, false
}

// Set stores value in every level, most durable first. It stops at the
// first failure.
func (c *MultiLevelCache) Set(key string, value []byte) error {
	for i := len(c.levels) - 1; i >= 0; i-- {
		if err := c.levels[i].Cache.Set(key, value); err != nil {
			// a faster level may hold an older value the durable one no longer agrees with
			for _, faster := range c.levels[:i] {
				_ = faster.Cache.Delete(key)
			}
			return err
		}
	}

	c.mu.Lock()
	c.stats.Writes++
	c.mu.Unlock()
	return nil
}

// Has reports whether any level holds key.
func (c *MultiLevelCache) Has(key string) bool {
	for _, level := range c.levels {
		if level.Cache.Has(key) {
			return true
		}
	}
	return false
}

// Delete removes key from every level.
func (c *MultiLevelCache) Delete(key string) error {
	var errs []error
	for _, level := range c.levels {
		if err := level.Cache.Delete(key); err != nil {
			errs = append(errs, err)
		}
	}
	return stderr.Join(errs...)
}

// Stats returns aggregate statistics. Entries is the entry count of the most
// durable level when it reports one.
func (c *MultiLevelCache) Stats() types.CacheStats {
	c.mu.Lock()
	stats := types.CacheStats{
		Hits:    c.stats.TotalHits,
		Misses:  c.stats.TotalMisses,
		Writes:  c.stats.Writes,
		HitRate: c.stats.HitRatio,
	}
	c.mu.Unlock()

	if s, ok := c.levels[len(c.levels)-1].Cache.(interface{ Stats() types.CacheStats }); ok {
		stats.Entries = s.Stats().Entries
	}
	return stats
}

// LevelStats returns per-level hit counts.
func (c *MultiLevelCache) LevelStats() MultiLevelStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.stats
	out.LevelHits = make(map[string]uint64, len(c.stats.LevelHits))
	for name, hits := range c.stats.LevelHits {
		out.LevelHits[name] = hits
	}
	return out
}

func (c *MultiLevelCache) recordHit(level string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.TotalHits++
	c.stats.LevelHits[level]++
	c.updateHitRatio()
}

// updateHitRatio must be called with the lock held
func (c *MultiLevelCache) updateHitRatio() {
	if total := c.stats.TotalHits + c.stats.TotalMisses; total > 0 {
		c.stats.HitRatio = float64(c.stats.TotalHits) / float64(total)
	}
}
