package cache

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.etcd.io/bbolt"

	"github.com/memorykeep/docsync/pkg/errors"
	"github.com/memorykeep/docsync/pkg/types"
)

// Bucket names used by the sync engine inside one database file.
const (
	BucketCache    = "cache"
	BucketFallback  = "fallback"
)

// BoltDB is a persistent key-value database backing one or more BoltCache
// namespaces.
type BoltDB struct {
	db     *bbolt.DB
	logger *slog.Logger
	noSync bool
}

// BoltOption configures a BoltDB instance.
type BoltOption func(*BoltDB)

// WithLogger sets the logger for the database.
func WithLogger(logger *slog.Logger) BoltOption {
	return func(b *BoltDB) {
		b.logger = logger
	}
}

// WithNoSync disables fsync per transaction. Tests only.
func WithNoSync(noSync bool) BoltOption {
	return func(b *BoltDB) {
		b.noSync = noSync
	}
}

// OpenBolt opens (creating if needed) the database at path.
func OpenBolt(path string, opts ...BoltOption) (*BoltDB, error) {
	b := &BoltDB{
		logger: slog.Default().With("component", "bolt-cache"),
	}
	for _, opt := range opts {
		opt(b)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout: 1 * time.Second,
		NoSync:  b.noSync,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCacheRead, "opening cache database").
			WithContext("path", path)
	}
	b.db = db

	b.logger.Debug("opened cache database", "path", path)
	return b, nil
}

// Namespace returns a types.Cache bound to bucket, creating the bucket if needed.
func (b *BoltDB) Namespace(bucket string) (*BoltCache, error) {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCacheWrite, "creating bucket").
			WithContext("bucket", bucket)
	}
	return &BoltCache{db: b.db, bucket: []byte(bucket), logger: b.logger.With("bucket", bucket)}, nil
}

// Close closes the database.
func (b *BoltDB) Close() error {
	if b.db == nil {
		return nil
	}
	b.logger.Debug("closing cache database")
	return b.db.Close()
}

// BoltCache is a types.Cache stored in one bbolt bucket.
type BoltCache struct {
	db     *bbolt.DB
	bucket []byte
	logger *slog.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
	writes atomic.Uint64
}

// Get returns a copy of the value at key. Read errors are logged and reported as a miss.
func (c *BoltCache) Get(key string) ([]byte, bool) {
	var data []byte
	err := c.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(c.bucket)
		if bucket == nil {
			return nil
		}
		if val := bucket.Get([]byte(key)); val != nil {
			// bbolt values are only valid for the life of the transaction
			data = make([]byte, len(val))
			copy(data, val)
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("cache read failed", "key", key, "error", err)
	}
	if data == nil {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return data, true
}

// Set stores value at key.
func (c *BoltCache) Set(key string, value []byte) error {
	err := c.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(c.bucket)
		if bucket == nil {
			return fmt.Errorf("bucket %s not found", c.bucket)
		}
		return bucket.Put([]byte(key), value)
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheWrite, "writing cache entry").WithContext("key", key)
	}
	c.writes.Add(1)
	return nil
}

// Has reports whether key is present.
func (c *BoltCache) Has(key string) bool {
	found := false
	_ = c.db.View(func(tx *bbolt.Tx) error {
		if bucket := tx.Bucket(c.bucket); bucket != nil {
			found = bucket.Get([]byte(key)) != nil
		}
		return nil
	})
	return found
}

// Delete removes key.
func (c *BoltCache) Delete(key string) error {
	err := c.db.Update(func(tx *bbolt.Tx) error {
		if bucket := tx.Bucket(c.bucket); bucket != nil {
			return bucket.Delete([]byte(key))
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheWrite, "deleting cache entry").WithContext("key", key)
	}
	return nil
}

// Stats returns cache statistics
func (c *BoltCache) Stats() types.CacheStats {
	stats := types.CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Writes: c.writes.Load(),
	}
	_ = c.db.View(func(tx *bbolt.Tx) error {
		if bucket := tx.Bucket(c.bucket); bucket != nil {
			stats.Entries = bucket.Stats().KeyN
		}
		return nil
	})
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}
