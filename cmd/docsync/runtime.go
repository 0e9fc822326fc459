package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/memorykeep/docsync/internal/cache"
	"github.com/memorykeep/docsync/internal/circuit"
	"github.com/memorykeep/docsync/internal/config"
	"github.com/memorykeep/docsync/internal/engine"
	"github.com/memorykeep/docsync/internal/metrics"
	"github.com/memorykeep/docsync/internal/storage/memory"
	"github.com/memorykeep/docsync/internal/storage/s3"
	"github.com/memorykeep/docsync/pkg/errors"
	"github.com/memorykeep/docsync/pkg/health"
	"github.com/memorykeep/docsync/pkg/retry"
	"github.com/memorykeep/docsync/pkg/types"
)

// statsCache is a types.Cache that reports its own statistics.
type statsCache interface {
	types.Cache
	Stats() types.CacheStats
}

// runtime holds every collaborator of one docsync process.
type runtime struct {
	cfg       *config.Configuration
	logger    *slog.Logger
	store     types.BlobStore
	backend   *s3.Backend
	breakers  *circuit.Manager
	cache     statsCache
	fallback  statsCache
	collector *metrics.Collector
	health    *health.Tracker
	hub       *engine.Hub

	closers []func() error
}

func newRuntime(ctx context.Context, cfg *config.Configuration) (*runtime, error) {
	rt := &runtime{
		cfg:    cfg,
		logger: cfg.NewLogger(os.Stderr),
		health: health.NewTracker(health.DefaultConfig()),
	}
	slog.SetDefault(rt.logger)
	rt.health.RegisterComponent(health.ComponentBlobStore)
	rt.health.RegisterComponent(health.ComponentLocalCache)

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   cfg.Monitoring.Metrics.Enabled,
		Path:      cfg.Monitoring.Metrics.Path,
		Namespace: "docsync",
		Labels:    cfg.Monitoring.Metrics.CustomLabels,
	})
	if err != nil {
		return nil, err
	}
	rt.collector = collector

	if err := rt.openCaches(); err != nil {
		rt.Close()
		return nil, err
	}
	if err := rt.openStore(ctx); err != nil {
		rt.Close()
		return nil, err
	}

	var recorder types.MetricsRecorder = engine.NopRecorder{}
	if collector.Enabled() {
		recorder = collector
	}
	rt.hub = engine.NewHub(rt.store, rt.cache, rt.fallback, engine.Options{
		Root:               cfg.Sync.Root,
		ListPageSize:       cfg.Sync.ListPageSize,
		ReducedPageSize:    cfg.Sync.ReducedPageSize,
		RetentionThreshold: cfg.Sync.RetentionThreshold,
		CleanupOnWrite:     cfg.Sync.CleanupOnWrite,
		WriteTimestamped:   cfg.Sync.WriteTimestamped,
		CleanupTimeout:     cfg.Sync.CleanupTimeout,
		Logger:             rt.logger.With("component", "engine"),
		Recorder:           recorder,
	})
	return rt, nil
}

func (rt *runtime) openCaches() error {
	if !rt.cfg.Cache.Enabled {
		rt.cache = cache.NewMemoryCache(rt.cfg.Cache.MaxEntries)
		rt.fallback = cache.NewMemoryCache(0)
		rt.health.SetComponentMetadata(health.ComponentLocalCache, "type", "memory")
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(rt.cfg.Cache.Path), 0o700); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheWrite, "creating cache directory").
			WithContext("path", rt.cfg.Cache.Path)
	}
	db, err := cache.OpenBolt(rt.cfg.Cache.Path, cache.WithLogger(rt.logger.With("component", "bolt-cache")))
	if err != nil {
		return err
	}
	rt.closers = append(rt.closers, db.Close)

	durable, err := db.Namespace(cache.BucketCache)
	if err != nil {
		return err
	}
	if rt.cache, err = cache.NewMultiLevelCache(
		cache.CacheLevel{Name: "memory", Cache: cache.NewMemoryCache(rt.cfg.Cache.MaxEntries)},
		cache.CacheLevel{Name: "bolt", Cache: durable},
	); err != nil {
		return err
	}
	if rt.fallback, err = db.Namespace(cache.BucketFallback); err != nil {
		return err
	}
	rt.health.SetComponentMetadata(health.ComponentLocalCache, "type", "bolt")
	rt.health.SetComponentMetadata(health.ComponentLocalCache, "path", rt.cfg.Cache.Path)
	return nil
}

func (rt *runtime) openStore(ctx context.Context) error {
	var store types.BlobStore
	switch rt.cfg.Storage.Backend {
	case config.BackendMemory:
		store = memory.New()
		rt.logger.Warn("using the in-memory blob store, documents are lost on exit")
	default:
		backend, err := s3.NewBackend(ctx, rt.cfg.S3(),
			s3.WithRetryer(retry.New(rt.cfg.Retry()).WithOnRetry(rt.logRetry)),
			s3.WithLogger(rt.logger.With("component", "s3-backend", "bucket", rt.cfg.Storage.S3.Bucket)))
		if err != nil {
			return err
		}
		store = backend
		rt.backend = backend
		rt.health.SetComponentMetadata(health.ComponentBlobStore, "bucket", rt.cfg.Storage.S3.Bucket)
	}
	rt.health.SetComponentMetadata(health.ComponentBlobStore, "backend", rt.cfg.Storage.Backend)

	if !rt.cfg.Network.CircuitBreaker.Enabled {
		rt.store = store
		return nil
	}

	breakerCfg := rt.cfg.CircuitBreaker()
	breakerCfg.OnStateChange = rt.onBreakerChange
	guarded := circuit.NewStore(store, breakerCfg)
	rt.breakers = guarded.Breakers()
	rt.store = guarded
	return nil
}

func (rt *runtime) logRetry(attempt int, err error, delay time.Duration) {
	rt.logger.Debug("retrying blob store call", "attempt", attempt, "delay", delay, "error", err)
}

// onBreakerChange mirrors breaker transitions into the blob store's health.
func (rt *runtime) onBreakerChange(name string, from, to circuit.State) {
	rt.logger.Warn("circuit breaker changed state", "breaker", name, "from", from, "to", to)

	switch to {
	case circuit.StateOpen:
		rt.health.SetState(health.ComponentBlobStore, health.StateUnavailable,
			errors.NewError(errors.ErrCodeCircuitOpen, name+" breaker open"))
	case circuit.StateHalfOpen:
		rt.health.SetState(health.ComponentBlobStore, health.StateDegraded, nil)
	case circuit.StateClosed:
		if rt.breakers == nil || rt.breakers.HealthCheck() == nil {
			rt.health.SetState(health.ComponentBlobStore, health.StateHealthy, nil)
		}
	}
}

// checkComponent probes one component for the health tracker.
func (rt *runtime) checkComponent(ctx context.Context, component string) error {
	switch component {
	case health.ComponentBlobStore:
		if rt.breakers != nil {
			if err := rt.breakers.HealthCheck(); err != nil {
				return err
			}
		}
		_, err := rt.store.List(ctx, rt.cfg.Sync.Root+"/", 1)
		if rt.backend != nil {
			m := rt.backend.GetMetrics()
			rt.health.SetComponentMetadata(component, "requests", strconv.FormatInt(m.Requests, 10))
			rt.health.SetComponentMetadata(component, "error_rate",
				strconv.FormatFloat(rt.backend.ErrorRate(), 'f', 3, 64))
			rt.health.SetComponentMetadata(component, "capacity_rejections",
				strconv.FormatInt(m.CapacityRejections, 10))
		}
		return err

	case health.ComponentLocalCache:
		rt.collector.UpdateCacheStats(cache.BucketCache, rt.cache.Stats())
		rt.collector.UpdateCacheStats(cache.BucketFallback, rt.fallback.Stats())

		const probeKey = "health:probe"
		if err := rt.cache.Set(probeKey, []byte("ok")); err != nil {
			return err
		}
		return rt.cache.Delete(probeKey)
	}
	return nil
}

// Close waits for background cleanups and releases the local stores.
func (rt *runtime) Close() {
	if rt.hub != nil {
		rt.hub.Wait()
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			rt.logger.Warn("close failed", "error", err)
		}
	}
	rt.closers = nil
}
