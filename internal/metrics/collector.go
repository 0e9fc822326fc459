package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/memorykeep/docsync/pkg/types"
)

// Collector implements types.MetricsRecorder on a private Prometheus registry
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry

	// Prometheus metrics
	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	probeSkipCounter  *prometheus.CounterVec
	readSourceCounter *prometheus.CounterVec
	deleteCounter     *prometheus.CounterVec
	cacheEntriesGauge *prometheus.GaugeVec
	cacheHitRateGauge *prometheus.GaugeVec

	// Internal tracking
	operations map[string]*OperationMetrics
	lastReset  time.Time
}

// Config represents metrics configuration
type Config struct {
	Enabled   bool              `yaml:"enabled"`
	Path      string            `yaml:"path"`
	Namespace string            `yaml:"namespace"`
	Subsystem string            `yaml:"subsystem"`
	Labels    map[string]string `yaml:"labels"`
}

// DefaultConfig returns the configuration used when none is given
func DefaultConfig() *Config {
	return &Config{
		Enabled:   true,
		Path:      "/metrics",
		Namespace: "docsync",
		Labels:    make(map[string]string),
	}
}

// OperationMetrics tracks one operation of one kind
type OperationMetrics struct {
	Operation     string           `json:"operation"`
	Kind          string           `json:"kind"`
	Count         int64            `json:"count"`
	Errors        int64            `json:"errors"`
	Outcomes      map[string]int64 `json:"outcomes"`
	TotalDuration time.Duration    `json:"total_duration"`
	AvgDuration   time.Duration    `json:"avg_duration"`
	LastOperation time.Time        `json:"last_operation"`
}

// NewCollector creates a new metrics collector
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if !config.Enabled {
		return &Collector{config: config}, nil
	}

	collector := &Collector{
		config:     config,
		registry:   prometheus.NewRegistry(),
		operations: make(map[string]*OperationMetrics),
		lastReset:  time.Now(),
	}

	collector.initMetrics()

	if err := collector.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return collector, nil
}

// Enabled reports whether the collector records anything
func (c *Collector) Enabled() bool {
	return c.config.Enabled
}

// Registry returns the registry the collector registers into, or nil when disabled
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	if !c.config.Enabled {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// RecordOperation records a completed read, write, clean or aggregate call.
// outcome is the result source, "noop", "ok" or "error".
func (c *Collector) RecordOperation(operation, kind, outcome string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}

	c.mu.Lock()
	key := operation + "/" + kind
	m, exists := c.operations[key]
	if !exists {
		m = &OperationMetrics{Operation: operation, Kind: kind, Outcomes: make(map[string]int64)}
		c.operations[key] = m
	}
	m.Count++
	m.Outcomes[outcome]++
	if outcome == "error" {
		m.Errors++
	}
	m.TotalDuration += duration
	m.AvgDuration = time.Duration(int64(m.TotalDuration) / m.Count)
	m.LastOperation = time.Now()
	c.mu.Unlock()

	c.operationCounter.With(prometheus.Labels{
		"operation": operation,
		"kind":      kind,
		"outcome":   outcome,
	}).Inc()
	c.operationDuration.With(prometheus.Labels{
		"operation": operation,
		"kind":      kind,
	}).Observe(duration.Seconds())
}

// RecordProbeSkip records a candidate rejected during discovery
func (c *Collector) RecordProbeSkip(kind, reason string) {
	if !c.config.Enabled {
		return
	}
	c.probeSkipCounter.With(prometheus.Labels{"kind": kind, "reason": reason}).Inc()
}

// RecordReadSource records which tier served a read
func (c *Collector) RecordReadSource(kind, source string) {
	if !c.config.Enabled {
		return
	}
	c.readSourceCounter.With(prometheus.Labels{"kind": kind, "source": source}).Inc()
}

// RecordDelete records one cleaner delete
func (c *Collector) RecordDelete(kind string, success bool) {
	if !c.config.Enabled {
		return
	}
	c.deleteCounter.With(prometheus.Labels{
		"kind":   kind,
		"status": map[bool]string{true: "success", false: "error"}[success],
	}).Inc()
}

// UpdateCacheStats publishes the size and hit rate of a local store
func (c *Collector) UpdateCacheStats(store string, stats types.CacheStats) {
	if !c.config.Enabled {
		return
	}
	c.cacheEntriesGauge.With(prometheus.Labels{"store": store}).Set(float64(stats.Entries))
	c.cacheHitRateGauge.With(prometheus.Labels{"store": store}).Set(stats.HitRate)
}

// GetMetrics returns a copy of the per-operation tracking, sorted by operation and kind
func (c *Collector) GetMetrics() []OperationMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]OperationMetrics, 0, len(c.operations))
	for _, m := range c.operations {
		cp := *m
		cp.Outcomes = make(map[string]int64, len(m.Outcomes))
		for k, v := range m.Outcomes {
			cp.Outcomes[k] = v
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Operation != out[j].Operation {
			return out[i].Operation < out[j].Operation
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// ResetMetrics resets the internal tracking. Prometheus counters are left alone.
func (c *Collector) ResetMetrics() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.operations = make(map[string]*OperationMetrics)
	c.lastReset = time.Now()
}

// DebugHandler serves the internal tracking as JSON
func (c *Collector) DebugHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.RLock()
		lastReset := c.lastReset
		c.mu.RUnlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"uptime":     time.Since(lastReset).String(),
			"last_reset": lastReset,
			"operations": c.GetMetrics(),
		})
	})
}

// Helper methods

func (c *Collector) initMetrics() {
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: c.config.Labels,
		}
	}

	c.operationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts(opts("operations_total", "Total number of sync operations")),
		[]string{"operation", "kind", "outcome"},
	)

	c.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "operation_duration_seconds",
			Help:        "Duration of sync operations in seconds",
			ConstLabels: c.config.Labels,
			Buckets:     prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		[]string{"operation", "kind"},
	)

	c.probeSkipCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts(opts("probe_skips_total", "Candidates rejected during discovery")),
		[]string{"kind", "reason"},
	)

	c.readSourceCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts(opts("read_source_total", "Reads by the tier that served them")),
		[]string{"kind", "source"},
	)

	c.deleteCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts(opts("cleaner_deletes_total", "Stale versions deleted by the cleaner")),
		[]string{"kind", "status"},
	)

	c.cacheEntriesGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts(opts("cache_entries", "Entries held by a local store")),
		[]string{"store"},
	)

	c.cacheHitRateGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts(opts("cache_hit_rate", "Hit rate of a local store")),
		[]string{"store"},
	)
}

func (c *Collector) registerMetrics() error {
	metrics := []prometheus.Collector{
		c.operationCounter,
		c.operationDuration,
		c.probeSkipCounter,
		c.readSourceCounter,
		c.deleteCounter,
		c.cacheEntriesGauge,
		c.cacheHitRateGauge,
	}

	for _, metric := range metrics {
		if err := c.registry.Register(metric); err != nil {
			return err
		}
	}

	return nil
}
