package s3

import (
	"maps"
	"sync"
	"time"

	"github.com/memorykeep/docsync/pkg/errors"
)

// BackendMetrics is a snapshot of blob store traffic for one backend.
type BackendMetrics struct {
	Requests        int64            `json:"requests"`
	Errors          int64            `json:"errors"`
	ByOperation     map[string]int64 `json:"by_operation"`
	BytesUploaded   int64            `json:"bytes_uploaded"`
	BytesDownloaded int64            `json:"bytes_downloaded"`
	AverageLatency  time.Duration    `json:"average_latency"`

	// Listings rejected as too large; discovery retries these with a smaller page.
	CapacityRejections int64 `json:"capacity_rejections"`

	// CargoShip uploads that failed and went through PutObject instead
	CargoShipFallbacks int64 `json:"cargoship_fallbacks"`

	LastError     string           `json:"last_error,omitempty"`
	LastErrorCode errors.ErrorCode `json:"last_error_code,omitempty"`
	LastErrorTime time.Time        `json:"last_error_time,omitempty"`
}

// MetricsCollector accumulates BackendMetrics.
type MetricsCollector struct {
	mu      sync.RWMutex
	metrics BackendMetrics
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		metrics: BackendMetrics{ByOperation: make(map[string]int64)},
	}
}

// RecordRequest records one list/upload/fetch/delete call and its outcome.
func (mc *MetricsCollector) RecordRequest(operation string, duration time.Duration, err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	m := &mc.metrics
	m.Requests++
	m.ByOperation[operation]++

	// Rolling average latency
	if m.Requests == 1 {
		m.AverageLatency = duration
	} else {
		m.AverageLatency = time.Duration((int64(m.AverageLatency)*9 + int64(duration)) / 10)
	}

	if err == nil {
		return
	}
	m.Errors++
	m.LastError = err.Error()
	m.LastErrorCode = errors.CodeOf(err)
	m.LastErrorTime = time.Now()
	if errors.IsCode(err, errors.ErrCodeRequestTooLarge) {
		m.CapacityRejections++
	}
}

func (mc *MetricsCollector) RecordBytesUploaded(n int) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.metrics.BytesUploaded += int64(n)
}

func (mc *MetricsCollector) RecordBytesDownloaded(n int) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.metrics.BytesDownloaded += int64(n)
}

func (mc *MetricsCollector) RecordCargoShipFallback() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.metrics.CargoShipFallbacks++
}

// GetMetrics returns a copy of the current metrics.
func (mc *MetricsCollector) GetMetrics() BackendMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	m := mc.metrics
	m.ByOperation = maps.Clone(mc.metrics.ByOperation)
	return m
}

// GetErrorRate returns errors divided by requests
func (mc *MetricsCollector) GetErrorRate() float64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if mc.metrics.Requests == 0 {
		return 0
	}
	return float64(mc.metrics.Errors) / float64(mc.metrics.Requests)
}
