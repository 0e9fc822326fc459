// Package status tracks startup syncs and cleanup passes started through
// the API so callers can poll their progress and outcome.
package status

import (
	"context"
	stderr "errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/memorykeep/docsync/pkg/errors"
	"github.com/memorykeep/docsync/pkg/health"
)

// Operation types tracked by the service
const (
	OpStartupSync = "startup-sync"
	OpClean       = "clean"
)

// OperationStatus represents the status of a tracked operation
type OperationStatus int

const (
	// StatusPending indicates the operation has been queued but not started
	StatusPending OperationStatus = iota

	// StatusInProgress indicates the operation is currently executing
	StatusInProgress

	// StatusCompleted indicates the operation completed successfully
	StatusCompleted

	// StatusFailed indicates the operation failed
	StatusFailed

	// StatusCanceled indicates the operation was canceled
	StatusCanceled
)

// String returns the string representation of an operation status
func (s OperationStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInProgress:
		return "in_progress"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name in JSON responses.
func (s OperationStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Operation is a tracked startup sync or cleanup pass.
type Operation struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Status    OperationStatus   `json:"status"`
	Progress  *Progress         `json:"progress,omitempty"`
	StartTime time.Time         `json:"start_time"`
	EndTime   *time.Time        `json:"end_time,omitempty"`
	Error     *errors.SyncError `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Result    any               `json:"result,omitempty"`

	mu         sync.RWMutex
	cancelFunc context.CancelFunc
}

// Progress counts the units of work an operation has finished. For a startup
// sync the unit is a kind; for a cleanup pass it is a deleted document.
type Progress struct {
	Current    int64   `json:"current"`
	Total      int64   `json:"total"`
	Unit       string  `json:"unit"`
	Percentage float64 `json:"percentage"`
	Phase      string  `json:"phase,omitempty"`
}

// Tracker tracks running operations and keeps a bounded history of
// finished ones, newest first.
type Tracker struct {
	mu            sync.RWMutex
	operations    map[string]*Operation
	history       []*Operation
	maxHistory    int
	healthTracker *health.Tracker
}

// TrackerConfig configures operation tracking behavior
type TrackerConfig struct {
	MaxHistorySize int             `json:"max_history_size"`
	HealthTracker  *health.Tracker `json:"-"`
}

// DefaultTrackerConfig returns default configuration
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		MaxHistorySize: 100,
	}
}

// NewTracker creates a new operation tracker
func NewTracker(config TrackerConfig) *Tracker {
	if config.MaxHistorySize <= 0 {
		config.MaxHistorySize = 100
	}

	return &Tracker{
		operations:    make(map[string]*Operation),
		history:       make([]*Operation, 0, config.MaxHistorySize),
		maxHistory:    config.MaxHistorySize,
		healthTracker: config.HealthTracker,
	}
}

// StartOperation starts tracking a new operation. The returned context is
// canceled when the operation finishes or is canceled.
func (t *Tracker) StartOperation(ctx context.Context, opType string, metadata map[string]string) (*Operation, context.Context) {
	opCtx, cancel := context.WithCancel(ctx)

	op := &Operation{
		ID:         uuid.NewString(),
		Type:       opType,
		Status:     StatusInProgress,
		StartTime:  time.Now(),
		Metadata:   make(map[string]string, len(metadata)),
		cancelFunc: cancel,
	}
	for k, v := range metadata {
		op.Metadata[k] = v
	}

	t.mu.Lock()
	t.operations[op.ID] = op
	t.mu.Unlock()

	return op, opCtx
}

// UpdateProgress records how much of an operation is done
func (t *Tracker) UpdateProgress(opID string, current, total int64, unit string) error {
	op, err := t.active(opID)
	if err != nil {
		return err
	}

	op.mu.Lock()
	defer op.mu.Unlock()

	if op.Progress == nil {
		op.Progress = &Progress{}
	}
	op.Progress.Unit = unit
	op.Progress.update(current, total)
	return nil
}

// SetPhase sets the current phase of an operation
func (t *Tracker) SetPhase(opID string, phase string) error {
	op, err := t.active(opID)
	if err != nil {
		return err
	}

	op.mu.Lock()
	defer op.mu.Unlock()

	if op.Progress == nil {
		op.Progress = &Progress{}
	}
	op.Progress.Phase = phase
	return nil
}

// CompleteOperation marks an operation as completed with result
func (t *Tracker) CompleteOperation(opID string, result any) error {
	return t.finish(opID, StatusCompleted, func(op *Operation) {
		op.Result = result
	})
}

// FailOperation marks an operation as failed
func (t *Tracker) FailOperation(opID string, err error) error {
	return t.finish(opID, StatusFailed, func(op *Operation) {
		var se *errors.SyncError
		if stderr.As(err, &se) {
			op.Error = se
		} else {
			op.Error = errors.Wrap(err, errors.ErrCodeInternalError, "operation failed")
		}
	})
}

// CancelOperation cancels an operation
func (t *Tracker) CancelOperation(opID string) error {
	return t.finish(opID, StatusCanceled, nil)
}

func (t *Tracker) finish(opID string, status OperationStatus, apply func(*Operation)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	op, exists := t.operations[opID]
	if !exists {
		return notFound(opID)
	}

	op.mu.Lock()
	op.Status = status
	now := time.Now()
	op.EndTime = &now
	if apply != nil {
		apply(op)
	}
	if op.cancelFunc != nil {
		op.cancelFunc()
	}
	op.mu.Unlock()

	t.moveToHistory(op)
	delete(t.operations, opID)
	return nil
}

// GetOperation returns an active or finished operation by ID
func (t *Tracker) GetOperation(opID string) (*Operation, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if op, exists := t.operations[opID]; exists {
		return op.Copy(), nil
	}
	for _, op := range t.history {
		if op.ID == opID {
			return op.Copy(), nil
		}
	}
	return nil, notFound(opID)
}

// GetAllOperations returns all active operations, oldest first
func (t *Tracker) GetAllOperations() []*Operation {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ops := make([]*Operation, 0, len(t.operations))
	for _, op := range t.operations {
		ops = append(ops, op.Copy())
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].StartTime.Before(ops[j].StartTime) })
	return ops
}

// GetHistory returns up to limit finished operations, newest first
func (t *Tracker) GetHistory(limit int) []*Operation {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if limit <= 0 || limit > len(t.history) {
		limit = len(t.history)
	}

	result := make([]*Operation, limit)
	copy(result, t.history[:limit])
	return result
}

// SystemStatus represents the overall service status
type SystemStatus struct {
	Timestamp        time.Time                 `json:"timestamp"`
	ActiveOps        int                       `json:"active_operations"`
	FinishedOps      int                       `json:"finished_operations"`
	OperationsByType map[string]int            `json:"operations_by_type"`
	HealthState      health.HealthState        `json:"health_state"`
	ComponentHealth  []*health.ComponentHealth `json:"component_health,omitempty"`
}

// GetSystemStatus returns overall status including component health
func (t *Tracker) GetSystemStatus() *SystemStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	status := &SystemStatus{
		Timestamp:        time.Now(),
		ActiveOps:        len(t.operations),
		FinishedOps:      len(t.history),
		OperationsByType: make(map[string]int),
	}

	for _, op := range t.operations {
		status.OperationsByType[op.Type]++
	}

	if t.healthTracker != nil {
		status.HealthState = t.healthTracker.GetOverallHealth()
		status.ComponentHealth = t.healthTracker.GetAllComponents()
	}

	return status
}

func (t *Tracker) active(opID string) (*Operation, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	op, exists := t.operations[opID]
	if !exists {
		return nil, notFound(opID)
	}
	return op, nil
}

// moveToHistory must be called with the lock held
func (t *Tracker) moveToHistory(op *Operation) {
	t.history = append([]*Operation{op.Copy()}, t.history...)
	if len(t.history) > t.maxHistory {
		t.history = t.history[:t.maxHistory]
	}
}

// Copy creates a deep copy of an operation
func (o *Operation) Copy() *Operation {
	o.mu.RLock()
	defer o.mu.RUnlock()

	c := &Operation{
		ID:        o.ID,
		Type:      o.Type,
		Status:    o.Status,
		StartTime: o.StartTime,
		EndTime:   o.EndTime,
		Error:     o.Error,
		Result:    o.Result,
		Metadata:  make(map[string]string, len(o.Metadata)),
	}
	for k, v := range o.Metadata {
		c.Metadata[k] = v
	}
	if o.Progress != nil {
		p := *o.Progress
		c.Progress = &p
	}
	return c
}

func (p *Progress) update(current, total int64) {
	p.Current = current
	p.Total = total
	if total > 0 {
		p.Percentage = float64(current) / float64(total) * 100
	}
}

func notFound(opID string) error {
	return errors.NewError(errors.ErrCodeObjectNotFound, "operation not found").
		WithComponent("status").
		WithContext("operation_id", opID)
}
