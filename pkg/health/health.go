// Package health tracks whether the blob store and the local stores can
// serve reads and writes, so the API can report degraded operation.
package health

import (
	"context"
	stderr "errors"
	"sort"
	"sync"
	"time"

	"github.com/memorykeep/docsync/pkg/errors"
)

// Components tracked by the sync service
const (
	ComponentBlobStore  = "blob-store"
	ComponentLocalCache = "local-cache"
)

// HealthState represents the health state of a component
type HealthState int

const (
	// StateHealthy indicates the component is fully operational
	StateHealthy HealthState = iota

	// StateDegraded indicates failures are occurring but requests still go through
	StateDegraded

	// StateReadOnly indicates reads work but writes are being rejected
	StateReadOnly

	// StateUnavailable indicates the component is not reachable; engines
	// serve local copies and keep writes in the fallback store
	StateUnavailable
)

// String returns the string representation of a health state
func (s HealthState) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateReadOnly:
		return "read-only"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name
func (s HealthState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ComponentHealth tracks the health of a specific component
type ComponentHealth struct {
	Name              string            `json:"name"`
	State             HealthState       `json:"state"`
	LastStateChange   time.Time         `json:"last_state_change"`
	LastHealthCheck   time.Time         `json:"last_health_check"`
	ConsecutiveErrors int               `json:"consecutive_errors"`
	LastErrorMessage  string            `json:"last_error_message,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

func (c *ComponentHealth) copy() *ComponentHealth {
	cp := *c
	cp.Metadata = make(map[string]string, len(c.Metadata))
	for k, v := range c.Metadata {
		cp.Metadata[k] = v
	}
	return &cp
}

// Tracker tracks the health of multiple components and determines overall health
type Tracker struct {
	mu             sync.RWMutex
	components     map[string]*ComponentHealth
	config         TrackerConfig
	stateCallbacks map[HealthState][]StateChangeCallback
	now            func() time.Time
}

// TrackerConfig configures health tracking behavior
type TrackerConfig struct {
	// ErrorThreshold is the number of consecutive errors before marking a component degraded
	ErrorThreshold int `yaml:"error_threshold" json:"error_threshold"`

	// UnavailableThreshold is the number of consecutive errors before marking unavailable
	UnavailableThreshold int `yaml:"unavailable_threshold" json:"unavailable_threshold"`

	// HealthCheckInterval is the interval for periodic health checks
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

// StateChangeCallback is called when a component's health state changes
type StateChangeCallback func(component string, oldState, newState HealthState, err error)

// DefaultConfig returns a default tracker configuration
func DefaultConfig() TrackerConfig {
	return TrackerConfig{
		ErrorThreshold:       3,
		UnavailableThreshold: 10,
		HealthCheckInterval:  30 * time.Second,
	}
}

// NewTracker creates a new health tracker
func NewTracker(config TrackerConfig) *Tracker {
	return &Tracker{
		components:     make(map[string]*ComponentHealth),
		config:         config,
		stateCallbacks: make(map[HealthState][]StateChangeCallback),
		now:            time.Now,
	}
}

// RegisterComponent registers a new component for health tracking
func (t *Tracker) RegisterComponent(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.components[name]; !exists {
		now := t.now()
		t.components[name] = &ComponentHealth{
			Name:            name,
			State:           StateHealthy,
			LastStateChange: now,
			LastHealthCheck: now,
			Metadata:        make(map[string]string),
		}
	}
}

// RecordSuccess records a successful check for a component. Any success
// fully restores a component.
func (t *Tracker) RecordSuccess(component string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	health, exists := t.components[component]
	if !exists {
		return
	}

	health.LastHealthCheck = t.now()
	health.ConsecutiveErrors = 0
	if health.State != StateHealthy {
		t.transitionState(health, StateHealthy, nil)
	}
}

// RecordError records a failed check for a component
func (t *Tracker) RecordError(component string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	health, exists := t.components[component]
	if !exists {
		return
	}

	health.LastHealthCheck = t.now()
	health.ConsecutiveErrors++
	if err != nil {
		health.LastErrorMessage = err.Error()
	}

	newState := health.State
	switch {
	case isUnreachable(err):
		newState = StateUnavailable
	case health.ConsecutiveErrors >= t.config.UnavailableThreshold:
		newState = StateUnavailable
	case health.ConsecutiveErrors >= t.config.ErrorThreshold:
		if isWriteError(err) {
			newState = StateReadOnly
		} else {
			newState = StateDegraded
		}
	}

	if newState != health.State {
		t.transitionState(health, newState, err)
	}
}

// SetState forces a component into state. It is used to mirror circuit
// breaker transitions, which already apply their own thresholds.
func (t *Tracker) SetState(component string, state HealthState, reason error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	health, exists := t.components[component]
	if !exists {
		return
	}
	if reason != nil {
		health.LastErrorMessage = reason.Error()
	}
	if state == StateHealthy {
		health.ConsecutiveErrors = 0
	}
	if health.State != state {
		t.transitionState(health, state, reason)
	}
}

// GetState returns the current health state of a component
func (t *Tracker) GetState(component string) HealthState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if health, exists := t.components[component]; exists {
		return health.State
	}
	return StateUnavailable
}

// GetComponentHealth returns the health information for a component
func (t *Tracker) GetComponentHealth(component string) (*ComponentHealth, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	health, exists := t.components[component]
	if !exists {
		return nil, errors.NewError(errors.ErrCodeUnsupported, "component not registered").
			WithComponent("health").
			WithContext("component", component)
	}
	return health.copy(), nil
}

// GetAllComponents returns health information for all registered components, sorted by name
func (t *Tracker) GetAllComponents() []*ComponentHealth {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]*ComponentHealth, 0, len(t.components))
	for _, health := range t.components {
		result = append(result, health.copy())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// GetOverallHealth returns the worst state of any component
func (t *Tracker) GetOverallHealth() HealthState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	overallState := StateHealthy
	for _, health := range t.components {
		if health.State > overallState {
			overallState = health.State
		}
	}
	return overallState
}

// IsHealthy returns true if the component is in a healthy state
func (t *Tracker) IsHealthy(component string) bool {
	return t.GetState(component) == StateHealthy
}

// CanRead returns true if the component can serve reads
func (t *Tracker) CanRead(component string) bool {
	return t.GetState(component) != StateUnavailable
}

// CanWrite returns true if the component can accept writes
func (t *Tracker) CanWrite(component string) bool {
	state := t.GetState(component)
	return state == StateHealthy || state == StateDegraded
}

// AddStateChangeCallback registers a callback for transitions into state
func (t *Tracker) AddStateChangeCallback(state HealthState, callback StateChangeCallback) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stateCallbacks[state] = append(t.stateCallbacks[state], callback)
}

// SetComponentMetadata sets metadata for a component
func (t *Tracker) SetComponentMetadata(component, key, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if health, exists := t.components[component]; exists {
		health.Metadata[key] = value
	}
}

// transitionState must be called with the lock held
func (t *Tracker) transitionState(health *ComponentHealth, newState HealthState, err error) {
	oldState := health.State
	health.State = newState
	health.LastStateChange = t.now()

	if newState == StateHealthy {
		health.ConsecutiveErrors = 0
		health.LastErrorMessage = ""
	}

	for _, callback := range t.stateCallbacks[newState] {
		go callback(health.Name, oldState, newState, err)
	}
}

// isUnreachable reports errors that mean the store cannot be reached at all
func isUnreachable(err error) bool {
	return errors.IsCode(err, errors.ErrCodeCircuitOpen) ||
		errors.IsCode(err, errors.ErrCodeBucketNotFound)
}

// isWriteError reports errors after which reads may still work
func isWriteError(err error) bool {
	var se *errors.SyncError
	if !stderr.As(err, &se) {
		return false
	}
	switch se.Code {
	case errors.ErrCodeAccessDenied, errors.ErrCodeStorageWrite, errors.ErrCodeCacheWrite:
		return true
	}
	return false
}

// StartHealthChecks runs checkFn for every registered component each
// HealthCheckInterval until ctx is done
func (t *Tracker) StartHealthChecks(ctx context.Context, checkFn func(ctx context.Context, component string) error) {
	ticker := time.NewTicker(t.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.performHealthChecks(ctx, checkFn)
		}
	}
}

func (t *Tracker) performHealthChecks(ctx context.Context, checkFn func(ctx context.Context, component string) error) {
	t.mu.RLock()
	components := make([]string, 0, len(t.components))
	for name := range t.components {
		components = append(components, name)
	}
	t.mu.RUnlock()

	for _, component := range components {
		if err := checkFn(ctx, component); err != nil {
			t.RecordError(component, err)
		} else {
			t.RecordSuccess(component)
		}
	}
}
