// Package api serves the sync hub over HTTP, together with the health,
// status and metrics endpoints used to operate it.
package api

import (
	"context"
	"encoding/json"
	stderr "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/memorykeep/docsync/internal/engine"
	"github.com/memorykeep/docsync/internal/metrics"
	"github.com/memorykeep/docsync/pkg/errors"
	"github.com/memorykeep/docsync/pkg/health"
	"github.com/memorykeep/docsync/pkg/status"
)

// maxDocumentBytes bounds a PUT body. Documents are a few KB.
const maxDocumentBytes = 1 << 20

// Server provides the HTTP surface of the sync service
type Server struct {
	httpServer    *http.Server
	hub           *engine.Hub
	statusTracker *status.Tracker
	healthTracker *health.Tracker
	collector     *metrics.Collector
	logger        *slog.Logger
	config        ServerConfig

	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// ServerConfig configures the API server
type ServerConfig struct {
	// Address to bind the server to (e.g., "127.0.0.1:8380")
	Address string `yaml:"address" json:"address"`

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout"`

	// WriteTimeout is the maximum duration for writing the response
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`

	// IdleTimeout is the maximum duration to wait for the next request
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout"`

	// EnableCORS enables Cross-Origin Resource Sharing
	EnableCORS bool `yaml:"enable_cors" json:"enable_cors"`

	// EnableMetrics serves the Prometheus registry at MetricsPath
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics"`

	// MetricsPath is where metrics are served
	MetricsPath string `yaml:"metrics_path" json:"metrics_path"`
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:       "127.0.0.1:8380",
		ReadTimeout:   10 * time.Second,
		WriteTimeout:  30 * time.Second,
		IdleTimeout:   60 * time.Second,
		EnableCORS:    true,
		EnableMetrics: false,
		MetricsPath:   "/metrics",
	}
}

// Services are the collaborators a Server exposes. Only Hub is required.
type Services struct {
	Hub     *engine.Hub
	Status  *status.Tracker
	Health  *health.Tracker
	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// NewServer creates a new API server
func NewServer(config ServerConfig, services Services) *Server {
	if services.Logger == nil {
		services.Logger = slog.Default()
	}
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		hub:           services.Hub,
		statusTracker: services.Status,
		healthTracker: services.Health,
		collector:     services.Metrics,
		logger:        services.Logger.With("component", "api"),
		config:        config,
		baseCtx:       baseCtx,
		cancelBase:    cancel,
	}

	s.httpServer = &http.Server{
		Addr:         config.Address,
		Handler:      s.Handler(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return s
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Sync endpoints
	mux.HandleFunc("/v1/kinds", s.handleKinds)
	mux.HandleFunc("/v1/docs/{owner}/{partition}/{kind}", s.handleDocument)
	mux.HandleFunc("/v1/names/{owner}", s.handleNames)
	mux.HandleFunc("/v1/startup/{owner}", s.handleStartup)
	mux.HandleFunc("/v1/clean/{owner}/{partition}/{kind}", s.handleClean)

	// Health endpoints
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/components", s.handleHealthComponents)
	mux.HandleFunc("/health/live", s.handleLiveness)
	mux.HandleFunc("/health/ready", s.handleReadiness)

	// Status endpoints
	mux.HandleFunc("/status", s.handleSystemStatus)
	mux.HandleFunc("/status/operations", s.handleOperations)
	mux.HandleFunc("/status/operations/{id}", s.handleOperation)
	mux.HandleFunc("/status/history", s.handleHistory)

	if s.config.EnableMetrics && s.collector != nil {
		mux.Handle(s.config.MetricsPath, s.collector.Handler())
		mux.Handle("/debug/operations", s.collector.DebugHandler())
	}

	mux.HandleFunc("/info", s.handleInfo)

	handler := s.loggingMiddleware(mux)
	if s.config.EnableCORS {
		handler = s.corsMiddleware(handler)
	}
	return handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting API server", "address", s.config.Address)
	return s.httpServer.ListenAndServe()
}

// StartBackground starts the server in a background goroutine
func (s *Server) StartBackground() {
	go func() {
		if err := s.Start(); err != nil && !stderr.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
}

// Shutdown stops accepting requests, cancels background jobs and waits for
// in-flight requests to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	s.cancelBase()
	return s.httpServer.Shutdown(ctx)
}

// Sync endpoint handlers

func (s *Server) handleKinds(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	type kindInfo struct {
		Name       string `json:"name"`
		Prefix     string `json:"prefix"`
		Aggregated bool   `json:"aggregated"`
	}
	var out []kindInfo
	for _, name := range s.hub.Kinds() {
		syncer, _ := s.hub.Syncer(name)
		info := syncer.Info()
		out = append(out, kindInfo{Name: info.Name, Prefix: info.Prefix, Aggregated: info.Aggregated})
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"kinds": out})
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	owner, partition, kind := r.PathValue("owner"), r.PathValue("partition"), r.PathValue("kind")
	if _, ok := s.hub.Syncer(kind); !ok {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("Unknown kind: %s", kind))
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.respondJSON(w, http.StatusOK, s.hub.Read(r.Context(), kind, owner, partition))

	case http.MethodPut:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentBytes))
		if err != nil {
			s.respondError(w, http.StatusRequestEntityTooLarge, "Document too large")
			return
		}
		if !json.Valid(body) {
			s.respondError(w, http.StatusBadRequest, "Body is not valid JSON")
			return
		}
		res := s.hub.Write(r.Context(), kind, owner, partition, body)
		s.respondJSON(w, writeStatus(res), res)

	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// writeStatus maps a write result to a response code. A write kept only on
// this device is accepted but not yet synced.
func writeStatus(res engine.Result[json.RawMessage]) int {
	switch {
	case res.Success && res.Fallback == engine.FallbackLocal:
		return http.StatusAccepted
	case res.Success:
		return http.StatusOK
	case res.Code == errors.ErrCodeValidationFailed, res.Code == errors.ErrCodeMalformedDocument:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleNames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	res := s.hub.Aggregate(r.Context(), r.PathValue("owner"))
	s.respondJSON(w, http.StatusOK, engine.ToJSON(res))
}

func (s *Server) handleStartup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	owner := r.PathValue("owner")
	force := queryBool(r, "force")
	metadata := map[string]string{"owner": owner, "force": strconv.FormatBool(force)}

	run := func(ctx context.Context, opID string) engine.StartupReport {
		total := int64(len(s.hub.Kinds()))
		s.progress(opID, 0, total, "kinds")
		report := s.hub.StartupSync(ctx, owner, force)
		if report.Skipped {
			s.phase(opID, "skipped")
		}
		s.progress(opID, int64(len(report.Results)), total, "kinds")
		return report
	}

	s.runJob(w, r, status.OpStartupSync, metadata, func(ctx context.Context, opID string) (any, error) {
		return run(ctx, opID), nil
	})
}

func (s *Server) handleClean(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	owner, partition, kind := r.PathValue("owner"), r.PathValue("partition"), r.PathValue("kind")
	if _, ok := s.hub.Syncer(kind); !ok {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("Unknown kind: %s", kind))
		return
	}
	metadata := map[string]string{"owner": owner, "partition": partition, "kind": kind}

	s.runJob(w, r, status.OpClean, metadata, func(ctx context.Context, opID string) (any, error) {
		s.phase(opID, "cleaning")
		report, err := s.hub.Clean(ctx, kind, owner, partition)
		if err != nil {
			return nil, err
		}
		s.progress(opID, int64(report.Deleted), int64(report.Deleted+report.Failed), "documents")
		return report, nil
	})
}

type jobFunc func(ctx context.Context, opID string) (any, error)

// runJob runs fn as a tracked operation. With ?async=true it answers 202 with
// the operation ID and keeps running until the server shuts down.
func (s *Server) runJob(w http.ResponseWriter, r *http.Request, opType string, metadata map[string]string, fn jobFunc) {
	if s.statusTracker == nil {
		result, err := fn(r.Context(), "")
		s.respondJob(w, "", result, err)
		return
	}

	if queryBool(r, "async") {
		op, ctx := s.statusTracker.StartOperation(s.baseCtx, opType, metadata)
		go func() {
			result, err := fn(ctx, op.ID)
			s.finishJob(op.ID, result, err)
		}()
		s.respondJSON(w, http.StatusAccepted, map[string]any{
			"operation_id": op.ID,
			"status_url":   "/status/operations/" + op.ID,
		})
		return
	}

	op, ctx := s.statusTracker.StartOperation(r.Context(), opType, metadata)
	result, err := fn(ctx, op.ID)
	s.finishJob(op.ID, result, err)
	s.respondJob(w, op.ID, result, err)
}

func (s *Server) finishJob(opID string, result any, err error) {
	var trackErr error
	if err != nil {
		trackErr = s.statusTracker.FailOperation(opID, err)
	} else {
		trackErr = s.statusTracker.CompleteOperation(opID, result)
	}
	if trackErr != nil {
		s.logger.Warn("failed to record operation outcome", "operation_id", opID, "error", trackErr)
	}
}

func (s *Server) respondJob(w http.ResponseWriter, opID string, result any, err error) {
	if err != nil {
		s.respondSyncError(w, err)
		return
	}
	response := map[string]any{"result": result}
	if opID != "" {
		response["operation_id"] = opID
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) progress(opID string, current, total int64, unit string) {
	if s.statusTracker != nil && opID != "" {
		_ = s.statusTracker.UpdateProgress(opID, current, total, unit)
	}
}

func (s *Server) phase(opID, phase string) {
	if s.statusTracker != nil && opID != "" {
		_ = s.statusTracker.SetPhase(opID, phase)
	}
}

// Health endpoint handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if s.healthTracker == nil {
		s.respondJSON(w, http.StatusOK, map[string]any{
			"status": "healthy",
			"note":   "Health tracking not configured",
		})
		return
	}

	overallHealth := s.healthTracker.GetOverallHealth()
	components := s.healthTracker.GetAllComponents()

	response := map[string]any{
		"status":     overallHealth.String(),
		"timestamp":  time.Now(),
		"components": len(components),
	}

	// reads keep working from the local tiers, so only an unavailable
	// component fails the check
	statusCode := http.StatusOK
	if overallHealth == health.StateUnavailable {
		statusCode = http.StatusServiceUnavailable
	}

	s.respondJSON(w, statusCode, response)
}

func (s *Server) handleHealthComponents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if s.healthTracker == nil {
		s.respondError(w, http.StatusServiceUnavailable, "Health tracking not configured")
		return
	}

	s.respondJSON(w, http.StatusOK, s.healthTracker.GetAllComponents())
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"alive":     true,
		"timestamp": time.Now(),
	})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if s.healthTracker == nil {
		s.respondJSON(w, http.StatusOK, map[string]any{
			"ready":     true,
			"timestamp": time.Now(),
			"note":      "Health tracking not configured",
		})
		return
	}

	// the local cache alone is enough to serve reads
	ready := s.healthTracker.CanRead(health.ComponentLocalCache) ||
		s.healthTracker.CanRead(health.ComponentBlobStore)

	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
	}

	s.respondJSON(w, statusCode, map[string]any{
		"ready":     ready,
		"status":    s.healthTracker.GetOverallHealth().String(),
		"can_write": s.healthTracker.CanWrite(health.ComponentBlobStore),
		"timestamp": time.Now(),
	})
}

// Status endpoint handlers

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if s.statusTracker == nil {
		s.respondError(w, http.StatusServiceUnavailable, "Status tracking not configured")
		return
	}

	s.respondJSON(w, http.StatusOK, s.statusTracker.GetSystemStatus())
}

func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if s.statusTracker == nil {
		s.respondError(w, http.StatusServiceUnavailable, "Status tracking not configured")
		return
	}

	operations := s.statusTracker.GetAllOperations()
	s.respondJSON(w, http.StatusOK, map[string]any{
		"operations": operations,
		"count":      len(operations),
		"timestamp":  time.Now(),
	})
}

func (s *Server) handleOperation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if s.statusTracker == nil {
		s.respondError(w, http.StatusServiceUnavailable, "Status tracking not configured")
		return
	}

	opID := r.PathValue("id")
	operation, err := s.statusTracker.GetOperation(opID)
	if err != nil {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("Operation not found: %s", opID))
		return
	}

	s.respondJSON(w, http.StatusOK, operation)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if s.statusTracker == nil {
		s.respondError(w, http.StatusServiceUnavailable, "Status tracking not configured")
		return
	}

	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	history := s.statusTracker.GetHistory(limit)
	s.respondJSON(w, http.StatusOK, map[string]any{
		"history":   history,
		"count":     len(history),
		"limit":     limit,
		"timestamp": time.Now(),
	})
}

// Info endpoint

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	endpoints := []string{
		"/v1/kinds",
		"/v1/docs/{owner}/{partition}/{kind}",
		"/v1/names/{owner}",
		"/v1/startup/{owner}",
		"/v1/clean/{owner}/{partition}/{kind}",
		"/health",
		"/health/components",
		"/health/live",
		"/health/ready",
		"/status",
		"/status/operations",
		"/status/operations/{id}",
		"/status/history",
		"/info",
	}
	if s.config.EnableMetrics && s.collector != nil {
		endpoints = append(endpoints, s.config.MetricsPath, "/debug/operations")
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"service":   "docsync",
		"kinds":     s.hub.Kinds(),
		"timestamp": time.Now(),
		"endpoints": endpoints,
	})
}

// Middleware

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Helper methods

func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("error encoding JSON response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, map[string]any{
		"error":     message,
		"timestamp": time.Now(),
	})
}

func (s *Server) respondSyncError(w http.ResponseWriter, err error) {
	statusCode := http.StatusBadGateway
	switch errors.CodeOf(err) {
	case errors.ErrCodeUnsupported:
		statusCode = http.StatusNotFound
	case errors.ErrCodeOperationCanceled:
		statusCode = http.StatusServiceUnavailable
	case errors.ErrCodeCircuitOpen:
		statusCode = http.StatusServiceUnavailable
	}
	s.respondJSON(w, statusCode, map[string]any{
		"error":     err.Error(),
		"code":      errors.CodeOf(err),
		"timestamp": time.Now(),
	})
}

func queryBool(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}
