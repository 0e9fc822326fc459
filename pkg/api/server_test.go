package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memorykeep/docsync/internal/cache"
	"github.com/memorykeep/docsync/internal/engine"
	"github.com/memorykeep/docsync/internal/metrics"
	"github.com/memorykeep/docsync/internal/storage/memory"
	"github.com/memorykeep/docsync/pkg/errors"
	"github.com/memorykeep/docsync/pkg/health"
	"github.com/memorykeep/docsync/pkg/status"
)

type testEnv struct {
	server  *Server
	handler http.Handler
	store   *memory.Store
	health  *health.Tracker
	status  *status.Tracker
}

func newTestEnv(t *testing.T, config ServerConfig) *testEnv {
	t.Helper()

	collector, err := metrics.NewCollector(metrics.DefaultConfig())
	require.NoError(t, err)

	store := memory.New()
	hub := engine.NewHub(store, cache.NewMemoryCache(100), cache.NewMemoryCache(100), engine.Options{
		Root:     "docsync",
		Recorder: collector,
	})

	healthTracker := health.NewTracker(health.DefaultConfig())
	healthTracker.RegisterComponent(health.ComponentBlobStore)
	healthTracker.RegisterComponent(health.ComponentLocalCache)
	statusTracker := status.NewTracker(status.TrackerConfig{HealthTracker: healthTracker})

	server := NewServer(config, Services{
		Hub:     hub,
		Status:  statusTracker,
		Health:  healthTracker,
		Metrics: collector,
	})
	t.Cleanup(func() { _ = server.Shutdown(context.Background()) })

	return &testEnv{
		server:  server,
		handler: server.Handler(),
		store:   store,
		health:  healthTracker,
		status:  statusTracker,
	}
}

func (e *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

type docResponse struct {
	Success  bool            `json:"success"`
	Data     json.RawMessage `json:"data"`
	Source   string          `json:"source"`
	Fallback string          `json:"fallback"`
	Code     string          `json:"code"`
	Message  string          `json:"message"`
	Changed  bool            `json:"changed"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

func TestDocument_WriteThenRead(t *testing.T) {
	env := newTestEnv(t, DefaultServerConfig())

	w := env.do(http.MethodPut, "/v1/docs/abc/global/theme", `{"themeId":"dark"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	written := decode[docResponse](t, w)
	assert.True(t, written.Success)
	assert.True(t, written.Changed)
	assert.Equal(t, "cloud", written.Source)

	w = env.do(http.MethodGet, "/v1/docs/abc/global/theme", "")
	require.Equal(t, http.StatusOK, w.Code)
	read := decode[docResponse](t, w)
	assert.Equal(t, "cloud", read.Source)
	assert.JSONEq(t, `{"themeId":"dark"}`, string(read.Data))
}

func TestDocument_WriteStatusCodes(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		failUpload bool
		wantCode   int
		wantResult errors.ErrorCode
	}{
		{"invalid payload", `{"themeId":""}`, false, http.StatusUnprocessableEntity, errors.ErrCodeValidationFailed},
		{"malformed json", `{"themeId":`, false, http.StatusBadRequest, ""},
		{"wrong shape", `[1,2]`, false, http.StatusUnprocessableEntity, errors.ErrCodeMalformedDocument},
		{"upload failure keeps local copy", `{"themeId":"dark"}`, true, http.StatusAccepted, errors.ErrCodeNetworkError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, DefaultServerConfig())
			if tt.failUpload {
				env.store.FailUpload(errors.NewError(errors.ErrCodeNetworkError, "offline"))
			}

			w := env.do(http.MethodPut, "/v1/docs/abc/global/theme", tt.body)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
			if tt.wantResult != "" {
				assert.Equal(t, string(tt.wantResult), decode[docResponse](t, w).Code)
			}
		})
	}
}

func TestDocument_RejectionIgnoresMessageText(t *testing.T) {
	res := engine.Result[json.RawMessage]{Message: "rejected by someone"}
	assert.Equal(t, http.StatusBadGateway, writeStatus(res))

	res = engine.Result[json.RawMessage]{Code: errors.ErrCodeValidationFailed, Message: "themeId is required"}
	assert.Equal(t, http.StatusUnprocessableEntity, writeStatus(res))
}

func TestDocument_FallbackWriteIsReported(t *testing.T) {
	env := newTestEnv(t, DefaultServerConfig())
	env.store.FailUpload(errors.NewError(errors.ErrCodeNetworkError, "offline"))

	w := env.do(http.MethodPut, "/v1/docs/abc/global/theme", `{"themeId":"dark"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	res := decode[docResponse](t, w)
	assert.Equal(t, engine.FallbackLocal, res.Fallback)

	w = env.do(http.MethodGet, "/v1/docs/abc/global/theme", "")
	read := decode[docResponse](t, w)
	assert.Equal(t, "local-fallback", read.Source)
}

func TestDocument_UnknownKindAndMethod(t *testing.T) {
	env := newTestEnv(t, DefaultServerConfig())

	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/v1/docs/abc/global/wallpaper", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, env.do(http.MethodDelete, "/v1/docs/abc/global/theme", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, env.do(http.MethodGet, "/v1/startup/abc", "").Code)
}

func TestKinds(t *testing.T) {
	env := newTestEnv(t, DefaultServerConfig())

	w := env.do(http.MethodGet, "/v1/kinds", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[struct {
		Kinds []struct {
			Name       string `json:"name"`
			Aggregated bool   `json:"aggregated"`
		} `json:"kinds"`
	}](t, w)
	require.Len(t, body.Kinds, 4)
	assert.Equal(t, "birth_date", body.Kinds[0].Name)
	assert.True(t, body.Kinds[1].Aggregated)
}

func TestNames_Aggregate(t *testing.T) {
	env := newTestEnv(t, DefaultServerConfig())

	w := env.do(http.MethodPut, "/v1/docs/abc/phone/custom_names", `{"customNames":{"a":"Alice"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = env.do(http.MethodPut, "/v1/docs/abc/laptop/custom_names", `{"customNames":{"b":"Bob"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(http.MethodGet, "/v1/names/abc", "")
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[docResponse](t, w)
	assert.Equal(t, "cloud", res.Source)
	assert.JSONEq(t, `{"customNames":{"a":"Alice","b":"Bob"}}`, string(res.Data))
}

func TestStartup_Sync(t *testing.T) {
	env := newTestEnv(t, DefaultServerConfig())

	w := env.do(http.MethodPost, "/v1/startup/abc", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode[struct {
		OperationID string               `json:"operation_id"`
		Result      engine.StartupReport `json:"result"`
	}](t, w)
	assert.NotEmpty(t, body.OperationID)
	assert.Equal(t, "abc", body.Result.OwnerID)
	assert.Len(t, body.Result.Results, 4)

	op, err := env.status.GetOperation(body.OperationID)
	require.NoError(t, err)
	assert.Equal(t, status.StatusCompleted, op.Status)
	assert.Equal(t, status.OpStartupSync, op.Type)
	require.NotNil(t, op.Progress)
	assert.Equal(t, int64(4), op.Progress.Current)

	w = env.do(http.MethodPost, "/v1/startup/abc", "")
	again := decode[struct {
		Result engine.StartupReport `json:"result"`
	}](t, w)
	assert.True(t, again.Result.Skipped)

	w = env.do(http.MethodPost, "/v1/startup/abc?force=true", "")
	forced := decode[struct {
		Result engine.StartupReport `json:"result"`
	}](t, w)
	assert.False(t, forced.Result.Skipped)
}

func TestStartup_Async(t *testing.T) {
	env := newTestEnv(t, DefaultServerConfig())

	w := env.do(http.MethodPost, "/v1/startup/abc?async=true", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	body := decode[map[string]string](t, w)
	opID := body["operation_id"]
	require.NotEmpty(t, opID)
	assert.Equal(t, "/status/operations/"+opID, body["status_url"])

	require.Eventually(t, func() bool {
		op, err := env.status.GetOperation(opID)
		return err == nil && op.Status == status.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	w = env.do(http.MethodGet, "/status/operations/"+opID, "")
	require.Equal(t, http.StatusOK, w.Code)
	op := decode[map[string]any](t, w)
	assert.Equal(t, "completed", op["status"])
}

func TestClean(t *testing.T) {
	env := newTestEnv(t, DefaultServerConfig())
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		name := "theme_abc_" + ts.Format("20060102_150405") + "_0000000" + string(rune('0'+i)) + ".txt"
		env.store.Put("docsync/abc/global/"+name, []byte(`{"themeId":"t"}`), ts)
	}

	w := env.do(http.MethodPost, "/v1/clean/abc/global/theme", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode[struct {
		OperationID string             `json:"operation_id"`
		Result      engine.CleanReport `json:"result"`
	}](t, w)
	assert.Equal(t, 5, body.Result.Listed)
	assert.Equal(t, 2, body.Result.Deleted)
	assert.Len(t, env.store.Keys(), 3)

	op, err := env.status.GetOperation(body.OperationID)
	require.NoError(t, err)
	assert.Equal(t, "theme", op.Metadata["kind"])
	assert.Equal(t, "cleaning", op.Progress.Phase)
}

func TestClean_ListingFailure(t *testing.T) {
	env := newTestEnv(t, DefaultServerConfig())
	env.store.FailList(errors.NewError(errors.ErrCodeNetworkError, "offline"))

	w := env.do(http.MethodPost, "/v1/clean/abc/global/theme", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	body := decode[map[string]any](t, w)
	assert.NotEmpty(t, body["code"])

	history := env.status.GetHistory(0)
	require.Len(t, history, 1)
	assert.Equal(t, status.StatusFailed, history[0].Status)
	require.NotNil(t, history[0].Error)

	assert.Equal(t, http.StatusNotFound, env.do(http.MethodPost, "/v1/clean/abc/global/wallpaper", "").Code)
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, DefaultServerConfig())

	w := env.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode[map[string]any](t, w)["status"])

	env.health.SetState(health.ComponentBlobStore, health.StateUnavailable,
		errors.NewError(errors.ErrCodeCircuitOpen, "breaker open"))

	assert.Equal(t, http.StatusServiceUnavailable, env.do(http.MethodGet, "/health", "").Code)

	// the local cache still serves reads
	w = env.do(http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)
	ready := decode[map[string]any](t, w)
	assert.Equal(t, false, ready["can_write"])

	env.health.SetState(health.ComponentLocalCache, health.StateUnavailable, nil)
	assert.Equal(t, http.StatusServiceUnavailable, env.do(http.MethodGet, "/health/ready", "").Code)

	w = env.do(http.MethodGet, "/health/components", "")
	require.Equal(t, http.StatusOK, w.Code)
	components := decode[[]map[string]any](t, w)
	require.Len(t, components, 2)
	assert.Equal(t, health.ComponentBlobStore, components[0]["name"])

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/health/live", "").Code)
}

func TestStatusEndpoints(t *testing.T) {
	env := newTestEnv(t, DefaultServerConfig())
	env.do(http.MethodPost, "/v1/startup/abc", "")

	w := env.do(http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	sys := decode[map[string]any](t, w)
	assert.Equal(t, float64(1), sys["finished_operations"])

	w = env.do(http.MethodGet, "/status/history?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	hist := decode[map[string]any](t, w)
	assert.Equal(t, float64(1), hist["count"])
	assert.Equal(t, float64(5), hist["limit"])

	w = env.do(http.MethodGet, "/status/operations", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode[map[string]any](t, w)["count"])

	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/status/operations/missing", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	config := DefaultServerConfig()

	env := newTestEnv(t, config)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/metrics", "").Code)

	config.EnableMetrics = true
	env = newTestEnv(t, config)
	env.do(http.MethodGet, "/v1/docs/abc/global/theme", "")

	w := env.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "docsync_operations_total")
	assert.Contains(t, w.Body.String(), "docsync_read_source_total")

	w = env.do(http.MethodGet, "/debug/operations", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"read"`)
}

func TestInfo(t *testing.T) {
	env := newTestEnv(t, DefaultServerConfig())

	w := env.do(http.MethodGet, "/info", "")
	require.Equal(t, http.StatusOK, w.Code)
	info := decode[map[string]any](t, w)
	assert.Equal(t, "docsync", info["service"])
	assert.Len(t, info["kinds"], 4)
}

func TestCORSMiddleware(t *testing.T) {
	env := newTestEnv(t, DefaultServerConfig())

	w := env.do(http.MethodOptions, "/v1/docs/abc/global/theme", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.Contains(w.Header().Get("Access-Control-Allow-Methods"), "PUT"))
}

func TestNilTrackers(t *testing.T) {
	store := memory.New()
	hub := engine.NewHub(store, cache.NewMemoryCache(10), nil, engine.Options{})
	server := NewServer(DefaultServerConfig(), Services{Hub: hub})
	handler := server.Handler()

	get := func(path string) int {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w.Code
	}

	assert.Equal(t, http.StatusOK, get("/health"))
	assert.Equal(t, http.StatusOK, get("/health/ready"))
	assert.Equal(t, http.StatusServiceUnavailable, get("/health/components"))
	assert.Equal(t, http.StatusServiceUnavailable, get("/status"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/clean/abc/global/theme", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServerShutdown(t *testing.T) {
	config := DefaultServerConfig()
	config.Address = "127.0.0.1:0"
	env := newTestEnv(t, config)

	env.server.StartBackground()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, env.server.Shutdown(ctx))
	assert.Error(t, env.server.baseCtx.Err())
}
