package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/eugenenazirov/yourdles/internal/logging"
	"github.com/eugenenazirov/yourdles/internal/settings"
)

const testSettings = `
dirs:
  logs: /var/log/yourdles
logger:
  name: yourdles
  stream:
    level: 20
server:
  port: 8080
`

type controllableClock struct {
	mu  sync.RWMutex
	now time.Time
}

func newControllableClock(initial time.Time) *controllableClock {
	return &controllableClock{now: initial}
}

func (c *controllableClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *controllableClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T, content, envs string) *settings.Store {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte(envs), 0o600))

	store := settings.New(settings.WithEnvFile(envPath))
	require.NoError(t, store.Load(path))
	return store
}

func newTestAdapter(logger *zap.Logger) *logging.Adapter {
	return logging.NewAdapter(logger, "api", "", logging.DefaultSpaces)
}

func setupTestRouter(t *testing.T, opts ...HandlerOption) (http.Handler, *controllableClock) {
	t.Helper()

	store := newTestStore(t, testSettings, "API_TOKEN=s3cret\n")
	clock := newControllableClock(time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC))

	log := newTestAdapter(zaptest.NewLogger(t))
	handler := NewHandler(store, log, append([]HandlerOption{WithClock(clock.Now)}, opts...)...)
	return NewRouter(handler, log, WithAccessLog(false)), clock
}

func get(router http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func putSetting(t *testing.T, router http.Handler, path, payload string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPut, "/api/settings/"+path, strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

type settingBody struct {
	Path      string          `json:"path"`
	Kind      string          `json:"kind"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Message   string          `json:"message"`
}

func decodeSetting(t *testing.T, rec *httptest.ResponseRecorder) settingBody {
	t.Helper()

	var body settingBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestRequestIDHelpers(t *testing.T) {
	ctx := contextWithRequestID(context.Background(), "abc")
	assert.Equal(t, "abc", requestIDFromContext(ctx))
	assert.Empty(t, requestIDFromContext(context.Background()))

	rec := httptest.NewRecorder()
	writeInternalError(rec, errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "boom")
}

func TestHealthEndpoint(t *testing.T) {
	router, clock := setupTestRouter(t)

	rec := get(router, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body healthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.True(t, body.Timestamp.Equal(clock.Now()), body.Timestamp)
	assert.Zero(t, body.RejectedUpdates)
}

func TestGetSettingsReturnsOrderedSnapshot(t *testing.T) {
	router, clock := setupTestRouter(t)

	rec := get(router, "/api/settings")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeSetting(t, rec)
	value := string(body.Value)
	last := -1
	for _, key := range []string{`"dirs"`, `"logger"`, `"server"`, `"envs"`} {
		idx := strings.Index(value, key)
		require.GreaterOrEqual(t, idx, 0, "key %s missing from %s", key, value)
		assert.Greater(t, idx, last, "key %s out of document order in %s", key, value)
		last = idx
	}
	assert.NotContains(t, value, "s3cret")
	assert.True(t, body.UpdatedAt.Equal(clock.Now()), body.UpdatedAt)
}

func TestGetSettingByPath(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := get(router, "/api/settings/logger.stream.level")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeSetting(t, rec)
	assert.Equal(t, "logger.stream.level", body.Path)
	assert.Equal(t, "scalar", body.Kind)
	assert.JSONEq(t, "20", string(body.Value))
}

func TestGetSettingRedactsEnvs(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := get(router, "/api/settings/envs.API_TOKEN")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `"******"`, string(decodeSetting(t, rec).Value))
}

func TestGetSettingMissingPath(t *testing.T) {
	router, _ := setupTestRouter(t)

	assert.Equal(t, http.StatusNotFound, get(router, "/api/settings/logger.file.level").Code)
}

func TestPutSettingUpdatesSnapshot(t *testing.T) {
	router, clock := setupTestRouter(t)
	clock.Advance(time.Hour)

	rec := putSetting(t, router, "logger.file", `{"value":{"level":10,"format":"%(message)s"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeSetting(t, rec)
	assert.NotEmpty(t, body.Message)
	assert.Equal(t, "node", body.Kind)
	assert.True(t, body.UpdatedAt.Equal(clock.Now()), body.UpdatedAt)

	getRec := get(router, "/api/settings/logger.file.level")
	require.Equal(t, http.StatusOK, getRec.Code)
	assert.JSONEq(t, "10", string(decodeSetting(t, getRec).Value))
}

func TestPutSettingRejectsScalarParent(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := putSetting(t, router, "server.port.value", `{"value":1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestPutSettingRejectsMissingParent(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := putSetting(t, router, "cache.size", `{"value":1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestPutSettingValidatesInput(t *testing.T) {
	router, _ := setupTestRouter(t)

	for _, payload := range []string{`not json`, `{}`, `{"other":1}`} {
		rec := putSetting(t, router, "server.port", payload)
		assert.Equal(t, http.StatusBadRequest, rec.Code, payload)
	}
}

func TestPutSettingAcceptsNull(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := putSetting(t, router, "server.port", `{"value":null}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", decodeSetting(t, rec).Kind)
}

func TestPutSettingLogsInsideScope(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := newTestAdapter(zap.New(core))
	handler := NewHandler(newTestStore(t, testSettings, ""), log)
	router := NewRouter(handler, log, WithAccessLog(false))

	rec := putSetting(t, router, "server.port", `{"value":9090}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var got []string
	for _, entry := range logs.All() {
		got = append(got, entry.Message)
	}
	assert.Equal(t, []string{"setting server.port", "  server.port is now scalar"}, got)
	assert.Zero(t, log.IndentLevel())
	assert.Zero(t, log.Depth())
}

func TestCorsPreflight(t *testing.T) {
	router, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/settings/server.port", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", "PUT")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "Retry-After")
}
