package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eugenenazirov/yourdles/internal/application"
	"github.com/eugenenazirov/yourdles/internal/config"
	"github.com/eugenenazirov/yourdles/internal/logging"
	"github.com/eugenenazirov/yourdles/internal/settings"
)

const settingsTemplate = `
dirs:
  logs: %LOGS%
logger:
  name: yourdles
  file:
    level: 10
    format: "%(levelname)s %(name)s %(message)s"
  tsv:
    level: 20
    format: "%(name)s\t%(message)s"
server:
  port: 0
  request_logging: true
  rate_limit:
    rps: 0
`

type testEnv struct {
	app     *application.App
	logsDir string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()

	dir := t.TempDir()
	logsDir := filepath.Join(dir, "logs")
	settingsPath := filepath.Join(dir, "app.yaml")
	content := strings.ReplaceAll(settingsTemplate, "%LOGS%", logsDir)
	require.NoError(t, os.WriteFile(settingsPath, []byte(content), 0o600))

	envPath := filepath.Join(dir, ".env")
	envs := "SETTINGS_FILE=" + settingsPath + "\nAPI_TOKEN=s3cret\n"
	require.NoError(t, os.WriteFile(envPath, []byte(envs), 0o600))

	store := settings.New(settings.WithEnvFile(envPath))
	require.NoError(t, store.Load(""))
	require.Equal(t, settingsPath, store.Path())

	cfg, err := config.Load(store.Conf(), nil)
	require.NoError(t, err)

	clock := func() time.Time {
		return time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC)
	}
	factory := logging.NewFactory(store, logging.WithClock(clock))
	app, err := application.New(store, factory, cfg)
	require.NoError(t, err)

	return testEnv{app: app, logsDir: logsDir}
}

func performRequest(t *testing.T, handler http.Handler, method, target string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestIntegrationFlow(t *testing.T) {
	env := newTestEnv(t)
	handler := env.app.Handler()

	rec := performRequest(t, handler, http.MethodGet, "/api/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = performRequest(t, handler, http.MethodGet, "/api/settings/envs.API_TOKEN", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "s3cret")

	payload, _ := json.Marshal(map[string]any{"value": 9090})
	rec = performRequest(t, handler, http.MethodPut, "/api/settings/server.port", payload,
		map[string]string{"Content-Type": "application/json", "X-Request-ID": "flow-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = performRequest(t, handler, http.MethodGet, "/api/settings/server.port", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Value int `json:"value"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Equal(t, 9090, response.Value)

	rec = performRequest(t, handler, http.MethodGet, "/api/settings/cache.size", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, env.app.Close())

	session := filepath.Join(env.logsDir, "241101")
	text, err := os.ReadFile(filepath.Join(session, "debug.log"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(text), "\n"), "expected separator line")
	assert.Contains(t, string(text), "INFO api setting server.port request_id=flow-1")
	assert.Contains(t, string(text), "DEBUG api   server.port is now scalar")
	assert.Contains(t, string(text), "INFO api request completed")

	tsv, err := os.ReadFile(filepath.Join(session, "debug.tsv"))
	require.NoError(t, err)
	assert.Contains(t, string(tsv), "api\t\"setting server.port\" request_id=\"flow-1\"")
	assert.NotContains(t, string(tsv), "is now scalar")
}
