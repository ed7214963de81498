package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/yourdles/internal/logging"
	"github.com/eugenenazirov/yourdles/internal/settings"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

// SettingsStore is the part of settings.Store the handlers need.
type SettingsStore interface {
	Conf() settings.Value
	Set(name string, value any) (settings.Value, error)
}

// Handler serves the settings snapshot over HTTP. The store is not safe for
// concurrent use, so every access goes through mu.
type Handler struct {
	store    SettingsStore
	log      *logging.Adapter
	redacted []string

	clock func() time.Time

	writeRPS   float64
	writeBurst int
	writes     *writeLimiter

	mu        sync.Mutex
	updatedAt time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithRedacted replaces the dotted paths masked in responses. The envs
// section is masked by default.
func WithRedacted(paths ...string) HandlerOption {
	return func(h *Handler) {
		h.redacted = paths
	}
}

// WithWriteLimit throttles PUT /api/settings/{path} to rps updates per second
// with bursts of up to burst. A non-positive rps or burst leaves updates
// unlimited, which is the default.
func WithWriteLimit(rps float64, burst int) HandlerOption {
	return func(h *Handler) {
		h.writeRPS = rps
		h.writeBurst = burst
	}
}

// NewHandler constructs a Handler serving store and logging changes to log.
func NewHandler(store SettingsStore, log *logging.Adapter, opts ...HandlerOption) *Handler {
	h := &Handler{
		store:    store,
		log:      log,
		redacted: []string{settings.EnvsKey},
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.updatedAt = h.clock()
	h.writes = newWriteLimiter(h.writeRPS, h.writeBurst, h.clock)
	return h
}

// routes lists the endpoints served by h, in ServeMux pattern syntax.
func (h *Handler) routes() []route {
	return []route{
		{"GET /api/health", h.handleHealth},
		{"GET /api/settings", h.handleGetSettings},
		{"GET /api/settings/{path}", h.handleGetSetting},
		{"PUT /api/settings/{path}", h.handlePutSetting},
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:          "ok",
		Timestamp:       h.clock(),
		RejectedUpdates: h.writes.Rejected(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	_ = r
	h.mu.Lock()
	conf := h.store.Conf()
	updatedAt := h.updatedAt
	h.mu.Unlock()

	resp := settingsResponse{
		Value:     conf.Redact(h.redacted...),
		UpdatedAt: updatedAt,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSpace(r.PathValue("path"))

	h.mu.Lock()
	conf := h.store.Conf()
	updatedAt := h.updatedAt
	h.mu.Unlock()

	value := conf.Redact(h.redacted...).Path(path)
	if !value.Exists() {
		writeError(w, http.StatusNotFound, "Setting not found", fmt.Sprintf("no setting at %q", path))
		return
	}

	resp := settingsResponse{
		Path:      path,
		Kind:      value.Kind().String(),
		Value:     value,
		UpdatedAt: updatedAt,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handlePutSetting(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSpace(r.PathValue("path"))

	if wait, ok := h.writes.admit(); !ok {
		h.rejectUpdate(r.Context(), w, path, wait)
		return
	}

	// a field map keeps an explicit null apart from an absent value
	var req map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return
	}
	raw, ok := req["value"]
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid request", "value is required")
		return
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse value")
		return
	}

	conf, updatedAt, err := h.applySetting(r.Context(), path, value)
	if err != nil {
		if errors.Is(err, settings.ErrConfiguration) {
			writeError(w, http.StatusUnprocessableEntity, "Invalid setting", err.Error(),
				"only keys below existing settings nodes can be set")
			return
		}
		writeInternalError(w, err)
		return
	}

	applied := conf.Redact(h.redacted...).Path(path)
	resp := settingsResponse{
		Path:      path,
		Kind:      applied.Kind().String(),
		Value:     applied,
		UpdatedAt: updatedAt,
		Message:   "Setting updated successfully",
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) applySetting(ctx context.Context, path string, value any) (settings.Value, time.Time, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	requestID := requestIDFromContext(ctx)
	h.log.Info(fmt.Sprintf("setting %s", path), zap.String("request_id", requestID))

	var conf settings.Value
	err := logging.Indent(h.log, func() error {
		var err error
		conf, err = h.store.Set(path, value)
		if err != nil {
			h.log.Warn(err)
			return err
		}
		h.log.Debugf("%s is now %s", path, conf.Path(path).Kind())
		return nil
	})()
	if err != nil {
		return settings.Value{}, time.Time{}, err
	}

	h.updatedAt = h.clock()
	return conf, h.updatedAt, nil
}

func (h *Handler) rejectUpdate(ctx context.Context, w http.ResponseWriter, path string, wait time.Duration) {
	h.mu.Lock()
	h.log.Warn(fmt.Sprintf("update of %s rejected, next slot in %s", path, wait.Round(time.Millisecond)),
		zap.String("request_id", requestIDFromContext(ctx)),
		zap.Int64("rejected", h.writes.Rejected()))
	h.mu.Unlock()

	w.Header().Set("Retry-After", strconv.Itoa(retryAfter(wait)))
	writeError(w, http.StatusTooManyRequests, "Too many requests",
		fmt.Sprintf("updates to %q are rate limited", path), "retry after the Retry-After delay")
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type settingsResponse struct {
	Path      string         `json:"path,omitempty"`
	Kind      string         `json:"kind,omitempty"`
	Value     settings.Value `json:"value"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Message   string         `json:"message,omitempty"`
}

type healthResponse struct {
	Status          string    `json:"status"`
	Timestamp       time.Time `json:"timestamp"`
	RejectedUpdates int64     `json:"rejectedUpdates"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
