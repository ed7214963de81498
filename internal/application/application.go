package application

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/eugenenazirov/yourdles/internal/api"
	"github.com/eugenenazirov/yourdles/internal/config"
	"github.com/eugenenazirov/yourdles/internal/logging"
	"github.com/eugenenazirov/yourdles/internal/settings"
)

// APILogger names the logger used by the HTTP layer.
const APILogger = "api"

// App encapsulates the application dependencies and HTTP server.
type App struct {
	store   *settings.Store
	factory *logging.Factory
	cfg     config.Config
	handler *api.Handler
	router  http.Handler
	logger  *logging.Adapter
	server  *http.Server
}

// New wires the loaded settings store and the logging factory into the HTTP
// server described by cfg.
func New(store *settings.Store, factory *logging.Factory, cfg config.Config) (*App, error) {
	logger, err := factory.Default()
	if err != nil {
		return nil, fmt.Errorf("failed to build default logger: %w", err)
	}
	apiLogger, err := factory.GetLogger(APILogger)
	if err != nil {
		return nil, fmt.Errorf("failed to build api logger: %w", err)
	}

	handler := api.NewHandler(store, apiLogger,
		api.WithWriteLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)
	apiRouter := api.NewRouter(handler, apiLogger, api.WithAccessLog(cfg.EnableRequestLogging))

	return &App{
		store:   store,
		factory: factory,
		cfg:     cfg,
		handler: handler,
		router:  apiRouter,
		logger:  logger,
		server:  NewServer(cfg, BuildRootHandler(apiRouter)),
	}, nil
}

// BuildRootHandler routes API requests and sends the bare root to the settings listing.
func BuildRootHandler(apiHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, "/api/settings", http.StatusFound)
	}))
	return mux
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start logs the effective setup and starts the HTTP server in a goroutine.
func (a *App) Start() error {
	a.logStartup()

	// the adapter keeps indentation state, so the server goroutine logs through zap directly
	logger := a.logger.Zap()
	go func() {
		logger.Info("server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

func (a *App) logStartup() {
	a.logger.Info("starting settings server")
	scope := a.logger.Enter()
	defer scope.Close()

	path := a.store.Path()
	if path == "" {
		path = "(none)"
	}
	a.logger.Infof("settings file: %s", path)
	a.logger.Infof("dotenv pairs: %d", len(a.store.Envs()))
	if root := a.factory.SessionRoot(); root != "" {
		a.logger.Infof("session logs: %s", root)
	}
	if a.cfg.RateLimitRPS > 0 && a.cfg.RateLimitBurst > 0 {
		a.logger.Infof("setting updates: %g per second, burst %d", a.cfg.RateLimitRPS, a.cfg.RateLimitBurst)
	} else {
		a.logger.Info("setting updates: unlimited")
	}
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Logger returns the default logger of the session.
func (a *App) Logger() *logging.Adapter {
	return a.logger
}

// Close flushes the loggers and closes the session log files.
func (a *App) Close() error {
	return a.factory.Close()
}
