package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/yourdles/internal/application"
	"github.com/eugenenazirov/yourdles/internal/config"
	"github.com/eugenenazirov/yourdles/internal/logging"
	"github.com/eugenenazirov/yourdles/internal/settings"
)

var signalNotify = signal.Notify

func main() {
	kingpinApp := kingpin.New("yourdles", "Layered YAML and dotenv settings with an inspection server")
	settingsFile := kingpinApp.Flag("settings", "Path to the YAML settings file (defaults to SETTINGS_FILE, then ./settings.yaml)").Short('s').String()
	envFile := kingpinApp.Flag("envfile", "Path to the dotenv file (defaults to $ENVFILE, then ./.env)").String()

	getCmd := kingpinApp.Command("get", "Print the setting at a dotted path")
	getPath := getCmd.Arg("path", "Dotted settings path").Required().String()

	setCmd := kingpinApp.Command("set", "Apply a setting in memory and print the result")
	setPath := setCmd.Arg("path", "Dotted settings path").Required().String()
	setValue := setCmd.Arg("value", "YAML value to assign").Required().String()
	setDump := setCmd.Flag("dump", "Print the whole settings tree after the change").Bool()

	kingpinApp.Command("dump", "Print the merged settings as YAML")

	serveCmd := kingpinApp.Command("serve", "Run the settings inspection server").Default()
	port := serveCmd.Flag("port", "HTTP port exposed by the service").String()
	rateLimitRPSFlag := serveCmd.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").Default("-1").Float64()
	rateLimitBurstFlag := serveCmd.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default("-1").Int()

	command := kingpin.MustParse(kingpinApp.Parse(os.Args[1:]))

	bootstrap, err := logging.NewBootstrap()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = bootstrap.Sync()
	}()

	var opts []settings.Option
	if *envFile != "" {
		opts = append(opts, settings.WithEnvFile(*envFile))
	}
	store := settings.New(opts...)
	if err := store.Load(*settingsFile); err != nil {
		bootstrap.Critical(err)
		os.Exit(1)
	}

	switch command {
	case getCmd.FullCommand():
		err = runGet(os.Stdout, store.Conf(), *getPath)
	case setCmd.FullCommand():
		err = runSet(os.Stdout, store, *setPath, *setValue, *setDump)
	case serveCmd.FullCommand():
		overrides := &config.CLIOverrides{}
		if *port != "" {
			overrides.Port = port
		}
		if *rateLimitRPSFlag >= 0 {
			overrides.RateLimitRPS = rateLimitRPSFlag
		}
		if *rateLimitBurstFlag >= 0 {
			overrides.RateLimitBurst = rateLimitBurstFlag
		}
		err = serve(store, overrides)
	default:
		err = runDump(os.Stdout, store)
	}
	if err != nil {
		bootstrap.Error(err)
		os.Exit(1)
	}
}

func serve(store *settings.Store, overrides *config.CLIOverrides) error {
	cfg, err := config.Load(store.Conf(), overrides)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	factory := logging.NewFactory(store)
	app, err := application.New(store, factory, cfg)
	if err != nil {
		_ = factory.Close()
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer func() {
		_ = app.Close()
	}()

	if err := app.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	shutdown(app.Server(), cfg.ShutdownGracePeriod, app.Logger())
	return nil
}

func shutdown(server *http.Server, timeout time.Duration, logger *logging.Adapter) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
