// Package main implements the entry point for the datagate daemon.
// Datagate is an industrial data gateway: it ingests device data
// through source resources, runs it through user-configured rules and
// publishes the results through sink resources.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/datagate-io/datagate/config"
	"github.com/datagate-io/datagate/engine"
	"github.com/datagate-io/datagate/health"
	"github.com/datagate-io/datagate/metric"
	"github.com/datagate-io/datagate/store"
)

const (
	Version = "0.1.0"
	appName = "datagate"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  = flag.String("config", "", "path to the YAML configuration file (defaults apply when empty)")
		validate    = flag.Bool("validate", false, "validate the configuration and exit")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *validate {
		fmt.Println("Configuration is valid")
		return nil
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)
	slog.Info("Starting datagate",
		"version", Version,
		"config_path", *configPath,
		"store_path", cfg.StorePath)

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	registry := metric.NewRegistry()
	gateway := engine.New(engine.Dependencies{
		Logger:  logger,
		Metrics: registry.Core(),
		Store:   st,
	})
	if err := gateway.Load(); err != nil {
		return fmt.Errorf("load persisted configuration: %w", err)
	}

	metricsSrv := startMetricsServer(cfg.MetricsAddr, registry, gateway.HealthReporter())

	return runWithSignalHandling(gateway, metricsSrv, cfg.StopTimeout.Std())
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// startMetricsServer exposes the prometheus registry and the health
// report. A failed listen is logged rather than fatal so a port clash
// does not take the data path down with it.
func startMetricsServer(addr string, registry *metric.Registry, reporter *health.Reporter) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", registry.Handler())
	mux.Handle("/healthz", reporter.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		slog.Info("Metrics server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "error", err)
		}
	}()
	return srv
}

func runWithSignalHandling(gateway *engine.Gateway, metricsSrv *http.Server, stopTimeout time.Duration) error {
	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := gateway.StartAll(signalCtx); err != nil {
		return fmt.Errorf("start resources: %w", err)
	}
	slog.Info("Datagate started")

	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	if err := gateway.StopAll(stopTimeout); err != nil {
		slog.Error("Error stopping resources", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Metrics server shutdown failed", "error", err)
	}

	slog.Info("Datagate shutdown complete")
	return nil
}
