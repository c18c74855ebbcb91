package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"optipath/config"
	"optipath/logger"
	"optipath/pkg/errors"
	"optipath/pkg/selector"
	"optipath/server"
	"optipath/server/adminapi"
)

// Version information, injected at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	errorHandler := errors.NewErrorHandler()
	cfg := config.NewDefaultConfig()

	showVersion := flag.Bool("version", false, "Show version information and exit")
	flag.BoolVar(showVersion, "v", false, "Show version information and exit")
	configPath := flag.String("config", "config.yaml", "Path to YAML configuration file")
	flag.StringVar(configPath, "c", "config.yaml", "Path to YAML configuration file")
	flag.Parse()

	if *showVersion {
		fmt.Printf("optipath version %s (commit: %s, built at: %s)\n", version, commit, date)
		os.Exit(0)
	}

	loadAndValidateConfig(*configPath, &cfg, errorHandler)

	logFile, err := logger.Initialize(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "optipath: warning initializing logger: %v\n", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	logger.Info("optipath starting",
		"version", version,
		"commit", commit,
		"built", date,
		"bind_addr", cfg.BindAddr,
		"targets", len(cfg.Targets),
		"update_interval", cfg.GetUpdateInterval(),
		"proxy_protocol", cfg.ProxyProtocol)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-signalChan
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	connectTimeout, err := cfg.GetConnectTimeout()
	if err != nil {
		errorHandler.ValidationError("connect_timeout", err)
		os.Exit(errorHandler.WaitForExit())
	}

	routes := selector.NewState()
	sel := selector.New(selector.SelectorOptions{
		Targets:  cfg.Targets,
		Interval: cfg.GetUpdateInterval(),
		State:    routes,
	})
	go sel.Start(ctx)

	errChan := make(chan error, 1)

	backendHealth := server.NewBackendHealth()
	forwarder := server.New(server.ServerOptions{
		Addr:           cfg.BindAddr,
		Routes:         routes,
		ProxyProtocol:  cfg.ProxyProtocolEnabled(),
		ConnectTimeout: connectTimeout,
		Health:         backendHealth,
	})
	go func() {
		if err := forwarder.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	if cfg.Metrics.Enabled {
		go startMetricsServer(ctx, cfg.Metrics, errChan)
	}

	if cfg.Admin.Enabled {
		adminServer := adminapi.New(adminapi.ServerOptions{
			Addr:     cfg.Admin.Addr,
			APIKey:   cfg.Admin.APIKey,
			Routes:   routes,
			Selector: sel,
			Health:   backendHealth,
		})
		go adminServer.Start(ctx, errChan)
	}

	select {
	case <-ctx.Done():
		logger.Info("optipath shut down")
	case err := <-errChan:
		errorHandler.FatalError("server", err)
		cancel()
		os.Exit(errorHandler.WaitForExit())
	}
}

func loadAndValidateConfig(configPath string, cfg *config.Config, errorHandler *errors.ErrorHandler) {
	if err := config.LoadConfigFromFile(configPath, cfg); err != nil {
		if os.IsNotExist(err) && configPath == "config.yaml" {
			// A missing default config falls through to validation, which
			// reports the absent targets.
			logger.Warn("default configuration file not found", "path", configPath)
		} else {
			errorHandler.ConfigError(configPath, err)
			os.Exit(errorHandler.WaitForExit())
		}
	}

	if err := cfg.Validate(); err != nil {
		errorHandler.ValidationError("configuration", err)
		os.Exit(errorHandler.WaitForExit())
	}
}

func startMetricsServer(ctx context.Context, cfg config.MetricsConfig, errChan chan error) {
	mux := http.NewServeMux()
	mux.Handle(cfg.GetMetricsPath(), promhttp.Handler())

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown failed", "error", err)
		}
	}()

	logger.Info("metrics server listening", "addr", cfg.Addr, "path", cfg.GetMetricsPath())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed && ctx.Err() == nil {
		errChan <- fmt.Errorf("metrics server failed: %w", err)
	}
}
