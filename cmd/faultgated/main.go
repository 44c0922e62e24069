package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elazarl/goproxy"

	"github.com/kdelane/faultgate/internal/fault/common/log"
	"github.com/kdelane/faultgate/internal/fault/config"
	"github.com/kdelane/faultgate/internal/fault/domain"
	"github.com/kdelane/faultgate/internal/fault/gateways/control"
	"github.com/kdelane/faultgate/internal/fault/gateways/proxyhost"
	"github.com/kdelane/faultgate/internal/fault/policy"
	"github.com/kdelane/faultgate/internal/fault/repos/hostfile"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "faultgated"

	defaultShutdownTimeout = 10 * time.Second
)

// Application holds all the components of the interception daemon
type Application struct {
	config  *config.AppConfig
	policy  *policy.Policy
	proxy   *http.Server
	control *http.Server
	store   *hostfile.Store // nil when persistence is disabled
}

func main() {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Configure global logging
	err = log.Configure(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":      version,
		"env":          cfg.Env,
		"log_level":    cfg.LogLevel,
		"proxy_addr":   cfg.ProxyAddr,
		"control_addr": cfg.ControlAddr,
		"enabled":      cfg.Enabled,
		"failure_type": cfg.FailureType,
		"host_file":    cfg.HostFile,
	}, "Starting faultgate daemon")

	// Build application with all dependencies
	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err}, "Daemon failed")
	}

	log.Info(nil, "faultgate daemon stopped gracefully")
}

// buildApplication constructs all components and wires them together
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	logger := log.GetLogger()

	// Seed the policy from configuration. FailureType already passed config
	// validation, so a parse failure here is a programming error.
	ft, err := domain.ParseFailureType(cfg.FailureType)
	if err != nil {
		return nil, fmt.Errorf("invalid failure type: %w", err)
	}
	pol, err := policy.New(policy.Options{
		Enabled:          cfg.Enabled,
		FailureType:      ft,
		BlockNonXboxLive: cfg.BlockNonXboxLive,
		BlockedHosts:     cfg.BlockedHosts,
		CacheSize:        cfg.CacheSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build policy: %w", err)
	}

	// When a host file is configured and present, it is the authoritative
	// editable form and overrides the config-seeded host list.
	var store *hostfile.Store
	if cfg.HostFile != "" {
		store = hostfile.New(cfg.HostFile, logger)
		if store.Exists() {
			raw, err := store.Load()
			if err != nil {
				return nil, fmt.Errorf("failed to load host list: %w", err)
			}
			if err := pol.ReplaceAll(raw); err != nil {
				return nil, fmt.Errorf("invalid host list in %s: %w", cfg.HostFile, err)
			}
			log.Info(map[string]any{
				"path":  cfg.HostFile,
				"hosts": len(pol.BlockedHosts()),
			}, "Host list loaded from file")
		}
	}

	// Proxy host with the interception hook installed
	proxySrv := goproxy.NewProxyHttpServer()
	proxyhost.New(pol, logger).Attach(proxySrv)

	// Control API; only hand over a persister when one exists, a typed nil
	// would defeat the interface nil check.
	var persister control.Persister
	if store != nil {
		persister = store
	}
	controlSrv := control.New(pol, persister, logger)

	return &Application{
		config:  cfg,
		policy:  pol,
		proxy:   &http.Server{Addr: cfg.ProxyAddr, Handler: proxySrv},
		control: &http.Server{Addr: cfg.ControlAddr, Handler: controlSrv},
		store:   store,
	}, nil
}

// Run starts the proxy and control servers and blocks until context is cancelled
func (app *Application) Run(ctx context.Context) error {
	errChan := make(chan error, 2)

	go func() {
		log.Info(map[string]any{"address": app.proxy.Addr}, "Proxy listening")
		if err := app.proxy.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("proxy server: %w", err)
		}
	}()

	go func() {
		log.Info(map[string]any{"address": app.control.Addr}, "Control API listening")
		if err := app.control.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("control server: %w", err)
		}
	}()

	// Watch the host file for external edits
	if app.store != nil {
		go func() {
			if err := app.store.Watch(ctx, app.policy.ReplaceAll); err != nil {
				log.Warn(map[string]any{"error": err}, "Host list watcher stopped")
			}
		}()
	}

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	log.Info(nil, "Shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	var shutdownErr error
	if err := app.proxy.Shutdown(shutdownCtx); err != nil {
		log.Warn(map[string]any{"error": err}, "Error during proxy shutdown")
		shutdownErr = err
	}
	if err := app.control.Shutdown(shutdownCtx); err != nil {
		log.Warn(map[string]any{"error": err}, "Error during control API shutdown")
		shutdownErr = err
	}
	if shutdownErr != nil {
		return fmt.Errorf("shutdown incomplete: %w", shutdownErr)
	}

	log.Info(nil, "Graceful shutdown completed")
	return nil
}
