package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"grimm.is/wlanctl/internal/api"
	"grimm.is/wlanctl/internal/brand"
	"grimm.is/wlanctl/internal/config"
	"grimm.is/wlanctl/internal/ctlplane"
	"grimm.is/wlanctl/internal/i18n"
	"grimm.is/wlanctl/internal/logging"
)

// Printer is the global message printer for the CLI
var Printer = i18n.NewCLIPrinter()

// shutdownTimeout bounds the graceful stop of every serve component.
const shutdownTimeout = 10 * time.Second

// ServeOptions configures "wlanctl serve". Empty paths use the brand defaults.
type ServeOptions struct {
	ConfigFile string
	Debug      bool
	SocketPath string
	LockPath   string
}

func (o *ServeOptions) applyDefaults() {
	if o.ConfigFile == "" {
		o.ConfigFile = brand.GetConfigPath()
	}
	if o.SocketPath == "" {
		o.SocketPath = brand.GetSocketPath()
	}
	if o.LockPath == "" {
		o.LockPath = brand.GetLockPath()
	}
}

// RunServe runs the serving process until ctx is cancelled or a termination
// signal arrives. It owns the wifi manager and exposes it on the control
// plane socket and, when enabled, over HTTP.
func RunServe(ctx context.Context, opts ServeOptions) (err error) {
	opts.applyDefaults()

	cfg, err := loadConfiguration(opts.ConfigFile)
	if err != nil {
		return err
	}
	logger := initializeLogging(cfg, opts.Debug)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("PANIC: %v", r)
			logger.Error("panic in serve", "panic", r)
		}
	}()

	if err := os.MkdirAll(brand.GetStateDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	svc, err := initializeServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Shutdown()

	ctlServer := ctlplane.NewServer(svc.manager, opts.SocketPath, opts.LockPath)
	if svc.audit != nil {
		ctlServer.SetAuditor(svc.audit)
	}
	if err := ctlServer.Start(); err != nil {
		return fmt.Errorf("failed to start control plane: %w", err)
	}
	svc.addCleanup(func() {
		if err := ctlServer.Stop(); err != nil {
			logger.Warn("control plane stop failed", "error", err)
		}
	})

	pidCleanup, err := setupPIDFile(ctx)
	if err != nil {
		return err
	}
	svc.addCleanup(pidCleanup)

	var wg sync.WaitGroup
	if err := startAPI(cfg, svc, logger, &wg); err != nil {
		return err
	}

	logger.Info("wlanctl serving",
		"platform", cfg.Platform,
		"socket", opts.SocketPath,
		"config", opts.ConfigFile)

	return runMainEventLoop(ctx, cancel, opts.ConfigFile, logger, func(cfg *config.Config) {
		changed, err := svc.group.Reload(cfg)
		if err != nil {
			logger.Warn("service reload failed", "error", err)
		}
		if len(changed) > 0 {
			logger.Info("services reloaded", "services", changed)
		}
	})
}

// startAPI launches the HTTP API in the background when it is enabled.
func startAPI(cfg *config.Config, svc *serveServices, logger *logging.Logger, wg *sync.WaitGroup) error {
	if cfg.API == nil || !cfg.API.Enabled {
		if svc.collector != nil {
			go svc.collector.Start()
			svc.addCleanup(svc.collector.Stop)
		}
		return nil
	}

	opts := api.ServerOptions{
		Status:    svc.manager,
		Hub:       svc.hub,
		Collector: svc.collector,
		Health:    svc.health,
		Logger:    logger,
		RateLimit: cfg.API.RateLimit,
	}
	// Typed nil pointers must not reach the interface fields.
	if svc.journal != nil {
		opts.Journal = svc.journal
	}
	if svc.audit != nil {
		opts.Audit = svc.audit
	}
	if svc.scheduler != nil {
		opts.Tasks = svc.scheduler
	}
	if svc.rates != nil {
		opts.Rates = svc.rates
	}
	if svc.group != nil {
		opts.Services = svc.group
	}
	apiServer, err := api.NewServer(opts)
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := apiServer.Start(cfg.API.Listen); err != nil {
			logger.Error("API server failed", "listen", cfg.API.Listen, "error", err)
		}
	}()
	svc.addCleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := apiServer.Shutdown(ctx); err != nil {
			logger.Warn("API shutdown failed", "error", err)
		}
		wg.Wait()
	})
	return nil
}

// runMainEventLoop blocks until shutdown. SIGHUP re-reads the log level and
// passes the new configuration to onReload.
func runMainEventLoop(ctx context.Context, cancel context.CancelFunc, configFile string, logger *logging.Logger, onReload func(*config.Config)) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				logger.Info("Received SIGHUP, reloading configuration")
				cfg, err := config.LoadFile(configFile)
				if err != nil {
					logger.Error("failed to reload configuration", "error", err)
					continue
				}
				if level, err := logging.ParseLevel(cfg.LogLevel); err != nil {
					logger.Warn("invalid log level", "error", err)
				} else {
					logging.Default().SetLevel(level)
				}
				if onReload != nil {
					onReload(cfg)
				}

			case os.Interrupt, syscall.SIGTERM:
				logger.Info("Received signal, shutting down...", "signal", sig)
				cancel()
				return nil
			}
		}
	}
}
