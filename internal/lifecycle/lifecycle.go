// Package lifecycle starts and stops the supplicant daemons.
//
// A start or stop is a fire-and-forget signal to the init system followed by
// polling the daemon's status property. The status key's serial tells a
// daemon that started and crashed apart from one that never started.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"grimm.is/wlanctl/internal/clock"
	"grimm.is/wlanctl/internal/config"
	"grimm.is/wlanctl/internal/logging"
	"grimm.is/wlanctl/internal/metrics"
	"grimm.is/wlanctl/internal/props"
	"grimm.is/wlanctl/internal/wpactrl"
)

// Role selects which daemon is controlled.
type Role string

const (
	RoleStation Role = config.RoleStation
	RoleP2P     Role = config.RoleP2P
	RoleAP      Role = config.RoleAP
)

// Poll budget.
const (
	PollInterval = 100 * time.Millisecond
	StartPolls   = 200
	StopPolls    = 50
)

var (
	ErrStartFailed = errors.New("daemon start failed")
	ErrStopFailed  = errors.New("daemon stop failed")
	ErrTimeout     = errors.New("timed out waiting for daemon status")
	ErrUnknownRole = errors.New("unknown or unsupported role")
)

// Controller starts and stops daemons by role.
type Controller interface {
	Start(ctx context.Context, role Role) error
	Stop(ctx context.Context, role Role) error
	// Status returns the raw value of the role's status key.
	Status(role Role) (string, error)
	// Variant names the platform implementation.
	Variant() string
}

// ConfigMaterializer prepares the daemon's files before a start.
type ConfigMaterializer interface {
	EnsureConfigFile(path string) error
	EnsureEntropyFile(path string) error
}

// InterfaceManager creates and removes the p2p virtual interface.
type InterfaceManager interface {
	AddInterface(name string) error
	RemoveInterface(name string) error
}

// PowerHooks run after a daemon was started or stopped successfully.
type PowerHooks interface {
	WlanUp() error
	WlanDown() error
}

// Deps are the collaborators a Controller drives.
type Deps struct {
	Status  props.StatusReader
	Service props.ServiceControl
	Files   ConfigMaterializer

	// Optional.
	Interfaces InterfaceManager
	Power      PowerHooks
	Clock      clock.Clock
	Logger     *logging.Logger
}

// New returns the Controller for cfg.Platform.
func New(cfg *config.Config, deps Deps) (Controller, error) {
	if deps.Status == nil || deps.Service == nil || deps.Files == nil {
		return nil, errors.New("lifecycle: status, service and files are required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.Default
	}
	if deps.Logger == nil {
		deps.Logger = logging.WithComponent("lifecycle")
	}

	b := &base{
		cfg:     cfg,
		deps:    deps,
		logger:  deps.Logger,
		metrics: metrics.Get(),
		yield:   runtime.Gosched,
	}

	switch cfg.Platform {
	case config.PlatformGeneric, "":
		return &generic{base: b}, nil
	case config.PlatformVendor:
		return &vendor{base: b}, nil
	}
	return nil, fmt.Errorf("lifecycle: unknown platform %q", cfg.Platform)
}

// base holds the start/stop protocol shared by all variants.
type base struct {
	cfg     *config.Config
	deps    Deps
	logger  *logging.Logger
	metrics *metrics.Registry
	yield   func()
}

func (b *base) role(role Role) (config.RoleConfig, error) {
	rc, ok := b.cfg.Role(string(role))
	if !ok || rc.Daemon == "" || rc.StatusKey == "" {
		return config.RoleConfig{}, fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	return rc, nil
}

func (b *base) status(role Role) (string, error) {
	rc, err := b.role(role)
	if err != nil {
		return "", err
	}
	v, _, _ := b.deps.Status.Get(rc.StatusKey)
	return v, nil
}

// start runs the start protocol. prepare runs after the already-running
// check and before anything is signalled.
func (b *base) start(ctx context.Context, rc config.RoleConfig, needP2P bool, prepare func() error) (err error) {
	begin := time.Now()
	defer func() { b.metrics.RecordLifecycle(rc.Name, "start", err, time.Since(begin).Seconds()) }()

	log := b.logger.WithFields(map[string]any{"role": rc.Name, "daemon": rc.Daemon})

	sc := b.cfg.Supplicant
	if needP2P {
		if err := b.deps.Files.EnsureConfigFile(sc.P2P); err != nil {
			log.Error("daemon will not be started", "error", err)
			return fmt.Errorf("%w: p2p config file: %w", ErrStartFailed, err)
		}
	}

	if v, _, _ := b.deps.Status.Get(rc.StatusKey); v == props.StatusRunning {
		log.Debug("already running")
		return nil
	}

	// The station file is only needed for a fresh start.
	if err := b.deps.Files.EnsureConfigFile(sc.Station); err != nil {
		log.Error("daemon will not be started", "error", err)
		return fmt.Errorf("%w: config file: %w", ErrStartFailed, err)
	}

	if err := b.deps.Files.EnsureEntropyFile(sc.Entropy); err != nil {
		log.Warn("entropy file was not created", "error", err)
	}
	if prepare != nil {
		if err := prepare(); err != nil {
			return fmt.Errorf("%w: %w", ErrStartFailed, err)
		}
	}
	if err := wpactrl.Cleanup(b.cfg.ClientDir); err != nil {
		log.Warn("stale socket cleanup failed", "dir", b.cfg.ClientDir, "error", err)
	}

	_, serial, _ := b.deps.Status.Get(rc.StatusKey)

	if err := b.deps.Service.Signal(rc.Daemon, props.ActionStart); err != nil {
		return fmt.Errorf("%w: signal: %w", ErrStartFailed, err)
	}
	log.Info("start signalled")
	b.yield()

	for i := 0; i < StartPolls; i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrStartFailed, err)
		}
		v, s, ok := b.deps.Status.Get(rc.StatusKey)
		if ok {
			if v == props.StatusRunning {
				log.Info("daemon running", "polls", i)
				return nil
			}
			if v == props.StatusStopped && s != serial {
				log.Error("daemon stopped right after start")
				return fmt.Errorf("%w: %s exited after start", ErrStartFailed, rc.Daemon)
			}
		}
		b.deps.Clock.Sleep(PollInterval)
	}
	log.Error("daemon did not report running", "budget", PollInterval*StartPolls)
	return fmt.Errorf("%w: %w", ErrStartFailed, ErrTimeout)
}

// stop runs the stop protocol. prepare runs after the already-stopped check.
func (b *base) stop(ctx context.Context, rc config.RoleConfig, prepare func() error) (err error) {
	begin := time.Now()
	defer func() { b.metrics.RecordLifecycle(rc.Name, "stop", err, time.Since(begin).Seconds()) }()

	log := b.logger.WithFields(map[string]any{"role": rc.Name, "daemon": rc.Daemon})

	if v, _, _ := b.deps.Status.Get(rc.StatusKey); v == props.StatusStopped {
		log.Debug("already stopped")
		return nil
	}
	if prepare != nil {
		if err := prepare(); err != nil {
			return fmt.Errorf("%w: %w", ErrStopFailed, err)
		}
	}

	if err := b.deps.Service.Signal(rc.Daemon, props.ActionStop); err != nil {
		return fmt.Errorf("%w: signal: %w", ErrStopFailed, err)
	}
	log.Info("stop signalled")
	b.yield()

	for i := 0; i < StopPolls; i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrStopFailed, err)
		}
		if v, _, _ := b.deps.Status.Get(rc.StatusKey); v == props.StatusStopped {
			log.Info("daemon stopped", "polls", i)
			return nil
		}
		b.deps.Clock.Sleep(PollInterval)
	}
	log.Error("failed to stop daemon")
	return fmt.Errorf("%w: %w", ErrStopFailed, ErrTimeout)
}
