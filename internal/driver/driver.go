// Package driver loads and unloads the radio driver and selects its
// firmware image.
package driver

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"grimm.is/wlanctl/internal/clock"
	"grimm.is/wlanctl/internal/config"
	"grimm.is/wlanctl/internal/logging"
	"grimm.is/wlanctl/internal/metrics"
	"grimm.is/wlanctl/internal/props"
)

// Driver status property values.
const (
	StatusLoaded   = "ok"
	StatusUnloaded = "unloaded"
)

// Unload retry policy for a busy module.
const (
	UnloadAttempts = 10
	UnloadBackoff  = 500 * time.Millisecond
)

// ModulesFile lists loaded kernel modules.
const ModulesFile = "/proc/modules"

// ErrDriverBusy is returned when the module stayed busy through every
// unload attempt.
var ErrDriverBusy = errors.New("driver module busy")

// Driver controls the radio driver.
type Driver struct {
	cfg     *config.DriverConfig
	props   props.Store
	clock   clock.Clock
	modules string
	logger  *logging.Logger
	metrics *metrics.Registry

	deleteModule func(name string) error
}

// Option configures a Driver.
type Option func(*Driver)

// WithClock sets the clock used for unload backoff.
func WithClock(c clock.Clock) Option {
	return func(d *Driver) { d.clock = c }
}

// WithModulesFile overrides ModulesFile.
func WithModulesFile(path string) Option {
	return func(d *Driver) { d.modules = path }
}

// New returns a Driver publishing its state to store.
func New(cfg *config.DriverConfig, store props.Store, opts ...Option) *Driver {
	d := &Driver{
		cfg:          cfg,
		props:        store,
		clock:        clock.Default,
		modules:      ModulesFile,
		logger:       logging.WithComponent("driver"),
		metrics:      metrics.Get(),
		deleteModule: deleteModule,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Loaded reports whether the driver is loaded. When a module name is
// configured the status property is cross-checked against the kernel's
// module list, and a stale "ok" left by a crash is reset.
func (d *Driver) Loaded() bool {
	v, _, _ := d.props.Get(d.cfg.StatusKey)
	if v != StatusLoaded {
		return false
	}
	if d.cfg.Module == "" {
		return true
	}

	ok, err := d.moduleListed()
	if err != nil {
		d.logger.Warn("cannot read module list", "path", d.modules, "error", err)
	}
	if !ok {
		d.setStatus(StatusUnloaded)
		return false
	}
	return true
}

func (d *Driver) moduleListed() (bool, error) {
	f, err := os.Open(d.modules)
	if err != nil {
		return false, err
	}
	defer f.Close()

	tag := d.cfg.Module + " "
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if strings.HasPrefix(sc.Text(), tag) {
			return true, nil
		}
	}
	return false, sc.Err()
}

// Load powers the radio on and marks the driver loaded.
func (d *Driver) Load() error {
	d.logger.Info("loading driver", "module", d.cfg.Module)
	d.setPower(true)
	if err := d.props.Set(d.cfg.StatusKey, StatusLoaded); err != nil {
		return fmt.Errorf("set driver status: %w", err)
	}
	metrics.SetBool(d.metrics.DriverLoaded, true)
	return nil
}

// Unload powers the radio off, removes the module if one is configured,
// and marks the driver unloaded. Unloading an unloaded driver is a no-op.
func (d *Driver) Unload() error {
	if !d.Loaded() {
		return nil
	}
	d.logger.Info("unloading driver", "module", d.cfg.Module)
	d.setPower(false)

	if d.cfg.Module != "" {
		if err := d.rmmod(d.cfg.Module); err != nil {
			d.metrics.DriverUnloads.WithLabelValues(metrics.ResultFail).Inc()
			return err
		}
	}
	d.metrics.DriverUnloads.WithLabelValues(metrics.ResultOK).Inc()
	metrics.SetBool(d.metrics.DriverLoaded, false)
	return d.setStatus(StatusUnloaded)
}

func (d *Driver) rmmod(name string) error {
	var err error
	for attempt := 1; attempt <= UnloadAttempts; attempt++ {
		err = d.deleteModule(name)
		if !isBusy(err) {
			break
		}
		d.logger.Debug("module busy, retrying", "module", name, "attempt", attempt)
		d.clock.Sleep(UnloadBackoff)
	}
	switch {
	case err == nil:
		return nil
	case isBusy(err):
		d.logger.Warn("unable to unload driver module", "module", name, "error", err)
		return fmt.Errorf("%w: %s: %w", ErrDriverBusy, name, err)
	default:
		d.logger.Warn("unable to unload driver module", "module", name, "error", err)
		return fmt.Errorf("delete module %s: %w", name, err)
	}
}

func (d *Driver) setPower(on bool) {
	if d.cfg.PowerPath == "" {
		return
	}
	b := []byte{'0'}
	if on {
		b[0] = '1'
	}
	f, err := os.OpenFile(d.cfg.PowerPath, os.O_WRONLY, 0)
	if err != nil {
		d.logger.Error("open power switch failed", "path", d.cfg.PowerPath, "error", err)
		return
	}
	defer f.Close()
	if _, err := f.Write(b); err != nil {
		d.logger.Error("set power failed", "path", d.cfg.PowerPath, "value", string(b), "error", err)
	}
}

func (d *Driver) setStatus(v string) error {
	if err := d.props.Set(d.cfg.StatusKey, v); err != nil {
		d.logger.Warn("set driver status failed", "key", d.cfg.StatusKey, "error", err)
		return err
	}
	return nil
}

// FirmwarePath returns the firmware image configured for role.
func (d *Driver) FirmwarePath(role string) (string, error) {
	return d.cfg.FirmwarePath(role)
}

// ChangeFirmwarePath writes role's firmware path to the driver's module
// parameter. A role without a firmware path is a no-op.
func (d *Driver) ChangeFirmwarePath(role string) error {
	fw, err := d.cfg.FirmwarePath(role)
	if err != nil {
		return err
	}
	if fw == "" {
		return nil
	}

	f, err := os.OpenFile(d.cfg.FwPathParam, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open firmware path parameter: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append([]byte(fw), 0)); err != nil {
		return fmt.Errorf("write firmware path parameter: %w", err)
	}
	d.logger.Info("firmware path changed", "role", role, "path", fw)
	return nil
}
