package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"grimm.is/wlanctl/internal/audit"
	"grimm.is/wlanctl/internal/brand"
	"grimm.is/wlanctl/internal/config"
	"grimm.is/wlanctl/internal/driver"
	"grimm.is/wlanctl/internal/events"
	"grimm.is/wlanctl/internal/health"
	"grimm.is/wlanctl/internal/lifecycle"
	"grimm.is/wlanctl/internal/logging"
	"grimm.is/wlanctl/internal/metrics"
	"grimm.is/wlanctl/internal/network"
	"grimm.is/wlanctl/internal/notification"
	"grimm.is/wlanctl/internal/props"
	"grimm.is/wlanctl/internal/scheduler"
	"grimm.is/wlanctl/internal/services"
	"grimm.is/wlanctl/internal/stats"
	"grimm.is/wlanctl/internal/wifi"
	"grimm.is/wlanctl/internal/wpaconf"
)

// JournalDBName is the event journal database inside the state directory.
const JournalDBName = "events.db"

// AuditDBName is the control plane audit trail inside the state directory.
const AuditDBName = "audit.db"

// SnapshotDir holds daily property store snapshots inside the state directory.
const SnapshotDir = "snapshots"

const (
	snapshotKeep        = 7
	healthWatchInterval = time.Minute
)

// collectInterval is how often daemon status properties are mirrored into metrics.
const collectInterval = 15 * time.Second

// serveServices holds everything "wlanctl serve" builds.
type serveServices struct {
	store     props.Store
	status    props.StatusReader
	hub       *events.Hub
	journal   *events.Journal
	journalDB *sql.DB
	audit     *audit.Store
	collector *metrics.Collector
	manager   *wifi.Manager
	health    *health.Checker
	scheduler *scheduler.Scheduler
	rates     *stats.Collector
	group     *services.Group
	dhcp      *network.DHCPClient

	// Cleanup functions to call on shutdown
	cleanupFuncs []func()
}

// addCleanup registers a cleanup function to be called on shutdown.
func (s *serveServices) addCleanup(fn func()) {
	s.cleanupFuncs = append(s.cleanupFuncs, fn)
}

// Shutdown calls all registered cleanup functions in reverse order.
func (s *serveServices) Shutdown() {
	for i := len(s.cleanupFuncs) - 1; i >= 0; i-- {
		s.cleanupFuncs[i]()
	}
	s.cleanupFuncs = nil
}

// loadConfiguration reads the HCL file. A missing file yields the defaults.
func loadConfiguration(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logging.Warn("No configuration file found, using defaults", "path", path)
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// initializeLogging installs the default logger at the configured level.
// WLANCTL_LOG_FORMAT=json switches to JSON output.
func initializeLogging(cfg *config.Config, debug bool) *logging.Logger {
	lc := logging.DefaultConfig()
	if level, err := logging.ParseLevel(cfg.LogLevel); err == nil {
		lc.Level = level
	}
	if debug {
		lc.Level = logging.LevelDebug
	}
	lc.JSON = os.Getenv(brand.ConfigEnvPrefix+"_LOG_FORMAT") == "json"

	logger := logging.New(lc)
	logging.SetDefault(logger)
	return logger
}

// initializeServices builds the property store, event plumbing, lifecycle
// controller and wifi manager.
func initializeServices(ctx context.Context, cfg *config.Config, logger *logging.Logger) (_ *serveServices, err error) {
	svc := &serveServices{hub: events.NewHub()}
	defer func() {
		if err != nil {
			svc.Shutdown()
		}
	}()

	store, status, control, err := props.Open(
		cfg.Properties.Backend, cfg.Properties.Path,
		cfg.Service.Backend, cfg.Service.UnitSuffix,
		network.DefaultCommandExecutor)
	if err != nil {
		return nil, fmt.Errorf("failed to open property store: %w", err)
	}
	svc.store, svc.status = store, status
	svc.addCleanup(func() { store.Close() })

	adapter := events.NewPropsAdapter(svc.hub, store)
	adapter.Start(ctx)

	if err := initializeJournal(svc, logger); err != nil {
		// Serving continues without the journal.
		logger.Warn("event journal disabled", "error", err)
	}

	if err := initializeAudit(svc); err != nil {
		logger.Warn("audit trail disabled", "error", err)
	}

	roles := make(map[string]string, len(cfg.Roles))
	for _, r := range cfg.Roles {
		roles[r.Name] = r.StatusKey
	}
	svc.collector = metrics.NewCollector(logger.WithComponent("metrics"), collectInterval, status, roles, cfg.Driver.StatusKey)

	deps := lifecycle.Deps{
		Status:  status,
		Service: control,
		Files:   wpaconf.New(cfg.Supplicant, ctrlInterfaceValue(cfg, store)),
		Logger:  logger.WithComponent("lifecycle"),
	}
	switch cfg.Platform {
	case config.PlatformVendor:
		if hooks := lifecycle.NewExecHooks(cfg.Driver.WlanUp, cfg.Driver.WlanDown, network.DefaultCommandExecutor); hooks != nil {
			deps.Power = hooks
		}
	default:
		deps.Interfaces = network.NewNL80211(network.DefaultNetlinker)
	}
	ctl, err := lifecycle.New(cfg, deps)
	if err != nil {
		return nil, err
	}

	svc.dhcp = network.NewDHCPClient(network.DefaultNetlinker,
		network.WithTestInterface(cfg.TestInterface))
	manager, err := wifi.NewManager(cfg, wifi.Deps{
		Props:      store,
		Status:     status,
		Controller: ctl,
		Driver:     driver.New(cfg.Driver, store),
		DHCP:       svc.dhcp,
		Hub:        svc.hub,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	svc.manager = manager
	svc.addCleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := manager.Close(ctx); err != nil {
			logger.Warn("closing supplicant connection failed", "error", err)
		}
	})
	if err := startBackground(ctx, cfg, svc, logger); err != nil {
		return nil, err
	}
	svc.health = buildHealthChecker(svc)
	if err := startMaintenance(svc, logger); err != nil {
		return nil, fmt.Errorf("failed to schedule maintenance: %w", err)
	}

	logger.Info("services initialized",
		"platform", ctl.Variant(),
		"properties", cfg.Properties.Backend,
		"service", cfg.Service.Backend)
	return svc, nil
}

func initializeJournal(svc *serveServices, logger *logging.Logger) error {
	db, err := sql.Open("sqlite", filepath.Join(brand.GetStateDir(), JournalDBName))
	if err != nil {
		return err
	}
	journal, err := events.NewJournal(db, svc.hub)
	if err != nil {
		db.Close()
		return err
	}
	journal.Start(events.DefaultJournalConfig())
	svc.journal = journal
	svc.journalDB = db
	svc.addCleanup(func() {
		journal.Stop()
		db.Close()
	})
	logger.Debug("event journal started")
	return nil
}

// startBackground starts the alert notifier and the event rate sampler.
// The notifier always runs so a reload can enable channels later.
func startBackground(ctx context.Context, cfg *config.Config, svc *serveServices, logger *logging.Logger) error {
	g := services.NewGroup(logger)

	nlog := logger.WithComponent("notification")
	notifier := notification.NewNotifier(svc.hub, notification.NewDispatcher(cfg.Notifications, nil, nlog), nlog)
	rates := stats.NewService(svc.hub, logger)
	for _, s := range []services.Service{notifier, rates} {
		if err := g.Add(s); err != nil {
			return err
		}
	}
	if err := g.Start(ctx); err != nil {
		return fmt.Errorf("failed to start background services: %w", err)
	}
	svc.group = g
	svc.rates = rates.Rates()
	svc.addCleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		g.Stop(ctx)
	})
	if cfg.Notifications != nil {
		nlog.Info("notifications enabled", "channels", len(cfg.Notifications.Channels))
	}
	return nil
}

// buildHealthChecker registers a check per component that can fail on its own.
func buildHealthChecker(svc *serveServices) *health.Checker {
	c := health.NewChecker(nil)
	c.Register("state_dir", health.CheckWritableDir(brand.GetStateDir()))
	if svc.journalDB != nil {
		c.Register("journal_db", health.CheckDB(svc.journalDB))
	}
	if svc.audit != nil {
		c.Register("audit_db", health.CheckDB(svc.audit))
	}
	if d := svc.dhcp; d != nil {
		c.Register("gateway", health.CheckGateway(func() net.IP {
			if lease := d.LastLease(); lease != nil {
				return lease.Gateway
			}
			return nil
		}))
	}
	if m := svc.manager; m != nil {
		c.Register("interface", health.CheckInterface(func() string {
			return m.PrimaryInterface(m.Mode())
		}))
	}
	return c
}

// initializeAudit opens the audit trail. Pruning runs as a scheduled task.
func initializeAudit(svc *serveServices) error {
	store, err := audit.NewStore(filepath.Join(brand.GetStateDir(), AuditDBName), 0)
	if err != nil {
		return err
	}
	svc.audit = store
	svc.addCleanup(func() { store.Close() })
	return nil
}

// startMaintenance schedules audit pruning, health watching and property
// snapshots.
func startMaintenance(svc *serveServices, logger *logging.Logger) error {
	sched := scheduler.New(logger, nil)
	tasks := []*scheduler.Task{
		scheduler.NewHealthWatchTask(svc.health, healthWatchInterval, logger.WithComponent("health")),
		scheduler.NewPropsSnapshotTask(svc.store, filepath.Join(brand.GetStateDir(), SnapshotDir), snapshotKeep),
	}
	if svc.audit != nil {
		tasks = append(tasks, scheduler.NewAuditPruneTask(svc.audit, logger.WithComponent("audit")))
	}
	for _, task := range tasks {
		if err := sched.AddTask(task); err != nil {
			return err
		}
	}
	sched.Start()
	svc.scheduler = sched
	svc.addCleanup(sched.Stop)
	return nil
}

// ctrlInterfaceValue returns the ctrl_interface value written into each
// supplicant config file. On the generic platform the station config names
// the station interface; everything else points at the socket directory.
// store may be nil, in which case the interface property is not consulted.
func ctrlInterfaceValue(cfg *config.Config, store props.Store) func(path string) string {
	dir := cfg.Supplicant.CtrlInterface
	if cfg.Platform == config.PlatformVendor {
		return func(string) string { return dir }
	}
	station, _ := cfg.Role(config.RoleStation)
	return func(path string) string {
		if path != cfg.Supplicant.Station {
			return dir
		}
		if station.InterfaceProperty != "" && store != nil {
			if v, _, ok := store.Get(station.InterfaceProperty); ok && v != "" {
				return v
			}
		}
		return cfg.TestInterface
	}
}

// setupPIDFile writes the PID file and restores it if it disappears.
func setupPIDFile(ctx context.Context) (cleanup func(), err error) {
	pidFile := pidFilePath()
	if err := os.MkdirAll(filepath.Dir(pidFile), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	pid := strconv.Itoa(os.Getpid())

	writePID := func() error {
		return os.WriteFile(pidFile, []byte(pid), 0o644)
	}
	if err := writePID(); err != nil {
		return nil, fmt.Errorf("failed to write PID file: %w", err)
	}

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				data, err := os.ReadFile(pidFile)
				if err != nil || strings.TrimSpace(string(data)) != pid {
					if err := writePID(); err != nil {
						logging.Error("Failed to restore PID file", "error", err)
					} else {
						logging.Info("Restoring PID file (detected missing or invalid)")
					}
				}
			}
		}
	}()

	cleanup = func() {
		if data, err := os.ReadFile(pidFile); err == nil && strings.TrimSpace(string(data)) == pid {
			os.Remove(pidFile)
		}
	}
	return cleanup, nil
}
