package metrics

import (
	"sort"
	"sync"
	"time"

	"grimm.is/wlanctl/internal/clock"
	"grimm.is/wlanctl/internal/logging"
	"grimm.is/wlanctl/internal/props"
)

// DaemonStats is the last observed state of one role's daemon.
type DaemonStats struct {
	Role      string `json:"role"`
	StatusKey string `json:"status_key"`
	Status    string `json:"status"`
	Serial    uint64 `json:"serial"`
}

// Collector polls status properties and mirrors them into the registry.
type Collector struct {
	registry  *Registry
	logger    *logging.Logger
	interval  time.Duration
	status    props.StatusReader
	roles     map[string]string
	driverKey string
	started   time.Time
	stopCh    chan struct{}
	stopOnce  sync.Once

	mu         sync.RWMutex
	lastUpdate time.Time
	daemons    map[string]*DaemonStats
	driverOK   bool
}

// NewCollector creates a collector. roles maps role name to status key.
func NewCollector(logger *logging.Logger, interval time.Duration, status props.StatusReader, roles map[string]string, driverKey string) *Collector {
	if logger == nil {
		logger = logging.WithComponent("metrics")
	}
	return &Collector{
		registry:  Get(),
		logger:    logger,
		interval:  interval,
		status:    status,
		roles:     roles,
		driverKey: driverKey,
		started:   clock.Now(),
		stopCh:    make(chan struct{}),
		daemons:   make(map[string]*DaemonStats),
	}
}

// Start runs the collection loop until Stop.
func (c *Collector) Start() {
	c.logger.Info("Starting metrics collector", "interval", c.interval.String())

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Collect()
	for {
		select {
		case <-ticker.C:
			c.Collect()
		case <-c.stopCh:
			c.logger.Info("Stopping metrics collector")
			return
		}
	}
}

// Stop stops the collection loop.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Collect reads every status key once.
func (c *Collector) Collect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for role, key := range c.roles {
		value, serial, _ := c.status.Get(key)
		c.daemons[role] = &DaemonStats{Role: role, StatusKey: key, Status: value, Serial: serial}
		SetBool(c.registry.DaemonRunning.WithLabelValues(role), value == props.StatusRunning)
	}

	if c.driverKey != "" {
		v, _, _ := c.status.Get(c.driverKey)
		c.driverOK = v == "ok"
		SetBool(c.registry.DriverLoaded, c.driverOK)
	}

	c.registry.Uptime.Set(clock.Now().Sub(c.started).Seconds())
	c.lastUpdate = clock.Now()
}

// GetDaemonStats returns the last observed daemon states sorted by role.
func (c *Collector) GetDaemonStats() []DaemonStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]DaemonStats, 0, len(c.daemons))
	for _, d := range c.daemons {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out
}

// DriverLoaded returns the last observed driver state.
func (c *Collector) DriverLoaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.driverOK
}

// GetLastUpdate returns when Collect last ran.
func (c *Collector) GetLastUpdate() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdate
}
