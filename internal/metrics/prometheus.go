package metrics

import (
	"fmt"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	registry *Registry
)

// Command results.
const (
	ResultOK           = "ok"
	ResultFail         = "fail"
	ResultTimeout      = "timeout"
	ResultNotConnected = "not_connected"
)

// Registry holds all wlanctl metrics.
type Registry struct {
	// Control session
	SessionsActive  prometheus.Gauge
	ConnectsTotal   *prometheus.CounterVec
	CommandsTotal   *prometheus.CounterVec
	CommandLatency  *prometheus.HistogramVec
	EventsTotal     *prometheus.CounterVec
	TerminalsTotal  *prometheus.CounterVec
	Cancellations   prometheus.Counter
	EventLoopActive prometheus.Gauge

	// Lifecycle
	LifecycleOps     *prometheus.CounterVec
	LifecycleLatency *prometheus.HistogramVec
	DaemonRunning    *prometheus.GaugeVec

	// Driver and DHCP
	DriverLoaded  prometheus.Gauge
	DriverUnloads *prometheus.CounterVec
	DHCPRequests  *prometheus.CounterVec

	// System
	Uptime      prometheus.Gauge
	APIRequests *prometheus.CounterVec
	APILatency  *prometheus.HistogramVec
	APILimited  *prometheus.CounterVec
}

// Get returns the global metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry()
	})
	return registry
}

func newRegistry() *Registry {
	r := &Registry{}

	r.SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wlanctl_sessions_active",
		Help: "Open control sessions",
	})

	r.ConnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wlanctl_connects_total",
		Help: "Control session connect attempts",
	}, []string{"iface", "result"})

	r.CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wlanctl_commands_total",
		Help: "Commands sent to the daemon by verb and result",
	}, []string{"command", "result"})

	r.CommandLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wlanctl_command_duration_seconds",
		Help:    "Command round-trip latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"command"})

	r.EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wlanctl_events_total",
		Help: "Events read from the monitor connection by event name",
	}, []string{"event"})

	r.TerminalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wlanctl_terminal_events_total",
		Help: "Synthesized terminal events by reason",
	}, []string{"reason"})

	r.Cancellations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wlanctl_cancellations_total",
		Help: "Cancellation signals written to control sessions",
	})

	r.EventLoopActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wlanctl_event_monitor_active",
		Help: "1 while the event monitor is reading",
	})

	r.LifecycleOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wlanctl_lifecycle_operations_total",
		Help: "Daemon start/stop operations",
	}, []string{"role", "op", "result"})

	r.LifecycleLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wlanctl_lifecycle_duration_seconds",
		Help:    "Time from signal to observed daemon state",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	}, []string{"role", "op"})

	r.DaemonRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wlanctl_daemon_running",
		Help: "1 if the role's daemon reports running",
	}, []string{"role"})

	r.DriverLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wlanctl_driver_loaded",
		Help: "1 if the radio driver is loaded",
	})

	r.DriverUnloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wlanctl_driver_unloads_total",
		Help: "Driver unload attempts",
	}, []string{"result"})

	r.DHCPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wlanctl_dhcp_requests_total",
		Help: "DHCP requests on the primary interface",
	}, []string{"iface", "result"})

	r.Uptime = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wlanctl_uptime_seconds",
		Help: "Seconds since wlanctl serve started",
	})

	r.APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wlanctl_api_requests_total",
		Help: "HTTP API requests",
	}, []string{"method", "path", "status"})

	r.APILatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wlanctl_api_request_duration_seconds",
		Help:    "HTTP API request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	r.APILimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wlanctl_api_rate_limited_total",
		Help: "HTTP API requests rejected by the rate limiter",
	}, []string{"path"})

	return r
}

// RecordCommand records one command exchange. Only the verb is used as a
// label so arguments (SSIDs, keys) never reach the metrics endpoint.
func (r *Registry) RecordCommand(cmd, result string, seconds float64) {
	verb := CommandVerb(cmd)
	r.CommandsTotal.WithLabelValues(verb, result).Inc()
	if result != ResultNotConnected {
		r.CommandLatency.WithLabelValues(verb).Observe(seconds)
	}
}

// RecordEvent records a canonical event by its event name.
func (r *Registry) RecordEvent(name string) {
	r.EventsTotal.WithLabelValues(name).Inc()
}

// RecordLifecycle records a start/stop outcome.
func (r *Registry) RecordLifecycle(role, op string, err error, seconds float64) {
	result := ResultOK
	if err != nil {
		result = ResultFail
	}
	r.LifecycleOps.WithLabelValues(role, op, result).Inc()
	r.LifecycleLatency.WithLabelValues(role, op).Observe(seconds)
}

// RecordAPIRequest records an API request.
func (r *Registry) RecordAPIRequest(method, path string, status int, duration float64) {
	r.APIRequests.WithLabelValues(method, path, statusString(status)).Inc()
	r.APILatency.WithLabelValues(method, path).Observe(duration)
}

// SetBool sets g to 1 or 0.
func SetBool(g prometheus.Gauge, v bool) {
	if v {
		g.Set(1)
		return
	}
	g.Set(0)
}

// CommandVerb returns the upper-cased first word of a command.
func CommandVerb(cmd string) string {
	cmd = strings.TrimSpace(cmd)
	if i := strings.IndexAny(cmd, " \t"); i >= 0 {
		cmd = cmd[:i]
	}
	if cmd == "" {
		return "EMPTY"
	}
	return strings.ToUpper(cmd)
}

// RecordRateLimited counts a request rejected with 429.
func (r *Registry) RecordRateLimited(path string) {
	r.APILimited.WithLabelValues(path).Inc()
}

// statusString converts an HTTP status code to string.
func statusString(status int) string {
	return fmt.Sprintf("%d", status)
}
