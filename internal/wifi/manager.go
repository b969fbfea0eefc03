// Package wifi owns the daemon lifecycle, the supplicant session and the
// radio driver for one wlanctl instance.
package wifi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"grimm.is/wlanctl/internal/clock"
	"grimm.is/wlanctl/internal/config"
	"grimm.is/wlanctl/internal/events"
	"grimm.is/wlanctl/internal/lifecycle"
	"grimm.is/wlanctl/internal/logging"
	"grimm.is/wlanctl/internal/metrics"
	"grimm.is/wlanctl/internal/monitor"
	"grimm.is/wlanctl/internal/network"
	"grimm.is/wlanctl/internal/props"
	"grimm.is/wlanctl/internal/supplicant"
	"grimm.is/wlanctl/internal/validation"
)

// CloseWaitPolls and CloseWaitInterval bound the wait for the daemon to
// report "stopped" after the connection is closed.
const (
	CloseWaitPolls    = 50
	CloseWaitInterval = 100 * time.Millisecond
)

var ErrNoDriver = errors.New("no driver configured")

// DriverControl is the subset of driver.Driver the manager uses.
type DriverControl interface {
	Loaded() bool
	Load() error
	Unload() error
	FirmwarePath(role string) (string, error)
	ChangeFirmwarePath(role string) error
}

// LeaseRequester obtains a DHCP lease on an interface.
type LeaseRequester interface {
	Request(ctx context.Context, iface string) (*network.LeaseInfo, error)
	LastError() string
}

// Deps are the collaborators of a Manager. Props, Status and Controller are
// required.
type Deps struct {
	Props      props.Store
	Status     props.StatusReader
	Controller lifecycle.Controller
	Driver     DriverControl
	DHCP       LeaseRequester
	Hub        *events.Hub
	Clock      clock.Clock
	Logger     *logging.Logger
}

// Status is a snapshot of the manager.
type Status struct {
	Platform     string            `json:"platform"`
	Mode         string            `json:"mode"`
	Interface    string            `json:"interface"`
	Connected    bool              `json:"connected"`
	Session      string            `json:"session,omitempty"`
	SessionState string            `json:"session_state,omitempty"`
	Monitor      bool              `json:"monitor"`
	Events       uint64            `json:"events"`
	Daemons      map[string]string `json:"daemons"`
	DriverLoaded bool              `json:"driver_loaded"`
	DHCPError    string            `json:"dhcp_error,omitempty"`
}

// Manager is safe for concurrent use.
type Manager struct {
	cfg     *config.Config
	props   props.Store
	status  props.StatusReader
	ctl     lifecycle.Controller
	driver  DriverControl
	dhcp    LeaseRequester
	hub     *events.Hub
	clock   clock.Clock
	logger  *logging.Logger
	metrics *metrics.Registry

	mu      sync.Mutex
	mode    lifecycle.Role
	session *supplicant.Session
	monitor *monitor.Service
}

// NewManager creates a manager in station mode.
func NewManager(cfg *config.Config, deps Deps) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("wifi: nil config")
	}
	if deps.Props == nil || deps.Status == nil || deps.Controller == nil {
		return nil, errors.New("wifi: props, status and controller are required")
	}
	if deps.Clock == nil {
		deps.Clock = &clock.RealClock{}
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	return &Manager{
		cfg:     cfg,
		props:   deps.Props,
		status:  deps.Status,
		ctl:     deps.Controller,
		driver:  deps.Driver,
		dhcp:    deps.DHCP,
		hub:     deps.Hub,
		clock:   deps.Clock,
		logger:  deps.Logger.WithComponent("wifi"),
		metrics: metrics.Get(),
		mode:    lifecycle.RoleStation,
	}, nil
}

// SetMode selects the role used for interface selection and the
// connection's status key.
func (m *Manager) SetMode(role lifecycle.Role) error {
	if _, ok := m.cfg.Role(string(role)); !ok {
		return fmt.Errorf("%w: %s", lifecycle.ErrUnknownRole, role)
	}
	m.mu.Lock()
	m.mode = role
	m.mu.Unlock()
	m.logger.Debug("mode set", "role", role)
	return nil
}

func (m *Manager) Mode() lifecycle.Role {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// PrimaryInterface returns the interface for role: the role's interface
// property when set, else the configured interface, else the test interface.
// A property value that is not a valid interface name is ignored.
func (m *Manager) PrimaryInterface(role lifecycle.Role) string {
	rc, ok := m.cfg.Role(string(role))
	if !ok {
		return m.cfg.TestInterface
	}
	if rc.InterfaceProperty != "" {
		if v, _, ok := m.props.Get(rc.InterfaceProperty); ok && v != "" {
			err := validation.ValidateInterfaceName(v)
			if err == nil {
				return v
			}
			m.logger.Warn("ignoring invalid interface property",
				"property", rc.InterfaceProperty, "error", err)
		}
	}
	if rc.Interface != "" {
		return rc.Interface
	}
	return m.cfg.TestInterface
}

// StartSupplicant switches to role and starts its daemon.
func (m *Manager) StartSupplicant(ctx context.Context, role lifecycle.Role) error {
	if err := m.SetMode(role); err != nil {
		return err
	}
	err := m.ctl.Start(ctx, role)
	m.emitLifecycle(role, "start", err)
	return err
}

// StopSupplicant stops role's daemon. An open connection is left alone.
func (m *Manager) StopSupplicant(ctx context.Context, role lifecycle.Role) error {
	err := m.ctl.Stop(ctx, role)
	m.emitLifecycle(role, "stop", err)
	return err
}

func (m *Manager) emitLifecycle(role lifecycle.Role, op string, err error) {
	if err != nil {
		m.logger.Warn("daemon "+op+" failed", "role", role, "error", err)
	}
	if m.hub != nil {
		m.hub.EmitLifecycle(string(role), op, err)
	}
}

// Connect opens a session to the current mode's daemon and starts pumping
// its events into the hub. An existing open session is reused.
func (m *Manager) Connect(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil && !m.session.Closed() {
		return m.session.ID(), nil
	}

	rc, _ := m.cfg.Role(string(m.mode))
	iface := m.PrimaryInterface(m.mode)
	s, err := supplicant.Connect(ctx, iface, supplicant.Options{
		SocketDir:      m.cfg.SocketDir,
		AbstractPrefix: m.cfg.AbstractPrefix,
		ClientDir:      m.cfg.ClientDir,
		CommandTimeout: m.cfg.CommandTimeoutDuration(),
		Status:         m.status,
		StatusKey:      rc.StatusKey,
		Logger:         m.logger,
	})
	if err != nil {
		return "", err
	}

	mon := monitor.New(m.hub, s, m.logger)
	mon.OnTerminal = func(ev string) { m.drop(s, ev) }
	if err := mon.Start(ctx); err != nil {
		s.Close()
		return "", err
	}

	m.session = s
	m.monitor = mon
	m.logger.Info("connected", "iface", iface, "session", s.ID())
	return s.ID(), nil
}

// drop forgets s after its event stream ended on its own.
func (m *Manager) drop(s *supplicant.Session, ev string) {
	m.mu.Lock()
	if m.session == s {
		m.session = nil
		m.monitor = nil
	}
	m.mu.Unlock()
	m.logger.Info("event stream ended, closing session", "session", s.ID(), "event", ev)
	s.Close()
}

// Disconnect stops the event monitor and closes the session. It is a no-op
// without a session.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	s, mon := m.session, m.monitor
	m.session, m.monitor = nil, nil
	m.mu.Unlock()

	if s == nil {
		return nil
	}
	var stopErr error
	if mon != nil {
		stopErr = mon.Stop(ctx)
	}
	if err := s.Close(); err != nil {
		return err
	}
	return stopErr
}

// CloseSupplicantConnection disconnects, then waits up to five seconds for
// the current mode's daemon to report "stopped". Not seeing it stop is not
// an error.
func (m *Manager) CloseSupplicantConnection(ctx context.Context) error {
	if err := m.Disconnect(ctx); err != nil {
		return err
	}

	rc, _ := m.cfg.Role(string(m.Mode()))
	for range CloseWaitPolls {
		if v, _, ok := m.status.Get(rc.StatusKey); ok && v == props.StatusStopped {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		m.clock.Sleep(CloseWaitInterval)
	}
	m.logger.Debug("daemon still not stopped after close", "key", rc.StatusKey)
	return nil
}

// Command sends cmd on the open session and returns the reply.
func (m *Manager) Command(cmd string) (string, error) {
	m.mu.Lock()
	s := m.session
	m.mu.Unlock()
	if s == nil {
		return "", supplicant.ErrNotConnected
	}
	return s.Request(cmd)
}

func (m *Manager) LoadDriver() error {
	if m.driver == nil {
		return ErrNoDriver
	}
	err := m.driver.Load()
	m.emitDriver(err)
	return err
}

func (m *Manager) UnloadDriver() error {
	if m.driver == nil {
		return ErrNoDriver
	}
	err := m.driver.Unload()
	m.emitDriver(err)
	return err
}

func (m *Manager) emitDriver(err error) {
	if m.hub != nil {
		m.hub.EmitDriver(m.driver.Loaded(), err)
	}
}

// DriverLoaded reports false when no driver is configured.
func (m *Manager) DriverLoaded() bool {
	return m.driver != nil && m.driver.Loaded()
}

// ChangeFirmwarePath points the driver at role's firmware image.
func (m *Manager) ChangeFirmwarePath(role lifecycle.Role) error {
	if m.driver == nil {
		return ErrNoDriver
	}
	return m.driver.ChangeFirmwarePath(string(role))
}

// FirmwarePath returns role's configured firmware image.
func (m *Manager) FirmwarePath(role lifecycle.Role) (string, error) {
	if m.driver == nil {
		return "", ErrNoDriver
	}
	return m.driver.FirmwarePath(string(role))
}

// DHCPRequest obtains a lease on the current mode's primary interface.
func (m *Manager) DHCPRequest(ctx context.Context) (*network.LeaseInfo, error) {
	if m.dhcp == nil {
		return nil, errors.New("dhcp client not configured")
	}
	iface := m.PrimaryInterface(m.Mode())
	info, err := m.dhcp.Request(ctx, iface)

	result := metrics.ResultOK
	var ip, gw string
	if err != nil {
		result = metrics.ResultFail
	} else {
		ip, gw = ipString(info.IPAddress), ipString(info.Gateway)
	}
	m.metrics.DHCPRequests.WithLabelValues(result).Inc()
	if m.hub != nil {
		m.hub.EmitDHCP(iface, ip, gw, err)
	}
	return info, err
}

// DHCPError returns the text of the last DHCP failure.
func (m *Manager) DHCPError() string {
	if m.dhcp == nil {
		return ""
	}
	return m.dhcp.LastError()
}

// Status returns a snapshot of the manager and every role's daemon status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	mode, s, mon := m.mode, m.session, m.monitor
	m.mu.Unlock()

	st := Status{
		Platform:     m.ctl.Variant(),
		Mode:         string(mode),
		Interface:    m.PrimaryInterface(mode),
		Daemons:      make(map[string]string, len(m.cfg.Roles)),
		DriverLoaded: m.DriverLoaded(),
		DHCPError:    m.DHCPError(),
	}
	if s != nil {
		st.Connected = !s.Closed()
		st.Session = s.ID()
		st.SessionState = s.State().String()
	}
	if mon != nil {
		st.Monitor = mon.Status().Running
		st.Events = mon.Count()
	}
	for _, rc := range m.cfg.Roles {
		v, err := m.ctl.Status(lifecycle.Role(rc.Name))
		if err != nil {
			v = "unknown"
		}
		st.Daemons[rc.Name] = v
	}
	return st
}

// Close disconnects without waiting for the daemon.
func (m *Manager) Close(ctx context.Context) error {
	return m.Disconnect(ctx)
}

func ipString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}
