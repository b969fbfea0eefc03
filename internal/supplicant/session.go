// Package supplicant owns the control session to a running supplicant: the
// command connection, the attached monitor connection and the cancellation
// pair that interrupts a blocked event wait.
package supplicant

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"grimm.is/wlanctl/internal/logging"
	"grimm.is/wlanctl/internal/metrics"
	"grimm.is/wlanctl/internal/props"
	"grimm.is/wlanctl/internal/wpactrl"
)

// DefaultCommandTimeout bounds one command exchange.
const DefaultCommandTimeout = 10 * time.Second

// DefaultAbstractPrefix names the abstract socket when the socket
// directory is missing.
const DefaultAbstractPrefix = "@android:wpa_"

// State is the event reader state of a session.
type State int

const (
	StateIdle State = iota
	StateWaiting
	StateDelivered
	StateCancelled
	StateError
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateDelivered:
		return "delivered"
	case StateCancelled:
		return "cancelled"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Options configures Connect.
type Options struct {
	// SocketDir is checked at connect time; if it exists the endpoint is
	// <SocketDir>/<iface>, otherwise <AbstractPrefix><iface>.
	SocketDir      string
	AbstractPrefix string
	// ClientDir holds the local client sockets.
	ClientDir      string
	CommandTimeout time.Duration

	// Status and StatusKey gate Connect on the daemon reporting running.
	// A nil Status skips the check.
	Status    props.StatusReader
	StatusKey string

	Logger *logging.Logger
}

func (o Options) withDefaults() Options {
	if o.AbstractPrefix == "" {
		o.AbstractPrefix = DefaultAbstractPrefix
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = DefaultCommandTimeout
	}
	if o.Logger == nil {
		o.Logger = logging.WithComponent("supplicant")
	}
	return o
}

// ResolveEndpoint returns the control socket address for iface.
// The directory is checked on every call, never cached.
func ResolveEndpoint(socketDir, abstractPrefix, iface string) string {
	if socketDir != "" {
		if _, err := os.Stat(socketDir); err == nil {
			return filepath.Join(socketDir, iface)
		}
	}
	if abstractPrefix == "" {
		abstractPrefix = DefaultAbstractPrefix
	}
	return abstractPrefix + iface
}

// Session is an open control session to one interface.
//
// One goroutine may issue commands and one may read events at a time.
// Commands are additionally serialized internally. Close may be called from
// any goroutine, including while another is blocked in Next.
type Session struct {
	id       string
	iface    string
	endpoint string
	timeout  time.Duration
	logger   *logging.Logger
	metrics  *metrics.Registry

	ctrl    *wpactrl.Conn
	monitor *wpactrl.Conn
	// cancel[0] is written to interrupt, cancel[1] is polled by Next.
	cancel [2]int

	cmdMu sync.Mutex

	mu         sync.Mutex
	state      State
	closed     bool
	readerDone chan struct{}
}

// Connect opens the command and monitor connections to iface's supplicant,
// attaches the monitor and allocates the cancellation pair. On failure
// everything opened so far is closed and a *ConnectError is returned.
func Connect(ctx context.Context, iface string, opts Options) (*Session, error) {
	opts = opts.withDefaults()
	reg := metrics.Get()

	fail := func(stage, path string, err error) (*Session, error) {
		reg.ConnectsTotal.WithLabelValues(iface, metrics.ResultFail).Inc()
		opts.Logger.Warn("connect failed", "iface", iface, "stage", stage, "path", path, "error", err)
		return nil, &ConnectError{Stage: stage, Path: path, Err: err}
	}

	if opts.Status != nil {
		v, _, ok := opts.Status.Get(opts.StatusKey)
		if !ok || v != props.StatusRunning {
			return fail(StageStatus, "", ErrNotRunning)
		}
	}
	if err := ctx.Err(); err != nil {
		return fail(StageOpen, "", err)
	}

	path := ResolveEndpoint(opts.SocketDir, opts.AbstractPrefix, iface)
	copts := wpactrl.Options{ClientDir: opts.ClientDir}

	ctrl, err := wpactrl.Open(path, copts)
	if err != nil {
		return fail(StageOpen, path, err)
	}
	monitor, err := wpactrl.Open(path, copts)
	if err != nil {
		ctrl.Close()
		return fail(StageMonitor, path, err)
	}
	if err := monitor.Attach(opts.CommandTimeout); err != nil {
		monitor.Close()
		ctrl.Close()
		return fail(StageAttach, path, err)
	}

	pair, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		monitor.Close()
		ctrl.Close()
		return fail(StageSocketpair, path, err)
	}
	// A full buffer must never block a writer; one pending byte is enough.
	unix.SetNonblock(pair[0], true)

	id := uuid.NewString()
	s := &Session{
		id:       id,
		iface:    iface,
		endpoint: path,
		timeout:  opts.CommandTimeout,
		logger:   opts.Logger.WithFields(map[string]any{"session": id, "iface": iface}),
		metrics:  reg,
		ctrl:     ctrl,
		monitor:  monitor,
		cancel:   pair,
		state:    StateIdle,
	}
	reg.ConnectsTotal.WithLabelValues(iface, metrics.ResultOK).Inc()
	reg.SessionsActive.Inc()
	s.logger.Info("connected to supplicant", "path", path)
	return s, nil
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// Iface returns the interface the session is bound to.
func (s *Session) Iface() string {
	return s.iface
}

// Endpoint returns the resolved control socket address.
func (s *Session) Endpoint() string {
	return s.endpoint
}

// State returns the event reader state.
func (s *Session) State() State {
	if s == nil {
		return StateClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// interrupt wakes a reader parked in Next. The byte is left unread so every
// later wait also returns at once.
func (s *Session) interrupt() {
	for {
		_, err := unix.Write(s.cancel[0], []byte{'T'})
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil && !errors.Is(err, unix.EAGAIN) {
			s.logger.Debug("cancellation write failed", "error", err)
		}
		break
	}
	s.metrics.Cancellations.Inc()
}

// Cancel wakes a reader blocked in Next without closing the session.
// The event stream stays cancelled; commands keep working.
func (s *Session) Cancel() {
	if s == nil {
		return
	}
	// Close marks the session closed under mu before releasing any
	// descriptor, so holding mu keeps cancel[0] valid for the write.
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed && s.ctrl != nil {
		s.interrupt()
	}
}

// Close releases both connections and the cancellation pair. A reader
// blocked in Next is woken and has returned before any descriptor is
// closed; an in-flight command is allowed to finish. Closing twice, or
// closing a nil session, is a no-op.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	readerDone := s.readerDone
	s.mu.Unlock()

	s.interrupt()
	if readerDone != nil {
		<-readerDone
	}

	s.cmdMu.Lock()
	err := s.ctrl.Close()
	s.cmdMu.Unlock()

	if merr := s.monitor.Close(); err == nil {
		err = merr
	}
	unix.Close(s.cancel[0])
	unix.Close(s.cancel[1])

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()

	s.metrics.SessionsActive.Dec()
	s.logger.Info("session closed")
	return err
}
