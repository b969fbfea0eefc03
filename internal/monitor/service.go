// Package monitor pumps a supplicant session's event stream into the event hub.
package monitor

import (
	"context"
	"errors"
	"sync"

	"grimm.is/wlanctl/internal/config"
	"grimm.is/wlanctl/internal/events"
	"grimm.is/wlanctl/internal/logging"
	"grimm.is/wlanctl/internal/metrics"
	"grimm.is/wlanctl/internal/services"
	"grimm.is/wlanctl/internal/supplicant"
)

// ErrStopped is returned when starting a monitor whose session was already
// cancelled by Stop.
var ErrStopped = errors.New("monitor: session event stream was cancelled")

// Service reads events from one session until a terminal event arrives or
// the service is stopped.
type Service struct {
	hub     *events.Hub
	session *supplicant.Session
	logger  *logging.Logger

	// OnTerminal, when set, is called from the loop with the terminal event
	// that ended it. It is not called when Stop ended the loop.
	OnTerminal func(ev string)

	mu       sync.Mutex
	running  bool
	stopping bool
	done     chan struct{}
	count    uint64
	lastErr  string
}

var _ services.Service = (*Service)(nil)

// New returns a monitor for session. A nil logger uses the default one.
func New(hub *events.Hub, session *supplicant.Session, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		hub:     hub,
		session: session,
		logger: logger.WithComponent("monitor").WithFields(map[string]any{
			"iface":   session.Iface(),
			"session": session.ID(),
		}),
	}
}

func (s *Service) Name() string { return "event-monitor" }

// Reload is a no-op; the monitor is bound to its session.
func (s *Service) Reload(*config.Config) (bool, error) { return false, nil }

// Start launches the read loop. Starting a running monitor is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if s.stopping {
		return ErrStopped
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.running = true
	s.lastErr = ""
	s.done = make(chan struct{})
	go s.loop(s.done)
	return nil
}

func (s *Service) loop(done chan struct{}) {
	reg := metrics.Get()
	reg.EventLoopActive.Inc()
	defer reg.EventLoopActive.Dec()
	defer close(done)

	s.logger.Info("event loop started")
	iface, id := s.session.Iface(), s.session.ID()

	var last string
	for ev := range s.session.Events() {
		last = ev
		terminal := supplicant.IsTerminal(ev)
		if s.hub != nil {
			s.hub.EmitWifiEvent(iface, id, supplicant.EventName(ev), ev, terminal)
		}
		s.mu.Lock()
		s.count++
		s.mu.Unlock()
	}

	s.mu.Lock()
	stopping := s.stopping
	s.running = false
	if !stopping && supplicant.IsTerminal(last) {
		s.lastErr = last
	}
	s.mu.Unlock()

	s.logger.Info("event loop ended", "last", last, "stopped", stopping)
	if !stopping && s.OnTerminal != nil {
		s.OnTerminal(last)
	}
}

// Stop wakes the read loop and waits for it to exit or for ctx to end.
// The session stays open.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	done := s.done
	s.mu.Unlock()

	s.session.Cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the current loop exits. It is nil before Start.
func (s *Service) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Count returns the number of events delivered so far.
func (s *Service) Count() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *Service) Status() services.ServiceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return services.ServiceStatus{
		Name:    s.Name(),
		Running: s.running,
		Error:   s.lastErr,
	}
}
