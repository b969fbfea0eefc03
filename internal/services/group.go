package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"grimm.is/wlanctl/internal/config"
	"grimm.is/wlanctl/internal/logging"
)

// Group starts services in registration order and stops them in reverse.
type Group struct {
	mu       sync.Mutex
	services []Service
	started  []Service
	logger   *logging.Logger
}

// NewGroup returns an empty group.
func NewGroup(logger *logging.Logger) *Group {
	if logger == nil {
		logger = logging.Default()
	}
	return &Group{logger: logger.WithComponent("services")}
}

// Add registers svc. Names must be unique.
func (g *Group) Add(svc Service) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, s := range g.services {
		if s.Name() == svc.Name() {
			return fmt.Errorf("service %q already registered", svc.Name())
		}
	}
	g.services = append(g.services, svc)
	return nil
}

// Start starts every registered service that is not running yet. On the
// first failure the services started by this call are stopped again.
func (g *Group) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var fresh []Service
	for _, svc := range g.services {
		if g.isStarted(svc) {
			continue
		}
		if err := svc.Start(ctx); err != nil {
			for i := len(fresh) - 1; i >= 0; i-- {
				fresh[i].Stop(ctx)
			}
			g.started = g.started[:len(g.started)-len(fresh)]
			return fmt.Errorf("start %s: %w", svc.Name(), err)
		}
		g.logger.Debug("service started", "service", svc.Name())
		fresh = append(fresh, svc)
		g.started = append(g.started, svc)
	}
	return nil
}

func (g *Group) isStarted(svc Service) bool {
	for _, s := range g.started {
		if s == svc {
			return true
		}
	}
	return false
}

// Stop stops the started services in reverse order and joins their errors.
func (g *Group) Stop(ctx context.Context) error {
	g.mu.Lock()
	started := g.started
	g.started = nil
	g.mu.Unlock()

	var errs []error
	for i := len(started) - 1; i >= 0; i-- {
		svc := started[i]
		if err := svc.Stop(ctx); err != nil {
			g.logger.Warn("service stop failed", "service", svc.Name(), "error", err)
			errs = append(errs, fmt.Errorf("stop %s: %w", svc.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Reload hands cfg to every service and returns the names of those that
// changed.
func (g *Group) Reload(cfg *config.Config) ([]string, error) {
	g.mu.Lock()
	svcs := append([]Service(nil), g.services...)
	g.mu.Unlock()

	var (
		changed []string
		errs    []error
	)
	for _, svc := range svcs {
		ok, err := svc.Reload(cfg)
		if err != nil {
			errs = append(errs, fmt.Errorf("reload %s: %w", svc.Name(), err))
			continue
		}
		if ok {
			changed = append(changed, svc.Name())
		}
	}
	return changed, errors.Join(errs...)
}

// Status returns the status of every registered service in registration
// order.
func (g *Group) Status() []ServiceStatus {
	g.mu.Lock()
	svcs := append([]Service(nil), g.services...)
	g.mu.Unlock()

	out := make([]ServiceStatus, 0, len(svcs))
	for _, svc := range svcs {
		out = append(out, svc.Status())
	}
	return out
}
