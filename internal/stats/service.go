package stats

import (
	"context"
	"sync"

	"grimm.is/wlanctl/internal/config"
	"grimm.is/wlanctl/internal/events"
	"grimm.is/wlanctl/internal/logging"
	"grimm.is/wlanctl/internal/services"
)

// Service counts hub events and samples their rates.
type Service struct {
	counter *EventCounter
	rates   *Collector

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

var _ services.Service = (*Service)(nil)

// NewService returns an event-rate service for hub.
func NewService(hub *events.Hub, logger *logging.Logger, opts ...CollectorOption) *Service {
	counter := NewEventCounter(hub)
	if logger != nil {
		opts = append([]CollectorOption{WithLogger(logger.WithComponent("stats"))}, opts...)
	}
	return &Service{
		counter: counter,
		rates:   NewCollector(counter, DefaultInterval, opts...),
	}
}

// Rates returns the collector serving the rate windows.
func (s *Service) Rates() *Collector { return s.rates }

func (s *Service) Name() string { return "event-rates" }

func (s *Service) Reload(*config.Config) (bool, error) { return false, nil }

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	go func() {
		defer close(done)
		s.counter.Run(ctx)
	}()
	s.rates.Start()
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	s.rates.Stop()
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) Status() services.ServiceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return services.ServiceStatus{Name: s.Name(), Running: s.cancel != nil}
}
