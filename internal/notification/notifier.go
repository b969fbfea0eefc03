package notification

import (
	"context"
	"fmt"
	"sync"

	"grimm.is/wlanctl/internal/config"
	"grimm.is/wlanctl/internal/events"
	"grimm.is/wlanctl/internal/logging"
	"grimm.is/wlanctl/internal/services"
)

// Sender delivers a notification. *Dispatcher implements it.
type Sender interface {
	Send(ctx context.Context, n Notification) int
}

// Notifier turns hub events into operator alerts: a daemon terminating is
// critical, a failed lifecycle operation or driver error is a warning.
type Notifier struct {
	hub    *events.Hub
	sender Sender
	logger *logging.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

var _ services.Service = (*Notifier)(nil)

// NewNotifier creates a notifier. Start or Run drives it.
func NewNotifier(hub *events.Hub, sender Sender, logger *logging.Logger) *Notifier {
	if logger == nil {
		logger = logging.WithComponent("notification")
	}
	return &Notifier{hub: hub, sender: sender, logger: logger}
}

func (n *Notifier) Name() string { return "notifier" }

// Start runs the notifier in the background until Stop or ctx ends.
func (n *Notifier) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	n.cancel, n.done = cancel, done
	go func() {
		defer close(done)
		n.Run(ctx)
	}()
	return nil
}

// Stop ends the background loop and waits for it, bounded by ctx.
func (n *Notifier) Stop(ctx context.Context) error {
	n.mu.Lock()
	cancel, done := n.cancel, n.done
	n.cancel, n.done = nil, nil
	n.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reload swaps the channel list when the sender is a *Dispatcher.
func (n *Notifier) Reload(cfg *config.Config) (bool, error) {
	d, ok := n.sender.(*Dispatcher)
	if !ok {
		return false, nil
	}
	d.UpdateConfig(cfg.Notifications)
	return true, nil
}

func (n *Notifier) Status() services.ServiceStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	return services.ServiceStatus{Name: n.Name(), Running: n.cancel != nil}
}

// Run subscribes to the hub and sends alerts until ctx is done.
func (n *Notifier) Run(ctx context.Context) {
	ch := n.hub.Subscribe(64, events.EventTerminating, events.EventLifecycle, events.EventDriver)
	defer n.hub.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-ch:
			note, ok := Translate(e)
			if !ok {
				continue
			}
			n.logger.Debug("sending notification", "title", note.Title, "level", note.Level)
			n.sender.Send(ctx, note)
		}
	}
}

// Translate maps an event to a notification. ok is false for events that
// need no alert.
func Translate(e events.Event) (note Notification, ok bool) {
	switch d := e.Data.(type) {
	case events.WifiEventData:
		if e.Type != events.EventTerminating {
			return note, false
		}
		note = Notification{
			Title:   "Supplicant terminated",
			Message: fmt.Sprintf("The supplicant on %s closed its control interface.", d.Iface),
			Level:   LevelCritical,
			Data:    map[string]any{"iface": d.Iface, "session": d.Session},
		}
	case events.LifecycleData:
		if d.OK {
			return note, false
		}
		note = Notification{
			Title:   fmt.Sprintf("%s %s failed", d.Role, d.Op),
			Message: d.Error,
			Level:   LevelWarning,
			Data:    map[string]any{"role": d.Role, "op": d.Op},
		}
	case events.DriverData:
		if d.Error == "" {
			return note, false
		}
		note = Notification{
			Title:   "Radio driver error",
			Message: d.Error,
			Level:   LevelWarning,
			Data:    map[string]any{"loaded": d.Loaded},
		}
	default:
		return note, false
	}
	note.Timestamp = e.Timestamp
	return note, true
}
