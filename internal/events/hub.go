package events

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultSubscriberBuffer is used when Subscribe is given a size <= 0.
const DefaultSubscriberBuffer = 256

// Hub fans events out to subscribers without ever blocking the publisher:
// an event that does not fit in a subscriber's buffer is dropped for that
// subscriber and counted.
type Hub struct {
	mu   sync.RWMutex
	subs []*subscriber

	published atomic.Uint64
	dropped   atomic.Uint64
}

type subscriber struct {
	ch    chan Event
	types []EventType // empty means every type
}

func (s *subscriber) wants(t EventType) bool {
	return len(s.types) == 0 || slices.Contains(s.types, t)
}

func NewHub() *Hub {
	return &Hub{}
}

// Publish delivers e to every interested subscriber. A zero timestamp is set
// to now.
func (h *Hub) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	h.published.Add(1)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if !s.wants(e.Type) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribe returns a buffered channel receiving the given event types, or
// all events when none are given. Callers must drain it and hand it back to
// Unsubscribe when done.
func (h *Hub) Subscribe(bufSize int, types ...EventType) <-chan Event {
	if bufSize <= 0 {
		bufSize = DefaultSubscriberBuffer
	}
	s := &subscriber{ch: make(chan Event, bufSize), types: slices.Clone(types)}

	h.mu.Lock()
	h.subs = append(h.subs, s)
	h.mu.Unlock()
	return s.ch
}

// Unsubscribe stops delivery to ch. The channel is not closed.
func (h *Hub) Unsubscribe(ch <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs = slices.DeleteFunc(h.subs, func(s *subscriber) bool {
		return (<-chan Event)(s.ch) == ch
	})
}

// Stats returns the number of events published and per-subscriber drops.
func (h *Hub) Stats() (published, dropped uint64) {
	return h.published.Load(), h.dropped.Load()
}

// EmitWifiEvent publishes a canonical supplicant event. Terminal events are
// published as EventTerminating.
func (h *Hub) EmitWifiEvent(iface, session, name, line string, terminal bool) {
	t := EventWifi
	if terminal {
		t = EventTerminating
	}
	h.Publish(Event{
		Type:   t,
		Source: "monitor",
		Data:   WifiEventData{Iface: iface, Session: session, Name: name, Line: line},
	})
}

// EmitLifecycle publishes the outcome of a daemon or session operation.
func (h *Hub) EmitLifecycle(role, op string, err error) {
	d := LifecycleData{Role: role, Op: op, OK: err == nil}
	if err != nil {
		d.Error = err.Error()
	}
	h.Publish(Event{Type: EventLifecycle, Source: "lifecycle", Data: d})
}

// EmitDriver publishes a driver state change.
func (h *Hub) EmitDriver(loaded bool, err error) {
	d := DriverData{Loaded: loaded}
	if err != nil {
		d.Error = err.Error()
	}
	h.Publish(Event{Type: EventDriver, Source: "driver", Data: d})
}

// EmitDHCP publishes a DHCP result.
func (h *Hub) EmitDHCP(iface, ip, gateway string, err error) {
	d := DHCPData{Iface: iface, IPAddress: ip, Gateway: gateway}
	if err != nil {
		d.Error = err.Error()
	}
	h.Publish(Event{Type: EventDHCP, Source: "dhcp", Data: d})
}
