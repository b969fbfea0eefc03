package stats

import (
	"context"
	"sync"

	"grimm.is/wlanctl/internal/events"
)

// Hub series names. Supplicant events are counted under "wifi.<NAME>".
const (
	SeriesPublished = "hub.published"
	SeriesDropped   = "hub.dropped"
)

// EventCounter counts supplicant events by name from the hub. It implements
// CounterFetcher.
type EventCounter struct {
	hub *events.Hub

	mu     sync.Mutex
	counts map[string]uint64
}

// NewEventCounter creates a counter. Run feeds it.
func NewEventCounter(hub *events.Hub) *EventCounter {
	return &EventCounter{hub: hub, counts: make(map[string]uint64)}
}

// Run counts events until ctx is done.
func (c *EventCounter) Run(ctx context.Context) {
	ch := c.hub.Subscribe(1024, events.EventWifi, events.EventTerminating)
	defer c.hub.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-ch:
			c.Observe(e)
		}
	}
}

// Observe counts one event.
func (c *EventCounter) Observe(e events.Event) {
	d, ok := e.Data.(events.WifiEventData)
	if !ok || d.Name == "" {
		return
	}
	c.mu.Lock()
	c.counts["wifi."+d.Name]++
	c.mu.Unlock()
}

// FetchCounters returns per-event counts plus the hub's publish and drop
// totals.
func (c *EventCounter) FetchCounters() (map[string]uint64, error) {
	c.mu.Lock()
	out := make(map[string]uint64, len(c.counts)+2)
	for k, v := range c.counts {
		out[k] = v
	}
	c.mu.Unlock()

	published, dropped := c.hub.Stats()
	out[SeriesPublished] = published
	out[SeriesDropped] = dropped
	return out, nil
}
