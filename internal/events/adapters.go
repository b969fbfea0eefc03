package events

import (
	"context"

	"grimm.is/wlanctl/internal/props"
)

// PropsAdapter republishes property store writes as EventPropChanged.
type PropsAdapter struct {
	hub   *Hub
	store props.Store
	done  chan struct{}
}

// NewPropsAdapter creates a new property adapter.
func NewPropsAdapter(hub *Hub, store props.Store) *PropsAdapter {
	return &PropsAdapter{hub: hub, store: store, done: make(chan struct{})}
}

// Start forwards changes until ctx is cancelled or the store closes.
func (a *PropsAdapter) Start(ctx context.Context) {
	changes := a.store.Subscribe(ctx)
	go func() {
		defer close(a.done)
		for c := range changes {
			a.hub.Publish(Event{
				Type:   EventPropChanged,
				Source: "props",
				Data:   PropChangedData{Key: c.Key, Value: c.Value, Serial: c.Serial},
			})
		}
	}()
}

// Done is closed once forwarding has stopped.
func (a *PropsAdapter) Done() <-chan struct{} {
	return a.done
}

// WSBridge forwards events to the WebSocket manager.
// It subscribes to the Hub and translates events to WS topics.
type WSBridge struct {
	hub       *Hub
	publisher func(topic string, data any) // WSManager.Publish
	stop      chan struct{}
}

// NewWSBridge creates a bridge from the Hub to WebSocket clients.
func NewWSBridge(hub *Hub, wsPublish func(topic string, data any)) *WSBridge {
	return &WSBridge{
		hub:       hub,
		publisher: wsPublish,
		stop:      make(chan struct{}),
	}
}

// Start begins forwarding events to WebSocket clients.
func (b *WSBridge) Start() {
	events := b.hub.Subscribe(256)

	go func() {
		defer b.hub.Unsubscribe(events)
		for {
			select {
			case <-b.stop:
				return
			case e := <-events:
				if topic := EventTypeToTopic(e.Type); topic != "" {
					b.publisher(topic, e)
				}
			}
		}
	}()
}

// Stop stops the bridge.
func (b *WSBridge) Stop() {
	close(b.stop)
}

// EventTypeToTopic maps event types to WebSocket topic names.
func EventTypeToTopic(t EventType) string {
	switch t {
	case EventWifi, EventTerminating:
		return "events"
	case EventLifecycle, EventDriver, EventDHCP:
		return "status"
	case EventPropChanged:
		return "props"
	default:
		return ""
	}
}
