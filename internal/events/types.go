// Package events provides the in-process pub/sub bus for wlanctl.
// Supplicant events, daemon lifecycle changes and property writes all flow
// through this hub to the API's websocket stream and the event journal.
package events

import "time"

// EventType identifies the category of event.
type EventType string

const (
	// Supplicant events
	EventWifi        EventType = "wifi.event"
	EventTerminating EventType = "wifi.terminating"

	// Daemon and driver control
	EventLifecycle EventType = "wifi.lifecycle"
	EventDriver    EventType = "wifi.driver"
	EventDHCP      EventType = "wifi.dhcp"

	// Property store
	EventPropChanged EventType = "prop.changed"
)

// Event is the core message passed through the event bus.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // "monitor", "lifecycle", "props", ...
	Data      any       `json:"data"`
}

// WifiEventData is the payload for EventWifi/EventTerminating.
type WifiEventData struct {
	Iface   string `json:"iface"`
	Session string `json:"session,omitempty"`
	Name    string `json:"name"`
	Line    string `json:"line"` // canonical event line
}

// LifecycleData is the payload for EventLifecycle.
type LifecycleData struct {
	Role  string `json:"role"`
	Op    string `json:"op"` // "start", "stop", "connect", "disconnect"
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// DriverData is the payload for EventDriver.
type DriverData struct {
	Loaded bool   `json:"loaded"`
	Error  string `json:"error,omitempty"`
}

// DHCPData is the payload for EventDHCP.
type DHCPData struct {
	Iface     string `json:"iface"`
	IPAddress string `json:"ip_address,omitempty"`
	Gateway   string `json:"gateway,omitempty"`
	Error     string `json:"error,omitempty"`
}

// PropChangedData is the payload for EventPropChanged.
type PropChangedData struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Serial uint64 `json:"serial"`
}
