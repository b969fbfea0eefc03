package ctlplane

import (
	"grimm.is/wlanctl/internal/network"
	"grimm.is/wlanctl/internal/wifi"
)

// ControlPlaneClient defines the interface for communicating with the control plane.
// This interface enables mocking in unit tests.
type ControlPlaneClient interface {
	Close() error

	// --- Daemon lifecycle ---
	StartSupplicant(role string) error
	StopSupplicant(role string) error

	// --- Session ---
	Connect() (string, error)
	Disconnect(wait bool) error
	Command(cmd string) (string, error)
	Status() (*wifi.Status, error)

	// --- Driver & network ---
	LoadDriver() error
	UnloadDriver() error
	DHCPRequest() (*network.LeaseInfo, error)
}
