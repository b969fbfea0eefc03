// Package services runs the long-lived background components of
// "wlanctl serve" under one start, stop and reload lifecycle.
package services

import (
	"context"

	"grimm.is/wlanctl/internal/config"
)

// ServiceStatus represents the current state of a service.
type ServiceStatus struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

// Service is a background component with an explicit lifecycle.
type Service interface {
	Name() string

	// Reload applies cfg after SIGHUP. It reports whether the service
	// changed its behaviour.
	Reload(cfg *config.Config) (bool, error)

	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Status() ServiceStatus
}
