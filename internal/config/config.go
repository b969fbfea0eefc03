package config

import (
	"fmt"
	"time"
)

// Platform variants select the lifecycle controller implementation.
const (
	PlatformGeneric = "generic"
	PlatformVendor  = "vendor"
)

// Property and service backends.
const (
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
	BackendProperty = "property"
	BackendSystemd  = "systemd"
)

// Role names as they appear in role blocks.
const (
	RoleStation = "station"
	RoleP2P     = "p2p"
	RoleAP      = "ap"
)

// Config is the top-level wlanctl configuration.
type Config struct {
	Platform       string `hcl:"platform,optional" json:"platform"`
	LogLevel       string `hcl:"log_level,optional" json:"log_level"`
	SocketDir      string `hcl:"socket_dir,optional" json:"socket_dir"`
	AbstractPrefix string `hcl:"abstract_prefix,optional" json:"abstract_prefix"`
	ClientDir      string `hcl:"client_socket_dir,optional" json:"client_socket_dir"`
	CommandTimeout string `hcl:"command_timeout,optional" json:"command_timeout"`
	TestInterface  string `hcl:"test_interface,optional" json:"test_interface"`

	Roles      []RoleConfig      `hcl:"role,block" json:"roles"`
	Supplicant *SupplicantConfig `hcl:"supplicant_config,block" json:"supplicant_config"`
	Properties *PropertiesConfig `hcl:"properties,block" json:"properties"`
	Service    *ServiceConfig    `hcl:"service,block" json:"service"`
	Driver     *DriverConfig     `hcl:"driver,block" json:"driver"`
	API        *APIConfig        `hcl:"api,block" json:"api"`

	Notifications *NotificationsConfig `hcl:"notifications,block" json:"notifications,omitempty"`
}

// RoleConfig describes one daemon role (station, p2p, ap).
type RoleConfig struct {
	Name string `hcl:"name,label" json:"name"`

	// Daemon is the service name handed to the service control primitive.
	Daemon string `hcl:"daemon,optional" json:"daemon"`
	// StatusKey is the property polled for "running"/"stopped".
	StatusKey string `hcl:"status_key,optional" json:"status_key"`
	// Interface is the fallback interface name when InterfaceProperty is unset.
	Interface string `hcl:"interface,optional" json:"interface"`
	// InterfaceProperty names the property that overrides Interface at runtime.
	InterfaceProperty string `hcl:"interface_property,optional" json:"interface_property"`
}

// SupplicantConfig controls config-file materialization before a start.
type SupplicantConfig struct {
	Template      string `hcl:"template,optional" json:"template"`
	Station       string `hcl:"station,optional" json:"station"`
	P2P           string `hcl:"p2p,optional" json:"p2p"`
	CtrlInterface string `hcl:"ctrl_interface,optional" json:"ctrl_interface"`
	Entropy       string `hcl:"entropy,optional" json:"entropy"`
	UID           int    `hcl:"uid,optional" json:"uid"`
	GID           int    `hcl:"gid,optional" json:"gid"`
}

// PropertiesConfig selects the property store backend.
type PropertiesConfig struct {
	Backend string `hcl:"backend,optional" json:"backend"`
	Path    string `hcl:"path,optional" json:"path"`
}

// ServiceConfig selects how start/stop is signalled.
type ServiceConfig struct {
	Backend    string `hcl:"backend,optional" json:"backend"`
	UnitSuffix string `hcl:"unit_suffix,optional" json:"unit_suffix"`
}

// DriverConfig holds radio driver settings.
type DriverConfig struct {
	Module      string `hcl:"module,optional" json:"module"`
	StatusKey   string `hcl:"status_key,optional" json:"status_key"`
	PowerPath   string `hcl:"power_path,optional" json:"power_path"`
	FwPathParam string `hcl:"fw_path_param,optional" json:"fw_path_param"`
	FwStation   string `hcl:"fw_station,optional" json:"fw_station"`
	FwAP        string `hcl:"fw_ap,optional" json:"fw_ap"`
	FwP2P       string `hcl:"fw_p2p,optional" json:"fw_p2p"`

	// WlanUp and WlanDown are argv run after a successful start and stop
	// on the vendor platform.
	WlanUp   []string `hcl:"wlan_up,optional" json:"wlan_up,omitempty"`
	WlanDown []string `hcl:"wlan_down,optional" json:"wlan_down,omitempty"`
}

// APIConfig configures the HTTP API (metrics, event stream).
type APIConfig struct {
	Enabled bool   `hcl:"enabled,optional" json:"enabled"`
	Listen  string `hcl:"listen,optional" json:"listen"`
	// RateLimit is requests per minute per client address; -1 disables it.
	RateLimit int `hcl:"rate_limit,optional" json:"rate_limit"`
}

// NotificationsConfig configures alerts for daemon failures.
type NotificationsConfig struct {
	Channels []NotificationChannel `hcl:"channel,block" json:"channels"`
}

// NotificationChannel defines a notification destination.
type NotificationChannel struct {
	Name    string `hcl:"name,label" json:"name"`
	Type    string `hcl:"type" json:"type"`            // webhook, slack, discord, ntfy
	Level   string `hcl:"level,optional" json:"level"` // critical, warning, info
	Enabled *bool  `hcl:"enabled,optional" json:"enabled,omitempty"`

	// Webhook/Slack/Discord settings
	WebhookURL string `hcl:"webhook_url,optional" json:"webhook_url,omitempty"`

	// ntfy settings
	Server string `hcl:"server,optional" json:"server,omitempty"`
	Topic  string `hcl:"topic,optional" json:"topic,omitempty"`

	Headers map[string]string `hcl:"headers,optional" json:"headers,omitempty"`
}

// IsEnabled reports whether the channel is on. Channels default to enabled.
func (c NotificationChannel) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Role returns the role block with the given name.
func (c *Config) Role(name string) (RoleConfig, bool) {
	for _, r := range c.Roles {
		if r.Name == name {
			return r, true
		}
	}
	return RoleConfig{}, false
}

// CommandTimeoutDuration returns the parsed command timeout.
func (c *Config) CommandTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.CommandTimeout)
	if err != nil || d <= 0 {
		return DefaultCommandTimeout
	}
	return d
}

// FirmwarePath returns the firmware image path configured for a role.
func (d *DriverConfig) FirmwarePath(role string) (string, error) {
	switch role {
	case RoleStation:
		return d.FwStation, nil
	case RoleAP:
		return d.FwAP, nil
	case RoleP2P:
		return d.FwP2P, nil
	}
	return "", fmt.Errorf("unknown role %q", role)
}
