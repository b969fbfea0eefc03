package config

import (
	"time"

	"grimm.is/wlanctl/internal/brand"
)

// DefaultCommandTimeout bounds a single control-socket request.
const DefaultCommandTimeout = 10 * time.Second

// DefaultAPIRateLimit is requests per minute per API client.
const DefaultAPIRateLimit = 600

// Default directory layouts per platform.
const (
	GenericSocketDir = "/data/system/wpa_supplicant"
	VendorSocketDir  = "/data/misc/wpa_supplicant"
	VendorPowerPath  = "/dev/wmtWifi"
)

// Default returns a configuration with every field populated.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func defaultRoles() []RoleConfig {
	return []RoleConfig{
		{
			Name:              RoleStation,
			Daemon:            "wpa_supplicant",
			StatusKey:         "init.svc.wpa_supplicant",
			Interface:         "wlan0",
			InterfaceProperty: "wifi.interface",
		},
		{
			Name:              RoleP2P,
			Daemon:            "p2p_supplicant",
			StatusKey:         "init.svc.p2p_supplicant",
			Interface:         "p2p0",
			InterfaceProperty: "wifi.direct.interface",
		},
		{
			Name:              RoleAP,
			Daemon:            "ap_daemon",
			StatusKey:         "init.svc.ap_daemon",
			Interface:         "ap0",
			InterfaceProperty: "wifi.tethering.interface",
		},
	}
}

// applyDefaults fills every empty field. Role blocks present in the file are
// merged field by field over the built-in role of the same name.
func (c *Config) applyDefaults() {
	if c.Platform == "" {
		c.Platform = PlatformGeneric
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.SocketDir == "" {
		c.SocketDir = GenericSocketDir
		if c.Platform == PlatformVendor {
			c.SocketDir = VendorSocketDir
		}
	}
	if c.AbstractPrefix == "" {
		c.AbstractPrefix = "@android:wpa_"
	}
	if c.ClientDir == "" {
		c.ClientDir = "/tmp"
	}
	if c.CommandTimeout == "" {
		c.CommandTimeout = DefaultCommandTimeout.String()
	}
	if c.TestInterface == "" {
		c.TestInterface = "sta"
	}

	c.Roles = mergeRoles(defaultRoles(), c.Roles)

	if c.Supplicant == nil {
		c.Supplicant = &SupplicantConfig{}
	}
	s := c.Supplicant
	if s.Template == "" {
		s.Template = "/system/etc/wifi/wpa_supplicant.conf"
	}
	if s.Station == "" {
		s.Station = "/data/misc/wifi/wpa_supplicant.conf"
	}
	if s.P2P == "" {
		s.P2P = "/data/misc/wifi/p2p_supplicant.conf"
	}
	if s.CtrlInterface == "" {
		s.CtrlInterface = "/data/misc/wifi/sockets"
		if c.Platform == PlatformVendor {
			s.CtrlInterface = VendorSocketDir
		}
	}
	if s.Entropy == "" {
		s.Entropy = "/data/misc/wifi/entropy.bin"
	}
	if s.UID == 0 {
		s.UID = 1000
	}
	if s.GID == 0 {
		s.GID = 1010
	}

	if c.Properties == nil {
		c.Properties = &PropertiesConfig{}
	}
	if c.Properties.Backend == "" {
		c.Properties.Backend = BackendSQLite
	}
	if c.Properties.Path == "" {
		c.Properties.Path = brand.GetPropertyDBPath()
	}

	if c.Service == nil {
		c.Service = &ServiceConfig{}
	}
	if c.Service.Backend == "" {
		c.Service.Backend = BackendProperty
	}
	if c.Service.UnitSuffix == "" {
		c.Service.UnitSuffix = ".service"
	}

	if c.Driver == nil {
		c.Driver = &DriverConfig{}
	}
	if c.Driver.StatusKey == "" {
		c.Driver.StatusKey = "wlan.driver.status"
	}
	if c.Driver.FwPathParam == "" {
		c.Driver.FwPathParam = "/sys/module/wlan/parameters/fwpath"
	}
	if c.Driver.PowerPath == "" && c.Platform == PlatformVendor {
		c.Driver.PowerPath = VendorPowerPath
	}

	if c.API == nil {
		c.API = &APIConfig{Enabled: true}
	}
	if c.API.RateLimit == 0 {
		c.API.RateLimit = DefaultAPIRateLimit
	}
	if c.API.Listen == "" {
		c.API.Listen = "127.0.0.1:8090"
	}
}

func mergeRoles(base, overrides []RoleConfig) []RoleConfig {
	out := make([]RoleConfig, 0, len(base)+len(overrides))
	seen := make(map[string]bool)
	for _, b := range base {
		for _, o := range overrides {
			if o.Name != b.Name {
				continue
			}
			if o.Daemon != "" {
				b.Daemon = o.Daemon
			}
			if o.StatusKey != "" {
				b.StatusKey = o.StatusKey
			}
			if o.Interface != "" {
				b.Interface = o.Interface
			}
			if o.InterfaceProperty != "" {
				b.InterfaceProperty = o.InterfaceProperty
			}
		}
		seen[b.Name] = true
		out = append(out, b)
	}
	for _, o := range overrides {
		if !seen[o.Name] {
			seen[o.Name] = true
			out = append(out, o)
		}
	}
	return out
}
