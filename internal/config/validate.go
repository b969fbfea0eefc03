package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"grimm.is/wlanctl/internal/logging"
	"grimm.is/wlanctl/internal/validation"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validate validates the entire configuration.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors

	switch c.Platform {
	case PlatformGeneric, PlatformVendor:
	default:
		errs = append(errs, ValidationError{Field: "platform", Message: fmt.Sprintf("unknown platform %q", c.Platform)})
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, ValidationError{Field: "log_level", Message: err.Error()})
	}

	if d, err := time.ParseDuration(c.CommandTimeout); err != nil || d <= 0 {
		errs = append(errs, ValidationError{Field: "command_timeout", Message: fmt.Sprintf("invalid duration %q", c.CommandTimeout)})
	}

	if c.AbstractPrefix != "" && !strings.HasPrefix(c.AbstractPrefix, "@") {
		errs = append(errs, ValidationError{Field: "abstract_prefix", Message: "must start with '@'"})
	}

	if c.TestInterface != "" {
		if err := validation.ValidateInterfaceName(c.TestInterface); err != nil {
			errs = append(errs, ValidationError{Field: "test_interface", Message: err.Error()})
		}
	}

	errs = append(errs, c.validateRoles()...)

	if s := c.Supplicant; s != nil {
		for _, f := range []struct{ field, path string }{
			{"supplicant_config.template", s.Template},
			{"supplicant_config.station", s.Station},
			{"supplicant_config.p2p", s.P2P},
			{"supplicant_config.entropy", s.Entropy},
		} {
			if err := validation.ValidateAbsPath(f.path); err != nil {
				errs = append(errs, ValidationError{Field: f.field, Message: err.Error()})
			}
		}
	}

	if d := c.Driver; d != nil {
		if d.StatusKey != "" {
			if err := validation.ValidatePropertyKey(d.StatusKey); err != nil {
				errs = append(errs, ValidationError{Field: "driver.status_key", Message: err.Error()})
			}
		}
		if d.PowerPath != "" {
			if err := validation.ValidateAbsPath(d.PowerPath); err != nil {
				errs = append(errs, ValidationError{Field: "driver.power_path", Message: err.Error()})
			}
		}
		if d.FwPathParam != "" {
			if err := validation.ValidateAbsPath(d.FwPathParam); err != nil {
				errs = append(errs, ValidationError{Field: "driver.fw_path_param", Message: err.Error()})
			}
		}
	}

	if c.Properties != nil {
		switch c.Properties.Backend {
		case BackendSQLite:
			if c.Properties.Path == "" {
				errs = append(errs, ValidationError{Field: "properties.path", Message: "required for sqlite backend"})
			}
		case BackendMemory:
		default:
			errs = append(errs, ValidationError{Field: "properties.backend", Message: fmt.Sprintf("unknown backend %q", c.Properties.Backend)})
		}
	}

	if c.Service != nil {
		switch c.Service.Backend {
		case BackendProperty, BackendSystemd:
		default:
			errs = append(errs, ValidationError{Field: "service.backend", Message: fmt.Sprintf("unknown backend %q", c.Service.Backend)})
		}
	}

	if c.API != nil && c.API.Enabled {
		if _, _, err := net.SplitHostPort(c.API.Listen); err != nil {
			errs = append(errs, ValidationError{Field: "api.listen", Message: err.Error()})
		}
		if c.API.RateLimit < -1 {
			errs = append(errs, ValidationError{Field: "api.rate_limit", Message: "must be positive, or -1 to disable"})
		}
	}

	if c.Notifications != nil {
		errs = append(errs, c.validateNotifications()...)
	}

	return errs
}

func (c *Config) validateNotifications() ValidationErrors {
	var errs ValidationErrors
	seen := make(map[string]bool)
	for _, ch := range c.Notifications.Channels {
		field := "notifications.channel." + ch.Name
		if seen[ch.Name] {
			errs = append(errs, ValidationError{Field: field, Message: "duplicate channel"})
		}
		seen[ch.Name] = true

		switch ch.Level {
		case "", "info", "warning", "critical":
		default:
			errs = append(errs, ValidationError{Field: field + ".level", Message: fmt.Sprintf("unknown level %q", ch.Level)})
		}

		switch strings.ToLower(ch.Type) {
		case "webhook", "slack", "discord":
			if err := validateURL(ch.WebhookURL); err != nil {
				errs = append(errs, ValidationError{Field: field + ".webhook_url", Message: err.Error()})
			}
		case "ntfy":
			if ch.Topic == "" {
				errs = append(errs, ValidationError{Field: field + ".topic", Message: "required"})
			}
			if ch.Server != "" {
				if err := validateURL(ch.Server); err != nil {
					errs = append(errs, ValidationError{Field: field + ".server", Message: err.Error()})
				}
			}
		default:
			errs = append(errs, ValidationError{Field: field + ".type", Message: fmt.Sprintf("unknown channel type %q", ch.Type)})
		}
	}
	return errs
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("must be an http(s) URL")
	}
	return nil
}

func (c *Config) validateRoles() ValidationErrors {
	var errs ValidationErrors
	seen := make(map[string]bool)
	for _, r := range c.Roles {
		field := "role." + r.Name
		switch r.Name {
		case RoleStation, RoleP2P, RoleAP:
		default:
			errs = append(errs, ValidationError{Field: field, Message: "role must be station, p2p or ap"})
			continue
		}
		if seen[r.Name] {
			errs = append(errs, ValidationError{Field: field, Message: "duplicate role"})
		}
		seen[r.Name] = true
		if r.Daemon == "" {
			errs = append(errs, ValidationError{Field: field + ".daemon", Message: "required"})
		} else if err := validation.ValidateServiceName(r.Daemon); err != nil {
			errs = append(errs, ValidationError{Field: field + ".daemon", Message: err.Error()})
		}
		if r.StatusKey == "" {
			errs = append(errs, ValidationError{Field: field + ".status_key", Message: "required"})
		} else if err := validation.ValidatePropertyKey(r.StatusKey); err != nil {
			errs = append(errs, ValidationError{Field: field + ".status_key", Message: err.Error()})
		}
		if r.Interface != "" {
			if err := validation.ValidateInterfaceName(r.Interface); err != nil {
				errs = append(errs, ValidationError{Field: field + ".interface", Message: err.Error()})
			}
		}
		if r.InterfaceProperty != "" {
			if err := validation.ValidatePropertyKey(r.InterfaceProperty); err != nil {
				errs = append(errs, ValidationError{Field: field + ".interface_property", Message: err.Error()})
			}
		}
	}
	return errs
}
