// Package validation checks names and paths that end up in socket paths,
// property keys and service commands.
package validation

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// Valid interface name: alphanumeric, dash, underscore, dot, max 15 chars (IFNAMSIZ-1)
	interfaceNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,15}$`)

	// Service names may carry a systemd instance (@) or unit suffix (.)
	serviceNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.@-]+$`)

	// Property keys are dotted: init.svc.wpa_supplicant
	propertyKeyRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

	// Dangerous characters that should never appear in identifiers
	dangerousChars = []string{";", "|", "&", "$", "`", "(", ")", "<", ">", "\\", "\"", "'", "\n", "\r", "/"}
)

// ValidateInterfaceName validates a network interface name. The name is
// joined onto the control socket directory, so "." and ".." are rejected.
func ValidateInterfaceName(name string) error {
	if name == "" {
		return fmt.Errorf("interface name cannot be empty")
	}
	if len(name) > 15 {
		return fmt.Errorf("interface name too long (max 15 characters): %s", name)
	}
	if name == "." || name == ".." {
		return fmt.Errorf("invalid interface name: %s", name)
	}
	if !interfaceNameRegex.MatchString(name) {
		return fmt.Errorf("invalid interface name: %q (must be alphanumeric with -_.)", name)
	}
	return nil
}

// ValidateServiceName validates a daemon name handed to the service backend.
func ValidateServiceName(name string) error {
	if name == "" {
		return fmt.Errorf("service name cannot be empty")
	}
	if len(name) > 255 {
		return fmt.Errorf("service name too long (max 255 characters)")
	}
	if !serviceNameRegex.MatchString(name) {
		return fmt.Errorf("invalid service name: %q (must be alphanumeric with -_.@)", name)
	}
	return nil
}

// ValidatePropertyKey validates a property store key.
func ValidatePropertyKey(key string) error {
	if key == "" {
		return fmt.Errorf("property key cannot be empty")
	}
	if len(key) > 255 {
		return fmt.Errorf("property key too long (max 255 characters)")
	}
	if !propertyKeyRegex.MatchString(key) {
		return fmt.Errorf("invalid property key: %q (must be alphanumeric with -_.)", key)
	}
	return nil
}

// ValidateAbsPath requires a clean absolute path without traversal or NUL bytes.
func ValidateAbsPath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if strings.Contains(path, "\x00") {
		return fmt.Errorf("null byte in path")
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("path must be absolute: %s", path)
	}
	for _, elem := range strings.Split(path, "/") {
		if elem == ".." {
			return fmt.Errorf("path traversal not allowed: %s", path)
		}
	}
	return nil
}

// SanitizeString removes dangerous characters from a string (for display purposes)
func SanitizeString(s string) string {
	for _, char := range dangerousChars {
		s = strings.ReplaceAll(s, char, "")
	}
	return s
}
