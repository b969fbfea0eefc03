package brand

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	b := Get()
	if b.Name == "" {
		t.Error("Brand name should not be empty")
	}
	if Version == "" {
		t.Error("Global Version should be initialized (to dev default)")
	}
	if ConfigEnvPrefix != "WLANCTL" {
		t.Errorf("ConfigEnvPrefix = %q, want WLANCTL", ConfigEnvPrefix)
	}
}

func TestUserAgent(t *testing.T) {
	if ua := UserAgent("1.0.0"); ua != Name+"/1.0.0" {
		t.Errorf("UserAgent = %q", ua)
	}
	if ua := UserAgent(""); !strings.HasSuffix(ua, "/dev") {
		t.Errorf("UserAgent default = %q, want dev suffix", ua)
	}
}

func TestGetDirectories(t *testing.T) {
	t.Setenv(ConfigEnvPrefix+"_PREFIX", "")
	t.Setenv(ConfigEnvPrefix+"_CONFIG_DIR", "")
	t.Setenv(ConfigEnvPrefix+"_STATE_DIR", "")
	t.Setenv(ConfigEnvPrefix+"_RUN_DIR", "")

	if GetConfigDir() != DefaultConfigDir {
		t.Errorf("Expected default config dir %s, got %s", DefaultConfigDir, GetConfigDir())
	}
	if GetStateDir() != DefaultStateDir {
		t.Errorf("Expected default state dir %s, got %s", DefaultStateDir, GetStateDir())
	}
	if GetRunDir() != DefaultRunDir {
		t.Errorf("Expected default run dir %s, got %s", DefaultRunDir, GetRunDir())
	}

	t.Setenv(ConfigEnvPrefix+"_PREFIX", "/tmp/wlanctl")
	if GetConfigDir() != "/tmp/wlanctl/config" {
		t.Errorf("Expected prefix config dir, got %s", GetConfigDir())
	}
	if GetPropertyDBPath() != filepath.Join("/tmp/wlanctl/state", PropertyDBName) {
		t.Errorf("unexpected property db path %s", GetPropertyDBPath())
	}

	t.Setenv(ConfigEnvPrefix+"_CONFIG_DIR", "/custom/config")
	if GetConfigDir() != "/custom/config" {
		t.Errorf("Expected custom config dir, got %s", GetConfigDir())
	}
}

func TestGetSocketPath(t *testing.T) {
	t.Setenv(ConfigEnvPrefix+"_RUN_DIR", "/run/x")
	if got := GetSocketPath(); got != "/run/x/wlanctl-ctl.sock" {
		t.Errorf("GetSocketPath = %s", got)
	}
	if got := GetLockPath(); got != "/run/x/wlanctl.lock" {
		t.Errorf("GetLockPath = %s", got)
	}
}

func TestMustParse(t *testing.T) {
	b := mustParse([]byte(`{"name":"x","dirs":{"run":"/r"}}`))
	if b.Name != "x" || b.Dirs.Run != "/r" {
		t.Errorf("mustParse = %+v", b)
	}

	defer func() {
		if recover() == nil {
			t.Error("mustParse accepted invalid JSON")
		}
	}()
	mustParse([]byte("{"))
}
