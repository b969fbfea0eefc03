package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/wlanctl/internal/audit"
	"grimm.is/wlanctl/internal/brand"
	"grimm.is/wlanctl/internal/config"
	"grimm.is/wlanctl/internal/ctlplane"
	"grimm.is/wlanctl/internal/props"
	"grimm.is/wlanctl/internal/supplicant"
)

const serveTestConfig = `
platform  = "generic"
log_level = "debug"

properties {
  backend = "memory"
}

api {
  enabled = false
}
`

func setupServeEnv(t *testing.T) ServeOptions {
	t.Helper()
	root := t.TempDir()
	t.Setenv("WLANCTL_STATE_DIR", filepath.Join(root, "state"))
	t.Setenv("WLANCTL_RUN_DIR", filepath.Join(root, "run"))

	configPath := filepath.Join(root, "wlanctl.hcl")
	require.NoError(t, os.WriteFile(configPath, []byte(serveTestConfig), 0o644))

	return ServeOptions{
		ConfigFile: configPath,
		SocketPath: filepath.Join(root, "run", "ctl.sock"),
		LockPath:   filepath.Join(root, "run", "wlanctl.lock"),
	}
}

func TestRunServe_ControlPlane(t *testing.T) {
	opts := setupServeEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunServe(ctx, opts) }()

	var client *ctlplane.Client
	require.Eventually(t, func() bool {
		c, err := ctlplane.NewClient(opts.SocketPath)
		if err != nil {
			return false
		}
		client = c
		return true
	}, 5*time.Second, 20*time.Millisecond)
	defer client.Close()

	status, err := client.Status()
	require.NoError(t, err)
	assert.Equal(t, config.PlatformGeneric, status.Platform)
	assert.Equal(t, "station", status.Mode)
	assert.False(t, status.Connected)
	assert.Contains(t, status.Daemons, "station")
	// The generic platform has no access point daemon.
	assert.Equal(t, "unknown", status.Daemons["ap"])

	// No daemon is listening on the control socket.
	_, err = client.Command("PING")
	assert.ErrorIs(t, err, supplicant.ErrNotConnected)

	pid, err := readPID(pidFilePath())
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	// A second instance is refused by the lock.
	err = RunServe(context.Background(), opts)
	assert.ErrorIs(t, err, ctlplane.ErrAlreadyServing)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("RunServe did not return after cancel")
	}

	_, err = os.Stat(opts.SocketPath)
	assert.True(t, os.IsNotExist(err), "socket should be removed on shutdown")
	_, err = os.Stat(pidFilePath())
	assert.True(t, os.IsNotExist(err), "PID file should be removed on shutdown")

	trail, err := audit.NewStore(filepath.Join(brand.GetStateDir(), AuditDBName), 0)
	require.NoError(t, err)
	defer trail.Close()
	recorded, err := trail.Query(time.Time{}, time.Time{}, "command", 0)
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.Equal(t, "PING", recorded[0].Resource)
	assert.Contains(t, recorded[0].Codes, "not_connected")
}

func TestRunServe_BadConfig(t *testing.T) {
	opts := setupServeEnv(t)
	require.NoError(t, os.WriteFile(opts.ConfigFile, []byte(`platform = "toaster"`), 0o644))

	assert.Error(t, RunServe(context.Background(), opts))
}

func TestCtrlInterfaceValue(t *testing.T) {
	store := props.NewMemoryStore()
	cfg := config.Default()

	value := ctrlInterfaceValue(cfg, store)
	assert.Equal(t, cfg.TestInterface, value(cfg.Supplicant.Station))
	assert.Equal(t, cfg.Supplicant.CtrlInterface, value(cfg.Supplicant.P2P))

	require.NoError(t, store.Set("wifi.interface", "wlan7"))
	assert.Equal(t, "wlan7", value(cfg.Supplicant.Station))

	cfg.Platform = config.PlatformVendor
	value = ctrlInterfaceValue(cfg, store)
	assert.Equal(t, cfg.Supplicant.CtrlInterface, value(cfg.Supplicant.Station))
}
