package cmd

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/wlanctl/internal/ctlplane"
	"grimm.is/wlanctl/internal/lifecycle"
	"grimm.is/wlanctl/internal/network"
	"grimm.is/wlanctl/internal/supplicant"
	"grimm.is/wlanctl/internal/wifi"
)

func TestRunStartStop(t *testing.T) {
	c := new(ctlplane.MockControlPlaneClient)
	c.On("StartSupplicant", "station").Return(nil).Once()
	c.On("StopSupplicant", "p2p").Return(nil).Once()

	var out bytes.Buffer
	require.NoError(t, RunStart(c, &out, "station"))
	require.NoError(t, RunStop(c, &out, "p2p"))

	assert.Contains(t, out.String(), "station supplicant running")
	assert.Contains(t, out.String(), "p2p supplicant stopped")
	c.AssertExpectations(t)
}

func TestRunStart_BadRole(t *testing.T) {
	c := new(ctlplane.MockControlPlaneClient)

	err := RunStart(c, &bytes.Buffer{}, "mesh")
	assert.ErrorIs(t, err, ErrUsage)
	err = RunStop(c, &bytes.Buffer{}, "")
	assert.ErrorIs(t, err, ErrUsage)

	c.AssertNotCalled(t, "StartSupplicant", "mesh")
}

func TestRunStart_RemoteError(t *testing.T) {
	c := new(ctlplane.MockControlPlaneClient)
	c.On("StartSupplicant", "ap").Return(&ctlplane.RemoteError{
		Msg:   "daemon start failed",
		Codes: []string{"start_failed"},
	})

	err := RunStart(c, &bytes.Buffer{}, "ap")
	require.Error(t, err)
	assert.ErrorIs(t, err, lifecycle.ErrStartFailed)
	assert.Contains(t, err.Error(), "start ap")
}

func TestRunConnectDisconnect(t *testing.T) {
	c := new(ctlplane.MockControlPlaneClient)
	c.On("Connect").Return("3f1c", nil)
	c.On("Disconnect", true).Return(nil)

	var out bytes.Buffer
	require.NoError(t, RunConnect(c, &out))
	require.NoError(t, RunDisconnect(c, &out, true))

	assert.Contains(t, out.String(), "connected (session 3f1c)")
	assert.Contains(t, out.String(), "disconnected")
	c.AssertExpectations(t)
}

func TestRunConnect_NotRunning(t *testing.T) {
	c := new(ctlplane.MockControlPlaneClient)
	c.On("Connect").Return("", &ctlplane.RemoteError{Msg: "supplicant not running", Codes: []string{"not_running"}})

	err := RunConnect(c, &bytes.Buffer{})
	assert.ErrorIs(t, err, supplicant.ErrNotRunning)
}

func TestRunCommand(t *testing.T) {
	c := new(ctlplane.MockControlPlaneClient)
	c.On("Command", "SET_NETWORK 0 ssid \"home\"").Return("OK", nil)

	var out bytes.Buffer
	require.NoError(t, RunCommand(c, &out, []string{"SET_NETWORK", "0", "ssid", "\"home\""}))
	assert.Equal(t, "OK\n", out.String())
}

func TestRunCommand_MultilineReply(t *testing.T) {
	c := new(ctlplane.MockControlPlaneClient)
	reply := "bssid / frequency / signal level / flags / ssid\n00:11:22:33:44:55\t2412\t-40\t[ESS]\thome\n"
	c.On("Command", "SCAN_RESULTS").Return(reply, nil)

	var out bytes.Buffer
	require.NoError(t, RunCommand(c, &out, []string{"SCAN_RESULTS"}))
	assert.Equal(t, reply, out.String())
}

func TestRunCommand_Errors(t *testing.T) {
	c := new(ctlplane.MockControlPlaneClient)
	c.On("Command", "PING").Return("", &ctlplane.RemoteError{
		Msg:   "not connected to supplicant",
		Codes: []string{"not_connected"},
	})

	err := RunCommand(c, &bytes.Buffer{}, []string{"PING"})
	require.Error(t, err)
	assert.ErrorIs(t, err, supplicant.ErrNotConnected)
	assert.Contains(t, err.Error(), "connect\" first")

	err = RunCommand(c, &bytes.Buffer{}, nil)
	assert.ErrorIs(t, err, ErrUsage)
}

func TestRunStatus(t *testing.T) {
	c := new(ctlplane.MockControlPlaneClient)
	c.On("Status").Return(&wifi.Status{
		Platform:     "generic",
		Mode:         "station",
		Interface:    "wlan0",
		Connected:    true,
		Session:      "3f1c",
		SessionState: "attached",
		Monitor:      true,
		Events:       12,
		DriverLoaded: true,
		Daemons:      map[string]string{"station": "running", "ap": "stopped", "p2p": "stopped"},
	}, nil)

	var out bytes.Buffer
	require.NoError(t, RunStatus(c, &out, false))

	s := out.String()
	assert.Contains(t, s, "Mode:       station")
	assert.Contains(t, s, "Session:    3f1c (attached)")
	assert.Contains(t, s, "12 events")
	assert.Contains(t, s, "Driver:     loaded")
	assert.Contains(t, s, "ROLE")
	assert.Less(t, bytes.Index(out.Bytes(), []byte("│ ap ")), bytes.Index(out.Bytes(), []byte("│ station ")))
	assert.NotContains(t, s, "\x1b[", "a buffer is not a terminal")
}

func TestRunStatus_JSON(t *testing.T) {
	c := new(ctlplane.MockControlPlaneClient)
	c.On("Status").Return(&wifi.Status{Mode: "ap", Daemons: map[string]string{}}, nil)

	var out bytes.Buffer
	require.NoError(t, RunStatus(c, &out, true))
	assert.Contains(t, out.String(), `"mode": "ap"`)
}

func TestRunStatus_Error(t *testing.T) {
	c := new(ctlplane.MockControlPlaneClient)
	c.On("Status").Return(nil, errors.New("connection refused"))

	assert.Error(t, RunStatus(c, &bytes.Buffer{}, false))
}

func TestRunDriver(t *testing.T) {
	c := new(ctlplane.MockControlPlaneClient)
	c.On("LoadDriver").Return(nil)
	c.On("UnloadDriver").Return(&ctlplane.RemoteError{Msg: "driver module busy", Codes: []string{"driver_busy"}})
	c.On("Status").Return(&wifi.Status{DriverLoaded: true}, nil)

	var out bytes.Buffer
	require.NoError(t, RunDriver(c, &out, "load"))
	require.NoError(t, RunDriver(c, &out, "status"))
	assert.Contains(t, out.String(), "driver loaded")

	err := RunDriver(c, &out, "unload")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "busy")

	assert.ErrorIs(t, RunDriver(c, &out, "reload"), ErrUsage)
}

func TestRunDHCP(t *testing.T) {
	c := new(ctlplane.MockControlPlaneClient)
	c.On("DHCPRequest").Return(&network.LeaseInfo{
		Interface: "wlan0",
		IPAddress: net.ParseIP("192.168.1.50"),
		Gateway:   net.ParseIP("192.168.1.1"),
		Mask:      net.IPv4(255, 255, 255, 0),
		DNS1:      net.ParseIP("192.168.1.1"),
		LeaseTime: time.Hour,
	}, nil)

	var out bytes.Buffer
	require.NoError(t, RunDHCP(c, &out))

	s := out.String()
	assert.Contains(t, s, "Address:    192.168.1.50")
	assert.Contains(t, s, "Gateway:    192.168.1.1")
	assert.Contains(t, s, "DNS:        192.168.1.1 -")
	assert.Contains(t, s, "Server:     -")
	assert.Contains(t, s, "Lease time: 1h0m0s")
}

func TestDial_NotServing(t *testing.T) {
	_, err := Dial(t.TempDir() + "/missing.sock")
	assert.ErrorIs(t, err, ErrNotServing)
}
