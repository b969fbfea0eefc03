package wpactrl

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/wlanctl/internal/testutil"
)

func openTest(t *testing.T) (*Conn, *testutil.FakeDaemon, string) {
	t.Helper()
	dir := t.TempDir()
	d := testutil.NewFakeDaemon(t, filepath.Join(dir, "wlan0"))
	c, err := Open(d.Path, Options{ClientDir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, d, dir
}

func TestRequest(t *testing.T) {
	c, d, _ := openTest(t)
	d.Handle("STATUS", "wpa_state=COMPLETED\n")

	buf := make([]byte, 256)
	n, err := c.Request("STATUS", buf, time.Second, nil)
	require.NoError(t, err)
	assert.Equal(t, "wpa_state=COMPLETED\n", string(buf[:n]))

	n, err = c.Request("PING", buf, time.Second, nil)
	require.NoError(t, err)
	assert.Equal(t, "PONG\n", string(buf[:n]))

	assert.Equal(t, []string{"STATUS", "PING"}, d.Received())
}

func TestRequest_SkipsUnsolicited(t *testing.T) {
	c, d, _ := openTest(t)
	d.Handle("SCAN", "<3>CTRL-EVENT-SCAN-STARTED ", "OK\n")

	var events []string
	buf := make([]byte, 256)
	n, err := c.Request("SCAN", buf, time.Second, func(ev string) { events = append(events, ev) })
	require.NoError(t, err)
	assert.Equal(t, "OK\n", string(buf[:n]))
	assert.Equal(t, []string{"<3>CTRL-EVENT-SCAN-STARTED "}, events)
}

func TestRequest_Timeout(t *testing.T) {
	c, d, _ := openTest(t)
	d.Handle("DISCONNECT")

	start := time.Now()
	_, err := c.Request("DISCONNECT", make([]byte, 64), 50*time.Millisecond, nil)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRequest_LateReplyDiscarded(t *testing.T) {
	c, d, _ := openTest(t)
	d.Handle("SIGNAL_POLL", "RSSI=-60\n")
	d.Delay("SIGNAL_POLL", 100*time.Millisecond)

	buf := make([]byte, 256)
	_, err := c.Request("SIGNAL_POLL", buf, 20*time.Millisecond, nil)
	require.ErrorIs(t, err, ErrTimeout)

	time.Sleep(300 * time.Millisecond)

	n, err := c.Request("PING", buf, time.Second, nil)
	require.NoError(t, err)
	assert.Equal(t, "PONG\n", string(buf[:n]))
}

func TestAttachDetach(t *testing.T) {
	c, d, _ := openTest(t)

	require.NoError(t, c.Attach(time.Second))
	assert.Equal(t, 1, d.Monitors())

	d.Emit("<2>CTRL-EVENT-CONNECTED - Connection to 00:11:22:33:44:55 completed")
	ready, err := waitReadable(c.Fd(), time.Second)
	require.NoError(t, err)
	require.True(t, ready)

	buf := make([]byte, 256)
	n, err := c.Recv(buf)
	require.NoError(t, err)
	assert.Equal(t, "<2>CTRL-EVENT-CONNECTED - Connection to 00:11:22:33:44:55 completed", string(buf[:n]))

	require.NoError(t, c.Detach(time.Second))
	assert.Equal(t, 0, d.Monitors())
}

func TestAttachRejected(t *testing.T) {
	c, d, _ := openTest(t)
	d.RejectAttach()

	err := c.Attach(time.Second)
	assert.ErrorIs(t, err, ErrAttachRejected)
}

func TestOpen_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Open("", Options{ClientDir: dir})
	assert.Error(t, err)

	_, err = Open(filepath.Join(dir, "missing"), Options{ClientDir: dir})
	assert.Error(t, err)

	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries, "failed open leaves no local socket behind")
}

func TestAbstractAddress(t *testing.T) {
	name := fmt.Sprintf("@wlanctl_test_%d_%d", os.Getpid(), time.Now().UnixNano())
	d := testutil.NewFakeDaemon(t, name)

	c, err := Open(name, Options{ClientDir: t.TempDir()})
	require.NoError(t, err)
	defer c.Close()

	buf := make([]byte, 64)
	n, err := c.Request("PING", buf, time.Second, nil)
	require.NoError(t, err)
	assert.Equal(t, "PONG\n", string(buf[:n]))
	assert.Equal(t, name, c.Dest())
	assert.Equal(t, []string{"PING"}, d.Received())
}

func TestClose(t *testing.T) {
	c, _, dir := openTest(t)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "second close is a no-op")

	_, err := c.Request("PING", make([]byte, 8), time.Second, nil)
	assert.ErrorIs(t, err, ErrClosed)

	matches, _ := filepath.Glob(filepath.Join(dir, ClientPrefix+"*"))
	assert.Empty(t, matches)
}

func TestCleanup(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, ClientPrefix+"1-1")
	own := filepath.Join(dir, fmt.Sprintf("%s%d-7", ClientPrefix, os.Getpid()))
	other := filepath.Join(dir, "wlan0")
	for _, p := range []string{stale, own, other} {
		require.NoError(t, os.WriteFile(p, nil, 0o600))
	}

	require.NoError(t, Cleanup(dir))

	assert.NoFileExists(t, stale)
	assert.FileExists(t, own)
	assert.FileExists(t, other)

	assert.NoError(t, Cleanup(filepath.Join(dir, "nope")))
}
