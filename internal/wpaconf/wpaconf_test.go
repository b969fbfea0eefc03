package wpaconf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/wlanctl/internal/config"
)

type chownCall struct {
	path     string
	uid, gid int
}

func newTest(t *testing.T, template string) (*Materializer, string, *[]chownCall) {
	t.Helper()
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "wpa_supplicant.conf.template")
	require.NoError(t, os.WriteFile(tmpl, []byte(template), 0o644))

	m := New(&config.SupplicantConfig{Template: tmpl, CtrlInterface: "wlan0", UID: 1000, GID: 1010}, nil)
	var calls []chownCall
	m.chown = func(path string, uid, gid int) error {
		calls = append(calls, chownCall{path, uid, gid})
		return nil
	}
	return m, dir, &calls
}

func TestEnsureConfigFile_FromTemplate(t *testing.T) {
	m, dir, calls := newTest(t, "ctrl_interface=eth0\nupdate_config=1\n")
	path := filepath.Join(dir, "wpa_supplicant.conf")

	require.NoError(t, m.EnsureConfigFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ctrl_interface=wlan0\nupdate_config=1\n", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, FileMode, info.Mode().Perm())
	assert.Equal(t, []chownCall{{path, 1000, 1010}}, *calls)
}

func TestEnsureConfigFile_Existing(t *testing.T) {
	m, dir, calls := newTest(t, "ctrl_interface=wlan0\n")
	path := filepath.Join(dir, "wpa_supplicant.conf")
	require.NoError(t, os.WriteFile(path, []byte("ctrl_interface=wlan0\nnetwork={\n}\n"), 0o600))

	require.NoError(t, m.EnsureConfigFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ctrl_interface=wlan0\nnetwork={\n}\n", string(data), "user networks must survive")
	assert.Empty(t, *calls)
}

func TestEnsureConfigFile_Broken(t *testing.T) {
	m, dir, calls := newTest(t, "ctrl_interface=wlan0\nupdate_config=1\n")
	path := filepath.Join(dir, "wpa_supplicant.conf")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o660))

	require.NoError(t, m.EnsureConfigFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ctrl_interface=wlan0\nupdate_config=1\n", string(data))
	assert.Len(t, *calls, 1)
}

func TestEnsureConfigFile_MissingTemplate(t *testing.T) {
	m, dir, _ := newTest(t, "")
	m.Template = filepath.Join(dir, "nope")
	path := filepath.Join(dir, "wpa_supplicant.conf")

	assert.Error(t, m.EnsureConfigFile(path))
	assert.NoFileExists(t, path)
}

func TestEnsureConfigFile_ChownFails(t *testing.T) {
	m, dir, _ := newTest(t, "ctrl_interface=wlan0\n")
	m.chown = func(string, int, int) error { return os.ErrPermission }
	path := filepath.Join(dir, "wpa_supplicant.conf")

	assert.ErrorIs(t, m.EnsureConfigFile(path), os.ErrPermission)
	assert.NoFileExists(t, path)
}

func TestUpdateCtrlInterface(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		want      string
		rewritten bool
		out       string
	}{
		{"replace", "a=1\nctrl_interface=eth0\nb=2\n", "wlan0", true, "a=1\nctrl_interface=wlan0\nb=2\n"},
		{"replace last line", "ctrl_interface=eth0", "wlan0", true, "ctrl_interface=wlan0"},
		{"already set", "ctrl_interface=wlan0\n", "wlan0", false, "ctrl_interface=wlan0\n"},
		{"dir form", "ctrl_interface=DIR=/var/run/wpa GROUP=wifi\n", "wlan0", false, "ctrl_interface=DIR=/var/run/wpa GROUP=wifi\n"},
		{"absolute", "ctrl_interface=/data/misc/wifi/sockets\n", "wlan0", false, "ctrl_interface=/data/misc/wifi/sockets\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "c.conf")
			require.NoError(t, os.WriteFile(path, []byte(tt.in), 0o660))

			rewritten, err := UpdateCtrlInterface(path, tt.want)
			require.NoError(t, err)
			assert.Equal(t, tt.rewritten, rewritten)

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, tt.out, string(data))
		})
	}

	path := filepath.Join(t.TempDir(), "c.conf")
	require.NoError(t, os.WriteFile(path, []byte("update_config=1\n"), 0o660))
	_, err := UpdateCtrlInterface(path, "wlan0")
	assert.ErrorIs(t, err, ErrNoCtrlInterface)
}

func TestEnsureEntropyFile(t *testing.T) {
	m, dir, calls := newTest(t, "")
	path := filepath.Join(dir, "entropy.bin")

	require.NoError(t, m.EnsureEntropyFile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, entropySeed, data)
	assert.Len(t, *calls, 1)

	require.NoError(t, os.WriteFile(path, []byte("kept"), 0o660))
	require.NoError(t, m.EnsureEntropyFile(path))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "kept", string(data))
	assert.Len(t, *calls, 1)
}

func TestRender(t *testing.T) {
	m, dir, calls := newTest(t, "ctrl_interface=eth0\nupdate_config=1\n")

	missing := filepath.Join(dir, "missing.conf")
	out, err := m.Render(missing)
	require.NoError(t, err)
	assert.Equal(t, "ctrl_interface=wlan0\nupdate_config=1\n", string(out))
	assert.NoFileExists(t, missing)

	existing := filepath.Join(dir, "existing.conf")
	require.NoError(t, os.WriteFile(existing, []byte("ctrl_interface=p2p0\nnetwork={\n}\n"), 0o600))
	out, err = m.Render(existing)
	require.NoError(t, err)
	assert.Equal(t, "ctrl_interface=wlan0\nnetwork={\n}\n", string(out))

	// Rendering never rewrites the file.
	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "ctrl_interface=p2p0\nnetwork={\n}\n", string(data))

	broken := filepath.Join(dir, "broken.conf")
	require.NoError(t, os.WriteFile(broken, []byte("update_config=1\n"), 0o600))
	out, err = m.Render(broken)
	require.NoError(t, err)
	assert.Equal(t, "ctrl_interface=wlan0\nupdate_config=1\n", string(out))

	assert.Empty(t, *calls)
}

func TestRewriteCtrlInterface_Directory(t *testing.T) {
	in := []byte("ctrl_interface=DIR=/var/run/wpa GROUP=wifi\n")
	out, changed, err := RewriteCtrlInterface(in, "wlan0")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, in, out)

	_, _, err = RewriteCtrlInterface([]byte("update_config=1\n"), "wlan0")
	assert.ErrorIs(t, err, ErrNoCtrlInterface)
}
