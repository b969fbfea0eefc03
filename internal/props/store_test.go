package props

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/wlanctl/internal/clock"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := NewSQLiteStore(Options{Path: ":memory:", Clock: clock.NewMockClock(time.Unix(1700000000, 0))})
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })

	mem := NewMemoryStore()
	t.Cleanup(func() { mem.Close() })

	return map[string]Store{"sqlite": sq, "memory": mem}
}

func TestStore_GetSet(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, _, ok := s.Get("init.svc.wpa_supplicant")
			assert.False(t, ok)

			require.NoError(t, s.Set("init.svc.wpa_supplicant", StatusStopped))
			v, serial1, ok := s.Get("init.svc.wpa_supplicant")
			require.True(t, ok)
			assert.Equal(t, StatusStopped, v)

			require.NoError(t, s.Set("init.svc.wpa_supplicant", StatusStopped))
			_, serial2, _ := s.Get("init.svc.wpa_supplicant")
			assert.NotEqual(t, serial1, serial2, "every write changes the serial")

			require.NoError(t, s.Set("wifi.interface", "wlan0"))
			all, err := s.List()
			require.NoError(t, err)
			assert.Len(t, all, 2)
			assert.Equal(t, []string{"init.svc.wpa_supplicant", "wifi.interface"}, SortedKeys(all))

			assert.ErrorIs(t, s.Set("", "x"), ErrEmptyKey)
		})
	}
}

func TestStore_Subscribe(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			ch := s.Subscribe(ctx)
			require.NoError(t, s.Set("ctl.start", "wpa_supplicant"))

			select {
			case c := <-ch:
				assert.Equal(t, "ctl.start", c.Key)
				assert.Equal(t, "wpa_supplicant", c.Value)
				assert.NotZero(t, c.Serial)
			case <-time.After(time.Second):
				t.Fatal("no change delivered")
			}
		})
	}
}

func TestStore_Closed(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Close())
			assert.ErrorIs(t, s.Set("a", "b"), ErrStoreClosed)
		})
	}
}

func TestSQLiteStore_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "props.db")

	s, err := NewSQLiteStore(DefaultOptions(path))
	require.NoError(t, err)
	require.NoError(t, s.Set("wlan.driver.status", "ok"))
	_, serial, _ := s.Get("wlan.driver.status")
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "double close is a no-op")

	s2, err := NewSQLiteStore(DefaultOptions(path))
	require.NoError(t, err)
	defer s2.Close()

	v, serial2, ok := s2.Get("wlan.driver.status")
	require.True(t, ok)
	assert.Equal(t, "ok", v)
	assert.Equal(t, serial, serial2)

	require.NoError(t, s2.Set("wlan.driver.status", "unloaded"))
	_, serial3, _ := s2.Get("wlan.driver.status")
	assert.Greater(t, serial3, serial, "serials stay monotonic across reopen")
}
