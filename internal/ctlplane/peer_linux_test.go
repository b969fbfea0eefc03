//go:build linux

package ctlplane

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_AuditPeer(t *testing.T) {
	a := &recordingAuditor{}
	backend, client, _, _ := startAuditedServer(t, a)
	backend.On("LoadDriver").Return(nil)

	require.NoError(t, client.LoadDriver())

	events := a.recorded()
	require.Len(t, events, 1)
	assert.Equal(t, "driver_load", events[0].Action)
	assert.Equal(t, fmt.Sprintf("uid=%d pid=%d", os.Getuid(), os.Getpid()), events[0].Peer)
}
