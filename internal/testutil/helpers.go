package testutil

import (
	"os"
	"testing"
)

// RequireVM skips the test if the WLANCTL_VM_TEST environment variable is not set.
// Tests that need real radios, nl80211 or kernel modules only run there.
func RequireVM(t *testing.T) {
	t.Helper()
	if os.Getenv("WLANCTL_VM_TEST") == "" {
		t.Skip("Skipping test: requires WLANCTL_VM_TEST environment")
	}
}

// RequireRoot skips the test unless running as root.
func RequireRoot(t *testing.T) {
	t.Helper()
	if os.Geteuid() != 0 {
		t.Skip("Skipping test: requires root")
	}
}
