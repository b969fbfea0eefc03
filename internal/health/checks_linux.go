//go:build linux

package health

import (
	"context"
	"fmt"
	"net"

	"github.com/safchain/ethtool"
	"github.com/vishvananda/netlink"
)

// DriverNameFunc returns the kernel driver bound to an interface.
var DriverNameFunc = func(iface string) (string, error) {
	e, err := ethtool.NewEthtool()
	if err != nil {
		return "", err
	}
	defer e.Close()
	return e.DriverName(iface)
}

// CheckInterface reports whether the named interface exists and is up.
// A missing or down interface is degraded: the radio may simply be off.
func CheckInterface(name func() string) CheckFunc {
	return func(ctx context.Context) Check {
		iface := name()
		link, err := netlink.LinkByName(iface)
		if err != nil {
			return Check{Status: StatusDegraded, Message: fmt.Sprintf("%s: %v", iface, err)}
		}
		state := "up"
		status := StatusHealthy
		if link.Attrs().Flags&net.FlagUp == 0 {
			state, status = "down", StatusDegraded
		}
		msg := iface + " is " + state
		if drv, err := DriverNameFunc(iface); err == nil && drv != "" {
			msg += " (driver " + drv + ")"
		}
		return Check{Status: status, Message: msg}
	}
}
