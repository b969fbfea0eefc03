// Package network holds the host networking helpers used around the
// supplicant: DHCP on the primary interface, applying a lease through
// netlink, and nl80211 virtual interface management for p2p.
package network

import (
	"net"
	"time"

	"github.com/vishvananda/netlink"
)

// LeaseInfo represents the result of a DHCP request.
type LeaseInfo struct {
	Interface string        `json:"interface"`
	IPAddress net.IP        `json:"ip_address"`
	Gateway   net.IP        `json:"gateway"`
	Mask      net.IP        `json:"mask"`
	DNS1      net.IP        `json:"dns1"`
	DNS2      net.IP        `json:"dns2"`
	Server    net.IP        `json:"server"`
	LeaseTime time.Duration `json:"lease_time"`
}

// Netlinker is the netlink surface used to apply a lease and find links.
// Both writes replace existing entries, so applying the same lease twice is
// not an error.
type Netlinker interface {
	LinkByName(name string) (netlink.Link, error)
	AddrReplace(link netlink.Link, addr *netlink.Addr) error
	RouteReplace(route *netlink.Route) error
}

// CommandExecutor runs an external program and returns its output.
type CommandExecutor interface {
	RunCommand(name string, arg ...string) (string, error)
}
