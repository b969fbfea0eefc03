package cmd

import (
	"fmt"
	"io"
	"net"

	"grimm.is/wlanctl/internal/ctlplane"
)

// RunDHCP requests a lease on the primary interface and prints it.
func RunDHCP(c ctlplane.ControlPlaneClient, w io.Writer) error {
	lease, err := c.DHCPRequest()
	if err != nil {
		return fmt.Errorf("dhcp request: %w", err)
	}

	Printer.Fprintf(w, "Interface:  %s\n", lease.Interface)
	Printer.Fprintf(w, "Address:    %s\n", ipOrDash(lease.IPAddress))
	Printer.Fprintf(w, "Netmask:    %s\n", ipOrDash(lease.Mask))
	Printer.Fprintf(w, "Gateway:    %s\n", ipOrDash(lease.Gateway))
	Printer.Fprintf(w, "DNS:        %s %s\n", ipOrDash(lease.DNS1), ipOrDash(lease.DNS2))
	Printer.Fprintf(w, "Server:     %s\n", ipOrDash(lease.Server))
	if lease.LeaseTime > 0 {
		Printer.Fprintf(w, "Lease time: %s\n", lease.LeaseTime)
	}
	return nil
}

func ipOrDash(ip net.IP) string {
	if len(ip) == 0 || ip.IsUnspecified() {
		return "-"
	}
	return ip.String()
}
