package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"grimm.is/wlanctl/internal/brand"
	"grimm.is/wlanctl/internal/ctlplane"
)

// RunStatus queries the serving process and prints its state.
func RunStatus(c ctlplane.ControlPlaneClient, w io.Writer, asJSON bool) error {
	status, err := c.Status()
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	Printer.Fprintf(w, "=== %s status ===\n", brand.Name)
	Printer.Fprintln(w)
	Printer.Fprintf(w, "Platform:   %s\n", status.Platform)
	Printer.Fprintf(w, "Mode:       %s\n", status.Mode)
	Printer.Fprintf(w, "Interface:  %s\n", status.Interface)
	if status.Connected {
		Printer.Fprintf(w, "Session:    %s (%s)\n", status.Session, status.SessionState)
		Printer.Fprintf(w, "Monitor:    %s, %d events\n", onOff(status.Monitor), status.Events)
	} else {
		Printer.Fprintln(w, "Session:    not connected")
	}
	Printer.Fprintf(w, "Driver:     %s\n", loadedString(status.DriverLoaded))
	if status.DHCPError != "" {
		Printer.Fprintf(w, "DHCP error: %s\n", status.DHCPError)
	}
	Printer.Fprintln(w)

	roles := make([]string, 0, len(status.Daemons))
	for role := range status.Daemons {
		roles = append(roles, role)
	}
	slices.Sort(roles)
	colorize := shouldColorize(w)
	rows := make([][]string, 0, len(roles))
	for _, role := range roles {
		state := status.Daemons[role]
		if colorize {
			state = daemonColor(state).Sprint(state)
		}
		rows = append(rows, []string{role, state})
	}
	Printer.Fprintln(w, renderTable([]string{"ROLE", "DAEMON"}, rows))
	return nil
}

func onOff(b bool) string {
	if b {
		return "running"
	}
	return "stopped"
}

func loadedString(b bool) string {
	if b {
		return "loaded"
	}
	return "unloaded"
}
