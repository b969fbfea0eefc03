package cmd

import (
	"fmt"
	"io"

	"grimm.is/wlanctl/internal/ctlplane"
)

// RunDriver loads, unloads or reports the radio driver.
func RunDriver(c ctlplane.ControlPlaneClient, w io.Writer, action string) error {
	switch action {
	case "load":
		if err := c.LoadDriver(); err != nil {
			return fmt.Errorf("load driver: %w", err)
		}
		Printer.Fprintln(w, "driver loaded")
	case "unload":
		if err := c.UnloadDriver(); err != nil {
			return fmt.Errorf("unload driver: %w", err)
		}
		Printer.Fprintln(w, "driver unloaded")
	case "status", "":
		status, err := c.Status()
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}
		Printer.Fprintf(w, "driver %s\n", loadedString(status.DriverLoaded))
	default:
		return fmt.Errorf("%w: driver load|unload|status", ErrUsage)
	}
	return nil
}
