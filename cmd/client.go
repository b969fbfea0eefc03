package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"grimm.is/wlanctl/internal/brand"
	"grimm.is/wlanctl/internal/ctlplane"
	"grimm.is/wlanctl/internal/supplicant"
)

// ErrNotServing is returned when nothing answers on the control plane socket.
var ErrNotServing = errors.New("control plane not reachable")

// ErrUsage marks a malformed command line.
var ErrUsage = errors.New("usage")

// Dial connects to the serving process. Tests replace it.
var Dial = func(socketPath string) (ctlplane.ControlPlaneClient, error) {
	c, err := ctlplane.NewClient(socketPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v (is \"%s serve\" running?)", ErrNotServing, err, brand.BinaryName)
	}
	return c, nil
}

func validRole(role string) error {
	switch role {
	case "station", "p2p", "ap":
		return nil
	case "":
		return fmt.Errorf("%w: role required (station, p2p or ap)", ErrUsage)
	}
	return fmt.Errorf("%w: unknown role %q (station, p2p or ap)", ErrUsage, role)
}

// RunStart starts the daemon for role and waits until it runs.
func RunStart(c ctlplane.ControlPlaneClient, w io.Writer, role string) error {
	if err := validRole(role); err != nil {
		return err
	}
	if err := c.StartSupplicant(role); err != nil {
		return fmt.Errorf("start %s: %w", role, err)
	}
	Printer.Fprintf(w, "%s supplicant running\n", role)
	return nil
}

// RunStop stops the daemon for role and waits until it stopped.
func RunStop(c ctlplane.ControlPlaneClient, w io.Writer, role string) error {
	if err := validRole(role); err != nil {
		return err
	}
	if err := c.StopSupplicant(role); err != nil {
		return fmt.Errorf("stop %s: %w", role, err)
	}
	Printer.Fprintf(w, "%s supplicant stopped\n", role)
	return nil
}

// RunConnect opens the serving process's session to the supplicant.
func RunConnect(c ctlplane.ControlPlaneClient, w io.Writer) error {
	id, err := c.Connect()
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	Printer.Fprintf(w, "connected (session %s)\n", id)
	return nil
}

// RunDisconnect closes the session. With wait it also waits for the daemon
// to report stopped.
func RunDisconnect(c ctlplane.ControlPlaneClient, w io.Writer, wait bool) error {
	if err := c.Disconnect(wait); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	Printer.Fprintln(w, "disconnected")
	return nil
}

// RunCommand sends one control command and prints the reply verbatim.
func RunCommand(c ctlplane.ControlPlaneClient, w io.Writer, args []string) error {
	cmd := strings.TrimSpace(strings.Join(args, " "))
	if cmd == "" {
		return fmt.Errorf("%w: command required", ErrUsage)
	}
	reply, err := c.Command(cmd)
	if err != nil {
		if errors.Is(err, supplicant.ErrNotConnected) {
			return fmt.Errorf("%s: %w (run \"%s connect\" first)", cmd, err, brand.BinaryName)
		}
		return fmt.Errorf("%s: %w", cmd, err)
	}
	io.WriteString(w, reply)
	if !strings.HasSuffix(reply, "\n") {
		io.WriteString(w, "\n")
	}
	return nil
}
