package network

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"

	"github.com/vishvananda/netlink"
)

// DefaultNetlinker talks to the kernel through the default netlink handle.
var DefaultNetlinker Netlinker = kernel{}

// DefaultCommandExecutor runs programs with os/exec.
var DefaultCommandExecutor CommandExecutor = execRunner{}

type kernel struct{}

func (kernel) LinkByName(name string) (netlink.Link, error) { return netlink.LinkByName(name) }

func (kernel) AddrReplace(link netlink.Link, addr *netlink.Addr) error {
	return netlink.AddrReplace(link, addr)
}

func (kernel) RouteReplace(route *netlink.Route) error { return netlink.RouteReplace(route) }

// ExecError is a program that ran and exited non-zero, or could not start.
type ExecError struct {
	Argv   []string
	Stderr string
	Err    error
}

func (e *ExecError) Error() string {
	msg := fmt.Sprintf("%s: %v", strings.Join(e.Argv, " "), e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ExecError) Unwrap() error { return e.Err }

type execRunner struct{}

// RunCommand returns stdout. Stderr is only reported on failure.
func (execRunner) RunCommand(name string, arg ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	c := exec.Command(name, arg...)
	c.Stdout, c.Stderr = &stdout, &stderr
	if err := c.Run(); err != nil {
		return stdout.String(), &ExecError{
			Argv:   append([]string{name}, arg...),
			Stderr: strings.TrimSpace(stderr.String()),
			Err:    err,
		}
	}
	return stdout.String(), nil
}
