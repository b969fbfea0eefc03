package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"grimm.is/wlanctl/cmd"
	"grimm.is/wlanctl/internal/brand"
	"grimm.is/wlanctl/internal/config"
	"grimm.is/wlanctl/internal/ctlplane"
	"grimm.is/wlanctl/internal/i18n"
)

var printer = i18n.NewCLIPrinter()

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	args := os.Args[2:]
	switch os.Args[1] {
	case "serve":
		fs := flag.NewFlagSet("serve", flag.ExitOnError)
		configFile := fs.String("config", brand.GetConfigPath(), "Configuration file")
		fs.StringVar(configFile, "c", brand.GetConfigPath(), "Configuration file (short)")
		debug := fs.Bool("debug", false, "Enable debug logging")
		socket := fs.String("socket", brand.GetSocketPath(), "Control plane socket")
		fs.Parse(args)

		err := cmd.RunServe(context.Background(), cmd.ServeOptions{
			ConfigFile: *configFile,
			Debug:      *debug,
			SocketPath: *socket,
		})
		exitOn("Serve failed", err)

	case "supervise":
		exitOn("Supervisor failed", cmd.RunSupervise(args))

	case "check":
		fs := flag.NewFlagSet("check", flag.ExitOnError)
		verbose := fs.Bool("verbose", false, "Print a summary of the effective configuration")
		fs.BoolVar(verbose, "v", false, "Verbose (short)")
		fs.Parse(args)
		exitOn("Check failed", cmd.RunCheck(fs.Arg(0), *verbose, os.Stdout))

	case "diff":
		fs := flag.NewFlagSet("diff", flag.ExitOnError)
		configFile := fs.String("config", brand.GetConfigPath(), "Configuration file")
		fs.StringVar(configFile, "c", brand.GetConfigPath(), "Configuration file (short)")
		fs.Parse(args)
		exitOn("Diff", cmd.RunDiff(*configFile, os.Stdout))

	case "reload":
		fs := flag.NewFlagSet("reload", flag.ExitOnError)
		configFile := fs.String("config", brand.GetConfigPath(), "Configuration file")
		fs.StringVar(configFile, "c", brand.GetConfigPath(), "Configuration file (short)")
		fs.Parse(args)
		exitOn("Reload failed", cmd.RunReload(*configFile))

	case "start", "stop":
		fs, socket := clientFlags(os.Args[1])
		fs.Parse(args)
		withClient(*socket, func(c ctlplane.ControlPlaneClient) error {
			if os.Args[1] == "start" {
				return cmd.RunStart(c, os.Stdout, fs.Arg(0))
			}
			return cmd.RunStop(c, os.Stdout, fs.Arg(0))
		})

	case "connect":
		fs, socket := clientFlags("connect")
		fs.Parse(args)
		withClient(*socket, func(c ctlplane.ControlPlaneClient) error {
			return cmd.RunConnect(c, os.Stdout)
		})

	case "disconnect":
		fs, socket := clientFlags("disconnect")
		wait := fs.Bool("wait", false, "Wait for the daemon to report stopped")
		fs.Parse(args)
		withClient(*socket, func(c ctlplane.ControlPlaneClient) error {
			return cmd.RunDisconnect(c, os.Stdout, *wait)
		})

	case "command", "cmd":
		fs, socket := clientFlags("command")
		fs.Parse(args)
		withClient(*socket, func(c ctlplane.ControlPlaneClient) error {
			return cmd.RunCommand(c, os.Stdout, fs.Args())
		})

	case "status":
		fs, socket := clientFlags("status")
		asJSON := fs.Bool("json", false, "Print status as JSON")
		fs.Parse(args)
		withClient(*socket, func(c ctlplane.ControlPlaneClient) error {
			return cmd.RunStatus(c, os.Stdout, *asJSON)
		})

	case "driver":
		fs, socket := clientFlags("driver")
		fs.Parse(args)
		withClient(*socket, func(c ctlplane.ControlPlaneClient) error {
			return cmd.RunDriver(c, os.Stdout, fs.Arg(0))
		})

	case "dhcp":
		fs, socket := clientFlags("dhcp")
		fs.Parse(args)
		withClient(*socket, func(c ctlplane.ControlPlaneClient) error {
			return cmd.RunDHCP(c, os.Stdout)
		})

	case "events":
		fs := flag.NewFlagSet("events", flag.ExitOnError)
		addr := fs.String("addr", defaultAPIAddr(), "API listen address (host:port)")
		topics := fs.String("topics", "events", "Comma-separated topics: events, status, props")
		raw := fs.Bool("raw", false, "Print messages as received JSON")
		fs.Parse(args)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		err := cmd.RunEvents(ctx, cmd.EventsOptions{
			Addr:   *addr,
			Topics: strings.Split(*topics, ","),
			Raw:    *raw,
		}, os.Stdout)
		exitOn("Event stream failed", err)

	case "version":
		printer.Printf("%s version %s\n", brand.Name, brand.Version)
		printer.Printf("Build time: %s\n", brand.BuildTime)
		printer.Printf("Git commit: %s\n", brand.GitCommit)

	case "help", "-h", "--help":
		printUsage()

	default:
		printer.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func clientFlags(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	socket := fs.String("socket", brand.GetSocketPath(), "Control plane socket")
	return fs, socket
}

// withClient dials the control plane, runs fn and exits non-zero on error.
func withClient(socket string, fn func(ctlplane.ControlPlaneClient) error) {
	c, err := cmd.Dial(socket)
	if err != nil {
		exitOn("Error", err)
	}
	err = fn(c)
	c.Close()
	exitOn("Error", err)
}

// defaultAPIAddr reads the API listen address from the default config file.
func defaultAPIAddr() string {
	cfg, err := config.LoadFile(brand.GetConfigPath())
	if err != nil || cfg.API == nil {
		return config.Default().API.Listen
	}
	return cfg.API.Listen
}

func exitOn(prefix string, err error) {
	if err == nil {
		return
	}
	printer.Fprintf(os.Stderr, "%s: %v\n", prefix, err)
	if errors.Is(err, cmd.ErrUsage) {
		os.Exit(2)
	}
	os.Exit(1)
}

func printUsage() {
	printer.Printf(`%s - %s

Usage:
  %s <command> [options]

Serving:
  serve       Run the control plane (owns the supplicant session)
              Options: --config (-c) <file>, --debug, --socket <path>
  supervise   Run "serve" and restart it when it crashes
  reload      Validate the config and signal the running server
  check       Validate configuration file
              Options: --verbose (-v)
  diff        Show how starting a daemon would change the supplicant configs
              Options: --config (-c) <file>

Daemon Commands:
  start <role>        Start a supplicant daemon (station, p2p, ap)
  stop <role>         Stop a supplicant daemon
  connect             Open the control session to the current mode's daemon
  disconnect          Close the control session
                      Options: --wait (wait for the daemon to stop)
  command <args...>   Send a control command and print the reply
  status              Show manager status
                      Options: --json
  events              Stream supplicant events from the API
                      Options: --addr <host:port>, --topics <list>, --raw

Radio Commands:
  driver load|unload|status   Control the radio driver
  dhcp                        Request a DHCP lease on the primary interface

  version     Print version information

Examples:
  %s serve --debug
  %s start station
  %s connect
  %s command SCAN
  %s command SCAN_RESULTS
  %s events --topics events,status
  %s check -v /etc/wlanctl/wlanctl.hcl
`,
		brand.Name, brand.Description,
		brand.LowerName,
		brand.LowerName, brand.LowerName, brand.LowerName, brand.LowerName,
		brand.LowerName, brand.LowerName, brand.LowerName)
}
