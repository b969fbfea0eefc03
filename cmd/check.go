package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"grimm.is/wlanctl/internal/brand"
	"grimm.is/wlanctl/internal/config"
)

// RunCheck validates the configuration file syntax and semantics.
func RunCheck(configFile string, verbose bool, out io.Writer) error {
	if len(configFile) == 0 {
		return fmt.Errorf("%w: %s check [-v] <config-file>\nExample: %s check -v %s",
			ErrUsage, brand.BinaryName, brand.BinaryName, brand.GetConfigPath())
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := config.LoadHCL(data, configFile)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	Printer.Fprintf(out, "Configuration valid!\n")
	Printer.Fprintf(out, "Platform: %s\n", cfg.Platform)
	Printer.Fprintf(out, "Roles: %d\n", len(cfg.Roles))

	if verbose {
		Printer.Fprintln(out)
		printSummary(out, cfg)
	}
	return nil
}

func printSummary(out io.Writer, cfg *config.Config) {
	rows := make([][]string, 0, len(cfg.Roles))
	for _, r := range cfg.Roles {
		rows = append(rows, []string{r.Name, r.Daemon, r.StatusKey, r.Interface, dashIfEmpty(r.InterfaceProperty)})
	}
	Printer.Fprintln(out, renderTable([]string{"ROLE", "DAEMON", "STATUS KEY", "INTERFACE", "OVERRIDE"}, rows))
	Printer.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)

	Printer.Fprintln(w, "SETTING\tVALUE")
	Printer.Fprintf(w, "socket_dir\t%s\n", cfg.SocketDir)
	Printer.Fprintf(w, "abstract_prefix\t%s\n", cfg.AbstractPrefix)
	Printer.Fprintf(w, "command_timeout\t%s\n", cfg.CommandTimeoutDuration())
	Printer.Fprintf(w, "properties\t%s (%s)\n", cfg.Properties.Backend, cfg.Properties.Path)
	Printer.Fprintf(w, "service\t%s\n", cfg.Service.Backend)
	Printer.Fprintf(w, "driver module\t%s\n", dashIfEmpty(cfg.Driver.Module))
	if cfg.API != nil && cfg.API.Enabled {
		Printer.Fprintf(w, "api\t%s\n", cfg.API.Listen)
	} else {
		Printer.Fprintf(w, "api\tdisabled\n")
	}
	w.Flush()
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
