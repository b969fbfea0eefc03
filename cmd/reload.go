package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"grimm.is/wlanctl/internal/brand"
	"grimm.is/wlanctl/internal/config"
)

// pidFilePath is where "wlanctl serve" records its PID.
func pidFilePath() string {
	return filepath.Join(brand.GetRunDir(), brand.LowerName+".pid")
}

// readPID returns the PID recorded by the serving process.
func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read PID file %s: %w (is \"%s serve\" running?)", path, err, brand.BinaryName)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID in file: %q", string(data))
	}
	return pid, nil
}

// RunReload validates configFile and asks the serving process to re-read it.
func RunReload(configFile string) error {
	Printer.Printf("Validating configuration: %s\n", configFile)
	if _, err := config.LoadFile(configFile); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	Printer.Println("Configuration is valid.")

	pid, err := readPID(pidFilePath())
	if err != nil {
		return err
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}

	Printer.Printf("Sending SIGHUP to process %d...\n", pid)
	if err := process.Signal(syscall.SIGHUP); err != nil {
		return fmt.Errorf("failed to signal process: %w", err)
	}
	Printer.Println("Reload signal sent successfully.")
	return nil
}
