package cmd

import (
	"errors"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"grimm.is/wlanctl/internal/clock"
)

const (
	// crashThreshold is the time window to consider a crash "too fast"
	crashThreshold = 5 * time.Second
	// maxFastCrashes is the number of fast crashes allowed before backing off
	maxFastCrashes = 3

	restartDelay     = time.Second
	crashLoopBackoff = 30 * time.Second
)

// crashTracker decides how long to wait before restarting a crashed child.
type crashTracker struct {
	fast int
}

// next returns the restart delay for a child that ran for uptime.
func (t *crashTracker) next(uptime time.Duration) time.Duration {
	if uptime < crashThreshold {
		t.fast++
	} else {
		t.fast = 0
	}
	if t.fast >= maxFastCrashes {
		t.fast = 0
		return crashLoopBackoff
	}
	return restartDelay
}

// RunSupervise runs "wlanctl serve [args...]" as a child and restarts it
// when it crashes. A clean child exit ends supervision.
func RunSupervise(args []string) error {
	binPath, err := os.Executable()
	if err != nil {
		return err
	}
	return supervise(binPath, append([]string{"serve"}, args...), &clock.RealClock{})
}

func supervise(binPath string, args []string, clk clock.Clock) error {
	Printer.Println("Starting wlanctl supervisor...")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	var tracker crashTracker
	for {
		cmd := exec.Command(binPath, args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Start(); err != nil {
			Printer.Fprintf(os.Stderr, "Supervisor: failed to start child: %v\n", err)
			clk.Sleep(2 * time.Second)
			continue
		}
		Printer.Printf("Supervisor: started %s (pid=%d)\n", args[0], cmd.Process.Pid)
		started := clk.Now()

		stopCh := make(chan struct{})
		stopping := make(chan struct{}, 1)
		go func() {
			select {
			case sig := <-sigCh:
				Printer.Printf("Supervisor: forwarding signal %v to child...\n", sig)
				if sig != syscall.SIGHUP {
					stopping <- struct{}{}
				}
				cmd.Process.Signal(sig)
			case <-stopCh:
			}
		}()

		err := cmd.Wait()
		close(stopCh)

		select {
		case <-stopping:
			Printer.Println("Supervisor: child stopped on request.")
			return nil
		default:
		}

		var exitErr *exec.ExitError
		exitCode := 0
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		if err == nil || exitCode == 0 {
			Printer.Println("Supervisor: child exited cleanly. Shutting down supervisor.")
			return nil
		}

		delay := tracker.next(clk.Since(started))
		if delay == crashLoopBackoff {
			Printer.Printf("Supervisor: detected crash loop (%d fast crashes). Backing off for %s...\n", maxFastCrashes, delay)
		} else {
			Printer.Printf("Supervisor: child crashed with exit code %d (err: %v). Restarting...\n", exitCode, err)
		}
		clk.Sleep(delay)
	}
}
