package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pmezard/go-difflib/difflib"

	"grimm.is/wlanctl/internal/brand"
	"grimm.is/wlanctl/internal/config"
	"grimm.is/wlanctl/internal/network"
	"grimm.is/wlanctl/internal/props"
	"grimm.is/wlanctl/internal/wpaconf"
)

// ErrConfigDiffers is returned by RunDiff when a supplicant config on disk
// does not match what starting the daemon would leave there.
var ErrConfigDiffers = errors.New("supplicant configuration differs")

// RunDiff compares each supplicant config file against the content the
// daemon start would materialize and prints a unified diff per file.
func RunDiff(configFile string, out io.Writer) error {
	if configFile == "" {
		return fmt.Errorf("%w: %s diff [-c config-file]", ErrUsage, brand.BinaryName)
	}
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store := openPropsForDiff(cfg)
	if store != nil {
		defer store.Close()
	}
	m := wpaconf.New(cfg.Supplicant, ctrlInterfaceValue(cfg, store))

	differs := false
	for _, path := range []string{cfg.Supplicant.Station, cfg.Supplicant.P2P} {
		if path == "" {
			continue
		}
		changed, err := diffFile(out, m, path)
		if err != nil {
			return err
		}
		differs = differs || changed
	}

	if !differs {
		Printer.Fprintln(out, "No changes detected.")
		return nil
	}
	return ErrConfigDiffers
}

func diffFile(out io.Writer, m *wpaconf.Materializer, path string) (bool, error) {
	want, err := m.Render(path)
	if err != nil {
		return false, fmt.Errorf("render %s: %w", path, err)
	}
	have, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if string(have) == string(want) {
		return false, nil
	}

	from := path
	if have == nil {
		from = "/dev/null"
	}
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(have)),
		B:        difflib.SplitLines(string(want)),
		FromFile: from,
		ToFile:   path + " (on start)",
		Context:  3,
	})
	if err != nil {
		return false, err
	}
	fmt.Fprint(out, text)
	return true, nil
}

// openPropsForDiff opens the property store when the station interface is
// property driven and the store exists. Failures fall back to the
// configured test interface.
func openPropsForDiff(cfg *config.Config) props.Store {
	station, ok := cfg.Role(config.RoleStation)
	if !ok || station.InterfaceProperty == "" || cfg.Platform == config.PlatformVendor {
		return nil
	}
	if cfg.Properties.Backend != "" && cfg.Properties.Backend != "sqlite" {
		return nil
	}
	if _, err := os.Stat(cfg.Properties.Path); err != nil {
		return nil
	}
	store, _, _, err := props.Open(cfg.Properties.Backend, cfg.Properties.Path,
		"property", "", network.DefaultCommandExecutor)
	if err != nil {
		return nil
	}
	return store
}
