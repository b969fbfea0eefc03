// Package wpaconf materializes the supplicant's configuration and entropy
// files before a daemon is started.
package wpaconf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"grimm.is/wlanctl/internal/config"
	"grimm.is/wlanctl/internal/logging"
)

const ctrlKey = "ctrl_interface="

// FileMode is applied to every file this package creates.
const FileMode os.FileMode = 0o660

// ErrNoCtrlInterface means the config file has no ctrl_interface entry and
// is treated as broken.
var ErrNoCtrlInterface = errors.New("config has no ctrl_interface entry")

var entropySeed = []byte{
	0x02, 0x11, 0xbe, 0x33, 0x43, 0x35,
	0x68, 0x47, 0x84, 0x99, 0xa9, 0x2b,
	0x1c, 0xd3, 0xee, 0xff, 0xf1, 0xe2,
	0xf3, 0xf4, 0xf5,
}

// Materializer creates and repairs supplicant config files.
type Materializer struct {
	Template string
	UID, GID int

	// CtrlValue returns the ctrl_interface value expected in the file at path.
	CtrlValue func(path string) string

	logger *logging.Logger
	chown  func(path string, uid, gid int) error
}

// New returns a Materializer for cfg. ctrlValue may be nil, in which case
// cfg.CtrlInterface is used for every file.
func New(cfg *config.SupplicantConfig, ctrlValue func(path string) string) *Materializer {
	if ctrlValue == nil {
		dir := cfg.CtrlInterface
		ctrlValue = func(string) string { return dir }
	}
	return &Materializer{
		Template:  cfg.Template,
		UID:       cfg.UID,
		GID:       cfg.GID,
		CtrlValue: ctrlValue,
		logger:    logging.WithComponent("wpaconf"),
		chown:     os.Chown,
	}
}

// EnsureConfigFile makes sure path is a readable, writable config with the
// expected ctrl_interface. An existing file is repaired in place; a missing
// or broken one is recreated from the template.
func (m *Materializer) EnsureConfigFile(path string) error {
	err := unix.Access(path, unix.R_OK|unix.W_OK)
	switch {
	case err == nil || errors.Is(err, unix.EACCES):
		if err != nil {
			if cerr := os.Chmod(path, FileMode); cerr != nil {
				return fmt.Errorf("set RW on %s: %w", path, cerr)
			}
		}
		_, uerr := UpdateCtrlInterface(path, m.CtrlValue(path))
		if uerr == nil {
			return nil
		}
		m.logger.Warn("config file unusable, recreating", "path", path, "error", uerr)
	case !errors.Is(err, unix.ENOENT):
		return fmt.Errorf("access %s: %w", path, err)
	}

	if err := m.copyTemplate(path); err != nil {
		return err
	}
	if err := os.Chmod(path, FileMode); err != nil {
		os.Remove(path)
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := m.chown(path, m.UID, m.GID); err != nil {
		os.Remove(path)
		return fmt.Errorf("chown %s to %d:%d: %w", path, m.UID, m.GID, err)
	}
	m.logger.Info("created config file", "path", path, "template", m.Template)

	_, err = UpdateCtrlInterface(path, m.CtrlValue(path))
	return err
}

func (m *Materializer) copyTemplate(path string) error {
	src, err := os.Open(m.Template)
	if err != nil {
		return fmt.Errorf("open template: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, FileMode)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return fmt.Errorf("copy template to %s: %w", path, err)
	}
	return dst.Close()
}

// EnsureEntropyFile makes sure the supplicant's entropy seed exists.
func (m *Materializer) EnsureEntropyFile(path string) error {
	err := unix.Access(path, unix.R_OK|unix.W_OK)
	if err == nil {
		return nil
	}
	if errors.Is(err, unix.EACCES) {
		if cerr := os.Chmod(path, FileMode); cerr != nil {
			return fmt.Errorf("set RW on %s: %w", path, cerr)
		}
		return nil
	}

	if err := os.WriteFile(path, entropySeed, FileMode); err != nil {
		return fmt.Errorf("write entropy file: %w", err)
	}
	if err := os.Chmod(path, FileMode); err != nil {
		os.Remove(path)
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := m.chown(path, m.UID, m.GID); err != nil {
		os.Remove(path)
		return fmt.Errorf("chown %s to %d:%d: %w", path, m.UID, m.GID, err)
	}
	return nil
}

// UpdateCtrlInterface rewrites the ctrl_interface entry of the config at
// path to want. It reports whether the file was rewritten.
func UpdateCtrlInterface(path, want string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	out, changed, err := RewriteCtrlInterface(data, want)
	if err != nil || !changed {
		return false, err
	}
	if err := os.WriteFile(path, out, FileMode); err != nil {
		return false, fmt.Errorf("update %s: %w", path, err)
	}
	return true, nil
}

// RewriteCtrlInterface sets the ctrl_interface value in data to want.
// Directory values (DIR=... or an absolute path) are left alone, as is a
// value already starting with want.
func RewriteCtrlInterface(data []byte, want string) ([]byte, bool, error) {
	idx := bytes.Index(data, []byte(ctrlKey))
	if idx < 0 {
		return nil, false, ErrNoCtrlInterface
	}
	if bytes.Contains(data, []byte(ctrlKey+"DIR=")) || bytes.Contains(data, []byte(ctrlKey+"/")) {
		return data, false, nil
	}

	start := idx + len(ctrlKey)
	if bytes.HasPrefix(data[start:], []byte(want)) {
		return data, false, nil
	}
	end := bytes.IndexByte(data[start:], '\n')
	if end < 0 {
		end = len(data)
	} else {
		end += start
	}

	out := make([]byte, 0, len(data)+len(want))
	out = append(out, data[:start]...)
	out = append(out, want...)
	out = append(out, data[end:]...)
	return out, true, nil
}

// Render returns the content EnsureConfigFile would leave at path, without
// touching the filesystem: the existing file with its ctrl_interface fixed,
// or the template when the file is missing or broken.
func (m *Materializer) Render(path string) ([]byte, error) {
	want := m.CtrlValue(path)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		out, _, rerr := RewriteCtrlInterface(data, want)
		if rerr == nil {
			return out, nil
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}

	tmpl, err := os.ReadFile(m.Template)
	if err != nil {
		return nil, fmt.Errorf("open template: %w", err)
	}
	out, _, err := RewriteCtrlInterface(tmpl, want)
	return out, err
}
