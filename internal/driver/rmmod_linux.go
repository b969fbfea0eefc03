//go:build linux

package driver

import (
	"errors"

	"golang.org/x/sys/unix"
)

func deleteModule(name string) error {
	return unix.DeleteModule(name, unix.O_NONBLOCK|unix.O_EXCL)
}

func isBusy(err error) bool {
	return errors.Is(err, unix.EAGAIN)
}
