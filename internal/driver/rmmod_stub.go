//go:build !linux

package driver

import "errors"

func deleteModule(name string) error {
	return errors.ErrUnsupported
}

func isBusy(err error) bool {
	return false
}
