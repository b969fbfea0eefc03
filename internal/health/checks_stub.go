//go:build !linux

package health

import "context"

// CheckInterface is unsupported off Linux and always reports healthy.
func CheckInterface(name func() string) CheckFunc {
	return func(ctx context.Context) Check {
		return Check{Status: StatusHealthy, Message: "netlink unsupported on this OS (stubbed)"}
	}
}
