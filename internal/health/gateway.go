package health

import (
	"context"
	"fmt"
	"net"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// PingFunc sends one echo request to ip and fails on loss.
var PingFunc = func(ctx context.Context, ip string) error {
	pinger, err := probing.NewPinger(ip)
	if err != nil {
		return fmt.Errorf("failed to create pinger: %w", err)
	}
	pinger.Count = 1
	pinger.Timeout = time.Second
	pinger.SetPrivileged(false)

	if err := pinger.RunWithContext(ctx); err != nil {
		return err
	}
	if pinger.Statistics().PacketsRecv == 0 {
		return fmt.Errorf("packet loss")
	}
	return nil
}

// CheckGateway pings the gateway of the last DHCP lease. Without a lease the
// check passes; an unreachable gateway is degraded.
func CheckGateway(gateway func() net.IP) CheckFunc {
	return func(ctx context.Context) Check {
		gw := gateway()
		if gw == nil || gw.IsUnspecified() {
			return Check{Status: StatusHealthy, Message: "no lease"}
		}
		if err := PingFunc(ctx, gw.String()); err != nil {
			return Check{Status: StatusDegraded, Message: fmt.Sprintf("gateway %s unreachable: %v", gw, err)}
		}
		return Check{Status: StatusHealthy, Message: "gateway " + gw.String() + " reachable"}
	}
}
