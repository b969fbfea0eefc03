package lifecycle

import (
	"context"

	"grimm.is/wlanctl/internal/config"
)

// vendor controls station, p2p and AP daemons. p2p and AP share the p2p
// config file. PowerHooks bracket successful starts and stops.
type vendor struct {
	*base
}

func (v *vendor) Variant() string {
	return config.PlatformVendor
}

func (v *vendor) Start(ctx context.Context, role Role) error {
	rc, err := v.role(role)
	if err != nil {
		return err
	}
	if err := v.start(ctx, rc, role != RoleStation, nil); err != nil {
		return err
	}
	if v.deps.Power != nil {
		if err := v.deps.Power.WlanUp(); err != nil {
			v.logger.Warn("wlan up hook failed", "role", rc.Name, "error", err)
		}
	}
	return nil
}

func (v *vendor) Stop(ctx context.Context, role Role) error {
	rc, err := v.role(role)
	if err != nil {
		return err
	}
	if err := v.stop(ctx, rc, nil); err != nil {
		return err
	}
	if v.deps.Power != nil {
		if err := v.deps.Power.WlanDown(); err != nil {
			v.logger.Warn("wlan down hook failed", "role", rc.Name, "error", err)
		}
	}
	return nil
}

func (v *vendor) Status(role Role) (string, error) {
	return v.status(role)
}
