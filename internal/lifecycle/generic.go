package lifecycle

import (
	"context"
	"fmt"

	"grimm.is/wlanctl/internal/config"
)

// generic controls a station daemon and a p2p daemon. When an
// InterfaceManager is present the p2p interface is created before the p2p
// daemon starts and removed before it stops.
type generic struct {
	*base
}

func (g *generic) Variant() string {
	return config.PlatformGeneric
}

func (g *generic) supported(role Role) (config.RoleConfig, error) {
	if role != RoleStation && role != RoleP2P {
		return config.RoleConfig{}, fmt.Errorf("%w: %s on %s platform", ErrUnknownRole, role, g.Variant())
	}
	return g.role(role)
}

func (g *generic) Start(ctx context.Context, role Role) error {
	rc, err := g.supported(role)
	if err != nil {
		return err
	}
	var prepare func() error
	if role == RoleP2P && g.deps.Interfaces != nil {
		prepare = func() error {
			if err := g.deps.Interfaces.AddInterface(rc.Interface); err != nil {
				return fmt.Errorf("create p2p interface %s: %w", rc.Interface, err)
			}
			return nil
		}
	}
	return g.start(ctx, rc, role == RoleP2P, prepare)
}

func (g *generic) Stop(ctx context.Context, role Role) error {
	rc, err := g.supported(role)
	if err != nil {
		return err
	}
	var prepare func() error
	if role == RoleP2P && g.deps.Interfaces != nil {
		prepare = func() error {
			if err := g.deps.Interfaces.RemoveInterface(rc.Interface); err != nil {
				return fmt.Errorf("remove p2p interface %s: %w", rc.Interface, err)
			}
			return nil
		}
	}
	return g.stop(ctx, rc, prepare)
}

func (g *generic) Status(role Role) (string, error) {
	if _, err := g.supported(role); err != nil {
		return "", err
	}
	return g.status(role)
}
