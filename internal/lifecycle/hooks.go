package lifecycle

import (
	"fmt"

	"grimm.is/wlanctl/internal/network"
)

// ExecHooks implements PowerHooks by running external commands.
// An empty argv is skipped.
type ExecHooks struct {
	Up   []string
	Down []string
	Exec network.CommandExecutor
}

// NewExecHooks returns nil when neither command is set.
func NewExecHooks(up, down []string, exec network.CommandExecutor) *ExecHooks {
	if len(up) == 0 && len(down) == 0 {
		return nil
	}
	if exec == nil {
		exec = network.DefaultCommandExecutor
	}
	return &ExecHooks{Up: up, Down: down, Exec: exec}
}

func (h *ExecHooks) WlanUp() error {
	return h.run(h.Up)
}

func (h *ExecHooks) WlanDown() error {
	return h.run(h.Down)
}

func (h *ExecHooks) run(argv []string) error {
	if len(argv) == 0 {
		return nil
	}
	out, err := h.Exec.RunCommand(argv[0], argv[1:]...)
	if err != nil {
		return fmt.Errorf("%s: %w: %s", argv[0], err, out)
	}
	return nil
}
