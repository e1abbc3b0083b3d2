package process

import (
	"context"
	"io"

	"github.com/gantrydev/gantry/internal/compose"
)

// Logs streams `compose logs` for hostname, optionally for a single
// service. Closing the returned reader stops the command.
func (m *Manager) Logs(ctx context.Context, hostname, service string, follow bool) (io.ReadCloser, error) {
	const op = "logs"

	p, err := m.get(op, hostname)
	if err != nil {
		return nil, err
	}
	if _, err := compose.FindFile(p.Path); err != nil {
		return nil, newError(op, hostname, err)
	}

	args := []string{"logs"}
	if follow {
		args = append(args, "--follow")
	}
	if service != "" {
		args = append(args, service)
	}

	rc, err := m.runner.Stream(ctx, compose.Command{Dir: workDir(p), Args: args})
	if err != nil {
		return nil, newError(op, hostname, err)
	}
	return rc, nil
}
