package process

import (
	"context"
	"fmt"

	"github.com/docker/docker/client"

	"github.com/gantrydev/gantry/internal/compose"
)

// PIDResolver maps a container to its host PID when `compose ps` does not
// report one.
type PIDResolver interface {
	ContainerPID(ctx context.Context, containerID string) (int, error)
}

// DockerResolver asks the Docker engine API.
type DockerResolver struct {
	cli *client.Client
}

// NewDockerResolver connects using the standard DOCKER_* environment.
func NewDockerResolver() (*DockerResolver, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &DockerResolver{cli: cli}, nil
}

func (r *DockerResolver) ContainerPID(ctx context.Context, containerID string) (int, error) {
	info, err := r.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect container %s: %w", containerID, err)
	}
	if info.ContainerJSONBase == nil || info.State == nil {
		return 0, nil
	}
	return info.State.Pid, nil
}

func (r *DockerResolver) Close() error { return r.cli.Close() }

// containerPIDs collects the PIDs of running containers, falling back to
// the resolver for entries without one. Lookup failures are skipped.
func containerPIDs(ctx context.Context, resolver PIDResolver, containers []compose.Container) []int {
	var pids []int
	for _, c := range containers {
		if !c.Running() {
			continue
		}
		pid := c.Pid
		if pid == 0 && resolver != nil && c.ID != "" {
			if resolved, err := resolver.ContainerPID(ctx, c.ID); err == nil {
				pid = resolved
			}
		}
		if pid > 0 {
			pids = append(pids, pid)
		}
	}
	return pids
}
