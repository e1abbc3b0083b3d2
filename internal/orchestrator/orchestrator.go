// Package orchestrator fans operations out over every registered project.
// It keeps no state of its own; a failure on one project is logged and
// never aborts the batch.
package orchestrator

import (
	"context"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"github.com/gantrydev/gantry/internal/compose"
	"github.com/gantrydev/gantry/internal/registry"
)

// Controller is what the orchestrator needs from the process manager.
type Controller interface {
	Status(ctx context.Context, hostname string) (registry.Status, error)
	StopProject(ctx context.Context, hostname string) error
	HealthCheck(ctx context.Context, hostname string) (bool, error)
}

// Projects is the part of the registry the orchestrator uses.
type Projects interface {
	Get(hostname string) (*registry.Project, error)
	List() ([]*registry.Project, error)
	Running() ([]*registry.Project, error)
	Update(hostname string, patch registry.Patch) (*registry.Project, error)
}

type Orchestrator struct {
	projects Projects
	ctl      Controller
	logger   *log.Logger
}

func New(projects Projects, ctl Controller, logger *log.Logger) *Orchestrator {
	return &Orchestrator{
		projects: projects,
		ctl:      ctl,
		logger:   logger.With("component", "orchestrator"),
	}
}

// StopAll stops every project the registry believes is running and
// returns the hostnames that stopped cleanly.
func (o *Orchestrator) StopAll(ctx context.Context) []string {
	running, err := o.projects.Running()
	if err != nil {
		o.logger.Error("failed to list running projects", "err", err)
		return nil
	}

	stopped := []string{}
	for _, p := range running {
		if err := o.ctl.StopProject(ctx, p.Hostname); err != nil {
			o.logger.Error("failed to stop project", "project", p.Hostname, "err", err)
			continue
		}
		stopped = append(stopped, p.Hostname)
	}
	return stopped
}

// AllStatus reconciles every registered project. Projects whose status
// cannot be determined are reported as error.
func (o *Orchestrator) AllStatus(ctx context.Context) map[string]registry.Status {
	statuses := make(map[string]registry.Status)
	projects, err := o.projects.List()
	if err != nil {
		o.logger.Error("failed to list projects", "err", err)
		return statuses
	}
	for _, p := range projects {
		status, err := o.ctl.Status(ctx, p.Hostname)
		if err != nil {
			o.logger.Error("failed to get status", "project", p.Hostname, "err", err)
			status = registry.StatusError
		}
		statuses[p.Hostname] = status
	}
	return statuses
}

// WatchOnce checks every running project once: still running projects get
// a health check, and a failed one is only logged.
func (o *Orchestrator) WatchOnce(ctx context.Context) {
	running, err := o.projects.Running()
	if err != nil {
		o.logger.Error("watch: failed to list running projects", "err", err)
		return
	}
	for _, p := range running {
		if ctx.Err() != nil {
			return
		}
		o.watchProject(ctx, p.Hostname)
	}
}

func (o *Orchestrator) watchProject(ctx context.Context, hostname string) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("watch: panic while checking project", "project", hostname, "panic", r)
		}
	}()

	status, err := o.ctl.Status(ctx, hostname)
	if err != nil {
		o.logger.Error("watch: status failed", "project", hostname, "err", err)
		return
	}
	if status != registry.StatusRunning {
		o.logger.Info("watch: project no longer running", "project", hostname, "status", status)
		return
	}
	healthy, err := o.ctl.HealthCheck(ctx, hostname)
	if err != nil {
		o.logger.Error("watch: health check failed", "project", hostname, "err", err)
		return
	}
	if !healthy {
		// TODO: restart unhealthy projects once a restart policy exists in config
		o.logger.Warn("watch: project is unhealthy", "project", hostname)
	}
}

// Watch runs WatchOnce immediately and then every interval until ctx is
// cancelled.
func (o *Orchestrator) Watch(ctx context.Context, interval time.Duration) {
	o.WatchOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.WatchOnce(ctx)
		}
	}
}

// Rescan re-reads the compose file of hostname and records any service or
// port changes in the registry. Exposed ports become the primary port plus
// every service port.
func (o *Orchestrator) Rescan(hostname string) (compose.Changes, error) {
	p, err := o.projects.Get(hostname)
	if err != nil {
		return compose.Changes{}, err
	}

	changes, f := compose.Rescan(p.Path, compose.Known{
		Services:      p.Services,
		ServicePorts:  p.ServicePorts,
		DockerCompose: p.DockerCompose,
	})
	hasCompose := f != nil
	if changes.Empty() && hasCompose == p.DockerCompose {
		return changes, nil
	}

	services := []string{}
	servicePorts := map[string]int{}
	if f != nil {
		services = f.Services
		servicePorts = f.ServicePorts
	}
	exposed := exposedPorts(p.Port, servicePorts)

	_, err = o.projects.Update(hostname, registry.Patch{
		Services:      &services,
		ServicePorts:  &servicePorts,
		ExposedPorts:  &exposed,
		DockerCompose: &hasCompose,
	})
	if err != nil {
		return changes, err
	}
	o.logger.Info("rescanned project", "project", hostname,
		"added", changes.ServicesAdded, "removed", changes.ServicesRemoved, "ports_changed", changes.PortsChanged)
	return changes, nil
}

// exposedPorts is primary plus every service port, services in name order.
func exposedPorts(primary int, servicePorts map[string]int) []int {
	var exposed []int
	if primary != 0 {
		exposed = append(exposed, primary)
	}
	names := make([]string, 0, len(servicePorts))
	for name := range servicePorts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		exposed = append(exposed, servicePorts[name])
	}
	if exposed == nil {
		exposed = []int{}
	}
	return exposed
}

// RescanAll rescans every registered project and returns the ones that
// changed.
func (o *Orchestrator) RescanAll() map[string]compose.Changes {
	changed := make(map[string]compose.Changes)
	projects, err := o.projects.List()
	if err != nil {
		o.logger.Error("failed to list projects", "err", err)
		return changed
	}
	for _, p := range projects {
		c, err := o.Rescan(p.Hostname)
		if err != nil {
			o.logger.Error("rescan failed", "project", p.Hostname, "err", err)
			continue
		}
		if !c.Empty() {
			changed[p.Hostname] = c
		}
	}
	return changed
}
