// Package process drives `docker compose` to bring projects up and down
// and reconciles what is actually running with the registry's cached
// status.
package process

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/gantrydev/gantry/internal/compose"
	"github.com/gantrydev/gantry/internal/config"
	"github.com/gantrydev/gantry/internal/ports"
	"github.com/gantrydev/gantry/internal/registry"
)

// Projects is the part of the registry the manager reads and writes.
type Projects interface {
	Get(hostname string) (*registry.Project, error)
	Update(hostname string, patch registry.Patch) (*registry.Project, error)
	UpdateStatus(hostname string, status registry.Status) error
	ProjectDir(hostname string) string
}

// PortChecker is the part of the port allocator the manager needs.
type PortChecker interface {
	ValidatePort(port int) error
	ValidateStartupPorts(hostname string) error
}

// StartOptions tune StartProject.
type StartOptions struct {
	Force bool // start despite port conflicts
	Port  int  // new primary port; 0 keeps the current one
}

type Manager struct {
	projects       Projects
	ports          PortChecker
	runner         compose.Runner
	procs          ProcessTable
	resolver       PIDResolver
	client         *http.Client
	state          stateStore
	timeouts       config.Timeouts
	healthAttempts int
	logger         *log.Logger

	sleep    func(ctx context.Context, d time.Duration)
	now      func() time.Time
	newRunID func() string
}

func New(cfg *config.Config, projects Projects, checker PortChecker, runner compose.Runner, logger *log.Logger) *Manager {
	return &Manager{
		projects:       projects,
		ports:          checker,
		runner:         runner,
		procs:          OSProcessTable{},
		client:         &http.Client{},
		state:          stateStore{dirFor: projects.ProjectDir},
		timeouts:       cfg.Timeouts,
		healthAttempts: max(cfg.HealthAttempts, 1),
		logger:         logger.With("component", "process"),
		sleep:          sleepContext,
		now:            func() time.Time { return time.Now().UTC() },
		newRunID:       uuid.NewString,
	}
}

// SetResolver installs a fallback for containers whose PID is missing from
// `compose ps` output.
func (m *Manager) SetResolver(r PIDResolver) { m.resolver = r }

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// workDir is where compose commands run.
func workDir(p *registry.Project) string {
	if p.WorkingDirectory != "" {
		return p.WorkingDirectory
	}
	return p.Path
}

// environ overlays the project's variables on the current environment.
func environ(p *registry.Project) []string {
	env := os.Environ()
	keys := make([]string, 0, len(p.EnvironmentVars))
	for k := range p.EnvironmentVars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+p.EnvironmentVars[k])
	}
	return env
}

func (m *Manager) get(op, hostname string) (*registry.Project, error) {
	p, err := m.projects.Get(hostname)
	if err != nil {
		return nil, newError(op, hostname, err)
	}
	return p, nil
}

// CheckStartupConflicts returns the ports hostname would clash on with
// other running projects. A nil slice means it can start cleanly.
func (m *Manager) CheckStartupConflicts(hostname string) ([]ports.Conflict, error) {
	err := m.ports.ValidateStartupPorts(hostname)
	if err == nil {
		return nil, nil
	}
	if conflicts := Conflicts(err); conflicts != nil {
		return conflicts, nil
	}
	return nil, newError("check", hostname, err)
}

// Status reconciles the cached status of hostname with what compose and
// the process table report, persisting any difference.
func (m *Manager) Status(ctx context.Context, hostname string) (registry.Status, error) {
	p, err := m.get("status", hostname)
	if err != nil {
		return "", err
	}
	return m.status(ctx, p)
}

func (m *Manager) status(ctx context.Context, p *registry.Project) (registry.Status, error) {
	// Without a compose file there is nothing live to ask
	if _, err := compose.FindFile(p.Path); err != nil {
		return p.Status, nil
	}

	psCtx, cancel := context.WithTimeout(ctx, m.timeouts.Status)
	defer cancel()
	out, err := m.runner.Output(psCtx, compose.Command{
		Dir:  workDir(p),
		Args: []string{"ps", "--format", "json"},
	})

	observed := registry.StatusStopped
	if err != nil {
		m.logger.Warn("status query failed", "project", p.Hostname, "err", err)
		observed = registry.StatusError
	} else {
		containers := compose.ParsePS(out)
		live := livePIDs(m.procs, m.state.Load(p.Hostname).PIDs)
		if compose.AnyRunning(containers) || len(live) > 0 {
			observed = registry.StatusRunning
		}
	}

	if observed != p.Status {
		if err := m.projects.UpdateStatus(p.Hostname, observed); err != nil {
			return observed, newError("status", p.Hostname, err)
		}
	}
	return observed, nil
}

// StartProject brings hostname up with `compose up -d`.
func (m *Manager) StartProject(ctx context.Context, hostname string, opts StartOptions) error {
	const op = "start"

	p, err := m.get(op, hostname)
	if err != nil {
		return err
	}

	if opts.Port != 0 {
		if err := m.ports.ValidatePort(opts.Port); err != nil {
			return newError(op, hostname, err)
		}
		if opts.Port != p.Port {
			exposed := replacePrimaryPort(p, opts.Port)
			p, err = m.projects.Update(hostname, registry.Patch{Port: &opts.Port, ExposedPorts: &exposed})
			if err != nil {
				return newError(op, hostname, err)
			}
		}
	}

	status, err := m.status(ctx, p)
	if err != nil {
		return err
	}
	if status == registry.StatusRunning {
		return &Error{Op: op, Hostname: hostname, Kind: KindAlreadyRunning, Err: ErrAlreadyRunning}
	}

	conflicts, err := m.CheckStartupConflicts(hostname)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		if !opts.Force {
			return newError(op, hostname, &ports.ConflictError{Hostname: hostname, Conflicts: conflicts})
		}
		for _, c := range conflicts {
			m.logger.Warn("starting despite port conflict", "project", hostname, "port", c.Port, "with", c.ConflictingProject, "service", c.Service)
		}
	}

	if _, err := compose.FindFile(p.Path); err != nil {
		return newError(op, hostname, err)
	}

	dir := workDir(p)
	upCtx, cancel := context.WithTimeout(ctx, m.timeouts.Up)
	defer cancel()
	if _, err := m.runner.Output(upCtx, compose.Command{Dir: dir, Env: environ(p), Args: []string{"up", "-d"}}); err != nil {
		if serr := m.projects.UpdateStatus(hostname, registry.StatusError); serr != nil {
			m.logger.Error("failed to record error status", "project", hostname, "err", serr)
		}
		return newError(op, hostname, err)
	}

	m.sleep(ctx, m.timeouts.Settle)
	pids := m.capturePIDs(ctx, p)

	now := m.now()
	if err := m.state.Save(hostname, State{RunID: m.newRunID(), PIDs: pids, StartedAt: now}); err != nil {
		m.logger.Warn("failed to write runtime state", "project", hostname, "err", err)
	}

	running := registry.StatusRunning
	if _, err := m.projects.Update(hostname, registry.Patch{Status: &running, LastStarted: &now}); err != nil {
		return newError(op, hostname, err)
	}
	m.logger.Info("project started", "project", hostname, "pids", len(pids))
	return nil
}

// replacePrimaryPort swaps the old primary port for port in the exposed
// list, keeping the old one if a named service still publishes it.
func replacePrimaryPort(p *registry.Project, port int) []int {
	keepOld := false
	for _, sp := range p.ServicePorts {
		if sp == p.Port {
			keepOld = true
			break
		}
	}
	exposed := make([]int, 0, len(p.ExposedPorts)+1)
	for _, ep := range p.ExposedPorts {
		if ep == p.Port && p.Port != 0 && !keepOld {
			continue
		}
		exposed = append(exposed, ep)
	}
	return append(exposed, port)
}

func (m *Manager) capturePIDs(ctx context.Context, p *registry.Project) []int {
	psCtx, cancel := context.WithTimeout(ctx, m.timeouts.Status)
	defer cancel()
	out, err := m.runner.Output(psCtx, compose.Command{Dir: workDir(p), Args: []string{"ps", "--format", "json"}})
	if err != nil {
		m.logger.Warn("failed to capture PIDs", "project", p.Hostname, "err", err)
		return nil
	}
	return containerPIDs(ctx, m.resolver, compose.ParsePS(out))
}

// StopProject brings hostname down. Operational failures are logged, not
// returned: the project always ends up stopped with its runtime state
// removed.
func (m *Manager) StopProject(ctx context.Context, hostname string) error {
	const op = "stop"

	p, err := m.get(op, hostname)
	if err != nil {
		return err
	}
	recorded := livePIDs(m.procs, m.state.Load(hostname).PIDs)
	// A cached stopped status is trusted unless recorded PIDs outlived it.
	if p.Status == registry.StatusStopped && len(recorded) == 0 {
		return nil
	}

	timedOut := false
	if _, err := compose.FindFile(p.Path); err == nil {
		downCtx, cancel := context.WithTimeout(ctx, m.timeouts.Down)
		_, err := m.runner.Output(downCtx, compose.Command{Dir: workDir(p), Args: []string{"down"}})
		cancel()
		switch {
		case errors.Is(err, compose.ErrTimeout):
			timedOut = true
			m.logger.Warn("compose down timed out, killing processes", "project", hostname, "pids", recorded)
		case err != nil:
			m.logger.Warn("compose down failed", "project", hostname, "err", err)
		}
	}

	if timedOut {
		m.signalAll(hostname, recorded, syscall.SIGKILL)
	} else if len(recorded) > 0 {
		m.sleep(ctx, m.timeouts.StopSettle)
		remaining := livePIDs(m.procs, recorded)
		if len(remaining) > 0 {
			m.signalAll(hostname, remaining, syscall.SIGTERM)
			m.sleep(ctx, m.timeouts.Grace)
			m.signalAll(hostname, livePIDs(m.procs, remaining), syscall.SIGKILL)
		}
	}

	if err := m.state.Remove(hostname); err != nil {
		m.logger.Warn("failed to clear runtime state", "project", hostname, "err", err)
	}
	if err := m.projects.UpdateStatus(hostname, registry.StatusStopped); err != nil {
		return newError(op, hostname, err)
	}
	m.logger.Info("project stopped", "project", hostname)
	return nil
}

func (m *Manager) signalAll(hostname string, pids []int, sig syscall.Signal) {
	for _, pid := range pids {
		if !m.procs.Alive(pid) {
			continue
		}
		if err := m.procs.Signal(pid, sig); err != nil {
			m.logger.Debug("signal failed", "project", hostname, "pid", pid, "signal", sig, "err", err)
		}
	}
}

// RestartProject stops then starts hostname.
func (m *Manager) RestartProject(ctx context.Context, hostname string, opts StartOptions) error {
	if err := m.StopProject(ctx, hostname); err != nil {
		return err
	}
	m.sleep(ctx, m.timeouts.RestartPause)
	return m.StartProject(ctx, hostname, opts)
}

// HealthCheck GETs http://localhost:<port>/ until a 2xx answer or the
// attempts run out. An unhealthy project is reported as false, not as an
// error.
func (m *Manager) HealthCheck(ctx context.Context, hostname string) (bool, error) {
	p, err := m.get("health", hostname)
	if err != nil {
		return false, err
	}
	if p.Port == 0 {
		return false, nil
	}

	url := fmt.Sprintf("http://localhost:%d/", p.Port)
	for attempt := 1; attempt <= m.healthAttempts; attempt++ {
		ok, err := m.probe(ctx, url)
		if ok {
			st := m.state.Load(hostname)
			now := m.now()
			st.LastHealthCheck = &now
			if err := m.state.Save(hostname, st); err != nil {
				m.logger.Warn("failed to record health check", "project", hostname, "err", err)
			}
			return true, nil
		}
		m.logger.Debug("health check attempt failed", "project", hostname, "attempt", attempt, "err", err)
		if attempt < m.healthAttempts {
			m.sleep(ctx, m.timeouts.HealthRetryDelay)
		}
	}
	return false, nil
}

func (m *Manager) probe(ctx context.Context, url string) (bool, error) {
	reqCtx, cancel := context.WithTimeout(ctx, m.timeouts.HealthRequest)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false, err
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return true, nil
}

// RuntimeState returns the recorded runtime state of hostname.
func (m *Manager) RuntimeState(hostname string) State {
	return m.state.Load(hostname)
}
