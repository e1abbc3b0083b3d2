package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/gantrydev/gantry/internal/compose"
	"github.com/gantrydev/gantry/internal/config"
	"github.com/gantrydev/gantry/internal/logging"
	"github.com/gantrydev/gantry/internal/ports"
	"github.com/gantrydev/gantry/internal/registry"
)

// fakeRunner pretends to be docker compose. `up` marks the stack running,
// `down` marks it stopped and `ps` reports accordingly.
type fakeRunner struct {
	calls   []compose.Command
	running bool
	psOut   string // overrides the running/stopped answer when set
	psErr   error
	upErr   error
	downErr error
}

const runningPS = `{"ID":"c1","Name":"demo-web-1","Service":"web","State":"running","Pid":321}`
const exitedPS = `{"ID":"c1","Name":"demo-web-1","Service":"web","State":"exited","Pid":0}`

func (f *fakeRunner) Output(ctx context.Context, cmd compose.Command) ([]byte, error) {
	f.calls = append(f.calls, cmd)
	switch cmd.Args[0] {
	case "ps":
		if f.psErr != nil {
			return nil, f.psErr
		}
		if f.psOut != "" {
			return []byte(f.psOut), nil
		}
		if f.running {
			return []byte(runningPS), nil
		}
		return []byte(exitedPS), nil
	case "up":
		if f.upErr != nil {
			return nil, f.upErr
		}
		f.running = true
	case "down":
		if f.downErr != nil {
			return nil, f.downErr
		}
		f.running = false
	}
	return nil, nil
}

func (f *fakeRunner) Stream(ctx context.Context, cmd compose.Command) (io.ReadCloser, error) {
	f.calls = append(f.calls, cmd)
	return io.NopCloser(strings.NewReader("web-1 | ready\n")), nil
}

func (f *fakeRunner) count(verb string) int {
	n := 0
	for _, c := range f.calls {
		if c.Args[0] == verb {
			n++
		}
	}
	return n
}

type sent struct {
	pid int
	sig syscall.Signal
}

// fakeProcs is a process table where stubborn PIDs survive SIGTERM.
type fakeProcs struct {
	alive    map[int]bool
	stubborn map[int]bool
	signals  []sent
}

func (f *fakeProcs) Alive(pid int) bool { return f.alive[pid] }

func (f *fakeProcs) Signal(pid int, sig syscall.Signal) error {
	f.signals = append(f.signals, sent{pid, sig})
	if sig == syscall.SIGKILL || !f.stubborn[pid] {
		f.alive[pid] = false
	}
	return nil
}

type fakeResolver map[string]int

func (f fakeResolver) ContainerPID(ctx context.Context, id string) (int, error) {
	if pid, ok := f[id]; ok {
		return pid, nil
	}
	return 0, errors.New("no such container")
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

type harness struct {
	m      *Manager
	reg    *registry.Registry
	runner *fakeRunner
	procs  *fakeProcs
	sleeps []time.Duration
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	home := t.TempDir()
	cfg := config.Default(home)
	reg, err := registry.New(cfg.RegistryPath, cfg.ProjectsDir, logging.Discard())
	if err != nil {
		t.Fatalf("registry.New failed: %v", err)
	}
	h := &harness{
		reg:    reg,
		runner: &fakeRunner{},
		procs:  &fakeProcs{alive: map[int]bool{}, stubborn: map[int]bool{}},
	}
	h.m = New(cfg, reg, ports.New(reg, cfg.PortRange, cfg.Timeouts.Bind), h.runner, logging.Discard())
	h.m.procs = h.procs
	h.m.sleep = func(_ context.Context, d time.Duration) { h.sleeps = append(h.sleeps, d) }
	h.m.newRunID = func() string { return "run-1" }
	return h
}

// addProject registers hostname; withCompose drops a compose file into its
// directory.
func (h *harness) addProject(t *testing.T, hostname string, port int, withCompose bool, status registry.Status) string {
	t.Helper()
	dir := t.TempDir()
	if withCompose {
		content := "services:\n  web:\n    ports: [\"" + fmt.Sprint(port) + ":80\"]\n"
		if err := os.WriteFile(filepath.Join(dir, "docker-compose.yml"), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := h.reg.Register(hostname, dir, port); err != nil {
		t.Fatalf("Register(%s) failed: %v", hostname, err)
	}
	exposed := []int{port}
	if _, err := h.reg.Update(hostname, registry.Patch{ExposedPorts: &exposed, Status: &status}); err != nil {
		t.Fatal(err)
	}
	return dir
}

func (h *harness) status(t *testing.T, hostname string) registry.Status {
	t.Helper()
	p, err := h.reg.Get(hostname)
	if err != nil {
		t.Fatal(err)
	}
	return p.Status
}

func (h *harness) stateExists(hostname string) bool {
	_, err := os.Stat(h.m.state.path(hostname))
	return err == nil
}

func TestStartProject_HappyPath(t *testing.T) {
	h := newHarness(t)
	h.addProject(t, "demo", 5000, true, registry.StatusStopped)
	registered, err := h.reg.Update("demo", registry.Patch{EnvironmentVars: &map[string]string{"APP_ENV": "dev"}})
	if err != nil {
		t.Fatal(err)
	}
	dir := registered.Path

	if err := h.m.StartProject(context.Background(), "demo", StartOptions{}); err != nil {
		t.Fatalf("StartProject failed: %v", err)
	}

	if h.runner.count("up") != 1 {
		t.Fatalf("Expected one compose up, got %d", h.runner.count("up"))
	}
	for _, c := range h.runner.calls {
		if c.Dir != dir {
			t.Errorf("Expected compose to run in %s, got %s", dir, c.Dir)
		}
		if c.Args[0] == "up" {
			if c.Env[len(c.Env)-1] != "APP_ENV=dev" {
				t.Errorf("Expected project env last, got %v", c.Env[len(c.Env)-1])
			}
		}
	}

	p, _ := h.reg.Get("demo")
	if p.Status != registry.StatusRunning {
		t.Errorf("Expected running, got %s", p.Status)
	}
	if p.LastStarted == nil {
		t.Error("Expected LastStarted to be set")
	}
	st := h.m.RuntimeState("demo")
	if st.RunID != "run-1" || !reflect.DeepEqual(st.PIDs, []int{321}) {
		t.Errorf("Unexpected runtime state %+v", st)
	}
	if len(h.sleeps) != 1 || h.sleeps[0] != h.m.timeouts.Settle {
		t.Errorf("Expected one settle pause, got %v", h.sleeps)
	}
}

func TestStartProject_AlreadyRunning(t *testing.T) {
	h := newHarness(t)
	h.addProject(t, "demo", 5000, true, registry.StatusStopped)
	h.runner.running = true

	err := h.m.StartProject(context.Background(), "demo", StartOptions{})
	if KindOf(err) != KindAlreadyRunning {
		t.Fatalf("Expected KindAlreadyRunning, got %v", err)
	}
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Expected errors.Is ErrAlreadyRunning")
	}
	if h.runner.count("up") != 0 {
		t.Error("compose up must not run for an already running project")
	}
}

func TestStartProject_PortConflict(t *testing.T) {
	h := newHarness(t)
	h.addProject(t, "api", 5000, false, registry.StatusRunning)
	h.addProject(t, "web", 5000, true, registry.StatusStopped)

	err := h.m.StartProject(context.Background(), "web", StartOptions{})
	if KindOf(err) != KindPortConflict {
		t.Fatalf("Expected KindPortConflict, got %v", err)
	}
	conflicts := Conflicts(err)
	if len(conflicts) != 1 || conflicts[0].ConflictingProject != "api" || conflicts[0].Port != 5000 {
		t.Errorf("Unexpected conflicts %v", conflicts)
	}
	if h.runner.count("up") != 0 {
		t.Fatal("compose up must not run on conflict without force")
	}

	if err := h.m.StartProject(context.Background(), "web", StartOptions{Force: true}); err != nil {
		t.Fatalf("Forced start failed: %v", err)
	}
	if h.runner.count("up") != 1 {
		t.Errorf("Expected compose up with force, got %d calls", h.runner.count("up"))
	}
	if got := h.status(t, "web"); got != registry.StatusRunning {
		t.Errorf("Expected running, got %s", got)
	}
}

func TestStartProject_CheckStartupConflicts(t *testing.T) {
	h := newHarness(t)
	h.addProject(t, "api", 5000, false, registry.StatusRunning)
	h.addProject(t, "web", 5000, false, registry.StatusStopped)
	h.addProject(t, "solo", 5001, false, registry.StatusStopped)

	conflicts, err := h.m.CheckStartupConflicts("web")
	if err != nil || len(conflicts) != 1 {
		t.Errorf("Expected one conflict, got %v (%v)", conflicts, err)
	}
	conflicts, err = h.m.CheckStartupConflicts("solo")
	if err != nil || conflicts != nil {
		t.Errorf("Expected no conflicts, got %v (%v)", conflicts, err)
	}
	if _, err := h.m.CheckStartupConflicts("missing"); KindOf(err) != KindNotFound {
		t.Errorf("Expected KindNotFound, got %v", err)
	}
}

func TestStartProject_Failures(t *testing.T) {
	tests := []struct {
		name     string
		compose  bool
		upErr    error
		opts     StartOptions
		host     string
		wantKind Kind
		wantErr  registry.Status // status after the attempt, "" to skip
	}{
		{name: "not found", host: "missing", compose: true, wantKind: KindNotFound},
		{name: "no compose file", host: "demo", compose: false, wantKind: KindComposeFileNotFound, wantErr: registry.StatusStopped},
		{name: "port out of range", host: "demo", compose: true, opts: StartOptions{Port: 80}, wantKind: KindInvalidPort, wantErr: registry.StatusStopped},
		{
			name:     "compose fails",
			host:     "demo",
			compose:  true,
			upErr:    &compose.ExitError{Args: []string{"up", "-d"}, Code: 1, Stderr: "pull access denied"},
			wantKind: KindCommandFailed,
			wantErr:  registry.StatusError,
		},
		{
			name:     "compose times out",
			host:     "demo",
			compose:  true,
			upErr:    fmt.Errorf("%w: compose up -d", compose.ErrTimeout),
			wantKind: KindTimeout,
			wantErr:  registry.StatusError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.addProject(t, "demo", 5000, tt.compose, registry.StatusStopped)
			h.runner.upErr = tt.upErr

			err := h.m.StartProject(context.Background(), tt.host, tt.opts)
			if KindOf(err) != tt.wantKind {
				t.Fatalf("Expected %s, got %v (%s)", tt.wantKind, err, KindOf(err))
			}
			if tt.wantErr != "" {
				if got := h.status(t, "demo"); got != tt.wantErr {
					t.Errorf("Expected status %s, got %s", tt.wantErr, got)
				}
			}
			if h.stateExists("demo") {
				t.Error("Expected no runtime state after a failed start")
			}
		})
	}
}

func TestStartProject_StderrSurfaces(t *testing.T) {
	h := newHarness(t)
	h.addProject(t, "demo", 5000, true, registry.StatusStopped)
	h.runner.upErr = &compose.ExitError{Args: []string{"up", "-d"}, Code: 1, Stderr: "pull access denied"}

	err := h.m.StartProject(context.Background(), "demo", StartOptions{})
	if err == nil || !strings.Contains(err.Error(), "pull access denied") {
		t.Errorf("Expected stderr in error, got %v", err)
	}
}

func TestStartProject_PortChangeUpdatesExposedPorts(t *testing.T) {
	h := newHarness(t)
	h.addProject(t, "demo", 5000, true, registry.StatusStopped)
	sp := map[string]int{"db": 5432}
	exposed := []int{5000, 5432}
	if _, err := h.reg.Update("demo", registry.Patch{ServicePorts: &sp, ExposedPorts: &exposed}); err != nil {
		t.Fatal(err)
	}

	if err := h.m.StartProject(context.Background(), "demo", StartOptions{Port: 5010}); err != nil {
		t.Fatalf("StartProject failed: %v", err)
	}
	p, _ := h.reg.Get("demo")
	if p.Port != 5010 {
		t.Errorf("Expected port 5010, got %d", p.Port)
	}
	if !reflect.DeepEqual(p.ExposedPorts, []int{5432, 5010}) {
		t.Errorf("Expected [5432 5010], got %v", p.ExposedPorts)
	}
}

func TestStartProject_ResolvesMissingPIDs(t *testing.T) {
	h := newHarness(t)
	h.addProject(t, "demo", 5000, true, registry.StatusStopped)
	h.m.SetResolver(fakeResolver{"c1": 999})

	// Stopped before start, running without a Pid column afterwards
	calls := 0
	h.m.runner = &scriptedRunner{fakeRunner: h.runner, ps: func() string {
		calls++
		if calls == 1 {
			return exitedPS
		}
		return `{"ID":"c1","Service":"web","State":"running"}`
	}}

	if err := h.m.StartProject(context.Background(), "demo", StartOptions{}); err != nil {
		t.Fatal(err)
	}
	if got := h.m.RuntimeState("demo").PIDs; !reflect.DeepEqual(got, []int{999}) {
		t.Errorf("Expected resolved PID 999, got %v", got)
	}
}

// scriptedRunner answers ps from a function and defers everything else.
type scriptedRunner struct {
	*fakeRunner
	ps func() string
}

func (s *scriptedRunner) Output(ctx context.Context, cmd compose.Command) ([]byte, error) {
	if cmd.Args[0] == "ps" {
		s.calls = append(s.calls, cmd)
		return []byte(s.ps()), nil
	}
	return s.fakeRunner.Output(ctx, cmd)
}

func TestStopProject_Idempotent(t *testing.T) {
	h := newHarness(t)
	h.addProject(t, "demo", 5000, true, registry.StatusRunning)
	h.runner.running = true

	if err := h.m.StopProject(context.Background(), "demo"); err != nil {
		t.Fatalf("First stop failed: %v", err)
	}
	if h.runner.count("down") != 1 {
		t.Fatalf("Expected one compose down, got %d", h.runner.count("down"))
	}

	before := len(h.runner.calls)
	if err := h.m.StopProject(context.Background(), "demo"); err != nil {
		t.Fatalf("Second stop failed: %v", err)
	}
	if len(h.runner.calls) != before {
		t.Errorf("Expected no subprocess on second stop, got %v", h.runner.calls[before:])
	}
	if got := h.status(t, "demo"); got != registry.StatusStopped {
		t.Errorf("Expected stopped, got %s", got)
	}
}

func TestStopProject_StaleStoppedWithLivePIDs(t *testing.T) {
	h := newHarness(t)
	h.addProject(t, "demo", 5000, true, registry.StatusStopped)
	if err := h.m.state.Save("demo", State{PIDs: []int{101}}); err != nil {
		t.Fatal(err)
	}
	h.procs.alive[101] = true
	h.runner.running = true

	if err := h.m.StopProject(context.Background(), "demo"); err != nil {
		t.Fatal(err)
	}
	if h.runner.count("down") != 1 {
		t.Errorf("Expected compose down for live PIDs behind a stopped status, got %d", h.runner.count("down"))
	}
	if h.procs.alive[101] {
		t.Error("Expected PID 101 to be signalled away")
	}
	if h.stateExists("demo") {
		t.Error("Expected runtime state to be deleted")
	}
	if got := h.status(t, "demo"); got != registry.StatusStopped {
		t.Errorf("Expected stopped, got %s", got)
	}
}

func TestStopProject_TimeoutKills(t *testing.T) {
	h := newHarness(t)
	h.addProject(t, "demo", 5000, true, registry.StatusRunning)
	if err := h.m.state.Save("demo", State{PIDs: []int{101, 102, 103}}); err != nil {
		t.Fatal(err)
	}
	h.procs.alive[101] = true
	h.procs.alive[102] = true
	h.runner.downErr = fmt.Errorf("%w: compose down", compose.ErrTimeout)

	if err := h.m.StopProject(context.Background(), "demo"); err != nil {
		t.Fatalf("StopProject must not fail on timeout, got %v", err)
	}

	want := []sent{{101, syscall.SIGKILL}, {102, syscall.SIGKILL}}
	if !reflect.DeepEqual(h.procs.signals, want) {
		t.Errorf("Expected %v, got %v", want, h.procs.signals)
	}
	if len(h.sleeps) != 0 {
		t.Errorf("Expected no grace period on timeout, got %v", h.sleeps)
	}
	if got := h.status(t, "demo"); got != registry.StatusStopped {
		t.Errorf("Expected stopped, got %s", got)
	}
	if h.stateExists("demo") {
		t.Error("Expected runtime state to be deleted")
	}
}

func TestStopProject_TermThenKill(t *testing.T) {
	h := newHarness(t)
	h.addProject(t, "demo", 5000, true, registry.StatusRunning)
	if err := h.m.state.Save("demo", State{PIDs: []int{101, 102}}); err != nil {
		t.Fatal(err)
	}
	h.procs.alive[101] = true
	h.procs.alive[102] = true
	h.procs.stubborn[101] = true

	if err := h.m.StopProject(context.Background(), "demo"); err != nil {
		t.Fatal(err)
	}

	want := []sent{{101, syscall.SIGTERM}, {102, syscall.SIGTERM}, {101, syscall.SIGKILL}}
	if !reflect.DeepEqual(h.procs.signals, want) {
		t.Errorf("Expected %v, got %v", want, h.procs.signals)
	}
	wantSleeps := []time.Duration{h.m.timeouts.StopSettle, h.m.timeouts.Grace}
	if !reflect.DeepEqual(h.sleeps, wantSleeps) {
		t.Errorf("Expected sleeps %v, got %v", wantSleeps, h.sleeps)
	}
}

func TestStopProject_DownFailureStillStops(t *testing.T) {
	h := newHarness(t)
	h.addProject(t, "demo", 5000, true, registry.StatusError)
	h.runner.downErr = &compose.ExitError{Args: []string{"down"}, Code: 1, Stderr: "daemon not running"}

	if err := h.m.StopProject(context.Background(), "demo"); err != nil {
		t.Fatal(err)
	}
	if got := h.status(t, "demo"); got != registry.StatusStopped {
		t.Errorf("Expected stopped, got %s", got)
	}
	if err := h.m.StopProject(context.Background(), "nope"); KindOf(err) != KindNotFound {
		t.Errorf("Expected KindNotFound for unknown project, got %v", err)
	}
}

func TestRestartProject(t *testing.T) {
	h := newHarness(t)
	h.addProject(t, "demo", 5000, true, registry.StatusRunning)
	h.runner.running = true

	if err := h.m.RestartProject(context.Background(), "demo", StartOptions{}); err != nil {
		t.Fatalf("RestartProject failed: %v", err)
	}
	var verbs []string
	for _, c := range h.runner.calls {
		verbs = append(verbs, c.Args[0])
	}
	// down, then the start sequence: status ps, up, PID capture ps
	want := []string{"down", "ps", "up", "ps"}
	if !reflect.DeepEqual(verbs, want) {
		t.Errorf("Expected %v, got %v", want, verbs)
	}
	if h.sleeps[0] != h.m.timeouts.RestartPause {
		t.Errorf("Expected restart pause first, got %v", h.sleeps)
	}
}

func TestHealthCheck_SucceedsOnThirdAttempt(t *testing.T) {
	h := newHarness(t)
	h.addProject(t, "demo", 5000, false, registry.StatusRunning)

	attempts := 0
	h.m.client = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		attempts++
		if r.URL.String() != "http://localhost:5000/" {
			t.Errorf("Unexpected URL %s", r.URL)
		}
		if attempts < 3 {
			return nil, errors.New("connection refused")
		}
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("ok")), Header: http.Header{}, Request: r}, nil
	})}

	ok, err := h.m.HealthCheck(context.Background(), "demo")
	if err != nil || !ok {
		t.Fatalf("Expected healthy, got %v (%v)", ok, err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
	want := []time.Duration{h.m.timeouts.HealthRetryDelay, h.m.timeouts.HealthRetryDelay}
	if !reflect.DeepEqual(h.sleeps, want) {
		t.Errorf("Expected two retry delays, got %v", h.sleeps)
	}
	if h.m.RuntimeState("demo").LastHealthCheck == nil {
		t.Error("Expected LastHealthCheck to be recorded")
	}
}

func TestHealthCheck_Unhealthy(t *testing.T) {
	h := newHarness(t)
	h.addProject(t, "demo", 5000, false, registry.StatusRunning)
	attempts := 0
	h.m.client = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		attempts++
		return &http.Response{StatusCode: http.StatusServiceUnavailable, Body: io.NopCloser(strings.NewReader("")), Header: http.Header{}, Request: r}, nil
	})}

	ok, err := h.m.HealthCheck(context.Background(), "demo")
	if err != nil || ok {
		t.Fatalf("Expected unhealthy without error, got %v (%v)", ok, err)
	}
	if attempts != 3 || len(h.sleeps) != 2 {
		t.Errorf("Expected 3 attempts and 2 delays, got %d and %d", attempts, len(h.sleeps))
	}
	if h.stateExists("demo") {
		t.Error("Expected no state written for a failed check")
	}
}

func TestHealthCheck_NoPort(t *testing.T) {
	h := newHarness(t)
	if _, err := h.reg.Register("demo", t.TempDir(), 0); err != nil {
		t.Fatal(err)
	}
	h.m.client = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		t.Fatal("no request expected without a port")
		return nil, nil
	})}
	ok, err := h.m.HealthCheck(context.Background(), "demo")
	if err != nil || ok {
		t.Errorf("Expected false without error, got %v (%v)", ok, err)
	}
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name    string
		cached  registry.Status
		compose bool
		psOut   string
		psErr   error
		pids    []int
		want    registry.Status
	}{
		{name: "all exited persists stopped", cached: registry.StatusRunning, compose: true, psOut: exitedPS, want: registry.StatusStopped},
		{name: "running container", cached: registry.StatusStopped, compose: true, psOut: runningPS, want: registry.StatusRunning},
		{name: "live pid counts", cached: registry.StatusStopped, compose: true, psOut: exitedPS, pids: []int{77}, want: registry.StatusRunning},
		{name: "ps failure is error", cached: registry.StatusRunning, compose: true, psErr: &compose.ExitError{Code: 1}, want: registry.StatusError},
		{name: "ps timeout is error", cached: registry.StatusRunning, compose: true, psErr: compose.ErrTimeout, want: registry.StatusError},
		{name: "no compose file returns cached", cached: registry.StatusRunning, compose: false, want: registry.StatusRunning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.addProject(t, "demo", 5000, tt.compose, tt.cached)
			h.runner.psOut = tt.psOut
			h.runner.psErr = tt.psErr
			if tt.pids != nil {
				for _, pid := range tt.pids {
					h.procs.alive[pid] = true
				}
				if err := h.m.state.Save("demo", State{PIDs: tt.pids}); err != nil {
					t.Fatal(err)
				}
			}

			got, err := h.m.Status(context.Background(), "demo")
			if err != nil {
				t.Fatalf("Status failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
			if persisted := h.status(t, "demo"); persisted != tt.want {
				t.Errorf("Expected %s persisted, got %s", tt.want, persisted)
			}
			if !tt.compose && len(h.runner.calls) != 0 {
				t.Errorf("Expected no subprocess without a compose file, got %d", len(h.runner.calls))
			}
		})
	}
}

func TestLogs(t *testing.T) {
	h := newHarness(t)
	h.addProject(t, "demo", 5000, true, registry.StatusRunning)

	rc, err := h.m.Logs(context.Background(), "demo", "web", true)
	if err != nil {
		t.Fatalf("Logs failed: %v", err)
	}
	defer rc.Close()
	out, _ := io.ReadAll(rc)
	if string(out) != "web-1 | ready\n" {
		t.Errorf("Unexpected output %q", out)
	}
	want := []string{"logs", "--follow", "web"}
	if got := h.runner.calls[0].Args; !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}

	if _, err := h.m.Logs(context.Background(), "missing", "", false); KindOf(err) != KindNotFound {
		t.Errorf("Expected KindNotFound, got %v", err)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, KindUnknown},
		{errors.New("boom"), KindUnknown},
		{fmt.Errorf("wrap: %w", registry.ErrProjectNotFound), KindNotFound},
		{&ports.ConflictError{Hostname: "x"}, KindPortConflict},
		{ports.ErrPortOutOfRange, KindInvalidPort},
		{compose.ErrFileNotFound, KindComposeFileNotFound},
		{&Error{Op: "start", Hostname: "x", Kind: KindTimeout, Err: errors.New("slow")}, KindTimeout},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v): expected %s, got %s", tt.err, tt.want, got)
		}
	}
}
