//go:build unix

// Package daemon runs gantry in the background: it polls running projects,
// rescans compose files as they change and answers read-only queries over
// a unix socket.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/gantrydev/gantry/internal/apiclient"
	"github.com/gantrydev/gantry/internal/orchestrator"
	"github.com/gantrydev/gantry/internal/registry"
	"golang.org/x/sys/unix"
)

// ensureParentDir ensures the parent directory of the given path exists with secure permissions
func ensureParentDir(path string) error {
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	// Best effort
	_ = os.Chmod(dir, 0o700)

	return nil
}

// removeSocketIfExists removes the socket file if it exists and is actually a socket
func removeSocketIfExists(path string) error {
	fi, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if fi.Mode()&os.ModeSocket != 0 {
		return os.Remove(path)
	}

	return fmt.Errorf("refusing to remove non-socket path: %s", path)
}

// Projects is the read side of the registry served over the socket.
type Projects interface {
	Get(hostname string) (*registry.Project, error)
	List() ([]*registry.Project, error)
}

// PortUsage reports which projects claim which ports.
type PortUsage interface {
	Usage() (map[int][]string, error)
}

type Config struct {
	SocketPath      string
	PIDFile         string
	WatchInterval   time.Duration
	ComposeDebounce time.Duration
	ComposeResync   time.Duration
}

// Deps are the components a serving daemon needs. Stop and status checks
// work with a zero Deps.
type Deps struct {
	Projects     Projects
	Ports        PortUsage
	Orchestrator *orchestrator.Orchestrator
	Controller   orchestrator.Controller
}

type Daemon struct {
	cfg      Config
	deps     Deps
	listener net.Listener
	server   *http.Server
	client   *apiclient.Client
	logger   *log.Logger

	startTime time.Time
}

func New(cfg Config, deps Deps, logger *log.Logger) *Daemon {
	if cfg.ComposeDebounce <= 0 {
		cfg.ComposeDebounce = 500 * time.Millisecond
	}
	if cfg.ComposeResync <= 0 {
		cfg.ComposeResync = 30 * time.Second
	}
	return &Daemon{
		cfg:       cfg,
		deps:      deps,
		client:    apiclient.New(cfg.SocketPath),
		logger:    logger.With("component", "daemon"),
		startTime: time.Now().UTC(),
	}
}

func (d *Daemon) Start() error {
	if d.IsRunning() {
		pid, _ := d.readPIDFile()
		return fmt.Errorf("daemon already running (PID: %d)", pid)
	}
	if d.deps.Projects == nil || d.deps.Orchestrator == nil {
		return errors.New("daemon started without its components")
	}

	return d.startForeground()
}

func (d *Daemon) startForeground() error {
	if err := ensureParentDir(d.cfg.SocketPath); err != nil {
		return fmt.Errorf("failed to prepare socket directory: %w", err)
	}

	// Remove any existing socket (but only if it's actually a socket)
	if err := removeSocketIfExists(d.cfg.SocketPath); err != nil {
		return err
	}

	listener, err := net.Listen("unix", d.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("failed to create socket: %w", err)
	}
	d.listener = listener

	// Owner only
	if err := os.Chmod(d.cfg.SocketPath, 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	if err := d.writePIDFile(); err != nil {
		listener.Close()
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	mux := http.NewServeMux()
	d.setupRoutes(mux)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	go d.deps.Orchestrator.Watch(ctx, d.cfg.WatchInterval)
	go func() {
		w := d.deps.Orchestrator.NewComposeWatcher(d.cfg.ComposeDebounce, d.cfg.ComposeResync)
		if err := w.Run(ctx); err != nil {
			d.logger.Warn("compose watcher stopped", "err", err)
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		d.logger.Info("daemon started", "pid", os.Getpid(), "socket", d.cfg.SocketPath, "watch_interval", d.cfg.WatchInterval)
		serverErr <- d.server.Serve(listener)
	}()

	select {
	case sig := <-sigChan:
		d.logger.Info("shutting down", "signal", sig)
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("server error", "err", err)
		}
	}

	cancel()
	d.shutdown()
	return nil
}

func (d *Daemon) Stop() error {
	pid, err := d.readPIDFile()
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("daemon not running")
		}
		return fmt.Errorf("failed reading pidfile: %w", err)
	}

	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}

	// Wait for shutdown (max 5 seconds)
	for i := 0; i < 50; i++ {
		if !d.IsRunning() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("daemon did not stop gracefully")
}

func (d *Daemon) GetStatus() (*StatusInfo, error) {
	info := &StatusInfo{
		SocketPath: d.cfg.SocketPath,
	}

	pid, err := d.readPIDFile()
	if err != nil {
		// No PID file
		return info, nil
	}

	info.PID = pid

	if !isProcessAlive(pid) {
		// Stale PID file
		return info, nil
	}

	// Verify identity through the socket
	health, err := d.getHealth()
	if err != nil {
		info.ErrorMessage = err.Error()
		return info, nil
	}

	info.Running = true
	info.Uptime = time.Duration(health.Uptime * float64(time.Second))
	info.Projects = health.Projects
	return info, nil
}

func (d *Daemon) IsRunning() bool {
	pid, err := d.readPIDFile()
	if err != nil {
		return false
	}

	if !isProcessAlive(pid) {
		return false
	}

	// A live PID alone could be a reused one
	if _, err := d.getHealth(); err != nil {
		return false
	}

	return true
}

func (d *Daemon) shutdown() {
	if d.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.server.Shutdown(ctx); err != nil {
			d.logger.Warn("server shutdown error", "err", err)
		}
	}

	d.client.CloseIdleConnections()

	if d.listener != nil {
		d.listener.Close()
	}

	_ = removeSocketIfExists(d.cfg.SocketPath)
	_ = os.Remove(d.cfg.PIDFile)
	d.logger.Info("daemon stopped")
}

func (d *Daemon) writePIDFile() error {
	pid := os.Getpid()

	if err := ensureParentDir(d.cfg.PIDFile); err != nil {
		return fmt.Errorf("failed to create PID file directory: %w", err)
	}

	// O_EXCL so two daemons can't both win
	for {
		f, err := os.OpenFile(d.cfg.PIDFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			defer f.Close()
			_, err = f.WriteString(strconv.Itoa(pid))
			return err
		}
		if !os.IsExist(err) {
			return fmt.Errorf("failed to create PID file: %w", err)
		}
		if oldPID, err2 := d.readPIDFile(); err2 == nil && isProcessAlive(oldPID) {
			return fmt.Errorf("daemon already running (PID: %d)", oldPID)
		}
		// Stale PID file; remove and retry
		if err := os.Remove(d.cfg.PIDFile); err != nil {
			return fmt.Errorf("stale pidfile exists and cannot remove: %w", err)
		}
	}
}

// isProcessAlive checks if a process with the given PID is alive
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

func (d *Daemon) readPIDFile() (int, error) {
	data, err := os.ReadFile(d.cfg.PIDFile)
	if err != nil {
		return 0, err
	}

	return strconv.Atoi(strings.TrimSpace(string(data)))
}

type HealthResponse struct {
	Status   string  `json:"status"`
	Uptime   float64 `json:"uptime"`
	Projects int     `json:"projects"`
}

type StatusInfo struct {
	Running      bool
	PID          int
	SocketPath   string
	Uptime       time.Duration
	Projects     int
	ErrorMessage string // For when process exists but not responding
}

func (d *Daemon) getHealth() (*HealthResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var health HealthResponse
	if err := d.client.GetJSON(ctx, "/health", &health); err != nil {
		return nil, err
	}
	return &health, nil
}
