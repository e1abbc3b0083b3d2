package cmd

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/gantrydev/gantry/internal/compose"
	"github.com/gantrydev/gantry/internal/config"
	"github.com/gantrydev/gantry/internal/logging"
	"github.com/gantrydev/gantry/internal/orchestrator"
	"github.com/gantrydev/gantry/internal/ports"
	"github.com/gantrydev/gantry/internal/process"
	"github.com/gantrydev/gantry/internal/registry"
)

// App holds every component, built once per invocation from the loaded
// configuration.
type App struct {
	Config   *config.Config
	Logger   *log.Logger
	Registry *registry.Registry
	Ports    *ports.Allocator
	Manager  *process.Manager
	Orch     *orchestrator.Orchestrator

	resolver *process.DockerResolver
}

var app *App

func setupApp() error {
	if app != nil {
		return nil
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}

	reg, err := registry.New(cfg.RegistryPath, cfg.ProjectsDir, logger)
	if err != nil {
		return fmt.Errorf("failed to open registry: %w", err)
	}
	alloc := ports.New(reg, cfg.PortRange, cfg.Timeouts.Bind)
	mgr := process.New(cfg, reg, alloc, compose.NewCLI(cfg.ComposeBinary, logger), logger)

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Ports:    alloc,
		Manager:  mgr,
		Orch:     orchestrator.New(reg, mgr, logger),
	}

	// Only needed when compose ps leaves out PIDs; a missing engine is fine
	if resolver, err := process.NewDockerResolver(); err == nil {
		mgr.SetResolver(resolver)
		a.resolver = resolver
	} else {
		logger.Debug("docker engine API unavailable", "err", err)
	}

	app = a
	return nil
}

func closeApp() {
	if app != nil && app.resolver != nil {
		_ = app.resolver.Close()
	}
}
