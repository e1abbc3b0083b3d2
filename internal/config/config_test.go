package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func newViper(home string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("GANTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.Set("home", home)
	return v
}

func TestLoad_Defaults(t *testing.T) {
	home := t.TempDir()
	cfg, err := Load(newViper(home))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.RegistryPath != filepath.Join(home, "projects.json") {
		t.Errorf("Unexpected registry path %s", cfg.RegistryPath)
	}
	if cfg.PortRange != (PortRange{Min: 5000, Max: 5999}) {
		t.Errorf("Unexpected port range %+v", cfg.PortRange)
	}
	if cfg.Timeouts.Up != 120*time.Second || cfg.Timeouts.Bind != 100*time.Millisecond {
		t.Errorf("Unexpected timeouts %+v", cfg.Timeouts)
	}
	if cfg.HealthAttempts != 3 || cfg.ComposeBinary != "docker" || cfg.TLD != "test" {
		t.Errorf("Unexpected defaults %+v", cfg)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	home := t.TempDir()
	yaml := `
ports:
  min: 7000
  max: 7099
timeouts:
  up: 5m
tld: localhost
`
	if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GANTRY_COMPOSE_BINARY", "podman")
	t.Setenv("GANTRY_TIMEOUTS_DOWN", "45s")

	cfg, err := Load(newViper(home))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.PortRange != (PortRange{Min: 7000, Max: 7099}) {
		t.Errorf("Expected file port range, got %+v", cfg.PortRange)
	}
	if cfg.Timeouts.Up != 5*time.Minute {
		t.Errorf("Expected 5m up timeout, got %s", cfg.Timeouts.Up)
	}
	if cfg.TLD != "localhost" {
		t.Errorf("Expected tld from file, got %s", cfg.TLD)
	}
	if cfg.ComposeBinary != "podman" {
		t.Errorf("Expected compose binary from env, got %s", cfg.ComposeBinary)
	}
	if cfg.Timeouts.Down != 45*time.Second {
		t.Errorf("Expected down timeout from env, got %s", cfg.Timeouts.Down)
	}
	// Untouched keys keep their defaults
	if cfg.Timeouts.Status != 10*time.Second {
		t.Errorf("Expected default status timeout, got %s", cfg.Timeouts.Status)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	home := t.TempDir()
	if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte("ports: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(newViper(home)); err == nil {
		t.Error("Expected error for malformed config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"inverted range", func(c *Config) { c.PortRange = PortRange{Min: 6000, Max: 5000} }},
		{"zero min", func(c *Config) { c.PortRange.Min = 0 }},
		{"no health attempts", func(c *Config) { c.HealthAttempts = 0 }},
		{"no binary", func(c *Config) { c.ComposeBinary = "" }},
		{"zero timeout", func(c *Config) { c.Timeouts.Up = 0 }},
		{"zero watch interval", func(c *Config) { c.WatchInterval = 0 }},
	}

	if err := Default(t.TempDir()).Validate(); err != nil {
		t.Fatalf("Expected defaults to validate, got %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default(t.TempDir())
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestPortRangeContains(t *testing.T) {
	r := PortRange{Min: 5000, Max: 5999}
	for port, want := range map[int]bool{4999: false, 5000: true, 5999: true, 6000: false} {
		if got := r.Contains(port); got != want {
			t.Errorf("Contains(%d): expected %v, got %v", port, want, got)
		}
	}
}
