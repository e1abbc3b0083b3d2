package paths

import (
	"os"
	"path/filepath"
)

// DefaultHome is the gantry home directory. GANTRY_HOME overrides it.
func DefaultHome() string {
	if x := os.Getenv("GANTRY_HOME"); x != "" {
		return x
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".gantry")
}

func DefaultRuntimeDir() string {
	if x := os.Getenv("XDG_RUNTIME_DIR"); x != "" {
		return filepath.Join(x, "gantry")
	}
	return DefaultHome()
}

func RegistryPath(home string) string  { return filepath.Join(home, "projects.json") }
func ProjectsDir(home string) string   { return filepath.Join(home, "projects") }
func CaddyfilePath(home string) string { return filepath.Join(home, "Caddyfile") }
func ConfigPath(home string) string    { return filepath.Join(home, "config.yaml") }

func DefaultSocketPath() string { return filepath.Join(DefaultRuntimeDir(), "daemon.sock") }
func DefaultPIDPath() string    { return filepath.Join(DefaultRuntimeDir(), "daemon.pid") }
