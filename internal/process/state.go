package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const stateFileName = "state.json"

// State is the disposable runtime record of one start of a project. It is
// deleted on stop and never consulted for anything but PID liveness and
// the last health check.
type State struct {
	RunID           string     `json:"run_id"`
	PIDs            []int      `json:"pids"`
	StartedAt       time.Time  `json:"started_at"`
	LastHealthCheck *time.Time `json:"last_health_check,omitempty"`
}

// stateStore reads and writes state.json inside each project's private
// directory.
type stateStore struct {
	dirFor func(hostname string) string
}

func (s stateStore) path(hostname string) string {
	return filepath.Join(s.dirFor(hostname), stateFileName)
}

// Load returns the state of hostname. A missing or unreadable file yields
// an empty state.
func (s stateStore) Load(hostname string) State {
	data, err := os.ReadFile(s.path(hostname))
	if err != nil {
		return State{}
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}
	}
	return st
}

// Save atomically replaces the state file.
func (s stateStore) Save(hostname string, st State) error {
	dir := s.dirFor(hostname)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}

	buf, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	f, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if _, err := f.Write(buf); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close state file: %w", err)
	}
	if err := os.Rename(tmp, s.path(hostname)); err != nil {
		return fmt.Errorf("failed to replace state: %w", err)
	}
	return nil
}

// Remove deletes the state file; a missing file is not an error.
func (s stateStore) Remove(hostname string) error {
	if err := os.Remove(s.path(hostname)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove state: %w", err)
	}
	return nil
}
