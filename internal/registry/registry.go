package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofrs/flock"
)

var (
	// ErrProjectNotFound indicates the hostname isn't registered
	ErrProjectNotFound = errors.New("project not found")
	// ErrAlreadyRegistered indicates the hostname is already taken
	ErrAlreadyRegistered = errors.New("project already registered")
	// ErrInvalidPath indicates the path doesn't exist or is not accessible
	ErrInvalidPath = errors.New("invalid path")
	// ErrInvalidPatch indicates an update would leave the project invalid
	ErrInvalidPatch = errors.New("invalid project update")
)

// Registry is the JSON-backed store of registered projects. Every mutation
// reloads the whole document, applies the change and atomically replaces
// the file while holding an advisory lock, so concurrent gantry processes
// serialize their read-modify-write cycles. Reads take no lock: the atomic
// rename guarantees they never observe a partial file.
type Registry struct {
	filePath    string
	projectsDir string
	lock        *flock.Flock
	mu          sync.Mutex
	logger      *log.Logger
	now         func() time.Time
}

// New creates a Registry backed by filePath, keeping per-project
// directories under projectsDir.
func New(filePath, projectsDir string, logger *log.Logger) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}
	if err := os.MkdirAll(projectsDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create projects directory: %w", err)
	}
	return &Registry{
		filePath:    filePath,
		projectsDir: projectsDir,
		lock:        flock.New(filePath + ".lock"),
		logger:      logger.With("component", "registry"),
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// Path returns the location of the registry document.
func (r *Registry) Path() string { return r.filePath }

// ProjectDir returns the private directory of a project.
func (r *Registry) ProjectDir(hostname string) string {
	return filepath.Join(r.projectsDir, hostname)
}

// load reads the registry from disk. A missing or corrupt file yields an
// empty registry.
func (r *Registry) load() (*RegistryData, error) {
	empty := &RegistryData{Projects: make(map[string]*Project)}

	data, err := os.ReadFile(r.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return empty, nil
		}
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}

	var registryData RegistryData
	if err := json.Unmarshal(data, &registryData); err != nil {
		r.logger.Warn("registry file is corrupt, treating as empty", "path", r.filePath, "err", err)
		return empty, nil
	}

	// Initialize map if nil
	if registryData.Projects == nil {
		registryData.Projects = make(map[string]*Project)
	}
	for hostname, p := range registryData.Projects {
		if p == nil {
			delete(registryData.Projects, hostname)
			continue
		}
		p.normalize()
	}
	return &registryData, nil
}

// save persists data via temp file + rename (caller must hold the lock)
func (r *Registry) save(data *RegistryData) error {
	dir := filepath.Dir(r.filePath)

	buf, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	// Write to temp file for atomic replacement
	f, err := os.CreateTemp(dir, ".projects-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmp := f.Name()
	// Best-effort cleanup if we fail; after the rename this is a no-op
	defer func() { _ = os.Remove(tmp) }()

	if _, err := f.Write(buf); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write registry: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to fsync registry: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close registry file: %w", err)
	}

	// Atomic replace
	if err := os.Rename(tmp, r.filePath); err != nil {
		return fmt.Errorf("failed to replace registry: %w", err)
	}

	// Ensure directory metadata is persisted
	if dirf, err := os.Open(dir); err == nil {
		_ = dirf.Sync()
		_ = dirf.Close()
	}
	return nil
}

// mutate runs fn against a freshly loaded document and saves the result
// unless fn fails.
func (r *Registry) mutate(fn func(data *RegistryData) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock registry: %w", err)
	}
	defer func() { _ = r.lock.Unlock() }()

	data, err := r.load()
	if err != nil {
		return err
	}
	if err := fn(data); err != nil {
		return err
	}
	if err := r.save(data); err != nil {
		return fmt.Errorf("persist failed: %w", err)
	}
	return nil
}

// Register adds a new project. port may be 0 for "not yet assigned".
func (r *Registry) Register(hostname, path string, port int) (*Project, error) {
	if hostname == "" {
		return nil, fmt.Errorf("%w: hostname is required", ErrInvalidPatch)
	}
	if port != 0 && !validPort(port) {
		return nil, fmt.Errorf("%w: port %d out of range", ErrInvalidPatch, port)
	}

	// Canonicalize the path
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: path=%s: %v", ErrInvalidPath, path, err)
	}
	if realPath, err := filepath.EvalSymlinks(absPath); err == nil {
		absPath = realPath
	}
	if st, err := os.Stat(absPath); err != nil || !st.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidPath, absPath)
	}

	// The directory exists before the record does, so a failure here
	// leaves nothing registered.
	dir := r.ProjectDir(hostname)
	_, statErr := os.Stat(dir)
	createdDir := os.IsNotExist(statErr)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create project directory: %w", err)
	}

	var project *Project
	err = r.mutate(func(data *RegistryData) error {
		if _, exists := data.Projects[hostname]; exists {
			return fmt.Errorf("%w: %s", ErrAlreadyRegistered, hostname)
		}
		now := r.now()
		project = &Project{
			Hostname:         hostname,
			Path:             absPath,
			WorkingDirectory: absPath,
			Port:             port,
			Status:           StatusStopped,
			RegisteredAt:     now,
			LastUpdated:      now,
		}
		project.normalize()
		data.Projects[hostname] = project
		return nil
	})
	if err != nil {
		if createdDir {
			_ = os.RemoveAll(dir)
		}
		return nil, err
	}

	r.logger.Debug("registered project", "hostname", hostname, "path", absPath, "port", port)
	return project.clone(), nil
}

// Get returns a copy of the project registered under hostname.
func (r *Registry) Get(hostname string) (*Project, error) {
	data, err := r.load()
	if err != nil {
		return nil, err
	}
	p, ok := data.Projects[hostname]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, hostname)
	}
	return p.clone(), nil
}

// List returns all registered projects sorted by hostname
func (r *Registry) List() ([]*Project, error) {
	data, err := r.load()
	if err != nil {
		return nil, err
	}
	projects := make([]*Project, 0, len(data.Projects))
	for _, p := range data.Projects {
		projects = append(projects, p.clone())
	}
	sort.Slice(projects, func(i, j int) bool {
		return projects[i].Hostname < projects[j].Hostname
	})
	return projects, nil
}

// Running returns the projects whose cached status is running.
func (r *Registry) Running() ([]*Project, error) {
	all, err := r.List()
	if err != nil {
		return nil, err
	}
	running := all[:0]
	for _, p := range all {
		if p.Status == StatusRunning {
			running = append(running, p)
		}
	}
	return running, nil
}

// Unregister removes the project and its private directory.
func (r *Registry) Unregister(hostname string) error {
	err := r.mutate(func(data *RegistryData) error {
		if _, ok := data.Projects[hostname]; !ok {
			return fmt.Errorf("%w: %s", ErrProjectNotFound, hostname)
		}
		delete(data.Projects, hostname)
		return nil
	})
	if err != nil {
		return err
	}

	// Best effort: the directory may never have been created
	if err := os.RemoveAll(r.ProjectDir(hostname)); err != nil {
		r.logger.Warn("failed to remove project directory", "hostname", hostname, "err", err)
	}
	r.logger.Debug("unregistered project", "hostname", hostname)
	return nil
}

// Update merges patch onto the stored project and returns the result.
// LastUpdated always advances; LastStatusChange advances only when the
// status actually changes.
func (r *Registry) Update(hostname string, patch Patch) (*Project, error) {
	var updated *Project
	err := r.mutate(func(data *RegistryData) error {
		current, ok := data.Projects[hostname]
		if !ok {
			return fmt.Errorf("%w: %s", ErrProjectNotFound, hostname)
		}

		next := current.clone()
		patch.apply(next)
		if err := next.validate(); err != nil {
			return err
		}

		now := r.now()
		if !now.After(current.LastUpdated) {
			now = current.LastUpdated.Add(time.Microsecond)
		}
		if patch.Status != nil && *patch.Status != current.Status {
			t := now
			next.LastStatusChange = &t
		}
		next.LastUpdated = now

		data.Projects[hostname] = next
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated.clone(), nil
}

// UpdateStatus is shorthand for an Update that only sets the status.
func (r *Registry) UpdateStatus(hostname string, status Status) error {
	_, err := r.Update(hostname, Patch{Status: &status})
	return err
}

// UpdateServicePorts replaces the service port map and exposed port set.
func (r *Registry) UpdateServicePorts(hostname string, servicePorts map[string]int, exposed []int) error {
	_, err := r.Update(hostname, Patch{ServicePorts: &servicePorts, ExposedPorts: &exposed})
	return err
}
