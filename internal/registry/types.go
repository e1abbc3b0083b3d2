package registry

import (
	"fmt"
	"sort"
	"time"
)

// Status is the cached lifecycle state of a project.
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
	StatusError   Status = "error"
)

func (s Status) Valid() bool {
	switch s {
	case StatusRunning, StatusStopped, StatusError:
		return true
	}
	return false
}

// Project represents a registered development project
type Project struct {
	Hostname         string            `json:"hostname"`          // Unique key, DNS label stem
	Path             string            `json:"path"`              // Absolute path to project directory
	WorkingDirectory string            `json:"working_directory"` // Where compose commands run
	Port             int               `json:"port,omitempty"`    // Primary HTTP port, 0 when unassigned
	Services         []string          `json:"services"`
	ServicePorts     map[string]int    `json:"service_ports"`
	ExposedPorts     []int             `json:"exposed_ports"`
	DockerCompose    bool              `json:"docker_compose"`
	EnvironmentVars  map[string]string `json:"environment_vars"`
	Status           Status            `json:"status"`
	RegisteredAt     time.Time         `json:"registered_at"`
	LastUpdated      time.Time         `json:"last_updated"`
	LastStarted      *time.Time        `json:"last_started,omitempty"`
	LastStatusChange *time.Time        `json:"last_status_change,omitempty"`
}

// HasPort reports whether port is one of the project's exposed ports.
func (p *Project) HasPort(port int) bool {
	for _, ep := range p.ExposedPorts {
		if ep == port {
			return true
		}
	}
	return false
}

// ServiceFor returns the name of the service publishing port. The primary
// port maps to "http" when no named service claims it.
func (p *Project) ServiceFor(port int) string {
	names := make([]string, 0, len(p.ServicePorts))
	for name := range p.ServicePorts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if p.ServicePorts[name] == port {
			return name
		}
	}
	return "http"
}

func (p *Project) clone() *Project {
	c := *p
	c.Services = append([]string(nil), p.Services...)
	c.ExposedPorts = append([]int(nil), p.ExposedPorts...)
	c.ServicePorts = make(map[string]int, len(p.ServicePorts))
	for k, v := range p.ServicePorts {
		c.ServicePorts[k] = v
	}
	c.EnvironmentVars = make(map[string]string, len(p.EnvironmentVars))
	for k, v := range p.EnvironmentVars {
		c.EnvironmentVars[k] = v
	}
	if p.LastStarted != nil {
		t := *p.LastStarted
		c.LastStarted = &t
	}
	if p.LastStatusChange != nil {
		t := *p.LastStatusChange
		c.LastStatusChange = &t
	}
	return &c
}

// normalize fills nil collections so the JSON document never carries nulls.
func (p *Project) normalize() {
	if p.Services == nil {
		p.Services = []string{}
	}
	if p.ServicePorts == nil {
		p.ServicePorts = map[string]int{}
	}
	if p.ExposedPorts == nil {
		p.ExposedPorts = []int{}
	}
	if p.EnvironmentVars == nil {
		p.EnvironmentVars = map[string]string{}
	}
	if p.Status == "" {
		p.Status = StatusStopped
	}
}

func (p *Project) validate() error {
	if p.Hostname == "" {
		return fmt.Errorf("%w: hostname is empty", ErrInvalidPatch)
	}
	if !p.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidPatch, p.Status)
	}
	if p.Port != 0 && !validPort(p.Port) {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidPatch, p.Port)
	}
	for name, port := range p.ServicePorts {
		if name == "" || !validPort(port) {
			return fmt.Errorf("%w: service port %q=%d", ErrInvalidPatch, name, port)
		}
	}
	for _, port := range p.ExposedPorts {
		if !validPort(port) {
			return fmt.Errorf("%w: exposed port %d out of range", ErrInvalidPatch, port)
		}
	}
	return nil
}

func validPort(port int) bool { return port > 0 && port <= 65535 }

// Patch is a partial update of a project's mutable fields. Nil fields are
// left untouched. Hostname, Path and RegisteredAt cannot be patched.
type Patch struct {
	WorkingDirectory *string
	Port             *int
	Services         *[]string
	ServicePorts     *map[string]int
	ExposedPorts     *[]int
	DockerCompose    *bool
	EnvironmentVars  *map[string]string
	Status           *Status
	LastStarted      *time.Time
}

func (pt Patch) apply(p *Project) {
	if pt.WorkingDirectory != nil {
		p.WorkingDirectory = *pt.WorkingDirectory
	}
	if pt.Port != nil {
		p.Port = *pt.Port
	}
	if pt.Services != nil {
		p.Services = dedupStrings(*pt.Services)
	}
	if pt.ServicePorts != nil {
		p.ServicePorts = make(map[string]int, len(*pt.ServicePorts))
		for k, v := range *pt.ServicePorts {
			p.ServicePorts[k] = v
		}
	}
	if pt.ExposedPorts != nil {
		p.ExposedPorts = dedupInts(*pt.ExposedPorts)
	}
	if pt.DockerCompose != nil {
		p.DockerCompose = *pt.DockerCompose
	}
	if pt.EnvironmentVars != nil {
		p.EnvironmentVars = make(map[string]string, len(*pt.EnvironmentVars))
		for k, v := range *pt.EnvironmentVars {
			p.EnvironmentVars[k] = v
		}
	}
	if pt.Status != nil {
		p.Status = *pt.Status
	}
	if pt.LastStarted != nil {
		t := pt.LastStarted.UTC()
		p.LastStarted = &t
	}
}

// Ptr is a helper for building patches.
func Ptr[T any](v T) *T { return &v }

func dedupStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func dedupInts(in []int) []int {
	seen := make(map[int]bool, len(in))
	out := make([]int, 0, len(in))
	for _, n := range in {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// RegistryData holds all registered projects
type RegistryData struct {
	Projects map[string]*Project `json:"projects"` // Map of hostname to Project
}
