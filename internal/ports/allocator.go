// Package ports hands out host ports to projects and detects when two
// projects claim the same one.
package ports

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gantrydev/gantry/internal/config"
	"github.com/gantrydev/gantry/internal/registry"
)

var (
	// ErrNoPortsAvailable is returned when every port in the range is taken.
	ErrNoPortsAvailable = errors.New("no available ports in range")
	// ErrPortOutOfRange is returned for a requested port outside the range.
	ErrPortOutOfRange = errors.New("port outside the allowed range")
)

// Conflict records that port is already claimed by another running project.
type Conflict struct {
	Port               int    `json:"port"`
	ConflictingProject string `json:"conflicting_project"`
	Service            string `json:"service"`
}

func (c Conflict) String() string {
	return fmt.Sprintf("port %d used by %s (%s)", c.Port, c.ConflictingProject, c.Service)
}

// ConflictError carries the full list of conflicts found for a project.
type ConflictError struct {
	Hostname  string
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	parts := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		parts[i] = c.String()
	}
	return fmt.Sprintf("port conflict(s) for %s: %s", e.Hostname, strings.Join(parts, "; "))
}

// Projects is the part of the registry the allocator reads.
type Projects interface {
	Get(hostname string) (*registry.Project, error)
	List() ([]*registry.Project, error)
	Running() ([]*registry.Project, error)
}

// Allocator scans a fixed port range for free ports.
type Allocator struct {
	projects    Projects
	portRange   config.PortRange
	bindTimeout time.Duration

	// probe reports OS-level availability; tests replace it.
	probe func(port int) bool
}

func New(projects Projects, portRange config.PortRange, bindTimeout time.Duration) *Allocator {
	a := &Allocator{
		projects:    projects,
		portRange:   portRange,
		bindTimeout: bindTimeout,
	}
	a.probe = a.bind
	return a
}

// Range returns the inclusive range ports are allocated from.
func (a *Allocator) Range() config.PortRange { return a.portRange }

// ValidatePort checks that a caller-chosen port lies inside the range.
func (a *Allocator) ValidatePort(port int) error {
	if !a.portRange.Contains(port) {
		return fmt.Errorf("%w: %d not in %d-%d", ErrPortOutOfRange, port, a.portRange.Min, a.portRange.Max)
	}
	return nil
}

// IsPortAvailable reports whether a TCP listener could be bound on
// 127.0.0.1:port at the instant of the call.
func (a *Allocator) IsPortAvailable(port int) bool {
	return a.probe(port)
}

func (a *Allocator) bind(port int) bool {
	if port < 1 || port > 65535 {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.bindTimeout)
	defer cancel()

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

// Allocate returns the lowest port in range that no registered project
// claims and that is currently bindable. Stopped projects keep their
// ports reserved.
func (a *Allocator) Allocate() (int, error) {
	projects, err := a.projects.List()
	if err != nil {
		return 0, err
	}
	claimed := make(map[int]bool)
	for _, p := range projects {
		for _, port := range p.ExposedPorts {
			claimed[port] = true
		}
		if p.Port != 0 {
			claimed[p.Port] = true
		}
	}

	for port := a.portRange.Min; port <= a.portRange.Max; port++ {
		if claimed[port] {
			continue
		}
		if a.IsPortAvailable(port) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("%w (%d-%d)", ErrNoPortsAvailable, a.portRange.Min, a.portRange.Max)
}

// CheckConflicts returns one Conflict per (port, running project) pair
// where another running project exposes the port. hostname itself is
// never reported.
func (a *Allocator) CheckConflicts(hostname string, candidates []int) ([]Conflict, error) {
	running, err := a.projects.Running()
	if err != nil {
		return nil, err
	}

	var conflicts []Conflict
	for _, port := range candidates {
		for _, other := range running {
			if other.Hostname == hostname {
				continue
			}
			if other.HasPort(port) {
				conflicts = append(conflicts, Conflict{
					Port:               port,
					ConflictingProject: other.Hostname,
					Service:            other.ServiceFor(port),
				})
			}
		}
	}
	return conflicts, nil
}

// ValidateStartupPorts returns a *ConflictError when any of the project's
// exposed ports is claimed by another running project.
func (a *Allocator) ValidateStartupPorts(hostname string) error {
	project, err := a.projects.Get(hostname)
	if err != nil {
		return err
	}
	conflicts, err := a.CheckConflicts(hostname, project.ExposedPorts)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		return &ConflictError{Hostname: hostname, Conflicts: conflicts}
	}
	return nil
}

// Usage maps every exposed port to the hostnames claiming it.
func (a *Allocator) Usage() (map[int][]string, error) {
	projects, err := a.projects.List()
	if err != nil {
		return nil, err
	}
	usage := make(map[int][]string)
	for _, p := range projects {
		for _, port := range p.ExposedPorts {
			usage[port] = append(usage[port], p.Hostname)
		}
	}
	for port := range usage {
		sort.Strings(usage[port])
	}
	return usage, nil
}
