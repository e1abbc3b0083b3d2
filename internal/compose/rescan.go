package compose

import (
	"os"
	"sort"
)

// Changes is the difference between what a project directory declares
// now and what the registry recorded.
type Changes struct {
	ServicesAdded   []string       `json:"services_added,omitempty"`
	ServicesRemoved []string       `json:"services_removed,omitempty"`
	PortsAdded      map[string]int `json:"ports_added,omitempty"`
	PortsRemoved    []string       `json:"ports_removed,omitempty"`
	PortsChanged    map[string]int `json:"ports_changed,omitempty"` // service -> new port
	ComposeRemoved  bool           `json:"compose_removed,omitempty"`
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return len(c.ServicesAdded) == 0 && len(c.ServicesRemoved) == 0 &&
		len(c.PortsAdded) == 0 && len(c.PortsRemoved) == 0 &&
		len(c.PortsChanged) == 0 && !c.ComposeRemoved
}

// Known is what the registry currently believes about a project.
type Known struct {
	Services      []string
	ServicePorts  map[string]int
	DockerCompose bool
}

// Rescan compares the compose file in dir with known. It also returns the
// freshly parsed file (nil when the directory or compose file is gone).
func Rescan(dir string, known Known) (Changes, *File) {
	var changes Changes

	removeAll := func() {
		changes.ComposeRemoved = true
		changes.ServicesRemoved = sortedCopy(known.Services)
		changes.PortsRemoved = sortedKeys(known.ServicePorts)
	}

	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		removeAll()
		return changes, nil
	}
	path, err := FindFile(dir)
	if err != nil {
		if known.DockerCompose {
			removeAll()
		}
		return changes, nil
	}
	f, err := Parse(path)
	if err != nil {
		return changes, nil
	}

	existing := make(map[string]bool, len(known.Services))
	for _, s := range known.Services {
		existing[s] = true
	}
	detected := make(map[string]bool, len(f.Services))
	for _, s := range f.Services {
		detected[s] = true
		if !existing[s] {
			changes.ServicesAdded = append(changes.ServicesAdded, s)
		}
	}
	for s := range existing {
		if !detected[s] {
			changes.ServicesRemoved = append(changes.ServicesRemoved, s)
		}
	}
	sort.Strings(changes.ServicesAdded)
	sort.Strings(changes.ServicesRemoved)

	for s, p := range f.ServicePorts {
		old, ok := known.ServicePorts[s]
		switch {
		case !ok:
			if changes.PortsAdded == nil {
				changes.PortsAdded = map[string]int{}
			}
			changes.PortsAdded[s] = p
		case old != p:
			if changes.PortsChanged == nil {
				changes.PortsChanged = map[string]int{}
			}
			changes.PortsChanged[s] = p
		}
	}
	for s := range known.ServicePorts {
		if _, ok := f.ServicePorts[s]; !ok {
			changes.PortsRemoved = append(changes.PortsRemoved, s)
		}
	}
	sort.Strings(changes.PortsRemoved)

	return changes, f
}

func sortedCopy(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

func sortedKeys(m map[string]int) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
