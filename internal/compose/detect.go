package compose

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrFileNotFound is returned when a directory has no compose file.
var ErrFileNotFound = errors.New("no docker-compose.yml found")

// FileNames are the compose file names looked up, in order.
var FileNames = []string{"docker-compose.yml", "docker-compose.yaml"}

// ProjectType classifies a project directory.
type ProjectType string

const (
	TypeCompose    ProjectType = "docker-compose"
	TypeDockerfile ProjectType = "dockerfile"
	TypeNative     ProjectType = "native"
)

// FindFile returns the compose file inside dir.
func FindFile(dir string) (string, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if st, err := os.Stat(path); err == nil && !st.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w in %s", ErrFileNotFound, dir)
}

func DetectProjectType(dir string) ProjectType {
	if _, err := FindFile(dir); err == nil {
		return TypeCompose
	}
	if _, err := os.Stat(filepath.Join(dir, "Dockerfile")); err == nil {
		return TypeDockerfile
	}
	return TypeNative
}

type composeFile struct {
	Services map[string]*serviceDef `yaml:"services"`
}

type serviceDef struct {
	Ports []yaml.Node `yaml:"ports"`
}

// File is the part of a compose file gantry cares about.
type File struct {
	Services     []string       // sorted service names
	ServicePorts map[string]int // first published host port per service
}

// Parse reads a compose file. A file that isn't valid YAML or has no
// services yields an empty File, not an error; only I/O errors are
// returned.
func Parse(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read compose file: %w", err)
	}

	f := &File{Services: []string{}, ServicePorts: map[string]int{}}
	var cf composeFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return f, nil
	}

	for name, svc := range cf.Services {
		f.Services = append(f.Services, name)
		if svc == nil {
			continue
		}
		for i := range svc.Ports {
			if port, ok := hostPort(&svc.Ports[i]); ok {
				f.ServicePorts[name] = port
				break
			}
		}
	}
	sort.Strings(f.Services)
	return f, nil
}

// hostPort extracts the published host port from a short ("8080:80",
// "127.0.0.1:8080:80") or long ({published: 8080}) port mapping.
func hostPort(n *yaml.Node) (int, bool) {
	switch n.Kind {
	case yaml.ScalarNode:
		parts := strings.Split(n.Value, ":")
		if len(parts) < 2 {
			return 0, false
		}
		// HOST:CONTAINER or IP:HOST:CONTAINER
		host := parts[len(parts)-2]
		if len(parts) == 2 {
			host = parts[0]
		}
		return atoiPort(host)
	case yaml.MappingNode:
		var long struct {
			Published yaml.Node `yaml:"published"`
		}
		if err := n.Decode(&long); err != nil {
			return 0, false
		}
		return atoiPort(long.Published.Value)
	}
	return 0, false
}

func atoiPort(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 || n > 65535 {
		return 0, false
	}
	return n, true
}

// Services returns the service names declared in the compose file.
func Services(path string) []string {
	f, err := Parse(path)
	if err != nil {
		return nil
	}
	return f.Services
}

// ServicePorts returns the first published host port of each service.
func ServicePorts(path string) map[string]int {
	f, err := Parse(path)
	if err != nil {
		return map[string]int{}
	}
	return f.ServicePorts
}
