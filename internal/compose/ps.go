package compose

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Container is one entry of `docker compose ps --format json`.
type Container struct {
	ID      string `json:"ID"`
	Name    string `json:"Name"`
	Service string `json:"Service"`
	State   string `json:"State"`
	Health  string `json:"Health"`
	Pid     int    `json:"-"`
}

// Running reports whether the container is in a running-equivalent state.
func (c Container) Running() bool {
	switch strings.ToLower(c.State) {
	case "running", "up":
		return true
	}
	return false
}

type rawContainer struct {
	ID      string          `json:"ID"`
	Name    string          `json:"Name"`
	Service string          `json:"Service"`
	State   string          `json:"State"`
	Health  string          `json:"Health"`
	Pid     json.RawMessage `json:"Pid"`
}

func (r rawContainer) container() Container {
	return Container{
		ID:      r.ID,
		Name:    r.Name,
		Service: r.Service,
		State:   r.State,
		Health:  r.Health,
		Pid:     parsePid(r.Pid),
	}
}

// parsePid accepts a number or a numeric string; anything else is 0.
func parsePid(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return max(n, 0)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return max(n, 0)
		}
	}
	return 0
}

// ParsePS decodes `compose ps --format json` output. Newer compose versions
// print one JSON object per line, older ones a single JSON array; both are
// accepted. Lines that fail to decode are skipped.
func ParsePS(out []byte) []Container {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return nil
	}

	if trimmed[0] == '[' {
		var raws []rawContainer
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil
		}
		containers := make([]Container, 0, len(raws))
		for _, r := range raws {
			containers = append(containers, r.container())
		}
		return containers
	}

	var containers []Container
	sc := bufio.NewScanner(bytes.NewReader(trimmed))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var r rawContainer
		if err := json.Unmarshal(line, &r); err != nil {
			continue
		}
		containers = append(containers, r.container())
	}
	return containers
}

// AnyRunning reports whether any container is running.
func AnyRunning(containers []Container) bool {
	for _, c := range containers {
		if c.Running() {
			return true
		}
	}
	return false
}
