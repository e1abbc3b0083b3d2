//go:build unix

package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/gantrydev/gantry/internal/registry"
)

// Request/Response types

type ListProjectsResponse struct {
	Projects []*registry.Project `json:"projects"`
}

type ProjectResponse struct {
	Project    *registry.Project `json:"project"`
	LiveStatus registry.Status   `json:"live_status,omitempty"`
}

type PortEntry struct {
	Port     int      `json:"port"`
	Projects []string `json:"projects"`
}

type PortsResponse struct {
	Ports []PortEntry `json:"ports"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// Handler methods

// handleListProjects serves GET /api/projects. With ?live=1 the statuses
// are reconciled first.
func (d *Daemon) handleListProjects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Query().Get("live") == "1" && d.deps.Orchestrator != nil {
		d.deps.Orchestrator.AllStatus(r.Context())
	}

	projects, err := d.deps.Projects.List()
	if err != nil {
		writeError(w, fmt.Sprintf("failed to list projects: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, ListProjectsResponse{Projects: projects}, http.StatusOK)
}

// handleProjectByHostname serves GET /api/projects/{hostname}
func (d *Daemon) handleProjectByHostname(w http.ResponseWriter, r *http.Request) {
	hostname := strings.TrimPrefix(r.URL.Path, "/api/projects/")
	if hostname == "" || strings.Contains(hostname, "/") {
		writeError(w, "hostname is required", http.StatusBadRequest)
		return
	}
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	project, err := d.deps.Projects.Get(hostname)
	if err != nil {
		if errors.Is(err, registry.ErrProjectNotFound) {
			writeError(w, "project not found", http.StatusNotFound)
			return
		}
		writeError(w, fmt.Sprintf("failed to load project: %v", err), http.StatusInternalServerError)
		return
	}

	resp := ProjectResponse{Project: project}
	if d.deps.Controller != nil {
		status, err := d.deps.Controller.Status(r.Context(), hostname)
		if err != nil {
			d.logger.Warn("live status failed", "project", hostname, "err", err)
			status = registry.StatusError
		}
		resp.LiveStatus = status
	}
	writeJSON(w, resp, http.StatusOK)
}

// handlePorts serves GET /api/ports, sorted by port.
func (d *Daemon) handlePorts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	usage, err := d.deps.Ports.Usage()
	if err != nil {
		writeError(w, fmt.Sprintf("failed to compute port usage: %v", err), http.StatusInternalServerError)
		return
	}
	entries := make([]PortEntry, 0, len(usage))
	for port, hosts := range usage {
		entries = append(entries, PortEntry{Port: port, Projects: hosts})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Port < entries[j].Port })
	writeJSON(w, PortsResponse{Ports: entries}, http.StatusOK)
}

// Helper functions

func writeJSON(w http.ResponseWriter, data interface{}, status int) {
	buf, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, ErrorResponse{Error: message}, status)
}
