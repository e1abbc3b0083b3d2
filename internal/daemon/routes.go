//go:build unix

package daemon

import (
	"net/http"
	"time"
)

func (d *Daemon) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", d.handleHealth)

	mux.HandleFunc("/api/projects", d.handleListProjects)
	mux.HandleFunc("/api/projects/", d.handleProjectByHostname)
	mux.HandleFunc("/api/ports", d.handlePorts)
}

func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	count := 0
	if d.deps.Projects != nil {
		if projects, err := d.deps.Projects.List(); err == nil {
			count = len(projects)
		}
	}
	writeJSON(w, HealthResponse{
		Status:   "ok",
		Uptime:   time.Since(d.startTime).Seconds(),
		Projects: count,
	}, http.StatusOK)
}
