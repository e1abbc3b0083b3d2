// Package routing turns registered projects into reverse proxy routes and
// renders them as a Caddyfile.
package routing

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/gantrydev/gantry/internal/registry"
)

// Route maps a domain to a local port.
type Route struct {
	Domain string `json:"domain"`
	Port   int    `json:"port"`
}

var servicePatterns = []struct {
	pattern     string
	serviceType string
}{
	{"postgresql", "database"},
	{"postgres", "database"},
	{"mysql", "database"},
	{"mariadb", "database"},
	{"redis", "cache"},
	{"mailhog", "mail"},
	{"mailcatcher", "mail"},
	{"adminer", "db-admin"},
}

// ServiceType classifies a compose service by name, e.g. "project-postgres"
// is a database. Unknown services return "".
func ServiceType(name string) string {
	lower := strings.ToLower(name)
	for _, sp := range servicePatterns {
		if strings.Contains(lower, sp.pattern) {
			return sp.serviceType
		}
	}
	return ""
}

// Routes returns <hostname>.<tld> for the primary port followed by
// <service>.<hostname>.<tld> for each service on a different port, in
// service name order.
func Routes(p *registry.Project, tld string) []Route {
	var routes []Route
	if p.Port != 0 {
		routes = append(routes, Route{Domain: p.Hostname + "." + tld, Port: p.Port})
	}

	names := make([]string, 0, len(p.ServicePorts))
	for name := range p.ServicePorts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		port := p.ServicePorts[name]
		if port == p.Port {
			continue
		}
		routes = append(routes, Route{Domain: name + "." + p.Hostname + "." + tld, Port: port})
	}
	return routes
}

// Caddyfile renders one reverse_proxy site block per route of every
// project, ordered by hostname.
func Caddyfile(projects []*registry.Project, tld string) []byte {
	sorted := append([]*registry.Project(nil), projects...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Hostname < sorted[j].Hostname })

	var buf bytes.Buffer
	buf.WriteString("# Generated by gantry. Do not edit.\n")
	for _, p := range sorted {
		for _, r := range Routes(p, tld) {
			fmt.Fprintf(&buf, "\n%s {\n\ttls internal\n\treverse_proxy localhost:%d\n}\n", r.Domain, r.Port)
		}
	}
	return buf.Bytes()
}
