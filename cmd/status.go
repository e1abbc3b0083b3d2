package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gantrydev/gantry/internal/registry"
	"github.com/gantrydev/gantry/internal/routing"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status [hostname]",
	Short: "Show the live status of one or all projects",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return printAllStatus(cmd)
		}

		hostname := args[0]
		status, err := app.Manager.Status(cmd.Context(), hostname)
		if err != nil {
			return err
		}
		p, err := app.Registry.Get(hostname)
		if err != nil {
			return err
		}
		state := app.Manager.RuntimeState(hostname)

		if statusJSON {
			return printJSON(struct {
				*registry.Project
				LiveStatus      registry.Status `json:"live_status"`
				PIDs            []int           `json:"pids,omitempty"`
				LastHealthCheck *time.Time      `json:"last_health_check,omitempty"`
			}{p, status, state.PIDs, state.LastHealthCheck})
		}

		fmt.Printf("%s: %s\n", p.Hostname, status)
		fmt.Printf("  Path:         %s\n", p.Path)
		fmt.Printf("  Port:         %s\n", formatPort(p.Port))
		if len(p.Services) > 0 {
			fmt.Printf("  Services:     %s\n", describeServices(p.Services))
		}
		if len(p.ExposedPorts) > 0 {
			fmt.Printf("  Exposed:      %v\n", p.ExposedPorts)
		}
		if len(state.PIDs) > 0 {
			fmt.Printf("  PIDs:         %v\n", state.PIDs)
		}
		fmt.Printf("  Last started: %s\n", formatTime(p.LastStarted))
		fmt.Printf("  Last health:  %s\n", formatTime(state.LastHealthCheck))
		return nil
	},
}

// describeServices lists service names, tagging the ones routing knows,
// e.g. "db (database), web".
func describeServices(names []string) string {
	parts := make([]string, 0, len(names))
	for _, name := range names {
		if kind := routing.ServiceType(name); kind != "" {
			name = fmt.Sprintf("%s (%s)", name, kind)
		}
		parts = append(parts, name)
	}
	return strings.Join(parts, ", ")
}

func printAllStatus(cmd *cobra.Command) error {
	statuses := app.Orch.AllStatus(cmd.Context())
	if statusJSON {
		return printJSON(statuses)
	}
	if len(statuses) == 0 {
		fmt.Println("No projects registered")
		return nil
	}
	hosts := make([]string, 0, len(statuses))
	for h := range statuses {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)

	w := newTable()
	fmt.Fprintln(w, "HOSTNAME\tSTATUS")
	for _, h := range hosts {
		fmt.Fprintf(w, "%s\t%s\n", h, statuses[h])
	}
	return w.Flush()
}

// configView mirrors the config file layout so the output can be pasted
// back into config.yaml.
type configView struct {
	Home          string            `yaml:"home"`
	Registry      string            `yaml:"registry_path"`
	ProjectsDir   string            `yaml:"projects_dir"`
	Caddyfile     string            `yaml:"caddyfile_path"`
	Socket        string            `yaml:"socket_path"`
	PIDFile       string            `yaml:"pid_file"`
	ComposeBinary string            `yaml:"compose_binary"`
	TLD           string            `yaml:"tld"`
	LogLevel      string            `yaml:"log_level"`
	Ports         map[string]int    `yaml:"ports"`
	Timeouts      map[string]string `yaml:"timeouts"`
	Health        map[string]int    `yaml:"health"`
	WatchInterval string            `yaml:"watch_interval"`
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := app.Config
		t := c.Timeouts
		out, err := yaml.Marshal(configView{
			Home:          c.Home,
			Registry:      c.RegistryPath,
			ProjectsDir:   c.ProjectsDir,
			Caddyfile:     c.CaddyfilePath,
			Socket:        c.SocketPath,
			PIDFile:       c.PIDFile,
			ComposeBinary: c.ComposeBinary,
			TLD:           c.TLD,
			LogLevel:      c.LogLevel,
			Ports:         map[string]int{"min": c.PortRange.Min, "max": c.PortRange.Max},
			Timeouts: map[string]string{
				"bind":               t.Bind.String(),
				"status":             t.Status.String(),
				"up":                 t.Up.String(),
				"down":               t.Down.String(),
				"health_request":     t.HealthRequest.String(),
				"health_retry_delay": t.HealthRetryDelay.String(),
				"settle":             t.Settle.String(),
				"stop_settle":        t.StopSettle.String(),
				"grace":              t.Grace.String(),
				"restart_pause":      t.RestartPause.String(),
			},
			Health:        map[string]int{"attempts": c.HealthAttempts},
			WatchInterval: c.WatchInterval.String(),
		})
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, configCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print JSON")
}
