package cmd

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/gantrydev/gantry/internal/compose"
	"github.com/gantrydev/gantry/internal/registry"
	"github.com/gantrydev/gantry/internal/workspace"
)

var (
	regName string
	regPort int
	regJSON bool
)

var registerCmd = &cobra.Command{
	Use:   "register [path]",
	Short: "Register a project directory",
	Long: `Register a project directory under a hostname.

The hostname defaults to the name of the git repository (or directory)
containing path. A port is allocated from the configured range unless
--port is given, and docker compose services are detected.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "."
		if len(args) == 1 {
			path = args[0]
		}

		hostname := regName
		if hostname == "" {
			hostname = workspace.DefaultHostname(path)
		}
		if err := workspace.ValidateHostname(hostname); err != nil {
			return err
		}

		port := regPort
		if port != 0 {
			if err := app.Ports.ValidatePort(port); err != nil {
				return err
			}
		} else {
			allocated, err := app.Ports.Allocate()
			if err != nil {
				return err
			}
			port = allocated
		}

		p, err := app.Registry.Register(hostname, path, port)
		if err != nil {
			if errors.Is(err, registry.ErrAlreadyRegistered) {
				return fmt.Errorf("%q is already registered; pick another name with --name", hostname)
			}
			return err
		}
		if err := app.Registry.UpdateServicePorts(hostname, map[string]int{}, []int{port}); err != nil {
			return err
		}
		if _, err := app.Orch.Rescan(hostname); err != nil {
			return err
		}
		if p, err = app.Registry.Get(hostname); err != nil {
			return err
		}

		if regJSON {
			return printJSON(p)
		}
		fmt.Printf("Registered %s at %s\n", p.Hostname, p.Path)
		fmt.Printf("  Type: %s\n", compose.DetectProjectType(p.Path))
		fmt.Printf("  Port: %d\n", p.Port)
		if len(p.Services) > 0 {
			fmt.Printf("  Services: %v\n", p.Services)
		}
		return nil
	},
}

var listLive, listJSON bool

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List registered projects",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if listLive {
			app.Orch.AllStatus(cmd.Context())
		}
		projects, err := app.Registry.List()
		if err != nil {
			return err
		}
		if listJSON {
			return printJSON(projects)
		}
		if len(projects) == 0 {
			fmt.Println("No projects registered")
			return nil
		}
		w := newTable()
		fmt.Fprintln(w, "HOSTNAME\tSTATUS\tPORT\tSERVICES\tPATH")
		for _, p := range projects {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", p.Hostname, p.Status, formatPort(p.Port), len(p.Services), p.Path)
		}
		return w.Flush()
	},
}

var unregisterForce bool

var unregisterCmd = &cobra.Command{
	Use:     "unregister <hostname>",
	Aliases: []string{"rm"},
	Short:   "Remove a project from the registry",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hostname := args[0]
		p, err := app.Registry.Get(hostname)
		if err != nil {
			return err
		}
		if p.Status == registry.StatusRunning {
			if !unregisterForce {
				return fmt.Errorf("%s is running; stop it first or pass --force", hostname)
			}
			if err := app.Manager.StopProject(cmd.Context(), hostname); err != nil {
				return err
			}
		}
		if err := app.Registry.Unregister(hostname); err != nil {
			return err
		}
		fmt.Printf("Unregistered %s\n", hostname)
		return nil
	},
}

var updateAll bool

var updateCmd = &cobra.Command{
	Use:   "update [hostname]",
	Short: "Rescan compose files and record service and port changes",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if updateAll || len(args) == 0 {
			changed := app.Orch.RescanAll()
			if len(changed) == 0 {
				fmt.Println("No changes")
				return nil
			}
			hosts := make([]string, 0, len(changed))
			for h := range changed {
				hosts = append(hosts, h)
			}
			sort.Strings(hosts)
			for _, h := range hosts {
				printChanges(h, changed[h])
			}
			return nil
		}

		changes, err := app.Orch.Rescan(args[0])
		if err != nil {
			return err
		}
		if changes.Empty() {
			fmt.Printf("%s: no changes\n", args[0])
			return nil
		}
		printChanges(args[0], changes)
		return nil
	},
}

func printChanges(hostname string, c compose.Changes) {
	fmt.Printf("%s:\n", hostname)
	if c.ComposeRemoved {
		fmt.Println("  compose file removed")
	}
	for _, s := range c.ServicesAdded {
		fmt.Printf("  + service %s\n", s)
	}
	for _, s := range c.ServicesRemoved {
		fmt.Printf("  - service %s\n", s)
	}
	for s, p := range c.PortsAdded {
		fmt.Printf("  + port %s:%d\n", s, p)
	}
	for s, p := range c.PortsChanged {
		fmt.Printf("  ~ port %s -> %d\n", s, p)
	}
	for _, s := range c.PortsRemoved {
		fmt.Printf("  - port %s\n", s)
	}
}

func init() {
	rootCmd.AddCommand(registerCmd, listCmd, unregisterCmd, updateCmd)

	registerCmd.Flags().StringVarP(&regName, "name", "n", "", "hostname to register under (default: repository name)")
	registerCmd.Flags().IntVarP(&regPort, "port", "p", 0, "primary HTTP port (default: allocate one)")
	registerCmd.Flags().BoolVar(&regJSON, "json", false, "print JSON")

	listCmd.Flags().BoolVar(&listLive, "live", false, "reconcile statuses with docker compose first")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "print JSON")

	unregisterCmd.Flags().BoolVarP(&unregisterForce, "force", "f", false, "stop the project first if it is running")

	updateCmd.Flags().BoolVar(&updateAll, "all", false, "rescan every registered project")
}
