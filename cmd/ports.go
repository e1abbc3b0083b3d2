package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var portsJSON, portsCheck bool

var portsCmd = &cobra.Command{
	Use:   "ports [hostname]",
	Short: "Show which projects use which host ports",
	Long: `Show every host port recorded by registered projects.

With a hostname and --check, list the ports that project shares with
projects that are currently running.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if portsCheck {
			if len(args) != 1 {
				return fmt.Errorf("--check needs a hostname")
			}
			conflicts, err := app.Manager.CheckStartupConflicts(args[0])
			if err != nil {
				return err
			}
			if portsJSON {
				return printJSON(conflicts)
			}
			if len(conflicts) == 0 {
				fmt.Printf("%s has no port conflicts\n", args[0])
				return nil
			}
			w := newTable()
			fmt.Fprintln(w, "PORT\tPROJECT\tSERVICE")
			for _, c := range conflicts {
				fmt.Fprintf(w, "%d\t%s\t%s\n", c.Port, c.ConflictingProject, c.Service)
			}
			return w.Flush()
		}

		usage, err := app.Ports.Usage()
		if err != nil {
			return err
		}
		if len(args) == 1 {
			p, err := app.Registry.Get(args[0])
			if err != nil {
				return err
			}
			for port := range usage {
				if !p.HasPort(port) {
					delete(usage, port)
				}
			}
		}
		if portsJSON {
			return printJSON(usage)
		}

		allocated := make([]int, 0, len(usage))
		for port := range usage {
			allocated = append(allocated, port)
		}
		sort.Ints(allocated)

		r := app.Ports.Range()
		fmt.Printf("Allocation range: %d-%d\n", r.Min, r.Max)
		if len(allocated) == 0 {
			fmt.Println("No ports in use")
			return nil
		}
		w := newTable()
		fmt.Fprintln(w, "PORT\tPROJECTS")
		for _, port := range allocated {
			fmt.Fprintf(w, "%d\t%s\n", port, strings.Join(usage[port], ", "))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
	portsCmd.Flags().BoolVar(&portsJSON, "json", false, "print JSON")
	portsCmd.Flags().BoolVar(&portsCheck, "check", false, "list conflicts with running projects")
}
