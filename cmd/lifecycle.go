package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gantrydev/gantry/internal/limits"
	"github.com/gantrydev/gantry/internal/process"
)

var (
	startForce bool
	startPort  int
	stopAll    bool
	logsFollow bool
)

var startCmd = &cobra.Command{
	Use:   "start <hostname>",
	Short: "Start a project's docker compose stack",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hostname := args[0]
		err := app.Manager.StartProject(cmd.Context(), hostname, process.StartOptions{Force: startForce, Port: startPort})
		if err != nil {
			return explainStartError(err)
		}
		p, err := app.Registry.Get(hostname)
		if err != nil {
			return err
		}
		fmt.Printf("Started %s\n", hostname)
		if p.Port != 0 {
			fmt.Printf("  http://localhost:%d\n", p.Port)
		}
		return nil
	},
}

func explainStartError(err error) error {
	switch process.KindOf(err) {
	case process.KindPortConflict:
		fmt.Fprintln(os.Stderr, "Port conflicts:")
		for _, c := range process.Conflicts(err) {
			fmt.Fprintf(os.Stderr, "  %d  %s (%s)\n", c.Port, c.ConflictingProject, c.Service)
		}
		return errors.New("refusing to start; stop the other project or pass --force")
	case process.KindAlreadyRunning:
		return fmt.Errorf("%w; use restart to cycle it", err)
	}
	return err
}

var stopCmd = &cobra.Command{
	Use:   "stop [hostname]",
	Short: "Stop a project, or every running project with --all",
	Args: func(cmd *cobra.Command, args []string) error {
		if stopAll {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if stopAll {
			stopped := app.Orch.StopAll(cmd.Context())
			if len(stopped) == 0 {
				fmt.Println("No running projects")
				return nil
			}
			for _, h := range stopped {
				fmt.Printf("Stopped %s\n", h)
			}
			return nil
		}
		if err := app.Manager.StopProject(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Stopped %s\n", args[0])
		return nil
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart <hostname>",
	Short: "Stop and start a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		err := app.Manager.RestartProject(cmd.Context(), args[0], process.StartOptions{Force: startForce, Port: startPort})
		if err != nil {
			return explainStartError(err)
		}
		fmt.Printf("Restarted %s\n", args[0])
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs <hostname> [service]",
	Short: "Show docker compose logs for a project",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		service := ""
		if len(args) == 2 {
			service = args[1]
		}

		ctx := cmd.Context()
		rc, err := app.Manager.Logs(ctx, args[0], service, logsFollow)
		if err != nil {
			return err
		}
		defer rc.Close()

		scanner := bufio.NewScanner(rc)
		scanner.Buffer(make([]byte, 64*1024), limits.LogLine)
		for scanner.Scan() {
			fmt.Println(scanner.Text())
		}
		if err := scanner.Err(); err != nil && !errors.Is(ctx.Err(), context.Canceled) {
			return fmt.Errorf("failed to read logs: %w", err)
		}
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health <hostname>",
	Short: "Probe a project's primary HTTP port",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		healthy, err := app.Manager.HealthCheck(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !healthy {
			return fmt.Errorf("%s is not healthy", args[0])
		}
		fmt.Printf("%s is healthy\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(startCmd, stopCmd, restartCmd, logsCmd, healthCmd)

	for _, c := range []*cobra.Command{startCmd, restartCmd} {
		c.Flags().BoolVarP(&startForce, "force", "f", false, "start even when ports conflict with running projects")
		c.Flags().IntVarP(&startPort, "port", "p", 0, "change the primary port before starting")
	}
	stopCmd.Flags().BoolVarP(&stopAll, "all", "a", false, "stop every running project")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "follow log output")
}
