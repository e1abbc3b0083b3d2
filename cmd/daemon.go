package cmd

import (
	"fmt"
	"time"

	"github.com/gantrydev/gantry/internal/daemon"
	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the gantry daemon",
	Long: `Control the gantry background daemon.

The daemon runs in the background and provides:
- Periodic status reconciliation and health checks
- Compose file watching with automatic rescans
- A read-only HTTP API over a Unix socket`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gantry daemon",
	Long: `Start the gantry daemon in foreground mode.

For background operation, use:
  nohup gantry daemon start > /tmp/gantry-daemon.log 2>&1 &`,
	RunE: startDaemon,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the gantry daemon",
	Long:  "Stop the running gantry daemon gracefully.",
	RunE:  stopDaemon,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check daemon status",
	Long:  "Check if the gantry daemon is running and display its status.",
	RunE:  statusDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
}

func daemonConfig() daemon.Config {
	return daemon.Config{
		SocketPath:    app.Config.SocketPath,
		PIDFile:       app.Config.PIDFile,
		WatchInterval: app.Config.WatchInterval,
	}
}

func startDaemon(cmd *cobra.Command, args []string) error {
	d := daemon.New(daemonConfig(), daemon.Deps{
		Projects:     app.Registry,
		Ports:        app.Ports,
		Orchestrator: app.Orch,
		Controller:   app.Manager,
	}, app.Logger)
	return d.Start()
}

func stopDaemon(cmd *cobra.Command, args []string) error {
	d := daemon.New(daemonConfig(), daemon.Deps{}, app.Logger)
	if err := d.Stop(); err != nil {
		return err
	}
	fmt.Println("Gantry daemon stopped")
	return nil
}

func statusDaemon(cmd *cobra.Command, args []string) error {
	d := daemon.New(daemonConfig(), daemon.Deps{}, app.Logger)

	status, err := d.GetStatus()
	if err != nil {
		return err
	}

	// Format for display
	if !status.Running {
		switch {
		case status.PID > 0 && status.ErrorMessage != "":
			fmt.Printf("Gantry daemon process exists (PID: %d) but not responding\n", status.PID)
			fmt.Printf("  Socket: %s\n", status.SocketPath)
			fmt.Printf("  Error: %v\n", status.ErrorMessage)
		case status.PID > 0:
			fmt.Printf("Gantry daemon is not running (stale pidfile)\n")
			fmt.Printf("  Socket: %s\n", status.SocketPath)
		default:
			fmt.Printf("Gantry daemon is not running\n")
			fmt.Printf("  Socket: %s\n", status.SocketPath)
		}
		return nil
	}

	fmt.Printf("Gantry daemon running (PID: %d)\n", status.PID)
	fmt.Printf("  Socket:   %s\n", status.SocketPath)
	fmt.Printf("  Uptime:   %s\n", status.Uptime.Round(time.Second))
	fmt.Printf("  Projects: %d\n", status.Projects)
	return nil
}
