package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

var (
	watchInterval time.Duration
	watchOnce     bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Reconcile statuses and health-check running projects",
	Long: `Run the watch loop in the foreground: every interval each registered
project's status is reconciled with docker compose, and running projects
are health-checked. Stop with Ctrl-C.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if watchOnce {
			app.Orch.WatchOnce(ctx)
			return nil
		}

		interval := watchInterval
		if interval <= 0 {
			interval = app.Config.WatchInterval
		}
		app.Logger.Info("watching projects", "interval", interval)
		app.Orch.Watch(ctx, interval)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "time between passes (default watch_interval)")
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "run a single pass and exit")
}
