package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var v = viper.New()

var rootCmd = &cobra.Command{
	Use:   "gantry",
	Short: "Gantry - local development environment manager",
	Long: `Gantry keeps track of your local docker compose projects: it hands out
host ports without collisions, starts and stops stacks, and watches that
running projects stay healthy.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupApp()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeApp()
	},
}

func Execute() error {
	// Silence usage and errors to avoid cluttering output with Cobra defaults
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true

	// compose runs in its own process group, so Ctrl-C reaches it only
	// through the command context.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("home", "", "gantry home directory (default $GANTRY_HOME or ~/.gantry)")
	pf.String("config", "", "config file (default <home>/config.yaml)")
	pf.String("log-level", "", "log level: debug, info, warn, error")

	_ = v.BindPFlag("home", pf.Lookup("home"))
	_ = v.BindPFlag("config", pf.Lookup("config"))
	_ = v.BindPFlag("log_level", pf.Lookup("log-level"))

	v.SetEnvPrefix("GANTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}
