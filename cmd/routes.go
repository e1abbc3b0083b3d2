package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gantrydev/gantry/internal/routing"
)

var routesWrite bool

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Generate reverse proxy routes for registered projects",
	Long: `Print a Caddyfile routing <hostname>.<tld> to each project's primary
port and <service>.<hostname>.<tld> to each service port.

With --write the Caddyfile is saved to the configured caddyfile_path.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		projects, err := app.Registry.List()
		if err != nil {
			return err
		}
		caddyfile := routing.Caddyfile(projects, app.Config.TLD)
		if !routesWrite {
			fmt.Print(string(caddyfile))
			return nil
		}

		path := app.Config.CaddyfilePath
		if err := writeFileAtomic(path, caddyfile); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		fmt.Printf("Wrote %d projects to %s\n", len(projects), path)
		return nil
	},
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".Caddyfile-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func init() {
	rootCmd.AddCommand(routesCmd)
	routesCmd.Flags().BoolVarP(&routesWrite, "write", "w", false, "write the Caddyfile instead of printing it")
}
