// Package cli implements the wardenctl command tree. wardenctl is the
// unprivileged controller: it inspects the worker installation, dispatches
// privileged commands over the worker socket, and drives updates, sealing,
// and key management. Everything privileged happens on the worker side;
// wardenctl only holds the authority seed used to mint authorization
// tokens.
package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/transport"
	"github.com/wardenhq/warden/internal/version"
)

var (
	// Global flags
	configPath string
	jsonOutput bool
	verbose    bool
)

// Execute builds the command tree and runs it.
func Execute() error {
	rootCmd := &cobra.Command{
		Use:   "wardenctl",
		Short: "Control the warden privileged worker",
		Long: `wardenctl is the unprivileged controller for the warden worker.

The worker (wardend) runs as a root systemd service and performs a closed
set of privileged operations. wardenctl inspects the installation, runs
commands through the worker socket, applies verified updates, and manages
the sealing and authorization keys.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath, "Path to configuration file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output machine-readable JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging to stderr")

	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newUpdateCmd())
	rootCmd.AddCommand(newUninstallCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newInfoCmd())
	rootCmd.AddCommand(newAuditCmd())
	rootCmd.AddCommand(newKeygenCmd())
	rootCmd.AddCommand(newSealCmd())
	rootCmd.AddCommand(newVerifyCmd())
	rootCmd.AddCommand(newInitCmd())

	return rootCmd.Execute()
}

// loadConfig reads the configuration, falling back to defaults when no
// file exists so inspection commands work on hosts that were never
// initialized.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", configPath, err)
	}
	return cfg, nil
}

// cliLogger returns a logger for the command's collaborators. Human output
// goes to stdout via fmt; the logger stays on stderr so the two never
// interleave.
func cliLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newClient returns a client for the configured worker socket.
func newClient(cfg *config.Config) *transport.Client {
	return transport.NewClient(cfg.SocketPath)
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
