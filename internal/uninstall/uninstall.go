// Package uninstall removes the worker installation. Removal runs as a
// detached shell script so it can delete the very binary and unit that
// are executing the request: the worker spawns the script with nohup and
// exits, the script stops the unit, removes every installed artifact, and
// finally deletes itself.
package uninstall

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/wardenhq/warden/internal/config"
)

// Paths names everything removal must touch.
type Paths struct {
	// UnitName is the systemd unit to stop and disable.
	UnitName string

	// DescriptorPath is the unit file removed from disk.
	DescriptorPath string

	// InstallDir is the directory holding the worker binary.
	InstallDir string

	// SocketPath is the request socket file.
	SocketPath string

	// StateDir holds worker-owned state (the audit database).
	StateDir string

	// ConfigDir holds the shared configuration and the authority public
	// key.
	ConfigDir string
}

// PathsFromConfig derives removal paths from the loaded configuration and
// the config file location it was loaded from.
func PathsFromConfig(cfg *config.Config, configPath string) Paths {
	return Paths{
		UnitName:       cfg.UnitName,
		DescriptorPath: cfg.DescriptorPath,
		InstallDir:     filepath.Dir(cfg.WorkerPath),
		SocketPath:     cfg.SocketPath,
		StateDir:       cfg.StateDir,
		ConfigDir:      filepath.Dir(configPath),
	}
}

// Script renders the removal script. The systemctl lines tolerate failure
// so removal proceeds even when the unit was never registered; the script
// deletes itself as its last action.
func Script(p Paths) string {
	return fmt.Sprintf(`#!/bin/bash
set -e

SCRIPT_PATH="$0"

# Stop and disable the worker unit.
systemctl stop %[1]s 2>/dev/null || true
systemctl disable %[1]s 2>/dev/null || true

# Remove the registration descriptor.
rm -f %[2]s

# Remove the worker binary and its install directory.
rm -rf %[3]s

# Remove the request socket, state, and configuration.
rm -f %[4]s
rm -rf %[5]s
rm -rf %[6]s

# Let the service manager forget the unit.
systemctl daemon-reload 2>/dev/null || true

# Clean up this script.
rm -f "$SCRIPT_PATH"
`, p.UnitName, p.DescriptorPath, p.InstallDir, p.SocketPath, p.StateDir, p.ConfigDir)
}

// Run writes the removal script to a temp file and spawns it detached,
// so it keeps running after the calling process exits. The caller is
// expected to exit promptly afterwards; the script stops the unit, which
// terminates the worker if it has not exited on its own.
func Run(p Paths, logger *slog.Logger) error {
	tmp, err := os.CreateTemp("", "warden-uninstall-*.sh")
	if err != nil {
		return fmt.Errorf("create uninstall script: %w", err)
	}
	scriptPath := tmp.Name()

	if _, err := tmp.WriteString(Script(p)); err != nil {
		tmp.Close()
		os.Remove(scriptPath)
		return fmt.Errorf("write uninstall script: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(scriptPath)
		return fmt.Errorf("close uninstall script: %w", err)
	}
	if err := os.Chmod(scriptPath, 0700); err != nil {
		os.Remove(scriptPath)
		return fmt.Errorf("chmod uninstall script: %w", err)
	}

	logger.Info("spawning uninstall script",
		slog.String("path", scriptPath),
		slog.String("unit", p.UnitName))

	// nohup + background keeps the script alive past our exit.
	cmd := exec.Command("/bin/bash", "-c", "nohup "+scriptPath+" > /dev/null 2>&1 &")
	if err := cmd.Start(); err != nil {
		os.Remove(scriptPath)
		return fmt.Errorf("start uninstall script: %w", err)
	}

	return nil
}
