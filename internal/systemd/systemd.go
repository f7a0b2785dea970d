// Package systemd integrates the worker with its service manager.
//
// It wraps coreos/go-systemd for the notify protocol (READY/STOPPING for
// Type=notify units, watchdog keepalive for WatchdogSec) and shells out to
// systemctl for the registration probe the status monitor runs. Everything
// degrades gracefully when systemd is absent (development shells): notify
// calls become no-ops and the probe reports an error the caller folds into
// "not registered".
package systemd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// NotifyReady sends sd_notify READY=1, telling systemd that initialization
// is complete and the socket is being served. No-op without NOTIFY_SOCKET.
func NotifyReady() bool {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		slog.Warn("failed to send systemd ready notification", "error", err)
		return false
	}
	if !sent {
		slog.Debug("systemd notification not available (not running under systemd)")
	}
	return sent
}

// NotifyStopping sends sd_notify STOPPING=1 so systemd waits for the process
// to exit instead of killing it. No-op without NOTIFY_SOCKET.
func NotifyStopping() bool {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		slog.Warn("failed to send systemd stopping notification", "error", err)
		return false
	}
	return sent
}

// HealthCheckFunc reports whether the service is healthy. StartWatchdog
// skips the keepalive ping while it returns false, letting systemd restart
// a wedged worker.
type HealthCheckFunc func() bool

// StartWatchdog begins the watchdog keepalive loop when systemd provides a
// WatchdogSec value. Pings are sent every half-interval per the systemd
// recommendation; the goroutine exits when ctx is cancelled. Returns
// immediately when the watchdog is not enabled.
func StartWatchdog(ctx context.Context, healthCheck HealthCheckFunc) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		slog.Debug("watchdog not enabled", "error", err)
		return
	}
	if interval == 0 {
		slog.Debug("watchdog interval is zero, watchdog disabled")
		return
	}

	pingInterval := interval / 2
	slog.Info("starting systemd watchdog",
		"watchdog_interval", interval,
		"ping_interval", pingInterval,
	)

	go watchdogLoop(ctx, pingInterval, healthCheck)
}

// watchdogLoop sends periodic watchdog pings until ctx is cancelled.
func watchdogLoop(ctx context.Context, interval time.Duration, healthCheck HealthCheckFunc) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !healthCheck() {
				slog.Warn("health check failed, skipping watchdog ping")
				continue
			}
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				slog.Warn("failed to send watchdog ping", "error", err)
			}
		}
	}
}

// UnitRegistered reports whether the service manager knows the named unit.
// It invokes systemctl as a subprocess and inspects the unit's LoadState:
// "loaded" means systemd has read the registration descriptor and holds the
// unit live. A unit systemd has never heard of still answers the query
// (LoadState=not-found), so a non-zero exit or a missing systemctl binary
// is an error, not a negative.
func UnitRegistered(ctx context.Context, unit string) (bool, error) {
	cmd := exec.CommandContext(ctx, "systemctl", "show", unit, "--property=LoadState", "--value")
	out, err := cmd.Output()
	if err != nil {
		return false, fmt.Errorf("query unit %s: %w", unit, err)
	}
	return strings.TrimSpace(string(out)) == "loaded", nil
}

// IsRunningUnderSystemd reports whether systemd launched this process,
// detected via the NOTIFY_SOCKET environment variable.
func IsRunningUnderSystemd() bool {
	return os.Getenv("NOTIFY_SOCKET") != ""
}
