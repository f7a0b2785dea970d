package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/monitor"
	"github.com/wardenhq/warden/internal/release"
)

// scheduledCheckTimeout bounds one scheduled manifest check plus download.
const scheduledCheckTimeout = 5 * time.Minute

func newWatchCmd() *cobra.Command {
	var applyUpdates bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch installation status and check for releases",
		Long: `Watch prints a status line whenever the worker binary or descriptor
changes on disk, and checks the release manifest on the configured cron
schedule (release.check_schedule). With --apply, newer releases are
downloaded and handed to the worker automatically. Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			mon := monitor.New(cfg.WorkerPath, cfg.DescriptorPath, cfg.UnitName, cliLogger())

			probeCtx, cancel := context.WithTimeout(ctx, statusProbeTimeout)
			printWatchLine(mon.Determine(probeCtx))
			cancel()

			if err := mon.Start(printWatchLine); err != nil {
				return fmt.Errorf("watching installation paths: %w", err)
			}
			defer mon.Stop()

			if cfg.Release.ManifestURL != "" {
				sched, err := release.ParseSchedule(cfg.Release.CheckSchedule)
				if err != nil {
					return fmt.Errorf("release.check_schedule: %w", err)
				}
				fmt.Printf("checking %s on schedule %q (next %s)\n",
					cfg.Release.ManifestURL, sched.Expression(),
					sched.Next(time.Now()).Format(time.RFC3339))
				go scheduleLoop(ctx, sched, func() {
					runScheduledCheck(ctx, cfg, applyUpdates)
				})
			}

			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().BoolVar(&applyUpdates, "apply", false, "Apply newer releases automatically")

	return cmd
}

// printWatchLine renders one status observation.
func printWatchLine(s monitor.Status) {
	version := "-"
	if s.WorkerVersion != nil {
		version = s.WorkerVersion.String()
	}
	fmt.Printf("%s  state=%s version=%s commands=%s\n",
		time.Now().Format("2006-01-02 15:04:05"),
		s.Class(), version,
		map[bool]string{true: "enabled", false: "disabled"}[s.RunEnabled()])
}

// scheduleLoop fires run at every schedule activation until the context
// ends. Activations are computed from the completion time of the previous
// run, so a slow check never stacks a second one behind it.
func scheduleLoop(ctx context.Context, sched *release.Schedule, run func()) {
	for {
		timer := time.NewTimer(time.Until(sched.Next(time.Now())))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			run()
		}
	}
}

// runScheduledCheck performs one manifest check, applying the release when
// requested. Failures are printed and swallowed: the next activation tries
// again.
func runScheduledCheck(ctx context.Context, cfg *config.Config, apply bool) {
	checkCtx, cancel := context.WithTimeout(ctx, scheduledCheckTimeout)
	defer cancel()

	stamp := time.Now().Format("2006-01-02 15:04:05")

	check, err := checkForUpdate(checkCtx, cfg)
	if err != nil {
		fmt.Printf("%s  release check failed: %v\n", stamp, err)
		return
	}
	if check.Installed == nil {
		fmt.Printf("%s  release %s published, no worker installed\n", stamp, check.Manifest.Version)
		return
	}
	if !check.Newer {
		fmt.Printf("%s  up to date (installed %s, release %s)\n",
			stamp, check.Installed, check.Manifest.Version)
		return
	}

	fmt.Printf("%s  release %s available (installed %s)\n",
		stamp, check.Manifest.Version, check.Installed)
	if !apply {
		return
	}

	src := release.NewSource(cfg.Release.ManifestURL, cliLogger())
	path, err := src.Download(checkCtx, check.Manifest, os.TempDir())
	if err != nil {
		fmt.Printf("%s  download failed: %v\n", stamp, err)
		return
	}
	defer os.Remove(path)

	if err := applyUpdate(checkCtx, cfg, path); err != nil {
		fmt.Printf("%s  update failed: %v\n", stamp, err)
	}
}
