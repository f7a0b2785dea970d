package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/identity"
	"github.com/wardenhq/warden/internal/release"
	"github.com/wardenhq/warden/internal/semver"
	"github.com/wardenhq/warden/internal/transport"
)

// restartWindow is how long to wait for the worker to come back under a
// new version after an accepted update. The service manager restarts the
// unit; a worker still serving the old version afterwards means the update
// was refused.
const restartWindow = 30 * time.Second

// restartPollInterval is the delay between restart observations.
const restartPollInterval = 500 * time.Millisecond

func newUpdateCmd() *cobra.Command {
	var (
		candidateFile string
		checkOnly     bool
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update the worker to the current release",
		Long: `Update fetches the release manifest, downloads the sealed candidate if
it is newer than the installed worker, and hands its path to the worker's
update route. The worker verifies publisher identity, descriptor, and
version itself; wardenctl only observes the outcome.

The update route never replies. Success is the worker restarting under the
new version; a worker that keeps serving the old version refused the
candidate (see wardenctl audit for the recorded reason).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if candidateFile != "" {
				abs, err := filepath.Abs(candidateFile)
				if err != nil {
					return err
				}
				return applyUpdate(cmd.Context(), cfg, abs)
			}

			check, err := checkForUpdate(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			if jsonOutput && checkOnly {
				return printJSON(check)
			}

			if check.Installed == nil {
				return errors.New("no sealed worker installed; updates need a running worker (see wardenctl status)")
			}
			if !check.Newer {
				fmt.Printf("Already up to date (installed %s, release %s).\n",
					check.Installed, check.Manifest.Version)
				return nil
			}

			fmt.Printf("Release %s available (installed %s).\n", check.Manifest.Version, check.Installed)
			if checkOnly {
				return nil
			}

			src := release.NewSource(cfg.Release.ManifestURL, cliLogger())
			path, err := src.Download(cmd.Context(), check.Manifest, os.TempDir())
			if err != nil {
				return err
			}
			defer os.Remove(path)

			return applyUpdate(cmd.Context(), cfg, path)
		},
	}

	cmd.Flags().StringVar(&candidateFile, "file", "", "Apply a local candidate binary instead of fetching the release")
	cmd.Flags().BoolVar(&checkOnly, "check", false, "Only report whether a newer release exists")

	return cmd
}

// updateCheck is the outcome of comparing the release manifest against the
// installed worker.
type updateCheck struct {
	Manifest  *release.Manifest `json:"manifest"`
	Installed *semver.Version   `json:"installed,omitempty"`
	Newer     bool              `json:"newer"`
}

// checkForUpdate fetches the manifest and compares its version with the
// seal of the worker binary on disk.
func checkForUpdate(ctx context.Context, cfg *config.Config) (*updateCheck, error) {
	if cfg.Release.ManifestURL == "" {
		return nil, errors.New("no release manifest configured (release.manifest_url)")
	}

	src := release.NewSource(cfg.Release.ManifestURL, cliLogger())
	m, err := src.FetchManifest(ctx)
	if err != nil {
		return nil, err
	}
	if m.Identifier != cfg.Identifier {
		return nil, fmt.Errorf("manifest is for %q, this host runs %q", m.Identifier, cfg.Identifier)
	}

	check := &updateCheck{Manifest: m}

	seal, err := identity.ReadSeal(cfg.WorkerPath)
	if err != nil {
		// No readable seal: not installed, nothing to compare.
		return check, nil
	}
	installed, err := semver.Parse(seal.Version)
	if err != nil {
		return check, nil
	}

	released, err := semver.Parse(m.Version)
	if err != nil {
		return nil, fmt.Errorf("manifest version: %w", err)
	}

	check.Installed = &installed
	check.Newer = installed.Less(released)
	return check, nil
}

// applyUpdate hands the candidate path to the worker and reports whether
// the worker came back under a new version.
func applyUpdate(ctx context.Context, cfg *config.Config, candidatePath string) error {
	client := newClient(cfg)

	var before transport.VersionReply
	if err := client.Call(ctx, transport.RouteVersion, nil, &before); err != nil {
		return fmt.Errorf("worker must be running to update: %w", err)
	}

	fmt.Printf("Requesting update of worker %s (pid %d)...\n", before.SealVersion, before.PID)

	if err := client.CallExpectDrop(ctx, transport.RouteUpdate, &transport.UpdateRequest{
		CandidatePath: candidatePath,
	}); err != nil {
		return err
	}

	after := waitForRestart(ctx, client, &before)
	if after == nil {
		fmt.Println("Worker did not restart under a new version: the candidate was refused or the update failed.")
		fmt.Println("Check `wardenctl audit` and the worker journal for the recorded reason.")
		return errors.New("update not applied")
	}

	fmt.Printf("Worker updated: %s -> %s (pid %d -> %d).\n",
		before.SealVersion, after.SealVersion, before.PID, after.PID)
	return nil
}

// waitForRestart polls the version route until a different process answers
// or the window closes. The socket being down counts as progress (the old
// worker exited); only the old process still answering at the deadline
// means no restart happened.
func waitForRestart(ctx context.Context, client *transport.Client, before *transport.VersionReply) *transport.VersionReply {
	deadline := time.Now().Add(restartWindow)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(restartPollInterval):
		}

		pollCtx, cancel := context.WithTimeout(ctx, restartPollInterval*4)
		var reply transport.VersionReply
		err := client.Call(pollCtx, transport.RouteVersion, nil, &reply)
		cancel()
		if err != nil {
			continue
		}
		if reply.PID != before.PID || reply.SealVersion != before.SealVersion {
			return &reply
		}
	}
	return nil
}
