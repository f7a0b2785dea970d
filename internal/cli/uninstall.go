package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/transport"
)

// uninstallWindow is how long to wait for the worker to exit after the
// uninstall request is accepted.
const uninstallWindow = 30 * time.Second

func newUninstallCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the worker installation",
		Long: `Uninstall asks the running worker to remove itself: the worker spawns a
detached removal script and exits, and the script stops the unit and
deletes every installed artifact. The route never replies; the worker
exiting is the success signal.

If the worker is not running, remove the installation from a root shell
with "wardend uninstall" instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if !yes {
				return errors.New("uninstall removes the worker, its state, and its configuration; pass --yes to confirm")
			}

			client := newClient(cfg)
			if !client.Available() {
				return fmt.Errorf("worker not reachable at %s; run \"wardend uninstall\" as root instead", cfg.SocketPath)
			}

			if err := client.CallExpectDrop(cmd.Context(), transport.RouteUninstall, nil); err != nil {
				return err
			}

			fmt.Println("Uninstall accepted, waiting for the worker to exit...")

			deadline := time.Now().Add(uninstallWindow)
			for time.Now().Before(deadline) {
				if !client.Available() {
					fmt.Println("Worker exited. Removal continues in the background.")
					return nil
				}
				time.Sleep(restartPollInterval)
			}

			return errors.New("worker still serving after uninstall request; check the worker journal")
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm removal")

	return cmd
}
