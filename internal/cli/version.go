package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/transport"
	"github.com/wardenhq/warden/internal/version"
)

// quickCallTimeout bounds the short informational routes.
const quickCallTimeout = 10 * time.Second

// versionReport is the JSON shape of `wardenctl version --json`.
type versionReport struct {
	Controller string                  `json:"controller"`
	Commit     string                  `json:"commit"`
	BuildTime  string                  `json:"build_time"`
	Worker     *transport.VersionReply `json:"worker,omitempty"`
	WorkerErr  string                  `json:"worker_error,omitempty"`
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show controller and worker versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			report := versionReport{
				Controller: version.Version,
				Commit:     version.Commit,
				BuildTime:  version.BuildTime,
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), quickCallTimeout)
			defer cancel()

			var worker transport.VersionReply
			if err := newClient(cfg).Call(ctx, transport.RouteVersion, nil, &worker); err != nil {
				report.WorkerErr = err.Error()
			} else {
				report.Worker = &worker
			}

			if jsonOutput {
				return printJSON(report)
			}

			fmt.Printf("wardenctl %s (commit %s, built %s)\n",
				report.Controller, report.Commit, report.BuildTime)
			if report.Worker != nil {
				fmt.Printf("wardend   %s (%s, build %s, pid %d)\n",
					report.Worker.SealVersion, report.Worker.Identifier,
					report.Worker.BuildVersion, report.Worker.PID)
			} else {
				fmt.Printf("wardend   unreachable: %s\n", report.WorkerErr)
			}
			return nil
		},
	}
}
