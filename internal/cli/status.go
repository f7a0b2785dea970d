package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/monitor"
)

// statusProbeTimeout bounds the service-manager query.
const statusProbeTimeout = 10 * time.Second

// statusReport is the JSON shape of `wardenctl status --json`.
type statusReport struct {
	monitor.Status
	Class           monitor.Class  `json:"class"`
	RunEnabled      bool           `json:"run_enabled"`
	Action          monitor.Action `json:"recommended_action"`
	SocketReachable bool           `json:"socket_reachable"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show worker installation status",
		Long: `Status probes the three installation facts (service-manager
registration, descriptor on disk, sealed executable on disk) and reports
which of the eight possible states the host is in.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), statusProbeTimeout)
			defer cancel()

			report := buildStatusReport(ctx, cfg)
			if jsonOutput {
				return printJSON(report)
			}
			printStatusText(report)
			return nil
		},
	}
}

// buildStatusReport takes one snapshot and derives everything shown.
func buildStatusReport(ctx context.Context, cfg *config.Config) statusReport {
	mon := monitor.New(cfg.WorkerPath, cfg.DescriptorPath, cfg.UnitName, cliLogger())
	status := mon.Determine(ctx)

	return statusReport{
		Status:          status,
		Class:           status.Class(),
		RunEnabled:      status.RunEnabled(),
		Action:          status.RecommendedAction(),
		SocketReachable: newClient(cfg).Available(),
	}
}

func printStatusText(r statusReport) {
	fmt.Printf("State:       %s\n", r.Class)
	fmt.Printf("Registered:  %s\n", yesNo(r.Registered))
	fmt.Printf("Descriptor:  %s\n", presentMissing(r.DescriptorPresent))
	fmt.Printf("Executable:  %s\n", presentMissing(r.ExecutablePresent))
	if r.WorkerVersion != nil {
		fmt.Printf("Version:     %s\n", r.WorkerVersion)
	}
	fmt.Printf("Socket:      %s\n", map[bool]string{true: "reachable", false: "unreachable"}[r.SocketReachable])
	fmt.Printf("Commands:    %s\n", map[bool]string{true: "enabled", false: "disabled"}[r.RunEnabled])
	if r.Action != monitor.ActionNone {
		fmt.Printf("Action:      %s\n", r.Action)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func presentMissing(b bool) string {
	if b {
		return "present"
	}
	return "missing"
}
