package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/transport"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show host facts as seen by the worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), quickCallTimeout)
			defer cancel()

			var info transport.InfoReply
			if err := newClient(cfg).Call(ctx, transport.RouteInfo, nil, &info); err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(info)
			}

			h := info.Host
			fmt.Printf("Hostname:  %s\n", h.Hostname)
			fmt.Printf("Platform:  %s %s (%s/%s)\n", h.Platform, h.PlatformVersion, h.OS, h.Arch)
			fmt.Printf("Kernel:    %s\n", h.KernelVersion)
			if h.Virtualization != "" {
				fmt.Printf("Virt:      %s\n", h.Virtualization)
			}
			fmt.Printf("CPU:       %s (%d threads)\n", h.CPUModel, h.CPUThreads)
			fmt.Printf("Memory:    %.1f GiB\n", float64(h.MemoryTotal)/(1<<30))
			fmt.Printf("Host ID:   %s\n", h.HostID)
			fmt.Printf("Worker:    %s\n", info.WorkerVersion)
			return nil
		},
	}
}
