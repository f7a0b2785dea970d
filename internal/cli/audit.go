package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/audit"
	"github.com/wardenhq/warden/internal/transport"
)

func newAuditCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the worker's privileged-action audit log",
		Long: `Audit reads back the newest entries of the worker's audit trail: every
command execution, update request, and uninstall request, with its
outcome. Refused updates appear here; the update route itself never
reports them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), quickCallTimeout)
			defer cancel()

			var reply transport.AuditReply
			err = newClient(cfg).Call(ctx, transport.RouteAudit, &transport.AuditRequest{Limit: limit}, &reply)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(reply)
			}

			if len(reply.Entries) == 0 {
				fmt.Println("No audit entries.")
				return nil
			}
			for _, e := range reply.Entries {
				fmt.Println(formatAuditEntry(e))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of entries to show")

	return cmd
}

// formatAuditEntry renders one entry as a single line.
func formatAuditEntry(e audit.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%6d  %s  %-9s  %-9s", e.ID, e.Time.Format(time.RFC3339), e.Kind, e.Outcome)
	if e.Command != "" {
		fmt.Fprintf(&b, "  command=%s", e.Command)
	}
	if e.ExitCode != nil {
		fmt.Fprintf(&b, "  exit=%d", *e.ExitCode)
	}
	if e.PeerUID != nil {
		fmt.Fprintf(&b, "  uid=%d", *e.PeerUID)
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, "  %s", e.Detail)
	}
	return b.String()
}
