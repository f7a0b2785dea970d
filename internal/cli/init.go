package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/config"
)

// unitTemplate is the registration descriptor written by init --unit.
// Type=notify matches the worker's readiness signalling; Restart=always
// relaunches the worker after an accepted update exits it.
const unitTemplate = `[Unit]
Description=Warden privileged worker
After=network.target

[Service]
Type=notify
NotifyAccess=main
ExecStart=%s -config %s
Restart=always
RestartSec=2
WatchdogSec=30
User=root
RuntimeDirectory=warden
RuntimeDirectoryMode=0755

[Install]
WantedBy=multi-user.target
`

func newInitCmd() *cobra.Command {
	var (
		force    bool
		withUnit bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration",
		Long: `Init writes the default configuration to the config path. With --unit it
also writes a systemd unit template to descriptor_path. Both refuse to
overwrite existing files unless --force is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("%s already exists; pass --force to overwrite", configPath)
			}

			cfg := config.Default()
			if err := config.Save(configPath, cfg); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", configPath)

			if withUnit {
				if _, err := os.Stat(cfg.DescriptorPath); err == nil && !force {
					return fmt.Errorf("%s already exists; pass --force to overwrite", cfg.DescriptorPath)
				}
				unit := fmt.Sprintf(unitTemplate, cfg.WorkerPath, configPath)
				if err := os.MkdirAll(filepath.Dir(cfg.DescriptorPath), 0755); err != nil {
					return err
				}
				if err := os.WriteFile(cfg.DescriptorPath, []byte(unit), 0644); err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", cfg.DescriptorPath)
			}

			fmt.Println("\nNext steps:")
			fmt.Println("  1. wardenctl keygen                      # authority keypair for tokens")
			fmt.Printf("  2. install the sealed worker at %s\n", cfg.WorkerPath)
			fmt.Printf("  3. systemctl enable --now %s\n", cfg.UnitName)
			fmt.Println("  4. wardenctl status")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing files")
	cmd.Flags().BoolVar(&withUnit, "unit", false, "Also write a systemd unit template to descriptor_path")

	return cmd
}
