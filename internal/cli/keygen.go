package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/nats-io/nkeys"
	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/authorize"
)

func newKeygenCmd() *cobra.Command {
	var (
		seedOut   string
		publicOut string
		force     bool
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an ed25519 keypair",
		Long: `Keygen generates an nkeys ed25519 keypair and writes the seed (0600)
and public key (0644) files.

The same key format serves both trust roots: the authority keypair signs
authorization tokens (install its public key at authority_public_key_path
on the host; keep the seed with the operator), and the publisher keypair
seals release binaries (keep the seed on the build machine).

Defaults target the configured authority paths.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if seedOut == "" {
				seedOut = cfg.AuthoritySeedPath
			}
			if publicOut == "" {
				publicOut = cfg.AuthorityPublicKeyPath
			}
			if seedOut == "" {
				return errors.New("no seed destination: pass --seed-out or set authority_seed_path in the config")
			}

			for _, path := range []string{seedOut, publicOut} {
				if _, err := os.Stat(path); err == nil && !force {
					return fmt.Errorf("%s already exists; pass --force to overwrite", path)
				}
			}

			kp, err := nkeys.CreateAccount()
			if err != nil {
				return fmt.Errorf("generating keypair: %w", err)
			}
			if err := authorize.SaveKeyPair(kp, seedOut, publicOut); err != nil {
				return err
			}

			public, err := kp.PublicKey()
			if err != nil {
				return err
			}

			fmt.Printf("Public key: %s\n", public)
			fmt.Printf("Seed:       %s (keep private)\n", seedOut)
			fmt.Printf("Public:     %s\n", publicOut)
			return nil
		},
	}

	cmd.Flags().StringVar(&seedOut, "seed-out", "", "Seed file destination (default: authority_seed_path)")
	cmd.Flags().StringVar(&publicOut, "public-out", "", "Public key file destination (default: authority_public_key_path)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing key files")

	return cmd
}
