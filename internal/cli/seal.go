package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/authorize"
	"github.com/wardenhq/warden/internal/identity"
	"github.com/wardenhq/warden/internal/semver"
)

func newSealCmd() *cobra.Command {
	var (
		outPath        string
		identifier     string
		sealVersion    string
		descriptorPath string
		seedPath       string
	)

	cmd := &cobra.Command{
		Use:   "seal <binary>",
		Short: "Seal a worker binary for release",
		Long: `Seal appends a signed trailer to a built worker binary: the product
identifier, the release version, the registration descriptor it ships
with, and the publisher's signature over the binary. Workers only accept
updates sealed by the publisher key of their running binary, with an
identical descriptor and a strictly newer version.

Sealing an already-sealed binary replaces its seal.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			inPath := args[0]
			if outPath == "" {
				outPath = inPath
			}
			if identifier == "" {
				identifier = cfg.Identifier
			}
			if descriptorPath == "" {
				descriptorPath = cfg.DescriptorPath
			}

			if _, err := semver.Parse(sealVersion); err != nil {
				return fmt.Errorf("--release-version: %w", err)
			}

			descriptor, err := os.ReadFile(descriptorPath)
			if err != nil {
				return fmt.Errorf("reading descriptor: %w", err)
			}

			kp, err := authorize.LoadSeed(seedPath)
			if err != nil {
				return fmt.Errorf("loading publisher seed: %w", err)
			}

			info := identity.SealInfo{
				Identifier: identifier,
				Version:    sealVersion,
				Descriptor: descriptor,
			}
			if err := identity.WriteSeal(inPath, outPath, info, kp); err != nil {
				return err
			}

			public, err := kp.PublicKey()
			if err != nil {
				return err
			}

			fmt.Printf("Sealed %s\n", outPath)
			fmt.Printf("  identifier: %s\n", identifier)
			fmt.Printf("  version:    %s\n", sealVersion)
			fmt.Printf("  descriptor: %s (%d bytes)\n", descriptorPath, len(descriptor))
			fmt.Printf("  publisher:  %s\n", public)
			return nil
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "", "Output path (default: seal in place)")
	cmd.Flags().StringVar(&identifier, "identifier", "", "Product identifier (default: from config)")
	cmd.Flags().StringVar(&sealVersion, "release-version", "", "Release version to stamp (required)")
	cmd.Flags().StringVar(&descriptorPath, "descriptor", "", "Registration descriptor to embed (default: descriptor_path)")
	cmd.Flags().StringVar(&seedPath, "seed", "", "Publisher seed file (required)")
	cmd.MarkFlagRequired("release-version")
	cmd.MarkFlagRequired("seed")

	return cmd
}
