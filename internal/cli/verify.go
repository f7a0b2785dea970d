package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/identity"
)

// verifyReport is the JSON shape of `wardenctl verify --json`.
type verifyReport struct {
	Path           string `json:"path"`
	Identifier     string `json:"identifier"`
	Version        string `json:"version"`
	Publisher      string `json:"publisher"`
	DescriptorSize int    `json:"descriptor_size"`
	SignatureValid bool   `json:"signature_valid"`

	// IdentityMatches is set when --against was given: whether both
	// binaries are verifiably sealed by the same publisher key.
	IdentityMatches *bool `json:"identity_matches,omitempty"`
}

func newVerifyCmd() *cobra.Command {
	var against string

	cmd := &cobra.Command{
		Use:   "verify <binary>",
		Short: "Verify the seal on a binary",
		Long: `Verify reads the seal trailer of a binary and checks its signature.
With --against, it additionally checks that both binaries are sealed by
the same publisher key, the identity gate a worker applies to update
candidates. Exits non-zero when verification fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			seal, valid, err := identity.VerifySeal(path)
			if errors.Is(err, identity.ErrNoSeal) {
				return fmt.Errorf("%s carries no seal", path)
			}
			if err != nil {
				return err
			}

			report := verifyReport{
				Path:           path,
				Identifier:     seal.Identifier,
				Version:        seal.Version,
				Publisher:      seal.PublicKey,
				DescriptorSize: len(seal.Descriptor),
				SignatureValid: valid,
			}

			if against != "" {
				matched, err := identity.VerifyMatchingIdentity(against, path)
				if err != nil {
					return fmt.Errorf("comparing identities: %w", err)
				}
				report.IdentityMatches = &matched
			}

			if jsonOutput {
				if err := printJSON(report); err != nil {
					return err
				}
			} else {
				printVerifyText(report)
			}

			if !report.SignatureValid {
				return errors.New("seal signature invalid")
			}
			if report.IdentityMatches != nil && !*report.IdentityMatches {
				return errors.New("publisher identities differ")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&against, "against", "", "Reference binary whose publisher identity must match")

	return cmd
}

func printVerifyText(r verifyReport) {
	fmt.Printf("Seal on %s\n", r.Path)
	fmt.Printf("  identifier: %s\n", r.Identifier)
	fmt.Printf("  version:    %s\n", r.Version)
	fmt.Printf("  publisher:  %s\n", r.Publisher)
	fmt.Printf("  descriptor: %d bytes\n", r.DescriptorSize)
	fmt.Printf("  signature:  %s\n", map[bool]string{true: "valid", false: "INVALID"}[r.SignatureValid])
	if r.IdentityMatches != nil {
		fmt.Printf("  identity:   %s\n", map[bool]string{true: "matches reference", false: "DIFFERS from reference"}[*r.IdentityMatches])
	}
}
