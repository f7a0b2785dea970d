package release

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// ChecksumMismatchError reports a downloaded artifact whose digest does
// not match the manifest.
type ChecksumMismatchError struct {
	Expected string
	Computed string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch: expected %s, got %s", e.Expected, e.Computed)
}

// VerifyChecksum computes the SHA-256 digest of the file at path and
// compares it to expected (hex, case-insensitive). Call only after the
// file is fully written and synced.
func VerifyChecksum(path string, expected string) error {
	computed, err := ComputeChecksum(path)
	if err != nil {
		return err
	}

	expected = strings.ToLower(strings.TrimSpace(expected))
	if computed != expected {
		return &ChecksumMismatchError{Expected: expected, Computed: computed}
	}
	return nil
}

// ComputeChecksum returns the SHA-256 digest of the file at path as a
// lowercase hex string.
func ComputeChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("compute checksum: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
