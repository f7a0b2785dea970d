package authorize

import (
	"bytes"
	"fmt"
	"os"

	"github.com/nats-io/nkeys"
)

// SaveKeyPair writes an nkeys seed and its public key to disk. The seed
// file has 0600 permissions; the public key file has 0644.
func SaveKeyPair(kp nkeys.KeyPair, seedPath, publicPath string) error {
	seed, err := kp.Seed()
	if err != nil {
		return fmt.Errorf("extracting seed: %w", err)
	}
	if err := os.WriteFile(seedPath, append(seed, '\n'), 0600); err != nil {
		return fmt.Errorf("writing seed: %w", err)
	}

	public, err := kp.PublicKey()
	if err != nil {
		return fmt.Errorf("extracting public key: %w", err)
	}
	if err := os.WriteFile(publicPath, []byte(public+"\n"), 0644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}

	return nil
}

// LoadSeed reads an nkeys seed file and reconstructs the keypair.
func LoadSeed(path string) (nkeys.KeyPair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed: %w", err)
	}
	kp, err := nkeys.FromSeed(bytes.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing seed: %w", err)
	}
	return kp, nil
}

// LoadPublicKey reads an nkeys public key file and validates it.
func LoadPublicKey(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading public key: %w", err)
	}
	key := string(bytes.TrimSpace(raw))
	if _, err := nkeys.FromPublicKey(key); err != nil {
		return "", fmt.Errorf("parsing public key: %w", err)
	}
	return key, nil
}
