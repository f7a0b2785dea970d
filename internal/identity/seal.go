// Package identity implements the signed seal embedded in worker binaries.
//
// A seal is a trailer appended to the executable image carrying the worker's
// identifier, its version, the registration descriptor it was shipped with,
// and the publisher's signature over everything that precedes the trailer.
// The signature is an ed25519 signature (nkeys keypair) over the SHA-256
// digest of the payload, so two binaries sealed by the same publisher key
// share a code identity even when their contents differ.
//
// File layout:
//
//	[payload bytes][seal JSON][4-byte big-endian seal length][8-byte magic]
//
// The trailer is self-describing from the end of the file, which lets the
// reader work without knowing the payload size in advance and keeps the
// payload itself untouched.
package identity

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nats-io/nkeys"
)

// sealMagic terminates every sealed binary.
var sealMagic = []byte("WARDSEAL")

const (
	// trailerFixedSize is the length field plus the magic.
	trailerFixedSize = 4 + 8

	// maxSealSize bounds the seal JSON so a corrupt length field cannot
	// force an absurd allocation.
	maxSealSize = 1 << 20
)

// ErrNoSeal is returned when a file carries no parseable seal trailer.
// It covers files that are too short, lack the magic, or hold a corrupt
// trailer; it never covers I/O failures, which are reported as-is.
var ErrNoSeal = errors.New("no seal present")

// Seal is the embedded metadata and signing identity of a worker binary.
type Seal struct {
	// Identifier names the worker product (e.g., "io.wardenhq.wardend").
	Identifier string `json:"identifier"`

	// Version is the dotted version string of the sealed binary.
	Version string `json:"version"`

	// Descriptor holds the registration descriptor bytes (the systemd unit
	// file) this binary expects to run under.
	Descriptor []byte `json:"descriptor"`

	// PublicKey is the nkeys-encoded public key of the publisher that
	// signed this binary. Raw equality of this field is what "same code
	// identity" means.
	PublicKey string `json:"public_key"`

	// Signature is the 64-byte ed25519 signature over the SHA-256 digest
	// of the payload (the file minus the trailer).
	Signature []byte `json:"signature"`
}

// ReadSeal parses the seal trailer of the file at path without verifying
// the signature. I/O failures are returned verbatim; a missing or corrupt
// trailer is reported as an error wrapping ErrNoSeal.
func ReadSeal(path string) (*Seal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	seal, _, err := readSeal(f)
	return seal, err
}

// readSeal parses the trailer and returns the seal plus the payload length.
func readSeal(f *os.File) (*Seal, int64, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, 0, err
	}
	size := info.Size()
	if size < trailerFixedSize {
		return nil, 0, fmt.Errorf("%w: file too short", ErrNoSeal)
	}

	var fixed [trailerFixedSize]byte
	if _, err := f.ReadAt(fixed[:], size-trailerFixedSize); err != nil {
		return nil, 0, err
	}
	if !bytes.Equal(fixed[4:], sealMagic) {
		return nil, 0, fmt.Errorf("%w: magic not found", ErrNoSeal)
	}

	sealLen := int64(binary.BigEndian.Uint32(fixed[:4]))
	if sealLen == 0 || sealLen > maxSealSize || sealLen > size-trailerFixedSize {
		return nil, 0, fmt.Errorf("%w: implausible seal length %d", ErrNoSeal, sealLen)
	}

	payloadLen := size - trailerFixedSize - sealLen
	raw := make([]byte, sealLen)
	if _, err := f.ReadAt(raw, payloadLen); err != nil {
		return nil, 0, err
	}

	var seal Seal
	if err := json.Unmarshal(raw, &seal); err != nil {
		return nil, 0, fmt.Errorf("%w: corrupt seal: %v", ErrNoSeal, err)
	}
	if seal.PublicKey == "" || len(seal.Signature) == 0 {
		return nil, 0, fmt.Errorf("%w: seal missing signing identity", ErrNoSeal)
	}

	return &seal, payloadLen, nil
}

// VerifySeal reads the seal of the file at path and checks its signature
// against the publisher key it carries.
//
// The boolean result is the verdict: false means the file is unsigned or
// the signature does not verify, which is a conclusive negative, not an
// error. A non-nil error means the file could not be read at all, so no
// verdict exists.
func VerifySeal(path string) (*Seal, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	seal, payloadLen, err := readSeal(f)
	if err != nil {
		if errors.Is(err, ErrNoSeal) {
			return nil, false, nil
		}
		return nil, false, err
	}

	digest, err := digestPayload(f, payloadLen)
	if err != nil {
		return seal, false, err
	}

	kp, err := nkeys.FromPublicKey(seal.PublicKey)
	if err != nil {
		return seal, false, nil
	}
	if err := kp.Verify(digest[:], seal.Signature); err != nil {
		return seal, false, nil
	}

	return seal, true, nil
}

// digestPayload computes the SHA-256 digest of the first payloadLen bytes.
func digestPayload(f *os.File, payloadLen int64) ([sha256.Size]byte, error) {
	var digest [sha256.Size]byte

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return digest, err
	}

	h := sha256.New()
	if _, err := io.CopyN(h, f, payloadLen); err != nil {
		return digest, err
	}
	copy(digest[:], h.Sum(nil))

	return digest, nil
}

// SealInfo holds the fields a publisher stamps into a new seal.
type SealInfo struct {
	Identifier string
	Version    string
	Descriptor []byte
}

// WriteSeal signs the payload of inPath with kp and writes the sealed file
// to outPath (which may equal inPath). An existing seal on the input is
// replaced, so sealing is idempotent with respect to the payload. The output
// is written to a temp file in the destination directory and renamed into
// place, and carries mode 0755.
func WriteSeal(inPath, outPath string, info SealInfo, kp nkeys.KeyPair) error {
	f, err := os.Open(inPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat input: %w", err)
	}

	// An already-sealed input is re-sealed over its payload only.
	payloadLen := stat.Size()
	if _, existingPayload, err := readSeal(f); err == nil {
		payloadLen = existingPayload
	} else if !errors.Is(err, ErrNoSeal) {
		return fmt.Errorf("inspect input: %w", err)
	}

	digest, err := digestPayload(f, payloadLen)
	if err != nil {
		return fmt.Errorf("digest payload: %w", err)
	}

	sig, err := kp.Sign(digest[:])
	if err != nil {
		return fmt.Errorf("sign payload: %w", err)
	}
	pub, err := kp.PublicKey()
	if err != nil {
		return fmt.Errorf("derive public key: %w", err)
	}

	seal := Seal{
		Identifier: info.Identifier,
		Version:    info.Version,
		Descriptor: info.Descriptor,
		PublicKey:  pub,
		Signature:  sig,
	}
	raw, err := json.Marshal(&seal)
	if err != nil {
		return fmt.Errorf("encode seal: %w", err)
	}
	if len(raw) > maxSealSize {
		return fmt.Errorf("seal too large: %d bytes", len(raw))
	}

	tmp, err := os.CreateTemp(filepath.Dir(outPath), ".warden-seal-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		tmp.Close()
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind input: %w", err)
	}
	if _, err := io.CopyN(tmp, f, payloadLen); err != nil {
		return fmt.Errorf("copy payload: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		return fmt.Errorf("write seal: %w", err)
	}

	var fixed [trailerFixedSize]byte
	binary.BigEndian.PutUint32(fixed[:4], uint32(len(raw)))
	copy(fixed[4:], sealMagic)
	if _, err := tmp.Write(fixed[:]); err != nil {
		return fmt.Errorf("write trailer: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync output: %w", err)
	}
	if err := tmp.Chmod(0755); err != nil {
		return fmt.Errorf("chmod output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("install output: %w", err)
	}
	success = true

	return nil
}
