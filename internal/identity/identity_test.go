package identity

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/nats-io/nkeys"
)

func newKeyPair(t *testing.T) nkeys.KeyPair {
	t.Helper()
	kp, err := nkeys.CreateAccount()
	if err != nil {
		t.Fatalf("create keypair: %v", err)
	}
	return kp
}

func writeSealed(t *testing.T, dir, name string, payload []byte, info SealInfo, kp nkeys.KeyPair) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, payload, 0755); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	if err := WriteSeal(path, path, info, kp); err != nil {
		t.Fatalf("seal %s: %v", name, err)
	}
	return path
}

func TestReadSealRoundTrip(t *testing.T) {
	kp := newKeyPair(t)
	info := SealInfo{
		Identifier: "io.wardenhq.wardend",
		Version:    "2.3.1",
		Descriptor: []byte("[Unit]\nDescription=test\n"),
	}
	path := writeSealed(t, t.TempDir(), "worker", []byte("#!/bin/true\n"), info, kp)

	seal, err := ReadSeal(path)
	if err != nil {
		t.Fatalf("ReadSeal: %v", err)
	}
	if seal.Identifier != info.Identifier {
		t.Errorf("identifier = %q, want %q", seal.Identifier, info.Identifier)
	}
	if seal.Version != info.Version {
		t.Errorf("version = %q, want %q", seal.Version, info.Version)
	}
	if !bytes.Equal(seal.Descriptor, info.Descriptor) {
		t.Errorf("descriptor = %q, want %q", seal.Descriptor, info.Descriptor)
	}
	pub, _ := kp.PublicKey()
	if seal.PublicKey != pub {
		t.Errorf("public key = %q, want %q", seal.PublicKey, pub)
	}
	if len(seal.Signature) == 0 {
		t.Error("signature is empty")
	}
}

func TestReadSealRejectsUnsealed(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content []byte
	}{
		{"plain binary", []byte("#!/bin/sh\nexit 0\n")},
		{"empty file", nil},
		{"short file", []byte("abc")},
		{"magic without trailer", []byte("WARDSEAL")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "f")
			if err := os.WriteFile(path, tt.content, 0644); err != nil {
				t.Fatalf("write: %v", err)
			}
			_, err := ReadSeal(path)
			if !errors.Is(err, ErrNoSeal) {
				t.Errorf("err = %v, want ErrNoSeal", err)
			}
		})
	}
}

func TestReadSealMissingFile(t *testing.T) {
	_, err := ReadSeal(filepath.Join(t.TempDir(), "absent"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if errors.Is(err, ErrNoSeal) {
		t.Errorf("missing file reported as ErrNoSeal: %v", err)
	}
}

func TestVerifySeal(t *testing.T) {
	kp := newKeyPair(t)
	dir := t.TempDir()
	info := SealInfo{Identifier: "io.wardenhq.wardend", Version: "1.0.0"}

	t.Run("valid seal verifies", func(t *testing.T) {
		path := writeSealed(t, dir, "ok", []byte("payload"), info, kp)
		seal, valid, err := VerifySeal(path)
		if err != nil {
			t.Fatalf("VerifySeal: %v", err)
		}
		if !valid {
			t.Error("valid = false, want true")
		}
		if seal == nil || seal.Version != "1.0.0" {
			t.Errorf("seal = %+v", seal)
		}
	})

	t.Run("tampered payload fails closed", func(t *testing.T) {
		path := writeSealed(t, dir, "tampered", []byte("payload"), info, kp)
		raw, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		raw[0] ^= 0xff
		if err := os.WriteFile(path, raw, 0755); err != nil {
			t.Fatalf("write: %v", err)
		}
		_, valid, err := VerifySeal(path)
		if err != nil {
			t.Fatalf("VerifySeal: %v", err)
		}
		if valid {
			t.Error("valid = true for tampered payload")
		}
	})

	t.Run("unsigned file is a conclusive negative", func(t *testing.T) {
		path := filepath.Join(dir, "unsigned")
		if err := os.WriteFile(path, []byte("no trailer here"), 0755); err != nil {
			t.Fatalf("write: %v", err)
		}
		_, valid, err := VerifySeal(path)
		if err != nil {
			t.Fatalf("VerifySeal: %v", err)
		}
		if valid {
			t.Error("valid = true for unsigned file")
		}
	})

	t.Run("unreadable file is an error", func(t *testing.T) {
		_, _, err := VerifySeal(filepath.Join(dir, "absent"))
		if err == nil {
			t.Error("expected error for missing file")
		}
	})
}

func TestVerifyMatchingIdentity(t *testing.T) {
	publisher := newKeyPair(t)
	stranger := newKeyPair(t)
	dir := t.TempDir()
	info := SealInfo{Identifier: "io.wardenhq.wardend", Version: "1.0.0"}

	self := writeSealed(t, dir, "self", []byte("running build"), info, publisher)
	sameKey := writeSealed(t, dir, "same", []byte("candidate build"), SealInfo{
		Identifier: info.Identifier,
		Version:    "1.1.0",
	}, publisher)
	otherKey := writeSealed(t, dir, "other", []byte("candidate build"), info, stranger)

	unsigned := filepath.Join(dir, "unsigned")
	if err := os.WriteFile(unsigned, []byte("bare"), 0755); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Run("same publisher matches", func(t *testing.T) {
		ok, err := VerifyMatchingIdentity(self, sameKey)
		if err != nil {
			t.Fatalf("VerifyMatchingIdentity: %v", err)
		}
		if !ok {
			t.Error("ok = false, want true")
		}
	})

	t.Run("different publisher is a mismatch, not an error", func(t *testing.T) {
		ok, err := VerifyMatchingIdentity(self, otherKey)
		if err != nil {
			t.Fatalf("VerifyMatchingIdentity: %v", err)
		}
		if ok {
			t.Error("ok = true for foreign publisher")
		}
	})

	t.Run("unsigned candidate is a mismatch, not an error", func(t *testing.T) {
		ok, err := VerifyMatchingIdentity(self, unsigned)
		if err != nil {
			t.Fatalf("VerifyMatchingIdentity: %v", err)
		}
		if ok {
			t.Error("ok = true for unsigned candidate")
		}
	})

	t.Run("missing candidate is inconclusive", func(t *testing.T) {
		ok, err := VerifyMatchingIdentity(self, filepath.Join(dir, "absent"))
		if ok {
			t.Error("ok = true with missing candidate")
		}
		var verr *VerificationError
		if !errors.As(err, &verr) {
			t.Errorf("err = %v, want *VerificationError", err)
		}
	})

	t.Run("unsealed self is inconclusive", func(t *testing.T) {
		ok, err := VerifyMatchingIdentity(unsigned, sameKey)
		if ok {
			t.Error("ok = true with unsealed self")
		}
		var verr *VerificationError
		if !errors.As(err, &verr) {
			t.Errorf("err = %v, want *VerificationError", err)
		}
	})
}

func TestWriteSealReplacesExistingSeal(t *testing.T) {
	kp := newKeyPair(t)
	dir := t.TempDir()
	payload := []byte("stable payload bytes")

	path := writeSealed(t, dir, "worker", payload, SealInfo{
		Identifier: "io.wardenhq.wardend",
		Version:    "1.0.0",
	}, kp)

	// Re-seal with a newer version; the payload must survive unchanged.
	if err := WriteSeal(path, path, SealInfo{
		Identifier: "io.wardenhq.wardend",
		Version:    "1.0.1",
	}, kp); err != nil {
		t.Fatalf("re-seal: %v", err)
	}

	seal, valid, err := VerifySeal(path)
	if err != nil {
		t.Fatalf("VerifySeal: %v", err)
	}
	if !valid {
		t.Fatal("re-sealed binary does not verify")
	}
	if seal.Version != "1.0.1" {
		t.Errorf("version = %q, want \"1.0.1\"", seal.Version)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.HasPrefix(raw, payload) {
		t.Error("payload bytes changed across re-seal")
	}
}
