package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nats-io/nkeys"

	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/identity"
	"github.com/wardenhq/warden/internal/release"
)

// sealWorker writes a fake sealed worker binary at path.
func sealWorker(t *testing.T, path, version string) nkeys.KeyPair {
	t.Helper()

	kp, err := nkeys.CreateAccount()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0755); err != nil {
		t.Fatal(err)
	}
	info := identity.SealInfo{
		Identifier: "io.wardenhq.wardend",
		Version:    version,
		Descriptor: []byte("[Unit]\nDescription=test\n"),
	}
	if err := identity.WriteSeal(path, path, info, kp); err != nil {
		t.Fatal(err)
	}
	return kp
}

// serveRelease serves a manifest for the given version.
func serveRelease(t *testing.T, identifier, version string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(release.Manifest{
			Identifier: identifier,
			Version:    version,
			URL:        "https://releases.invalid/wardend-" + version,
			SHA256:     strings.Repeat("ab", 32),
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckForUpdate(t *testing.T) {
	tests := []struct {
		name      string
		installed string // empty = no worker on disk
		released  string
		wantNewer bool
	}{
		{"newer release", "1.2.0", "1.3.0", true},
		{"same version", "1.2.0", "1.2.0", false},
		{"older release", "1.2.0", "1.1.9", false},
		{"no worker installed", "", "1.3.0", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			workerPath := filepath.Join(t.TempDir(), "wardend")
			if tc.installed != "" {
				sealWorker(t, workerPath, tc.installed)
			}
			srv := serveRelease(t, "io.wardenhq.wardend", tc.released)

			cfg := &config.Config{
				Identifier: "io.wardenhq.wardend",
				WorkerPath: workerPath,
				Release:    config.ReleaseConfig{ManifestURL: srv.URL},
			}

			check, err := checkForUpdate(context.Background(), cfg)
			if err != nil {
				t.Fatalf("checkForUpdate: %v", err)
			}

			if check.Newer != tc.wantNewer {
				t.Errorf("Newer = %v, want %v", check.Newer, tc.wantNewer)
			}
			if tc.installed == "" {
				if check.Installed != nil {
					t.Errorf("Installed = %v, want nil", check.Installed)
				}
			} else if check.Installed == nil || check.Installed.String() != tc.installed {
				t.Errorf("Installed = %v, want %s", check.Installed, tc.installed)
			}
			if check.Manifest.Version != tc.released {
				t.Errorf("Manifest.Version = %s, want %s", check.Manifest.Version, tc.released)
			}
		})
	}
}

func TestCheckForUpdate_IdentifierMismatch(t *testing.T) {
	srv := serveRelease(t, "io.other.product", "9.9.9")

	cfg := &config.Config{
		Identifier: "io.wardenhq.wardend",
		WorkerPath: filepath.Join(t.TempDir(), "wardend"),
		Release:    config.ReleaseConfig{ManifestURL: srv.URL},
	}

	if _, err := checkForUpdate(context.Background(), cfg); err == nil {
		t.Fatal("expected error for foreign-product manifest")
	}
}

func TestCheckForUpdate_NoManifestConfigured(t *testing.T) {
	cfg := &config.Config{Identifier: "io.wardenhq.wardend"}
	if _, err := checkForUpdate(context.Background(), cfg); err == nil {
		t.Fatal("expected error when release.manifest_url is unset")
	}
}
