// Package release acquires candidate worker binaries from a release
// endpoint. The controller fetches a manifest naming the current release,
// downloads the artifact next to the install path, and verifies its
// checksum before handing the path to the worker's update route. The
// worker's own seal gates do the real acceptance; the checksum here only
// catches transfer corruption early and cheaply.
package release

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/wardenhq/warden/internal/semver"
	"github.com/wardenhq/warden/internal/version"
)

// Manifest describes the current release of the worker.
type Manifest struct {
	// Identifier names the product this release belongs to.
	Identifier string `json:"identifier"`

	// Version is the release's dotted version string.
	Version string `json:"version"`

	// URL is where the sealed binary artifact is served.
	URL string `json:"url"`

	// SHA256 is the hex digest of the artifact bytes.
	SHA256 string `json:"sha256"`
}

// Source fetches manifests and artifacts from a release endpoint.
type Source struct {
	manifestClient *http.Client
	artifactClient *http.Client
	manifestURL    string
	logger         *slog.Logger
}

// NewSource creates a release source reading the manifest at manifestURL.
// Manifest fetches retry with backoff; artifact downloads do not retry and
// carry no timeout beyond context cancellation, since artifacts can be
// large.
func NewSource(manifestURL string, logger *slog.Logger) *Source {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Backoff = retryablehttp.LinearJitterBackoff
	retryClient.Logger = nil
	retryClient.HTTPClient.Timeout = 30 * time.Second

	return &Source{
		manifestClient: retryClient.StandardClient(),
		artifactClient: &http.Client{},
		manifestURL:    manifestURL,
		logger:         logger.With(slog.String("component", "release")),
	}
}

// FetchManifest retrieves and validates the release manifest.
func (s *Source) FetchManifest(ctx context.Context) (*Manifest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.manifestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := s.manifestClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch manifest: HTTP %d", resp.StatusCode)
	}

	var m Manifest
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	if m.Identifier == "" || m.URL == "" || m.SHA256 == "" {
		return nil, fmt.Errorf("manifest incomplete: %+v", m)
	}
	if _, err := semver.Parse(m.Version); err != nil {
		return nil, fmt.Errorf("manifest version: %w", err)
	}

	return &m, nil
}

// Download fetches the manifest's artifact into a temp file inside dir and
// verifies its checksum. It returns the temp file path; the caller removes
// the file when done with it. dir should live on the same filesystem as
// the final destination so a later rename stays atomic.
func (s *Source) Download(ctx context.Context, m *Manifest, dir string) (string, error) {
	s.logger.Info("downloading release artifact",
		slog.String("version", m.Version),
		slog.String("url", m.URL))

	tmp, err := os.CreateTemp(dir, ".warden-release-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		tmp.Close()
		if !success {
			os.Remove(tmpPath)
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.URL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := s.artifactClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download artifact: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download artifact: HTTP %d", resp.StatusCode)
	}

	written, err := io.Copy(tmp, resp.Body)
	if err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}

	// Sync before hashing so verification reads what is actually on disk.
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close artifact: %w", err)
	}

	if err := VerifyChecksum(tmpPath, m.SHA256); err != nil {
		return "", err
	}

	s.logger.Info("release artifact verified",
		slog.String("version", m.Version),
		slog.Int64("bytes", written))

	success = true
	return tmpPath, nil
}
