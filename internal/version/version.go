// Package version provides build-time version information for warden binaries.
// Version, Commit, and BuildTime are populated via ldflags during the build.
// Development builds fall back to the defaults below.
//
// Note: the worker's authoritative version for update decisions is the one
// embedded in its signed seal, not this build stamp. The build stamp exists
// for --version output and HTTP user agents.
package version

// Build information variables, set via ldflags at build time:
//
//	go build -ldflags "-X github.com/wardenhq/warden/internal/version.Version=1.0.0 \
//	                   -X github.com/wardenhq/warden/internal/version.Commit=abc123 \
//	                   -X github.com/wardenhq/warden/internal/version.BuildTime=2026-08-25T12:00:00Z"
var (
	// Version is the semantic version of the build (e.g., "1.0.0", "dev").
	Version = "dev"

	// Commit is the git commit hash from which the binary was built.
	Commit = "unknown"

	// BuildTime is the timestamp when the binary was built (RFC3339 format).
	BuildTime = "unknown"
)

// Info returns a formatted string with all version information.
func Info() string {
	return "warden " + Version + " (commit: " + Commit + ", built: " + BuildTime + ")"
}

// UserAgent returns the User-Agent header value for outbound HTTP requests.
func UserAgent() string {
	return "warden/" + Version
}
