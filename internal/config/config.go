// Package config provides configuration management for warden.
// It uses koanf v2 to load configuration from YAML files and supports
// writing a starter configuration (wardenctl init).
//
// One schema serves both binaries: wardend reads the worker-side fields
// (socket, paths, authority public key, audit retention) and wardenctl
// additionally reads the controller-side fields (authority seed path,
// release source). Configuration is loaded from /etc/warden/config.yaml
// by default.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	goyaml "gopkg.in/yaml.v3"
)

// DefaultConfigPath is the default location of the shared configuration file.
const DefaultConfigPath = "/etc/warden/config.yaml"

// Config holds the warden configuration loaded from the YAML config file.
// Fields are tagged for both koanf (loading) and yaml (saving).
type Config struct {
	// SocketPath is the unix domain socket the worker serves requests on.
	SocketPath string `koanf:"socket_path" yaml:"socket_path"`

	// WorkerPath is the fixed install path of the privileged worker binary.
	WorkerPath string `koanf:"worker_path" yaml:"worker_path"`

	// DescriptorPath is the registration descriptor read by systemd:
	// the unit file that describes how to run the worker.
	DescriptorPath string `koanf:"descriptor_path" yaml:"descriptor_path"`

	// UnitName is the systemd unit label the worker is registered under.
	UnitName string `koanf:"unit_name" yaml:"unit_name"`

	// Identifier is the product identifier expected in the worker's seal
	// (e.g., "io.wardenhq.wardend").
	Identifier string `koanf:"identifier" yaml:"identifier"`

	// AuthorityPublicKeyPath is the file holding the operator authority
	// public key the worker trusts for authorization tokens.
	AuthorityPublicKeyPath string `koanf:"authority_public_key_path" yaml:"authority_public_key_path"`

	// AuthoritySeedPath is the operator authority seed used by wardenctl
	// to mint authorization tokens. Never read by the worker.
	AuthoritySeedPath string `koanf:"authority_seed_path" yaml:"authority_seed_path"`

	// StateDir is the directory for worker-owned state (audit database).
	StateDir string `koanf:"state_dir" yaml:"state_dir"`

	// LogLevel controls logging verbosity: "debug", "info", "warn", "error".
	LogLevel string `koanf:"log_level" yaml:"log_level"`

	// CommandTimeoutSeconds bounds the runtime of a single privileged
	// command execution.
	CommandTimeoutSeconds int `koanf:"command_timeout_seconds" yaml:"command_timeout_seconds"`

	// AllowedPeerUIDs restricts which local users may talk to the worker
	// socket. Empty means any peer the socket mode admits.
	AllowedPeerUIDs []uint32 `koanf:"allowed_peer_uids" yaml:"allowed_peer_uids"`

	// AuditKeep is how many audit entries the worker retains; older
	// entries are pruned at startup.
	AuditKeep int `koanf:"audit_keep" yaml:"audit_keep"`

	// Release configures where wardenctl looks for worker releases.
	Release ReleaseConfig `koanf:"release" yaml:"release"`
}

// ReleaseConfig is the controller-side release acquisition configuration.
type ReleaseConfig struct {
	// ManifestURL is the HTTPS endpoint serving the release manifest.
	// Empty disables update checks.
	ManifestURL string `koanf:"manifest_url" yaml:"manifest_url"`

	// CheckSchedule is a cron expression for periodic update checks in
	// `wardenctl watch`.
	CheckSchedule string `koanf:"check_schedule" yaml:"check_schedule"`
}

// Validation errors returned by Load when fields are missing or invalid.
var (
	ErrSocketPathRequired     = errors.New("socket_path is required")
	ErrWorkerPathRequired     = errors.New("worker_path is required")
	ErrDescriptorPathRequired = errors.New("descriptor_path is required")
	ErrUnitNameRequired       = errors.New("unit_name is required")
	ErrIdentifierRequired     = errors.New("identifier is required")
	ErrInvalidCommandTimeout  = errors.New("command_timeout_seconds must be positive")
	ErrInvalidAuditKeep       = errors.New("audit_keep must be positive")
)

// Default returns a configuration populated entirely from defaults, as used
// when no config file exists on the host.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads configuration from the specified YAML file path.
// It applies defaults for unset fields and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadOrDefault behaves like Load but returns the default configuration when
// the file does not exist. A file that exists but fails to parse or validate
// is still an error: a present-but-broken config must not be silently
// replaced by defaults.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(path)
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.SocketPath == "" {
		c.SocketPath = "/run/warden/wardend.sock"
	}
	if c.WorkerPath == "" {
		c.WorkerPath = "/usr/local/lib/warden/wardend"
	}
	if c.DescriptorPath == "" {
		c.DescriptorPath = "/etc/systemd/system/wardend.service"
	}
	if c.UnitName == "" {
		c.UnitName = "wardend.service"
	}
	if c.Identifier == "" {
		c.Identifier = "io.wardenhq.wardend"
	}
	if c.AuthorityPublicKeyPath == "" {
		c.AuthorityPublicKeyPath = "/etc/warden/authority.pub"
	}
	if c.StateDir == "" {
		c.StateDir = "/var/lib/warden"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.CommandTimeoutSeconds == 0 {
		c.CommandTimeoutSeconds = 300
	}
	if c.AuditKeep == 0 {
		c.AuditKeep = 1000
	}
	if c.Release.CheckSchedule == "" {
		c.Release.CheckSchedule = "0 */6 * * *"
	}
}

// validate checks that configuration fields are present and plausible.
func (c *Config) validate() error {
	if c.SocketPath == "" {
		return ErrSocketPathRequired
	}
	if c.WorkerPath == "" {
		return ErrWorkerPathRequired
	}
	if c.DescriptorPath == "" {
		return ErrDescriptorPathRequired
	}
	if c.UnitName == "" {
		return ErrUnitNameRequired
	}
	if c.Identifier == "" {
		return ErrIdentifierRequired
	}
	if c.CommandTimeoutSeconds <= 0 {
		return ErrInvalidCommandTimeout
	}
	if c.AuditKeep <= 0 {
		return ErrInvalidAuditKeep
	}
	return nil
}

// Save writes the configuration to the specified YAML file path.
// The file carries 0644: paths and a public-key location, no secrets
// (the authority seed lives in its own 0600 file).
func Save(path string, cfg *Config) error {
	data, err := goyaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to %s: %w", path, err)
	}

	return nil
}
