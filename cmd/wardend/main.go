// wardend - Privileged Worker Entry Point
//
// wardend is the privileged half of warden. It runs as a root systemd
// service on the managed host and serves a closed set of privileged
// operations to local unprivileged peers over a unix domain socket:
//   - Running vetted maintenance commands, gated by authorization tokens
//   - Replacing its own binary with a verified sealed release
//   - Removing its own installation
//   - Reporting its version, host facts, and the privileged-action audit log
//
// Configuration is loaded from /etc/warden/config.yaml (or the path given
// by -config). "wardend uninstall" removes the installation directly from
// a root shell, without going through the socket.
//
// Lifecycle:
//  1. Load configuration from YAML file
//  2. Setup structured JSON logger
//  3. Establish own identity: verify the seal on the running binary
//  4. Load the authority public key for authorization checks
//  5. Open the audit store and bind the request socket
//  6. Notify systemd that the service is ready (Type=notify)
//  7. Start watchdog goroutine if systemd provides WatchdogSec
//  8. Serve requests until SIGTERM/SIGINT
//  9. Notify systemd we're stopping, then coordinated shutdown with timeout
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/wardenhq/warden/internal/audit"
	"github.com/wardenhq/warden/internal/authorize"
	"github.com/wardenhq/warden/internal/command"
	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/identity"
	"github.com/wardenhq/warden/internal/logging"
	"github.com/wardenhq/warden/internal/service"
	"github.com/wardenhq/warden/internal/shutdown"
	"github.com/wardenhq/warden/internal/systemd"
	"github.com/wardenhq/warden/internal/transport"
	"github.com/wardenhq/warden/internal/uninstall"
	"github.com/wardenhq/warden/internal/updater"
	"github.com/wardenhq/warden/internal/version"
)

// Default shutdown timeout - how long to wait for graceful shutdown
const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	// The only positional command is "uninstall", for operators with a
	// root shell who cannot or will not go through the socket.
	if args := flag.Args(); len(args) > 0 {
		if args[0] != "uninstall" || len(args) > 1 {
			fmt.Fprintf(os.Stderr, "usage: wardend [-config path] [uninstall]\n")
			os.Exit(2)
		}
		runUninstall(*configPath)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Use basic stderr logging before logger is configured
		fmt.Fprintf(os.Stderr, "ERROR: failed to load configuration from %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	logger := logging.SetupLogger(cfg.LogLevel)

	logger.Info("worker starting",
		slog.String("version", version.Version),
		slog.String("commit", version.Commit),
		slog.String("build_time", version.BuildTime),
		slog.String("config_path", *configPath),
		slog.String("socket_path", cfg.SocketPath),
		slog.String("identifier", cfg.Identifier),
	)

	// Establish our own identity before serving anything. A worker whose
	// seal is missing, invalid, or for the wrong product must not run:
	// it could never accept an update, and its authorization surface
	// would be unaccounted for.
	selfPath, err := os.Executable()
	if err != nil {
		fatal(logger, &config.ConfigurationError{Stage: "locate executable", Err: err})
	}

	seal, valid, err := identity.VerifySeal(selfPath)
	if err != nil {
		fatal(logger, &config.ConfigurationError{Stage: "read own seal", Err: err})
	}
	if !valid {
		fatal(logger, &config.ConfigurationError{
			Stage: "read own seal",
			Err:   fmt.Errorf("seal signature invalid on %s", selfPath),
		})
	}
	if seal.Identifier != cfg.Identifier {
		fatal(logger, &config.ConfigurationError{
			Stage: "read own seal",
			Err:   fmt.Errorf("sealed identifier %q does not match configured %q", seal.Identifier, cfg.Identifier),
		})
	}

	logger.Info("identity established",
		slog.String("identifier", seal.Identifier),
		slog.String("sealed_version", seal.Version),
	)

	authorityKey, err := authorize.LoadPublicKey(cfg.AuthorityPublicKeyPath)
	if err != nil {
		fatal(logger, &config.ConfigurationError{Stage: "load authority key", Err: err})
	}
	authorizer, err := authorize.NewAuthorizer(authorityKey, logger)
	if err != nil {
		fatal(logger, &config.ConfigurationError{Stage: "load authority key", Err: err})
	}

	if err := os.MkdirAll(cfg.StateDir, 0700); err != nil {
		fatal(logger, &config.ConfigurationError{Stage: "create state directory", Err: err})
	}

	audits, err := audit.Open(filepath.Join(cfg.StateDir, "audit.db"), cfg.AuditKeep)
	if err != nil {
		fatal(logger, &config.ConfigurationError{Stage: "open audit store", Err: err})
	}

	executor := command.NewExecutor(time.Duration(cfg.CommandTimeoutSeconds)*time.Second, logger)
	upd := updater.New(selfPath, logger)

	uninstallFn := func() error {
		return uninstall.Run(uninstall.PathsFromConfig(cfg, *configPath), logger)
	}

	svc := service.New(seal, authorizer, executor, upd, audits, uninstallFn, logger)

	server := transport.NewServer(transport.ServerConfig{
		SocketPath:      cfg.SocketPath,
		AllowedPeerUIDs: cfg.AllowedPeerUIDs,
	}, svc, logger)

	if err := server.Listen(); err != nil {
		logger.Error("failed to bind request socket", "error", err)
		audits.Close()
		os.Exit(1)
	}

	// Shutdown is LIFO: the transport drains in-flight requests before
	// the audit store they write to is closed.
	coordinator := shutdown.NewCoordinator(logger)
	coordinator.Register("audit", shutdown.Func(audits.Close))
	coordinator.Register("transport", server)

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go server.Serve(ctx)

	systemd.NotifyReady()
	logger.Info("worker ready", slog.String("socket", cfg.SocketPath))

	systemd.StartWatchdog(ctx, server.Healthy)

	<-ctx.Done()
	logger.Info("shutdown signal received, starting graceful shutdown")

	systemd.NotifyStopping()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := coordinator.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

// runUninstall handles "wardend uninstall": spawn the detached removal
// script and exit. The script stops the unit, so a running worker instance
// is terminated by the service manager rather than by us.
func runUninstall(configPath string) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: failed to load configuration from %s: %v\n", configPath, err)
		os.Exit(1)
	}

	logger := logging.SetupLogger(cfg.LogLevel)
	if err := uninstall.Run(uninstall.PathsFromConfig(cfg, configPath), logger); err != nil {
		logger.Error("uninstall failed", "error", err)
		os.Exit(1)
	}

	logger.Info("uninstall started, removal continues in the background")
}

// fatal logs a startup configuration error and exits. These failures mean
// the worker cannot establish a trustworthy identity, so it refuses to
// serve rather than degrade.
func fatal(logger *slog.Logger, err error) {
	logger.Error("startup failed", "error", err)
	os.Exit(1)
}
