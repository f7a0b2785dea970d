package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/wardenhq/warden/internal/identity"
	"github.com/wardenhq/warden/internal/semver"
	"github.com/wardenhq/warden/internal/systemd"
)

// probeTimeout bounds the service-manager query made on each status
// recomputation.
const probeTimeout = 10 * time.Second

// Monitor computes installation status on demand and, once started,
// recomputes it whenever either watched directory changes.
type Monitor struct {
	workerPath     string
	descriptorPath string
	unit           string
	logger         *slog.Logger

	// probe queries the service manager for the unit. Swappable so
	// tests can fake registration.
	probe func(ctx context.Context, unit string) (bool, error)

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// New creates a monitor for the worker binary at workerPath and the unit
// file at descriptorPath, registered with the service manager as unit.
func New(workerPath, descriptorPath, unit string, logger *slog.Logger) *Monitor {
	return &Monitor{
		workerPath:     workerPath,
		descriptorPath: descriptorPath,
		unit:           unit,
		logger:         logger.With(slog.String("component", "monitor")),
		probe:          systemd.UnitRegistered,
	}
}

// Determine takes a fresh snapshot of the three installation facts. The
// probes run independently, so the result may combine observations that
// never held at the same instant. Determine has no side effects and is
// safe to call from any goroutine, including re-entrantly from change
// callbacks.
func (m *Monitor) Determine(ctx context.Context) Status {
	var status Status

	registered, err := m.probe(ctx, m.unit)
	if err != nil {
		// An unanswerable probe reads as unregistered.
		m.logger.Debug("registration probe failed", slog.String("error", err.Error()))
	} else {
		status.Registered = registered
	}

	if _, err := os.Stat(m.descriptorPath); err == nil {
		status.DescriptorPresent = true
	}

	seal, err := identity.ReadSeal(m.workerPath)
	if err != nil {
		return status
	}
	v, err := semver.Parse(seal.Version)
	if err != nil {
		m.logger.Warn("worker seal carries malformed version",
			slog.String("path", m.workerPath),
			slog.String("version", seal.Version))
		return status
	}

	status.ExecutablePresent = true
	status.WorkerVersion = &v
	return status
}

// Start watches the directories containing the worker binary and the
// unit file, invoking onChange with a fresh snapshot after every change
// in either. Directory-level events mean unrelated writes in the same
// directory also trigger recomputation; that costs a redundant probe,
// never a wrong answer.
//
// All callbacks are delivered sequentially from a single dispatch
// goroutine. Start is idempotent while active. Start and Stop must not
// be called concurrently with each other.
func (m *Monitor) Start(onChange func(Status)) error {
	if m.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	for _, dir := range watchDirs(m.workerPath, m.descriptorPath) {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return fmt.Errorf("watching %s: %w", dir, err)
		}
		m.logger.Debug("watching directory", slog.String("dir", dir))
	}

	m.watcher = watcher
	m.done = make(chan struct{})
	go m.dispatch(onChange)
	return nil
}

// Stop cancels the watches and waits for the dispatch goroutine to
// finish, so no callback runs after Stop returns. No-op if never
// started.
func (m *Monitor) Stop() {
	if m.watcher == nil {
		return
	}
	m.watcher.Close()
	<-m.done
	m.watcher = nil
	m.done = nil
}

func (m *Monitor) dispatch(onChange func(Status)) {
	defer close(m.done)
	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
				onChange(m.Determine(ctx))
				cancel()
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

// watchDirs returns the parent directories of the given paths, deduplicated.
func watchDirs(paths ...string) []string {
	var dirs []string
	seen := make(map[string]bool)
	for _, p := range paths {
		dir := filepath.Dir(p)
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	return dirs
}
