// Package updater implements in-place self-replacement of the worker binary.
//
// An update passes three gates, in order: the candidate must be sealed by
// the same publisher key as the running binary, must embed a byte-identical
// registration descriptor, and must carry a strictly greater version. Only
// then is the on-disk executable overwritten, atomically, and the process
// terminated so the service manager relaunches the new binary. The gates
// are checked again on a staged private copy before the rename, so the
// committed bytes are exactly the verified bytes even when the caller
// mutates the candidate file mid-update.
//
// There are no retries and no rollback. A refused update leaves the on-disk
// binary untouched. Once the atomic replace lands, the only remaining step
// is process exit; if that is delayed, the on-disk and in-memory versions
// diverge until the service manager restarts the unit.
package updater

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/wardenhq/warden/internal/identity"
	"github.com/wardenhq/warden/internal/semver"
)

// Reason classifies a refused update.
type Reason string

const (
	// SignatureMismatch: the candidate is unsigned, carries an invalid
	// seal, was sealed by a different publisher, or identity could not
	// be established at all. Inconclusive verification refuses the same
	// way a conclusive mismatch does.
	SignatureMismatch Reason = "signature-mismatch"

	// RegistrationDrift: the candidate embeds a registration descriptor
	// that differs from the running binary's. The unit file on disk is
	// not replaced by an update, so accepting such a candidate would
	// silently change runtime semantics.
	RegistrationDrift Reason = "registration-drift"

	// NotNewer: the candidate version is not strictly greater than the
	// running version, or strict increase could not be established
	// because a version failed to parse.
	NotNewer Reason = "not-newer"
)

// AbortError reports a refused update. The on-disk binary is unmodified.
type AbortError struct {
	Reason Reason
	Err    error
}

func (e *AbortError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("update aborted (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("update aborted (%s)", e.Reason)
}

func (e *AbortError) Unwrap() error { return e.Err }

// Updater replaces the running worker binary in place.
type Updater struct {
	selfPath string
	logger   *slog.Logger

	// exit terminates the process after a successful replace. Swappable
	// so tests observe the exit instead of dying.
	exit func(int)
}

// New creates an updater for the running binary at selfPath.
func New(selfPath string, logger *slog.Logger) *Updater {
	return &Updater{
		selfPath: selfPath,
		logger:   logger.With(slog.String("component", "updater")),
		exit:     os.Exit,
	}
}

// Update verifies the candidate at candidatePath against the running
// binary and, if all gates pass, overwrites the running binary's file and
// terminates the process with exit status 0.
//
// The gates run twice. The first pass checks the caller's path directly,
// so a bad candidate is refused without writing anything. The second pass
// re-checks a staged private copy of the candidate: the caller keeps no
// handle to the staged file, so the bytes that pass verification are
// exactly the bytes that land at the executable path, and swapping the
// original file after the first pass gains nothing.
//
// Refusals are returned as *AbortError and logged; any other error means
// the mechanics of the update failed (unreadable file, failed write) with
// no verdict implied. Update is strictly sequential and not cancellable
// once verification begins.
func (u *Updater) Update(candidatePath string) error {
	u.logger.Info("update requested", slog.String("candidate", candidatePath))

	first, err := u.verifyGates(candidatePath)
	if err != nil {
		return err
	}

	tmpPath, err := u.stage(candidatePath)
	if err != nil {
		return fmt.Errorf("stage candidate: %w", err)
	}

	staged, err := u.verifyGates(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, u.selfPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename into place: %w", err)
	}

	// The two passes agree unless the caller raced the staging copy.
	if staged.candidate != first.candidate {
		u.logger.Warn("candidate changed between verification passes",
			slog.String("first", first.candidate.String()),
			slog.String("staged", staged.candidate.String()))
	}

	u.logger.Info("update complete, exiting for restart",
		slog.String("from", staged.own.String()),
		slog.String("to", staged.candidate.String()))

	// Give the log a moment to flush before the process dies.
	time.Sleep(100 * time.Millisecond)
	u.exit(0)
	return nil
}

// gateVersions carries the versions established by one verification pass.
type gateVersions struct {
	own       semver.Version
	candidate semver.Version
}

// verifyGates runs the three update gates against the file at path:
// matching signing identity, byte-identical registration descriptor, and
// strictly increasing version. The returned error is an *AbortError for a
// refusal, or a plain error when the running binary's own seal cannot be
// read.
func (u *Updater) verifyGates(path string) (gateVersions, error) {
	var v gateVersions

	matched, err := identity.VerifyMatchingIdentity(u.selfPath, path)
	if err != nil {
		return v, u.abort(&AbortError{Reason: SignatureMismatch, Err: err})
	}
	if !matched {
		return v, u.abort(&AbortError{Reason: SignatureMismatch})
	}

	own, err := identity.ReadSeal(u.selfPath)
	if err != nil {
		return v, fmt.Errorf("read own seal: %w", err)
	}
	candidate, err := identity.ReadSeal(path)
	if err != nil {
		return v, fmt.Errorf("read candidate seal: %w", err)
	}

	if !bytes.Equal(own.Descriptor, candidate.Descriptor) {
		return v, u.abort(&AbortError{Reason: RegistrationDrift})
	}

	v.own, err = semver.Parse(own.Version)
	if err != nil {
		return v, u.abort(&AbortError{Reason: NotNewer, Err: err})
	}
	v.candidate, err = semver.Parse(candidate.Version)
	if err != nil {
		return v, u.abort(&AbortError{Reason: NotNewer, Err: err})
	}
	if !v.own.Less(v.candidate) {
		return v, u.abort(&AbortError{
			Reason: NotNewer,
			Err:    fmt.Errorf("candidate %s does not exceed running %s", v.candidate, v.own),
		})
	}

	return v, nil
}

// abort logs a refusal and returns it. Aborts are logged locally because
// the requesting channel may have no live listener by the time the
// decision is made.
func (u *Updater) abort(abortErr *AbortError) error {
	attrs := []any{slog.String("reason", string(abortErr.Reason))}
	if abortErr.Err != nil {
		attrs = append(attrs, slog.String("detail", abortErr.Err.Error()))
	}
	u.logger.Warn("update refused", attrs...)
	return abortErr
}

// stage copies the candidate's bytes into a temp file in the running
// binary's directory and returns its path. Staging in the same directory
// keeps the final rename atomic, so the loader can never observe a
// partially-written executable.
func (u *Updater) stage(candidatePath string) (string, error) {
	src, err := os.Open(candidatePath)
	if err != nil {
		return "", fmt.Errorf("open candidate: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(u.selfPath), ".wardend-update-*")
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

	if _, err := io.Copy(tmp, src); err != nil {
		return "", fmt.Errorf("copy candidate: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("sync: %w", err)
	}
	if err := tmp.Chmod(0755); err != nil {
		return "", fmt.Errorf("chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close: %w", err)
	}

	success = true
	return tmpPath, nil
}
