// Package service implements the worker side of every transport route. It
// is the only place the authorizer, executor, updater, audit store, and
// uninstaller meet: one Handle call per connection, routed by name, with
// every privileged request audited whether it was carried out, denied, or
// refused.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/wardenhq/warden/internal/audit"
	"github.com/wardenhq/warden/internal/authorize"
	"github.com/wardenhq/warden/internal/command"
	"github.com/wardenhq/warden/internal/hostinfo"
	"github.com/wardenhq/warden/internal/identity"
	"github.com/wardenhq/warden/internal/transport"
	"github.com/wardenhq/warden/internal/updater"
	"github.com/wardenhq/warden/internal/version"
)

// auditTailDefault is how many entries the audit route returns when the
// request does not say.
const auditTailDefault = 50

// auditTailMax caps a single audit read.
const auditTailMax = 1000

// uninstallDelay is how long the uninstall path waits before spawning the
// removal script and exiting, letting the request connection close first.
const uninstallDelay = time.Second

// Service routes worker requests to the components that carry them out.
type Service struct {
	seal       *identity.Seal
	authorizer *authorize.Authorizer
	executor   *command.Executor
	updaterSvc *updater.Updater
	audits     *audit.Store
	logger     *slog.Logger

	// uninstall spawns the detached self-removal. Swappable for tests.
	uninstall func() error

	// exit terminates the process after an uninstall is spawned.
	// Swappable for tests.
	exit func(int)
}

// New wires a service from its collaborators. seal is the worker's own
// embedded seal, read and verified at startup.
func New(seal *identity.Seal, authorizer *authorize.Authorizer, executor *command.Executor,
	updaterSvc *updater.Updater, audits *audit.Store, uninstall func() error, logger *slog.Logger) *Service {
	return &Service{
		seal:       seal,
		authorizer: authorizer,
		executor:   executor,
		updaterSvc: updaterSvc,
		audits:     audits,
		uninstall:  uninstall,
		exit:       os.Exit,
		logger:     logger.With(slog.String("component", "service")),
	}
}

// Handle implements transport.Handler. A nil response means the route
// replies with silence and the connection close is the caller's signal.
func (s *Service) Handle(ctx context.Context, peer transport.Peer, req *transport.Request) *transport.Response {
	switch req.Route {
	case transport.RouteRunCommand:
		return s.handleRunCommand(ctx, peer, req.Payload)
	case transport.RouteUpdate:
		return s.handleUpdate(peer, req.Payload)
	case transport.RouteUninstall:
		return s.handleUninstall(peer)
	case transport.RouteVersion:
		return s.handleVersion()
	case transport.RouteInfo:
		return s.handleInfo(ctx)
	case transport.RouteAudit:
		return s.handleAudit(req.Payload)
	default:
		return errorResponse(transport.ErrKindBadRequest, fmt.Sprintf("unknown route %q", req.Route))
	}
}

// handleRunCommand authorizes and executes one closed-set command.
func (s *Service) handleRunCommand(ctx context.Context, peer transport.Peer, payload json.RawMessage) *transport.Response {
	var req command.Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return errorResponse(transport.ErrKindBadRequest, "invalid command request")
	}

	entry := &audit.Entry{
		Kind:    audit.KindCommand,
		Command: string(req.Command),
		PeerUID: &peer.UID,
	}

	binding, err := command.Lookup(req.Command)
	if err != nil {
		entry.Outcome = audit.OutcomeDenied
		entry.Detail = err.Error()
		s.record(entry)
		return errorResponse(transport.ErrKindUnknownCommand, err.Error())
	}
	entry.Right = binding.Right

	if err := s.authorizer.Authorize(&req, binding); err != nil {
		entry.Outcome = audit.OutcomeDenied
		entry.Detail = err.Error()
		s.record(entry)

		kind := transport.ErrKindAuthFailed
		if errors.Is(err, authorize.ErrNotRequested) {
			kind = transport.ErrKindAuthNotRequested
		}
		return errorResponse(kind, err.Error())
	}

	reply, err := s.executor.Run(ctx, req.Command)
	if err != nil {
		entry.Outcome = audit.OutcomeError
		entry.Detail = err.Error()
		s.record(entry)
		return errorResponse(transport.ErrKindExecution, err.Error())
	}

	entry.Outcome = audit.OutcomeOK
	entry.ExitCode = &reply.ExitCode
	s.record(entry)

	return okResponse(reply)
}

// handleUpdate verifies and applies a candidate binary. The route never
// replies: on success the process exits before any answer could be sent,
// and refusals are logged and audited locally only, because the channel
// may have no live listener by the time the decision lands. The single
// exception is a malformed request, refused before handling begins.
func (s *Service) handleUpdate(peer transport.Peer, payload json.RawMessage) *transport.Response {
	var req transport.UpdateRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return errorResponse(transport.ErrKindBadRequest, "invalid update request")
	}
	if !filepath.IsAbs(req.CandidatePath) {
		return errorResponse(transport.ErrKindBadRequest, "candidate path must be absolute")
	}

	// Audited before the updater runs: a successful update exits inside
	// Update, so this entry is the only trace the attempt leaves.
	s.record(&audit.Entry{
		Kind:    audit.KindUpdate,
		Outcome: audit.OutcomeRequested,
		Detail:  req.CandidatePath,
		PeerUID: &peer.UID,
	})

	err := s.updaterSvc.Update(req.CandidatePath)

	var abortErr *updater.AbortError
	switch {
	case err == nil:
		// Reached only under test exit hooks; in production Update does
		// not return after a successful replace.
	case errors.As(err, &abortErr):
		s.record(&audit.Entry{
			Kind:    audit.KindUpdate,
			Outcome: audit.OutcomeRefused,
			Detail:  abortErr.Error(),
			PeerUID: &peer.UID,
		})
	default:
		s.logger.Error("update failed", slog.String("error", err.Error()))
		s.record(&audit.Entry{
			Kind:    audit.KindUpdate,
			Outcome: audit.OutcomeError,
			Detail:  err.Error(),
			PeerUID: &peer.UID,
		})
	}

	return nil
}

// handleUninstall spawns detached self-removal and exits. No reply; the
// connection closing is the caller's signal that removal is underway.
func (s *Service) handleUninstall(peer transport.Peer) *transport.Response {
	s.record(&audit.Entry{
		Kind:    audit.KindUninstall,
		Outcome: audit.OutcomeRequested,
		PeerUID: &peer.UID,
	})

	go func() {
		// Let the request connection close so the caller observes the
		// drop before the socket is torn down.
		time.Sleep(uninstallDelay)

		if err := s.uninstall(); err != nil {
			s.logger.Error("uninstall failed", slog.String("error", err.Error()))
			return
		}
		s.logger.Info("uninstall spawned, exiting")
		s.exit(0)
	}()

	return nil
}

// handleVersion reports seal identity and build stamp.
func (s *Service) handleVersion() *transport.Response {
	return okResponse(&transport.VersionReply{
		Identifier:   s.seal.Identifier,
		SealVersion:  s.seal.Version,
		BuildVersion: version.Version,
		Commit:       version.Commit,
		BuildTime:    version.BuildTime,
		PID:          os.Getpid(),
	})
}

// handleInfo reports a host snapshot.
func (s *Service) handleInfo(ctx context.Context) *transport.Response {
	snap, err := hostinfo.Collect(ctx)
	if err != nil {
		return errorResponse(transport.ErrKindInternal, err.Error())
	}
	return okResponse(&transport.InfoReply{
		Host:          snap,
		WorkerVersion: s.seal.Version,
	})
}

// handleAudit reads back the newest audit entries.
func (s *Service) handleAudit(payload json.RawMessage) *transport.Response {
	var req transport.AuditRequest
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return errorResponse(transport.ErrKindBadRequest, "invalid audit request")
		}
	}

	limit := req.Limit
	if limit <= 0 {
		limit = auditTailDefault
	}
	if limit > auditTailMax {
		limit = auditTailMax
	}

	entries, err := s.audits.Tail(limit)
	if err != nil {
		return errorResponse(transport.ErrKindInternal, err.Error())
	}
	return okResponse(&transport.AuditReply{Entries: entries})
}

// record appends an audit entry, logging instead of failing the request
// when the store itself is broken.
func (s *Service) record(entry *audit.Entry) {
	if err := s.audits.Append(entry); err != nil {
		s.logger.Error("audit append failed",
			slog.String("kind", string(entry.Kind)),
			slog.String("error", err.Error()))
	}
}

func okResponse(payload any) *transport.Response {
	raw, err := json.Marshal(payload)
	if err != nil {
		return errorResponse(transport.ErrKindInternal, fmt.Sprintf("encoding reply: %v", err))
	}
	return &transport.Response{OK: true, Payload: raw}
}

func errorResponse(kind transport.ErrorKind, msg string) *transport.Response {
	return &transport.Response{OK: false, ErrorKind: kind, Error: msg}
}
