// Package transport carries the routed request/reply contract between the
// controller and the privileged worker over a unix domain socket.
//
// Framing is one JSON request and at most one JSON reply per connection.
// Most routes answer with a Response. The update and uninstall routes never
// reply: the worker process is expected to exit, so the controller treats
// a dropped connection after a fully written request as the success signal
// and re-queries the version route to observe the outcome.
//
// Both cmd/wardend and wardenctl import this package so the wire types are
// defined once rather than mirrored.
package transport

import (
	"encoding/json"
	"fmt"

	"github.com/wardenhq/warden/internal/audit"
	"github.com/wardenhq/warden/internal/hostinfo"
)

// Route names one operation the worker serves.
type Route string

const (
	// RouteRunCommand executes one closed-set command. Payload is a
	// command.Request; the reply payload is a command.Reply.
	RouteRunCommand Route = "run-command"

	// RouteUpdate hands the worker a candidate binary path. No reply in
	// any outcome: success ends in process exit, refusals are logged and
	// audited locally only.
	RouteUpdate Route = "update"

	// RouteUninstall triggers detached self-removal. No reply.
	RouteUninstall Route = "uninstall"

	// RouteVersion reports the worker's identity and versions. Reply
	// payload is a VersionReply.
	RouteVersion Route = "version"

	// RouteInfo reports host facts. Reply payload is an InfoReply.
	RouteInfo Route = "info"

	// RouteAudit reads back the newest audit entries. Payload is an
	// AuditRequest; reply payload is an AuditReply.
	RouteAudit Route = "audit"
)

// Request is the envelope the controller sends. Payload is the
// route-specific body, absent for routes that take none.
type Request struct {
	Route   Route           `json:"route"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrorKind tags a failed Response so the caller can reconstruct the
// worker-side error class without parsing message text.
type ErrorKind string

const (
	// ErrKindAuthNotRequested: the command requires authorization and the
	// request carried no token. A caller defect, not a user denial.
	ErrKindAuthNotRequested ErrorKind = "authorization-not-requested"

	// ErrKindAuthFailed: a token was presented and rejected.
	ErrKindAuthFailed ErrorKind = "authorization-failed"

	// ErrKindExecution: the command process could not be spawned at all.
	ErrKindExecution ErrorKind = "execution"

	// ErrKindUnknownCommand: the requested name is outside the closed set.
	ErrKindUnknownCommand ErrorKind = "unknown-command"

	// ErrKindPermissionDenied: the connecting peer is not in the socket
	// allow-list.
	ErrKindPermissionDenied ErrorKind = "permission-denied"

	// ErrKindBadRequest: the request envelope or payload did not decode,
	// or named an unknown route.
	ErrKindBadRequest ErrorKind = "bad-request"

	// ErrKindInternal: the worker failed after the request was accepted.
	ErrKindInternal ErrorKind = "internal"
)

// Response is the envelope the worker sends back on replying routes.
type Response struct {
	OK        bool            `json:"ok"`
	ErrorKind ErrorKind       `json:"error_kind,omitempty"`
	Error     string          `json:"error,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// RouteError is a failed Response reconstructed on the caller side.
type RouteError struct {
	Kind    ErrorKind
	Message string
}

func (e *RouteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("worker refused request (%s)", e.Kind)
	}
	return fmt.Sprintf("worker refused request (%s): %s", e.Kind, e.Message)
}

// UpdateRequest is the payload of RouteUpdate.
type UpdateRequest struct {
	// CandidatePath is the absolute path of the candidate binary. The
	// worker stages and verifies the file itself; the path is the only
	// caller-supplied part.
	CandidatePath string `json:"candidate_path"`
}

// VersionReply is the payload answering RouteVersion.
type VersionReply struct {
	// Identifier and SealVersion come from the worker's embedded seal
	// and are authoritative for update decisions.
	Identifier  string `json:"identifier"`
	SealVersion string `json:"seal_version"`

	// BuildVersion, Commit, and BuildTime are the ldflags build stamp.
	BuildVersion string `json:"build_version"`
	Commit       string `json:"commit"`
	BuildTime    string `json:"build_time"`

	// PID identifies the serving process, letting callers observe a
	// restart across an update.
	PID int `json:"pid"`
}

// InfoReply is the payload answering RouteInfo.
type InfoReply struct {
	Host          *hostinfo.Snapshot `json:"host"`
	WorkerVersion string             `json:"worker_version"`
}

// AuditRequest is the payload of RouteAudit.
type AuditRequest struct {
	// Limit caps how many of the newest entries to return. Zero means
	// the server default.
	Limit int `json:"limit,omitempty"`
}

// AuditReply is the payload answering RouteAudit.
type AuditReply struct {
	Entries []audit.Entry `json:"entries"`
}
