// Package command defines the closed set of privileged operations the
// worker is willing to perform, and the executor that runs them.
//
// Each command name maps through an exhaustive switch to a fixed binding:
// executable path, argument list, and whether operator authorization is
// required. No binding admits caller-supplied paths or arguments: a caller
// chooses a name from the set or gets nothing. This closure is the central
// privilege-containment invariant of the worker; it must never be weakened
// into a lookup keyed by caller-supplied strings.
package command

import "errors"

// Name selects one command from the closed set.
type Name string

// The closed command set. Adding a variant means adding a constant here,
// a case to Lookup, and an entry to allCommands. Nothing else accepts
// new commands.
const (
	// Whoami reports the identity the worker runs as. Unprivileged probe,
	// useful for callers confirming the channel reaches a root worker.
	Whoami Name = "whoami"

	// KernelVersion reports the running kernel release.
	KernelVersion Name = "kernel-version"

	// FlushDNSCache drops the host resolver cache.
	FlushDNSCache Name = "flush-dns-cache"

	// ReloadUnits makes systemd re-read unit files from disk.
	ReloadUnits Name = "reload-units"

	// VacuumJournal prunes journald logs older than a week.
	VacuumJournal Name = "vacuum-journal"
)

// rightPrefix namespaces the authorization rights the worker requests.
const rightPrefix = "io.wardenhq.wardend."

// Binding is the static execution contract of one command.
type Binding struct {
	// Path is the absolute executable path. Never caller-supplied.
	Path string

	// Args is the fixed argument list. Never caller-supplied.
	Args []string

	// RequiresAuth marks commands that need an authorization token
	// carrying the named right.
	RequiresAuth bool

	// Right is the authorization right name checked when RequiresAuth
	// is true. Empty otherwise.
	Right string
}

// ErrUnknownCommand is returned for names outside the closed set.
var ErrUnknownCommand = errors.New("unknown command")

// allCommands lists every variant, in display order.
var allCommands = []Name{Whoami, KernelVersion, FlushDNSCache, ReloadUnits, VacuumJournal}

// Lookup resolves a name to its binding. The switch is exhaustive over the
// declared variants; anything else fails with ErrUnknownCommand.
func Lookup(name Name) (Binding, error) {
	switch name {
	case Whoami:
		return Binding{Path: "/usr/bin/whoami"}, nil
	case KernelVersion:
		return Binding{Path: "/usr/bin/uname", Args: []string{"-r"}}, nil
	case FlushDNSCache:
		return Binding{
			Path:         "/usr/bin/resolvectl",
			Args:         []string{"flush-caches"},
			RequiresAuth: true,
			Right:        rightPrefix + "flush-dns-cache",
		}, nil
	case ReloadUnits:
		return Binding{
			Path:         "/usr/bin/systemctl",
			Args:         []string{"daemon-reload"},
			RequiresAuth: true,
			Right:        rightPrefix + "reload-units",
		}, nil
	case VacuumJournal:
		return Binding{
			Path:         "/usr/bin/journalctl",
			Args:         []string{"--vacuum-time=7d"},
			RequiresAuth: true,
			Right:        rightPrefix + "vacuum-journal",
		}, nil
	default:
		return Binding{}, ErrUnknownCommand
	}
}

// Commands returns every declared command name.
func Commands() []Name {
	out := make([]Name, len(allCommands))
	copy(out, allCommands)
	return out
}

// Rights returns the authorization right of every command that requires
// one. Token minting uses this as the full grant set.
func Rights() []string {
	var rights []string
	for _, name := range allCommands {
		binding, err := Lookup(name)
		if err != nil {
			continue
		}
		if binding.RequiresAuth {
			rights = append(rights, binding.Right)
		}
	}
	return rights
}

// Request is the wire form of a command invocation.
type Request struct {
	// Command is the name of the closed-set variant to run.
	Command Name `json:"command"`

	// Authorization is the caller's opaque authorization token. Ignored
	// for commands that do not require authorization.
	Authorization []byte `json:"authorization,omitempty"`
}

// Reply is the wire form of a command outcome. Stdout and Stderr carry the
// whitespace-trimmed stream contents, or nil when a stream produced no
// non-whitespace output. Absent means "nothing said", not empty string.
type Reply struct {
	ExitCode   int     `json:"exit_code"`
	Stdout     *string `json:"stdout,omitempty"`
	Stderr     *string `json:"stderr,omitempty"`
	DurationMs int64   `json:"duration_ms"`
}
