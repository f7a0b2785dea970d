// Package monitor observes the worker installation and reconciles three
// independently-timed facts into one status: whether the service manager
// knows the unit, whether the unit file is on disk, and whether a sealed
// worker binary is on disk. The three probes share no transaction
// boundary, so every one of the eight combinations is representable and
// classified, including the ones that "shouldn't" happen.
package monitor

import "github.com/wardenhq/warden/internal/semver"

// Status is a point-in-time snapshot of the three installation facts.
// It is recomputed fresh on every query and never cached.
type Status struct {
	// Registered reports whether the service manager has the unit loaded.
	Registered bool `json:"registered"`

	// DescriptorPresent reports whether the unit file exists on disk.
	DescriptorPresent bool `json:"descriptor_present"`

	// ExecutablePresent reports whether a sealed worker binary exists at
	// the install path. A binary whose seal cannot be read or whose
	// version does not parse counts as absent.
	ExecutablePresent bool `json:"executable_present"`

	// WorkerVersion is the version from the worker's seal. Set if and
	// only if ExecutablePresent is true.
	WorkerVersion *semver.Version `json:"worker_version,omitempty"`
}

// Class names one row of the installation decision table.
type Class string

const (
	// Installed is the only healthy steady state: all three facts hold.
	Installed Class = "installed"

	// NotInstalled means no trace of the worker exists.
	NotInstalled Class = "not-installed"

	// DegradedExecutableMissing: registered and descriptor present, but
	// the binary is gone.
	DegradedExecutableMissing Class = "degraded-executable-missing"

	// DegradedDescriptorMissing: registered with a binary on disk, but
	// the unit file is gone.
	DegradedDescriptorMissing Class = "degraded-descriptor-missing"

	// DegradedBothMissing: the service manager still knows the unit but
	// nothing is left on disk.
	DegradedBothMissing Class = "degraded-both-missing"

	// DegradedUnregistered: full install on disk that the service
	// manager does not know about.
	DegradedUnregistered Class = "degraded-unregistered"

	// DegradedDescriptorLeftover: only the unit file remains.
	DegradedDescriptorLeftover Class = "degraded-descriptor-leftover"

	// DegradedExecutableLeftover: only the binary remains.
	DegradedExecutableLeftover Class = "degraded-executable-leftover"
)

// Action is the recommended operator response to a status.
type Action string

const (
	// ActionNone: nothing to do, or update when a newer release exists.
	ActionNone Action = "none"

	// ActionInstall: reinstall to converge on the healthy state. All
	// seven unhealthy rows converge the same way.
	ActionInstall Action = "install"
)

// Class maps the snapshot onto its decision-table row.
func (s Status) Class() Class {
	switch {
	case s.Registered && s.DescriptorPresent && s.ExecutablePresent:
		return Installed
	case s.Registered && s.DescriptorPresent && !s.ExecutablePresent:
		return DegradedExecutableMissing
	case s.Registered && !s.DescriptorPresent && s.ExecutablePresent:
		return DegradedDescriptorMissing
	case s.Registered && !s.DescriptorPresent && !s.ExecutablePresent:
		return DegradedBothMissing
	case !s.Registered && s.DescriptorPresent && s.ExecutablePresent:
		return DegradedUnregistered
	case !s.Registered && s.DescriptorPresent && !s.ExecutablePresent:
		return DegradedDescriptorLeftover
	case !s.Registered && !s.DescriptorPresent && s.ExecutablePresent:
		return DegradedExecutableLeftover
	default:
		return NotInstalled
	}
}

// RunEnabled reports whether commands may be dispatched to the worker.
// Only the fully installed state enables the command path.
func (s Status) RunEnabled() bool {
	return s.Class() == Installed
}

// RecommendedAction returns the operator action for the snapshot.
func (s Status) RecommendedAction() Action {
	if s.Class() == Installed {
		return ActionNone
	}
	return ActionInstall
}
