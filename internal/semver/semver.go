// Package semver implements the dotted version ordering used by the update
// gates. Versions carry one to three non-negative integer components; missing
// trailing components default to zero, so "1" and "1.0.0" are the same
// version. Ordering is lexicographic on (major, minor, patch), which keeps it
// total and transitive. Pre-release tags, build metadata, and signs are all
// rejected: the worker only ever ships plain integer triples and anything
// else is treated as malformed.
package semver

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Version is an immutable parsed version.
type Version struct {
	Major int
	Minor int
	Patch int
}

// Parse parses a version string of one to three dot-separated non-negative
// integer components, e.g. "2", "2.3", "2.3.1". Missing trailing components
// default to 0. Returns an error for anything else: empty strings, more than
// three components, signs, spaces, or non-numeric components.
func Parse(s string) (Version, error) {
	if s == "" {
		return Version{}, fmt.Errorf("malformed version: empty string")
	}

	parts := strings.Split(s, ".")
	if len(parts) > 3 {
		return Version{}, fmt.Errorf("malformed version %q: more than three components", s)
	}

	var nums [3]int
	for i, part := range parts {
		// ParseUint rejects signs, spaces, and empty components.
		n, err := strconv.ParseUint(part, 10, 31)
		if err != nil {
			return Version{}, fmt.Errorf("malformed version %q: component %q is not a non-negative integer", s, part)
		}
		nums[i] = int(n)
	}

	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// Compare compares v to other.
// Returns:
//
//	-1 if v is less than other
//	 0 if v equals other
//	 1 if v is greater than other
func (v Version) Compare(other Version) int {
	if v.Major != other.Major {
		if v.Major < other.Major {
			return -1
		}
		return 1
	}

	if v.Minor != other.Minor {
		if v.Minor < other.Minor {
			return -1
		}
		return 1
	}

	if v.Patch != other.Patch {
		if v.Patch < other.Patch {
			return -1
		}
		return 1
	}

	return 0
}

// Less reports whether v orders strictly before other.
func (v Version) Less(other Version) bool {
	return v.Compare(other) < 0
}

// String returns the canonical three-component form, e.g. "2.3.0".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// MarshalJSON encodes the version as its canonical string form.
func (v Version) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

// UnmarshalJSON decodes a version from its string form.
func (v *Version) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
