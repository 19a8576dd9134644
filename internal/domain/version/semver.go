package version

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// SemanticVersion is a value object representing a semantic version.
// All operations return new instances.
type SemanticVersion struct {
	major      uint64
	minor      uint64
	patch      uint64
	prerelease string
	metadata   string
}

var (
	semverRegex = regexp.MustCompile(`^v?(\d+)\.(\d+)\.(\d+)(?:-([0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*))?(?:\+([0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*))?$`)

	// Zero is the zero version (0.0.0).
	Zero = SemanticVersion{}
)

// NewSemanticVersion creates a new SemanticVersion value object.
func NewSemanticVersion(major, minor, patch uint64) SemanticVersion {
	return SemanticVersion{major: major, minor: minor, patch: patch}
}

// Parse parses a strict three-component semantic version, with an optional
// leading "v".
func Parse(s string) (SemanticVersion, error) {
	matches := semverRegex.FindStringSubmatch(strings.TrimSpace(s))
	if matches == nil {
		return Zero, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}

	parts := [3]uint64{}
	for i := range parts {
		n, err := strconv.ParseUint(matches[i+1], 10, 64)
		if err != nil {
			return Zero, fmt.Errorf("%w: %q: %v", ErrInvalidVersion, s, err)
		}
		parts[i] = n
	}

	return SemanticVersion{
		major:      parts[0],
		minor:      parts[1],
		patch:      parts[2],
		prerelease: matches[4],
		metadata:   matches[5],
	}, nil
}

// ParseLenient accepts versions with fewer than three components ("1.2",
// "2") and coerces them to a full ordinal. Used for ecosystems whose native
// version strings are looser than semver.
func ParseLenient(s string) (SemanticVersion, error) {
	if v, err := Parse(s); err == nil {
		return v, nil
	}
	sv, err := semver.NewVersion(strings.TrimSpace(s))
	if err != nil {
		return Zero, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}
	return SemanticVersion{
		major:      sv.Major(),
		minor:      sv.Minor(),
		patch:      sv.Patch(),
		prerelease: sv.Prerelease(),
		metadata:   sv.Metadata(),
	}, nil
}

// MustParse parses a semantic version string and panics if invalid.
func MustParse(s string) SemanticVersion {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Major returns the major version component.
func (v SemanticVersion) Major() uint64 {
	return v.major
}

// Minor returns the minor version component.
func (v SemanticVersion) Minor() uint64 {
	return v.minor
}

// Patch returns the patch version component.
func (v SemanticVersion) Patch() uint64 {
	return v.patch
}

// Prerelease returns the prerelease identifier.
func (v SemanticVersion) Prerelease() string {
	return v.prerelease
}

// IsZero returns true if this is the zero version.
func (v SemanticVersion) IsZero() bool {
	return v == Zero
}

// String returns the version without a "v" prefix.
func (v SemanticVersion) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d.%d.%d", v.major, v.minor, v.patch)
	if v.prerelease != "" {
		sb.WriteString("-")
		sb.WriteString(v.prerelease)
	}
	if v.metadata != "" {
		sb.WriteString("+")
		sb.WriteString(v.metadata)
	}
	return sb.String()
}

// Compare returns -1, 0 or 1. Build metadata is ignored and a version
// without prerelease sorts after the same version with one.
func (v SemanticVersion) Compare(other SemanticVersion) int {
	for _, pair := range [][2]uint64{{v.major, other.major}, {v.minor, other.minor}, {v.patch, other.patch}} {
		if pair[0] != pair[1] {
			if pair[0] < pair[1] {
				return -1
			}
			return 1
		}
	}

	switch {
	case v.prerelease == other.prerelease:
		return 0
	case v.prerelease == "":
		return 1
	case other.prerelease == "":
		return -1
	case v.prerelease < other.prerelease:
		return -1
	default:
		return 1
	}
}

// LessThan returns true if v < other.
func (v SemanticVersion) LessThan(other SemanticVersion) bool {
	return v.Compare(other) < 0
}

// Equal returns true if two versions are equal, ignoring metadata.
func (v SemanticVersion) Equal(other SemanticVersion) bool {
	return v.Compare(other) == 0
}
