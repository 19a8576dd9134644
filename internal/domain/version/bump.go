// Package version provides domain types for semantic versioning.
package version

import (
	"fmt"
)

// BumpType is the magnitude of a version increment.
// The zero value is not a valid bump; valid values are ordered
// BumpPatch < BumpMinor < BumpMajor so that comparisons pick the highest bump.
type BumpType uint8

const (
	// BumpNone means no release.
	BumpNone BumpType = iota
	// BumpPatch indicates a patch version bump (bug fixes).
	BumpPatch
	// BumpMinor indicates a minor version bump (new features).
	BumpMinor
	// BumpMajor indicates a major version bump (breaking changes).
	BumpMajor
)

// IsValid returns true if the bump type is patch, minor or major.
func (b BumpType) IsValid() bool {
	return b >= BumpPatch && b <= BumpMajor
}

// String returns the lowercase keyword used in changelog entries.
func (b BumpType) String() string {
	switch b {
	case BumpPatch:
		return "patch"
	case BumpMinor:
		return "minor"
	case BumpMajor:
		return "major"
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (b BumpType) MarshalText() ([]byte, error) {
	if !b.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBumpType, b)
	}
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *BumpType) UnmarshalText(text []byte) error {
	bt, err := ParseBumpType(string(text))
	if err != nil {
		return err
	}
	*b = bt
	return nil
}

// ParseBumpType parses "patch", "minor" or "major". Keywords are case-sensitive.
func ParseBumpType(s string) (BumpType, error) {
	switch s {
	case "patch":
		return BumpPatch, nil
	case "minor":
		return BumpMinor, nil
	case "major":
		return BumpMajor, nil
	default:
		return BumpNone, fmt.Errorf("%w: %q (must be major, minor, or patch)", ErrInvalidBumpType, s)
	}
}

// MaxBump returns the highest of the given bumps, or BumpNone for no input.
func MaxBump(bumps ...BumpType) BumpType {
	highest := BumpNone
	for _, b := range bumps {
		if b > highest {
			highest = b
		}
	}
	return highest
}

// AllBumpTypes returns the valid bump types from highest to lowest.
func AllBumpTypes() []BumpType {
	return []BumpType{BumpMajor, BumpMinor, BumpPatch}
}

// Bump applies b to v. Every bump resets the lower components to zero and
// drops prerelease and build metadata.
func (v SemanticVersion) Bump(b BumpType) SemanticVersion {
	switch b {
	case BumpMajor:
		return SemanticVersion{major: v.major + 1}
	case BumpMinor:
		return SemanticVersion{major: v.major, minor: v.minor + 1}
	case BumpPatch:
		return SemanticVersion{major: v.major, minor: v.minor, patch: v.patch + 1}
	default:
		return v
	}
}
