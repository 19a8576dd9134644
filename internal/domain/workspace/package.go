// Package workspace provides the package snapshot shared by discovery,
// planning and the ecosystem adapters.
package workspace

import (
	"sort"

	"github.com/relicta-tech/changelogs/internal/domain/version"
)

// Package is a discovered workspace member. It is an immutable snapshot taken
// at discovery time; edits go through an ecosystem adapter, never this struct.
type Package struct {
	// Name is the declared name, unique within a workspace under the
	// ecosystem's name normalization.
	Name string
	// Version is the version read from ManifestPath.
	Version version.SemanticVersion
	// Path is the package directory.
	Path string
	// ManifestPath is the file holding the authoritative version.
	ManifestPath string
	// Dependencies are names of other workspace members this package depends on.
	Dependencies []string
	// Private packages take part in planning but are never published.
	Private bool
}

// DependsOn reports whether p declares name as a dependency.
func (p Package) DependsOn(name string) bool {
	for _, dep := range p.Dependencies {
		if dep == name {
			return true
		}
	}
	return false
}

// SortByName sorts packages in place by name.
func SortByName(pkgs []Package) {
	sort.Slice(pkgs, func(i, j int) bool { return pkgs[i].Name < pkgs[j].Name })
}

// Names returns the package names in slice order.
func Names(pkgs []Package) []string {
	names := make([]string, len(pkgs))
	for i, p := range pkgs {
		names[i] = p.Name
	}
	return names
}
