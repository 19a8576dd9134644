// Package plan turns pending changelog entries into one release decision per
// package.
package plan

import (
	"fmt"
	"sort"

	"github.com/relicta-tech/changelogs/internal/config"
	"github.com/relicta-tech/changelogs/internal/domain/entry"
	"github.com/relicta-tech/changelogs/internal/domain/graph"
	"github.com/relicta-tech/changelogs/internal/domain/version"
	"github.com/relicta-tech/changelogs/internal/domain/workspace"
)

// Workspace is the part of a discovered workspace the planner reads. Package
// matches any spelling the ecosystem treats as equal and returns the package
// under its declared name.
type Workspace interface {
	Package(name string) (workspace.Package, bool)
	Graph() *graph.Graph
}

// PackageRelease is the release decision for one package.
type PackageRelease struct {
	Name       string
	Bump       version.BumpType
	OldVersion version.SemanticVersion
	NewVersion version.SemanticVersion
	// EntryIDs lists the entries that named this package directly. Packages
	// released only through groups or dependents have none.
	EntryIDs []string
}

// Tag returns the release tag, name@version.
func (r PackageRelease) Tag() string {
	return r.Name + "@" + r.NewVersion.String()
}

// Plan is the outcome of Assemble.
type Plan struct {
	Entries  []entry.Entry
	Releases []PackageRelease
	Warnings []string
}

// IsEmpty reports whether nothing would be released.
func (p Plan) IsEmpty() bool {
	return len(p.Releases) == 0
}

// Release returns the release for name.
func (p Plan) Release(name string) (PackageRelease, bool) {
	for _, r := range p.Releases {
		if r.Name == name {
			return r, true
		}
	}
	return PackageRelease{}, false
}

// Assemble computes the release plan. It never fails: entries naming
// packages outside the workspace become warnings.
//
// Entry keys, group members and ignore names are resolved to declared
// package names before anything is compared. The steps then run in a fixed
// order and each reads the bumps accumulated by the previous ones: direct
// bumps, fixed groups, linked groups, dependents.
func Assemble(ws Workspace, entries []entry.Entry, cfg *config.Config) Plan {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	canonical := func(name string) string {
		if pkg, ok := ws.Package(name); ok {
			return pkg.Name
		}
		return name
	}
	ignored := make(map[string]bool, len(cfg.Ignore))
	for _, name := range cfg.Ignore {
		ignored[canonical(name)] = true
	}

	bumps := make(map[string]version.BumpType)
	ids := make(map[string][]string)

	for _, e := range entries {
		for _, r := range e.Releases {
			name := canonical(r.Package)
			if ignored[name] {
				continue
			}
			bumps[name] = version.MaxBump(bumps[name], r.Bump)
			if !contains(ids[name], e.ID) {
				ids[name] = append(ids[name], e.ID)
			}
		}
	}

	for _, group := range canonicalGroups(cfg.Fixed, canonical) {
		highest := groupMax(bumps, group)
		if highest == version.BumpNone {
			continue
		}
		for _, member := range group {
			if !ignored[member] {
				bumps[member] = highest
			}
		}
	}

	for _, group := range canonicalGroups(cfg.Linked, canonical) {
		var releasing []string
		for _, member := range group {
			if bumps[member] != version.BumpNone {
				releasing = append(releasing, member)
			}
		}
		if len(releasing) < 2 {
			continue
		}
		highest := groupMax(bumps, releasing)
		for _, member := range releasing {
			bumps[member] = highest
		}
	}

	if dependent := cfg.DependentBump.Bump(); dependent != version.BumpNone {
		g := ws.Graph()
		for _, name := range sortedNames(bumps) {
			for _, d := range g.AllDependents(name) {
				if ignored[d] {
					continue
				}
				if bumps[d] < dependent {
					bumps[d] = dependent
				}
			}
		}
	}

	p := Plan{Entries: entries}
	for _, name := range sortedNames(bumps) {
		pkg, ok := ws.Package(name)
		if !ok {
			p.Warnings = append(p.Warnings, fmt.Sprintf("changelog references unknown package '%s'", name))
			continue
		}
		p.Releases = append(p.Releases, PackageRelease{
			Name:       name,
			Bump:       bumps[name],
			OldVersion: pkg.Version,
			NewVersion: pkg.Version.Bump(bumps[name]),
			EntryIDs:   ids[name],
		})
	}
	sort.Strings(p.Warnings)

	return p
}

// canonicalGroups maps every group member to its declared name, dropping
// repeats within a group.
func canonicalGroups(groups [][]string, canonical func(string) string) [][]string {
	out := make([][]string, 0, len(groups))
	for _, group := range groups {
		members := make([]string, 0, len(group))
		for _, m := range group {
			if name := canonical(m); !contains(members, name) {
				members = append(members, name)
			}
		}
		out = append(out, members)
	}
	return out
}

func groupMax(bumps map[string]version.BumpType, members []string) version.BumpType {
	highest := version.BumpNone
	for _, m := range members {
		highest = version.MaxBump(highest, bumps[m])
	}
	return highest
}

// sortedNames returns the bumped package names in lexical order.
func sortedNames(bumps map[string]version.BumpType) []string {
	names := make([]string, 0, len(bumps))
	for name, b := range bumps {
		if b != version.BumpNone {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
