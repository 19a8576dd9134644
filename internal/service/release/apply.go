// Package release applies release plans to the workspace and publishes the
// resulting versions.
package release

import (
	"context"
	"io"

	"github.com/charmbracelet/log"
	"github.com/felixgeelhaar/statekit"

	"github.com/relicta-tech/changelogs/internal/domain/graph"
	"github.com/relicta-tech/changelogs/internal/domain/version"
	"github.com/relicta-tech/changelogs/internal/domain/workspace"
	"github.com/relicta-tech/changelogs/internal/errors"
	"github.com/relicta-tech/changelogs/internal/infrastructure/changelog"
	"github.com/relicta-tech/changelogs/internal/infrastructure/ecosystem"
	"github.com/relicta-tech/changelogs/internal/service/plan"
)

// Workspace is the part of a discovered workspace the pipelines use.
type Workspace interface {
	Root() string
	Adapter() ecosystem.Adapter
	Packages() []workspace.Package
	Package(name string) (workspace.Package, bool)
	Graph() *graph.Graph
}

// EntryStore deletes consumed changelog entries.
type EntryStore interface {
	Delete(id string) error
}

// DependencyUpdate records one rewritten dependency requirement.
type DependencyUpdate struct {
	// Package is the package whose manifest was edited, or the workspace
	// root for pins held by the root manifest.
	Package    string
	Dependency string
	Version    version.SemanticVersion
}

// ApplyResult describes what Apply changed.
type ApplyResult struct {
	Versions     []plan.PackageRelease
	Dependencies []DependencyUpdate
	Changelogs   []string
	Consumed     []string
}

// Applier writes a release plan into the workspace.
type Applier struct {
	ws     Workspace
	store  EntryStore
	writer *changelog.Writer
	logger *log.Logger
}

// ApplierOption configures an Applier.
type ApplierOption func(*Applier)

// WithApplyLogger sets the logger.
func WithApplyLogger(l *log.Logger) ApplierOption {
	return func(a *Applier) { a.logger = l }
}

// WithWriter sets the changelog writer. The default writes per-package
// changelogs without attribution.
func WithWriter(w *changelog.Writer) ApplierOption {
	return func(a *Applier) { a.writer = w }
}

// NewApplier creates an Applier for ws whose entries live in store.
func NewApplier(ws Workspace, store EntryStore, opts ...ApplierOption) *Applier {
	a := &Applier{
		ws:     ws,
		store:  store,
		logger: log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.writer == nil {
		a.writer = changelog.NewWriter(changelog.FormatPerPackage, changelog.WithLogger(a.logger))
	}
	return a
}

// Apply writes new versions, rewrites dependency requirements, prepends
// changelog sections and deletes the consumed entries, in that order.
// Nothing is rolled back when a step fails; every file write is atomic, so
// the workspace is left with whole files from before or after the edit.
func (a *Applier) Apply(ctx context.Context, p plan.Plan) (*ApplyResult, error) {
	const op = "release.Apply"

	result := &ApplyResult{}
	if p.IsEmpty() {
		return result, nil
	}

	pl, err := newPipeline()
	if err != nil {
		return nil, errors.InternalWrap(err, op, "failed to start pipeline")
	}

	steps := []struct {
		from  Stage
		event statekit.EventType
		run   func() error
	}{
		{StagePlanned, EventWriteVersions, func() error { return a.writeVersions(ctx, p, result) }},
		{StageVersioned, EventUpdateDependencies, func() error { return a.updateDependencies(ctx, p, result) }},
		{StageDependencies, EventWriteChangelogs, func() error { return a.writeChangelogs(p, result) }},
		{StageChangelogs, EventConsumeEntries, func() error { return a.consumeEntries(p, result) }},
	}
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := pl.advance(s.from, s.event, s.run); err != nil {
			a.logger.Debug("apply failed", "stage", s.from, "error", err)
			return result, err
		}
		a.logger.Debug("apply stage complete", "stage", pl.Stage())
	}
	return result, nil
}

func (a *Applier) writeVersions(_ context.Context, p plan.Plan, result *ApplyResult) error {
	adapter := a.ws.Adapter()
	for _, rel := range p.Releases {
		pkg, ok := a.ws.Package(rel.Name)
		if !ok {
			return errors.NotFound("release.writeVersions", "package not found: "+rel.Name)
		}
		if err := adapter.WriteVersion(pkg, rel.NewVersion); err != nil {
			return err
		}
		a.logger.Info("updated version", "package", rel.Name, "from", rel.OldVersion, "to", rel.NewVersion)
		result.Versions = append(result.Versions, rel)
	}
	return nil
}

// updateDependencies points every workspace package's requirement on a
// released package at its new version, including packages that are not
// released themselves.
func (a *Applier) updateDependencies(_ context.Context, p plan.Plan, result *ApplyResult) error {
	adapter := a.ws.Adapter()

	for _, pkg := range a.ws.Packages() {
		for _, rel := range p.Releases {
			if rel.Name == pkg.Name || !pkg.DependsOn(rel.Name) {
				continue
			}
			changed, err := adapter.UpdateDependencyVersion(pkg, rel.Name, rel.NewVersion)
			if err != nil {
				return err
			}
			if changed {
				a.logger.Debug("updated dependency", "package", pkg.Name, "dependency", rel.Name, "version", rel.NewVersion)
				result.Dependencies = append(result.Dependencies, DependencyUpdate{
					Package:    pkg.Name,
					Dependency: rel.Name,
					Version:    rel.NewVersion,
				})
			}
		}
	}

	updater, ok := adapter.(ecosystem.WorkspaceDependencyUpdater)
	if !ok {
		return nil
	}
	for _, rel := range p.Releases {
		changed, err := updater.UpdateWorkspaceDependency(a.ws.Root(), rel.Name, rel.NewVersion)
		if err != nil {
			return err
		}
		if changed {
			result.Dependencies = append(result.Dependencies, DependencyUpdate{
				Package:    a.ws.Root(),
				Dependency: rel.Name,
				Version:    rel.NewVersion,
			})
		}
	}
	return nil
}

func (a *Applier) writeChangelogs(p plan.Plan, result *ApplyResult) error {
	releases := make([]changelog.Release, 0, len(p.Releases))
	for _, rel := range p.Releases {
		pkg, _ := a.ws.Package(rel.Name)
		releases = append(releases, changelog.Release{
			Name:     rel.Name,
			Version:  rel.NewVersion,
			Bump:     rel.Bump,
			Path:     pkg.Path,
			EntryIDs: rel.EntryIDs,
		})
	}

	paths, err := a.writer.Write(a.ws.Root(), releases, p.Entries)
	result.Changelogs = paths
	return err
}

// consumeEntries deletes every entry the plan read, including entries that
// only referenced unknown or ignored packages.
func (a *Applier) consumeEntries(p plan.Plan, result *ApplyResult) error {
	for _, e := range p.Entries {
		if err := a.store.Delete(e.ID); err != nil {
			return err
		}
		result.Consumed = append(result.Consumed, e.ID)
	}
	return nil
}
