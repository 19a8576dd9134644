package release

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/relicta-tech/changelogs/internal/domain/workspace"
	"github.com/relicta-tech/changelogs/internal/errors"
	"github.com/relicta-tech/changelogs/internal/infrastructure/ecosystem"
)

// Tagger creates and pushes release tags.
type Tagger interface {
	CreateTag(ctx context.Context, name, message string) error
	PushTag(ctx context.Context, name, remote string) error
}

// PublishOptions controls Publish.
type PublishOptions struct {
	DryRun bool
	// Registry is passed to the ecosystem tool (a registry name, URL or
	// dist-tag).
	Registry string
	// Tag creates name@version tags for published and skipped packages.
	Tag bool
	// Push pushes created tags to Remote.
	Push   bool
	Remote string
}

// Outcome is the publish result for one package.
type Outcome struct {
	Package workspace.Package
	Result  ecosystem.PublishResult
	// Err is set when the adapter could not run at all.
	Err    error
	Tag    string
	Tagged bool
	TagErr error
	Pushed bool
}

// Failed reports whether the package failed to publish.
func (o Outcome) Failed() bool {
	return o.Err != nil || o.Result.Status == ecosystem.PublishFailed
}

// Report summarises a publish run.
type Report struct {
	DryRun   bool
	Outcomes []Outcome
}

// Count returns the number of outcomes with status.
func (r *Report) Count(status ecosystem.PublishStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err == nil && o.Result.Status == status {
			n++
		}
	}
	return n
}

// Failed returns the failed outcomes.
func (r *Report) Failed() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if o.Failed() {
			failed = append(failed, o)
		}
	}
	return failed
}

// Tags returns the tags created during the run.
func (r *Report) Tags() []string {
	var tags []string
	for _, o := range r.Outcomes {
		if o.Tagged {
			tags = append(tags, o.Tag)
		}
	}
	return tags
}

// Publisher publishes the packages whose current version is missing from
// their registry.
type Publisher struct {
	ws       Workspace
	tagger   Tagger
	logger   *log.Logger
	progress func(Outcome)
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithTagger enables release tagging.
func WithTagger(t Tagger) PublisherOption {
	return func(p *Publisher) { p.tagger = t }
}

// WithPublishLogger sets the logger.
func WithPublishLogger(l *log.Logger) PublisherOption {
	return func(p *Publisher) { p.logger = l }
}

// WithProgress is called after each package is published.
func WithProgress(fn func(Outcome)) PublisherOption {
	return func(p *Publisher) { p.progress = fn }
}

// NewPublisher creates a Publisher for ws.
func NewPublisher(ws Workspace, opts ...PublisherOption) *Publisher {
	p := &Publisher{ws: ws, logger: log.New(io.Discard)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Unpublished returns the public packages whose version the registry does
// not know yet.
func (p *Publisher) Unpublished(ctx context.Context) ([]workspace.Package, error) {
	adapter := p.ws.Adapter()

	var out []workspace.Package
	for _, pkg := range p.ws.Packages() {
		if pkg.Private {
			p.logger.Debug("skipping private package", "package", pkg.Name)
			continue
		}
		published, err := adapter.IsPublished(ctx, pkg)
		if err != nil {
			return nil, err
		}
		if !published {
			out = append(out, pkg)
		}
	}
	return out, nil
}

// Publish publishes every unpublished package in name order. Packages that
// published or were skipped for lack of credentials are tagged unless this
// is a dry run. It fails when any package failed, after tagging the rest.
func (p *Publisher) Publish(ctx context.Context, opts PublishOptions) (*Report, error) {
	const op = "release.Publish"

	pkgs, err := p.Unpublished(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{DryRun: opts.DryRun}
	adapter := p.ws.Adapter()

	for _, pkg := range pkgs {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		o := Outcome{Package: pkg, Tag: pkg.Name + "@" + pkg.Version.String()}
		o.Result, o.Err = adapter.Publish(ctx, pkg, ecosystem.PublishOptions{
			DryRun:   opts.DryRun,
			Registry: opts.Registry,
		})
		if o.Err != nil {
			p.logger.Error("publish failed", "package", pkg.Name, "error", o.Err)
		} else {
			p.logger.Debug("publish finished", "package", pkg.Name, "status", o.Result.Status, "message", o.Result.Message)
		}

		if !o.Failed() && !opts.DryRun && opts.Tag && p.tagger != nil {
			p.tag(ctx, &o, opts)
		}

		report.Outcomes = append(report.Outcomes, o)
		if p.progress != nil {
			p.progress(o)
		}
	}

	if failed := report.Failed(); len(failed) > 0 {
		return report, errors.Process(op, fmt.Sprintf("%d package(s) failed to publish", len(failed)))
	}
	return report, nil
}

// tag creates the annotated release tag. Tag failures are recorded on the
// outcome and do not fail the run.
func (p *Publisher) tag(ctx context.Context, o *Outcome, opts PublishOptions) {
	if err := p.tagger.CreateTag(ctx, o.Tag, "Release "+o.Tag); err != nil {
		o.TagErr = err
		p.logger.Warn("failed to create tag", "tag", o.Tag, "error", err)
		return
	}
	o.Tagged = true

	if !opts.Push {
		return
	}
	if err := p.tagger.PushTag(ctx, o.Tag, opts.Remote); err != nil {
		o.TagErr = err
		p.logger.Warn("failed to push tag", "tag", o.Tag, "remote", opts.Remote, "error", err)
		return
	}
	o.Pushed = true
}
