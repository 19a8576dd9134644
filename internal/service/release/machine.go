package release

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"

	"github.com/relicta-tech/changelogs/internal/errors"
)

// Stage is a step of the apply pipeline.
type Stage string

const (
	StagePlanned      Stage = "planned"
	StageVersioned    Stage = "versioned"
	StageDependencies Stage = "dependencies_updated"
	StageChangelogs   Stage = "changelogs_written"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)

// Events that move the apply pipeline forward.
const (
	EventWriteVersions      statekit.EventType = "WRITE_VERSIONS"
	EventUpdateDependencies statekit.EventType = "UPDATE_DEPENDENCIES"
	EventWriteChangelogs    statekit.EventType = "WRITE_CHANGELOGS"
	EventConsumeEntries     statekit.EventType = "CONSUME_ENTRIES"
	EventFail               statekit.EventType = "FAIL"
)

// applyContext is carried by the machine; the pipeline keeps no data in it.
type applyContext struct{}

// pipeline orders the apply steps. Versions are always written before
// dependency requirements, changelogs after both, and entries are consumed
// last so a failed run can be repeated.
type pipeline struct {
	interpreter *statekit.Interpreter[applyContext]
}

func newPipeline() (*pipeline, error) {
	machine, err := statekit.NewMachine[applyContext]("apply").
		WithInitial(statekit.StateID(StagePlanned)).
		State(statekit.StateID(StagePlanned)).
		On(EventWriteVersions).Target(statekit.StateID(StageVersioned)).
		On(EventFail).Target(statekit.StateID(StageFailed)).
		Done().
		State(statekit.StateID(StageVersioned)).
		On(EventUpdateDependencies).Target(statekit.StateID(StageDependencies)).
		On(EventFail).Target(statekit.StateID(StageFailed)).
		Done().
		State(statekit.StateID(StageDependencies)).
		On(EventWriteChangelogs).Target(statekit.StateID(StageChangelogs)).
		On(EventFail).Target(statekit.StateID(StageFailed)).
		Done().
		State(statekit.StateID(StageChangelogs)).
		On(EventConsumeEntries).Target(statekit.StateID(StageDone)).
		On(EventFail).Target(statekit.StateID(StageFailed)).
		Done().
		State(statekit.StateID(StageDone)).
		Final().
		Done().
		State(statekit.StateID(StageFailed)).
		Final().
		Done().
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build apply pipeline: %w", err)
	}

	interp := statekit.NewInterpreter(machine)
	interp.Start()
	return &pipeline{interpreter: interp}, nil
}

// Stage returns the current stage.
func (p *pipeline) Stage() Stage {
	return Stage(p.interpreter.State().Value)
}

// advance runs step when the pipeline is at from and moves it on with event.
// A failing step moves the pipeline to StageFailed.
func (p *pipeline) advance(from Stage, event statekit.EventType, step func() error) error {
	const op = "release.Apply"

	if current := p.Stage(); current != from {
		return errors.State(op, fmt.Sprintf("cannot run %s from stage %s", event, current))
	}
	if err := step(); err != nil {
		p.interpreter.Send(statekit.Event{Type: EventFail})
		return err
	}
	p.interpreter.Send(statekit.Event{Type: event})
	if p.Stage() == from {
		return errors.State(op, fmt.Sprintf("%s did not advance stage %s", event, from))
	}
	return nil
}
