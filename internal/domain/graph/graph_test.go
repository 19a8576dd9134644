package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/relicta-tech/changelogs/internal/domain/workspace"
)

func pkg(name string, deps ...string) workspace.Package {
	return workspace.Package{Name: name, Dependencies: deps}
}

func TestGraph_DirectQueries(t *testing.T) {
	g := New([]workspace.Package{
		pkg("core"),
		pkg("utils", "core"),
		pkg("cli", "core", "utils"),
	})

	assert.Equal(t, 3, g.Len())
	assert.True(t, g.Has("core"))
	assert.False(t, g.Has("ghost"))

	assert.Equal(t, []string{"cli", "utils"}, g.Dependents("core"))
	assert.Equal(t, []string{"cli"}, g.Dependents("utils"))
	assert.Empty(t, g.Dependents("cli"))

	assert.Equal(t, []string{"core", "utils"}, g.Dependencies("cli"))
	assert.Empty(t, g.Dependencies("core"))
}

func TestGraph_AllDependents(t *testing.T) {
	g := New([]workspace.Package{
		pkg("a"),
		pkg("b", "a"),
		pkg("c", "b"),
		pkg("d", "c"),
		pkg("e"),
	})

	assert.Equal(t, []string{"b", "c", "d"}, g.AllDependents("a"))
	assert.Equal(t, []string{"d"}, g.AllDependents("c"))
	assert.Empty(t, g.AllDependents("d"))
	assert.Empty(t, g.AllDependents("e"))
}

func TestGraph_CyclesTerminate(t *testing.T) {
	g := New([]workspace.Package{
		pkg("a", "c"),
		pkg("b", "a"),
		pkg("c", "b"),
	})

	assert.Equal(t, []string{"b", "c"}, g.AllDependents("a"))
	assert.Equal(t, []string{"a", "c"}, g.AllDependents("b"))
}

func TestGraph_DropsExternalAndSelfEdges(t *testing.T) {
	g := New([]workspace.Package{
		pkg("a", "a", "serde", "left-pad"),
		pkg("b", "a", "tokio"),
	})

	assert.Equal(t, []string{"b"}, g.Dependents("a"))
	assert.Empty(t, g.Dependencies("a"))
	assert.Equal(t, []string{"a"}, g.Dependencies("b"))
	assert.Empty(t, g.Dependents("serde"))
}

func TestGraph_UnknownNamesAreEmpty(t *testing.T) {
	g := New(nil)

	assert.NotNil(t, g.Dependents("nope"))
	assert.Empty(t, g.Dependents("nope"))
	assert.Empty(t, g.Dependencies("nope"))
	assert.Empty(t, g.AllDependents("nope"))
}

func TestGraph_DuplicateDependencies(t *testing.T) {
	g := New([]workspace.Package{
		pkg("a"),
		pkg("b", "a", "a"),
	})

	assert.Equal(t, []string{"b"}, g.Dependents("a"))
	assert.Equal(t, []string{"a"}, g.Dependencies("b"))
}
