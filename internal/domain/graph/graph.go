// Package graph provides the workspace dependency graph.
package graph

import (
	"sort"

	"github.com/relicta-tech/changelogs/internal/domain/workspace"
)

// Graph is a directed graph over package names. An edge A→B means
// "A depends on B". Cycles are allowed.
type Graph struct {
	nodes    map[string]struct{}
	outgoing map[string]map[string]struct{}
	incoming map[string]map[string]struct{}
}

// New builds the graph from the full package set. Dependencies on names that
// are not workspace members, and self references, are dropped.
func New(pkgs []workspace.Package) *Graph {
	g := &Graph{
		nodes:    make(map[string]struct{}, len(pkgs)),
		outgoing: make(map[string]map[string]struct{}, len(pkgs)),
		incoming: make(map[string]map[string]struct{}, len(pkgs)),
	}

	for _, p := range pkgs {
		g.nodes[p.Name] = struct{}{}
	}

	for _, p := range pkgs {
		for _, dep := range p.Dependencies {
			g.addEdge(p.Name, dep)
		}
	}

	return g
}

func (g *Graph) addEdge(from, to string) {
	if from == to {
		return
	}
	if _, ok := g.nodes[to]; !ok {
		return
	}
	if g.outgoing[from] == nil {
		g.outgoing[from] = make(map[string]struct{})
	}
	if g.incoming[to] == nil {
		g.incoming[to] = make(map[string]struct{})
	}
	g.outgoing[from][to] = struct{}{}
	g.incoming[to][from] = struct{}{}
}

// Has reports whether name is a node.
func (g *Graph) Has(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Dependents returns the packages that depend directly on name.
func (g *Graph) Dependents(name string) []string {
	return sortedKeys(g.incoming[name])
}

// Dependencies returns the packages name depends on directly.
func (g *Graph) Dependencies(name string) []string {
	return sortedKeys(g.outgoing[name])
}

// AllDependents returns every package that depends on name directly or
// transitively. The walk uses an explicit stack and a visited set so it
// terminates on cycles; name itself is never part of the result.
func (g *Graph) AllDependents(name string) []string {
	visited := map[string]struct{}{name: {}}
	result := make(map[string]struct{})
	stack := []string{name}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for dependent := range g.incoming[current] {
			if _, seen := visited[dependent]; seen {
				continue
			}
			visited[dependent] = struct{}{}
			result[dependent] = struct{}{}
			stack = append(stack, dependent)
		}
	}

	return sortedKeys(result)
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return []string{}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
