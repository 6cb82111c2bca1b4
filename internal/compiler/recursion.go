package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/tally/internal/ast"
)

// RecursionWarning reports lets that can reach themselves.
//
// Recursion is a warning, not an error, because it may terminate:
// map(walk) over nested bags stops at the first empty bag. Unbounded
// recursion is caught at run time by the evaluator's depth quota.
type RecursionWarning struct {
	Path    []string `json:"path"`    // e.g. ["a", "b", "a"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning"
}

// AnalyzeRecursion finds recursive lets.
//
// The algorithm:
//  1. Build a let → let reference graph (term names and args, minus params)
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1, or a self-loop, as a warning
//
// Nodes and edges are visited in sorted order, so the output is stable.
func AnalyzeRecursion(prog *ast.Program) []RecursionWarning {
	warnings := []RecursionWarning{}
	if prog == nil || len(prog.Lets) == 0 {
		return warnings
	}

	graph := buildLetGraph(prog)
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			warnings = append(warnings, sccToWarning(scc, graph))
		}
	}
	return warnings
}

// letGraph maps let name → lets its body references.
type letGraph map[string][]string

func buildLetGraph(prog *ast.Program) letGraph {
	graph := make(letGraph, len(prog.Lets))
	for _, name := range prog.LetNames() {
		edges := []string{}
		for _, ref := range ast.FreeNames(prog.Lets[name]) {
			if _, ok := prog.Lets[ref]; ok {
				edges = append(edges, ref)
			}
		}
		slices.Sort(edges)
		graph[name] = edges
	}
	return graph
}

func hasSelfLoop(node string, graph letGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Each SCC is returned sorted; SCCs appear in completion order.
func tarjanSCC(graph letGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root node: pop its component
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for n := range graph {
		nodes = append(nodes, n)
	}
	slices.Sort(nodes)
	for _, n := range nodes {
		if _, visited := indices[n]; !visited {
			strongConnect(n)
		}
	}
	return sccs
}

func sccToWarning(scc []string, graph letGraph) RecursionWarning {
	if len(scc) == 1 {
		name := scc[0]
		return RecursionWarning{
			Path:    []string{name, name},
			Message: fmt.Sprintf("let %s references itself", name),
			Level:   "warning",
		}
	}

	path := cyclePath(scc, graph)
	return RecursionWarning{
		Path:    path,
		Message: fmt.Sprintf("mutually recursive lets: %s", strings.Join(path, " -> ")),
		Level:   "warning",
	}
}

// cyclePath walks edges inside the SCC from its first member until it
// returns to the start or runs out of unvisited members.
func cyclePath(scc []string, graph letGraph) []string {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)
	for {
		visited[current] = true

		var next string
		for _, w := range graph[current] {
			if members[w] && !visited[w] {
				next = w
				break
			}
		}
		if next == "" && slices.Contains(graph[current], start) {
			next = start
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
