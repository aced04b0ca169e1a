package cfg

import "github.com/relentless-labs/specbmc/internal/mir"

// CallGraph is the direct-call relation between a program's functions,
// supplemented from original_source's analysis/call_graph.rs: the pipeline
// needs it both to bound inlining (spec.md §4.1) and to serve the
// --call-graph dump.
type CallGraph struct {
	Edges map[string][]string // caller -> direct callees, deterministic order
}

// BuildCallGraph derives a CallGraph from every function in prog.
func BuildCallGraph(prog *mir.Program) *CallGraph {
	cg := &CallGraph{Edges: make(map[string][]string)}
	for _, name := range prog.FunctionNames() {
		cg.Edges[name] = prog.Functions[name].DirectCallees()
	}
	return cg
}

// Reachable returns every function name reachable from entry via direct
// calls, entry included.
func (cg *CallGraph) Reachable(entry string) map[string]bool {
	visited := map[string]bool{}
	stack := []string{entry}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[n] {
			continue
		}
		visited[n] = true
		stack = append(stack, cg.Edges[n]...)
	}
	return visited
}

// Cycles reports whether calling `from` can eventually reach `from` again,
// i.e. whether it participates in (possibly mutual) recursion; used to
// decide which call sites need the recursion-bound stub during inlining.
func (cg *CallGraph) Cycles(from string) bool {
	visited := map[string]bool{}
	var stack []string
	stack = append(stack, cg.Edges[from]...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == from {
			return true
		}
		if visited[n] {
			continue
		}
		visited[n] = true
		stack = append(stack, cg.Edges[n]...)
	}
	return false
}
