// Package dot hand-emits DOT graphs for the structural dump flags of
// spec.md §6 (--cfg, --trans-cfg, --call-graph, --loop-tree), the same
// way the teacher's graphviz.go builds a Kripke-structure diagram with
// strings.Builder and no templating library. internal/cex's own witness
// diagram is a separate, smaller renderer (internal/cex/dot.go) since its
// node set (initial state / nondet choices / divergence) doesn't share
// structure with a plain block graph.
package dot

import (
	"fmt"
	"sort"
	"strings"

	"github.com/relentless-labs/specbmc/internal/cfg"
	"github.com/relentless-labs/specbmc/internal/mir"
	"github.com/relentless-labs/specbmc/internal/tcfg"
)

// CFG renders a function's control-flow graph.
func CFG(fn *mir.Function, g *cfg.Graph) string {
	var b strings.Builder
	b.WriteString("digraph CFG {\n")
	b.WriteString("  rankdir=TB;\n")
	b.WriteString("  node [shape=box, fontname=\"monospace\"];\n\n")

	for _, id := range fn.BlockIDs() {
		block := fn.Block(id)
		label := blockLabel(id, block)
		style := ""
		if id == g.Entry {
			style = ", style=filled, fillcolor=lightgray"
		}
		fmt.Fprintf(&b, "  %s [label=\"%s\"%s];\n", quote(string(id)), escape(label), style)
	}
	b.WriteString("\n")
	for _, id := range fn.BlockIDs() {
		for _, s := range g.Succ[id] {
			fmt.Fprintf(&b, "  %s -> %s;\n", quote(string(id)), quote(string(s)))
		}
	}
	b.WriteString("}\n")
	return b.String()
}

// TransCFG renders the transient-augmented control-flow graph, coloring
// architectural, transient, rollback and STL-bypass edges distinctly so
// spec.md §4.2's transient window is visible in the dump.
func TransCFG(fn *mir.Function, tc *tcfg.TCFG) string {
	var b strings.Builder
	b.WriteString("digraph TransCFG {\n")
	b.WriteString("  rankdir=TB;\n")
	b.WriteString("  node [shape=box, fontname=\"monospace\"];\n\n")

	for _, id := range fn.BlockIDs() {
		fmt.Fprintf(&b, "  %s [label=\"%s\"];\n", quote(string(id)), escape(blockLabel(id, fn.Block(id))))
	}
	b.WriteString("\n")
	for _, e := range tc.Edges {
		attrs := edgeAttrs(e.Kind, e.Depth)
		fmt.Fprintf(&b, "  %s -> %s [%s];\n", quote(string(e.From)), quote(string(e.To)), attrs)
	}
	for _, ind := range tc.Indirects {
		fmt.Fprintf(&b, "  %s -> \"%s(indirect)\" [style=dashed, color=purple, label=\"btb\"];\n",
			quote(string(ind.Block)), ind.Block)
	}
	b.WriteString("}\n")
	return b.String()
}

func edgeAttrs(kind tcfg.EdgeKind, depth int) string {
	switch kind {
	case tcfg.EdgeArchitectural:
		return "color=black"
	case tcfg.EdgeTransient:
		return fmt.Sprintf("color=red, style=dashed, label=\"speculative@%d\"", depth)
	case tcfg.EdgeRollback:
		return "color=orange, style=dotted, label=\"rollback\""
	case tcfg.EdgeSTLBypass:
		return "color=blue, style=dashed, label=\"stl-bypass\""
	default:
		return "color=gray"
	}
}

// CallGraph renders a program's direct-call relation.
func CallGraph(cg *cfg.CallGraph) string {
	var b strings.Builder
	b.WriteString("digraph CallGraph {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=ellipse, fontname=\"monospace\"];\n\n")

	names := make([]string, 0, len(cg.Edges))
	for name := range cg.Edges {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, caller := range names {
		for _, callee := range cg.Edges[caller] {
			fmt.Fprintf(&b, "  %s -> %s;\n", quote(caller), quote(callee))
		}
	}
	b.WriteString("}\n")
	return b.String()
}

// LoopTree renders the natural-loop nesting forest of one function.
func LoopTree(loops []*cfg.Loop) string {
	var b strings.Builder
	b.WriteString("digraph LoopTree {\n")
	b.WriteString("  node [shape=box, fontname=\"monospace\"];\n\n")

	for _, loop := range loops {
		fmt.Fprintf(&b, "  %s [label=\"%s\\nheader=%s\\nsize=%d\"];\n",
			quote(loop.ID), loop.ID, loop.Header, len(loop.Body))
		if loop.Parent != nil {
			fmt.Fprintf(&b, "  %s -> %s;\n", quote(loop.Parent.ID), quote(loop.ID))
		}
	}
	b.WriteString("}\n")
	return b.String()
}

func blockLabel(id mir.BlockID, b *mir.BasicBlock) string {
	if b == nil {
		return string(id)
	}
	lines := make([]string, 0, len(b.Instructions)+1)
	lines = append(lines, fmt.Sprintf("%s (pc=0x%x)", id, b.PC))
	for _, instr := range b.Instructions {
		lines = append(lines, mir.InstrString(instr))
	}
	return strings.Join(lines, "\\n")
}

func quote(s string) string  { return "\"" + strings.ReplaceAll(s, "\"", "\\\"") + "\"" }
func escape(s string) string { return strings.ReplaceAll(s, "\"", "\\\"") }
