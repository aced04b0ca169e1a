package cex

import (
	"fmt"
	"sort"
	"strings"

	"github.com/relentless-labs/specbmc/internal/solver"
)

// DOT renders t as a DOT graph annotated with the reconstructed witness
// (spec.md §6 "Counterexample output: DOT graph"), hand-emitted with
// strings.Builder the same way the teacher's graphviz.go builds its
// Kripke-structure diagrams rather than through a templating library.
func (t *Trace) DOT() string {
	var b strings.Builder
	b.WriteString("digraph Counterexample {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box, fontname=\"monospace\"];\n\n")

	b.WriteString("  initA [label=\"" + escapeDot(t.initialLabel(t.InitialA)) + "\"];\n")
	b.WriteString("  initB [label=\"" + escapeDot(t.initialLabel(t.InitialB)) + "\"];\n")

	if len(t.NondetChoices) > 0 {
		b.WriteString("  choices [label=\"" + escapeDot(t.choicesLabel()) + "\"];\n")
		b.WriteString("  initA -> choices;\n")
		b.WriteString("  initB -> choices;\n")
	}

	if t.Divergence != nil {
		src := "choices"
		if len(t.NondetChoices) == 0 {
			src = "initA"
			b.WriteString("  initB -> initA [style=invis];\n")
		}
		b.WriteString("  divergence [shape=doubleoctagon, style=filled, fillcolor=lightpink, label=\"" +
			escapeDot(t.divergenceLabel()) + "\"];\n")
		fmt.Fprintf(&b, "  %s -> divergence;\n", src)
	} else {
		b.WriteString("  nodiv [shape=oval, label=\"no diverging observation reconstructed\"];\n")
	}

	b.WriteString("}\n")
	return b.String()
}

func (t *Trace) initialLabel(s InitialState) string {
	var lines []string
	for _, name := range sortedRegisterNames(s.Registers) {
		lines = append(lines, fmt.Sprintf("%s = 0x%x", name, s.Registers[name]))
	}
	for name, val := range s.Flags {
		lines = append(lines, fmt.Sprintf("%s = %v", name, val))
	}
	if len(lines) == 0 {
		return "(no observed initial values)"
	}
	return strings.Join(lines, "\\n")
}

func (t *Trace) choicesLabel() string {
	classes := make([]string, 0, len(t.NondetChoices))
	for class := range t.NondetChoices {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	lines := make([]string, 0, len(classes))
	for _, class := range classes {
		lines = append(lines, fmt.Sprintf("%s = %s", class, formatValue(t.NondetChoices[class])))
	}
	return strings.Join(lines, "\\n")
}

func (t *Trace) divergenceLabel() string {
	d := t.Divergence
	return fmt.Sprintf("channel=%s origin=%s\\nobservation #%d\\nA=0x%x  B=0x%x", d.Channel, d.Origin, d.Index, d.A, d.B)
}

func formatValue(v solver.Value) string {
	if v.IsBool {
		return fmt.Sprintf("%v", v.Bool)
	}
	return fmt.Sprintf("0x%x", v.BitVec)
}

func escapeDot(s string) string {
	return strings.ReplaceAll(s, "\"", "\\\"")
}
