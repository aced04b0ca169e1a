package lir

import (
	"fmt"
	"strings"
)

// Program is a flat, ordered LIR node sequence — the unit internal/optimizer
// and internal/smt both consume, produced once by Lower/Compose and never
// mutated in place afterward (a transformed copy is returned instead).
type Program struct {
	Nodes []Node
}

func NewProgram() *Program { return &Program{} }

func (p *Program) Assign(dest Var, expr Expr) {
	p.Nodes = append(p.Nodes, Assign{Dest: dest, Expr: expr})
}

func (p *Program) Assert(cond Expr, comment string) {
	p.Nodes = append(p.Nodes, Assert{Cond: cond, Comment: comment})
}

func (p *Program) Assume(cond Expr, comment string) {
	p.Nodes = append(p.Nodes, Assume{Cond: cond, Comment: comment})
}

func (p *Program) Observe(expr Expr, channel string, origin ObserveOrigin) {
	p.Nodes = append(p.Nodes, Observe{Expr: expr, Channel: channel, Origin: origin})
}

// Asserts/Assumes/Observes return every node of that kind, in program
// order — used by internal/smt's encoder and by internal/optimizer's
// invariant checks ("never remove observe/assume/assert nodes").
func (p *Program) Asserts() []Assert {
	var out []Assert
	for _, n := range p.Nodes {
		if a, ok := n.(Assert); ok {
			out = append(out, a)
		}
	}
	return out
}

func (p *Program) Assumes() []Assume {
	var out []Assume
	for _, n := range p.Nodes {
		if a, ok := n.(Assume); ok {
			out = append(out, a)
		}
	}
	return out
}

func (p *Program) Observes() []Observe {
	var out []Observe
	for _, n := range p.Nodes {
		if o, ok := n.(Observe); ok {
			out = append(out, o)
		}
	}
	return out
}

// fresh names fresh SSA variables, numbered per call site prefix so dumps
// stay legible (e.g. "x.7" rather than an opaque global counter).
type fresh struct {
	counters map[string]int
}

func newFresh() *fresh { return &fresh{counters: map[string]int{}} }

func (f *fresh) next(prefix string) Var {
	n := f.counters[prefix]
	f.counters[prefix] = n + 1
	return Var(prefixVar(prefix, n))
}

// String renders p one node per line, for the --lir dump (spec.md §6).
func (p *Program) String() string {
	var b strings.Builder
	for _, n := range p.Nodes {
		switch v := n.(type) {
		case Assign:
			fmt.Fprintf(&b, "%s := %s\n", v.Dest, v.Expr)
		case Assert:
			fmt.Fprintf(&b, "assert %s  ; %s\n", v.Cond, v.Comment)
		case Assume:
			fmt.Fprintf(&b, "assume %s  ; %s\n", v.Cond, v.Comment)
		case Observe:
			fmt.Fprintf(&b, "observe %s : %s [%s]\n", v.Expr, v.Channel, v.Origin)
		case Branch:
			fmt.Fprintf(&b, "branch %s\n", v.Cond)
		default:
			panic("lir: Program.String: unhandled Node kind")
		}
	}
	return b.String()
}

func prefixVar(prefix string, n int) string {
	const digits = "0123456789"
	if n == 0 {
		return prefix + "." + string(digits[0])
	}
	suffix := ""
	for n > 0 {
		suffix = string(digits[n%10]) + suffix
		n /= 10
	}
	return prefix + "." + suffix
}
