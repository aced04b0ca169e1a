// Package optimizer rewrites a internal/lir.Program before it reaches
// internal/smt, per spec.md §4.5's three levels: none (identity), basic
// (copy propagation only), and full (constant folding plus algebraic
// simplification, interleaved with copy propagation to a fixpoint).
// Every level preserves satisfiability of the emitted formula and never
// removes an assert/assume/observe node — only the expressions inside
// them may be simplified.
package optimizer

import (
	"fmt"

	"github.com/relentless-labs/specbmc/internal/environment"
	"github.com/relentless-labs/specbmc/internal/lir"
)

// maxFixpointIterations bounds the copy-propagation/folding loop: a
// well-formed SSA program converges in at most one pass per join depth,
// so this is a generous safety margin against an optimizer bug turning
// into an infinite loop, not a load-bearing part of the algorithm.
const maxFixpointIterations = 64

// Optimize returns a new Program; prog itself is never mutated.
func Optimize(prog *lir.Program, level environment.OptLevel) *lir.Program {
	switch level {
	case environment.OptBasic:
		return fixpoint(prog, false)
	case environment.OptFull:
		return fixpoint(prog, true)
	case environment.OptNone:
		fallthrough
	default:
		return identity(prog)
	}
}

func identity(prog *lir.Program) *lir.Program {
	out := lir.NewProgram()
	out.Nodes = append(out.Nodes, prog.Nodes...)
	return out
}

func fixpoint(prog *lir.Program, withFold bool) *lir.Program {
	current := prog
	for i := 0; i < maxFixpointIterations; i++ {
		next := pass(current, withFold)
		if programString(next) == programString(current) {
			return next
		}
		current = next
	}
	return current
}

// pass performs one left-to-right sweep: every atomic value (a bare
// variable reference, constant, or free input) assigned to a Var is
// propagated into that Var's later uses instead of being re-declared,
// and — when withFold is set — every expression is folded bottom-up
// first. Assert/Assume/Observe nodes are always re-emitted; only their
// expressions are rewritten.
func pass(prog *lir.Program, withFold bool) *lir.Program {
	subst := map[lir.Var]lir.Expr{}
	out := lir.NewProgram()
	for _, node := range prog.Nodes {
		switch n := node.(type) {
		case lir.Assign:
			newExpr := rewrite(n.Expr, subst, withFold)
			if isAtomic(newExpr) {
				subst[n.Dest] = newExpr
				continue
			}
			out.Nodes = append(out.Nodes, lir.Assign{Dest: n.Dest, Expr: newExpr})
		case lir.Assert:
			out.Nodes = append(out.Nodes, lir.Assert{Cond: rewrite(n.Cond, subst, withFold), Comment: n.Comment})
		case lir.Assume:
			out.Nodes = append(out.Nodes, lir.Assume{Cond: rewrite(n.Cond, subst, withFold), Comment: n.Comment})
		case lir.Observe:
			out.Nodes = append(out.Nodes, lir.Observe{Expr: rewrite(n.Expr, subst, withFold), Channel: n.Channel, Origin: n.Origin})
		case lir.Branch:
			out.Nodes = append(out.Nodes, n)
		default:
			panic("optimizer: pass: unhandled lir.Node kind")
		}
	}
	return out
}

// isAtomic reports whether e is simple enough to substitute directly
// into every later reference without risking exponential expression
// growth across repeated propagation.
func isAtomic(e lir.Expr) bool {
	switch e.(type) {
	case lir.VarRef, lir.ConstBV, lir.ConstBool, lir.NondetRef:
		return true
	default:
		return false
	}
}

// rewrite substitutes propagated Vars bottom-up and, when withFold is
// set, folds the resulting expression.
func rewrite(e lir.Expr, subst map[lir.Var]lir.Expr, withFold bool) lir.Expr {
	var out lir.Expr
	switch expr := e.(type) {
	case lir.VarRef:
		if v, ok := subst[expr.Name]; ok {
			return v
		}
		return expr
	case lir.ConstBV, lir.ConstBool, lir.NondetRef:
		return expr
	case lir.UnaryExpr:
		out = lir.UnaryExpr{Op: expr.Op, Arg: rewrite(expr.Arg, subst, withFold), ResultWidth: expr.ResultWidth}
	case lir.BinaryExpr:
		out = lir.BinaryExpr{Op: expr.Op, Left: rewrite(expr.Left, subst, withFold), Right: rewrite(expr.Right, subst, withFold), ResultWidth: expr.ResultWidth}
	case lir.IteExpr:
		out = lir.IteExpr{Cond: rewrite(expr.Cond, subst, withFold), Then: rewrite(expr.Then, subst, withFold), Else: rewrite(expr.Else, subst, withFold)}
	case lir.SelectExpr:
		out = lir.SelectExpr{Array: rewrite(expr.Array, subst, withFold), Index: rewrite(expr.Index, subst, withFold)}
	case lir.StoreExpr:
		out = lir.StoreExpr{Array: rewrite(expr.Array, subst, withFold), Index: rewrite(expr.Index, subst, withFold), Value: rewrite(expr.Value, subst, withFold)}
	default:
		panic("optimizer: rewrite: unhandled lir.Expr kind")
	}
	if withFold {
		return fold(out)
	}
	return out
}

// programString renders prog deterministically for the fixpoint's
// equality check; Expr/Node already have String() methods for exactly
// this kind of structural comparison.
func programString(prog *lir.Program) string {
	s := ""
	for _, n := range prog.Nodes {
		s += fmt.Sprintf("%T(%v)\n", n, nodeString(n))
	}
	return s
}

func nodeString(n lir.Node) string {
	switch v := n.(type) {
	case lir.Assign:
		return fmt.Sprintf("%s=%s", v.Dest, v.Expr)
	case lir.Assert:
		return v.Cond.String()
	case lir.Assume:
		return v.Cond.String()
	case lir.Observe:
		return fmt.Sprintf("%s:%s", v.Channel, v.Expr)
	default:
		return ""
	}
}
