package lir

import (
	"fmt"

	"github.com/relentless-labs/specbmc/internal/environment"
	"github.com/relentless-labs/specbmc/internal/policy"
)

// ObservationPair is one SNI obligation: the same program point's
// observation in each of the two composed copies. internal/cex walks
// these (rather than re-scanning the composed Program's node list) to
// find which pair a satisfying model actually disagrees on.
type ObservationPair struct {
	Index int
	A, B  Observe
}

// Compose performs the self-composition of spec.md §4.4: two copies of
// prog are run side by side over the same initial low memory and cache
// state and the same low-policy register inputs, with high-policy
// registers and high memory free to differ between the copies, and
// every pair of corresponding observations is asserted equal. The
// solver is then asked to satisfy the negation of that conjunction
// (internal/smt), so a model is a concrete pair of high inputs that
// makes the two runs observably distinguishable.
//
// Initial memory is split in two by internal/lir's lowering step
// (memory.low/memory.high, combined at every access by an
// address-range predicate derived from internal/policy): only the low
// half's init var is shared here, mirroring the register treatment
// below, so a secret placed in a policy-high memory range is just as
// free to diverge between the two copies as a policy-high register.
// Cache state is still shared wholesale: the cache's threaded "touched"
// marker is bookkeeping continuity, not itself a channel of secret data
// (spec.md §4.4's cache channel is the sequence of Observe nodes, not
// this marker).
func Compose(prog *Program, registers []string, pol *policy.Policy, check environment.Check) (*Program, []ObservationPair) {
	shared := map[Var]bool{
		Var(prefixVar("mem.low.init", 0)): true,
		Var(prefixVar("cache.init", 0)):   true,
	}
	for _, name := range registers {
		if pol.Register(name) == policy.Low {
			shared[Var(prefixVar("init."+name, 0))] = true
		}
	}

	renameB := func(v Var) (Var, bool) {
		if shared[v] {
			return v, false
		}
		return Var("b." + string(v)), true
	}
	classRenameB := func(c string) string { return "b#" + c }

	bCopy := renameProgram(prog, renameB, classRenameB)

	out := NewProgram()
	out.Nodes = append(out.Nodes, prog.Nodes...)
	out.Nodes = append(out.Nodes, bCopy.Nodes...)

	aObs := filterObserves(prog.Observes(), check)
	bObs := filterObserves(bCopy.Observes(), check)
	n := min(len(aObs), len(bObs))
	pairs := make([]ObservationPair, 0, n)
	for i := 0; i < n; i++ {
		comment := fmt.Sprintf("SNI: %s observation %d (%s) must match across both runs", aObs[i].Channel, i, aObs[i].Origin)
		out.Assert(eqExpr(aObs[i].Expr, bObs[i].Expr), comment)
		pairs = append(pairs, ObservationPair{Index: i, A: aObs[i], B: bObs[i]})
	}
	return out, pairs
}

// filterObserves selects which observations spec.md §6's --check flag
// pairs into SNI obligations: `normal` only compares what an attacker
// sees along the committed architectural path (a direct leak, no
// speculation required); `transient` only compares what an attacker
// sees during a bounded mis-speculated window (a Spectre-style leak);
// `all` compares both. Order is preserved so index i in the "a" copy
// still corresponds to the same program point's index i in the "b"
// copy (both copies observe in the same program order by construction).
func filterObserves(obs []Observe, check environment.Check) []Observe {
	if check == environment.CheckAll {
		return obs
	}
	want := OriginArchitectural
	if check == environment.CheckTransient {
		want = OriginTransient
	}
	out := make([]Observe, 0, len(obs))
	for _, o := range obs {
		if o.Origin == want {
			out = append(out, o)
		}
	}
	return out
}

func eqExpr(a, b Expr) Expr { return BinaryExpr{Op: OpEq, Left: a, Right: b} }

// renameProgram rebuilds prog's node list under a variable-renaming
// policy: rename reports the new name for a Var and whether the
// renamed Assign should still be emitted (false means the original
// declaration is reused as-is and this copy's Assign is dropped, used
// to share one SSA variable across both composed copies).
// classRename renames NondetRef classes so each copy's free inputs are
// declared as distinct SMT constants.
func renameProgram(prog *Program, rename func(Var) (Var, bool), classRename func(string) string) *Program {
	out := NewProgram()
	for _, node := range prog.Nodes {
		switch n := node.(type) {
		case Assign:
			newDest, emit := rename(n.Dest)
			if !emit {
				continue
			}
			out.Nodes = append(out.Nodes, Assign{Dest: newDest, Expr: renameExpr(n.Expr, rename, classRename)})
		case Assert:
			out.Nodes = append(out.Nodes, Assert{Cond: renameExpr(n.Cond, rename, classRename), Comment: n.Comment})
		case Assume:
			out.Nodes = append(out.Nodes, Assume{Cond: renameExpr(n.Cond, rename, classRename), Comment: n.Comment})
		case Observe:
			out.Nodes = append(out.Nodes, Observe{Expr: renameExpr(n.Expr, rename, classRename), Channel: n.Channel, Origin: n.Origin})
		case Branch:
			out.Nodes = append(out.Nodes, n) // never emitted by Lower; nothing to rename into
		default:
			panic("lir: renameProgram: unhandled Node kind")
		}
	}
	return out
}

func renameExpr(e Expr, rename func(Var) (Var, bool), classRename func(string) string) Expr {
	switch expr := e.(type) {
	case VarRef:
		newName, emit := rename(expr.Name)
		if !emit {
			return expr
		}
		return VarRef{Name: newName, S: expr.S}
	case ConstBV, ConstBool:
		return expr
	case UnaryExpr:
		return UnaryExpr{Op: expr.Op, Arg: renameExpr(expr.Arg, rename, classRename), ResultWidth: expr.ResultWidth}
	case BinaryExpr:
		return BinaryExpr{Op: expr.Op, Left: renameExpr(expr.Left, rename, classRename), Right: renameExpr(expr.Right, rename, classRename), ResultWidth: expr.ResultWidth}
	case IteExpr:
		return IteExpr{Cond: renameExpr(expr.Cond, rename, classRename), Then: renameExpr(expr.Then, rename, classRename), Else: renameExpr(expr.Else, rename, classRename)}
	case SelectExpr:
		return SelectExpr{Array: renameExpr(expr.Array, rename, classRename), Index: renameExpr(expr.Index, rename, classRename)}
	case StoreExpr:
		return StoreExpr{Array: renameExpr(expr.Array, rename, classRename), Index: renameExpr(expr.Index, rename, classRename), Value: renameExpr(expr.Value, rename, classRename)}
	case NondetRef:
		return NondetRef{Class: classRename(expr.Class), S: expr.S}
	default:
		panic("lir: renameExpr: unhandled Expr kind")
	}
}
