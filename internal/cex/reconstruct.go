// Package cex implements spec.md §4.8: mapping a satisfying SMT model
// back through internal/smt's declared symbols to internal/lir variables
// and then to a human-legible witness — initial state for both composed
// executions, the branch/predictor/BTB choices the model pinned down,
// and the pair of observations that diverge. internal/pipeline calls
// Reconstruct only when internal/solver.Run returns solver.Sat and
// --skip-cex was not given.
package cex

import (
	"sort"
	"strings"

	"github.com/relentless-labs/specbmc/internal/lir"
	"github.com/relentless-labs/specbmc/internal/smt"
	"github.com/relentless-labs/specbmc/internal/solver"
)

// InitialState is the concrete register values one composed copy started
// from, keyed by MIR register name (spec.md §4.8 "initial state:
// concrete register and memory values for both executions").
type InitialState struct {
	Registers map[string]uint64
	Flags     map[string]bool
}

// Divergence is the first paired observation whose value differs between
// the two composed executions under the model — the actual leak.
type Divergence struct {
	Index   int
	Channel string
	Origin  lir.ObserveOrigin
	A, B    uint64
}

// Trace is the reconstructed counterexample of spec.md §4.8.
type Trace struct {
	InitialA, InitialB InitialState
	NondetChoices      map[string]solver.Value // e.g. "btb-target", "stl-forward", "init-cache"
	Divergence         *Divergence              // nil if every paired observation agreed (should not happen for solver.Sat)
}

// Reconstruct builds a Trace from a Sat solver.Result, the Script that
// produced it (for the LIR-var/nondet-class symbol mapping) and the
// ObservationPair list internal/lir.Compose returned alongside the
// composed program.
func Reconstruct(script *smt.Script, result *solver.Result, pairs []lir.ObservationPair) *Trace {
	t := &Trace{
		InitialA:      InitialState{Registers: map[string]uint64{}, Flags: map[string]bool{}},
		InitialB:      InitialState{Registers: map[string]uint64{}, Flags: map[string]bool{}},
		NondetChoices: map[string]solver.Value{},
	}

	for _, v := range script.Vars {
		val, ok := result.Model[string(v)]
		if !ok {
			continue
		}
		name := string(v)
		switch {
		case strings.HasPrefix(name, "b.init."):
			assignInit(&t.InitialB, strings.TrimSuffix(strings.TrimPrefix(name, "b.init."), trailingCounter(name)), val)
		case strings.HasPrefix(name, "init."):
			assignInit(&t.InitialA, strings.TrimSuffix(strings.TrimPrefix(name, "init."), trailingCounter(name)), val)
		}
	}

	for class, symbol := range script.NondetSymbol {
		if val, ok := result.Model[symbol]; ok {
			t.NondetChoices[class] = val
		}
	}

	t.Divergence = firstDivergence(pairs, script, result)
	return t
}

// trailingCounter returns the ".N" fresh-variable suffix program.go's
// prefixVar appends, so it can be stripped back off to recover the
// original register name from a var like "init.secret.0".
func trailingCounter(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return name[i:]
}

func assignInit(s *InitialState, register string, val solver.Value) {
	if val.IsBool {
		s.Flags[register] = val.Bool
		return
	}
	s.Registers[register] = val.BitVec
}

// firstDivergence evaluates every paired observation's expression under
// the model and returns the first pair whose values differ. A pair whose
// expression still contains an array select/store cannot be evaluated
// (see eval's doc comment) and is skipped; lowering reads memory through
// a select, so this usually covers observations whose value depends on a
// value loaded from memory.
func firstDivergence(pairs []lir.ObservationPair, script *smt.Script, result *solver.Result) *Divergence {
	for _, p := range pairs {
		av, aok := eval(p.A.Expr, script, result)
		bv, bok := eval(p.B.Expr, script, result)
		if !aok || !bok {
			continue
		}
		if av != bv {
			return &Divergence{Index: p.Index, Channel: p.A.Channel, Origin: p.A.Origin, A: av, B: bv}
		}
	}
	return nil
}

// eval interprets a lir.Expr as a uint64 under the model (1/0 for
// booleans). Array select/store nodes are not evaluated: eval reports
// them, and any expression containing one, as not evaluable (false),
// since a single define-fun binding does not give an array-valued model
// function. This affects only the reconstructed display trace, not the
// SMT encoding itself, which internal/smt emits precisely.
func eval(e lir.Expr, script *smt.Script, result *solver.Result) (uint64, bool) {
	switch expr := e.(type) {
	case lir.VarRef:
		val, ok := result.Model[string(expr.Name)]
		if !ok {
			return 0, false
		}
		return valueBits(val), true
	case lir.ConstBV:
		return expr.Value, true
	case lir.ConstBool:
		return boolBit(expr.Value), true
	case lir.NondetRef:
		symbol, ok := script.NondetSymbol[expr.Class]
		if !ok {
			return 0, false
		}
		val, ok := result.Model[symbol]
		if !ok {
			return 0, false
		}
		return valueBits(val), true
	case lir.UnaryExpr:
		arg, ok := eval(expr.Arg, script, result)
		if !ok {
			return 0, false
		}
		return evalUnary(expr.Op, arg), true
	case lir.BinaryExpr:
		l, ok1 := eval(expr.Left, script, result)
		r, ok2 := eval(expr.Right, script, result)
		if !ok1 || !ok2 {
			return 0, false
		}
		return evalBinary(expr.Op, l, r), true
	case lir.IteExpr:
		c, ok := eval(expr.Cond, script, result)
		if !ok {
			return 0, false
		}
		if c != 0 {
			return eval(expr.Then, script, result)
		}
		return eval(expr.Else, script, result)
	case lir.SelectExpr, lir.StoreExpr:
		return 0, false
	default:
		return 0, false
	}
}

func valueBits(v solver.Value) uint64 {
	if v.IsBool {
		return boolBit(v.Bool)
	}
	return v.BitVec
}

func boolBit(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func evalUnary(op lir.UnaryOp, arg uint64) uint64 {
	switch op {
	case lir.OpNot:
		return ^arg
	case lir.OpNeg:
		return -arg
	case lir.OpBoolNot:
		return boolBit(arg == 0)
	default:
		return arg
	}
}

func evalBinary(op lir.BinaryOp, l, r uint64) uint64 {
	switch op {
	case lir.OpAdd:
		return l + r
	case lir.OpSub:
		return l - r
	case lir.OpMul:
		return l * r
	case lir.OpAnd:
		return l & r
	case lir.OpOr:
		return l | r
	case lir.OpXor:
		return l ^ r
	case lir.OpShl:
		return l << r
	case lir.OpLShr:
		return l >> r
	case lir.OpEq:
		return boolBit(l == r)
	case lir.OpUlt:
		return boolBit(l < r)
	case lir.OpUle:
		return boolBit(l <= r)
	case lir.OpUgt:
		return boolBit(l > r)
	case lir.OpUge:
		return boolBit(l >= r)
	case lir.OpBoolAnd:
		return boolBit(l != 0 && r != 0)
	case lir.OpBoolOr:
		return boolBit(l != 0 || r != 0)
	case lir.OpBoolImplies:
		return boolBit(l == 0 || r != 0)
	default:
		return 0
	}
}

// sortedRegisterNames is a small display helper used by dot.go so the DOT
// output is deterministic across runs.
func sortedRegisterNames(m map[string]uint64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
