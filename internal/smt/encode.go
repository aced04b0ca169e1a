// Package smt turns an optimized internal/lir.Program into an SMT-LIB 2
// script (spec.md §4.6): QF_AUFBV, realizing spec.md's "QF_ABV plus
// uninterpreted functions" (a nondeterministic input is emitted as a
// 0-arity declare-const, the minimal case of an uninterpreted function
// — this repo's TCFG/LIR lowering models cache/BTB/PHT touches as
// observed addresses plus free inputs rather than as dedicated
// UF-backed table sorts, so no higher-arity uninterpreted function
// needs declaring). `assign` becomes `(assert (= v expr))`, `assume`
// becomes an asserted predicate, and every `assert` obligation is
// collected and discharged as a single `(assert (not (and ...)))` at
// the end — a counterexample to that is a witness that some assertion
// (an SNI observation-equality obligation, once internal/lir.Compose
// has run) can be violated.
package smt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/relentless-labs/specbmc/internal/lir"
)

// Script is a rendered SMT-LIB 2 program plus enough bookkeeping for
// internal/cex to map a returned model back to LIR variables.
type Script struct {
	Text         string
	Vars         []lir.Var       // every declared variable, in declaration order
	VarSort      map[lir.Var]lir.Sort
	NondetSymbol map[string]string // NondetRef.Class -> its declared SMT symbol name (unquoted)
}

// Encode renders prog as a complete SMT-LIB 2 script.
func Encode(prog *lir.Program) (*Script, error) {
	e := &encoder{
		prog:         prog,
		varSort:      map[lir.Var]lir.Sort{},
		nondetSort:   map[string]lir.Sort{},
		nondetSymbol: map[string]string{},
	}
	if err := e.collect(); err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("(set-logic QF_AUFBV)\n")
	b.WriteString("(set-option :produce-models true)\n\n")

	for _, name := range e.nondetOrder {
		fmt.Fprintf(&b, "(declare-const %s %s)\n", quoteSym(e.nondetSymbol[name]), sortSexpr(e.nondetSort[name]))
	}
	b.WriteString("\n")
	for _, v := range e.varOrder {
		fmt.Fprintf(&b, "(declare-const %s %s)\n", quoteSym(string(v)), sortSexpr(e.varSort[v]))
	}
	b.WriteString("\n")

	var assertions []string
	for _, node := range prog.Nodes {
		switch n := node.(type) {
		case lir.Assign:
			fmt.Fprintf(&b, "(assert (= %s %s))\n", quoteSym(string(n.Dest)), e.sexpr(n.Expr))
		case lir.Assert:
			if n.Comment != "" {
				fmt.Fprintf(&b, "; assertion: %s\n", sanitizeComment(n.Comment))
			}
			assertions = append(assertions, e.sexpr(n.Cond))
		case lir.Assume:
			if n.Comment != "" {
				fmt.Fprintf(&b, "; assume: %s\n", sanitizeComment(n.Comment))
			}
			fmt.Fprintf(&b, "(assert %s)\n", e.sexpr(n.Cond))
		case lir.Observe:
			fmt.Fprintf(&b, "; observe %s: %s\n", n.Channel, e.sexpr(n.Expr))
		case lir.Branch:
			return nil, fmt.Errorf("smt: encode: unexpected lir.Branch node (lowering never emits one)")
		default:
			return nil, fmt.Errorf("smt: encode: unhandled lir.Node kind %T", node)
		}
	}

	b.WriteString("\n")
	switch len(assertions) {
	case 0:
		b.WriteString("; no assertion obligations were produced; nothing to falsify\n")
	case 1:
		fmt.Fprintf(&b, "(assert (not %s))\n", assertions[0])
	default:
		fmt.Fprintf(&b, "(assert (not (and %s)))\n", strings.Join(assertions, " "))
	}
	b.WriteString("\n(check-sat)\n(get-model)\n")

	return &Script{
		Text:         b.String(),
		Vars:         e.varOrder,
		VarSort:      e.varSort,
		NondetSymbol: e.nondetSymbol,
	}, nil
}

type encoder struct {
	prog *lir.Program

	varOrder   []lir.Var
	varSort    map[lir.Var]lir.Sort
	nondetOrder []string
	nondetSort  map[string]lir.Sort
	nondetSymbol map[string]string
}

// collect walks prog once, in program order, recording every declared
// variable and every distinct nondeterministic input class — all
// declare-consts must precede any assert that references them in valid
// SMT-LIB 2 text, so this happens before any body is rendered.
func (e *encoder) collect() error {
	seenVar := map[lir.Var]bool{}
	seenNondet := map[string]bool{}
	var walk func(expr lir.Expr)
	walk = func(expr lir.Expr) {
		switch v := expr.(type) {
		case lir.VarRef:
		case lir.ConstBV, lir.ConstBool:
		case lir.NondetRef:
			if !seenNondet[v.Class] {
				seenNondet[v.Class] = true
				e.nondetOrder = append(e.nondetOrder, v.Class)
				e.nondetSort[v.Class] = v.S
				e.nondetSymbol[v.Class] = "nondet$" + v.Class
			}
		case lir.UnaryExpr:
			walk(v.Arg)
		case lir.BinaryExpr:
			walk(v.Left)
			walk(v.Right)
		case lir.IteExpr:
			walk(v.Cond)
			walk(v.Then)
			walk(v.Else)
		case lir.SelectExpr:
			walk(v.Array)
			walk(v.Index)
		case lir.StoreExpr:
			walk(v.Array)
			walk(v.Index)
			walk(v.Value)
		}
	}
	for _, node := range e.prog.Nodes {
		switch n := node.(type) {
		case lir.Assign:
			if !seenVar[n.Dest] {
				seenVar[n.Dest] = true
				e.varOrder = append(e.varOrder, n.Dest)
				e.varSort[n.Dest] = n.Expr.Sort()
			}
			walk(n.Expr)
		case lir.Assert:
			walk(n.Cond)
		case lir.Assume:
			walk(n.Cond)
		case lir.Observe:
			walk(n.Expr)
		case lir.Branch:
			return fmt.Errorf("smt: collect: unexpected lir.Branch node")
		default:
			return fmt.Errorf("smt: collect: unhandled lir.Node kind %T", node)
		}
	}
	sort.Strings(e.nondetOrder) // determinism independent of first-touch order across map iteration in tests
	return nil
}

func (e *encoder) sexpr(expr lir.Expr) string {
	switch v := expr.(type) {
	case lir.VarRef:
		return quoteSym(string(v.Name))
	case lir.ConstBV:
		return fmt.Sprintf("(_ bv%d %d)", v.Value, v.Width)
	case lir.ConstBool:
		if v.Value {
			return "true"
		}
		return "false"
	case lir.UnaryExpr:
		return e.unarySexpr(v)
	case lir.BinaryExpr:
		return e.binarySexpr(v)
	case lir.IteExpr:
		return fmt.Sprintf("(ite %s %s %s)", e.sexpr(v.Cond), e.sexpr(v.Then), e.sexpr(v.Else))
	case lir.SelectExpr:
		return fmt.Sprintf("(select %s %s)", e.sexpr(v.Array), e.sexpr(v.Index))
	case lir.StoreExpr:
		return fmt.Sprintf("(store %s %s %s)", e.sexpr(v.Array), e.sexpr(v.Index), e.sexpr(v.Value))
	case lir.NondetRef:
		return quoteSym(e.nondetSymbol[v.Class])
	default:
		panic(fmt.Sprintf("smt: sexpr: unhandled lir.Expr kind %T", expr))
	}
}

func (e *encoder) unarySexpr(u lir.UnaryExpr) string {
	arg := e.sexpr(u.Arg)
	switch u.Op {
	case lir.OpNot:
		return fmt.Sprintf("(bvnot %s)", arg)
	case lir.OpNeg:
		return fmt.Sprintf("(bvneg %s)", arg)
	case lir.OpBoolNot:
		return fmt.Sprintf("(not %s)", arg)
	case lir.OpZeroExtend:
		return fmt.Sprintf("((_ zero_extend %d) %s)", u.ResultWidth-u.Arg.Sort().Width, arg)
	case lir.OpSignExtend:
		return fmt.Sprintf("((_ sign_extend %d) %s)", u.ResultWidth-u.Arg.Sort().Width, arg)
	case lir.OpTruncate:
		return fmt.Sprintf("((_ extract %d 0) %s)", u.ResultWidth-1, arg)
	default:
		panic("smt: unarySexpr: unhandled UnaryOp")
	}
}

func (e *encoder) binarySexpr(b lir.BinaryExpr) string {
	left, right := e.sexpr(b.Left), e.sexpr(b.Right)
	op, ok := binaryOpSymbols[b.Op]
	if !ok {
		panic("smt: binarySexpr: unhandled BinaryOp")
	}
	return fmt.Sprintf("(%s %s %s)", op, left, right)
}

var binaryOpSymbols = map[lir.BinaryOp]string{
	lir.OpAdd:         "bvadd",
	lir.OpSub:         "bvsub",
	lir.OpMul:         "bvmul",
	lir.OpUDiv:        "bvudiv",
	lir.OpSDiv:        "bvsdiv",
	lir.OpURem:        "bvurem",
	lir.OpSRem:        "bvsrem",
	lir.OpAnd:         "bvand",
	lir.OpOr:          "bvor",
	lir.OpXor:         "bvxor",
	lir.OpShl:         "bvshl",
	lir.OpLShr:        "bvlshr",
	lir.OpAShr:        "bvashr",
	lir.OpConcat:      "concat",
	lir.OpEq:          "=",
	lir.OpUlt:         "bvult",
	lir.OpUle:         "bvule",
	lir.OpUgt:         "bvugt",
	lir.OpUge:         "bvuge",
	lir.OpSlt:         "bvslt",
	lir.OpSle:         "bvsle",
	lir.OpSgt:         "bvsgt",
	lir.OpSge:         "bvsge",
	lir.OpBoolAnd:     "and",
	lir.OpBoolOr:      "or",
	lir.OpBoolImplies: "=>",
}

func sortSexpr(s lir.Sort) string {
	switch s.Kind {
	case lir.SortBitVec:
		return fmt.Sprintf("(_ BitVec %d)", s.Width)
	case lir.SortBool:
		return "Bool"
	case lir.SortArray:
		return fmt.Sprintf("(Array (_ BitVec %d) (_ BitVec %d))", s.IndexWidth, s.ElemWidth)
	default:
		panic("smt: sortSexpr: unhandled lir.SortKind")
	}
}

// quoteSym wraps an SMT-LIB symbol in |...| quoting so any generated
// name (containing '.', '#', ':', etc.) is accepted regardless of the
// simple-symbol character set.
func quoteSym(name string) string { return "|" + name + "|" }

func sanitizeComment(s string) string { return strings.ReplaceAll(s, "\n", " ") }
