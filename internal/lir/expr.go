// Package lir is the low-level, single-assignment IR of spec.md §3/§4.3:
// a flat sequence of assign/assert/assume/observe nodes over typed
// bit-vector, boolean and array expressions, produced by lowering a
// internal/tcfg.TCFG (internal/cfg has already inlined calls and unwound
// loops, so the TCFG is a bounded DAG by the time it reaches here).
package lir

import "fmt"

// SortKind discriminates the three LIR sorts (spec.md §4.6 "QF_ABV"):
// bit-vectors, booleans, and arrays (memory and microarchitectural
// tables).
type SortKind int

const (
	SortBitVec SortKind = iota
	SortBool
	SortArray
)

// Sort is a typed LIR sort. Width is meaningful only for SortBitVec;
// IndexWidth/ElemWidth only for SortArray.
type Sort struct {
	Kind       SortKind
	Width      int
	IndexWidth int
	ElemWidth  int
}

func BitVec(width int) Sort { return Sort{Kind: SortBitVec, Width: width} }
func Bool() Sort            { return Sort{Kind: SortBool} }
func Array(indexWidth, elemWidth int) Sort {
	return Sort{Kind: SortArray, IndexWidth: indexWidth, ElemWidth: elemWidth}
}

func (s Sort) String() string {
	switch s.Kind {
	case SortBitVec:
		return fmt.Sprintf("bv%d", s.Width)
	case SortBool:
		return "bool"
	case SortArray:
		return fmt.Sprintf("(array bv%d bv%d)", s.IndexWidth, s.ElemWidth)
	default:
		panic("lir: Sort.String: unhandled SortKind")
	}
}

// Var names one SSA definition. Every Var is assigned by exactly one
// Assign node in a well-formed Program.
type Var string

// ExprKind discriminates the closed sum of LIR expression nodes.
type ExprKind int

const (
	ExprVarRef ExprKind = iota
	ExprConstBV
	ExprConstBool
	ExprUnary
	ExprBinary
	ExprIte
	ExprSelect
	ExprStore
	ExprNondet
)

// Expr is a pure LIR expression. Unlike mir.Expr, it includes array
// select/store for memory and microarchitectural tables.
type Expr interface {
	Kind() ExprKind
	Sort() Sort
	String() string
	exprNode()
}

// VarRef references a previously-assigned Var.
type VarRef struct {
	Name Var
	S    Sort
}

func (v VarRef) Kind() ExprKind { return ExprVarRef }
func (v VarRef) Sort() Sort     { return v.S }
func (v VarRef) String() string { return string(v.Name) }
func (VarRef) exprNode()        {}

// ConstBV is a literal bit-vector.
type ConstBV struct {
	Value uint64
	Width int
}

func (c ConstBV) Kind() ExprKind { return ExprConstBV }
func (c ConstBV) Sort() Sort     { return BitVec(c.Width) }
func (c ConstBV) String() string { return fmt.Sprintf("0x%x:%d", c.Value, c.Width) }
func (ConstBV) exprNode()        {}

// ConstBool is a literal boolean.
type ConstBool struct{ Value bool }

func (c ConstBool) Kind() ExprKind { return ExprConstBool }
func (c ConstBool) Sort() Sort     { return Bool() }
func (c ConstBool) String() string { return fmt.Sprintf("%v", c.Value) }
func (ConstBool) exprNode()        {}

// UnaryOp/BinaryOp reuse the mir operator vocabulary; LIR's expression
// tree is a superset of MIR's (it additionally has array select/store),
// not a different operator set.
type UnaryOp int
type BinaryOp int

const (
	OpNot UnaryOp = iota
	OpNeg
	OpBoolNot
	OpZeroExtend
	OpSignExtend
	OpTruncate
)

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpUDiv
	OpSDiv
	OpURem
	OpSRem
	OpAnd
	OpOr
	OpXor
	OpShl
	OpLShr
	OpAShr
	OpConcat
	OpEq
	OpUlt
	OpUle
	OpUgt
	OpUge
	OpSlt
	OpSle
	OpSgt
	OpSge
	OpBoolAnd
	OpBoolOr
	OpBoolImplies
)

// UnaryExpr applies a unary operator.
type UnaryExpr struct {
	Op          UnaryOp
	Arg         Expr
	ResultWidth int // meaningful for extend/truncate and for boolean (0)
}

func (u UnaryExpr) Kind() ExprKind { return ExprUnary }
func (u UnaryExpr) Sort() Sort {
	if u.Op == OpBoolNot {
		return Bool()
	}
	return BitVec(u.ResultWidth)
}
func (u UnaryExpr) String() string { return fmt.Sprintf("(op%d %s)", u.Op, u.Arg) }
func (UnaryExpr) exprNode()        {}

// BinaryExpr applies a binary operator.
type BinaryExpr struct {
	Op          BinaryOp
	Left, Right Expr
	ResultWidth int
}

func (b BinaryExpr) Kind() ExprKind { return ExprBinary }
func (b BinaryExpr) Sort() Sort {
	switch b.Op {
	case OpEq, OpUlt, OpUle, OpUgt, OpUge, OpSlt, OpSle, OpSgt, OpSge, OpBoolAnd, OpBoolOr, OpBoolImplies:
		return Bool()
	default:
		return BitVec(b.ResultWidth)
	}
}
func (b BinaryExpr) String() string { return fmt.Sprintf("(op%d %s %s)", b.Op, b.Left, b.Right) }
func (BinaryExpr) exprNode()        {}

// IteExpr is `cond ? then : else`; Cond must be SortBool.
type IteExpr struct {
	Cond, Then, Else Expr
}

func (i IteExpr) Kind() ExprKind { return ExprIte }
func (i IteExpr) Sort() Sort     { return i.Then.Sort() }
func (i IteExpr) String() string { return fmt.Sprintf("(ite %s %s %s)", i.Cond, i.Then, i.Else) }
func (IteExpr) exprNode()        {}

// SelectExpr reads Array at Index.
type SelectExpr struct {
	Array, Index Expr
}

func (s SelectExpr) Kind() ExprKind { return ExprSelect }
func (s SelectExpr) Sort() Sort     { return BitVec(s.Array.Sort().ElemWidth) }
func (s SelectExpr) String() string { return fmt.Sprintf("(select %s %s)", s.Array, s.Index) }
func (SelectExpr) exprNode()        {}

// StoreExpr produces a new array equal to Array except at Index, which
// holds Value.
type StoreExpr struct {
	Array, Index, Value Expr
}

func (s StoreExpr) Kind() ExprKind { return ExprStore }
func (s StoreExpr) Sort() Sort     { return s.Array.Sort() }
func (s StoreExpr) String() string { return fmt.Sprintf("(store %s %s %s)", s.Array, s.Index, s.Value) }
func (StoreExpr) exprNode()        {}

// NondetRef is a free (attacker/environment-controlled) constant of the
// given sort and class, declared but left unconstrained in the SMT
// encoding.
type NondetRef struct {
	Class string
	S     Sort
}

func (n NondetRef) Kind() ExprKind { return ExprNondet }
func (n NondetRef) Sort() Sort     { return n.S }
func (n NondetRef) String() string { return fmt.Sprintf("nondet<%s>:%s", n.Class, n.S) }
func (NondetRef) exprNode()        {}
