// Package mir defines the mid-level intermediate representation consumed
// by the verification pipeline. Programs in this representation are built
// by front-ends (ELF/µASM loaders) that live outside this module; mir only
// defines the shapes those front-ends must produce and the accessors the
// pipeline stages need.
package mir

import "fmt"

// Width is a bit-vector width in bits. Register and memory-access widths
// are always one of these.
type Width int

const (
	Width8   Width = 8
	Width16  Width = 16
	Width32  Width = 32
	Width64  Width = 64
	Width128 Width = 128
)

// ExprKind discriminates the closed sum of expression nodes. Every switch
// over Expr must be exhaustive; a missing case is a correctness bug, not a
// style nit, so callers are expected to `panic` on the default case rather
// than silently ignore it.
type ExprKind int

const (
	ExprRegister ExprKind = iota
	ExprConst
	ExprUnary
	ExprBinary
	ExprIte
	ExprNondet
)

// Expr is a pure, typed expression over registers, constants and
// bit-vector/boolean operators. Expressions never read or write memory
// directly — Load and Store are instructions, not expressions — so an
// Expr can always be evaluated without a store.
type Expr interface {
	Kind() ExprKind
	Width() Width
	String() string
	exprNode()
}

// Register is a named register reference. Flags are modeled as Width-1
// (boolean) registers.
type Register struct {
	Name string
	W    Width
}

func (r Register) Kind() ExprKind { return ExprRegister }
func (r Register) Width() Width   { return r.W }
func (r Register) String() string { return r.Name }
func (Register) exprNode()        {}

// Const is a literal bit-vector value.
type Const struct {
	Value uint64
	W     Width
}

func (c Const) Kind() ExprKind { return ExprConst }
func (c Const) Width() Width   { return c.W }
func (c Const) String() string { return fmt.Sprintf("0x%x:%d", c.Value, c.W) }
func (Const) exprNode()        {}

// UnaryOp enumerates the supported unary bit-vector/boolean operators.
type UnaryOp int

const (
	OpNot UnaryOp = iota
	OpNeg
	OpBoolNot
	OpZeroExtend
	OpSignExtend
	OpTruncate
)

// UnaryExpr applies a unary operator. ResultWidth is only meaningful for
// the extend/truncate family; it is ignored (and should equal Arg.Width())
// for Not/Neg/BoolNot.
type UnaryExpr struct {
	Op          UnaryOp
	Arg         Expr
	ResultWidth Width
}

func (u UnaryExpr) Kind() ExprKind { return ExprUnary }
func (u UnaryExpr) Width() Width   { return u.ResultWidth }
func (u UnaryExpr) String() string { return fmt.Sprintf("(%v %s)", u.Op, u.Arg) }
func (UnaryExpr) exprNode()        {}

// BinaryOp enumerates the supported binary bit-vector/boolean operators.
type BinaryOp int

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

// BinaryExpr applies a binary operator to two operands of equal width
// (except the comparison and boolean family, whose result is always a
// one-bit boolean).
type BinaryExpr struct {
	Op          BinaryOp
	Left, Right Expr
	ResultWidth Width
}

func (b BinaryExpr) Kind() ExprKind { return ExprBinary }
func (b BinaryExpr) Width() Width   { return b.ResultWidth }
func (b BinaryExpr) String() string { return fmt.Sprintf("(%v %s %s)", b.Op, b.Left, b.Right) }
func (BinaryExpr) exprNode()        {}

// IteExpr is a ternary conditional expression: `cond ? then : els`. Cond
// must have Width() == 1 (boolean).
type IteExpr struct {
	Cond, Then, Else Expr
}

func (i IteExpr) Kind() ExprKind { return ExprIte }
func (i IteExpr) Width() Width   { return i.Then.Width() }
func (i IteExpr) String() string { return fmt.Sprintf("(ite %s %s %s)", i.Cond, i.Then, i.Else) }
func (IteExpr) exprNode()        {}

// NondetExpr is a free (attacker- or environment-controlled) input of the
// given width and class. It becomes a declared, unconstrained SMT constant.
// Used for indirect-branch targets, predictor outcomes, and initial
// register/memory values that the environment does not fix.
type NondetExpr struct {
	Class string // e.g. "indirect-target", "predictor-choice"
	W     Width
}

func (n NondetExpr) Kind() ExprKind { return ExprNondet }
func (n NondetExpr) Width() Width   { return n.W }
func (n NondetExpr) String() string { return fmt.Sprintf("nondet<%s>:%d", n.Class, n.W) }
func (NondetExpr) exprNode()        {}
