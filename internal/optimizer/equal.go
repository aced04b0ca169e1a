package optimizer

import "github.com/relentless-labs/specbmc/internal/lir"

// exprEqual reports whether a and b are structurally identical LIR
// expressions — used by the algebraic simplification rules (`x ^ x`,
// `x - x`, a redundant `ite` with equal branches) to detect when two
// subexpressions are provably the same value without involving the
// solver.
func exprEqual(a, b lir.Expr) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch av := a.(type) {
	case lir.VarRef:
		bv := b.(lir.VarRef)
		return av.Name == bv.Name
	case lir.ConstBV:
		bv := b.(lir.ConstBV)
		return av.Value == bv.Value && av.Width == bv.Width
	case lir.ConstBool:
		bv := b.(lir.ConstBool)
		return av.Value == bv.Value
	case lir.UnaryExpr:
		bv := b.(lir.UnaryExpr)
		return av.Op == bv.Op && av.ResultWidth == bv.ResultWidth && exprEqual(av.Arg, bv.Arg)
	case lir.BinaryExpr:
		bv := b.(lir.BinaryExpr)
		return av.Op == bv.Op && av.ResultWidth == bv.ResultWidth &&
			exprEqual(av.Left, bv.Left) && exprEqual(av.Right, bv.Right)
	case lir.IteExpr:
		bv := b.(lir.IteExpr)
		return exprEqual(av.Cond, bv.Cond) && exprEqual(av.Then, bv.Then) && exprEqual(av.Else, bv.Else)
	case lir.SelectExpr:
		bv := b.(lir.SelectExpr)
		return exprEqual(av.Array, bv.Array) && exprEqual(av.Index, bv.Index)
	case lir.StoreExpr:
		bv := b.(lir.StoreExpr)
		return exprEqual(av.Array, bv.Array) && exprEqual(av.Index, bv.Index) && exprEqual(av.Value, bv.Value)
	case lir.NondetRef:
		bv := b.(lir.NondetRef)
		return av.Class == bv.Class
	default:
		panic("optimizer: exprEqual: unhandled lir.Expr kind")
	}
}
