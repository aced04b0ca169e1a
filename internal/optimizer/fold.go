package optimizer

import "github.com/relentless-labs/specbmc/internal/lir"

// fold applies constant folding and algebraic simplification to one
// expression node whose children have already been folded (bottom-up),
// per spec.md §4.5 ("full" level: "constant folding, algebraic
// simplification x & 0 = 0, x ^ x = 0, etc."). It never changes the
// expression's sort and never discards an observe/assert/assume node —
// callers only ever fold the Expr field of such a node, never the node
// itself.
func fold(e lir.Expr) lir.Expr {
	switch expr := e.(type) {
	case lir.UnaryExpr:
		return foldUnary(expr)
	case lir.BinaryExpr:
		return foldBinary(expr)
	case lir.IteExpr:
		return foldIte(expr)
	case lir.SelectExpr:
		return foldSelect(expr)
	default:
		return e
	}
}

func foldUnary(u lir.UnaryExpr) lir.Expr {
	if inner, ok := u.Arg.(lir.UnaryExpr); ok && u.Op == lir.OpBoolNot && inner.Op == lir.OpBoolNot {
		return inner.Arg // !!x = x
	}
	c, ok := u.Arg.(lir.ConstBV)
	if !ok {
		if cb, ok := u.Arg.(lir.ConstBool); ok && u.Op == lir.OpBoolNot {
			return lir.ConstBool{Value: !cb.Value}
		}
		return u
	}
	mask := widthMask(c.Width)
	switch u.Op {
	case lir.OpNot:
		return lir.ConstBV{Value: (^c.Value) & mask, Width: c.Width}
	case lir.OpNeg:
		return lir.ConstBV{Value: (-c.Value) & mask, Width: c.Width}
	case lir.OpZeroExtend, lir.OpTruncate:
		return lir.ConstBV{Value: c.Value & widthMask(u.ResultWidth), Width: u.ResultWidth}
	case lir.OpSignExtend:
		v := c.Value & mask
		if c.Width > 0 && c.Width < 64 && (v>>uint(c.Width-1))&1 == 1 {
			v |= ^mask
		}
		return lir.ConstBV{Value: v & widthMask(u.ResultWidth), Width: u.ResultWidth}
	default:
		return u
	}
}

func foldBinary(b lir.BinaryExpr) lir.Expr {
	// Algebraic identities that hold regardless of operand values.
	if exprEqual(b.Left, b.Right) {
		switch b.Op {
		case lir.OpXor, lir.OpSub:
			return lir.ConstBV{Value: 0, Width: b.ResultWidth}
		case lir.OpEq, lir.OpUle, lir.OpUge, lir.OpSle, lir.OpSge:
			return lir.ConstBool{Value: true}
		case lir.OpUlt, lir.OpUgt, lir.OpSlt, lir.OpSgt:
			return lir.ConstBool{Value: false}
		case lir.OpAnd, lir.OpOr:
			return b.Left
		case lir.OpBoolAnd, lir.OpBoolOr:
			return b.Left
		}
	}
	if zero, ok := asZero(b.Right); ok {
		switch b.Op {
		case lir.OpAnd:
			return zero
		case lir.OpAdd, lir.OpSub, lir.OpOr, lir.OpXor, lir.OpShl, lir.OpLShr, lir.OpAShr:
			return b.Left
		}
	}
	if zero, ok := asZero(b.Left); ok {
		switch b.Op {
		case lir.OpAnd:
			return zero
		case lir.OpAdd, lir.OpOr, lir.OpXor:
			return b.Right
		}
	}
	if cb, ok := b.Right.(lir.ConstBool); ok && b.Op == lir.OpBoolAnd {
		if !cb.Value {
			return lir.ConstBool{Value: false}
		}
		return b.Left
	}
	if cb, ok := b.Right.(lir.ConstBool); ok && b.Op == lir.OpBoolOr {
		if cb.Value {
			return lir.ConstBool{Value: true}
		}
		return b.Left
	}

	lc, lok := b.Left.(lir.ConstBV)
	rc, rok := b.Right.(lir.ConstBV)
	if !lok || !rok {
		return b
	}
	mask := widthMask(b.ResultWidth)
	switch b.Op {
	case lir.OpAdd:
		return lir.ConstBV{Value: (lc.Value + rc.Value) & mask, Width: b.ResultWidth}
	case lir.OpSub:
		return lir.ConstBV{Value: (lc.Value - rc.Value) & mask, Width: b.ResultWidth}
	case lir.OpMul:
		return lir.ConstBV{Value: (lc.Value * rc.Value) & mask, Width: b.ResultWidth}
	case lir.OpAnd:
		return lir.ConstBV{Value: (lc.Value & rc.Value) & mask, Width: b.ResultWidth}
	case lir.OpOr:
		return lir.ConstBV{Value: (lc.Value | rc.Value) & mask, Width: b.ResultWidth}
	case lir.OpXor:
		return lir.ConstBV{Value: (lc.Value ^ rc.Value) & mask, Width: b.ResultWidth}
	case lir.OpUDiv:
		if rc.Value == 0 {
			return b // division by zero: leave symbolic, let the solver's own semantics apply
		}
		return lir.ConstBV{Value: (lc.Value / rc.Value) & mask, Width: b.ResultWidth}
	case lir.OpURem:
		if rc.Value == 0 {
			return b
		}
		return lir.ConstBV{Value: (lc.Value % rc.Value) & mask, Width: b.ResultWidth}
	case lir.OpShl:
		return lir.ConstBV{Value: (lc.Value << rc.Value) & mask, Width: b.ResultWidth}
	case lir.OpLShr:
		return lir.ConstBV{Value: (lc.Value >> rc.Value) & mask, Width: b.ResultWidth}
	case lir.OpEq:
		return lir.ConstBool{Value: lc.Value == rc.Value}
	case lir.OpUlt:
		return lir.ConstBool{Value: lc.Value < rc.Value}
	case lir.OpUle:
		return lir.ConstBool{Value: lc.Value <= rc.Value}
	case lir.OpUgt:
		return lir.ConstBool{Value: lc.Value > rc.Value}
	case lir.OpUge:
		return lir.ConstBool{Value: lc.Value >= rc.Value}
	default:
		return b
	}
}

func foldIte(i lir.IteExpr) lir.Expr {
	if c, ok := i.Cond.(lir.ConstBool); ok {
		if c.Value {
			return i.Then
		}
		return i.Else
	}
	if exprEqual(i.Then, i.Else) {
		return i.Then
	}
	return i
}

// foldSelect applies the standard theory-of-arrays rewrite: reading
// back an index that was just written returns the written value
// without needing the solver to discover it.
func foldSelect(s lir.SelectExpr) lir.Expr {
	if store, ok := s.Array.(lir.StoreExpr); ok && exprEqual(store.Index, s.Index) {
		return store.Value
	}
	return s
}

func asZero(e lir.Expr) (lir.Expr, bool) {
	if c, ok := e.(lir.ConstBV); ok && c.Value == 0 {
		return c, true
	}
	return nil, false
}

func widthMask(width int) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(width)) - 1
}
