package mir

// ExprRegisters returns the names of every register read by expr,
// duplicates included; used to compute instruction use-sets for
// liveness and for the effect/dependency analyses in internal/cfg.
func ExprRegisters(expr Expr) []string {
	switch e := expr.(type) {
	case Register:
		return []string{e.Name}
	case Const:
		return nil
	case UnaryExpr:
		return ExprRegisters(e.Arg)
	case BinaryExpr:
		return append(ExprRegisters(e.Left), ExprRegisters(e.Right)...)
	case IteExpr:
		out := ExprRegisters(e.Cond)
		out = append(out, ExprRegisters(e.Then)...)
		out = append(out, ExprRegisters(e.Else)...)
		return out
	case NondetExpr:
		return nil
	default:
		panic("mir: ExprRegisters: unhandled Expr kind")
	}
}

// Uses returns the registers read by instr (including addresses and
// conditions), not counting any register instr itself defines.
func Uses(instr Instruction) []string {
	switch ins := instr.(type) {
	case Assign:
		return ExprRegisters(ins.Expr)
	case Load:
		return ExprRegisters(ins.Addr)
	case Store:
		return append(ExprRegisters(ins.Addr), ExprRegisters(ins.Value)...)
	case CondBranch:
		return ExprRegisters(ins.Cond)
	case Call:
		if ins.Indirect != nil {
			return ExprRegisters(ins.Indirect)
		}
		return nil
	default:
		return nil
	}
}

// Defs returns the register instr writes, or "" if it writes none.
func Defs(instr Instruction) (string, bool) {
	switch ins := instr.(type) {
	case Assign:
		return ins.Dest.Name, true
	case Load:
		return ins.Dest.Name, true
	default:
		return "", false
	}
}
