package mir

import "fmt"

// InstrString renders instr the way a µASM disassembly line would, used
// by the --mir dump and by internal/dot's block labels.
func InstrString(instr Instruction) string {
	switch ins := instr.(type) {
	case Assign:
		return fmt.Sprintf("%s := %s", ins.Dest, ins.Expr)
	case Load:
		return fmt.Sprintf("%s := load%d[%s]", ins.Dest, ins.AccessWidth, ins.Addr)
	case Store:
		return fmt.Sprintf("store%d[%s] := %s", ins.AccessWidth, ins.Addr, ins.Value)
	case CondBranch:
		return fmt.Sprintf("beqz %s, %s, %s", ins.Cond, ins.FalseTarget, ins.TrueTarget)
	case Jump:
		return fmt.Sprintf("jmp %s", ins.Target)
	case Call:
		if ins.Indirect != nil {
			return fmt.Sprintf("icall %s -> %s", ins.Indirect, ins.Return)
		}
		return fmt.Sprintf("call %s -> %s", ins.Callee, ins.Return)
	case Return:
		return "ret"
	case SpecBarrier:
		return "spbarr"
	case Skip:
		return "skip"
	default:
		panic("mir: InstrString: unhandled Instruction kind")
	}
}

// FunctionString renders every block of fn in block order, one
// instruction per line, for the --mir dump.
func FunctionString(fn *Function) string {
	out := ""
	for _, id := range fn.BlockIDs() {
		b := fn.Block(id)
		out += fmt.Sprintf("%s: (pc=0x%x)\n", id, b.PC)
		for _, instr := range b.Instructions {
			out += "  " + InstrString(instr) + "\n"
		}
	}
	return out
}
