package mir

// BasicBlock is a maximal straight-line instruction sequence. Every block
// except unreachable ones ends in exactly one control-transfer
// instruction (CondBranch, Jump, Call, Return); all other instructions in
// Instructions are straight-line (Assign/Load/Store/SpecBarrier/Skip).
type BasicBlock struct {
	ID           BlockID
	PC           uint64 // address of the first instruction, for dumps/cex
	Instructions []Instruction
}

// Terminator returns the block's final control-transfer instruction, or
// nil if the block is empty (malformed) or does not end in one.
func (b *BasicBlock) Terminator() Instruction {
	if len(b.Instructions) == 0 {
		return nil
	}
	last := b.Instructions[len(b.Instructions)-1]
	switch last.(type) {
	case CondBranch, Jump, Call, Return:
		return last
	default:
		return nil
	}
}

// Successors returns the IDs of blocks reachable in one step from b,
// within the owning function.
func (b *BasicBlock) Successors() []BlockID {
	if term := b.Terminator(); term != nil {
		return Successors(term)
	}
	return nil
}
