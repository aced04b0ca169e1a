package mir

import "sort"

// Function is a control-flow graph of basic blocks.
type Function struct {
	Name   string
	Entry  BlockID
	Blocks map[BlockID]*BasicBlock
}

// NewFunction returns an empty function with the given name and entry
// block ID; blocks must be added with AddBlock before use.
func NewFunction(name string, entry BlockID) *Function {
	return &Function{
		Name:   name,
		Entry:  entry,
		Blocks: make(map[BlockID]*BasicBlock),
	}
}

// AddBlock inserts or replaces a block.
func (f *Function) AddBlock(b *BasicBlock) {
	f.Blocks[b.ID] = b
}

// Block looks up a block by ID.
func (f *Function) Block(id BlockID) *BasicBlock {
	return f.Blocks[id]
}

// BlockIDs returns all block IDs in deterministic (sorted) order, so that
// callers that iterate the CFG get reproducible traversal order across
// runs — important for the dump output and for cex reconstruction to be
// stable.
func (f *Function) BlockIDs() []BlockID {
	ids := make([]BlockID, 0, len(f.Blocks))
	for id := range f.Blocks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// DirectCallees returns the set of function names directly called from f,
// in deterministic order, used by call-graph construction and inlining.
func (f *Function) DirectCallees() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, id := range f.BlockIDs() {
		b := f.Blocks[id]
		for _, instr := range b.Instructions {
			if call, ok := instr.(Call); ok && call.Callee != "" {
				if _, dup := seen[call.Callee]; !dup {
					seen[call.Callee] = struct{}{}
					out = append(out, call.Callee)
				}
			}
		}
	}
	return out
}
