package cfg

import "github.com/relentless-labs/specbmc/internal/mir"

// RegisterSet is a set of register names.
type RegisterSet map[string]struct{}

func newRegisterSet() RegisterSet { return make(RegisterSet) }

func (s RegisterSet) add(name string) { s[name] = struct{}{} }
func (s RegisterSet) has(name string) bool { _, ok := s[name]; return ok }

func (s RegisterSet) copy() RegisterSet {
	out := newRegisterSet()
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

func (s RegisterSet) equals(other RegisterSet) bool {
	if len(s) != len(other) {
		return false
	}
	for k := range s {
		if !other.has(k) {
			return false
		}
	}
	return true
}

// LiveVariables is the result of a backward liveness dataflow analysis
// over one function: LiveIn[b]/LiveOut[b] are the registers live on
// entry/exit to block b. Supplemented from original_source's
// analysis/live_variables.rs — used by internal/lir to avoid threading
// dead registers through self-composition.
type LiveVariables struct {
	LiveIn  map[mir.BlockID]RegisterSet
	LiveOut map[mir.BlockID]RegisterSet
}

// ComputeLiveVariables runs the standard iterative fixpoint:
//
//	LiveOut[b] = union of LiveIn[s] for s in Succ(b)
//	LiveIn[b]  = Use(b) union (LiveOut[b] - Def(b))
//
// until no set changes.
func ComputeLiveVariables(fn *mir.Function, g *Graph) *LiveVariables {
	lv := &LiveVariables{
		LiveIn:  make(map[mir.BlockID]RegisterSet),
		LiveOut: make(map[mir.BlockID]RegisterSet),
	}
	ids := fn.BlockIDs()
	for _, id := range ids {
		lv.LiveIn[id] = newRegisterSet()
		lv.LiveOut[id] = newRegisterSet()
	}

	changed := true
	for changed {
		changed = false
		for _, id := range ids {
			out := newRegisterSet()
			for _, s := range g.Succ[id] {
				for r := range lv.LiveIn[s] {
					out.add(r)
				}
			}

			in := blockUse(fn.Block(id)).copy()
			def := blockDef(fn.Block(id))
			for r := range out {
				if !def.has(r) {
					in.add(r)
				}
			}

			if !out.equals(lv.LiveOut[id]) {
				lv.LiveOut[id] = out
				changed = true
			}
			if !in.equals(lv.LiveIn[id]) {
				lv.LiveIn[id] = in
				changed = true
			}
		}
	}
	return lv
}

// blockUse computes the registers read by b before any intervening
// definition (the block-local "upward exposed uses").
func blockUse(b *mir.BasicBlock) RegisterSet {
	use := newRegisterSet()
	defined := newRegisterSet()
	for _, instr := range b.Instructions {
		for _, r := range mir.Uses(instr) {
			if !defined.has(r) {
				use.add(r)
			}
		}
		if d, ok := mir.Defs(instr); ok {
			defined.add(d)
		}
	}
	return use
}

// blockDef computes every register b (re)defines, regardless of order.
func blockDef(b *mir.BasicBlock) RegisterSet {
	def := newRegisterSet()
	for _, instr := range b.Instructions {
		if d, ok := mir.Defs(instr); ok {
			def.add(d)
		}
	}
	return def
}
