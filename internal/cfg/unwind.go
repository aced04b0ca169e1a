package cfg

import (
	"fmt"

	"github.com/relentless-labs/specbmc/internal/environment"
	"github.com/relentless-labs/specbmc/internal/mir"
)

// UnwindResult is fn with every loop in loops duplicated up to its bound
// and guarded (spec.md §4.1 "loop unwinding to depth k").
type UnwindResult struct {
	Function    *mir.Function
	GuardPoints []GuardPoint
}

// Unwind duplicates the body of every loop in loops boundFor(loop.ID)
// times: each copy's back edge is redirected into the next copy, and the
// final copy's back edge is redirected to a fresh guard block instead of
// back to the header, pruning (assumption) or flagging (assertion) any
// path that would have taken the loop around once more.
//
// Loops are unwound from innermost to outermost so an outer loop's
// duplication also duplicates its already-unwound inner loops, matching
// how nested speculation composes in internal/tcfg.
func Unwind(fn *mir.Function, loops []*Loop, boundFor func(loopID string) int, guard environment.UnwindingGuard) *UnwindResult {
	res := &UnwindResult{Function: fn}
	ordered := innermostFirst(loops)
	fresh := 0

	for _, loop := range ordered {
		bound := boundFor(loop.ID)
		unwindOne(fn, loop, bound, guard, &res.GuardPoints, &fresh)
	}
	return res
}

func innermostFirst(loops []*Loop) []*Loop {
	out := make([]*Loop, len(loops))
	copy(out, loops)
	// Selection sort by body size ascending; loop counts here are small
	// (tens, not thousands), so O(n^2) keeps this readable.
	for i := range out {
		min := i
		for j := i + 1; j < len(out); j++ {
			if len(out[j].Body) < len(out[min].Body) {
				min = j
			}
		}
		out[i], out[min] = out[min], out[i]
	}
	return out
}

// backEdges returns every block in the loop body whose terminator targets
// the header.
func backEdges(fn *mir.Function, loop *Loop) []mir.BlockID {
	var out []mir.BlockID
	for id := range loop.Body {
		b := fn.Block(id)
		if b == nil {
			continue
		}
		for _, s := range b.Successors() {
			if s == loop.Header {
				out = append(out, id)
				break
			}
		}
	}
	return out
}

func unwindOne(fn *mir.Function, loop *Loop, bound int, guard environment.UnwindingGuard, guardPoints *[]GuardPoint, fresh *int) {
	if bound <= 0 {
		bound = 1
	}
	tails := backEdges(fn, loop)
	if len(tails) == 0 {
		return
	}

	bodyIDs := loop.Body.ToSlice()
	// Every copy is cloned before any back edge is rewired, so each
	// clone's back edges still target its own cloned header.
	renames := []map[mir.BlockID]mir.BlockID{identityRename(bodyIDs)}
	for copyIdx := 1; copyIdx < bound; copyIdx++ {
		prefix := fmt.Sprintf("%s.unwind%d.", loop.ID, copyIdx)
		renames = append(renames, cloneBlocks(fn, bodyIDs, prefix))
	}
	for i := 1; i < len(renames); i++ {
		retarget(fn, renames[i-1], renames[i], tails, loop.Header)
	}
	prevRename := renames[len(renames)-1]

	guardID := mir.BlockID(fmt.Sprintf("%s.guard.%d", loop.ID, *fresh))
	*fresh++
	// The guard block never falls through anywhere architecturally
	// meaningful; it stands in for "the loop is assumed/asserted not to
	// iterate further", so it has no successors of its own.
	fn.AddBlock(&mir.BasicBlock{ID: guardID, Instructions: []mir.Instruction{mir.Skip{}}})
	*guardPoints = append(*guardPoints, GuardPoint{
		Block:  guardID,
		Kind:   guardKindFor(guard),
		Reason: fmt.Sprintf("unwinding bound reached in %s", loop.ID),
	})
	for _, tail := range tails {
		redirectTerminator(fn.Block(prevRename[tail]), prevRename[loop.Header], guardID)
	}
}

func guardKindFor(g environment.UnwindingGuard) GuardKind {
	if g == environment.GuardAssertion {
		return GuardPointAssertion
	}
	return GuardPointAssumption
}

func identityRename(ids []mir.BlockID) map[mir.BlockID]mir.BlockID {
	out := make(map[mir.BlockID]mir.BlockID, len(ids))
	for _, id := range ids {
		out[id] = id
	}
	return out
}

// cloneBlocks copies every block named in ids under prefix, with internal
// jumps/branches renamed to stay within the clone; targets outside ids
// are left unchanged (they leave the loop and are shared by every copy).
func cloneBlocks(fn *mir.Function, ids []mir.BlockID, prefix string) map[mir.BlockID]mir.BlockID {
	rename := make(map[mir.BlockID]mir.BlockID, len(ids))
	for _, id := range ids {
		rename[id] = mir.BlockID(fmt.Sprintf("%s%s", prefix, id))
	}

	remap := func(target mir.BlockID) mir.BlockID {
		if r, ok := rename[target]; ok {
			return r
		}
		return target
	}

	for _, id := range ids {
		src := fn.Block(id)
		clone := &mir.BasicBlock{ID: rename[id], PC: src.PC}
		for _, instr := range src.Instructions {
			switch ins := instr.(type) {
			case mir.Jump:
				clone.Instructions = append(clone.Instructions, mir.Jump{Target: remap(ins.Target)})
			case mir.CondBranch:
				clone.Instructions = append(clone.Instructions, mir.CondBranch{
					Cond:        ins.Cond,
					TrueTarget:  remap(ins.TrueTarget),
					FalseTarget: remap(ins.FalseTarget),
				})
			case mir.Call:
				clone.Instructions = append(clone.Instructions, mir.Call{Callee: ins.Callee, Indirect: ins.Indirect, Return: remap(ins.Return)})
			default:
				clone.Instructions = append(clone.Instructions, ins)
			}
		}
		fn.AddBlock(clone)
	}
	return rename
}

// retarget rewires the back edges of the previous copy (named by
// prevRename) so they jump into the new copy's header instead of back to
// their own copy's header.
func retarget(fn *mir.Function, prevRename, newRename map[mir.BlockID]mir.BlockID, tails []mir.BlockID, header mir.BlockID) {
	newHeader := newRename[header]
	for _, tail := range tails {
		b := fn.Block(prevRename[tail])
		redirectTerminator(b, prevRename[header], newHeader)
	}
}

// redirectTerminator rewrites the terminator of b so any edge to `from`
// points to `to` instead.
func redirectTerminator(b *mir.BasicBlock, from, to mir.BlockID) {
	if b == nil || len(b.Instructions) == 0 {
		return
	}
	last := len(b.Instructions) - 1
	switch ins := b.Instructions[last].(type) {
	case mir.Jump:
		if ins.Target == from {
			b.Instructions[last] = mir.Jump{Target: to}
		}
	case mir.CondBranch:
		if ins.TrueTarget == from {
			ins.TrueTarget = to
		}
		if ins.FalseTarget == from {
			ins.FalseTarget = to
		}
		b.Instructions[last] = ins
	}
}
