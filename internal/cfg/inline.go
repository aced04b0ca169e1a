package cfg

import (
	"fmt"

	"github.com/relentless-labs/specbmc/internal/environment"
	"github.com/relentless-labs/specbmc/internal/mir"
)

// GuardKind selects what internal/lir must emit at a GuardPoint: an
// `assume(false)` that prunes the path from further consideration, or an
// `assert(false)` that turns exceeding the bound into a reported
// obligation (spec.md §4.1 "recursion/unwinding guard").
type GuardKind int

const (
	GuardPointAssumption GuardKind = iota
	GuardPointAssertion
)

// GuardPoint marks a block created because inlining or unwinding stopped
// at a bound; internal/lir attaches the actual assume/assert node there
// once TCFG lowering reaches it.
type GuardPoint struct {
	Block  mir.BlockID
	Kind   GuardKind
	Reason string
}

// InlineResult is a single function with every (non-ignored, non-cyclic
// beyond the bound) direct call replaced by a copy of the callee's blocks.
type InlineResult struct {
	Function    *mir.Function
	GuardPoints []GuardPoint
}

func guardKind(g environment.UnwindingGuard) GuardKind {
	if g == environment.GuardAssertion {
		return GuardPointAssertion
	}
	return GuardPointAssumption
}

// inliner carries the state threaded through one Inline call: the
// program being flattened, the ignore set, the bound, and the function
// under construction.
type inliner struct {
	prog           *mir.Program
	cg             *CallGraph
	ignored        map[string]bool
	recursionLimit int
	guard          environment.UnwindingGuard
	out            *mir.Function
	guardPoints    []GuardPoint
	fresh          int
}

// Inline flattens prog starting at entry into a single function: every
// direct call (always a block terminator, per the MIR well-formedness
// invariant) is replaced by a fresh, renamed copy of the callee's blocks,
// with the callee's Return instructions rewritten to jump to the call's
// Return block. A call is left un-inlined — and stubbed with a
// GuardPoint instead — once its callee has already been inlined
// recursionLimit times along the current call path, or if its name
// appears in ignore (spec.md §6 analysis.inline_ignore: functions
// modeled as opaque, e.g. libc stubs).
func Inline(prog *mir.Program, entry string, recursionLimit int, guard environment.UnwindingGuard, ignore []string) (*InlineResult, error) {
	root := prog.Functions[entry]
	if root == nil {
		return nil, fmt.Errorf("cfg: entry function %q not found", entry)
	}

	ignored := make(map[string]bool, len(ignore))
	for _, name := range ignore {
		ignored[name] = true
	}

	in := &inliner{
		prog:           prog,
		cg:             BuildCallGraph(prog),
		ignored:        ignored,
		recursionLimit: recursionLimit,
		guard:          guard,
		out:            mir.NewFunction(entry, ""),
	}
	in.out.Entry = in.copyInto(root, map[string]int{entry: 1}, "", "")

	return &InlineResult{Function: in.out, GuardPoints: in.guardPoints}, nil
}

// copyInto copies src's blocks into in.out under a fresh prefix, rewiring
// Return to a Jump at retBlock, and recursively inlining any direct call
// within. It returns the renamed entry block of src. retBlock == ""
// means src is the top-level entry (no caller to return into), so its
// Return instructions are left untouched.
func (in *inliner) copyInto(src *mir.Function, path map[string]int, prefix string, retBlock mir.BlockID) mir.BlockID {
	rename := make(map[mir.BlockID]mir.BlockID, len(src.Blocks))
	for _, id := range src.BlockIDs() {
		rename[id] = mir.BlockID(fmt.Sprintf("%s%s", prefix, id))
	}

	for _, id := range src.BlockIDs() {
		b := src.Block(id)
		newBlock := &mir.BasicBlock{ID: rename[id], PC: b.PC}

		for _, instr := range b.Instructions {
			switch ins := instr.(type) {
			case mir.Jump:
				newBlock.Instructions = append(newBlock.Instructions, mir.Jump{Target: rename[ins.Target]})
			case mir.CondBranch:
				newBlock.Instructions = append(newBlock.Instructions, mir.CondBranch{
					Cond:        ins.Cond,
					TrueTarget:  rename[ins.TrueTarget],
					FalseTarget: rename[ins.FalseTarget],
				})
			case mir.Return:
				if retBlock == "" {
					// src is the top-level entry function: it has no
					// caller to return into, so Return stays Return.
					newBlock.Instructions = append(newBlock.Instructions, ins)
				} else {
					newBlock.Instructions = append(newBlock.Instructions, mir.Jump{Target: retBlock})
				}
			case mir.Call:
				newBlock.Instructions = append(newBlock.Instructions, in.inlineCall(path, prefix, ins, rename[ins.Return]))
			default:
				newBlock.Instructions = append(newBlock.Instructions, ins)
			}
		}
		in.out.AddBlock(newBlock)
	}
	return rename[src.Entry]
}

// inlineCall decides whether to inline one Call (returning a Jump to the
// callee's renamed entry) or to leave it opaque/stubbed with a guard.
func (in *inliner) inlineCall(path map[string]int, prefix string, ins mir.Call, renamedReturn mir.BlockID) mir.Instruction {
	if ins.Callee == "" || in.ignored[ins.Callee] {
		return mir.Call{Callee: ins.Callee, Indirect: ins.Indirect, Return: renamedReturn}
	}

	callee := in.prog.Functions[ins.Callee]
	depth := path[ins.Callee]
	// A call site only needs the recursion-bound stub if the callee
	// actually participates in a cycle; an acyclic call chain is finite
	// by construction and is always fully inlined regardless of depth.
	cyclic := callee != nil && in.cg.Cycles(ins.Callee)
	if callee == nil || (cyclic && in.recursionLimit > 0 && depth >= in.recursionLimit) {
		guardID := mir.BlockID(fmt.Sprintf("%sguard.%d", prefix, in.fresh))
		in.fresh++
		in.out.AddBlock(&mir.BasicBlock{ID: guardID, Instructions: []mir.Instruction{mir.Jump{Target: renamedReturn}}})
		in.guardPoints = append(in.guardPoints, GuardPoint{
			Block:  guardID,
			Kind:   guardKind(in.guard),
			Reason: fmt.Sprintf("recursion bound reached calling %s", ins.Callee),
		})
		return mir.Jump{Target: guardID}
	}

	newPath := make(map[string]int, len(path)+1)
	for k, v := range path {
		newPath[k] = v
	}
	newPath[ins.Callee] = depth + 1

	childPrefix := fmt.Sprintf("%s%s#%d.", prefix, ins.Callee, in.fresh)
	in.fresh++
	entryID := in.copyInto(callee, newPath, childPrefix, renamedReturn)
	return mir.Jump{Target: entryID}
}
