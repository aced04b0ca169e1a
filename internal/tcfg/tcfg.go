// Package tcfg builds the transient control-flow graph of spec.md §4.2:
// it augments a function's CFG with explicit predicted/mis-speculated
// edges at every conditional branch, a bounded transient instruction
// window per branch (and, when Spectre-STL is enabled, per load), and
// BTB-modeled indirect-call targets. internal/lir consumes a *TCFG, never
// a raw *mir.Function, once loop unwinding and inlining have already
// flattened control flow (internal/cfg).
package tcfg

import (
	"math"

	"github.com/relentless-labs/specbmc/internal/cfg"
	"github.com/relentless-labs/specbmc/internal/environment"
	"github.com/relentless-labs/specbmc/internal/mir"
)

// EdgeKind discriminates the edges spec.md §3 TCFG adds beyond the CFG.
type EdgeKind int

const (
	// EdgeArchitectural is committed to architectural state once its
	// Guard resolves true.
	EdgeArchitectural EdgeKind = iota
	// EdgeTransient is explored speculatively; its writes reach only
	// microarchitectural state, never architectural state.
	EdgeTransient
	// EdgeRollback re-enters the architectural path once a transient
	// walk exceeds the speculation window or hits spbarr.
	EdgeRollback
	// EdgeSTLBypass models a load transiently forwarded a stale,
	// in-flight store value at the same address (Spectre-STL).
	EdgeSTLBypass
)

// Edge is one TCFG edge.
type Edge struct {
	From, To mir.BlockID
	Kind     EdgeKind
	Guard    mir.Expr // nil for an unconditional edge (Jump, Call-return)
	Depth    int      // speculation depth this edge operates at; 0 for architectural
}

// BranchPoint records, for one conditional branch, the architectural and
// transient guard/target pairing. Architectural commit always follows
// the branch's real condition (architecture cannot lie about itself);
// PredictorStrategy only labels which target the predictor is modeled as
// guessing. No later stage reads that label: it enters neither the
// observation model nor any dump, nor which edge is sound to commit.
type BranchPoint struct {
	Block     mir.BlockID
	Cond      mir.Expr
	Predicted mir.BlockID // the target the predictor is modeled as guessing
	Window    []WindowStep
}

// WindowStep is one instruction executed along a transient path.
type WindowStep struct {
	Block    mir.BlockID
	Instr    mir.Instruction
	Depth    int
	Rollback bool // true on the step that triggered rollback (depth>W or spbarr)
}

// STLPoint records one Spectre-STL transient bypass: a load transiently
// forwarded a nondeterministic stale value instead of reading memory.
type STLPoint struct {
	Block          mir.BlockID
	Load           mir.Load
	ForwardedValue mir.Expr
}

// Indirect records a BTB-modeled indirect call/branch: the transient
// target is attacker-controlled, constrained only by the BTB abstraction
// (spec.md §4.2 "constrained only by the BTB's declared abstraction").
type Indirect struct {
	Block  mir.BlockID
	Target mir.Expr // mir.NondetExpr{Class:"btb-target"}
}

// TCFG is the transient-augmented control-flow graph of one (already
// inlined and unwound) function.
type TCFG struct {
	Function     *mir.Function
	Window       int
	NestingBound int
	Edges        []Edge
	BranchPoints []BranchPoint
	STLPoints    []STLPoint
	Indirects    []Indirect
}

// Build constructs the TCFG for fn under env's architecture/analysis
// configuration. g is fn's plain successor/predecessor graph (internal/cfg.Build).
func Build(fn *mir.Function, g *cfg.Graph, env *environment.Environment) *TCFG {
	t := &TCFG{
		Function:     fn,
		Window:       env.Architecture.SpeculationWindow,
		NestingBound: env.Architecture.SpeculationWindow, // Open Question (i): default = W
	}

	for _, id := range fn.BlockIDs() {
		b := fn.Block(id)
		term := b.Terminator()
		switch ins := term.(type) {
		case mir.CondBranch:
			t.addBranch(fn, id, ins, env)
		case mir.Call:
			if ins.Indirect != nil {
				t.Indirects = append(t.Indirects, Indirect{
					Block:  id,
					Target: mir.NondetExpr{Class: "btb-target", W: mir.Width64},
				})
			}
		}

		if env.Analysis.SpectreSTL {
			t.addSTLPoints(id, b)
		}
	}

	return t
}

func notExpr(e mir.Expr) mir.Expr {
	return mir.UnaryExpr{Op: mir.OpBoolNot, Arg: e, ResultWidth: 1}
}

func (t *TCFG) addBranch(fn *mir.Function, block mir.BlockID, ins mir.CondBranch, env *environment.Environment) {
	// Architecture always commits along the real condition: these are
	// the only two edges that ever write architectural state.
	t.Edges = append(t.Edges, Edge{From: block, To: ins.TrueTarget, Kind: EdgeArchitectural, Guard: ins.Cond})
	t.Edges = append(t.Edges, Edge{From: block, To: ins.FalseTarget, Kind: EdgeArchitectural, Guard: notExpr(ins.Cond)})

	// Each direction also spawns a transient walk down the opposite
	// target, guarded by the complementary condition (mis-speculation).
	trueTransient := t.walkWindow(fn, ins.TrueTarget, notExpr(ins.Cond), 0, env)
	falseTransient := t.walkWindow(fn, ins.FalseTarget, ins.Cond, 0, env)

	t.Edges = append(t.Edges,
		Edge{From: block, To: ins.TrueTarget, Kind: EdgeTransient, Guard: notExpr(ins.Cond), Depth: 1},
		Edge{From: block, To: ins.FalseTarget, Kind: EdgeTransient, Guard: ins.Cond, Depth: 1},
	)

	predicted := ins.TrueTarget
	if env.Analysis.PredictorStrategy == environment.PredictorInvertCondition {
		predicted = ins.FalseTarget
	}

	t.BranchPoints = append(t.BranchPoints, BranchPoint{
		Block: block, Cond: ins.Cond, Predicted: predicted,
		Window: append(trueTransient, falseTransient...),
	})
}

// walkWindow follows architectural successors from start for up to
// min(t.Window, t.NestingBound) instructions, stopping at an spbarr or
// the bound — whichever comes first — and recording a rollback edge at
// the stopping point. The walk also ends at a block without exactly one
// successor: a further conditional branch inside the window is not
// speculated again within this walk, so nested mis-speculation depths
// are not composed. Under --observe full, spec.md
// §4.4 drops the depth bound entirely ("transient observations are
// visible at any depth, no window gating"): the walk then stops only at
// an spbarr or the end of the (already finite, since fn has been
// inlined and unwound) block chain.
func (t *TCFG) walkWindow(fn *mir.Function, start mir.BlockID, guard mir.Expr, startDepth int, env *environment.Environment) []WindowStep {
	var steps []WindowStep
	depth := startDepth
	block := start
	bound := t.Window
	if t.NestingBound < bound {
		bound = t.NestingBound
	}
	if env.Analysis.Observe == environment.ObserveFull {
		bound = math.MaxInt
	}

	for depth < bound {
		b := fn.Block(block)
		if b == nil {
			break
		}
		stopped := false
		for _, instr := range b.Instructions {
			depth++
			step := WindowStep{Block: block, Instr: instr, Depth: depth}
			if _, isBarrier := instr.(mir.SpecBarrier); isBarrier {
				step.Rollback = true
				steps = append(steps, step)
				stopped = true
				break
			}
			if depth >= bound {
				step.Rollback = true
				steps = append(steps, step)
				stopped = true
				break
			}
			steps = append(steps, step)
		}
		if stopped {
			break
		}

		succs := b.Successors()
		if len(succs) != 1 {
			// The walk ends at a further conditional branch (or a block
			// with no successor). That branch's own transient walks are
			// built separately, from depth 0, when Build's top-level loop
			// reaches its block.
			break
		}
		block = succs[0]
	}

	t.Edges = append(t.Edges, Edge{From: start, To: block, Kind: EdgeRollback, Guard: guard, Depth: depth})
	return steps
}

func (t *TCFG) addSTLPoints(block mir.BlockID, b *mir.BasicBlock) {
	for _, instr := range b.Instructions {
		load, ok := instr.(mir.Load)
		if !ok {
			continue
		}
		// Only a load has a stale in-flight store to be forwarded from;
		// mir.Effects is still the source of truth for "this instruction
		// touches the cache/store-buffer at all" — a Store's own
		// EffectCacheFetch is not itself STL-eligible (spec.md §4.2).
		if effs := mir.Effects(load, b.PC); len(effs) == 0 {
			continue
		}
		t.STLPoints = append(t.STLPoints, STLPoint{
			Block: block,
			Load:  load,
			ForwardedValue: mir.NondetExpr{
				Class: "stl-forward",
				W:     load.AccessWidth,
			},
		})
	}
}
