package tcfg

import (
	"testing"

	"github.com/relentless-labs/specbmc/internal/cfg"
	"github.com/relentless-labs/specbmc/internal/environment"
	"github.com/relentless-labs/specbmc/internal/mir"
)

// buildBranchFunction builds:
//
//	entry: beqz secret, L1/L2
//	L1: x<-21; jmp join
//	L2: x<-42; jmp join
//	join: spbarr; load tmp, [x]; ret
func buildBranchFunction() *mir.Function {
	secret := mir.Register{Name: "secret", W: 1}
	x := mir.Register{Name: "x", W: mir.Width64}
	tmp := mir.Register{Name: "tmp", W: mir.Width64}

	fn := mir.NewFunction("leak", "entry")
	fn.AddBlock(&mir.BasicBlock{ID: "entry", Instructions: []mir.Instruction{
		mir.CondBranch{Cond: secret, TrueTarget: "L1", FalseTarget: "L2"},
	}})
	fn.AddBlock(&mir.BasicBlock{ID: "L1", Instructions: []mir.Instruction{
		mir.Assign{Dest: x, Expr: mir.Const{Value: 21, W: mir.Width64}},
		mir.Jump{Target: "join"},
	}})
	fn.AddBlock(&mir.BasicBlock{ID: "L2", Instructions: []mir.Instruction{
		mir.Assign{Dest: x, Expr: mir.Const{Value: 42, W: mir.Width64}},
		mir.Jump{Target: "join"},
	}})
	fn.AddBlock(&mir.BasicBlock{ID: "join", Instructions: []mir.Instruction{
		mir.SpecBarrier{},
		mir.Load{Dest: tmp, Addr: x, AccessWidth: mir.Width64},
		mir.Return{},
	}})
	return fn
}

func TestBuildAddsArchitecturalEdgesForBothDirections(t *testing.T) {
	fn := buildBranchFunction()
	g := cfg.Build(fn)
	env := environment.Defaults()
	env.Architecture.SpeculationWindow = 4

	tc := Build(fn, g, env)

	var archCount int
	for _, e := range tc.Edges {
		if e.Kind == EdgeArchitectural {
			archCount++
		}
	}
	if archCount != 2 {
		t.Errorf("architectural edges = %d, want 2", archCount)
	}
}

func TestBuildRecordsOneBranchPoint(t *testing.T) {
	fn := buildBranchFunction()
	g := cfg.Build(fn)
	env := environment.Defaults()

	tc := Build(fn, g, env)
	if len(tc.BranchPoints) != 1 {
		t.Fatalf("BranchPoints = %d, want 1", len(tc.BranchPoints))
	}
	if tc.BranchPoints[0].Block != "entry" {
		t.Errorf("BranchPoint.Block = %q, want entry", tc.BranchPoints[0].Block)
	}
}

func TestTransientWindowStopsAtSpecBarrier(t *testing.T) {
	fn := buildBranchFunction()
	g := cfg.Build(fn)
	env := environment.Defaults()
	env.Architecture.SpeculationWindow = 8

	tc := Build(fn, g, env)
	bp := tc.BranchPoints[0]

	foundBarrierStop := false
	for _, step := range bp.Window {
		if _, ok := step.Instr.(mir.SpecBarrier); ok {
			if !step.Rollback {
				t.Errorf("spbarr step should set Rollback=true")
			}
			foundBarrierStop = true
		}
	}
	if !foundBarrierStop {
		t.Errorf("transient window never reached the spbarr in join")
	}
}

func TestPredictorStrategyAffectsPredictedLabel(t *testing.T) {
	fn := buildBranchFunction()
	g := cfg.Build(fn)

	envChoose := environment.Defaults()
	envChoose.Analysis.PredictorStrategy = environment.PredictorChoosePath
	tcChoose := Build(fn, g, envChoose)
	if tcChoose.BranchPoints[0].Predicted != "L1" {
		t.Errorf("choose_path Predicted = %q, want L1", tcChoose.BranchPoints[0].Predicted)
	}

	envInvert := environment.Defaults()
	envInvert.Analysis.PredictorStrategy = environment.PredictorInvertCondition
	tcInvert := Build(fn, g, envInvert)
	if tcInvert.BranchPoints[0].Predicted != "L2" {
		t.Errorf("invert_condition Predicted = %q, want L2", tcInvert.BranchPoints[0].Predicted)
	}
}

func TestSTLPointsRecordedWhenEnabled(t *testing.T) {
	fn := buildBranchFunction()
	g := cfg.Build(fn)
	env := environment.Defaults()
	env.Analysis.SpectreSTL = true

	tc := Build(fn, g, env)
	if len(tc.STLPoints) != 1 {
		t.Fatalf("STLPoints = %d, want 1 (the load in join)", len(tc.STLPoints))
	}
	if tc.STLPoints[0].Block != "join" {
		t.Errorf("STLPoint.Block = %q, want join", tc.STLPoints[0].Block)
	}
}

func TestSTLPointsEmptyWhenDisabled(t *testing.T) {
	fn := buildBranchFunction()
	g := cfg.Build(fn)
	env := environment.Defaults()
	env.Analysis.SpectreSTL = false

	tc := Build(fn, g, env)
	if len(tc.STLPoints) != 0 {
		t.Errorf("STLPoints = %d, want 0 when spectre_stl disabled", len(tc.STLPoints))
	}
}

func TestIndirectCallRecordsBTBTarget(t *testing.T) {
	fn := mir.NewFunction("caller", "b0")
	fn.AddBlock(&mir.BasicBlock{ID: "b0", Instructions: []mir.Instruction{
		mir.Call{Indirect: mir.Register{Name: "fnptr", W: mir.Width64}, Return: "b1"},
	}})
	fn.AddBlock(&mir.BasicBlock{ID: "b1", Instructions: []mir.Instruction{mir.Return{}}})

	g := cfg.Build(fn)
	env := environment.Defaults()
	tc := Build(fn, g, env)

	if len(tc.Indirects) != 1 {
		t.Fatalf("Indirects = %d, want 1", len(tc.Indirects))
	}
	nondet, ok := tc.Indirects[0].Target.(mir.NondetExpr)
	if !ok || nondet.Class != "btb-target" {
		t.Errorf("Indirects[0].Target = %v, want NondetExpr{btb-target}", tc.Indirects[0].Target)
	}
}
