package cfg

import (
	"testing"

	"github.com/relentless-labs/specbmc/internal/environment"
	"github.com/relentless-labs/specbmc/internal/mir"
)

// buildLoopFunction builds:
//
//	entry -> header -> body -> header (back edge)
//	header -> exit (when cond false)
func buildLoopFunction() *mir.Function {
	fn := mir.NewFunction("loopy", "entry")
	cond := mir.Register{Name: "i", W: mir.Width64}
	fn.AddBlock(&mir.BasicBlock{ID: "entry", Instructions: []mir.Instruction{mir.Jump{Target: "header"}}})
	fn.AddBlock(&mir.BasicBlock{ID: "header", Instructions: []mir.Instruction{
		mir.CondBranch{Cond: cond, TrueTarget: "body", FalseTarget: "exit"},
	}})
	fn.AddBlock(&mir.BasicBlock{ID: "body", Instructions: []mir.Instruction{
		mir.Assign{Dest: cond, Expr: mir.BinaryExpr{Op: mir.OpSub, Left: cond, Right: mir.Const{Value: 1, W: mir.Width64}, ResultWidth: mir.Width64}},
		mir.Jump{Target: "header"},
	}})
	fn.AddBlock(&mir.BasicBlock{ID: "exit", Instructions: []mir.Instruction{mir.Return{}}})
	return fn
}

func TestBuildGraphSuccPred(t *testing.T) {
	fn := buildLoopFunction()
	g := Build(fn)

	if got := g.Succ["entry"]; len(got) != 1 || got[0] != "header" {
		t.Errorf("Succ[entry] = %v, want [header]", got)
	}
	if got := g.Pred["header"]; len(got) != 2 {
		t.Errorf("Pred[header] = %v, want 2 preds (entry, body)", got)
	}
}

func TestReachableCoversWholeLoop(t *testing.T) {
	fn := buildLoopFunction()
	g := Build(fn)
	r := Reachable(g, "entry")
	for _, id := range []mir.BlockID{"entry", "header", "body", "exit"} {
		if !r.Has(id) {
			t.Errorf("Reachable missing block %q", id)
		}
	}
}

func TestNaturalLoopsFindsTheLoop(t *testing.T) {
	fn := buildLoopFunction()
	g := Build(fn)
	loops := NaturalLoops(fn, g)
	if len(loops) != 1 {
		t.Fatalf("NaturalLoops found %d loops, want 1", len(loops))
	}
	loop := loops[0]
	if loop.Header != "header" {
		t.Errorf("Header = %q, want header", loop.Header)
	}
	if !loop.Body.Has("body") || !loop.Body.Has("header") {
		t.Errorf("Body = %v, want to include header and body", loop.Body)
	}
	if loop.Body.Has("entry") || loop.Body.Has("exit") {
		t.Errorf("Body = %v, should not include entry/exit", loop.Body)
	}
}

func TestUnwindDuplicatesBodyAndGuards(t *testing.T) {
	fn := buildLoopFunction()
	g := Build(fn)
	loops := NaturalLoops(fn, g)

	before := len(fn.Blocks)
	res := Unwind(fn, loops, func(string) int { return 3 }, environment.GuardAssumption)

	if len(fn.Blocks) <= before {
		t.Errorf("Unwind did not add blocks: before=%d after=%d", before, len(fn.Blocks))
	}
	if len(res.GuardPoints) != 1 {
		t.Fatalf("GuardPoints = %d, want 1", len(res.GuardPoints))
	}
	if res.GuardPoints[0].Kind != GuardPointAssumption {
		t.Errorf("GuardPoint.Kind = %v, want GuardPointAssumption", res.GuardPoints[0].Kind)
	}

	guardBlock := fn.Block(res.GuardPoints[0].Block)
	if guardBlock == nil {
		t.Fatalf("guard block %q not found in function", res.GuardPoints[0].Block)
	}
}

func buildCallProgram() *mir.Program {
	prog := mir.NewProgram("main")

	main := mir.NewFunction("main", "start")
	main.AddBlock(&mir.BasicBlock{ID: "start", Instructions: []mir.Instruction{
		mir.Call{Callee: "helper", Return: "after"},
	}})
	main.AddBlock(&mir.BasicBlock{ID: "after", Instructions: []mir.Instruction{mir.Return{}}})
	prog.AddFunction(main)

	helper := mir.NewFunction("helper", "h0")
	helper.AddBlock(&mir.BasicBlock{ID: "h0", Instructions: []mir.Instruction{mir.Return{}}})
	prog.AddFunction(helper)

	return prog
}

func TestBuildCallGraph(t *testing.T) {
	prog := buildCallProgram()
	cg := BuildCallGraph(prog)

	if got := cg.Edges["main"]; len(got) != 1 || got[0] != "helper" {
		t.Errorf("Edges[main] = %v, want [helper]", got)
	}
	if cg.Cycles("main") {
		t.Errorf("Cycles(main) = true, want false (no recursion)")
	}
}

func TestCallGraphDetectsRecursion(t *testing.T) {
	prog := mir.NewProgram("f")
	f := mir.NewFunction("f", "b0")
	f.AddBlock(&mir.BasicBlock{ID: "b0", Instructions: []mir.Instruction{mir.Call{Callee: "f", Return: "b1"}}})
	f.AddBlock(&mir.BasicBlock{ID: "b1", Instructions: []mir.Instruction{mir.Return{}}})
	prog.AddFunction(f)

	cg := BuildCallGraph(prog)
	if !cg.Cycles("f") {
		t.Errorf("Cycles(f) = false, want true (direct recursion)")
	}
}

func TestInlineFlattensDirectCall(t *testing.T) {
	prog := buildCallProgram()
	res, err := Inline(prog, "main", 4, environment.GuardAssumption, nil)
	if err != nil {
		t.Fatalf("Inline failed: %v", err)
	}
	if len(res.GuardPoints) != 0 {
		t.Errorf("GuardPoints = %v, want none (no recursion)", res.GuardPoints)
	}
	if len(res.Function.Blocks) < 3 {
		t.Errorf("inlined function has %d blocks, want at least 3 (start + inlined helper + after)", len(res.Function.Blocks))
	}
	// No Call instructions should remain: helper was fully inlined.
	for _, id := range res.Function.BlockIDs() {
		for _, instr := range res.Function.Block(id).Instructions {
			if call, ok := instr.(mir.Call); ok {
				t.Errorf("unexpected un-inlined call to %q in block %q", call.Callee, id)
			}
		}
	}
}

func TestInlineStubsRecursionAtBound(t *testing.T) {
	prog := mir.NewProgram("f")
	f := mir.NewFunction("f", "b0")
	f.AddBlock(&mir.BasicBlock{ID: "b0", Instructions: []mir.Instruction{mir.Call{Callee: "f", Return: "b1"}}})
	f.AddBlock(&mir.BasicBlock{ID: "b1", Instructions: []mir.Instruction{mir.Return{}}})
	prog.AddFunction(f)

	res, err := Inline(prog, "f", 2, environment.GuardAssertion, nil)
	if err != nil {
		t.Fatalf("Inline failed: %v", err)
	}
	if len(res.GuardPoints) == 0 {
		t.Fatalf("GuardPoints empty, want at least one recursion-bound stub")
	}
	if res.GuardPoints[0].Kind != GuardPointAssertion {
		t.Errorf("GuardPoint.Kind = %v, want GuardPointAssertion", res.GuardPoints[0].Kind)
	}
}

func TestComputeLiveVariables(t *testing.T) {
	fn := buildLoopFunction()
	g := Build(fn)
	lv := ComputeLiveVariables(fn, g)

	if !lv.LiveIn["header"].has("i") {
		t.Errorf("LiveIn[header] = %v, want to include i", lv.LiveIn["header"])
	}
	if lv.LiveOut["exit"] == nil || len(lv.LiveOut["exit"]) != 0 {
		t.Errorf("LiveOut[exit] = %v, want empty (Return has no successors)", lv.LiveOut["exit"])
	}
}

func TestBuildInitLayoutPinsConfiguredValues(t *testing.T) {
	env := environment.Defaults()
	env.Setup.Registers = map[string]uint64{"rax": 42}
	layout := BuildInitLayout(env, "rsp")

	expr := layout.InitExpr("rax", mir.Width64)
	c, ok := expr.(mir.Const)
	if !ok || c.Value != 42 {
		t.Errorf("InitExpr(rax) = %v, want Const{42}", expr)
	}

	free := layout.InitExpr("rbx", mir.Width64)
	if _, ok := free.(mir.NondetExpr); !ok {
		t.Errorf("InitExpr(rbx) = %v, want NondetExpr (unpinned)", free)
	}
}
