package lir

import (
	"testing"

	"github.com/relentless-labs/specbmc/internal/cfg"
	"github.com/relentless-labs/specbmc/internal/environment"
	"github.com/relentless-labs/specbmc/internal/mir"
	"github.com/relentless-labs/specbmc/internal/policy"
	"github.com/relentless-labs/specbmc/internal/tcfg"
)

// buildBranchFunction mirrors internal/tcfg's fixture:
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

func buildFixture(t *testing.T) (*mir.Function, *cfg.Graph, *tcfg.TCFG, *environment.Environment, *policy.Policy, *cfg.InitLayout) {
	t.Helper()
	fn := buildBranchFunction()
	g := cfg.Build(fn)
	env := environment.Defaults()
	env.Architecture.SpeculationWindow = 4
	tc := tcfg.Build(fn, g, env)

	pol := policy.New(policy.High, policy.Low)
	pol.SetRegister("tmp", policy.Low)
	pol.SetRegister("x", policy.Low)

	layout := cfg.BuildInitLayout(env, "rsp")
	return fn, g, tc, env, pol, layout
}

func TestLowerEveryVarAssignedExactlyOnce(t *testing.T) {
	fn, g, tc, env, pol, layout := buildFixture(t)
	_ = pol
	prog, err := Lower(fn, g, tc, env, nil, layout, nil)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}

	seen := map[Var]bool{}
	for _, node := range prog.Nodes {
		a, ok := node.(Assign)
		if !ok {
			continue
		}
		if seen[a.Dest] {
			t.Errorf("var %s assigned more than once", a.Dest)
		}
		seen[a.Dest] = true
	}
	if len(seen) == 0 {
		t.Fatal("expected at least one Assign node")
	}
}

func TestLowerEmitsBranchObservation(t *testing.T) {
	fn, g, tc, env, _, layout := buildFixture(t)
	prog, err := Lower(fn, g, tc, env, nil, layout, nil)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	var phtCount int
	for _, o := range prog.Observes() {
		if o.Channel == "pht" {
			phtCount++
		}
	}
	if phtCount != 1 {
		t.Errorf("pht observations = %d, want 1 (one conditional branch)", phtCount)
	}
}

func TestLowerRejectsCyclicFunction(t *testing.T) {
	fn := mir.NewFunction("loopy", "entry")
	fn.AddBlock(&mir.BasicBlock{ID: "entry", Instructions: []mir.Instruction{
		mir.Jump{Target: "entry"},
	}})
	g := cfg.Build(fn)
	env := environment.Defaults()
	tc := tcfg.Build(fn, g, env)
	layout := cfg.BuildInitLayout(env, "rsp")

	if _, err := Lower(fn, g, tc, env, nil, layout, nil); err == nil {
		t.Fatal("expected an error lowering a function with a remaining cycle")
	}
}

func TestComposeSharesLowRegistersAndSeparatesHigh(t *testing.T) {
	fn, g, tc, env, pol, layout := buildFixture(t)
	prog, err := Lower(fn, g, tc, env, pol, layout, nil)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}

	registers := collectRegisters(fn)
	composed, _ := Compose(prog, registers, pol, env.Analysis.Check)

	// "secret" is high by default (pol's default register level), so its
	// init var must appear in both an unprefixed and a "b."-prefixed
	// form; "tmp"/"x" are low and explicitly shared, so no "b."-prefixed
	// form of their init var should exist.
	var sawPlainSecretInit, sawBSecretInit, sawBXInit bool
	for _, node := range composed.Nodes {
		a, ok := node.(Assign)
		if !ok {
			continue
		}
		switch string(a.Dest) {
		case "init.secret.0":
			sawPlainSecretInit = true
		case "b.init.secret.0":
			sawBSecretInit = true
		case "b.init.x.0":
			sawBXInit = true
		}
	}
	if !sawPlainSecretInit || !sawBSecretInit {
		t.Errorf("expected both copies of the high register 'secret' to be declared independently")
	}
	if sawBXInit {
		t.Errorf("low register 'x' must be shared, not re-declared under a 'b.' prefix")
	}
}

func TestComposePairsObservationsWithAssertions(t *testing.T) {
	fn, g, tc, env, pol, layout := buildFixture(t)
	prog, err := Lower(fn, g, tc, env, pol, layout, nil)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	registers := collectRegisters(fn)
	// CheckAll so this test exercises pairing every observation
	// regardless of origin; the arch-vs-transient filtering itself is
	// covered by TestComposeFiltersObservationsByCheck below.
	composed, pairs := Compose(prog, registers, pol, environment.CheckAll)

	wantAsserts := len(prog.Observes())
	if got := len(composed.Asserts()); got != wantAsserts {
		t.Errorf("composed asserts = %d, want %d (one per paired observation)", got, wantAsserts)
	}
	if got := len(pairs); got != wantAsserts {
		t.Errorf("returned pairs = %d, want %d", got, wantAsserts)
	}
	if got := len(composed.Observes()); got != 2*len(prog.Observes()) {
		t.Errorf("composed observes = %d, want %d (both copies)", got, 2*len(prog.Observes()))
	}
}

func TestComposeFiltersObservationsByCheck(t *testing.T) {
	fn, g, tc, env, pol, layout := buildFixture(t)
	prog, err := Lower(fn, g, tc, env, pol, layout, nil)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	registers := collectRegisters(fn)

	var archCount, transientCount int
	for _, o := range prog.Observes() {
		if o.Origin == OriginArchitectural {
			archCount++
		} else {
			transientCount++
		}
	}

	_, normalPairs := Compose(prog, registers, pol, environment.CheckNormal)
	if len(normalPairs) != archCount {
		t.Errorf("CheckNormal pairs = %d, want %d architectural observations", len(normalPairs), archCount)
	}
	_, transientPairs := Compose(prog, registers, pol, environment.CheckTransient)
	if len(transientPairs) != transientCount {
		t.Errorf("CheckTransient pairs = %d, want %d transient observations", len(transientPairs), transientCount)
	}
	_, allPairs := Compose(prog, registers, pol, environment.CheckAll)
	if len(allPairs) != len(prog.Observes()) {
		t.Errorf("CheckAll pairs = %d, want %d", len(allPairs), len(prog.Observes()))
	}
}
