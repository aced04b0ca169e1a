package cex

import (
	"strings"
	"testing"

	"github.com/relentless-labs/specbmc/internal/lir"
	"github.com/relentless-labs/specbmc/internal/smt"
	"github.com/relentless-labs/specbmc/internal/solver"
)

func TestReconstructRecoversInitialRegistersAndDivergence(t *testing.T) {
	prog := lir.NewProgram()
	prog.Assign("init.secret.0", lir.NondetRef{Class: "init-secret", S: lir.BitVec(64)})
	prog.Assign("b.init.secret.0", lir.NondetRef{Class: "b#init-secret", S: lir.BitVec(64)})

	script, err := smt.Encode(prog)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	result := &solver.Result{
		Outcome: solver.Sat,
		Model: map[string]solver.Value{
			"init.secret.0":   {BitVec: 5},
			"b.init.secret.0": {BitVec: 9},
			script.NondetSymbol["init-secret"]:   {BitVec: 5},
			script.NondetSymbol["b#init-secret"]: {BitVec: 9},
		},
	}

	pairs := []lir.ObservationPair{
		{
			Index: 0,
			A: lir.Observe{Expr: lir.VarRef{Name: "init.secret.0", S: lir.BitVec(64)}, Channel: "cache", Origin: lir.OriginTransient},
			B: lir.Observe{Expr: lir.VarRef{Name: "b.init.secret.0", S: lir.BitVec(64)}, Channel: "cache", Origin: lir.OriginTransient},
		},
	}

	trace := Reconstruct(script, result, pairs)
	if got := trace.InitialA.Registers["secret"]; got != 5 {
		t.Errorf("InitialA.Registers[secret] = %d, want 5", got)
	}
	if got := trace.InitialB.Registers["secret"]; got != 9 {
		t.Errorf("InitialB.Registers[secret] = %d, want 9", got)
	}
	if trace.Divergence == nil {
		t.Fatal("expected a reconstructed divergence")
	}
	if trace.Divergence.A != 5 || trace.Divergence.B != 9 {
		t.Errorf("divergence values = (%d, %d), want (5, 9)", trace.Divergence.A, trace.Divergence.B)
	}

	dot := trace.DOT()
	if !strings.HasPrefix(dot, "digraph Counterexample {") {
		t.Errorf("DOT output does not start with the expected digraph header: %q", dot)
	}
	if !strings.Contains(dot, "divergence") {
		t.Errorf("DOT output missing divergence node: %s", dot)
	}
}

func TestReconstructNoDivergenceWhenModelAgrees(t *testing.T) {
	script := &smt.Script{NondetSymbol: map[string]string{}}
	result := &solver.Result{Outcome: solver.Sat, Model: map[string]solver.Value{
		"x": {BitVec: 3},
		"y": {BitVec: 3},
	}}
	pairs := []lir.ObservationPair{
		{Index: 0, A: lir.Observe{Expr: lir.VarRef{Name: "x", S: lir.BitVec(64)}, Channel: "pc"}, B: lir.Observe{Expr: lir.VarRef{Name: "y", S: lir.BitVec(64)}, Channel: "pc"}},
	}
	trace := Reconstruct(script, result, pairs)
	if trace.Divergence != nil {
		t.Errorf("expected no divergence, got %+v", trace.Divergence)
	}
}
