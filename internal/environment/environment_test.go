package environment

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsMatchSpecVocabulary(t *testing.T) {
	d := Defaults()
	if d.OptimizationLevel != OptFull {
		t.Errorf("OptimizationLevel default = %v, want %v", d.OptimizationLevel, OptFull)
	}
	if d.Solver != SolverYices2 {
		t.Errorf("Solver default = %v, want %v", d.Solver, SolverYices2)
	}
	if d.Analysis.Check != CheckTransient {
		t.Errorf("Check default = %v, want %v", d.Analysis.Check, CheckTransient)
	}
	if !d.Analysis.SpectrePHT {
		t.Errorf("SpectrePHT default = false, want true")
	}
	if d.Architecture.SpeculationWindow != 8 {
		t.Errorf("SpeculationWindow default = %d, want 8", d.Architecture.SpeculationWindow)
	}
}

func TestUnwindForFallsBackToGlobal(t *testing.T) {
	e := Defaults()
	e.Analysis.Unwind = 4
	e.Analysis.UnwindLoop = map[string]int{"loop.0": 10}

	if got := e.UnwindFor("loop.0"); got != 10 {
		t.Errorf("UnwindFor(loop.0) = %d, want 10 (per-loop override)", got)
	}
	if got := e.UnwindFor("loop.1"); got != 4 {
		t.Errorf("UnwindFor(loop.1) = %d, want 4 (global default)", got)
	}
}

func TestDiscoverFileFindsSiblingYAML(t *testing.T) {
	dir := t.TempDir()
	prog := filepath.Join(dir, "leak.masm")
	yamlPath := filepath.Join(dir, "leak.yaml")
	if err := os.WriteFile(prog, []byte("; program"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(yamlPath, []byte("debug: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := DiscoverFile(prog); got != yamlPath {
		t.Errorf("DiscoverFile = %q, want %q", got, yamlPath)
	}
}

func TestDiscoverFileReturnsEmptyWhenMissing(t *testing.T) {
	dir := t.TempDir()
	prog := filepath.Join(dir, "leak.masm")
	if got := DiscoverFile(prog); got != "" {
		t.Errorf("DiscoverFile = %q, want empty", got)
	}
}

func TestLoadFileMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "env.yaml")
	contents := `
optimization: basic
analysis:
  spectre_stl: true
  unwind: 3
policy:
  registers:
    default: low
    high: [rsp]
`
	if err := os.WriteFile(yamlPath, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	env, perrErr := LoadFile(yamlPath)
	if perrErr != nil {
		t.Fatalf("LoadFile failed: %v", perrErr)
	}
	if env.OptimizationLevel != OptBasic {
		t.Errorf("OptimizationLevel = %v, want %v", env.OptimizationLevel, OptBasic)
	}
	if !env.Analysis.SpectreSTL {
		t.Errorf("SpectreSTL = false, want true (set in file)")
	}
	if env.Analysis.Unwind != 3 {
		t.Errorf("Unwind = %d, want 3", env.Analysis.Unwind)
	}
	// Unset fields must retain their defaults.
	if env.Solver != SolverYices2 {
		t.Errorf("Solver = %v, want default %v to survive partial override", env.Solver, SolverYices2)
	}
	if !env.Analysis.SpectrePHT {
		t.Errorf("SpectrePHT = false, want default true to survive partial override")
	}
	if len(env.Policy.Registers.High) != 1 || env.Policy.Registers.High[0] != "rsp" {
		t.Errorf("Policy.Registers.High = %v, want [rsp]", env.Policy.Registers.High)
	}
}

func TestLoadFileRejectsMissingPath(t *testing.T) {
	if _, perrErr := LoadFile("/nonexistent/path.yaml"); perrErr == nil {
		t.Errorf("LoadFile of missing path: want error, got nil")
	}
}

func TestResolvePrecedenceCLIOverridesFile(t *testing.T) {
	base := Defaults()
	base.OptimizationLevel = OptBasic

	opt := OptNone
	entry := "main"
	out := Resolve(base, CLIOverrides{OptimizationLevel: &opt, Entry: &entry})

	if out.OptimizationLevel != OptNone {
		t.Errorf("OptimizationLevel = %v, want CLI override %v", out.OptimizationLevel, OptNone)
	}
	if out.Analysis.ProgramEntry != "main" {
		t.Errorf("ProgramEntry = %q, want %q", out.Analysis.ProgramEntry, "main")
	}
	// Unoverridden fields pass through from base unchanged.
	if out.Solver != base.Solver {
		t.Errorf("Solver = %v, want passthrough %v", out.Solver, base.Solver)
	}
}

func TestResolveDoesNotMutateBase(t *testing.T) {
	base := Defaults()
	opt := OptNone
	_ = Resolve(base, CLIOverrides{OptimizationLevel: &opt})

	if base.OptimizationLevel != OptFull {
		t.Errorf("base.OptimizationLevel mutated to %v, want untouched %v", base.OptimizationLevel, OptFull)
	}
}

func TestResolveNilOverridesLeaveDefaults(t *testing.T) {
	base := Defaults()
	out := Resolve(base, CLIOverrides{})

	if out.OptimizationLevel != base.OptimizationLevel {
		t.Errorf("OptimizationLevel changed with no CLI overrides")
	}
	if out.Analysis.Check != base.Analysis.Check {
		t.Errorf("Check changed with no CLI overrides")
	}
}

func TestBuildPolicyRejectsUnknownRegister(t *testing.T) {
	e := Defaults()
	e.Policy.Registers.High = []string{"ghost"}
	known := map[string]bool{"rax": true, "rbx": true}

	if _, perrErr := e.BuildPolicy(known); perrErr == nil {
		t.Errorf("BuildPolicy with unknown register: want error, got nil")
	}
}

func TestBuildPolicyAppliesOverrides(t *testing.T) {
	e := Defaults()
	e.Policy.Registers.Default = "low"
	e.Policy.Registers.High = []string{"rax"}
	e.Policy.Memory.Default = "high"
	e.Policy.Memory.Low = []MemoryRangeYAML{{Start: 0, End: 16}}
	known := map[string]bool{"rax": true}

	p, perrErr := e.BuildPolicy(known)
	if perrErr != nil {
		t.Fatalf("BuildPolicy failed: %v", perrErr)
	}
	if lvl := p.Register("rax"); lvl.String() != "high" {
		t.Errorf("Register(rax) = %v, want high", lvl)
	}
	if lvl := p.Register("rbx"); lvl.String() != "low" {
		t.Errorf("Register(rbx) = %v, want low (default)", lvl)
	}
	if lvl := p.Memory(4); lvl.String() != "low" {
		t.Errorf("Memory(4) = %v, want low (carve-out)", lvl)
	}
	if lvl := p.Memory(100); lvl.String() != "high" {
		t.Errorf("Memory(100) = %v, want high (default)", lvl)
	}
}
