// Package environment loads and resolves the pipeline configuration of
// spec.md §6: CLI flags, an auto-discovered or explicit YAML environment
// file, and built-in defaults, merged with CLI > env file > defaults
// precedence. The result is an immutable Environment handed by reference
// to every pipeline stage (spec.md §9 "Global state").
package environment

// Check selects which executions the pipeline reports leaks for.
type Check string

const (
	CheckAll       Check = "all"
	CheckNormal    Check = "normal"
	CheckTransient Check = "transient"
)

// ObserveMode selects where observe() nodes are inserted (spec.md §4.4).
type ObserveMode string

const (
	ObserveSequential ObserveMode = "sequential"
	ObserveParallel   ObserveMode = "parallel"
	ObserveFull       ObserveMode = "full"
	ObserveTrace      ObserveMode = "trace"
)

// ObservationModel selects which microarchitectural components are
// observable (spec.md §3 "Observation channels").
type ObservationModel string

const (
	ModelComponents ObservationModel = "components"
	ModelPC         ObservationModel = "pc"
)

// OptLevel selects the LIR optimizer aggressiveness (spec.md §4.5).
type OptLevel string

const (
	OptNone  OptLevel = "none"
	OptBasic OptLevel = "basic"
	OptFull  OptLevel = "full"
)

// PredictorStrategy names the branch-predictor abstraction (spec.md
// §4.2). It does not change the architectural successor: commit follows
// the branch condition under either strategy, and internal/tcfg explores
// both mis-speculated directions either way. The strategy only chooses
// which target internal/tcfg records as BranchPoint.Predicted
// (choose_path: the true target, invert_condition: the false target),
// a label no later stage reads.
type PredictorStrategy string

const (
	PredictorChoosePath      PredictorStrategy = "choose_path"
	PredictorInvertCondition PredictorStrategy = "invert_condition"
)

// SolverName selects the external SMT solver binary (spec.md §4.7).
type SolverName string

const (
	SolverZ3     SolverName = "z3"
	SolverCVC4   SolverName = "cvc4"
	SolverYices2 SolverName = "yices2"
)

// UnwindingGuard selects how the unwound loop/inlining tail is guarded
// (spec.md §4.1, §GLOSSARY).
type UnwindingGuard string

const (
	GuardAssumption UnwindingGuard = "assumption"
	GuardAssertion  UnwindingGuard = "assertion"
)

// Analysis mirrors the YAML `analysis.*` section (spec.md §6).
type Analysis struct {
	SpectrePHT          bool              `yaml:"spectre_pht"`
	SpectreSTL          bool              `yaml:"spectre_stl"`
	Check               Check             `yaml:"check"`
	PredictorStrategy   PredictorStrategy `yaml:"predictor_strategy"`
	Unwind              int               `yaml:"unwind"`
	UnwindLoop          map[string]int    `yaml:"unwind_loop"`
	UnwindingGuard      UnwindingGuard    `yaml:"unwinding_guard"`
	RecursionLimit      int               `yaml:"recursion_limit"`
	StartWithEmptyCache bool              `yaml:"start_with_empty_cache"`
	Observe             ObserveMode       `yaml:"observe"`
	Model               ObservationModel  `yaml:"model"`
	ProgramEntry        string            `yaml:"program_entry"`
	InlineIgnore        []string          `yaml:"inline_ignore"`
}

// Architecture mirrors the YAML `architecture.*` section.
type Architecture struct {
	Cache             bool `yaml:"cache"`
	BTB               bool `yaml:"btb"`
	PHT               bool `yaml:"pht"`
	SpeculationWindow int  `yaml:"speculation_window"`
}

// RegisterPolicy mirrors the YAML `policy.registers` section.
type RegisterPolicy struct {
	Default string   `yaml:"default"`
	Low     []string `yaml:"low"`
	High    []string `yaml:"high"`
}

// MemoryRangeYAML is one half-open address range override.
type MemoryRangeYAML struct {
	Start uint64 `yaml:"start"`
	End   uint64 `yaml:"end"`
}

// MemoryPolicy mirrors the YAML `policy.memory` section.
type MemoryPolicy struct {
	Default string            `yaml:"default"`
	Low     []MemoryRangeYAML `yaml:"low"`
	High    []MemoryRangeYAML `yaml:"high"`
}

// Policy mirrors the YAML `policy.*` section.
type Policy struct {
	Registers RegisterPolicy `yaml:"registers"`
	Memory    MemoryPolicy   `yaml:"memory"`
}

// Setup mirrors the YAML `setup.*` section: the concrete initial state
// free inputs are pinned to, rather than left nondeterministic.
type Setup struct {
	InitStack bool              `yaml:"init_stack"`
	Registers map[string]uint64 `yaml:"registers"`
	Flags     map[string]bool   `yaml:"flags"`
	Memory    map[uint64]uint64 `yaml:"memory"`
}

// Environment is the fully-resolved, immutable pipeline configuration.
type Environment struct {
	OptimizationLevel OptLevel     `yaml:"optimization"`
	Solver            SolverName   `yaml:"solver"`
	Analysis          Analysis     `yaml:"analysis"`
	Architecture      Architecture `yaml:"architecture"`
	Policy            Policy       `yaml:"policy"`
	Setup             Setup        `yaml:"setup"`
	Debug             bool         `yaml:"debug"`

	// Not part of the YAML schema; filled in from the CLI / resolution.
	ProgramFile   string `yaml:"-"`
	Entry         string `yaml:"-"`
	SkipCex       bool   `yaml:"-"`
	SkipSolving   bool   `yaml:"-"`
	ShowEnv       bool   `yaml:"-"`
	AssemblyInfo  bool   `yaml:"-"`
	SolverTimeout int    `yaml:"-"` // seconds; 0 means no timeout
	Dumps         Dumps  `yaml:"-"`
}

// Dumps selects which intermediate artifacts to write to disk (spec.md §6
// dump options).
type Dumps struct {
	CFG       string
	TransCFG  string
	CallGraph string
	LoopTree  string
	MIR       string
	LIR       string
	SMT       string
	Cex       string
}
