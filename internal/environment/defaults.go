package environment

// Defaults returns the built-in configuration defaults, matching
// original_source/src/environment.rs's Default impls where that original
// is unambiguous, and spec.md §6 otherwise.
func Defaults() *Environment {
	return &Environment{
		OptimizationLevel: OptFull,
		Solver:            SolverYices2,
		Analysis: Analysis{
			SpectrePHT:          true,
			SpectreSTL:          false,
			Check:               CheckTransient,
			PredictorStrategy:   PredictorChoosePath,
			Unwind:              0,
			UnwindLoop:          map[string]int{},
			UnwindingGuard:      GuardAssumption,
			RecursionLimit:      0,
			StartWithEmptyCache: false,
			Observe:             ObserveSequential,
			Model:               ModelComponents,
			ProgramEntry:        "",
		},
		Architecture: Architecture{
			Cache:             true,
			BTB:               true,
			PHT:               true,
			SpeculationWindow: 8,
		},
		Policy: Policy{
			Registers: RegisterPolicy{Default: "low"},
			Memory:    MemoryPolicy{Default: "high"},
		},
		Setup: Setup{
			InitStack: true,
			Registers: map[string]uint64{},
			Flags:     map[string]bool{},
			Memory:    map[uint64]uint64{},
		},
		Debug: false,
	}
}

// UnwindFor returns the per-loop unwind override if one is configured,
// otherwise the global default.
func (e *Environment) UnwindFor(loopID string) int {
	if n, ok := e.Analysis.UnwindLoop[loopID]; ok {
		return n
	}
	return e.Analysis.Unwind
}
