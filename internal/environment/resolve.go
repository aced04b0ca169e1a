package environment

// CLIOverrides holds only the flags the user actually set on the command
// line. A nil/empty field means "not set"; Resolve leaves the
// corresponding environment value untouched in that case, implementing
// the "CLI > env file > defaults" precedence of spec.md §6 without CLI
// defaults silently masking the env file.
type CLIOverrides struct {
	Check             *Check
	Observe            *ObserveMode
	Model             *ObservationModel
	OptimizationLevel *OptLevel
	PredictorStrategy *PredictorStrategy
	Solver            *SolverName
	Entry             *string
	RecursionLimit    *int
	Unwind            *int
	SpeculationWindow *int
	UnwindingGuard    *UnwindingGuard

	Debug        *bool
	AssemblyInfo *bool
	ShowEnv      *bool
	SkipCex      *bool
	SkipSolving  *bool

	Dumps Dumps
}

// Resolve merges base (the loaded env file, or Defaults() if none was
// found/given) with the explicitly-set CLI overrides, returning a new,
// immutable Environment. base is never mutated.
func Resolve(base *Environment, cli CLIOverrides) *Environment {
	out := *base // shallow copy; fields below are value types or maps we don't mutate in place

	if cli.Check != nil {
		out.Analysis.Check = *cli.Check
	}
	if cli.Observe != nil {
		out.Analysis.Observe = *cli.Observe
	}
	if cli.Model != nil {
		out.Analysis.Model = *cli.Model
	}
	if cli.OptimizationLevel != nil {
		out.OptimizationLevel = *cli.OptimizationLevel
	}
	if cli.PredictorStrategy != nil {
		out.Analysis.PredictorStrategy = *cli.PredictorStrategy
	}
	if cli.Solver != nil {
		out.Solver = *cli.Solver
	}
	if cli.Entry != nil {
		out.Analysis.ProgramEntry = *cli.Entry
	}
	if cli.RecursionLimit != nil {
		out.Analysis.RecursionLimit = *cli.RecursionLimit
	}
	if cli.Unwind != nil {
		out.Analysis.Unwind = *cli.Unwind
	}
	if cli.SpeculationWindow != nil {
		out.Architecture.SpeculationWindow = *cli.SpeculationWindow
	}
	if cli.UnwindingGuard != nil {
		out.Analysis.UnwindingGuard = *cli.UnwindingGuard
	}
	if cli.Debug != nil {
		out.Debug = *cli.Debug
	}
	if cli.AssemblyInfo != nil {
		out.AssemblyInfo = *cli.AssemblyInfo
	}
	if cli.ShowEnv != nil {
		out.ShowEnv = *cli.ShowEnv
	}
	if cli.SkipCex != nil {
		out.SkipCex = *cli.SkipCex
	}
	if cli.SkipSolving != nil {
		out.SkipSolving = *cli.SkipSolving
	}
	out.Dumps = cli.Dumps

	return &out
}
