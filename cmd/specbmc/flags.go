package main

import (
	"fmt"

	"github.com/relentless-labs/specbmc/internal/environment"
)

// overrides validates the raw flag values and builds the
// environment.CLIOverrides Resolve expects — only fields the user
// actually set are non-nil, per spec.md §6's CLI > env file > defaults
// precedence.
func (f *flags) overrides(changed func(string) bool) (environment.CLIOverrides, error) {
	var out environment.CLIOverrides

	if f.check != "" {
		v, err := parseCheck(f.check)
		if err != nil {
			return out, err
		}
		out.Check = &v
	}
	if f.observe != "" {
		v, err := parseObserve(f.observe)
		if err != nil {
			return out, err
		}
		out.Observe = &v
	}
	if f.model != "" {
		v, err := parseModel(f.model)
		if err != nil {
			return out, err
		}
		out.Model = &v
	}
	if f.opt != "" {
		v, err := parseOpt(f.opt)
		if err != nil {
			return out, err
		}
		out.OptimizationLevel = &v
	}
	if f.predictor != "" {
		v, err := parsePredictor(f.predictor)
		if err != nil {
			return out, err
		}
		out.PredictorStrategy = &v
	}
	if f.solver != "" {
		v, err := parseSolver(f.solver)
		if err != nil {
			return out, err
		}
		out.Solver = &v
	}
	if f.unwindingGuard != "" {
		v, err := parseUnwindingGuard(f.unwindingGuard)
		if err != nil {
			return out, err
		}
		out.UnwindingGuard = &v
	}
	if f.entry != "" {
		out.Entry = &f.entry
	}
	if f.recursion >= 0 {
		out.RecursionLimit = &f.recursion
	}
	if f.unwind >= 0 {
		out.Unwind = &f.unwind
	}
	if f.specWin >= 0 {
		out.SpeculationWindow = &f.specWin
	}

	if changed("debug") {
		out.Debug = &f.debug
	}
	if changed("assembly-info") {
		out.AssemblyInfo = &f.assemblyInfo
	}
	if changed("show-env") {
		out.ShowEnv = &f.showEnv
	}
	if changed("skip-cex") {
		out.SkipCex = &f.skipCex
	}
	if changed("skip-solving") {
		out.SkipSolving = &f.skipSolving
	}

	out.Dumps = environment.Dumps{
		CFG:       f.cfgDump,
		TransCFG:  f.transCfgDump,
		CallGraph: f.callGraphDump,
		LoopTree:  f.loopTreeDump,
		MIR:       f.mirDump,
		LIR:       f.lirDump,
		SMT:       f.smtDump,
		Cex:       f.cexDump,
	}

	return out, nil
}

func parseCheck(s string) (environment.Check, error) {
	switch environment.Check(s) {
	case environment.CheckAll, environment.CheckNormal, environment.CheckTransient:
		return environment.Check(s), nil
	default:
		return "", fmt.Errorf("--check: invalid value %q, want all|normal|transient", s)
	}
}

func parseObserve(s string) (environment.ObserveMode, error) {
	switch environment.ObserveMode(s) {
	case environment.ObserveSequential, environment.ObserveParallel, environment.ObserveFull, environment.ObserveTrace:
		return environment.ObserveMode(s), nil
	default:
		return "", fmt.Errorf("--observe: invalid value %q, want sequential|parallel|full|trace", s)
	}
}

func parseModel(s string) (environment.ObservationModel, error) {
	switch environment.ObservationModel(s) {
	case environment.ModelComponents, environment.ModelPC:
		return environment.ObservationModel(s), nil
	default:
		return "", fmt.Errorf("--model: invalid value %q, want components|pc", s)
	}
}

func parseOpt(s string) (environment.OptLevel, error) {
	switch environment.OptLevel(s) {
	case environment.OptNone, environment.OptBasic, environment.OptFull:
		return environment.OptLevel(s), nil
	default:
		return "", fmt.Errorf("--opt: invalid value %q, want none|basic|full", s)
	}
}

// parsePredictor accepts the short spec.md §6 spellings ("choose",
// "invert") and maps them onto environment's longer internal constant
// names.
func parsePredictor(s string) (environment.PredictorStrategy, error) {
	switch s {
	case "choose", string(environment.PredictorChoosePath):
		return environment.PredictorChoosePath, nil
	case "invert", string(environment.PredictorInvertCondition):
		return environment.PredictorInvertCondition, nil
	default:
		return "", fmt.Errorf("--predictor: invalid value %q, want choose|invert", s)
	}
}

func parseSolver(s string) (environment.SolverName, error) {
	switch environment.SolverName(s) {
	case environment.SolverZ3, environment.SolverCVC4, environment.SolverYices2:
		return environment.SolverName(s), nil
	default:
		return "", fmt.Errorf("--solver: invalid value %q, want z3|cvc4|yices2", s)
	}
}

func parseUnwindingGuard(s string) (environment.UnwindingGuard, error) {
	switch environment.UnwindingGuard(s) {
	case environment.GuardAssumption, environment.GuardAssertion:
		return environment.UnwindingGuard(s), nil
	default:
		return "", fmt.Errorf("--unwinding-guard: invalid value %q, want assumption|assertion", s)
	}
}
