// Command specbmc is the CLI entry point of spec.md §6: it loads a
// program, resolves the analysis environment from CLI flags plus an
// auto-discovered or explicit YAML environment file, runs
// internal/pipeline end to end, and maps the outcome to an exit code.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/relentless-labs/specbmc/internal/environment"
	"github.com/relentless-labs/specbmc/internal/loader"
	"github.com/relentless-labs/specbmc/internal/mir"
	"github.com/relentless-labs/specbmc/internal/pipeline"
)

// exitCode is set by runRoot and read back in main after cobra's
// Execute returns, since RunE's own error return only ever maps to
// cobra's generic "usage error" exit status.
var exitCode int

func main() {
	klog.InitFlags(nil)
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		if exitCode == 0 {
			exitCode = 3
		}
	}
	klog.Flush()
	os.Exit(exitCode)
}

// flags holds the raw CLI values before they are validated and
// translated into environment.CLIOverrides (spec.md §6's full flag
// list).
type flags struct {
	envFile string

	debug        bool
	assemblyInfo bool
	showEnv      bool
	skipCex      bool
	skipSolving  bool

	check          string
	observe        string
	model          string
	opt            string
	predictor      string
	solver         string
	entry          string
	recursion      int
	unwind         int
	specWin        int
	unwindingGuard string
	solverTimeout  int

	cfgDump       string
	transCfgDump  string
	callGraphDump string
	loopTreeDump  string
	mirDump       string
	lirDump       string
	smtDump       string
	cexDump       string
}

func newRootCommand() *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:   "specbmc <file>",
		Short: "Bounded model checker for speculative non-interference",
		Long: "specbmc proves or refutes speculative non-interference for a " +
			"low-level program against Spectre-PHT and Spectre-STL transient " +
			"execution side channels (spec.md §1).",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoot(cmd.Context(), args[0], f, cmd.Flags().Changed)
		},
	}

	bindFlags(cmd, f)
	return cmd
}

func bindFlags(cmd *cobra.Command, f *flags) {
	fs := cmd.Flags()
	fs.StringVar(&f.envFile, "env", "", "explicit YAML environment file (skips auto-discovery)")

	fs.BoolVar(&f.debug, "debug", false, "enable verbose diagnostic logging")
	fs.BoolVar(&f.assemblyInfo, "assembly-info", false, "print the loaded program's per-instruction effect list and exit")
	fs.BoolVar(&f.showEnv, "show-env", false, "print the fully-resolved environment as YAML and exit")
	fs.BoolVar(&f.skipCex, "skip-cex", false, "skip counterexample reconstruction on a leak")
	fs.BoolVar(&f.skipSolving, "skip-solving", false, "run the pipeline through SMT encoding but do not invoke a solver")

	fs.StringVar(&f.check, "check", "", "which executions to report leaks for: all|normal|transient")
	fs.StringVar(&f.observe, "observe", "", "where observe() nodes are inserted: sequential|parallel|full|trace")
	fs.StringVar(&f.model, "model", "", "which microarchitectural components are observable: components|pc")
	fs.StringVar(&f.opt, "opt", "", "LIR optimizer aggressiveness: none|basic|full")
	fs.StringVar(&f.predictor, "predictor", "", "mis-speculation target labeling strategy: choose|invert")
	fs.StringVar(&f.solver, "solver", "", "external SMT solver: z3|cvc4|yices2")
	fs.StringVar(&f.entry, "entry", "", "entry function name or address")
	fs.IntVar(&f.recursion, "recursion", -1, "recursion bound for call inlining (0 = unbounded)")
	fs.IntVar(&f.unwind, "unwind", -1, "default loop-unwinding bound")
	fs.IntVar(&f.specWin, "spec-win", -1, "speculation window W")
	fs.StringVar(&f.unwindingGuard, "unwinding-guard", "", "recursion/unwind cutoff guard: assumption|assertion")
	fs.IntVar(&f.solverTimeout, "solver-timeout", -1, "solver timeout in seconds (0 = no timeout)")

	fs.StringVar(&f.cfgDump, "cfg", "", "write the control-flow graph (DOT) to this path")
	fs.StringVar(&f.transCfgDump, "trans-cfg", "", "write the transient control-flow graph (DOT) to this path")
	fs.StringVar(&f.callGraphDump, "call-graph", "", "write the call graph (DOT) to this path")
	fs.StringVar(&f.loopTreeDump, "loop-tree", "", "write the natural-loop nesting forest (DOT) to this path")
	fs.StringVar(&f.mirDump, "mir", "", "write the flattened MIR (text) to this path")
	fs.StringVar(&f.lirDump, "lir", "", "write the composed, optimized LIR (text) to this path")
	fs.StringVar(&f.smtDump, "smt", "", "write the SMT-LIB 2 script (text) to this path")
	fs.StringVar(&f.cexDump, "cex", "", "write the counterexample witness (DOT) to this path, on a leak")
}

func runRoot(ctx context.Context, path string, f *flags, changed func(string) bool) error {
	if f.debug {
		_ = flag.Set("v", "2")
	}
	runID := uuid.NewString()
	klog.V(1).Infof("specbmc[%s]: loading %s", runID, path)

	prog, perrErr := loader.Load(path)
	if perrErr != nil {
		return fail(3, "%v", perrErr)
	}

	overrides, err := f.overrides(changed)
	if err != nil {
		return fail(3, "%v", err)
	}

	base := environment.Defaults()
	envPath := f.envFile
	if envPath == "" {
		envPath = environment.DiscoverFile(path)
	}
	if envPath != "" {
		loaded, perrErr := environment.LoadFile(envPath)
		if perrErr != nil {
			return fail(3, "%v", perrErr)
		}
		base = loaded
		klog.V(1).Infof("specbmc[%s]: using environment file %s", runID, envPath)
	}

	base.ProgramFile = path
	env := environment.Resolve(base, overrides)
	if f.solverTimeout >= 0 {
		env.SolverTimeout = f.solverTimeout
	}

	if env.ShowEnv {
		fmt.Println(env.String())
		return nil
	}

	if env.AssemblyInfo {
		printAssemblyInfo(prog)
		return nil
	}

	result, encodingPanic, pipelineErr := pipeline.Run(ctx, prog, env)
	if encodingPanic != nil {
		fmt.Fprintf(os.Stderr, "specbmc[%s]: internal error:\n%+v\n", runID, encodingPanic.Cause())
		exitCode = 3
		return nil
	}
	if pipelineErr != nil {
		return fail(3, "%v", pipelineErr)
	}

	if result.Skipped {
		fmt.Printf("entry %s: encoding complete, solving skipped (--skip-solving)\n", result.Entry)
		return nil
	}

	switch result.Outcome.String() {
	case "unsat":
		fmt.Printf("entry %s: verified (unsat) — no violation of speculative non-interference found\n", result.Entry)
		exitCode = 0
	case "sat":
		fmt.Printf("entry %s: leak found (sat)\n", result.Entry)
		if result.Trace != nil {
			fmt.Println(result.Trace.DOT())
		}
		exitCode = 1
	default:
		fmt.Printf("entry %s: unknown (solver timed out or could not decide)\n", result.Entry)
		exitCode = 2
	}
	return nil
}

// fail prints msg to stderr, sets the process exit code, and returns nil
// so cobra does not additionally print a duplicate usage-style error.
func fail(code int, format string, args ...interface{}) error {
	fmt.Fprintf(os.Stderr, "specbmc: "+format+"\n", args...)
	exitCode = code
	return nil
}

// printAssemblyInfo implements spec.md §6's --assembly-info: for every
// function and block, print each instruction alongside the
// microarchitectural effects internal/mir.Effects declares for it, so a
// user can see what the TCFG builder will treat as a cache/BTB/PHT/
// store-buffer touch before running the full pipeline.
func printAssemblyInfo(prog *mir.Program) {
	for _, fnName := range prog.FunctionNames() {
		fn := prog.Functions[fnName]
		fmt.Printf("function %s (entry=%s)\n", fnName, fn.Entry)
		for _, id := range fn.BlockIDs() {
			b := fn.Block(id)
			fmt.Printf("  %s (pc=0x%x)\n", id, b.PC)
			for _, instr := range b.Instructions {
				fmt.Printf("    %s\n", mir.InstrString(instr))
				for _, eff := range mir.Effects(instr, b.PC) {
					fmt.Printf("      effect: %s\n", effectString(eff))
				}
			}
		}
	}
}

func effectString(eff mir.Effect) string {
	switch eff.Kind {
	case mir.EffectCacheFetch:
		return fmt.Sprintf("cache-fetch width=%d addr=%s (%s)", eff.Width, eff.Addr, eff.Comment)
	case mir.EffectBTBUpdate:
		return fmt.Sprintf("btb-update pc=%s target=%s (%s)", eff.Addr, eff.Value, eff.Comment)
	case mir.EffectPHTUpdate:
		return fmt.Sprintf("pht-update pc=%s cond=%s (%s)", eff.Addr, eff.Value, eff.Comment)
	case mir.EffectStoreBuffer:
		return fmt.Sprintf("store-buffer width=%d addr=%s value=%s (%s)", eff.Width, eff.Addr, eff.Value, eff.Comment)
	default:
		return eff.Comment
	}
}
