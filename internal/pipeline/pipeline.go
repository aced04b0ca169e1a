// Package pipeline orchestrates the eight stages of spec.md §2 end to
// end: entry resolution, recursion-bounded inlining, loop unwinding,
// transient-CFG construction, LIR lowering and self-composition, LIR
// optimization, SMT encoding, and solver invocation with counterexample
// reconstruction on a leak. cmd/specbmc is the only caller; it hands
// Run an already-loaded internal/mir.Program and a resolved
// internal/environment.Environment and maps the returned Outcome to
// spec.md §6's exit codes.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/relentless-labs/specbmc/internal/cex"
	"github.com/relentless-labs/specbmc/internal/cfg"
	"github.com/relentless-labs/specbmc/internal/dot"
	"github.com/relentless-labs/specbmc/internal/environment"
	"github.com/relentless-labs/specbmc/internal/lir"
	"github.com/relentless-labs/specbmc/internal/mir"
	"github.com/relentless-labs/specbmc/internal/optimizer"
	"github.com/relentless-labs/specbmc/internal/perr"
	"github.com/relentless-labs/specbmc/internal/smt"
	"github.com/relentless-labs/specbmc/internal/solver"
	"github.com/relentless-labs/specbmc/internal/tcfg"
	pkgerrors "github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// stackRegister names the architectural stack-pointer register that
// environment.Setup.InitStack pins, matching original_source's
// transformation/init_stack.rs target register.
const stackRegister = "rsp"

// Result is everything cmd/specbmc needs to report an outcome and pick
// an exit code: the solver's verdict, the reconstructed witness when one
// was produced, and the resolved entry function name (printed with the
// outcome).
type Result struct {
	Entry   string
	Outcome solver.Outcome
	Trace   *cex.Trace
	Skipped bool // env.SkipSolving was set; Outcome is not meaningful
}

// Run executes the full pipeline over prog under env. It never mutates
// prog or env.
func Run(ctx context.Context, prog *mir.Program, env *environment.Environment) (result *Result, encodingPanic *perr.Error, pipelineErr *perr.Error) {
	defer func() {
		if r := recover(); r != nil {
			// spec.md §7(c): an encoding-error panic is a bug, not a
			// reportable pipeline outcome. Wrapping with pkgerrors.WithStack
			// here (rather than perr.New) gives cmd/specbmc's %+v something
			// to print beyond the bare message.
			encodingPanic = perr.Wrap(perr.KindPipeline, "pipeline", pkgerrors.WithStack(fmt.Errorf("internal error: %v", r)))
		}
	}()

	entryName, perrErr := resolveEntry(prog, env.Analysis.ProgramEntry)
	if perrErr != nil {
		return nil, nil, perrErr
	}

	inlineResult, err := cfg.Inline(prog, entryName, env.Analysis.RecursionLimit, env.Analysis.UnwindingGuard, env.Analysis.InlineIgnore)
	if err != nil {
		return nil, nil, perr.Pipeline("inline", "%v", err)
	}
	fn := inlineResult.Function

	g := cfg.Build(fn)
	loops := cfg.NaturalLoops(fn, g)
	writeDump(env.Dumps.LoopTree, "loop-tree", func() string { return dot.LoopTree(loops) })

	unwindResult := cfg.Unwind(fn, loops, env.UnwindFor, env.Analysis.UnwindingGuard)
	g = cfg.Build(fn) // Unwind mutated fn's blocks/edges; the graph must be rebuilt.

	guardPoints := append(append([]cfg.GuardPoint{}, inlineResult.GuardPoints...), unwindResult.GuardPoints...)

	writeDump(env.Dumps.CFG, "cfg", func() string { return dot.CFG(fn, g) })
	writeDump(env.Dumps.CallGraph, "call-graph", func() string { return dot.CallGraph(cfg.BuildCallGraph(prog)) })
	writeDump(env.Dumps.MIR, "mir", func() string { return mir.FunctionString(fn) })

	knownRegisters := collectKnownRegisters(fn)
	pol, perrErr := env.BuildPolicy(knownRegisters)
	if perrErr != nil {
		return nil, nil, perrErr
	}

	layout := cfg.BuildInitLayout(env, stackRegister)
	tc := tcfg.Build(fn, g, env)
	writeDump(env.Dumps.TransCFG, "trans-cfg", func() string { return dot.TransCFG(fn, tc) })

	lowered, err := lir.Lower(fn, g, tc, env, pol, layout, guardPoints)
	if err != nil {
		return nil, nil, perr.Pipeline("lower", "%v", err)
	}

	registerNames := sortedKeys(knownRegisters)
	composed, pairs := lir.Compose(lowered, registerNames, pol, env.Analysis.Check)
	optimized := optimizer.Optimize(composed, env.OptimizationLevel)
	writeDump(env.Dumps.LIR, "lir", func() string { return optimized.String() })

	script, err := smt.Encode(optimized)
	if err != nil {
		return nil, nil, perr.Pipeline("encode", "%v", err)
	}
	writeDump(env.Dumps.SMT, "smt", func() string { return script.Text })

	if env.SkipSolving {
		return &Result{Entry: entryName, Skipped: true}, nil, nil
	}

	solved, perrErr := solver.Run(ctx, script, env)
	if perrErr != nil {
		return nil, nil, perrErr
	}

	res := &Result{Entry: entryName, Outcome: solved.Outcome}
	if solved.Outcome == solver.Sat && !env.SkipCex {
		res.Trace = cex.Reconstruct(script, solved, pairs)
		writeDump(env.Dumps.Cex, "cex", func() string { return res.Trace.DOT() })
	}
	return res, nil, nil
}

// resolveEntry picks the entry function: raw (spec.md §6 "--entry
// <name|addr>") names a function directly, or is parsed as a hexadecimal
// address (with or without a 0x prefix) and matched against every function's entry block
// PC; an empty raw falls back to prog.Entry, the front-end's declared
// default (spec.md §1's front-end boundary — a real ELF/µASM loader
// would supply prog.Entry from the binary's declared entry point).
func resolveEntry(prog *mir.Program, raw string) (string, *perr.Error) {
	if raw == "" {
		if prog.Entry == "" {
			return "", perr.Input("pipeline", "no entry function: program declares no default entry and --entry was not given")
		}
		return prog.Entry, nil
	}
	if _, ok := prog.Functions[raw]; ok {
		return raw, nil
	}
	addr, err := strconv.ParseUint(strings.TrimPrefix(raw, "0x"), 16, 64)
	if err != nil {
		return "", perr.Input("pipeline", "--entry %q is neither a known function name nor a valid address", raw)
	}
	for _, name := range prog.FunctionNames() {
		f := prog.Functions[name]
		if b := f.Block(f.Entry); b != nil && b.PC == addr {
			return name, nil
		}
	}
	return "", perr.Input("pipeline", "--entry %q: no function's entry block starts at that address", raw)
}

// collectKnownRegisters returns every register name used or defined
// anywhere in fn, the set internal/environment.BuildPolicy validates
// policy overrides against.
func collectKnownRegisters(fn *mir.Function) map[string]bool {
	seen := make(map[string]bool)
	for _, id := range fn.BlockIDs() {
		for _, instr := range fn.Block(id).Instructions {
			for _, r := range mir.Uses(instr) {
				seen[r] = true
			}
			if d, ok := mir.Defs(instr); ok {
				seen[d] = true
			}
		}
	}
	return seen
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// writeDump renders content lazily (build() is only called when path is
// non-empty) and writes it via os.CreateTemp + rename in path's own
// directory, so a reader never observes a half-written dump file
// (SPEC_FULL.md §5). On any I/O error the temp file is removed and a
// klog warning is logged; dump failures never fail the pipeline itself.
func writeDump(path, stage string, build func() string) {
	if path == "" {
		return
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".specbmc-"+stage+"-*")
	if err != nil {
		klog.Warningf("pipeline: %s dump: %v", stage, err)
		return
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.WriteString(build()); err != nil {
		_ = tmp.Close()
		klog.Warningf("pipeline: %s dump: %v", stage, err)
		return
	}
	if err := tmp.Close(); err != nil {
		klog.Warningf("pipeline: %s dump: %v", stage, err)
		return
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		klog.Warningf("pipeline: %s dump: %v", stage, err)
	}
}
