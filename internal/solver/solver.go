// Package solver implements spec.md §4.7: it spawns the configured
// external SMT solver as a child process, pipes an internal/smt.Script
// to its stdin, reads back stdout, and normalizes the solver-specific
// quirks spec.md calls out ("some solvers require (set-logic QF_ABV);
// some emit sat lowercase only; model syntax differs"). The subprocess
// is the only concurrency in the whole pipeline (SPEC_FULL.md §5): it
// runs under a context.Context deadline derived from the environment's
// global timeout, spawned and reaped the way
// google-syzkaller/pkg/ipc/ipc.go spawns and reaps its executor child —
// cmd.Start, a bounded wait, unconditional Process.Kill/cmd.Wait on every
// exit path via defer.
package solver

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/relentless-labs/specbmc/internal/environment"
	"github.com/relentless-labs/specbmc/internal/perr"
	"github.com/relentless-labs/specbmc/internal/smt"
	"k8s.io/klog/v2"
)

// Outcome is the solver's verdict, mapped straight to spec.md §6's exit
// codes by internal/pipeline.
type Outcome int

const (
	Unsat Outcome = iota
	Sat
	Unknown
)

func (o Outcome) String() string {
	switch o {
	case Sat:
		return "sat"
	case Unsat:
		return "unsat"
	default:
		return "unknown"
	}
}

// Result is one solver invocation's outcome plus, on Sat, the parsed
// model keyed by the SMT symbol name exactly as internal/smt.Script
// declared it (unquoted, without the |...| wrapping) — internal/cex maps
// these back to LIR variables and NondetRef classes.
type Result struct {
	Outcome Outcome
	Model   map[string]Value
	Raw     string
}

// Value is one model binding: a bit-vector's unsigned magnitude, or a
// boolean. IsBool and Width record the sort as the model text states it
// (Width is 0 for a plain decimal literal), so internal/cex can render
// it without re-parsing the SMT text.
type Value struct {
	IsBool  bool
	Bool    bool
	BitVec  uint64
	Width   int
}

// binary names spec.md §6's --solver values map to.
var binaryNames = map[environment.SolverName]string{
	environment.SolverZ3:     "z3",
	environment.SolverCVC4:   "cvc4",
	environment.SolverYices2: "yices-smt2",
}

// cliArgs returns the invocation flags each solver needs to read a
// script from stdin and speak plain SMT-LIB 2 on stdout (spec.md §4.7
// "some solvers require (set-logic QF_ABV) ... model syntax differs" —
// the logic is always emitted by internal/smt itself; these flags only
// select each binary's stdin/stdout mode).
func cliArgs(name environment.SolverName) []string {
	switch name {
	case environment.SolverZ3:
		return []string{"-in", "-smt2"}
	case environment.SolverCVC4:
		return []string{"--lang", "smt2", "--incremental"}
	case environment.SolverYices2:
		return []string{"--incremental"}
	default:
		return nil
	}
}

// Run spawns env.Solver on script and blocks until it reports sat/unsat,
// times out (per env.SolverTimeout seconds; 0 means no timeout), or
// fails to run at all. A timeout is reported as Unknown, not as a
// *perr.Error (spec.md §7(d): "surfaced as unknown for timeout, as fatal
// otherwise").
func Run(ctx context.Context, script *smt.Script, env *environment.Environment) (*Result, *perr.Error) {
	name, ok := binaryNames[env.Solver]
	if !ok {
		return nil, perr.Solver("solver", "unrecognized solver %q", env.Solver)
	}

	if env.SolverTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(env.SolverTimeout)*time.Second)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, cliArgs(env.Solver)...)
	cmd.Stdin = strings.NewReader(script.Text)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	klog.V(2).Infof("solver: spawning %s %v", name, cliArgs(env.Solver))
	if err := cmd.Start(); err != nil {
		return nil, perr.Solver("solver", "failed to spawn %s: %v", name, err)
	}
	// exec.CommandContext already kills the process on context
	// cancellation; this defer is the same unconditional-reap belt that
	// google-syzkaller/pkg/ipc/ipc.go's command.close applies regardless
	// of how the child actually exited.
	defer func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}()

	waitErr := cmd.Wait()
	if ctx.Err() == context.DeadlineExceeded {
		klog.V(1).Infof("solver: %s timed out after %ds", name, env.SolverTimeout)
		return &Result{Outcome: Unknown, Raw: stdout.String()}, nil
	}
	if waitErr != nil {
		return nil, perr.Solver("solver", "%s exited with error: %v (stderr: %s)", name, waitErr, stderr.String())
	}

	return parseOutput(stdout.String())
}

func parseOutput(out string) (*Result, *perr.Error) {
	lower := strings.ToLower(strings.TrimSpace(out))
	switch {
	case strings.HasPrefix(lower, "unsat"):
		return &Result{Outcome: Unsat, Raw: out}, nil
	case strings.HasPrefix(lower, "sat"):
		model, err := parseModel(out)
		if err != nil {
			return nil, perr.Solver("solver", "sat response but model could not be parsed: %v", err)
		}
		return &Result{Outcome: Sat, Model: model, Raw: out}, nil
	case strings.HasPrefix(lower, "unknown"):
		return &Result{Outcome: Unknown, Raw: out}, nil
	default:
		return nil, perr.Solver("solver", "unrecognized solver response: %q", firstLine(out))
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// parseModel extracts every "(define-fun NAME () SORT VALUE)" binding
// from a (get-model) response. This is a small hand-rolled scanner, not
// a general s-expression parser: z3/cvc4/yices2 all emit one define-fun
// per line for a QF_AUFBV model with no let-bindings or quantifiers in
// the returned term, which is exactly what internal/smt.Encode emits
// obligations over.
func parseModel(out string) (map[string]Value, error) {
	model := map[string]Value{}
	lines := strings.Split(out, "\n")
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "(define-fun") {
			continue
		}
		// Solvers sometimes wrap the value expression across the next
		// line; join up to a few lines until parens balance.
		joined := line
		depth := strings.Count(joined, "(") - strings.Count(joined, ")")
		for depth > 0 && i+1 < len(lines) {
			i++
			joined += " " + strings.TrimSpace(lines[i])
			depth = strings.Count(joined, "(") - strings.Count(joined, ")")
		}
		name, val, err := parseDefineFun(joined)
		if err != nil {
			klog.V(3).Infof("solver: skipping unparseable model line %q: %v", joined, err)
			continue
		}
		model[name] = val
	}
	return model, nil
}

func parseDefineFun(line string) (string, Value, error) {
	fields := tokenize(line)
	// tokens: "(" "define-fun" NAME "(" ")" SORT... VALUE... ")"
	if len(fields) < 5 || fields[1] != "define-fun" {
		return "", Value{}, fmt.Errorf("malformed define-fun: %q", line)
	}
	name := unquoteSym(fields[2])
	valueTok := fields[len(fields)-2] // last token before the closing paren
	return name, parseValue(valueTok, fields), nil
}

// tokenize splits an s-expression into parens and atoms; it is
// deliberately naive (no quoting beyond |...| symbols) since the model
// text internal/smt round-trips is limited to that grammar.
func tokenize(s string) []string {
	var out []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	inSym := false
	for _, r := range s {
		switch {
		case r == '|':
			cur.WriteRune(r)
			inSym = !inSym
		case inSym:
			cur.WriteRune(r)
		case r == '(' || r == ')':
			flush()
			out = append(out, string(r))
		case r == ' ' || r == '\t' || r == '\n':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}

func unquoteSym(s string) string {
	return strings.Trim(s, "|")
}

// parseValue interprets a single trailing value token: a bit-vector
// literal (#x..., #b..., or "(_ bvN W)" collapsed by tokenize into
// separate tokens "bvN" and "W"), or a boolean.
func parseValue(tok string, allTokens []string) Value {
	switch {
	case tok == "true":
		return Value{IsBool: true, Bool: true}
	case tok == "false":
		return Value{IsBool: true, Bool: false}
	case strings.HasPrefix(tok, "#x"):
		n, _ := strconv.ParseUint(tok[2:], 16, 64)
		return Value{BitVec: n, Width: 4 * (len(tok) - 2)}
	case strings.HasPrefix(tok, "#b"):
		n, _ := strconv.ParseUint(tok[2:], 2, 64)
		return Value{BitVec: n, Width: len(tok) - 2}
	case strings.HasPrefix(tok, "bv"):
		n, _ := strconv.ParseUint(strings.TrimPrefix(tok, "bv"), 10, 64)
		width := 0
		for i, t := range allTokens {
			if t == tok && i+1 < len(allTokens) {
				if w, err := strconv.Atoi(strings.TrimRight(allTokens[i+1], ")")); err == nil {
					width = w
				}
			}
		}
		return Value{BitVec: n, Width: width}
	default:
		if n, err := strconv.ParseUint(tok, 10, 64); err == nil {
			return Value{BitVec: n}
		}
		return Value{}
	}
}
