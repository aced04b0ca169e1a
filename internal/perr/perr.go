// Package perr implements the pipeline error taxonomy of spec.md §7:
// input errors, pipeline errors, encoding errors (bugs, not reported
// here — they panic) and solver errors. internal/pipeline.Run reports
// every failure as an *Error — the loader, environment and solver stages
// return one directly, and Run wraps the plain errors returned by
// cfg.Inline, lir.Lower and smt.Encode — so that cmd/specbmc can map a
// failure straight to the exit codes of spec.md §6 without re-deriving
// what kind of failure occurred.
package perr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind discriminates the error taxonomy of spec.md §7(a),(b),(d).
// (c) encoding errors are implementation bugs and are raised as panics,
// recovered once in internal/pipeline.Run — see spec.md §7 and
// SPEC_FULL.md §7.
type Kind int

const (
	// KindInput covers malformed input: bad µASM/ELF, invalid YAML, a
	// policy referring to an unknown register.
	KindInput Kind = iota
	// KindPipeline covers inlining beyond the recursion bound without a
	// guard choice, an unresolved indirect branch, and similar stage
	// failures.
	KindPipeline
	// KindSolver covers solver spawn failure or protocol error. Timeout is
	// reported as "unknown", not as a KindSolver error — see
	// solver.Outcome.
	KindSolver
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindPipeline:
		return "pipeline"
	case KindSolver:
		return "solver"
	default:
		return "unknown"
	}
}

// SourcePos is the source location an input error is attributed to, when
// known. Front-ends populate this; stages that operate purely on already
// parsed mir.Program values leave it zero.
type SourcePos struct {
	File string
	Line int
	Col  int
}

func (p SourcePos) String() string {
	if p.File == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Col)
}

// Error is a structured pipeline error: its Kind, an optional source
// position, and the underlying cause (wrapped with github.com/pkg/errors
// so that %+v on it prints a stack trace from the point it was created).
type Error struct {
	Kind  Kind
	Pos   SourcePos
	Stage string
	cause error
}

func (e *Error) Error() string {
	if pos := e.Pos.String(); pos != "" {
		return fmt.Sprintf("%s error in %s at %s: %v", e.Kind, e.Stage, pos, e.cause)
	}
	return fmt.Sprintf("%s error in %s: %v", e.Kind, e.Stage, e.cause)
}

// Unwrap lets errors.Is/errors.As see through to the wrapped cause.
func (e *Error) Unwrap() error { return e.cause }

// Cause returns the root cause, as github.com/pkg/errors.Cause would.
func (e *Error) Cause() error { return errors.Cause(e.cause) }

// New wraps msg as a new Error of the given kind, attributing it to stage.
func New(kind Kind, stage, msg string) *Error {
	return &Error{Kind: kind, Stage: stage, cause: errors.New(msg)}
}

// Wrap wraps an existing error as an Error of the given kind.
func Wrap(kind Kind, stage string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Stage: stage, cause: errors.WithStack(err)}
}

// WithPos attaches a source position and returns e for chaining.
func (e *Error) WithPos(pos SourcePos) *Error {
	e.Pos = pos
	return e
}

// Input is a convenience constructor for spec.md §7(a) input errors.
func Input(stage, format string, args ...interface{}) *Error {
	return New(KindInput, stage, fmt.Sprintf(format, args...))
}

// Pipeline is a convenience constructor for spec.md §7(b) pipeline errors.
func Pipeline(stage, format string, args ...interface{}) *Error {
	return New(KindPipeline, stage, fmt.Sprintf(format, args...))
}

// Solver is a convenience constructor for spec.md §7(d) solver errors
// (spawn failure, protocol error — not timeout, which is not an error).
func Solver(stage, format string, args ...interface{}) *Error {
	return New(KindSolver, stage, fmt.Sprintf(format, args...))
}
