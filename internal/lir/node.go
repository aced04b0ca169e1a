package lir

// NodeKind discriminates the closed sum of LIR nodes (spec.md §3: "Each
// node is either an assign(var, expr), assert(expr), assume(expr),
// observe(expr, channel), or branch(cond, then-block, else-block)").
type NodeKind int

const (
	NodeAssign NodeKind = iota
	NodeAssert
	NodeAssume
	NodeObserve
	NodeBranch
)

// Node is one LIR program element.
type Node interface {
	Kind() NodeKind
	nodeNode()
}

// Assign binds Var to the value of Expr. Dest is defined exactly once
// per well-formed Program (spec.md §8 SSA invariant).
type Assign struct {
	Dest Var
	Expr Expr
}

func (Assign) Kind() NodeKind { return NodeAssign }
func (Assign) nodeNode()      {}

// Assert records a verification obligation: the encoder seeks a
// counterexample to its negation (spec.md §4.6).
type Assert struct {
	Cond    Expr
	Comment string
}

func (Assert) Kind() NodeKind { return NodeAssert }
func (Assert) nodeNode()      {}

// Assume constrains the search space: Cond is taken as given, never
// negated.
type Assume struct {
	Cond    Expr
	Comment string
}

func (Assume) Kind() NodeKind { return NodeAssume }
func (Assume) nodeNode()      {}

// ObserveOrigin distinguishes an observation made along the committed
// architectural path from one made during a bounded transient window
// (spec.md §6 "--check {all|normal|transient}" selects which of these
// internal/lir.Compose pairs into SNI obligations).
type ObserveOrigin string

const (
	OriginArchitectural ObserveOrigin = "arch"
	OriginTransient     ObserveOrigin = "transient"
)

// Observe records one attacker-visible projection on the given channel
// (spec.md §3 "Observation channels": cache, btb, pht, pc).
type Observe struct {
	Expr    Expr
	Channel string
	Origin  ObserveOrigin
}

func (Observe) Kind() NodeKind { return NodeObserve }
func (Observe) nodeNode()      {}

// Branch is part of the node-kind enumeration for fidelity to spec.md's
// literal LIR grammar, but internal/lir's lowering never emits one:
// spec.md §4.3 states branches become guard predicates attached to
// subsequent definitions ("no control-flow in LIR"), and
// original_source/src/solver/rsmt.rs's actual LIR node set has no
// Branch/control-flow node either — only Comment/Let/Assert/Assume.
type Branch struct {
	Cond       Expr
	Then, Else []Node
}

func (Branch) Kind() NodeKind { return NodeBranch }
func (Branch) nodeNode()      {}
