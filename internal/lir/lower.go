package lir

import (
	"fmt"
	"sort"

	"github.com/relentless-labs/specbmc/internal/cfg"
	"github.com/relentless-labs/specbmc/internal/environment"
	"github.com/relentless-labs/specbmc/internal/mir"
	"github.com/relentless-labs/specbmc/internal/policy"
	"github.com/relentless-labs/specbmc/internal/tcfg"
)

// regState is a snapshot of every register's current SSA value.
type regState map[string]Expr

func (s regState) copy() regState {
	out := make(regState, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// chanState is a snapshot, per observation channel, of accumulated
// observation bookkeeping: the sequential-mode running digest or the
// trace-mode running sequence ordinal (spec.md §4.4).
type chanState map[string]Expr

func (s chanState) copy() chanState {
	out := make(chanState, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// lowerer holds the state threaded through Lower: fn must already be the
// output of internal/cfg.Inline and internal/cfg.Unwind, so its CFG is a
// finite DAG (loops/recursion have already been bounded and guarded).
type lowerer struct {
	fn     *mir.Function
	g      *cfg.Graph
	tc     *tcfg.TCFG
	env    *environment.Environment
	pol    *policy.Policy
	layout *cfg.InitLayout
	prog   *Program
	fresh  *fresh
	live   *cfg.LiveVariables

	registers      []string // every register name touched anywhere in fn, sorted
	registerWidths map[string]mir.Width
	entryReg       map[mir.BlockID]regState
	exitReg        map[mir.BlockID]regState
	entryMemLow    map[mir.BlockID]Expr
	exitMemLow     map[mir.BlockID]Expr
	entryMemHigh   map[mir.BlockID]Expr
	exitMemHigh    map[mir.BlockID]Expr
	entryCache     map[mir.BlockID]Expr
	exitCache      map[mir.BlockID]Expr
	entryDigest    map[mir.BlockID]chanState
	exitDigest     map[mir.BlockID]chanState
	entrySeq       map[mir.BlockID]chanState
	exitSeq        map[mir.BlockID]chanState

	branchAt    map[mir.BlockID]tcfg.BranchPoint
	stlAt       map[mir.BlockID][]tcfg.STLPoint
	guardPoints map[mir.BlockID]cfg.GuardPoint
}

// Lower converts fn into a flat LIR Program: architectural execution is
// merged into a single SSA-with-guards dataflow via nested ite at every
// join, and every load/store/branch/indirect-call touch — architectural
// or transient — is recorded with an Observe node on the appropriate
// channel, inserted per env.Analysis.Observe's mode and tagged on the
// channel set env.Analysis.Model selects (spec.md §4.4, §3).
func Lower(fn *mir.Function, g *cfg.Graph, tc *tcfg.TCFG, env *environment.Environment, pol *policy.Policy, layout *cfg.InitLayout, guardPoints []cfg.GuardPoint) (*Program, error) {
	order, err := topoOrder(fn, g)
	if err != nil {
		return nil, err
	}

	l := &lowerer{
		fn: fn, g: g, tc: tc, env: env, pol: pol, layout: layout,
		prog:         NewProgram(),
		fresh:        newFresh(),
		live:         cfg.ComputeLiveVariables(fn, g),
		entryReg:     map[mir.BlockID]regState{},
		exitReg:      map[mir.BlockID]regState{},
		entryMemLow:  map[mir.BlockID]Expr{},
		exitMemLow:   map[mir.BlockID]Expr{},
		entryMemHigh: map[mir.BlockID]Expr{},
		exitMemHigh:  map[mir.BlockID]Expr{},
		entryCache:   map[mir.BlockID]Expr{},
		exitCache:    map[mir.BlockID]Expr{},
		entryDigest:  map[mir.BlockID]chanState{},
		exitDigest:   map[mir.BlockID]chanState{},
		entrySeq:     map[mir.BlockID]chanState{},
		exitSeq:      map[mir.BlockID]chanState{},
		branchAt:     map[mir.BlockID]tcfg.BranchPoint{},
		stlAt:        map[mir.BlockID][]tcfg.STLPoint{},
		guardPoints:  map[mir.BlockID]cfg.GuardPoint{},
	}
	for _, gp := range guardPoints {
		l.guardPoints[gp.Block] = gp
	}
	l.registers = collectRegisters(fn)
	l.registerWidths = collectRegisterWidths(fn)
	for _, bp := range tc.BranchPoints {
		l.branchAt[bp.Block] = bp
	}
	for _, sp := range tc.STLPoints {
		l.stlAt[sp.Block] = append(l.stlAt[sp.Block], sp)
	}

	l.initEntry()
	l.processBlock(fn.Entry)
	for _, id := range order {
		if id == fn.Entry {
			continue
		}
		l.mergeEntry(id)
		l.processBlock(id)
	}

	return l.prog, nil
}

// usesDigest reports whether env.Analysis.Observe requires the
// sequential-mode per-channel accumulation (spec.md §4.4 "sequential:
// once at each execution's terminal").
func (l *lowerer) usesDigest() bool {
	return l.env.Analysis.Observe == environment.ObserveSequential
}

// usesSeq reports whether env.Analysis.Observe requires the trace-mode
// companion sequence ordinal (spec.md §4.4 "trace: ... emits a sequence
// rather than a tuple").
func (l *lowerer) usesSeq() bool {
	return l.env.Analysis.Observe == environment.ObserveTrace
}

// channelSet is the finite set of observation channels env.Analysis.Model
// selects (spec.md §3): `components` names a channel after each
// microarchitectural table it models; `pc` collapses them into the
// coarser program-counter / load-address pair.
func (l *lowerer) channelSet() []string {
	if l.env.Analysis.Model == environment.ModelPC {
		return []string{"program-counter", "load-address"}
	}
	return []string{"cache", "btb", "pht"}
}

// channelForEffect maps one internal/mir.Effect to the observation
// channel it is recorded on under the configured model, centralizing the
// mapping mir.Effects() already declares per instruction kind (spec.md
// §4.10). EffectStoreBuffer has no channel of its own: the store buffer
// is internal state consumed only by Spectre-STL forwarding, not one of
// spec.md §3's enumerated observation channels.
func (l *lowerer) channelForEffect(kind mir.EffectKind) string {
	pcModel := l.env.Analysis.Model == environment.ModelPC
	switch kind {
	case mir.EffectCacheFetch:
		if pcModel {
			return "load-address"
		}
		return "cache"
	case mir.EffectBTBUpdate:
		if pcModel {
			return "program-counter"
		}
		return "btb"
	case mir.EffectPHTUpdate:
		if pcModel {
			return "program-counter"
		}
		return "pht"
	default:
		return ""
	}
}

// collectRegisters returns every register name used or defined anywhere
// in fn, sorted for determinism.
func collectRegisters(fn *mir.Function) []string {
	seen := map[string]bool{}
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
	out := make([]string, 0, len(seen))
	for r := range seen {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// collectRegisterWidths records the declared bit-width of every register
// name in fn, so entry-state initialization can give width-1 (boolean)
// registers a Bool sort instead of defaulting every register to 64 bits.
func collectRegisterWidths(fn *mir.Function) map[string]mir.Width {
	widths := map[string]mir.Width{}
	var walk func(mir.Expr)
	walk = func(e mir.Expr) {
		switch expr := e.(type) {
		case mir.Register:
			widths[expr.Name] = expr.W
		case mir.UnaryExpr:
			walk(expr.Arg)
		case mir.BinaryExpr:
			walk(expr.Left)
			walk(expr.Right)
		case mir.IteExpr:
			walk(expr.Cond)
			walk(expr.Then)
			walk(expr.Else)
		}
	}
	for _, id := range fn.BlockIDs() {
		for _, instr := range fn.Block(id).Instructions {
			switch ins := instr.(type) {
			case mir.Assign:
				widths[ins.Dest.Name] = ins.Dest.W
				walk(ins.Expr)
			case mir.Load:
				widths[ins.Dest.Name] = ins.Dest.W
				walk(ins.Addr)
			case mir.Store:
				walk(ins.Addr)
				walk(ins.Value)
			case mir.CondBranch:
				walk(ins.Cond)
			}
		}
	}
	return widths
}

// topoOrder computes a Kahn's-algorithm topological order of fn's
// blocks. cfg.Inline/cfg.Unwind are expected to have already removed all
// cycles; a remaining cycle is a pipeline error (spec.md §7(b)).
func topoOrder(fn *mir.Function, g *cfg.Graph) ([]mir.BlockID, error) {
	indeg := map[mir.BlockID]int{}
	for _, id := range fn.BlockIDs() {
		indeg[id] = 0
	}
	for _, id := range fn.BlockIDs() {
		for _, s := range g.Succ[id] {
			indeg[s]++
		}
	}

	var queue []mir.BlockID
	if indeg[fn.Entry] == 0 {
		queue = append(queue, fn.Entry)
	}
	for _, id := range fn.BlockIDs() {
		if id != fn.Entry && indeg[id] == 0 {
			queue = append(queue, id)
		}
	}

	var order []mir.BlockID
	visited := map[mir.BlockID]bool{}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		order = append(order, id)
		for _, s := range g.Succ[id] {
			indeg[s]--
			if indeg[s] == 0 {
				queue = append(queue, s)
			}
		}
	}
	if len(order) != len(fn.Blocks) {
		return nil, fmt.Errorf("lir: function %q still has a cycle after inlining/unwinding", fn.Name)
	}
	return order, nil
}

func sortForWidth(w mir.Width) Sort {
	if w == 1 {
		return Bool()
	}
	return BitVec(int(w))
}

// zeroChanState seeds a chanState with a zero 64-bit value for every
// channel in l.channelSet(), the shared starting point for both the
// sequential-mode digest and the trace-mode sequence ordinal.
func (l *lowerer) zeroChanState() chanState {
	cs := chanState{}
	for _, ch := range l.channelSet() {
		cs[ch] = ConstBV{Value: 0, Width: 64}
	}
	return cs
}

func (l *lowerer) initEntry() {
	regs := regState{}
	for _, name := range l.registers {
		v := l.fresh.next("init." + name)
		width := l.registerWidths[name]
		if width == 0 {
			width = mir.Width64
		}
		expr := l.mirToLirInit(name, width)
		l.prog.Assign(v, expr)
		regs[name] = VarRef{Name: v, S: expr.Sort()}
	}
	l.entryReg[l.fn.Entry] = regs

	// Memory is threaded as two arrays, not one: spec.md §3 classifies
	// every byte, not just every register, as low or high, but a single
	// shared array would equate high bytes across the two composed
	// copies too (internal/lir.Compose only ever saw one "mem.init" var
	// to decide whether to share). Splitting low/high here and combining
	// them at every access with isLowAddr lets Compose share only the
	// low half, matching the register treatment.
	lowVar := l.fresh.next("mem.low.init")
	l.prog.Assign(lowVar, NondetRef{Class: "init-memory-low", S: Array(64, 8)})
	l.entryMemLow[l.fn.Entry] = VarRef{Name: lowVar, S: Array(64, 8)}

	highVar := l.fresh.next("mem.high.init")
	l.prog.Assign(highVar, NondetRef{Class: "init-memory-high", S: Array(64, 8)})
	l.entryMemHigh[l.fn.Entry] = VarRef{Name: highVar, S: Array(64, 8)}

	cacheVar := l.fresh.next("cache.init")
	var cacheInit Expr
	if l.env.Analysis.StartWithEmptyCache {
		cacheInit = ConstBool{Value: false}
	} else {
		cacheInit = NondetRef{Class: "init-cache", S: Bool()}
	}
	l.prog.Assign(cacheVar, cacheInit)
	l.entryCache[l.fn.Entry] = VarRef{Name: cacheVar, S: cacheInit.Sort()}

	if l.usesDigest() {
		l.entryDigest[l.fn.Entry] = l.zeroChanState()
	}
	if l.usesSeq() {
		l.entrySeq[l.fn.Entry] = l.zeroChanState()
	}
}

func (l *lowerer) mirToLirInit(name string, width mir.Width) Expr {
	c := l.layout.InitExpr(name, width)
	return l.translate(c, regState{})
}

// translate converts a mir.Expr into an equivalent lir.Expr, resolving
// register references against regs. A register absent from regs
// (pruned from a join by mergeEntry's liveness analysis, since it is
// dead at that point and so cannot actually be read before its next
// definition) resolves to a free value rather than panicking.
func (l *lowerer) translate(e mir.Expr, regs regState) Expr {
	switch expr := e.(type) {
	case mir.Register:
		if v, ok := regs[expr.Name]; ok {
			return v
		}
		return NondetRef{Class: "unbound-register:" + expr.Name, S: sortForWidth(expr.W)}
	case mir.Const:
		if expr.W == 1 {
			return ConstBool{Value: expr.Value != 0}
		}
		return ConstBV{Value: expr.Value, Width: int(expr.W)}
	case mir.UnaryExpr:
		return UnaryExpr{Op: UnaryOp(expr.Op), Arg: l.translate(expr.Arg, regs), ResultWidth: int(expr.ResultWidth)}
	case mir.BinaryExpr:
		return BinaryExpr{Op: BinaryOp(expr.Op), Left: l.translate(expr.Left, regs), Right: l.translate(expr.Right, regs), ResultWidth: int(expr.ResultWidth)}
	case mir.IteExpr:
		return IteExpr{Cond: l.translate(expr.Cond, regs), Then: l.translate(expr.Then, regs), Else: l.translate(expr.Else, regs)}
	case mir.NondetExpr:
		return NondetRef{Class: expr.Class, S: sortForWidth(expr.W)}
	default:
		panic("lir: translate: unhandled mir.Expr kind")
	}
}

// toBV64 widens/narrows e to a common 64-bit bit-vector so values of
// differing channel sorts (the boolean PHT outcome, a bit-vector
// address) can be folded into one sequential-mode digest.
func toBV64(e Expr) Expr {
	s := e.Sort()
	switch s.Kind {
	case SortBool:
		return IteExpr{Cond: e, Then: ConstBV{Value: 1, Width: 64}, Else: ConstBV{Value: 0, Width: 64}}
	case SortBitVec:
		if s.Width == 64 {
			return e
		}
		if s.Width < 64 {
			return UnaryExpr{Op: OpZeroExtend, Arg: e, ResultWidth: 64}
		}
		return UnaryExpr{Op: OpTruncate, Arg: e, ResultWidth: 64}
	default:
		panic("lir: toBV64: observation value has an array sort")
	}
}

func notExpr(e Expr) Expr { return UnaryExpr{Op: OpBoolNot, Arg: e} }

// isLowAddr builds a boolean expression equivalent to l.pol.Memory(addr)
// == policy.Low, for a possibly-symbolic addr: range bounds are always
// concrete (policy.AddrRange), so each override becomes one
// range-membership test, nested in most-recently-added-first priority
// exactly as policy.Policy.Memory resolves it for a concrete address. A
// nil policy (lowering without self-composition in mind, e.g. the
// --assembly-info-adjacent unit tests) treats every address as low,
// which keeps memory a single effectively-shared array — today's prior
// behavior — rather than panicking on a missing policy.
func (l *lowerer) isLowAddr(addr Expr) Expr {
	if l.pol == nil {
		return ConstBool{Value: true}
	}
	result := Expr(ConstBool{Value: l.pol.DefaultMemoryLevel == policy.Low})
	for _, ov := range l.pol.MemoryOverrides {
		inRange := BinaryExpr{
			Op:   OpBoolAnd,
			Left: BinaryExpr{Op: OpUge, Left: addr, Right: ConstBV{Value: ov.Range.Start, Width: 64}},
			Right: BinaryExpr{Op: OpUlt, Left: addr, Right: ConstBV{Value: ov.Range.End, Width: 64}},
		}
		result = IteExpr{Cond: inRange, Then: ConstBool{Value: ov.Level == policy.Low}, Else: result}
	}
	return result
}

// readMem selects addr's value from the low/high split, per isLowAddr.
func (l *lowerer) readMem(memLow, memHigh, addr Expr) Expr {
	return IteExpr{
		Cond: l.isLowAddr(addr),
		Then: SelectExpr{Array: memLow, Index: addr},
		Else: SelectExpr{Array: memHigh, Index: addr},
	}
}

// writeMem stores val at addr into whichever half of the low/high split
// addr actually belongs to, leaving the other half untouched — the
// array-level analogue of the masked-write technique used to keep a
// symbolic address's write sound without knowing which half it targets
// until the formula is solved.
func (l *lowerer) writeMem(memLow, memHigh, addr, val Expr) (newLow, newHigh Expr) {
	low := l.isLowAddr(addr)
	newLow = IteExpr{Cond: low, Then: StoreExpr{Array: memLow, Index: addr, Value: val}, Else: memLow}
	newHigh = IteExpr{Cond: low, Then: memHigh, Else: StoreExpr{Array: memHigh, Index: addr, Value: val}}
	return newLow, newHigh
}

// mergeEntry computes block's entry register/memory/cache/channel state
// as a nested-ite merge over its predecessors, guarded by which
// architectural edge was actually taken. Registers absent from
// internal/cfg.ComputeLiveVariables's LiveIn[block] are skipped: a dead
// register's merge chain would only be read, if ever, after it is freshly
// redefined, so building it wastes a join-sized ite chain per dead
// register on every block (spec.md §4.9's liveness analysis exists for
// exactly this pruning).
func (l *lowerer) mergeEntry(block mir.BlockID) {
	preds := l.g.Pred[block]
	if len(preds) == 0 {
		// Unreachable block (e.g. a guard-only stub with no live
		// predecessor); give it a fresh, fully free entry state so
		// downstream lowering still type-checks.
		regs := regState{}
		for _, name := range l.registers {
			width := l.registerWidths[name]
			if width == 0 {
				width = mir.Width64
			}
			regs[name] = NondetRef{Class: "unreachable:" + name, S: sortForWidth(width)}
		}
		l.entryReg[block] = regs
		l.entryMemLow[block] = NondetRef{Class: "unreachable-mem-low", S: Array(64, 8)}
		l.entryMemHigh[block] = NondetRef{Class: "unreachable-mem-high", S: Array(64, 8)}
		l.entryCache[block] = NondetRef{Class: "unreachable-cache", S: Bool()}
		if l.usesDigest() {
			l.entryDigest[block] = l.zeroChanState()
		}
		if l.usesSeq() {
			l.entrySeq[block] = l.zeroChanState()
		}
		return
	}

	type predData struct {
		regs     regState
		memLow   Expr
		memHigh  Expr
		cache    Expr
		digest   chanState
		seq      chanState
	}
	var ins []incoming[predData]
	for _, p := range preds {
		ins = append(ins, incoming[predData]{
			guard: l.edgeGuard(p, block),
			val: predData{
				regs:    l.exitReg[p],
				memLow:  l.exitMemLow[p],
				memHigh: l.exitMemHigh[p],
				cache:   l.exitCache[p],
				digest:  l.exitDigest[p],
				seq:     l.exitSeq[p],
			},
		})
	}

	live := l.live.LiveIn[block]
	regs := regState{}
	for _, name := range l.registers {
		if _, ok := live[name]; !ok {
			continue
		}
		regs[name] = mergeChain(ins, func(d predData) Expr { return d.regs[name] })
	}
	l.entryReg[block] = regs
	l.entryMemLow[block] = mergeChain(ins, func(d predData) Expr { return d.memLow })
	l.entryMemHigh[block] = mergeChain(ins, func(d predData) Expr { return d.memHigh })
	l.entryCache[block] = mergeChain(ins, func(d predData) Expr { return d.cache })

	if l.usesDigest() {
		dig := chanState{}
		for _, ch := range l.channelSet() {
			dig[ch] = mergeChain(ins, func(d predData) Expr { return d.digest[ch] })
		}
		l.entryDigest[block] = dig
	}
	if l.usesSeq() {
		sq := chanState{}
		for _, ch := range l.channelSet() {
			sq[ch] = mergeChain(ins, func(d predData) Expr { return d.seq[ch] })
		}
		l.entrySeq[block] = sq
	}
}

// mergeChain builds a right-nested ite chain over ins, in order: the
// first incoming edge's guard is checked first, falling through to the
// next, with the last incoming edge's value used unconditionally as the
// final else (one of the guards is always true, since ins enumerates
// every predecessor edge actually taken).
func mergeChain[T any](ins []incoming[T], pick func(T) Expr) Expr {
	if len(ins) == 1 {
		return pick(ins[0].val)
	}
	result := pick(ins[len(ins)-1].val)
	for i := len(ins) - 2; i >= 0; i-- {
		result = IteExpr{Cond: ins[i].guard, Then: pick(ins[i].val), Else: result}
	}
	return result
}

type incoming[T any] struct {
	guard Expr
	val   T
}

func (l *lowerer) edgeGuard(pred, to mir.BlockID) Expr {
	term := l.fn.Block(pred).Terminator()
	branch, ok := term.(mir.CondBranch)
	if !ok {
		return ConstBool{Value: true}
	}
	predRegs := l.exitReg[pred]
	cond := l.translate(branch.Cond, predRegs)
	if to == branch.TrueTarget {
		return cond
	}
	return notExpr(cond)
}

func (l *lowerer) processBlock(block mir.BlockID) {
	b := l.fn.Block(block)
	regs := l.entryReg[block].copy()
	memLow := l.entryMemLow[block]
	memHigh := l.entryMemHigh[block]
	cacheTouched := l.entryCache[block]
	var digest, seqState chanState
	if l.usesDigest() {
		digest = l.entryDigest[block].copy()
	}
	if l.usesSeq() {
		seqState = l.entrySeq[block].copy()
	}

	if gp, ok := l.guardPoints[block]; ok {
		l.emitGuard(gp)
	}

	for _, instr := range b.Instructions {
		switch ins := instr.(type) {
		case mir.Assign:
			v := l.fresh.next(string(block) + "." + ins.Dest.Name)
			expr := l.translate(ins.Expr, regs)
			l.prog.Assign(v, expr)
			regs[ins.Dest.Name] = VarRef{Name: v, S: expr.Sort()}
		case mir.Load:
			addr := l.translate(ins.Addr, regs)
			v := l.fresh.next(string(block) + "." + ins.Dest.Name)
			value := l.readMem(memLow, memHigh, addr)
			l.prog.Assign(v, value)
			regs[ins.Dest.Name] = VarRef{Name: v, S: value.Sort()}
			l.emitEffects(ins, b.PC, regs, digest, seqState)
			cacheTouched = l.touchCache(cacheTouched)
		case mir.Store:
			addr := l.translate(ins.Addr, regs)
			val := l.translate(ins.Value, regs)
			newLow, newHigh := l.writeMem(memLow, memHigh, addr, val)
			lowVar := l.fresh.next(string(block) + ".mem.low")
			l.prog.Assign(lowVar, newLow)
			memLow = VarRef{Name: lowVar, S: newLow.Sort()}
			highVar := l.fresh.next(string(block) + ".mem.high")
			l.prog.Assign(highVar, newHigh)
			memHigh = VarRef{Name: highVar, S: newHigh.Sort()}
			l.emitEffects(ins, b.PC, regs, digest, seqState)
			cacheTouched = l.touchCache(cacheTouched)
		case mir.CondBranch:
			l.emitEffects(ins, b.PC, regs, digest, seqState)
			l.lowerTransientWindow(block, regs, memLow, memHigh)
		case mir.Call:
			l.emitEffects(ins, b.PC, regs, digest, seqState)
			// An unresolved/opaque call's effect on architectural state
			// is modeled conservatively: every register and memory
			// becomes a fresh free value (spec.md §7(b): "unresolvable
			// indirect branch without BTB model" is otherwise a
			// pipeline error; here the BTB abstraction makes it a sound
			// over-approximation instead of an error).
			for _, name := range l.registers {
				regs[name] = NondetRef{Class: "call-clobber:" + name, S: regs[name].Sort()}
			}
			lowVar := l.fresh.next(string(block) + ".mem.call.low")
			l.prog.Assign(lowVar, NondetRef{Class: "call-clobber-mem-low", S: Array(64, 8)})
			memLow = VarRef{Name: lowVar, S: Array(64, 8)}
			highVar := l.fresh.next(string(block) + ".mem.call.high")
			l.prog.Assign(highVar, NondetRef{Class: "call-clobber-mem-high", S: Array(64, 8)})
			memHigh = VarRef{Name: highVar, S: Array(64, 8)}
		case mir.Return:
			// Sequential mode's one-observation-per-channel-per-terminal
			// (spec.md §4.4) is realized exactly here: the digest folded
			// across every architectural touch along this path is what
			// gets compared between the two composed executions, instead
			// of one Observe per touch.
			if l.usesDigest() {
				for _, ch := range l.channelSet() {
					l.prog.Observe(digest[ch], ch, OriginArchitectural)
				}
			}
		case mir.SpecBarrier, mir.Skip, mir.Jump:
			// No LIR effect: spbarr's rollback behavior is already
			// realized in internal/tcfg's window bound; Jump carries no
			// expression to lower.
		default:
			panic("lir: processBlock: unhandled mir.Instruction kind")
		}
	}

	for _, sp := range l.stlAt[block] {
		l.lowerSTLPoint(block, sp, regs)
	}

	l.exitReg[block] = regs
	l.exitMemLow[block] = memLow
	l.exitMemHigh[block] = memHigh
	l.exitCache[block] = cacheTouched
	if l.usesDigest() {
		l.exitDigest[block] = digest
	}
	if l.usesSeq() {
		l.exitSeq[block] = seqState
	}
}

// emitGuard realizes spec.md §4.1's unwinding/recursion guard: a block
// created by internal/cfg.Inline or internal/cfg.Unwind is reachable only
// once the recursion or loop bound has been exceeded, so reaching it here
// unconditionally means "assume this cannot happen" (a sound
// under-approximation that prunes the path from the search) or "assert
// this cannot happen" (a reported obligation, violated whenever the
// bound is in fact reachable).
func (l *lowerer) emitGuard(gp cfg.GuardPoint) {
	switch gp.Kind {
	case cfg.GuardPointAssertion:
		l.prog.Assert(ConstBool{Value: false}, gp.Reason)
	default:
		l.prog.Assume(ConstBool{Value: false}, gp.Reason)
	}
}

// touchCache records that the cache changed, for bookkeeping continuity
// across merges; the actual cache contents are modeled by the sequence
// of Observe nodes emitEffects produces, per spec.md §4.4.
func (l *lowerer) touchCache(prevMarker Expr) Expr {
	v := l.fresh.next("cache.touch")
	l.prog.Assign(v, ConstBool{Value: true})
	return VarRef{Name: v, S: Bool()}
}

// emitEffects looks up instr's microarchitectural effects via
// mir.Effects — the single source of truth for which instruction kinds
// touch which channel (spec.md §4.10) — translates each effect's
// relevant operand against regs, and routes it to an architectural
// observation under the configured --observe mode.
func (l *lowerer) emitEffects(instr mir.Instruction, pc uint64, regs regState, digest, seqState chanState) {
	for _, eff := range mir.Effects(instr, pc) {
		ch := l.channelForEffect(eff.Kind)
		if ch == "" {
			continue
		}
		var val Expr
		if eff.Kind == mir.EffectCacheFetch {
			val = l.translate(eff.Addr, regs)
		} else {
			val = l.translate(eff.Value, regs)
		}
		l.emitArchObserve(val, ch, digest, seqState)
	}
}

// emitArchObserve inserts one architectural observation per
// env.Analysis.Observe's mode (spec.md §4.4): `sequential` folds it into
// the per-channel digest instead of observing immediately; `trace` emits
// the value alongside a monotonically increasing per-channel ordinal, so
// the comparison carries explicit sequence position rather than a bare
// value; `parallel`/`full` observe immediately, as spec.md's table
// describes for both (they differ instead in internal/tcfg's window
// bound for transient observations, which emitArchObserve never handles —
// transient observations are always immediate, regardless of mode, since
// "each execution's terminal" names the committed architectural path).
func (l *lowerer) emitArchObserve(val Expr, channel string, digest, seqState chanState) {
	switch l.env.Analysis.Observe {
	case environment.ObserveSequential:
		digest[channel] = BinaryExpr{Op: OpXor, Left: digest[channel], Right: toBV64(val)}
	case environment.ObserveTrace:
		l.prog.Observe(val, channel, OriginArchitectural)
		v := l.fresh.next(channel + ".seq")
		l.prog.Assign(v, BinaryExpr{Op: OpAdd, Left: seqState[channel], Right: ConstBV{Value: 1, Width: 64}})
		seqState[channel] = VarRef{Name: v, S: BitVec(64)}
		l.prog.Observe(seqState[channel], channel+"-seq", OriginArchitectural)
	default: // ObserveParallel, ObserveFull
		l.prog.Observe(val, channel, OriginArchitectural)
	}
}

// lowerTransientWindow lowers one branch's bounded mis-speculated
// instruction window: register/memory effects are computed on a private
// copy seeded from the branch block's exit state and never written back
// (transient writes do not commit architecturally — spec.md §4.2's
// rollback), but every load/store address along the window is still
// observed, since a mis-speculated memory touch still leaves a trace on
// the cache channel before the pipeline squashes it. bp.Window holds
// both mis-speculated directions one after the other (internal/tcfg.Build
// appends the false-target walk to the true-target walk); each walk
// starts at depth 1, where the private copy is reseeded from the exit
// state, and both walks contribute observations unconditionally. Whether the window itself
// was capped at W (--observe parallel/sequential/trace) or left
// uncapped until spbarr (--observe full) is decided by
// internal/tcfg.Build before bp.Window ever reaches here.
func (l *lowerer) lowerTransientWindow(block mir.BlockID, archRegs regState, archMemLow, archMemHigh Expr) {
	bp, ok := l.branchAt[block]
	if !ok {
		return
	}
	tregs := archRegs.copy()
	tmemLow, tmemHigh := archMemLow, archMemHigh

	for _, step := range bp.Window {
		if step.Depth == 1 {
			// Each direction's walk starts over from the branch's exit state.
			tregs = archRegs.copy()
			tmemLow, tmemHigh = archMemLow, archMemHigh
		}
		sb := l.fn.Block(step.Block)
		switch ins := step.Instr.(type) {
		case mir.Assign:
			tregs[ins.Dest.Name] = l.translate(ins.Expr, tregs)
		case mir.Load:
			addr := l.translate(ins.Addr, tregs)
			l.emitTransientEffects(ins, sb.PC, tregs)
			tregs[ins.Dest.Name] = l.readMem(tmemLow, tmemHigh, addr)
		case mir.Store:
			addr := l.translate(ins.Addr, tregs)
			val := l.translate(ins.Value, tregs)
			l.emitTransientEffects(ins, sb.PC, tregs)
			tmemLow, tmemHigh = l.writeMem(tmemLow, tmemHigh, addr, val)
		}
	}
}

// emitTransientEffects mirrors emitEffects for a mis-speculated window
// step: transient observations are always immediate regardless of
// --observe mode (see emitArchObserve's doc comment).
func (l *lowerer) emitTransientEffects(instr mir.Instruction, pc uint64, regs regState) {
	for _, eff := range mir.Effects(instr, pc) {
		ch := l.channelForEffect(eff.Kind)
		if ch == "" {
			continue
		}
		var val Expr
		if eff.Kind == mir.EffectCacheFetch {
			val = l.translate(eff.Addr, regs)
		} else {
			val = l.translate(eff.Value, regs)
		}
		l.prog.Observe(val, ch, OriginTransient)
	}
}

// lowerSTLPoint lowers a Spectre-STL bypass: the load transiently reads
// sp.ForwardedValue (a stale, in-flight store's value) instead of the
// real memory array, observed on the cache/load-address channel like
// any other load.
func (l *lowerer) lowerSTLPoint(block mir.BlockID, sp tcfg.STLPoint, regs regState) {
	addr := l.translate(sp.Load.Addr, regs)
	l.prog.Observe(addr, l.channelForEffect(mir.EffectCacheFetch), OriginTransient)
	forwarded := l.translate(sp.ForwardedValue, regs)
	v := l.fresh.next(string(block) + ".stl." + sp.Load.Dest.Name)
	l.prog.Assign(v, forwarded)
}
