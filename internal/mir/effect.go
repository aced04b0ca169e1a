package mir

// EffectKind enumerates the microarchitectural side effects an
// instruction can have. Keeping effects as data attached to each
// instruction — rather than hard-coding "loads touch the cache" deep
// inside the transient-CFG builder — lets spectre_pht and spectre_stl
// observation wiring share one code path (see transient-execution
// semantics in the tcfg package).
type EffectKind int

const (
	// EffectCacheFetch models a load/store pulling an address into cache.
	EffectCacheFetch EffectKind = iota
	// EffectBTBUpdate models a (possibly indirect) branch updating the
	// branch target buffer entry for the issuing program counter.
	EffectBTBUpdate
	// EffectPHTUpdate models a conditional branch updating its pattern
	// history table entry with the resolved outcome.
	EffectPHTUpdate
	// EffectStoreBuffer models a store entering the store buffer, a
	// prerequisite for Spectre-STL stale-value forwarding.
	EffectStoreBuffer
)

// Effect is one declared microarchitectural side effect of an instruction,
// still unapplied — internal/lir's lowering decides whether and how to
// turn it into observations (internal/tcfg reads it only to find
// Spectre-STL points).
type Effect struct {
	Kind    EffectKind
	Addr    Expr   // cache line / BTB / PHT index expression, when applicable
	Value   Expr   // branch target / taken-bit / stored value, when applicable
	Width   Width  // access width, for cache effects
	Comment string // e.g. "load", "indirect-call", "conditional-branch"
}

// Effects returns the microarchitectural side effects of executing instr
// at the given program counter. It is the single place that knows which
// instruction kinds touch which microarchitectural component.
func Effects(instr Instruction, pc uint64) []Effect {
	switch ins := instr.(type) {
	case Load:
		return []Effect{{
			Kind:    EffectCacheFetch,
			Addr:    ins.Addr,
			Width:   ins.AccessWidth,
			Comment: "load",
		}}
	case Store:
		effs := []Effect{{
			Kind:    EffectCacheFetch,
			Addr:    ins.Addr,
			Width:   ins.AccessWidth,
			Comment: "store",
		}}
		effs = append(effs, Effect{
			Kind:    EffectStoreBuffer,
			Addr:    ins.Addr,
			Value:   ins.Value,
			Width:   ins.AccessWidth,
			Comment: "store-buffer-entry",
		})
		return effs
	case CondBranch:
		return []Effect{{
			Kind:    EffectPHTUpdate,
			Addr:    Const{Value: pc, W: Width64},
			Value:   ins.Cond,
			Comment: "conditional-branch",
		}}
	case Call:
		if ins.Indirect != nil {
			return []Effect{{
				Kind:    EffectBTBUpdate,
				Addr:    Const{Value: pc, W: Width64},
				Value:   ins.Indirect,
				Comment: "indirect-call",
			}}
		}
		return nil
	default:
		return nil
	}
}
