package cfg

import (
	"sort"

	"github.com/relentless-labs/specbmc/internal/environment"
	"github.com/relentless-labs/specbmc/internal/mir"
)

// InitLayout is the concrete initial machine state the pipeline pins
// free inputs to, built from environment.Setup. Registers/memory cells
// not named here stay nondeterministic (mir.NondetExpr), matching
// original_source's transformation/{init_stack,init_global_variables,
// init_memory}.rs: only what the environment pins is concrete, everything
// else is attacker/environment controlled.
type InitLayout struct {
	InitStack     bool
	Registers     map[string]uint64
	Flags         map[string]bool
	Memory        map[uint64]uint64
	StackRegister string // name of the register the stack pointer occupies, if InitStack
}

// BuildInitLayout derives an InitLayout from env.Setup. stackRegister
// names the architectural stack-pointer register (e.g. "rsp"); it is
// only consulted when env.Setup.InitStack is set.
func BuildInitLayout(env *environment.Environment, stackRegister string) *InitLayout {
	layout := &InitLayout{
		InitStack:     env.Setup.InitStack,
		Registers:     make(map[string]uint64, len(env.Setup.Registers)),
		Flags:         make(map[string]bool, len(env.Setup.Flags)),
		Memory:        make(map[uint64]uint64, len(env.Setup.Memory)),
		StackRegister: stackRegister,
	}
	for k, v := range env.Setup.Registers {
		layout.Registers[k] = v
	}
	for k, v := range env.Setup.Flags {
		layout.Flags[k] = v
	}
	for k, v := range env.Setup.Memory {
		layout.Memory[k] = v
	}
	return layout
}

// InitExpr returns the expression a register should be initialized to:
// the pinned constant if the layout fixes it, or a fresh nondeterministic
// value otherwise. The "init-reg" class lets internal/smt declare these
// as distinguishable free constants in dumps/diagnostics.
func (l *InitLayout) InitExpr(name string, width mir.Width) mir.Expr {
	if v, ok := l.Registers[name]; ok {
		return mir.Const{Value: v, W: width}
	}
	return mir.NondetExpr{Class: "init-reg:" + name, W: width}
}

// MemoryAddrs returns every address the layout pins, in ascending order —
// used by dump output so the rendering is deterministic.
func (l *InitLayout) MemoryAddrs() []uint64 {
	out := make([]uint64, 0, len(l.Memory))
	for addr := range l.Memory {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
