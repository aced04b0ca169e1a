// Package policy implements the security policy of spec.md §3: a total
// function from every register and every memory byte to {low, high},
// encoded as a default level plus explicit exceptions.
package policy

import "sort"

// Level is the security classification of a register or memory location.
type Level int

const (
	Low Level = iota
	High
)

func (l Level) String() string {
	if l == Low {
		return "low"
	}
	return "high"
}

// AddrRange is a half-open byte range [Start, End).
type AddrRange struct {
	Start, End uint64
}

func (r AddrRange) contains(addr uint64) bool {
	return addr >= r.Start && addr < r.End
}

// Policy classifies every register (by name) and every memory byte (by
// address) as Low or High. It is a pure function of its overrides; once
// constructed it is never mutated (spec.md §3 "Environment ... Immutable
// after loading").
type Policy struct {
	DefaultRegisterLevel Level
	DefaultMemoryLevel   Level
	RegisterOverrides    map[string]Level
	MemoryOverrides      []struct {
		Range AddrRange
		Level Level
	}
}

// New returns a policy with the given defaults and no overrides.
func New(defaultRegister, defaultMemory Level) *Policy {
	return &Policy{
		DefaultRegisterLevel: defaultRegister,
		DefaultMemoryLevel:   defaultMemory,
		RegisterOverrides:    make(map[string]Level),
	}
}

// SetRegister overrides the classification of a single named register.
func (p *Policy) SetRegister(name string, level Level) {
	p.RegisterOverrides[name] = level
}

// SetMemoryRange overrides the classification of a half-open address
// range. Ranges are consulted most-recently-added-first, so a later call
// can carve an exception out of an earlier, wider range.
func (p *Policy) SetMemoryRange(r AddrRange, level Level) {
	p.MemoryOverrides = append(p.MemoryOverrides, struct {
		Range AddrRange
		Level Level
	}{r, level})
}

// Register returns the classification of a named register.
func (p *Policy) Register(name string) Level {
	if lvl, ok := p.RegisterOverrides[name]; ok {
		return lvl
	}
	return p.DefaultRegisterLevel
}

// Memory returns the classification of a single memory byte address.
func (p *Policy) Memory(addr uint64) Level {
	for i := len(p.MemoryOverrides) - 1; i >= 0; i-- {
		if p.MemoryOverrides[i].Range.contains(addr) {
			return p.MemoryOverrides[i].Level
		}
	}
	return p.DefaultMemoryLevel
}

// IsAllLow reports whether the register default, every register override,
// the memory default and every memory override classify as Low — the precondition of the
// "check = normal and policy = all low ⟹ UNSAT" testable property
// (spec.md §8).
func (p *Policy) IsAllLow() bool {
	if p.DefaultRegisterLevel != Low || p.DefaultMemoryLevel != Low {
		return false
	}
	for _, lvl := range p.RegisterOverrides {
		if lvl != Low {
			return false
		}
	}
	for _, o := range p.MemoryOverrides {
		if o.Level != Low {
			return false
		}
	}
	return true
}

// LowRegisterNames returns the names with explicit Low overrides, sorted,
// used when the policy default is High and callers need a stable list of
// the registers to equate across the two self-composed executions.
func (p *Policy) LowRegisterNames() []string {
	var names []string
	for name, lvl := range p.RegisterOverrides {
		if lvl == Low {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
