package environment

import (
	"github.com/relentless-labs/specbmc/internal/perr"
	"github.com/relentless-labs/specbmc/internal/policy"
)

func parseLevel(s string) (policy.Level, bool) {
	switch s {
	case "low", "":
		return policy.Low, true
	case "high":
		return policy.High, true
	default:
		return policy.Low, false
	}
}

// BuildPolicy converts the YAML-shaped Policy section into an
// internal/policy.Policy, validating register names against knownRegisters
// (spec.md §7(a): "policy referring to an unknown register").
func (e *Environment) BuildPolicy(knownRegisters map[string]bool) (*policy.Policy, *perr.Error) {
	regDefault, ok := parseLevel(e.Policy.Registers.Default)
	if !ok {
		return nil, perr.Input("environment", "policy.registers.default: invalid level %q", e.Policy.Registers.Default)
	}
	memDefault, ok := parseLevel(e.Policy.Memory.Default)
	if !ok {
		return nil, perr.Input("environment", "policy.memory.default: invalid level %q", e.Policy.Memory.Default)
	}

	p := policy.New(regDefault, memDefault)

	for _, name := range e.Policy.Registers.Low {
		if knownRegisters != nil && !knownRegisters[name] {
			return nil, perr.Input("environment", "policy.registers.low: unknown register %q", name)
		}
		p.SetRegister(name, policy.Low)
	}
	for _, name := range e.Policy.Registers.High {
		if knownRegisters != nil && !knownRegisters[name] {
			return nil, perr.Input("environment", "policy.registers.high: unknown register %q", name)
		}
		p.SetRegister(name, policy.High)
	}

	for _, r := range e.Policy.Memory.Low {
		p.SetMemoryRange(policy.AddrRange{Start: r.Start, End: r.End}, policy.Low)
	}
	for _, r := range e.Policy.Memory.High {
		p.SetMemoryRange(policy.AddrRange{Start: r.Start, End: r.End}, policy.High)
	}

	return p, nil
}
