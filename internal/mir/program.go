package mir

import "sort"

// Program is a set of functions, as produced by a front-end (ELF or µASM
// loader) that is outside the scope of this module. The pipeline only
// ever reads a Program; it never mutates one in place.
type Program struct {
	Functions map[string]*Function
	Entry     string // entry function name
}

// NewProgram returns an empty program with the given entry function name.
func NewProgram(entry string) *Program {
	return &Program{Functions: make(map[string]*Function), Entry: entry}
}

// AddFunction inserts or replaces a function.
func (p *Program) AddFunction(f *Function) {
	p.Functions[f.Name] = f
}

// EntryFunction returns the program's entry function, or nil if absent.
func (p *Program) EntryFunction() *Function {
	return p.Functions[p.Entry]
}

// FunctionNames returns all function names in deterministic order.
func (p *Program) FunctionNames() []string {
	names := make([]string, 0, len(p.Functions))
	for name := range p.Functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
