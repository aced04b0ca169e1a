package mir

// Builder assembles a single-function Program incrementally. It exists so
// that tests (and the end-to-end scenarios of spec.md §8) can express
// fixture programs directly in Go, mirroring how front-ends (outside this
// module) would construct a Program from parsed µASM/ELF input.
type Builder struct {
	prog *Program
	fn   *Function
}

// NewBuilder starts a program whose entry function is named fnName.
func NewBuilder(fnName string, entryBlock BlockID) *Builder {
	fn := NewFunction(fnName, entryBlock)
	prog := NewProgram(fnName)
	prog.AddFunction(fn)
	return &Builder{prog: prog, fn: fn}
}

// Block appends a block with the given instructions to the current
// function and returns the builder for chaining.
func (b *Builder) Block(id BlockID, pc uint64, instrs ...Instruction) *Builder {
	b.fn.AddBlock(&BasicBlock{ID: id, PC: pc, Instructions: instrs})
	return b
}

// Function switches the builder to a new function, added to the same
// program, for building multi-function (call/inlining) fixtures.
func (b *Builder) Function(name string, entryBlock BlockID) *Builder {
	fn := NewFunction(name, entryBlock)
	b.prog.AddFunction(fn)
	b.fn = fn
	return b
}

// Build returns the assembled program.
func (b *Builder) Build() *Program {
	return b.prog
}
