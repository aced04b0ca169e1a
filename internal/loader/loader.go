// Package loader turns a text file into a internal/mir.Program. The real
// front-ends this pipeline is designed against — an ELF disassembler and
// a µASM parser — are explicitly out of scope (spec.md §1 "external
// collaborators"; original_source/src/loader/{falcon,muasm}.rs both
// delegate to an external crate this module has no equivalent of). This
// loader instead reads instruction lines in the shape
// internal/mir.InstrString renders, under its own `entry:`, `func <name>`
// and `block <id> pc=<addr>` header lines, which is what cmd/specbmc
// needs to be runnable end to end without a real disassembler. A --mir
// dump does not load back as is: its `<id>: (pc=...)` block headers are
// not accepted, and extend/truncate operators need an explicit width
// (`zext:64`) that the dump does not print.
package loader

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/relentless-labs/specbmc/internal/mir"
	"github.com/relentless-labs/specbmc/internal/perr"
)

// Load reads path and parses it into a Program. See the package doc for
// the accepted text shape; ParseErrors carry a line number via
// perr.SourcePos.
func Load(path string) (*mir.Program, *perr.Error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, perr.Input("loader", "could not read %q: %v", path, err)
	}
	return Parse(path, string(data))
}

// Parse parses source text already read from name (name is only used to
// attribute error positions).
func Parse(name, source string) (*mir.Program, *perr.Error) {
	p := &parser{name: name, widths: map[string]mir.Width{}}
	if err := p.run(source); err != nil {
		return nil, err
	}
	return p.prog, nil
}

type parser struct {
	name    string
	prog    *mir.Program
	fn      *mir.Function
	widths  map[string]mir.Width
	lineNum int
}

func (p *parser) errf(format string, args ...interface{}) *perr.Error {
	return perr.Input("loader", format, args...).WithPos(perr.SourcePos{File: p.name, Line: p.lineNum})
}

func (p *parser) run(source string) *perr.Error {
	scanner := bufio.NewScanner(strings.NewReader(source))
	var blockInstrs []mir.Instruction
	var blockID mir.BlockID
	var blockPC uint64
	haveBlock := false

	flush := func() {
		if haveBlock {
			p.fn.AddBlock(&mir.BasicBlock{ID: blockID, PC: blockPC, Instructions: blockInstrs})
		}
		blockInstrs = nil
		haveBlock = false
	}

	for scanner.Scan() {
		p.lineNum++
		line := stripComment(scanner.Text())
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		switch {
		case strings.HasPrefix(trimmed, "entry:"):
			name := strings.TrimSpace(strings.TrimPrefix(trimmed, "entry:"))
			if p.prog == nil {
				p.prog = mir.NewProgram(name)
			} else {
				p.prog.Entry = name
			}

		case strings.HasPrefix(trimmed, "func "):
			flush()
			fnName := strings.TrimSpace(strings.TrimPrefix(trimmed, "func "))
			if p.prog == nil {
				p.prog = mir.NewProgram(fnName)
			}
			p.fn = mir.NewFunction(fnName, "")
			p.prog.AddFunction(p.fn)

		case strings.HasPrefix(trimmed, "block "):
			flush()
			if p.fn == nil {
				return p.errf("block declared before any func")
			}
			id, pc, err := parseBlockHeader(trimmed)
			if err != nil {
				return p.errf("%v", err)
			}
			if p.fn.Entry == "" {
				p.fn.Entry = id
			}
			blockID, blockPC, haveBlock = id, pc, true

		default:
			if !haveBlock {
				return p.errf("instruction outside any block: %q", trimmed)
			}
			instr, err := p.parseInstruction(trimmed)
			if err != nil {
				return p.errf("%v", err)
			}
			blockInstrs = append(blockInstrs, instr)
		}
	}
	flush()

	if p.prog == nil {
		return p.errf("empty program")
	}
	return nil
}

func stripComment(line string) string {
	if i := strings.Index(line, ";"); i >= 0 {
		return line[:i]
	}
	return line
}

// parseBlockHeader parses `block <id> pc=<addr>`.
func parseBlockHeader(line string) (mir.BlockID, uint64, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 || fields[0] != "block" {
		return "", 0, fmt.Errorf("malformed block header %q", line)
	}
	id := mir.BlockID(fields[1])
	pcField := fields[2]
	if !strings.HasPrefix(pcField, "pc=") {
		return "", 0, fmt.Errorf("block header missing pc=<addr>: %q", line)
	}
	pc, err := parseUint(strings.TrimPrefix(pcField, "pc="))
	if err != nil {
		return "", 0, fmt.Errorf("bad block address %q: %v", pcField, err)
	}
	return id, pc, nil
}

func parseUint(s string) (uint64, error) {
	s = strings.TrimSuffix(s, ",")
	if strings.HasPrefix(s, "0x") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}

// parseInstruction dispatches on the mnemonic InstrString would have
// rendered on this line — a deliberately narrow grammar covering the
// instruction shapes internal/mir.InstrString produces.
func (p *parser) parseInstruction(line string) (mir.Instruction, error) {
	switch {
	case line == "ret":
		return mir.Return{}, nil
	case line == "spbarr":
		return mir.SpecBarrier{}, nil
	case line == "skip":
		return mir.Skip{}, nil
	case strings.HasPrefix(line, "beqz "):
		return p.parseCondBranch(line)
	case strings.HasPrefix(line, "jmp "):
		return mir.Jump{Target: mir.BlockID(strings.TrimSpace(strings.TrimPrefix(line, "jmp ")))}, nil
	case strings.HasPrefix(line, "call "):
		return p.parseCall(line, false)
	case strings.HasPrefix(line, "icall "):
		return p.parseCall(line, true)
	case strings.Contains(line, ":="):
		return p.parseAssignOrLoadOrStore(line)
	default:
		return nil, fmt.Errorf("unrecognized instruction %q", line)
	}
}

func (p *parser) parseCondBranch(line string) (mir.Instruction, error) {
	rest := strings.TrimPrefix(line, "beqz ")
	parts := splitTopLevel(rest, ',')
	if len(parts) != 3 {
		return nil, fmt.Errorf("beqz needs `cond, falseTarget, trueTarget`, got %q", line)
	}
	cond, err := p.parseExpr(strings.TrimSpace(parts[0]))
	if err != nil {
		return nil, err
	}
	return mir.CondBranch{
		Cond:        cond,
		FalseTarget: mir.BlockID(strings.TrimSpace(parts[1])),
		TrueTarget:  mir.BlockID(strings.TrimSpace(parts[2])),
	}, nil
}

func (p *parser) parseCall(line string, indirect bool) (mir.Instruction, error) {
	mnemonic := "call "
	if indirect {
		mnemonic = "icall "
	}
	rest := strings.TrimPrefix(line, mnemonic)
	arrow := strings.Index(rest, "->")
	if arrow < 0 {
		return nil, fmt.Errorf("call needs `target -> returnBlock`, got %q", line)
	}
	target := strings.TrimSpace(rest[:arrow])
	ret := mir.BlockID(strings.TrimSpace(rest[arrow+2:]))
	if !indirect {
		return mir.Call{Callee: target, Return: ret}, nil
	}
	expr, err := p.parseExpr(target)
	if err != nil {
		return nil, err
	}
	return mir.Call{Indirect: expr, Return: ret}, nil
}

func (p *parser) parseAssignOrLoadOrStore(line string) (mir.Instruction, error) {
	idx := strings.Index(line, ":=")
	lhs := strings.TrimSpace(line[:idx])
	rhs := strings.TrimSpace(line[idx+2:])

	if strings.HasPrefix(lhs, "store") && strings.Contains(lhs, "[") {
		addr, width, err := parseIndexed(lhs, "store")
		if err != nil {
			return nil, err
		}
		val, err := p.parseExpr(rhs)
		if err != nil {
			return nil, err
		}
		return mir.Store{Addr: addr, Value: val, AccessWidth: width}, nil
	}

	if strings.HasPrefix(rhs, "load") && strings.Contains(rhs, "[") {
		addr, width, err := parseIndexed(rhs, "load")
		if err != nil {
			return nil, err
		}
		dest := p.register(lhs, width)
		return mir.Load{Dest: dest, Addr: addr, AccessWidth: width}, nil
	}

	expr, err := p.parseExpr(rhs)
	if err != nil {
		return nil, err
	}
	dest := p.register(lhs, expr.Width())
	return mir.Assign{Dest: dest, Expr: expr}, nil
}

// parseIndexed parses `<mnemonic><width>[<addrExpr>]`, e.g. "load64[x]".
func parseIndexed(s, mnemonic string) (mir.Expr, mir.Width, error) {
	open := strings.Index(s, "[")
	close := strings.LastIndex(s, "]")
	if open < 0 || close < open {
		return nil, 0, fmt.Errorf("malformed %s[...] in %q", mnemonic, s)
	}
	widthStr := strings.TrimPrefix(s[:open], mnemonic)
	width, err := widthFromString(widthStr)
	if err != nil {
		return nil, 0, err
	}
	addrExpr := strings.TrimSpace(s[open+1 : close])
	p := &parser{widths: map[string]mir.Width{}}
	addr, perrErr := p.parseExpr(addrExpr)
	if perrErr != nil {
		return nil, 0, perrErr
	}
	return addr, width, nil
}

func widthFromString(s string) (mir.Width, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad access width %q: %v", s, err)
	}
	switch n {
	case 8, 16, 32, 64, 128:
		return mir.Width(n), nil
	default:
		return 0, fmt.Errorf("unsupported access width %d", n)
	}
}

// register returns (and remembers) the width of a named register; a
// register keeps the width of its first mention unless a later mention
// makes it explicit via `name:W`.
func (p *parser) register(nameField string, fallback mir.Width) mir.Register {
	name, width, ok := splitWidthSuffix(nameField)
	if !ok {
		width = fallback
	}
	if w, seen := p.widths[name]; seen {
		width = w
	} else {
		p.widths[name] = width
	}
	return mir.Register{Name: name, W: width}
}

func splitWidthSuffix(s string) (name string, width mir.Width, ok bool) {
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return s, 0, false
	}
	n, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return s, 0, false
	}
	return s[:i], mir.Width(n), true
}

// splitTopLevel splits s on sep, ignoring occurrences nested inside
// parens/brackets/angle-brackets — needed because expressions like
// `nondet<class>:64` and `(add a b)` may themselves contain commas.
func splitTopLevel(s string, sep byte) []string {
	var out []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[', '<':
			depth++
		case ')', ']', '>':
			depth--
		case sep:
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}
