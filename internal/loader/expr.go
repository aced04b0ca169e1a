package loader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/relentless-labs/specbmc/internal/mir"
)

var unaryNames = map[string]mir.UnaryOp{
	"not":  mir.OpNot,
	"neg":  mir.OpNeg,
	"bnot": mir.OpBoolNot,
}

var extendNames = map[string]mir.UnaryOp{
	"zext":  mir.OpZeroExtend,
	"sext":  mir.OpSignExtend,
	"trunc": mir.OpTruncate,
}

var binaryNames = map[string]mir.BinaryOp{
	"add": mir.OpAdd, "sub": mir.OpSub, "mul": mir.OpMul,
	"udiv": mir.OpUDiv, "sdiv": mir.OpSDiv, "urem": mir.OpURem, "srem": mir.OpSRem,
	"and": mir.OpAnd, "or": mir.OpOr, "xor": mir.OpXor,
	"shl": mir.OpShl, "lshr": mir.OpLShr, "ashr": mir.OpAShr, "concat": mir.OpConcat,
	"eq": mir.OpEq, "ult": mir.OpUlt, "ule": mir.OpUle, "ugt": mir.OpUgt, "uge": mir.OpUge,
	"slt": mir.OpSlt, "sle": mir.OpSle, "sgt": mir.OpSgt, "sge": mir.OpSge,
	"band": mir.OpBoolAnd, "bor": mir.OpBoolOr, "bimplies": mir.OpBoolImplies,
}

var boolResultOps = map[string]bool{
	"eq": true, "ult": true, "ule": true, "ugt": true, "uge": true,
	"slt": true, "sle": true, "sgt": true, "sge": true,
	"band": true, "bor": true, "bimplies": true,
}

// parseExpr parses a single expression. Parenthesized forms are
// `(op arg...)`; everything else is a register, a `0x..:W`/`123:W`
// constant, or a `nondet<class>:W` free input.
func (p *parser) parseExpr(s string) (mir.Expr, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")"):
		return p.parseParenExpr(s[1 : len(s)-1])
	case strings.HasPrefix(s, "nondet<"):
		return parseNondet(s)
	case looksLikeConst(s):
		return parseConst(s)
	default:
		return p.register(s, 64), nil
	}
}

func (p *parser) parseParenExpr(body string) (mir.Expr, error) {
	fields := splitTopLevel(strings.TrimSpace(body), ' ')
	if len(fields) == 0 || fields[0] == "" {
		return nil, fmt.Errorf("empty parenthesized expression")
	}
	head := fields[0]
	args := fields[1:]

	if head == "ite" {
		if len(args) != 3 {
			return nil, fmt.Errorf("ite needs 3 arguments, got %d", len(args))
		}
		cond, err := p.parseExpr(args[0])
		if err != nil {
			return nil, err
		}
		then, err := p.parseExpr(args[1])
		if err != nil {
			return nil, err
		}
		els, err := p.parseExpr(args[2])
		if err != nil {
			return nil, err
		}
		return mir.IteExpr{Cond: cond, Then: then, Else: els}, nil
	}

	if op, ok := unaryNames[head]; ok {
		if len(args) != 1 {
			return nil, fmt.Errorf("%s needs 1 argument, got %d", head, len(args))
		}
		arg, err := p.parseExpr(args[0])
		if err != nil {
			return nil, err
		}
		return mir.UnaryExpr{Op: op, Arg: arg, ResultWidth: arg.Width()}, nil
	}

	if mnem, width, ok := extendOp(head); ok {
		if len(args) != 1 {
			return nil, fmt.Errorf("%s needs 1 argument, got %d", head, len(args))
		}
		arg, err := p.parseExpr(args[0])
		if err != nil {
			return nil, err
		}
		return mir.UnaryExpr{Op: mnem, Arg: arg, ResultWidth: width}, nil
	}

	if op, ok := binaryNames[head]; ok {
		if len(args) != 2 {
			return nil, fmt.Errorf("%s needs 2 arguments, got %d", head, len(args))
		}
		left, err := p.parseExpr(args[0])
		if err != nil {
			return nil, err
		}
		right, err := p.parseExpr(args[1])
		if err != nil {
			return nil, err
		}
		resultWidth := left.Width()
		if boolResultOps[head] {
			resultWidth = 1
		}
		return mir.BinaryExpr{Op: op, Left: left, Right: right, ResultWidth: resultWidth}, nil
	}

	return nil, fmt.Errorf("unknown operator %q", head)
}

// extendOp parses "zext:64" / "sext:32" / "trunc:8" into its UnaryOp and
// declared result width.
func extendOp(head string) (mir.UnaryOp, mir.Width, bool) {
	i := strings.IndexByte(head, ':')
	if i < 0 {
		return 0, 0, false
	}
	op, ok := extendNames[head[:i]]
	if !ok {
		return 0, 0, false
	}
	n, err := strconv.Atoi(head[i+1:])
	if err != nil {
		return 0, 0, false
	}
	return op, mir.Width(n), true
}

func looksLikeConst(s string) bool {
	return strings.HasPrefix(s, "0x") || (len(s) > 0 && (s[0] >= '0' && s[0] <= '9'))
}

func parseConst(s string) (mir.Expr, error) {
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return nil, fmt.Errorf("constant %q missing :width", s)
	}
	valStr, widthStr := s[:i], s[i+1:]
	width, err := strconv.Atoi(widthStr)
	if err != nil {
		return nil, fmt.Errorf("bad constant width in %q: %v", s, err)
	}
	val, err := parseUint(valStr)
	if err != nil {
		return nil, fmt.Errorf("bad constant value in %q: %v", s, err)
	}
	return mir.Const{Value: val, W: mir.Width(width)}, nil
}

func parseNondet(s string) (mir.Expr, error) {
	open := strings.IndexByte(s, '<')
	close := strings.IndexByte(s, '>')
	if open < 0 || close < open {
		return nil, fmt.Errorf("malformed nondet<class>:width in %q", s)
	}
	class := s[open+1 : close]
	rest := s[close+1:]
	if !strings.HasPrefix(rest, ":") {
		return nil, fmt.Errorf("nondet missing :width in %q", s)
	}
	width, err := strconv.Atoi(rest[1:])
	if err != nil {
		return nil, fmt.Errorf("bad nondet width in %q: %v", s, err)
	}
	return mir.NondetExpr{Class: class, W: mir.Width(width)}, nil
}
