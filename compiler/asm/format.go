package asm

import (
	"fmt"

	"github.com/nikandfor/hacked/hfmt"
)

type (
	Options struct {
		// Prefix is prepended to global and extern symbols ("_" for Mach-O).
		Prefix string
	}

	printer struct {
		Options

		syms map[Label]struct{}
	}
)

// Format appends NASM text for the program.
func Format(b []byte, p *Program, opts Options) []byte {
	pr := printer{
		Options: opts,
		syms:    map[Label]struct{}{p.Entry: {}},
	}

	for _, l := range p.Extern {
		pr.syms[l] = struct{}{}
	}

	b = append(b, "section .text\n"...)

	for _, l := range p.Extern {
		b = hfmt.Appendf(b, "extern %s\n", pr.sym(l))
	}

	b = hfmt.Appendf(b, "global %s\n", pr.sym(p.Entry))

	for _, f := range p.Funcs {
		b = append(b, '\n')
		b = hfmt.Appendf(b, "%s:\n", pr.sym(f.Name))

		for _, x := range f.Body {
			b = pr.instr(b, x)
		}
	}

	return b
}

// FormatInstr appends a single instruction line.
func FormatInstr(b []byte, x Instr) []byte {
	return printer{}.instr(b, x)
}

func (p printer) instr(b []byte, x Instr) []byte {
	switch x := x.(type) {
	case Mov:
		return p.op2(b, "mov", x.Dst, x.Src)
	case Add:
		return p.op2(b, "add", x.Dst, x.Src)
	case Sub:
		return p.op2(b, "sub", x.Dst, x.Src)
	case IMul:
		return p.op2(b, "imul", x.Dst, x.Src)
	case And:
		return p.op2(b, "and", x.Dst, x.Src)
	case Or:
		return p.op2(b, "or", x.Dst, x.Src)
	case Xor:
		return p.op2(b, "xor", x.Dst, x.Src)
	case Cmp:
		return p.op2(b, "cmp", x.Dst, x.Src)
	case Test:
		return p.op2(b, "test", x.Dst, x.Src)
	case Sar:
		return hfmt.Appendf(b, "  sar %s, %d\n", p.operand(x.Dst, true), x.N)
	case Shl:
		return hfmt.Appendf(b, "  shl %s, %d\n", p.operand(x.Dst, true), x.N)
	case Neg:
		return hfmt.Appendf(b, "  neg %s\n", p.operand(x.Dst, true))
	case Push:
		return hfmt.Appendf(b, "  push %s\n", p.operand(x.Src, true))
	case Pop:
		return hfmt.Appendf(b, "  pop %s\n", p.operand(x.Dst, true))
	case Jmp:
		return hfmt.Appendf(b, "  jmp %s\n", p.sym(x.Label))
	case J:
		return hfmt.Appendf(b, "  j%s %s\n", x.Cond, p.sym(x.Label))
	case CMov:
		return hfmt.Appendf(b, "  cmov%s %v, %v\n", x.Cond, x.Dst, x.Src)
	case Call:
		return hfmt.Appendf(b, "  call %s\n", p.sym(x.Label))
	case Ret:
		return append(b, "  ret\n"...)
	case LabelDef:
		return hfmt.Appendf(b, "%s:\n", p.sym(x.Label))
	case Comment:
		return hfmt.Appendf(b, "  ; %s\n", x.Text)
	default:
		panic(fmt.Sprintf("unsupported instruction: %T", x))
	}
}

func (p printer) op2(b []byte, name string, dst, src Operand) []byte {
	_, dimm := dst.(Imm)
	_, simm := src.(Imm)

	return hfmt.Appendf(b, "  %s %s, %s\n", name, p.operand(dst, simm), p.operand(src, dimm))
}

// operand renders x; sized asks for an explicit operand size on memory references.
func (p printer) operand(x Operand, sized bool) string {
	switch x := x.(type) {
	case Reg:
		return x.String()
	case Imm:
		return fmt.Sprintf("%d", int64(x))
	case Label:
		return p.sym(x)
	case Mem:
		size := ""
		if sized {
			size = "qword "
		}

		switch {
		case x.Off < 0:
			return fmt.Sprintf("%s[%v - %d]", size, x.Base, -x.Off)
		case x.Off > 0:
			return fmt.Sprintf("%s[%v + %d]", size, x.Base, x.Off)
		default:
			return fmt.Sprintf("%s[%v]", size, x.Base)
		}
	default:
		panic(fmt.Sprintf("unsupported operand: %T", x))
	}
}

func (p printer) sym(l Label) string {
	if _, ok := p.syms[l]; ok {
		return p.Prefix + string(l)
	}

	return string(l)
}
