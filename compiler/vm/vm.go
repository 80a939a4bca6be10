// Package vm executes compiled programs on a small emulated x86-64 subset.
//
// It plays the part of the runtime: snek_print writes decoded values to Out
// and snek_error stops the program with a RuntimeError.
// Every call must happen with rsp aligned to 16 bytes.
package vm

import (
	"context"
	"fmt"
	"io"
	"math"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/snek/compiler/asm"
	"github.com/slowlang/snek/compiler/back"
	"github.com/slowlang/snek/compiler/tag"
)

type (
	Machine struct {
		// Input is passed to the entry point in rdi. Tagged.
		Input int64

		// StepLimit bounds executed instructions. Zero means DefaultStepLimit.
		StepLimit int

		Out io.Writer
	}

	RuntimeError struct {
		Code int64
	}

	AlignmentError struct {
		At  asm.Label
		RSP int64
	}

	state struct {
		*Machine

		regs [8]int64
		mem  map[int64]int64

		zf, sf, of bool

		code   []asm.Instr
		labels map[asm.Label]int
		extern map[asm.Label]struct{}
	}
)

const DefaultStepLimit = 10_000_000

const (
	stackTop = 1 << 24
	retEntry = -1
)

var ErrStepLimit = errors.New("step limit exceeded")

// Run executes p and returns the value left in rax by the entry point.
func (m *Machine) Run(ctx context.Context, p *asm.Program) (res int64, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "vm: run", "entry", p.Entry, "input", m.Input)
	defer tr.Finish("err", &err)

	s := &state{
		Machine: m,
		mem:     make(map[int64]int64),
		labels:  make(map[asm.Label]int),
		extern:  make(map[asm.Label]struct{}),
	}

	err = s.load(p)
	if err != nil {
		return 0, errors.Wrap(err, "load")
	}

	entry, ok := s.labels[p.Entry]
	if !ok {
		return 0, errors.New("no entry point: %v", p.Entry)
	}

	s.regs[asm.RSP] = stackTop
	s.regs[asm.RDI] = m.Input
	s.push(retEntry)

	err = s.exec(ctx, entry)
	if err != nil {
		return 0, err
	}

	if s.regs[asm.RSP] != stackTop {
		return 0, errors.New("stack not restored: rsp %#x, want %#x", s.regs[asm.RSP], stackTop)
	}

	return s.regs[asm.RAX], nil
}

func (s *state) load(p *asm.Program) error {
	for _, l := range p.Extern {
		s.extern[l] = struct{}{}
	}

	def := func(l asm.Label) error {
		if _, ok := s.labels[l]; ok {
			return errors.New("duplicate label: %v", l)
		}

		s.labels[l] = len(s.code)

		return nil
	}

	for _, f := range p.Funcs {
		err := def(f.Name)
		if err != nil {
			return err
		}

		for _, x := range f.Body {
			if l, ok := x.(asm.LabelDef); ok {
				err = def(l.Label)
				if err != nil {
					return err
				}
			}

			s.code = append(s.code, x)
		}
	}

	return nil
}

func (s *state) exec(ctx context.Context, pc int) error {
	limit := s.StepLimit
	if limit == 0 {
		limit = DefaultStepLimit
	}

	for steps := 0; pc != retEntry; steps++ {
		if steps == limit {
			return ErrStepLimit
		}

		if steps%4096 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}

		if pc < 0 || pc >= len(s.code) {
			return errors.New("pc out of code: %d", pc)
		}

		x := s.code[pc]
		pc++

		switch x := x.(type) {
		case asm.Mov:
			s.write(x.Dst, s.read(x.Src))
		case asm.Add:
			a, b := s.read(x.Dst), s.read(x.Src)
			r := a + b
			s.write(x.Dst, r)
			s.flags(r, (a >= 0) == (b >= 0) && (r >= 0) != (a >= 0))
		case asm.Sub:
			a, b := s.read(x.Dst), s.read(x.Src)
			r := a - b
			s.write(x.Dst, r)
			s.flags(r, subOverflow(a, b, r))
		case asm.Cmp:
			a, b := s.read(x.Dst), s.read(x.Src)
			r := a - b
			s.flags(r, subOverflow(a, b, r))
		case asm.IMul:
			a, b := s.read(x.Dst), s.read(x.Src)
			r := a * b
			s.write(x.Dst, r)
			s.flags(r, a != 0 && (r/a != b || a == -1 && b == math.MinInt64))
		case asm.Neg:
			a := s.read(x.Dst)
			r := -a
			s.write(x.Dst, r)
			s.flags(r, a == math.MinInt64)
		case asm.And:
			r := s.read(x.Dst) & s.read(x.Src)
			s.write(x.Dst, r)
			s.flags(r, false)
		case asm.Or:
			r := s.read(x.Dst) | s.read(x.Src)
			s.write(x.Dst, r)
			s.flags(r, false)
		case asm.Xor:
			r := s.read(x.Dst) ^ s.read(x.Src)
			s.write(x.Dst, r)
			s.flags(r, false)
		case asm.Test:
			s.flags(s.read(x.Dst)&s.read(x.Src), false)
		case asm.Sar:
			r := s.read(x.Dst) >> x.N
			s.write(x.Dst, r)
			s.flags(r, false)
		case asm.Shl:
			r := s.read(x.Dst) << x.N
			s.write(x.Dst, r)
			s.flags(r, false)
		case asm.Push:
			s.push(s.read(x.Src))
		case asm.Pop:
			s.write(x.Dst, s.pop())
		case asm.CMov:
			if s.cond(x.Cond) {
				s.regs[x.Dst] = s.regs[x.Src]
			}
		case asm.Jmp:
			to, ok := s.labels[x.Label]
			if !ok {
				return errors.New("jump to unknown label: %v", x.Label)
			}

			pc = to
		case asm.J:
			to, ok := s.labels[x.Label]
			if !ok {
				return errors.New("jump to unknown label: %v", x.Label)
			}

			if s.cond(x.Cond) {
				pc = to
			}
		case asm.Call:
			if rsp := s.regs[asm.RSP]; rsp%16 != 0 {
				return &AlignmentError{At: x.Label, RSP: rsp}
			}

			if _, ok := s.extern[x.Label]; ok {
				err := s.runtime(x.Label)
				if err != nil {
					return err
				}

				continue
			}

			to, ok := s.labels[x.Label]
			if !ok {
				return errors.New("call to unknown label: %v", x.Label)
			}

			s.push(int64(pc))
			pc = to
		case asm.Ret:
			pc = int(s.pop())
		case asm.LabelDef, asm.Comment:
		default:
			return errors.New("unsupported instruction: %T", x)
		}
	}

	return nil
}

// runtime emulates the functions the runtime library provides.
func (s *state) runtime(l asm.Label) error {
	arg := s.regs[asm.RDI]

	switch l {
	case back.PrintFunc:
		if s.Out != nil {
			_, err := fmt.Fprintf(s.Out, "%s\n", tag.Format(arg))
			if err != nil {
				return errors.Wrap(err, "print")
			}
		}

		s.regs[asm.RAX] = arg
	case back.ErrorFunc:
		return &RuntimeError{Code: arg}
	default:
		return errors.New("unknown runtime function: %v", l)
	}

	// caller-saved registers are not preserved across calls
	s.regs[asm.RCX] = 0x0badc0de
	s.regs[asm.RDX] = 0x0badc0de
	s.regs[asm.RSI] = 0x0badc0de
	s.regs[asm.RDI] = 0x0badc0de

	return nil
}

func (s *state) read(op asm.Operand) int64 {
	switch op := op.(type) {
	case asm.Reg:
		return s.regs[op]
	case asm.Imm:
		return int64(op)
	case asm.Mem:
		return s.mem[s.regs[op.Base]+int64(op.Off)]
	default:
		panic(fmt.Sprintf("unsupported operand: %T", op))
	}
}

func (s *state) write(op asm.Operand, v int64) {
	switch op := op.(type) {
	case asm.Reg:
		s.regs[op] = v
	case asm.Mem:
		s.mem[s.regs[op.Base]+int64(op.Off)] = v
	default:
		panic(fmt.Sprintf("unsupported destination: %T", op))
	}
}

func (s *state) push(v int64) {
	s.regs[asm.RSP] -= 8
	s.mem[s.regs[asm.RSP]] = v
}

func (s *state) pop() int64 {
	v := s.mem[s.regs[asm.RSP]]
	s.regs[asm.RSP] += 8

	return v
}

func (s *state) flags(r int64, of bool) {
	s.zf = r == 0
	s.sf = r < 0
	s.of = of
}

func (s *state) cond(c asm.Cond) bool {
	switch c {
	case asm.CondE, asm.CondZ:
		return s.zf
	case asm.CondNE, asm.CondNZ:
		return !s.zf
	case asm.CondL:
		return s.sf != s.of
	case asm.CondGE:
		return s.sf == s.of
	case asm.CondLE:
		return s.zf || s.sf != s.of
	case asm.CondG:
		return !s.zf && s.sf == s.of
	case asm.CondO:
		return s.of
	case asm.CondNO:
		return !s.of
	default:
		panic(fmt.Sprintf("unsupported condition: %v", c))
	}
}

func subOverflow(a, b, r int64) bool {
	return (a >= 0) != (b >= 0) && (r >= 0) != (a >= 0)
}

func (e *RuntimeError) Error() string {
	switch e.Code {
	case tag.ErrInvalidArgument:
		return "runtime error: invalid argument"
	case tag.ErrOverflow:
		return "runtime error: overflow"
	default:
		return fmt.Sprintf("runtime error: code %d", e.Code)
	}
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("misaligned stack at call %v: rsp %#x", e.At, e.RSP)
}
