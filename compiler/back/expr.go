package back

import (
	"context"
	"strings"

	"tlog.app/go/errors"

	"github.com/slowlang/snek/compiler/asm"
	"github.com/slowlang/snek/compiler/ast"
	"github.com/slowlang/snek/compiler/env"
	"github.com/slowlang/snek/compiler/tag"
)

// compileExpr appends code leaving the value of e in rax.
// slot is the first free local slot; e may use it and any slot after it.
func (c *Compiler) compileExpr(ctx context.Context, s *Scope, e ast.Expr, slot int) (err error) {
	switch e := e.(type) {
	case ast.Num:
		s.emit(asm.Mov{Dst: asm.RAX, Src: asm.Imm(tag.EncodeInt(e.Value))})
	case ast.Bool:
		s.emit(asm.Mov{Dst: asm.RAX, Src: asm.Imm(tag.EncodeBool(e.Value))})
	case ast.Input:
		if !s.main {
			return newError(InputInFunction, e, s.name)
		}

		s.emit(asm.Mov{Dst: asm.RAX, Src: asm.Slot(env.Local(inputSlot))})
	case ast.Var:
		off, ok := s.env.Lookup(e.Name)
		if !ok {
			return s.unbound(e, e.Name)
		}

		s.emit(asm.Mov{Dst: asm.RAX, Src: asm.Slot(off)})
	case ast.Let:
		return c.compileLet(ctx, s, e, slot)
	case ast.UnOp:
		return c.compileUnOp(ctx, s, e, slot)
	case ast.BinOp:
		return c.compileBinOp(ctx, s, e, slot)
	case ast.If:
		return c.compileIf(ctx, s, e, slot)
	case ast.Block:
		for i, x := range e.Exprs {
			err = c.compileExpr(ctx, s, x, slot)
			if err != nil {
				return errors.Wrap(err, "block expr %d", i)
			}
		}
	case ast.Loop:
		return c.compileLoop(ctx, s, e, slot)
	case ast.Break:
		if s.breakDst == "" {
			return newError(BreakOutsideLoop, e, "")
		}

		err = c.compileExpr(ctx, s, e.Value, slot)
		if err != nil {
			return errors.Wrap(err, "break")
		}

		s.emit(asm.Jmp{Label: s.breakDst})
	case ast.Set:
		off, ok := s.env.Lookup(e.Name)
		if !ok {
			return s.unbound(e, e.Name)
		}

		err = c.compileExpr(ctx, s, e.Value, slot)
		if err != nil {
			return errors.Wrap(err, "set! %v", e.Name)
		}

		s.emit(asm.Mov{Dst: asm.Slot(off), Src: asm.RAX})
	case ast.Call:
		return c.compileCall(ctx, s, e, slot)
	default:
		return errors.New("unsupported expression: %T", e)
	}

	return nil
}

func (c *Compiler) compileLet(ctx context.Context, s *Scope, e ast.Let, slot int) (err error) {
	sub := *s

	for i, b := range e.Bindings {
		for _, prev := range e.Bindings[:i] {
			if prev.Name == b.Name {
				return newError(DuplicateBinding, b, b.Name)
			}
		}

		err = c.compileExpr(ctx, &sub, b.Init, slot+i)
		if err != nil {
			return errors.Wrap(err, "let %v", b.Name)
		}

		off := env.Local(slot + i)

		sub.claim(slot + i)
		sub.emit(asm.Mov{Dst: asm.Slot(off), Src: asm.RAX})

		sub.env = sub.bind(b.Name, off)
	}

	err = c.compileExpr(ctx, &sub, e.Body, slot+len(e.Bindings))
	if err != nil {
		return errors.Wrap(err, "let body")
	}

	return nil
}

func (c *Compiler) compileUnOp(ctx context.Context, s *Scope, e ast.UnOp, slot int) (err error) {
	err = c.compileExpr(ctx, s, e.Arg, slot)
	if err != nil {
		return errors.Wrap(err, "%v", e.Op)
	}

	switch e.Op {
	case ast.Add1, ast.Sub1:
		s.emit(tag.CheckNum(asm.RAX, InvalidArg)...)

		one := asm.Imm(tag.EncodeInt(1))

		if e.Op == ast.Add1 {
			s.emit(asm.Add{Dst: asm.RAX, Src: one})
		} else {
			s.emit(asm.Sub{Dst: asm.RAX, Src: one})
		}

		s.emit(asm.J{Cond: asm.CondO, Label: Overflow})
	case ast.Negate:
		s.emit(tag.CheckNum(asm.RAX, InvalidArg)...)
		s.emit(
			asm.Neg{Dst: asm.RAX},
			asm.J{Cond: asm.CondO, Label: Overflow},
		)
	case ast.IsNum:
		s.emit(tag.IsNumInstrs(asm.RAX)...)
	case ast.IsBool:
		s.emit(tag.IsBoolInstrs(asm.RAX)...)
	case ast.Print:
		s.emit(
			asm.Mov{Dst: asm.RDI, Src: asm.RAX},
			asm.Call{Label: PrintFunc},
		)
	default:
		return errors.New("unsupported unary op: %v", e.Op)
	}

	return nil
}

// compileBinOp evaluates left then right. While right is computed left lives in slot.
func (c *Compiler) compileBinOp(ctx context.Context, s *Scope, e ast.BinOp, slot int) (err error) {
	err = c.compileExpr(ctx, s, e.Left, slot)
	if err != nil {
		return errors.Wrap(err, "%v left", e.Op)
	}

	left := asm.Slot(env.Local(slot))

	s.claim(slot)
	s.emit(asm.Mov{Dst: left, Src: asm.RAX})

	err = c.compileExpr(ctx, s, e.Right, slot+1)
	if err != nil {
		return errors.Wrap(err, "%v right", e.Op)
	}

	// rcx = left, rax = right
	s.emit(asm.Mov{Dst: asm.RCX, Src: left})

	if e.Op == ast.Equal {
		s.emit(tag.CheckSameTag(asm.RCX, asm.RAX, asm.RDX, InvalidArg)...)
		s.emit(asm.Cmp{Dst: asm.RCX, Src: asm.RAX})
		s.emit(tag.FromCond(asm.CondE, asm.RAX, asm.RDX)...)

		return nil
	}

	s.emit(tag.CheckNums(asm.RCX, asm.RAX, asm.RDX, InvalidArg)...)

	switch e.Op {
	case ast.Plus:
		s.emit(asm.Add{Dst: asm.RCX, Src: asm.RAX})
	case ast.Minus:
		s.emit(asm.Sub{Dst: asm.RCX, Src: asm.RAX})
	case ast.Times:
		s.emit(
			tag.Untag(asm.RCX),
			asm.IMul{Dst: asm.RCX, Src: asm.RAX},
		)
	case ast.Less, ast.Greater, ast.LessEq, ast.GreatEq:
		s.emit(asm.Cmp{Dst: asm.RCX, Src: asm.RAX})
		s.emit(tag.FromCond(cmpCond(e.Op), asm.RAX, asm.RDX)...)

		return nil
	default:
		return errors.New("unsupported binary op: %v", e.Op)
	}

	s.emit(
		asm.J{Cond: asm.CondO, Label: Overflow},
		asm.Mov{Dst: asm.RAX, Src: asm.RCX},
	)

	return nil
}

func (c *Compiler) compileIf(ctx context.Context, s *Scope, e ast.If, slot int) (err error) {
	elseL := s.labels.New("if_else")
	endL := s.labels.New("if_end")

	err = c.compileExpr(ctx, s, e.Cond, slot)
	if err != nil {
		return errors.Wrap(err, "if cond")
	}

	s.emit(
		asm.Cmp{Dst: asm.RAX, Src: asm.Imm(tag.False)},
		asm.J{Cond: asm.CondE, Label: elseL},
	)

	err = c.compileExpr(ctx, s, e.Then, slot)
	if err != nil {
		return errors.Wrap(err, "if then")
	}

	s.emit(
		asm.Jmp{Label: endL},
		asm.LabelDef{Label: elseL},
	)

	err = c.compileExpr(ctx, s, e.Else, slot)
	if err != nil {
		return errors.Wrap(err, "if else")
	}

	s.emit(asm.LabelDef{Label: endL})

	return nil
}

func (c *Compiler) compileLoop(ctx context.Context, s *Scope, e ast.Loop, slot int) (err error) {
	startL := s.labels.New("loop_start")
	endL := s.labels.New("loop_end")

	sub := *s
	sub.breakDst = endL

	s.emit(asm.LabelDef{Label: startL})

	err = c.compileExpr(ctx, &sub, e.Body, slot)
	if err != nil {
		return errors.Wrap(err, "loop")
	}

	s.emit(
		asm.Jmp{Label: startL},
		asm.LabelDef{Label: endL},
	)

	return nil
}

// unbound reports a missing variable along with the names visible at that point.
func (s *Scope) unbound(x ast.Expr, name string) *Error {
	err := newError(UnboundVariable, x, name)

	if names := s.env.Names(); len(names) != 0 {
		err.Detail = "in scope: " + strings.Join(names, " ")
	}

	return err
}

func cmpCond(op ast.Op2) asm.Cond {
	switch op {
	case ast.Less:
		return asm.CondL
	case ast.Greater:
		return asm.CondG
	case ast.LessEq:
		return asm.CondLE
	case ast.GreatEq:
		return asm.CondGE
	default:
		panic(op)
	}
}
