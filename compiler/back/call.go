package back

import (
	"context"
	"fmt"

	"tlog.app/go/errors"

	"github.com/slowlang/snek/compiler/asm"
	"github.com/slowlang/snek/compiler/ast"
	"github.com/slowlang/snek/compiler/env"
)

// compileCall evaluates arguments left to right into temporary slots,
// then pushes them right to left so the first argument ends up nearest the callee frame pointer.
// An odd number of pushed words is padded to keep rsp 16-byte aligned at the call.
func (c *Compiler) compileCall(ctx context.Context, s *Scope, e ast.Call, slot int) (err error) {
	f, ok := s.funcs[e.Func]
	if !ok {
		return newError(UndefinedFunction, e, e.Func)
	}

	if len(e.Args) != f.Params {
		err := newError(ArityMismatch, e, e.Func)
		err.Detail = fmt.Sprintf("want %d, got %d", f.Params, len(e.Args))

		return err
	}

	for i, a := range e.Args {
		err = c.compileExpr(ctx, s, a, slot+i)
		if err != nil {
			return errors.Wrap(err, "%v arg %d", e.Func, i)
		}

		s.claim(slot + i)
		s.emit(asm.Mov{Dst: asm.Slot(env.Local(slot + i)), Src: asm.RAX})
	}

	n := len(e.Args)
	pad := 0

	if n%2 != 0 {
		pad = env.WordSize
		s.emit(asm.Sub{Dst: asm.RSP, Src: asm.Imm(pad)})
	}

	for i := n - 1; i >= 0; i-- {
		s.emit(asm.Push{Src: asm.Slot(env.Local(slot + i))})
	}

	s.emit(asm.Call{Label: f.Label})

	if size := n*env.WordSize + pad; size != 0 {
		s.emit(asm.Add{Dst: asm.RSP, Src: asm.Imm(size)})
	}

	return nil
}
