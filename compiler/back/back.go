package back

import (
	"context"
	"fmt"
	"strings"

	"tlog.app/go/errors"
	"tlog.app/go/loc"
	"tlog.app/go/tlog"

	"github.com/slowlang/snek/compiler/asm"
	"github.com/slowlang/snek/compiler/ast"
	"github.com/slowlang/snek/compiler/env"
	"github.com/slowlang/snek/compiler/parse"
	"github.com/slowlang/snek/compiler/tag"
)

type (
	Compiler struct{}

	pkgContext struct {
		*ast.Program

		labels *asm.Labels
		funcs  map[string]funcInfo
	}

	funcInfo struct {
		Label  asm.Label
		Params int
	}

	funContext struct {
		name string
		main bool

		code    []asm.Instr
		maxSlot int
	}

	Scope struct {
		*pkgContext
		*funContext

		env *env.Env

		breakDst asm.Label
	}
)

// Symbols shared with the runtime.
const (
	Entry      asm.Label = "our_code_starts_here"
	ErrorFunc  asm.Label = "snek_error"
	PrintFunc  asm.Label = "snek_print"
	InvalidArg asm.Label = "snek_throw_invalid_arg"
	Overflow   asm.Label = "snek_throw_overflow"
)

// inputSlot holds the entry point argument in the main frame.
const inputSlot = 1

func New() *Compiler { return &Compiler{} }

// CompileExpr compiles a lone expression as the main body of a program without definitions.
func (c *Compiler) CompileExpr(ctx context.Context, e ast.Expr) (*asm.Program, error) {
	return c.CompileProgram(ctx, &ast.Program{Main: e})
}

func (c *Compiler) CompileProgram(ctx context.Context, prog *ast.Program) (_ *asm.Program, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "back: compile program", "defs", len(prog.Defs))
	defer tr.Finish("err", &err)

	defer func() {
		var cerr *Error
		if err == nil || !errors.As(err, &cerr) {
			return
		}

		st := parse.StateFromContext(ctx)
		if st == nil || cerr.End <= cerr.Pos {
			return
		}

		cerr.Where = st.Pos(cerr.Pos)
		cerr.Text = string(st.Text(cerr.Pos, cerr.End))
	}()

	p := &pkgContext{
		Program: prog,
		labels:  &asm.Labels{},
		funcs:   make(map[string]funcInfo, len(prog.Defs)),
	}

	// all labels first so calls may refer to any definition
	for _, d := range prog.Defs {
		if _, ok := p.funcs[d.Name]; ok {
			return nil, errors.New("duplicate function %v", d.Name)
		}

		p.funcs[d.Name] = funcInfo{
			Label:  p.labels.New("fun_" + mangle(d.Name)),
			Params: len(d.Params),
		}
	}

	res := &asm.Program{
		Entry:  Entry,
		Extern: []asm.Label{ErrorFunc, PrintFunc},
	}

	for _, d := range prog.Defs {
		f, err := c.compileFunc(ctx, p, d)
		if err != nil {
			return nil, errors.Wrap(err, "func %v", d.Name)
		}

		res.Funcs = append(res.Funcs, f)
	}

	f, err := c.compileMain(ctx, p, prog.Main)
	if err != nil {
		return nil, errors.Wrap(err, "main")
	}

	res.Funcs = append(res.Funcs, f,
		errorStub(InvalidArg, tag.ErrInvalidArgument),
		errorStub(Overflow, tag.ErrOverflow),
	)

	if tr.If("dump_asm") {
		for _, f := range res.Funcs {
			tr.Printw("func", "name", f.Name, "instrs", len(f.Body))
		}
	}

	tr.Printw("compiled", "funcs", len(res.Funcs), "labels", p.labels.Count())

	return res, nil
}

func (c *Compiler) compileFunc(ctx context.Context, p *pkgContext, d *ast.Definition) (_ asm.Func, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compile func", "name", d.Name, "params", d.Params)
	defer tr.Finish("err", &err)

	s := &Scope{
		pkgContext: p,
		funContext: &funContext{name: d.Name},
	}

	for i, name := range d.Params {
		s.env = s.bind(name, env.Param(i))
	}

	err = c.compileExpr(ctx, s, d.Body, 1)
	if err != nil {
		return asm.Func{}, err
	}

	sig := asm.Comment{Text: fmt.Sprintf("fun %v(%v)", d.Name, strings.Join(d.Params, ", "))}

	return asm.Func{
		Name: p.funcs[d.Name].Label,
		Body: append([]asm.Instr{sig}, s.frame(nil)...),
	}, nil
}

func (c *Compiler) compileMain(ctx context.Context, p *pkgContext, e ast.Expr) (_ asm.Func, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compile main")
	defer tr.Finish("err", &err)

	s := &Scope{
		pkgContext: p,
		funContext: &funContext{main: true},
	}

	s.claim(inputSlot)

	err = c.compileExpr(ctx, s, e, inputSlot+1)
	if err != nil {
		return asm.Func{}, err
	}

	save := []asm.Instr{
		asm.Mov{Dst: asm.Slot(env.Local(inputSlot)), Src: asm.RDI},
	}

	return asm.Func{
		Name: Entry,
		Body: s.frame(save),
	}, nil
}

// frame wraps the compiled body into prologue and epilogue.
// The frame is a multiple of 16 bytes so rsp stays aligned inside the body.
func (f *funContext) frame(pre []asm.Instr) []asm.Instr {
	size := f.maxSlot * env.WordSize
	size = (size + 15) &^ 15

	code := make([]asm.Instr, 0, len(f.code)+len(pre)+6)

	code = append(code,
		asm.Push{Src: asm.RBP},
		asm.Mov{Dst: asm.RBP, Src: asm.RSP},
	)

	if size != 0 {
		code = append(code, asm.Sub{Dst: asm.RSP, Src: asm.Imm(size)})
	}

	code = append(code, pre...)
	code = append(code, f.code...)

	code = append(code,
		asm.Mov{Dst: asm.RSP, Src: asm.RBP},
		asm.Pop{Dst: asm.RBP},
		asm.Ret{},
	)

	return code
}

func errorStub(name asm.Label, code int) asm.Func {
	return asm.Func{
		Name: name,
		Body: []asm.Instr{
			asm.Mov{Dst: asm.RDI, Src: asm.Imm(code)},
			asm.Call{Label: ErrorFunc},
		},
	}
}

func (f *funContext) emit(x ...asm.Instr) {
	f.code = append(f.code, x...)
}

// claim marks local slot k as used by the current frame.
func (f *funContext) claim(k int) {
	if k > f.maxSlot {
		f.maxSlot = k
	}
}

func (s *Scope) bind(name string, off int) *env.Env {
	if tlog.If("scope") {
		tlog.Printw("bind", "func", s.name, "name", name, "off", off, "param", env.IsParam(off), "depth", s.env.Len(), "from", loc.Caller(1))
	}

	return s.env.Bind(name, off)
}

// mangle keeps label-safe characters of a function name and hex-escapes the rest.
func mangle(name string) string {
	var b strings.Builder

	for i := 0; i < len(name); i++ {
		c := name[i]

		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "_%02x", c)
		}
	}

	return b.String()
}
