package front

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/snek/compiler/ast"
	"github.com/slowlang/snek/compiler/parse"
)

func build(t *testing.T, src string) (*ast.Program, error) {
	t.Helper()

	forms, err := parse.Parse(context.Background(), []byte(src))
	require.NoError(t, err)

	return ParseProgram(context.Background(), forms)
}

func TestParseProgram(t *testing.T) {
	p, err := build(t, `
(fun (add a b) (+ a b))
(fun (zero) 0)
(add (zero) 2)`)
	require.NoError(t, err)

	require.Len(t, p.Defs, 2)
	assert.Equal(t, "add", p.Defs[0].Name)
	assert.Equal(t, []string{"a", "b"}, p.Defs[0].Params)
	assert.Empty(t, p.Defs[1].Params)

	assert.Same(t, p.Defs[1], p.Def("zero"))
	assert.Nil(t, p.Def("one"))

	call, ok := p.Main.(ast.Call)
	require.True(t, ok, "%T", p.Main)
	assert.Equal(t, "add", call.Func)
	require.Len(t, call.Args, 2)

	zero, ok := call.Args[0].(ast.Call)
	require.True(t, ok, "%T", call.Args[0])
	assert.Equal(t, "zero", zero.Func)
	assert.Empty(t, zero.Args)
	assert.Equal(t, ast.Base{Pos: 45, End: 51}, zero.Base)
}

func TestParseExpr(t *testing.T) {
	p, err := build(t, "(let ((x 5) (y true)) (if (< x 3) (block (set! x (add1 x)) x) (loop (break input))))")
	require.NoError(t, err)

	let, ok := p.Main.(ast.Let)
	require.True(t, ok)
	require.Len(t, let.Bindings, 2)

	assert.Equal(t, "x", let.Bindings[0].Name)
	assert.Equal(t, int64(5), let.Bindings[0].Init.(ast.Num).Value)
	assert.Equal(t, true, let.Bindings[1].Init.(ast.Bool).Value)

	ife, ok := let.Body.(ast.If)
	require.True(t, ok)

	cond := ife.Cond.(ast.BinOp)
	assert.Equal(t, ast.Less, cond.Op)
	assert.Equal(t, "x", cond.Left.(ast.Var).Name)

	blk := ife.Then.(ast.Block)
	require.Len(t, blk.Exprs, 2)

	set := blk.Exprs[0].(ast.Set)
	assert.Equal(t, "x", set.Name)
	assert.Equal(t, ast.Add1, set.Value.(ast.UnOp).Op)

	loop := ife.Else.(ast.Loop)
	brk := loop.Body.(ast.Break)
	assert.IsType(t, ast.Input{}, brk.Value)
}

func TestSyntaxErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"missing main", "(fun (f) 1)"},
		{"empty", ""},
		{"two mains", "1 2"},
		{"def after main", "1 (fun (f) 1)"},
		{"duplicate function", "(fun (f) 1) (fun (f) 2) (f)"},
		{"duplicate param", "(fun (f x x) x) (f 1 2)"},
		{"keyword param", "(fun (f let) 1) (f 1)"},
		{"keyword function", "(fun (add1 x) x) 1"},
		{"bad signature", "(fun f 1) 1"},
		{"empty list", "()"},
		{"number head", "(1 2)"},
		{"let no bindings", "(let () 1)"},
		{"let bad binding", "(let ((x)) 1)"},
		{"let keyword", "(let ((if 1)) 1)"},
		{"let no body", "(let ((x 1)))"},
		{"unop arity", "(add1 1 2)"},
		{"binop arity", "(+ 1)"},
		{"if arity", "(if true 1)"},
		{"empty block", "(block)"},
		{"loop arity", "(loop)"},
		{"break arity", "(break 1 2)"},
		{"set arity", "(set! x)"},
		{"set keyword", "(set! true 1)"},
		{"nested fun", "(fun (f) (fun (g) 1))\n(f)"},
		{"keyword call", "(true 1)"},
		{"too big", "2147483648"},
		{"too small", "-2147483649"},
		{"keyword var", "let"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := build(t, tc.src)

			var serr *SyntaxError
			require.ErrorAs(t, err, &serr)
		})
	}
}

func TestIntRange(t *testing.T) {
	p, err := build(t, "(+ 2147483647 -2147483648)")
	require.NoError(t, err)

	b := p.Main.(ast.BinOp)
	assert.Equal(t, int64(2147483647), b.Left.(ast.Num).Value)
	assert.Equal(t, int64(-2147483648), b.Right.(ast.Num).Value)
}

func TestReserved(t *testing.T) {
	for _, w := range []string{"let", "if", "block", "loop", "break", "set!", "fun", "true", "false", "input", "add1", "print", "+", "<="} {
		assert.True(t, IsReserved(w), w)
	}

	for _, w := range []string{"x", "fact", "let1", "set"} {
		assert.False(t, IsReserved(w), w)
	}
}

func TestSyntaxErrorWhere(t *testing.T) {
	st := parse.New()
	st.AddFile("prog.snek", []byte("(fun (f x) x)\n(f (add1 1 2))"))

	ctx := parse.ContextWithState(context.Background(), st)

	forms, err := st.Parse(ctx)
	require.NoError(t, err)

	_, err = ParseProgram(ctx, forms)

	var serr *SyntaxError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "prog.snek:2:4", serr.Where)
	assert.Equal(t, "(add1 1 2)", serr.Text)
	assert.Equal(t, "prog.snek:2:4: syntax error: add1 expects 1 argument: (add1 1 2)", serr.Error())

	_, err = build(t, "(add1 1 2)")
	require.ErrorAs(t, err, &serr)
	assert.Empty(t, serr.Where)
}
