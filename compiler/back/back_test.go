package back_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/snek/compiler/asm"
	"github.com/slowlang/snek/compiler/ast"
	"github.com/slowlang/snek/compiler/back"
	"github.com/slowlang/snek/compiler/front"
	"github.com/slowlang/snek/compiler/parse"
	"github.com/slowlang/snek/compiler/tag"
	"github.com/slowlang/snek/compiler/vm"
)

type runResult struct {
	res int64
	out string
	err error
}

func compile(t *testing.T, src string) (*asm.Program, error) {
	t.Helper()

	ctx := context.Background()

	forms, err := parse.Parse(ctx, []byte(src))
	require.NoError(t, err, "read %q", src)

	prog, err := front.ParseProgram(ctx, forms)
	require.NoError(t, err, "build %q", src)

	return back.New().CompileProgram(ctx, prog)
}

func run(t *testing.T, src string, input int64) runResult {
	t.Helper()

	p, err := compile(t, src)
	require.NoError(t, err, "compile %q", src)

	var out bytes.Buffer

	m := &vm.Machine{
		Input:     input,
		StepLimit: 1_000_000,
		Out:       &out,
	}

	res, err := m.Run(context.Background(), p)

	return runResult{res: res, out: out.String(), err: err}
}

func TestPrograms(t *testing.T) {
	const (
		double = "(fun (double x) (+ x x))\n"
		fact   = "(fun (fact n) (if (= n 1) 1 (* n (fact (- n 1)))))\n"
		parity = `
(fun (even n) (if (= n 0) true (odd (- n 1))))
(fun (odd n) (if (= n 0) false (even (- n 1))))
`
	)

	tests := []struct {
		name string
		src  string
		want string
	}{
		{"number", "42", "42"},
		{"negative", "-17", "-17"},
		{"true", "true", "true"},
		{"add1", "(add1 (add1 5))", "7"},
		{"sub1", "(sub1 0)", "-1"},
		{"negate", "(negate (negate 3))", "3"},
		{"subtract order", "(- 10 3)", "7"},
		{"nested arith", "(* (+ 1 2) (- 10 4))", "18"},
		{"multiply negative", "(* -3 7)", "-21"},
		{"let", "(let ((x 5)) x)", "5"},
		{"let ordering", "(let ((x 1) (y (+ x 1))) y)", "2"},
		{"shadowing", "(let ((x 5)) (let ((x 10)) x))", "10"},
		{"shadow restored", "(let ((x 5)) (+ (let ((x 10)) x) x))", "15"},
		{"binop spill", "(let ((a 2)) (- (let ((b 10)) (* a b)) (let ((c 3)) (+ a c))))", "15"},
		{"if false", "(if false 1 2)", "2"},
		{"if truthy zero", "(if 0 1 2)", "1"},
		{"less", "(< 1 2)", "true"},
		{"greater", "(> 1 2)", "false"},
		{"less equal", "(<= 2 2)", "true"},
		{"greater equal", "(>= 1 2)", "false"},
		{"equal numbers", "(= 3 3)", "true"},
		{"equal bools", "(= true false)", "false"},
		{"isnum", "(isnum 5)", "true"},
		{"isnum bool", "(isnum true)", "false"},
		{"isbool", "(isbool false)", "true"},
		{"isbool num", "(isbool 0)", "false"},
		{"block", "(block 1 2 3)", "3"},
		{"loop", "(let ((x 0)) (loop (if (= x 3) (break x) (set! x (+ x 1)))))", "3"},
		{"set", "(let ((x 1)) (block (set! x 7) x))", "7"},
		{"set value", "(let ((x 1)) (set! x 9))", "9"},
		{"nested loops", `
(let ((i 0) (acc 0))
  (loop
    (if (= i 3)
      (break acc)
      (block
        (set! acc (+ acc (loop (break 10))))
        (set! i (add1 i))))))`, "30"},
		{"break skips rest", "(loop (block (break 1) (+ true 1)))", "1"},
		{"double", double + "(double 21)", "42"},
		{"fact", fact + "(fact 5)", "120"},
		{"fact 20", fact + "(fact 20)", "2432902008176640000"},
		{"mutual recursion", parity + "(even 10)", "true"},
		{"mutual recursion odd", parity + "(even 7)", "false"},
		{"param order", "(fun (f a b c) (- a (- b c)))\n(f 10 4 1)", "7"},
		{"two params", "(fun (minus a b) (- a b))\n(minus 10 3)", "7"},
		{"no params", "(fun (seven) 7)\n(seven)", "7"},
		{"nested calls", "(fun (f a b) (+ a b))\n(fun (g x) (* x 2))\n(f (g 1) (f (g 2) 3))", "9"},
		{"param mutation", "(fun (f x) (block (set! x (+ x 1)) x))\n(f 1)", "2"},
		{"call in let", double + "(let ((x (double 2)) (y (double x))) (+ x y))", "12"},
		{"loop in function", `
(fun (sum n)
  (let ((i 0) (acc 0))
    (loop (if (> i n) (break acc) (block (set! acc (+ acc i)) (set! i (add1 i)))))))
(sum 10)`, "55"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := run(t, tc.src, tag.False)
			require.NoError(t, r.err)
			assert.Equal(t, tc.want, tag.Format(r.res))
		})
	}
}

func TestPrint(t *testing.T) {
	r := run(t, "(block (print 1) (print true) (print (+ 2 3)))", tag.False)
	require.NoError(t, r.err)

	assert.Equal(t, "1\ntrue\n5\n", r.out)
	assert.Equal(t, "5", tag.Format(r.res))

	r = run(t, "(fun (f x) (print x))\n(+ (f 1) (f 2))", tag.False)
	require.NoError(t, r.err)

	assert.Equal(t, "1\n2\n", r.out)
	assert.Equal(t, "3", tag.Format(r.res))
}

func TestInput(t *testing.T) {
	r := run(t, "(add1 input)", tag.EncodeInt(41))
	require.NoError(t, r.err)
	assert.Equal(t, "42", tag.Format(r.res))

	r = run(t, "(if input 1 2)", tag.False)
	require.NoError(t, r.err)
	assert.Equal(t, "2", tag.Format(r.res))

	r = run(t, "(let ((x 1)) (+ x input))", tag.EncodeInt(2))
	require.NoError(t, r.err)
	assert.Equal(t, "3", tag.Format(r.res))
}

func TestRuntimeErrors(t *testing.T) {
	const fact = "(fun (fact n) (if (= n 1) 1 (* n (fact (- n 1)))))\n"

	tests := []struct {
		name  string
		src   string
		input int64
		code  int64
	}{
		{"add bool", "(+ true 5)", tag.False, tag.ErrInvalidArgument},
		{"add bool right", "(+ 5 true)", tag.False, tag.ErrInvalidArgument},
		{"sub bool", "(- false 1)", tag.False, tag.ErrInvalidArgument},
		{"less bool", "(< 1 false)", tag.False, tag.ErrInvalidArgument},
		{"greater bool", "(> true 1)", tag.False, tag.ErrInvalidArgument},
		{"less equal bool", "(<= 1 true)", tag.False, tag.ErrInvalidArgument},
		{"greater equal bool", "(>= false 0)", tag.False, tag.ErrInvalidArgument},
		{"equal mixed", "(= 1 true)", tag.False, tag.ErrInvalidArgument},
		{"add1 bool", "(add1 true)", tag.False, tag.ErrInvalidArgument},
		{"sub1 bool", "(sub1 input)", tag.True, tag.ErrInvalidArgument},
		{"negate bool", "(negate false)", tag.False, tag.ErrInvalidArgument},
		{"in function", "(fun (f x) (* x 2))\n(f true)", tag.False, tag.ErrInvalidArgument},
		{"multiply overflow", "(let ((x 2147483647)) (* x (* x (* x x))))", tag.False, tag.ErrOverflow},
		{"fact overflow", fact + "(fact 21)", tag.False, tag.ErrOverflow},
		{"add overflow", "(+ input input)", tag.EncodeInt(tag.MaxInt), tag.ErrOverflow},
		{"sub overflow", "(- input 1)", tag.EncodeInt(tag.MinInt), tag.ErrOverflow},
		{"add1 overflow", "(add1 input)", tag.EncodeInt(tag.MaxInt), tag.ErrOverflow},
		{"sub1 overflow", "(sub1 input)", tag.EncodeInt(tag.MinInt), tag.ErrOverflow},
		{"negate overflow", "(negate input)", tag.EncodeInt(tag.MinInt), tag.ErrOverflow},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := run(t, tc.src, tc.input)

			var rerr *vm.RuntimeError
			require.ErrorAs(t, r.err, &rerr)
			assert.Equal(t, tc.code, rerr.Code)
		})
	}
}

func TestUnaryLimits(t *testing.T) {
	r := run(t, "(add1 input)", tag.EncodeInt(tag.MaxInt-1))
	require.NoError(t, r.err)
	assert.Equal(t, int64(tag.MaxInt), tag.DecodeInt(r.res))

	r = run(t, "(sub1 input)", tag.EncodeInt(tag.MinInt+1))
	require.NoError(t, r.err)
	assert.Equal(t, int64(tag.MinInt), tag.DecodeInt(r.res))

	r = run(t, "(negate input)", tag.EncodeInt(tag.MaxInt))
	require.NoError(t, r.err)
	assert.Equal(t, int64(-tag.MaxInt), tag.DecodeInt(r.res))
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		kind back.Kind
	}{
		{"unbound", "x", back.UnboundVariable},
		{"let order", "(let ((y (+ x 1)) (x 1)) y)", back.UnboundVariable},
		{"sibling scope", "(+ (let ((x 1)) x) x)", back.UnboundVariable},
		{"set unbound", "(set! x 1)", back.UnboundVariable},
		{"duplicate binding", "(let ((x 1) (x 2)) x)", back.DuplicateBinding},
		{"break outside", "(break 1)", back.BreakOutsideLoop},
		{"break in function", "(fun (f) (break 1))\n(loop (f))", back.BreakOutsideLoop},
		{"undefined function", "(f 1)", back.UndefinedFunction},
		{"arity", "(fun (f a b) (+ a b))\n(f 1)", back.ArityMismatch},
		{"arity extra", "(fun (f a) a)\n(f 1 2)", back.ArityMismatch},
		{"input in function", "(fun (f) input)\n(f)", back.InputInFunction},
		{"caller scope", "(fun (f) x)\n(let ((x 1)) (f))", back.UnboundVariable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := compile(t, tc.src)

			var cerr *back.Error
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tc.kind, cerr.Kind, "%v", err)
		})
	}
}

func TestLoopWithoutBreak(t *testing.T) {
	r := run(t, "(loop 1)", tag.False)
	require.ErrorIs(t, r.err, vm.ErrStepLimit)
}

func TestFrameAlignment(t *testing.T) {
	p, err := compile(t, "(fun (f a) a)\n(let ((x 1) (y 2) (z 3)) (f (+ x (+ y z))))")
	require.NoError(t, err)

	for _, f := range p.Funcs {
		for _, x := range f.Body {
			if s, ok := x.(asm.Sub); ok && s.Dst == asm.RSP {
				imm, ok := s.Src.(asm.Imm)
				require.True(t, ok)

				if imm != 8 { // call padding
					assert.Zero(t, imm%16, "frame size in %v", f.Name)
				}
			}
		}
	}
}

func TestIdempotent(t *testing.T) {
	src := `
(fun (fact n) (if (= n 1) 1 (* n (fact (- n 1)))))
(let ((x 0)) (loop (if (= x 3) (break (fact x)) (set! x (+ x 1)))))`

	a, err := compile(t, src)
	require.NoError(t, err)

	b, err := compile(t, src)
	require.NoError(t, err)

	assert.Equal(t, asm.Format(nil, a, asm.Options{}), asm.Format(nil, b, asm.Options{}))
}

func TestCompileExpr(t *testing.T) {
	e := ast.BinOp{
		Op:    ast.Minus,
		Left:  ast.Num{Value: 10},
		Right: ast.Num{Value: 3},
	}

	p, err := back.New().CompileExpr(context.Background(), e)
	require.NoError(t, err)

	res, err := (&vm.Machine{}).Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, int64(7), tag.DecodeInt(res))
}

func TestUniqueLabels(t *testing.T) {
	p, err := compile(t, "(if (if true false true) (loop (break (if 1 2 3))) (loop (break 4)))")
	require.NoError(t, err)

	seen := map[asm.Label]bool{}

	for _, f := range p.Funcs {
		for _, x := range f.Body {
			if l, ok := x.(asm.LabelDef); ok {
				assert.False(t, seen[l.Label], "label %v defined twice", l.Label)
				seen[l.Label] = true
			}
		}
	}

	assert.Len(t, seen, 10)
}
