package format

import (
	"context"

	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/errors"

	"github.com/slowlang/snek/compiler/ast"
	"github.com/slowlang/snek/compiler/sexp"
)

// Width is the line length a list is kept flat within.
const Width = 80

func Format(ctx context.Context, b []byte, x any) ([]byte, error) {
	switch x := x.(type) {
	case *ast.Program:
		return formatProgram(ctx, b, x)
	case ast.Expr:
		n, err := expr(x)
		if err != nil {
			return nil, err
		}

		b = layout(b, n, 0)
		b = append(b, '\n')

		return b, nil
	default:
		return nil, errors.New("unsupported type: %T", x)
	}
}

func formatProgram(ctx context.Context, b []byte, x *ast.Program) (_ []byte, err error) {
	for _, d := range x.Defs {
		n, err := definition(d)
		if err != nil {
			return nil, errors.Wrap(err, "func %v", d.Name)
		}

		b = layout(b, n, 0)
		b = append(b, "\n\n"...)
	}

	n, err := expr(x.Main)
	if err != nil {
		return nil, errors.Wrap(err, "main")
	}

	b = layout(b, n, 0)
	b = append(b, '\n')

	return b, nil
}

// layout prints n at depth d. Lists that don't fit on the line
// keep the head (and for let/fun/set!/if the first argument) on the first line
// and put the rest one per line.
func layout(b []byte, n sexp.Node, d int) []byte {
	flat := sexp.String(n)

	l, ok := n.(sexp.List)
	if !ok || len(flat)+8*d <= Width || len(l.Items) < 2 {
		return append(b, flat...)
	}

	b = append(b, '(')
	b = layout(b, l.Items[0], d)

	rest := l.Items[1:]

	if h, _ := sexp.Head(l); h == "let" || h == "fun" || h == "set!" || h == "if" {
		b = append(b, ' ')
		b = layout(b, rest[0], d+1)
		rest = rest[1:]
	}

	for _, x := range rest {
		b = app(b, d+1, "%s", layout(nil, x, d+1))
	}

	b = append(b, ')')

	return b
}

func definition(d *ast.Definition) (sexp.Node, error) {
	sig := sexp.List{Items: []sexp.Node{sym(d.Name)}}

	for _, p := range d.Params {
		sig.Items = append(sig.Items, sym(p))
	}

	body, err := expr(d.Body)
	if err != nil {
		return nil, errors.Wrap(err, "body")
	}

	return list(sym("fun"), sig, body), nil
}

// expr turns an expression back into its surface form.
func expr(x ast.Expr) (_ sexp.Node, err error) {
	switch x := x.(type) {
	case ast.Num:
		return sexp.Int{Value: x.Value}, nil
	case ast.Bool:
		if x.Value {
			return sym("true"), nil
		}

		return sym("false"), nil
	case ast.Input:
		return sym("input"), nil
	case ast.Var:
		return sym(x.Name), nil
	case ast.Let:
		var bs sexp.List

		for _, b := range x.Bindings {
			v, err := expr(b.Init)
			if err != nil {
				return nil, errors.Wrap(err, "let %v", b.Name)
			}

			bs.Items = append(bs.Items, list(sym(b.Name), v))
		}

		body, err := expr(x.Body)
		if err != nil {
			return nil, errors.Wrap(err, "let body")
		}

		return list(sym("let"), bs, body), nil
	case ast.UnOp:
		return call(string(x.Op), x.Arg)
	case ast.BinOp:
		return call(string(x.Op), x.Left, x.Right)
	case ast.If:
		return call("if", x.Cond, x.Then, x.Else)
	case ast.Block:
		return call("block", x.Exprs...)
	case ast.Loop:
		return call("loop", x.Body)
	case ast.Break:
		return call("break", x.Value)
	case ast.Set:
		v, err := expr(x.Value)
		if err != nil {
			return nil, errors.Wrap(err, "set! %v", x.Name)
		}

		return list(sym("set!"), sym(x.Name), v), nil
	case ast.Call:
		return call(x.Func, x.Args...)
	default:
		return nil, errors.New("unsupported expr: %T", x)
	}
}

func call(head string, args ...ast.Expr) (sexp.Node, error) {
	l := list(sym(head))

	for i, a := range args {
		n, err := expr(a)
		if err != nil {
			return nil, errors.Wrap(err, "%v arg %d", head, i)
		}

		l.Items = append(l.Items, n)
	}

	return l, nil
}

func list(items ...sexp.Node) sexp.List { return sexp.List{Items: items} }

func sym(name string) sexp.Symbol { return sexp.Symbol{Name: name} }

// app starts a new line indented d levels and formats f into it.
func app(b []byte, d int, f string, args ...any) []byte {
	const tabs = "\t\t\t\t\t\t\t\t\t\t\t\t\t\t\t"
	b = append(b, '\n')
	b = append(b, tabs[:min(d, len(tabs))]...)
	b = hfmt.Appendf(b, f, args...)
	return b
}
