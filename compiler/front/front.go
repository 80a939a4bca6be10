package front

import (
	"context"
	"fmt"
	"math"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/snek/compiler/ast"
	"github.com/slowlang/snek/compiler/parse"
	"github.com/slowlang/snek/compiler/sexp"
)

type (
	SyntaxError struct {
		Pos   int
		End   int
		Where string // file:line:col when the source is known
		Text  string // offending fragment
		Msg   string
	}
)

var reserved = map[string]struct{}{
	"let": {}, "if": {}, "block": {}, "loop": {}, "break": {}, "set!": {}, "fun": {},
	"true": {}, "false": {}, "input": {},
}

func init() {
	for _, op := range ast.Ops1 {
		reserved[string(op)] = struct{}{}
	}

	for _, op := range ast.Ops2 {
		reserved[string(op)] = struct{}{}
	}
}

// IsReserved reports whether name can't be used as an identifier.
func IsReserved(name string) bool {
	_, ok := reserved[name]
	return ok
}

// ParseProgram builds a program from top-level forms: definitions followed by exactly one main expression.
func ParseProgram(ctx context.Context, forms []sexp.Node) (p *ast.Program, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "front: build program", "forms", len(forms))
	defer tr.Finish("err", &err)

	defer func() {
		var serr *SyntaxError
		if err == nil || !errors.As(err, &serr) || serr.Text == "" {
			return
		}

		if st := parse.StateFromContext(ctx); st != nil {
			serr.Where = st.Pos(serr.Pos)
		}
	}()

	p = &ast.Program{}

	for _, x := range forms {
		if l, ok := x.(sexp.List); ok {
			if h, _ := sexp.Head(l); h == "fun" {
				if p.Main != nil {
					return nil, newError(x, "definition after main expression")
				}

				d, err := ParseDefinition(ctx, l)
				if err != nil {
					return nil, errors.Wrap(err, "definition")
				}

				if p.Def(d.Name) != nil {
					return nil, newError(l.Items[1], "duplicate function %v", d.Name)
				}

				p.Defs = append(p.Defs, d)

				continue
			}
		}

		if p.Main != nil {
			return nil, newError(x, "more than one main expression")
		}

		p.Main, err = ParseExpr(ctx, x)
		if err != nil {
			return nil, errors.Wrap(err, "main")
		}
	}

	if p.Main == nil {
		return nil, &SyntaxError{Msg: "missing main expression"}
	}

	if tr.If("dump_ast") {
		for _, d := range p.Defs {
			tr.Printw("def", "name", d.Name, "params", d.Params, "body_type", tlog.NextAsType, d.Body, "body", d.Body)
		}

		tr.Printw("main", "type", tlog.NextAsType, p.Main, "expr", p.Main)
	}

	return p, nil
}

// ParseDefinition builds (fun (name param*) body).
func ParseDefinition(ctx context.Context, l sexp.List) (d *ast.Definition, err error) {
	if len(l.Items) != 3 {
		return nil, newError(l, "fun expects a signature and a body")
	}

	sig, ok := l.Items[1].(sexp.List)
	if !ok || len(sig.Items) == 0 {
		return nil, newError(l.Items[1], "malformed function signature")
	}

	name, err := ident(sig.Items[0])
	if err != nil {
		return nil, errors.Wrap(err, "function name")
	}

	d = &ast.Definition{
		Base: base(l),
		Name: name,
	}

	for _, x := range sig.Items[1:] {
		param, err := ident(x)
		if err != nil {
			return nil, errors.Wrap(err, "%v param", name)
		}

		for _, q := range d.Params {
			if q == param {
				return nil, newError(x, "duplicate parameter %v", param)
			}
		}

		d.Params = append(d.Params, param)
	}

	d.Body, err = ParseExpr(ctx, l.Items[2])
	if err != nil {
		return nil, errors.Wrap(err, "%v body", name)
	}

	return d, nil
}

func ParseExpr(ctx context.Context, x sexp.Node) (ast.Expr, error) {
	switch x := x.(type) {
	case sexp.Int:
		if x.Value < math.MinInt32 || x.Value > math.MaxInt32 {
			return nil, newError(x, "number out of 32-bit range")
		}

		return ast.Num{Base: base(x), Value: x.Value}, nil
	case sexp.Symbol:
		switch x.Name {
		case "true", "false":
			return ast.Bool{Base: base(x), Value: x.Name == "true"}, nil
		case "input":
			return ast.Input{Base: base(x)}, nil
		}

		name, err := ident(x)
		if err != nil {
			return nil, err
		}

		return ast.Var{Base: base(x), Name: name}, nil
	case sexp.List:
		return parseList(ctx, x)
	default:
		return nil, errors.New("unexpected node: %T", x)
	}
}

func parseList(ctx context.Context, l sexp.List) (_ ast.Expr, err error) {
	head, ok := sexp.Head(l)
	if !ok {
		return nil, newError(l, "expected operator or function name")
	}

	args := l.Items[1:]

	switch head {
	case "let":
		return parseLet(ctx, l)
	case "if":
		if len(args) != 3 {
			return nil, newError(l, "if expects 3 arguments")
		}

		es, err := parseExprs(ctx, args)
		if err != nil {
			return nil, errors.Wrap(err, "if")
		}

		return ast.If{Base: base(l), Cond: es[0], Then: es[1], Else: es[2]}, nil
	case "block":
		if len(args) == 0 {
			return nil, newError(l, "block expects at least one expression")
		}

		es, err := parseExprs(ctx, args)
		if err != nil {
			return nil, errors.Wrap(err, "block")
		}

		return ast.Block{Base: base(l), Exprs: es}, nil
	case "loop", "break":
		if len(args) != 1 {
			return nil, newError(l, "%v expects 1 argument", head)
		}

		e, err := ParseExpr(ctx, args[0])
		if err != nil {
			return nil, errors.Wrap(err, "%v", head)
		}

		if head == "loop" {
			return ast.Loop{Base: base(l), Body: e}, nil
		}

		return ast.Break{Base: base(l), Value: e}, nil
	case "set!":
		if len(args) != 2 {
			return nil, newError(l, "set! expects a name and a value")
		}

		name, err := ident(args[0])
		if err != nil {
			return nil, errors.Wrap(err, "set!")
		}

		e, err := ParseExpr(ctx, args[1])
		if err != nil {
			return nil, errors.Wrap(err, "set! %v", name)
		}

		return ast.Set{Base: base(l), Name: name, Value: e}, nil
	case "fun":
		return nil, newError(l, "definition in expression position")
	}

	for _, op := range ast.Ops1 {
		if head != string(op) {
			continue
		}

		if len(args) != 1 {
			return nil, newError(l, "%v expects 1 argument", op)
		}

		e, err := ParseExpr(ctx, args[0])
		if err != nil {
			return nil, errors.Wrap(err, "%v", op)
		}

		return ast.UnOp{Base: base(l), Op: op, Arg: e}, nil
	}

	for _, op := range ast.Ops2 {
		if head != string(op) {
			continue
		}

		if len(args) != 2 {
			return nil, newError(l, "%v expects 2 arguments", op)
		}

		es, err := parseExprs(ctx, args)
		if err != nil {
			return nil, errors.Wrap(err, "%v", op)
		}

		return ast.BinOp{Base: base(l), Op: op, Left: es[0], Right: es[1]}, nil
	}

	if IsReserved(head) {
		return nil, newError(l, "%v is not an operator", head)
	}

	es, err := parseExprs(ctx, args)
	if err != nil {
		return nil, errors.Wrap(err, "call %v", head)
	}

	return ast.Call{Base: base(l), Func: head, Args: es}, nil
}

func parseLet(ctx context.Context, l sexp.List) (_ ast.Expr, err error) {
	if len(l.Items) != 3 {
		return nil, newError(l, "let expects bindings and a body")
	}

	bl, ok := l.Items[1].(sexp.List)
	if !ok || len(bl.Items) == 0 {
		return nil, newError(l.Items[1], "let expects a non-empty binding list")
	}

	x := ast.Let{Base: base(l)}

	for _, b := range bl.Items {
		pair, ok := b.(sexp.List)
		if !ok || len(pair.Items) != 2 {
			return nil, newError(b, "malformed binding")
		}

		name, err := ident(pair.Items[0])
		if err != nil {
			return nil, errors.Wrap(err, "let binding")
		}

		e, err := ParseExpr(ctx, pair.Items[1])
		if err != nil {
			return nil, errors.Wrap(err, "let %v", name)
		}

		x.Bindings = append(x.Bindings, ast.Binding{Base: base(pair), Name: name, Init: e})
	}

	x.Body, err = ParseExpr(ctx, l.Items[2])
	if err != nil {
		return nil, errors.Wrap(err, "let body")
	}

	return x, nil
}

func parseExprs(ctx context.Context, xs []sexp.Node) (es []ast.Expr, err error) {
	es = make([]ast.Expr, len(xs))

	for i, x := range xs {
		es[i], err = ParseExpr(ctx, x)
		if err != nil {
			return nil, errors.Wrap(err, "arg %d", i)
		}
	}

	return es, nil
}

func ident(x sexp.Node) (string, error) {
	s, ok := x.(sexp.Symbol)
	if !ok {
		return "", newError(x, "identifier expected")
	}

	if IsReserved(s.Name) {
		return "", newError(x, "keyword %v used as identifier", s.Name)
	}

	return s.Name, nil
}

func base(x sexp.Node) ast.Base {
	b := sexp.Span(x)

	return ast.Base{Pos: b.Pos, End: b.End}
}

func newError(x sexp.Node, f string, args ...any) *SyntaxError {
	b := sexp.Span(x)

	return &SyntaxError{
		Pos:  b.Pos,
		End:  b.End,
		Text: sexp.String(x),
		Msg:  fmt.Sprintf(f, args...),
	}
}

func (e *SyntaxError) Error() string {
	s := "syntax error: " + e.Msg

	if e.Text != "" {
		s += ": " + e.Text
	}

	if e.Where != "" {
		s = e.Where + ": " + s
	}

	return s
}
