package parse

import (
	"context"

	"tlog.app/go/errors"

	"github.com/slowlang/snek/compiler/sexp"
)

type (
	Expr struct{}

	// List is a parenthesized (or bracketed) sequence of Expr.
	List struct{}
)

func (p Expr) Parse(ctx context.Context, b []byte, st int) (x sexp.Node, i int, err error) {
	r := AnyOf{
		List{},
		Atom{},
	}

	return r.Parse(ctx, b, st)
}

func (p List) Parse(ctx context.Context, b []byte, st int) (x sexp.Node, i int, err error) {
	if st == len(b) {
		return nil, st, errors.New("List expected")
	}

	var closing byte

	switch b[st] {
	case '(':
		closing = ')'
	case '[':
		closing = ']'
	default:
		return nil, st, errors.New("List expected")
	}

	r := Context{
		Pre:  Const(b[st : st+1]),
		Of:   Many{Of: Spaced(Expr{}, SpaceAll)},
		Post: Spaced(Const([]byte{closing}), SpaceAll),
	}

	x, i, err = r.Parse(ctx, b, st)
	if err != nil {
		if i == st {
			i = st + 1
		}

		return nil, i, errors.Wrap(err, "list at %d", st)
	}

	items, _ := x.([]sexp.Node)

	return sexp.List{
		Base: sexp.Base{
			Pos: st,
			End: i,
		},
		Items: items,
	}, i, nil
}
