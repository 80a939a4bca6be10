package parse

import (
	"context"
	"fmt"
	"strings"

	"tlog.app/go/errors"

	"github.com/slowlang/snek/compiler/sexp"
)

type (
	Context struct {
		Pre  Parser
		Of   Parser
		Post Parser
	}

	// Many applies Of until it stops consuming input.
	Many struct {
		Of Parser
	}

	AnyOf []Parser
)

func (p Context) Parse(ctx context.Context, b []byte, st int) (x sexp.Node, i int, err error) {
	i = st

	if p.Pre != nil {
		_, i, err = p.Pre.Parse(ctx, b, i)
		if err != nil {
			return nil, i, errors.Wrap(err, "pre")
		}
	}

	vst := i

	x, i, err = p.Of.Parse(ctx, b, i)
	if err != nil {
		if i == vst {
			i = st
		}

		return nil, i, errors.Wrap(err, "of")
	}

	if p.Post != nil {
		_, i, err = p.Post.Parse(ctx, b, i)
		if err != nil {
			return nil, i, errors.Wrap(err, "post")
		}
	}

	return x, i, nil
}

func (p Many) Parse(ctx context.Context, b []byte, st int) (_ sexp.Node, i int, err error) {
	var res []sexp.Node

	i = st

	for i < len(b) {
		x, j, err := p.Of.Parse(ctx, b, i)
		if err != nil {
			if j <= i {
				break
			}

			return nil, j, err
		}

		if j == i {
			break
		}

		res = append(res, x)
		i = j
	}

	return res, i, nil
}

func (p AnyOf) Parse(ctx context.Context, b []byte, st int) (_ sexp.Node, i int, err error) {
	for _, r := range p {
		x, j, e := r.Parse(ctx, b, st)
		if e == nil {
			return x, j, nil
		}
		if j == st {
			continue
		}
		if err == nil {
			i = j
			err = errors.Wrap(e, "%T", r)
		}
	}

	if err != nil {
		return
	}

	return nil, st, errors.New("expected %v", joinHuman(p...))
}

func joinHuman(l ...Parser) string {
	switch len(l) {
	case 0:
		return "<none>"
	case 1:
		return fmt.Sprintf("%T", l[0])
	}

	var b strings.Builder

	for i, r := range l {
		if i+1 == len(l) {
			b.WriteString(" or ")
		} else if i != 0 {
			b.WriteString(", ")
		}

		fmt.Fprintf(&b, "%T", r)
	}

	return b.String()
}
