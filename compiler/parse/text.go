package parse

import (
	"bytes"
	"context"
	"unicode/utf8"

	"tlog.app/go/errors"

	"github.com/slowlang/snek/compiler/sexp"
)

type (
	Const []byte

	// Atom is a maximal run of non-delimiter bytes.
	// It yields sexp.Int if it looks like a number and sexp.Symbol otherwise.
	Atom struct{}
)

func (p Const) Parse(ctx context.Context, b []byte, st int) (x sexp.Node, i int, err error) {
	if bytes.HasPrefix(b[st:], p) {
		return Const(b[st : st+len(p)]), st + len(p), nil
	}

	return nil, st, errors.New("%q expected", []byte(p))
}

func (p Atom) Parse(ctx context.Context, b []byte, st int) (x sexp.Node, i int, err error) {
	i = st

	for i < len(b) && !delim(b[i]) {
		if b[i] < utf8.RuneSelf {
			i++
			continue
		}

		r, w := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError {
			return nil, i, errors.New("bad rune")
		}

		i += w
	}

	if i == st {
		return nil, st, errors.New("Atom expected")
	}

	base := sexp.Base{Pos: st, End: i}

	if !isNumber(b[st:i]) {
		return sexp.Symbol{Base: base, Name: string(b[st:i])}, i, nil
	}

	v, err := parseInt(b[st:i])
	if err != nil {
		return nil, i, errors.Wrap(err, "number %s", b[st:i])
	}

	return sexp.Int{Base: base, Value: v}, i, nil
}

func delim(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '(', ')', '[', ']', ';':
		return true
	}

	return false
}
