package sexp

import (
	"strconv"
	"strings"
)

type (
	Node interface{}

	Base struct {
		Pos int
		End int
	}

	Int struct {
		Base `tlog:",embed"`

		Value int64
	}

	Symbol struct {
		Base `tlog:",embed"`

		Name string
	}

	List struct {
		Base `tlog:",embed"`

		Items []Node
	}
)

// Span returns the source range of a node.
func Span(x Node) Base {
	switch x := x.(type) {
	case Int:
		return x.Base
	case Symbol:
		return x.Base
	case List:
		return x.Base
	default:
		return Base{}
	}
}

func (x Int) String() string    { return strconv.FormatInt(x.Value, 10) }
func (x Symbol) String() string { return x.Name }

func (x List) String() string {
	var b strings.Builder

	b.WriteByte('(')

	for i, it := range x.Items {
		if i != 0 {
			b.WriteByte(' ')
		}

		b.WriteString(String(it))
	}

	b.WriteByte(')')

	return b.String()
}

// String renders a node back as surface text.
func String(x Node) string {
	switch x := x.(type) {
	case Int:
		return x.String()
	case Symbol:
		return x.String()
	case List:
		return x.String()
	default:
		return "<nil>"
	}
}

// Head returns the symbol in the first position of a list.
func Head(x List) (string, bool) {
	if len(x.Items) == 0 {
		return "", false
	}

	s, ok := x.Items[0].(Symbol)

	return s.Name, ok
}
