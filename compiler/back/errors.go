package back

import (
	"fmt"

	"github.com/slowlang/snek/compiler/ast"
)

type (
	// Error is a compile-time fault found while generating code.
	Error struct {
		Kind Kind
		Name string // variable or function involved

		Pos   int
		End   int
		Where string // file:line:col when the source is known
		Text  string // offending fragment

		Detail string
	}

	Kind int
)

const (
	_ Kind = iota
	UnboundVariable
	DuplicateBinding
	BreakOutsideLoop
	UndefinedFunction
	ArityMismatch
	InputInFunction
)

var kindNames = map[Kind]string{
	UnboundVariable:   "unbound variable",
	DuplicateBinding:  "duplicate binding",
	BreakOutsideLoop:  "break outside loop",
	UndefinedFunction: "undefined function",
	ArityMismatch:     "wrong number of arguments",
	InputInFunction:   "input used inside a function",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}

	return fmt.Sprintf("Kind(%d)", int(k))
}

func newError(k Kind, x ast.Expr, name string) *Error {
	b := x.Span()

	return &Error{
		Kind: k,
		Name: name,
		Pos:  b.Pos,
		End:  b.End,
	}
}

func (e *Error) Error() string {
	s := e.Kind.String()

	if e.Name != "" {
		s += ": " + e.Name
	}

	if e.Detail != "" {
		s += " (" + e.Detail + ")"
	}

	if e.Text != "" && e.Text != e.Name {
		s += " in " + e.Text
	}

	if e.Where != "" {
		s = e.Where + ": " + s
	}

	return s
}
