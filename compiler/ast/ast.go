package ast

type (
	Expr interface {
		Span() Base
	}

	Base struct {
		Pos int
		End int
	}

	Num struct {
		Base `tlog:",embed"`

		Value int64
	}

	Bool struct {
		Base `tlog:",embed"`

		Value bool
	}

	Input struct {
		Base `tlog:",embed"`
	}

	Var struct {
		Base `tlog:",embed"`

		Name string
	}

	Binding struct {
		Base `tlog:",embed"`

		Name string
		Init Expr
	}

	Let struct {
		Base `tlog:",embed"`

		Bindings []Binding
		Body     Expr
	}

	UnOp struct {
		Base `tlog:",embed"`

		Op  Op1
		Arg Expr
	}

	BinOp struct {
		Base `tlog:",embed"`

		Op    Op2
		Left  Expr
		Right Expr
	}

	If struct {
		Base `tlog:",embed"`

		Cond Expr
		Then Expr
		Else Expr
	}

	Block struct {
		Base `tlog:",embed"`

		Exprs []Expr
	}

	Loop struct {
		Base `tlog:",embed"`

		Body Expr
	}

	Break struct {
		Base `tlog:",embed"`

		Value Expr
	}

	Set struct {
		Base `tlog:",embed"`

		Name  string
		Value Expr
	}

	Call struct {
		Base `tlog:",embed"`

		Func string
		Args []Expr
	}

	Definition struct {
		Base `tlog:",embed"`

		Name   string
		Params []string
		Body   Expr
	}

	Program struct {
		Defs []*Definition
		Main Expr
	}

	Op1 string
	Op2 string
)

const (
	Add1   Op1 = "add1"
	Sub1   Op1 = "sub1"
	Negate Op1 = "negate"
	IsNum  Op1 = "isnum"
	IsBool Op1 = "isbool"
	Print  Op1 = "print"
)

const (
	Plus    Op2 = "+"
	Minus   Op2 = "-"
	Times   Op2 = "*"
	Less    Op2 = "<"
	Greater Op2 = ">"
	LessEq  Op2 = "<="
	GreatEq Op2 = ">="
	Equal   Op2 = "="
)

var (
	Ops1 = []Op1{Add1, Sub1, Negate, IsNum, IsBool, Print}
	Ops2 = []Op2{Plus, Minus, Times, Less, Greater, LessEq, GreatEq, Equal}
)

func (b Base) Span() Base { return b }

// Def finds a definition by name.
func (p *Program) Def(name string) *Definition {
	for _, d := range p.Defs {
		if d.Name == name {
			return d
		}
	}

	return nil
}
