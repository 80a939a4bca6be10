package asm

import "fmt"

type (
	Reg   int
	Cond  string
	Label string
	Imm   int64

	Mem struct {
		Base Reg
		Off  int
	}

	// Operand is one of Reg, Mem, Imm or Label.
	Operand any

	Program struct {
		Entry  Label
		Extern []Label
		Funcs  []Func
	}

	Func struct {
		Name Label
		Body []Instr
	}

	Instr any

	Mov struct {
		Dst Operand
		Src Operand
	}

	Add  struct{ Dst, Src Operand }
	Sub  struct{ Dst, Src Operand }
	IMul struct{ Dst, Src Operand }
	And  struct{ Dst, Src Operand }
	Or   struct{ Dst, Src Operand }
	Xor  struct{ Dst, Src Operand }
	Cmp  struct{ Dst, Src Operand }
	Test struct{ Dst, Src Operand }

	Sar struct {
		Dst Operand
		N   int
	}

	Shl struct {
		Dst Operand
		N   int
	}

	Neg struct {
		Dst Operand
	}

	Push struct {
		Src Operand
	}

	Pop struct {
		Dst Operand
	}

	Jmp struct {
		Label Label
	}

	J struct {
		Cond  Cond
		Label Label
	}

	CMov struct {
		Cond Cond
		Dst  Reg
		Src  Reg
	}

	Call struct {
		Label Label
	}

	Ret struct{}

	LabelDef struct {
		Label Label
	}

	Comment struct {
		Text string
	}

	// Labels mints program-unique labels.
	// Pass it by pointer through code generation.
	Labels struct {
		next int
	}
)

const (
	RAX Reg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
)

const (
	CondE  Cond = "e"
	CondNE Cond = "ne"
	CondL  Cond = "l"
	CondLE Cond = "le"
	CondG  Cond = "g"
	CondGE Cond = "ge"
	CondO  Cond = "o"
	CondNO Cond = "no"
	CondZ  Cond = "z"
	CondNZ Cond = "nz"
)

var regNames = [...]string{"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi"}

func (r Reg) String() string {
	if r < 0 || int(r) >= len(regNames) {
		return fmt.Sprintf("r?%d", int(r))
	}

	return regNames[r]
}

// Slot is the memory operand [rbp + off].
func Slot(off int) Mem { return Mem{Base: RBP, Off: off} }

// New returns a fresh label with the given prefix.
func (l *Labels) New(prefix string) Label {
	l.next++

	return Label(fmt.Sprintf("%s_%d", prefix, l.next))
}

// Count is the number of labels minted so far.
func (l *Labels) Count() int { return l.next }
