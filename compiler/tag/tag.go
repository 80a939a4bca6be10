// Package tag defines the runtime value representation.
//
// A value is a machine word whose least significant bit is the type tag.
// Numbers have tag 0 and carry the integer shifted left by one bit.
// Booleans have tag 1: true is 0b11 and false is 0b01.
package tag

import (
	"math"
	"strconv"

	"github.com/slowlang/snek/compiler/asm"
)

const (
	Mask    = 1
	NumTag  = 0
	BoolTag = 1

	True  int64 = 0b11
	False int64 = 0b01
)

// Runtime error codes passed to snek_error.
const (
	ErrInvalidArgument = 1
	ErrOverflow        = 2
)

// Number bounds representable after tagging.
const (
	MaxInt = math.MaxInt64 >> 1
	MinInt = math.MinInt64 >> 1
)

func InRange(n int64) bool { return n >= MinInt && n <= MaxInt }

func EncodeInt(n int64) int64 { return n << 1 }

func DecodeInt(w int64) int64 { return w >> 1 }

func EncodeBool(v bool) int64 {
	if v {
		return True
	}

	return False
}

func IsNum(w int64) bool  { return w&Mask == NumTag }
func IsBool(w int64) bool { return w&Mask == BoolTag }

// Format renders a value the way the runtime printer does.
func Format(w int64) string {
	switch {
	case w == True:
		return "true"
	case w == False:
		return "false"
	case IsNum(w):
		return strconv.FormatInt(DecodeInt(w), 10)
	default:
		return "unknown value: " + strconv.FormatInt(w, 10)
	}
}

// CheckNum jumps to fail unless r holds a number.
func CheckNum(r asm.Reg, fail asm.Label) []asm.Instr {
	return []asm.Instr{
		asm.Test{Dst: r, Src: asm.Imm(Mask)},
		asm.J{Cond: asm.CondNZ, Label: fail},
	}
}

// CheckNums jumps to fail unless both a and b hold numbers. scratch is clobbered.
func CheckNums(a, b, scratch asm.Reg, fail asm.Label) []asm.Instr {
	return []asm.Instr{
		asm.Mov{Dst: scratch, Src: a},
		asm.Or{Dst: scratch, Src: b},
		asm.Test{Dst: scratch, Src: asm.Imm(Mask)},
		asm.J{Cond: asm.CondNZ, Label: fail},
	}
}

// CheckSameTag jumps to fail if a and b carry different tags. scratch is clobbered.
func CheckSameTag(a, b, scratch asm.Reg, fail asm.Label) []asm.Instr {
	return []asm.Instr{
		asm.Mov{Dst: scratch, Src: a},
		asm.Xor{Dst: scratch, Src: b},
		asm.Test{Dst: scratch, Src: asm.Imm(Mask)},
		asm.J{Cond: asm.CondNZ, Label: fail},
	}
}

// FromCond sets dst to true if cond holds after the preceding cmp, false otherwise.
// scratch is clobbered; flags must not be touched between cmp and this sequence.
func FromCond(cond asm.Cond, dst, scratch asm.Reg) []asm.Instr {
	return []asm.Instr{
		asm.Mov{Dst: dst, Src: asm.Imm(False)},
		asm.Mov{Dst: scratch, Src: asm.Imm(True)},
		asm.CMov{Cond: cond, Dst: dst, Src: scratch},
	}
}

// IsNumInstrs replaces the value in r by true if it is a number and by false otherwise.
func IsNumInstrs(r asm.Reg) []asm.Instr {
	return []asm.Instr{
		asm.And{Dst: r, Src: asm.Imm(Mask)},
		asm.Xor{Dst: r, Src: asm.Imm(1)},
		asm.Shl{Dst: r, N: 1},
		asm.Or{Dst: r, Src: asm.Imm(BoolTag)},
	}
}

// IsBoolInstrs replaces the value in r by true if it is a boolean and by false otherwise.
func IsBoolInstrs(r asm.Reg) []asm.Instr {
	return []asm.Instr{
		asm.And{Dst: r, Src: asm.Imm(Mask)},
		asm.Shl{Dst: r, N: 1},
		asm.Or{Dst: r, Src: asm.Imm(BoolTag)},
	}
}

// Untag turns a tagged number in r into its integer value.
func Untag(r asm.Reg) asm.Instr { return asm.Sar{Dst: r, N: 1} }
