// Package target describes the 65816-style machine the backend generates code for:
// its registers, accumulator modes, value widths and the physical locations a
// virtual register can be assigned to.
package target

import (
	"fmt"
	"strings"
)

// Reg is a hardware register that can hold a program value.
type Reg int

const (
	NoReg Reg = iota
	A         // accumulator (width follows the M flag)
	B         // high half of the accumulator, usable as an 8-bit register in narrow mode
	X         // index register, always 16 bits
	Y         // index register, always 16 bits
)

// Regs lists the allocatable registers in preference order.
var Regs = []Reg{A, X, Y, B}

func (r Reg) String() string {
	switch r {
	case A:
		return "a"
	case B:
		return "b"
	case X:
		return "x"
	case Y:
		return "y"
	}
	return "?"
}

// ParseReg maps a binding register name to a Reg.
func ParseReg(name string) (Reg, bool) {
	switch strings.ToLower(name) {
	case "a":
		return A, true
	case "b":
		return B, true
	case "x":
		return X, true
	case "y":
		return Y, true
	}
	return NoReg, false
}

// IsIndex reports whether r is one of the fixed-width index registers.
func (r Reg) IsIndex() bool { return r == X || r == Y }

// RegMask is a set of hardware registers.
type RegMask uint8

// Mask returns the single-register mask for r.
func (r Reg) Mask() RegMask {
	if r == NoReg {
		return 0
	}
	return 1 << uint(r)
}

// AllRegs contains every allocatable register.
const AllRegs = RegMask(1<<A | 1<<B | 1<<X | 1<<Y)

// Has reports whether r is in the mask.
func (m RegMask) Has(r Reg) bool { return m&r.Mask() != 0 }

// With returns m with r added.
func (m RegMask) With(r Reg) RegMask { return m | r.Mask() }

func (m RegMask) String() string {
	var parts []string
	for _, r := range Regs {
		if m.Has(r) {
			parts = append(parts, r.String())
		}
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// Mode is the accumulator width mode of a function.
type Mode int

const (
	Narrow Mode = iota // 8-bit accumulator (M flag set)
	Wide               // 16-bit accumulator (M flag clear)
)

func (m Mode) String() string {
	if m == Wide {
		return "wide"
	}
	return "narrow"
}

// Width returns the accumulator width in bytes for the mode.
func (m Mode) Width() Width {
	if m == Wide {
		return W16
	}
	return W8
}

// Width is a value width in bytes.
type Width int

const (
	W8  Width = 1
	W16 Width = 2
)

func (w Width) String() string {
	return fmt.Sprintf("w%d", int(w)*8)
}

// Mask returns the all-ones value for the width.
func (w Width) Mask() int {
	if w == W16 {
		return 0xFFFF
	}
	return 0xFF
}

// SignBit returns the sign bit for the width.
func (w Width) SignBit() int {
	if w == W16 {
		return 0x8000
	}
	return 0x80
}

// CanHold reports whether register r can hold a value of width w while the
// function runs in mode m.
func CanHold(r Reg, w Width, m Mode) bool {
	switch r {
	case A:
		return w <= m.Width()
	case B:
		return m == Narrow && w == W8
	case X, Y:
		return true
	}
	return false
}

// LocKind classifies a physical location.
type LocKind int

const (
	LocNone    LocKind = iota
	LocReg             // hardware register
	LocScratch         // scratch pool slot (direct page)
	LocStack           // stack-relative frame slot
	LocFixed           // explicit fixed memory address
	LocVar             // variable-bound symbol
	LocArg             // incoming stack argument, Offset within the argument area
)

// Loc is the physical location of a virtual register.
type Loc struct {
	Kind   LocKind
	Reg    Reg
	Offset int    // scratch byte offset, stack offset, or fixed address
	Symbol string // variable symbol for LocVar
}

// RegLoc returns a register location.
func RegLoc(r Reg) Loc { return Loc{Kind: LocReg, Reg: r} }

// IsReg reports whether the location is a hardware register.
func (l Loc) IsReg() bool { return l.Kind == LocReg }

// IsMem reports whether the location is addressable memory.
func (l Loc) IsMem() bool {
	return l.Kind == LocScratch || l.Kind == LocStack || l.Kind == LocFixed || l.Kind == LocVar || l.Kind == LocArg
}

func (l Loc) String() string {
	switch l.Kind {
	case LocReg:
		return l.Reg.String()
	case LocScratch:
		return fmt.Sprintf("scratch[%d]", l.Offset)
	case LocStack:
		return fmt.Sprintf("stack[%d]", l.Offset)
	case LocFixed:
		return fmt.Sprintf("$%04X", l.Offset)
	case LocVar:
		return l.Symbol
	case LocArg:
		return fmt.Sprintf("arg[%d]", l.Offset)
	}
	return "none"
}
