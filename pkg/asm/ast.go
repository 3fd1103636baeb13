// Package asm defines the 65816 instruction records produced by the backend.
// This is the final output of the compiler: per-function instruction lists
// with symbolic labels, plus the dispatch and lookup tables, handed to a
// text-emission stage.
package asm

import (
	"fmt"

	"github.com/raymyers/ralph816/pkg/target"
)

// Op is an instruction mnemonic.
type Op string

const (
	LDA Op = "LDA"
	LDX Op = "LDX"
	LDY Op = "LDY"
	STA Op = "STA"
	STX Op = "STX"
	STY Op = "STY"
	STZ Op = "STZ"
	ADC Op = "ADC"
	SBC Op = "SBC"
	AND Op = "AND"
	ORA Op = "ORA"
	EOR Op = "EOR"
	CMP Op = "CMP"
	CPX Op = "CPX"
	CPY Op = "CPY"
	INC Op = "INC"
	DEC Op = "DEC"
	INX Op = "INX"
	INY Op = "INY"
	DEX Op = "DEX"
	DEY Op = "DEY"
	ASL Op = "ASL"
	LSR Op = "LSR"
	ROR Op = "ROR"
	CLC Op = "CLC"
	SEC Op = "SEC"
	TAX Op = "TAX"
	TAY Op = "TAY"
	TXA Op = "TXA"
	TYA Op = "TYA"
	TXY Op = "TXY"
	TYX Op = "TYX"
	TSC Op = "TSC"
	TCS Op = "TCS"
	XBA Op = "XBA"
	PHA Op = "PHA"
	PLA Op = "PLA"
	PHX Op = "PHX"
	PLX Op = "PLX"
	PHY Op = "PHY"
	PLY Op = "PLY"
	PHB Op = "PHB"
	PLB Op = "PLB"
	PHK Op = "PHK"
	PHD Op = "PHD"
	PLD Op = "PLD"
	PHP Op = "PHP"
	PLP Op = "PLP"
	PER Op = "PER"
	PEA Op = "PEA"
	PEI Op = "PEI"
	REP Op = "REP"
	SEP Op = "SEP"
	JSR Op = "JSR"
	JSL Op = "JSL"
	RTS Op = "RTS"
	RTL Op = "RTL"
	RTI Op = "RTI"
	JMP Op = "JMP"
	JML Op = "JML"
	BRA Op = "BRA"
	BRL Op = "BRL"
	BEQ Op = "BEQ"
	BNE Op = "BNE"
	BCC Op = "BCC"
	BCS Op = "BCS"
	BMI Op = "BMI"
	BPL Op = "BPL"
	BVC Op = "BVC"
	BVS Op = "BVS"
	BRK Op = "BRK"
	NOP Op = "NOP"

	// Label is a pseudo-instruction defining Sym at the current address.
	Label Op = ".label"
)

// MFlag is the REP/SEP immediate selecting the accumulator width.
const MFlag = 0x20

// AddrMode is an operand addressing mode.
type AddrMode int

const (
	Implied   AddrMode = iota
	Immediate          // #value, Width bytes
	Direct             // dp
	DirectX            // dp,X
	Absolute           // abs (symbol or value)
	AbsoluteX          // abs,X
	AbsoluteY          // abs,Y
	Long               // long (24-bit)
	LongX              // long,X
	StackRel           // sr,S
	Indirect           // (dp)
	IndirectY          // (dp),Y
	IndLong            // [dp]
	AbsXInd            // (abs,X)
	Relative           // 8-bit branch displacement to Sym
	RelLong            // 16-bit displacement to Sym (BRL, PER)
)

// Instr is one instruction record.
type Instr struct {
	Op    Op
	Mode  AddrMode
	Value int    // immediate, address or offset
	Sym   string // symbolic operand; takes precedence over Value when set
	Width int    // immediate size in bytes
	// Distance is the resolved branch displacement, set by the fixup pass.
	Distance int
}

// Size returns the encoded size of the instruction in bytes.
func (i Instr) Size() int {
	if i.Op == Label {
		return 0
	}
	switch i.Mode {
	case Implied:
		return 1
	case Immediate:
		if i.Width == 2 {
			return 3
		}
		return 2
	case Direct, DirectX, StackRel, Indirect, IndirectY, IndLong, Relative:
		return 2
	case Absolute, AbsoluteX, AbsoluteY, AbsXInd, RelLong:
		return 3
	case Long, LongX:
		return 4
	}
	return 1
}

// IsCondBranch reports whether op is a short conditional branch.
func IsCondBranch(op Op) bool {
	switch op {
	case BEQ, BNE, BCC, BCS, BMI, BPL, BVC, BVS:
		return true
	}
	return false
}

// IsBranch reports whether op takes a relative displacement.
func IsBranch(op Op) bool {
	return IsCondBranch(op) || op == BRA || op == BRL
}

// Invert returns the conditional branch with the opposite condition.
func Invert(op Op) Op {
	switch op {
	case BEQ:
		return BNE
	case BNE:
		return BEQ
	case BCC:
		return BCS
	case BCS:
		return BCC
	case BMI:
		return BPL
	case BPL:
		return BMI
	case BVC:
		return BVS
	case BVS:
		return BVC
	}
	return op
}

// Constructors.

// I builds an implied-mode instruction.
func I(op Op) Instr { return Instr{Op: op, Mode: Implied} }

// Imm builds an immediate-mode instruction.
func Imm(op Op, v, width int) Instr {
	return Instr{Op: op, Mode: Immediate, Value: v, Width: width}
}

// Dp builds a direct-page instruction.
func Dp(op Op, addr int) Instr { return Instr{Op: op, Mode: Direct, Value: addr} }

// Abs builds an absolute-mode instruction against a symbol.
func Abs(op Op, sym string) Instr { return Instr{Op: op, Mode: Absolute, Sym: sym} }

// AbsAt builds an absolute-mode instruction against a fixed address.
func AbsAt(op Op, addr int) Instr { return Instr{Op: op, Mode: Absolute, Value: addr} }

// Lng builds a long-mode instruction against a symbol.
func Lng(op Op, sym string) Instr { return Instr{Op: op, Mode: Long, Sym: sym} }

// Ind builds a direct-page indirect instruction.
func Ind(op Op, addr int) Instr { return Instr{Op: op, Mode: Indirect, Value: addr} }

// Sr builds a stack-relative instruction.
func Sr(op Op, off int) Instr { return Instr{Op: op, Mode: StackRel, Value: off} }

// Br builds a branch to a label. BRL uses the long form.
func Br(op Op, label string) Instr {
	if op == BRL {
		return Instr{Op: op, Mode: RelLong, Sym: label}
	}
	return Instr{Op: op, Mode: Relative, Sym: label}
}

// Lbl defines a label.
func Lbl(name string) Instr { return Instr{Op: Label, Sym: name} }

// Rep and Sep switch the accumulator width.
func Rep() Instr { return Imm(REP, MFlag, 1) }
func Sep() Instr { return Imm(SEP, MFlag, 1) }

func (i Instr) operand() string {
	ref := i.Sym
	if ref == "" {
		ref = fmt.Sprintf("$%X", i.Value)
	}
	switch i.Mode {
	case Implied:
		return ""
	case Immediate:
		if i.Sym != "" {
			return "#" + i.Sym
		}
		if i.Width == 2 {
			return fmt.Sprintf("#$%04X", i.Value&0xFFFF)
		}
		return fmt.Sprintf("#$%02X", i.Value&0xFF)
	case Direct:
		return ref
	case DirectX:
		return ref + ",X"
	case Absolute, Relative, RelLong:
		return ref
	case AbsoluteX:
		return ref + ",X"
	case AbsoluteY:
		return ref + ",Y"
	case Long:
		return "f:" + ref
	case LongX:
		return "f:" + ref + ",X"
	case StackRel:
		return fmt.Sprintf("%d,S", i.Value)
	case Indirect:
		return "(" + ref + ")"
	case IndirectY:
		return "(" + ref + "),Y"
	case IndLong:
		return "[" + ref + "]"
	case AbsXInd:
		return "(" + ref + ",X)"
	}
	return ref
}

func (i Instr) String() string {
	if i.Op == Label {
		return i.Sym + ":"
	}
	if op := i.operand(); op != "" {
		return string(i.Op) + " " + op
	}
	return string(i.Op)
}

// Function is the instruction list of one function.
type Function struct {
	Name string
	Bank int
	Far  bool
	Mode target.Mode
	Code []Instr
}

// TableKind distinguishes the layouts of data tables.
type TableKind int

const (
	// ValueTable holds constant values (match lookup tables).
	ValueTable TableKind = iota
	// AddrTable holds 16-bit code addresses (near dispatch).
	AddrTable
	// TrampolineTable holds one JML per entry (far dispatch).
	TrampolineTable
)

// DataTable is a read-only table emitted alongside the code.
type DataTable struct {
	Name    string
	Kind    TableKind
	Width   int // entry size in bytes
	Values  []int
	Targets []string // code targets for AddrTable and TrampolineTable
}

// Len returns the number of entries.
func (t DataTable) Len() int {
	if t.Kind == ValueTable {
		return len(t.Values)
	}
	return len(t.Targets)
}

// Vector binds an interrupt vector to its handler.
type Vector struct {
	Kind    string
	Handler string
}

// Program is the complete backend output for one unit.
type Program struct {
	Functions []*Function
	Tables    []DataTable
	Vectors   []Vector
}
