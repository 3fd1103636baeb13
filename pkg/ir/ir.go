// Package ir defines the block-graph intermediate representation produced by
// lowering: virtual registers, basic blocks with explicit terminators, and the
// per-function control-flow graph consumed by register allocation.
package ir

import "github.com/raymyers/ralph816/pkg/target"

// VReg is a virtual register. Zero means "no register".
type VReg int

// BlockID indexes Function.Blocks.
type BlockID int

// VRegInfo describes one virtual register.
type VRegInfo struct {
	Name   string // source name, for listings
	Width  target.Width
	Signed bool
	// Fixed is an immovable location: a register binding or a fixed memory
	// address. Allocation resolves these first.
	Fixed *target.Loc
	// Hint is the preferred hardware register, if any.
	Hint target.Reg
}

// Value is an instruction operand: a virtual register or an immediate.
type Value struct {
	Reg   VReg
	Imm   int
	IsImm bool
}

// R wraps a register operand.
func R(v VReg) Value { return Value{Reg: v} }

// Imm wraps an immediate operand.
func Imm(n int) Value { return Value{Imm: n, IsImm: true} }

func (v Value) regs() []VReg {
	if v.IsImm || v.Reg == 0 {
		return nil
	}
	return []VReg{v.Reg}
}

// Cond is an unsigned comparison condition.
type Cond int

const (
	EQ Cond = iota
	NE
	LT
	GE
	LE
	GT
)

func (c Cond) String() string {
	return [...]string{"==", "!=", "<", ">=", "<=", ">"}[c]
}

// Negate returns the condition that holds exactly when c does not.
func (c Cond) Negate() Cond {
	switch c {
	case EQ:
		return NE
	case NE:
		return EQ
	case LT:
		return GE
	case GE:
		return LT
	case LE:
		return GT
	case GT:
		return LE
	}
	return c
}

// Swap returns the condition with operands exchanged (a c b == b Swap(c) a).
func (c Cond) Swap() Cond {
	switch c {
	case LT:
		return GT
	case GT:
		return LT
	case LE:
		return GE
	case GE:
		return LE
	}
	return c
}

// Eval evaluates the condition on unsigned operands.
func (c Cond) Eval(l, r int) bool {
	switch c {
	case EQ:
		return l == r
	case NE:
		return l != r
	case LT:
		return l < r
	case GE:
		return l >= r
	case LE:
		return l <= r
	case GT:
		return l > r
	}
	return false
}

// BinKind is a binary arithmetic operation.
type BinKind int

const (
	Add BinKind = iota
	Sub
	And
	Or
	Xor
	Shl
	Shr
	Sar // arithmetic shift right
)

func (k BinKind) String() string {
	return [...]string{"add", "sub", "and", "or", "xor", "shl", "shr", "sar"}[k]
}

// Commutative reports whether operands may be exchanged.
func (k BinKind) Commutative() bool {
	return k == Add || k == And || k == Or || k == Xor
}

// UnKind is a unary operation.
type UnKind int

const (
	Neg UnKind = iota // two's complement negation
	Not               // boolean not
	Cpl               // bitwise complement
)

func (k UnKind) String() string {
	return [...]string{"neg", "not", "cpl"}[k]
}

// Addr is a memory address operand.
type Addr struct {
	Symbol string // global symbol, if any
	Far    bool   // symbol lives in another bank (long addressing)
	Fixed  *int   // explicit absolute address
	Base   VReg   // near pointer base, if any
	Offset int
}

func (a Addr) regs() []VReg {
	if a.Base == 0 {
		return nil
	}
	return []VReg{a.Base}
}

// --- Instructions ---

// Instr is a non-terminating instruction.
type Instr interface {
	implInstr()
	Defs() []VReg
	Uses() []VReg
}

// Params defines the incoming parameter registers at function entry.
type Params struct {
	Dsts []VReg
}

// Const loads an immediate.
type Const struct {
	Dst   VReg
	Value int
}

// Move copies Src to Dst.
type Move struct {
	Dst, Src VReg
}

// Convert changes the width of Src into Dst, sign- or zero-extending.
type Convert struct {
	Dst, Src VReg
	Signed   bool
}

// BinOp computes Dst = L op R.
type BinOp struct {
	Op  BinKind
	Dst VReg
	L   VReg
	R   Value
	// NoWrap marks a step known not to overflow the value width, which
	// lets an index register be incremented in place.
	NoWrap bool
}

// UnOp computes Dst = op Src.
type UnOp struct {
	Op       UnKind
	Dst, Src VReg
}

// SetCond materializes Dst = (L cond R) as 0 or 1.
type SetCond struct {
	Cond Cond
	Dst  VReg
	L    VReg
	R    Value
}

// Load reads memory into Dst.
type Load struct {
	Dst  VReg
	Addr Addr
}

// Store writes Src to memory.
type Store struct {
	Addr Addr
	Src  Value
}

// LoadTable reads Table[Index] from a constant lookup table.
type LoadTable struct {
	Dst   VReg
	Table string
	Index VReg
}

// Push pushes a stack argument.
type Push struct {
	Src Value
}

// Call is a direct call. Args and Results are the fixed-location registers
// carrying register- and variable-bound values.
type Call struct {
	Func       string
	Far        bool
	Args       []VReg
	Results    []VReg
	StackBytes int
	// Preserve is the callee's preserved-register contract.
	Preserve         target.RegMask
	PreservesScratch bool
}

// Dispatch is a table-indexed call through the tag of Object.
type Dispatch struct {
	Table      string
	Far        bool
	EntryWidth int
	Object     VReg
	Args       []VReg
	Results    []VReg
	StackBytes int
}

func (Params) implInstr()    {}
func (Const) implInstr()     {}
func (Move) implInstr()      {}
func (Convert) implInstr()   {}
func (BinOp) implInstr()     {}
func (UnOp) implInstr()      {}
func (SetCond) implInstr()   {}
func (Load) implInstr()      {}
func (Store) implInstr()     {}
func (LoadTable) implInstr() {}
func (Push) implInstr()      {}
func (Call) implInstr()      {}
func (Dispatch) implInstr()  {}

func (i Params) Defs() []VReg    { return i.Dsts }
func (i Const) Defs() []VReg     { return []VReg{i.Dst} }
func (i Move) Defs() []VReg      { return []VReg{i.Dst} }
func (i Convert) Defs() []VReg   { return []VReg{i.Dst} }
func (i BinOp) Defs() []VReg     { return []VReg{i.Dst} }
func (i UnOp) Defs() []VReg      { return []VReg{i.Dst} }
func (i SetCond) Defs() []VReg   { return []VReg{i.Dst} }
func (i Load) Defs() []VReg      { return []VReg{i.Dst} }
func (i Store) Defs() []VReg     { return nil }
func (i LoadTable) Defs() []VReg { return []VReg{i.Dst} }
func (i Push) Defs() []VReg      { return nil }
func (i Call) Defs() []VReg      { return i.Results }
func (i Dispatch) Defs() []VReg  { return i.Results }

func (i Params) Uses() []VReg    { return nil }
func (i Const) Uses() []VReg     { return nil }
func (i Move) Uses() []VReg      { return []VReg{i.Src} }
func (i Convert) Uses() []VReg   { return []VReg{i.Src} }
func (i BinOp) Uses() []VReg     { return append([]VReg{i.L}, i.R.regs()...) }
func (i UnOp) Uses() []VReg      { return []VReg{i.Src} }
func (i SetCond) Uses() []VReg   { return append([]VReg{i.L}, i.R.regs()...) }
func (i Load) Uses() []VReg      { return i.Addr.regs() }
func (i Store) Uses() []VReg     { return append(i.Addr.regs(), i.Src.regs()...) }
func (i LoadTable) Uses() []VReg { return []VReg{i.Index} }
func (i Push) Uses() []VReg      { return i.Src.regs() }
func (i Call) Uses() []VReg      { return i.Args }
func (i Dispatch) Uses() []VReg  { return append([]VReg{i.Object}, i.Args...) }

// IsCall reports whether the instruction transfers control to another function.
func IsCall(i Instr) bool {
	switch i.(type) {
	case Call, Dispatch:
		return true
	}
	return false
}

// --- Terminators ---

// Terminator ends a basic block.
type Terminator interface {
	implTerm()
	Successors() []BlockID
	Uses() []VReg
}

// Jump is an unconditional jump.
type Jump struct {
	Target BlockID
}

// Branch is a conditional branch pair.
type Branch struct {
	Cond Cond
	L    VReg
	R    Value
	Then BlockID
	Else BlockID
}

// JumpTable transfers control to Targets[Index]. Index is in range.
type JumpTable struct {
	Index   VReg
	Targets []BlockID
}

// Return returns Values in their fixed return locations.
type Return struct {
	Values []VReg
}

func (Jump) implTerm()      {}
func (Branch) implTerm()    {}
func (JumpTable) implTerm() {}
func (Return) implTerm()    {}

func (t Jump) Successors() []BlockID   { return []BlockID{t.Target} }
func (t Branch) Successors() []BlockID { return []BlockID{t.Then, t.Else} }
func (t JumpTable) Successors() []BlockID {
	out := make([]BlockID, len(t.Targets))
	copy(out, t.Targets)
	return out
}
func (t Return) Successors() []BlockID { return nil }

func (t Jump) Uses() []VReg      { return nil }
func (t Branch) Uses() []VReg    { return append([]VReg{t.L}, t.R.regs()...) }
func (t JumpTable) Uses() []VReg { return []VReg{t.Index} }
func (t Return) Uses() []VReg    { return t.Values }

// --- Blocks and functions ---

// Block is a basic block.
type Block struct {
	ID     BlockID
	Name   string
	Instrs []Instr
	Term   Terminator
}

// Append adds an instruction to the block.
func (b *Block) Append(i Instr) {
	b.Instrs = append(b.Instrs, i)
}

// Table is a constant lookup table produced by match compilation.
type Table struct {
	Name   string
	Width  target.Width
	Values []int
}

// Function is the block graph of one function. Blocks are stored in
// creation order, which is also the preferred layout order.
type Function struct {
	Name   string
	Mode   target.Mode
	Blocks []*Block
	Entry  BlockID
	VRegs  []VRegInfo // indexed by VReg; entry 0 unused
	Tables []Table
}

// NewFunction creates an empty function.
func NewFunction(name string, mode target.Mode) *Function {
	return &Function{Name: name, Mode: mode, VRegs: []VRegInfo{{}}}
}

// NewVReg allocates a virtual register.
func (f *Function) NewVReg(info VRegInfo) VReg {
	f.VRegs = append(f.VRegs, info)
	return VReg(len(f.VRegs) - 1)
}

// Info returns the descriptor of v.
func (f *Function) Info(v VReg) *VRegInfo {
	return &f.VRegs[v]
}

// NumVRegs returns one more than the highest VReg.
func (f *Function) NumVRegs() int { return len(f.VRegs) }

// NewBlock appends a block.
func (f *Function) NewBlock(name string) *Block {
	b := &Block{ID: BlockID(len(f.Blocks)), Name: name}
	f.Blocks = append(f.Blocks, b)
	return b
}

// Block returns the block with the given id.
func (f *Function) Block(id BlockID) *Block {
	return f.Blocks[id]
}

// Preds computes predecessor lists.
func (f *Function) Preds() map[BlockID][]BlockID {
	preds := make(map[BlockID][]BlockID)
	for _, b := range f.Blocks {
		if b.Term == nil {
			continue
		}
		for _, s := range b.Term.Successors() {
			preds[s] = append(preds[s], b.ID)
		}
	}
	return preds
}

// Reachable returns the set of blocks reachable from the entry.
func (f *Function) Reachable() map[BlockID]bool {
	seen := make(map[BlockID]bool)
	stack := []BlockID{f.Entry}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		if t := f.Blocks[id].Term; t != nil {
			stack = append(stack, t.Successors()...)
		}
	}
	return seen
}
