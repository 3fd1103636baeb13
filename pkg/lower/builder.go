package lower

import (
	"github.com/raymyers/ralph816/pkg/ast"
	"github.com/raymyers/ralph816/pkg/ir"
	"github.com/raymyers/ralph816/pkg/target"
)

// CFGBuilder appends instructions to the current block of a function under
// construction. Once the current block is terminated, further code goes to
// a fresh unreachable block so that dead statements are still checked.
type CFGBuilder struct {
	fn     *ir.Function
	cur    *ir.Block
	dead   bool // the current block is known unreachable
	scopes []map[string]*local
	loops  []*loopCtx
	// entered lists blocks in the order code was first emitted into them.
	entered []ir.BlockID
	seen    map[ir.BlockID]bool
}

// local is a named value: a virtual register, or a global in memory.
type local struct {
	reg    ir.VReg
	typ    ast.Type
	global *ast.Global
}

// loopCtx is one enclosing loop.
type loopCtx struct {
	label  string
	exit   ir.BlockID
	cont   ir.BlockID
	result ir.VReg // zero until the first value-carrying break
	typ    ast.Type
	valued int // breaks with a value
	bare   int // breaks without one
	// valueOK is set for loops whose only exit is a break.
	valueOK bool
}

// NewCFGBuilder starts a function with an empty entry block.
func NewCFGBuilder(name string, mode target.Mode) *CFGBuilder {
	b := &CFGBuilder{fn: ir.NewFunction(name, mode), seen: make(map[ir.BlockID]bool)}
	b.cur = b.fn.NewBlock("entry")
	b.fn.Entry = b.cur.ID
	b.enter(b.cur.ID)
	b.PushScope()
	return b
}

// Function returns the function built so far.
func (b *CFGBuilder) Function() *ir.Function { return b.fn }

// NewBlock allocates a block without switching to it.
func (b *CFGBuilder) NewBlock(name string) ir.BlockID {
	return b.fn.NewBlock(name).ID
}

// SetBlock makes id the current block.
func (b *CFGBuilder) SetBlock(id ir.BlockID) {
	b.cur = b.fn.Block(id)
	b.dead = false
	b.enter(id)
}

// MarkDead records that the current block cannot execute.
func (b *CFGBuilder) MarkDead() { b.dead = true }

func (b *CFGBuilder) enter(id ir.BlockID) {
	if !b.seen[id] {
		b.seen[id] = true
		b.entered = append(b.entered, id)
	}
}

// Current returns the current block id.
func (b *CFGBuilder) Current() ir.BlockID { return b.ensure().ID }

// Dead reports whether the code being emitted cannot execute.
func (b *CFGBuilder) Dead() bool { return b.dead || b.cur.Term != nil }

func (b *CFGBuilder) ensure() *ir.Block {
	if b.cur.Term != nil {
		b.cur = b.fn.NewBlock("dead")
		b.dead = true
		b.enter(b.cur.ID)
	}
	return b.cur
}

// Emit appends an instruction to the current block.
func (b *CFGBuilder) Emit(i ir.Instr) {
	b.ensure().Append(i)
}

// Terminate ends the current block.
func (b *CFGBuilder) Terminate(t ir.Terminator) {
	b.ensure().Term = t
}

// Jump ends the current block with a jump to target.
func (b *CFGBuilder) Jump(target ir.BlockID) {
	b.Terminate(ir.Jump{Target: target})
}

// AllocReg allocates a temporary of the given type.
func (b *CFGBuilder) AllocReg(name string, w target.Width, signed bool) ir.VReg {
	return b.fn.NewVReg(ir.VRegInfo{Name: name, Width: w, Signed: signed})
}

// AllocFixed allocates a register pinned to loc.
func (b *CFGBuilder) AllocFixed(name string, w target.Width, signed bool, loc target.Loc) ir.VReg {
	l := loc
	return b.fn.NewVReg(ir.VRegInfo{Name: name, Width: w, Signed: signed, Fixed: &l})
}

// Hint records a preferred hardware register for v.
func (b *CFGBuilder) Hint(v ir.VReg, r target.Reg) {
	b.fn.Info(v).Hint = r
}

// PushScope opens a lexical scope.
func (b *CFGBuilder) PushScope() {
	b.scopes = append(b.scopes, make(map[string]*local))
}

// PopScope closes the innermost scope.
func (b *CFGBuilder) PopScope() {
	b.scopes = b.scopes[:len(b.scopes)-1]
}

// MapVar binds name in the innermost scope.
func (b *CFGBuilder) MapVar(name string, l *local) {
	b.scopes[len(b.scopes)-1][name] = l
}

// LookupVar resolves name from the innermost scope outwards.
func (b *CFGBuilder) LookupVar(name string) (*local, bool) {
	for i := len(b.scopes) - 1; i >= 0; i-- {
		if l, ok := b.scopes[i][name]; ok {
			return l, true
		}
	}
	return nil, false
}

func (b *CFGBuilder) pushLoop(l *loopCtx) { b.loops = append(b.loops, l) }
func (b *CFGBuilder) popLoop()            { b.loops = b.loops[:len(b.loops)-1] }

// findLoop returns the innermost loop, or the enclosing loop with label.
func (b *CFGBuilder) findLoop(label string) (*loopCtx, bool) {
	for i := len(b.loops) - 1; i >= 0; i-- {
		if label == "" || b.loops[i].label == label {
			return b.loops[i], true
		}
	}
	return nil, false
}

// Finish drops unreachable blocks and renumbers the rest in the order they
// were entered, which becomes the layout order. Every reachable block must
// be terminated.
func (b *CFGBuilder) Finish() *ir.Function {
	reach := b.fn.Reachable()
	order := make([]ir.BlockID, 0, len(b.fn.Blocks))
	for _, id := range b.entered {
		if reach[id] {
			order = append(order, id)
		}
	}
	for _, blk := range b.fn.Blocks {
		if reach[blk.ID] && !b.seen[blk.ID] {
			order = append(order, blk.ID)
		}
	}
	remap := make(map[ir.BlockID]ir.BlockID, len(order))
	for i, id := range order {
		remap[id] = ir.BlockID(i)
	}
	blocks := make([]*ir.Block, len(order))
	for i, id := range order {
		blk := b.fn.Blocks[id]
		blk.ID = ir.BlockID(i)
		blk.Term = retarget(blk.Term, remap)
		blocks[i] = blk
	}
	b.fn.Blocks = blocks
	b.fn.Entry = remap[b.fn.Entry]
	return b.fn
}

func retarget(t ir.Terminator, remap map[ir.BlockID]ir.BlockID) ir.Terminator {
	switch t := t.(type) {
	case ir.Jump:
		return ir.Jump{Target: remap[t.Target]}
	case ir.Branch:
		t.Then, t.Else = remap[t.Then], remap[t.Else]
		return t
	case ir.JumpTable:
		targets := make([]ir.BlockID, len(t.Targets))
		for i, s := range t.Targets {
			targets[i] = remap[s]
		}
		return ir.JumpTable{Index: t.Index, Targets: targets}
	}
	return t
}
