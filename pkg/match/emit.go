package match

import (
	"slices"

	"github.com/raymyers/ralph816/pkg/ast"
	"github.com/raymyers/ralph816/pkg/ir"
)

// Builder is the block-graph interface a match is emitted through. Values
// compare signed or unsigned according to the scrutinee register.
type Builder interface {
	NewBlock(name string) ir.BlockID
	SetBlock(id ir.BlockID)
	// Test ends the current block with a branch on x cond imm.
	Test(cond ir.Cond, x ir.VReg, imm int, then, els ir.BlockID)
	Jump(target ir.BlockID)
	// Index returns x - base as an unsigned table index.
	Index(x ir.VReg, base int) ir.VReg
	JumpTable(index ir.VReg, targets []ir.BlockID)
	// Lookup loads values[index] as the match result and leaves the match.
	Lookup(values []int, index ir.VReg)
	// Arm lowers the outcome of arm i in the current block and leaves the match.
	Arm(i int)
}

// Emit builds the dispatch selected by plan, starting in the current block.
func Emit(b Builder, d *Desc, plan *Plan, x ir.VReg) {
	switch plan.Strategy {
	case JumpTable, LookupTable:
		emitTable(b, d, plan, x)
	default:
		emitChain(b, d, x)
	}
}

func emitTable(b Builder, d *Desc, plan *Plan, x ir.VReg) {
	idx := x
	if plan.Min != 0 || d.Signed {
		idx = b.Index(x, plan.Min)
	}
	var outside ir.BlockID
	if plan.RangeCheck {
		inside := b.NewBlock("match.table")
		outside = b.NewBlock("match.default")
		b.Test(ir.GE, idx, len(plan.Owners), outside, inside)
		b.SetBlock(inside)
	}

	if plan.Strategy == LookupTable {
		b.Lookup(plan.Values, idx)
		if plan.RangeCheck {
			b.SetBlock(outside)
			b.Arm(plan.Default)
		}
		return
	}

	// One block per arm reached through the table, in arm order.
	armBlocks := make(map[int]ir.BlockID)
	var order []int
	for _, arm := range plan.Owners {
		if _, ok := armBlocks[arm]; !ok {
			armBlocks[arm] = -1
			order = append(order, arm)
		}
	}
	slices.Sort(order)
	for _, arm := range order {
		armBlocks[arm] = b.NewBlock("match.arm")
	}
	targets := make([]ir.BlockID, len(plan.Owners))
	for s, arm := range plan.Owners {
		targets[s] = armBlocks[arm]
	}
	b.JumpTable(idx, targets)
	for _, arm := range order {
		b.SetBlock(armBlocks[arm])
		b.Arm(arm)
	}
	if plan.RangeCheck {
		b.SetBlock(outside)
		if blk, ok := armBlocks[plan.Default]; ok {
			b.Jump(blk)
		} else {
			b.Arm(plan.Default)
		}
	}
}

// emitChain tests the arms in source order. The last arm needs no test.
func emitChain(b Builder, d *Desc, x ir.VReg) {
	for i, arm := range d.Arms {
		if i == len(d.Arms)-1 || isCatchAll(arm.Pattern) {
			b.Arm(i)
			return
		}
		body := b.NewBlock("match.arm")
		next := b.NewBlock("match.next")
		testPattern(b, d, arm.Pattern, x, body, next)
		b.SetBlock(body)
		b.Arm(i)
		b.SetBlock(next)
	}
}

// testPattern ends the current block with tests that reach yes when x
// matches p and no otherwise.
func testPattern(b Builder, d *Desc, p ast.Pattern, x ir.VReg, yes, no ir.BlockID) {
	if or, ok := p.(*ast.OrPat); ok {
		for i, alt := range or.Alts {
			if i == len(or.Alts)-1 {
				testPattern(b, d, alt, x, yes, no)
				return
			}
			next := b.NewBlock("match.alt")
			testPattern(b, d, alt, x, yes, next)
			b.SetBlock(next)
		}
		return
	}
	if isCatchAll(p) {
		b.Jump(yes)
		return
	}
	lo, hi, _ := d.valueRange(p)
	if lo == hi {
		b.Test(ir.EQ, x, lo, yes, no)
		return
	}
	dmin, dmax := d.Domain()
	switch {
	case lo <= dmin && hi >= dmax:
		b.Jump(yes)
	case lo <= dmin:
		b.Test(ir.LE, x, hi, yes, no)
	case hi >= dmax:
		b.Test(ir.GE, x, lo, yes, no)
	default:
		upper := b.NewBlock("match.range")
		b.Test(ir.LT, x, lo, no, upper)
		b.SetBlock(upper)
		b.Test(ir.LE, x, hi, yes, no)
	}
}
