// Package linearize fixes the final layout of a block graph before
// register allocation: jumps through empty blocks are tunnelled,
// unreachable blocks dropped, and the survivors renumbered in layout order
// so that a block falls through to the next one by position.
package linearize

import "github.com/raymyers/ralph816/pkg/ir"

// Linearize returns fn in its final layout. The entry block comes first,
// then the remaining reachable blocks in creation order. fn is not
// modified.
func Linearize(fn *ir.Function) *ir.Function {
	work := clone(fn)
	Tunnel(work)
	simplify(work)

	reach := work.Reachable()
	order := []ir.BlockID{work.Entry}
	for _, b := range work.Blocks {
		if b.ID != work.Entry && reach[b.ID] {
			order = append(order, b.ID)
		}
	}
	renum := make(map[ir.BlockID]ir.BlockID, len(order))
	for i, id := range order {
		renum[id] = ir.BlockID(i)
	}

	out := &ir.Function{
		Name:   fn.Name,
		Mode:   fn.Mode,
		VRegs:  fn.VRegs,
		Tables: fn.Tables,
	}
	for i, id := range order {
		old := work.Block(id)
		out.Blocks = append(out.Blocks, &ir.Block{
			ID:     ir.BlockID(i),
			Name:   old.Name,
			Instrs: old.Instrs,
			Term:   retarget(old.Term, func(b ir.BlockID) ir.BlockID { return renum[b] }),
		})
	}
	return out
}

// Next returns the block laid out after b, or -1 for the last block.
func Next(fn *ir.Function, b ir.BlockID) ir.BlockID {
	if int(b)+1 < len(fn.Blocks) {
		return b + 1
	}
	return -1
}

func clone(fn *ir.Function) *ir.Function {
	c := *fn
	c.Blocks = make([]*ir.Block, len(fn.Blocks))
	for i, b := range fn.Blocks {
		nb := *b
		c.Blocks[i] = &nb
	}
	return &c
}

// simplify turns branches whose arms agree into jumps.
func simplify(fn *ir.Function) {
	for _, b := range fn.Blocks {
		if br, ok := b.Term.(ir.Branch); ok && br.Then == br.Else {
			b.Term = ir.Jump{Target: br.Then}
		}
	}
}

// retarget rewrites the successors of t through f.
func retarget(t ir.Terminator, f func(ir.BlockID) ir.BlockID) ir.Terminator {
	switch t := t.(type) {
	case ir.Jump:
		return ir.Jump{Target: f(t.Target)}
	case ir.Branch:
		t.Then, t.Else = f(t.Then), f(t.Else)
		return t
	case ir.JumpTable:
		targets := make([]ir.BlockID, len(t.Targets))
		for i, target := range t.Targets {
			targets[i] = f(target)
		}
		return ir.JumpTable{Index: t.Index, Targets: targets}
	}
	return t
}
