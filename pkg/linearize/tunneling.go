package linearize

import "github.com/raymyers/ralph816/pkg/ir"

// Tunnel shortcuts jumps to blocks that do nothing but jump again:
// a branch to B where B is "jump C" becomes a branch to C.
func Tunnel(fn *ir.Function) {
	if len(fn.Blocks) == 0 {
		return
	}

	forward := buildJumpTargetMap(fn)
	resolved := make(map[ir.BlockID]ir.BlockID, len(forward))
	for b := range forward {
		resolved[b] = resolveBlock(b, forward)
	}
	through := func(b ir.BlockID) ir.BlockID {
		if t, ok := resolved[b]; ok {
			return t
		}
		return b
	}

	for _, b := range fn.Blocks {
		if b.Term != nil {
			b.Term = retarget(b.Term, through)
		}
	}
	fn.Entry = through(fn.Entry)
}

// buildJumpTargetMap finds the empty blocks that end in a jump.
func buildJumpTargetMap(fn *ir.Function) map[ir.BlockID]ir.BlockID {
	out := make(map[ir.BlockID]ir.BlockID)
	for _, b := range fn.Blocks {
		if len(b.Instrs) != 0 {
			continue
		}
		if j, ok := b.Term.(ir.Jump); ok && j.Target != b.ID {
			out[b.ID] = j.Target
		}
	}
	return out
}

// resolveBlock follows a jump chain to its final target. A chain that
// loops back on itself stops at the block where the cycle closes.
func resolveBlock(b ir.BlockID, forward map[ir.BlockID]ir.BlockID) ir.BlockID {
	visited := make(map[ir.BlockID]bool)
	current := b
	for {
		if visited[current] {
			return current
		}
		visited[current] = true
		next, ok := forward[current]
		if !ok {
			return current
		}
		current = next
	}
}
