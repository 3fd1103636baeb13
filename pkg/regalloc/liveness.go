package regalloc

import (
	"sort"

	"github.com/raymyers/ralph816/pkg/ir"
)

// RegSet is a set of virtual registers.
type RegSet map[ir.VReg]struct{}

// NewRegSet creates a set holding regs.
func NewRegSet(regs ...ir.VReg) RegSet {
	s := make(RegSet, len(regs))
	for _, r := range regs {
		s.Add(r)
	}
	return s
}

// Add adds r to the set
func (s RegSet) Add(r ir.VReg) { s[r] = struct{}{} }

// Contains reports whether r is in the set
func (s RegSet) Contains(r ir.VReg) bool {
	_, ok := s[r]
	return ok
}

// Copy returns an independent copy of the set.
func (s RegSet) Copy() RegSet {
	c := make(RegSet, len(s))
	for r := range s {
		c[r] = struct{}{}
	}
	return c
}

// Union returns s ∪ other.
func (s RegSet) Union(other RegSet) RegSet {
	u := s.Copy()
	for r := range other {
		u[r] = struct{}{}
	}
	return u
}

// Minus returns s \ other.
func (s RegSet) Minus(other RegSet) RegSet {
	d := make(RegSet, len(s))
	for r := range s {
		if !other.Contains(r) {
			d[r] = struct{}{}
		}
	}
	return d
}

// Equal reports whether both sets hold the same registers.
func (s RegSet) Equal(other RegSet) bool {
	if len(s) != len(other) {
		return false
	}
	for r := range s {
		if !other.Contains(r) {
			return false
		}
	}
	return true
}

// Slice returns the registers in ascending order.
func (s RegSet) Slice() []ir.VReg {
	out := make([]ir.VReg, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ComputeDefUse returns, per block, the registers defined in the block and
// the registers read before any definition in it.
func ComputeDefUse(fn *ir.Function) (def, use map[ir.BlockID]RegSet) {
	def = make(map[ir.BlockID]RegSet, len(fn.Blocks))
	use = make(map[ir.BlockID]RegSet, len(fn.Blocks))
	for _, b := range fn.Blocks {
		d, u := NewRegSet(), NewRegSet()
		read := func(regs []ir.VReg) {
			for _, r := range regs {
				if !d.Contains(r) {
					u.Add(r)
				}
			}
		}
		for _, in := range b.Instrs {
			read(in.Uses())
			for _, r := range in.Defs() {
				d.Add(r)
			}
		}
		if b.Term != nil {
			read(b.Term.Uses())
		}
		def[b.ID], use[b.ID] = d, u
	}
	return def, use
}

// LivenessInfo holds the registers live at the boundaries of each block.
type LivenessInfo struct {
	LiveIn  map[ir.BlockID]RegSet
	LiveOut map[ir.BlockID]RegSet
}

// AnalyzeLiveness solves the backward liveness equations
//
//	out[b] = ∪ in[s] for s in succ(b)
//	in[b]  = use[b] ∪ (out[b] \ def[b])
//
// by iterating to a fixed point.
func AnalyzeLiveness(fn *ir.Function) *LivenessInfo {
	def, use := ComputeDefUse(fn)
	info := &LivenessInfo{
		LiveIn:  make(map[ir.BlockID]RegSet, len(fn.Blocks)),
		LiveOut: make(map[ir.BlockID]RegSet, len(fn.Blocks)),
	}
	for _, b := range fn.Blocks {
		info.LiveIn[b.ID] = NewRegSet()
		info.LiveOut[b.ID] = NewRegSet()
	}
	for changed := true; changed; {
		changed = false
		for i := len(fn.Blocks) - 1; i >= 0; i-- {
			b := fn.Blocks[i]
			out := NewRegSet()
			if b.Term != nil {
				for _, s := range b.Term.Successors() {
					out = out.Union(info.LiveIn[s])
				}
			}
			in := use[b.ID].Union(out.Minus(def[b.ID]))
			if !in.Equal(info.LiveIn[b.ID]) || !out.Equal(info.LiveOut[b.ID]) {
				info.LiveIn[b.ID], info.LiveOut[b.ID] = in, out
				changed = true
			}
		}
	}
	return info
}
