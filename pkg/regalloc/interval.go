package regalloc

import "github.com/raymyers/ralph816/pkg/ir"

// Slot is one numbered program point: an instruction, or the terminator of
// its block when Index is -1.
type Slot struct {
	Block ir.BlockID
	Index int
	Instr ir.Instr
	Term  ir.Terminator
}

// Uses returns the registers the slot reads.
func (s Slot) Uses() []ir.VReg {
	if s.Instr != nil {
		return s.Instr.Uses()
	}
	if s.Term == nil {
		return nil
	}
	return s.Term.Uses()
}

// Defs returns the registers the slot writes.
func (s Slot) Defs() []ir.VReg {
	if s.Instr != nil {
		return s.Instr.Defs()
	}
	return nil
}

// Pos returns the program position of slot k. Positions are even so that
// block boundaries have an odd position of their own.
func Pos(k int) int { return 2 * k }

// Interval is the closed range of positions a register is live over, from
// its first definition to its last use in layout order.
type Interval struct {
	Start, End int
}

// Overlaps reports whether two intervals conflict. Intervals that only
// touch, where one ends at the position the other starts, do not: an
// instruction reads its operands before it writes its results.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && o.Start < i.End
}

// Contains reports whether position p lies strictly inside the interval.
func (i Interval) Contains(p int) bool {
	return i.Start < p && p < i.End
}

// Layout numbers the program points of a function in block order and
// computes the live interval of every register that appears in it.
type Layout struct {
	Slots     []Slot
	Intervals map[ir.VReg]Interval
}

// BuildLayout numbers fn's instructions and terminators and derives live
// intervals from liveness.
func BuildLayout(fn *ir.Function, live *LivenessInfo) *Layout {
	lay := &Layout{Intervals: make(map[ir.VReg]Interval)}
	extend := func(v ir.VReg, p int) {
		iv, ok := lay.Intervals[v]
		switch {
		case !ok:
			iv = Interval{Start: p, End: p}
		case p < iv.Start:
			iv.Start = p
		case p > iv.End:
			iv.End = p
		}
		lay.Intervals[v] = iv
	}
	for _, b := range fn.Blocks {
		first := Pos(len(lay.Slots))
		for i, in := range b.Instrs {
			p := Pos(len(lay.Slots))
			lay.Slots = append(lay.Slots, Slot{Block: b.ID, Index: i, Instr: in})
			for _, v := range in.Uses() {
				extend(v, p)
			}
			for _, v := range in.Defs() {
				extend(v, p)
			}
		}
		last := Pos(len(lay.Slots))
		lay.Slots = append(lay.Slots, Slot{Block: b.ID, Index: -1, Term: b.Term})
		if b.Term != nil {
			for _, v := range b.Term.Uses() {
				extend(v, last)
			}
		}
		for _, v := range live.LiveIn[b.ID].Slice() {
			extend(v, first-1)
		}
		for _, v := range live.LiveOut[b.ID].Slice() {
			extend(v, last+1)
		}
	}
	return lay
}
