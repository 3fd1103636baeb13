// Package regalloc places every virtual register of a function in a
// hardware register, a scratch-pool slot or a stack-frame slot.
//
// The machine has three general registers and almost no orthogonality, so
// instead of graph colouring the allocator asks a direct question for each
// value: does anything between its definition and its last use overwrite
// the register it wants? The answer comes from Writes, the same table code
// generation follows. Values that fail in both register passes go to the
// scratch pool when they are not live across a call that may reuse it, and
// to the stack frame otherwise.
package regalloc

import (
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/raymyers/ralph816/pkg/abi"
	"github.com/raymyers/ralph816/pkg/config"
	"github.com/raymyers/ralph816/pkg/ir"
	"github.com/raymyers/ralph816/pkg/target"
)

// Options controls the memory placement of values left without a register.
type Options struct {
	// ScratchSize is the size of the scratch pool in bytes.
	ScratchSize int
	// UseScratch is false for functions that must leave the pool intact.
	UseScratch bool
}

// OptionsFor derives the options for a function with signature sig.
// Interrupt handlers and functions that promise to preserve the pool never
// place values in it.
func OptionsFor(cfg *config.Config, sig *abi.Signature) Options {
	return Options{
		ScratchSize: cfg.ScratchSize,
		UseScratch:  !sig.PreserveScratch && sig.Interrupt == "",
	}
}

// InstrRef names an instruction by block and index.
type InstrRef struct {
	Block ir.BlockID
	Index int
}

// Allocation is the result of register allocation for one function.
type Allocation struct {
	// Locs maps each virtual register to its location. Registers that
	// never appear in the code have LocNone.
	Locs []target.Loc
	// NoOps holds the moves whose source and destination share a location.
	NoOps map[InstrRef]bool
	// FrameSize is the number of stack bytes the function reserves.
	FrameSize int
	// ScratchUsed is the number of pool bytes the function touches.
	ScratchUsed int
	// Coalesced counts the moves that became no-ops in each register pass.
	Coalesced [2]int
}

// Loc returns the location of v.
func (a *Allocation) Loc(v ir.VReg) target.Loc {
	return a.Locs[v]
}

type allocator struct {
	fn    *ir.Function
	opts  Options
	lay   *Layout
	locs  []target.Loc
	done  []bool
	byReg map[target.Reg][]ir.VReg
	moves map[ir.VReg][]ir.VReg
}

// AllocateFunction allocates locations for every register of fn. Blocks
// must already be in their final layout order.
func AllocateFunction(fn *ir.Function, opts Options) *Allocation {
	a := &allocator{
		fn:    fn,
		opts:  opts,
		lay:   BuildLayout(fn, AnalyzeLiveness(fn)),
		locs:  make([]target.Loc, fn.NumVRegs()),
		done:  make([]bool, fn.NumVRegs()),
		byReg: make(map[target.Reg][]ir.VReg),
		moves: make(map[ir.VReg][]ir.VReg),
	}
	for _, s := range a.lay.Slots {
		if mv, ok := s.Instr.(ir.Move); ok {
			a.moves[mv.Dst] = append(a.moves[mv.Dst], mv.Src)
			a.moves[mv.Src] = append(a.moves[mv.Src], mv.Dst)
		}
	}

	a.precolor()
	res := &Allocation{}
	pending := a.order()
	for pass := 0; pass < 2; pass++ {
		var rest []ir.VReg
		for _, v := range pending {
			if !a.assign(v) {
				rest = append(rest, v)
			}
		}
		pending = rest
		res.Coalesced[pass] = len(a.noOps())
	}
	if res.Coalesced[1] >= res.Coalesced[0] {
		res.Coalesced[1] -= res.Coalesced[0]
	}
	res.FrameSize, res.ScratchUsed = a.spill(pending)
	res.Locs = a.locs
	res.NoOps = a.noOps()
	return res
}

// loc is the location allocation decisions are made against. Registers not
// yet placed count as stack slots, the placement that needs the most
// registers to reach.
func (a *allocator) loc(v ir.VReg) target.Loc {
	if a.done[v] {
		return a.locs[v]
	}
	return target.Loc{Kind: target.LocStack}
}

func (a *allocator) precolor() {
	for v := 1; v < a.fn.NumVRegs(); v++ {
		info := a.fn.Info(ir.VReg(v))
		if info.Fixed == nil {
			continue
		}
		a.locs[v] = *info.Fixed
		a.done[v] = true
		if _, live := a.lay.Intervals[ir.VReg(v)]; live && info.Fixed.IsReg() {
			a.byReg[info.Fixed.Reg] = append(a.byReg[info.Fixed.Reg], ir.VReg(v))
		}
	}
}

// order lists the registers to place: hinted values first, then by the
// start of their interval.
func (a *allocator) order() []ir.VReg {
	var out []ir.VReg
	for v := range a.lay.Intervals {
		if !a.done[v] {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		hi, hj := a.fn.Info(out[i]).Hint != target.NoReg, a.fn.Info(out[j]).Hint != target.NoReg
		if hi != hj {
			return hi
		}
		si, sj := a.lay.Intervals[out[i]].Start, a.lay.Intervals[out[j]].Start
		if si != sj {
			return si < sj
		}
		return out[i] < out[j]
	})
	return out
}

// candidates lists the registers v may try, most preferred first: its
// hint, the registers of values it is moved to or from, then a, x and y.
func (a *allocator) candidates(v ir.VReg) []target.Reg {
	var regs []target.Reg
	seen := make(map[target.Reg]bool)
	add := func(r target.Reg) {
		if r != target.NoReg && r != target.B && !seen[r] {
			seen[r] = true
			regs = append(regs, r)
		}
	}
	add(a.fn.Info(v).Hint)
	for _, p := range a.moves[v] {
		if a.done[p] && a.locs[p].IsReg() {
			add(a.locs[p].Reg)
		}
	}
	add(target.A)
	add(target.X)
	add(target.Y)
	return regs
}

func (a *allocator) assign(v ir.VReg) bool {
	for _, r := range a.candidates(v) {
		if a.fits(v, r) {
			a.locs[v] = target.RegLoc(r)
			a.done[v] = true
			a.byReg[r] = append(a.byReg[r], v)
			return true
		}
	}
	return false
}

// fits reports whether v can live in r from its definition to its last
// use.
func (a *allocator) fits(v ir.VReg, r target.Reg) bool {
	if !target.CanHold(r, a.fn.Info(v).Width, a.fn.Mode) {
		return false
	}
	iv := a.lay.Intervals[v]
	for _, u := range a.byReg[r] {
		if a.lay.Intervals[u].Overlaps(iv) {
			return false
		}
	}

	a.locs[v], a.done[v] = target.RegLoc(r), true
	defer func() { a.locs[v], a.done[v] = target.Loc{}, false }()
	for k := (iv.Start + 2) / 2; k < len(a.lay.Slots) && Pos(k) < iv.End; k++ {
		s := a.lay.Slots[k]
		if defines(s, v) {
			continue
		}
		if a.writes(s).Has(r) {
			return false
		}
	}
	return true
}

func defines(s Slot, v ir.VReg) bool {
	for _, d := range s.Defs() {
		if d == v {
			return true
		}
	}
	return false
}

func (a *allocator) writes(s Slot) target.RegMask {
	if s.Instr != nil {
		return Writes(a.fn, s.Instr, a.loc)
	}
	if s.Term == nil {
		return 0
	}
	return TermWrites(a.fn, s.Term, a.loc)
}

// crossesCall reports whether a call that may use the scratch pool lies
// inside iv.
func (a *allocator) crossesCall(iv Interval) bool {
	for k, s := range a.lay.Slots {
		if !iv.Contains(Pos(k)) {
			continue
		}
		switch in := s.Instr.(type) {
		case ir.Call:
			if !in.PreservesScratch {
				return true
			}
		case ir.Dispatch:
			return true
		}
	}
	return false
}

// spill places the remaining registers in memory. The scratch pool is
// shared between values whose intervals do not overlap; the stack frame
// grows one slot per value.
func (a *allocator) spill(pending []ir.VReg) (frame, scratch int) {
	sort.Slice(pending, func(i, j int) bool {
		si, sj := a.lay.Intervals[pending[i]].Start, a.lay.Intervals[pending[j]].Start
		if si != sj {
			return si < sj
		}
		return pending[i] < pending[j]
	})
	busy := make([]int, a.opts.ScratchSize)
	for i := range busy {
		busy[i] = math.MinInt
	}
	free := func(off int, w target.Width, iv Interval) bool {
		for i := off; i < off+int(w); i++ {
			if busy[i] > iv.Start {
				return false
			}
		}
		return true
	}

	for _, v := range pending {
		iv := a.lay.Intervals[v]
		w := a.fn.Info(v).Width
		placed := false
		if a.opts.UseScratch && !a.crossesCall(iv) {
			for off := 0; off+int(w) <= len(busy); off++ {
				if free(off, w, iv) {
					for i := off; i < off+int(w); i++ {
						busy[i] = iv.End
					}
					a.locs[v] = target.Loc{Kind: target.LocScratch, Offset: off}
					scratch = max(scratch, off+int(w))
					placed = true
					break
				}
			}
		}
		if !placed {
			a.locs[v] = target.Loc{Kind: target.LocStack, Offset: frame}
			frame += int(w)
		}
		a.done[v] = true
	}
	return frame, scratch
}

func (a *allocator) noOps() map[InstrRef]bool {
	out := make(map[InstrRef]bool)
	for _, s := range a.lay.Slots {
		mv, ok := s.Instr.(ir.Move)
		if ok && a.done[mv.Dst] && a.done[mv.Src] && a.locs[mv.Dst] == a.locs[mv.Src] {
			out[InstrRef{Block: s.Block, Index: s.Index}] = true
		}
	}
	return out
}

// Print writes the placement of every register of fn.
func (a *Allocation) Print(w io.Writer, fn *ir.Function) {
	fmt.Fprintf(w, "%s: frame %d, scratch %d, no-op moves %d+%d\n",
		fn.Name, a.FrameSize, a.ScratchUsed, a.Coalesced[0], a.Coalesced[1])
	for v := 1; v < len(a.Locs); v++ {
		if a.Locs[v].Kind == target.LocNone {
			continue
		}
		info := fn.Info(ir.VReg(v))
		name := ""
		if info.Name != "" {
			name = " (" + info.Name + ")"
		}
		fmt.Fprintf(w, "    v%d%s %s -> %s\n", v, name, info.Width, a.Locs[v])
	}
}
