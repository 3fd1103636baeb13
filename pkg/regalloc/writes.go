package regalloc

import (
	"github.com/raymyers/ralph816/pkg/ir"
	"github.com/raymyers/ralph816/pkg/target"
)

// LocFunc reports the location of a register.
type LocFunc func(ir.VReg) target.Loc

// Acc returns the registers an accumulator operation of width w destroys
// in mode m. A 16-bit operation in a narrow function switches the
// accumulator to 16 bits, which exposes b.
func Acc(m target.Mode, w target.Width) target.RegMask {
	if m == target.Narrow && w == target.W16 {
		return target.A.Mask() | target.B.Mask()
	}
	return target.A.Mask()
}

// Indexable reports whether loc is memory the index registers can load and
// store directly. Stack slots are reachable only through the accumulator.
func Indexable(loc target.Loc) bool {
	switch loc.Kind {
	case target.LocScratch, target.LocFixed, target.LocVar:
		return true
	}
	return false
}

// IsIndexReg reports whether loc is x or y.
func IsIndexReg(loc target.Loc) bool {
	return loc.IsReg() && loc.Reg.IsIndex()
}

func isReg(loc target.Loc, r target.Reg) bool {
	return loc.IsReg() && loc.Reg == r
}

func regMask(loc target.Loc) target.RegMask {
	if loc.IsReg() {
		return loc.Reg.Mask()
	}
	return 0
}

// absolute reports whether a is a bank-relative address with no base.
func absolute(a ir.Addr) bool {
	return a.Base == 0 && !a.Far
}

// Writes returns the hardware registers the code generated for in
// overwrites, given the current placement of its operands. It includes the
// registers of the values in defines.
//
// Code generation follows exactly these sets, and allocation relies on
// them: a value may stay in a register only if nothing between its
// definition and its last use writes that register.
func Writes(fn *ir.Function, in ir.Instr, loc LocFunc) target.RegMask {
	width := func(v ir.VReg) target.Width { return fn.Info(v).Width }
	acc := func(w target.Width) target.RegMask { return Acc(fn.Mode, w) }

	switch in := in.(type) {
	case ir.Params:
		return 0
	case ir.Const:
		d := loc(in.Dst)
		if d.IsReg() {
			return regMask(d)
		}
		if in.Value == 0 && Indexable(d) {
			return 0
		}
		return acc(width(in.Dst))
	case ir.Move:
		return moveWrites(fn, loc(in.Dst), loc(in.Src), width(in.Dst))
	case ir.Convert:
		// Widening works in 16 bits, narrowing in 8.
		return acc(width(in.Dst)) | regMask(loc(in.Dst))
	case ir.BinOp:
		d := loc(in.Dst)
		if IncrementsInPlace(in, d) {
			return regMask(d)
		}
		return acc(width(in.Dst)) | regMask(d)
	case ir.UnOp:
		return acc(width(in.Dst)) | regMask(loc(in.Dst))
	case ir.SetCond:
		return acc(width(in.L)) | target.A.Mask() | regMask(loc(in.Dst))
	case ir.Load:
		d, w := loc(in.Dst), width(in.Dst)
		switch {
		case absolute(in.Addr) && IsIndexReg(d) && w == target.W16:
			return regMask(d)
		case in.Addr.Base != 0 && !IsIndexReg(loc(in.Addr.Base)):
			return acc(target.W16) | acc(w) | regMask(d)
		}
		return acc(w) | regMask(d)
	case ir.Store:
		if in.Src.IsImm {
			return acc(target.W16)
		}
		s, w := loc(in.Src.Reg), width(in.Src.Reg)
		if in.Addr.Base != 0 {
			if !IsIndexReg(loc(in.Addr.Base)) {
				return acc(target.W16) | acc(w)
			}
			if isReg(s, target.A) {
				return 0
			}
			return acc(w)
		}
		switch {
		case isReg(s, target.A):
			return 0
		case !in.Addr.Far && IsIndexReg(s) && w == target.W16:
			return 0
		}
		return acc(w)
	case ir.LoadTable:
		d, w := loc(in.Dst), width(in.Dst)
		if TableWidth(fn, in.Table) == target.W8 && isReg(loc(in.Index), target.X) {
			return acc(w) | regMask(d)
		}
		return acc(target.W16) | acc(w) | target.X.Mask() | regMask(d)
	case ir.Push:
		if in.Src.IsImm {
			return acc(target.W16)
		}
		s, w := loc(in.Src.Reg), width(in.Src.Reg)
		if isReg(s, target.A) || (IsIndexReg(s) && w == target.W16) {
			return 0
		}
		return acc(w)
	case ir.Call:
		return target.AllRegs &^ in.Preserve
	case ir.Dispatch:
		return target.AllRegs
	}
	return target.AllRegs
}

func moveWrites(fn *ir.Function, d, s target.Loc, w target.Width) target.RegMask {
	switch {
	case d == s:
		return 0
	case isReg(s, target.B):
		return regMask(d)
	case isReg(d, target.B):
		return target.B.Mask()
	case IsIndexReg(s) && IsIndexReg(d):
		return regMask(d)
	case IsIndexReg(d) && w == target.W16 && Indexable(s):
		return regMask(d)
	case IsIndexReg(s) && w == target.W16 && Indexable(d):
		return 0
	case isReg(s, target.A):
		return regMask(d)
	}
	return Acc(fn.Mode, w) | regMask(d)
}

// TermWrites is Writes for block terminators.
func TermWrites(fn *ir.Function, t ir.Terminator, loc LocFunc) target.RegMask {
	switch t := t.(type) {
	case ir.Branch:
		l, w := loc(t.L), fn.Info(t.L).Width
		if isReg(l, target.A) {
			return 0
		}
		if IsIndexReg(l) {
			if t.R.IsImm {
				return 0
			}
			r := loc(t.R.Reg)
			if r.IsReg() || (w == target.W16 && Indexable(r)) {
				return 0
			}
		}
		return Acc(fn.Mode, w)
	case ir.JumpTable:
		return Acc(fn.Mode, target.W16) | target.X.Mask()
	}
	return 0
}

// IncrementsInPlace reports whether in adds one to an index register
// without needing the accumulator.
func IncrementsInPlace(in ir.BinOp, dst target.Loc) bool {
	return in.Op == ir.Add && in.NoWrap && in.R.IsImm && in.R.Imm == 1 &&
		in.Dst == in.L && IsIndexReg(dst)
}

// TableWidth returns the entry width of the named lookup table of fn.
func TableWidth(fn *ir.Function, name string) target.Width {
	for _, t := range fn.Tables {
		if t.Name == name {
			return t.Width
		}
	}
	return target.W16
}
