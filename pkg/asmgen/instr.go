package asmgen

import (
	"fmt"

	"github.com/raymyers/ralph816/pkg/asm"
	"github.com/raymyers/ralph816/pkg/ir"
	"github.com/raymyers/ralph816/pkg/regalloc"
	"github.com/raymyers/ralph816/pkg/target"
)

// translateInstruction translates one block-graph instruction
func (ctx *genContext) translateInstruction(in ir.Instr) error {
	switch in := in.(type) {
	case ir.Params:
	case ir.Const:
		ctx.translateConst(in)
	case ir.Move:
		ctx.translateMove(in.Dst, in.Src)
	case ir.Convert:
		ctx.translateConvert(in)
	case ir.BinOp:
		return ctx.translateBinOp(in)
	case ir.UnOp:
		ctx.translateUnOp(in)
	case ir.SetCond:
		return ctx.translateSetCond(in)
	case ir.Load:
		ctx.translateLoad(in)
	case ir.Store:
		return ctx.translateStore(in)
	case ir.LoadTable:
		ctx.translateLoadTable(in)
	case ir.Push:
		return ctx.translatePush(in)
	case ir.Call:
		ctx.translateCall(in)
	case ir.Dispatch:
		ctx.translateDispatch(in)
	default:
		return fmt.Errorf("unhandled instruction %T", in)
	}
	return nil
}

func (ctx *genContext) translateConst(in ir.Const) {
	d, w := ctx.loc(in.Dst), ctx.width(in.Dst)
	n := in.Value & w.Mask()
	switch {
	case d.IsReg() && d.Reg.IsIndex():
		ctx.emit(asm.Imm(indexOp(d.Reg, ldx), n, 2))
	case d.IsReg() && d.Reg == target.B:
		ctx.emit(asm.I(asm.XBA), asm.Imm(asm.LDA, n, 1), asm.I(asm.XBA))
	case n == 0 && regalloc.Indexable(d):
		ctx.setAcc(w)
		ctx.emit(ctx.mem(asm.STZ, d, 0))
	default:
		ctx.setAcc(w)
		ctx.emit(asm.Imm(asm.LDA, n, int(w)))
		ctx.storeA(in.Dst)
	}
}

// translateMove copies src to dst. The cases mirror the write sets in
// regalloc, which never charge a move through b for the accumulator.
func (ctx *genContext) translateMove(dst, src ir.VReg) {
	d, s, w := ctx.loc(dst), ctx.loc(src), ctx.width(dst)
	isA := func(l target.Loc) bool { return l.IsReg() && l.Reg == target.A }
	isB := func(l target.Loc) bool { return l.IsReg() && l.Reg == target.B }
	tmp := ctx.cfg.OperandTemp()

	switch {
	case d == s:
	case isB(s):
		ctx.setAcc(target.W8)
		switch {
		case isA(d):
			ctx.emit(asm.I(asm.XBA), asm.I(asm.PHA), asm.I(asm.XBA), asm.I(asm.PLA))
		case regalloc.IsIndexReg(d):
			ctx.emit(asm.I(asm.XBA), asm.Dp(asm.STA, tmp), asm.I(asm.XBA),
				asm.Dp(asm.STZ, tmp+1), asm.Dp(indexOp(d.Reg, ldx), tmp))
		default:
			ctx.emit(asm.I(asm.XBA), ctx.mem(asm.STA, d, 0), asm.I(asm.XBA))
		}
	case isB(d):
		ctx.setAcc(target.W8)
		switch {
		case isA(s):
			ctx.emit(asm.I(asm.PHA), asm.I(asm.XBA), asm.I(asm.PLA))
		case regalloc.IsIndexReg(s):
			ctx.emit(asm.I(asm.XBA), asm.I(indexOp(s.Reg, txa)), asm.I(asm.XBA))
		default:
			ctx.emit(asm.I(asm.XBA), ctx.mem(asm.LDA, s, 0), asm.I(asm.XBA))
		}
	case regalloc.IsIndexReg(s) && regalloc.IsIndexReg(d):
		if s.Reg == target.X {
			ctx.emit(asm.I(asm.TXY))
		} else {
			ctx.emit(asm.I(asm.TYX))
		}
	case regalloc.IsIndexReg(d) && w == target.W16 && regalloc.Indexable(s):
		ctx.emit(ctx.mem(indexOp(d.Reg, ldx), s, 0))
	case regalloc.IsIndexReg(s) && w == target.W16 && regalloc.Indexable(d):
		ctx.emit(ctx.mem(indexOp(s.Reg, stx), d, 0))
	default:
		ctx.setAcc(w)
		ctx.loadA(src)
		ctx.storeA(dst)
	}
}

func (ctx *genContext) translateConvert(in ir.Convert) {
	wd, ws := ctx.width(in.Dst), ctx.width(in.Src)
	switch {
	case wd > ws:
		ctx.loadIndex16(in.Src)
		if in.Signed {
			ctx.emit(asm.Imm(asm.EOR, 0x0080, 2), asm.I(asm.SEC), asm.Imm(asm.SBC, 0x0080, 2))
		}
	default:
		// The low byte of the source is the narrowed value.
		ctx.setAcc(wd)
		ctx.loadA(in.Src)
	}
	ctx.storeA(in.Dst)
}

func (ctx *genContext) translateBinOp(in ir.BinOp) error {
	d, w := ctx.loc(in.Dst), ctx.width(in.Dst)
	if regalloc.IncrementsInPlace(in, d) {
		if d.Reg == target.Y {
			ctx.emit(asm.I(asm.INY))
		} else {
			ctx.emit(asm.I(asm.INX))
		}
		return nil
	}

	ctx.setAcc(w)
	switch in.Op {
	case ir.Shl, ir.Shr, ir.Sar:
		if !in.R.IsImm {
			return fmt.Errorf("shift by a variable amount must go through a helper")
		}
		ctx.loadA(in.L)
		n := min(in.R.Imm, 8*int(w))
		for i := 0; i < n; i++ {
			switch in.Op {
			case ir.Shl:
				ctx.emit(asm.I(asm.ASL))
			case ir.Shr:
				ctx.emit(asm.I(asm.LSR))
			case ir.Sar:
				// Copy the sign into carry, then rotate it back in.
				ctx.emit(asm.Imm(asm.CMP, w.SignBit(), int(w)), asm.I(asm.ROR))
			}
		}
	default:
		var op asm.Op
		var pre []asm.Instr
		switch in.Op {
		case ir.Add:
			op, pre = asm.ADC, []asm.Instr{asm.I(asm.CLC)}
		case ir.Sub:
			op, pre = asm.SBC, []asm.Instr{asm.I(asm.SEC)}
		case ir.And:
			op = asm.AND
		case ir.Or:
			op = asm.ORA
		case ir.Xor:
			op = asm.EOR
		default:
			return fmt.Errorf("unhandled operator %s", in.Op)
		}
		r := ctx.operand(op, in.R, w)
		ctx.loadA(in.L)
		ctx.emit(pre...)
		ctx.emit(r)
	}
	ctx.storeA(in.Dst)
	return nil
}

func (ctx *genContext) translateUnOp(in ir.UnOp) {
	w := ctx.width(in.Dst)
	ctx.setAcc(w)
	ctx.loadA(in.Src)
	switch in.Op {
	case ir.Neg:
		ctx.emit(asm.Imm(asm.EOR, w.Mask(), int(w)), asm.I(asm.INC))
	case ir.Cpl:
		ctx.emit(asm.Imm(asm.EOR, w.Mask(), int(w)))
	case ir.Not:
		ctx.emit(asm.Imm(asm.EOR, 1, int(w)))
	}
	ctx.storeA(in.Dst)
}

// translateSetCond materializes a comparison as 0 or 1.
func (ctx *genContext) translateSetCond(in ir.SetCond) error {
	yes, done := ctx.newLabel("t"), ctx.newLabel("d")
	if err := ctx.compareBranch(in.Cond, in.L, in.R, yes); err != nil {
		return err
	}
	w := int(ctx.acc)
	ctx.emit(asm.Imm(asm.LDA, 0, w), asm.Br(asm.BRA, done))
	ctx.emit(asm.Lbl(yes), asm.Imm(asm.LDA, 1, w))
	ctx.emit(asm.Lbl(done))
	ctx.setAcc(ctx.width(in.Dst))
	ctx.storeA(in.Dst)
	return nil
}

func (ctx *genContext) translateLoad(in ir.Load) {
	d, w := ctx.loc(in.Dst), ctx.width(in.Dst)
	a := in.Addr
	switch {
	case a.Base == 0:
		if !a.Far && regalloc.IsIndexReg(d) && w == target.W16 {
			ctx.emit(addr(indexOp(d.Reg, ldx), a))
			return
		}
		ctx.setAcc(w)
		ctx.emit(addr(asm.LDA, a))
	case regalloc.IsIndexReg(ctx.loc(a.Base)):
		ctx.setAcc(w)
		ctx.emit(indexed(asm.LDA, ctx.loc(a.Base).Reg, a.Offset))
	default:
		ctx.pointer(a.Base, a.Offset)
		ctx.setAcc(w)
		ctx.emit(asm.Ind(asm.LDA, ctx.cfg.PointerTemp()))
	}
	ctx.storeA(in.Dst)
}

func indexed(op asm.Op, r target.Reg, off int) asm.Instr {
	mode := asm.AbsoluteX
	if r == target.Y {
		mode = asm.AbsoluteY
	}
	return asm.Instr{Op: op, Mode: mode, Value: off & 0xFFFF}
}

func (ctx *genContext) translateStore(in ir.Store) error {
	if in.Src.IsImm {
		return fmt.Errorf("store of an immediate has no width")
	}
	src := in.Src.Reg
	s, w := ctx.loc(src), ctx.width(src)
	inA := s.IsReg() && s.Reg == target.A
	a := in.Addr

	switch {
	case a.Base == 0:
		if !a.Far && regalloc.IsIndexReg(s) && w == target.W16 {
			ctx.emit(addr(indexOp(s.Reg, stx), a))
			return nil
		}
		ctx.setAcc(w)
		ctx.loadA(src)
		ctx.emit(addr(asm.STA, a))
	case regalloc.IsIndexReg(ctx.loc(a.Base)):
		ctx.setAcc(w)
		ctx.loadA(src)
		ctx.emit(indexed(asm.STA, ctx.loc(a.Base).Reg, a.Offset))
	default:
		tmp := ctx.cfg.OperandTemp()
		if inA {
			ctx.setAcc(w)
			ctx.emit(asm.Dp(asm.STA, tmp))
		}
		ctx.pointer(a.Base, a.Offset)
		ctx.setAcc(w)
		if inA {
			ctx.emit(asm.Dp(asm.LDA, tmp))
		} else {
			ctx.loadA(src)
		}
		ctx.emit(asm.Ind(asm.STA, ctx.cfg.PointerTemp()))
	}
	return nil
}

// translateLoadTable reads a lookup table. Tables live in the function's
// bank and are read with long addressing, whatever the data bank.
func (ctx *genContext) translateLoadTable(in ir.LoadTable) {
	w := ctx.width(in.Dst)
	tw := regalloc.TableWidth(ctx.fn, in.Table)
	idx := ctx.loc(in.Index)
	if tw == target.W8 && idx.IsReg() && idx.Reg == target.X {
		ctx.setAcc(w)
	} else {
		ctx.loadIndex16(in.Index)
		if tw == target.W16 {
			ctx.emit(asm.I(asm.ASL))
		}
		ctx.emit(asm.I(asm.TAX))
		ctx.setAcc(w)
	}
	ctx.emit(asm.Instr{Op: asm.LDA, Mode: asm.LongX, Sym: in.Table})
	ctx.storeA(in.Dst)
}
