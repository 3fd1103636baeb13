package asmgen

import (
	"fmt"

	"github.com/raymyers/ralph816/pkg/asm"
	"github.com/raymyers/ralph816/pkg/ir"
	"github.com/raymyers/ralph816/pkg/target"
)

// setAcc switches the accumulator to width w.
func (ctx *genContext) setAcc(w target.Width) {
	if ctx.acc == w {
		return
	}
	if w == target.W16 {
		ctx.emit(asm.Rep())
	} else {
		ctx.emit(asm.Sep())
	}
	ctx.acc = w
}

// mem addresses byte off of the memory location loc.
func (ctx *genContext) mem(op asm.Op, loc target.Loc, off int) asm.Instr {
	switch loc.Kind {
	case target.LocScratch:
		return asm.Dp(op, ctx.cfg.ScratchBase+loc.Offset+off)
	case target.LocStack:
		return asm.Sr(op, 1+loc.Offset+off+ctx.depth)
	case target.LocArg:
		return asm.Sr(op, ctx.sig.ParamBase()+ctx.alloc.FrameSize+loc.Offset+off+ctx.depth)
	case target.LocFixed:
		return asm.AbsAt(op, (loc.Offset+off)&0xFFFF)
	case target.LocVar:
		return asm.Abs(op, symOffset(loc.Symbol, off))
	}
	panic(fmt.Sprintf("asmgen: %s is not memory", loc))
}

func symOffset(sym string, off int) string {
	if off == 0 {
		return sym
	}
	return fmt.Sprintf("%s+%d", sym, off)
}

// addr addresses a base-less memory operand.
func addr(op asm.Op, a ir.Addr) asm.Instr {
	switch {
	case a.Fixed != nil:
		return asm.AbsAt(op, (*a.Fixed+a.Offset)&0xFFFF)
	case a.Far:
		return asm.Lng(op, symOffset(a.Symbol, a.Offset))
	}
	return asm.Abs(op, symOffset(a.Symbol, a.Offset))
}

func indexOp(r target.Reg, ops [2]asm.Op) asm.Op {
	if r == target.Y {
		return ops[1]
	}
	return ops[0]
}

var (
	ldx = [2]asm.Op{asm.LDX, asm.LDY}
	stx = [2]asm.Op{asm.STX, asm.STY}
	cpx = [2]asm.Op{asm.CPX, asm.CPY}
	phx = [2]asm.Op{asm.PHX, asm.PHY}
	txa = [2]asm.Op{asm.TXA, asm.TYA}
	tax = [2]asm.Op{asm.TAX, asm.TAY}
)

// loadA loads v into the accumulator, which is already at v's width.
func (ctx *genContext) loadA(v ir.VReg) {
	l := ctx.loc(v)
	switch {
	case l.IsReg() && l.Reg == target.A:
	case l.IsReg() && l.Reg.IsIndex():
		ctx.emit(asm.I(indexOp(l.Reg, txa)))
	case l.IsMem():
		ctx.emit(ctx.mem(asm.LDA, l, 0))
	default:
		panic(fmt.Sprintf("asmgen: cannot load v%d from %s", v, l))
	}
}

// storeA stores the accumulator, at v's width, into v. A narrow value is
// zero-extended on its way into an index register.
func (ctx *genContext) storeA(v ir.VReg) {
	l := ctx.loc(v)
	switch {
	case l.IsReg() && l.Reg == target.A:
	case l.IsReg() && l.Reg.IsIndex():
		if ctx.width(v) == target.W16 {
			ctx.emit(asm.I(indexOp(l.Reg, tax)))
			return
		}
		tmp := ctx.cfg.OperandTemp()
		ctx.emit(asm.Dp(asm.STA, tmp), asm.Dp(asm.STZ, tmp+1), asm.Dp(indexOp(l.Reg, ldx), tmp))
	case l.IsMem():
		ctx.emit(ctx.mem(asm.STA, l, 0))
	default:
		panic(fmt.Sprintf("asmgen: cannot store v%d to %s", v, l))
	}
}

// operand returns the second operand of an accumulator instruction. A
// register operand is spilled to the operand temporary first; a value in
// the accumulator itself is spilled too, since loading the first operand
// will replace it.
func (ctx *genContext) operand(op asm.Op, r ir.Value, w target.Width) asm.Instr {
	if r.IsImm {
		return asm.Imm(op, r.Imm&w.Mask(), int(w))
	}
	l := ctx.loc(r.Reg)
	tmp := ctx.cfg.OperandTemp()
	switch {
	case l.IsReg() && l.Reg == target.A:
		ctx.emit(asm.Dp(asm.STA, tmp))
		return asm.Dp(op, tmp)
	case l.IsReg() && l.Reg.IsIndex():
		ctx.emit(asm.Dp(indexOp(l.Reg, stx), tmp))
		return asm.Dp(op, tmp)
	}
	return ctx.mem(op, l, 0)
}

// loadIndex16 leaves the zero-extended value of v in the 16-bit
// accumulator.
func (ctx *genContext) loadIndex16(v ir.VReg) {
	if ctx.width(v) == target.W16 {
		ctx.setAcc(target.W16)
		ctx.loadA(v)
		return
	}
	l := ctx.loc(v)
	if l.IsReg() && l.Reg.IsIndex() {
		ctx.setAcc(target.W16)
		ctx.loadA(v)
		return
	}
	ctx.setAcc(target.W8)
	ctx.loadA(v)
	ctx.setAcc(target.W16)
	ctx.emit(asm.Imm(asm.AND, 0x00FF, 2))
}

// pointer computes base+off into the pointer temporary for an indirect
// access. It needs the 16-bit accumulator.
func (ctx *genContext) pointer(base ir.VReg, off int) {
	ctx.setAcc(target.W16)
	ctx.loadA(base)
	if off != 0 {
		ctx.emit(asm.I(asm.CLC), asm.Imm(asm.ADC, off&0xFFFF, 2))
	}
	ctx.emit(asm.Dp(asm.STA, ctx.cfg.PointerTemp()))
}
