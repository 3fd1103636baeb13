package asmgen

import (
	"github.com/raymyers/ralph816/pkg/asm"
	"github.com/raymyers/ralph816/pkg/ir"
	"github.com/raymyers/ralph816/pkg/regalloc"
	"github.com/raymyers/ralph816/pkg/target"
)

// outcome is a comparison decided without running it.
type outcome int

const (
	undecided outcome = iota
	always
	never
)

// normalize rewrites comparisons against an immediate into the forms the
// carry flag answers directly: x <= k becomes x < k+1 and x > k becomes
// x >= k+1.
func normalize(c ir.Cond, r ir.Value, w target.Width) (ir.Cond, ir.Value, outcome) {
	if !r.IsImm {
		return c, r, undecided
	}
	k := r.Imm & w.Mask()
	switch c {
	case ir.LE:
		if k == w.Mask() {
			return c, r, always
		}
		return ir.LT, ir.Imm(k + 1), undecided
	case ir.GT:
		if k == w.Mask() {
			return c, r, never
		}
		return ir.GE, ir.Imm(k + 1), undecided
	case ir.LT:
		if k == 0 {
			return c, r, never
		}
	case ir.GE:
		if k == 0 {
			return c, r, always
		}
	}
	return c, ir.Imm(k), undecided
}

// compareBranch compares l with r and branches to label when c holds,
// falling through otherwise. The accumulator is back at the mode width
// when the branches run; REP and SEP leave the flags alone.
func (ctx *genContext) compareBranch(c ir.Cond, l ir.VReg, r ir.Value, label string) error {
	w := ctx.width(l)
	c, r, out := normalize(c, r, w)
	switch out {
	case always:
		ctx.emit(asm.Br(asm.BRA, label))
		return nil
	case never:
		return nil
	}

	ctx.compare(l, r, w)
	ctx.setAcc(ctx.fn.Mode.Width())

	switch c {
	case ir.EQ:
		ctx.emit(asm.Br(asm.BEQ, label))
	case ir.NE:
		ctx.emit(asm.Br(asm.BNE, label))
	case ir.LT:
		ctx.emit(asm.Br(asm.BCC, label))
	case ir.GE:
		ctx.emit(asm.Br(asm.BCS, label))
	case ir.LE:
		ctx.emit(asm.Br(asm.BCC, label), asm.Br(asm.BEQ, label))
	case ir.GT:
		skip := ctx.newLabel("s")
		ctx.emit(asm.Br(asm.BEQ, skip), asm.Br(asm.BCS, label), asm.Lbl(skip))
	}
	return nil
}

// compare sets the flags for the unsigned comparison of l with r.
func (ctx *genContext) compare(l ir.VReg, r ir.Value, w target.Width) {
	ll := ctx.loc(l)
	tmp := ctx.cfg.OperandTemp()

	if regalloc.IsIndexReg(ll) {
		op := indexOp(ll.Reg, cpx)
		if r.IsImm {
			ctx.emit(asm.Imm(op, r.Imm, 2))
			return
		}
		rl := ctx.loc(r.Reg)
		switch {
		case regalloc.IsIndexReg(rl):
			ctx.emit(asm.Dp(indexOp(rl.Reg, stx), tmp), asm.Dp(op, tmp))
		case rl.IsReg() && rl.Reg == target.A:
			ctx.setAcc(w)
			ctx.emit(asm.Dp(asm.STA, tmp))
			if w == target.W8 {
				ctx.emit(asm.Dp(asm.STZ, tmp+1))
			}
			ctx.emit(asm.Dp(op, tmp))
		case w == target.W16 && regalloc.Indexable(rl):
			ctx.emit(ctx.mem(op, rl, 0))
		default:
			ctx.setAcc(w)
			ctx.loadA(r.Reg)
			ctx.emit(asm.Dp(asm.STA, tmp))
			if w == target.W8 {
				ctx.emit(asm.Dp(asm.STZ, tmp+1))
			}
			ctx.emit(asm.Dp(op, tmp))
		}
		return
	}

	ctx.setAcc(w)
	rop := ctx.operand(asm.CMP, r, w)
	ctx.loadA(l)
	ctx.emit(rop)
}
