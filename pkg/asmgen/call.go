package asmgen

import (
	"fmt"

	"github.com/raymyers/ralph816/pkg/asm"
	"github.com/raymyers/ralph816/pkg/ir"
	"github.com/raymyers/ralph816/pkg/regalloc"
	"github.com/raymyers/ralph816/pkg/target"
)

// translatePush pushes a stack argument. Later stack-relative operands
// account for the pushed bytes until the call releases them.
func (ctx *genContext) translatePush(in ir.Push) error {
	if in.Src.IsImm {
		return fmt.Errorf("push of an immediate has no width")
	}
	s, w := ctx.loc(in.Src.Reg), ctx.width(in.Src.Reg)
	if regalloc.IsIndexReg(s) && w == target.W16 {
		ctx.emit(asm.I(indexOp(s.Reg, phx)))
	} else {
		ctx.setAcc(w)
		ctx.loadA(in.Src.Reg)
		ctx.emit(asm.I(asm.PHA))
	}
	ctx.depth += int(w)
	return nil
}

func (ctx *genContext) translateCall(in ir.Call) {
	if in.Far {
		ctx.emit(asm.Lng(asm.JSL, in.Func))
	} else {
		ctx.emit(asm.Abs(asm.JSR, in.Func))
	}
	ctx.releaseArgs(in.StackBytes)
}

// releaseArgs drops the stack arguments of a completed call.
func (ctx *genContext) releaseArgs(n int) {
	if n == 0 {
		return
	}
	ctx.adjustStack(n)
	ctx.depth -= n
}

// translateDispatch calls through the dispatch table of a trait method.
// The receiver is in y; its first byte is the type tag, which indexes the
// table. x carries the scaled tag, so no argument may live there.
func (ctx *genContext) translateDispatch(in ir.Dispatch) {
	save := ctx.cfg.SaveTemp()
	narrow := ctx.fn.Mode == target.Narrow
	if narrow {
		ctx.emit(asm.Rep())
	}
	ctx.emit(
		asm.Dp(asm.STA, save),
		asm.Instr{Op: asm.LDA, Mode: asm.AbsoluteY, Value: 0},
		asm.Imm(asm.AND, 0x00FF, 2),
		asm.I(asm.ASL),
	)

	if !in.Far {
		ctx.emit(asm.I(asm.TAX), asm.Dp(asm.LDA, save))
		if narrow {
			ctx.emit(asm.Sep())
		}
		ctx.emit(asm.Instr{Op: asm.JSR, Mode: asm.AbsXInd, Sym: in.Table})
		ctx.releaseArgs(in.StackBytes)
		return
	}

	// Far entries are JML trampolines: jump to table+4*tag with a long
	// return address pushed by hand.
	ptr := ctx.cfg.PointerTemp()
	ret := ctx.newLabel("r")
	ctx.emit(
		asm.I(asm.ASL),
		asm.I(asm.CLC),
		asm.Instr{Op: asm.ADC, Mode: asm.Immediate, Sym: in.Table, Width: 2},
		asm.Dp(asm.STA, ptr),
		asm.Sep(),
		asm.Instr{Op: asm.LDA, Mode: asm.Immediate, Sym: "^" + in.Table, Width: 1},
		asm.Dp(asm.STA, ptr+2),
		asm.Rep(),
		asm.Dp(asm.LDA, save),
	)
	if narrow {
		ctx.emit(asm.Sep())
	}
	ctx.emit(
		asm.I(asm.PHK),
		asm.Instr{Op: asm.PER, Mode: asm.RelLong, Sym: ret + "-1"},
		asm.Instr{Op: asm.JML, Mode: asm.IndLong, Value: ptr},
		asm.Lbl(ret),
	)
	ctx.releaseArgs(in.StackBytes)
}
