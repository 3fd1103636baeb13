// Package asmgen selects 65816 instructions for an allocated block graph.
//
// Every instruction is expanded so that it overwrites no hardware register
// outside regalloc.Writes for the same placement; the allocator's decisions
// rest on that. Values that must pass through memory use the reserved
// direct-page temporaries. The accumulator runs at the function's mode
// width between instructions and at every label; an instruction of the
// other width switches it with REP/SEP and switches back before it ends.
package asmgen

import (
	"fmt"

	"github.com/raymyers/ralph816/pkg/abi"
	"github.com/raymyers/ralph816/pkg/asm"
	"github.com/raymyers/ralph816/pkg/config"
	"github.com/raymyers/ralph816/pkg/ir"
	"github.com/raymyers/ralph816/pkg/regalloc"
	"github.com/raymyers/ralph816/pkg/target"
)

// Result is the code generated for one function.
type Result struct {
	Func *asm.Function
	// Tables holds the function's lookup and jump tables.
	Tables []asm.DataTable
}

// genContext holds state during code generation
type genContext struct {
	fn    *ir.Function
	alloc *regalloc.Allocation
	sig   *abi.Signature
	cfg   *config.Config

	code   []asm.Instr
	tables []asm.DataTable
	// acc is the current accumulator width.
	acc target.Width
	// depth is the number of bytes pushed below the frame.
	depth  int
	labels int
	block  ir.BlockID
}

// TransformFunction generates code for fn, whose blocks are in final layout
// order and whose registers are placed by alloc.
func TransformFunction(fn *ir.Function, alloc *regalloc.Allocation, sig *abi.Signature, cfg *config.Config) (*Result, error) {
	ctx := &genContext{fn: fn, alloc: alloc, sig: sig, cfg: cfg}
	ctx.prologue()
	for _, b := range fn.Blocks {
		ctx.block = b.ID
		ctx.acc = fn.Mode.Width()
		ctx.emit(asm.Lbl(blockLabel(fn, b.ID)))
		for i, in := range b.Instrs {
			if alloc.NoOps[regalloc.InstrRef{Block: b.ID, Index: i}] {
				continue
			}
			if err := ctx.translateInstruction(in); err != nil {
				return nil, fmt.Errorf("asmgen: %s: %w", fn.Name, err)
			}
			ctx.setAcc(fn.Mode.Width())
		}
		if b.Term == nil {
			return nil, fmt.Errorf("asmgen: %s: block b%d has no terminator", fn.Name, b.ID)
		}
		if err := ctx.translateTerminator(b.Term); err != nil {
			return nil, fmt.Errorf("asmgen: %s: %w", fn.Name, err)
		}
	}

	out := &asm.Function{Name: sig.Name, Bank: sig.Bank, Far: sig.Far, Mode: sig.Mode, Code: ctx.code}
	CleanupLabels(out, ctx.tables)
	for _, t := range fn.Tables {
		ctx.tables = append(ctx.tables, asm.DataTable{
			Name:   t.Name,
			Kind:   asm.ValueTable,
			Width:  int(t.Width),
			Values: append([]int(nil), t.Values...),
		})
	}
	return &Result{Func: out, Tables: ctx.tables}, nil
}

func (ctx *genContext) emit(code ...asm.Instr) {
	ctx.code = append(ctx.code, code...)
}

// newLabel generates a unique local label
func (ctx *genContext) newLabel(kind string) string {
	ctx.labels++
	return fmt.Sprintf("%s_%s%d", ctx.fn.Name, kind, ctx.labels)
}

func blockLabel(fn *ir.Function, b ir.BlockID) string {
	return fmt.Sprintf("%s_L%d", fn.Name, b)
}

func (ctx *genContext) loc(v ir.VReg) target.Loc { return ctx.alloc.Loc(v) }

func (ctx *genContext) width(v ir.VReg) target.Width { return ctx.fn.Info(v).Width }

// next returns the block laid out after the current one, or -1.
func (ctx *genContext) next() ir.BlockID {
	if int(ctx.block)+1 < len(ctx.fn.Blocks) {
		return ctx.block + 1
	}
	return -1
}

// prologue emits the entry sequence and allocates the local frame.
func (ctx *genContext) prologue() {
	ctx.acc = ctx.fn.Mode.Width()
	ctx.emit(abi.EntrySequence(ctx.sig)...)
	if ctx.sig.Interrupt != "" {
		for off := 0; off < 8; off += 2 {
			ctx.emit(asm.Ind(asm.PEI, ctx.cfg.TempBase+off))
		}
	}
	ctx.adjustStack(-ctx.alloc.FrameSize)
}

// epilogue releases the frame and returns.
func (ctx *genContext) epilogue() {
	ctx.adjustStack(ctx.alloc.FrameSize)
	if ctx.sig.Interrupt != "" {
		if ctx.fn.Mode == target.Narrow {
			ctx.emit(asm.Rep())
		}
		for off := 6; off >= 0; off -= 2 {
			ctx.emit(asm.I(asm.PLA), asm.Dp(asm.STA, ctx.cfg.TempBase+off))
		}
		if ctx.fn.Mode == target.Narrow {
			ctx.emit(asm.Sep())
		}
	}
	ctx.emit(abi.ExitSequence(ctx.sig)...)
}

// adjustStack moves the stack pointer by n bytes, keeping the whole
// accumulator intact.
func (ctx *genContext) adjustStack(n int) {
	if n == 0 {
		return
	}
	save := ctx.cfg.SaveTemp()
	narrow := ctx.fn.Mode == target.Narrow
	if narrow {
		ctx.emit(asm.Rep())
	}
	ctx.emit(asm.Dp(asm.STA, save), asm.I(asm.TSC))
	if n > 0 {
		ctx.emit(asm.I(asm.CLC), asm.Imm(asm.ADC, n, 2))
	} else {
		ctx.emit(asm.I(asm.SEC), asm.Imm(asm.SBC, -n, 2))
	}
	ctx.emit(asm.I(asm.TCS), asm.Dp(asm.LDA, save))
	if narrow {
		ctx.emit(asm.Sep())
	}
}

// translateTerminator emits the end of the current block. Jumps to the
// next block in layout fall through.
func (ctx *genContext) translateTerminator(t ir.Terminator) error {
	next := ctx.next()
	switch t := t.(type) {
	case ir.Jump:
		if t.Target != next {
			ctx.emit(asm.Br(asm.BRA, blockLabel(ctx.fn, t.Target)))
		}
	case ir.Branch:
		then, els := blockLabel(ctx.fn, t.Then), blockLabel(ctx.fn, t.Else)
		if t.Then == next {
			return ctx.compareBranch(t.Cond.Negate(), t.L, t.R, els)
		}
		if err := ctx.compareBranch(t.Cond, t.L, t.R, then); err != nil {
			return err
		}
		if t.Else != next {
			ctx.emit(asm.Br(asm.BRA, els))
		}
	case ir.JumpTable:
		ctx.jumpTable(t)
	case ir.Return:
		ctx.epilogue()
	default:
		return fmt.Errorf("unhandled terminator %T", t)
	}
	return nil
}

// jumpTable transfers control through a table of block addresses.
func (ctx *genContext) jumpTable(t ir.JumpTable) {
	name := fmt.Sprintf("%s_jt%d", ctx.fn.Name, len(ctx.tables))
	targets := make([]string, len(t.Targets))
	for i, b := range t.Targets {
		targets[i] = blockLabel(ctx.fn, b)
	}
	ctx.tables = append(ctx.tables, asm.DataTable{Name: name, Kind: asm.AddrTable, Width: 2, Targets: targets})

	ctx.loadIndex16(t.Index)
	ctx.emit(asm.I(asm.ASL), asm.I(asm.TAX))
	ctx.setAcc(ctx.fn.Mode.Width())
	ctx.emit(asm.Instr{Op: asm.JMP, Mode: asm.AbsXInd, Sym: name})
}
