package ir

import (
	"fmt"
	"io"
	"strings"
)

// Printer writes a textual listing of the block graph.
type Printer struct {
	w io.Writer
}

// NewPrinter creates a printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintFunction prints one function, blocks in layout order.
func (p *Printer) PrintFunction(fn *Function) {
	fmt.Fprintf(p.w, "%s (%s) {\n", fn.Name, fn.Mode)
	for _, b := range fn.Blocks {
		fmt.Fprintf(p.w, "%s:\n", blockLabel(b))
		for _, in := range b.Instrs {
			fmt.Fprintf(p.w, "    %s\n", p.instr(fn, in))
		}
		if b.Term != nil {
			fmt.Fprintf(p.w, "    %s\n", p.term(fn, b.Term))
		}
	}
	fmt.Fprintln(p.w, "}")
	for _, t := range fn.Tables {
		fmt.Fprintf(p.w, "table %s %s %v\n", t.Name, t.Width, t.Values)
	}
}

func blockLabel(b *Block) string {
	if b.Name == "" {
		return fmt.Sprintf("b%d", b.ID)
	}
	return fmt.Sprintf("b%d.%s", b.ID, b.Name)
}

func vreg(fn *Function, v VReg) string {
	if v == 0 {
		return "_"
	}
	info := fn.VRegs[v]
	s := fmt.Sprintf("v%d", v)
	if info.Fixed != nil {
		s += "@" + info.Fixed.String()
	}
	return s
}

func vregs(fn *Function, vs []VReg) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = vreg(fn, v)
	}
	return strings.Join(parts, ", ")
}

func value(fn *Function, v Value) string {
	if v.IsImm {
		return fmt.Sprintf("#%d", v.Imm)
	}
	return vreg(fn, v.Reg)
}

func addr(fn *Function, a Addr) string {
	switch {
	case a.Base != 0:
		return fmt.Sprintf("[%s+%d]", vreg(fn, a.Base), a.Offset)
	case a.Fixed != nil:
		return fmt.Sprintf("[$%04X+%d]", *a.Fixed, a.Offset)
	case a.Far:
		return fmt.Sprintf("[far %s+%d]", a.Symbol, a.Offset)
	}
	return fmt.Sprintf("[%s+%d]", a.Symbol, a.Offset)
}

func (p *Printer) instr(fn *Function, in Instr) string {
	switch i := in.(type) {
	case Params:
		return fmt.Sprintf("params %s", vregs(fn, i.Dsts))
	case Const:
		return fmt.Sprintf("%s = #%d", vreg(fn, i.Dst), i.Value)
	case Move:
		return fmt.Sprintf("%s = %s", vreg(fn, i.Dst), vreg(fn, i.Src))
	case Convert:
		kind := "zext"
		if i.Signed {
			kind = "sext"
		}
		return fmt.Sprintf("%s = %s %s", vreg(fn, i.Dst), kind, vreg(fn, i.Src))
	case BinOp:
		return fmt.Sprintf("%s = %s %s, %s", vreg(fn, i.Dst), i.Op, vreg(fn, i.L), value(fn, i.R))
	case UnOp:
		return fmt.Sprintf("%s = %s %s", vreg(fn, i.Dst), i.Op, vreg(fn, i.Src))
	case SetCond:
		return fmt.Sprintf("%s = %s %s %s", vreg(fn, i.Dst), vreg(fn, i.L), i.Cond, value(fn, i.R))
	case Load:
		return fmt.Sprintf("%s = load %s", vreg(fn, i.Dst), addr(fn, i.Addr))
	case Store:
		return fmt.Sprintf("store %s, %s", addr(fn, i.Addr), value(fn, i.Src))
	case LoadTable:
		return fmt.Sprintf("%s = %s[%s]", vreg(fn, i.Dst), i.Table, vreg(fn, i.Index))
	case Push:
		return fmt.Sprintf("push %s", value(fn, i.Src))
	case Call:
		far := ""
		if i.Far {
			far = "far "
		}
		return fmt.Sprintf("(%s) = call %s%s(%s)", vregs(fn, i.Results), far, i.Func, vregs(fn, i.Args))
	case Dispatch:
		return fmt.Sprintf("(%s) = dispatch %s[tag %s](%s)", vregs(fn, i.Results), i.Table, vreg(fn, i.Object), vregs(fn, i.Args))
	}
	return fmt.Sprintf("<%T>", in)
}

func (p *Printer) term(fn *Function, t Terminator) string {
	switch t := t.(type) {
	case Jump:
		return fmt.Sprintf("jump b%d", t.Target)
	case Branch:
		return fmt.Sprintf("if %s %s %s then b%d else b%d", vreg(fn, t.L), t.Cond, value(fn, t.R), t.Then, t.Else)
	case JumpTable:
		targets := make([]string, len(t.Targets))
		for i, id := range t.Targets {
			targets[i] = fmt.Sprintf("b%d", id)
		}
		return fmt.Sprintf("jumptable %s [%s]", vreg(fn, t.Index), strings.Join(targets, ", "))
	case Return:
		return fmt.Sprintf("return %s", vregs(fn, t.Values))
	}
	return fmt.Sprintf("<%T>", t)
}
