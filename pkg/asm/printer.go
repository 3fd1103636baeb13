package asm

import (
	"fmt"
	"io"
	"strings"
)

// Printer outputs a debug listing of the program in ca65-like syntax.
type Printer struct {
	w io.Writer
}

// NewPrinter creates a new assembly printer
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintProgram outputs an entire program
func (p *Printer) PrintProgram(prog *Program) {
	for _, f := range prog.Functions {
		p.PrintFunction(f)
	}
	if len(prog.Tables) > 0 {
		fmt.Fprintf(p.w, "\t.segment\t\"RODATA\"\n")
		for _, t := range prog.Tables {
			p.printTable(t)
		}
		fmt.Fprintln(p.w)
	}
	if len(prog.Vectors) > 0 {
		fmt.Fprintf(p.w, "\t.segment\t\"VECTORS\"\n")
		for _, v := range prog.Vectors {
			fmt.Fprintf(p.w, "\t; %s\n\t.addr\t%s\n", v.Kind, v.Handler)
		}
	}
}

// PrintFunction outputs one function.
func (p *Printer) PrintFunction(f *Function) {
	kind := "near"
	if f.Far {
		kind = "far"
	}
	fmt.Fprintf(p.w, "\t; bank %d, %s, %s\n", f.Bank, kind, f.Mode)
	fmt.Fprintf(p.w, "%s:\n", f.Name)
	for _, in := range f.Code {
		p.printInstr(in)
	}
	fmt.Fprintln(p.w)
}

func (p *Printer) printInstr(in Instr) {
	if in.Op == Label {
		fmt.Fprintf(p.w, "%s:\n", in.Sym)
		return
	}
	op := in.operand()
	if op == "" {
		fmt.Fprintf(p.w, "\t%s\n", in.Op)
		return
	}
	fmt.Fprintf(p.w, "\t%s\t%s\n", in.Op, op)
}

func (p *Printer) printTable(t DataTable) {
	fmt.Fprintf(p.w, "%s:\n", t.Name)
	switch t.Kind {
	case ValueTable:
		dir := ".byte"
		if t.Width == 2 {
			dir = ".word"
		}
		vals := make([]string, len(t.Values))
		for i, v := range t.Values {
			vals[i] = fmt.Sprintf("$%X", v)
		}
		fmt.Fprintf(p.w, "\t%s\t%s\n", dir, strings.Join(vals, ", "))
	case AddrTable:
		for _, s := range t.Targets {
			fmt.Fprintf(p.w, "\t.addr\t%s\n", s)
		}
	case TrampolineTable:
		for _, s := range t.Targets {
			fmt.Fprintf(p.w, "\tJML\tf:%s\n", s)
		}
	}
}
