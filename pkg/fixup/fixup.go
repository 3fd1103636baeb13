// Package fixup resolves branch displacements once the code of a function
// is final. A short branch whose target lies outside its signed 8-bit
// range is rewritten: BRA becomes BRL, and a conditional branch becomes
// the inverted branch over a BRL. Rewriting grows the code, which can push
// other branches out of range, so the pass repeats until nothing changes.
package fixup

import (
	"fmt"
	"slices"

	"github.com/raymyers/ralph816/pkg/asm"
)

// Displacement ranges of the relative addressing modes.
const (
	ShortMin = -128
	ShortMax = 127
	LongMin  = -32768
	LongMax  = 32767
)

// Resolve returns a copy of fn whose branches are all in range and carry
// their displacement in Distance. fn itself is left untouched, and
// resolving already-resolved code returns identical code.
func Resolve(fn *asm.Function) (*asm.Function, error) {
	code := slices.Clone(fn.Code)
	if err := checkTargets(fn.Name, code); err != nil {
		return nil, err
	}
	r := &resolver{name: fn.Name, used: make(map[string]bool)}
	for _, in := range code {
		if in.Op == asm.Label {
			r.used[in.Sym] = true
		}
	}

	// Each pass rewrites at least one branch, and a rewritten branch is
	// never shortened again, so the loop ends.
	for {
		next, changed := r.relax(code)
		code = next
		if !changed {
			break
		}
	}

	addr, labels := Addresses(code)
	for i, in := range code {
		if !asm.IsBranch(in.Op) {
			continue
		}
		d := labels[in.Sym] - (addr[i] + in.Size())
		if in.Op == asm.BRL && (d < LongMin || d > LongMax) {
			return nil, fmt.Errorf("fixup: %s: branch to %s spans %d bytes", fn.Name, in.Sym, d)
		}
		code[i].Distance = d
	}

	out := *fn
	out.Code = code
	return &out, nil
}

type resolver struct {
	name  string
	used  map[string]bool
	skips int
}

// relax rewrites the branches of code that are out of range at the
// current addresses.
func (r *resolver) relax(code []asm.Instr) ([]asm.Instr, bool) {
	addr, labels := Addresses(code)
	out := make([]asm.Instr, 0, len(code))
	changed := false
	for i, in := range code {
		if !asm.IsBranch(in.Op) || in.Op == asm.BRL {
			out = append(out, in)
			continue
		}
		d := labels[in.Sym] - (addr[i] + in.Size())
		switch {
		case d >= ShortMin && d <= ShortMax:
			out = append(out, in)
		case in.Op == asm.BRA:
			out = append(out, asm.Br(asm.BRL, in.Sym))
			changed = true
		default:
			skip := r.newLabel()
			out = append(out, asm.Br(asm.Invert(in.Op), skip), asm.Br(asm.BRL, in.Sym), asm.Lbl(skip))
			changed = true
		}
	}
	return out, changed
}

func (r *resolver) newLabel() string {
	for {
		r.skips++
		name := fmt.Sprintf("%s_fx%d", r.name, r.skips)
		if !r.used[name] {
			r.used[name] = true
			return name
		}
	}
}

// Addresses returns the offset of every instruction from the start of the
// code and the offset of every label.
func Addresses(code []asm.Instr) ([]int, map[string]int) {
	addr := make([]int, len(code))
	labels := make(map[string]int)
	pc := 0
	for i, in := range code {
		addr[i] = pc
		if in.Op == asm.Label {
			labels[in.Sym] = pc
		}
		pc += in.Size()
	}
	return addr, labels
}

func checkTargets(name string, code []asm.Instr) error {
	_, labels := Addresses(code)
	for _, in := range code {
		if asm.IsBranch(in.Op) {
			if _, ok := labels[in.Sym]; !ok {
				return fmt.Errorf("fixup: %s: branch to undefined label %s", name, in.Sym)
			}
		}
	}
	return nil
}
