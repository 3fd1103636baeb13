package abi

import (
	"fmt"
	"strings"

	"github.com/raymyers/ralph816/pkg/asm"
	"github.com/raymyers/ralph816/pkg/target"
)

// Every function saves the caller's status register and selects its own
// accumulator width at entry; PLP before each return restores the caller's
// mode, so call sites never switch modes around a call.

// SetMode returns the instruction selecting mode m.
func SetMode(m target.Mode) asm.Instr {
	if m == target.Wide {
		return asm.Rep()
	}
	return asm.Sep()
}

// EntrySequence returns the prologue: mode switch, register saves and
// data-bank setup. The local frame is allocated afterwards.
func EntrySequence(sig *Signature) []asm.Instr {
	var code []asm.Instr
	if sig.Interrupt != "" {
		code = append(code,
			asm.Imm(asm.REP, 0x30, 1),
			asm.I(asm.PHA), asm.I(asm.PHX), asm.I(asm.PHY),
			asm.I(asm.PHB), asm.I(asm.PHD),
		)
		if sig.DataBank == DataBankSet {
			code = append(code, asm.I(asm.PHK), asm.I(asm.PLB))
		}
		if sig.Mode == target.Narrow {
			code = append(code, asm.Sep())
		}
		return code
	}

	code = append(code, asm.I(asm.PHP), SetMode(sig.Mode))
	code = append(code, saveAccumulator(sig)...)
	if sig.Preserve.Has(target.X) {
		code = append(code, asm.I(asm.PHX))
	}
	if sig.Preserve.Has(target.Y) {
		code = append(code, asm.I(asm.PHY))
	}
	if sig.DataBank == DataBankSet {
		code = append(code, asm.I(asm.PHB), asm.I(asm.PHK), asm.I(asm.PLB))
	}
	return code
}

// ExitSequence returns the epilogue ending in the return instruction. It
// runs after the local frame is released.
func ExitSequence(sig *Signature) []asm.Instr {
	var code []asm.Instr
	if sig.Interrupt != "" {
		if sig.Mode == target.Narrow {
			code = append(code, asm.Rep())
		}
		return append(code,
			asm.I(asm.PLD), asm.I(asm.PLB),
			asm.I(asm.PLY), asm.I(asm.PLX), asm.I(asm.PLA),
			asm.I(asm.RTI),
		)
	}

	if sig.DataBank == DataBankSet {
		code = append(code, asm.I(asm.PLB))
	}
	if sig.Preserve.Has(target.Y) {
		code = append(code, asm.I(asm.PLY))
	}
	if sig.Preserve.Has(target.X) {
		code = append(code, asm.I(asm.PLX))
	}
	code = append(code, restoreAccumulator(sig)...)
	code = append(code, asm.I(asm.PLP))
	if sig.Far {
		return append(code, asm.I(asm.RTL))
	}
	return append(code, asm.I(asm.RTS))
}

func saveAccumulator(sig *Signature) []asm.Instr {
	a, b := sig.Preserve.Has(target.A), sig.Preserve.Has(target.B)
	switch {
	case sig.Mode == target.Wide && (a || b):
		return []asm.Instr{asm.I(asm.PHA)}
	case a && b:
		return []asm.Instr{asm.I(asm.PHA), asm.I(asm.XBA), asm.I(asm.PHA), asm.I(asm.XBA)}
	case a:
		return []asm.Instr{asm.I(asm.PHA)}
	case b:
		return []asm.Instr{asm.I(asm.XBA), asm.I(asm.PHA), asm.I(asm.XBA)}
	}
	return nil
}

func restoreAccumulator(sig *Signature) []asm.Instr {
	a, b := sig.Preserve.Has(target.A), sig.Preserve.Has(target.B)
	switch {
	case sig.Mode == target.Wide && (a || b):
		return []asm.Instr{asm.I(asm.PLA)}
	case a && b:
		return []asm.Instr{asm.I(asm.XBA), asm.I(asm.PLA), asm.I(asm.XBA), asm.I(asm.PLA)}
	case a:
		return []asm.Instr{asm.I(asm.PLA)}
	case b:
		return []asm.Instr{asm.I(asm.XBA), asm.I(asm.PLA), asm.I(asm.XBA)}
	}
	return nil
}

// modeState is the simulated accumulator mode at one program point. The
// mode is "caller" until the function selects its own; saved holds the modes
// pushed by PHP.
type modeState struct {
	mode  string
	saved []string
}

func (s modeState) key() string {
	return s.mode + "|" + strings.Join(s.saved, ",")
}

func (s modeState) push() modeState {
	saved := append(append([]string(nil), s.saved...), s.mode)
	return modeState{mode: s.mode, saved: saved}
}

// VerifyModeSymmetry simulates the accumulator mode over every path of fn
// and reports a return reached in a mode other than the caller's. tables
// resolves the targets of indirect jumps through jump tables.
func VerifyModeSymmetry(fn *asm.Function, tables []asm.DataTable) error {
	labels := make(map[string]int)
	for i, in := range fn.Code {
		if in.Op == asm.Label {
			labels[in.Sym] = i
		}
	}
	jumpTables := make(map[string][]string)
	for _, t := range tables {
		if t.Kind == asm.AddrTable {
			jumpTables[t.Name] = t.Targets
		}
	}

	states := make(map[int]modeState)
	var work []int
	visit := func(pc int, st modeState) error {
		if pc >= len(fn.Code) {
			return fmt.Errorf("%s: control falls off the end of the function", fn.Name)
		}
		if prev, ok := states[pc]; ok {
			if prev.key() != st.key() {
				return fmt.Errorf("%s: inconsistent accumulator mode at instruction %d (%s vs %s)",
					fn.Name, pc, prev.key(), st.key())
			}
			return nil
		}
		states[pc] = st
		work = append(work, pc)
		return nil
	}
	jumpTo := func(label string, st modeState) error {
		pc, ok := labels[label]
		if !ok {
			return nil // external target: a tail transfer out of the function
		}
		return visit(pc, st)
	}

	if len(fn.Code) == 0 {
		return nil
	}
	if err := visit(0, modeState{mode: "caller"}); err != nil {
		return err
	}
	for len(work) > 0 {
		pc := work[len(work)-1]
		work = work[:len(work)-1]
		st := states[pc]
		in := fn.Code[pc]
		next := true

		switch {
		case in.Op == asm.REP && in.Value&asm.MFlag != 0:
			st = modeState{mode: "wide", saved: st.saved}
		case in.Op == asm.SEP && in.Value&asm.MFlag != 0:
			st = modeState{mode: "narrow", saved: st.saved}
		case in.Op == asm.PHP:
			st = st.push()
		case in.Op == asm.PLP:
			if len(st.saved) == 0 {
				return fmt.Errorf("%s: PLP without a matching PHP at instruction %d", fn.Name, pc)
			}
			st = modeState{mode: st.saved[len(st.saved)-1], saved: st.saved[:len(st.saved)-1]}
		case in.Op == asm.RTS || in.Op == asm.RTL:
			if st.mode != "caller" || len(st.saved) != 0 {
				return fmt.Errorf("%s: %s at instruction %d returns in %s mode", fn.Name, in.Op, pc, st.mode)
			}
			next = false
		case in.Op == asm.RTI:
			if len(st.saved) != 0 {
				return fmt.Errorf("%s: RTI at instruction %d with unbalanced PHP", fn.Name, pc)
			}
			next = false
		case asm.IsCondBranch(in.Op):
			if err := jumpTo(in.Sym, st); err != nil {
				return err
			}
		case in.Op == asm.BRA || in.Op == asm.BRL || (in.Op == asm.JMP || in.Op == asm.JML) && (in.Mode == asm.Absolute || in.Mode == asm.Long):
			if err := jumpTo(in.Sym, st); err != nil {
				return err
			}
			next = false
		case in.Op == asm.JMP && in.Mode == asm.AbsXInd:
			for _, lbl := range jumpTables[in.Sym] {
				if err := jumpTo(lbl, st); err != nil {
					return err
				}
			}
			next = false
		}
		// Calls, including JML [ptr] after a pushed return address, come back
		// in the mode they left in.
		if next {
			if err := visit(pc+1, st); err != nil {
				return err
			}
		}
	}
	return nil
}
