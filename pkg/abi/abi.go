// Package abi resolves each function's accumulator mode and calling
// convention, validates parameter and return bindings, checks bank legality
// of calls, and produces the entry and exit sequences that keep the
// accumulator mode symmetric across every call boundary.
package abi

import (
	"slices"

	"github.com/raymyers/ralph816/pkg/ast"
	"github.com/raymyers/ralph816/pkg/diag"
	"github.com/raymyers/ralph816/pkg/target"
)

// MaxReturns bounds the return signature.
const MaxReturns = 3

// DataBank is the data-bank register handling mode of a function.
type DataBank int

const (
	DataBankKeep DataBank = iota // DBR is left as the caller set it
	DataBankSet                  // DBR is saved, set to the program bank, and restored
)

// Interrupt vectors a handler may be declared for.
var interruptVectors = []string{"nmi", "irq", "brk", "cop", "abort", "reset"}

// ParamLoc is a resolved parameter binding.
type ParamLoc struct {
	Name      string
	Type      ast.Type
	Width     target.Width
	Mechanism ast.Mechanism
	Reg       target.Reg
	// StackOffset is the offset of a stack parameter within the argument
	// area, counted from the last-pushed byte.
	StackOffset int
	Loc         target.Loc // register or variable location
}

// ReturnLoc is a resolved return binding.
type ReturnLoc struct {
	Type      ast.Type
	Width     target.Width
	Mechanism ast.Mechanism
	Reg       target.Reg
	Loc       target.Loc
}

// Signature is the resolved calling convention of a function.
type Signature struct {
	Name      string
	Mode      target.Mode
	Bank      int
	Far       bool
	NoReturn  bool
	Params    []ParamLoc
	Returns   []ReturnLoc
	Preserve  target.RegMask
	// PreserveScratch means the function never touches the scratch pool,
	// so callers' scratch values survive the call.
	PreserveScratch bool
	DataBank        DataBank
	Interrupt       string
	StackBytes      int
}

// RetAddrSize is the size of the return address the call pushes.
func (s *Signature) RetAddrSize() int {
	switch {
	case s.Interrupt != "":
		return 4 // P, PC, PBR
	case s.Far:
		return 3
	}
	return 2
}

// SavedBytes is the number of bytes the entry sequence pushes.
func (s *Signature) SavedBytes() int {
	if s.Interrupt != "" {
		return 9 // A, X, Y (2 each), DBR (1), D (2)
	}
	n := 1 // caller's status register
	switch {
	case s.Mode == target.Wide && (s.Preserve.Has(target.A) || s.Preserve.Has(target.B)):
		n += 2
	default:
		if s.Preserve.Has(target.A) {
			n++
		}
		if s.Preserve.Has(target.B) {
			n++
		}
	}
	if s.Preserve.Has(target.X) {
		n += 2
	}
	if s.Preserve.Has(target.Y) {
		n += 2
	}
	if s.DataBank == DataBankSet {
		n++
	}
	return n
}

// ParamBase is the stack-relative offset of the argument area with an empty
// local frame.
func (s *Signature) ParamBase() int {
	return s.SavedBytes() + s.RetAddrSize() + 1
}

// Clobbers is the set of registers a call to this function may change.
func (s *Signature) Clobbers() target.RegMask {
	return target.AllRegs &^ s.Preserve
}

// TypeWidth returns the storage width of a scalar type.
func TypeWidth(u *ast.Unit, t ast.Type) (target.Width, bool) {
	switch t {
	case ast.U8, ast.I8, ast.Bool:
		return target.W8, true
	case ast.U16, ast.I16:
		return target.W16, true
	}
	if t.IsPointer() {
		return target.W16, true
	}
	if u != nil {
		if e := u.FindEnum(string(t)); e != nil {
			if len(e.Variants) > 256 {
				return target.W16, true
			}
			return target.W8, true
		}
	}
	return 0, false
}

// Resolve infers the mode of fn and validates its bindings and attributes.
func Resolve(fn *ast.Function, u *ast.Unit) (*Signature, error) {
	return resolve(fn.Name, fn, u)
}

// ResolveAs resolves fn under another symbol name (impl methods).
func ResolveAs(symbol string, fn *ast.Function, u *ast.Unit) (*Signature, error) {
	return resolve(symbol, fn, u)
}

func resolve(name string, fn *ast.Function, u *ast.Unit) (*Signature, error) {
	sig := &Signature{
		Name:     name,
		Mode:     inferMode(fn, u),
		Bank:     fn.Bank,
		Far:      fn.Far,
		NoReturn: fn.NoReturn,
	}
	abiErr := func(code, format string, args ...any) error {
		return diag.Errorf(diag.KindABI, code, name, format, args...)
	}

	if fn.Bank < 0 || fn.Bank > 0xFF {
		return nil, abiErr(diag.ErrBadAttribute, "bank %d out of range", fn.Bank)
	}
	if err := resolveAttrs(sig, fn, abiErr); err != nil {
		return nil, err
	}

	var used target.RegMask
	seenNonStack := false
	var stackParams []int
	for i, p := range fn.Params {
		w, ok := TypeWidth(u, p.Type)
		if !ok {
			return nil, abiErr(diag.ErrBadAttribute, "parameter %s: type %s cannot be passed", p.Name, p.Type)
		}
		pl := ParamLoc{Name: p.Name, Type: p.Type, Width: w, Mechanism: p.Binding.Mechanism}
		switch p.Binding.Mechanism {
		case ast.ByStack:
			if seenNonStack {
				return nil, abiErr(diag.ErrStackAfterRegister,
					"stack parameter %s follows a register or variable-bound parameter", p.Name)
			}
			stackParams = append(stackParams, i)
		case ast.ByRegister:
			seenNonStack = true
			r, err := checkReg(sig, p.Binding.Reg, w, used, "parameter "+p.Name, abiErr)
			if err != nil {
				return nil, err
			}
			used = used.With(r)
			pl.Reg = r
			pl.Loc = target.RegLoc(r)
		case ast.ByVariable:
			seenNonStack = true
			pl.Loc = VarLoc(u, p.Binding.Var)
		}
		sig.Params = append(sig.Params, pl)
	}
	// Stack arguments are pushed in declaration order: the last one is on top.
	off := 0
	for j := len(stackParams) - 1; j >= 0; j-- {
		pl := &sig.Params[stackParams[j]]
		pl.StackOffset = off
		off += int(pl.Width)
	}
	sig.StackBytes = off

	if sig.Mode == target.Wide && used.Has(target.B) {
		return nil, abiErr(diag.ErrAccumulatorHalf, "b cannot be bound alongside a wide accumulator parameter")
	}

	if len(fn.Returns) > MaxReturns {
		return nil, abiErr(diag.ErrTooManyReturns, "%d return values, at most %d allowed", len(fn.Returns), MaxReturns)
	}
	var retUsed target.RegMask
	for i, r := range fn.Returns {
		w, ok := TypeWidth(u, r.Type)
		if !ok {
			return nil, abiErr(diag.ErrBadAttribute, "return %d: type %s cannot be returned", i, r.Type)
		}
		rl := ReturnLoc{Type: r.Type, Width: w, Mechanism: r.Binding.Mechanism}
		switch r.Binding.Mechanism {
		case ast.ByStack:
			return nil, abiErr(diag.ErrStackReturn, "return %d must be register- or variable-bound", i)
		case ast.ByRegister:
			reg, err := checkReg(sig, r.Binding.Reg, w, retUsed, "return value", abiErr)
			if err != nil {
				return nil, err
			}
			if sig.Preserve.Has(reg) {
				return nil, abiErr(diag.ErrBadAttribute, "register %s carries a return value and cannot be preserved", reg)
			}
			retUsed = retUsed.With(reg)
			rl.Reg = reg
			rl.Loc = target.RegLoc(reg)
		case ast.ByVariable:
			rl.Loc = VarLoc(u, r.Binding.Var)
		}
		sig.Returns = append(sig.Returns, rl)
	}
	if sig.Mode == target.Wide && sig.Preserve.Has(target.B) && retUsed.Has(target.A) {
		return nil, abiErr(diag.ErrBadAttribute, "b is the high half of the wide return value in a and cannot be preserved")
	}

	if sig.Interrupt != "" && (len(fn.Params) > 0 || len(fn.Returns) > 0) {
		return nil, abiErr(diag.ErrInterruptSignature, "interrupt handler %s cannot take parameters or return values", sig.Interrupt)
	}
	return sig, nil
}

func inferMode(fn *ast.Function, u *ast.Unit) target.Mode {
	for _, p := range fn.Params {
		if p.Binding.Mechanism != ast.ByRegister {
			continue
		}
		r, ok := target.ParseReg(p.Binding.Reg)
		if !ok || r != target.A {
			continue
		}
		if w, ok := TypeWidth(u, p.Type); ok && w == target.W16 {
			return target.Wide
		}
	}
	return target.Narrow
}

func checkReg(sig *Signature, name string, w target.Width, used target.RegMask, what string,
	abiErr func(string, string, ...any) error) (target.Reg, error) {
	r, ok := target.ParseReg(name)
	if !ok {
		return target.NoReg, abiErr(diag.ErrUnknownRegister, "%s: unknown register %q", what, name)
	}
	if used.Has(r) {
		return target.NoReg, abiErr(diag.ErrDuplicateRegister, "%s: register %s bound twice", what, r)
	}
	switch r {
	case target.X, target.Y:
		if w != target.W16 {
			return target.NoReg, abiErr(diag.ErrNarrowIndex, "%s: index register %s requires a 16-bit type", what, r)
		}
	case target.B:
		if w != target.W8 {
			return target.NoReg, abiErr(diag.ErrAccumulatorHalf, "%s: b holds 8-bit values only", what)
		}
		if sig.Mode == target.Wide {
			return target.NoReg, abiErr(diag.ErrAccumulatorHalf, "%s: b is unavailable in a wide function", what)
		}
	case target.A:
		if w != sig.Mode.Width() {
			return target.NoReg, abiErr(diag.ErrModeMismatch, "%s: a is %d-bit in a %s function, type is %d-bit",
				what, int(sig.Mode.Width())*8, sig.Mode, int(w)*8)
		}
	}
	return r, nil
}

func resolveAttrs(sig *Signature, fn *ast.Function, abiErr func(string, string, ...any) error) error {
	for _, p := range fn.Attrs.Preserve {
		if p == "scratch" {
			sig.PreserveScratch = true
			continue
		}
		r, ok := target.ParseReg(p)
		if !ok {
			return abiErr(diag.ErrBadAttribute, "cannot preserve %q", p)
		}
		sig.Preserve = sig.Preserve.With(r)
	}
	switch fn.Attrs.DataBank {
	case "", "keep":
		sig.DataBank = DataBankKeep
	case "set":
		sig.DataBank = DataBankSet
	default:
		return abiErr(diag.ErrBadAttribute, "unknown data-bank mode %q", fn.Attrs.DataBank)
	}
	if iv := fn.Attrs.Interrupt; iv != "" {
		if !slices.Contains(interruptVectors, iv) {
			return abiErr(diag.ErrBadAttribute, "unknown interrupt vector %q", iv)
		}
		sig.Interrupt = iv
		// Handlers save and restore everything and never share the scratch pool.
		sig.Preserve = target.AllRegs
		sig.PreserveScratch = true
	}
	return nil
}

// VarLoc returns the location of a variable-bound value.
func VarLoc(u *ast.Unit, name string) target.Loc {
	if u != nil {
		if g := u.FindGlobal(name); g != nil && g.Address != nil {
			return target.Loc{Kind: target.LocFixed, Offset: *g.Address, Symbol: name}
		}
	}
	return target.Loc{Kind: target.LocVar, Symbol: name}
}
