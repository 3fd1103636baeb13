package abi

import (
	"fmt"

	"github.com/raymyers/ralph816/pkg/ast"
	"github.com/raymyers/ralph816/pkg/diag"
	"github.com/raymyers/ralph816/pkg/target"
)

// CheckCall reports whether caller may call callee directly. A near callee
// is reachable only from its own bank.
func CheckCall(caller, callee *Signature) error {
	if !callee.Far && callee.Bank != caller.Bank {
		return diag.Errorf(diag.KindABI, diag.ErrCrossBankCall, caller.Name,
			"call from bank %d to near function %s in bank %d", caller.Bank, callee.Name, callee.Bank)
	}
	return CheckScratch(caller, callee)
}

// CheckScratch rejects a call that would break the caller's promise to
// leave the scratch pool alone. Interrupt handlers make that promise
// implicitly: the code they interrupt may hold values in the pool.
func CheckScratch(caller, callee *Signature) error {
	if !caller.PreserveScratch || callee.PreserveScratch {
		return nil
	}
	what := "preserves scratch"
	if caller.Interrupt != "" {
		what = "is an interrupt handler"
	}
	return diag.Errorf(diag.KindABI, diag.ErrScratchCall, caller.Name,
		"%s %s but calls %s, which may use the scratch pool", caller.Name, what, callee.Name)
}

// CheckCalls walks the whole body of fn, reachable or not, and checks every
// direct call for bank legality, arity and a resolvable callee.
func CheckCalls(fn *ast.Function, caller *Signature, sigs map[string]*Signature) error {
	var first error
	report := func(err error) {
		if first == nil {
			first = err
		}
	}
	ast.Inspect(fn.Body, func(n any) bool {
		call, ok := n.(*ast.Call)
		if !ok {
			return true
		}
		callee, ok := sigs[call.Func]
		if !ok {
			report(diag.Errorf(diag.KindABI, diag.ErrUnknownFunction, caller.Name, "call to unknown function %s", call.Func))
			return true
		}
		if len(call.Args) != len(callee.Params) {
			report(diag.Errorf(diag.KindABI, diag.ErrArity, caller.Name,
				"%s takes %d arguments, %d given", call.Func, len(callee.Params), len(call.Args)))
			return true
		}
		if callee.Interrupt != "" {
			report(diag.Errorf(diag.KindABI, diag.ErrInterruptSignature, caller.Name,
				"interrupt handler %s cannot be called", call.Func))
			return true
		}
		if err := CheckCall(caller, callee); err != nil {
			report(err)
		}
		return true
	})
	return first
}

// Helper returns the signature of a runtime arithmetic routine (mul, div,
// mod, shl, shr) at width w. Helpers are linked into every bank and take
// their operands in x and y, returning the result in x; an 8-bit value in
// an index register is zero-extended. They work in registers and on the
// stack only, so the scratch pool survives them.
func Helper(op string, w target.Width, bank int) *Signature {
	name := fmt.Sprintf("__%s%d", op, int(w)*8)
	return &Signature{
		Name: name,
		Mode: target.Narrow,
		Bank: bank,
		Params: []ParamLoc{
			{Name: "l", Width: w, Mechanism: ast.ByRegister, Reg: target.X, Loc: target.RegLoc(target.X)},
			{Name: "r", Width: w, Mechanism: ast.ByRegister, Reg: target.Y, Loc: target.RegLoc(target.Y)},
		},
		Returns: []ReturnLoc{
			{Width: w, Mechanism: ast.ByRegister, Reg: target.X, Loc: target.RegLoc(target.X)},
		},
		PreserveScratch: true,
	}
}
