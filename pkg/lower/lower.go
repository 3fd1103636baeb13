// Package lower builds the block graph of one function from its syntax tree.
// Every statement is lowered, reachable or not, so that label, type and
// signature errors in dead code are still reported; unreachable blocks are
// dropped at the end.
package lower

import (
	"github.com/raymyers/ralph816/pkg/abi"
	"github.com/raymyers/ralph816/pkg/ast"
	"github.com/raymyers/ralph816/pkg/config"
	"github.com/raymyers/ralph816/pkg/diag"
	"github.com/raymyers/ralph816/pkg/dispatch"
	"github.com/raymyers/ralph816/pkg/ir"
	"github.com/raymyers/ralph816/pkg/target"
)

// Context is the unit-wide information lowering consults. It is read-only
// while functions are lowered.
type Context struct {
	Unit     *ast.Unit
	Sigs     map[string]*abi.Signature
	Dispatch *dispatch.Result
	Tags     *dispatch.Context
	Config   *config.Config
}

type lowerer struct {
	*CFGBuilder
	ctx      *Context
	sig      *abi.Signature
	matches  int
	forDepth int
	// pending counts the stores still to come from operands that are
	// evaluated after the one being lowered.
	pending map[string]int
}

// value is the result of an expression.
type value struct {
	reg ir.VReg
	typ ast.Type
}

// never is the type of an expression that does not complete.
const never ast.Type = "!"

var voidValue = value{typ: ast.Void}

// Function lowers fn, whose resolved convention is sig.
func Function(ctx *Context, fn *ast.Function, sig *abi.Signature) (*ir.Function, error) {
	l := &lowerer{CFGBuilder: NewCFGBuilder(sig.Name, sig.Mode), ctx: ctx, sig: sig}
	l.params()

	want := ast.Type("")
	if len(sig.Returns) == 1 {
		want = sig.Returns[0].Type
	}
	tail, err := l.block(fn.Body, want)
	if err != nil {
		return nil, err
	}
	if !l.Dead() {
		if err := l.fallOff(tail); err != nil {
			return nil, err
		}
	}
	return l.Finish(), nil
}

// guard marks the names that later may assign, so that a read of one of
// them before then is taken as a copy. The returned func releases them.
func (l *lowerer) guard(later ...ast.Expr) func() {
	names := ast.Assigned(later...)
	if len(names) == 0 {
		return func() {}
	}
	if l.pending == nil {
		l.pending = make(map[string]int)
	}
	for _, n := range names {
		l.pending[n]++
	}
	return func() {
		for _, n := range names {
			if l.pending[n]--; l.pending[n] == 0 {
				delete(l.pending, n)
			}
		}
	}
}

func (l *lowerer) errorf(kind diag.Kind, code, format string, args ...any) error {
	return diag.Errorf(kind, code, l.sig.Name, format, args...)
}

// params binds the parameters. Register parameters are copied out of their
// fixed registers so that the register is free after its last use; memory
// parameters are used in place.
func (l *lowerer) params() {
	var dsts []ir.VReg
	var copies []ir.Move
	var locs []target.Loc
	for _, p := range l.sig.Params {
		signed := p.Type.IsSigned()
		switch p.Mechanism {
		case ast.ByRegister:
			fixed := l.AllocFixed(p.Name, p.Width, signed, p.Loc)
			v := l.AllocReg(p.Name, p.Width, signed)
			l.Hint(v, p.Reg)
			dsts = append(dsts, fixed)
			copies = append(copies, ir.Move{Dst: v, Src: fixed})
			locs = append(locs, p.Loc)
			l.MapVar(p.Name, &local{reg: v, typ: p.Type})
		case ast.ByStack:
			v := l.AllocFixed(p.Name, p.Width, signed, target.Loc{Kind: target.LocArg, Offset: p.StackOffset})
			dsts = append(dsts, v)
			l.MapVar(p.Name, &local{reg: v, typ: p.Type})
		case ast.ByVariable:
			v := l.AllocFixed(p.Name, p.Width, signed, p.Loc)
			dsts = append(dsts, v)
			l.MapVar(p.Name, &local{reg: v, typ: p.Type})
		}
	}
	if len(dsts) > 0 {
		l.Emit(ir.Params{Dsts: dsts})
	}
	// Copies run in the reverse of fill order: the accumulator goes first.
	order := fillOrder(locs)
	for k := len(order) - 1; k >= 0; k-- {
		l.Emit(copies[order[k]])
	}
}

// fallOff handles control reaching the end of the body.
func (l *lowerer) fallOff(tail value) error {
	end := l.Current()
	reachable := func() bool { return l.fn.Reachable()[end] }
	switch {
	case l.sig.NoReturn:
		if reachable() {
			return l.errorf(diag.KindSignature, diag.ErrNoReturnFallthrough, "control reaches the end of a no-return function")
		}
		l.Terminate(ir.Return{})
	case tail.typ != ast.Void && tail.typ != never:
		return l.ret([]value{tail})
	case len(l.sig.Returns) > 0:
		if reachable() {
			return l.errorf(diag.KindSignature, diag.ErrMissingReturn, "control reaches the end without returning %d values", len(l.sig.Returns))
		}
		l.Terminate(ir.Return{})
	default:
		l.Terminate(ir.Return{})
	}
	return nil
}

// ret moves values into their return locations and ends the block.
func (l *lowerer) ret(vals []value) error {
	if l.sig.NoReturn {
		return l.errorf(diag.KindSignature, diag.ErrNoReturnFallthrough, "no-return function returns")
	}
	if len(vals) != len(l.sig.Returns) {
		return l.errorf(diag.KindSignature, diag.ErrReturnArity, "returns %d values, signature declares %d", len(vals), len(l.sig.Returns))
	}
	for i, v := range vals {
		if v.typ != l.sig.Returns[i].Type {
			return l.errorf(diag.KindSignature, diag.ErrReturnArity, "return %d is %s, signature declares %s", i, v.typ, l.sig.Returns[i].Type)
		}
	}
	fixed := make([]ir.VReg, len(vals))
	for _, i := range loadOrder(l.sig.Returns) {
		r := l.sig.Returns[i]
		fixed[i] = l.AllocFixed("ret", r.Width, r.Type.IsSigned(), r.Loc)
		l.Emit(ir.Move{Dst: fixed[i], Src: vals[i].reg})
	}
	l.Terminate(ir.Return{Values: fixed})
	return nil
}

// loadOrder orders return bindings so that filling one location never
// disturbs another: memory first, then the index registers, then b, then a.
func loadOrder(rets []abi.ReturnLoc) []int {
	locs := make([]target.Loc, len(rets))
	for i, r := range rets {
		locs[i] = r.Loc
	}
	return fillOrder(locs)
}

func fillOrder(locs []target.Loc) []int {
	rank := func(loc target.Loc) int {
		if !loc.IsReg() {
			return 0
		}
		switch loc.Reg {
		case target.X, target.Y:
			return 1
		case target.B:
			return 2
		}
		return 3
	}
	var order []int
	for pass := 0; pass <= 3; pass++ {
		for i, loc := range locs {
			if rank(loc) == pass {
				order = append(order, i)
			}
		}
	}
	return order
}

// width returns the storage width of t.
func (l *lowerer) width(t ast.Type) (target.Width, error) {
	w, ok := abi.TypeWidth(l.ctx.Unit, t)
	if !ok {
		return 0, l.errorf(diag.KindType, diag.ErrNoValue, "type %s has no scalar representation", t)
	}
	return w, nil
}

// temp allocates a temporary holding a value of type t.
func (l *lowerer) temp(name string, t ast.Type) (ir.VReg, error) {
	w, err := l.width(t)
	if err != nil {
		return 0, err
	}
	return l.AllocReg(name, w, t.IsSigned()), nil
}
