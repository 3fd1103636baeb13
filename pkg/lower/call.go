package lower

import (
	"github.com/raymyers/ralph816/pkg/abi"
	"github.com/raymyers/ralph816/pkg/ast"
	"github.com/raymyers/ralph816/pkg/diag"
	"github.com/raymyers/ralph816/pkg/dispatch"
	"github.com/raymyers/ralph816/pkg/ir"
	"github.com/raymyers/ralph816/pkg/target"
)

// results lowers a call and returns all of its values.
func (l *lowerer) results(e ast.Expr) ([]value, error) {
	switch e := e.(type) {
	case *ast.Call:
		return l.call(e)
	case *ast.MethodCall:
		return l.methodCall(e)
	}
	return nil, l.errorf(diag.KindType, diag.ErrNoValue, "only a call produces several values")
}

func (l *lowerer) call(c *ast.Call) ([]value, error) {
	callee, ok := l.ctx.Sigs[c.Func]
	if !ok {
		return nil, l.errorf(diag.KindABI, diag.ErrUnknownFunction, "call to unknown function %s", c.Func)
	}
	if callee.Interrupt != "" {
		return nil, l.errorf(diag.KindABI, diag.ErrInterruptSignature, "interrupt handler %s cannot be called", c.Func)
	}
	if err := abi.CheckCall(l.sig, callee); err != nil {
		return nil, err
	}
	args, ok, err := l.args(callee, c.Args, 0)
	if err != nil || !ok {
		return nil, err
	}
	return l.emitCall(callee, args, nil), nil
}

// args lowers call arguments against the parameters of callee, skipping
// the first skip parameters. ok is false when an argument diverges.
func (l *lowerer) args(callee *abi.Signature, exprs []ast.Expr, skip int) ([]value, bool, error) {
	params := callee.Params[skip:]
	if len(exprs) != len(params) {
		return nil, false, l.errorf(diag.KindABI, diag.ErrArity, "%s takes %d arguments, %d given", callee.Name, len(params), len(exprs))
	}
	vals := make([]value, len(exprs))
	for i, e := range exprs {
		release := l.guard(exprs[i+1:]...)
		v, err := l.expr(e, params[i].Type)
		release()
		if err != nil {
			return nil, false, err
		}
		if v.typ == never {
			return nil, false, nil
		}
		if v.typ != params[i].Type {
			return nil, false, l.errorf(diag.KindType, diag.ErrBranchTypes,
				"argument %s of %s is %s, parameter is %s", params[i].Name, callee.Name, v.typ, params[i].Type)
		}
		vals[i] = v
	}
	return vals, true, nil
}

// emitCall passes args to callee, emits the call built by mk (a direct call
// when mk is nil) and copies the results out of their return locations.
// Stack arguments are pushed in declaration order; fixed locations are
// filled so that loading one never disturbs another.
func (l *lowerer) emitCall(callee *abi.Signature, args []value, mk func(fixed, results []ir.VReg) ir.Instr) []value {
	for i, p := range callee.Params {
		if p.Mechanism == ast.ByStack {
			l.Emit(ir.Push{Src: ir.R(args[i].reg)})
		}
	}
	var idx []int
	var locs []target.Loc
	for i, p := range callee.Params {
		if p.Mechanism != ast.ByStack {
			idx = append(idx, i)
			locs = append(locs, p.Loc)
		}
	}
	fixed := make([]ir.VReg, len(callee.Params))
	for _, k := range fillOrder(locs) {
		i := idx[k]
		p := callee.Params[i]
		fixed[i] = l.AllocFixed(p.Name, p.Width, p.Type.IsSigned(), p.Loc)
		l.Emit(ir.Move{Dst: fixed[i], Src: args[i].reg})
	}
	results := make([]ir.VReg, len(callee.Returns))
	retLocs := make([]target.Loc, len(callee.Returns))
	for i, r := range callee.Returns {
		results[i] = l.AllocFixed("ret", r.Width, r.Type.IsSigned(), r.Loc)
		retLocs[i] = r.Loc
	}

	var instr ir.Instr
	if mk != nil {
		instr = mk(fixed, results)
	} else {
		var argRegs []ir.VReg
		for _, f := range fixed {
			if f != 0 {
				argRegs = append(argRegs, f)
			}
		}
		instr = ir.Call{
			Func:             callee.Name,
			Far:              callee.Far,
			Args:             argRegs,
			Results:          results,
			StackBytes:       callee.StackBytes,
			Preserve:         callee.Preserve,
			PreservesScratch: callee.PreserveScratch,
		}
	}
	l.Emit(instr)

	// The accumulator is the most exposed, so it is copied out first.
	out := make([]value, len(results))
	order := fillOrder(retLocs)
	for k := len(order) - 1; k >= 0; k-- {
		i := order[k]
		r := callee.Returns[i]
		v := l.AllocReg("", r.Width, r.Type.IsSigned())
		l.Emit(ir.Move{Dst: v, Src: results[i]})
		out[i] = value{reg: v, typ: r.Type}
	}
	return out
}

func (l *lowerer) methodCall(m *ast.MethodCall) ([]value, error) {
	release := l.guard(m.Args...)
	recv, err := l.expr(m.Recv, "")
	release()
	if err != nil || recv.typ == never {
		return nil, err
	}
	if !recv.typ.IsPointer() {
		return nil, l.errorf(diag.KindType, diag.ErrBranchTypes, "method %s called on %s", m.Method, recv.typ)
	}
	tr := l.ctx.Unit.FindTrait(m.Trait)
	if tr == nil {
		return nil, l.errorf(diag.KindDispatch, diag.ErrUnknownTrait, "unknown trait %s", m.Trait)
	}
	var method *ast.Method
	for _, mm := range tr.Methods {
		if mm.Name == m.Method {
			method = mm
		}
	}
	if method == nil {
		return nil, l.errorf(diag.KindType, diag.ErrUnknownName, "trait %s has no method %s", tr.Name, m.Method)
	}
	if recv.typ.IsDyn() {
		if recv.typ.Pointee() != tr.Name {
			return nil, l.errorf(diag.KindType, diag.ErrBranchTypes, "%s.%s called on %s", tr.Name, m.Method, recv.typ)
		}
		return l.dispatch(recv, tr, method, m.Args)
	}

	symbol := ast.MethodSymbol(recv.typ.Pointee(), tr.Name, method.Name)
	callee, ok := l.ctx.Sigs[symbol]
	if !ok {
		return nil, l.errorf(diag.KindABI, diag.ErrUnknownFunction, "%s does not implement %s", recv.typ.Pointee(), tr.Name)
	}
	if err := abi.CheckCall(l.sig, callee); err != nil {
		return nil, err
	}
	args, ok, err := l.args(callee, m.Args, 1)
	if err != nil || !ok {
		return nil, err
	}
	return l.emitCall(callee, append([]value{recv}, args...), nil), nil
}

// dispatch calls a trait method through its table. Near tables require
// every implementation to be reachable from the caller's bank; a caller that
// preserves scratch requires every implementation to preserve it too.
func (l *lowerer) dispatch(recv value, tr *ast.Trait, method *ast.Method, exprs []ast.Expr) ([]value, error) {
	var tbl *dispatch.Table
	if l.ctx.Dispatch != nil {
		tbl = l.ctx.Dispatch.Table(tr.Name, method.Name)
	}
	if tbl == nil {
		return nil, l.errorf(diag.KindDispatch, diag.ErrUnknownTrait, "trait %s has no dispatch table", tr.Name)
	}
	sig, err := l.traitSig(tbl, tr, method)
	if err != nil {
		return nil, err
	}
	for _, entry := range tbl.Entries {
		callee, ok := l.ctx.Sigs[entry]
		if !ok {
			continue
		}
		check := abi.CheckCall
		if tbl.Far {
			check = abi.CheckScratch
		}
		if err := check(l.sig, callee); err != nil {
			return nil, err
		}
	}
	args, ok, err := l.args(sig, exprs, 1)
	if err != nil || !ok {
		return nil, err
	}
	return l.emitCall(sig, append([]value{recv}, args...), func(fixed, results []ir.VReg) ir.Instr {
		var rest []ir.VReg
		for _, f := range fixed[1:] {
			if f != 0 {
				rest = append(rest, f)
			}
		}
		return ir.Dispatch{
			Table:      tbl.Name,
			Far:        tbl.Far,
			EntryWidth: tbl.EntryWidth,
			Object:     fixed[0],
			Args:       rest,
			Results:    results,
			StackBytes: sig.StackBytes,
		}
	}), nil
}

// traitSig resolves the convention shared by every implementation of a
// trait method: the receiver in y, then the declared parameters.
func (l *lowerer) traitSig(tbl *dispatch.Table, tr *ast.Trait, m *ast.Method) (*abi.Signature, error) {
	self := &ast.Param{
		Name:    "self",
		Type:    ast.Type("&dyn " + tr.Name),
		Binding: ast.Binding{Mechanism: ast.ByRegister, Reg: dispatch.ReceiverReg},
	}
	fn := &ast.Function{
		Name:    tbl.Name,
		Bank:    l.sig.Bank,
		Far:     m.Far,
		Params:  append([]*ast.Param{self}, m.Params...),
		Returns: m.Returns,
	}
	return abi.ResolveAs(tbl.Name, fn, l.ctx.Unit)
}
