package lower

import (
	"github.com/raymyers/ralph816/pkg/ast"
	"github.com/raymyers/ralph816/pkg/diag"
	"github.com/raymyers/ralph816/pkg/ir"
	"github.com/raymyers/ralph816/pkg/target"
)

// block lowers a statement sequence in its own scope and returns the value
// of its tail expression.
func (l *lowerer) block(b *ast.Block, want ast.Type) (value, error) {
	l.PushScope()
	defer l.PopScope()
	for _, s := range b.Stmts {
		if err := l.stmt(s); err != nil {
			return value{}, err
		}
	}
	if b.Tail == nil {
		if l.Dead() {
			return value{typ: never}, nil
		}
		return voidValue, nil
	}
	return l.expr(b.Tail, want)
}

func (l *lowerer) stmt(s ast.Stmt) error {
	switch s := s.(type) {
	case *ast.Block:
		_, err := l.block(s, "")
		return err
	case *ast.Let:
		return l.let(s)
	case *ast.Assign:
		return l.assign(s)
	case *ast.ExprStmt:
		_, err := l.expr(s.X, "")
		return err
	case *ast.If:
		return l.ifStmt(s)
	case *ast.Loop:
		_, err := l.loop(s, "")
		return err
	case *ast.While:
		return l.while(s)
	case *ast.For:
		return l.forRange(s)
	case *ast.Break:
		return l.brk(s)
	case *ast.Continue:
		lc, err := l.target(s.Label, "continue")
		if err != nil {
			return err
		}
		l.Jump(lc.cont)
		return nil
	case *ast.ReturnStmt:
		return l.returnStmt(s)
	}
	return l.errorf(diag.KindInput, diag.ErrMalformed, "unsupported statement %T", s)
}

func (l *lowerer) let(s *ast.Let) error {
	if len(s.Names) > 1 {
		vals, err := l.results(s.Init)
		if err != nil {
			return err
		}
		if len(vals) < len(s.Names) {
			return l.errorf(diag.KindType, diag.ErrNoValue, "%d names bound to %d values", len(s.Names), len(vals))
		}
		for i, name := range s.Names {
			v, err := l.temp(name, vals[i].typ)
			if err != nil {
				return err
			}
			l.Emit(ir.Move{Dst: v, Src: vals[i].reg})
			l.MapVar(name, &local{reg: v, typ: vals[i].typ})
		}
		return nil
	}

	name := s.Names[0]
	typ := s.Type
	var init value
	if s.Init != nil {
		v, err := l.expr(s.Init, typ)
		if err != nil {
			return err
		}
		if v.typ == ast.Void {
			return l.errorf(diag.KindType, diag.ErrNoValue, "%s is initialized with an expression that has no value", name)
		}
		if typ == "" {
			typ = v.typ
		} else if v.typ != never && v.typ != typ {
			return l.errorf(diag.KindType, diag.ErrBranchTypes, "%s is %s but is initialized with %s", name, typ, v.typ)
		}
		init = v
	}
	if typ == "" || typ == never {
		return l.errorf(diag.KindType, diag.ErrNoValue, "cannot infer the type of %s", name)
	}
	w, err := l.width(typ)
	if err != nil {
		return err
	}
	var reg ir.VReg
	if s.Address != nil {
		reg = l.AllocFixed(name, w, typ.IsSigned(), target.Loc{Kind: target.LocFixed, Offset: *s.Address, Symbol: name})
	} else {
		reg = l.AllocReg(name, w, typ.IsSigned())
	}
	if init.reg != 0 {
		l.Emit(ir.Move{Dst: reg, Src: init.reg})
	}
	l.MapVar(name, &local{reg: reg, typ: typ})
	return nil
}

func (l *lowerer) assign(s *ast.Assign) error {
	switch t := s.Target.(type) {
	case *ast.Name:
		loc, err := l.lookup(t.Name)
		if err != nil {
			return err
		}
		v, err := l.expr(s.Value, loc.typ)
		if err != nil || v.typ == never {
			return err
		}
		if v.typ != loc.typ {
			return l.errorf(diag.KindType, diag.ErrBranchTypes, "cannot assign %s to %s of type %s", v.typ, t.Name, loc.typ)
		}
		if loc.global != nil {
			l.Emit(ir.Store{Addr: l.globalAddr(loc.global), Src: ir.R(v.reg)})
			return nil
		}
		l.Emit(ir.Move{Dst: loc.reg, Src: v.reg})
		return nil
	case *ast.FieldExpr:
		release := l.guard(s.Value)
		ptr, slot, err := l.field(t)
		release()
		if err != nil {
			return err
		}
		v, err := l.expr(s.Value, slot.Type)
		if err != nil || v.typ == never {
			return err
		}
		if v.typ != slot.Type {
			return l.errorf(diag.KindType, diag.ErrBranchTypes, "cannot assign %s to field %s of type %s", v.typ, t.Field, slot.Type)
		}
		l.Emit(ir.Store{Addr: ir.Addr{Base: ptr, Offset: slot.Offset}, Src: ir.R(v.reg)})
		return nil
	}
	return l.errorf(diag.KindInput, diag.ErrMalformed, "cannot assign to %T", s.Target)
}

// ifStmt lowers a conditional. The condition branches to the else side when
// false and falls into the then side. An else-if chain shares one join.
func (l *lowerer) ifStmt(s *ast.If) error {
	then := l.NewBlock("if.then")
	join := l.NewBlock("if.end")
	if err := l.ifArms(s, then, join); err != nil {
		return err
	}
	l.SetBlock(join)
	return nil
}

func (l *lowerer) ifArms(s *ast.If, then, join ir.BlockID) error {
	els := join
	if s.Else != nil {
		els = l.NewBlock("if.else")
	}
	if err := l.cond(s.Cond, then, els); err != nil {
		return err
	}
	l.SetBlock(then)
	if _, err := l.block(s.Then, ""); err != nil {
		return err
	}
	l.Jump(join)
	if s.Else == nil {
		return nil
	}
	l.SetBlock(els)
	if next, ok := s.Else.(*ast.If); ok {
		return l.ifArms(next, l.NewBlock("if.then"), join)
	}
	if err := l.stmt(s.Else); err != nil {
		return err
	}
	l.Jump(join)
	return nil
}

// loop lowers an unbounded loop. Its value is carried by its breaks.
func (l *lowerer) loop(s *ast.Loop, want ast.Type) (value, error) {
	head := l.NewBlock("loop")
	exit := l.NewBlock("loop.end")
	lc := &loopCtx{label: s.Label, exit: exit, cont: head, typ: want, valueOK: true}
	l.Jump(head)
	l.SetBlock(head)
	l.pushLoop(lc)
	_, err := l.block(s.Body, "")
	l.popLoop()
	if err != nil {
		return value{}, err
	}
	l.Jump(head)
	l.SetBlock(exit)
	if lc.valued > 0 && lc.bare > 0 {
		return value{}, l.errorf(diag.KindType, diag.ErrBreakValue, "loop mixes breaks with and without a value")
	}
	switch {
	case lc.valued+lc.bare == 0:
		l.MarkDead()
		return value{typ: never}, nil
	case lc.valued > 0:
		return value{reg: lc.result, typ: lc.typ}, nil
	}
	return voidValue, nil
}

func (l *lowerer) while(s *ast.While) error {
	head := l.NewBlock("while")
	body := l.NewBlock("while.body")
	exit := l.NewBlock("while.end")
	l.Jump(head)
	l.SetBlock(head)
	if err := l.cond(s.Cond, body, exit); err != nil {
		return err
	}
	l.SetBlock(body)
	l.pushLoop(&loopCtx{label: s.Label, exit: exit, cont: head})
	_, err := l.block(s.Body, "")
	l.popLoop()
	if err != nil {
		return err
	}
	l.Jump(head)
	l.SetBlock(exit)
	return nil
}

// forRange lowers a bounded loop. The induction variable is steered to an
// index register, x for the outermost loop and y for the next, and is
// stepped in place. The bound is evaluated once.
func (l *lowerer) forRange(s *ast.For) error {
	w, err := l.width(s.Type)
	if err != nil {
		return err
	}
	if !s.Type.IsInteger() {
		return l.errorf(diag.KindType, diag.ErrBranchTypes, "loop variable %s must be an integer, not %s", s.Var, s.Type)
	}
	release := l.guard(s.To)
	from, err := l.expr(s.From, s.Type)
	release()
	if err != nil {
		return err
	}
	var hi ir.Value
	if lit, ok := s.To.(*ast.IntLit); ok {
		if err := l.checkLit(lit.Value, s.Type); err != nil {
			return err
		}
		hi = ir.Imm(lit.Value & w.Mask())
	} else {
		to, err := l.expr(s.To, s.Type)
		if err != nil {
			return err
		}
		if to.typ != s.Type && to.typ != never {
			return l.errorf(diag.KindType, diag.ErrBranchTypes, "loop %s ends at %s, not %s", s.Var, to.typ, s.Type)
		}
		bound := l.AllocReg(s.Var+".end", w, s.Type.IsSigned())
		l.Emit(ir.Move{Dst: bound, Src: to.reg})
		hi = ir.R(bound)
	}
	if from.typ != s.Type && from.typ != never {
		return l.errorf(diag.KindType, diag.ErrBranchTypes, "loop %s starts at %s, not %s", s.Var, from.typ, s.Type)
	}

	l.PushScope()
	defer l.PopScope()
	i := l.AllocReg(s.Var, w, s.Type.IsSigned())
	if l.forDepth%2 == 0 {
		l.Hint(i, target.X)
	} else {
		l.Hint(i, target.Y)
	}
	l.Emit(ir.Move{Dst: i, Src: from.reg})
	l.MapVar(s.Var, &local{reg: i, typ: s.Type})

	body := l.NewBlock("for.body")
	latch := l.NewBlock("for.next")
	exit := l.NewBlock("for.end")
	test := ir.LT
	if s.Inclusive {
		test = ir.LE
	}
	l.branch(test, i, hi, body, exit)

	l.SetBlock(body)
	l.forDepth++
	l.pushLoop(&loopCtx{label: s.Label, exit: exit, cont: latch})
	_, err = l.block(s.Body, "")
	l.popLoop()
	l.forDepth--
	if err != nil {
		return err
	}
	l.Jump(latch)

	l.SetBlock(latch)
	step := body
	if s.Inclusive {
		// Stop on the last value before stepping so the variable never wraps.
		step = l.NewBlock("for.step")
		l.branch(ir.EQ, i, hi, exit, step)
		l.SetBlock(step)
		l.Emit(ir.BinOp{Op: ir.Add, Dst: i, L: i, R: ir.Imm(1), NoWrap: true})
		l.Jump(body)
	} else {
		l.Emit(ir.BinOp{Op: ir.Add, Dst: i, L: i, R: ir.Imm(1), NoWrap: true})
		l.branch(ir.LT, i, hi, body, exit)
	}
	l.SetBlock(exit)
	return nil
}

// target resolves the loop a break or continue refers to.
func (l *lowerer) target(label, what string) (*loopCtx, error) {
	lc, ok := l.findLoop(label)
	if ok {
		return lc, nil
	}
	if len(l.loops) == 0 {
		return nil, l.errorf(diag.KindLabel, diag.ErrBreakOutsideLoop, "%s outside a loop", what)
	}
	return nil, l.errorf(diag.KindLabel, diag.ErrUnknownLabel, "%s to %q, which does not name an enclosing loop", what, label)
}

func (l *lowerer) brk(s *ast.Break) error {
	lc, err := l.target(s.Label, "break")
	if err != nil {
		return err
	}
	if s.Value == nil {
		lc.bare++
		l.Jump(lc.exit)
		return nil
	}
	if !lc.valueOK {
		return l.errorf(diag.KindType, diag.ErrBreakValue, "only loop can break with a value")
	}
	lc.valued++
	v, err := l.expr(s.Value, lc.typ)
	if err != nil {
		return err
	}
	if v.typ == never {
		return nil
	}
	if v.typ == ast.Void {
		return l.errorf(diag.KindType, diag.ErrNoValue, "break value has no value")
	}
	if lc.result == 0 {
		if lc.typ != "" && lc.typ != v.typ {
			return l.errorf(diag.KindType, diag.ErrBranchTypes, "break value is %s, loop is %s", v.typ, lc.typ)
		}
		lc.typ = v.typ
		lc.result, err = l.temp("loop", v.typ)
		if err != nil {
			return err
		}
	} else if v.typ != lc.typ {
		return l.errorf(diag.KindType, diag.ErrBranchTypes, "break values disagree: %s and %s", lc.typ, v.typ)
	}
	l.Emit(ir.Move{Dst: lc.result, Src: v.reg})
	l.Jump(lc.exit)
	return nil
}

func (l *lowerer) returnStmt(s *ast.ReturnStmt) error {
	vals := make([]value, 0, len(s.Values))
	for i, e := range s.Values {
		want := ast.Type("")
		if i < len(l.sig.Returns) {
			want = l.sig.Returns[i].Type
		}
		release := l.guard(s.Values[i+1:]...)
		v, err := l.expr(e, want)
		release()
		if err != nil {
			return err
		}
		if v.typ == never {
			return nil
		}
		vals = append(vals, v)
	}
	return l.ret(vals)
}
