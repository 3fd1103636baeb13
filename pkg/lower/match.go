package lower

import (
	"fmt"

	"github.com/raymyers/ralph816/pkg/abi"
	"github.com/raymyers/ralph816/pkg/ast"
	"github.com/raymyers/ralph816/pkg/diag"
	"github.com/raymyers/ralph816/pkg/ir"
	"github.com/raymyers/ralph816/pkg/match"
)

// match lowers a pattern match through the match compiler.
func (l *lowerer) match(m *ast.Match, want ast.Type) (value, error) {
	x, err := l.expr(m.Scrutinee, "")
	if err != nil || x.typ == never {
		return x, err
	}
	w, err := l.width(x.typ)
	if err != nil {
		return value{}, err
	}
	d := &match.Desc{Decl: l.sig.Name, Width: w, Signed: x.typ.IsSigned()}
	switch {
	case x.typ == ast.Bool:
		d.Kind = match.ScrutBool
	case x.typ.IsInteger():
		d.Kind = match.ScrutInt
	default:
		if d.Enum = l.ctx.Unit.FindEnum(string(x.typ)); d.Enum == nil {
			return value{}, l.errorf(diag.KindType, diag.ErrBranchTypes, "cannot match on %s", x.typ)
		}
		d.Kind = match.ScrutEnum
	}

	result := want
	for _, arm := range m.Arms {
		a := match.Arm{Pattern: arm.Pattern}
		if n, t, ok := l.constOutcome(arm.Body, result); ok {
			if result == "" {
				result = t
			}
			if t == result {
				a.Const, a.Value = true, n
			}
		}
		d.Arms = append(d.Arms, a)
	}
	if err := match.Check(d); err != nil {
		return value{}, err
	}
	if result != "" {
		if rw, err := l.width(result); err == nil {
			d.ResultW = rw
		}
	}
	plan := match.Select(d, match.OptionsFrom(l.ctx.Config))

	mb := &matchBuilder{l: l, m: m, x: x, result: result, j: l.newJoin("match.end", want)}
	match.Emit(mb, d, plan, x.reg)
	if mb.err != nil {
		return value{}, mb.err
	}
	return mb.j.finish(), nil
}

// constOutcome reports whether an arm body is a constant and its value.
func (l *lowerer) constOutcome(e ast.Expr, want ast.Type) (int, ast.Type, bool) {
	switch e := e.(type) {
	case *ast.IntLit:
		t := litType(e, want)
		w, ok := abi.TypeWidth(l.ctx.Unit, t)
		if !ok {
			return 0, "", false
		}
		return e.Value & w.Mask(), t, true
	case *ast.BoolLit:
		if e.Value {
			return 1, ast.Bool, true
		}
		return 0, ast.Bool, true
	case *ast.Variant:
		n, err := l.variant(e.Enum, e.Variant)
		if err != nil {
			return 0, "", false
		}
		return n, ast.Type(e.Enum), true
	}
	return 0, "", false
}

// matchBuilder adapts the lowerer to the match compiler's builder.
type matchBuilder struct {
	l      *lowerer
	m      *ast.Match
	x      value
	result ast.Type
	j      *join
	biased ir.VReg
	err    error
}

func (b *matchBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *matchBuilder) NewBlock(name string) ir.BlockID { return b.l.NewBlock(name) }
func (b *matchBuilder) SetBlock(id ir.BlockID)          { b.l.SetBlock(id) }
func (b *matchBuilder) Jump(target ir.BlockID)          { b.l.Jump(target) }

// Test compares x against an immediate. A signed scrutinee is biased once
// and reused by every test.
func (b *matchBuilder) Test(cond ir.Cond, x ir.VReg, imm int, then, els ir.BlockID) {
	l := b.l
	info := l.fn.Info(x)
	y := ir.Imm(imm & info.Width.Mask())
	if info.Signed && cond != ir.EQ && cond != ir.NE {
		if b.biased == 0 {
			// Tests form a single chain, so the first biased copy
			// dominates every later test.
			b.biased = l.bias(x)
		}
		x, y = b.biased, l.biasValue(y, info.Width)
	}
	l.Terminate(ir.Branch{Cond: cond, L: x, R: y, Then: then, Else: els})
}

// Index returns x - base as an unsigned index; the subtraction is the same
// for signed and unsigned values.
func (b *matchBuilder) Index(x ir.VReg, base int) ir.VReg {
	l := b.l
	w := l.fn.Info(x).Width
	idx := l.AllocReg("index", w, false)
	if base == 0 {
		l.Emit(ir.Move{Dst: idx, Src: x})
	} else {
		l.Emit(ir.BinOp{Op: ir.Sub, Dst: idx, L: x, R: ir.Imm(base & w.Mask())})
	}
	return idx
}

func (b *matchBuilder) JumpTable(index ir.VReg, targets []ir.BlockID) {
	b.l.Terminate(ir.JumpTable{Index: index, Targets: targets})
}

// Lookup reads the match result from a constant table.
func (b *matchBuilder) Lookup(values []int, index ir.VReg) {
	l := b.l
	l.matches++
	name := fmt.Sprintf("%s_match%d", l.sig.Name, l.matches)
	dst, err := l.temp("", b.result)
	if err != nil {
		b.fail(err)
		return
	}
	w := l.fn.Info(dst).Width
	l.fn.Tables = append(l.fn.Tables, ir.Table{Name: name, Width: w, Values: values})
	l.Emit(ir.LoadTable{Dst: dst, Table: name, Index: index})
	b.fail(b.j.add(value{reg: dst, typ: b.result}))
}

// Arm lowers the outcome of arm i with its binding in scope.
func (b *matchBuilder) Arm(i int) {
	if b.err != nil {
		return
	}
	l := b.l
	arm := b.m.Arms[i]
	l.PushScope()
	defer l.PopScope()
	if bind, ok := arm.Pattern.(*ast.BindPat); ok {
		v := l.AllocReg(bind.Name, l.fn.Info(b.x.reg).Width, b.x.typ.IsSigned())
		l.Emit(ir.Move{Dst: v, Src: b.x.reg})
		l.MapVar(bind.Name, &local{reg: v, typ: b.x.typ})
	}
	v, err := l.expr(arm.Body, b.j.hint())
	if err != nil {
		b.fail(err)
		return
	}
	b.fail(b.j.add(v))
}
