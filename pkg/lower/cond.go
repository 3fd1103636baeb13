package lower

import (
	"github.com/raymyers/ralph816/pkg/ast"
	"github.com/raymyers/ralph816/pkg/diag"
	"github.com/raymyers/ralph816/pkg/ir"
	"github.com/raymyers/ralph816/pkg/target"
)

// cond ends the current block with branches to t when e holds and to f
// otherwise. Logical operators short-circuit.
func (l *lowerer) cond(e ast.Expr, t, f ir.BlockID) error {
	switch e := e.(type) {
	case *ast.BoolLit:
		if e.Value {
			l.Jump(t)
		} else {
			l.Jump(f)
		}
		return nil
	case *ast.Unary:
		if e.Op == "!" {
			return l.cond(e.X, f, t)
		}
	case *ast.Binary:
		switch e.Op {
		case "&&":
			mid := l.NewBlock("and")
			if err := l.cond(e.L, mid, f); err != nil {
				return err
			}
			l.SetBlock(mid)
			return l.cond(e.R, t, f)
		case "||":
			mid := l.NewBlock("or")
			if err := l.cond(e.L, t, mid); err != nil {
				return err
			}
			l.SetBlock(mid)
			return l.cond(e.R, t, f)
		}
		if c, ok := compares[e.Op]; ok {
			lv, rv, swapped, err := l.operands(e, "")
			if err != nil || lv.typ == never || rv.typ == never {
				return err
			}
			if swapped {
				c = c.Swap()
			}
			l.branch(c, lv.reg, rv.operand(), t, f)
			return nil
		}
	}
	v, err := l.expr(e, ast.Bool)
	if err != nil || v.typ == never {
		return err
	}
	if v.typ != ast.Bool {
		return l.errorf(diag.KindType, diag.ErrBranchTypes, "condition is %s, not bool", v.typ)
	}
	l.branch(ir.NE, v.reg, ir.Imm(0), t, f)
	return nil
}

// condValue materializes a short-circuit expression as 0 or 1.
func (l *lowerer) condValue(e *ast.Binary) (value, error) {
	res := l.AllocReg("", target.W8, false)
	t := l.NewBlock("cond.true")
	f := l.NewBlock("cond.false")
	join := l.NewBlock("cond.end")
	if err := l.cond(e, t, f); err != nil {
		return value{}, err
	}
	l.SetBlock(t)
	l.Emit(ir.Const{Dst: res, Value: 1})
	l.Jump(join)
	l.SetBlock(f)
	l.Emit(ir.Const{Dst: res, Value: 0})
	l.Jump(join)
	l.SetBlock(join)
	return value{reg: res, typ: ast.Bool}, nil
}

// branch ends the current block with a two-way branch on x c y.
func (l *lowerer) branch(c ir.Cond, x ir.VReg, y ir.Value, then, els ir.BlockID) {
	c, x, y = l.compare(c, x, y)
	l.Terminate(ir.Branch{Cond: c, L: x, R: y, Then: then, Else: els})
}

// compare prepares operands for an unsigned comparison. Signed operands are
// biased by the sign bit, which maps signed order onto unsigned order.
func (l *lowerer) compare(c ir.Cond, x ir.VReg, y ir.Value) (ir.Cond, ir.VReg, ir.Value) {
	info := l.fn.Info(x)
	if !info.Signed || c == ir.EQ || c == ir.NE {
		return c, x, y
	}
	return c, l.bias(x), l.biasValue(y, info.Width)
}

func (l *lowerer) bias(x ir.VReg) ir.VReg {
	w := l.fn.Info(x).Width
	b := l.AllocReg("", w, false)
	l.Emit(ir.BinOp{Op: ir.Xor, Dst: b, L: x, R: ir.Imm(w.SignBit())})
	return b
}

func (l *lowerer) biasValue(y ir.Value, w target.Width) ir.Value {
	if y.IsImm {
		return ir.Imm((y.Imm ^ w.SignBit()) & w.Mask())
	}
	return ir.R(l.bias(y.Reg))
}

// join collects the values of the branches of a conditional expression.
type join struct {
	l    *lowerer
	blk  ir.BlockID
	want ast.Type
	typ  ast.Type
	res  ir.VReg
	set  bool
}

func (l *lowerer) newJoin(name string, want ast.Type) *join {
	return &join{l: l, blk: l.NewBlock(name), want: want}
}

// hint is the type later branches should produce.
func (j *join) hint() ast.Type {
	if j.set {
		return j.typ
	}
	return j.want
}

// add records v as the value of the branch being lowered and leaves it.
// Branches that do not complete contribute nothing.
func (j *join) add(v value) error {
	l := j.l
	if v.typ == never || l.Dead() {
		return nil
	}
	if !j.set {
		j.set = true
		j.typ = v.typ
		if v.typ != ast.Void {
			res, err := l.temp("", v.typ)
			if err != nil {
				return err
			}
			j.res = res
		}
	} else if v.typ != j.typ {
		return l.errorf(diag.KindType, diag.ErrBranchTypes, "branches have types %s and %s", j.typ, v.typ)
	}
	if j.res != 0 {
		l.Emit(ir.Move{Dst: j.res, Src: v.reg})
	}
	l.Jump(j.blk)
	return nil
}

// finish continues after the conditional and returns its value.
func (j *join) finish() value {
	j.l.SetBlock(j.blk)
	switch {
	case !j.set:
		j.l.MarkDead()
		return value{typ: never}
	case j.typ == ast.Void:
		return voidValue
	}
	return value{reg: j.res, typ: j.typ}
}

func (l *lowerer) ifExpr(e *ast.IfExpr, want ast.Type) (value, error) {
	then := l.NewBlock("if.then")
	els := l.NewBlock("if.else")
	j := l.newJoin("if.end", want)
	if err := l.cond(e.Cond, then, els); err != nil {
		return value{}, err
	}
	l.SetBlock(then)
	v, err := l.block(e.Then, want)
	if err != nil {
		return value{}, err
	}
	if err := j.add(v); err != nil {
		return value{}, err
	}
	l.SetBlock(els)
	v = voidValue
	if e.Else != nil {
		if v, err = l.expr(e.Else, j.hint()); err != nil {
			return value{}, err
		}
	}
	if err := j.add(v); err != nil {
		return value{}, err
	}
	return j.finish(), nil
}

func (l *lowerer) unary(e *ast.Unary, want ast.Type) (value, error) {
	if lit, ok := e.X.(*ast.IntLit); ok && (e.Op == "-" || e.Op == "~") {
		n := -lit.Value
		if e.Op == "~" {
			n = ^lit.Value
		}
		return l.constant(n, litType(lit, want))
	}
	x, err := l.expr(e.X, want)
	if err != nil || x.typ == never {
		return x, err
	}
	var k ir.UnKind
	switch e.Op {
	case "-", "~":
		if !x.typ.IsInteger() {
			return value{}, l.errorf(diag.KindType, diag.ErrBranchTypes, "operator %s on %s", e.Op, x.typ)
		}
		k = ir.Neg
		if e.Op == "~" {
			k = ir.Cpl
		}
	case "!":
		if x.typ != ast.Bool {
			return value{}, l.errorf(diag.KindType, diag.ErrBranchTypes, "operator ! on %s", x.typ)
		}
		k = ir.Not
	default:
		return value{}, l.errorf(diag.KindInput, diag.ErrMalformed, "unknown operator %s", e.Op)
	}
	info := l.fn.Info(x.reg)
	dst := l.AllocReg("", info.Width, x.typ.IsSigned())
	l.Emit(ir.UnOp{Op: k, Dst: dst, Src: x.reg})
	return value{reg: dst, typ: x.typ}, nil
}
