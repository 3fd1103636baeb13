package lower

import (
	"github.com/raymyers/ralph816/pkg/abi"
	"github.com/raymyers/ralph816/pkg/ast"
	"github.com/raymyers/ralph816/pkg/diag"
	"github.com/raymyers/ralph816/pkg/dispatch"
	"github.com/raymyers/ralph816/pkg/ir"
	"github.com/raymyers/ralph816/pkg/target"
)

// expr lowers e. want is the type the context expects, or empty; integer
// literals take it on.
func (l *lowerer) expr(e ast.Expr, want ast.Type) (value, error) {
	switch e := e.(type) {
	case *ast.IntLit:
		t := litType(e, want)
		if err := l.checkLit(e.Value, t); err != nil {
			return value{}, err
		}
		return l.constant(e.Value, t)
	case *ast.BoolLit:
		n := 0
		if e.Value {
			n = 1
		}
		return l.constant(n, ast.Bool)
	case *ast.Name:
		loc, err := l.lookup(e.Name)
		if err != nil {
			return value{}, err
		}
		if loc.global == nil {
			if l.pending[e.Name] == 0 {
				return value{reg: loc.reg, typ: loc.typ}, nil
			}
			v := l.AllocReg(e.Name, l.fn.Info(loc.reg).Width, loc.typ.IsSigned())
			l.Emit(ir.Move{Dst: v, Src: loc.reg})
			return value{reg: v, typ: loc.typ}, nil
		}
		v, err := l.temp(e.Name, loc.typ)
		if err != nil {
			return value{}, err
		}
		l.Emit(ir.Load{Dst: v, Addr: l.globalAddr(loc.global)})
		return value{reg: v, typ: loc.typ}, nil
	case *ast.Variant:
		n, err := l.variant(e.Enum, e.Variant)
		if err != nil {
			return value{}, err
		}
		return l.constant(n, ast.Type(e.Enum))
	case *ast.Binary:
		return l.binary(e, want)
	case *ast.Unary:
		return l.unary(e, want)
	case *ast.Call, *ast.MethodCall:
		vals, err := l.results(e)
		if err != nil {
			return value{}, err
		}
		if l.Dead() {
			return value{typ: never}, nil
		}
		if len(vals) == 0 {
			return voidValue, nil
		}
		return vals[0], nil
	case *ast.FieldExpr:
		ptr, slot, err := l.field(e)
		if err != nil {
			return value{}, err
		}
		v := l.AllocReg(e.Field, slot.Width, slot.Type.IsSigned())
		l.Emit(ir.Load{Dst: v, Addr: ir.Addr{Base: ptr, Offset: slot.Offset}})
		return value{reg: v, typ: slot.Type}, nil
	case *ast.IfExpr:
		return l.ifExpr(e, want)
	case *ast.BlockExpr:
		return l.block(e.Block, want)
	case *ast.LoopExpr:
		return l.loop(e.Loop, want)
	case *ast.Match:
		return l.match(e, want)
	case *ast.Cast:
		return l.cast(e)
	case *ast.Is:
		return l.is(e)
	case *ast.TagOf:
		tag, err := l.tag(e.X)
		if err != nil {
			return value{}, err
		}
		return value{reg: tag, typ: ast.U8}, nil
	}
	return value{}, l.errorf(diag.KindInput, diag.ErrMalformed, "unsupported expression %T", e)
}

// litType is the type an integer literal takes in context.
func litType(e *ast.IntLit, want ast.Type) ast.Type {
	if want.IsInteger() {
		return want
	}
	if e.Type == "" || (e.Type == ast.U8 && e.Value > 0xFF) {
		return ast.U16
	}
	return e.Type
}

func (l *lowerer) constant(n int, t ast.Type) (value, error) {
	v, err := l.temp("", t)
	if err != nil {
		return value{}, err
	}
	l.Emit(ir.Const{Dst: v, Value: n & l.fn.Info(v).Width.Mask()})
	return value{reg: v, typ: t}, nil
}

// checkLit rejects an integer constant that t cannot represent.
func (l *lowerer) checkLit(n int, t ast.Type) error {
	if !t.IsInteger() {
		return nil
	}
	w, ok := abi.TypeWidth(l.ctx.Unit, t)
	if !ok {
		return nil
	}
	lo, hi := 0, w.Mask()
	if t.IsSigned() {
		lo, hi = -w.SignBit(), w.SignBit()-1
	}
	if n < lo || n > hi {
		return l.errorf(diag.KindType, diag.ErrLiteralRange, "constant %d does not fit in %s", n, t)
	}
	return nil
}

func (l *lowerer) lookup(name string) (*local, error) {
	if loc, ok := l.LookupVar(name); ok {
		return loc, nil
	}
	if g := l.ctx.Unit.FindGlobal(name); g != nil {
		return &local{global: g, typ: g.Type}, nil
	}
	return nil, l.errorf(diag.KindType, diag.ErrUnknownName, "unknown name %s", name)
}

// globalAddr addresses a global absolutely in its own bank, long otherwise.
func (l *lowerer) globalAddr(g *ast.Global) ir.Addr {
	return ir.Addr{Symbol: g.Name, Fixed: g.Address, Far: g.Bank != l.sig.Bank}
}

func (l *lowerer) variant(enum, name string) (int, error) {
	en := l.ctx.Unit.FindEnum(enum)
	if en == nil {
		return 0, l.errorf(diag.KindType, diag.ErrUnknownName, "unknown enum %s", enum)
	}
	n, ok := en.VariantIndex(name)
	if !ok {
		return 0, l.errorf(diag.KindType, diag.ErrUnknownName, "enum %s has no variant %s", enum, name)
	}
	return n, nil
}

// field resolves a field access through a struct pointer.
func (l *lowerer) field(e *ast.FieldExpr) (ir.VReg, dispatch.FieldSlot, error) {
	p, err := l.expr(e.X, "")
	if err != nil {
		return 0, dispatch.FieldSlot{}, err
	}
	if !p.typ.IsPointer() || p.typ.IsDyn() {
		return 0, dispatch.FieldSlot{}, l.errorf(diag.KindType, diag.ErrUnknownName, "field %s of non-struct-pointer %s", e.Field, p.typ)
	}
	var layout *dispatch.Layout
	if l.ctx.Dispatch != nil {
		layout = l.ctx.Dispatch.Layout(p.typ.Pointee())
	}
	if layout == nil {
		return 0, dispatch.FieldSlot{}, l.errorf(diag.KindType, diag.ErrUnknownName, "unknown struct %s", p.typ.Pointee())
	}
	slot, ok := layout.Field(e.Field)
	if !ok {
		return 0, dispatch.FieldSlot{}, l.errorf(diag.KindType, diag.ErrUnknownName, "%s has no field %s", layout.Type, e.Field)
	}
	return p.reg, slot, nil
}

// tag loads the hidden tag byte of a polymorphic reference.
func (l *lowerer) tag(x ast.Expr) (ir.VReg, error) {
	p, err := l.expr(x, "")
	if err != nil {
		return 0, err
	}
	if !p.typ.IsDyn() {
		return 0, l.errorf(diag.KindType, diag.ErrBranchTypes, "tag of %s, which is not a polymorphic reference", p.typ)
	}
	t := l.AllocReg("tag", target.W8, false)
	l.Emit(ir.Load{Dst: t, Addr: ir.Addr{Base: p.reg}})
	return t, nil
}

func (l *lowerer) is(e *ast.Is) (value, error) {
	t, err := l.tag(e.X)
	if err != nil {
		return value{}, err
	}
	if l.ctx.Unit.FindStruct(e.Type) == nil {
		return value{}, l.errorf(diag.KindType, diag.ErrUnknownName, "unknown type %s", e.Type)
	}
	tag, ok := l.ctx.Tags.Tag(e.Type)
	if !ok {
		// A type without a tag implements nothing and can never be referenced.
		return l.constant(0, ast.Bool)
	}
	res := l.AllocReg("is", target.W8, false)
	l.Emit(ir.SetCond{Cond: ir.EQ, Dst: res, L: t, R: ir.Imm(tag)})
	return value{reg: res, typ: ast.Bool}, nil
}

func (l *lowerer) cast(e *ast.Cast) (value, error) {
	x, err := l.expr(e.X, e.Type)
	if err != nil || x.typ == never {
		return x, err
	}
	to, err := l.width(e.Type)
	if err != nil {
		return value{}, err
	}
	if !e.Type.IsInteger() && e.Type != ast.Bool {
		return value{}, l.errorf(diag.KindType, diag.ErrBranchTypes, "cannot cast to %s", e.Type)
	}
	if x.typ.IsPointer() && !(e.Type == ast.U16 || e.Type == ast.I16) {
		return value{}, l.errorf(diag.KindType, diag.ErrBranchTypes, "cannot cast %s to %s", x.typ, e.Type)
	}
	v := l.AllocReg("", to, e.Type.IsSigned())
	if l.fn.Info(x.reg).Width == to {
		l.Emit(ir.Move{Dst: v, Src: x.reg})
	} else {
		l.Emit(ir.Convert{Dst: v, Src: x.reg, Signed: x.typ.IsSigned()})
	}
	return value{reg: v, typ: e.Type}, nil
}

var arith = map[string]ir.BinKind{
	"+": ir.Add, "-": ir.Sub, "&": ir.And, "|": ir.Or, "^": ir.Xor, "<<": ir.Shl, ">>": ir.Shr,
}

var compares = map[string]ir.Cond{
	"==": ir.EQ, "!=": ir.NE, "<": ir.LT, "<=": ir.LE, ">": ir.GT, ">=": ir.GE,
}

// helpers maps operators lowered to runtime calls; signed variants get an
// "s" prefix.
var helpers = map[string]string{"*": "mul", "/": "div", "%": "mod"}

func (l *lowerer) binary(e *ast.Binary, want ast.Type) (value, error) {
	if e.Op == "&&" || e.Op == "||" {
		return l.condValue(e)
	}
	if c, ok := compares[e.Op]; ok {
		lv, rv, swapped, err := l.operands(e, "")
		if err != nil || lv.typ == never || rv.typ == never {
			return value{typ: never}, err
		}
		if swapped {
			c = c.Swap()
		}
		cond, x, y := l.compare(c, lv.reg, rv.operand())
		res := l.AllocReg("", target.W8, false)
		l.Emit(ir.SetCond{Cond: cond, Dst: res, L: x, R: y})
		return value{reg: res, typ: ast.Bool}, nil
	}

	if a, b, ok := literals(e); ok {
		if n, ok := fold(e.Op, a.Value, b.Value); ok {
			t := litType(a, want)
			if err := l.checkLit(n, t); err != nil {
				return value{}, err
			}
			return l.constant(n, t)
		}
	}

	lv, rv, _, err := l.operands(e, want)
	if err != nil || lv.typ == never || rv.typ == never {
		return value{typ: never}, err
	}
	t := lv.typ
	kind, isArith := arith[e.Op]
	helper, isHelper := helpers[e.Op]
	switch {
	case !isArith && !isHelper:
		return value{}, l.errorf(diag.KindInput, diag.ErrMalformed, "unknown operator %s", e.Op)
	case t == ast.Bool && (kind == ir.And || kind == ir.Or || kind == ir.Xor) && isArith:
	case !t.IsInteger():
		return value{}, l.errorf(diag.KindType, diag.ErrBranchTypes, "operator %s on %s", e.Op, t)
	}
	w, err := l.width(t)
	if err != nil {
		return value{}, err
	}

	shift := isArith && (kind == ir.Shl || kind == ir.Shr)
	if shift && kind == ir.Shr && t.IsSigned() {
		kind, helper = ir.Sar, "sar"
	} else if shift {
		helper = kind.String()
	}
	if shift && !rv.isImm {
		isHelper = true
	}
	if isHelper {
		if t.IsSigned() && (helper == "div" || helper == "mod") {
			helper = "s" + helper
		}
		r, err := l.materialize(rv, t)
		if err != nil {
			return value{}, err
		}
		vals := l.emitCall(abi.Helper(helper, w, l.sig.Bank), []value{lv.value, r}, nil)
		vals[0].typ = t
		return vals[0], nil
	}

	dst := l.AllocReg("", w, t.IsSigned())
	if shift && rv.imm >= int(w)*8 {
		if kind != ir.Sar {
			l.Emit(ir.Const{Dst: dst, Value: 0})
			return value{reg: dst, typ: t}, nil
		}
		rv.imm = int(w)*8 - 1
	}
	l.Emit(ir.BinOp{Op: kind, Dst: dst, L: lv.reg, R: rv.operand()})
	return value{reg: dst, typ: t}, nil
}

// operand is a lowered binary operand: a register value or an immediate
// taken from a literal.
type operand struct {
	value
	isImm bool
	imm   int
}

func (o operand) operand() ir.Value {
	if o.isImm {
		return ir.Imm(o.imm)
	}
	return ir.R(o.reg)
}

func (l *lowerer) materialize(o operand, t ast.Type) (value, error) {
	if !o.isImm {
		return o.value, nil
	}
	return l.constant(o.imm, t)
}

func literals(e *ast.Binary) (*ast.IntLit, *ast.IntLit, bool) {
	a, ok1 := e.L.(*ast.IntLit)
	b, ok2 := e.R.(*ast.IntLit)
	return a, b, ok1 && ok2
}

func fold(op string, a, b int) (int, bool) {
	switch op {
	case "+":
		return a + b, true
	case "-":
		return a - b, true
	case "&":
		return a & b, true
	case "|":
		return a | b, true
	case "^":
		return a ^ b, true
	case "<<":
		return a << uint(b), true
	case "*":
		return a * b, true
	}
	return 0, false
}

// operands lowers both sides of a binary expression. A literal operand takes
// the type of the other side and becomes an immediate on the right. A
// literal on the left is moved to the right for commutative operators and
// comparisons, reported by swapped. Operand types must agree. The left
// side is read before the right side runs.
func (l *lowerer) operands(e *ast.Binary, want ast.Type) (lv, rv operand, swapped bool, err error) {
	_, cmp := compares[e.Op]
	kind, isArith := arith[e.Op]

	if lit, ok := e.R.(*ast.IntLit); ok {
		v, err := l.expr(e.L, want)
		if err != nil || v.typ == never {
			return operand{value: v}, operand{value: v}, false, err
		}
		r, err := l.immediate(lit, v.typ)
		return operand{value: v}, r, false, err
	}
	if lit, ok := e.L.(*ast.IntLit); ok {
		v, err := l.expr(e.R, want)
		if err != nil || v.typ == never {
			return operand{value: v}, operand{value: v}, false, err
		}
		if cmp || (isArith && kind.Commutative()) {
			r, err := l.immediate(lit, v.typ)
			return operand{value: v}, r, true, err
		}
		t := litType(lit, v.typ)
		if err := l.checkLit(lit.Value, t); err != nil {
			return operand{}, operand{}, false, err
		}
		c, err := l.constant(lit.Value, t)
		return operand{value: c}, operand{value: v}, false, err
	}

	release := l.guard(e.R)
	a, err := l.expr(e.L, want)
	release()
	if err != nil || a.typ == never {
		return operand{value: a}, operand{value: a}, false, err
	}
	b, err := l.expr(e.R, a.typ)
	if err != nil || b.typ == never {
		return operand{value: b}, operand{value: b}, false, err
	}
	if a.typ != b.typ {
		return operand{}, operand{}, false, l.errorf(diag.KindType, diag.ErrBranchTypes, "operands of %s are %s and %s", e.Op, a.typ, b.typ)
	}
	return operand{value: a}, operand{value: b}, false, nil
}

func (l *lowerer) immediate(lit *ast.IntLit, t ast.Type) (operand, error) {
	if err := l.checkLit(lit.Value, t); err != nil {
		return operand{}, err
	}
	w, ok := abi.TypeWidth(l.ctx.Unit, t)
	if !ok {
		w = target.W16
	}
	return operand{value: value{typ: t}, isImm: true, imm: lit.Value & w.Mask()}, nil
}
