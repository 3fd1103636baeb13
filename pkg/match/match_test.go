package match

import (
	"testing"

	"github.com/raymyers/ralph816/pkg/ast"
	"github.com/raymyers/ralph816/pkg/config"
	"github.com/raymyers/ralph816/pkg/diag"
	"github.com/raymyers/ralph816/pkg/ir"
	"github.com/raymyers/ralph816/pkg/target"
)

var defaultOpts = OptionsFrom(config.Default())

func lit(v int) ast.Pattern                { return &ast.LitPat{Value: v} }
func rng(lo, hi int) ast.Pattern           { return &ast.RangePat{Lo: lo, Hi: hi, Inclusive: true} }
func wild() ast.Pattern                    { return &ast.WildPat{} }
func constArm(p ast.Pattern, v int) Arm    { return Arm{Pattern: p, Const: true, Value: v} }
func callArm(p ast.Pattern) Arm            { return Arm{Pattern: p} }

func u8Desc(arms ...Arm) *Desc {
	return &Desc{Decl: "f", Kind: ScrutInt, Width: target.W8, ResultW: target.W8, Arms: arms}
}

func TestCheck(t *testing.T) {
	color := &ast.Enum{Name: "Color", Variants: []string{"Red", "Green", "Blue"}}
	variant := func(v string) ast.Pattern { return &ast.VariantPat{Enum: "Color", Variant: v} }
	tests := []struct {
		name string
		desc *Desc
		code string
	}{
		{"int needs catch-all", u8Desc(constArm(rng(0, 255), 1)), diag.ErrNotExhaustive},
		{"int with wildcard", u8Desc(constArm(lit(1), 1), constArm(wild(), 0)), ""},
		{"int with binding", u8Desc(constArm(lit(1), 1), callArm(&ast.BindPat{Name: "n"})), ""},
		{"bool both", &Desc{Kind: ScrutBool, Width: target.W8, Arms: []Arm{constArm(lit(0), 0), constArm(lit(1), 1)}}, ""},
		{"bool one", &Desc{Kind: ScrutBool, Width: target.W8, Arms: []Arm{constArm(lit(1), 1)}}, diag.ErrNotExhaustive},
		{"enum all variants", &Desc{Kind: ScrutEnum, Enum: color, Width: target.W8, Arms: []Arm{
			constArm(variant("Red"), 0), constArm(&ast.OrPat{Alts: []ast.Pattern{variant("Green"), variant("Blue")}}, 1),
		}}, ""},
		{"enum missing variant", &Desc{Kind: ScrutEnum, Enum: color, Width: target.W8, Arms: []Arm{
			constArm(variant("Red"), 0), constArm(variant("Blue"), 1),
		}}, diag.ErrNotExhaustive},
		{"unknown variant", &Desc{Kind: ScrutEnum, Enum: color, Width: target.W8, Arms: []Arm{
			constArm(variant("Pink"), 0), constArm(wild(), 1),
		}}, diag.ErrUnknownName},
		{"pattern out of range", u8Desc(constArm(lit(300), 1), constArm(wild(), 0)), diag.ErrBranchTypes},
		{"no arms", u8Desc(), diag.ErrNotExhaustive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.desc)
			if got := diag.CodeOf(err); got != tt.code {
				t.Errorf("Check() code = %q, want %q (%v)", got, tt.code, err)
			}
		})
	}
}

func TestSelectStrategy(t *testing.T) {
	tests := []struct {
		name string
		desc *Desc
		want Strategy
	}{
		{
			"dense constants use a lookup table",
			u8Desc(constArm(lit(0), 10), constArm(lit(1), 11), constArm(lit(2), 12), constArm(lit(3), 13), constArm(wild(), 0)),
			LookupTable,
		},
		{
			"one non-constant outcome forces a jump table",
			u8Desc(constArm(lit(0), 10), callArm(lit(1)), constArm(lit(2), 12), constArm(lit(3), 13), constArm(wild(), 0)),
			JumpTable,
		},
		{
			"non-constant default reachable through the range check",
			u8Desc(constArm(lit(0), 10), constArm(lit(1), 11), constArm(lit(2), 12), callArm(wild())),
			JumpTable,
		},
		{
			"range with calls is a jump table",
			u8Desc(callArm(rng(0, 15)), callArm(wild())),
			JumpTable,
		},
		{
			"sparse values use a branch chain",
			u8Desc(constArm(lit(1), 1), constArm(lit(100), 2), constArm(lit(200), 3), constArm(wild(), 0)),
			BranchChain,
		},
		{
			"too few values use a branch chain",
			u8Desc(constArm(lit(1), 1), constArm(lit(2), 2), constArm(wild(), 0)),
			BranchChain,
		},
		{
			"or-pattern forces a branch chain",
			u8Desc(constArm(&ast.OrPat{Alts: []ast.Pattern{lit(0), lit(1)}}, 1), constArm(lit(2), 2), constArm(lit(3), 3), constArm(wild(), 0)),
			BranchChain,
		},
		{
			"only a catch-all",
			u8Desc(constArm(wild(), 0)),
			BranchChain,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Check(tt.desc); err != nil {
				t.Fatal(err)
			}
			plan := Select(tt.desc, defaultOpts)
			if plan.Strategy != tt.want {
				t.Errorf("strategy = %s, want %s", plan.Strategy, tt.want)
			}
		})
	}
}

func TestSelectFirstMatchOwnership(t *testing.T) {
	// 2..=5 overlaps 4; the earlier arm keeps 4.
	d := u8Desc(constArm(lit(4), 40), constArm(rng(2, 5), 25), constArm(wild(), 0))
	plan := Select(d, defaultOpts)
	if plan.Strategy != LookupTable {
		t.Fatalf("strategy = %s", plan.Strategy)
	}
	if plan.Min != 2 || len(plan.Owners) != 4 {
		t.Fatalf("table covers %d..+%d", plan.Min, len(plan.Owners))
	}
	want := []int{25, 25, 40, 25}
	for i, v := range want {
		if plan.Values[i] != v {
			t.Errorf("slot %d = %d, want %d", i, plan.Values[i], v)
		}
	}
	if !plan.RangeCheck {
		t.Error("partial coverage needs a range check")
	}
}

func TestFullEnumNeedsNoRangeCheck(t *testing.T) {
	e := &ast.Enum{Name: "Dir", Variants: []string{"N", "E", "S", "W"}}
	v := func(s string) ast.Pattern { return &ast.VariantPat{Enum: "Dir", Variant: s} }
	d := &Desc{Kind: ScrutEnum, Enum: e, Width: target.W8, ResultW: target.W8, Arms: []Arm{
		constArm(v("N"), 1), constArm(v("E"), 2), constArm(v("S"), 3), constArm(v("W"), 4),
	}}
	plan := Select(d, defaultOpts)
	if plan.Strategy != LookupTable || plan.RangeCheck {
		t.Errorf("plan = %s rangecheck=%v", plan, plan.RangeCheck)
	}
}

// --- emission, checked by interpreting the emitted graph ---

type op struct {
	kind    string
	cond    ir.Cond
	x       ir.VReg
	imm     int
	then    ir.BlockID
	els     ir.BlockID
	targets []ir.BlockID
	values  []int
	arm     int
}

type fakeBuilder struct {
	blocks  []*op
	cur     ir.BlockID
	indexes map[ir.VReg]int // index register -> base
	next    ir.VReg
}

func newFake() *fakeBuilder {
	f := &fakeBuilder{indexes: make(map[ir.VReg]int), next: 2}
	f.NewBlock("entry")
	return f
}

func (f *fakeBuilder) NewBlock(string) ir.BlockID {
	f.blocks = append(f.blocks, nil)
	return ir.BlockID(len(f.blocks) - 1)
}
func (f *fakeBuilder) SetBlock(id ir.BlockID) { f.cur = id }
func (f *fakeBuilder) set(o *op) {
	if f.blocks[f.cur] != nil {
		panic("block terminated twice")
	}
	f.blocks[f.cur] = o
}
func (f *fakeBuilder) Test(c ir.Cond, x ir.VReg, imm int, then, els ir.BlockID) {
	f.set(&op{kind: "test", cond: c, x: x, imm: imm, then: then, els: els})
}
func (f *fakeBuilder) Jump(target ir.BlockID) { f.set(&op{kind: "jump", then: target}) }
func (f *fakeBuilder) Index(x ir.VReg, base int) ir.VReg {
	v := f.next
	f.next++
	f.indexes[v] = base
	return v
}
func (f *fakeBuilder) JumpTable(idx ir.VReg, targets []ir.BlockID) {
	f.set(&op{kind: "jt", x: idx, targets: targets})
}
func (f *fakeBuilder) Lookup(values []int, idx ir.VReg) {
	f.set(&op{kind: "lookup", x: idx, values: values})
}
func (f *fakeBuilder) Arm(i int) { f.set(&op{kind: "arm", arm: i}) }

// run returns the outcome for scrutinee value v.
func (f *fakeBuilder) run(t *testing.T, d *Desc, v int) int {
	mask := d.Width.Mask()
	read := func(x ir.VReg) int {
		if base, ok := f.indexes[x]; ok {
			return (v - base) & mask
		}
		return v
	}
	id := ir.BlockID(0)
	for steps := 0; steps < 1000; steps++ {
		o := f.blocks[id]
		if o == nil {
			t.Fatalf("block %d has no terminator", id)
		}
		switch o.kind {
		case "test":
			if o.cond.Eval(read(o.x), o.imm) {
				id = o.then
			} else {
				id = o.els
			}
		case "jump":
			id = o.then
		case "jt":
			id = o.targets[read(o.x)]
		case "lookup":
			return o.values[read(o.x)]
		case "arm":
			return d.Arms[o.arm].Value
		}
	}
	t.Fatal("emitted graph loops")
	return 0
}

// firstMatch is the reference semantics.
func firstMatch(d *Desc, v int) int {
	var matches func(p ast.Pattern) bool
	matches = func(p ast.Pattern) bool {
		switch p := p.(type) {
		case *ast.WildPat, *ast.BindPat:
			return true
		case *ast.OrPat:
			for _, a := range p.Alts {
				if matches(a) {
					return true
				}
			}
			return false
		}
		lo, hi, _ := d.valueRange(p)
		return v >= lo && v <= hi
	}
	for _, arm := range d.Arms {
		if matches(arm.Pattern) {
			return arm.Value
		}
	}
	return -1
}

func TestEmitPreservesFirstMatch(t *testing.T) {
	// Give every arm a distinct value; Const decides the strategy.
	descs := map[string]*Desc{
		"lookup": u8Desc(constArm(lit(4), 1), constArm(rng(2, 9), 2), constArm(lit(3), 3), constArm(wild(), 4)),
		"jump":   u8Desc(constArm(lit(4), 1), Arm{Pattern: rng(2, 9), Value: 2}, constArm(lit(3), 3), constArm(wild(), 4)),
		"chain":  u8Desc(constArm(lit(4), 1), constArm(rng(20, 90), 2), constArm(lit(200), 3), constArm(wild(), 4)),
		"or": u8Desc(constArm(&ast.OrPat{Alts: []ast.Pattern{lit(7), rng(100, 120)}}, 1),
			constArm(rng(0, 50), 2), constArm(&ast.BindPat{Name: "n"}, 3)),
		"full range": u8Desc(Arm{Pattern: rng(0, 127), Value: 1}, Arm{Pattern: rng(128, 255), Value: 2}, Arm{Pattern: wild(), Value: 3}),
		"signed": {Decl: "f", Kind: ScrutInt, Width: target.W8, Signed: true, ResultW: target.W8, Arms: []Arm{
			constArm(rng(-3, -1), 1), constArm(lit(0), 2), constArm(rng(1, 2), 3), constArm(wild(), 4),
		}},
	}
	for name, d := range descs {
		t.Run(name, func(t *testing.T) {
			if err := Check(d); err != nil {
				t.Fatal(err)
			}
			plan := Select(d, defaultOpts)
			f := newFake()
			Emit(f, d, plan, 1)
			dmin, dmax := d.Domain()
			for v := dmin; v <= dmax; v++ {
				if got, want := f.run(t, d, v), firstMatch(d, v); got != want {
					t.Fatalf("%s: value %d -> %d, want %d", plan, v, got, want)
				}
			}
		})
	}
}

func TestScenarioRangeOfCallsIsJumpTable(t *testing.T) {
	// match x { 0..=15 => f(), _ => g() }
	d := u8Desc(callArm(rng(0, 15)), callArm(wild()))
	plan := Select(d, defaultOpts)
	if plan.Strategy != JumpTable {
		t.Fatalf("strategy = %s, want jump-table", plan.Strategy)
	}
	f := newFake()
	Emit(f, d, plan, 1)
	if f.blocks[0].kind != "test" || f.blocks[0].cond != ir.GE || f.blocks[0].imm != 16 {
		t.Errorf("expected a range check against 16, got %+v", f.blocks[0])
	}
}
