package lower

import (
	"strings"
	"testing"

	"github.com/raymyers/ralph816/pkg/abi"
	"github.com/raymyers/ralph816/pkg/ast"
	"github.com/raymyers/ralph816/pkg/config"
	"github.com/raymyers/ralph816/pkg/diag"
	"github.com/raymyers/ralph816/pkg/dispatch"
	"github.com/raymyers/ralph816/pkg/ir"
	"github.com/raymyers/ralph816/pkg/target"
)

func setup(t *testing.T, src string) *Context {
	t.Helper()
	u, err := ast.ParseUnit([]byte(src))
	if err != nil {
		t.Fatalf("ParseUnit: %v", err)
	}
	sigs := make(map[string]*abi.Signature)
	for _, fn := range u.Functions {
		sig, err := abi.Resolve(fn, u)
		if err != nil {
			t.Fatalf("Resolve %s: %v", fn.Name, err)
		}
		sigs[fn.Name] = sig
	}
	for _, impl := range u.Impls {
		for _, fn := range impl.Methods {
			sym := ast.MethodSymbol(impl.Type, impl.Trait, fn.Name)
			sig, err := abi.ResolveAs(sym, fn, u)
			if err != nil {
				t.Fatalf("Resolve %s: %v", sym, err)
			}
			sigs[sym] = sig
		}
	}
	tags := dispatch.NewContext(255)
	res, err := dispatch.Build(u, tags)
	if err != nil {
		t.Fatalf("dispatch.Build: %v", err)
	}
	return &Context{Unit: u, Sigs: sigs, Dispatch: res, Tags: tags, Config: config.Default()}
}

func lowerFn(t *testing.T, ctx *Context, name string) (*ir.Function, error) {
	t.Helper()
	fn := ctx.Unit.FindFunction(name)
	if fn == nil {
		t.Fatalf("no function %s", name)
	}
	return Function(ctx, fn, ctx.Sigs[name])
}

func mustLower(t *testing.T, src, name string) *ir.Function {
	t.Helper()
	fn, err := lowerFn(t, setup(t, src), name)
	if err != nil {
		t.Fatalf("lowering %s: %v", name, err)
	}
	return fn
}

func instrs[T ir.Instr](fn *ir.Function) []T {
	var out []T
	for _, b := range fn.Blocks {
		for _, i := range b.Instrs {
			if v, ok := i.(T); ok {
				out = append(out, v)
			}
		}
	}
	return out
}

const ifUnit = `
functions:
  - name: pick
    params:
      - {name: a, type: u8, reg: a}
    returns:
      - {type: u8, reg: a}
    body:
      - let: {name: r, type: u8, init: {int: 0}}
      - if:
          cond: {binary: {op: "==", l: {name: a}, r: {int: 0}}}
          then:
            - assign: {target: {name: r}, value: {int: 1}}
          else:
            - assign: {target: {name: r}, value: {int: 2}}
      - tail: {name: r}
`

func TestIfFallsIntoThen(t *testing.T) {
	fn := mustLower(t, ifUnit, "pick")
	if len(fn.Blocks) != 4 {
		t.Fatalf("got %d blocks, want 4:\n%s", len(fn.Blocks), dump(fn))
	}
	br, ok := fn.Blocks[0].Term.(ir.Branch)
	if !ok {
		t.Fatalf("entry ends with %T", fn.Blocks[0].Term)
	}
	if br.Then != 1 || br.Else != 2 || br.Cond != ir.EQ {
		t.Errorf("entry branch = %+v, want then b1 else b2", br)
	}
	ret, ok := fn.Blocks[3].Term.(ir.Return)
	if !ok || len(ret.Values) != 1 {
		t.Fatalf("join ends with %+v", fn.Blocks[3].Term)
	}
	if loc := fn.Info(ret.Values[0]).Fixed; loc == nil || loc.Reg != target.A {
		t.Errorf("return value not pinned to a: %+v", loc)
	}
	if fn.Info(fn.Blocks[0].Instrs[0].Defs()[0]).Fixed == nil {
		t.Error("parameter a not defined by Params in the entry block")
	}
}

func dump(fn *ir.Function) string {
	var sb strings.Builder
	ir.NewPrinter(&sb).PrintFunction(fn)
	return sb.String()
}

func TestLoweringErrors(t *testing.T) {
	tests := []struct {
		name string
		fn   string
		code string
	}{
		{"break outside loop in dead code", `
  - name: f
    body:
      - return: []
      - break: {}
`, diag.ErrBreakOutsideLoop},
		{"continue to unknown label", `
  - name: f
    body:
      - loop:
          label: outer
          body:
            - loop:
                - continue: {label: inner}
`, diag.ErrUnknownLabel},
		{"mixed break values", `
  - name: f
    returns:
      - {type: u8, reg: a}
    body:
      - tail:
          loop:
            - if:
                cond: {bool: true}
                then:
                  - break: {value: {int: 1}}
            - break: {}
`, diag.ErrBreakValue},
		{"break values disagree", `
  - name: f
    body:
      - let:
          name: v
          init:
            loop:
              - if:
                  cond: {bool: true}
                  then:
                    - break: {value: {int: 1}}
              - break: {value: {bool: true}}
`, diag.ErrBranchTypes},
		{"while cannot break with a value", `
  - name: f
    body:
      - while:
          cond: {bool: true}
          body:
            - break: {value: {int: 1}}
`, diag.ErrBreakValue},
		{"if branches disagree", `
  - name: f
    params:
      - {name: c, type: bool, reg: a}
    returns:
      - {type: u8, reg: a}
    body:
      - tail:
          if:
            cond: {name: c}
            then:
              - tail: {int: 1}
            else:
              - tail: {bool: false}
`, diag.ErrBranchTypes},
		{"missing return", `
  - name: f
    params:
      - {name: c, type: bool, reg: a}
    returns:
      - {type: u8, reg: a}
    body:
      - if:
          cond: {name: c}
          then:
            - return: {int: 1}
`, diag.ErrMissingReturn},
		{"too many return values", `
  - name: f
    returns:
      - {type: u8, reg: a}
    body:
      - return: [{int: 1}, {int: 2}]
`, diag.ErrReturnArity},
		{"no-return fallthrough", `
  - name: f
    noreturn: true
    body: []
`, diag.ErrNoReturnFallthrough},
		{"no-return function returns", `
  - name: f
    noreturn: true
    body:
      - return: []
`, diag.ErrNoReturnFallthrough},
		{"unknown name", `
  - name: f
    body:
      - expr: {name: nope}
`, diag.ErrUnknownName},
		{"non-exhaustive match", `
  - name: f
    params:
      - {name: v, type: u8, reg: a}
    body:
      - expr:
          match:
            scrutinee: {name: v}
            arms:
              - {pattern: 1, body: {int: 0}}
`, diag.ErrNotExhaustive},
		{"operand types disagree", `
  - name: f
    params:
      - {name: v, type: u8, reg: a}
      - {name: w, type: u16, reg: x}
    body:
      - expr: {binary: {op: "+", l: {name: v}, r: {name: w}}}
`, diag.ErrBranchTypes},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := setup(t, "functions:"+tt.fn)
			_, err := lowerFn(t, ctx, "f")
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := diag.CodeOf(err); got != tt.code {
				t.Errorf("code = %s, want %s (%v)", got, tt.code, err)
			}
		})
	}
}

func TestNoReturnLoopIsAccepted(t *testing.T) {
	fn := mustLower(t, `
functions:
  - name: spin
    noreturn: true
    body:
      - loop: []
`, "spin")
	for _, b := range fn.Blocks {
		if _, ok := b.Term.(ir.Return); ok {
			t.Errorf("no-return function has a reachable return in %s", b.Name)
		}
	}
}

func TestLoopValueFromBreak(t *testing.T) {
	fn := mustLower(t, `
functions:
  - name: f
    params:
      - {name: n, type: u8, reg: a}
    returns:
      - {type: u8, reg: a}
    body:
      - tail:
          loop:
            - if:
                cond: {binary: {op: ">", l: {name: n}, r: {int: 9}}}
                then:
                  - break: {value: {name: n}}
            - assign: {target: {name: n}, value: {binary: {op: "+", l: {name: n}, r: {int: 1}}}}
`, "f")
	var rets int
	for _, b := range fn.Blocks {
		if _, ok := b.Term.(ir.Return); ok {
			rets++
		}
	}
	if rets != 1 {
		t.Errorf("got %d returns, want 1:\n%s", rets, dump(fn))
	}
}

func TestMatchBuildsLookupTable(t *testing.T) {
	fn := mustLower(t, `
functions:
  - name: f
    params:
      - {name: v, type: u8, reg: a}
    returns:
      - {type: u8, reg: a}
    body:
      - tail:
          match:
            scrutinee: {name: v}
            arms:
              - {pattern: 0, body: {int: 10}}
              - {pattern: 1, body: {int: 20}}
              - {pattern: 2, body: {int: 30}}
              - {pattern: 3, body: {int: 40}}
              - {pattern: _, body: {int: 0}}
`, "f")
	if len(fn.Tables) != 1 || fn.Tables[0].Name != "f_match1" {
		t.Fatalf("tables = %+v", fn.Tables)
	}
	want := []int{10, 20, 30, 40}
	for i, v := range want {
		if fn.Tables[0].Values[i] != v {
			t.Errorf("table[%d] = %d, want %d", i, fn.Tables[0].Values[i], v)
		}
	}
	if len(instrs[ir.LoadTable](fn)) != 1 {
		t.Error("no LoadTable emitted")
	}
}

func TestMatchOnCallsUsesJumpTable(t *testing.T) {
	fn := mustLower(t, `
functions:
  - name: g
    returns:
      - {type: u8, reg: a}
    body:
      - tail: {int: 1}
  - name: f
    params:
      - {name: v, type: u8, reg: a}
    body:
      - expr:
          match:
            scrutinee: {name: v}
            arms:
              - {pattern: 0, body: {call: {func: g}}}
              - {pattern: 1, body: {call: {func: g}}}
              - {pattern: 2, body: {call: {func: g}}}
              - {pattern: _, body: {int: 0}}
`, "f")
	found := false
	for _, b := range fn.Blocks {
		if jt, ok := b.Term.(ir.JumpTable); ok {
			found = true
			if len(jt.Targets) != 3 {
				t.Errorf("jump table has %d targets, want 3", len(jt.Targets))
			}
		}
	}
	if !found {
		t.Errorf("no jump table:\n%s", dump(fn))
	}
}

const callUnit = `
functions:
  - name: plot
    params:
      - {name: depth, type: u8, stack: true}
      - {name: pos, type: u16, reg: x}
      - {name: c, type: u8, reg: a}
    returns:
      - {type: u8, reg: a}
    body:
      - tail: {name: c}
  - name: caller
    body:
      - expr:
          call:
            func: plot
            args: [{int: 2}, {int: 0x1234}, {int: 7}]
`

func TestCallPinsArguments(t *testing.T) {
	fn := mustLower(t, callUnit, "caller")
	pushes := instrs[ir.Push](fn)
	if len(pushes) != 1 {
		t.Fatalf("got %d pushes, want 1", len(pushes))
	}
	calls := instrs[ir.Call](fn)
	if len(calls) != 1 {
		t.Fatalf("got %d calls", len(calls))
	}
	c := calls[0]
	if c.Func != "plot" || c.StackBytes != 1 || len(c.Args) != 2 || len(c.Results) != 1 {
		t.Fatalf("call = %+v", c)
	}
	var regs []target.Reg
	for _, a := range c.Args {
		regs = append(regs, fn.Info(a).Fixed.Reg)
	}
	if !(regs[0] == target.X && regs[1] == target.A) {
		t.Errorf("argument registers = %v, want [x a]", regs)
	}
}

func TestHelperCalls(t *testing.T) {
	fn := mustLower(t, `
functions:
  - name: f
    params:
      - {name: a, type: u16, reg: x}
      - {name: b, type: i16, reg: y}
    returns:
      - {type: u16, reg: x}
    body:
      - let: {name: p, init: {binary: {op: "*", l: {name: a}, r: {name: a}}}}
      - let: {name: q, init: {binary: {op: "/", l: {name: b}, r: {int: 3}}}}
      - let: {name: s, init: {binary: {op: "<<", l: {name: a}, r: {int: 2}}}}
      - tail: {name: p}
`, "f")
	var names []string
	for _, c := range instrs[ir.Call](fn) {
		names = append(names, c.Func)
	}
	if strings.Join(names, ",") != "__mul16,__sdiv16" {
		t.Errorf("helpers = %v", names)
	}
	var shifts int
	for _, op := range instrs[ir.BinOp](fn) {
		if op.Op == ir.Shl && op.R.IsImm && op.R.Imm == 2 {
			shifts++
		}
	}
	if shifts != 1 {
		t.Error("constant shift not lowered inline")
	}
}

func TestSignedCompareIsBiased(t *testing.T) {
	fn := mustLower(t, `
functions:
  - name: f
    params:
      - {name: v, type: i8, reg: a}
    returns:
      - {type: bool, reg: a}
    body:
      - tail: {binary: {op: "<", l: {name: v}, r: {int: -1}}}
`, "f")
	sc := instrs[ir.SetCond](fn)
	if len(sc) != 1 {
		t.Fatalf("got %d SetCond", len(sc))
	}
	if !sc[0].R.IsImm || sc[0].R.Imm != 0x7F {
		t.Errorf("biased immediate = %+v, want #$7F", sc[0].R)
	}
	xors := 0
	for _, op := range instrs[ir.BinOp](fn) {
		if op.Op == ir.Xor && op.R.Imm == 0x80 {
			xors++
		}
	}
	if xors != 1 {
		t.Errorf("left operand not biased:\n%s", dump(fn))
	}
}

func TestForLoopHintsIndexRegisters(t *testing.T) {
	fn := mustLower(t, `
globals:
  - {name: sum, type: u8, address: 0x300}
functions:
  - name: f
    body:
      - for:
          var: i
          from: {int: 0}
          to: {int: 4}
          body:
            - for:
                var: j
                from: {int: 0}
                to: {int: 4}
                inclusive: true
                body:
                  - assign: {target: {name: sum}, value: {name: j}}
`, "f")
	hints := map[string]target.Reg{}
	for _, info := range fn.VRegs {
		if info.Name == "i" || info.Name == "j" {
			hints[info.Name] = info.Hint
		}
	}
	if hints["i"] != target.X || hints["j"] != target.Y {
		t.Errorf("hints = %v, want i:x j:y", hints)
	}
	steps := 0
	for _, op := range instrs[ir.BinOp](fn) {
		if op.Op == ir.Add && op.NoWrap && op.Dst == op.L {
			steps++
		}
	}
	if steps != 2 {
		t.Errorf("got %d in-place steps, want 2", steps)
	}
	if len(instrs[ir.Store](fn)) != 1 {
		t.Error("store to the global missing")
	}
}

const dispatchUnit = `
structs:
  - name: Ship
    fields:
      - {name: x, type: u8}
  - name: Rock
traits:
  - name: Draw
    methods:
      - name: draw
        params:
          - {name: frame, type: u8, reg: a}
impls:
  - trait: Draw
    type: Ship
    methods:
      - name: draw
        params:
          - {name: self, type: "&Ship", reg: y}
          - {name: frame, type: u8, reg: a}
        body: []
  - trait: Draw
    type: Rock
    methods:
      - name: draw
        bank: BANK
        params:
          - {name: self, type: "&Rock", reg: y}
          - {name: frame, type: u8, reg: a}
        body: []
functions:
  - name: render
    params:
      - {name: obj, type: "&dyn Draw", reg: x}
    returns:
      - {type: bool, reg: a}
    body:
      - expr:
          method: {recv: {name: obj}, trait: Draw, method: draw, args: [{int: 3}]}
      - tail: {is: {x: {name: obj}, type: Ship}}
  - name: move
    params:
      - {name: s, type: "&Ship", reg: x}
    body:
      - assign:
          target: {field: {x: {name: s}, field: x}}
          value: {binary: {op: "+", l: {field: {x: {name: s}, field: x}}, r: {int: 1}}}
      - expr:
          method: {recv: {name: s}, trait: Draw, method: draw, args: [{int: 0}]}
`

func TestDispatchCall(t *testing.T) {
	fn := mustLower(t, strings.Replace(dispatchUnit, "BANK", "0", 1), "render")
	ds := instrs[ir.Dispatch](fn)
	if len(ds) != 1 {
		t.Fatalf("got %d dispatches", len(ds))
	}
	d := ds[0]
	if d.Table != "__vt_Draw_draw" || d.Far || d.EntryWidth != dispatch.NearEntryWidth {
		t.Errorf("dispatch = %+v", d)
	}
	if loc := fn.Info(d.Object).Fixed; loc == nil || loc.Reg != target.Y {
		t.Errorf("receiver not in y: %+v", loc)
	}
	if len(d.Args) != 1 || fn.Info(d.Args[0]).Fixed.Reg != target.A {
		t.Errorf("dispatch args = %v", d.Args)
	}
	sc := instrs[ir.SetCond](fn)
	if len(sc) != 1 || sc[0].R.Imm != 1 {
		t.Errorf("is Ship should compare the tag with 1: %+v", sc)
	}
}

func TestStaticMethodCallAndFields(t *testing.T) {
	fn := mustLower(t, strings.Replace(dispatchUnit, "BANK", "0", 1), "move")
	calls := instrs[ir.Call](fn)
	if len(calls) != 1 || calls[0].Func != "Ship__Draw__draw" {
		t.Fatalf("calls = %+v", calls)
	}
	loads := instrs[ir.Load](fn)
	stores := instrs[ir.Store](fn)
	if len(loads) != 1 || len(stores) != 1 {
		t.Fatalf("loads %d stores %d", len(loads), len(stores))
	}
	// The tag occupies offset 0 of a tagged struct.
	if loads[0].Addr.Offset != 1 || stores[0].Addr.Offset != 1 {
		t.Errorf("field offset = %d/%d, want 1", loads[0].Addr.Offset, stores[0].Addr.Offset)
	}
}

func TestNearDispatchAcrossBanks(t *testing.T) {
	ctx := setup(t, strings.Replace(dispatchUnit, "BANK", "2", 1))
	_, err := lowerFn(t, ctx, "render")
	if diag.CodeOf(err) != diag.ErrCrossBankCall {
		t.Errorf("err = %v, want a cross-bank error", err)
	}
}

func TestShortCircuit(t *testing.T) {
	fn := mustLower(t, `
functions:
  - name: f
    params:
      - {name: a, type: u8, reg: a}
      - {name: b, type: u8, reg: b}
    returns:
      - {type: u8, reg: a}
    body:
      - if:
          cond:
            binary:
              op: "&&"
              l: {binary: {op: "==", l: {name: a}, r: {int: 1}}}
              r: {binary: {op: "==", l: {name: b}, r: {int: 2}}}
          then:
            - return: {int: 1}
      - tail: {int: 0}
`, "f")
	branches := 0
	for _, b := range fn.Blocks {
		if _, ok := b.Term.(ir.Branch); ok {
			branches++
		}
	}
	if branches != 2 {
		t.Errorf("got %d branches, want 2:\n%s", branches, dump(fn))
	}
	if len(instrs[ir.SetCond](fn)) != 0 {
		t.Error("condition materialized instead of branching")
	}
}

// storeOf returns the Move that stores the constant n into a local.
func storeOf(t *testing.T, fn *ir.Function, n int) ir.Move {
	t.Helper()
	for _, c := range instrs[ir.Const](fn) {
		if c.Value != n {
			continue
		}
		for _, m := range instrs[ir.Move](fn) {
			if m.Src == c.Dst {
				return m
			}
		}
	}
	t.Fatalf("no store of %d:\n%s", n, dump(fn))
	return ir.Move{}
}

func TestOperandReadBeforeLaterAssignment(t *testing.T) {
	fn := mustLower(t, `
functions:
  - name: f
    params:
      - {name: a, type: u8, reg: a}
    returns:
      - {type: u8, reg: a}
    body:
      - let: {name: x, type: u8, init: {int: 1}}
      - tail:
          binary:
            op: "+"
            l: {name: x}
            r:
              block:
                - assign: {target: {name: x}, value: {int: 5}}
                - tail: {name: a}
`, "f")
	x := storeOf(t, fn, 5).Dst
	var add *ir.BinOp
	for _, op := range instrs[ir.BinOp](fn) {
		if op.Op == ir.Add {
			add = &op
		}
	}
	if add == nil {
		t.Fatalf("no add:\n%s", dump(fn))
	}
	if add.L == x {
		t.Fatalf("left operand reads x after the right side stored to it:\n%s", dump(fn))
	}
	copied := false
	for _, m := range instrs[ir.Move](fn) {
		if m.Dst == add.L && m.Src == x {
			copied = true
		}
	}
	if !copied {
		t.Errorf("left operand is not a copy of x:\n%s", dump(fn))
	}
}

func TestArgumentReadBeforeLaterAssignment(t *testing.T) {
	fn := mustLower(t, `
functions:
  - name: g
    params:
      - {name: p, type: u8, reg: a}
      - {name: q, type: u8, reg: b}
  - name: f
    body:
      - let: {name: x, type: u8, init: {int: 1}}
      - expr:
          call:
            func: g
            args:
              - {name: x}
              - block:
                  - assign: {target: {name: x}, value: {int: 5}}
                  - tail: {int: 0}
`, "f")
	x := storeOf(t, fn, 5).Dst
	calls := instrs[ir.Call](fn)
	if len(calls) != 1 || len(calls[0].Args) != 2 {
		t.Fatalf("calls = %+v", calls)
	}
	for _, m := range instrs[ir.Move](fn) {
		if m.Dst == calls[0].Args[0] && m.Src == x {
			t.Errorf("first argument passes x after the second stored to it:\n%s", dump(fn))
		}
	}
}

func TestUnassignedOperandIsNotCopied(t *testing.T) {
	fn := mustLower(t, `
functions:
  - name: f
    params:
      - {name: a, type: u8, reg: a}
      - {name: b, type: u8, reg: b}
    returns:
      - {type: u8, reg: a}
    body:
      - tail: {binary: {op: "+", l: {name: a}, r: {name: b}}}
`, "f")
	// Two parameter copies and the return copy.
	if n := len(instrs[ir.Move](fn)); n != 3 {
		t.Errorf("got %d moves, want 3:\n%s", n, dump(fn))
	}
}

func TestMatchBindingIsACopy(t *testing.T) {
	fn := mustLower(t, `
functions:
  - name: f
    params:
      - {name: v, type: u8, reg: a}
    returns:
      - {type: u8, reg: a}
    body:
      - tail:
          match:
            scrutinee: {name: v}
            arms:
              - {pattern: 0, body: {int: 1}}
              - pattern: {bind: n}
                body:
                  block:
                    - assign: {target: {name: n}, value: {int: 5}}
                    - tail: {name: n}
`, "f")
	dst := storeOf(t, fn, 5).Dst
	if name := fn.Info(dst).Name; name != "n" {
		t.Errorf("assignment to the binding stores into %q, want its own copy:\n%s", name, dump(fn))
	}
}

func TestElseIfChainSharesJoin(t *testing.T) {
	fn := mustLower(t, `
functions:
  - name: f
    params:
      - {name: a, type: u8, reg: a}
    returns:
      - {type: u8, reg: a}
    body:
      - let: {name: r, type: u8, init: {int: 0}}
      - if:
          cond: {binary: {op: "==", l: {name: a}, r: {int: 0}}}
          then:
            - assign: {target: {name: r}, value: {int: 1}}
          else:
            if:
              cond: {binary: {op: "==", l: {name: a}, r: {int: 1}}}
              then:
                - assign: {target: {name: r}, value: {int: 2}}
              else:
                - assign: {target: {name: r}, value: {int: 3}}
      - tail: {name: r}
`, "f")
	joins := 0
	for _, b := range fn.Blocks {
		if b.Name == "if.end" {
			joins++
		}
	}
	if joins != 1 {
		t.Errorf("got %d if.end blocks, want 1:\n%s", joins, dump(fn))
	}
	// entry, two thens, the else-if test, the final else and the join.
	if len(fn.Blocks) != 6 {
		t.Errorf("got %d blocks, want 6:\n%s", len(fn.Blocks), dump(fn))
	}
}

func TestLiteralOutOfRange(t *testing.T) {
	tests := []struct {
		name string
		fn   string
	}{
		{"let", `
  - name: f
    body:
      - let: {name: x, type: u8, init: {int: 300}}
`},
		{"negative unsigned", `
  - name: f
    body:
      - let: {name: x, type: u16, init: {int: -1}}
`},
		{"signed overflow", `
  - name: f
    body:
      - let: {name: x, type: i8, init: {int: 128}}
`},
		{"range bound", `
  - name: f
    body:
      - for:
          var: i
          type: u8
          from: {int: 0}
          to: {int: 256}
          body: []
`},
		{"immediate operand", `
  - name: f
    params:
      - {name: v, type: u8, reg: a}
    returns:
      - {type: bool, reg: a}
    body:
      - tail: {binary: {op: "<", l: {name: v}, r: {int: 300}}}
`},
		{"argument", `
  - name: g
    params:
      - {name: p, type: u8, reg: a}
  - name: f
    body:
      - expr: {call: {func: g, args: [{int: 256}]}}
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := lowerFn(t, setup(t, "functions:"+tt.fn), "f")
			if got := diag.CodeOf(err); got != diag.ErrLiteralRange {
				t.Errorf("code = %s, want %s (%v)", got, diag.ErrLiteralRange, err)
			}
		})
	}
}

func TestLiteralAtTypeLimits(t *testing.T) {
	mustLower(t, `
functions:
  - name: f
    body:
      - let: {name: a, type: u8, init: {int: 255}}
      - let: {name: b, type: i8, init: {int: -128}}
      - let: {name: c, type: i16, init: {int: 32767}}
      - let: {name: d, type: u16, init: {int: 0xFFFF}}
      - for:
          var: i
          type: u8
          from: {int: 0}
          to: {int: 255}
          inclusive: true
          body: []
`, "f")
}
