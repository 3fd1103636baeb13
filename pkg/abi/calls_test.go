package abi

import (
	"testing"

	"github.com/raymyers/ralph816/pkg/ast"
	"github.com/raymyers/ralph816/pkg/diag"
	"github.com/raymyers/ralph816/pkg/target"
)

func TestCheckCallsRejectsUnreachableCrossBankCall(t *testing.T) {
	helper := &ast.Function{Name: "helper", Bank: 2, Body: &ast.Block{}}
	caller := &ast.Function{
		Name: "main",
		Bank: 1,
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.ReturnStmt{},
			// Never executed, still illegal.
			&ast.ExprStmt{X: &ast.Call{Func: "helper"}},
		}},
	}
	sigs := map[string]*Signature{}
	for _, fn := range []*ast.Function{helper, caller} {
		sig, err := Resolve(fn, nil)
		if err != nil {
			t.Fatal(err)
		}
		sigs[fn.Name] = sig
	}
	err := CheckCalls(caller, sigs["main"], sigs)
	if diag.CodeOf(err) != diag.ErrCrossBankCall {
		t.Fatalf("err = %v, want cross-bank call error", err)
	}
}

func TestCheckCalls(t *testing.T) {
	sigs := map[string]*Signature{
		"near0": {Name: "near0", Bank: 0},
		"near1": {Name: "near1", Bank: 1},
		"far1":  {Name: "far1", Bank: 1, Far: true},
		"two":   {Name: "two", Bank: 0, Params: []ParamLoc{{Name: "p"}, {Name: "q"}}},
		"isr":   {Name: "isr", Bank: 0, Interrupt: "irq"},
	}
	caller := &Signature{Name: "main", Bank: 0}
	call := func(name string, nargs int) *ast.Function {
		args := make([]ast.Expr, nargs)
		for i := range args {
			args[i] = &ast.IntLit{Value: i}
		}
		// Nest the call inside a loop and a match to exercise the walker.
		body := &ast.Block{Stmts: []ast.Stmt{&ast.Loop{Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.ExprStmt{X: &ast.Match{Scrutinee: &ast.IntLit{}, Arms: []*ast.Arm{
				{Pattern: &ast.WildPat{}, Body: &ast.Call{Func: name, Args: args}},
			}}},
		}}}}}
		return &ast.Function{Name: "main", Body: body}
	}
	tests := []struct {
		callee string
		nargs  int
		code   string
	}{
		{"near0", 0, ""},
		{"far1", 0, ""},
		{"near1", 0, diag.ErrCrossBankCall},
		{"two", 1, diag.ErrArity},
		{"missing", 0, diag.ErrUnknownFunction},
		{"isr", 0, diag.ErrInterruptSignature},
	}
	for _, tt := range tests {
		t.Run(tt.callee, func(t *testing.T) {
			err := CheckCalls(call(tt.callee, tt.nargs), caller, sigs)
			if got := diag.CodeOf(err); got != tt.code {
				t.Errorf("code = %q, want %q (%v)", got, tt.code, err)
			}
		})
	}
}

func TestCheckScratch(t *testing.T) {
	plain := &Signature{Name: "plain"}
	keeps := &Signature{Name: "keeps", PreserveScratch: true}
	isr := &Signature{Name: "isr", Interrupt: "nmi", PreserveScratch: true}
	tests := []struct {
		caller, callee *Signature
		code           string
	}{
		{plain, plain, ""},
		{plain, keeps, ""},
		{keeps, keeps, ""},
		{keeps, plain, diag.ErrScratchCall},
		{isr, plain, diag.ErrScratchCall},
		{isr, keeps, ""},
		{keeps, Helper("mul", target.W8, 0), ""},
		{isr, Helper("sdiv", target.W16, 0), ""},
	}
	for _, tt := range tests {
		err := CheckCall(tt.caller, tt.callee)
		if got := diag.CodeOf(err); got != tt.code {
			t.Errorf("%s -> %s: code = %q, want %q (%v)", tt.caller.Name, tt.callee.Name, got, tt.code, err)
		}
	}
}

func TestInterruptHandlerCannotCallScratchUser(t *testing.T) {
	worker := &ast.Function{Name: "worker", Body: &ast.Block{}}
	isr := &ast.Function{
		Name:  "on_irq",
		Attrs: ast.Attrs{Interrupt: "irq"},
		Body:  &ast.Block{Stmts: []ast.Stmt{&ast.ExprStmt{X: &ast.Call{Func: "worker"}}}},
	}
	sigs := map[string]*Signature{}
	for _, fn := range []*ast.Function{worker, isr} {
		sig, err := Resolve(fn, nil)
		if err != nil {
			t.Fatal(err)
		}
		sigs[fn.Name] = sig
	}
	err := CheckCalls(isr, sigs["on_irq"], sigs)
	if diag.CodeOf(err) != diag.ErrScratchCall {
		t.Fatalf("err = %v, want scratch call error", err)
	}
}
