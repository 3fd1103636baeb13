package ast

// Inspect visits node and everything under it in evaluation order, parents
// first. node is a Stmt or an Expr. If f returns false, the children of that
// node are skipped. Patterns are not visited.
func Inspect(node any, f func(any) bool) {
	switch n := node.(type) {
	case nil:
	case Stmt:
		inspectStmt(n, f)
	case Expr:
		inspectExpr(n, f)
	}
}

func inspectBlock(b *Block, f func(any) bool) {
	if b == nil || !f(b) {
		return
	}
	for _, s := range b.Stmts {
		inspectStmt(s, f)
	}
	inspectExpr(b.Tail, f)
}

func inspectStmt(s Stmt, f func(any) bool) {
	if s == nil {
		return
	}
	if b, ok := s.(*Block); ok {
		inspectBlock(b, f)
		return
	}
	if !f(s) {
		return
	}
	switch s := s.(type) {
	case *Let:
		inspectExpr(s.Init, f)
	case *Assign:
		inspectExpr(s.Target, f)
		inspectExpr(s.Value, f)
	case *ExprStmt:
		inspectExpr(s.X, f)
	case *If:
		inspectExpr(s.Cond, f)
		inspectBlock(s.Then, f)
		inspectStmt(s.Else, f)
	case *Loop:
		inspectBlock(s.Body, f)
	case *While:
		inspectExpr(s.Cond, f)
		inspectBlock(s.Body, f)
	case *For:
		inspectExpr(s.From, f)
		inspectExpr(s.To, f)
		inspectBlock(s.Body, f)
	case *Break:
		inspectExpr(s.Value, f)
	case *ReturnStmt:
		for _, v := range s.Values {
			inspectExpr(v, f)
		}
	}
}

func inspectExpr(e Expr, f func(any) bool) {
	if e == nil || !f(e) {
		return
	}
	switch e := e.(type) {
	case *Binary:
		inspectExpr(e.L, f)
		inspectExpr(e.R, f)
	case *Unary:
		inspectExpr(e.X, f)
	case *Call:
		for _, a := range e.Args {
			inspectExpr(a, f)
		}
	case *MethodCall:
		inspectExpr(e.Recv, f)
		for _, a := range e.Args {
			inspectExpr(a, f)
		}
	case *FieldExpr:
		inspectExpr(e.X, f)
	case *IfExpr:
		inspectExpr(e.Cond, f)
		inspectBlock(e.Then, f)
		inspectExpr(e.Else, f)
	case *BlockExpr:
		inspectBlock(e.Block, f)
	case *LoopExpr:
		if e.Loop != nil {
			inspectBlock(e.Loop.Body, f)
		}
	case *Match:
		inspectExpr(e.Scrutinee, f)
		for _, arm := range e.Arms {
			inspectExpr(arm.Body, f)
		}
	case *Cast:
		inspectExpr(e.X, f)
	case *Is:
		inspectExpr(e.X, f)
	case *TagOf:
		inspectExpr(e.X, f)
	}
}

// Assigned returns the names of the locals and globals that exprs store to,
// in order of appearance, with duplicates.
func Assigned(exprs ...Expr) []string {
	var names []string
	for _, e := range exprs {
		Inspect(e, func(n any) bool {
			if a, ok := n.(*Assign); ok {
				if t, ok := a.Target.(*Name); ok {
					names = append(names, t.Name)
				}
			}
			return true
		})
	}
	return names
}
