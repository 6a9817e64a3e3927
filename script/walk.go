package script

func (a *ImportAlias) Span() Position { return a.NamePos }
func (p *Param) Span() Position       { return p.NamePos }

// Inspect 深度优先遍历语法树。f 返回 false 时跳过该节点的子节点。
// 访问顺序与源码顺序一致（推导式先访问结果表达式），
// ImportAlias、Keyword、Param、CompClause 也作为节点被访问。
func Inspect(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}
	switch x := n.(type) {
	case *File:
		inspectStmts(x.Stmts, f)

	case *Ident, *Literal, *BranchStmt, *ImportAlias:
		// 叶子节点

	case *ListExpr:
		inspectExprs(x.Elems, f)
	case *TupleExpr:
		inspectExprs(x.Elems, f)
	case *DictExpr:
		for _, e := range x.Entries {
			Inspect(e.Key, f)
			Inspect(e.Value, f)
		}
	case *CallExpr:
		Inspect(x.Fn, f)
		inspectExprs(x.Args, f)
		for _, kw := range x.Keywords {
			Inspect(kw, f)
		}
	case *Keyword:
		Inspect(x.Value, f)
	case *AttributeExpr:
		Inspect(x.X, f)
	case *IndexExpr:
		Inspect(x.X, f)
		Inspect(x.Index, f)
	case *SliceExpr:
		Inspect(x.X, f)
		inspectOptional(x.Lo, f)
		inspectOptional(x.Hi, f)
		inspectOptional(x.Step, f)
	case *UnaryExpr:
		Inspect(x.X, f)
	case *BinaryExpr:
		Inspect(x.X, f)
		Inspect(x.Y, f)
	case *CondExpr:
		Inspect(x.Then, f)
		Inspect(x.Cond, f)
		Inspect(x.Else, f)
	case *Comprehension:
		inspectOptional(x.Key, f)
		Inspect(x.Elem, f)
		for _, c := range x.Clauses {
			Inspect(c, f)
		}
	case *CompClause:
		Inspect(x.Target, f)
		Inspect(x.Iter, f)
		inspectExprs(x.Conds, f)
	case *FStringExpr:
		for _, part := range x.Parts {
			inspectOptional(part.X, f)
		}

	case *ExprStmt:
		Inspect(x.X, f)
	case *AssignStmt:
		inspectExprs(x.Targets, f)
		Inspect(x.Value, f)
	case *AugAssignStmt:
		Inspect(x.Target, f)
		Inspect(x.Value, f)
	case *ImportStmt:
		for _, a := range x.Names {
			Inspect(a, f)
		}
	case *FromImportStmt:
		for _, a := range x.Names {
			Inspect(a, f)
		}
	case *WithStmt:
		for _, item := range x.Items {
			Inspect(item.Context, f)
			inspectOptional(item.Target, f)
		}
		inspectStmts(x.Body, f)
	case *ForStmt:
		Inspect(x.Target, f)
		Inspect(x.Iter, f)
		inspectStmts(x.Body, f)
		inspectStmts(x.Else, f)
	case *WhileStmt:
		Inspect(x.Cond, f)
		inspectStmts(x.Body, f)
		inspectStmts(x.Else, f)
	case *IfStmt:
		Inspect(x.Cond, f)
		inspectStmts(x.Body, f)
		inspectStmts(x.Else, f)
	case *DefStmt:
		for _, p := range x.Params {
			Inspect(p, f)
		}
		inspectStmts(x.Body, f)
	case *Param:
		inspectOptional(x.Default, f)
	case *ReturnStmt:
		inspectOptional(x.Value, f)
	}
}

func inspectExprs(list []Expr, f func(Node) bool) {
	for _, e := range list {
		Inspect(e, f)
	}
}

func inspectStmts(list []Stmt, f func(Node) bool) {
	for _, s := range list {
		Inspect(s, f)
	}
}

// inspectOptional 跳过 nil 表达式，避免把带类型的 nil 传给 Inspect
func inspectOptional(e Expr, f func(Node) bool) {
	if e != nil {
		Inspect(e, f)
	}
}
