package script

import "strings"

// Node 语法树节点
type Node interface {
	// Span 返回节点起始位置
	Span() Position
}

// Expr 表达式节点
type Expr interface {
	Node
	exprNode()
}

// Stmt 语句节点
type Stmt interface {
	Node
	stmtNode()
}

// File 一份完整的脚本
type File struct {
	Stmts []Stmt
}

func (f *File) Span() Position {
	if len(f.Stmts) == 0 {
		return Position{Line: 1, Col: 1}
	}
	return f.Stmts[0].Span()
}

// ============================================================
// 表达式
// ============================================================

type (
	// Ident 名称引用
	Ident struct {
		NamePos Position
		Name    string
	}

	// Literal 字面量：INT(int64)、FLOAT(float64)、STRING(string)、TRUE/FALSE(bool)、NONE(nil)
	Literal struct {
		ValuePos Position
		Token    Token
		Raw      string
		Value    any
	}

	// ListExpr [a, b]
	ListExpr struct {
		Lbrack Position
		Elems  []Expr
	}

	// TupleExpr (a, b) 或 a, b
	TupleExpr struct {
		Lparen Position // 无括号元组为首元素位置
		Elems  []Expr
	}

	// DictExpr {k: v}
	DictExpr struct {
		Lbrace  Position
		Entries []*DictEntry
	}

	// CallExpr fn(args, name=value)
	CallExpr struct {
		Fn       Expr
		Lparen   Position
		Args     []Expr
		Keywords []*Keyword
	}

	// AttributeExpr x.name
	AttributeExpr struct {
		X       Expr
		NamePos Position
		Name    string
	}

	// IndexExpr x[i]
	IndexExpr struct {
		X      Expr
		Lbrack Position
		Index  Expr
	}

	// SliceExpr x[lo:hi:step]
	SliceExpr struct {
		X      Expr
		Lbrack Position
		Lo     Expr
		Hi     Expr
		Step   Expr
	}

	// UnaryExpr -x、+x、~x、not x
	UnaryExpr struct {
		OpPos Position
		Op    Token
		X     Expr
	}

	// BinaryExpr 包含算术、比较、成员和逻辑运算
	BinaryExpr struct {
		X     Expr
		OpPos Position
		Op    Token
		Y     Expr
	}

	// CondExpr a if cond else b
	CondExpr struct {
		Then Expr
		If   Position
		Cond Expr
		Else Expr
	}

	// Comprehension [x for a in b if c]、(x for ...) 与 {k: v for ...}。
	// 生成器表达式求值为列表。
	Comprehension struct {
		Lbrack  Position
		Kind    Token // LBRACK、LPAREN 或 LBRACE
		Key     Expr  // 仅字典推导式
		Elem    Expr
		Clauses []*CompClause
	}

	// FStringExpr f"a{b}c"
	FStringExpr struct {
		ValuePos Position
		Parts    []*FStringPart
	}
)

// CompClause 推导式中的 for target in iter [if cond]...
type CompClause struct {
	ForPos Position
	Target Expr
	Iter   Expr
	Conds  []Expr
}

// FStringPart 字面文本（X 为 nil）或替换字段，Conv 为 'r'、's' 或 0
type FStringPart struct {
	Lit  string
	X    Expr
	Conv byte
}

// DictEntry 字典字面量中的键值对
type DictEntry struct {
	Key   Expr
	Value Expr
}

// Keyword 调用中的关键字参数
type Keyword struct {
	NamePos Position
	Name    string
	Value   Expr
}

func (x *Ident) Span() Position         { return x.NamePos }
func (x *Literal) Span() Position       { return x.ValuePos }
func (x *ListExpr) Span() Position      { return x.Lbrack }
func (x *TupleExpr) Span() Position     { return x.Lparen }
func (x *DictExpr) Span() Position      { return x.Lbrace }
func (x *CallExpr) Span() Position      { return x.Fn.Span() }
func (x *AttributeExpr) Span() Position { return x.X.Span() }
func (x *IndexExpr) Span() Position     { return x.X.Span() }
func (x *SliceExpr) Span() Position     { return x.X.Span() }
func (x *UnaryExpr) Span() Position     { return x.OpPos }
func (x *BinaryExpr) Span() Position    { return x.X.Span() }
func (x *CondExpr) Span() Position      { return x.Then.Span() }
func (x *Comprehension) Span() Position { return x.Lbrack }
func (x *FStringExpr) Span() Position   { return x.ValuePos }
func (c *CompClause) Span() Position    { return c.ForPos }
func (x *Keyword) Span() Position       { return x.NamePos }

func (*Ident) exprNode()         {}
func (*Literal) exprNode()       {}
func (*ListExpr) exprNode()      {}
func (*TupleExpr) exprNode()     {}
func (*DictExpr) exprNode()      {}
func (*CallExpr) exprNode()      {}
func (*AttributeExpr) exprNode() {}
func (*IndexExpr) exprNode()     {}
func (*SliceExpr) exprNode()     {}
func (*UnaryExpr) exprNode()     {}
func (*BinaryExpr) exprNode()    {}
func (*CondExpr) exprNode()      {}
func (*Comprehension) exprNode() {}
func (*FStringExpr) exprNode()   {}

// KeywordArg 按名称查找关键字参数
func (x *CallExpr) KeywordArg(name string) *Keyword {
	for _, kw := range x.Keywords {
		if kw.Name == name {
			return kw
		}
	}
	return nil
}

// DottedName 将 a.b.c 形式的表达式还原为名称，非纯名称链返回空串
func DottedName(e Expr) string {
	switch x := e.(type) {
	case *Ident:
		return x.Name
	case *AttributeExpr:
		base := DottedName(x.X)
		if base == "" {
			return ""
		}
		return base + "." + x.Name
	}
	return ""
}

// ============================================================
// 语句
// ============================================================

type (
	// ExprStmt 表达式语句
	ExprStmt struct {
		X Expr
	}

	// AssignStmt a = b = value
	AssignStmt struct {
		Targets []Expr
		EqPos   Position
		Value   Expr
	}

	// AugAssignStmt a += value，Op 为对应的二元运算符
	AugAssignStmt struct {
		Target Expr
		OpPos  Position
		Op     Token
		Value  Expr
	}

	// ImportStmt import a.b as c
	ImportStmt struct {
		ImportPos Position
		Names     []*ImportAlias
	}

	// FromImportStmt from a.b import c as d
	FromImportStmt struct {
		FromPos Position
		Module  string
		Level   int // 相对导入的点号个数
		Names   []*ImportAlias
		Star    bool
	}

	// WithStmt with a as b, c: body
	WithStmt struct {
		WithPos Position
		Items   []*WithItem
		Body    []Stmt
	}

	// ForStmt for target in iter: body else: ...
	ForStmt struct {
		ForPos Position
		Target Expr
		Iter   Expr
		Body   []Stmt
		Else   []Stmt
	}

	// WhileStmt while cond: body else: ...
	WhileStmt struct {
		WhilePos Position
		Cond     Expr
		Body     []Stmt
		Else     []Stmt
	}

	// IfStmt if/elif/else，elif 展开为 Else 中嵌套的 IfStmt
	IfStmt struct {
		IfPos Position
		Cond  Expr
		Body  []Stmt
		Else  []Stmt
	}

	// DefStmt 函数定义
	DefStmt struct {
		DefPos Position
		Name   string
		Params []*Param
		Body   []Stmt
	}

	// ReturnStmt return [value]
	ReturnStmt struct {
		ReturnPos Position
		Value     Expr
	}

	// BranchStmt pass、break、continue
	BranchStmt struct {
		TokPos Position
		Token  Token
	}
)

// ImportAlias 导入项
type ImportAlias struct {
	NamePos Position
	Name    string
	AsName  string
}

// Bound 返回导入后绑定的本地名称
func (a *ImportAlias) Bound() string {
	if a.AsName != "" {
		return a.AsName
	}
	if i := strings.IndexByte(a.Name, '.'); i >= 0 {
		return a.Name[:i]
	}
	return a.Name
}

// WithItem with 语句中的单个上下文
type WithItem struct {
	Context Expr
	Target  Expr // 可为 nil
}

// Param 函数形参
type Param struct {
	NamePos Position
	Name    string
	Default Expr // 可为 nil
}

func (s *ExprStmt) Span() Position       { return s.X.Span() }
func (s *AssignStmt) Span() Position     { return s.Targets[0].Span() }
func (s *AugAssignStmt) Span() Position  { return s.Target.Span() }
func (s *ImportStmt) Span() Position     { return s.ImportPos }
func (s *FromImportStmt) Span() Position { return s.FromPos }
func (s *WithStmt) Span() Position       { return s.WithPos }
func (s *ForStmt) Span() Position        { return s.ForPos }
func (s *WhileStmt) Span() Position      { return s.WhilePos }
func (s *IfStmt) Span() Position         { return s.IfPos }
func (s *DefStmt) Span() Position        { return s.DefPos }
func (s *ReturnStmt) Span() Position     { return s.ReturnPos }
func (s *BranchStmt) Span() Position     { return s.TokPos }

func (*ExprStmt) stmtNode()       {}
func (*AssignStmt) stmtNode()     {}
func (*AugAssignStmt) stmtNode()  {}
func (*ImportStmt) stmtNode()     {}
func (*FromImportStmt) stmtNode() {}
func (*WithStmt) stmtNode()       {}
func (*ForStmt) stmtNode()        {}
func (*WhileStmt) stmtNode()      {}
func (*IfStmt) stmtNode()         {}
func (*DefStmt) stmtNode()        {}
func (*ReturnStmt) stmtNode()     {}
func (*BranchStmt) stmtNode()     {}
