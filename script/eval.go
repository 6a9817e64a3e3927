package script

import (
	"context"
	"fmt"
	"io"
	"runtime/debug"
	"strings"
	"sync/atomic"
)

// DefaultMaxCallDepth 默认最大调用深度
const DefaultMaxCallDepth = 100

// Thread 单次脚本执行的状态。一个 Thread 同一时刻只能执行一个脚本；
// Cancel 可以从任意 goroutine 调用。
type Thread struct {
	Name string

	// Print 处理 print() 输出，为 nil 时丢弃
	Print func(th *Thread, msg string)

	// MaxSteps 步数预算，0 表示不限制
	MaxSteps uint64

	// MaxCallDepth 最大调用深度，0 使用 DefaultMaxCallDepth
	MaxCallDepth int

	ctx    context.Context
	steps  uint64
	depth  int
	cancel atomic.Pointer[string]
	locals map[string]any
}

// Cancel 请求中断执行，解释器在下一个检查点返回 KindCancelled 错误
func (th *Thread) Cancel(reason string) {
	th.cancel.CompareAndSwap(nil, &reason)
}

// Cancelled 返回中断原因
func (th *Thread) Cancelled() (string, bool) {
	if r := th.cancel.Load(); r != nil {
		return *r, true
	}
	return "", false
}

// Steps 已执行的步数
func (th *Thread) Steps() uint64 { return th.steps }

// SetContext 绑定上下文，宿主对象可通过 Context 获取
func (th *Thread) SetContext(ctx context.Context) { th.ctx = ctx }

// Context 返回绑定的上下文
func (th *Thread) Context() context.Context {
	if th.ctx == nil {
		return context.Background()
	}
	return th.ctx
}

// SetLocal 存储线程局部数据
func (th *Thread) SetLocal(key string, v any) {
	if th.locals == nil {
		th.locals = make(map[string]any)
	}
	th.locals[key] = v
}

// Local 读取线程局部数据
func (th *Thread) Local(key string) any { return th.locals[key] }

// PrintTo 返回写入 w 的 Print 实现
func PrintTo(w io.Writer) func(*Thread, string) {
	return func(_ *Thread, msg string) { fmt.Fprintln(w, msg) }
}

// tick 检查点：计步并响应中断
func (th *Thread) tick(pos Position) error {
	th.steps++
	if r, ok := th.Cancelled(); ok {
		return &EvalError{Pos: pos, Msg: "execution interrupted: " + r, Kind: KindCancelled}
	}
	if th.MaxSteps > 0 && th.steps > th.MaxSteps {
		return &EvalError{Pos: pos, Msg: fmt.Sprintf("step budget of %d exhausted", th.MaxSteps), Kind: KindStepLimit}
	}
	if th.ctx != nil {
		if err := th.ctx.Err(); err != nil {
			return &EvalError{Pos: pos, Msg: "execution interrupted: " + err.Error(), Kind: KindCancelled, Cause: err}
		}
	}
	return nil
}

// ExecFile 在给定全局命名空间中执行已解析的脚本。
// 名称解析只查找 globals 与函数局部变量，不存在隐式内置作用域。
func ExecFile(th *Thread, f *File, globals StringDict) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &EvalError{Msg: fmt.Sprintf("internal error: %v", r), Cause: fmt.Errorf("panic: %v\n%s", r, debug.Stack())}
		}
	}()
	fr := &frame{globals: globals}
	ctl, err := th.execBlock(fr, f.Stmts)
	if err != nil {
		return err
	}
	if ctl != flowNormal {
		return &EvalError{Msg: fmt.Sprintf("'%s' outside loop or function", ctl)}
	}
	return nil
}

// Call 调用可调用值
func Call(th *Thread, fn Value, args Tuple, kwargs []Kwarg) (Value, error) {
	c, ok := fn.(Callable)
	if !ok {
		return nil, Errorf("'%s' object is not callable", fn.Type())
	}
	limit := th.MaxCallDepth
	if limit <= 0 {
		limit = DefaultMaxCallDepth
	}
	if th.depth >= limit {
		return nil, Errorf("maximum recursion depth exceeded")
	}
	th.depth++
	defer func() { th.depth-- }()

	v, err := c.CallInternal(th, args, kwargs)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return None, nil
	}
	return v, nil
}

// ============================================================
// 语句执行
// ============================================================

type flow int

const (
	flowNormal flow = iota
	flowBreak
	flowContinue
	flowReturn
)

func (f flow) String() string {
	switch f {
	case flowBreak:
		return "break"
	case flowContinue:
		return "continue"
	case flowReturn:
		return "return"
	}
	return "normal"
}

type frame struct {
	globals StringDict
	locals  StringDict // 模块级执行时为 nil
	outer   *frame     // 推导式的外层作用域
	result  Value
	loops   int
}

func (fr *frame) lookup(name string) (Value, bool) {
	if fr.locals != nil {
		if v, ok := fr.locals[name]; ok {
			return v, true
		}
	}
	if fr.outer != nil {
		return fr.outer.lookup(name)
	}
	v, ok := fr.globals[name]
	return v, ok
}

func (fr *frame) bind(name string, v Value) {
	if fr.locals != nil {
		fr.locals[name] = v
		return
	}
	fr.globals[name] = v
}

func (th *Thread) execBlock(fr *frame, stmts []Stmt) (flow, error) {
	for _, s := range stmts {
		ctl, err := th.exec(fr, s)
		if err != nil || ctl != flowNormal {
			return ctl, err
		}
	}
	return flowNormal, nil
}

func (th *Thread) exec(fr *frame, s Stmt) (flow, error) {
	if err := th.tick(s.Span()); err != nil {
		return flowNormal, err
	}

	switch s := s.(type) {
	case *ExprStmt:
		_, err := th.eval(fr, s.X)
		return flowNormal, err

	case *AssignStmt:
		v, err := th.eval(fr, s.Value)
		if err != nil {
			return flowNormal, err
		}
		for _, t := range s.Targets {
			if err := th.assign(fr, t, v); err != nil {
				return flowNormal, err
			}
		}
		return flowNormal, nil

	case *AugAssignStmt:
		return flowNormal, th.augAssign(fr, s)

	case *ImportStmt:
		return flowNormal, &EvalError{Pos: s.ImportPos, Msg: "import statements are not available"}

	case *FromImportStmt:
		return flowNormal, th.fromImport(fr, s)

	case *WithStmt:
		return th.execWith(fr, s, 0)

	case *ForStmt:
		return th.execFor(fr, s)

	case *WhileStmt:
		return th.execWhile(fr, s)

	case *IfStmt:
		cond, err := th.eval(fr, s.Cond)
		if err != nil {
			return flowNormal, err
		}
		if cond.Truth() {
			return th.execBlock(fr, s.Body)
		}
		return th.execBlock(fr, s.Else)

	case *DefStmt:
		fn := &Function{
			name:     s.Name,
			params:   s.Params,
			defaults: make([]Value, len(s.Params)),
			body:     s.Body,
			globals:  fr.globals,
		}
		for i, p := range s.Params {
			if p.Default == nil {
				continue
			}
			v, err := th.eval(fr, p.Default)
			if err != nil {
				return flowNormal, err
			}
			fn.defaults[i] = v
		}
		fr.bind(s.Name, fn)
		return flowNormal, nil

	case *ReturnStmt:
		if fr.locals == nil {
			return flowNormal, &EvalError{Pos: s.ReturnPos, Msg: "'return' outside function"}
		}
		fr.result = None
		if s.Value != nil {
			v, err := th.eval(fr, s.Value)
			if err != nil {
				return flowNormal, err
			}
			fr.result = v
		}
		return flowReturn, nil

	case *BranchStmt:
		switch s.Token {
		case BREAK:
			if fr.loops == 0 {
				return flowNormal, &EvalError{Pos: s.TokPos, Msg: "'break' outside loop"}
			}
			return flowBreak, nil
		case CONTINUE:
			if fr.loops == 0 {
				return flowNormal, &EvalError{Pos: s.TokPos, Msg: "'continue' not properly in loop"}
			}
			return flowContinue, nil
		}
		return flowNormal, nil
	}
	return flowNormal, &EvalError{Pos: s.Span(), Msg: fmt.Sprintf("unsupported statement %T", s)}
}

// fromImport 模块系统不存在；from 导入只能取到命名空间中已绑定的名称，
// 其余一律失败
func (th *Thread) fromImport(fr *frame, s *FromImportStmt) error {
	if s.Star {
		return nil
	}
	for _, a := range s.Names {
		v, ok := fr.globals[a.Name]
		if !ok {
			return &EvalError{Pos: a.NamePos, Msg: fmt.Sprintf("cannot import name '%s' from '%s'", a.Name, s.Module)}
		}
		fr.bind(a.Bound(), v)
	}
	return nil
}

func (th *Thread) execWith(fr *frame, s *WithStmt, i int) (ctl flow, err error) {
	if i == len(s.Items) {
		return th.execBlock(fr, s.Body)
	}
	item := s.Items[i]
	v, err := th.eval(fr, item.Context)
	if err != nil {
		return flowNormal, err
	}
	cm, ok := v.(ContextManager)
	if !ok {
		return flowNormal, &EvalError{Pos: item.Context.Span(), Msg: fmt.Sprintf("'%s' object does not support the context manager protocol", v.Type())}
	}
	entered, err := cm.Enter(th)
	if err != nil {
		return flowNormal, atPos(err, item.Context.Span())
	}
	if item.Target != nil {
		if err := th.assign(fr, item.Target, entered); err != nil {
			_ = cm.Exit(th, true)
			return flowNormal, err
		}
	}

	ctl, err = th.execWith(fr, s, i+1)
	if exitErr := cm.Exit(th, err != nil); exitErr != nil && err == nil {
		err = atPos(exitErr, item.Context.Span())
	}
	return ctl, err
}

func (th *Thread) execFor(fr *frame, s *ForStmt) (flow, error) {
	iterable, err := th.eval(fr, s.Iter)
	if err != nil {
		return flowNormal, err
	}
	it, err := Iterate(iterable)
	if err != nil {
		return flowNormal, atPos(err, s.Iter.Span())
	}
	defer it.Done()

	fr.loops++
	defer func() { fr.loops-- }()

	var x Value
	for it.Next(&x) {
		if err := th.tick(s.ForPos); err != nil {
			return flowNormal, err
		}
		if err := th.assign(fr, s.Target, x); err != nil {
			return flowNormal, err
		}
		ctl, err := th.execBlock(fr, s.Body)
		if err != nil {
			return flowNormal, err
		}
		switch ctl {
		case flowBreak:
			return flowNormal, nil
		case flowReturn:
			return ctl, nil
		}
	}
	return th.execBlock(fr, s.Else)
}

func (th *Thread) execWhile(fr *frame, s *WhileStmt) (flow, error) {
	fr.loops++
	defer func() { fr.loops-- }()

	for {
		if err := th.tick(s.WhilePos); err != nil {
			return flowNormal, err
		}
		cond, err := th.eval(fr, s.Cond)
		if err != nil {
			return flowNormal, err
		}
		if !cond.Truth() {
			break
		}
		ctl, err := th.execBlock(fr, s.Body)
		if err != nil {
			return flowNormal, err
		}
		switch ctl {
		case flowBreak:
			return flowNormal, nil
		case flowReturn:
			return ctl, nil
		}
	}
	return th.execBlock(fr, s.Else)
}

func (th *Thread) assign(fr *frame, target Expr, v Value) error {
	switch t := target.(type) {
	case *Ident:
		fr.bind(t.Name, v)
		return nil
	case *TupleExpr:
		return th.unpack(fr, t.Elems, v, t.Span())
	case *ListExpr:
		return th.unpack(fr, t.Elems, v, t.Span())
	case *IndexExpr:
		x, err := th.eval(fr, t.X)
		if err != nil {
			return err
		}
		idx, err := th.eval(fr, t.Index)
		if err != nil {
			return err
		}
		return atPos(setIndex(x, idx, v), t.Lbrack)
	case *AttributeExpr:
		x, err := th.eval(fr, t.X)
		if err != nil {
			return err
		}
		return &EvalError{Pos: t.NamePos, Msg: fmt.Sprintf("cannot assign attribute '%s' of '%s' object", t.Name, x.Type())}
	}
	return &EvalError{Pos: target.Span(), Msg: "cannot assign to expression"}
}

func (th *Thread) unpack(fr *frame, targets []Expr, v Value, pos Position) error {
	elems, err := collect(v)
	if err != nil {
		return atPos(err, pos)
	}
	if len(elems) != len(targets) {
		if len(elems) > len(targets) {
			return &EvalError{Pos: pos, Msg: fmt.Sprintf("too many values to unpack (expected %d)", len(targets))}
		}
		return &EvalError{Pos: pos, Msg: fmt.Sprintf("not enough values to unpack (expected %d, got %d)", len(targets), len(elems))}
	}
	for i, t := range targets {
		if err := th.assign(fr, t, elems[i]); err != nil {
			return err
		}
	}
	return nil
}

func (th *Thread) augAssign(fr *frame, s *AugAssignStmt) error {
	switch t := s.Target.(type) {
	case *Ident:
		old, err := th.eval(fr, t)
		if err != nil {
			return err
		}
		rhs, err := th.eval(fr, s.Value)
		if err != nil {
			return err
		}
		v, err := th.inplace(s.Op, old, rhs)
		if err != nil {
			return atPos(err, s.OpPos)
		}
		fr.bind(t.Name, v)
		return nil
	case *IndexExpr:
		x, err := th.eval(fr, t.X)
		if err != nil {
			return err
		}
		idx, err := th.eval(fr, t.Index)
		if err != nil {
			return err
		}
		old, err := getIndex(x, idx)
		if err != nil {
			return atPos(err, t.Lbrack)
		}
		rhs, err := th.eval(fr, s.Value)
		if err != nil {
			return err
		}
		v, err := th.inplace(s.Op, old, rhs)
		if err != nil {
			return atPos(err, s.OpPos)
		}
		return atPos(setIndex(x, idx, v), t.Lbrack)
	}
	return &EvalError{Pos: s.OpPos, Msg: "illegal expression for augmented assignment"}
}

// inplace list += iterable 原地扩展，其余等价于二元运算
func (th *Thread) inplace(op Token, x, y Value) (Value, error) {
	if l, ok := x.(*List); ok && op == PLUS {
		elems, err := collect(y)
		if err != nil {
			return nil, err
		}
		for _, e := range elems {
			if err := l.Append(e); err != nil {
				return nil, err
			}
		}
		return l, nil
	}
	return Binary(op, x, y)
}

// ============================================================
// 表达式求值
// ============================================================

func (th *Thread) eval(fr *frame, e Expr) (Value, error) {
	switch e := e.(type) {
	case *Ident:
		v, ok := fr.lookup(e.Name)
		if !ok {
			return nil, &EvalError{Pos: e.NamePos, Msg: fmt.Sprintf("name '%s' is not defined", e.Name)}
		}
		return v, nil

	case *Literal:
		switch e.Token {
		case INT:
			return Int(e.Value.(int64)), nil
		case FLOAT:
			return Float(e.Value.(float64)), nil
		case STRING:
			return String(e.Value.(string)), nil
		case TRUE:
			return True, nil
		case FALSE:
			return False, nil
		}
		return None, nil

	case *ListExpr:
		elems, err := th.evalList(fr, e.Elems)
		if err != nil {
			return nil, err
		}
		return NewList(elems), nil

	case *TupleExpr:
		elems, err := th.evalList(fr, e.Elems)
		if err != nil {
			return nil, err
		}
		return Tuple(elems), nil

	case *DictExpr:
		d := NewDict()
		for _, entry := range e.Entries {
			k, err := th.eval(fr, entry.Key)
			if err != nil {
				return nil, err
			}
			v, err := th.eval(fr, entry.Value)
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(k, v); err != nil {
				return nil, atPos(err, entry.Key.Span())
			}
		}
		return d, nil

	case *CallExpr:
		return th.evalCall(fr, e)

	case *AttributeExpr:
		x, err := th.eval(fr, e.X)
		if err != nil {
			return nil, err
		}
		v, err := getAttr(x, e.Name)
		return v, atPos(err, e.NamePos)

	case *IndexExpr:
		x, err := th.eval(fr, e.X)
		if err != nil {
			return nil, err
		}
		idx, err := th.eval(fr, e.Index)
		if err != nil {
			return nil, err
		}
		v, err := getIndex(x, idx)
		return v, atPos(err, e.Lbrack)

	case *SliceExpr:
		x, err := th.eval(fr, e.X)
		if err != nil {
			return nil, err
		}
		var parts [3]Value
		for i, p := range []Expr{e.Lo, e.Hi, e.Step} {
			if p == nil {
				continue
			}
			if parts[i], err = th.eval(fr, p); err != nil {
				return nil, err
			}
		}
		v, err := slice(x, parts[0], parts[1], parts[2])
		return v, atPos(err, e.Lbrack)

	case *UnaryExpr:
		x, err := th.eval(fr, e.X)
		if err != nil {
			return nil, err
		}
		v, err := Unary(e.Op, x)
		return v, atPos(err, e.OpPos)

	case *BinaryExpr:
		return th.evalBinary(fr, e)

	case *CondExpr:
		cond, err := th.eval(fr, e.Cond)
		if err != nil {
			return nil, err
		}
		if cond.Truth() {
			return th.eval(fr, e.Then)
		}
		return th.eval(fr, e.Else)

	case *Comprehension:
		return th.evalComprehension(fr, e)

	case *FStringExpr:
		var sb strings.Builder
		for _, part := range e.Parts {
			if part.X == nil {
				sb.WriteString(part.Lit)
				continue
			}
			v, err := th.eval(fr, part.X)
			if err != nil {
				return nil, err
			}
			if part.Conv == 'r' {
				sb.WriteString(v.String())
			} else {
				sb.WriteString(Str(v))
			}
			if sb.Len() > MaxStringLen {
				return nil, &EvalError{Pos: e.ValuePos, Msg: "string exceeds maximum length"}
			}
		}
		return String(sb.String()), nil
	}
	return nil, &EvalError{Pos: e.Span(), Msg: fmt.Sprintf("unsupported expression %T", e)}
}

// evalComprehension 在独立作用域中求值推导式，循环变量不泄漏到外层
func (th *Thread) evalComprehension(fr *frame, e *Comprehension) (Value, error) {
	// 第一个可迭代对象在外层作用域求值
	first, err := th.eval(fr, e.Clauses[0].Iter)
	if err != nil {
		return nil, err
	}
	scope := &frame{globals: fr.globals, locals: make(StringDict), outer: fr}
	if e.Kind == LBRACE {
		d := NewDict()
		err = th.comprehend(scope, e.Clauses, first, func() error {
			k, err := th.eval(scope, e.Key)
			if err != nil {
				return err
			}
			v, err := th.eval(scope, e.Elem)
			if err != nil {
				return err
			}
			return atPos(d.SetKey(k, v), e.Key.Span())
		})
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	l := NewList(nil)
	err = th.comprehend(scope, e.Clauses, first, func() error {
		v, err := th.eval(scope, e.Elem)
		if err != nil {
			return err
		}
		return atPos(l.Append(v), e.Lbrack)
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// comprehend 逐层展开 for 子句。iterable 非 nil 时作为第一个子句已求值的可迭代对象。
func (th *Thread) comprehend(scope *frame, clauses []*CompClause, iterable Value, emit func() error) error {
	if len(clauses) == 0 {
		return emit()
	}
	c := clauses[0]
	if iterable == nil {
		var err error
		if iterable, err = th.eval(scope, c.Iter); err != nil {
			return err
		}
	}
	it, err := Iterate(iterable)
	if err != nil {
		return atPos(err, c.Iter.Span())
	}
	defer it.Done()

	var x Value
next:
	for it.Next(&x) {
		if err := th.tick(c.ForPos); err != nil {
			return err
		}
		if err := th.assign(scope, c.Target, x); err != nil {
			return err
		}
		for _, cond := range c.Conds {
			v, err := th.eval(scope, cond)
			if err != nil {
				return err
			}
			if !v.Truth() {
				continue next
			}
		}
		if err := th.comprehend(scope, clauses[1:], nil, emit); err != nil {
			return err
		}
	}
	return nil
}

func (th *Thread) evalList(fr *frame, exprs []Expr) ([]Value, error) {
	out := make([]Value, len(exprs))
	for i, x := range exprs {
		v, err := th.eval(fr, x)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (th *Thread) evalBinary(fr *frame, e *BinaryExpr) (Value, error) {
	x, err := th.eval(fr, e.X)
	if err != nil {
		return nil, err
	}

	switch e.Op {
	case AND:
		if !x.Truth() {
			return x, nil
		}
		return th.eval(fr, e.Y)
	case OR:
		if x.Truth() {
			return x, nil
		}
		return th.eval(fr, e.Y)
	}

	y, err := th.eval(fr, e.Y)
	if err != nil {
		return nil, err
	}

	var v Value
	switch e.Op {
	case EQL, NEQ:
		var eq bool
		eq, err = Equal(x, y)
		v = Bool(eq == (e.Op == EQL))
	case LT, GT, LE, GE:
		var c int
		c, err = Compare(x, y)
		switch e.Op {
		case LT:
			v = Bool(c < 0)
		case GT:
			v = Bool(c > 0)
		case LE:
			v = Bool(c <= 0)
		default:
			v = Bool(c >= 0)
		}
	case IN, NOT_IN:
		var in bool
		in, err = Contains(y, x)
		v = Bool(in == (e.Op == IN))
	case IS, IS_NOT:
		same := identical(x, y)
		v = Bool(same == (e.Op == IS))
	default:
		v, err = Binary(e.Op, x, y)
	}
	if err != nil {
		return nil, atPos(err, e.OpPos)
	}
	return v, nil
}

// identical 实现 is 运算
func identical(x, y Value) bool {
	switch a := x.(type) {
	case NoneType, Bool:
		return x == y
	case Tuple:
		b, ok := y.(Tuple)
		return ok && len(a) == len(b) && (len(a) == 0 || &a[0] == &b[0])
	}
	if _, ok := y.(Tuple); ok {
		return false
	}
	eq, _ := Equal(x, y)
	switch x.(type) {
	case *List, *Dict:
		return x == y
	}
	return eq
}

func (th *Thread) evalCall(fr *frame, e *CallExpr) (Value, error) {
	fn, err := th.eval(fr, e.Fn)
	if err != nil {
		return nil, err
	}
	args, err := th.evalList(fr, e.Args)
	if err != nil {
		return nil, err
	}
	var kwargs []Kwarg
	if len(e.Keywords) > 0 {
		kwargs = make([]Kwarg, len(e.Keywords))
		for i, kw := range e.Keywords {
			v, err := th.eval(fr, kw.Value)
			if err != nil {
				return nil, err
			}
			kwargs[i] = Kwarg{Name: kw.Name, Value: v}
		}
	}
	if err := th.tick(e.Lparen); err != nil {
		return nil, err
	}
	v, err := Call(th, fn, args, kwargs)
	if err != nil {
		return nil, atPos(err, e.Lparen)
	}
	return v, nil
}
