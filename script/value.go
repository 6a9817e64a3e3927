package script

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// 运行期容量上限，防止脚本耗尽内存
const (
	MaxCollectionLen = 1 << 20
	MaxStringLen     = 8 << 20
)

// Value 脚本中的所有值
type Value interface {
	// String 返回值的 repr 形式
	String() string
	// Type 返回类型名
	Type() string
	// Truth 返回真值
	Truth() bool
}

// Callable 可调用值
type Callable interface {
	Value
	Name() string
	CallInternal(th *Thread, args Tuple, kwargs []Kwarg) (Value, error)
}

// HasAttrs 支持属性访问的值。Attr 返回 (nil, nil) 表示属性不存在。
type HasAttrs interface {
	Value
	Attr(name string) (Value, error)
	AttrNames() []string
}

// Side 二元运算中接收者所处的一侧
type Side bool

const (
	Left  Side = false
	Right Side = true
)

// HasBinary 自定义二元运算的值。返回 (nil, nil) 表示不支持该运算。
type HasBinary interface {
	Value
	Binary(op Token, y Value, side Side) (Value, error)
}

// ContextManager 可用于 with 语句的值
type ContextManager interface {
	Value
	Enter(th *Thread) (Value, error)
	Exit(th *Thread, failed bool) error
}

// Iterator 迭代器，使用完毕必须调用 Done
type Iterator interface {
	Next(p *Value) bool
	Done()
}

// Iterable 可迭代值
type Iterable interface {
	Value
	Iterate() Iterator
}

// Sequence 有长度的可迭代值
type Sequence interface {
	Iterable
	Len() int
}

// Indexable 支持整数下标访问的值
type Indexable interface {
	Value
	Index(i int) Value
	Len() int
}

// Kwarg 关键字参数
type Kwarg struct {
	Name  string
	Value Value
}

// StringDict 名称到值的映射，用作全局命名空间
type StringDict map[string]Value

// Keys 返回排序后的名称列表
func (d StringDict) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ============================================================
// 标量
// ============================================================

// NoneType None 的类型
type NoneType struct{}

// None 唯一的 None 值
var None = NoneType{}

func (NoneType) String() string { return "None" }
func (NoneType) Type() string   { return "NoneType" }
func (NoneType) Truth() bool    { return false }

// Bool 布尔值
type Bool bool

const (
	True  Bool = true
	False Bool = false
)

func (b Bool) String() string {
	if b {
		return "True"
	}
	return "False"
}
func (Bool) Type() string   { return "bool" }
func (b Bool) Truth() bool  { return bool(b) }

// Int 64 位整数，溢出时报错而不是回绕
type Int int64

func (i Int) String() string { return strconv.FormatInt(int64(i), 10) }
func (Int) Type() string     { return "int" }
func (i Int) Truth() bool    { return i != 0 }

// Float 浮点数
type Float float64

func (f Float) String() string {
	v := float64(f)
	switch {
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	case math.IsNaN(v):
		return "nan"
	}
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}
func (Float) Type() string  { return "float" }
func (f Float) Truth() bool { return f != 0 }

// String 字符串
type String string

func (s String) String() string { return quote(string(s)) }
func (String) Type() string     { return "str" }
func (s String) Truth() bool    { return len(s) > 0 }
func (s String) Len() int       { return len(s) }

// Index 按字节下标取单字符串，ASCII 之外按字节处理
func (s String) Index(i int) Value { return s[i : i+1] }

func quote(s string) string {
	q := byte('\'')
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		q = '"'
	}
	var sb strings.Builder
	sb.WriteByte(q)
	for _, r := range s {
		switch r {
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			if r == rune(q) {
				sb.WriteByte('\\')
				sb.WriteRune(r)
			} else if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&sb, `\x%02x`, r)
			} else {
				sb.WriteRune(r)
			}
		}
	}
	sb.WriteByte(q)
	return sb.String()
}

// AsString 返回字符串值
func AsString(v Value) (string, bool) {
	s, ok := v.(String)
	return string(s), ok
}

// AsInt 返回整数值，bool 视为整数
func AsInt(v Value) (int64, bool) {
	switch x := v.(type) {
	case Int:
		return int64(x), true
	case Bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Str 返回 str() 语义的字符串
func Str(v Value) string {
	if s, ok := v.(String); ok {
		return string(s)
	}
	return v.String()
}

// ============================================================
// 函数
// ============================================================

// Function 脚本中 def 定义的函数
type Function struct {
	name     string
	params   []*Param
	defaults []Value
	body     []Stmt
	globals  StringDict
}

func (fn *Function) String() string { return fmt.Sprintf("<function %s>", fn.name) }
func (*Function) Type() string       { return "function" }
func (*Function) Truth() bool        { return true }
func (fn *Function) Name() string    { return fn.name }

func (fn *Function) CallInternal(th *Thread, args Tuple, kwargs []Kwarg) (Value, error) {
	if len(args) > len(fn.params) {
		return nil, Errorf("%s() takes %d positional arguments but %d were given", fn.name, len(fn.params), len(args))
	}
	locals := make(StringDict, len(fn.params))
	for i, arg := range args {
		locals[fn.params[i].Name] = arg
	}
	for _, kw := range kwargs {
		found := false
		for _, p := range fn.params {
			if p.Name == kw.Name {
				found = true
				break
			}
		}
		if !found {
			return nil, Errorf("%s() got an unexpected keyword argument '%s'", fn.name, kw.Name)
		}
		if _, dup := locals[kw.Name]; dup {
			return nil, Errorf("%s() got multiple values for argument '%s'", fn.name, kw.Name)
		}
		locals[kw.Name] = kw.Value
	}
	for i, p := range fn.params {
		if _, ok := locals[p.Name]; ok {
			continue
		}
		if fn.defaults[i] == nil {
			return nil, Errorf("%s() missing required argument: '%s'", fn.name, p.Name)
		}
		locals[p.Name] = fn.defaults[i]
	}

	fr := &frame{globals: fn.globals, locals: locals}
	ctl, err := th.execBlock(fr, fn.body)
	if err != nil {
		return nil, err
	}
	if ctl == flowReturn && fr.result != nil {
		return fr.result, nil
	}
	return None, nil
}

// BuiltinFunc 内置函数实现
type BuiltinFunc func(th *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error)

// Builtin 宿主提供的函数，可绑定接收者作为方法使用
type Builtin struct {
	name string
	fn   BuiltinFunc
	recv Value
}

// NewBuiltin 创建内置函数
func NewBuiltin(name string, fn BuiltinFunc) *Builtin {
	return &Builtin{name: name, fn: fn}
}

// BindReceiver 返回绑定了接收者的方法
func (b *Builtin) BindReceiver(recv Value) *Builtin {
	return &Builtin{name: b.name, fn: b.fn, recv: recv}
}

// Receiver 返回绑定的接收者，未绑定时为 nil
func (b *Builtin) Receiver() Value { return b.recv }

func (b *Builtin) String() string {
	if b.recv != nil {
		return fmt.Sprintf("<built-in method %s of %s object>", b.name, b.recv.Type())
	}
	return fmt.Sprintf("<built-in function %s>", b.name)
}
func (*Builtin) Type() string    { return "builtin_function_or_method" }
func (*Builtin) Truth() bool     { return true }
func (b *Builtin) Name() string  { return b.name }

func (b *Builtin) CallInternal(th *Thread, args Tuple, kwargs []Kwarg) (Value, error) {
	return b.fn(th, b, args, kwargs)
}

// ============================================================
// 参数解包
// ============================================================

// UnpackArgs 将位置与关键字参数解包到指针中。
// pairs 依次为参数名与指针，名称以 "?" 结尾表示可选。
// 支持的指针类型：*Value、*string、*int、*bool、*float64。
func UnpackArgs(fnName string, args Tuple, kwargs []Kwarg, pairs ...any) error {
	if len(pairs)%2 != 0 {
		panic("UnpackArgs: odd number of pairs")
	}
	n := len(pairs) / 2
	if len(args) > n {
		return Errorf("%s() takes at most %d arguments (%d given)", fnName, n, len(args))
	}

	names := make([]string, n)
	optional := make([]bool, n)
	for i := 0; i < n; i++ {
		name := pairs[2*i].(string)
		if strings.HasSuffix(name, "?") {
			name = strings.TrimSuffix(name, "?")
			optional[i] = true
		}
		names[i] = name
	}

	set := make([]bool, n)
	for i, arg := range args {
		if err := unpackOne(fnName, names[i], arg, pairs[2*i+1]); err != nil {
			return err
		}
		set[i] = true
	}

kwloop:
	for _, kw := range kwargs {
		for i, name := range names {
			if name != kw.Name {
				continue
			}
			if set[i] {
				return Errorf("%s() got multiple values for argument '%s'", fnName, name)
			}
			if err := unpackOne(fnName, name, kw.Value, pairs[2*i+1]); err != nil {
				return err
			}
			set[i] = true
			continue kwloop
		}
		return Errorf("%s() got an unexpected keyword argument '%s'", fnName, kw.Name)
	}

	for i := range names {
		if !set[i] && !optional[i] {
			return Errorf("%s() missing required argument: '%s'", fnName, names[i])
		}
	}
	return nil
}

func unpackOne(fnName, name string, v Value, ptr any) error {
	switch p := ptr.(type) {
	case *Value:
		*p = v
	case *string:
		s, ok := v.(String)
		if !ok {
			return Errorf("%s() argument '%s' must be str, not %s", fnName, name, v.Type())
		}
		*p = string(s)
	case *int:
		i, ok := AsInt(v)
		if !ok {
			return Errorf("%s() argument '%s' must be int, not %s", fnName, name, v.Type())
		}
		*p = int(i)
	case *bool:
		*p = v.Truth()
	case *float64:
		switch x := v.(type) {
		case Float:
			*p = float64(x)
		default:
			i, ok := AsInt(v)
			if !ok {
				return Errorf("%s() argument '%s' must be a number, not %s", fnName, name, v.Type())
			}
			*p = float64(i)
		}
	default:
		panic(fmt.Sprintf("UnpackArgs: unsupported pointer type %T", ptr))
	}
	return nil
}
