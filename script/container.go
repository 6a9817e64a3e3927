package script

import (
	"fmt"
	"strings"
)

// ============================================================
// Tuple
// ============================================================

// Tuple 不可变序列
type Tuple []Value

func (t Tuple) String() string       { return repr(t, &reprState{}) }
func (Tuple) Type() string           { return "tuple" }
func (t Tuple) Truth() bool          { return len(t) > 0 }
func (t Tuple) Len() int             { return len(t) }
func (t Tuple) Index(i int) Value    { return t[i] }
func (t Tuple) Iterate() Iterator    { return &sliceIterator{elems: t} }

// maxValueDepth 打印、比较、哈希嵌套容器时的最大深度
const maxValueDepth = 500

// reprState 记录正在打印的可变容器，自引用输出为 [...] / {...}
type reprState struct {
	active map[any]struct{}
	depth  int
}

func (st *reprState) enter(c any) bool {
	if _, ok := st.active[c]; ok || st.depth >= maxValueDepth {
		return false
	}
	if st.active == nil {
		st.active = make(map[any]struct{})
	}
	st.active[c] = struct{}{}
	st.depth++
	return true
}

func (st *reprState) leave(c any) {
	delete(st.active, c)
	st.depth--
}

func repr(v Value, st *reprState) string {
	switch x := v.(type) {
	case Tuple:
		if st.depth >= maxValueDepth {
			return "(...)"
		}
		st.depth++
		defer func() { st.depth-- }()
		if len(x) == 1 {
			return "(" + repr(x[0], st) + ",)"
		}
		return "(" + joinRepr(x, st) + ")"
	case *List:
		if !st.enter(x) {
			return "[...]"
		}
		defer st.leave(x)
		return "[" + joinRepr(x.elems, st) + "]"
	case *Dict:
		if !st.enter(x) {
			return "{...}"
		}
		defer st.leave(x)
		parts := make([]string, len(x.keys))
		for i := range x.keys {
			parts[i] = repr(x.keys[i], st) + ": " + repr(x.values[i], st)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return v.String()
}

func joinRepr(elems []Value, st *reprState) string {
	parts := make([]string, len(elems))
	for i, e := range elems {
		parts[i] = repr(e, st)
	}
	return strings.Join(parts, ", ")
}

type sliceIterator struct {
	elems []Value
	i     int
}

func (it *sliceIterator) Next(p *Value) bool {
	if it.i >= len(it.elems) {
		return false
	}
	*p = it.elems[it.i]
	it.i++
	return true
}

func (it *sliceIterator) Done() {}

// ============================================================
// List
// ============================================================

// List 可变列表
type List struct {
	elems []Value
}

// NewList 创建列表，持有传入切片
func NewList(elems []Value) *List { return &List{elems: elems} }

func (l *List) String() string     { return repr(l, &reprState{}) }
func (*List) Type() string         { return "list" }
func (l *List) Truth() bool        { return len(l.elems) > 0 }
func (l *List) Len() int           { return len(l.elems) }
func (l *List) Index(i int) Value  { return l.elems[i] }
func (l *List) Iterate() Iterator  { return &listIterator{l: l} }

// Elems 返回元素切片的副本
func (l *List) Elems() []Value {
	out := make([]Value, len(l.elems))
	copy(out, l.elems)
	return out
}

// Append 追加元素，超出容量上限时报错
func (l *List) Append(v Value) error {
	if len(l.elems) >= MaxCollectionLen {
		return Errorf("list exceeds maximum length %d", MaxCollectionLen)
	}
	l.elems = append(l.elems, v)
	return nil
}

func (l *List) setIndex(i int, v Value) { l.elems[i] = v }

// listIterator 按下标迭代，允许在迭代中追加元素
type listIterator struct {
	l *List
	i int
}

func (it *listIterator) Next(p *Value) bool {
	if it.i >= len(it.l.elems) {
		return false
	}
	*p = it.l.elems[it.i]
	it.i++
	return true
}

func (it *listIterator) Done() {}

// ============================================================
// Dict
// ============================================================

// Dict 保持插入顺序的字典
type Dict struct {
	keys   []Value
	values []Value
	index  map[string]int
}

// NewDict 创建空字典
func NewDict() *Dict { return &Dict{index: make(map[string]int)} }

func (d *Dict) String() string       { return repr(d, &reprState{}) }
func (*Dict) Type() string          { return "dict" }
func (d *Dict) Truth() bool         { return len(d.keys) > 0 }
func (d *Dict) Len() int            { return len(d.keys) }
func (d *Dict) Iterate() Iterator   { return &sliceIterator{elems: append([]Value(nil), d.keys...)} }

// Get 查找键
func (d *Dict) Get(k Value) (Value, bool, error) {
	h, err := hashKey(k)
	if err != nil {
		return nil, false, err
	}
	i, ok := d.index[h]
	if !ok {
		return nil, false, nil
	}
	return d.values[i], true, nil
}

// SetKey 插入或更新键
func (d *Dict) SetKey(k, v Value) error {
	h, err := hashKey(k)
	if err != nil {
		return err
	}
	if i, ok := d.index[h]; ok {
		d.values[i] = v
		return nil
	}
	if len(d.keys) >= MaxCollectionLen {
		return Errorf("dict exceeds maximum length %d", MaxCollectionLen)
	}
	d.index[h] = len(d.keys)
	d.keys = append(d.keys, k)
	d.values = append(d.values, v)
	return nil
}

// Delete 删除键，返回被删除的值
func (d *Dict) Delete(k Value) (Value, bool, error) {
	h, err := hashKey(k)
	if err != nil {
		return nil, false, err
	}
	i, ok := d.index[h]
	if !ok {
		return nil, false, nil
	}
	v := d.values[i]
	d.keys = append(d.keys[:i], d.keys[i+1:]...)
	d.values = append(d.values[:i], d.values[i+1:]...)
	delete(d.index, h)
	for key, j := range d.index {
		if j > i {
			d.index[key] = j - 1
		}
	}
	return v, true, nil
}

// Keys 返回按插入顺序排列的键
func (d *Dict) Keys() []Value { return append([]Value(nil), d.keys...) }

// Items 返回键值对元组
func (d *Dict) Items() []Tuple {
	out := make([]Tuple, len(d.keys))
	for i := range d.keys {
		out[i] = Tuple{d.keys[i], d.values[i]}
	}
	return out
}

// hashKey 计算字典键。数值相等的 int、float、bool 得到相同的键。
func hashKey(v Value) (string, error) { return hashKeyDepth(v, 0) }

func hashKeyDepth(v Value, depth int) (string, error) {
	if depth > maxValueDepth {
		return "", Errorf("maximum recursion depth exceeded while hashing")
	}
	switch x := v.(type) {
	case NoneType:
		return "n", nil
	case Bool, Int:
		i, _ := AsInt(x)
		return fmt.Sprintf("i:%d", i), nil
	case Float:
		if f := float64(x); f == float64(int64(f)) {
			return fmt.Sprintf("i:%d", int64(f)), nil
		}
		return "f:" + x.String(), nil
	case String:
		return "s:" + string(x), nil
	case Tuple:
		parts := make([]string, len(x))
		for i, e := range x {
			h, err := hashKeyDepth(e, depth+1)
			if err != nil {
				return "", err
			}
			parts[i] = h
		}
		return "t(" + strings.Join(parts, ",") + ")", nil
	case *List, *Dict:
		return "", Errorf("unhashable type: '%s'", v.Type())
	}
	return fmt.Sprintf("o:%T:%p", v, v), nil
}

// ============================================================
// Range
// ============================================================

// Range range() 的惰性序列
type Range struct {
	start, stop, step int64
}

func (r Range) String() string {
	if r.step == 1 {
		return fmt.Sprintf("range(%d, %d)", r.start, r.stop)
	}
	return fmt.Sprintf("range(%d, %d, %d)", r.start, r.stop, r.step)
}
func (Range) Type() string  { return "range" }
func (r Range) Truth() bool { return r.Len() > 0 }

func (r Range) Len() int {
	var n int64
	switch {
	case r.step > 0 && r.start < r.stop:
		n = (r.stop - r.start + r.step - 1) / r.step
	case r.step < 0 && r.start > r.stop:
		n = (r.start - r.stop - r.step - 1) / -r.step
	}
	if n > int64(^uint(0)>>1) {
		return int(^uint(0) >> 1)
	}
	return int(n)
}

func (r Range) Index(i int) Value { return Int(r.start + int64(i)*r.step) }

func (r Range) Iterate() Iterator { return &rangeIterator{r: r} }

type rangeIterator struct {
	r Range
	i int
}

func (it *rangeIterator) Next(p *Value) bool {
	if it.i >= it.r.Len() {
		return false
	}
	*p = it.r.Index(it.i)
	it.i++
	return true
}

func (it *rangeIterator) Done() {}

// Iterate 按字符迭代字符串
func (s String) Iterate() Iterator {
	chars := make([]Value, 0, len(s))
	for _, r := range string(s) {
		chars = append(chars, String(string(r)))
	}
	return &sliceIterator{elems: chars}
}
