package script

import (
	"math"
	"math/bits"
	"strings"
)

// Equal 比较两个值是否相等
func Equal(x, y Value) (bool, error) { return equalDepth(x, y, 0) }

func equalDepth(x, y Value, depth int) (bool, error) {
	if depth > maxValueDepth {
		return false, Errorf("maximum recursion depth exceeded in comparison")
	}
	switch a := x.(type) {
	case NoneType:
		_, ok := y.(NoneType)
		return ok, nil
	case Bool, Int, Float:
		af, aok := toFloat(a)
		bf, bok := toFloat(y)
		if !aok || !bok {
			return false, nil
		}
		ai, aInt := AsInt(a)
		bi, bInt := AsInt(y)
		if aInt && bInt {
			return ai == bi, nil
		}
		return af == bf, nil
	case String:
		b, ok := y.(String)
		return ok && a == b, nil
	case Tuple:
		b, ok := y.(Tuple)
		if !ok {
			return false, nil
		}
		return equalSlices(a, b, depth)
	case *List:
		b, ok := y.(*List)
		if !ok {
			return false, nil
		}
		if a == b {
			return true, nil
		}
		return equalSlices(a.elems, b.elems, depth)
	case *Dict:
		b, ok := y.(*Dict)
		if !ok || a.Len() != b.Len() {
			return false, nil
		}
		if a == b {
			return true, nil
		}
		for i, k := range a.keys {
			bv, found, err := b.Get(k)
			if err != nil || !found {
				return false, err
			}
			eq, err := equalDepth(a.values[i], bv, depth+1)
			if err != nil || !eq {
				return false, err
			}
		}
		return true, nil
	case Range:
		b, ok := y.(Range)
		return ok && a == b, nil
	}
	if _, ok := y.(Tuple); ok {
		return false, nil
	}
	return x == y, nil
}

func equalSlices(a, b []Value, depth int) (bool, error) {
	if len(a) != len(b) {
		return false, nil
	}
	for i := range a {
		if sameContainer(a[i], b[i]) {
			continue
		}
		eq, err := equalDepth(a[i], b[i], depth+1)
		if err != nil || !eq {
			return false, err
		}
	}
	return true, nil
}

// sameContainer 同一个 list/dict 对象视为相等
func sameContainer(x, y Value) bool {
	switch a := x.(type) {
	case *List:
		b, ok := y.(*List)
		return ok && a == b
	case *Dict:
		b, ok := y.(*Dict)
		return ok && a == b
	}
	return false
}

func toFloat(v Value) (float64, bool) {
	switch x := v.(type) {
	case Float:
		return float64(x), true
	case Int:
		return float64(x), true
	case Bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func isNumber(v Value) bool {
	_, ok := toFloat(v)
	return ok
}

// Compare 有序比较，返回 -1、0、1
func Compare(x, y Value) (int, error) { return compareDepth(x, y, 0) }

func compareDepth(x, y Value, depth int) (int, error) {
	if depth > maxValueDepth {
		return 0, Errorf("maximum recursion depth exceeded in comparison")
	}
	if isNumber(x) && isNumber(y) {
		ai, aInt := AsInt(x)
		bi, bInt := AsInt(y)
		if aInt && bInt {
			return cmpInt(ai, bi), nil
		}
		af, _ := toFloat(x)
		bf, _ := toFloat(y)
		switch {
		case af < bf:
			return -1, nil
		case af > bf:
			return 1, nil
		}
		return 0, nil
	}
	switch a := x.(type) {
	case String:
		if b, ok := y.(String); ok {
			return strings.Compare(string(a), string(b)), nil
		}
	case Tuple:
		if b, ok := y.(Tuple); ok {
			return compareSlices(a, b, depth)
		}
	case *List:
		if b, ok := y.(*List); ok {
			return compareSlices(a.elems, b.elems, depth)
		}
	}
	return 0, Errorf("'<' not supported between instances of '%s' and '%s'", x.Type(), y.Type())
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareSlices(a, b []Value, depth int) (int, error) {
	for i := 0; i < len(a) && i < len(b); i++ {
		if sameContainer(a[i], b[i]) {
			continue
		}
		eq, err := equalDepth(a[i], b[i], depth+1)
		if err != nil {
			return 0, err
		}
		if !eq {
			return compareDepth(a[i], b[i], depth+1)
		}
	}
	return cmpInt(int64(len(a)), int64(len(b))), nil
}

// Contains 实现 x in y
func Contains(container, x Value) (bool, error) {
	switch c := container.(type) {
	case String:
		s, ok := x.(String)
		if !ok {
			return false, Errorf("'in <string>' requires string as left operand, not %s", x.Type())
		}
		return strings.Contains(string(c), string(s)), nil
	case *Dict:
		_, found, err := c.Get(x)
		return found, err
	case Range:
		i, ok := AsInt(x)
		if !ok {
			return false, nil
		}
		if c.step > 0 && (i < c.start || i >= c.stop) || c.step < 0 && (i > c.start || i <= c.stop) {
			return false, nil
		}
		return (i-c.start)%c.step == 0, nil
	case Iterable:
		it := c.Iterate()
		defer it.Done()
		var v Value
		for it.Next(&v) {
			eq, err := Equal(v, x)
			if err != nil {
				return false, err
			}
			if eq {
				return true, nil
			}
		}
		return false, nil
	}
	return false, Errorf("argument of type '%s' is not iterable", container.Type())
}

// Binary 计算二元运算，先尝试内置类型，再分派给左右操作数的 HasBinary 实现
func Binary(op Token, x, y Value) (Value, error) {
	if v, ok, err := builtinBinary(op, x, y); ok || err != nil {
		return v, err
	}
	if hb, ok := x.(HasBinary); ok {
		v, err := hb.Binary(op, y, Left)
		if v != nil || err != nil {
			return v, err
		}
	}
	if hb, ok := y.(HasBinary); ok {
		v, err := hb.Binary(op, x, Right)
		if v != nil || err != nil {
			return v, err
		}
	}
	return nil, Errorf("unsupported operand type(s) for %s: '%s' and '%s'", op, x.Type(), y.Type())
}

func builtinBinary(op Token, x, y Value) (Value, bool, error) {
	if isNumber(x) && isNumber(y) {
		return numericBinary(op, x, y)
	}

	switch op {
	case PLUS:
		switch a := x.(type) {
		case String:
			if b, ok := y.(String); ok {
				if len(a)+len(b) > MaxStringLen {
					return nil, true, Errorf("string exceeds maximum length")
				}
				return a + b, true, nil
			}
		case Tuple:
			if b, ok := y.(Tuple); ok {
				if len(a)+len(b) > MaxCollectionLen {
					return nil, true, Errorf("tuple exceeds maximum length")
				}
				out := make(Tuple, 0, len(a)+len(b))
				return append(append(out, a...), b...), true, nil
			}
		case *List:
			if b, ok := y.(*List); ok {
				if len(a.elems)+len(b.elems) > MaxCollectionLen {
					return nil, true, Errorf("list exceeds maximum length %d", MaxCollectionLen)
				}
				out := make([]Value, 0, len(a.elems)+len(b.elems))
				return NewList(append(append(out, a.elems...), b.elems...)), true, nil
			}
		}
	case STAR:
		if n, ok := AsInt(y); ok {
			return repeat(x, n)
		}
		if n, ok := AsInt(x); ok {
			return repeat(y, n)
		}
	case PERCENT:
		if s, ok := x.(String); ok {
			v, err := percentFormat(string(s), y)
			return v, true, err
		}
	}
	return nil, false, nil
}

func repeat(v Value, n int64) (Value, bool, error) {
	if n < 0 {
		n = 0
	}
	switch x := v.(type) {
	case String:
		if n > 0 && int64(len(x)) > int64(MaxStringLen)/n {
			return nil, true, Errorf("string exceeds maximum length")
		}
		return String(strings.Repeat(string(x), int(n))), true, nil
	case Tuple:
		if n > 0 && int64(len(x)) > int64(MaxCollectionLen)/n {
			return nil, true, Errorf("tuple exceeds maximum length")
		}
		out := make(Tuple, 0, len(x)*int(n))
		for i := int64(0); i < n; i++ {
			out = append(out, x...)
		}
		return out, true, nil
	case *List:
		if n > 0 && int64(len(x.elems)) > int64(MaxCollectionLen)/n {
			return nil, true, Errorf("list exceeds maximum length %d", MaxCollectionLen)
		}
		out := make([]Value, 0, len(x.elems)*int(n))
		for i := int64(0); i < n; i++ {
			out = append(out, x.elems...)
		}
		return NewList(out), true, nil
	}
	return nil, false, nil
}

func numericBinary(op Token, x, y Value) (Value, bool, error) {
	a, aInt := AsInt(x)
	b, bInt := AsInt(y)
	if aInt && bInt {
		v, err := intBinary(op, a, b)
		if v == nil && err == nil {
			return nil, false, nil
		}
		return v, true, err
	}

	af, _ := toFloat(x)
	bf, _ := toFloat(y)
	switch op {
	case PLUS:
		return Float(af + bf), true, nil
	case MINUS:
		return Float(af - bf), true, nil
	case STAR:
		return Float(af * bf), true, nil
	case SLASH:
		if bf == 0 {
			return nil, true, Errorf("float division by zero")
		}
		return Float(af / bf), true, nil
	case SLASHSLASH:
		if bf == 0 {
			return nil, true, Errorf("float floor division by zero")
		}
		return Float(math.Floor(af / bf)), true, nil
	case PERCENT:
		if bf == 0 {
			return nil, true, Errorf("float modulo")
		}
		m := math.Mod(af, bf)
		if m != 0 && (m < 0) != (bf < 0) {
			m += bf
		}
		return Float(m), true, nil
	case STARSTAR:
		return Float(math.Pow(af, bf)), true, nil
	}
	return nil, false, nil
}

func intBinary(op Token, a, b int64) (Value, error) {
	overflow := Errorf("integer overflow")
	switch op {
	case PLUS:
		s := a + b
		if (s > a) != (b > 0) {
			return nil, overflow
		}
		return Int(s), nil
	case MINUS:
		s := a - b
		if (s < a) != (b > 0) {
			return nil, overflow
		}
		return Int(s), nil
	case STAR:
		if a == 0 || b == 0 {
			return Int(0), nil
		}
		p := a * b
		if p/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
			return nil, overflow
		}
		return Int(p), nil
	case SLASH:
		if b == 0 {
			return nil, Errorf("division by zero")
		}
		return Float(float64(a) / float64(b)), nil
	case SLASHSLASH:
		if b == 0 {
			return nil, Errorf("integer division or modulo by zero")
		}
		q := a / b
		if (a%b != 0) && ((a < 0) != (b < 0)) {
			q--
		}
		return Int(q), nil
	case PERCENT:
		if b == 0 {
			return nil, Errorf("integer division or modulo by zero")
		}
		m := a % b
		if m != 0 && (m < 0) != (b < 0) {
			m += b
		}
		return Int(m), nil
	case STARSTAR:
		if b < 0 {
			return Float(math.Pow(float64(a), float64(b))), nil
		}
		result := int64(1)
		base := a
		for e := b; e > 0; e >>= 1 {
			if e&1 == 1 {
				hi, lo := bits.Mul64(uint64(abs64(result)), uint64(abs64(base)))
				if hi != 0 || lo > math.MaxInt64 {
					return nil, overflow
				}
				result *= base
			}
			if e > 1 {
				hi, lo := bits.Mul64(uint64(abs64(base)), uint64(abs64(base)))
				if hi != 0 || lo > math.MaxInt64 {
					return nil, overflow
				}
				base *= base
			}
		}
		return Int(result), nil
	case LTLT:
		if b < 0 {
			return nil, Errorf("negative shift count")
		}
		if b >= 63 || (a != 0 && bits.Len64(uint64(abs64(a)))+int(b) > 62) {
			if a == 0 {
				return Int(0), nil
			}
			return nil, overflow
		}
		return Int(a << uint(b)), nil
	case GTGT:
		if b < 0 {
			return nil, Errorf("negative shift count")
		}
		if b >= 64 {
			if a < 0 {
				return Int(-1), nil
			}
			return Int(0), nil
		}
		return Int(a >> uint(b)), nil
	case AMP:
		return Int(a & b), nil
	case PIPE:
		return Int(a | b), nil
	case CIRCUMFLEX:
		return Int(a ^ b), nil
	}
	return nil, nil
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// Unary 计算一元运算
func Unary(op Token, x Value) (Value, error) {
	switch op {
	case NOT:
		return Bool(!x.Truth()), nil
	case MINUS:
		switch v := x.(type) {
		case Float:
			return -v, nil
		default:
			if i, ok := AsInt(x); ok {
				if i == math.MinInt64 {
					return nil, Errorf("integer overflow")
				}
				return Int(-i), nil
			}
		}
	case PLUS:
		switch v := x.(type) {
		case Float:
			return v, nil
		default:
			if i, ok := AsInt(x); ok {
				return Int(i), nil
			}
		}
	case TILDE:
		if i, ok := AsInt(x); ok {
			return Int(^i), nil
		}
	}
	return nil, Errorf("bad operand type for unary %s: '%s'", op, x.Type())
}

// Len 返回序列长度，不支持时 ok 为 false
func Len(v Value) (int, bool) {
	switch x := v.(type) {
	case String:
		return len(x), true
	case Indexable:
		return x.Len(), true
	case Sequence:
		return x.Len(), true
	}
	return 0, false
}

// Iterate 返回值的迭代器
func Iterate(v Value) (Iterator, error) {
	if it, ok := v.(Iterable); ok {
		return it.Iterate(), nil
	}
	return nil, Errorf("'%s' object is not iterable", v.Type())
}

// collect 将可迭代值物化为切片，受容量上限约束
func collect(v Value) ([]Value, error) {
	if n, ok := Len(v); ok && n > MaxCollectionLen {
		return nil, Errorf("sequence exceeds maximum length %d", MaxCollectionLen)
	}
	it, err := Iterate(v)
	if err != nil {
		return nil, err
	}
	defer it.Done()
	var out []Value
	var x Value
	for it.Next(&x) {
		if len(out) >= MaxCollectionLen {
			return nil, Errorf("sequence exceeds maximum length %d", MaxCollectionLen)
		}
		out = append(out, x)
	}
	return out, nil
}

func normalizeIndex(i int64, n int) (int, error) {
	if i < 0 {
		i += int64(n)
	}
	if i < 0 || i >= int64(n) {
		return 0, Errorf("index out of range")
	}
	return int(i), nil
}

// getIndex 实现 x[i]
func getIndex(x, index Value) (Value, error) {
	if d, ok := x.(*Dict); ok {
		v, found, err := d.Get(index)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, Errorf("key %s not found", index.String())
		}
		return v, nil
	}
	seq, ok := x.(Indexable)
	if !ok {
		return nil, Errorf("'%s' object is not subscriptable", x.Type())
	}
	i, ok := AsInt(index)
	if !ok {
		return nil, Errorf("%s indices must be integers, not %s", x.Type(), index.Type())
	}
	n, err := normalizeIndex(i, seq.Len())
	if err != nil {
		return nil, Errorf("%s index out of range", x.Type())
	}
	return seq.Index(n), nil
}

// setIndex 实现 x[i] = v
func setIndex(x, index, v Value) error {
	switch c := x.(type) {
	case *Dict:
		return c.SetKey(index, v)
	case *List:
		i, ok := AsInt(index)
		if !ok {
			return Errorf("list indices must be integers, not %s", index.Type())
		}
		n, err := normalizeIndex(i, c.Len())
		if err != nil {
			return Errorf("list assignment index out of range")
		}
		c.setIndex(n, v)
		return nil
	}
	return Errorf("'%s' object does not support item assignment", x.Type())
}

// slice 实现 x[lo:hi:step]
func slice(x, lo, hi, step Value) (Value, error) {
	seq, ok := x.(Indexable)
	if !ok {
		return nil, Errorf("'%s' object is not subscriptable", x.Type())
	}
	n := int64(seq.Len())

	st := int64(1)
	if step != nil && step != Value(None) {
		s, ok := AsInt(step)
		if !ok {
			return nil, Errorf("slice indices must be integers")
		}
		if s == 0 {
			return nil, Errorf("slice step cannot be zero")
		}
		st = s
	}

	bound := func(v Value, def int64) (int64, error) {
		if v == nil || v == Value(None) {
			return def, nil
		}
		i, ok := AsInt(v)
		if !ok {
			return 0, Errorf("slice indices must be integers")
		}
		if i < 0 {
			i += n
		}
		if st > 0 {
			return clamp(i, 0, n), nil
		}
		return clamp(i, -1, n-1), nil
	}

	var start, stop int64
	var err error
	if st > 0 {
		if start, err = bound(lo, 0); err != nil {
			return nil, err
		}
		if stop, err = bound(hi, n); err != nil {
			return nil, err
		}
	} else {
		if start, err = bound(lo, n-1); err != nil {
			return nil, err
		}
		if stop, err = bound(hi, -1); err != nil {
			return nil, err
		}
	}

	var idx []int
	for i := start; (st > 0 && i < stop) || (st < 0 && i > stop); i += st {
		idx = append(idx, int(i))
	}

	switch c := x.(type) {
	case String:
		var sb strings.Builder
		for _, i := range idx {
			sb.WriteByte(c[i])
		}
		return String(sb.String()), nil
	case *List:
		out := make([]Value, len(idx))
		for j, i := range idx {
			out[j] = c.elems[i]
		}
		return NewList(out), nil
	default:
		out := make(Tuple, len(idx))
		for j, i := range idx {
			out[j] = seq.Index(i)
		}
		return out, nil
	}
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
