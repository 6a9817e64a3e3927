package script

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// Universe 返回纯函数内置集合。
// 不包含任何能访问文件、进程、反射或动态求值的函数。
func Universe() StringDict {
	return StringDict{
		"abs":       NewBuiltin("abs", builtinAbs),
		"bool":      NewBuiltin("bool", builtinBool),
		"dict":      NewBuiltin("dict", builtinDict),
		"enumerate": NewBuiltin("enumerate", builtinEnumerate),
		"float":     NewBuiltin("float", builtinFloat),
		"int":       NewBuiltin("int", builtinInt),
		"len":       NewBuiltin("len", builtinLen),
		"list":      NewBuiltin("list", builtinList),
		"max":       NewBuiltin("max", builtinMinMax),
		"min":       NewBuiltin("min", builtinMinMax),
		"print":     NewBuiltin("print", builtinPrint),
		"range":     NewBuiltin("range", builtinRange),
		"reversed":  NewBuiltin("reversed", builtinReversed),
		"round":     NewBuiltin("round", builtinRound),
		"sorted":    NewBuiltin("sorted", builtinSorted),
		"str":       NewBuiltin("str", builtinStr),
		"sum":       NewBuiltin("sum", builtinSum),
		"tuple":     NewBuiltin("tuple", builtinTuple),
		"zip":       NewBuiltin("zip", builtinZip),
	}
}

func builtinAbs(_ *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	var x Value
	if err := UnpackArgs(b.Name(), args, kwargs, "x", &x); err != nil {
		return nil, err
	}
	switch v := x.(type) {
	case Float:
		return Float(math.Abs(float64(v))), nil
	default:
		i, ok := AsInt(x)
		if !ok {
			return nil, Errorf("bad operand type for abs(): '%s'", x.Type())
		}
		if i < 0 {
			return Unary(MINUS, Int(i))
		}
		return Int(i), nil
	}
}

func builtinBool(_ *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	var x Value = False
	if err := UnpackArgs(b.Name(), args, kwargs, "x?", &x); err != nil {
		return nil, err
	}
	return Bool(x.Truth()), nil
}

func builtinDict(_ *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	if len(args) > 1 {
		return nil, Errorf("dict expected at most 1 argument, got %d", len(args))
	}
	d := NewDict()
	if len(args) == 1 {
		if src, ok := args[0].(*Dict); ok {
			for _, kv := range src.Items() {
				if err := d.SetKey(kv[0], kv[1]); err != nil {
					return nil, err
				}
			}
		} else {
			pairs, err := collect(args[0])
			if err != nil {
				return nil, err
			}
			for i, p := range pairs {
				kv, err := collect(p)
				if err != nil || len(kv) != 2 {
					return nil, Errorf("dictionary update sequence element #%d has wrong length", i)
				}
				if err := d.SetKey(kv[0], kv[1]); err != nil {
					return nil, err
				}
			}
		}
	}
	for _, kw := range kwargs {
		if err := d.SetKey(String(kw.Name), kw.Value); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func builtinEnumerate(_ *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	var iterable Value
	start := 0
	if err := UnpackArgs(b.Name(), args, kwargs, "iterable", &iterable, "start?", &start); err != nil {
		return nil, err
	}
	elems, err := collect(iterable)
	if err != nil {
		return nil, err
	}
	out := make([]Value, len(elems))
	for i, e := range elems {
		out[i] = Tuple{Int(start + i), e}
	}
	return NewList(out), nil
}

func builtinFloat(_ *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	var x Value = Float(0)
	if err := UnpackArgs(b.Name(), args, kwargs, "x?", &x); err != nil {
		return nil, err
	}
	switch v := x.(type) {
	case Float:
		return v, nil
	case String:
		s := strings.ToLower(strings.TrimSpace(string(v)))
		switch s {
		case "inf", "+inf", "infinity":
			return Float(math.Inf(1)), nil
		case "-inf", "-infinity":
			return Float(math.Inf(-1)), nil
		case "nan":
			return Float(math.NaN()), nil
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(s, "_", ""), 64)
		if err != nil {
			return nil, Errorf("could not convert string to float: %s", v.String())
		}
		return Float(f), nil
	}
	if i, ok := AsInt(x); ok {
		return Float(i), nil
	}
	return nil, Errorf("float() argument must be a string or a number, not '%s'", x.Type())
}

func builtinInt(_ *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	var x Value = Int(0)
	base := 10
	if err := UnpackArgs(b.Name(), args, kwargs, "x?", &x, "base?", &base); err != nil {
		return nil, err
	}
	switch v := x.(type) {
	case Float:
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) >= math.MaxInt64 {
			return nil, Errorf("cannot convert float %s to integer", v.String())
		}
		return Int(int64(f)), nil
	case String:
		s := strings.ReplaceAll(strings.TrimSpace(string(v)), "_", "")
		i, err := strconv.ParseInt(s, base, 64)
		if err != nil {
			return nil, Errorf("invalid literal for int() with base %d: %s", base, v.String())
		}
		return Int(i), nil
	}
	if i, ok := AsInt(x); ok {
		return Int(i), nil
	}
	return nil, Errorf("int() argument must be a string or a number, not '%s'", x.Type())
}

func builtinLen(_ *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	var x Value
	if err := UnpackArgs(b.Name(), args, kwargs, "obj", &x); err != nil {
		return nil, err
	}
	n, ok := Len(x)
	if !ok {
		return nil, Errorf("object of type '%s' has no len()", x.Type())
	}
	return Int(n), nil
}

func builtinList(_ *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	var iterable Value = Tuple{}
	if err := UnpackArgs(b.Name(), args, kwargs, "iterable?", &iterable); err != nil {
		return nil, err
	}
	elems, err := collect(iterable)
	if err != nil {
		return nil, err
	}
	return NewList(elems), nil
}

func builtinTuple(_ *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	var iterable Value = Tuple{}
	if err := UnpackArgs(b.Name(), args, kwargs, "iterable?", &iterable); err != nil {
		return nil, err
	}
	elems, err := collect(iterable)
	if err != nil {
		return nil, err
	}
	return Tuple(elems), nil
}

// builtinMinMax min(iterable) / min(a, b, ...)，支持 key=
func builtinMinMax(th *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	var key Value
	for _, kw := range kwargs {
		if kw.Name != "key" {
			return nil, Errorf("%s() got an unexpected keyword argument '%s'", b.Name(), kw.Name)
		}
		key = kw.Value
	}
	var elems []Value
	switch len(args) {
	case 0:
		return nil, Errorf("%s expected at least 1 argument, got 0", b.Name())
	case 1:
		var err error
		if elems, err = collect(args[0]); err != nil {
			return nil, err
		}
	default:
		elems = args
	}
	if len(elems) == 0 {
		return nil, Errorf("%s() arg is an empty sequence", b.Name())
	}

	want := -1
	if b.Name() == "max" {
		want = 1
	}
	best := elems[0]
	bestKey, err := applyKey(th, key, best)
	if err != nil {
		return nil, err
	}
	for _, e := range elems[1:] {
		k, err := applyKey(th, key, e)
		if err != nil {
			return nil, err
		}
		c, err := Compare(k, bestKey)
		if err != nil {
			return nil, err
		}
		if c == want {
			best, bestKey = e, k
		}
	}
	return best, nil
}

func applyKey(th *Thread, key, v Value) (Value, error) {
	if key == nil || key == Value(None) {
		return v, nil
	}
	return Call(th, key, Tuple{v}, nil)
}

func builtinPrint(th *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	sep := " "
	for _, kw := range kwargs {
		switch kw.Name {
		case "sep":
			if s, ok := kw.Value.(String); ok {
				sep = string(s)
			}
		case "end", "flush":
		default:
			return nil, Errorf("print() got an unexpected keyword argument '%s'", kw.Name)
		}
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = Str(a)
	}
	if th.Print != nil {
		th.Print(th, strings.Join(parts, sep))
	}
	return None, nil
}

func builtinRange(_ *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	if len(kwargs) > 0 {
		return nil, Errorf("range() takes no keyword arguments")
	}
	nums := make([]int64, len(args))
	for i, a := range args {
		n, ok := AsInt(a)
		if !ok {
			return nil, Errorf("'%s' object cannot be interpreted as an integer", a.Type())
		}
		nums[i] = n
	}
	switch len(nums) {
	case 1:
		return Range{start: 0, stop: nums[0], step: 1}, nil
	case 2:
		return Range{start: nums[0], stop: nums[1], step: 1}, nil
	case 3:
		if nums[2] == 0 {
			return nil, Errorf("range() arg 3 must not be zero")
		}
		return Range{start: nums[0], stop: nums[1], step: nums[2]}, nil
	}
	return nil, Errorf("range expected 1 to 3 arguments, got %d", len(nums))
}

func builtinReversed(_ *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	var seq Value
	if err := UnpackArgs(b.Name(), args, kwargs, "sequence", &seq); err != nil {
		return nil, err
	}
	elems, err := collect(seq)
	if err != nil {
		return nil, err
	}
	out := make([]Value, len(elems))
	for i, e := range elems {
		out[len(elems)-1-i] = e
	}
	return NewList(out), nil
}

func builtinRound(_ *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	var x Value
	var ndigits Value = None
	if err := UnpackArgs(b.Name(), args, kwargs, "number", &x, "ndigits?", &ndigits); err != nil {
		return nil, err
	}
	f, ok := toFloat(x)
	if !ok {
		return nil, Errorf("type %s doesn't define __round__ method", x.Type())
	}
	if ndigits == Value(None) {
		r := math.RoundToEven(f)
		if math.IsNaN(r) || math.IsInf(r, 0) || math.Abs(r) >= math.MaxInt64 {
			return nil, Errorf("cannot convert float %s to integer", Float(f).String())
		}
		return Int(int64(r)), nil
	}
	n, ok := AsInt(ndigits)
	if !ok {
		return nil, Errorf("'%s' object cannot be interpreted as an integer", ndigits.Type())
	}
	if n > 15 {
		n = 15
	}
	scale := math.Pow(10, float64(n))
	return Float(math.RoundToEven(f*scale) / scale), nil
}

func builtinSorted(th *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	var iterable Value
	var key Value = None
	reverse := false
	if err := UnpackArgs(b.Name(), args, kwargs, "iterable", &iterable, "key?", &key, "reverse?", &reverse); err != nil {
		return nil, err
	}
	elems, err := collect(iterable)
	if err != nil {
		return nil, err
	}
	keys := make([]Value, len(elems))
	for i, e := range elems {
		if keys[i], err = applyKey(th, key, e); err != nil {
			return nil, err
		}
	}

	idx := make([]int, len(elems))
	for i := range idx {
		idx[i] = i
	}
	var cmpErr error
	sort.SliceStable(idx, func(i, j int) bool {
		c, err := Compare(keys[idx[i]], keys[idx[j]])
		if err != nil && cmpErr == nil {
			cmpErr = err
		}
		if reverse {
			return c > 0
		}
		return c < 0
	})
	if cmpErr != nil {
		return nil, cmpErr
	}
	out := make([]Value, len(idx))
	for i, j := range idx {
		out[i] = elems[j]
	}
	return NewList(out), nil
}

func builtinStr(_ *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	var x Value = String("")
	if err := UnpackArgs(b.Name(), args, kwargs, "object?", &x); err != nil {
		return nil, err
	}
	return String(Str(x)), nil
}

func builtinSum(_ *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	var iterable Value
	var start Value = Int(0)
	if err := UnpackArgs(b.Name(), args, kwargs, "iterable", &iterable, "start?", &start); err != nil {
		return nil, err
	}
	if _, ok := start.(String); ok {
		return nil, Errorf("sum() can't sum strings [use ''.join(seq) instead]")
	}
	elems, err := collect(iterable)
	if err != nil {
		return nil, err
	}
	total := start
	for _, e := range elems {
		if total, err = Binary(PLUS, total, e); err != nil {
			return nil, err
		}
	}
	return total, nil
}

func builtinZip(_ *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	if len(kwargs) > 0 {
		return nil, Errorf("zip() takes no keyword arguments")
	}
	cols := make([][]Value, len(args))
	n := -1
	for i, a := range args {
		elems, err := collect(a)
		if err != nil {
			return nil, err
		}
		cols[i] = elems
		if n < 0 || len(elems) < n {
			n = len(elems)
		}
	}
	if n < 0 {
		n = 0
	}
	out := make([]Value, n)
	for i := 0; i < n; i++ {
		row := make(Tuple, len(cols))
		for j := range cols {
			row[j] = cols[j][i]
		}
		out[i] = row
	}
	return NewList(out), nil
}
