package script

import (
	"sort"
	"strconv"
	"strings"
)

// ============================================================
// 内置类型方法
// ============================================================

var stringMethods = map[string]BuiltinFunc{
	"upper":      strUpper,
	"lower":      strLower,
	"title":      strTitle,
	"strip":      strStrip,
	"lstrip":     strStrip,
	"rstrip":     strStrip,
	"split":      strSplit,
	"join":       strJoin,
	"replace":    strReplace,
	"startswith": strStartsWith,
	"endswith":   strEndsWith,
	"format":     strFormat,
}

var listMethods = map[string]BuiltinFunc{
	"append":  listAppend,
	"extend":  listExtend,
	"insert":  listInsert,
	"pop":     listPop,
	"index":   listIndex,
	"reverse": listReverse,
}

var dictMethods = map[string]BuiltinFunc{
	"get":    dictGet,
	"keys":   dictKeys,
	"values": dictValues,
	"items":  dictItems,
	"update": dictUpdate,
	"pop":    dictPop,
}

// getAttr 实现 x.name
func getAttr(x Value, name string) (Value, error) {
	var methods map[string]BuiltinFunc
	switch v := x.(type) {
	case String:
		methods = stringMethods
	case *List:
		methods = listMethods
	case *Dict:
		methods = dictMethods
	case HasAttrs:
		attr, err := v.Attr(name)
		if err != nil {
			return nil, err
		}
		if attr != nil {
			return attr, nil
		}
	}
	if fn, ok := methods[name]; ok {
		return NewBuiltin(name, fn).BindReceiver(x), nil
	}
	return nil, Errorf("'%s' object has no attribute '%s'", x.Type(), name)
}

// AttrNames 返回值可访问的属性名
func AttrNames(x Value) []string {
	var names []string
	switch v := x.(type) {
	case String:
		names = methodNames(stringMethods)
	case *List:
		names = methodNames(listMethods)
	case *Dict:
		names = methodNames(dictMethods)
	case HasAttrs:
		names = v.AttrNames()
	}
	return names
}

func methodNames(m map[string]BuiltinFunc) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func recvString(b *Builtin) string { return string(b.Receiver().(String)) }

func strUpper(_ *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	if err := UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	return String(strings.ToUpper(recvString(b))), nil
}

func strLower(_ *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	if err := UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	return String(strings.ToLower(recvString(b))), nil
}

func strTitle(_ *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	if err := UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	words := strings.Fields(recvString(b))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return String(strings.Join(words, " ")), nil
}

func strStrip(_ *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	var chars Value = None
	if err := UnpackArgs(b.Name(), args, kwargs, "chars?", &chars); err != nil {
		return nil, err
	}
	s := recvString(b)
	cutset := " \t\n\r\v\f"
	if c, ok := chars.(String); ok {
		cutset = string(c)
	}
	switch b.Name() {
	case "lstrip":
		return String(strings.TrimLeft(s, cutset)), nil
	case "rstrip":
		return String(strings.TrimRight(s, cutset)), nil
	}
	return String(strings.Trim(s, cutset)), nil
}

func strSplit(_ *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	var sep Value = None
	maxsplit := -1
	if err := UnpackArgs(b.Name(), args, kwargs, "sep?", &sep, "maxsplit?", &maxsplit); err != nil {
		return nil, err
	}
	s := recvString(b)
	var parts []string
	if sepStr, ok := sep.(String); ok {
		if sepStr == "" {
			return nil, Errorf("empty separator")
		}
		n := -1
		if maxsplit >= 0 {
			n = maxsplit + 1
		}
		parts = strings.SplitN(s, string(sepStr), n)
	} else {
		parts = strings.Fields(s)
	}
	out := make([]Value, len(parts))
	for i, p := range parts {
		out[i] = String(p)
	}
	return NewList(out), nil
}

func strJoin(_ *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	var iterable Value
	if err := UnpackArgs(b.Name(), args, kwargs, "iterable", &iterable); err != nil {
		return nil, err
	}
	elems, err := collect(iterable)
	if err != nil {
		return nil, err
	}
	parts := make([]string, len(elems))
	total := 0
	for i, e := range elems {
		s, ok := e.(String)
		if !ok {
			return nil, Errorf("sequence item %d: expected str instance, %s found", i, e.Type())
		}
		parts[i] = string(s)
		total += len(s)
	}
	if total > MaxStringLen {
		return nil, Errorf("string exceeds maximum length")
	}
	return String(strings.Join(parts, recvString(b))), nil
}

func strReplace(_ *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	var old, repl string
	count := -1
	if err := UnpackArgs(b.Name(), args, kwargs, "old", &old, "new", &repl, "count?", &count); err != nil {
		return nil, err
	}
	s := recvString(b)
	n := strings.Count(s, old)
	if count >= 0 && count < n {
		n = count
	}
	if len(s)+n*(len(repl)-len(old)) > MaxStringLen {
		return nil, Errorf("string exceeds maximum length")
	}
	return String(strings.Replace(s, old, repl, count)), nil
}

func strStartsWith(_ *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	var prefix Value
	if err := UnpackArgs(b.Name(), args, kwargs, "prefix", &prefix); err != nil {
		return nil, err
	}
	return affixMatch(recvString(b), prefix, strings.HasPrefix)
}

func strEndsWith(_ *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	var suffix Value
	if err := UnpackArgs(b.Name(), args, kwargs, "suffix", &suffix); err != nil {
		return nil, err
	}
	return affixMatch(recvString(b), suffix, strings.HasSuffix)
}

func affixMatch(s string, affix Value, match func(string, string) bool) (Value, error) {
	switch a := affix.(type) {
	case String:
		return Bool(match(s, string(a))), nil
	case Tuple:
		for _, e := range a {
			es, ok := e.(String)
			if !ok {
				return nil, Errorf("tuple for startswith/endswith must only contain str")
			}
			if match(s, string(es)) {
				return True, nil
			}
		}
		return False, nil
	}
	return nil, Errorf("startswith/endswith argument must be str or a tuple of str, not %s", affix.Type())
}

// strFormat 支持 {}、{0}、{name} 占位符，不支持格式说明符
func strFormat(_ *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	s := recvString(b)
	var sb strings.Builder
	auto := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '}' {
			if i+1 < len(s) && s[i+1] == '}' {
				i++
				sb.WriteByte('}')
				continue
			}
			return nil, Errorf("single '}' encountered in format string")
		}
		if c != '{' {
			sb.WriteByte(c)
			continue
		}
		if i+1 < len(s) && s[i+1] == '{' {
			i++
			sb.WriteByte('{')
			continue
		}
		end := strings.IndexByte(s[i:], '}')
		if end < 0 {
			return nil, Errorf("single '{' encountered in format string")
		}
		field := s[i+1 : i+end]
		i += end
		if strings.ContainsAny(field, ":!.[") {
			return nil, Errorf("format specifiers are not supported")
		}

		var v Value
		switch {
		case field == "":
			if auto >= len(args) {
				return nil, Errorf("replacement index %d out of range", auto)
			}
			v = args[auto]
			auto++
		case isDigit(rune(field[0])):
			n, err := strconv.Atoi(field)
			if err != nil || n >= len(args) {
				return nil, Errorf("replacement index %s out of range", field)
			}
			v = args[n]
		default:
			for _, kw := range kwargs {
				if kw.Name == field {
					v = kw.Value
				}
			}
			if v == nil {
				return nil, Errorf("missing format key '%s'", field)
			}
		}
		sb.WriteString(Str(v))
		if sb.Len() > MaxStringLen {
			return nil, Errorf("string exceeds maximum length")
		}
	}
	return String(sb.String()), nil
}

// percentFormat 实现 "%s" % value，支持 %s %r %d %i %f %%
func percentFormat(format string, arg Value) (Value, error) {
	var args Tuple
	if t, ok := arg.(Tuple); ok {
		args = t
	} else {
		args = Tuple{arg}
	}

	var sb strings.Builder
	next := 0
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			sb.WriteByte(c)
			continue
		}
		if i+1 >= len(format) {
			return nil, Errorf("incomplete format")
		}
		i++
		verb := format[i]
		if verb == '%' {
			sb.WriteByte('%')
			continue
		}
		if next >= len(args) {
			return nil, Errorf("not enough arguments for format string")
		}
		v := args[next]
		next++
		switch verb {
		case 's':
			sb.WriteString(Str(v))
		case 'r':
			sb.WriteString(v.String())
		case 'd', 'i':
			f, ok := toFloat(v)
			if !ok {
				return nil, Errorf("%%%c format: a number is required, not %s", verb, v.Type())
			}
			sb.WriteString(strconv.FormatInt(int64(f), 10))
		case 'f':
			f, ok := toFloat(v)
			if !ok {
				return nil, Errorf("%%f format: a number is required, not %s", v.Type())
			}
			sb.WriteString(strconv.FormatFloat(f, 'f', 6, 64))
		default:
			return nil, Errorf("unsupported format character '%c'", verb)
		}
		if sb.Len() > MaxStringLen {
			return nil, Errorf("string exceeds maximum length")
		}
	}
	if next < len(args) {
		return nil, Errorf("not all arguments converted during string formatting")
	}
	return String(sb.String()), nil
}

func recvList(b *Builtin) *List { return b.Receiver().(*List) }

func listAppend(_ *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	var v Value
	if err := UnpackArgs(b.Name(), args, kwargs, "object", &v); err != nil {
		return nil, err
	}
	return None, recvList(b).Append(v)
}

func listExtend(_ *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	var iterable Value
	if err := UnpackArgs(b.Name(), args, kwargs, "iterable", &iterable); err != nil {
		return nil, err
	}
	elems, err := collect(iterable)
	if err != nil {
		return nil, err
	}
	l := recvList(b)
	for _, e := range elems {
		if err := l.Append(e); err != nil {
			return nil, err
		}
	}
	return None, nil
}

func listInsert(_ *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	var index int
	var v Value
	if err := UnpackArgs(b.Name(), args, kwargs, "index", &index, "object", &v); err != nil {
		return nil, err
	}
	l := recvList(b)
	if len(l.elems) >= MaxCollectionLen {
		return nil, Errorf("list exceeds maximum length %d", MaxCollectionLen)
	}
	n := len(l.elems)
	if index < 0 {
		index += n
	}
	index = int(clamp(int64(index), 0, int64(n)))
	l.elems = append(l.elems, nil)
	copy(l.elems[index+1:], l.elems[index:])
	l.elems[index] = v
	return None, nil
}

func listPop(_ *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	index := -1
	if err := UnpackArgs(b.Name(), args, kwargs, "index?", &index); err != nil {
		return nil, err
	}
	l := recvList(b)
	if len(l.elems) == 0 {
		return nil, Errorf("pop from empty list")
	}
	i, err := normalizeIndex(int64(index), len(l.elems))
	if err != nil {
		return nil, Errorf("pop index out of range")
	}
	v := l.elems[i]
	l.elems = append(l.elems[:i], l.elems[i+1:]...)
	return v, nil
}

func listIndex(_ *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	var x Value
	if err := UnpackArgs(b.Name(), args, kwargs, "value", &x); err != nil {
		return nil, err
	}
	for i, e := range recvList(b).elems {
		eq, err := Equal(e, x)
		if err != nil {
			return nil, err
		}
		if eq {
			return Int(i), nil
		}
	}
	return nil, Errorf("%s is not in list", x.String())
}

func listReverse(_ *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	if err := UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	elems := recvList(b).elems
	for i, j := 0, len(elems)-1; i < j; i, j = i+1, j-1 {
		elems[i], elems[j] = elems[j], elems[i]
	}
	return None, nil
}

func recvDict(b *Builtin) *Dict { return b.Receiver().(*Dict) }

func dictGet(_ *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	var key Value
	var def Value = None
	if err := UnpackArgs(b.Name(), args, kwargs, "key", &key, "default?", &def); err != nil {
		return nil, err
	}
	v, found, err := recvDict(b).Get(key)
	if err != nil {
		return nil, err
	}
	if !found {
		return def, nil
	}
	return v, nil
}

func dictKeys(_ *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	if err := UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	return NewList(recvDict(b).Keys()), nil
}

func dictValues(_ *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	if err := UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	return NewList(append([]Value(nil), recvDict(b).values...)), nil
}

func dictItems(_ *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	if err := UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	items := recvDict(b).Items()
	out := make([]Value, len(items))
	for i, t := range items {
		out[i] = t
	}
	return NewList(out), nil
}

func dictUpdate(_ *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	if len(args) > 1 {
		return nil, Errorf("update expected at most 1 argument, got %d", len(args))
	}
	d := recvDict(b)
	if len(args) == 1 {
		other, ok := args[0].(*Dict)
		if !ok {
			return nil, Errorf("update argument must be a dict, not %s", args[0].Type())
		}
		for _, kv := range other.Items() {
			if err := d.SetKey(kv[0], kv[1]); err != nil {
				return nil, err
			}
		}
	}
	for _, kw := range kwargs {
		if err := d.SetKey(String(kw.Name), kw.Value); err != nil {
			return nil, err
		}
	}
	return None, nil
}

func dictPop(_ *Thread, b *Builtin, args Tuple, kwargs []Kwarg) (Value, error) {
	var key, def Value
	if err := UnpackArgs(b.Name(), args, kwargs, "key", &key, "default?", &def); err != nil {
		return nil, err
	}
	v, found, err := recvDict(b).Delete(key)
	if err != nil {
		return nil, err
	}
	if !found {
		if def == nil {
			return nil, Errorf("key %s not found", key.String())
		}
		return def, nil
	}
	return v, nil
}
