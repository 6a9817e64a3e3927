package script

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Parse
// =============================================================================

func TestParse_DiagramScript(t *testing.T) {
	src := `from diagrams import Diagram, Cluster
from diagrams.aws.compute import EC2

with Diagram("Web Service", show=False):
    with Cluster("workers"):
        workers = [EC2("w1"), EC2("w2")]
    lb = ELB("lb")  # entry point
    lb >> workers
`
	f, err := Parse(src)
	require.NoError(t, err)
	require.Len(t, f.Stmts, 3)

	imp, ok := f.Stmts[0].(*FromImportStmt)
	require.True(t, ok)
	assert.Equal(t, "diagrams", imp.Module)
	require.Len(t, imp.Names, 2)
	assert.Equal(t, "Cluster", imp.Names[1].Name)

	with, ok := f.Stmts[2].(*WithStmt)
	require.True(t, ok)
	require.Len(t, with.Items, 1)
	call, ok := with.Items[0].Context.(*CallExpr)
	require.True(t, ok)
	assert.Equal(t, "Diagram", DottedName(call.Fn))
	require.NotNil(t, call.KeywordArg("show"))
	assert.Nil(t, call.KeywordArg("filename"))
	require.Len(t, with.Body, 3)

	last, ok := with.Body[2].(*ExprStmt)
	require.True(t, ok)
	bin, ok := last.X.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, GTGT, bin.Op)
	assert.Equal(t, Position{Line: 8, Col: 8}, bin.OpPos)
}

func TestParse_Statements(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"chained assignment", "a = b = 1\n"},
		{"tuple unpacking", "a, b = 1, 2\n"},
		{"augmented assignment", "x = 1\nx += 2\n"},
		{"for else", "for i in range(3):\n    pass\nelse:\n    pass\n"},
		{"while break", "while True:\n    break\n"},
		{"if elif else", "if a:\n    x = 1\nelif b:\n    x = 2\nelse:\n    x = 3\n"},
		{"def with defaults", "def f(a, b=2):\n    return a + b\n"},
		{"inline suite", "if x: y = 1\n"},
		{"semicolons", "a = 1; b = 2;\n"},
		{"import as", "import diagrams.aws as aws\n"},
		{"parenthesized from import", "from diagrams.aws.network import (\n    ELB,\n    Route53,\n)\n"},
		{"slice", "x = items[1:]\ny = items[::-1]\n"},
		{"conditional expression", "x = 1 if flag else 2\n"},
		{"dict literal", "d = {'a': 1, 'b': [1, 2]}\n"},
		{"implicit line joining", "x = [\n    1,\n    2,\n]\n"},
		{"backslash continuation", "x = 1 + \\\n    2\n"},
		{"no trailing newline", "x = 1"},
		{"comment only lines", "# header\n\n   # indented comment\nx = 1\n"},
		{"not in / is not", "a = x not in y\nb = x is not None\n"},
		{"string concatenation", "s = 'a' \"b\" '''c'''\n"},
		{"tabs", "if x:\n\ty = 1\n"},
		{"edge label", "a >> Edge(label='HTTPS', color='red') >> b\n"},
		{"list comprehension", "x = [EC2(f'w{i}') for i in range(3) if i]\n"},
		{"nested comprehension", "x = [a + b for a in xs for b in ys if a if b]\n"},
		{"comprehension unpacking", "x = [k for k, v in d.items()]\n"},
		{"dict comprehension", "x = {k: v for k, v in pairs}\n"},
		{"generator argument", "x = sum(i for i in range(3))\n"},
		{"parenthesized generator", "x = (i * 2 for i in y)\n"},
		{"f-string conversion", "x = f'{name!r} {n!s}'\n"},
		{"f-string braces", "x = f'{{literal}} {d[\"k\"]}'\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			assert.NoError(t, err)
		})
	}
}

func TestParse_Unsupported(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantMsg string
	}{
		{"class", "class A:\n    pass\n", "unsupported syntax: class"},
		{"lambda", "f = lambda x: x\n", "unsupported syntax: lambda"},
		{"try", "try:\n    pass\nexcept:\n    pass\n", "unsupported syntax: try"},
		{"unparenthesized generator", "f(1, i for i in y)\n", "generator expression must be parenthesized"},
		{"set comprehension", "x = {i for i in y}\n", "set literal"},
		{"f-string format spec", "x = f'{y:>10}'\n", "f-string format spec"},
		{"f-string empty field", "x = f'{}'\n", "empty expression"},
		{"f-string single brace", "x = f'a}'\n", "single '}'"},
		{"f-string unclosed field", "x = f'{y'\n", "expecting '}'"},
		{"f-string backslash in field", "x = f'{\\'a\\'}'\n", "backslash"},
		{"f-string bad conversion", "x = f'{y!x}'\n", "invalid conversion"},
		{"f-string self documenting", "x = f'{y=}'\n", "self-documenting"},
		{"lambda in f-string", "x = f'{(lambda: 1)}'\n", "unsupported syntax: lambda"},
		{"decorator", "@dec\ndef f():\n    pass\n", "decorators"},
		{"star args", "f(*args)\n", "argument unpacking"},
		{"chained comparison", "x = 1 < y < 3\n", "chained comparison"},
		{"set literal", "x = {1, 2}\n", "set literal"},
		{"walrus", "if (n := 10):\n    pass\n", "assignment expressions"},
		{"del", "del x\n", "unsupported syntax: del"},
		{"global", "global x\n", "unsupported syntax: global"},
		{"raise", "raise\n", "unsupported syntax: raise"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			require.Error(t, err)
			var se *SyntaxError
			require.True(t, errors.As(err, &se))
			assert.Contains(t, se.Msg, tt.wantMsg)
		})
	}
}

func TestParse_SyntaxErrors(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		wantLine int
	}{
		{"unclosed paren", "x = (1,\n", 2},
		{"unterminated string", "x = 'abc\n", 1},
		{"bad dedent", "if x:\n    a = 1\n  b = 2\n", 3},
		{"unexpected indent", "a = 1\n    b = 2\n", 2},
		{"missing block", "if x:\nb = 1\n", 2},
		{"assign to call", "f() = 1\n", 1},
		{"assign to literal", "1 = x\n", 1},
		{"keyword then positional", "f(a=1, 2)\n", 1},
		{"duplicate keyword", "f(a=1, a=2)\n", 1},
		{"leading zero", "x = 012\n", 1},
		{"integer overflow", "x = 99999999999999999999\n", 1},
		{"unexpected character", "x = $\n", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			require.Error(t, err)
			var se *SyntaxError
			require.True(t, errors.As(err, &se), "got %T: %v", err, err)
			assert.Equal(t, tt.wantLine, se.Pos.Line)
		})
	}
}

func TestParse_NestingLimit(t *testing.T) {
	src := "x = "
	for i := 0; i < 500; i++ {
		src += "("
	}
	src += "1"
	for i := 0; i < 500; i++ {
		src += ")"
	}
	_, err := Parse(src + "\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many nested expressions")
}

func TestParse_StringEscapes(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`'a\nb'`, "a\nb"},
		{`'\x41\u00e9'`, "Aé"},
		{`r'a\nb'`, `a\nb`},
		{`'it\'s'`, "it's"},
		{`"""multi
line"""`, "multi\nline"},
		{`'\d'`, `\d`},
		{`b'bytes'`, "bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			e, err := ParseExpr(tt.src)
			require.NoError(t, err)
			lit, ok := e.(*Literal)
			require.True(t, ok)
			assert.Equal(t, tt.want, lit.Value)
		})
	}
}

func TestParse_FString(t *testing.T) {
	e, err := ParseExpr(`'pre ' f"w{i + 1}\t{name!r}{{x}}" ' post'`)
	require.NoError(t, err)
	fs, ok := e.(*FStringExpr)
	require.True(t, ok, "got %T", e)
	require.Len(t, fs.Parts, 5)

	assert.Equal(t, "pre w", fs.Parts[0].Lit)
	bin, ok := fs.Parts[1].X.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, PLUS, bin.Op)
	assert.Equal(t, "\t", fs.Parts[2].Lit)
	assert.Equal(t, "name", DottedName(fs.Parts[3].X))
	assert.Equal(t, byte('r'), fs.Parts[3].Conv)
	assert.Equal(t, "{x} post", fs.Parts[4].Lit)

	raw, err := ParseExpr(`rf"\d{x}"`)
	require.NoError(t, err)
	assert.Equal(t, `\d`, raw.(*FStringExpr).Parts[0].Lit)

	plain, err := ParseExpr(`f"no fields"`)
	require.NoError(t, err)
	require.Len(t, plain.(*FStringExpr).Parts, 1)
}

func TestParse_Comprehension(t *testing.T) {
	e, err := ParseExpr("[x * y for x in xs if x for y in range(x)]")
	require.NoError(t, err)
	comp, ok := e.(*Comprehension)
	require.True(t, ok, "got %T", e)
	assert.Equal(t, LBRACK, comp.Kind)
	assert.Nil(t, comp.Key)
	require.Len(t, comp.Clauses, 2)
	assert.Len(t, comp.Clauses[0].Conds, 1)
	assert.Equal(t, "range", DottedName(comp.Clauses[1].Iter.(*CallExpr).Fn))

	e, err = ParseExpr("{k: v for k, v in items}")
	require.NoError(t, err)
	dict, ok := e.(*Comprehension)
	require.True(t, ok)
	assert.Equal(t, LBRACE, dict.Kind)
	assert.NotNil(t, dict.Key)
	_, ok = dict.Clauses[0].Target.(*TupleExpr)
	assert.True(t, ok)

	e, err = ParseExpr("f(x for x in y)")
	require.NoError(t, err)
	call := e.(*CallExpr)
	require.Len(t, call.Args, 1)
	gen, ok := call.Args[0].(*Comprehension)
	require.True(t, ok)
	assert.Equal(t, LPAREN, gen.Kind)

	_, err = ParseExpr("[f() for f() in y]")
	assert.Error(t, err)
}

func TestParseExpr_Precedence(t *testing.T) {
	e, err := ParseExpr("a >> b - c * d ** -e")
	require.NoError(t, err)

	shift, ok := e.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, GTGT, shift.Op)

	minus, ok := shift.Y.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, MINUS, minus.Op)

	mul, ok := minus.Y.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, STAR, mul.Op)

	pow, ok := mul.Y.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, STARSTAR, pow.Op)
	_, ok = pow.Y.(*UnaryExpr)
	assert.True(t, ok)
}

// =============================================================================
// Inspect
// =============================================================================

func TestInspect_VisitsAllCalls(t *testing.T) {
	src := `def build(n=len(items)):
    for x in range(n):
        if check(x):
            nodes.append(make(x, label=fmt(x)))
    return total(nodes)
with ctx(a) as c, other():
    pass
`
	f, err := Parse(src)
	require.NoError(t, err)

	var calls []string
	Inspect(f, func(n Node) bool {
		if c, ok := n.(*CallExpr); ok {
			calls = append(calls, DottedName(c.Fn))
		}
		return true
	})
	assert.Equal(t, []string{"len", "range", "check", "nodes.append", "make", "fmt", "total", "ctx", "other"}, calls)
}

func TestInspect_VisitsComprehensionsAndFStrings(t *testing.T) {
	src := `x = [make(f"{label(i)}") for i in source() if keep(i)]
y = {key(k): val(v) for k, v in pairs()}
`
	f, err := Parse(src)
	require.NoError(t, err)

	var calls []string
	Inspect(f, func(n Node) bool {
		if c, ok := n.(*CallExpr); ok {
			calls = append(calls, DottedName(c.Fn))
		}
		return true
	})
	assert.Equal(t, []string{"make", "label", "source", "keep", "key", "val", "pairs"}, calls)
}

func TestInspect_SkipChildren(t *testing.T) {
	f, err := Parse("f(g(h()))\n")
	require.NoError(t, err)

	count := 0
	Inspect(f, func(n Node) bool {
		if _, ok := n.(*CallExpr); ok {
			count++
			return false
		}
		return true
	})
	assert.Equal(t, 1, count)
}
