package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/diagramgate/script"
)

func literalValue(t *testing.T, e script.Expr) any {
	t.Helper()
	lit, ok := e.(*script.Literal)
	require.True(t, ok, "expected literal, got %T", e)
	return lit.Value
}

func TestRewriteDiagramCalls(t *testing.T) {
	file, err := script.Parse(`
with Diagram("Web", "../../evil", show=True, outformat="jpg"):
    a = EC2("a")
with Diagram(name="Other", direction="TB"):
    b = S3("b")
c = Cluster("not a diagram")
`)
	require.NoError(t, err)

	n := RewriteDiagramCalls(file, "web_abc123", "svg")
	assert.Equal(t, 2, n)

	var calls []*script.CallExpr
	script.Inspect(file, func(node script.Node) bool {
		if call, ok := node.(*script.CallExpr); ok {
			if id, ok := call.Fn.(*script.Ident); ok && id.Name == "Diagram" {
				calls = append(calls, call)
			}
		}
		return true
	})
	require.Len(t, calls, 2)

	first := calls[0]
	require.Len(t, first.Args, 2)
	assert.Equal(t, "web_abc123", literalValue(t, first.Args[1]))
	assert.Equal(t, false, literalValue(t, first.KeywordArg("show").Value))
	assert.Equal(t, "svg", literalValue(t, first.KeywordArg("outformat").Value))
	assert.Nil(t, first.KeywordArg("filename"))

	second := calls[1]
	assert.Empty(t, second.Args)
	assert.Equal(t, "web_abc123", literalValue(t, second.KeywordArg("filename").Value))
	assert.Equal(t, false, literalValue(t, second.KeywordArg("show").Value))
	assert.Equal(t, "svg", literalValue(t, second.KeywordArg("outformat").Value))
	assert.Equal(t, "TB", literalValue(t, second.KeywordArg("direction").Value))
}

func TestRewriteDiagramCalls_PositionalOutformat(t *testing.T) {
	file, err := script.Parse(`Diagram("n", "f", "LR", "ortho", "png", False, True)`)
	require.NoError(t, err)
	require.Equal(t, 1, RewriteDiagramCalls(file, "out", "dot"))

	call := file.Stmts[0].(*script.ExprStmt).X.(*script.CallExpr)
	assert.Equal(t, "out", literalValue(t, call.Args[1]))
	assert.Equal(t, "dot", literalValue(t, call.Args[4]))
	assert.Equal(t, false, literalValue(t, call.Args[6]))
	assert.Empty(t, call.Keywords)
}
