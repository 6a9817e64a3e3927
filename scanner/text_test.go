package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/diagramgate/types"
)

func TestTextScanner_Scan(t *testing.T) {
	ts := NewTextScanner(DefaultPolicy())
	src := "def broken(:\n    eval (x)\n    subprocess . check_output('id')\nfrom os import path\ny = a.__dict__\nevaluate = 1\n"

	issues := ts.Scan(src, &ParseFailure{Line: 1, Column: 12, Message: "unexpected ':'"})
	require.NotEmpty(t, issues)

	first := issues[0]
	assert.Equal(t, types.IssueParseFallback, first.Kind)
	assert.Equal(t, 1, first.Line)
	assert.Contains(t, first.Detail, "unexpected ':'")
	assert.Equal(t, "def broken(:", first.Code)

	for _, issue := range issues {
		assert.Equal(t, types.IssueParseFallback, issue.Kind)
		assert.Equal(t, types.SeverityBlock, issue.Severity)
	}

	bySymbol := map[string]int{}
	for _, issue := range issues[1:] {
		bySymbol[issue.Symbol] = issue.Line
	}
	assert.Equal(t, 2, bySymbol["eval"])
	assert.Equal(t, 3, bySymbol["subprocess.*"])
	assert.Equal(t, 4, bySymbol["import"])
	assert.Equal(t, 5, bySymbol["__dict__"])
	// evaluate 不是 eval 的单词边界匹配
	assert.Len(t, issues, 5)
}

func TestTextScanner_NilFailure(t *testing.T) {
	issues := NewTextScanner(nil).Scan("x = 1", nil)
	require.Len(t, issues, 1)
	assert.Equal(t, 0, issues[0].Line)
	assert.Contains(t, issues[0].Detail, "could not be parsed")
}

func TestCountMetrics(t *testing.T) {
	m := CountMetrics("# header\n\na = EC2('a')\n  # indented\nb = S3('b')\n")
	assert.Equal(t, types.CodeMetrics{
		TotalLines:   5,
		CodeLines:    2,
		CommentLines: 2,
		BlankLines:   1,
		CommentRatio: 40,
	}, m)

	assert.Equal(t, types.CodeMetrics{}, CountMetrics(""))
}
