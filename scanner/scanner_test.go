package scanner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/diagramgate/types"
)

type fakeLinter struct {
	name     string
	findings []Finding
	err      error
	panics   bool
}

func (f *fakeLinter) Name() string { return f.name }

func (f *fakeLinter) Lint(ctx context.Context, source string) ([]Finding, error) {
	if f.panics {
		panic("linter exploded")
	}
	return f.findings, f.err
}

func evaluate(t *testing.T, s *Scanner, source string) types.ScanVerdict {
	t.Helper()
	return s.Evaluate(context.Background(), types.CodeSubmission{Source: source})
}

func symbolsOf(issues []types.Issue, kind types.IssueKind) []string {
	var out []string
	for _, issue := range issues {
		if issue.Kind == kind {
			out = append(out, issue.Symbol)
		}
	}
	return out
}

func TestScanner_Scenarios(t *testing.T) {
	s := New(nil, nil, nil)

	t.Run("diagram script accepted", func(t *testing.T) {
		v := evaluate(t, s, "gateway = ApplicationGateway('gw')\napp = AppServices('app')\ngateway >> app")
		assert.True(t, v.Accepted)
		assert.Empty(t, v.Issues)
		assert.Equal(t, 3, v.Metrics.TotalLines)
	})

	t.Run("import and os.system", func(t *testing.T) {
		v := evaluate(t, s, "import os\nos.system('ls')")
		assert.False(t, v.Accepted)
		assert.Equal(t, []string{"os"}, symbolsOf(v.Issues, types.IssueForbiddenImport))
		assert.Equal(t, []string{"os.system"}, symbolsOf(v.Issues, types.IssueForbiddenCall))
		require.Len(t, v.Issues, 2)
		assert.Equal(t, 1, v.Issues[0].Line)
		assert.Equal(t, 2, v.Issues[1].Line)
		assert.Equal(t, "os.system('ls')", v.Issues[1].Code)
		assert.Contains(t, v.Issues[1].Hint, "Shell command execution")
	})

	t.Run("eval", func(t *testing.T) {
		v := evaluate(t, s, "eval('1+1')")
		assert.False(t, v.Accepted)
		assert.Equal(t, []string{"eval"}, symbolsOf(v.Issues, types.IssueForbiddenCall))
	})

	t.Run("forbidden call inside comprehension", func(t *testing.T) {
		v := evaluate(t, s, "with Diagram('x'):\n    b = [eval(x) for x in y]")
		assert.False(t, v.Accepted)
		assert.Equal(t, []string{"eval"}, symbolsOf(v.Issues, types.IssueForbiddenCall))
		assert.Empty(t, symbolsOf(v.Issues, types.IssueParseFallback))
	})

	t.Run("comprehension and f-string accepted", func(t *testing.T) {
		v := evaluate(t, s, "with Diagram('x'):\n    b = [EC2(f\"w{i}\") for i in range(3)]")
		assert.True(t, v.Accepted, "%+v", v.Issues)
	})

	t.Run("dunder chain", func(t *testing.T) {
		v := evaluate(t, s, "x.__class__.__bases__")
		assert.False(t, v.Accepted)
		assert.ElementsMatch(t, []string{"__class__", "__bases__"}, symbolsOf(v.Issues, types.IssueForbiddenAttribute))
	})

	t.Run("unparseable source fails closed", func(t *testing.T) {
		v := evaluate(t, s, "with Diagram('x'):\nweb = EC2('web')")
		assert.False(t, v.Accepted)
		require.NotEmpty(t, v.Issues)
		assert.Equal(t, types.IssueParseFallback, v.Issues[0].Kind)
		assert.NotEmpty(t, v.Issues[0].Hint)
	})
}

func TestScanner_LinterFailureIsDiagnostic(t *testing.T) {
	lint := NewLintIntegration(0, nil, &fakeLinter{name: "broken", err: errors.New("exit status 2")})
	var failed []string
	lint.OnFailure(func(name string, err error) { failed = append(failed, name) })

	v := evaluate(t, New(nil, lint, nil), "a = EC2('a')")
	assert.True(t, v.Accepted)
	assert.Empty(t, v.Issues)
	assert.Equal(t, []string{"broken: exit status 2"}, v.Diagnostics)
	assert.Equal(t, []string{"broken"}, failed)
}

func TestScanner_LinterFindings(t *testing.T) {
	lint := NewLintIntegration(0, nil, &fakeLinter{name: "fake", findings: []Finding{
		{RuleID: "B105", Message: "hardcoded password", Severity: "LOW", Confidence: "MEDIUM", Line: 1},
	}})
	v := evaluate(t, New(nil, lint, nil), "password = 'hunter22'")
	assert.True(t, v.Accepted)
	require.Len(t, v.Issues, 1)
	assert.Equal(t, types.SeverityWarn, v.Issues[0].Severity)
	assert.Equal(t, "lint:fake", v.Issues[0].Scanner)
	assert.Equal(t, "B105: hardcoded password", v.Issues[0].Detail)

	lint = NewLintIntegration(0, nil, &fakeLinter{name: "fake", findings: []Finding{
		{RuleID: "X1", Message: "??", Severity: "UNDEFINED", Confidence: "HIGH", Line: 1},
	}})
	v = evaluate(t, New(nil, lint, nil), "a = 1")
	assert.False(t, v.Accepted)
}

func TestScanner_PanickingLinter(t *testing.T) {
	lint := NewLintIntegration(0, nil, &fakeLinter{name: "boom", panics: true})
	v := evaluate(t, New(nil, lint, nil), "a = 1")
	assert.True(t, v.Accepted)
	require.Len(t, v.Diagnostics, 1)
	assert.Contains(t, v.Diagnostics[0], "panicked")
}

func TestScanner_GuardRecoversPanic(t *testing.T) {
	s := New(nil, nil, nil)
	issues := s.guard(ScannerSyntax, func() []types.Issue { panic("bad walk") })
	require.Len(t, issues, 1)
	assert.Equal(t, types.IssueScannerFault, issues[0].Kind)
	assert.Equal(t, types.SeverityBlock, issues[0].Severity)
	assert.Contains(t, issues[0].Detail, "syntax")
}

func TestDedupeAndSort(t *testing.T) {
	issues := []types.Issue{
		{Kind: types.IssueLinterFinding, Symbol: "B1"},
		{Kind: types.IssueForbiddenCall, Line: 3, Column: 1, Symbol: "eval"},
		{Kind: types.IssueForbiddenCall, Line: 3, Column: 1, Symbol: "eval"},
		{Kind: types.IssueForbiddenCall, Line: 3, Column: 9, Symbol: "eval"},
		{Kind: types.IssueForbiddenImport, Line: 1, Symbol: "os"},
	}
	out := dedupe(issues)
	sortByLine(out)
	require.Len(t, out, 4)
	assert.Equal(t, 1, out[0].Line)
	assert.Equal(t, 3, out[1].Line)
	assert.Equal(t, 3, out[2].Line)
	assert.Equal(t, 0, out[3].Line)
}

func TestHint(t *testing.T) {
	tests := []struct {
		issue types.Issue
		want  string
	}{
		{types.Issue{Kind: types.IssueForbiddenCall, Symbol: "eval"}, "Remove eval() call"},
		{types.Issue{Kind: types.IssueForbiddenCall, Symbol: "subprocess.run"}, "subprocess"},
		{types.Issue{Kind: types.IssueForbiddenCall, Symbol: "builtins.exec"}, "Remove exec() call"},
		{types.Issue{Kind: types.IssueForbiddenCall, Symbol: "shutil.rmtree"}, "Remove usage of shutil.rmtree"},
		{types.Issue{Kind: types.IssueForbiddenAttribute, Symbol: "__mro__"}, "Method resolution order"},
		{types.Issue{Kind: types.IssueForbiddenAttribute, Symbol: "__code__"}, "dynamic attribute access"},
		{types.Issue{Kind: types.IssueForbiddenImport, Symbol: "os"}, "Remove import statements"},
		{types.Issue{Kind: types.IssueParseFallback}, "Fix the syntax error"},
	}
	for _, tt := range tests {
		assert.Contains(t, Hint(tt.issue), tt.want, "%+v", tt.issue)
	}
}

// =============================================================================
// Property tests
// =============================================================================

var safeStatements = []string{
	"a = EC2('a')",
	"b = S3('b')",
	"a >> b",
	"names = ['x', 'y']",
	"n = len(names)",
	"",
	"# comment",
}

func drawPrelude(t *rapid.T) string {
	stmts := rapid.SliceOfN(rapid.SampledFrom(safeStatements), 0, 4).Draw(t, "prelude")
	if len(stmts) == 0 {
		return ""
	}
	return strings.Join(stmts, "\n") + "\n"
}

// Property: 直接调用任一禁用标识符的源码都会被拒绝，且问题中点名该标识符
func TestProperty_ForbiddenCallRejected(t *testing.T) {
	s := New(nil, nil, nil)
	rapid.Check(t, func(rt *rapid.T) {
		name := rapid.SampledFrom(s.Policy().Identifiers()).Draw(rt, "name")
		src := drawPrelude(rt) + fmt.Sprintf("%s('x')\n", name)
		v := s.Evaluate(context.Background(), types.CodeSubmission{Source: src})
		if v.Accepted {
			rt.Fatalf("accepted: %q", src)
		}
		if !containsString(symbolsOf(v.Issues, types.IssueForbiddenCall), name) {
			rt.Fatalf("no ForbiddenCall for %s in %+v", name, v.Issues)
		}
	})
}

// Property: 任何 import 语句都会被拒绝
func TestProperty_ImportRejected(t *testing.T) {
	s := New(nil, nil, nil)
	rapid.Check(t, func(rt *rapid.T) {
		module := rapid.StringMatching(`[a-z][a-z0-9_]{0,7}(\.[a-z][a-z0-9_]{0,5})?`).Draw(rt, "module")
		var stmt string
		if rapid.Bool().Draw(rt, "from") {
			stmt = "from " + module + " import thing"
		} else {
			stmt = "import " + module
		}
		src := drawPrelude(rt) + stmt + "\n"
		v := s.Evaluate(context.Background(), types.CodeSubmission{Source: src})
		if v.Accepted {
			rt.Fatalf("accepted: %q", src)
		}
	})
}

// Property: 同一源码扫描两次结果完全一致
func TestProperty_Idempotent(t *testing.T) {
	s := New(nil, NewLintIntegration(0, nil, NewPatternLinter()), nil)
	rapid.Check(t, func(rt *rapid.T) {
		src := rapid.OneOf(
			rapid.StringN(0, 80, -1),
			rapid.Custom(func(t *rapid.T) string { return drawPrelude(t) + "eval(1)\nx.__dict__" }),
		).Draw(rt, "src")
		a := s.Evaluate(context.Background(), types.CodeSubmission{Source: src})
		b := s.Evaluate(context.Background(), types.CodeSubmission{Source: src})
		assert.Equal(rt, a, b)
	})
}

// Property: 接受与否当且仅当不存在阻断级问题
func TestProperty_AcceptedMatchesSeverity(t *testing.T) {
	s := New(nil, NewLintIntegration(0, nil, NewPatternLinter()), nil)
	rapid.Check(t, func(rt *rapid.T) {
		src := rapid.StringN(0, 120, -1).Draw(rt, "src")
		v := s.Evaluate(context.Background(), types.CodeSubmission{Source: src})
		if v.Accepted != (len(v.BlockingIssues()) == 0) {
			rt.Fatalf("accepted=%v with issues %+v", v.Accepted, v.Issues)
		}
	})
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
