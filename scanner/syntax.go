package scanner

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BaSui01/diagramgate/script"
	"github.com/BaSui01/diagramgate/types"
)

// Sub-scanner names reported in Issue.Scanner.
const (
	ScannerSyntax  = "syntax"
	ScannerText    = "text"
	ScannerLint    = "lint"
	ScannerMetrics = "metrics"
)

// ParseFailure 源码无法解析。只用于把提交转交给 TextScanner，本身不是 Issue。
type ParseFailure struct {
	Line    int
	Column  int
	Message string
}

func (e *ParseFailure) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("syntax error at line %d, column %d: %s", e.Line, e.Column, e.Message)
	}
	return "syntax error: " + e.Message
}

// SyntaxScanner 基于语法树的结构化扫描
type SyntaxScanner struct {
	policy *Policy
}

// NewSyntaxScanner 创建语法扫描器，policy 为 nil 时使用 DefaultPolicy
func NewSyntaxScanner(policy *Policy) *SyntaxScanner {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &SyntaxScanner{policy: policy}
}

// Scan 解析并遍历源码。返回的 error 只可能是 *ParseFailure。
func (s *SyntaxScanner) Scan(source string) ([]types.Issue, error) {
	file, err := script.Parse(source)
	if err != nil {
		return nil, toParseFailure(err)
	}

	lines := strings.Split(source, "\n")
	var issues []types.Issue
	emit := func(kind types.IssueKind, pos script.Position, symbol, detail string) {
		issues = append(issues, types.Issue{
			Kind:     kind,
			Detail:   detail,
			Line:     pos.Line,
			Column:   pos.Col,
			Severity: types.SeverityBlock,
			Symbol:   symbol,
			Code:     sourceLine(lines, pos.Line),
			Scanner:  ScannerSyntax,
		})
	}

	script.Inspect(file, func(n script.Node) bool {
		switch x := n.(type) {
		case *script.CallExpr:
			s.checkCall(x, emit)
		case *script.AttributeExpr:
			if s.policy.IsForbiddenAttribute(x.Name) {
				emit(types.IssueForbiddenAttribute, x.NamePos, x.Name,
					"forbidden attribute access: "+x.Name)
			}
		case *script.ImportStmt:
			if s.policy.ImportsForbidden() {
				names := make([]string, 0, len(x.Names))
				for _, a := range x.Names {
					names = append(names, a.Name)
				}
				module := strings.Join(names, ", ")
				emit(types.IssueForbiddenImport, x.ImportPos, module,
					"import statements are not allowed: "+module)
			}
		case *script.FromImportStmt:
			if s.policy.ImportsForbidden() {
				module := strings.Repeat(".", x.Level) + x.Module
				emit(types.IssueForbiddenImport, x.FromPos, module,
					"import statements are not allowed: "+module)
			}
		}
		return true
	})
	return issues, nil
}

func (s *SyntaxScanner) checkCall(call *script.CallExpr, emit func(types.IssueKind, script.Position, string, string)) {
	switch fn := call.Fn.(type) {
	case *script.Ident:
		if s.policy.IsForbiddenIdentifier(fn.Name) {
			emit(types.IssueForbiddenCall, fn.NamePos, fn.Name, "forbidden call: "+fn.Name)
		}

	case *script.AttributeExpr:
		head := ownerHead(fn.X)
		dotted := script.DottedName(fn.X)
		switch {
		case head != "" && s.policy.MatchAttributeCall(head, fn.Name),
			dotted != "" && dotted != head && s.policy.MatchAttributeCall(dotted, fn.Name):
			symbol := head + "." + fn.Name
			emit(types.IssueForbiddenCall, fn.Span(), symbol, "forbidden call: "+symbol)
		case s.policy.IsForbiddenIdentifier(fn.Name):
			// x.eval(...) 同样视为禁用调用
			symbol := fn.Name
			if dotted != "" {
				symbol = dotted + "." + fn.Name
			}
			emit(types.IssueForbiddenCall, fn.Span(), symbol, "forbidden call: "+symbol)
		}
	}
}

// ownerHead 返回 owner 表达式最左侧的名称：a.b[0].c() -> a
func ownerHead(e script.Expr) string {
	for {
		switch x := e.(type) {
		case *script.Ident:
			return x.Name
		case *script.AttributeExpr:
			e = x.X
		case *script.CallExpr:
			e = x.Fn
		case *script.IndexExpr:
			e = x.X
		case *script.SliceExpr:
			e = x.X
		default:
			return ""
		}
	}
}

func toParseFailure(err error) *ParseFailure {
	var se *script.SyntaxError
	if errors.As(err, &se) {
		return &ParseFailure{Line: se.Pos.Line, Column: se.Pos.Col, Message: se.Msg}
	}
	return &ParseFailure{Message: err.Error()}
}

func sourceLine(lines []string, line int) string {
	if line <= 0 || line > len(lines) {
		return ""
	}
	return strings.TrimSpace(lines[line-1])
}
