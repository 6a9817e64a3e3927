package scanner

import (
	"regexp"
	"sort"
	"strings"

	"github.com/BaSui01/diagramgate/types"
)

var importPattern = regexp.MustCompile(`\bimport\b`)

// TextScanner 源码无法解析时的保守文本扫描，宁可误报
type TextScanner struct {
	identifiers []namedPattern
	calls       []namedPattern
	attributes  []string
}

type namedPattern struct {
	symbol string
	re     *regexp.Regexp
}

// NewTextScanner 根据 Policy 预编译匹配规则
func NewTextScanner(policy *Policy) *TextScanner {
	if policy == nil {
		policy = DefaultPolicy()
	}
	t := &TextScanner{attributes: policy.Attributes()}
	for _, name := range policy.Identifiers() {
		t.identifiers = append(t.identifiers, namedPattern{
			symbol: name,
			re:     regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`),
		})
	}
	for _, call := range policy.AttributeCalls() {
		member := `\w+`
		if call.Member != Wildcard {
			member = regexp.QuoteMeta(call.Member) + `\b`
		}
		owner := strings.ReplaceAll(regexp.QuoteMeta(call.Owner), `\.`, `\s*\.\s*`)
		t.calls = append(t.calls, namedPattern{
			symbol: call.String(),
			re:     regexp.MustCompile(`\b` + owner + `\s*\.\s*` + member),
		})
	}
	return t
}

// Scan 总是先产生一条描述解析失败的 ParseFallback 问题，再逐行匹配
func (t *TextScanner) Scan(source string, failure *ParseFailure) []types.Issue {
	if failure == nil {
		failure = &ParseFailure{Message: "source could not be parsed"}
	}
	lines := strings.Split(source, "\n")
	issues := []types.Issue{{
		Kind:     types.IssueParseFallback,
		Detail:   "source could not be parsed: " + failure.Message,
		Line:     failure.Line,
		Column:   failure.Column,
		Severity: types.SeverityBlock,
		Code:     sourceLine(lines, failure.Line),
		Scanner:  ScannerText,
	}}

	for i, raw := range lines {
		line := strings.TrimRight(raw, "\r")
		lineNo := i + 1
		hit := func(col int, symbol, detail string) {
			issues = append(issues, types.Issue{
				Kind:     types.IssueParseFallback,
				Detail:   detail,
				Line:     lineNo,
				Column:   col + 1,
				Severity: types.SeverityBlock,
				Symbol:   symbol,
				Code:     strings.TrimSpace(line),
				Scanner:  ScannerText,
			})
		}

		for _, p := range t.identifiers {
			if loc := p.re.FindStringIndex(line); loc != nil {
				hit(loc[0], p.symbol, "possible forbidden call: "+p.symbol)
			}
		}
		for _, p := range t.calls {
			if loc := p.re.FindStringIndex(line); loc != nil {
				hit(loc[0], p.symbol, "possible forbidden call: "+p.symbol)
			}
		}
		for _, name := range t.attributes {
			if idx := strings.Index(line, name); idx >= 0 {
				hit(idx, name, "possible forbidden attribute access: "+name)
			}
		}
		if loc := importPattern.FindStringIndex(line); loc != nil {
			hit(loc[0], "import", "possible import statement")
		}
	}

	// 同一行内按列排序，便于阅读
	sort.SliceStable(issues[1:], func(a, b int) bool {
		x, y := issues[1+a], issues[1+b]
		if x.Line != y.Line {
			return x.Line < y.Line
		}
		return x.Column < y.Column
	})
	return issues
}
