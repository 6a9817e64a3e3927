package types

import "fmt"

// IssueKind 问题类别
type IssueKind string

const (
	IssueForbiddenCall      IssueKind = "forbidden_call"
	IssueForbiddenAttribute IssueKind = "forbidden_attribute"
	IssueForbiddenImport    IssueKind = "forbidden_import"
	IssueLinterFinding      IssueKind = "linter_finding"
	IssueParseFallback      IssueKind = "parse_fallback"
	// IssueScannerFault 子扫描器自身故障时生成的合成问题
	IssueScannerFault IssueKind = "scanner_fault"
	// IssueInvalidSubmission 提交参数本身不合法，未进入扫描
	IssueInvalidSubmission IssueKind = "invalid_submission"
)

// Severity 问题严重级别
type Severity string

const (
	SeverityBlock Severity = "block"
	SeverityWarn  Severity = "warn"
)

// Issue 扫描器发现的单个问题，创建后不再修改
type Issue struct {
	Kind     IssueKind `json:"kind"`
	Detail   string    `json:"detail"`
	Line     int       `json:"line,omitempty"` // 0 表示未知
	Column   int       `json:"column,omitempty"`
	Severity Severity  `json:"severity"`
	Symbol   string    `json:"symbol,omitempty"`  // eval, os.system, __class__ ...
	Code     string    `json:"code,omitempty"`    // 出问题的源码行
	RuleID   string    `json:"rule_id,omitempty"` // linter 规则编号
	Scanner  string    `json:"scanner,omitempty"`
	Hint     string    `json:"hint,omitempty"`
}

// Blocks 是否阻断执行
func (i Issue) Blocks() bool {
	return i.Severity == SeverityBlock
}

// String 返回人类可读的问题描述
func (i Issue) String() string {
	if i.Line > 0 {
		return fmt.Sprintf("line %d: %s", i.Line, i.Detail)
	}
	return i.Detail
}

// CodeMetrics 源码行统计
type CodeMetrics struct {
	TotalLines   int     `json:"total_lines"`
	CodeLines    int     `json:"code_lines"`
	CommentLines int     `json:"comment_lines"`
	BlankLines   int     `json:"blank_lines"`
	CommentRatio float64 `json:"comment_ratio"`
}

// ScanVerdict 每个提交恰好产生一个扫描结论
type ScanVerdict struct {
	Accepted    bool        `json:"accepted"`
	Issues      []Issue     `json:"issues"`
	Diagnostics []string    `json:"diagnostics,omitempty"`
	Metrics     CodeMetrics `json:"metrics"`
}

// NewScanVerdict 根据问题列表计算结论，保证 Accepted 与 Block 级问题互斥
func NewScanVerdict(issues []Issue) ScanVerdict {
	if issues == nil {
		issues = []Issue{}
	}
	accepted := true
	for _, issue := range issues {
		if issue.Blocks() {
			accepted = false
			break
		}
	}
	return ScanVerdict{Accepted: accepted, Issues: issues}
}

// BlockingIssues 返回所有阻断级问题
func (v ScanVerdict) BlockingIssues() []Issue {
	var out []Issue
	for _, issue := range v.Issues {
		if issue.Blocks() {
			out = append(out, issue)
		}
	}
	return out
}

// IssuesOfKind 按类别过滤问题
func (v ScanVerdict) IssuesOfKind(kind IssueKind) []Issue {
	var out []Issue
	for _, issue := range v.Issues {
		if issue.Kind == kind {
			out = append(out, issue)
		}
	}
	return out
}
