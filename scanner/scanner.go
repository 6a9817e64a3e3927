package scanner

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/BaSui01/diagramgate/types"
)

// Scanner 组合语法扫描、文本兜底扫描与 linter，产出唯一的 ScanVerdict
type Scanner struct {
	policy *Policy
	syntax *SyntaxScanner
	text   *TextScanner
	lint   *LintIntegration
	logger *zap.Logger
}

// New 创建扫描器。policy 为 nil 时使用 DefaultPolicy，lint 为 nil 时不运行 linter。
func New(policy *Policy, lint *LintIntegration, logger *zap.Logger) *Scanner {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if lint == nil {
		lint = NewLintIntegration(0, logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{
		policy: policy,
		syntax: NewSyntaxScanner(policy),
		text:   NewTextScanner(policy),
		lint:   lint,
		logger: logger.With(zap.String("component", "scanner")),
	}
}

// Policy 返回扫描器使用的禁用清单
func (s *Scanner) Policy() *Policy { return s.policy }

// Fingerprint 标识禁用清单与 linter 组合。两个扫描器指纹相同时，
// 对同一源码给出相同的结论。
func (s *Scanner) Fingerprint() string {
	h := blake3.New()
	write := func(section string, items []string) {
		_, _ = h.Write([]byte(section + "\x00" + strings.Join(items, "\x00") + "\x01"))
	}
	write("identifiers", s.policy.Identifiers())
	write("attributes", s.policy.Attributes())
	calls := make([]string, 0, len(s.policy.AttributeCalls()))
	for _, c := range s.policy.AttributeCalls() {
		calls = append(calls, c.String())
	}
	write("calls", calls)
	write("imports", []string{strconv.FormatBool(s.policy.ImportsForbidden())})
	write("linters", s.lint.Linters())
	return hex.EncodeToString(h.Sum(nil)[:8])
}

// Evaluate 扫描一次提交。不会返回错误也不会 panic，子扫描器的内部故障
// 转换为 ScannerFault 阻断问题。
func (s *Scanner) Evaluate(ctx context.Context, sub types.CodeSubmission) types.ScanVerdict {
	source := sub.Source

	type lintResult struct {
		issues      []types.Issue
		diagnostics []string
	}
	lintDone := make(chan lintResult, 1)
	go func() {
		var res lintResult
		res.issues = s.guard(ScannerLint, func() []types.Issue {
			var issues []types.Issue
			issues, res.diagnostics = s.lint.Scan(ctx, source)
			return issues
		})
		lintDone <- res
	}()

	structural := s.guard(ScannerSyntax, func() []types.Issue {
		issues, err := s.syntax.Scan(source)
		if err == nil {
			return issues
		}
		var pf *ParseFailure
		if !errors.As(err, &pf) {
			pf = &ParseFailure{Message: err.Error()}
		}
		s.logger.Debug("parse failed, falling back to text scan",
			zap.Int("line", pf.Line), zap.String("error", pf.Message))
		return s.guard(ScannerText, func() []types.Issue {
			return s.text.Scan(source, pf)
		})
	})

	var metrics types.CodeMetrics
	s.guard(ScannerMetrics, func() []types.Issue {
		metrics = CountMetrics(source)
		return nil
	})

	lr := <-lintDone
	issues := append(structural, lr.issues...)
	issues = dedupe(issues)
	sortByLine(issues)
	for i := range issues {
		if issues[i].Hint == "" {
			issues[i].Hint = Hint(issues[i])
		}
	}

	verdict := types.NewScanVerdict(issues)
	verdict.Diagnostics = lr.diagnostics
	verdict.Metrics = metrics

	if !verdict.Accepted {
		s.logger.Debug("submission rejected",
			zap.Int("issues", len(verdict.Issues)),
			zap.Int("blocking", len(verdict.BlockingIssues())))
	}
	return verdict
}

// guard 运行子扫描器，panic 转换为 ScannerFault 问题
func (s *Scanner) guard(name string, fn func() []types.Issue) (issues []types.Issue) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sub-scanner panicked", zap.String("scanner", name), zap.Any("panic", r))
			issues = []types.Issue{{
				Kind:     types.IssueScannerFault,
				Detail:   fmt.Sprintf("internal error in %s scanner", name),
				Severity: types.SeverityBlock,
				Symbol:   name,
				Scanner:  name,
			}}
		}
	}()
	return fn()
}

func dedupe(issues []types.Issue) []types.Issue {
	seen := make(map[string]struct{}, len(issues))
	out := issues[:0]
	for _, issue := range issues {
		key := string(issue.Kind) + "|" + strconv.Itoa(issue.Line) + "|" + strconv.Itoa(issue.Column) + "|" + issue.Symbol
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, issue)
	}
	return out
}

// sortByLine 按行号稳定排序，未知行号排在最后
func sortByLine(issues []types.Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		li, lj := issues[i].Line, issues[j].Line
		if li == 0 || lj == 0 {
			return li != 0 && lj == 0
		}
		return li < lj
	})
}
