package scanner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/diagramgate/types"
)

// Linter levels as reported by bandit-style tools.
const (
	LevelLow    = "LOW"
	LevelMedium = "MEDIUM"
	LevelHigh   = "HIGH"
)

// DefaultLintTimeout 单个 linter 的默认超时
const DefaultLintTimeout = 10 * time.Second

// Finding linter 报告的单条发现
type Finding struct {
	RuleID     string
	Message    string
	Severity   string
	Confidence string
	Line       int
	Column     int
}

// Linter 通用安全 linter：源码进，发现出
type Linter interface {
	Name() string
	Lint(ctx context.Context, source string) ([]Finding, error)
}

// MapSeverity 把 linter 的严重度/置信度映射为 Issue 严重级别。
// 任一未知时按 Block 处理；任一为 LOW 时降为 Warn。
func MapSeverity(severity, confidence string) types.Severity {
	s := strings.ToUpper(strings.TrimSpace(severity))
	c := strings.ToUpper(strings.TrimSpace(confidence))
	if !knownLevel(s) || !knownLevel(c) {
		return types.SeverityBlock
	}
	if s == LevelLow || c == LevelLow {
		return types.SeverityWarn
	}
	return types.SeverityBlock
}

func knownLevel(level string) bool {
	switch level {
	case LevelLow, LevelMedium, LevelHigh:
		return true
	}
	return false
}

// LintIntegration 并行运行所有 linter 并合并结果。
// linter 无法运行时只产生诊断信息，不会拒绝提交。
type LintIntegration struct {
	linters   []Linter
	timeout   time.Duration
	logger    *zap.Logger
	onFailure func(linter string, err error)
}

// NewLintIntegration 创建 linter 集成，timeout <= 0 时使用 DefaultLintTimeout
func NewLintIntegration(timeout time.Duration, logger *zap.Logger, linters ...Linter) *LintIntegration {
	if timeout <= 0 {
		timeout = DefaultLintTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LintIntegration{
		linters: linters,
		timeout: timeout,
		logger:  logger.With(zap.String("component", "lint")),
	}
}

// OnFailure 注册 linter 失败回调，用于指标统计
func (l *LintIntegration) OnFailure(fn func(linter string, err error)) {
	l.onFailure = fn
}

// Linters 返回已配置的 linter 名称
func (l *LintIntegration) Linters() []string {
	names := make([]string, 0, len(l.linters))
	for _, linter := range l.linters {
		names = append(names, linter.Name())
	}
	return names
}

type lintOutcome struct {
	findings []Finding
	err      error
}

// Scan 运行所有 linter，返回问题列表与诊断信息。结果顺序与 linter 注册顺序一致。
func (l *LintIntegration) Scan(ctx context.Context, source string) ([]types.Issue, []string) {
	if len(l.linters) == 0 {
		return nil, nil
	}

	outcomes := make([]lintOutcome, len(l.linters))
	var g errgroup.Group
	for i, linter := range l.linters {
		g.Go(func() error {
			outcomes[i] = l.runOne(ctx, linter, source)
			return nil
		})
	}
	_ = g.Wait()

	lines := strings.Split(source, "\n")
	var (
		issues      []types.Issue
		diagnostics []string
	)
	for i, out := range outcomes {
		name := l.linters[i].Name()
		if out.err != nil {
			l.logger.Warn("linter failed", zap.String("linter", name), zap.Error(out.err))
			if l.onFailure != nil {
				l.onFailure(name, out.err)
			}
			diagnostics = append(diagnostics, fmt.Sprintf("%s: %v", name, out.err))
			continue
		}
		for _, f := range out.findings {
			issues = append(issues, findingToIssue(name, f, lines))
		}
	}
	return issues, diagnostics
}

func (l *LintIntegration) runOne(ctx context.Context, linter Linter, source string) (out lintOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = lintOutcome{err: fmt.Errorf("linter panicked: %v", r)}
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	findings, err := linter.Lint(ctx, source)
	if err != nil {
		return lintOutcome{err: err}
	}
	return lintOutcome{findings: findings}
}

func findingToIssue(linter string, f Finding, lines []string) types.Issue {
	detail := f.Message
	if f.RuleID != "" {
		detail = f.RuleID + ": " + f.Message
	}
	return types.Issue{
		Kind:     types.IssueLinterFinding,
		Detail:   detail,
		Line:     f.Line,
		Column:   f.Column,
		Severity: MapSeverity(f.Severity, f.Confidence),
		Symbol:   f.RuleID,
		Code:     sourceLine(lines, f.Line),
		RuleID:   f.RuleID,
		Scanner:  ScannerLint + ":" + linter,
	}
}
