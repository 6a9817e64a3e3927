package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// BanditLinter 通过外部 bandit 进程扫描，源码经 stdin 传入
type BanditLinter struct {
	binary string
}

// NewBanditLinter 创建 bandit linter，binary 为空时使用 "bandit"
func NewBanditLinter(binary string) *BanditLinter {
	if binary == "" {
		binary = "bandit"
	}
	return &BanditLinter{binary: binary}
}

func (b *BanditLinter) Name() string { return "bandit" }

type banditReport struct {
	Results []struct {
		TestID          string `json:"test_id"`
		IssueText       string `json:"issue_text"`
		IssueSeverity   string `json:"issue_severity"`
		IssueConfidence string `json:"issue_confidence"`
		LineNumber      int    `json:"line_number"`
		ColOffset       int    `json:"col_offset"`
	} `json:"results"`
	Errors []struct {
		Filename string `json:"filename"`
		Reason   string `json:"reason"`
	} `json:"errors"`
}

// Lint 运行 `bandit -f json -q -`。
// 退出码 1 且输出为合法 JSON 表示存在发现，不视为失败。
func (b *BanditLinter) Lint(ctx context.Context, source string) ([]Finding, error) {
	path, err := exec.LookPath(b.binary)
	if err != nil {
		return nil, fmt.Errorf("bandit unavailable: %w", err)
	}

	cmd := exec.CommandContext(ctx, path, "-f", "json", "-q", "-")
	cmd.Stdin = strings.NewReader(source)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("bandit interrupted: %w", ctxErr)
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) || exitErr.ExitCode() != 1 {
			return nil, fmt.Errorf("bandit failed: %w: %s", runErr, truncate(stderr.String(), 512))
		}
	}

	return parseBanditReport(stdout.Bytes())
}

func parseBanditReport(data []byte) ([]Finding, error) {
	var report banditReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("bandit produced invalid output: %w", err)
	}
	if len(report.Errors) > 0 && len(report.Results) == 0 {
		return nil, fmt.Errorf("bandit could not analyse source: %s", report.Errors[0].Reason)
	}

	findings := make([]Finding, 0, len(report.Results))
	for _, r := range report.Results {
		findings = append(findings, Finding{
			RuleID:     r.TestID,
			Message:    r.IssueText,
			Severity:   r.IssueSeverity,
			Confidence: r.IssueConfidence,
			Line:       r.LineNumber,
			Column:     r.ColOffset + 1,
		})
	}
	return findings, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
