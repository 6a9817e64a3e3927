package scanner

import (
	"context"
	"regexp"
	"strings"
)

// PatternRule 正则规则
type PatternRule struct {
	ID         string
	Message    string
	Severity   string
	Confidence string
	Pattern    *regexp.Regexp
}

// DefaultPatternRules 内置规则：硬编码密钥、SSRF 敏感地址、不安全的临时路径
func DefaultPatternRules() []PatternRule {
	return []PatternRule{
		{
			ID:         "DG101",
			Message:    "possible hardcoded AWS access key",
			Severity:   LevelHigh,
			Confidence: LevelHigh,
			Pattern:    regexp.MustCompile(`\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`),
		},
		{
			ID:         "DG102",
			Message:    "embedded private key material",
			Severity:   LevelHigh,
			Confidence: LevelHigh,
			Pattern:    regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`),
		},
		{
			ID:         "DG103",
			Message:    "possible hardcoded password",
			Severity:   LevelLow,
			Confidence: LevelMedium,
			Pattern:    regexp.MustCompile(`(?i)\b(?:password|passwd|pwd|secret|api_?key|token)\s*=\s*['"][^'"]{4,}['"]`),
		},
		{
			ID:         "DG201",
			Message:    "cloud metadata service address",
			Severity:   LevelMedium,
			Confidence: LevelHigh,
			Pattern:    regexp.MustCompile(`169\.254\.169\.254|metadata\.google\.internal|fd00:ec2::254`),
		},
		{
			ID:         "DG202",
			Message:    "file:// URL in source",
			Severity:   LevelMedium,
			Confidence: LevelMedium,
			Pattern:    regexp.MustCompile(`(?i)\bfile://`),
		},
		{
			ID:         "DG301",
			Message:    "probable insecure usage of temp file/directory",
			Severity:   LevelMedium,
			Confidence: LevelMedium,
			Pattern:    regexp.MustCompile(`['"](?:/tmp|/var/tmp|/dev/shm)(?:/|['"])`),
		},
	}
}

// PatternLinter 进程内的正则 linter
type PatternLinter struct {
	rules []PatternRule
}

// NewPatternLinter 创建正则 linter，rules 为空时使用 DefaultPatternRules
func NewPatternLinter(rules ...PatternRule) *PatternLinter {
	if len(rules) == 0 {
		rules = DefaultPatternRules()
	}
	return &PatternLinter{rules: rules}
}

func (p *PatternLinter) Name() string { return "patterns" }

// Lint 逐行匹配，每条规则每行最多报告一次
func (p *PatternLinter) Lint(ctx context.Context, source string) ([]Finding, error) {
	var findings []Finding
	for i, line := range strings.Split(source, "\n") {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, rule := range p.rules {
			loc := rule.Pattern.FindStringIndex(line)
			if loc == nil {
				continue
			}
			findings = append(findings, Finding{
				RuleID:     rule.ID,
				Message:    rule.Message,
				Severity:   rule.Severity,
				Confidence: rule.Confidence,
				Line:       i + 1,
				Column:     loc[0] + 1,
			})
		}
	}
	return findings, nil
}
