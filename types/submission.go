package types

import (
	"strings"
	"time"
)

// Submission limits.
const (
	MaxSourceBytes = 64 * 1024
	MinTimeout     = time.Second
	MaxTimeout     = 300 * time.Second
)

// Artifact formats accepted by the harness.
const (
	FormatPNG = "png"
	FormatSVG = "svg"
	FormatDOT = "dot"
)

// CodeSubmission 一次请求提交的脚本，创建后不可变
type CodeSubmission struct {
	Source             string        `json:"source"`
	DeclaredOutputName string        `json:"declared_output_name,omitempty"`
	Format             string        `json:"format,omitempty"`
	Timeout            time.Duration `json:"timeout,omitempty"`
}

// Validate 校验提交参数
func (s CodeSubmission) Validate() error {
	if strings.TrimSpace(s.Source) == "" {
		return NewInvalidRequestError("source is required")
	}
	if len(s.Source) > MaxSourceBytes {
		return NewInvalidRequestError("source exceeds 64 KiB limit")
	}
	if s.Timeout != 0 && (s.Timeout < MinTimeout || s.Timeout > MaxTimeout) {
		return NewInvalidRequestError("timeout must be between 1s and 300s")
	}
	if s.Format != "" {
		if _, err := NormalizeFormat(s.Format); err != nil {
			return err
		}
	}
	return nil
}

// NormalizeFormat 规范化输出格式，空值默认为 png
func NormalizeFormat(format string) (string, error) {
	f := strings.ToLower(strings.TrimSpace(format))
	if f == "" {
		return FormatPNG, nil
	}
	switch f {
	case FormatPNG, FormatSVG, FormatDOT:
		return f, nil
	}
	return "", NewInvalidRequestError("unsupported output format, supported values are png, svg and dot")
}
