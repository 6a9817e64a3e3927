package scanner

import (
	"strings"

	"github.com/BaSui01/diagramgate/types"
)

// CountMetrics 统计源码行数。注释行指去掉空白后以 # 开头的行。
func CountMetrics(source string) types.CodeMetrics {
	var m types.CodeMetrics
	if source == "" {
		return m
	}

	lines := strings.Split(strings.TrimSuffix(source, "\n"), "\n")
	m.TotalLines = len(lines)
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			m.BlankLines++
		case strings.HasPrefix(trimmed, "#"):
			m.CommentLines++
		}
	}
	m.CodeLines = m.TotalLines - m.BlankLines - m.CommentLines
	m.CommentRatio = float64(m.CommentLines) / float64(m.TotalLines) * 100
	return m
}
