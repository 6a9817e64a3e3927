package sandbox

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// absPathRe 匹配行首、空白、引号或括号之后的绝对路径
var absPathRe = regexp.MustCompile(`(?m)(^|[\s"'(=])((?:[A-Za-z]:)?(?:[/\\][\w.@+-]+){2,}[/\\]?)`)

// pathMasker 把错误信息中的主机路径替换为占位符
type pathMasker struct {
	replacements []string
}

func newPathMasker(outputDir, iconDir string) *pathMasker {
	m := &pathMasker{}
	add := func(dir, placeholder string) {
		if dir == "" {
			return
		}
		if abs, err := filepath.Abs(dir); err == nil {
			m.replacements = append(m.replacements, abs, placeholder)
		}
		m.replacements = append(m.replacements, dir, placeholder)
	}
	add(outputDir, "<output>")
	add(iconDir, "<icons>")
	add(os.TempDir(), "<tmp>")
	if home, err := os.UserHomeDir(); err == nil {
		add(home, "<home>")
	}
	return m
}

// Mask 先替换已知目录，再把剩余的绝对路径整体替换为 <path>
func (m *pathMasker) Mask(msg string) string {
	msg = strings.NewReplacer(m.replacements...).Replace(msg)
	return absPathRe.ReplaceAllString(msg, "${1}<path>")
}

// summarize 生成不含路径与堆栈、长度受限的错误摘要
func summarize(msg string, masker *pathMasker, limit int) string {
	if i := strings.Index(msg, "\ngoroutine "); i >= 0 {
		msg = msg[:i]
	}
	msg = strings.TrimSpace(masker.Mask(msg))
	return truncateUTF8(msg, limit)
}

func truncateUTF8(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	const ellipsis = "..."
	cut := limit - len(ellipsis)
	if cut < 0 {
		cut = 0
	}
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + ellipsis
}
