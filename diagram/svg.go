package diagram

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// svgHrefRe 匹配 href / xlink:href 属性，值可用单引号或双引号
var svgHrefRe = regexp.MustCompile(`((?:xlink:)?href)\s*=\s*(?:"([^"]*)"|'([^']*)')`)

// InlineSVGImages 将 SVG 中引用的本地图片替换为 base64 data URI。
// 相对路径相对 svgDir 解析；只内联位于 roots 之下的常规文件，其余引用保持原样。
// 返回值 changed 表示是否有替换发生。
func InlineSVGImages(svg []byte, svgDir string, roots []string) (out []byte, changed bool) {
	out = svgHrefRe.ReplaceAllFunc(svg, func(m []byte) []byte {
		sub := svgHrefRe.FindSubmatch(m)
		attr := string(sub[1])
		quote := `"`
		value := string(sub[2])
		if sub[3] != nil && sub[2] == nil {
			quote = `'`
			value = string(sub[3])
		}

		path := resolveHref(value, svgDir)
		if path == "" || !withinRoots(path, roots) {
			return m
		}
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			return m
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return m
		}

		changed = true
		uri := "data:" + mimeType(path) + ";base64," + base64.StdEncoding.EncodeToString(data)
		return []byte(attr + "=" + quote + uri + quote)
	})
	return out, changed
}

// InlineSVGFile 对 SVG 文件原地执行 InlineSVGImages
func InlineSVGFile(path string, roots []string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read generated SVG file: %w", err)
	}
	out, changed := InlineSVGImages(data, filepath.Dir(path), roots)
	if !changed {
		return nil
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("failed to write inlined SVG file: %w", err)
	}
	return nil
}

// resolveHref 将本地 href 解析为文件路径；data:、http(s):、片段引用返回空
func resolveHref(value, svgDir string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	lower := strings.ToLower(value)
	switch {
	case strings.HasPrefix(lower, "data:"),
		strings.HasPrefix(lower, "http://"),
		strings.HasPrefix(lower, "https://"),
		strings.HasPrefix(lower, "#"):
		return ""
	case strings.HasPrefix(lower, "file://"):
		u, err := url.Parse(value)
		if err != nil || u.Path == "" {
			return ""
		}
		return filepath.FromSlash(u.Path)
	}
	if filepath.IsAbs(value) {
		return value
	}
	return filepath.Join(svgDir, value)
}

func withinRoots(path string, roots []string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	for _, root := range roots {
		if root == "" {
			continue
		}
		r, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		if resolved, err := filepath.EvalSymlinks(r); err == nil {
			r = resolved
		}
		rel, err := filepath.Rel(r, abs)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func mimeType(path string) string {
	t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if t == "" {
		return "application/octet-stream"
	}
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return t
}
