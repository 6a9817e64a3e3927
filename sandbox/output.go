package sandbox

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// MaxOutputNameLength 声明名称保留的最大长度（不含唯一后缀）
const MaxOutputNameLength = 64

var (
	unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)
	knownExtensions = []string{".png", ".svg", ".dot", ".gv", ".jpg", ".jpeg", ".pdf"}
)

// Output 一次执行分配到的产物位置
type Output struct {
	// Name 文件名，不含目录与扩展名
	Name string
	// Path 不含扩展名的完整路径
	Path   string
	Format string
}

// ArtifactPath 返回产物文件路径
func (o Output) ArtifactPath() string { return o.Path + "." + o.Format }

// AssignOutput 为一次执行分配产物名称。声明的名称只取文件名部分并清理，
// 且总是附加唯一后缀，避免路径穿越和并发执行之间的冲突。
func AssignOutput(outputDir, declared, format string) Output {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	base := sanitizeName(declared)
	name := "diagram_" + id
	if base != "" {
		name = base + "_" + id
	}
	return Output{
		Name:   name,
		Path:   filepath.Join(outputDir, name),
		Format: format,
	}
}

func sanitizeName(declared string) string {
	name := strings.TrimSpace(declared)
	if name == "" {
		return ""
	}
	name = strings.ReplaceAll(name, `\`, "/")
	name = name[strings.LastIndexByte(name, '/')+1:]

	for {
		ext := strings.ToLower(filepath.Ext(name))
		if ext == "" || !containsString(knownExtensions, ext) {
			break
		}
		name = name[:len(name)-len(ext)]
	}

	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")
	if len(name) > MaxOutputNameLength {
		name = name[:MaxOutputNameLength]
	}
	return name
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
