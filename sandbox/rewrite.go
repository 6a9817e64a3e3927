package sandbox

import (
	"strconv"

	"github.com/BaSui01/diagramgate/script"
)

// diagramParams Diagram() 的位置参数顺序
var diagramParams = []string{"name", "filename", "direction", "curvestyle", "outformat", "autolabel", "show"}

// RewriteDiagramCalls 强制每个 Diagram(...) 调用使用 show=False、分配的文件名与输出格式，
// 覆盖脚本中原有的值。返回改写的调用数。
func RewriteDiagramCalls(file *script.File, filename, format string) int {
	count := 0
	script.Inspect(file, func(n script.Node) bool {
		call, ok := n.(*script.CallExpr)
		if !ok {
			return true
		}
		if fn, ok := call.Fn.(*script.Ident); !ok || fn.Name != "Diagram" {
			return true
		}
		pos := call.Lparen
		forceArg(call, "show", &script.Literal{ValuePos: pos, Token: script.FALSE, Raw: "False", Value: false})
		forceArg(call, "filename", stringLiteral(pos, filename))
		forceArg(call, "outformat", stringLiteral(pos, format))
		count++
		return true
	})
	return count
}

func stringLiteral(pos script.Position, s string) *script.Literal {
	return &script.Literal{ValuePos: pos, Token: script.STRING, Raw: strconv.Quote(s), Value: s}
}

// forceArg 若参数以位置方式传入则原地替换，否则设置或覆盖同名关键字参数
func forceArg(call *script.CallExpr, name string, value script.Expr) {
	for i, param := range diagramParams {
		if param == name && i < len(call.Args) {
			call.Args[i] = value
			return
		}
	}
	if kw := call.KeywordArg(name); kw != nil {
		kw.Value = value
		return
	}
	call.Keywords = append(call.Keywords, &script.Keyword{NamePos: call.Lparen, Name: name, Value: value})
}
