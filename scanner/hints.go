package scanner

import (
	"strings"

	"github.com/BaSui01/diagramgate/types"
)

var symbolHints = map[string]string{
	"exec":           "Remove exec() call. Dynamic code execution is not allowed.",
	"eval":           "Remove eval() call. Use literal values instead.",
	"compile":        "Remove compile() call. Dynamic code compilation is not allowed.",
	"getattr":        "Remove getattr() call. Use direct attribute access instead.",
	"setattr":        "Remove setattr() call. Use direct attribute assignment instead.",
	"delattr":        "Remove delattr() call. Deleting attributes is not allowed.",
	"vars":           "Remove vars() call. Use explicit attribute access instead.",
	"__import__":     "Remove __import__() call. Import statements are not allowed.",
	"breakpoint":     "Remove breakpoint() call. Debugging is not allowed in diagram code.",
	"open":           "Remove open() call. File I/O is not allowed in diagram code.",
	"globals":        "Remove globals() call. Accessing global scope is not allowed.",
	"locals":         "Remove locals() call. Accessing local scope is not allowed.",
	"spawn":          "Remove spawn() call. Process spawning is not allowed.",
	"os.system":      "Remove os.system() call. Shell command execution is not allowed.",
	"os.popen":       "Remove os.popen() call. Shell command execution is not allowed.",
	"pickle.loads":   "Remove pickle.loads() call. Deserialization is not allowed.",
	"pickle.load":    "Remove pickle.load() call. Deserialization is not allowed.",
	"__dict__":       "Remove __dict__ access. Direct dictionary access on objects is not allowed.",
	"__builtins__":   "Remove __builtins__ access. Accessing built-in scope is not allowed.",
	"__class__":      "Remove __class__ access. Class introspection is not allowed.",
	"__subclasses__": "Remove __subclasses__() access. Class hierarchy traversal is not allowed.",
	"__bases__":      "Remove __bases__ access. Class hierarchy inspection is not allowed.",
	"__globals__":    "Remove __globals__ access. Accessing global scope is not allowed.",
	"__mro__":        "Remove __mro__ access. Method resolution order inspection is not allowed.",
}

var kindHints = map[types.IssueKind]string{
	types.IssueForbiddenCall:      "Remove the call. Build the diagram with the node classes, Diagram, Cluster and Edge only.",
	types.IssueForbiddenAttribute: "Use the diagram DSL's built-in node construction instead of dynamic attribute access.",
	types.IssueForbiddenImport:    "Remove import statements. Diagram, Cluster, Edge, Custom and every provider node class are already available by name.",
	types.IssueParseFallback:      "Fix the syntax error. Only a Python subset is supported, without classes, lambdas, comprehensions, try blocks or f-strings.",
	types.IssueLinterFinding:      "Remove secrets, internal addresses and temporary file paths from the diagram code.",
	types.IssueScannerFault:       "The submission could not be analysed. Simplify the script and retry.",
	types.IssueInvalidSubmission:  "Send a non-empty script under 64 KiB, a format of png, svg or dot, and a timeout between 1s and 300s.",
}

// Hint 返回问题的修复建议：先按符号查表，再按类别兜底
func Hint(issue types.Issue) string {
	if issue.Symbol != "" {
		if h, ok := symbolHints[issue.Symbol]; ok {
			return h
		}
		if strings.HasPrefix(issue.Symbol, "subprocess.") {
			return "Remove subprocess usage. Running external processes is not allowed."
		}
		if issue.Kind == types.IssueForbiddenCall {
			// x.eval 之类的限定调用按成员名查表
			if i := strings.LastIndexByte(issue.Symbol, '.'); i >= 0 {
				if h, ok := symbolHints[issue.Symbol[i+1:]]; ok {
					return h
				}
			}
			return "Remove usage of " + issue.Symbol + ". This function is not allowed in diagram code."
		}
	}
	return kindHints[issue.Kind]
}
