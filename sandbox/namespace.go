package sandbox

import (
	"sort"

	"github.com/BaSui01/diagramgate/diagram"
	"github.com/BaSui01/diagramgate/script"
)

// PureBuiltins 绑定到执行命名空间中的内置函数，均无副作用
var PureBuiltins = []string{
	"len", "range", "str", "int", "float", "bool",
	"list", "dict", "tuple", "min", "max", "sum", "abs",
	"enumerate", "zip", "sorted", "reversed", "print",
}

// Namespace 一次执行的能力命名空间，脚本只能引用其中的名称
type Namespace struct {
	Bindings script.StringDict
	Session  *diagram.Session
}

// Names 返回排序后的全部绑定名称
func (ns *Namespace) Names() []string {
	names := make([]string, 0, len(ns.Bindings))
	for name := range ns.Bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builder 根据节点目录构建命名空间
type Builder struct {
	catalog *diagram.Catalog
}

// NewBuilder 创建构建器，catalog 为 nil 时使用内置目录
func NewBuilder(catalog *diagram.Catalog) *Builder {
	if catalog == nil {
		catalog = diagram.DefaultCatalog()
	}
	return &Builder{catalog: catalog}
}

// Catalog 返回构建器使用的节点目录
func (b *Builder) Catalog() *diagram.Catalog { return b.catalog }

// Build 为 session 构建全新的命名空间，每次调用返回独立的 map
func (b *Builder) Build(session *diagram.Session) *Namespace {
	universe := script.Universe()
	bindings := session.Bindings(b.catalog)
	for _, name := range PureBuiltins {
		if fn, ok := universe[name]; ok {
			bindings[name] = fn
		}
	}
	return &Namespace{Bindings: bindings, Session: session}
}
