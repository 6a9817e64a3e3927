package scanner

import (
	"sort"
	"strings"
)

// Wildcard 作为成员名时匹配 owner 下的任意成员
const Wildcard = "*"

// AttributeCall 受限的 owner.member 调用模式
type AttributeCall struct {
	Owner  string `json:"owner" yaml:"owner"`
	Member string `json:"member" yaml:"member"`
}

func (c AttributeCall) String() string {
	return c.Owner + "." + c.Member
}

// ParseAttributeCall 解析 "os.system" / "subprocess.*" 形式的模式
func ParseAttributeCall(s string) (AttributeCall, bool) {
	i := strings.LastIndexByte(s, '.')
	if i <= 0 || i == len(s)-1 {
		return AttributeCall{}, false
	}
	return AttributeCall{Owner: s[:i], Member: s[i+1:]}, true
}

// PolicyOptions 构造 Policy 的参数
type PolicyOptions struct {
	ForbiddenIdentifiers     []string
	ForbiddenAttributeCalls  []AttributeCall
	ForbiddenAttributeAccess []string
	ImportsForbidden         bool
}

// Policy 扫描器使用的禁用清单。
// 构造后只读，可在多个 goroutine 间共享。
type Policy struct {
	identifiers      map[string]struct{}
	attributeCalls   map[AttributeCall]struct{}
	attributes       map[string]struct{}
	importsForbidden bool
}

// NewPolicy 根据参数构造 Policy，参数切片会被复制
func NewPolicy(opts PolicyOptions) *Policy {
	p := &Policy{
		identifiers:      make(map[string]struct{}, len(opts.ForbiddenIdentifiers)),
		attributeCalls:   make(map[AttributeCall]struct{}, len(opts.ForbiddenAttributeCalls)),
		attributes:       make(map[string]struct{}, len(opts.ForbiddenAttributeAccess)),
		importsForbidden: opts.ImportsForbidden,
	}
	for _, name := range opts.ForbiddenIdentifiers {
		p.identifiers[name] = struct{}{}
	}
	for _, call := range opts.ForbiddenAttributeCalls {
		p.attributeCalls[call] = struct{}{}
	}
	for _, name := range opts.ForbiddenAttributeAccess {
		p.attributes[name] = struct{}{}
	}
	return p
}

// DefaultPolicy 返回默认禁用清单
func DefaultPolicy() *Policy {
	return NewPolicy(PolicyOptions{
		ForbiddenIdentifiers: []string{
			"exec", "eval", "compile",
			"getattr", "setattr", "delattr",
			"vars", "globals", "locals",
			"__import__", "breakpoint", "open", "spawn",
		},
		ForbiddenAttributeCalls: []AttributeCall{
			{Owner: "os", Member: "system"},
			{Owner: "os", Member: "popen"},
			{Owner: "pickle", Member: "loads"},
			{Owner: "pickle", Member: "load"},
			{Owner: "subprocess", Member: Wildcard},
		},
		ForbiddenAttributeAccess: []string{
			"__dict__", "__builtins__", "__class__", "__subclasses__",
			"__bases__", "__globals__", "__mro__",
		},
		ImportsForbidden: true,
	})
}

// WithIdentifiers 返回追加了禁用标识符的副本，原 Policy 不变
func (p *Policy) WithIdentifiers(extra ...string) *Policy {
	return NewPolicy(PolicyOptions{
		ForbiddenIdentifiers:     append(p.Identifiers(), extra...),
		ForbiddenAttributeCalls:  p.AttributeCalls(),
		ForbiddenAttributeAccess: p.Attributes(),
		ImportsForbidden:         p.importsForbidden,
	})
}

// IsForbiddenIdentifier 名称是否在禁用标识符清单中
func (p *Policy) IsForbiddenIdentifier(name string) bool {
	_, ok := p.identifiers[name]
	return ok
}

// MatchAttributeCall 判断 owner.member 是否命中受限调用，支持通配成员
func (p *Policy) MatchAttributeCall(owner, member string) bool {
	if _, ok := p.attributeCalls[AttributeCall{Owner: owner, Member: member}]; ok {
		return true
	}
	_, ok := p.attributeCalls[AttributeCall{Owner: owner, Member: Wildcard}]
	return ok
}

// IsForbiddenAttribute 属性名是否禁止访问
func (p *Policy) IsForbiddenAttribute(name string) bool {
	_, ok := p.attributes[name]
	return ok
}

// ImportsForbidden 是否禁止所有 import 语句
func (p *Policy) ImportsForbidden() bool { return p.importsForbidden }

// Identifiers 返回排序后的禁用标识符
func (p *Policy) Identifiers() []string { return sortedKeys(p.identifiers) }

// Attributes 返回排序后的禁用属性名
func (p *Policy) Attributes() []string { return sortedKeys(p.attributes) }

// AttributeCalls 返回排序后的受限调用模式
func (p *Policy) AttributeCalls() []AttributeCall {
	out := make([]AttributeCall, 0, len(p.attributeCalls))
	for call := range p.attributeCalls {
		out = append(out, call)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
