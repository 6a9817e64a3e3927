package diagram

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/BaSui01/diagramgate/script"
)

// =============================================================================
// 默认样式
// =============================================================================

var (
	// Directions 合法的布局方向
	Directions = []string{"TB", "BT", "LR", "RL"}
	// CurveStyles 合法的连线样式
	CurveStyles = []string{"ortho", "curved", "spline", "polyline"}
)

var defaultGraphAttrs = map[string]string{
	"pad":       "2.0",
	"splines":   "ortho",
	"nodesep":   "0.60",
	"ranksep":   "0.75",
	"fontname":  "Sans-Serif",
	"fontsize":  "15",
	"fontcolor": "#2D3436",
}

var defaultNodeAttrs = map[string]string{
	"shape":      "box",
	"style":      "rounded",
	"fixedsize":  "true",
	"width":      "1.4",
	"height":     "1.4",
	"labelloc":   "b",
	"imagescale": "true",
	"fontname":   "Sans-Serif",
	"fontsize":   "13",
	"fontcolor":  "#2D3436",
}

var defaultEdgeAttrs = map[string]string{
	"color": "#7B8894",
}

var defaultClusterAttrs = map[string]string{
	"shape":     "box",
	"style":     "rounded",
	"labeljust": "l",
	"pencolor":  "#AEB6BE",
	"fontname":  "Sans-Serif",
	"fontsize":  "12",
}

// clusterBgColors 按嵌套深度循环使用的背景色
var clusterBgColors = []string{"#E5F5FD", "#EBF3E7", "#ECE8F6", "#FDF7E3"}

const iconNodeHeight = 1.9

// =============================================================================
// Graph
// =============================================================================

// Graph 一张待渲染的图
type Graph struct {
	Name       string
	Direction  string
	CurveStyle string
	Strict     bool
	Autolabel  bool
	GraphAttr  map[string]string
	NodeAttr   map[string]string
	EdgeAttr   map[string]string

	root  *Group
	links []*Link
	seq   int
}

// NewGraph 创建使用默认样式的图
func NewGraph(name string) *Graph {
	g := &Graph{
		Name:       name,
		Direction:  "LR",
		CurveStyle: "ortho",
		GraphAttr:  map[string]string{},
		NodeAttr:   map[string]string{},
		EdgeAttr:   map[string]string{},
	}
	g.root = &Group{graph: g}
	return g
}

// Root 返回顶层分组
func (g *Graph) Root() *Group { return g.root }

// Links 返回所有连线，按创建顺序
func (g *Graph) Links() []*Link { return g.links }

// NodeCount 返回图中节点总数
func (g *Graph) NodeCount() int { return g.root.count() }

func (g *Graph) nextID(prefix string) string {
	g.seq++
	return prefix + strconv.Itoa(g.seq)
}

// Group 图中的分组。顶层分组对应图本身，其余对应 Cluster。
type Group struct {
	ID        string
	Label     string
	Direction string
	Attr      map[string]string
	Nodes     []*Node
	Groups    []*Group

	graph  *Graph
	parent *Group
	depth  int
}

// NewGroup 在当前分组下创建子分组
func (gr *Group) NewGroup(label, direction string, attr map[string]string) *Group {
	child := &Group{
		ID:        gr.graph.nextID("cluster_"),
		Label:     label,
		Direction: direction,
		Attr:      attr,
		graph:     gr.graph,
		parent:    gr,
		depth:     gr.depth + 1,
	}
	gr.Groups = append(gr.Groups, child)
	return child
}

// Graph 返回分组所属的图
func (gr *Group) Graph() *Graph { return gr.graph }

func (gr *Group) add(n *Node) {
	n.graph = gr.graph
	gr.Nodes = append(gr.Nodes, n)
}

func (gr *Group) count() int {
	n := len(gr.Nodes)
	for _, child := range gr.Groups {
		n += child.count()
	}
	return n
}

// Link 两个节点间的连线
type Link struct {
	Tail    *Node
	Head    *Node
	Forward bool
	Reverse bool
	Attrs   map[string]string
}

// Dir 返回 graphviz 的 dir 属性
func (l *Link) Dir() string {
	switch {
	case l.Forward && l.Reverse:
		return "both"
	case l.Forward:
		return "forward"
	case l.Reverse:
		return "back"
	default:
		return "none"
	}
}

// connect 在图中添加一条连线
func (g *Graph) connect(tail, head *Node, forward, reverse bool, attrs map[string]string) (*Link, error) {
	if tail.graph != g || head.graph != g {
		return nil, script.Errorf("cannot connect nodes that belong to different diagrams")
	}
	l := &Link{Tail: tail, Head: head, Forward: forward, Reverse: reverse, Attrs: copyAttrs(attrs)}
	g.links = append(g.links, l)
	return l, nil
}

// =============================================================================
// DOT 输出
// =============================================================================

// DOT 将图序列化为 graphviz DOT 源码，输出确定
func (g *Graph) DOT() []byte {
	var b strings.Builder

	if g.Strict {
		b.WriteString("strict ")
	}
	fmt.Fprintf(&b, "digraph %s {\n", quoteID(g.Name))

	graphAttrs := mergeAttrs(defaultGraphAttrs, map[string]string{
		"label":   g.Name,
		"rankdir": g.Direction,
		"splines": g.CurveStyle,
	}, g.GraphAttr)
	writeStmt(&b, 1, "graph", graphAttrs)
	writeStmt(&b, 1, "node", mergeAttrs(defaultNodeAttrs, g.NodeAttr))
	writeStmt(&b, 1, "edge", mergeAttrs(defaultEdgeAttrs, g.EdgeAttr))
	b.WriteByte('\n')

	g.writeGroup(&b, g.root, 1)

	for _, l := range g.links {
		attrs := mergeAttrs(map[string]string{"dir": l.Dir()}, l.Attrs)
		indent(&b, 1)
		fmt.Fprintf(&b, "%s -> %s", quoteID(l.Tail.ID), quoteID(l.Head.ID))
		writeAttrList(&b, attrs)
		b.WriteString("\n")
	}

	b.WriteString("}\n")
	return []byte(b.String())
}

func (g *Graph) writeGroup(b *strings.Builder, gr *Group, depth int) {
	for _, n := range gr.Nodes {
		indent(b, depth)
		b.WriteString(quoteID(n.ID))
		writeAttrList(b, n.dotAttrs(g.Autolabel))
		b.WriteString("\n")
	}
	for _, child := range gr.Groups {
		indent(b, depth)
		fmt.Fprintf(b, "subgraph %s {\n", quoteID(child.ID))
		attrs := mergeAttrs(defaultClusterAttrs, map[string]string{
			"label":   child.Label,
			"rankdir": child.Direction,
			"bgcolor": clusterBgColors[(child.depth-1)%len(clusterBgColors)],
		}, child.Attr)
		writeStmt(b, depth+1, "graph", attrs)
		g.writeGroup(b, child, depth+1)
		indent(b, depth)
		b.WriteString("}\n")
	}
}

func writeStmt(b *strings.Builder, depth int, kind string, attrs map[string]string) {
	indent(b, depth)
	b.WriteString(kind)
	writeAttrList(b, attrs)
	b.WriteString("\n")
}

func writeAttrList(b *strings.Builder, attrs map[string]string) {
	if len(attrs) == 0 {
		return
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteString(" [")
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(quoteID(k))
		b.WriteByte('=')
		b.WriteString(quoteID(attrs[k]))
	}
	b.WriteByte(']')
}

func indent(b *strings.Builder, depth int) {
	for i := 0; i < depth; i++ {
		b.WriteByte('\t')
	}
}

// quoteID 将任意字符串转为 DOT 双引号 ID
func quoteID(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// mergeAttrs 按顺序合并属性，后者覆盖前者，空值表示不输出
func mergeAttrs(layers ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, layer := range layers {
		for k, v := range layer {
			if v == "" {
				delete(out, k)
				continue
			}
			out[k] = v
		}
	}
	return out
}

func copyAttrs(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
