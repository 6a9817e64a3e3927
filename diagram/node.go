package diagram

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BaSui01/diagramgate/script"
)

// Node 图中的节点，同时是脚本中的值。
// 支持 >>、<<、- 三种连线运算，右操作数可以是节点、Edge 或节点列表。
type Node struct {
	ID    string
	Label string
	Class NodeClass
	// Icon 本地图标的绝对路径，为空时渲染为普通方框
	Icon  string
	Attrs map[string]string

	graph *Graph
}

var (
	_ script.HasBinary = (*Node)(nil)
	_ script.HasAttrs  = (*Node)(nil)
)

func (n *Node) String() string { return fmt.Sprintf("<%s %s>", n.Type(), strconv.Quote(n.Label)) }
func (n *Node) Truth() bool    { return true }

func (n *Node) Type() string {
	if n.Class.Name == "" {
		return "Custom"
	}
	return n.Class.Name
}

// Graph 返回节点所属的图
func (n *Node) Graph() *Graph { return n.graph }

func (n *Node) Attr(name string) (script.Value, error) {
	switch name {
	case "label":
		return script.String(n.Label), nil
	case "nodeid":
		return script.String(n.ID), nil
	}
	return nil, nil
}

func (n *Node) AttrNames() []string { return []string{"label", "nodeid"} }

func (n *Node) Binary(op script.Token, y script.Value, side script.Side) (script.Value, error) {
	forward, reverse, ok := linkDirection(op)
	if !ok {
		return nil, nil
	}

	if side == script.Left {
		switch y := y.(type) {
		case *Node:
			if _, err := n.graph.connect(n, y, forward, reverse, nil); err != nil {
				return nil, err
			}
			return y, nil
		case *Edge:
			return y.bind(n, forward, reverse), nil
		}
		elems, ok := asNodeSeq(y)
		if !ok {
			return nil, nil
		}
		for _, elem := range elems {
			head, ok := elem.(*Node)
			if !ok {
				return nil, script.Errorf("unsupported operand type(s) for %s: '%s' and '%s' element", op, n.Type(), elem.Type())
			}
			if _, err := n.graph.connect(n, head, forward, reverse, nil); err != nil {
				return nil, err
			}
		}
		return y, nil
	}

	// [a, b] >> n 或 [edge, ...] >> n
	elems, ok := asNodeSeq(y)
	if !ok {
		return nil, nil
	}
	for _, elem := range elems {
		switch elem := elem.(type) {
		case *Node:
			if _, err := n.graph.connect(elem, n, forward, reverse, nil); err != nil {
				return nil, err
			}
		case *Edge:
			if _, err := elem.bind(nil, forward, reverse).connectTo(n); err != nil {
				return nil, err
			}
		default:
			return nil, script.Errorf("unsupported operand type(s) for %s: '%s' element and '%s'", op, elem.Type(), n.Type())
		}
	}
	return n, nil
}

func (n *Node) dotAttrs(autolabel bool) map[string]string {
	label := n.Label
	if autolabel && n.Class.Name != "" {
		label = n.Class.Name + "\n" + label
	}

	attrs := map[string]string{"label": label}
	switch {
	case n.Icon != "":
		lines := strings.Count(label, "\n")
		attrs["shape"] = "none"
		attrs["image"] = n.Icon
		attrs["height"] = strconv.FormatFloat(iconNodeHeight+0.4*float64(lines), 'f', 1, 64)
	case n.Class.Color != "":
		attrs["style"] = "rounded,filled"
		attrs["fillcolor"] = "#FFFFFF"
		attrs["color"] = n.Class.Color
		attrs["penwidth"] = "2"
	}
	out := mergeAttrs(attrs, n.Attrs)
	if _, ok := out["label"]; !ok {
		// 未设置 label 时 graphviz 会显示节点 ID
		out["label"] = ""
	}
	return out
}

// =============================================================================
// Edge
// =============================================================================

// Edge 带样式的连线描述，绑定起点后与终点运算时落到图上
type Edge struct {
	tail    *Node
	forward bool
	reverse bool
	attrs   map[string]string
}

var _ script.HasBinary = (*Edge)(nil)

func (e *Edge) String() string {
	if label, ok := e.attrs["label"]; ok {
		return fmt.Sprintf("<Edge %s>", strconv.Quote(label))
	}
	return "<Edge>"
}

func (e *Edge) Type() string { return "Edge" }
func (e *Edge) Truth() bool  { return true }

// bind 返回以 tail 为起点的副本；tail 为 nil 时保留原起点
func (e *Edge) bind(tail *Node, forward, reverse bool) *Edge {
	c := &Edge{tail: e.tail, forward: e.forward || forward, reverse: e.reverse || reverse, attrs: e.attrs}
	if tail != nil {
		c.tail = tail
	}
	return c
}

func (e *Edge) connectTo(head *Node) (*Link, error) {
	if e.tail == nil {
		return nil, script.Errorf("edge has no source node")
	}
	return e.tail.graph.connect(e.tail, head, e.forward, e.reverse, e.attrs)
}

func (e *Edge) Binary(op script.Token, y script.Value, side script.Side) (script.Value, error) {
	forward, reverse, ok := linkDirection(op)
	if !ok {
		return nil, nil
	}

	if side == script.Left {
		bound := e.bind(nil, forward, reverse)
		switch y := y.(type) {
		case *Node:
			if bound.tail == nil {
				// Edge(...) >> n：n 成为起点
				bound.tail = y
				return bound, nil
			}
			if _, err := bound.connectTo(y); err != nil {
				return nil, err
			}
			return y, nil
		case *Edge:
			bound.attrs = y.attrs
			return bound, nil
		}
		elems, ok := asNodeSeq(y)
		if !ok {
			return nil, nil
		}
		for _, elem := range elems {
			head, ok := elem.(*Node)
			if !ok {
				return nil, script.Errorf("unsupported operand type(s) for %s: 'Edge' and '%s' element", op, elem.Type())
			}
			if _, err := bound.connectTo(head); err != nil {
				return nil, err
			}
		}
		return y, nil
	}

	// [a, b] >> Edge(...)：为每个元素生成绑定后的 Edge
	elems, ok := asNodeSeq(y)
	if !ok {
		return nil, nil
	}
	out := make([]script.Value, 0, len(elems))
	for _, elem := range elems {
		switch elem := elem.(type) {
		case *Node:
			out = append(out, e.bind(elem, forward, reverse))
		case *Edge:
			out = append(out, elem.bind(nil, forward, reverse))
		default:
			return nil, script.Errorf("unsupported operand type(s) for %s: '%s' element and 'Edge'", op, elem.Type())
		}
	}
	return script.NewList(out), nil
}

func linkDirection(op script.Token) (forward, reverse, ok bool) {
	switch op {
	case script.GTGT:
		return true, false, true
	case script.LTLT:
		return false, true, true
	case script.MINUS:
		return false, false, true
	}
	return false, false, false
}

func asNodeSeq(v script.Value) ([]script.Value, bool) {
	switch v := v.(type) {
	case *script.List:
		return v.Elems(), true
	case script.Tuple:
		return v, true
	}
	return nil, false
}
