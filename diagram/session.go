package diagram

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/BaSui01/diagramgate/script"
)

// ErrSessionClosed 会话关闭后继续渲染时返回
var ErrSessionClosed = errors.New("diagram session is closed")

// SessionOptions 会话配置
type SessionOptions struct {
	// OutputPath 产物路径（不含扩展名），脚本中的 filename 必须与之一致
	OutputPath string
	// Format 输出格式，脚本中的 outformat 必须与之一致
	Format string
	// Renderer 负责将 DOT 源码转换为产物
	Renderer Renderer
	// IconDir 图标根目录，为空时节点不带图标且禁用 Custom
	IconDir string
	Logger  *zap.Logger
}

// Session 一次脚本执行中的图表状态：上下文栈、隐式图、已渲染的产物。
// 只能由执行脚本的 goroutine 使用；Close 可从任意 goroutine 调用。
type Session struct {
	opts   SessionOptions
	logger *zap.Logger

	stack    []*Group
	implicit *Graph
	rendered []string
	explicit int
	closed   atomic.Bool

	iconCache map[string]string
}

// NewSession 创建会话
func NewSession(opts SessionOptions) (*Session, error) {
	if opts.OutputPath == "" {
		return nil, fmt.Errorf("output path is required")
	}
	if opts.Format == "" {
		return nil, fmt.Errorf("output format is required")
	}
	if opts.Renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if !opts.Renderer.Supports(opts.Format) {
		return nil, fmt.Errorf("renderer does not support format %q", opts.Format)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		opts:      opts,
		logger:    logger.With(zap.String("component", "diagram_session")),
		iconCache: make(map[string]string),
	}, nil
}

// OutputPath 返回产物路径（不含扩展名）
func (s *Session) OutputPath() string { return s.opts.OutputPath }

// OutputName 返回产物文件名（不含目录与扩展名）
func (s *Session) OutputName() string { return filepath.Base(s.opts.OutputPath) }

// Format 返回输出格式
func (s *Session) Format() string { return s.opts.Format }

// ArtifactPath 返回产物文件的完整路径
func (s *Session) ArtifactPath() string { return s.opts.OutputPath + "." + s.opts.Format }

// Rendered 返回已写出的产物路径，按渲染顺序
func (s *Session) Rendered() []string { return append([]string(nil), s.rendered...) }

// Close 关闭会话，此后的渲染请求一律失败
func (s *Session) Close() { s.closed.Store(true) }

// Finish 脚本正常结束后调用：没有显式图被渲染时渲染隐式图
func (s *Session) Finish(ctx context.Context) error {
	if s.explicit > 0 || s.implicit == nil || s.implicit.NodeCount() == 0 {
		return nil
	}
	return s.render(ctx, s.implicit)
}

// current 返回当前的分组；没有活动上下文时落到隐式图
func (s *Session) current() *Group {
	if n := len(s.stack); n > 0 {
		return s.stack[n-1]
	}
	if s.implicit == nil {
		s.implicit = NewGraph("")
	}
	return s.implicit.root
}

func (s *Session) render(ctx context.Context, g *Graph) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	path := s.ArtifactPath()
	if err := s.opts.Renderer.Render(ctx, g.DOT(), s.opts.Format, path); err != nil {
		return err
	}
	s.rendered = append(s.rendered, path)
	s.logger.Debug("diagram rendered",
		zap.String("name", g.Name),
		zap.Int("nodes", g.NodeCount()),
		zap.Int("links", len(g.links)),
		zap.String("path", path),
	)
	return nil
}

// resolveIcon 返回目录类的本地图标路径，不存在时为空
func (s *Session) resolveIcon(cls NodeClass) string {
	if s.opts.IconDir == "" {
		return ""
	}
	rel := cls.Icon()
	if p, ok := s.iconCache[rel]; ok {
		return p
	}
	p := filepath.Join(s.opts.IconDir, filepath.FromSlash(rel))
	if info, err := os.Stat(p); err != nil || !info.Mode().IsRegular() {
		p = ""
	}
	s.iconCache[rel] = p
	return p
}

// customIcon 校验 Custom 的图标：只接受图标目录下的文件名
func (s *Session) customIcon(name string) (string, error) {
	if s.opts.IconDir == "" {
		return "", script.Errorf("custom icons are disabled")
	}
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", script.Errorf("custom icon must be a file name inside the icon directory, got %q", name)
	}
	p := filepath.Join(s.opts.IconDir, "custom", name)
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return "", script.Errorf("custom icon %q not found", name)
	}
	return p, nil
}

// =============================================================================
// 脚本绑定
// =============================================================================

// Bindings 返回 DSL 的全部绑定：目录中的节点类、Diagram、Cluster、Edge、Custom
func (s *Session) Bindings(cat *Catalog) script.StringDict {
	classes := cat.Classes()
	out := make(script.StringDict, len(classes)+4)
	for _, cls := range classes {
		out[cls.Name] = s.NodeConstructor(cls)
	}
	out["Diagram"] = script.NewBuiltin("Diagram", s.newDiagram)
	out["Cluster"] = script.NewBuiltin("Cluster", s.newCluster)
	out["Edge"] = script.NewBuiltin("Edge", s.newEdge)
	out["Custom"] = script.NewBuiltin("Custom", s.newCustom)
	return out
}

// NodeConstructor 返回创建 cls 节点的构造函数：Class(label="", *, nodeid=None, **attrs)
func (s *Session) NodeConstructor(cls NodeClass) *script.Builtin {
	return script.NewBuiltin(cls.Name, func(th *script.Thread, b *script.Builtin, args script.Tuple, kwargs []script.Kwarg) (script.Value, error) {
		known, extra, err := splitKwargs(kwargs, "label", "nodeid")
		if err != nil {
			return nil, err
		}
		var label, nodeID string
		if err := script.UnpackArgs(b.Name(), args, known, "label?", &label, "nodeid?", &nodeID); err != nil {
			return nil, err
		}
		if len(args) > 1 {
			return nil, script.Errorf("%s() takes at most 1 positional argument (%d given)", b.Name(), len(args))
		}
		return s.addNode(label, nodeID, cls, s.resolveIcon(cls), extra), nil
	})
}

func (s *Session) addNode(label, nodeID string, cls NodeClass, icon string, attrs map[string]string) *Node {
	group := s.current()
	if nodeID == "" {
		nodeID = group.graph.nextID("node_")
	}
	n := &Node{ID: nodeID, Label: label, Class: cls, Icon: icon, Attrs: attrs}
	group.add(n)
	return n
}

// Diagram(name="", filename="", direction="LR", curvestyle="ortho", outformat=<format>,
// autolabel=False, show=True, strict=False, graph_attr={}, node_attr={}, edge_attr={})
func (s *Session) newDiagram(th *script.Thread, b *script.Builtin, args script.Tuple, kwargs []script.Kwarg) (script.Value, error) {
	var (
		name, filename                string
		autolabel, show, strict       bool
		outformat                     script.Value
		graphAttr, nodeAttr, edgeAttr script.Value
	)
	direction, curve := "LR", "ortho"
	if err := script.UnpackArgs("Diagram", args, kwargs,
		"name?", &name,
		"filename?", &filename,
		"direction?", &direction,
		"curvestyle?", &curve,
		"outformat?", &outformat,
		"autolabel?", &autolabel,
		"show?", &show,
		"strict?", &strict,
		"graph_attr?", &graphAttr,
		"node_attr?", &nodeAttr,
		"edge_attr?", &edgeAttr,
	); err != nil {
		return nil, err
	}

	if filename != "" && filename != s.opts.OutputPath && filename != s.OutputName() {
		return nil, script.Errorf("Diagram() filename is assigned by the server and cannot be changed")
	}
	if outformat != nil {
		if err := s.checkFormat(outformat); err != nil {
			return nil, err
		}
	}
	if !containsString(Directions, strings.ToUpper(direction)) {
		return nil, script.Errorf("invalid direction: %s", direction)
	}
	if !containsString(CurveStyles, strings.ToLower(curve)) {
		return nil, script.Errorf("invalid curvestyle: %s", curve)
	}

	g := NewGraph(name)
	g.Direction = strings.ToUpper(direction)
	g.CurveStyle = strings.ToLower(curve)
	g.Autolabel = autolabel
	g.Strict = strict
	var err error
	if g.GraphAttr, err = attrDict("graph_attr", graphAttr); err != nil {
		return nil, err
	}
	if g.NodeAttr, err = attrDict("node_attr", nodeAttr); err != nil {
		return nil, err
	}
	if g.EdgeAttr, err = attrDict("edge_attr", edgeAttr); err != nil {
		return nil, err
	}
	return &Diagram{graph: g, session: s}, nil
}

func (s *Session) checkFormat(v script.Value) error {
	var formats []script.Value
	switch v := v.(type) {
	case script.String:
		formats = []script.Value{v}
	case *script.List:
		formats = v.Elems()
	case script.Tuple:
		formats = v
	default:
		return script.Errorf("Diagram() outformat must be str or list, not %s", v.Type())
	}
	for _, f := range formats {
		if str, ok := script.AsString(f); !ok || !strings.EqualFold(str, s.opts.Format) {
			return script.Errorf("Diagram() outformat is assigned by the server (%s)", s.opts.Format)
		}
	}
	return nil
}

// Cluster(label="cluster", direction="LR", graph_attr={})
func (s *Session) newCluster(th *script.Thread, b *script.Builtin, args script.Tuple, kwargs []script.Kwarg) (script.Value, error) {
	label, direction := "cluster", "LR"
	var graphAttr script.Value
	if err := script.UnpackArgs("Cluster", args, kwargs,
		"label?", &label,
		"direction?", &direction,
		"graph_attr?", &graphAttr,
	); err != nil {
		return nil, err
	}
	if !containsString(Directions, strings.ToUpper(direction)) {
		return nil, script.Errorf("invalid direction: %s", direction)
	}
	attr, err := attrDict("graph_attr", graphAttr)
	if err != nil {
		return nil, err
	}
	return &Cluster{label: label, direction: strings.ToUpper(direction), attr: attr, session: s}, nil
}

// Edge(node=None, forward=False, reverse=False, label="", color="", style="", **attrs)
func (s *Session) newEdge(th *script.Thread, b *script.Builtin, args script.Tuple, kwargs []script.Kwarg) (script.Value, error) {
	known, extra, err := splitKwargs(kwargs, "node", "forward", "reverse", "label", "color", "style")
	if err != nil {
		return nil, err
	}
	var (
		node                script.Value
		forward, reverse    bool
		label, color, style string
	)
	if err := script.UnpackArgs("Edge", args, known,
		"node?", &node,
		"forward?", &forward,
		"reverse?", &reverse,
		"label?", &label,
		"color?", &color,
		"style?", &style,
	); err != nil {
		return nil, err
	}

	e := &Edge{forward: forward, reverse: reverse, attrs: extra}
	for k, v := range map[string]string{"label": label, "color": color, "style": style} {
		if v != "" {
			e.attrs[k] = v
		}
	}
	switch n := node.(type) {
	case nil, script.NoneType:
	case *Node:
		e.tail = n
	default:
		return nil, script.Errorf("Edge() argument 'node' must be a node, not %s", node.Type())
	}
	return e, nil
}

// Custom(label, icon_path, **attrs)
func (s *Session) newCustom(th *script.Thread, b *script.Builtin, args script.Tuple, kwargs []script.Kwarg) (script.Value, error) {
	known, extra, err := splitKwargs(kwargs, "label", "icon_path", "nodeid")
	if err != nil {
		return nil, err
	}
	var label, iconPath, nodeID string
	if err := script.UnpackArgs("Custom", args, known, "label", &label, "icon_path", &iconPath, "nodeid?", &nodeID); err != nil {
		return nil, err
	}
	icon, err := s.customIcon(iconPath)
	if err != nil {
		return nil, err
	}
	return s.addNode(label, nodeID, NodeClass{}, icon, extra), nil
}

// =============================================================================
// Diagram / Cluster 上下文
// =============================================================================

// Diagram 脚本中的 Diagram 上下文，退出时渲染
type Diagram struct {
	graph   *Graph
	session *Session
	entered bool
}

var (
	_ script.ContextManager = (*Diagram)(nil)
	_ script.HasAttrs       = (*Diagram)(nil)
)

func (d *Diagram) String() string { return fmt.Sprintf("<Diagram %q>", d.graph.Name) }
func (d *Diagram) Type() string   { return "Diagram" }
func (d *Diagram) Truth() bool    { return true }

// Graph 返回图结构
func (d *Diagram) Graph() *Graph { return d.graph }

func (d *Diagram) Attr(name string) (script.Value, error) {
	switch name {
	case "name":
		return script.String(d.graph.Name), nil
	case "direction":
		return script.String(d.graph.Direction), nil
	case "filename":
		return script.String(d.session.OutputName()), nil
	case "outformat":
		return script.String(d.session.opts.Format), nil
	}
	return nil, nil
}

func (d *Diagram) AttrNames() []string { return []string{"direction", "filename", "name", "outformat"} }

func (d *Diagram) Enter(th *script.Thread) (script.Value, error) {
	s := d.session
	if len(s.stack) > 0 {
		return nil, script.Errorf("diagrams cannot be nested")
	}
	if d.entered {
		return nil, script.Errorf("diagram %q has already been used", d.graph.Name)
	}
	d.entered = true
	s.stack = append(s.stack, d.graph.root)
	return d, nil
}

func (d *Diagram) Exit(th *script.Thread, failed bool) error {
	s := d.session
	s.stack = s.stack[:0]
	if failed {
		return nil
	}
	s.explicit++
	return s.render(th.Context(), d.graph)
}

// Cluster 脚本中的 Cluster 上下文
type Cluster struct {
	label     string
	direction string
	attr      map[string]string
	session   *Session
	group     *Group
}

var (
	_ script.ContextManager = (*Cluster)(nil)
	_ script.HasAttrs       = (*Cluster)(nil)
)

func (c *Cluster) String() string { return fmt.Sprintf("<Cluster %q>", c.label) }
func (c *Cluster) Type() string   { return "Cluster" }
func (c *Cluster) Truth() bool    { return true }

func (c *Cluster) Attr(name string) (script.Value, error) {
	switch name {
	case "label":
		return script.String(c.label), nil
	case "direction":
		return script.String(c.direction), nil
	}
	return nil, nil
}

func (c *Cluster) AttrNames() []string { return []string{"direction", "label"} }

func (c *Cluster) Enter(th *script.Thread) (script.Value, error) {
	if c.group != nil {
		return nil, script.Errorf("cluster %q has already been used", c.label)
	}
	s := c.session
	c.group = s.current().NewGroup(c.label, c.direction, c.attr)
	s.stack = append(s.stack, c.group)
	return c, nil
}

func (c *Cluster) Exit(th *script.Thread, failed bool) error {
	s := c.session
	if n := len(s.stack); n > 0 && s.stack[n-1] == c.group {
		s.stack = s.stack[:n-1]
	}
	return nil
}

// =============================================================================
// 参数辅助
// =============================================================================

// splitKwargs 将关键字参数分为已知参数与额外的 graphviz 属性
func splitKwargs(kwargs []script.Kwarg, known ...string) ([]script.Kwarg, map[string]string, error) {
	var named []script.Kwarg
	extra := make(map[string]string)
	for _, kw := range kwargs {
		if containsString(known, kw.Name) {
			named = append(named, kw)
			continue
		}
		v, err := attrValue(kw.Name, kw.Value)
		if err != nil {
			return nil, nil, err
		}
		extra[kw.Name] = v
	}
	return named, extra, nil
}

// attrDict 将脚本中的 dict 转换为 graphviz 属性
func attrDict(name string, v script.Value) (map[string]string, error) {
	out := make(map[string]string)
	switch d := v.(type) {
	case nil, script.NoneType:
		return out, nil
	case *script.Dict:
		for _, item := range d.Items() {
			key, ok := script.AsString(item[0])
			if !ok {
				return nil, script.Errorf("%s keys must be str, not %s", name, item[0].Type())
			}
			val, err := attrValue(key, item[1])
			if err != nil {
				return nil, err
			}
			out[key] = val
		}
		return out, nil
	default:
		return nil, script.Errorf("%s must be a dict, not %s", name, v.Type())
	}
}

// blockedAttrs 会让 graphviz 读取任意本地文件的属性
var blockedAttrs = map[string]bool{
	"image":     true,
	"imagepath": true,
	"shapefile": true,
	"fontpath":  true,
}

func attrValue(key string, v script.Value) (string, error) {
	if blockedAttrs[strings.ToLower(key)] {
		return "", script.Errorf("attribute %q is not allowed", key)
	}
	switch v := v.(type) {
	case script.String:
		return string(v), nil
	case script.Bool:
		if v {
			return "true", nil
		}
		return "false", nil
	case script.Int, script.Float:
		return v.String(), nil
	default:
		return "", script.Errorf("attribute %q must be str, int, float or bool, not %s", key, v.Type())
	}
}
