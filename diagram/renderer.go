package diagram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Renderer 将 DOT 源码转换为产物文件
type Renderer interface {
	// Name 渲染器名称
	Name() string
	// Supports 是否支持输出格式
	Supports(format string) bool
	// Render 将 src 渲染为 format 格式写入 outPath
	Render(ctx context.Context, src []byte, format, outPath string) error
}

// ErrRendererUnavailable 渲染器本身无法运行，属于基础设施故障而非脚本错误
var ErrRendererUnavailable = errors.New("renderer unavailable")

// Formats 产物支持的全部输出格式
var Formats = []string{"png", "svg", "dot"}

const maxRendererStderr = 2048

// =============================================================================
// GraphvizRenderer
// =============================================================================

// GraphvizRenderer 调用 graphviz 的 dot 程序：dot -T<fmt> -o <path>，DOT 从 stdin 输入
type GraphvizRenderer struct {
	binary  string
	timeout time.Duration
	logger  *zap.Logger
}

// NewGraphvizRenderer 创建 graphviz 渲染器。binary 为空时使用 PATH 中的 dot。
func NewGraphvizRenderer(binary string, timeout time.Duration, logger *zap.Logger) *GraphvizRenderer {
	if binary == "" {
		binary = "dot"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GraphvizRenderer{
		binary:  binary,
		timeout: timeout,
		logger:  logger.With(zap.String("component", "graphviz_renderer")),
	}
}

func (r *GraphvizRenderer) Name() string { return "graphviz" }

func (r *GraphvizRenderer) Supports(format string) bool { return containsString(Formats, format) }

// Available 检查 dot 程序是否可用
func (r *GraphvizRenderer) Available() error {
	if _, err := exec.LookPath(r.binary); err != nil {
		return fmt.Errorf("graphviz binary %q not found: %w", r.binary, err)
	}
	return nil
}

func (r *GraphvizRenderer) Render(ctx context.Context, src []byte, format, outPath string) error {
	if !r.Supports(format) {
		return fmt.Errorf("graphviz: unsupported format %q", format)
	}
	if err := r.Available(); err != nil {
		return fmt.Errorf("%w: %v", ErrRendererUnavailable, err)
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, r.binary, "-T"+format, "-o", outPath)
	cmd.Stdin = bytes.NewReader(src)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("graphviz: %w", ctxErr)
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > maxRendererStderr {
			msg = msg[:maxRendererStderr]
		}
		r.logger.Warn("graphviz render failed", zap.Error(err), zap.String("stderr", msg))
		if msg != "" {
			return fmt.Errorf("graphviz: %w: %s", err, msg)
		}
		return fmt.Errorf("graphviz: %w", err)
	}

	r.logger.Debug("graphviz render completed",
		zap.String("format", format),
		zap.Int("dot_bytes", len(src)),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// =============================================================================
// SourceRenderer
// =============================================================================

// SourceRenderer 直接写出 DOT 源码，仅支持 dot 格式，不依赖 graphviz
type SourceRenderer struct{}

func (SourceRenderer) Name() string { return "source" }

func (SourceRenderer) Supports(format string) bool { return format == "dot" }

func (SourceRenderer) Render(ctx context.Context, src []byte, format, outPath string) error {
	if format != "dot" {
		return fmt.Errorf("source renderer: unsupported format %q", format)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.WriteFile(outPath, src, 0o644); err != nil {
		return fmt.Errorf("source renderer: %w", err)
	}
	return nil
}

// =============================================================================
// Router
// =============================================================================

// Router 按输出格式选择渲染器：dot 走 SourceRenderer，其余走 graphviz
type Router struct {
	source   Renderer
	graphviz Renderer
}

// NewRouter 创建渲染路由。graphviz 为 nil 时只支持 dot。
func NewRouter(graphviz Renderer) *Router {
	return &Router{source: SourceRenderer{}, graphviz: graphviz}
}

func (r *Router) Name() string { return "router" }

func (r *Router) Supports(format string) bool {
	return r.pick(format) != nil
}

func (r *Router) Render(ctx context.Context, src []byte, format, outPath string) error {
	target := r.pick(format)
	if target == nil {
		return fmt.Errorf("%w: no renderer for format %q", ErrRendererUnavailable, format)
	}
	return target.Render(ctx, src, format, outPath)
}

func (r *Router) pick(format string) Renderer {
	if r.source.Supports(format) {
		return r.source
	}
	if r.graphviz != nil && r.graphviz.Supports(format) {
		return r.graphviz
	}
	return nil
}
