package sandbox

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/BaSui01/diagramgate/diagram"
	"github.com/BaSui01/diagramgate/script"
	"github.com/BaSui01/diagramgate/types"
)

// HarnessStats 执行统计
type HarnessStats struct {
	TotalExecutions   int64         `json:"total_executions"`
	SuccessExecutions int64         `json:"success_executions"`
	FailedExecutions  int64         `json:"failed_executions"`
	TimeoutExecutions int64         `json:"timeout_executions"`
	TotalDuration     time.Duration `json:"total_duration"`
}

// Harness 在能力命名空间中执行已通过扫描的脚本，并捕获渲染产物
type Harness struct {
	config   HarnessConfig
	renderer diagram.Renderer
	enforcer DeadlineEnforcer
	masker   *pathMasker
	logger   *zap.Logger

	mu    sync.Mutex
	stats HarnessStats
}

// NewHarness 创建执行器并确保产物目录存在。enforcer 为 nil 时按配置策略创建。
func NewHarness(config HarnessConfig, renderer diagram.Renderer, enforcer DeadlineEnforcer, logger *zap.Logger) (*Harness, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid harness config: %w", err)
	}
	if renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if enforcer == nil {
		var err error
		if enforcer, err = NewEnforcer(config.Strategy); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(config.OutputDir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Harness{
		config:   config,
		renderer: renderer,
		enforcer: enforcer,
		masker:   newPathMasker(config.OutputDir, config.IconDir),
		logger:   logger.With(zap.String("component", "harness"), zap.String("strategy", enforcer.Name())),
	}, nil
}

// Config 返回执行器配置
func (h *Harness) Config() HarnessConfig { return h.config }

// Deadline 返回提交实际生效的墙钟截止时间
func (h *Harness) Deadline(requested time.Duration) time.Duration {
	return h.config.clampDeadline(requested)
}

// Enforcer 返回截止时间执行器
func (h *Harness) Enforcer() DeadlineEnforcer { return h.enforcer }

// Stats 返回执行统计快照
func (h *Harness) Stats() HarnessStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

// AssignOutput 在产物目录中为一次执行分配输出
func (h *Harness) AssignOutput(declared, format string) Output {
	return AssignOutput(h.config.OutputDir, declared, format)
}

// NewSession 为分配的输出创建图表会话
func (h *Harness) NewSession(out Output) (*diagram.Session, error) {
	return diagram.NewSession(diagram.SessionOptions{
		OutputPath: out.Path,
		Format:     out.Format,
		Renderer:   h.renderer,
		IconDir:    h.config.IconDir,
		Logger:     h.logger,
	})
}

// Run 在 ns 中执行 source，最多运行 deadline。所有失败都转换为结果状态，不返回错误。
func (h *Harness) Run(ctx context.Context, source string, ns *Namespace, deadline time.Duration) types.ExecutionResult {
	start := time.Now()
	deadline = h.config.clampDeadline(deadline)
	result := h.run(ctx, source, ns, deadline)
	result.DurationMs = time.Since(start).Milliseconds()

	h.mu.Lock()
	h.stats.TotalExecutions++
	h.stats.TotalDuration += time.Since(start)
	switch result.Status {
	case types.StatusSuccess:
		h.stats.SuccessExecutions++
	case types.StatusTimeout:
		h.stats.TimeoutExecutions++
		h.stats.FailedExecutions++
	default:
		h.stats.FailedExecutions++
	}
	h.mu.Unlock()

	h.logger.Info("execution finished",
		zap.String("status", string(result.Status)),
		zap.Int64("duration_ms", result.DurationMs),
		zap.Duration("deadline", deadline),
	)
	return result
}

func (h *Harness) run(ctx context.Context, source string, ns *Namespace, deadline time.Duration) types.ExecutionResult {
	if ns == nil || ns.Session == nil {
		return h.toolError("execution namespace is not initialised")
	}
	session := ns.Session
	defer session.Close()

	file, err := script.Parse(source)
	if err != nil {
		return h.failure(types.StatusRuntimeFailure, err)
	}
	rewritten := RewriteDiagramCalls(file, session.OutputName(), session.Format())

	printed := &boundedBuffer{limit: h.config.MaxPrintBytes}
	th := &script.Thread{
		Name:         session.OutputName(),
		MaxSteps:     h.config.MaxSteps,
		MaxCallDepth: h.config.MaxCallDepth,
		Print:        func(_ *script.Thread, msg string) { printed.WriteLine(msg) },
	}

	h.logger.Debug("executing script",
		zap.String("output", session.OutputName()),
		zap.Int("diagram_calls", rewritten),
		zap.Int("bindings", len(ns.Bindings)),
	)

	task := func(ctx context.Context) error {
		th.SetContext(ctx)
		if err := script.ExecFile(th, file, ns.Bindings); err != nil {
			return err
		}
		return session.Finish(ctx)
	}
	interrupt := func() {
		th.Cancel("deadline exceeded")
		session.Close()
	}

	err = h.enforcer.Enforce(ctx, deadline, task, interrupt)
	if out := printed.String(); out != "" {
		h.logger.Debug("script output", zap.String("stdout", out))
	}

	switch {
	case err == nil:
	case errors.Is(err, ErrDeadlineExceeded):
		return types.ExecutionResult{
			Status:        types.StatusTimeout,
			StderrSummary: fmt.Sprintf("execution exceeded the %s deadline", deadline),
		}
	case ctx.Err() != nil:
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return types.ExecutionResult{Status: types.StatusTimeout, StderrSummary: "request deadline exceeded"}
		}
		return h.toolError("execution cancelled")
	case errors.Is(err, diagram.ErrRendererUnavailable):
		h.logger.Error("renderer unavailable", zap.Error(err))
		return h.toolError("diagram renderer is unavailable")
	default:
		return h.failure(types.StatusRuntimeFailure, err)
	}

	return h.collect(session)
}

// collect 读取产物；svg 的本地图片引用内联为 data URI
func (h *Harness) collect(session *diagram.Session) types.ExecutionResult {
	path := session.ArtifactPath()
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return types.ExecutionResult{
				Status:        types.StatusRuntimeFailure,
				StderrSummary: "script finished without producing a diagram",
			}
		}
		h.logger.Error("stat artifact failed", zap.Error(err))
		return h.toolError("artifact could not be read")
	}
	if !info.Mode().IsRegular() {
		return h.toolError("artifact is not a regular file")
	}

	if session.Format() == types.FormatSVG {
		roots := []string{h.config.OutputDir}
		if h.config.IconDir != "" {
			roots = append(roots, h.config.IconDir)
		}
		if err := diagram.InlineSVGFile(path, roots); err != nil {
			h.logger.Error("inline svg images failed", zap.Error(err))
			return h.toolError("artifact could not be post-processed")
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		h.logger.Error("read artifact failed", zap.Error(err))
		return h.toolError("artifact could not be read")
	}
	if len(data) == 0 {
		return types.ExecutionResult{
			Status:        types.StatusRuntimeFailure,
			StderrSummary: "renderer produced an empty artifact",
		}
	}

	return types.ExecutionResult{
		Status:         types.StatusSuccess,
		ArtifactBytes:  data,
		ArtifactPath:   path,
		ArtifactFormat: session.Format(),
		ArtifactDigest: Digest(data),
	}
}

func (h *Harness) failure(status types.ExecutionStatus, err error) types.ExecutionResult {
	return types.ExecutionResult{
		Status:        status,
		StderrSummary: summarize(err.Error(), h.masker, h.config.MaxSummaryBytes),
	}
}

func (h *Harness) toolError(msg string) types.ExecutionResult {
	return types.ExecutionResult{Status: types.StatusToolError, StderrSummary: msg}
}

// Digest 返回产物的 BLAKE3-256 十六进制摘要
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// boundedBuffer 只保留前 limit 字节的 print 输出
type boundedBuffer struct {
	mu    sync.Mutex
	limit int
	b     strings.Builder
}

func (b *boundedBuffer) WriteLine(s string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.limit <= 0 || b.b.Len() >= b.limit {
		return
	}
	if remain := b.limit - b.b.Len(); len(s)+1 > remain {
		s = truncateUTF8(s, remain)
	}
	b.b.WriteString(s)
	b.b.WriteByte('\n')
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}
