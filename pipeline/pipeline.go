package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/BaSui01/diagramgate/internal/metrics"
	"github.com/BaSui01/diagramgate/internal/telemetry"
	"github.com/BaSui01/diagramgate/sandbox"
	"github.com/BaSui01/diagramgate/scanner"
	"github.com/BaSui01/diagramgate/types"
)

// =============================================================================
// 🚦 Pipeline
// =============================================================================

// Publisher 把成功的产物发布到外部存储，返回可访问的位置
type Publisher interface {
	Publish(ctx context.Context, result types.ExecutionResult) (string, error)
}

// VerdictCache 按源码缓存扫描结论。Lookup 未命中返回 false。
type VerdictCache interface {
	Lookup(ctx context.Context, source string) (types.ScanVerdict, bool)
	Store(ctx context.Context, source string, verdict types.ScanVerdict)
}

// Options 流水线依赖
type Options struct {
	Scanner *scanner.Scanner
	Harness *sandbox.Harness
	Builder *sandbox.Builder

	// MaxConcurrent 同时执行的脚本数上限
	MaxConcurrent int64
	// DefaultFormat 提交未指定格式时使用
	DefaultFormat string

	// 可选
	Publisher Publisher
	Verdicts  VerdictCache
	Metrics   *metrics.Collector
	Logger    *zap.Logger
}

// Pipeline CodeSubmission → Scanner → (拒绝 | Harness)
type Pipeline struct {
	scanner   *scanner.Scanner
	harness   *sandbox.Harness
	builder   *sandbox.Builder
	sem       *semaphore.Weighted
	slots     int64
	format    string
	publisher Publisher
	verdicts  VerdictCache
	metrics   *metrics.Collector
	logger    *zap.Logger
}

// New 创建流水线
func New(opts Options) (*Pipeline, error) {
	if opts.Scanner == nil {
		return nil, errors.New("pipeline: scanner is required")
	}
	if opts.Harness == nil {
		return nil, errors.New("pipeline: harness is required")
	}
	if opts.Builder == nil {
		opts.Builder = sandbox.NewBuilder(nil)
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	format, err := types.NormalizeFormat(opts.DefaultFormat)
	if err != nil {
		return nil, fmt.Errorf("pipeline: default format: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pipeline{
		scanner:   opts.Scanner,
		harness:   opts.Harness,
		builder:   opts.Builder,
		sem:       semaphore.NewWeighted(opts.MaxConcurrent),
		slots:     opts.MaxConcurrent,
		format:    format,
		publisher: opts.Publisher,
		verdicts:  opts.Verdicts,
		metrics:   opts.Metrics,
		logger:    logger.With(zap.String("component", "pipeline")),
	}, nil
}

// MaxConcurrent 返回执行槽位数
func (p *Pipeline) MaxConcurrent() int64 { return p.slots }

// Scan 只做校验与扫描，不执行
func (p *Pipeline) Scan(ctx context.Context, sub types.CodeSubmission) (types.ScanVerdict, error) {
	if err := sub.Validate(); err != nil {
		return types.ScanVerdict{}, err
	}
	return p.scan(ctx, sub), nil
}

func (p *Pipeline) scan(ctx context.Context, sub types.CodeSubmission) types.ScanVerdict {
	ctx, span := telemetry.StartSpan(ctx, "pipeline.scan",
		attribute.Int("source.bytes", len(sub.Source)))
	start := time.Now()

	verdict, cached := p.cachedVerdict(ctx, sub.Source)
	if !cached {
		verdict = p.scanner.Evaluate(ctx, sub)
		if p.verdicts != nil {
			p.verdicts.Store(ctx, sub.Source, verdict)
		}
	}

	span.SetAttributes(
		attribute.Bool("scan.cached", cached),
		attribute.Bool("scan.accepted", verdict.Accepted),
		attribute.Int("scan.issues", len(verdict.Issues)),
	)
	telemetry.EndSpan(span, nil)

	if p.metrics != nil {
		p.metrics.RecordScan(verdict.Accepted, time.Since(start))
		for _, issue := range verdict.Issues {
			p.metrics.RecordIssue(string(issue.Kind), string(issue.Severity))
		}
	}
	return verdict
}

func (p *Pipeline) cachedVerdict(ctx context.Context, source string) (types.ScanVerdict, bool) {
	if p.verdicts == nil {
		return types.ScanVerdict{}, false
	}
	verdict, ok := p.verdicts.Lookup(ctx, source)
	if p.metrics != nil {
		p.metrics.RecordVerdictCache(ok)
	}
	return verdict, ok
}

// Process 处理一次提交。被拒绝的脚本永远不会进入 Harness。
// 所有路径都返回结构完整的结果，内部 panic 转换为 ToolError。
func (p *Pipeline) Process(ctx context.Context, sub types.CodeSubmission) (result types.ExecutionResult) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "pipeline.process")
	logger := p.requestLogger(ctx)

	format := p.format
	defer func() {
		if r := recover(); r != nil {
			logger.Error("pipeline panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			result = types.ExecutionResult{
				Status:        types.StatusToolError,
				StderrSummary: "internal error while processing submission",
			}
		}
		result.DurationMs = time.Since(start).Milliseconds()

		span.SetAttributes(attribute.String("result.status", string(result.Status)))
		var spanErr error
		if !result.Succeeded() {
			spanErr = errors.New(string(result.Status))
		}
		telemetry.EndSpan(span, spanErr)

		if p.metrics != nil {
			p.metrics.RecordExecution(string(result.Status), format, time.Since(start), len(result.ArtifactBytes))
		}
		logger.Info("submission processed",
			zap.String("status", string(result.Status)),
			zap.Int("issues", len(result.Issues)),
			zap.Int64("duration_ms", result.DurationMs),
		)
	}()

	if err := sub.Validate(); err != nil {
		return invalidSubmission(err)
	}
	if sub.Format != "" {
		format, _ = types.NormalizeFormat(sub.Format)
	}

	verdict := p.scan(ctx, sub)
	if !verdict.Accepted {
		return types.ExecutionResult{
			Status: types.StatusScanRejected,
			Issues: verdict.Issues,
		}
	}

	result = p.execute(ctx, sub, format)
	// 非阻断问题随结果一并返回
	result.Issues = verdict.Issues

	if result.Succeeded() && p.publisher != nil {
		p.publish(ctx, &result, logger)
	}
	return result
}

func (p *Pipeline) execute(ctx context.Context, sub types.CodeSubmission, format string) types.ExecutionResult {
	ctx, span := telemetry.StartSpan(ctx, "pipeline.execute",
		attribute.String("artifact.format", format),
		attribute.String("enforcer", p.harness.Enforcer().Name()),
	)
	defer span.End()

	// 等待执行槽的时间计入提交的截止时间
	start := time.Now()
	deadline := p.harness.Deadline(sub.Timeout)
	waitCtx, cancel := context.WithTimeout(ctx, deadline)
	err := p.sem.Acquire(waitCtx, 1)
	cancel()
	if err != nil {
		span.RecordError(err)
		if ctx.Err() == nil || errors.Is(err, context.DeadlineExceeded) {
			return slotTimeout(deadline, start)
		}
		return types.ExecutionResult{Status: types.StatusToolError, StderrSummary: "execution cancelled while waiting for an execution slot"}
	}
	defer p.sem.Release(1)

	remaining := deadline - time.Since(start)
	if remaining <= 0 {
		return slotTimeout(deadline, start)
	}

	if p.metrics != nil {
		p.metrics.ExecutionStarted()
		defer p.metrics.ExecutionFinished()
	}

	out := p.harness.AssignOutput(sub.DeclaredOutputName, format)
	session, err := p.harness.NewSession(out)
	if err != nil {
		p.logger.Error("create diagram session failed", zap.Error(err))
		return types.ExecutionResult{Status: types.StatusToolError, StderrSummary: "diagram session could not be created"}
	}
	ns := p.builder.Build(session)

	result := p.harness.Run(ctx, sub.Source, ns, remaining)
	span.SetAttributes(attribute.String("artifact.name", out.Name))
	return result
}

func (p *Pipeline) publish(ctx context.Context, result *types.ExecutionResult, logger *zap.Logger) {
	ctx, span := telemetry.StartSpan(ctx, "pipeline.publish")
	location, err := p.publisher.Publish(ctx, *result)
	telemetry.EndSpan(span, err)
	if p.metrics != nil {
		p.metrics.RecordPublish(err == nil)
	}
	if err != nil {
		// 发布失败不影响执行结果
		logger.Warn("artifact publish failed", zap.Error(err))
		return
	}
	result.ArtifactLocation = location
}

func (p *Pipeline) requestLogger(ctx context.Context) *zap.Logger {
	logger := p.logger
	if id, ok := types.RequestID(ctx); ok {
		logger = logger.With(zap.String("request_id", id))
	}
	if subject, ok := types.Subject(ctx); ok {
		logger = logger.With(zap.String("subject", subject))
	}
	return logger
}

func slotTimeout(deadline time.Duration, start time.Time) types.ExecutionResult {
	return types.ExecutionResult{
		Status:        types.StatusTimeout,
		StderrSummary: fmt.Sprintf("execution exceeded %s deadline while waiting for an execution slot", deadline),
		DurationMs:    time.Since(start).Milliseconds(),
	}
}

func invalidSubmission(err error) types.ExecutionResult {
	msg := err.Error()
	if e, ok := types.AsError(err); ok {
		msg = e.Message
	}
	issue := types.Issue{
		Kind:     types.IssueInvalidSubmission,
		Detail:   msg,
		Severity: types.SeverityBlock,
	}
	issue.Hint = scanner.Hint(issue)
	return types.ExecutionResult{
		Status: types.StatusScanRejected,
		Issues: []types.Issue{issue},
	}
}
