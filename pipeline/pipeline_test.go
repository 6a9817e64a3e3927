package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/diagramgate/diagram"
	"github.com/BaSui01/diagramgate/internal/metrics"
	"github.com/BaSui01/diagramgate/sandbox"
	"github.com/BaSui01/diagramgate/scanner"
	"github.com/BaSui01/diagramgate/types"
)

const gatewayScript = "gateway = ApplicationGateway('gw')\napp = AppServices('app')\ngateway >> app"

var metricsOnce sync.Once
var sharedCollector *metrics.Collector

func testCollector() *metrics.Collector {
	metricsOnce.Do(func() { sharedCollector = metrics.NewCollector("pipeline_test", nil) })
	return sharedCollector
}

type fakePublisher struct {
	mu       sync.Mutex
	calls    int
	location string
	err      error
	panics   bool
}

func (f *fakePublisher) Publish(ctx context.Context, result types.ExecutionResult) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.panics {
		panic("publisher exploded")
	}
	if f.err != nil {
		return "", f.err
	}
	return f.location + result.ArtifactDigest, nil
}

func newTestPipeline(t *testing.T, mutate func(*Options)) (*Pipeline, *sandbox.Harness) {
	t.Helper()
	cfg := sandbox.DefaultHarnessConfig()
	cfg.OutputDir = filepath.Join(t.TempDir(), "out")
	harness, err := sandbox.NewHarness(cfg, diagram.SourceRenderer{}, sandbox.ThreadEnforcer{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	opts := Options{
		Scanner:       scanner.New(scanner.DefaultPolicy(), nil, zaptest.NewLogger(t)),
		Harness:       harness,
		DefaultFormat: types.FormatDOT,
		MaxConcurrent: 2,
		Metrics:       testCollector(),
		Logger:        zaptest.NewLogger(t),
	}
	if mutate != nil {
		mutate(&opts)
	}
	p, err := New(opts)
	require.NoError(t, err)
	return p, harness
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	cfg := sandbox.DefaultHarnessConfig()
	cfg.OutputDir = t.TempDir()
	harness, err := sandbox.NewHarness(cfg, diagram.SourceRenderer{}, nil, nil)
	require.NoError(t, err)

	_, err = New(Options{Scanner: scanner.New(nil, nil, nil), Harness: harness, DefaultFormat: "gif"})
	assert.Error(t, err)

	p, err := New(Options{Scanner: scanner.New(nil, nil, nil), Harness: harness})
	require.NoError(t, err)
	assert.Equal(t, int64(4), p.MaxConcurrent())
	assert.Equal(t, types.FormatPNG, p.format)
}

func TestProcess_AcceptedScriptRenders(t *testing.T) {
	p, _ := newTestPipeline(t, nil)

	res := p.Process(context.Background(), types.CodeSubmission{Source: gatewayScript, DeclaredOutputName: "azure"})

	require.Equal(t, types.StatusSuccess, res.Status, res.StderrSummary)
	assert.NotEmpty(t, res.ArtifactBytes)
	assert.Equal(t, types.FormatDOT, res.ArtifactFormat)
	assert.Contains(t, filepath.Base(res.ArtifactPath), "azure_")
	assert.Empty(t, res.Issues)
	assert.GreaterOrEqual(t, res.DurationMs, int64(0))
}

func TestProcess_ComprehensionAndFString(t *testing.T) {
	p, _ := newTestPipeline(t, nil)

	source := "with Diagram('fleet'):\n    gw = ApplicationGateway('gw')\n    gw >> [EC2(f\"w{i}\") for i in range(3)]"
	res := p.Process(context.Background(), types.CodeSubmission{Source: source})

	require.Equal(t, types.StatusSuccess, res.Status, res.StderrSummary)
	dot := string(res.ArtifactBytes)
	for _, label := range []string{"w0", "w1", "w2"} {
		assert.Contains(t, dot, label)
	}
}

func TestProcess_RejectedNeverExecutes(t *testing.T) {
	p, harness := newTestPipeline(t, nil)

	tests := []struct {
		name   string
		source string
		kinds  []types.IssueKind
	}{
		{"import and os.system", "import os\nos.system('ls')", []types.IssueKind{types.IssueForbiddenImport, types.IssueForbiddenCall}},
		{"eval", "eval('1+1')", []types.IssueKind{types.IssueForbiddenCall}},
		{"dunder chain", "x.__class__.__bases__", []types.IssueKind{types.IssueForbiddenAttribute}},
		{"unparseable", "def f(:\n  pass", []types.IssueKind{types.IssueParseFallback}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := p.Process(context.Background(), types.CodeSubmission{Source: tt.source})
			assert.Equal(t, types.StatusScanRejected, res.Status)
			assert.Empty(t, res.ArtifactBytes)
			for _, kind := range tt.kinds {
				found := false
				for _, issue := range res.Issues {
					if issue.Kind == kind {
						found = true
						assert.NotEmpty(t, issue.Hint)
					}
				}
				assert.True(t, found, "missing issue kind %s", kind)
			}
		})
	}
	assert.Zero(t, harness.Stats().TotalExecutions)
}

func TestProcess_InvalidSubmission(t *testing.T) {
	p, harness := newTestPipeline(t, nil)

	res := p.Process(context.Background(), types.CodeSubmission{Source: "  "})
	assert.Equal(t, types.StatusScanRejected, res.Status)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, types.IssueInvalidSubmission, res.Issues[0].Kind)
	assert.Equal(t, "source is required", res.Issues[0].Detail)
	assert.NotEmpty(t, res.Issues[0].Hint)

	res = p.Process(context.Background(), types.CodeSubmission{Source: gatewayScript, Format: "gif"})
	assert.Equal(t, types.StatusScanRejected, res.Status)
	assert.Zero(t, harness.Stats().TotalExecutions)
}

func TestProcess_Timeout(t *testing.T) {
	p, _ := newTestPipeline(t, nil)

	for _, source := range []string{
		"while True:\n    pass",
		"with Diagram('x'):\n    while True:\n        pass",
	} {
		start := time.Now()
		res := p.Process(context.Background(), types.CodeSubmission{
			Source:  source,
			Timeout: time.Second,
		})
		assert.Equal(t, types.StatusTimeout, res.Status, res.StderrSummary)
		elapsed := time.Since(start)
		assert.GreaterOrEqual(t, elapsed, 900*time.Millisecond)
		assert.Less(t, elapsed, 5*time.Second)
	}
}

func TestProcess_RuntimeFailure(t *testing.T) {
	p, _ := newTestPipeline(t, nil)

	res := p.Process(context.Background(), types.CodeSubmission{Source: "web = EC2('w')\nweb >> 3"})
	assert.Equal(t, types.StatusRuntimeFailure, res.Status)
	assert.NotEmpty(t, res.StderrSummary)
}

func TestProcess_WarningsTravelWithResult(t *testing.T) {
	p, _ := newTestPipeline(t, func(o *Options) {
		lint := scanner.NewLintIntegration(time.Second, nil, scanner.NewPatternLinter())
		o.Scanner = scanner.New(scanner.DefaultPolicy(), lint, nil)
	})

	res := p.Process(context.Background(), types.CodeSubmission{Source: "password = 'hunter2'\n" + gatewayScript})
	require.Equal(t, types.StatusSuccess, res.Status, res.StderrSummary)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, types.SeverityWarn, res.Issues[0].Severity)
	assert.Equal(t, "DG103", res.Issues[0].RuleID)
}

func TestProcess_Publisher(t *testing.T) {
	pub := &fakePublisher{location: "s3://artifacts/"}
	p, _ := newTestPipeline(t, func(o *Options) { o.Publisher = pub })

	res := p.Process(context.Background(), types.CodeSubmission{Source: gatewayScript})
	require.Equal(t, types.StatusSuccess, res.Status)
	assert.Equal(t, "s3://artifacts/"+res.ArtifactDigest, res.ArtifactLocation)

	// 失败的脚本不发布
	p.Process(context.Background(), types.CodeSubmission{Source: "x = 1"})
	assert.Equal(t, 1, pub.calls)
}

func TestProcess_PublishFailureKeepsSuccess(t *testing.T) {
	pub := &fakePublisher{err: errors.New("bucket unavailable")}
	p, _ := newTestPipeline(t, func(o *Options) { o.Publisher = pub })

	res := p.Process(context.Background(), types.CodeSubmission{Source: gatewayScript})
	assert.Equal(t, types.StatusSuccess, res.Status)
	assert.Empty(t, res.ArtifactLocation)
}

func TestProcess_PanicBecomesToolError(t *testing.T) {
	p, _ := newTestPipeline(t, func(o *Options) { o.Publisher = &fakePublisher{panics: true} })

	res := p.Process(context.Background(), types.CodeSubmission{Source: gatewayScript})
	assert.Equal(t, types.StatusToolError, res.Status)
	assert.Equal(t, "internal error while processing submission", res.StderrSummary)
	assert.Empty(t, res.ArtifactBytes)
}

func TestProcess_WaitingForSlot(t *testing.T) {
	p, _ := newTestPipeline(t, func(o *Options) { o.MaxConcurrent = 1 })
	require.NoError(t, p.sem.Acquire(context.Background(), 1))
	defer p.sem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res := p.Process(ctx, types.CodeSubmission{Source: gatewayScript})
	assert.Equal(t, types.StatusTimeout, res.Status)
	assert.Contains(t, res.StderrSummary, "execution slot")

	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	res = p.Process(ctx, types.CodeSubmission{Source: gatewayScript})
	assert.Equal(t, types.StatusToolError, res.Status)
}

func TestProcess_SlotWaitCountsTowardDeadline(t *testing.T) {
	p, _ := newTestPipeline(t, func(o *Options) { o.MaxConcurrent = 1 })

	running := make(chan types.ExecutionResult, 1)
	go func() {
		running <- p.Process(context.Background(), types.CodeSubmission{
			Source:  "while True:\n    pass",
			Timeout: 3 * time.Second,
		})
	}()
	require.Eventually(t, func() bool {
		if !p.sem.TryAcquire(1) {
			return true
		}
		p.sem.Release(1)
		return false
	}, 2*time.Second, 5*time.Millisecond)

	start := time.Now()
	res := p.Process(context.Background(), types.CodeSubmission{
		Source:  "while True:\n    pass",
		Timeout: time.Second,
	})
	elapsed := time.Since(start)
	assert.Equal(t, types.StatusTimeout, res.Status, res.StderrSummary)
	assert.Contains(t, res.StderrSummary, "execution slot")
	assert.GreaterOrEqual(t, elapsed, 900*time.Millisecond)
	assert.Less(t, elapsed, 2500*time.Millisecond)

	assert.Equal(t, types.StatusTimeout, (<-running).Status)
}

func TestProcess_ConcurrentSubmissionsUseDistinctArtifacts(t *testing.T) {
	p, _ := newTestPipeline(t, func(o *Options) { o.MaxConcurrent = 3 })

	const n = 8
	paths := make([]string, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			res := p.Process(context.Background(), types.CodeSubmission{
				Source:             gatewayScript,
				DeclaredOutputName: "same",
			})
			if res.Status != types.StatusSuccess {
				return fmt.Errorf("submission %d: %s: %s", i, res.Status, res.StderrSummary)
			}
			paths[i] = res.ArtifactPath
			return nil
		})
	}
	require.NoError(t, g.Wait())

	seen := make(map[string]bool)
	for _, path := range paths {
		assert.False(t, seen[path], "duplicate artifact path %s", path)
		seen[path] = true
	}
}

func TestScan(t *testing.T) {
	p, harness := newTestPipeline(t, nil)

	verdict, err := p.Scan(context.Background(), types.CodeSubmission{Source: "eval('1')"})
	require.NoError(t, err)
	assert.False(t, verdict.Accepted)

	_, err = p.Scan(context.Background(), types.CodeSubmission{})
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
	assert.Zero(t, harness.Stats().TotalExecutions)
}

type memoryVerdicts struct {
	mu       sync.Mutex
	verdicts map[string]types.ScanVerdict
	lookups  int
}

func (m *memoryVerdicts) Lookup(ctx context.Context, source string) (types.ScanVerdict, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	v, ok := m.verdicts[source]
	return v, ok
}

func (m *memoryVerdicts) Store(ctx context.Context, source string, verdict types.ScanVerdict) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verdicts[source] = verdict
}

func TestScan_VerdictCache(t *testing.T) {
	cache := &memoryVerdicts{verdicts: map[string]types.ScanVerdict{}}
	p, harness := newTestPipeline(t, func(o *Options) { o.Verdicts = cache })
	ctx := context.Background()

	first, err := p.Scan(ctx, types.CodeSubmission{Source: "eval('1')"})
	require.NoError(t, err)
	require.Contains(t, cache.verdicts, "eval('1')")

	second, err := p.Scan(ctx, types.CodeSubmission{Source: "eval('1')"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, cache.lookups)

	// 缓存中的拒绝结论同样阻止执行
	res := p.Process(ctx, types.CodeSubmission{Source: "eval('1')"})
	assert.Equal(t, types.StatusScanRejected, res.Status)
	assert.Zero(t, harness.Stats().TotalExecutions)

	// 缓存结论优先于重新扫描
	cache.verdicts[gatewayScript] = types.NewScanVerdict([]types.Issue{{
		Kind:     types.IssueForbiddenCall,
		Severity: types.SeverityBlock,
		Detail:   "cached",
	}})
	res = p.Process(ctx, types.CodeSubmission{Source: gatewayScript})
	assert.Equal(t, types.StatusScanRejected, res.Status)
}
