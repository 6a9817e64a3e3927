package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/diagramgate/diagram"
	"github.com/BaSui01/diagramgate/types"
)

// funcRenderer 用函数实现的渲染器
type funcRenderer struct {
	formats []string
	render  func(ctx context.Context, src []byte, format, outPath string) error
}

func (r funcRenderer) Name() string { return "func" }

func (r funcRenderer) Supports(format string) bool { return containsString(r.formats, format) }

func (r funcRenderer) Render(ctx context.Context, src []byte, format, outPath string) error {
	return r.render(ctx, src, format, outPath)
}

type harnessFixture struct {
	harness *Harness
	builder *Builder
	config  HarnessConfig
}

func newFixture(t *testing.T, renderer diagram.Renderer, enforcer DeadlineEnforcer, mutate func(*HarnessConfig)) *harnessFixture {
	t.Helper()
	cfg := DefaultHarnessConfig()
	cfg.OutputDir = filepath.Join(t.TempDir(), "out")
	cfg.DefaultTimeout = 5 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}
	if renderer == nil {
		renderer = diagram.SourceRenderer{}
	}
	if enforcer == nil {
		enforcer = ThreadEnforcer{}
	}
	h, err := NewHarness(cfg, renderer, enforcer, nil)
	require.NoError(t, err)
	return &harnessFixture{harness: h, builder: NewBuilder(nil), config: cfg}
}

func (f *harnessFixture) run(t *testing.T, source, format string, deadline time.Duration) types.ExecutionResult {
	t.Helper()
	out := f.harness.AssignOutput("test", format)
	session, err := f.harness.NewSession(out)
	require.NoError(t, err)
	return f.harness.Run(context.Background(), source, f.builder.Build(session), deadline)
}

func TestHarness_ImplicitDiagramSuccess(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	res := f.run(t, "gateway = ApplicationGateway('gw')\napp = AppServices('app')\ngateway >> app", "dot", 0)

	require.Equal(t, types.StatusSuccess, res.Status, res.StderrSummary)
	assert.NotEmpty(t, res.ArtifactBytes)
	assert.Contains(t, string(res.ArtifactBytes), `"label"="gw"`)
	assert.Equal(t, "dot", res.ArtifactFormat)
	assert.Equal(t, f.config.OutputDir, filepath.Dir(res.ArtifactPath))
	assert.Equal(t, Digest(res.ArtifactBytes), res.ArtifactDigest)
	assert.Len(t, res.ArtifactDigest, 64)
	assert.GreaterOrEqual(t, res.DurationMs, int64(0))
}

func TestHarness_ExplicitDiagramFilenameIsForced(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	res := f.run(t, `
with Diagram("Shop", filename="../../etc/evil", outformat="png", show=True):
    web = EC2("web")
    db = RDS("db")
    web >> Edge(label="sql") >> db
`, "dot", 0)

	require.Equal(t, types.StatusSuccess, res.Status, res.StderrSummary)
	assert.True(t, strings.HasPrefix(filepath.Base(res.ArtifactPath), "test_"))
	assert.Contains(t, string(res.ArtifactBytes), `"label"="Shop"`)
	_, err := os.Stat(filepath.Join(f.config.OutputDir, "..", "..", "etc", "evil.dot"))
	assert.True(t, os.IsNotExist(err))
}

func TestHarness_Failures(t *testing.T) {
	f := newFixture(t, nil, nil, func(c *HarnessConfig) { c.MaxSteps = 5000 })

	tests := []struct {
		name    string
		source  string
		status  types.ExecutionStatus
		summary string
	}{
		{"undefined name", "web = Undefined('x')", types.StatusRuntimeFailure, "name 'Undefined' is not defined"},
		{"no diagram", "x = 1 + 2", types.StatusRuntimeFailure, "without producing a diagram"},
		{"step budget", "for i in range(1000000):\n    pass", types.StatusRuntimeFailure, "step budget"},
		{"unparseable", "with Diagram('x'):\nweb = EC2('w')", types.StatusRuntimeFailure, "line 2"},
		{"nested diagram", "with Diagram('a'):\n    with Diagram('b'):\n        pass", types.StatusRuntimeFailure, "cannot be nested"},
		{"cyclic containers", "a = []\na.append(a)\nlabel = str(a)\nb = []\nb.append(b)\nsame = a == b", types.StatusRuntimeFailure, "maximum recursion depth exceeded in comparison"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.run(t, tt.source, "dot", 0)
			assert.Equal(t, tt.status, res.Status)
			assert.Contains(t, res.StderrSummary, tt.summary)
			assert.Empty(t, res.ArtifactBytes)
		})
	}
}

func TestHarness_Timeout(t *testing.T) {
	for _, e := range enforcerCases(t) {
		t.Run(e.Name(), func(t *testing.T) {
			f := newFixture(t, nil, e, nil)
			start := time.Now()
			res := f.run(t, "while True:\n    pass", "dot", 100*time.Millisecond)

			assert.Equal(t, types.StatusTimeout, res.Status)
			assert.Contains(t, res.StderrSummary, "deadline")
			assert.Less(t, time.Since(start), 3*time.Second)
			assert.Empty(t, res.ArtifactPath)
		})
	}
}

func TestHarness_RendererUnavailableIsToolError(t *testing.T) {
	r := funcRenderer{formats: []string{"png"}, render: func(ctx context.Context, src []byte, format, outPath string) error {
		return fmt.Errorf("%w: dot not found", diagram.ErrRendererUnavailable)
	}}
	f := newFixture(t, r, nil, nil)
	res := f.run(t, "a = EC2('a')", "png", 0)
	assert.Equal(t, types.StatusToolError, res.Status)
	assert.Equal(t, "diagram renderer is unavailable", res.StderrSummary)
}

func TestHarness_SummaryMasksHostPaths(t *testing.T) {
	r := funcRenderer{formats: []string{"png"}, render: func(ctx context.Context, src []byte, format, outPath string) error {
		return fmt.Errorf("graphviz: cannot write %s: %s", outPath, strings.Repeat("x", 2000))
	}}
	f := newFixture(t, r, nil, nil)
	res := f.run(t, "a = EC2('a')", "png", 0)

	assert.Equal(t, types.StatusRuntimeFailure, res.Status)
	assert.NotContains(t, res.StderrSummary, f.config.OutputDir)
	assert.Contains(t, res.StderrSummary, "<output>")
	assert.LessOrEqual(t, len(res.StderrSummary), 512)
}

func TestHarness_SVGImagesInlined(t *testing.T) {
	iconDir := t.TempDir()
	icon := filepath.Join(iconDir, "logo.png")
	require.NoError(t, os.WriteFile(icon, []byte("PNG"), 0o644))

	r := funcRenderer{formats: []string{"svg"}, render: func(ctx context.Context, src []byte, format, outPath string) error {
		return os.WriteFile(outPath, []byte(`<svg><image xlink:href="`+icon+`"/></svg>`), 0o644)
	}}
	f := newFixture(t, r, nil, func(c *HarnessConfig) { c.IconDir = iconDir })
	res := f.run(t, "a = EC2('a')", "svg", 0)

	require.Equal(t, types.StatusSuccess, res.Status, res.StderrSummary)
	assert.Contains(t, string(res.ArtifactBytes), "data:image/png;base64,")
	assert.NotContains(t, string(res.ArtifactBytes), icon)
}

func TestHarness_NilNamespace(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	res := f.harness.Run(context.Background(), "a = 1", nil, 0)
	assert.Equal(t, types.StatusToolError, res.Status)
}

func TestHarness_Stats(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	f.run(t, "a = EC2('a')", "dot", 0)
	f.run(t, "x = 1", "dot", 0)
	f.run(t, "while True:\n    pass", "dot", 50*time.Millisecond)

	stats := f.harness.Stats()
	assert.Equal(t, int64(3), stats.TotalExecutions)
	assert.Equal(t, int64(1), stats.SuccessExecutions)
	assert.Equal(t, int64(2), stats.FailedExecutions)
	assert.Equal(t, int64(1), stats.TimeoutExecutions)
}

func TestHarnessConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultHarnessConfig().Validate())
	assert.Zero(t, DefaultHarnessConfig().MaxSteps)

	cfg := DefaultHarnessConfig()
	cfg.OutputDir = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultHarnessConfig()
	cfg.MaxTimeout = time.Second
	assert.Error(t, cfg.Validate())

	cfg = DefaultHarnessConfig()
	cfg.Strategy = "fork"
	assert.Error(t, cfg.Validate())

	cfg = DefaultHarnessConfig()
	assert.Equal(t, cfg.DefaultTimeout, cfg.clampDeadline(0))
	assert.Equal(t, cfg.MaxTimeout, cfg.clampDeadline(time.Hour))
	assert.Equal(t, time.Second, cfg.clampDeadline(time.Second))
}
