package sandbox

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/diagramgate/diagram"
)

func newTestSession(t *testing.T) *diagram.Session {
	t.Helper()
	s, err := diagram.NewSession(diagram.SessionOptions{
		OutputPath: filepath.Join(t.TempDir(), "out"),
		Format:     "dot",
		Renderer:   diagram.SourceRenderer{},
	})
	require.NoError(t, err)
	return s
}

func TestBuilder_Build(t *testing.T) {
	b := NewBuilder(nil)
	ns := b.Build(newTestSession(t))

	for _, name := range append([]string{"Diagram", "Cluster", "Edge", "Custom", "EC2", "ApplicationGateway", "Pod"}, PureBuiltins...) {
		assert.Contains(t, ns.Bindings, name)
	}
	for _, name := range []string{"open", "eval", "exec", "getattr", "__import__", "globals", "round"} {
		assert.NotContains(t, ns.Bindings, name)
	}
	assert.Equal(t, len(b.Catalog().Classes())+4+len(PureBuiltins), len(ns.Bindings))
	assert.IsIncreasing(t, ns.Names())
}

func TestBuilder_FreshPerCall(t *testing.T) {
	b := NewBuilder(nil)
	s := newTestSession(t)
	first := b.Build(s)
	second := b.Build(s)

	first.Bindings["EC2"] = nil
	assert.NotNil(t, second.Bindings["EC2"])
}
