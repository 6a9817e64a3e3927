package cache

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/diagramgate/types"
)

func rejectedVerdict() types.ScanVerdict {
	return types.NewScanVerdict([]types.Issue{{
		Kind:     types.IssueForbiddenCall,
		Severity: types.SeverityBlock,
		Line:     1,
		Detail:   "call to forbidden function 'eval'",
	}})
}

func TestVerdictCache_Key(t *testing.T) {
	_, manager := setupTestRedis(t)
	a := NewVerdictCache(manager, "dg:", "aaaa", nil)
	b := NewVerdictCache(manager, "dg:", "bbbb", nil)

	key := a.Key("eval('1')")
	assert.True(t, strings.HasPrefix(key, "dg:aaaa:"))
	assert.Len(t, strings.TrimPrefix(key, "dg:aaaa:"), 64)
	assert.Equal(t, key, a.Key("eval('1')"))
	assert.NotEqual(t, key, a.Key("eval('2')"))
	assert.NotEqual(t, key, b.Key("eval('1')"))
}

func TestVerdictCache_RoundTrip(t *testing.T) {
	_, manager := setupTestRedis(t)
	c := NewVerdictCache(manager, "dg:", "fp", zaptest.NewLogger(t))
	ctx := context.Background()

	_, ok := c.Lookup(ctx, "eval('1')")
	assert.False(t, ok)

	want := rejectedVerdict()
	c.Store(ctx, "eval('1')", want)

	got, ok := c.Lookup(ctx, "eval('1')")
	require.True(t, ok)
	assert.False(t, got.Accepted)
	assert.Equal(t, want.Issues, got.Issues)

	accepted := types.NewScanVerdict(nil)
	c.Store(ctx, "x = 1", accepted)
	got, ok = c.Lookup(ctx, "x = 1")
	require.True(t, ok)
	assert.True(t, got.Accepted)
	assert.NotNil(t, got.Issues)
}

func TestVerdictCache_SkipsDiagnostics(t *testing.T) {
	mr, manager := setupTestRedis(t)
	c := NewVerdictCache(manager, "dg:", "fp", zaptest.NewLogger(t))
	ctx := context.Background()

	verdict := types.NewScanVerdict(nil)
	verdict.Diagnostics = []string{"bandit: executable not found"}
	c.Store(ctx, "x = 1", verdict)

	assert.Empty(t, mr.Keys())
	_, ok := c.Lookup(ctx, "x = 1")
	assert.False(t, ok)
}

func TestVerdictCache_RedisFailureIsMiss(t *testing.T) {
	mr, manager := setupTestRedis(t)
	c := NewVerdictCache(manager, "dg:", "fp", zaptest.NewLogger(t))
	ctx := context.Background()

	c.Store(ctx, "x = 1", types.NewScanVerdict(nil))
	require.NoError(t, c.Check(ctx))

	mr.SetError("LOADING redis is loading the dataset")
	_, ok := c.Lookup(ctx, "x = 1")
	assert.False(t, ok)
	c.Store(ctx, "y = 2", types.NewScanVerdict(nil))
	assert.Error(t, c.Check(ctx))

	mr.SetError("")
	_, ok = c.Lookup(ctx, "x = 1")
	assert.True(t, ok)
	require.NoError(t, c.Close())
}
