package cache

import (
	"context"
	"encoding/hex"

	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/BaSui01/diagramgate/types"
)

// =============================================================================
// 🧾 扫描结论缓存
// =============================================================================

// VerdictCache 以源码摘要缓存 ScanVerdict。
// namespace 通常是扫描器指纹，禁用清单变化后旧结论自然失效。
type VerdictCache struct {
	manager   *Manager
	prefix    string
	namespace string
	logger    *zap.Logger
}

// NewVerdictCache 创建结论缓存
func NewVerdictCache(manager *Manager, prefix, namespace string, logger *zap.Logger) *VerdictCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VerdictCache{
		manager:   manager,
		prefix:    prefix,
		namespace: namespace,
		logger:    logger.With(zap.String("component", "verdict_cache")),
	}
}

// Key 返回源码对应的缓存键
func (c *VerdictCache) Key(source string) string {
	sum := blake3.Sum256([]byte(source))
	return c.prefix + c.namespace + ":" + hex.EncodeToString(sum[:])
}

// Lookup 读取缓存结论。Redis 故障按未命中处理。
func (c *VerdictCache) Lookup(ctx context.Context, source string) (types.ScanVerdict, bool) {
	var verdict types.ScanVerdict
	err := c.manager.GetJSON(ctx, c.Key(source), &verdict)
	if err == nil {
		if verdict.Issues == nil {
			verdict.Issues = []types.Issue{}
		}
		return verdict, true
	}
	if !IsCacheMiss(err) {
		c.logger.Warn("verdict cache lookup failed", zap.Error(err))
	}
	return types.ScanVerdict{}, false
}

// Store 写入结论。带诊断信息的结论说明有 linter 未能完成，不缓存。
func (c *VerdictCache) Store(ctx context.Context, source string, verdict types.ScanVerdict) {
	if len(verdict.Diagnostics) > 0 {
		return
	}
	if err := c.manager.SetJSON(ctx, c.Key(source), verdict, 0); err != nil {
		c.logger.Warn("verdict cache store failed", zap.Error(err))
	}
}

// Check 就绪检查
func (c *VerdictCache) Check(ctx context.Context) error {
	return c.manager.Ping(ctx)
}

// Close 释放 Redis 连接
func (c *VerdictCache) Close() error {
	return c.manager.Close()
}
