package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/diagramgate/config"
	"github.com/BaSui01/diagramgate/diagram"
	"github.com/BaSui01/diagramgate/internal/artifactstore"
	"github.com/BaSui01/diagramgate/internal/cache"
	"github.com/BaSui01/diagramgate/internal/metrics"
	"github.com/BaSui01/diagramgate/pipeline"
	"github.com/BaSui01/diagramgate/sandbox"
	"github.com/BaSui01/diagramgate/scanner"
)

// =============================================================================
// 🧩 组件装配
// =============================================================================

// components serve 与 CLI 子命令共享的运行时对象
type components struct {
	catalog  *diagram.Catalog
	graphviz *diagram.GraphvizRenderer
	scanner  *scanner.Scanner
	harness  *sandbox.Harness
	store    *artifactstore.Store
	verdicts *cache.VerdictCache
	pipeline *pipeline.Pipeline
}

// buildComponents 按配置装配 Scanner → Harness → Pipeline。collector 可为 nil。
func buildComponents(ctx context.Context, cfg *config.Config, collector *metrics.Collector, logger *zap.Logger) (*components, error) {
	c := &components{catalog: diagram.DefaultCatalog()}

	c.graphviz = diagram.NewGraphvizRenderer(cfg.Renderer.GraphvizBinary, cfg.Renderer.Timeout, logger)
	if err := c.graphviz.Available(); err != nil {
		logger.Warn("graphviz not available, only dot output will render", zap.Error(err))
	}
	renderer := diagram.NewRouter(c.graphviz)

	// Scanner
	policy := scanner.DefaultPolicy().WithIdentifiers(cfg.Scanner.ExtraForbiddenIdentifiers...)
	var linters []scanner.Linter
	if cfg.Scanner.PatternsEnabled {
		linters = append(linters, scanner.NewPatternLinter())
	}
	if cfg.Scanner.BanditEnabled {
		linters = append(linters, scanner.NewBanditLinter(cfg.Scanner.BanditBinary))
	}
	lint := scanner.NewLintIntegration(cfg.Scanner.LintTimeout, logger, linters...)
	if collector != nil {
		lint.OnFailure(func(linter string, _ error) { collector.RecordLinterFailure(linter) })
	}
	c.scanner = scanner.New(policy, lint, logger)

	// Harness
	harnessCfg := harnessConfig(cfg)
	enforcer, err := sandbox.NewEnforcer(harnessCfg.Strategy)
	if err != nil {
		return nil, fmt.Errorf("deadline enforcer: %w", err)
	}
	c.harness, err = sandbox.NewHarness(harnessCfg, renderer, enforcer, logger)
	if err != nil {
		return nil, fmt.Errorf("harness: %w", err)
	}

	opts := pipeline.Options{
		Scanner:       c.scanner,
		Harness:       c.harness,
		Builder:       sandbox.NewBuilder(c.catalog),
		MaxConcurrent: cfg.Harness.MaxConcurrent,
		DefaultFormat: cfg.Harness.DefaultFormat,
		Metrics:       collector,
		Logger:        logger,
	}

	// 对象存储可选，启动时确保 bucket 存在
	if cfg.ArtifactStore.Enabled {
		store, err := artifactstore.New(cfg.ArtifactStore, logger)
		if err != nil {
			return nil, fmt.Errorf("artifact store: %w", err)
		}
		bucketCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err = store.EnsureBucket(bucketCtx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("artifact store: %w", err)
		}
		c.store = store
		opts.Publisher = store
	}

	// 扫描结论缓存可选，键空间随扫描器指纹变化
	if cfg.Cache.Enabled {
		manager, err := cache.NewManager(ctx, cfg.Cache, logger)
		if err != nil {
			return nil, fmt.Errorf("verdict cache: %w", err)
		}
		c.verdicts = cache.NewVerdictCache(manager, cfg.Cache.KeyPrefix, c.scanner.Fingerprint(), logger)
		opts.Verdicts = c.verdicts
	}

	c.pipeline, err = pipeline.New(opts)
	if err != nil {
		c.close()
		return nil, err
	}

	logger.Info("pipeline ready",
		zap.Strings("linters", lint.Linters()),
		zap.String("deadline_strategy", enforcer.Name()),
		zap.Int64("max_concurrent", c.pipeline.MaxConcurrent()),
		zap.Bool("artifact_store", c.store != nil),
		zap.Bool("verdict_cache", c.verdicts != nil),
	)
	return c, nil
}

// close 释放外部连接
func (c *components) close() {
	if c.verdicts != nil {
		_ = c.verdicts.Close()
	}
}

func harnessConfig(cfg *config.Config) sandbox.HarnessConfig {
	h := sandbox.DefaultHarnessConfig()
	h.OutputDir = cfg.Harness.OutputDir
	h.IconDir = cfg.Renderer.IconDir
	h.DefaultTimeout = cfg.Harness.DefaultTimeout
	h.MaxTimeout = cfg.Harness.MaxTimeout
	h.Strategy = sandbox.Strategy(cfg.Harness.Strategy)
	h.MaxSteps = cfg.Harness.MaxSteps
	h.MaxCallDepth = cfg.Harness.MaxCallDepth
	return h
}
