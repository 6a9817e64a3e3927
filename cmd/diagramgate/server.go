package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/diagramgate/api/handlers"
	"github.com/BaSui01/diagramgate/config"
	"github.com/BaSui01/diagramgate/internal/metrics"
	"github.com/BaSui01/diagramgate/internal/server"
	"github.com/BaSui01/diagramgate/internal/telemetry"
	"github.com/BaSui01/diagramgate/internal/tlsutil"
)

// 路由
const (
	routeGenerate = "/api/v1/diagrams/generate"
	routeScan     = "/api/v1/diagrams/scan"
	routeIcons    = "/api/v1/diagrams/icons"
)

// 不需要认证、不计入限流的路径
var publicPaths = []string{"/health", "/healthz", "/ready", "/version"}

// =============================================================================
// 🖥️ Server
// =============================================================================

// Server DiagramGate 的主服务器
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	level      zap.AtomicLevel

	httpManager    *server.Manager
	metricsManager *server.Manager

	components     *components
	healthHandler  *handlers.HealthHandler
	diagramHandler *handlers.DiagramHandler

	metricsCollector *metrics.Collector
	rateLimiter      *RateLimiter
	reloader         *config.Reloader
	otelProviders    *telemetry.Providers

	cancel context.CancelFunc
}

// NewServer 创建服务器。level 用于热更新日志级别。
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger, level zap.AtomicLevel, otelProviders *telemetry.Providers) *Server {
	return &Server{
		cfg:           cfg,
		configPath:    configPath,
		logger:        logger,
		level:         level,
		otelProviders: otelProviders,
	}
}

// Start 启动所有服务（非阻塞）
func (s *Server) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	if err := s.init(ctx); err != nil {
		return err
	}

	if err := s.startHotReload(ctx); err != nil {
		return fmt.Errorf("failed to start config reloader: %w", err)
	}
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("all servers started",
		zap.String("http_addr", s.httpManager.Addr()),
		zap.String("metrics_addr", s.metricsManager.Addr()),
		zap.Bool("hot_reload_enabled", s.configPath != ""),
	)
	return nil
}

// init 装配组件与 handlers，不监听端口
func (s *Server) init(ctx context.Context) error {
	if s.metricsCollector == nil {
		s.metricsCollector = metrics.NewCollector("diagramgate", s.logger)
	}

	c, err := buildComponents(ctx, s.cfg, s.metricsCollector, s.logger)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	s.components = c

	s.diagramHandler = handlers.NewDiagramHandler(c.pipeline, c.catalog, s.cfg.Server.MaxBodyBytes, s.logger)

	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewFuncCheck("renderer", func(context.Context) error {
		return c.graphviz.Available()
	}))
	outputDir := s.cfg.Harness.OutputDir
	s.healthHandler.RegisterCheck(handlers.NewFuncCheck("output_dir", func(context.Context) error {
		info, err := os.Stat(outputDir)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", outputDir)
		}
		return nil
	}))
	if c.store != nil {
		s.healthHandler.RegisterCheck(handlers.NewFuncCheck("artifact_store", c.store.Check))
	}
	if c.verdicts != nil {
		s.healthHandler.RegisterCheck(handlers.NewFuncCheck("verdict_cache", c.verdicts.Check))
	}

	s.rateLimiter = NewRateLimiter(ctx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger)
	return nil
}

// handler 构建路由与中间件链
func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	mux.HandleFunc("POST "+routeGenerate, s.diagramHandler.HandleGenerate)
	mux.HandleFunc("POST "+routeScan, s.diagramHandler.HandleScan)
	mux.HandleFunc("GET "+routeIcons, s.diagramHandler.HandleIcons)

	middlewares := []Middleware{
		RequestID(),
		Recovery(s.logger),
		SecurityHeaders(),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		OTelTracing(),
		MetricsMiddleware(s.metricsCollector),
		RequestLogger(s.logger),
	}

	// JWT 优先；未启用时配置了 API Key 则使用 API Key
	switch {
	case s.cfg.JWT.Enabled:
		middlewares = append(middlewares, JWTAuth(s.cfg.JWT, publicPaths, s.logger))
	case len(s.cfg.Server.APIKeys) > 0:
		middlewares = append(middlewares, APIKeyAuth(s.cfg.Server.APIKeys, publicPaths, s.logger))
	default:
		s.logger.Warn("no authentication configured, API is open")
	}
	middlewares = append(middlewares, s.rateLimiter.Middleware(publicPaths))

	return Chain(mux, middlewares...)
}

// startHotReload 监听配置文件，日志级别与限流参数即时生效
func (s *Server) startHotReload(ctx context.Context) error {
	s.reloader = config.NewReloader(s.configPath, s.cfg, s.level, s.logger)
	s.reloader.OnReload(func(cfg *config.Config, changes []config.ConfigChange) {
		for _, c := range changes {
			if c.Path == "Server.RateLimitRPS" || c.Path == "Server.RateLimitBurst" {
				s.rateLimiter.SetLimit(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
				return
			}
		}
	})
	return s.reloader.Start(ctx, config.WithWatcherLogger(s.logger))
}

func (s *Server) startHTTPServer() error {
	serverConfig := server.Config{
		Name:            "api",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     s.cfg.Server.IdleTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}
	if s.cfg.Server.TLSCertFile != "" {
		tlsConfig, err := tlsutil.ServerTLSConfig(s.cfg.Server.TLSCertFile, s.cfg.Server.TLSKeyFile)
		if err != nil {
			return err
		}
		serverConfig.TLS = tlsConfig
	}

	s.httpManager = server.NewManager(s.handler(), serverConfig, s.logger)
	return s.httpManager.Start()
}

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.metricsManager = server.NewManager(mux, server.Config{
		Name:            "metrics",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.ReadTimeout,
		IdleTimeout:     s.cfg.Server.IdleTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)
	return s.metricsManager.Start()
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 阻塞直到收到信号或 ctx 取消，然后关闭所有服务
func (s *Server) WaitForShutdown(ctx context.Context) error {
	var err error
	if s.httpManager != nil {
		err = s.httpManager.WaitForShutdown(ctx)
	}
	s.Shutdown(context.Background())
	return err
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown(ctx context.Context) {
	s.logger.Info("starting graceful shutdown")

	if s.reloader != nil {
		if err := s.reloader.Stop(); err != nil {
			s.logger.Error("config reloader shutdown error", zap.Error(err))
		}
	}
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}
	// 限流清理 goroutine 在 HTTP 关闭后退出
	if s.cancel != nil {
		s.cancel()
	}
	if s.components != nil {
		s.components.close()
	}
	if err := s.otelProviders.Shutdown(ctx); err != nil {
		s.logger.Error("telemetry shutdown error", zap.Error(err))
	}

	s.logger.Info("graceful shutdown completed")
}
