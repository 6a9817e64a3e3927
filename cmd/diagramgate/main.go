// =============================================================================
// DiagramGate 主入口
// =============================================================================
// 服务入口与本地命令行工具
//
// 使用方法:
//
//	diagramgate serve                          # 启动服务
//	diagramgate serve --config config.yaml     # 指定配置文件
//	diagramgate scan diagram.py                # 只做静态扫描
//	diagramgate render diagram.py -f svg       # 扫描并渲染到本地文件
//	diagramgate icons --provider aws           # 列出可用节点类型
//	diagramgate config --config config.yaml    # 打印生效配置（已脱敏）
//	diagramgate version                        # 显示版本信息
//	diagramgate health                         # 健康检查
// =============================================================================

// @title DiagramGate API
// @version 1.0
// @description 在受限沙箱中执行图表脚本并返回渲染产物
// @BasePath /
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/diagramgate/config"
	"github.com/BaSui01/diagramgate/internal/telemetry"
	"github.com/BaSui01/diagramgate/internal/tlsutil"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// 退出码
const (
	exitOK       = 0
	exitError    = 1
	exitRejected = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return exitError
	}

	switch args[0] {
	case "serve":
		return runServe(args[1:], stderr)
	case "scan":
		return runScan(args[1:], stdout, stderr)
	case "render":
		return runRender(args[1:], stdout, stderr)
	case "icons":
		return runIcons(args[1:], stdout, stderr)
	case "config":
		return runConfig(args[1:], stdout, stderr)
	case "version":
		printVersion(stdout)
		return exitOK
	case "health":
		return runHealthCheck(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return exitError
	}
}

// parseFlags 解析子命令参数；--help 时返回 ErrHelp
func parseFlags(fs *pflag.FlagSet, args []string, stderr io.Writer) error {
	fs.SetOutput(stderr)
	return fs.Parse(args)
}

func flagExit(err error) int {
	if errors.Is(err, pflag.ErrHelp) {
		return exitOK
	}
	return exitError
}

// loadConfig 加载并校验配置
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		// 显式指定的配置文件必须存在
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string, stderr io.Writer) int {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "Path to config file (YAML)")
	if err := parseFlags(fs, args, stderr); err != nil {
		return flagExit(err)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}

	logger, level := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting DiagramGate",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	srv := NewServer(cfg, *configPath, logger, level, otelProviders)
	ctx := context.Background()
	if err := srv.Start(ctx); err != nil {
		logger.Error("failed to start server", zap.Error(err))
		srv.Shutdown(ctx)
		return exitError
	}

	if err := srv.WaitForShutdown(ctx); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return exitError
	}
	logger.Info("DiagramGate stopped")
	return exitOK
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("health", pflag.ContinueOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	timeout := fs.Duration("timeout", 5*time.Second, "Request timeout")
	if err := parseFlags(fs, args, stderr); err != nil {
		return flagExit(err)
	}

	client := tlsutil.SecureHTTPClient(*timeout)
	resp, err := client.Get(strings.TrimRight(*addr, "/") + "/health")
	if err != nil {
		fmt.Fprintf(stderr, "Health check failed: %v\n", err)
		return exitError
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stderr, "Health check failed: status %d\n", resp.StatusCode)
		return exitError
	}
	fmt.Fprintln(stdout, "OK")
	return exitOK
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "DiagramGate %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `DiagramGate - sandboxed diagram rendering service

Usage:
  diagramgate <command> [options]

Commands:
  serve     Start the HTTP API
  scan      Statically scan a diagram script
  render    Scan, execute and render a diagram script locally
  icons     List available node classes
  config    Print the effective configuration with secrets redacted
  version   Show version information
  health    Check server health
  help      Show this help message

Options for 'serve', 'scan', 'render' and 'config':
  -c, --config <path>   Path to configuration file (YAML)

Options for 'render':
  -f, --format <fmt>    Output format: png, svg or dot
  -o, --out <path>      Write the artifact to this path
  -n, --name <name>     Declared output name
  -t, --timeout <dur>   Execution timeout, e.g. 30s

Exit codes:
  0  success
  1  usage, configuration or tool error
  2  script rejected, timed out or failed at runtime

Examples:
  diagramgate serve --config /etc/diagramgate/config.yaml
  diagramgate scan diagram.py
  cat diagram.py | diagramgate render - -f svg -o out.svg
  diagramgate icons --provider aws --service compute
  diagramgate health --addr http://localhost:8080`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

// initLogger 构建 logger，返回的 AtomicLevel 供配置热更新调整级别
func initLogger(cfg config.LogConfig) (*zap.Logger, zap.AtomicLevel) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	atom := zap.NewAtomicLevelAt(level)

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}
	zapConfig := zap.Config{
		Level:             atom,
		Development:       cfg.Format == "console",
		Encoding:          "json",
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger, atom
}
