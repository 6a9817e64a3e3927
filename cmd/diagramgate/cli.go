package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/BaSui01/diagramgate/api"
	"github.com/BaSui01/diagramgate/config"
	"github.com/BaSui01/diagramgate/diagram"
	"github.com/BaSui01/diagramgate/types"
)

// =============================================================================
// 🔍 本地命令：scan / render / icons / config
// =============================================================================

// cliLogger 本地命令的日志写到 stderr，默认只输出警告以上
func cliLogger(cfg config.LogConfig, verbose bool) *zap.Logger {
	cfg.OutputPaths = []string{"stderr"}
	cfg.Format = "console"
	if !verbose {
		cfg.Level = "warn"
	}
	logger, _ := initLogger(cfg)
	return logger
}

// readSource 读取脚本，"-" 表示标准输入
func readSource(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(io.LimitReader(os.Stdin, types.MaxSourceBytes+1))
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// cliEnv 本地命令的运行环境
type cliEnv struct {
	components *components
	path       string
	logger     *zap.Logger
}

// prepare 解析公共参数，加载配置并装配流水线。返回 nil 时调用方以 code 退出。
func prepare(fs *pflag.FlagSet, args []string, stderr io.Writer) (*cliEnv, int) {
	configPath := fs.StringP("config", "c", "", "Path to config file (YAML)")
	verbose := fs.BoolP("verbose", "v", false, "Log at the configured level instead of warn")
	if err := parseFlags(fs, args, stderr); err != nil {
		return nil, flagExit(err)
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(stderr, "usage: diagramgate %s [options] FILE\n", fs.Name())
		return nil, exitError
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return nil, exitError
	}
	logger := cliLogger(cfg.Log, *verbose)

	c, err := buildComponents(context.Background(), cfg, nil, logger)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return nil, exitError
	}
	return &cliEnv{components: c, path: fs.Arg(0), logger: logger}, exitOK
}

func (e *cliEnv) close() {
	e.components.close()
	_ = e.logger.Sync()
}

func runScan(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("scan", pflag.ContinueOnError)
	env, code := prepare(fs, args, stderr)
	if env == nil {
		return code
	}
	defer env.close()

	source, err := readSource(env.path)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}

	verdict, err := env.components.pipeline.Scan(context.Background(), types.CodeSubmission{Source: source})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}
	if err := writeJSON(stdout, api.NewScanResponse(verdict)); err != nil {
		return exitError
	}
	if !verdict.Accepted {
		return exitRejected
	}
	return exitOK
}

func runRender(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("render", pflag.ContinueOnError)
	format := fs.StringP("format", "f", "", "Output format: png, svg or dot")
	out := fs.StringP("out", "o", "", "Write the artifact to this path")
	name := fs.StringP("name", "n", "", "Declared output name")
	timeout := fs.DurationP("timeout", "t", 0, "Execution timeout")

	env, code := prepare(fs, args, stderr)
	if env == nil {
		return code
	}
	defer env.close()

	source, err := readSource(env.path)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}
	sub := types.CodeSubmission{
		Source:             source,
		DeclaredOutputName: *name,
		Format:             *format,
		Timeout:            *timeout,
	}
	if err := sub.Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}

	result := env.components.pipeline.Process(context.Background(), sub)

	fileName := ""
	if result.ArtifactPath != "" {
		fileName = filepath.Base(result.ArtifactPath)
	}
	if result.Succeeded() {
		target := *out
		if target == "" {
			target = fileName
		}
		if err := os.WriteFile(target, result.ArtifactBytes, 0o644); err != nil {
			fmt.Fprintf(stderr, "write artifact: %v\n", err)
			return exitError
		}
		fileName = target
	}

	resp := api.NewGenerateResponse(result, fileName)
	resp.Artifact = nil
	if err := writeJSON(stdout, resp); err != nil {
		return exitError
	}

	switch result.Status {
	case types.StatusSuccess:
		return exitOK
	case types.StatusToolError:
		return exitError
	default:
		return exitRejected
	}
}

func runIcons(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("icons", pflag.ContinueOnError)
	provider := fs.StringP("provider", "p", "", "Case-insensitive provider filter")
	service := fs.StringP("service", "s", "", "Case-insensitive service filter")
	if err := parseFlags(fs, args, stderr); err != nil {
		return flagExit(err)
	}

	listing := diagram.DefaultCatalog().ListIcons(*provider, *service)
	if err := writeJSON(stdout, api.NewIconsResponse(listing)); err != nil {
		return exitError
	}
	return exitOK
}

func runConfig(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("config", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "Path to config file (YAML)")
	if err := parseFlags(fs, args, stderr); err != nil {
		return flagExit(err)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}
	data, err := cfg.Redacted()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}
	_, _ = stdout.Write(data)
	return exitOK
}
