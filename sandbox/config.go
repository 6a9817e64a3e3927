package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Strategy 截止时间的执行策略
type Strategy string

const (
	// StrategyAuto 平台支持时使用 signal，否则使用 thread
	StrategyAuto Strategy = "auto"
	// StrategySignal 进程级 ITIMER_REAL 定时器触发中断，脚本在调用方 goroutine 上运行
	StrategySignal Strategy = "signal"
	// StrategyThread 脚本在独立 goroutine 中运行，调用方最多等待到截止时间
	StrategyThread Strategy = "thread"
)

// HarnessConfig 执行器配置
type HarnessConfig struct {
	// OutputDir 产物目录，所有执行共享，靠唯一文件名区分
	OutputDir string `json:"output_dir"`
	// IconDir 图标根目录，为空时不带图标
	IconDir        string        `json:"icon_dir,omitempty"`
	DefaultTimeout time.Duration `json:"default_timeout"`
	MaxTimeout     time.Duration `json:"max_timeout"`
	Strategy       Strategy      `json:"strategy"`
	// MaxSteps 解释器步数预算，0 表示不限制
	MaxSteps     uint64 `json:"max_steps"`
	MaxCallDepth int    `json:"max_call_depth"`
	// MaxSummaryBytes 错误摘要上限
	MaxSummaryBytes int `json:"max_summary_bytes"`
	// MaxPrintBytes 保留在日志中的 print 输出上限
	MaxPrintBytes int `json:"max_print_bytes"`
}

// DefaultHarnessConfig 返回默认配置
func DefaultHarnessConfig() HarnessConfig {
	return HarnessConfig{
		OutputDir:       filepath.Join(os.TempDir(), "diagramgate"),
		DefaultTimeout:  90 * time.Second,
		MaxTimeout:      300 * time.Second,
		Strategy:        StrategyAuto,
		MaxCallDepth:    64,
		MaxSummaryBytes: 512,
		MaxPrintBytes:   4096,
	}
}

// Validate 校验配置
func (c HarnessConfig) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("output dir is required")
	}
	if c.DefaultTimeout <= 0 {
		return fmt.Errorf("default timeout must be positive")
	}
	if c.MaxTimeout < c.DefaultTimeout {
		return fmt.Errorf("max timeout (%s) must not be less than default timeout (%s)", c.MaxTimeout, c.DefaultTimeout)
	}
	switch c.Strategy {
	case "", StrategyAuto, StrategySignal, StrategyThread:
	default:
		return fmt.Errorf("unknown deadline strategy %q", c.Strategy)
	}
	if c.MaxSummaryBytes <= 0 {
		return fmt.Errorf("max summary bytes must be positive")
	}
	return nil
}

// clampDeadline 将请求的超时限制在 (0, MaxTimeout]，未指定时使用默认值
func (c HarnessConfig) clampDeadline(d time.Duration) time.Duration {
	if d <= 0 {
		return c.DefaultTimeout
	}
	if c.MaxTimeout > 0 && d > c.MaxTimeout {
		return c.MaxTimeout
	}
	return d
}
