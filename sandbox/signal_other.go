//go:build !linux

package sandbox

import (
	"context"
	"errors"
	"time"
)

// SignalSupported 当前平台是否支持 ITIMER_REAL + SIGALRM
func SignalSupported() bool { return false }

// SignalEnforcer 在非 Linux 平台上不可用
type SignalEnforcer struct{}

// NewSignalEnforcer 在非 Linux 平台上返回错误
func NewSignalEnforcer() (*SignalEnforcer, error) {
	return nil, errors.New("signal deadline strategy requires linux")
}

func (e *SignalEnforcer) Name() string { return string(StrategySignal) }

func (e *SignalEnforcer) StopsWork() bool { return true }

func (e *SignalEnforcer) Enforce(ctx context.Context, deadline time.Duration, task Task, interrupt func()) error {
	return errors.New("signal deadline strategy requires linux")
}
