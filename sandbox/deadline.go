package sandbox

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"
)

// ErrDeadlineExceeded 执行超过截止时间
var ErrDeadlineExceeded = errors.New("execution deadline exceeded")

// Task 受截止时间约束的工作。ctx 在截止时间到达时被取消。
type Task func(ctx context.Context) error

// DeadlineEnforcer 截止时间执行器。
// 截止时间到达时调用 interrupt 并返回 ErrDeadlineExceeded。
type DeadlineEnforcer interface {
	Name() string
	// Enforce 运行 task，最多等待 deadline
	Enforce(ctx context.Context, deadline time.Duration, task Task, interrupt func()) error
	// StopsWork 返回时是否保证 task 已经停止
	StopsWork() bool
}

// NewEnforcer 按策略创建执行器。auto 在支持信号定时器的平台上选择 signal。
func NewEnforcer(strategy Strategy) (DeadlineEnforcer, error) {
	switch strategy {
	case "", StrategyAuto:
		if !SignalSupported() {
			return ThreadEnforcer{}, nil
		}
		fallthrough
	case StrategySignal:
		e, err := NewSignalEnforcer()
		if err != nil {
			return nil, err
		}
		return e, nil
	case StrategyThread:
		return ThreadEnforcer{}, nil
	}
	return nil, fmt.Errorf("unknown deadline strategy %q", strategy)
}

// runTask 运行 task 并把 panic 转换为错误
func runTask(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return task(ctx)
}

// =============================================================================
// ThreadEnforcer
// =============================================================================

// ThreadEnforcer 在独立 goroutine 中运行 task，调用方最多等待 deadline。
// 超时后调用方立即返回；worker 只会收到中断请求，不保证已经停止，
// 它之后产生的任何副作用都不会被引用。
type ThreadEnforcer struct{}

func (ThreadEnforcer) Name() string { return string(StrategyThread) }

func (ThreadEnforcer) StopsWork() bool { return false }

func (ThreadEnforcer) Enforce(ctx context.Context, deadline time.Duration, task Task, interrupt func()) error {
	taskCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- runTask(taskCtx, task)
	}()

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case err := <-done:
		cancel()
		return err
	case <-timer.C:
		interrupt()
		cancel()
		return ErrDeadlineExceeded
	case <-ctx.Done():
		interrupt()
		cancel()
		return ctx.Err()
	}
}
