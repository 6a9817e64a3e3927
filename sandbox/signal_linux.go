//go:build linux

package sandbox

import (
	"container/heap"
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// SignalSupported 当前平台是否支持 ITIMER_REAL + SIGALRM
func SignalSupported() bool { return true }

// SignalEnforcer 基于进程级 ITIMER_REAL 的执行器。
// 多个并发执行共享同一个定时器，由 alarmClock 按最早截止时间复用。
// task 在调用方 goroutine 上运行，Enforce 返回时工作已经停止。
type SignalEnforcer struct {
	clock *alarmClock
}

// NewSignalEnforcer 创建信号执行器
func NewSignalEnforcer() (*SignalEnforcer, error) {
	return &SignalEnforcer{clock: defaultAlarmClock()}, nil
}

func (e *SignalEnforcer) Name() string { return string(StrategySignal) }

func (e *SignalEnforcer) StopsWork() bool { return true }

func (e *SignalEnforcer) Enforce(ctx context.Context, deadline time.Duration, task Task, interrupt func()) error {
	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var fired atomic.Bool
	stop := e.clock.schedule(time.Now().Add(deadline), func() {
		fired.Store(true)
		interrupt()
		cancel()
	})
	err := runTask(taskCtx, task)
	stop()

	if fired.Load() {
		return ErrDeadlineExceeded
	}
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// =============================================================================
// alarmClock
// =============================================================================

var (
	alarmOnce   sync.Once
	alarmGlobal *alarmClock
)

func defaultAlarmClock() *alarmClock {
	alarmOnce.Do(func() {
		alarmGlobal = newAlarmClock()
	})
	return alarmGlobal
}

// alarmBackstop 运行时定时器兜底触发的宽限时间。
// SIGALRM 经 signal.Notify 转发到 loop goroutine，CPU 饱和时可能延迟数百毫秒；
// 到期后超过该宽限仍未触发的闹钟由运行时定时器直接触发。
const alarmBackstop = 10 * time.Millisecond

// alarmClock 将多个截止时间复用到进程唯一的 ITIMER_REAL 上
type alarmClock struct {
	mu      sync.Mutex
	pending alarmHeap
	seq     uint64
	sigs    chan os.Signal
	arm     func(d time.Duration) // d 为 0 时关闭定时器
}

func newAlarmClock() *alarmClock {
	c := &alarmClock{sigs: make(chan os.Signal, 8), arm: setItimer}
	signal.Notify(c.sigs, syscall.SIGALRM)
	go c.loop()
	return c
}

func setItimer(d time.Duration) {
	var it unix.Itimerval
	if d > 0 {
		it.Value = unix.NsecToTimeval(d.Nanoseconds())
	}
	// 设置失败时保留原定时器，下一次 schedule/expire 会重试
	_, _ = unix.Setitimer(unix.ItimerReal, it)
}

func (c *alarmClock) loop() {
	for range c.sigs {
		c.expire(time.Now())
	}
}

// schedule 注册一个闹钟，返回的函数用于撤销
func (c *alarmClock) schedule(at time.Time, fire func()) (stop func()) {
	c.mu.Lock()
	c.seq++
	entry := &alarm{at: at, fire: fire, seq: c.seq}
	heap.Push(&c.pending, entry)
	c.armLocked(time.Now())
	c.mu.Unlock()

	backstop := time.AfterFunc(time.Until(at)+alarmBackstop, func() {
		if c.take(entry) {
			fire()
		}
	})

	return func() {
		backstop.Stop()
		c.take(entry)
	}
}

// take 从队列中移除尚未触发的闹钟，返回是否由本次调用移除
func (c *alarmClock) take(entry *alarm) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry.index < 0 {
		return false
	}
	heap.Remove(&c.pending, entry.index)
	c.armLocked(time.Now())
	return true
}

// expire 触发所有已到期的闹钟并重新设置定时器
func (c *alarmClock) expire(now time.Time) {
	var due []func()
	c.mu.Lock()
	for c.pending.Len() > 0 && !c.pending[0].at.After(now.Add(time.Millisecond)) {
		entry := heap.Pop(&c.pending).(*alarm)
		due = append(due, entry.fire)
	}
	c.armLocked(now)
	c.mu.Unlock()

	for _, fire := range due {
		fire()
	}
}

// armLocked 按最早的截止时间设置 ITIMER_REAL，没有待触发闹钟时关闭定时器
func (c *alarmClock) armLocked(now time.Time) {
	var d time.Duration
	if c.pending.Len() > 0 {
		d = c.pending[0].at.Sub(now)
		if d < time.Millisecond {
			d = time.Millisecond
		}
	}
	c.arm(d)
}

type alarm struct {
	at    time.Time
	fire  func()
	seq   uint64
	index int
}

type alarmHeap []*alarm

func (h alarmHeap) Len() int { return len(h) }

func (h alarmHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}

func (h alarmHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *alarmHeap) Push(x any) {
	a := x.(*alarm)
	a.index = len(*h)
	*h = append(*h, a)
}

func (h *alarmHeap) Pop() any {
	old := *h
	n := len(old)
	a := old[n-1]
	old[n-1] = nil
	a.index = -1
	*h = old[:n-1]
	return a
}
