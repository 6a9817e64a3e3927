// 配置文件变更监听器实现。
//
// 轮询文件的修改时间与大小，防抖后触发回调。
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FileOp 文件操作类型
type FileOp int

const (
	// FileOpCreate 文件出现
	FileOpCreate FileOp = iota
	// FileOpWrite 文件内容变化
	FileOpWrite
	// FileOpRemove 文件被删除
	FileOpRemove
)

func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "CREATE"
	case FileOpWrite:
		return "WRITE"
	case FileOpRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent 一次文件变更
type FileEvent struct {
	Path      string    `json:"path"`
	Op        FileOp    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

type fileState struct {
	modTime time.Time
	size    int64
}

// FileWatcher 轮询式文件监听器
type FileWatcher struct {
	mu sync.RWMutex

	paths         []string
	pollInterval  time.Duration
	debounceDelay time.Duration

	running bool
	stopCh  chan struct{}
	events  chan FileEvent

	callbacks []func(FileEvent)
	states    map[string]fileState
	logger    *zap.Logger
}

// WatcherOption 监听器选项
type WatcherOption func(*FileWatcher)

// WithDebounceDelay 设置防抖延迟
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *FileWatcher) { w.debounceDelay = d }
}

// WithPollInterval 设置轮询间隔
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *FileWatcher) { w.pollInterval = d }
}

// WithWatcherLogger 设置日志记录器
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *FileWatcher) { w.logger = logger }
}

// NewFileWatcher 创建监听器；不存在的文件会等待其被创建
func NewFileWatcher(paths []string, opts ...WatcherOption) (*FileWatcher, error) {
	w := &FileWatcher{
		pollInterval:  time.Second,
		debounceDelay: 100 * time.Millisecond,
		stopCh:        make(chan struct{}),
		events:        make(chan FileEvent, 64),
		states:        make(map[string]fileState),
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve path %s: %w", p, err)
		}
		if _, err := os.Stat(abs); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to stat path %s: %w", abs, err)
			}
			w.logger.Warn("config file does not exist, waiting for creation", zap.String("path", abs))
		}
		w.paths = append(w.paths, abs)
	}
	return w, nil
}

// OnChange 注册回调
func (w *FileWatcher) OnChange(callback func(FileEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start 开始监听，ctx 取消或 Stop 后退出
func (w *FileWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	for _, p := range w.paths {
		if info, err := os.Stat(p); err == nil {
			w.states[p] = fileState{modTime: info.ModTime(), size: info.Size()}
		}
	}
	w.mu.Unlock()

	go w.pollLoop(ctx)
	go w.dispatchLoop(ctx)

	w.logger.Info("file watcher started",
		zap.Strings("paths", w.Paths()),
		zap.Duration("poll_interval", w.pollInterval))
	return nil
}

// Stop 停止监听，可重复调用
func (w *FileWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	close(w.stopCh)
	w.running = false
	w.logger.Info("file watcher stopped")
	return nil
}

func (w *FileWatcher) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			for _, evt := range w.checkFiles() {
				select {
				case w.events <- evt:
				default:
					w.logger.Warn("file event dropped", zap.String("path", evt.Path))
				}
			}
		}
	}
}

// checkFiles 比较当前状态与上次记录，返回变更事件
func (w *FileWatcher) checkFiles() []FileEvent {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []FileEvent
	now := time.Now()
	for _, p := range w.paths {
		prev, known := w.states[p]
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) && known {
				delete(w.states, p)
				out = append(out, FileEvent{Path: p, Op: FileOpRemove, Timestamp: now})
			}
			continue
		}
		cur := fileState{modTime: info.ModTime(), size: info.Size()}
		switch {
		case !known:
			out = append(out, FileEvent{Path: p, Op: FileOpCreate, Timestamp: now})
		case !cur.modTime.Equal(prev.modTime) || cur.size != prev.size:
			out = append(out, FileEvent{Path: p, Op: FileOpWrite, Timestamp: now})
		default:
			continue
		}
		w.states[p] = cur
	}
	return out
}

// dispatchLoop 合并防抖窗口内同一路径的事件后再回调
func (w *FileWatcher) dispatchLoop(ctx context.Context) {
	pending := make(map[string]FileEvent)
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-w.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		case evt := <-w.events:
			pending[evt.Path] = evt
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounceDelay)
			fire = timer.C
		case <-fire:
			fire = nil
			w.mu.RLock()
			callbacks := append([]func(FileEvent){}, w.callbacks...)
			w.mu.RUnlock()
			for _, evt := range pending {
				w.logger.Debug("dispatching file event",
					zap.String("path", evt.Path),
					zap.String("op", evt.Op.String()))
				for _, cb := range callbacks {
					cb(evt)
				}
			}
			pending = make(map[string]FileEvent)
		}
	}
}

// Paths 返回监听的绝对路径
func (w *FileWatcher) Paths() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]string(nil), w.paths...)
}

// IsRunning 是否在运行
func (w *FileWatcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}
