// 配置热重载。
//
// 只有注册为可热更新的字段会在运行时生效，其余变更记录后等待重启。
package config

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// ConfigChange 一个字段的变化
type ConfigChange struct {
	Path            string `json:"path"`
	OldValue        any    `json:"old_value,omitempty"`
	NewValue        any    `json:"new_value,omitempty"`
	RequiresRestart bool   `json:"requires_restart"`
}

// ReloadCallback 新配置应用后调用，changes 只含可热更新的字段
type ReloadCallback func(cfg *Config, changes []ConfigChange)

// hotReloadableFields 运行时可以直接生效的字段
var hotReloadableFields = map[string]string{
	"Log.Level":             "log level",
	"Server.RateLimitRPS":   "per-client request rate",
	"Server.RateLimitBurst": "per-client burst",
}

// sensitiveKeys 日志和导出时需要脱敏的字段名片段
var sensitiveKeys = []string{"secret", "password", "api_key", "apikey", "access_key", "token", "public_key"}

// IsHotReloadable 字段是否可热更新
func IsHotReloadable(path string) bool {
	_, ok := hotReloadableFields[path]
	return ok
}

// Reloader 监听配置文件并推送可热更新的变化
type Reloader struct {
	mu sync.RWMutex

	path    string
	loader  func() (*Config, error)
	current *Config
	level   zap.AtomicLevel

	callbacks []ReloadCallback
	watcher   *FileWatcher
	logger    *zap.Logger
}

// NewReloader 创建 Reloader；level 会随 Log.Level 同步
func NewReloader(path string, current *Config, level zap.AtomicLevel, logger *zap.Logger) *Reloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reloader{
		path:    path,
		current: current,
		level:   level,
		logger:  logger.With(zap.String("component", "config_reloader")),
	}
	r.loader = func() (*Config, error) {
		return NewLoader().WithConfigPath(r.path).Load()
	}
	return r
}

// OnReload 注册回调
func (r *Reloader) OnReload(cb ReloadCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, cb)
}

// Current 返回当前生效的配置
func (r *Reloader) Current() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Start 开始监听文件，path 为空时什么都不做
func (r *Reloader) Start(ctx context.Context, opts ...WatcherOption) error {
	if r.path == "" {
		return nil
	}
	opts = append([]WatcherOption{WithWatcherLogger(r.logger), WithDebounceDelay(500 * time.Millisecond)}, opts...)
	w, err := NewFileWatcher([]string{r.path}, opts...)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	w.OnChange(func(evt FileEvent) {
		if evt.Op == FileOpRemove {
			r.logger.Warn("config file removed, keeping current config", zap.String("path", evt.Path))
			return
		}
		if _, err := r.Reload(); err != nil {
			r.logger.Error("config reload failed, keeping current config", zap.Error(err))
		}
	})
	if err := w.Start(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	r.watcher = w
	r.mu.Unlock()
	return nil
}

// Stop 停止监听
func (r *Reloader) Stop() error {
	r.mu.RLock()
	w := r.watcher
	r.mu.RUnlock()
	if w == nil {
		return nil
	}
	return w.Stop()
}

// Reload 重新加载并应用配置，返回实际生效的变化。
// 新配置校验失败时保持旧配置不变。
func (r *Reloader) Reload() ([]ConfigChange, error) {
	next, err := r.loader()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := next.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	r.mu.Lock()
	changes := detectChanges(r.current, next)
	var applied []ConfigChange
	merged := *r.current
	for _, c := range changes {
		if c.RequiresRestart {
			r.logger.Warn("config change requires restart", redactedFields(c)...)
			continue
		}
		if err := setNestedField(reflect.ValueOf(&merged).Elem(), c.Path, c.NewValue); err != nil {
			r.mu.Unlock()
			return nil, err
		}
		applied = append(applied, c)
		r.logger.Info("config changed", redactedFields(c)...)
	}
	r.current = &merged
	callbacks := append([]ReloadCallback(nil), r.callbacks...)
	r.mu.Unlock()

	if len(applied) == 0 {
		return nil, nil
	}
	if lvl, err := zapcore.ParseLevel(merged.Log.Level); err == nil {
		r.level.SetLevel(lvl)
	}
	for _, cb := range callbacks {
		r.notify(cb, &merged, applied)
	}
	return applied, nil
}

func (r *Reloader) notify(cb ReloadCallback, cfg *Config, changes []ConfigChange) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("reload callback panicked", zap.Any("panic", rec))
		}
	}()
	cb(cfg, changes)
}

// detectChanges 递归比较两份配置
func detectChanges(oldCfg, newCfg *Config) []ConfigChange {
	var changes []ConfigChange
	compareStructs("", reflect.ValueOf(oldCfg).Elem(), reflect.ValueOf(newCfg).Elem(), &changes)
	return changes
}

func compareStructs(prefix string, oldVal, newVal reflect.Value, changes *[]ConfigChange) {
	t := oldVal.Type()
	for i := 0; i < oldVal.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		path := field.Name
		if prefix != "" {
			path = prefix + "." + field.Name
		}
		o, n := oldVal.Field(i), newVal.Field(i)
		if o.Kind() == reflect.Struct && o.Type() != durationType {
			compareStructs(path, o, n, changes)
			continue
		}
		if !reflect.DeepEqual(o.Interface(), n.Interface()) {
			*changes = append(*changes, ConfigChange{
				Path:            path,
				OldValue:        o.Interface(),
				NewValue:        n.Interface(),
				RequiresRestart: !IsHotReloadable(path),
			})
		}
	}
}

func setNestedField(v reflect.Value, path string, value any) error {
	for _, part := range strings.Split(path, ".") {
		v = v.FieldByName(part)
		if !v.IsValid() {
			return fmt.Errorf("unknown config field %s", path)
		}
	}
	val := reflect.ValueOf(value)
	if !val.Type().AssignableTo(v.Type()) {
		return fmt.Errorf("type mismatch for %s: %s", path, val.Type())
	}
	v.Set(val)
	return nil
}

func isSensitive(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

func redactedFields(c ConfigChange) []zap.Field {
	fields := []zap.Field{zap.String("path", c.Path), zap.Bool("requires_restart", c.RequiresRestart)}
	if isSensitive(strings.ReplaceAll(toSnake(c.Path), ".", "_")) {
		return append(fields, zap.String("value", "[REDACTED]"))
	}
	return append(fields, zap.Any("old_value", c.OldValue), zap.Any("new_value", c.NewValue))
}

// toSnake 把 Server.APIKeys 这样的路径转成 server.api_keys
func toSnake(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		upper := r >= 'A' && r <= 'Z'
		if upper && i > 0 && runes[i-1] != '.' {
			prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if prevLower || nextLower {
				b.WriteByte('_')
			}
		}
		if upper {
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// =============================================================================
// 脱敏导出
// =============================================================================

// Redacted 以 YAML 输出配置，敏感字段替换为 [REDACTED]
func (c *Config) Redacted() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	redactSensitiveFields(tree)
	return yaml.Marshal(tree)
}

func redactSensitiveFields(data map[string]any) {
	for key, value := range data {
		if nested, ok := value.(map[string]any); ok {
			redactSensitiveFields(nested)
			continue
		}
		if !isSensitive(key) {
			continue
		}
		switch v := value.(type) {
		case string:
			if v != "" {
				data[key] = "[REDACTED]"
			}
		case []any:
			if len(v) > 0 {
				data[key] = "[REDACTED]"
			}
		}
	}
}
