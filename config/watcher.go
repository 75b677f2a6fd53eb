package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher 配置文件监控器
// 长时间回测/寻优运行期间监听配置文件变化，热更新可在线调整的项
// （目前为 system.log_level）。引擎参数变更需要重启才生效。
type Watcher struct {
	configPath  string
	watcher     *fsnotify.Watcher
	onChange    func(*Config)
	mu          sync.RWMutex
	isWatching  bool
	lastModTime time.Time
}

// NewWatcher 创建配置监控器
func NewWatcher(configPath string, onChange func(*Config)) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("创建文件监控器失败: %v", err)
	}

	// 监听配置文件所在目录（编辑器替换式保存会产生 Rename/Create 事件）
	configDir := filepath.Dir(configPath)
	if configDir == "" || configDir == "." {
		configDir, err = os.Getwd()
		if err != nil {
			watcher.Close()
			return nil, fmt.Errorf("获取当前目录失败: %v", err)
		}
		configPath = filepath.Join(configDir, filepath.Base(configPath))
	}

	var lastModTime time.Time
	if info, err := os.Stat(configPath); err == nil {
		lastModTime = info.ModTime()
	}

	w := &Watcher{
		configPath:  configPath,
		watcher:     watcher,
		onChange:    onChange,
		lastModTime: lastModTime,
	}

	if err := watcher.Add(configDir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("监听配置目录失败: %v", err)
	}

	return w, nil
}

// Start 启动监控（阻塞，通常在独立 goroutine 中调用）
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.isWatching {
		w.mu.Unlock()
		return
	}
	w.isWatching = true
	w.mu.Unlock()

	// 去抖：编辑器保存通常触发多个事件
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.configPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(500*time.Millisecond, w.reload)
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Stop 停止监控
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.isWatching {
		return nil
	}
	w.isWatching = false
	return w.watcher.Close()
}

// reload 重新加载配置并回调
func (w *Watcher) reload() {
	info, err := os.Stat(w.configPath)
	if err != nil {
		return
	}

	w.mu.Lock()
	if !info.ModTime().After(w.lastModTime) {
		w.mu.Unlock()
		return
	}
	w.lastModTime = info.ModTime()
	onChange := w.onChange
	w.mu.Unlock()

	cfg, err := LoadConfig(w.configPath)
	if err != nil {
		// 配置暂时非法（可能保存到一半），等下一次事件
		return
	}

	if onChange != nil {
		onChange(cfg)
	}
}
