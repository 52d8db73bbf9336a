package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce 合并编辑器保存时产生的多次写事件。
const DefaultWatchDebounce = 200 * time.Millisecond

// ReloadFunc 接收重新加载的结果：成功时 err 为 nil，失败时 cfg 为 nil。
type ReloadFunc func(cfg *Config, err error)

// Watcher 监听配置文件变化并重新执行 Load。它监听父目录而不是文件本身，
// 这样“写临时文件再 rename”的保存方式也能被感知。
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	path      string
	debounce  time.Duration
}

// NewWatcher 为 path 创建监听器，debounce <= 0 时使用 DefaultWatchDebounce。
func NewWatcher(path string, debounce time.Duration) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("无法解析配置路径: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("创建配置监听失败: %w", err)
	}
	if err := fsWatcher.Add(filepath.Dir(abs)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("监听配置目录失败: %w", err)
	}

	return &Watcher{fsWatcher: fsWatcher, path: abs, debounce: debounce}, nil
}

// Path 返回被监听的配置文件绝对路径。
func (w *Watcher) Path() string {
	return w.path
}

// Run 阻塞直到 ctx 取消，期间每次文件变化（去抖后）调用一次 onReload。
func (w *Watcher) Run(ctx context.Context, onReload ReloadFunc) error {
	defer w.fsWatcher.Close()

	name := filepath.Base(w.path)
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(w.debounce)

		case <-timer.C:
			cfg, err := Load(w.path)
			onReload(cfg, err)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			onReload(nil, fmt.Errorf("配置监听出错: %w", err))
		}
	}
}
