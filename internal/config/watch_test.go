package config

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

const watchedConfig = `
CacheRoot = "./cache"
UpdateInterval = %d

[[Group]]
Name = "weather"
Upstream = "https://api.example.com/{key}"
`

func sprintfConfig(seconds int) string {
	return fmt.Sprintf(watchedConfig, seconds)
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeTempConfig(t, sprintfConfig(60))

	watcher, err := NewWatcher(path, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewWatcher 返回错误: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- watcher.Run(ctx, func(cfg *Config, err error) {
			if err == nil {
				reloaded <- cfg
			}
		})
	}()

	if err := os.WriteFile(path, []byte(sprintfConfig(120)), 0o600); err != nil {
		t.Fatalf("更新配置失败: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Global.UpdateInterval.DurationValue() != 2*time.Minute {
			t.Fatalf("应读取到新的 UpdateInterval, got %v", cfg.Global.UpdateInterval.DurationValue())
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("等待配置重载超时")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run 返回错误: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Run 未在取消后退出")
	}
}

func TestNewWatcherRejectsMissingDirectory(t *testing.T) {
	if _, err := NewWatcher("/nonexistent-dir/config.toml", 0); err == nil {
		t.Fatalf("不存在的目录应返回错误")
	}
}
