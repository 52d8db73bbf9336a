package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// 支持的存储后端。
const (
	BackendFS     = "fs"
	BackendSQLite = "sqlite"
)

// 空数据策略：allow 视为正常数据，fail 视为回源失败。
const (
	EmptyPayloadAllow = "allow"
	EmptyPayloadFail  = "fail"
)

// GlobalConfig 描述全局运行时行为，所有分组共享同一份参数。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	StorageBackend  string   `mapstructure:"StorageBackend"`
	CacheRoot       string   `mapstructure:"CacheRoot"`
	UpdateInterval  Duration `mapstructure:"UpdateInterval"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
	EmptyPayload    string   `mapstructure:"EmptyPayload"`
}

// GroupConfig 描述一个缓存分组及其回源方式。
type GroupConfig struct {
	Name        string            `mapstructure:"Name"`
	Type        string            `mapstructure:"Type"`
	Description string            `mapstructure:"Description"`
	Upstream    string            `mapstructure:"Upstream"`
	Select      string            `mapstructure:"Select"`
	Headers     map[string]string `mapstructure:"Headers"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig  `mapstructure:",squash"`
	Groups []GroupConfig `mapstructure:"Group"`
}

// GroupNames 返回所有分组名称，供启动日志使用。
func GroupNames(groups []GroupConfig) []string {
	if len(groups) == 0 {
		return nil
	}
	result := make([]string, len(groups))
	for i, g := range groups {
		result[i] = fmt.Sprintf("%s:%s", g.Name, g.Type)
	}
	return result
}
