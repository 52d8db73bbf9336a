package config

import (
	"errors"
	"fmt"

	"github.com/any-hub/stalecache/internal/cache"
	"github.com/any-hub/stalecache/internal/fetchkind"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.CacheRoot == "" {
		return newFieldError("Global.CacheRoot", "不能为空")
	}
	switch g.StorageBackend {
	case BackendFS, BackendSQLite:
	default:
		return newFieldError("Global.StorageBackend", "仅支持 fs/sqlite")
	}
	if g.UpdateInterval.DurationValue() <= 0 {
		return newFieldError("Global.UpdateInterval", "必须大于 0")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	switch g.EmptyPayload {
	case EmptyPayloadAllow, EmptyPayloadFail:
	default:
		return newFieldError("Global.EmptyPayload", "仅支持 allow/fail")
	}

	if len(c.Groups) == 0 {
		return errors.New("至少需要配置一个 Group")
	}

	seenNames := map[string]struct{}{}
	for i := range c.Groups {
		grp := &c.Groups[i]
		if grp.Name == "" {
			return newFieldError("Group[].Name", "不能为空")
		}
		if err := cache.ValidateName(grp.Name); err != nil {
			return newFieldError(groupField(grp.Name, "Name"), "不能包含路径分隔符或以 . 开头")
		}
		if _, exists := seenNames[grp.Name]; exists {
			return newFieldError(groupField(grp.Name, "Name"), "重复")
		}
		seenNames[grp.Name] = struct{}{}

		kind, ok := fetchkind.Resolve(grp.Type)
		if !ok {
			return newFieldError(groupField(grp.Name, "Type"), fmt.Sprintf("未注册回源类型: %s", grp.Type))
		}
		if grp.Upstream == "" {
			return newFieldError(groupField(grp.Name, "Upstream"), "缺少回源地址")
		}
		if kind.ValidateUpstream != nil {
			if err := kind.ValidateUpstream(grp.Upstream); err != nil {
				return fmt.Errorf("%s: %w", groupField(grp.Name, "Upstream"), err)
			}
		}
	}

	return nil
}
