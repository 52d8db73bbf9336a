package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/any-hub/stalecache/internal/config"
	"github.com/any-hub/stalecache/internal/fetchkind"
	"github.com/any-hub/stalecache/internal/group"
)

// NewGroupRegistry 根据配置为每个 [[Group]] 构建回源函数并注册。调用方应在启动阶段
// 创建一次并复用；client 为所有 http 分组共享。
func NewGroupRegistry(cfg *config.Config, client *http.Client) (*group.Registry, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	registry := group.NewRegistry()
	for _, grp := range cfg.Groups {
		kind, ok := fetchkind.Resolve(grp.Type)
		if !ok {
			return nil, fmt.Errorf("group %s: fetch kind %s is not registered", grp.Name, grp.Type)
		}

		fetch, err := kind.Build(fetchkind.Spec{
			Name:     grp.Name,
			Upstream: grp.Upstream,
			Select:   grp.Select,
			Headers:  grp.Headers,
			Client:   client,
		})
		if err != nil {
			return nil, err
		}

		if err := registry.Register(group.Group{
			Name:        grp.Name,
			Kind:        kind.Key,
			Description: grp.Description,
			Fetch:       fetch,
		}); err != nil {
			return nil, err
		}
	}

	return registry, nil
}
