// Package file 注册 "file" 回源类型：按路径模板读取本地 JSON 文件。适合由其他
// 任务（cron、同步脚本）产出原始数据、由缓存层负责降级与新鲜度的场景。
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/any-hub/stalecache/internal/fetchkind"
	"github.com/any-hub/stalecache/internal/group"
)

func init() {
	fetchkind.MustRegister(fetchkind.Kind{
		Key:              "file",
		Description:      "Read a JSON document from a local path template",
		ValidateUpstream: validateUpstream,
		Build:            Build,
	})
}

// Build 构造 file 回源函数。参数中出现路径分隔符会被拒绝，避免逃逸出模板目录。
func Build(spec fetchkind.Spec) (group.FetchFunc, error) {
	if err := validateUpstream(spec.Upstream); err != nil {
		return nil, fmt.Errorf("group %s: %w", spec.Name, err)
	}

	return func(ctx context.Context, args ...string) (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, arg := range args {
			if strings.ContainsAny(arg, `/\`) || strings.Contains(arg, "..") {
				return nil, group.Errorf(http.StatusBadRequest, "invalid argument %q", arg)
			}
		}

		path := filepath.Clean(fetchkind.Expand(spec.Upstream, args, nil))
		body, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, group.NewFetchError("resource not found")
			}
			return nil, group.Errorf(http.StatusInternalServerError, "read source file")
		}
		return fetchkind.Extract(body, spec.Select)
	}, nil
}

func validateUpstream(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("缺少文件路径模板")
	}
	return nil
}
