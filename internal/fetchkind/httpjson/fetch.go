// Package httpjson 注册 "http" 回源类型：按 URL 模板请求上游 JSON 接口，
// 可选地用 gjson 路径截取子文档后写入缓存。
package httpjson

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/any-hub/stalecache/internal/fetchkind"
	"github.com/any-hub/stalecache/internal/group"
)

const maxBodyBytes = 16 << 20

func init() {
	fetchkind.MustRegister(fetchkind.Kind{
		Key:              "http",
		Description:      "GET a JSON document from an upstream URL template",
		ValidateUpstream: validateUpstream,
		Build:            Build,
	})
}

// Build 构造 http 回源函数。Spec.Client 为空时使用 30s 超时的默认客户端。
func Build(spec fetchkind.Spec) (group.FetchFunc, error) {
	if err := validateUpstream(spec.Upstream); err != nil {
		return nil, fmt.Errorf("group %s: %w", spec.Name, err)
	}
	client := spec.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	headers := make(http.Header, len(spec.Headers))
	for k, v := range spec.Headers {
		headers.Set(k, v)
	}

	return func(ctx context.Context, args ...string) (any, error) {
		target := fetchkind.Expand(spec.Upstream, args, url.PathEscape)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, group.Errorf(http.StatusBadRequest, "invalid upstream url")
		}
		for k, values := range headers {
			req.Header[k] = append([]string(nil), values...)
		}
		if req.Header.Get("Accept") == "" {
			req.Header.Set("Accept", "application/json")
		}

		resp, err := client.Do(req)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, group.Errorf(http.StatusGatewayTimeout, "upstream timeout")
			}
			return nil, group.Errorf(http.StatusBadGateway, "upstream unreachable")
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
			return nil, group.Errorf(resp.StatusCode, "upstream returned %d", resp.StatusCode)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, group.Errorf(http.StatusBadGateway, "read upstream body")
		}
		return fetchkind.Extract(body, spec.Select)
	}, nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(fetchkind.Expand(raw, []string{"x"}, nil))
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}
