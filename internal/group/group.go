package group

import (
	"context"
	"fmt"
	"net/http"
)

// FetchFunc 负责为某个分组产出数据。返回 nil 或 *FetchError 都视为回源失败；
// 其它返回值会被编码为 JSON 写入缓存。
type FetchFunc func(ctx context.Context, args ...string) (any, error)

// Group 描述一个分组及其回源能力。
type Group struct {
	Name        string
	Kind        string
	Description string
	Fetch       FetchFunc
}

// FetchError 是回源函数上报的结构化错误（消息 + 状态码）。
type FetchError struct {
	Message string
	Code    int
}

// NewFetchError 创建默认状态码为 404 的错误。
func NewFetchError(message string) *FetchError {
	return &FetchError{Message: message, Code: http.StatusNotFound}
}

// Errorf 以格式化消息和指定状态码创建 FetchError。
func Errorf(code int, format string, args ...any) *FetchError {
	return &FetchError{Message: fmt.Sprintf(format, args...), Code: code}
}

// WithCode 覆盖状态码并返回自身，便于链式调用。
func (e *FetchError) WithCode(code int) *FetchError {
	e.Code = code
	return e
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed (%d): %s", e.Code, e.Message)
}
