package orchestrator

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Kind 区分 Service 失败的原因。
type Kind string

const (
	KindCacheUnavailable       Kind = "cache_unavailable"
	KindDirectoryCreateFailure Kind = "directory_create_failure"
	KindFetchFailure           Kind = "fetch_failure"
	KindUnknownGroup           Kind = "unknown_group"
	KindInvalidKey             Kind = "invalid_key"
)

const (
	msgCacheUnavailable = "Cache directory problem"
	msgDirectoryCreate  = "Impossible to create cache"
	msgFetchFailure     = "Resource get failure"
	msgUnknownGroup     = "Unknown resource group"
	msgInvalidKey       = "Invalid resource key"
)

// 供 errors.Is 使用的哨兵值，只比较 Kind。
var (
	ErrCacheUnavailable       = &ServiceError{Kind: KindCacheUnavailable}
	ErrDirectoryCreateFailure = &ServiceError{Kind: KindDirectoryCreateFailure}
	ErrFetchFailure           = &ServiceError{Kind: KindFetchFailure}
	ErrUnknownGroup           = &ServiceError{Kind: KindUnknownGroup}
	ErrInvalidKey             = &ServiceError{Kind: KindInvalidKey}
)

// ServiceError 是 Service 返回的结构化错误，序列化后形如
// {"type":"error","message":"...","code":500}。
type ServiceError struct {
	Kind    Kind
	Message string
	Code    int
	Err     error
}

func newServiceError(kind Kind, message string, code int, cause error) *ServiceError {
	if code == 0 {
		code = http.StatusInternalServerError
	}
	return &ServiceError{Kind: kind, Message: message, Code: code, Err: cause}
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%d): %v", e.Kind, e.Message, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s (%d)", e.Kind, e.Message, e.Code)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is 让 errors.Is(err, ErrFetchFailure) 之类的判断只比较错误类别。
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	return ok && t.Kind == e.Kind
}

// MarshalJSON 输出与文档同级的错误结构，cause 不对外暴露。
func (e *ServiceError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    string `json:"type"`
		Kind    Kind   `json:"kind"`
		Message string `json:"message"`
		Code    int    `json:"code"`
	}{
		Type:    "error",
		Kind:    e.Kind,
		Message: e.Message,
		Code:    e.Code,
	})
}
