package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/stalecache/internal/cache"
	"github.com/any-hub/stalecache/internal/group"
	"github.com/any-hub/stalecache/internal/logging"
)

// EmptyPayloadPolicy 决定 null 以外的“空”数据（""、[]、{}）是否算作回源成功。
type EmptyPayloadPolicy string

const (
	EmptyPayloadAllow EmptyPayloadPolicy = "allow"
	EmptyPayloadFail  EmptyPayloadPolicy = "fail"
)

// ParseEmptyPayloadPolicy 将配置字符串转换为策略，空字符串视为 allow。
func ParseEmptyPayloadPolicy(raw string) (EmptyPayloadPolicy, error) {
	switch policy := EmptyPayloadPolicy(strings.ToLower(strings.TrimSpace(raw))); policy {
	case "", EmptyPayloadAllow:
		return EmptyPayloadAllow, nil
	case EmptyPayloadFail:
		return EmptyPayloadFail, nil
	default:
		return "", fmt.Errorf("unknown empty payload policy %q", raw)
	}
}

var (
	errNilPayload   = errors.New("fetch returned no payload")
	errEmptyPayload = errors.New("fetch returned an empty payload")
	errInvalidJSON  = errors.New("fetch returned invalid JSON")
)

// Option 调整 Orchestrator 的可选行为。
type Option func(*Orchestrator)

// WithLogger 注入结构化日志，默认丢弃所有输出。
func WithLogger(logger *logrus.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock 替换时钟，主要用于测试。
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithCacheRoot 记录缓存位置，仅在 store 为 nil 时用于诊断输出。
func WithCacheRoot(root string) Option {
	return func(o *Orchestrator) {
		o.root = root
	}
}

// WithEmptyPayloadPolicy 设置空数据策略。
func WithEmptyPayloadPolicy(policy EmptyPayloadPolicy) Option {
	return func(o *Orchestrator) {
		o.emptyPolicy = policy
	}
}

// Orchestrator 负责“命中 → 等待 → 重算 → 降级”的决策，是缓存文档唯一的写入方。
// 它不在内存中保留任何条目，每次调用都重新读取 Store。
type Orchestrator struct {
	store       cache.Store
	groups      *group.Registry
	locks       *cache.LockCoordinator
	logger      *logrus.Logger
	now         func() time.Time
	emptyPolicy EmptyPayloadPolicy
	root        string

	mu       sync.RWMutex
	interval time.Duration
}

// New 基于已打开的 Store 构建 Orchestrator。store 为 nil 时缓存永久不可用，
// 所有 Service 调用都返回 CacheUnavailable。
func New(store cache.Store, groups *group.Registry, interval time.Duration, opts ...Option) *Orchestrator {
	if groups == nil {
		groups = group.NewRegistry()
	}
	o := &Orchestrator{
		store:       store,
		groups:      groups,
		logger:      logging.Discard(),
		now:         time.Now,
		emptyPolicy: EmptyPayloadAllow,
	}
	for _, opt := range opts {
		opt(o)
	}
	if store != nil {
		o.root = store.Root()
		o.locks = cache.NewLockCoordinator(store, 0, o.now)
	}
	o.SetUpdateInterval(interval)
	return o
}

// Configure 以 root 目录构建文件缓存；root 不是可用目录时记录告警并返回禁用缓存的实例。
func Configure(root string, interval time.Duration, groups *group.Registry, opts ...Option) *Orchestrator {
	store, err := cache.NewStore(root)
	o := New(store, groups, interval, opts...)
	if err != nil {
		o.root = root
		o.logger.WithError(err).WithField("cache_root", root).Warn("cache_unavailable")
	}
	return o
}

// SetUpdateInterval 调整新鲜度窗口，并同步把锁超时设为窗口的一半。
func (o *Orchestrator) SetUpdateInterval(interval time.Duration) {
	if interval < 0 {
		interval = 0
	}
	o.mu.Lock()
	o.interval = interval
	o.mu.Unlock()
	if o.locks != nil {
		o.locks.SetTimeout(interval / 2)
	}
}

// UpdateInterval 返回当前的新鲜度窗口。
func (o *Orchestrator) UpdateInterval() time.Duration {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.interval
}

// CacheRoot 返回配置的缓存根位置。
func (o *Orchestrator) CacheRoot() string {
	return o.root
}

// Groups 返回分组注册表，供诊断接口使用。
func (o *Orchestrator) Groups() *group.Registry {
	return o.groups
}

// Service 返回 (group, key) 对应的文档，必要时调用分组的回源函数。args 为空时以 key
// 作为唯一参数。回源失败且已有旧数据时返回 status=old 的文档而不是错误；
// 只有在没有任何可用数据时才返回 *ServiceError。
func (o *Orchestrator) Service(ctx context.Context, name, key string, args ...string) (*cache.Document, error) {
	if o.store == nil {
		return nil, newServiceError(KindCacheUnavailable, msgCacheUnavailable, http.StatusInternalServerError, nil)
	}
	g, ok := o.groups.Resolve(name)
	if !ok {
		return nil, newServiceError(KindUnknownGroup, msgUnknownGroup, http.StatusNotFound, nil)
	}
	if err := cache.ValidateName(key); err != nil {
		return nil, newServiceError(KindInvalidKey, msgInvalidKey, http.StatusBadRequest, err)
	}

	log := o.logger.WithFields(logging.ServiceFields(g.Name, key))

	if err := o.store.EnsureGroup(ctx, g.Name); err != nil {
		log.WithError(err).Error("group_create_failed")
		return nil, newServiceError(KindDirectoryCreateFailure, msgDirectoryCreate, http.StatusInternalServerError, err)
	}

	current := o.read(ctx, g.Name, key, log)
	pending := o.isPending(ctx, g.Name, key, log)

	if current != nil {
		if pending {
			log.Debug("cache_pending")
			return pendingView(current), nil
		}
		expireAt := current.UpdatedAt().Add(o.UpdateInterval())
		if !o.clock().After(expireAt) {
			log.Debug("cache_hit")
			return current, nil
		}
	}

	owned, err := o.locks.Acquire(ctx, g.Name, key)
	if err != nil {
		log.WithError(err).Warn("lock_acquire_failed")
	}
	if owned {
		defer o.release(ctx, g.Name, key, log)
	} else if err == nil {
		// 另一个调用方在检查之后抢到了锁。
		if latest := o.read(ctx, g.Name, key, log); latest != nil {
			log.Debug("cache_pending")
			return pendingView(latest), nil
		}
	}

	if len(args) == 0 {
		args = []string{key}
	}
	log.WithField("lock_owned", owned).Info("recompute")

	payload, fetchErr := g.Fetch(ctx, args...)
	data, failure := o.encode(payload, fetchErr)
	if failure != nil {
		return o.fallback(ctx, g.Name, key, failure, log)
	}

	now := o.clock().Unix()
	fresh := &cache.Document{
		Data:    data,
		Status:  cache.StatusLast,
		Updated: now,
		Date:    now,
	}
	if err := o.store.Write(ctx, g.Name, key, fresh); err != nil {
		log.WithError(err).Error("cache_write_failed")
	}
	return fresh, nil
}

// Lookup 只读地返回已缓存的文档，不检查锁与新鲜度。不存在时返回 cache.ErrNotFound。
func (o *Orchestrator) Lookup(ctx context.Context, name, key string) (*cache.Document, error) {
	if o.store == nil {
		return nil, cache.ErrNotFound
	}
	if g, ok := o.groups.Resolve(name); ok {
		name = g.Name
	}
	return o.store.Read(ctx, name, key)
}

// Get 返回已缓存文档的 JSON：includeMetadata 为 true 时是完整文档，否则只有 data。
func (o *Orchestrator) Get(ctx context.Context, name, key string, includeMetadata bool) (json.RawMessage, error) {
	doc, err := o.Lookup(ctx, name, key)
	if err != nil {
		return nil, err
	}
	if includeMetadata {
		return json.Marshal(doc)
	}
	if len(doc.Data) == 0 {
		return json.RawMessage("null"), nil
	}
	return doc.Data, nil
}

// fallback 在回源失败时提供旧数据：标记为 old，并把 updated 回拨半个窗口，
// 使下一次重试早于完整窗口到来。没有旧数据时返回错误且不创建文件。
func (o *Orchestrator) fallback(ctx context.Context, name, key string, failure *ServiceError, log *logrus.Entry) (*cache.Document, error) {
	log = log.WithFields(logrus.Fields{"code": failure.Code, "reason": failure.Message})
	if failure.Err != nil {
		log = log.WithError(failure.Err)
	}

	prior := o.read(ctx, name, key, log)
	if prior == nil {
		log.Warn("fetch_failed")
		return nil, failure
	}

	prior.Status = cache.StatusOld
	prior.Updated = o.clock().Add(-o.UpdateInterval() / 2).Unix()
	if err := o.store.Write(ctx, name, key, prior); err != nil {
		log.WithError(err).Error("cache_write_failed")
	}
	log.Warn("stale_served")
	return prior, nil
}

func (o *Orchestrator) encode(payload any, fetchErr error) (json.RawMessage, *ServiceError) {
	if fetchErr != nil {
		var fe *group.FetchError
		if errors.As(fetchErr, &fe) {
			return nil, newServiceError(KindFetchFailure, fe.Message, fe.Code, fetchErr)
		}
		return nil, newServiceError(KindFetchFailure, msgFetchFailure, http.StatusInternalServerError, fetchErr)
	}
	if payload == nil {
		return nil, newServiceError(KindFetchFailure, msgFetchFailure, http.StatusInternalServerError, errNilPayload)
	}

	var data []byte
	switch v := payload.(type) {
	case json.RawMessage:
		if len(bytes.TrimSpace(v)) > 0 && !json.Valid(v) {
			return nil, newServiceError(KindFetchFailure, msgFetchFailure, http.StatusInternalServerError, errInvalidJSON)
		}
		data = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, newServiceError(KindFetchFailure, msgFetchFailure, http.StatusInternalServerError, err)
		}
		data = encoded
	}

	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0:
		return nil, newServiceError(KindFetchFailure, msgFetchFailure, http.StatusInternalServerError, errEmptyPayload)
	case bytes.Equal(data, []byte("null")):
		return nil, newServiceError(KindFetchFailure, msgFetchFailure, http.StatusInternalServerError, errNilPayload)
	case o.emptyPolicy == EmptyPayloadFail && isEmptyJSON(data):
		return nil, newServiceError(KindFetchFailure, msgFetchFailure, http.StatusInternalServerError, errEmptyPayload)
	}
	return append(json.RawMessage(nil), data...), nil
}

func (o *Orchestrator) read(ctx context.Context, name, key string, log *logrus.Entry) *cache.Document {
	doc, err := o.store.Read(ctx, name, key)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			log.WithError(err).Warn("cache_read_failed")
		}
		return nil
	}
	return doc
}

func (o *Orchestrator) isPending(ctx context.Context, name, key string, log *logrus.Entry) bool {
	pending, expired, err := o.locks.IsPending(ctx, name, key)
	if expired {
		log.Info("lock_expired")
	}
	if err != nil {
		log.WithError(err).Warn("lock_check_failed")
	}
	return pending
}

func (o *Orchestrator) release(ctx context.Context, name, key string, log *logrus.Entry) {
	if err := o.locks.Release(context.WithoutCancel(ctx), name, key); err != nil {
		log.WithError(err).Warn("lock_release_failed")
	}
}

func (o *Orchestrator) clock() time.Time {
	return time.Unix(o.now().Unix(), 0)
}

func pendingView(doc *cache.Document) *cache.Document {
	view := doc.Clone()
	view.Status = cache.StatusPending
	return view
}

func isEmptyJSON(data []byte) bool {
	switch string(data) {
	case `""`, `[]`, `{}`:
		return true
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}
