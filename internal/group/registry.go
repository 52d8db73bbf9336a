package group

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/any-hub/stalecache/internal/cache"
)

// Registry 保存分组定义，按名称（忽略大小写）查找。
type Registry struct {
	mu     sync.RWMutex
	groups map[string]Group
}

// NewRegistry 返回空注册表。
func NewRegistry() *Registry {
	return &Registry{groups: make(map[string]Group)}
}

// Register 将分组加入注册表，重复名称或缺少回源函数会返回错误。
func (r *Registry) Register(g Group) error {
	name := normalizeName(g.Name)
	if name == "" {
		return errors.New("group name is required")
	}
	if err := cache.ValidateName(name); err != nil {
		return fmt.Errorf("group %s: %w", g.Name, err)
	}
	if g.Fetch == nil {
		return fmt.Errorf("group %s: fetch function is required", name)
	}
	g.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.groups[name]; exists {
		return fmt.Errorf("group %s already registered", name)
	}
	r.groups[name] = g
	return nil
}

// MustRegister 在注册失败时 panic，适合启动阶段调用。
func (r *Registry) MustRegister(g Group) {
	if err := r.Register(g); err != nil {
		panic(err)
	}
}

// Resolve 返回指定名称的分组。
func (r *Registry) Resolve(name string) (Group, bool) {
	if r == nil {
		return Group{}, false
	}
	normalized := normalizeName(name)
	if normalized == "" {
		return Group{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.groups[normalized]
	return g, ok
}

// List 返回按名称排序的分组列表。
func (r *Registry) List() []Group {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.groups) == 0 {
		return nil
	}

	names := make([]string, 0, len(r.groups))
	for name := range r.groups {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]Group, 0, len(names))
	for _, name := range names {
		result = append(result, r.groups[name])
	}
	return result
}

// Names 返回所有已注册分组的名称，供诊断使用。
func (r *Registry) Names() []string {
	items := r.List()
	result := make([]string, len(items))
	for i, g := range items {
		result[i] = g.Name
	}
	return result
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
