package cache

import (
	"context"
	"sync"
	"time"
)

// NewMemoryStore 返回进程内存实现，主要用于测试以及嵌入场景；进程退出后数据即丢失。
func NewMemoryStore(name string) Store {
	if name == "" {
		name = "memory"
	}
	return &memoryStore{
		name:   name,
		groups: make(map[string]struct{}),
		docs:   make(map[memKey][]byte),
		locks:  make(map[memKey]time.Time),
	}
}

type memoryStore struct {
	name string

	mu     sync.Mutex
	groups map[string]struct{}
	docs   map[memKey][]byte
	locks  map[memKey]time.Time
}

// memKey 以 (group, key) 二元组作为条目标识。
type memKey struct {
	group, key string
}

func (s *memoryStore) Root() string {
	return s.name
}

func (s *memoryStore) EnsureGroup(ctx context.Context, group string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateName(group); err != nil {
		return err
	}
	s.mu.Lock()
	s.groups[group] = struct{}{}
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Read(ctx context.Context, group, key string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validatePair(group, key); err != nil {
		return nil, err
	}

	s.mu.Lock()
	raw, ok := s.docs[memKey{group: group, key: key}]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decodeDocument(raw)
}

func (s *memoryStore) Write(ctx context.Context, group, key string, doc *Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validatePair(group, key); err != nil {
		return err
	}

	raw, err := encodeDocument(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[group]; !ok {
		return ErrNotFound
	}
	s.docs[memKey{group: group, key: key}] = raw
	return nil
}

func (s *memoryStore) Exists(ctx context.Context, group, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := validatePair(group, key); err != nil {
		return false, err
	}
	s.mu.Lock()
	_, ok := s.docs[memKey{group: group, key: key}]
	s.mu.Unlock()
	return ok, nil
}

func (s *memoryStore) CreateLock(ctx context.Context, group, key string, createdAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validatePair(group, key); err != nil {
		return err
	}

	k := memKey{group: group, key: key}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.locks[k]; held {
		return ErrLockHeld
	}
	s.locks[k] = time.Unix(createdAt.Unix(), 0)
	return nil
}

func (s *memoryStore) ReadLock(ctx context.Context, group, key string) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	if err := validatePair(group, key); err != nil {
		return time.Time{}, err
	}
	s.mu.Lock()
	createdAt, ok := s.locks[memKey{group: group, key: key}]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, ErrNotFound
	}
	return createdAt, nil
}

func (s *memoryStore) RemoveLock(ctx context.Context, group, key string) error {
	if err := validatePair(group, key); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.locks, memKey{group: group, key: key})
	s.mu.Unlock()
	return nil
}
