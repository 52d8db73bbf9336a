package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	documentSuffix = ".json"
	lockSuffix     = ".lock"
)

// NewStore 以 root 为根目录构建磁盘缓存。root 必须是已存在的目录，
// 否则返回 ErrUnusableRoot，调用方应将缓存视为永久不可用。
func NewStore(root string) (Store, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: empty path", ErrUnusableRoot)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve cache root: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnusableRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrUnusableRoot, abs)
	}

	return &fileStore{
		basePath: abs,
		locks:    make(map[string]*entryLock),
	}, nil
}

// fileStore 通过 entryLock 避免同一进程内对同一文档并发写入；跨进程依赖 rename 的原子性。
type fileStore struct {
	basePath string

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

func (s *fileStore) Root() string {
	return s.basePath
}

func (s *fileStore) EnsureGroup(ctx context.Context, group string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateName(group); err != nil {
		return err
	}

	dir := filepath.Join(s.basePath, group)
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("group path %s is not a directory", dir)
		}
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if err := os.Mkdir(dir, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return err
	}
	return nil
}

func (s *fileStore) Read(ctx context.Context, group, key string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filePath, err := s.documentPath(group, key)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	doc, err := decodeDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}
	return doc, nil
}

func (s *fileStore) Write(ctx context.Context, group, key string, doc *Document) error {
	filePath, err := s.documentPath(group, key)
	if err != nil {
		return err
	}

	payload, err := encodeDocument(doc)
	if err != nil {
		return err
	}

	unlock := s.lockEntry(filePath)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(filepath.Dir(filePath), ".cache-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(payload)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}

	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}

func (s *fileStore) Exists(ctx context.Context, group, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	filePath, err := s.documentPath(group, key)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// CreateLock 使用 O_EXCL 创建锁标记，保证“检查 + 创建”在文件系统层面是单步操作。
func (s *fileStore) CreateLock(ctx context.Context, group, key string, createdAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lockPath, err := s.lockPath(group, key)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrLockHeld
		}
		return err
	}

	_, err = f.WriteString(strconv.FormatInt(createdAt.Unix(), 10))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(lockPath)
		return err
	}
	return nil
}

func (s *fileStore) ReadLock(ctx context.Context, group, key string) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}

	lockPath, err := s.lockPath(group, key)
	if err != nil {
		return time.Time{}, err
	}

	raw, err := os.ReadFile(lockPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, err
	}
	return parseLockMarker(raw)
}

func (s *fileStore) RemoveLock(ctx context.Context, group, key string) error {
	lockPath, err := s.lockPath(group, key)
	if err != nil {
		return err
	}
	if err := os.Remove(lockPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *fileStore) lockEntry(filePath string) func() {
	s.mu.Lock()
	lock := s.locks[filePath]
	if lock == nil {
		lock = &entryLock{}
		s.locks[filePath] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, filePath)
		}
		s.mu.Unlock()
	}
}

func (s *fileStore) documentPath(group, key string) (string, error) {
	if err := validatePair(group, key); err != nil {
		return "", err
	}
	filePath := filepath.Join(s.basePath, group, key+documentSuffix)
	if !strings.HasPrefix(filePath, filepath.Join(s.basePath, group)+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path escapes cache root", ErrInvalidName)
	}
	return filePath, nil
}

func (s *fileStore) lockPath(group, key string) (string, error) {
	filePath, err := s.documentPath(group, key)
	if err != nil {
		return "", err
	}
	return filePath + lockSuffix, nil
}

// parseLockMarker 解析锁标记中的秒级时间戳，任何无法解析的内容都视为损坏。
func parseLockMarker(raw []byte) (time.Time, error) {
	seconds, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrCorruptLock, string(raw))
	}
	return time.Unix(seconds, 0), nil
}
