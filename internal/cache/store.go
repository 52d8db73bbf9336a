package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Status 描述文档在返回给调用方时的新鲜度。
type Status string

const (
	// StatusLast 表示刚刚成功回源得到的数据。
	StatusLast Status = "last"
	// StatusPending 表示其他进程正在重算，返回的可能是旧数据；仅在读取时计算，不落盘。
	StatusPending Status = "pending"
	// StatusOld 表示回源失败，继续提供上一次成功的数据。
	StatusOld Status = "old"
)

// Document 是落盘的最小单元，由 (group, key) 唯一定位。
type Document struct {
	Data    json.RawMessage `json:"data,omitempty"`
	Status  Status          `json:"status"`
	Updated int64           `json:"updated"`
	Date    int64           `json:"date"`
}

// Clone 返回深拷贝，避免调用方修改共享的 Data 切片。
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	cp := *d
	if d.Data != nil {
		cp.Data = append(json.RawMessage(nil), d.Data...)
	}
	return &cp
}

// Stale 表示当前返回的是降级数据（status=old）。
func (d *Document) Stale() bool {
	return d != nil && d.Status == StatusOld
}

// UpdatedAt 返回新鲜度窗口的起点。
func (d *Document) UpdatedAt() time.Time { return time.Unix(d.Updated, 0) }

// ProducedAt 返回数据真正产生的时间，降级写入不会改变它。
func (d *Document) ProducedAt() time.Time { return time.Unix(d.Date, 0) }

// Store 负责管理缓存文档与锁标记的读写。磁盘布局遵循：
//
//	<CacheRoot>/<group>/<key>.json         # 文档
//	<CacheRoot>/<group>/<key>.json.lock    # 锁标记，内容为创建时间（秒）
//
// 所有方法每次都重新访问底层存储，不在内存中保留任何状态。
type Store interface {
	LockStore

	// Root 返回存储根位置（目录或数据库文件路径）。
	Root() string

	// EnsureGroup 在首次使用时创建分组目录，已存在时直接返回。
	EnsureGroup(ctx context.Context, group string) error

	// Read 返回完整文档；不存在时返回 ErrNotFound。
	Read(ctx context.Context, group, key string) (*Document, error)

	// Write 整体覆盖文档。实现需保证其他进程不会读到半写入的内容。
	Write(ctx context.Context, group, key string, doc *Document) error

	// Exists 判断文档是否存在。
	Exists(ctx context.Context, group, key string) (bool, error)
}

// LockStore 提供锁标记的原始操作，仅供 LockCoordinator 使用。
type LockStore interface {
	// CreateLock 以排他方式创建锁标记，已存在时返回 ErrLockHeld。
	CreateLock(ctx context.Context, group, key string, createdAt time.Time) error

	// ReadLock 返回锁标记的创建时间；不存在时返回 ErrNotFound，内容无法解析时返回 ErrCorruptLock。
	ReadLock(ctx context.Context, group, key string) (time.Time, error)

	// RemoveLock 删除锁标记，不存在时不视为错误。
	RemoveLock(ctx context.Context, group, key string) error
}

var (
	// ErrNotFound 表示缓存文档或锁标记不存在。
	ErrNotFound = errors.New("cache entry not found")
	// ErrLockHeld 表示锁标记已被其他调用方创建。
	ErrLockHeld = errors.New("cache lock already held")
	// ErrCorruptLock 表示锁标记内容不是合法的秒级时间戳。
	ErrCorruptLock = errors.New("cache lock marker is corrupt")
	// ErrInvalidName 表示 group 或 key 不能安全地映射为存储路径。
	ErrInvalidName = errors.New("invalid cache name")
	// ErrUnusableRoot 表示缓存根目录不存在或不可用。
	ErrUnusableRoot = errors.New("cache root is not a usable directory")
)
