package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cache_groups (
	name TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS cache_documents (
	grp  TEXT NOT NULL,
	key  TEXT NOT NULL,
	body BLOB NOT NULL,
	PRIMARY KEY (grp, key)
);
CREATE TABLE IF NOT EXISTS cache_locks (
	grp        TEXT NOT NULL,
	key        TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (grp, key)
);`

// SQLiteStore 将文档与锁标记保存在单个 SQLite 文件中，适用于没有共享目录、
// 但多个进程可以访问同一数据库文件的部署。锁通过主键冲突实现排他创建。
type SQLiteStore struct {
	path string
	db   *sql.DB
}

// NewSQLiteStore 打开（必要时创建）path 指向的数据库。path 所在目录必须已存在。
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrUnusableRoot)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve cache database: %w", err)
	}
	info, err := os.Stat(filepath.Dir(abs))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnusableRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrUnusableRoot, filepath.Dir(abs))
	}

	dsn := "file:" + abs + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: init schema: %v", ErrUnusableRoot, err)
	}

	return &SQLiteStore{path: abs, db: db}, nil
}

// Close 释放数据库连接。
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Root() string {
	return s.path
}

func (s *SQLiteStore) EnsureGroup(ctx context.Context, group string) error {
	if err := ValidateName(group); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO cache_groups (name) VALUES (?)`, group)
	return err
}

func (s *SQLiteStore) Read(ctx context.Context, group, key string) (*Document, error) {
	if err := validatePair(group, key); err != nil {
		return nil, err
	}

	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM cache_documents WHERE grp = ? AND key = ?`, group, key,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeDocument(raw)
}

func (s *SQLiteStore) Write(ctx context.Context, group, key string, doc *Document) error {
	if err := validatePair(group, key); err != nil {
		return err
	}
	raw, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cache_documents (grp, key, body) VALUES (?, ?, ?)
		 ON CONFLICT (grp, key) DO UPDATE SET body = excluded.body`,
		group, key, raw,
	)
	return err
}

func (s *SQLiteStore) Exists(ctx context.Context, group, key string) (bool, error) {
	if err := validatePair(group, key); err != nil {
		return false, err
	}
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM cache_documents WHERE grp = ? AND key = ?`, group, key,
	).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) CreateLock(ctx context.Context, group, key string, createdAt time.Time) error {
	if err := validatePair(group, key); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO cache_locks (grp, key, created_at) VALUES (?, ?, ?)`,
		group, key, createdAt.Unix(),
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrLockHeld
	}
	return nil
}

func (s *SQLiteStore) ReadLock(ctx context.Context, group, key string) (time.Time, error) {
	if err := validatePair(group, key); err != nil {
		return time.Time{}, err
	}
	var seconds int64
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at FROM cache_locks WHERE grp = ? AND key = ?`, group, key,
	).Scan(&seconds)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, err
	}
	return time.Unix(seconds, 0), nil
}

func (s *SQLiteStore) RemoveLock(ctx context.Context, group, key string) error {
	if err := validatePair(group, key); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_locks WHERE grp = ? AND key = ?`, group, key)
	return err
}
