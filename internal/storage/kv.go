// Package storage 提供基于嵌入式 SQLite 的键值存储。
//
// 每个 Store 对应一组 JSON 记录，语义与前端 IndexedDB 的 object store 一致：
// 按 key 覆盖写入，最后一次写入生效。
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	_ "modernc.org/sqlite"
)

// Store 数据分区名
type Store string

const (
	Config        Store = "config"
	Chats         Store = "chats"
	Resources     Store = "resources"
	Memories      Store = "memories"
	Tokens        Store = "tokens"
	Notifications Store = "notifications"
)

// BackupVersion 备份文件格式版本
const BackupVersion = 16.24

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("storage: record not found")
	// ErrUnknownStore 未知的数据分区
	ErrUnknownStore = errors.New("storage: unknown store")
)

var stores = []Store{Config, Chats, Resources, Memories, Tokens, Notifications}

// Stores 返回所有数据分区。
func Stores() []Store {
	return slices.Clone(stores)
}

// Known 报告分区名是否合法。
func (s Store) Known() bool {
	return slices.Contains(stores, s)
}

// DB 是 SQLite 上的键值存储，只使用一个连接。
type DB struct {
	db *sql.DB
}

// Open 打开（必要时创建）数据库文件，path 为 ":memory:" 时使用内存库。
func Open(path string) (*DB, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// 内存库每个连接都是独立的数据库。
	db.SetMaxOpenConns(1)

	const schema = `
	CREATE TABLE IF NOT EXISTS kv (
		store TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (store, key)
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &DB{db: db}, nil
}

// Close 关闭数据库。
func (d *DB) Close() error {
	return d.db.Close()
}

// Get 读取一条记录并解码到 v。
func (d *DB) Get(ctx context.Context, store Store, key string, v any) error {
	raw, err := d.GetRaw(ctx, store, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s/%s: %w", store, key, err)
	}
	return nil
}

// GetRaw 读取一条记录的原始 JSON。
func (d *DB) GetRaw(ctx context.Context, store Store, key string) (json.RawMessage, error) {
	if !store.Known() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStore, store)
	}

	var value string
	err := d.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE store = ? AND key = ?`, string(store), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", store, key, err)
	}
	return json.RawMessage(value), nil
}

// Put 编码 v 并覆盖写入。
func (d *DB) Put(ctx context.Context, store Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", store, key, err)
	}
	return d.PutRaw(ctx, store, key, raw)
}

// PutRaw 覆盖写入原始 JSON。
func (d *DB) PutRaw(ctx context.Context, store Store, key string, raw json.RawMessage) error {
	return putRaw(ctx, d.db, store, key, raw)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func putRaw(ctx context.Context, db execer, store Store, key string, raw json.RawMessage) error {
	if !store.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownStore, store)
	}
	if !json.Valid(raw) {
		return fmt.Errorf("put %s/%s: invalid json", store, key)
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO kv (store, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(store, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		string(store), key, string(raw), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", store, key, err)
	}
	return nil
}

// Delete 删除一条记录，不存在时不报错。
func (d *DB) Delete(ctx context.Context, store Store, key string) error {
	if !store.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownStore, store)
	}
	if _, err := d.db.ExecContext(ctx, `DELETE FROM kv WHERE store = ? AND key = ?`, string(store), key); err != nil {
		return fmt.Errorf("delete %s/%s: %w", store, key, err)
	}
	return nil
}

// Keys 按 key 排序返回分区内所有 key。
func (d *DB) Keys(ctx context.Context, store Store) ([]string, error) {
	if !store.Known() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStore, store)
	}

	rows, err := d.db.QueryContext(ctx, `SELECT key FROM kv WHERE store = ? ORDER BY key`, string(store))
	if err != nil {
		return nil, fmt.Errorf("keys %s: %w", store, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// All 返回分区内所有记录的原始 JSON。
func (d *DB) All(ctx context.Context, store Store) (map[string]json.RawMessage, error) {
	if !store.Known() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStore, store)
	}

	rows, err := d.db.QueryContext(ctx, `SELECT key, value FROM kv WHERE store = ?`, string(store))
	if err != nil {
		return nil, fmt.Errorf("all %s: %w", store, err)
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		out[key] = json.RawMessage(value)
	}
	return out, rows.Err()
}
