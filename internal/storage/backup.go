package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Backup 完整导出的数据，Stores 中缺失的分区在导入时保持不变。
type Backup struct {
	Version   float64                              `json:"version"`
	Timestamp int64                                `json:"timestamp"`
	Stores    map[Store]map[string]json.RawMessage `json:"stores"`
}

// Export 导出所有分区。
func (d *DB) Export(ctx context.Context) (*Backup, error) {
	b := &Backup{
		Version:   BackupVersion,
		Timestamp: time.Now().UnixMilli(),
		Stores:    make(map[Store]map[string]json.RawMessage, len(stores)),
	}
	for _, s := range stores {
		records, err := d.All(ctx, s)
		if err != nil {
			return nil, err
		}
		b.Stores[s] = records
	}
	return b, nil
}

// Import 在一个事务里整体替换备份中列出的分区。
func (d *DB) Import(ctx context.Context, b *Backup) error {
	if b == nil {
		return fmt.Errorf("import: empty backup")
	}
	for s := range b.Stores {
		if !s.Known() {
			return fmt.Errorf("%w: %q", ErrUnknownStore, s)
		}
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	defer tx.Rollback()

	for s, records := range b.Stores {
		if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE store = ?`, string(s)); err != nil {
			return fmt.Errorf("import: clear %s: %w", s, err)
		}
		for key, raw := range records {
			if err := putRaw(ctx, tx, s, key, raw); err != nil {
				return fmt.Errorf("import: %w", err)
			}
		}
	}

	return tx.Commit()
}
