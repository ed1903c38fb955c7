package storage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Title string `json:"title"`
	Size  int    `json:"size"`
}

func openMemory(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPutGetOverwrite(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)

	require.NoError(t, db.Put(ctx, Resources, "r1", record{Title: "a", Size: 1}))
	require.NoError(t, db.Put(ctx, Resources, "r1", record{Title: "b", Size: 2}))

	var got record
	require.NoError(t, db.Get(ctx, Resources, "r1", &got))
	assert.Equal(t, record{Title: "b", Size: 2}, got)

	keys, err := db.Keys(ctx, Resources)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, keys)
}

func TestGetMissing(t *testing.T) {
	db := openMemory(t)
	var got record
	assert.ErrorIs(t, db.Get(context.Background(), Chats, "nope", &got), ErrNotFound)
}

func TestStoresAreIsolated(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)

	require.NoError(t, db.Put(ctx, Tokens, "k", "token"))
	_, err := db.GetRaw(ctx, Notifications, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUnknownStore(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)

	assert.ErrorIs(t, db.Put(ctx, Store("bogus"), "k", 1), ErrUnknownStore)
	_, err := db.Keys(ctx, Store("bogus"))
	assert.ErrorIs(t, err, ErrUnknownStore)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)

	require.NoError(t, db.Put(ctx, Memories, "m", record{Title: "x"}))
	require.NoError(t, db.Delete(ctx, Memories, "m"))
	require.NoError(t, db.Delete(ctx, Memories, "m"))

	all, err := db.All(ctx, Memories)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	src := openMemory(t)
	require.NoError(t, src.Put(ctx, Chats, "s1", []string{"hi"}))
	require.NoError(t, src.Put(ctx, Resources, "r1", record{Title: "doc"}))

	backup, err := src.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, 16.24, backup.Version)
	assert.Positive(t, backup.Timestamp)

	wire, err := json.Marshal(backup)
	require.NoError(t, err)

	dst := openMemory(t)
	require.NoError(t, dst.Put(ctx, Resources, "stale", record{Title: "old"}))

	var decoded Backup
	require.NoError(t, json.Unmarshal(wire, &decoded))
	require.NoError(t, dst.Import(ctx, &decoded))

	keys, err := dst.Keys(ctx, Resources)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, keys)

	var chat []string
	require.NoError(t, dst.Get(ctx, Chats, "s1", &chat))
	assert.Equal(t, []string{"hi"}, chat)
}

func TestImportKeepsUnlistedStores(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	require.NoError(t, db.Put(ctx, Tokens, "t", "device"))

	err := db.Import(ctx, &Backup{Stores: map[Store]map[string]json.RawMessage{
		Chats: {"s": json.RawMessage(`[]`)},
	}})
	require.NoError(t, err)

	var token string
	require.NoError(t, db.Get(ctx, Tokens, "t", &token))
	assert.Equal(t, "device", token)
}

func TestImportRejectsInvalidJSON(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	require.NoError(t, db.Put(ctx, Chats, "keep", 1))

	err := db.Import(ctx, &Backup{Stores: map[Store]map[string]json.RawMessage{
		Chats: {"bad": json.RawMessage(`{`)},
	}})
	require.Error(t, err)

	// 事务回滚后原数据保留
	var v int
	require.NoError(t, db.Get(ctx, Chats, "keep", &v))
	assert.Equal(t, 1, v)
}

func TestOpenFileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "chobits.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Put(context.Background(), Config, "app_state", map[string]string{"user": "hideki"}))
	require.NoError(t, db.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	var state map[string]string
	require.NoError(t, reopened.Get(context.Background(), Config, "app_state", &state))
	assert.Equal(t, "hideki", state["user"])
}
