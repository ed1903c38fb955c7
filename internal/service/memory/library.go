package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/zhouzirui/chobits/backend/internal/model/resource"
	"github.com/zhouzirui/chobits/backend/internal/storage"
)

// ErrNodeNotFound 资源不存在
var ErrNodeNotFound = errors.New("resource not found")

// KV 资料库依赖的存储接口，*storage.DB 实现了它。
type KV interface {
	Get(ctx context.Context, store storage.Store, key string, v any) error
	Put(ctx context.Context, store storage.Store, key string, v any) error
	Delete(ctx context.Context, store storage.Store, key string) error
	All(ctx context.Context, store storage.Store) (map[string]json.RawMessage, error)
}

// Library 资料库，每个节点一条 resources 记录。
type Library struct {
	kv KV
}

// NewLibrary 创建资料库。
func NewLibrary(kv KV) *Library {
	return &Library{kv: kv}
}

// Put 写入节点，ID 为空时报错。
func (l *Library) Put(ctx context.Context, n resource.Node) error {
	if strings.TrimSpace(n.ID) == "" {
		return fmt.Errorf("resource id is required")
	}
	return l.kv.Put(ctx, storage.Resources, n.ID, n)
}

// Get 读取单个节点。
func (l *Library) Get(ctx context.Context, id string) (resource.Node, error) {
	var n resource.Node
	if err := l.kv.Get(ctx, storage.Resources, id, &n); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return resource.Node{}, ErrNodeNotFound
		}
		return resource.Node{}, err
	}
	return n, nil
}

// Delete 删除单个节点，不处理子节点。
func (l *Library) Delete(ctx context.Context, id string) error {
	return l.kv.Delete(ctx, storage.Resources, id)
}

// List 返回全部节点，按 ID 排序。
func (l *Library) List(ctx context.Context) ([]resource.Node, error) {
	records, err := l.kv.All(ctx, storage.Resources)
	if err != nil {
		return nil, err
	}

	nodes := make([]resource.Node, 0, len(records))
	for key, raw := range records {
		var n resource.Node
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, fmt.Errorf("decode resource %s: %w", key, err)
		}
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes, nil
}

// FolderFiles 递归返回文件夹下的所有文件（不含文件夹）。
func (l *Library) FolderFiles(ctx context.Context, folderID string) ([]resource.Node, error) {
	nodes, err := l.List(ctx)
	if err != nil {
		return nil, err
	}
	return folderFiles(nodes, folderID, make(map[string]bool)), nil
}

func folderFiles(nodes []resource.Node, folderID string, visited map[string]bool) []resource.Node {
	// 防止父子关系成环
	if visited[folderID] {
		return nil
	}
	visited[folderID] = true

	var files []resource.Node
	for _, n := range nodes {
		if n.ParentID != folderID || n.ID == folderID {
			continue
		}
		if n.IsFolder {
			files = append(files, folderFiles(nodes, n.ID, visited)...)
			continue
		}
		files = append(files, n)
	}
	return files
}
