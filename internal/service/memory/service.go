// Package memory 管理助手的核心记忆和资料库上下文。
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/chobits/backend/internal/model/persona"
	"github.com/zhouzirui/chobits/backend/internal/model/resource"
	"github.com/zhouzirui/chobits/backend/internal/storage"
)

const (
	// CoreMemoryTitle 核心记忆文件名
	CoreMemoryTitle = "核心记忆.txt"
	// maxDocumentRunes 单个文档注入提示词的最大字数
	maxDocumentRunes = 30000
)

// Entry 记忆流水，每轮对话一条，写入 memories 分区。
type Entry struct {
	AssistantID string    `json:"assistantId"`
	At          time.Time `json:"at"`
	User        string    `json:"user"`
	Reply       string    `json:"reply"`
}

// Service 读写核心记忆并拼装知识库上下文。
type Service struct {
	kv      KV
	library *Library
	now     func() time.Time
	logger  zerolog.Logger
}

// NewService 创建记忆服务。
func NewService(kv KV, logger zerolog.Logger) *Service {
	return &Service{
		kv:      kv,
		library: NewLibrary(kv),
		now:     time.Now,
		logger:  logger,
	}
}

// Library 返回底层资料库。
func (s *Service) Library() *Library {
	return s.library
}

// CoreMemory 返回助手记忆文件夹下核心记忆文件的内容，没有时返回空串。
func (s *Service) CoreMemory(ctx context.Context, a persona.Persona) (string, error) {
	file, ok, err := s.coreFile(ctx, a)
	if err != nil || !ok {
		return "", err
	}
	return file.Content, nil
}

func (s *Service) coreFile(ctx context.Context, a persona.Persona) (resource.Node, bool, error) {
	if a.MemoryFolderID == "" {
		return resource.Node{}, false, nil
	}
	files, err := s.library.FolderFiles(ctx, a.MemoryFolderID)
	if err != nil {
		return resource.Node{}, false, err
	}
	for _, f := range files {
		if f.Title == CoreMemoryTitle {
			return f, true, nil
		}
	}
	return resource.Node{}, false, nil
}

// ResourceContext 汇总关联文件夹、关联资源与 @标题 提及的文件，去重后渲染为 document 块。
func (s *Service) ResourceContext(ctx context.Context, a persona.Persona, userText string) (string, []string, error) {
	nodes, err := s.library.List(ctx)
	if err != nil {
		return "", nil, err
	}

	var related []resource.Node
	for _, folderID := range a.LinkedFolderIDs {
		related = append(related, folderFiles(nodes, folderID, make(map[string]bool))...)
	}

	if len(a.LinkedResourceIDs) > 0 {
		linked := make(map[string]bool, len(a.LinkedResourceIDs))
		for _, id := range a.LinkedResourceIDs {
			linked[id] = true
		}
		for _, n := range nodes {
			if linked[n.ID] && !n.IsFolder {
				related = append(related, n)
			}
		}
	}

	for _, n := range nodes {
		if !n.IsFolder && n.Title != "" && strings.Contains(userText, "@"+n.Title) {
			related = append(related, n)
		}
	}

	seen := make(map[string]bool, len(related))
	var (
		b     strings.Builder
		names []string
	)
	for _, n := range related {
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		names = append(names, n.Title)

		content := truncateRunes(n.Content, maxDocumentRunes)
		if content == "" {
			content = "(空)"
		}
		fmt.Fprintf(&b, "\n<document title=\"%s\">\n%s\n</document>\n", n.Title, content)
	}
	return b.String(), names, nil
}

// Append 把一轮对话追加到核心记忆，文件不存在时创建。
func (s *Service) Append(ctx context.Context, a persona.Persona, userText, reply string) error {
	if a.MemoryFolderID == "" {
		return nil
	}

	at := s.now()
	file, ok, err := s.coreFile(ctx, a)
	if err != nil {
		return err
	}
	if !ok {
		file = resource.Node{
			ID:       uuid.NewString(),
			ParentID: a.MemoryFolderID,
			Title:    CoreMemoryTitle,
			Type:     resource.TypeKnowledge,
		}
	}

	line := fmt.Sprintf("\n[%s] 主人: %s | 小叽: %s", at.Format("2006-01-02 15:04"), userText, reply)
	file.Content += line
	file.Size = utf8.RuneCountInString(file.Content)
	file.UpdatedAt = at
	if err := s.library.Put(ctx, file); err != nil {
		return fmt.Errorf("append core memory: %w", err)
	}

	entry := Entry{AssistantID: a.ID, At: at, User: userText, Reply: reply}
	key := fmt.Sprintf("%s/%020d", a.ID, at.UnixNano())
	if err := s.kv.Put(ctx, storage.Memories, key, entry); err != nil {
		// 流水只是辅助记录，失败不影响核心记忆。
		s.logger.Warn().Err(err).Str("assistant", a.ID).Msg("memory journal write failed")
	}

	s.logger.Debug().Str("assistant", a.ID).Int("size", file.Size).Msg("core memory appended")
	return nil
}

// Provision 为助手创建记忆文件夹和核心记忆文件，已存在的部分保持不变。
func (s *Service) Provision(ctx context.Context, a persona.Persona) (string, error) {
	name := a.Name
	if name == "" {
		name = "chobits"
	}
	folderID := a.MemoryFolderID
	if folderID == "" {
		folderID = uuid.NewString()
	}
	at := s.now()

	if _, err := s.library.Get(ctx, folderID); errors.Is(err, ErrNodeNotFound) {
		folder := resource.Node{
			ID:        folderID,
			Title:     fmt.Sprintf("📂 %s_资料库", name),
			IsFolder:  true,
			Type:      resource.TypeFolder,
			UpdatedAt: at,
		}
		if err := s.library.Put(ctx, folder); err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	}

	if _, ok, err := s.coreFile(ctx, persona.Persona{MemoryFolderID: folderID}); err != nil || ok {
		return folderID, err
	}

	core := resource.Node{
		ID:        uuid.NewString(),
		ParentID:  folderID,
		Title:     CoreMemoryTitle,
		Content:   fmt.Sprintf("=== %s 的核心记忆 ===\n创建时间: %s\n", name, at.Format("2006/1/2 15:04:05")),
		Type:      resource.TypeKnowledge,
		UpdatedAt: at,
	}
	if err := s.library.Put(ctx, core); err != nil {
		return "", err
	}
	return folderID, nil
}

// Journal 返回助手的记忆流水，按时间先后排列。
func (s *Service) Journal(ctx context.Context, assistantID string) ([]Entry, error) {
	records, err := s.kv.All(ctx, storage.Memories)
	if err != nil {
		return nil, err
	}

	prefix := assistantID + "/"
	var entries []Entry
	for key, raw := range records {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("decode memory %s: %w", key, err)
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].At.Before(entries[j].At) })
	return entries, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
