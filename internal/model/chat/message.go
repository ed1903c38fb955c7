package chat

import (
	"time"

	"github.com/zhouzirui/chobits/backend/internal/analysis/reply"
)

// Role 消息发送方
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Attachment 用户随消息发送的图片或文件。
type Attachment struct {
	Type     string `json:"type"` // image / file
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Content  string `json:"content"` // base64 或纯文本
}

// Message persists individual turns.
// 助手消息的 Content 是清理后的台词，RawContent 保留模型原文以便重放。
type Message struct {
	ID                  string       `json:"id"`
	SessionID           string       `json:"sessionId"`
	Role                Role         `json:"role"`
	Content             string       `json:"content"`
	Thought             string       `json:"thought,omitempty"`
	Trace               reply.Trace  `json:"trace,omitempty"`
	RawContent          string       `json:"rawContent,omitempty"`
	Emotion             string       `json:"emotion,omitempty"`
	Attachments         []Attachment `json:"attachments,omitempty"`
	ReferencedResources []string     `json:"referencedResources,omitempty"`
	CreatedAt           time.Time    `json:"createdAt"`
}
