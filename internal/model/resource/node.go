package resource

import "time"

// Type 资源类型
type Type string

const (
	TypeKnowledge Type = "knowledge"
	TypeFolder    Type = "folder"
)

// Node 资料库里的一个文件或文件夹，ParentID 为空表示位于根目录。
type Node struct {
	ID        string    `json:"id"`
	ParentID  string    `json:"parentId,omitempty"`
	Title     string    `json:"title"`
	IsFolder  bool      `json:"isFolder"`
	Content   string    `json:"content,omitempty"`
	Type      Type      `json:"type"`
	UpdatedAt time.Time `json:"updatedAt"`
	Size      int       `json:"size"`
}
