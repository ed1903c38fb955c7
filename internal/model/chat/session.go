package chat

import "time"

// Session binds a conversation to one assistant.
type Session struct {
	ID        string    `json:"id"`
	PersonaID string    `json:"personaId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Transcript 是一个会话在存储中的完整记录。
type Transcript struct {
	Session  Session   `json:"session"`
	Messages []Message `json:"messages"`
}
