package speech

import "time"

// TTSResponse 语音合成响应
type TTSResponse struct {
	SessionID string    `json:"sessionId"`
	AudioData []byte    `json:"-"`
	Duration  int64     `json:"duration"` // milliseconds
	Format    string    `json:"format"`
	RequestID string    `json:"requestId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// AudioChunk 推送给前端的一段合成音频
type AudioChunk struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
	Format    string `json:"format"`
	Duration  int64  `json:"duration"`
	Audio     []byte `json:"audio"` // JSON 编码为 base64
}
