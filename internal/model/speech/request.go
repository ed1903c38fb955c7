package speech

// TTSRequest 语音合成请求
type TTSRequest struct {
	SessionID string  `json:"sessionId"`
	Text      string  `json:"text"`
	Voice     string  `json:"voice"`             // 音色或别名
	Speed     float32 `json:"speed"`             // 语速倍率 0.5-2.0
	Volume    float32 `json:"volume"`            // 音量倍率
	Format    string  `json:"format"`            // mp3 / ogg_opus / pcm
	Language  string  `json:"language"`          // zh-CN, en-US ...
	Emotion   string  `json:"emotion,omitempty"` // 头像表情代码，情绪音色会据此调整
}
