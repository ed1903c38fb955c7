package speech

// SpeechConfig 火山引擎语音合成配置
type SpeechConfig struct {
	AppID       string `json:"appId"`            // 火山引擎 APP ID
	AccessToken string `json:"accessToken"`      // 火山引擎 Access Token
	APIKey      string `json:"apiKey,omitempty"` // 兼容旧配置的 API Key
	Endpoint    string `json:"endpoint"`         // 单向流式合成地址

	TTSVoice    string  `json:"ttsVoice"`
	TTSSpeed    float32 `json:"ttsSpeed"`
	TTSVolume   float32 `json:"ttsVolume"`
	TTSLanguage string  `json:"ttsLanguage"`
	Format      string  `json:"format"`
	SampleRate  int     `json:"sampleRate"`
	GzipRequest bool    `json:"gzipRequest"` // 请求体使用 gzip 压缩

	Timeout int `json:"timeout"` // seconds
}
