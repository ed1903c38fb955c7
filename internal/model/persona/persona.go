package persona

import "strings"

// Kind 区分主助手与子助手
type Kind string

const (
	KindMain Kind = "main"
	KindSub  Kind = "sub"
)

// Provider 大模型服务商
type Provider string

const (
	ProviderGemini           Provider = "gemini"
	ProviderDeepSeek         Provider = "deepseek"
	ProviderDoubao           Provider = "doubao"
	ProviderOpenAICompatible Provider = "openai-compatible"
)

// ParseProvider 解析服务商名称。名字里带 gemini 的都走 Gemini，
// 无法识别的按 OpenAI 兼容接口处理。
func ParseProvider(raw string) Provider {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(s, "gemini"):
		return ProviderGemini
	case s == string(ProviderDeepSeek):
		return ProviderDeepSeek
	case s == string(ProviderDoubao):
		return ProviderDoubao
	default:
		return ProviderOpenAICompatible
	}
}

// UnmarshalText 让 YAML / TOML / JSON 里的任意写法都归一化。
func (p *Provider) UnmarshalText(b []byte) error {
	*p = ParseProvider(string(b))
	return nil
}

// Persona 助手配置。APIKey 不会返回给前端。
type Persona struct {
	ID                string   `json:"id" yaml:"id" toml:"id"`
	Name              string   `json:"name" yaml:"name" toml:"name"`
	Title             string   `json:"title,omitempty" yaml:"title" toml:"title"`
	Kind              Kind     `json:"type" yaml:"type" toml:"type"`
	Provider          Provider `json:"provider" yaml:"provider" toml:"provider"`
	Model             string   `json:"modelName,omitempty" yaml:"model" toml:"model"`
	BaseURL           string   `json:"baseUrl,omitempty" yaml:"base_url" toml:"base_url"`
	APIKey            string   `json:"-" yaml:"api_key" toml:"api_key"`
	SystemPrompt      string   `json:"systemPrompt,omitempty" yaml:"system_prompt" toml:"system_prompt"`
	VoiceID           string   `json:"voiceId,omitempty" yaml:"voice" toml:"voice"`
	UserAddress       string   `json:"userAddress,omitempty" yaml:"user_address" toml:"user_address"`
	EnableSearch      bool     `json:"enableSearch,omitempty" yaml:"enable_search" toml:"enable_search"`
	LinkedFolderIDs   []string `json:"linkedFolderIds,omitempty" yaml:"linked_folders" toml:"linked_folders"`
	LinkedResourceIDs []string `json:"linkedResourceIds,omitempty" yaml:"linked_resources" toml:"linked_resources"`
	MemoryFolderID    string   `json:"memoryFolderId,omitempty" yaml:"memory_folder" toml:"memory_folder"`
	OpeningLine       string   `json:"openingLine,omitempty" yaml:"opening_line" toml:"opening_line"`
}

// Seed 默认的小叽助手。
func Seed() []Persona {
	return []Persona{
		{
			ID:             "chii",
			Name:           "小叽",
			Title:          "Chobits",
			Kind:           KindMain,
			Provider:       ProviderGemini,
			VoiceID:        "chii",
			UserAddress:    "主人",
			MemoryFolderID: "chii-memory",
			OpeningLine:    "{{happy}} ちぃ！主人，早上好！",
		},
	}
}
