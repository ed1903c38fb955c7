package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	speechmodel "github.com/zhouzirui/chobits/backend/internal/model/speech"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	AI       AIConfig
	Speech   SpeechConfig
	Storage  StorageConfig
	Playback PlaybackConfig
	Relay    RelayConfig
	Log      LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig("PORT", "8080")
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	playback, err := loadPlaybackConfig()
	if err != nil {
		return nil, err
	}

	relay, err := loadRelayConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		AI:       ai,
		Speech:   speech,
		Storage:  loadStorageConfig(),
		Playback: playback,
		Relay:    relay,
		Log:      loadLogConfig(),
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig(key, defaultPort string) (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv(key))
	if port == "" {
		port = defaultPort
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid %s value: %q", key, port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig 描述大模型相关配置。
// 助手自带的 Key 优先，这里的 Key 作为各服务商的兜底。
type AIConfig struct {
	AssistantsFile string

	GeminiAPIKey   string
	DeepSeekAPIKey string
	OpenAIAPIKey   string
	OpenAIBaseURL  string

	// 豆包（火山方舟）
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了方舟必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个方舟模型实例，modelID/apiKey 非空时覆盖配置。
func (c AIConfig) NewChatModel(ctx context.Context, modelID, apiKey string) (model.ChatModel, error) {
	if strings.TrimSpace(modelID) != "" {
		c.Model = strings.TrimSpace(modelID)
	}
	if strings.TrimSpace(apiKey) != "" {
		c.APIKey = strings.TrimSpace(apiKey)
	}
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Endpoint ID 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		AssistantsFile: getEnvOrDefault("ASSISTANTS_FILE", ""),
		GeminiAPIKey:   getEnvOrDefault("GEMINI_API_KEY", ""),
		DeepSeekAPIKey: getEnvOrDefault("DEEPSEEK_API_KEY", ""),
		OpenAIAPIKey:   getEnvOrDefault("OPENAI_API_KEY", ""),
		OpenAIBaseURL:  getEnvOrDefault("OPENAI_BASE_URL", ""),
		APIKey:         getEnvOrDefault("ARK_API_KEY", ""),
		AccessKey:      getEnvOrDefault("ARK_ACCESS_KEY", ""),
		SecretKey:      getEnvOrDefault("ARK_SECRET_KEY", ""),
		Model:          getEnvOrDefault("ARK_MODEL", ""),
		BaseURL:        getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:         getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:    temperature,
		TopP:           topP,
		MaxTokens:      maxTokens,
	}, nil
}

// SpeechConfig 描述语音服务相关配置
type SpeechConfig struct {
	AppID       string
	AccessToken string
	Endpoint    string
	TTSVoice    string
	TTSSpeed    float32
	TTSVolume   float32
	TTSLanguage string
	Format      string
	SampleRate  int
	Gzip        bool
	Timeout     int
	Enabled     bool
}

// Model 转换为语音服务使用的配置结构。
func (c SpeechConfig) Model() *speechmodel.SpeechConfig {
	return &speechmodel.SpeechConfig{
		AppID:       c.AppID,
		AccessToken: c.AccessToken,
		Endpoint:    c.Endpoint,
		TTSVoice:    c.TTSVoice,
		TTSSpeed:    c.TTSSpeed,
		TTSVolume:   c.TTSVolume,
		TTSLanguage: c.TTSLanguage,
		Format:      c.Format,
		SampleRate:  c.SampleRate,
		GzipRequest: c.Gzip,
		Timeout:     c.Timeout,
	}
}

func loadSpeechConfig() (SpeechConfig, error) {
	// 解析超时设置
	timeout, err := parseOptionalIntEnv("SPEECH_TIMEOUT")
	if err != nil {
		return SpeechConfig{}, err
	}
	timeoutSeconds := 30 // 默认30秒
	if timeout != nil {
		timeoutSeconds = *timeout
	}

	speed, err := parseOptionalFloat32Env("SPEECH_TTS_SPEED")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsSpeed := float32(1.0)
	if speed != nil {
		ttsSpeed = *speed
	}

	volume, err := parseOptionalFloat32Env("SPEECH_TTS_VOLUME")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsVolume := float32(1.0)
	if volume != nil {
		ttsVolume = *volume
	}

	sampleRate, err := parseOptionalIntEnv("SPEECH_SAMPLE_RATE")
	if err != nil {
		return SpeechConfig{}, err
	}
	rate := 24000
	if sampleRate != nil {
		rate = *sampleRate
	}

	gzipped, err := parseBoolEnv("SPEECH_GZIP", false)
	if err != nil {
		return SpeechConfig{}, err
	}

	appID := getEnvOrDefault("SPEECH_APP_ID", "")
	accessToken := getEnvOrDefault("SPEECH_ACCESS_TOKEN", "")
	if accessToken == "" {
		accessToken = getEnvOrDefault("SPEECH_API_KEY", "")
	}

	return SpeechConfig{
		AppID:       appID,
		AccessToken: accessToken,
		Endpoint:    getEnvOrDefault("SPEECH_ENDPOINT", ""),
		TTSVoice:    getEnvOrDefault("SPEECH_TTS_VOICE", ""),
		TTSSpeed:    ttsSpeed,
		TTSVolume:   ttsVolume,
		TTSLanguage: getEnvOrDefault("SPEECH_TTS_LANGUAGE", "zh-CN"),
		Format:      getEnvOrDefault("SPEECH_FORMAT", "mp3"),
		SampleRate:  rate,
		Gzip:        gzipped,
		Timeout:     timeoutSeconds,
		Enabled:     appID != "" && accessToken != "",
	}, nil
}

// StorageConfig 本地 SQLite 存储
type StorageConfig struct {
	Path string
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{Path: getEnvOrDefault("CHOBITS_DB", "chobits.db")}
}

// PlaybackConfig 逐字显示的节奏
type PlaybackConfig struct {
	RevealDelay time.Duration
	Locale      string
}

func loadPlaybackConfig() (PlaybackConfig, error) {
	delay, err := parseOptionalIntEnv("PLAYBACK_REVEAL_DELAY_MS")
	if err != nil {
		return PlaybackConfig{}, err
	}
	ms := 30
	if delay != nil {
		if *delay < 0 {
			return PlaybackConfig{}, fmt.Errorf("invalid PLAYBACK_REVEAL_DELAY_MS value: %d", *delay)
		}
		ms = *delay
	}
	return PlaybackConfig{
		RevealDelay: time.Duration(ms) * time.Millisecond,
		Locale:      getEnvOrDefault("PLAYBACK_LOCALE", "zh-CN"),
	}, nil
}

// RelayConfig 推送中继配置
type RelayConfig struct {
	Server          ServerConfig
	EnableScheduler bool
	Interval        time.Duration
	CredentialsFile string
}

func loadRelayConfig() (RelayConfig, error) {
	server, err := loadServerConfig("RELAY_PORT", "3000")
	if err != nil {
		return RelayConfig{}, err
	}

	interval := 6 * time.Hour
	if raw := getEnvOrDefault("RELAY_INTERVAL", ""); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return RelayConfig{}, fmt.Errorf("invalid RELAY_INTERVAL value %q", raw)
		}
		interval = d
	}

	return RelayConfig{
		Server: server,
		// 与旧版保持一致，只认 "1"
		EnableScheduler: strings.TrimSpace(os.Getenv("ENABLE_SCHEDULER")) == "1",
		Interval:        interval,
		CredentialsFile: getEnvOrDefault("FIREBASE_CREDENTIALS", ""),
	}, nil
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string
	Console bool
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:   getEnvOrDefault("LOG_LEVEL", "info"),
		Console: !strings.EqualFold(getEnvOrDefault("LOG_FORMAT", "console"), "json"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalFloat32Env(key string) (*float32, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}
