package speech

import (
	"errors"
	"strings"

	speechmodel "github.com/zhouzirui/chobits/backend/internal/model/speech"
)

var (
	// ErrNotConfigured 语音配置缺失
	ErrNotConfigured = errors.New("火山引擎语音配置未初始化")
	// ErrMissingCredentials AppID 或 AccessToken 缺失
	ErrMissingCredentials = errors.New("火山引擎语音配置缺少 AppID 或 AccessToken")
)

// resolveCredentials 返回规范化后的 AppID 与 AccessToken，缺失时给出明确错误。
func resolveCredentials(cfg *speechmodel.SpeechConfig) (string, string, error) {
	if cfg == nil {
		return "", "", ErrNotConfigured
	}

	appID := strings.TrimSpace(cfg.AppID)
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		token = strings.TrimSpace(cfg.APIKey)
	}

	if appID == "" || token == "" {
		return "", "", ErrMissingCredentials
	}

	return appID, token, nil
}

// Configured 报告配置是否足以发起合成。
func Configured(cfg *speechmodel.SpeechConfig) bool {
	_, _, err := resolveCredentials(cfg)
	return err == nil
}
