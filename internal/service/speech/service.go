package speech

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/chobits/backend/internal/model/speech"
)

// ErrEmptyText 合成文本为空
var ErrEmptyText = errors.New("合成文本不能为空")

// Synthesizer 文本转语音的最小接口，便于替换实现。
type Synthesizer interface {
	Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error)
}

// Service 语音服务核心业务逻辑
type Service struct {
	config *speech.SpeechConfig
	tts    Synthesizer
	logger zerolog.Logger
}

// NewService 创建语音服务实例
func NewService(config *speech.SpeechConfig, logger zerolog.Logger) *Service {
	return &Service{
		config: config,
		tts:    NewVolcengineTTSClient(config, logger),
		logger: logger,
	}
}

// NewServiceWith 使用自定义合成器，主要用于测试。
func NewServiceWith(config *speech.SpeechConfig, tts Synthesizer, logger zerolog.Logger) *Service {
	return &Service{config: config, tts: tts, logger: logger}
}

// Enabled 凭据齐全时才可用
func (s *Service) Enabled() bool {
	if s == nil {
		return false
	}
	if _, ok := s.tts.(*VolcengineTTSClient); !ok {
		return s.tts != nil
	}
	return Configured(s.config)
}

// Synthesize 文字转语音，应用配置里的超时。
func (s *Service) Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	if s.config != nil && s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.config.Timeout)*time.Second)
		defer cancel()
	}

	resp, err := s.tts.Synthesize(ctx, req)
	if err != nil {
		s.logger.Warn().Err(err).Str("session", req.SessionID).Msg("tts failed")
		return nil, err
	}
	s.logger.Debug().
		Str("session", resp.SessionID).
		Int("bytes", len(resp.AudioData)).
		Int64("duration_ms", resp.Duration).
		Msg("tts done")
	return resp, nil
}

// SynthesizeToBuffer 文字转语音（返回字节数组）
func (s *Service) SynthesizeToBuffer(ctx context.Context, sessionID, text, voice, language string) (*speech.TTSResponse, error) {
	return s.Synthesize(ctx, &speech.TTSRequest{
		SessionID: sessionID,
		Text:      text,
		Voice:     voice,
		Language:  language,
	})
}
