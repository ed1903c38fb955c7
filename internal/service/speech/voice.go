package speech

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/zhouzirui/chobits/backend/internal/model/speech"
	"github.com/zhouzirui/chobits/backend/internal/playback"
)

// estimatedRuneDuration 服务端未返回时长时按字数估算播放时间。
const estimatedRuneDuration = 220 * time.Millisecond

// AudioSink 接收合成好的音频，通常推送给前端播放。
type AudioSink func(chunk speech.AudioChunk) error

// Voice 把合成服务包装成播放器使用的 Speaker。
// 音频交给 sink 之后按时长等待，模拟播放完成。
type Voice struct {
	service   *Service
	sessionID string
	voice     string
	sink      AudioSink
}

var _ playback.Speaker = (*Voice)(nil)

// NewVoice 创建会话级别的 Speaker，voice 为空时使用配置的默认音色。
func NewVoice(service *Service, sessionID, voice string, sink AudioSink) *Voice {
	return &Voice{service: service, sessionID: sessionID, voice: voice, sink: sink}
}

// Speak 合成文本，通知开始播放，并等待音频时长。
func (v *Voice) Speak(ctx context.Context, u playback.Utterance) error {
	resp, err := v.service.Synthesize(ctx, &speech.TTSRequest{
		SessionID: v.sessionID,
		Text:      u.Text,
		Voice:     v.voice,
		Language:  u.Locale,
		Emotion:   string(u.Emotion),
	})
	if err != nil {
		return err
	}

	duration := time.Duration(resp.Duration) * time.Millisecond
	if duration <= 0 {
		duration = time.Duration(utf8.RuneCountInString(u.Text)) * estimatedRuneDuration
	}

	if v.sink != nil {
		if err := v.sink(speech.AudioChunk{
			SessionID: resp.SessionID,
			Text:      u.Text,
			Format:    resp.Format,
			Duration:  duration.Milliseconds(),
			Audio:     resp.AudioData,
		}); err != nil {
			return err
		}
	}

	if u.Started != nil {
		u.Started()
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
