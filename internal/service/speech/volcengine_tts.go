package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/chobits/backend/internal/analysis/emotion"
	"github.com/zhouzirui/chobits/backend/internal/model/speech"
)

// DefaultEndpoint 火山引擎 v3 单向流式合成地址
const DefaultEndpoint = "wss://openspeech.bytedance.com/api/v3/tts/unidirectional/stream"

// VolcengineTTSClient 火山引擎TTS WebSocket客户端
type VolcengineTTSClient struct {
	config *speech.SpeechConfig
	dialer *websocket.Dialer
	logger zerolog.Logger
}

type ttsServerMessage struct {
	ReqID    string `json:"reqid"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Data     string `json:"data"`
	Addition struct {
		Duration string `json:"duration,omitempty"`
	} `json:"addition,omitempty"`
}

// NewVolcengineTTSClient 创建火山引擎TTS客户端
func NewVolcengineTTSClient(config *speech.SpeechConfig, logger zerolog.Logger) *VolcengineTTSClient {
	return &VolcengineTTSClient{
		config: config,
		dialer: &websocket.Dialer{HandshakeTimeout: 30 * time.Second},
		logger: logger,
	}
}

type ttsRequest struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams struct {
		Speaker     string         `json:"speaker"`
		Text        string         `json:"text"`
		AudioParams ttsAudioParams `json:"audio_params"`
		Additions   string         `json:"additions,omitempty"`
		Language    string         `json:"language,omitempty"`
	} `json:"req_params"`
}

type ttsAudioParams struct {
	Format       string  `json:"format"`
	SampleRate   int     `json:"sample_rate"`
	SpeechRate   int     `json:"speech_rate,omitempty"`
	LoudnessRate int     `json:"loudness_rate,omitempty"`
	Emotion      string  `json:"emotion,omitempty"`
	EmotionScale float32 `json:"emotion_scale,omitempty"`
}

// Synthesize 合成一段文本，依次尝试候选音色与资源 ID。
func (c *VolcengineTTSClient) Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}

	appKey, accessKey, err := resolveCredentials(c.config)
	if err != nil {
		return nil, err
	}

	endpoint := strings.TrimSpace(c.config.Endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	speakers := resolveTTSSpeakerCandidates(req.Voice, c.config.TTSVoice)
	var lastMismatch error

	for speakerIdx, speaker := range speakers {
		for resourceIdx, resourceID := range resolveTTSResourceCandidates(speaker) {
			resp, attemptErr := c.synthesizeWithResource(ctx, endpoint, req, appKey, accessKey, speaker, resourceID)
			if attemptErr == nil {
				if resourceIdx > 0 || speakerIdx > 0 {
					c.logger.Info().Str("voice", speaker).Str("resource", resourceID).Msg("tts fallback succeeded")
				}
				return resp, nil
			}
			if !isResourceMismatchError(attemptErr) {
				return nil, attemptErr
			}
			c.logger.Debug().Err(attemptErr).Str("voice", speaker).Str("resource", resourceID).Msg("tts resource mismatch")
			lastMismatch = attemptErr
		}
	}

	if lastMismatch != nil {
		return nil, lastMismatch
	}
	return nil, fmt.Errorf("TTS synthesis failed: no compatible resource id for voices %v", speakers)
}

func (c *VolcengineTTSClient) synthesizeWithResource(
	ctx context.Context,
	endpoint string,
	req *speech.TTSRequest,
	appKey, accessKey, speaker, resourceID string,
) (*speech.TTSResponse, error) {
	connectID := uuid.NewString()

	header := http.Header{}
	header.Set("X-Api-App-Key", appKey)
	header.Set("X-Api-Access-Key", accessKey)
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", connectID)

	conn, resp, err := c.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to TTS WebSocket: %w", err)
	}
	defer conn.Close()

	if resp != nil {
		if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
			c.logger.Debug().Str("logid", logid).Msg("tts connected")
		}
	}

	// 关闭连接以打断阻塞中的读取。
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	ttsReq, uid := c.buildRequest(req, speaker)
	payload, err := json.Marshal(ttsReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TTS request: %w", err)
	}

	frame, err := NewClientRequest(payload, c.config.GzipRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to build TTS request frame: %w", err)
	}
	wire, err := frame.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode TTS request frame: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, wire); err != nil {
		return nil, fmt.Errorf("failed to send TTS request: %w", err)
	}

	var (
		audio    bytes.Buffer
		reqID    string
		duration int64
	)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to read TTS response: %w", err)
		}

		msg, err := ReadFrame(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode TTS frame: %w", err)
		}

		body, err := msg.Body()
		if err != nil {
			return nil, fmt.Errorf("failed to decompress TTS payload: %w", err)
		}

		var serverResp ttsServerMessage
		switch msg.Type {
		case ErrorMessage:
			return nil, fmt.Errorf("TTS error %d: %s", msg.ErrorCode, string(body))

		case AudioOnlyServerResponse:
			audio.Write(body)

		case FullServerResponse:
			if msg.hasEvent() && msg.Event != EventTypeSessionFinished {
				c.logger.Debug().Int32("event", int32(msg.Event)).Msg("tts server event")
			}
			if len(body) > 0 {
				if err := json.Unmarshal(body, &serverResp); err != nil {
					c.logger.Warn().Err(err).Msg("tts response payload is not json")
					break
				}
				if serverResp.Code != 0 && serverResp.Code != 3000 && serverResp.Code != 20000000 {
					return nil, fmt.Errorf("TTS API error %d: %s", serverResp.Code, serverResp.Message)
				}
				if serverResp.ReqID != "" {
					reqID = serverResp.ReqID
				}
				if d, err := strconv.ParseInt(serverResp.Addition.Duration, 10, 64); err == nil {
					duration = d
				}
				if serverResp.Data != "" {
					chunk, err := base64.StdEncoding.DecodeString(serverResp.Data)
					if err != nil {
						return nil, fmt.Errorf("failed to decode base64 audio chunk: %w", err)
					}
					audio.Write(chunk)
				}
			}

		default:
			c.logger.Debug().Uint8("type", uint8(msg.Type)).Msg("unexpected tts frame")
			continue
		}

		if msg.Finished() || serverResp.Sequence < 0 {
			if audio.Len() == 0 {
				return nil, fmt.Errorf("TTS audio is empty")
			}
			if reqID == "" {
				reqID = connectID
			}
			sessionID := strings.TrimSpace(req.SessionID)
			if sessionID == "" {
				sessionID = uid
			}
			return &speech.TTSResponse{
				SessionID: sessionID,
				AudioData: audio.Bytes(),
				Duration:  duration,
				Format:    ttsReq.ReqParams.AudioParams.Format,
				RequestID: reqID,
				CreatedAt: time.Now(),
			}, nil
		}
	}
}

// buildRequest 构建符合火山引擎 v3 格式的合成请求
func (c *VolcengineTTSClient) buildRequest(req *speech.TTSRequest, speaker string) (*ttsRequest, string) {
	r := &ttsRequest{}

	uid := strings.TrimSpace(req.SessionID)
	if uid == "" {
		uid = uuid.NewString()
	}
	r.User.UID = uid

	r.ReqParams.Speaker = speaker
	r.ReqParams.Text = req.Text

	format := firstNonEmpty(req.Format, c.config.Format, "mp3")
	if format == "wav" {
		format = "mp3"
	}
	r.ReqParams.AudioParams.Format = format

	r.ReqParams.AudioParams.SampleRate = 24000
	if c.config.SampleRate > 0 {
		r.ReqParams.AudioParams.SampleRate = c.config.SampleRate
	}

	speed := req.Speed
	if speed <= 0 {
		speed = c.config.TTSSpeed
	}
	r.ReqParams.AudioParams.SpeechRate = ratioToRate(speed)

	volume := req.Volume
	if volume <= 0 {
		volume = c.config.TTSVolume
	}
	r.ReqParams.AudioParams.LoudnessRate = ratioToRate(volume)

	if req.Emotion != "" {
		if ok, label, scale := ComputeEmotionParameters(speaker, emotion.Voice(emotion.Normalize(req.Emotion))); ok {
			r.ReqParams.AudioParams.Emotion = label
			r.ReqParams.AudioParams.EmotionScale = scale
		}
	}

	if language := firstNonEmpty(req.Language, c.config.TTSLanguage); language != "" {
		r.ReqParams.Language = language
	}

	r.ReqParams.Additions = `{"disable_markdown_filter":false}`
	return r, uid
}

// ratioToRate 把 1.0 基准的倍率换算为 v3 的 [-50, 100] 调整值。
func ratioToRate(ratio float32) int {
	if ratio <= 0 || ratio == 1 {
		return 0
	}
	rate := int((ratio - 1) * 100)
	if rate < -50 {
		rate = -50
	}
	if rate > 100 {
		rate = 100
	}
	return rate
}

func resolveTTSResourceCandidates(voice string) []string {
	const (
		defaultResource = "volc.service_type.10029"
		megaResource    = "volc.megatts.default"
		seedResource    = "seed-tts-2.0"
	)

	voice = strings.TrimSpace(voice)
	if voice == "" {
		return []string{defaultResource, seedResource}
	}
	if strings.HasPrefix(voice, "S_") {
		return []string{megaResource}
	}

	normalized := strings.ToLower(voice)
	for _, hint := range []string{"bigtts", "seed", "megatts", "uranus", "venus", "jupiter", "saturn", "neptune", "mercury", "pluto", "mars"} {
		if strings.Contains(normalized, hint) {
			return []string{seedResource, defaultResource}
		}
	}
	return []string{defaultResource, seedResource}
}

// voiceAliases 让助手配置里可以写可读的音色名。
var voiceAliases = map[string]string{
	"chii":          "zh_female_tianxinxiaomei_emo_v2_mars_bigtts",
	"chii-soft":     "zh_female_vv_uranus_bigtts",
	"chii-narrator": "zh_female_vv_venus_bigtts",
	"en_default":    "en_female_amy_jupiter_bigtts",
}

func resolveTTSSpeakerCandidates(requested, fallback string) []string {
	var candidates []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if mapped, ok := voiceAliases[strings.ToLower(s)]; ok {
			s = mapped
		}
		for _, existing := range candidates {
			if strings.EqualFold(existing, s) {
				return
			}
		}
		candidates = append(candidates, s)
	}

	add(requested)
	add(fallback)
	if len(candidates) == 0 {
		return []string{voiceAliases["chii"]}
	}
	return candidates
}

func isResourceMismatchError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "resource ID is mismatched with speaker related resource")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// NormalizeVoiceAlias 把别名换成真实音色，未知名称原样返回。
func NormalizeVoiceAlias(voice string) string {
	voice = strings.TrimSpace(voice)
	if mapped, ok := voiceAliases[strings.ToLower(voice)]; ok {
		return mapped
	}
	return voice
}
