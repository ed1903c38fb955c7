package speech

import (
	"strings"

	"github.com/zhouzirui/chobits/backend/internal/analysis/emotion"
)

var emotionLabels = map[emotion.Label]string{
	emotion.LabelHappy:    "happy",
	emotion.LabelSad:      "sad",
	emotion.LabelAngry:    "angry",
	emotion.LabelExcited:  "excited",
	emotion.LabelTender:   "tender",
	emotion.LabelComfort:  "comfort",
	emotion.LabelMagnetic: "magnetic",
}

// 多情感音色，名字里不一定带 _emo_
var emotionVoiceWhitelist = map[string]struct{}{
	"zh_female_tianxinxiaomei_emo_v2_mars_bigtts": {},
	"zh_female_gaolengyujie_emo_v2_mars_bigtts":   {},
	"zh_female_linjuayi_emo_v2_mars_bigtts":       {},
	"zh_male_yourougongzi_emo_v2_mars_bigtts":     {},
	"en_female_candice_emo_v2_mars_bigtts":        {},
	"en_female_skye_emo_v2_mars_bigtts":           {},
}

// ComputeEmotionParameters 根据音色与表情决策计算TTS情绪参数。
func ComputeEmotionParameters(voice string, decision emotion.Decision) (enable bool, label string, scale float32) {
	if decision.Emotion == emotion.LabelNeutral || decision.Score <= 0 {
		return false, "", 0
	}
	if !supportsEmotion(voice) {
		return false, "", 0
	}

	mapped, ok := emotionLabels[decision.Emotion]
	if !ok {
		return false, "", 0
	}

	finalScale := decision.Scale
	if finalScale <= 0 {
		finalScale = 3
	}
	finalScale = min(max(finalScale, 1), 5)

	return true, mapped, finalScale
}

func supportsEmotion(voice string) bool {
	normalized := strings.ToLower(strings.TrimSpace(voice))
	if normalized == "" {
		return false
	}
	if _, ok := emotionVoiceWhitelist[normalized]; ok {
		return true
	}
	return strings.Contains(normalized, "_emo")
}
