package emotion

// Label 表示TTS可以接受的情绪标签。
type Label string

const (
	LabelNeutral  Label = "neutral"
	LabelHappy    Label = "happy"
	LabelSad      Label = "sad"
	LabelAngry    Label = "angry"
	LabelExcited  Label = "excited"
	LabelTender   Label = "tender"
	LabelComfort  Label = "comfort"
	LabelMagnetic Label = "magnetic"
)

// Decision 给出语音情绪以及推荐情绪强度。
type Decision struct {
	Emotion Label
	Scale   float32
	Score   int
}

// Voice 把头像表情映射到情绪音色参数，未知代码按中性处理。
func Voice(c Code) Decision {
	switch c {
	case Happy, HappyLaugh:
		return Decision{Emotion: LabelHappy, Scale: 4, Score: 2}
	case Smile, StandardSmile, SimpleSmile, Simple, SlightSmile:
		return Decision{Emotion: LabelHappy, Scale: 2, Score: 1}
	case Gentle, GentleSmile, Shy, Blush, BlushSmile, ExtremeBlush:
		return Decision{Emotion: LabelTender, Scale: 3, Score: 1}
	case Sad, Crying, Sigh:
		return Decision{Emotion: LabelSad, Scale: 3, Score: 2}
	case Concerned:
		return Decision{Emotion: LabelComfort, Scale: 3, Score: 1}
	case Pout, Annoyed:
		return Decision{Emotion: LabelAngry, Scale: 2, Score: 1}
	case Shocked, Curious:
		return Decision{Emotion: LabelExcited, Scale: 3, Score: 1}
	case Serious:
		return Decision{Emotion: LabelMagnetic, Scale: 3, Score: 1}
	default:
		return Decision{Emotion: LabelNeutral}
	}
}
