package emotion

import "strings"

// Code 是回复中 {{code}} 标签携带的头像表情代码。
// 模型可能输出词表之外的代码，Code 照样保存，渲染时回落到默认资源。
type Code string

const (
	StandardSmile Code = "standard_smile"
	Smile         Code = "smile"
	Idle          Code = "idle"
	Happy         Code = "happy"
	HappyLaugh    Code = "happy_laugh"
	Gentle        Code = "gentle"
	GentleSmile   Code = "gentle_smile"
	Simple        Code = "simple"
	SimpleSmile   Code = "simple_smile"
	SlightSmile   Code = "slight_smile"
	Shy           Code = "shy"
	Blush         Code = "blush"
	BlushSmile    Code = "blush_smile"
	ExtremeBlush  Code = "extreme_blush"
	Sad           Code = "sad"
	Crying        Code = "crying"
	Concerned     Code = "concerned"
	Pout          Code = "pout"
	Sigh          Code = "sigh"
	Thinking      Code = "thinking"
	Sleeping      Code = "sleeping"
	Shocked       Code = "shocked"
	Curious       Code = "curious"
	Dazed         Code = "dazed"
	Dizzy         Code = "dizzy"
	Blank         Code = "blank"
	BlankStare    Code = "blank_stare"
	Empty         Code = "empty"
	Annoyed       Code = "annoyed"
	Indifferent   Code = "indifferent"
	Serious       Code = "serious"
	Nervous       Code = "nervous"
	Talking       Code = "talking"
	LookingDown   Code = "looking_down"
	Glancing      Code = "glancing"
)

// Default 是没有任何可计数标签时的常驻表情。
const Default = StandardSmile

// AssetDir 是头像资源在前端的路径前缀。
const AssetDir = "/avatars/"

const defaultAsset = "chii_smile_01.png"

// Normalize 去掉花括号和空白并转小写。
func Normalize(raw string) Code {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "{{")
	s = strings.TrimSuffix(s, "}}")
	return Code(strings.ToLower(strings.TrimSpace(s)))
}

// Tag 返回 {{code}} 形式的标签文本。
func (c Code) Tag() string {
	return "{{" + string(c) + "}}"
}

// Sentinel 报告该代码是否为过程态（idle / thinking），不参与常驻表情计数。
func (c Code) Sentinel() bool {
	return c == Idle || c == Thinking
}

var vocabulary = []Code{
	StandardSmile, Smile, Idle, Happy, HappyLaugh, Gentle, GentleSmile, Simple, SimpleSmile,
	SlightSmile, Shy, Blush, BlushSmile, ExtremeBlush, Sad, Crying, Concerned, Pout, Sigh,
	Thinking, Sleeping, Shocked, Curious, Dazed, Dizzy, Blank, BlankStare, Empty, Annoyed,
	Indifferent, Serious, Nervous, Talking, LookingDown, Glancing,
}

// All 返回完整词表的副本。
func All() []Code {
	return append([]Code(nil), vocabulary...)
}

// Known 报告该代码是否属于头像词表。
func (c Code) Known() bool {
	for _, v := range vocabulary {
		if v == c {
			return true
		}
	}
	return false
}

// Asset 将表情代码映射到头像文件名，未知代码使用默认微笑。
func Asset(c Code) string {
	switch c {
	case StandardSmile, Smile, Idle:
		return "chii_smile_01.png"
	case Happy, HappyLaugh:
		return "chii_happy_closed_eyes.png"
	case Gentle, GentleSmile:
		return "chii_gentle_smile.png"
	case Simple, SimpleSmile:
		return "chii_simple_smile.png"
	case SlightSmile:
		return "chii_slight_smile.png"
	case Shy:
		return "chii_shy.png"
	case Blush, BlushSmile:
		return "chii_blush_smile.png"
	case ExtremeBlush:
		return "chii_blush_extreme.png"
	case Sad:
		return "chii_sad.png"
	case Crying:
		return "chii_crying.png"
	case Concerned:
		return "chii_concerned.png"
	case Pout:
		return "chii_pout.png"
	case Sigh:
		return "chii_sigh.png"
	case Thinking, Sleeping:
		return "chii_sleeping.png"
	case Shocked:
		return "chii_shocked.png"
	case Curious:
		return "chii_curious.png"
	case Dazed:
		return "chii_dazed.png"
	case Dizzy:
		return "chii_dizzy.png"
	case Blank, BlankStare:
		return "chii_blank_stare.png"
	case Empty:
		return "chii_empty.png"
	case Annoyed:
		return "chii_annoyed.png"
	case Indifferent:
		return "chii_indifferent.png"
	case Serious:
		return "chii_serious.png"
	case Nervous:
		return "chii_nervous.png"
	case Talking:
		return "chii_talking.png"
	case LookingDown:
		return "chii_looking_down.png"
	case Glancing:
		return "chii_glancing.png"
	default:
		return defaultAsset
	}
}

// AssetPath 返回带目录前缀的头像路径。
func AssetPath(c Code) string {
	return AssetDir + Asset(Normalize(string(c)))
}
