package notify

import "math/rand/v2"

// Type 主动消息的类别
type Type string

const (
	Greeting Type = "greeting"
	Meal     Type = "meal"
	Mood     Type = "mood"
	Activity Type = "activity"
	Weather  Type = "weather"
	Random   Type = "random"
)

var templates = map[Type][]string{
	Greeting: {"早上好！今天也要加油哦 😊", "嘿，早安呢！", "新的一天开始了～", "早起的小主人，早上好～"},
	Meal:     {"该吃饭了呢～", "主人，记得吃饭哦", "是不是该补充能量了？", "饭点到了，别忘记吃饭～"},
	Mood:     {"最近心情怎么样？", "在想什么呢？", "今天心情不错吧？", "有什么想和我分享的吗？"},
	Activity: {"在忙什么呢？", "现在在做什么？", "最近在忙什么事呢？", "有什么需要帮助的吗？"},
	Weather:  {"天气不错呢", "记得看看外面呀", "今天天气怎么样？"},
	Random:   {"嘿，想你了～", "在吗？", "发生什么有趣的事吗？", "最近过得咋样？"},
}

// scheduledTypes 定时任务轮选的类别，不含 random。
var scheduledTypes = []Type{Greeting, Meal, Mood, Activity, Weather}

// Templates 返回某类别的候选文案，未知类别使用 random。
func Templates(t Type) []string {
	if list, ok := templates[t]; ok {
		return append([]string(nil), list...)
	}
	return append([]string(nil), templates[Random]...)
}

func pickTemplate(r *rand.Rand, t Type) string {
	list, ok := templates[t]
	if !ok {
		list = templates[Random]
	}
	return list[r.IntN(len(list))]
}

func pickType(r *rand.Rand) Type {
	return scheduledTypes[r.IntN(len(scheduledTypes))]
}
