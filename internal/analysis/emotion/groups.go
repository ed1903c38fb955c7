package emotion

// Tag 是提示词里列给模型的一个标签及其中文释义。
type Tag struct {
	Code Code
	Hint string
}

// Group 是一组同类标签。
type Group struct {
	Name string
	Tags []Tag
}

var promptGroups = []Group{
	{Name: "开心", Tags: []Tag{{Happy, "闭眼笑"}, {Smile, "普通笑"}, {Gentle, "温柔"}, {Simple, "简单"}}},
	{Name: "害羞", Tags: []Tag{{Shy, "害羞"}, {Blush, "脸红"}, {ExtremeBlush, "大红脸"}}},
	{Name: "难过", Tags: []Tag{{Sad, "难过"}, {Crying, "哭"}, {Pout, "嘟嘴"}, {Concerned, "担心"}}},
	{Name: "惊讶/困惑", Tags: []Tag{{Shocked, "震惊"}, {Curious, "好奇"}, {Dazed, "发呆"}, {Dizzy, "晕"}}},
	{Name: "生气/冷淡", Tags: []Tag{{Annoyed, "烦"}, {Serious, "严肃"}, {Indifferent, "冷漠"}, {Blank, "呆滞"}}},
	{Name: "其他", Tags: []Tag{{Sleeping, "睡"}, {Talking, "说话"}, {Nervous, "紧张"}, {Sigh, "叹气"}}},
}

// Groups 返回提示词使用的标签分组。
func Groups() []Group {
	out := make([]Group, len(promptGroups))
	for i, g := range promptGroups {
		out[i] = Group{Name: g.Name, Tags: append([]Tag(nil), g.Tags...)}
	}
	return out
}
