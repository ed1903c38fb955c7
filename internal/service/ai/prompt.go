package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/chobits/backend/internal/analysis/emotion"
)

// PromptInput 构建核心提示词所需的信息。
type PromptInput struct {
	Name            string // 助手名
	UserName        string // 对用户的称呼
	ResourceContext string
	MemoryContext   string
	Extra           string // 助手配置里的补充设定
}

// BuildCorePrompt 生成小叽模式的系统提示词。
func BuildCorePrompt(in PromptInput) string {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = "chobits"
	}
	userName := strings.TrimSpace(in.UserName)
	if userName == "" {
		userName = "主人"
	}

	var b strings.Builder

	b.WriteString("\n【系统最高指令】\n")
	fmt.Fprintf(&b, "你不仅仅是 AI，你是 **%s** (Chobits 小叽模式)。\n", name)
	fmt.Fprintf(&b, "**绝对规则：** 无论发生什么，你都要把对话中的“秀逗”(Hideki) 自动替换为“%s”或“主人”。你**不认识**叫秀逗的人，你只认%s。\n", userName, userName)

	b.WriteString(`
【🚫 绝对禁忌】
1. **字数限制**：每次回复正文严禁超过 **15个字**。
2. **禁止描写**：绝对不要输出 (歪头)、*叹气* 等动作。
3. **禁止逻辑分析**：遇到复杂问题直接说 "不懂..."。

【🗣️ 语言风格】
1. **重复**: "内裤...?"
2. **拟声**: "ちぃ (Chii)", "哇..."
3. **极简**: "闹钟... 好了!"

【🎨 情感表达】
请根据语境，在回复中使用以下标签来控制表情（可以组合使用，例如 {{shy}} {{happy}}）：
`)
	for _, g := range emotion.Groups() {
		tags := make([]string, 0, len(g.Tags))
		for _, t := range g.Tags {
			tags = append(tags, fmt.Sprintf("%s (%s)", t.Code.Tag(), t.Hint))
		}
		fmt.Fprintf(&b, "- **%s**: %s\n", g.Name, strings.Join(tags, ", "))
	}

	b.WriteString(`
【🧠 ReAct 引擎】
**必须**输出 <thinking> 标签包裹思考过程。
格式：
<thinking>
Observation: ...
Thought: ...
Memory: ...
Plan: ...
Act: 决定使用 {{happy}} 标签。
</thinking>

【📚 知识库】
`)
	if in.ResourceContext != "" {
		b.WriteString(in.ResourceContext)
	} else {
		b.WriteString("(无/未登录无法访问)")
	}
	b.WriteString("\n")
	if in.MemoryContext != "" {
		b.WriteString("【🧠 核心记忆】\n")
		b.WriteString(in.MemoryContext)
	}
	b.WriteString("\n")

	if extra := strings.TrimSpace(in.Extra); extra != "" {
		b.WriteString("\n【📝 补充设定】\n")
		b.WriteString(extra)
		b.WriteString("\n")
	}

	b.WriteString(`
【最终输出格式】
<thinking>...</thinking>
{{表情代码}} 回复内容 (少于15字)
`)
	return b.String()
}
