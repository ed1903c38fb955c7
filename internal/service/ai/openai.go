package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/zhouzirui/chobits/backend/internal/model/chat"
)

const (
	DeepSeekBaseURL      = "https://api.deepseek.com"
	DefaultDeepSeekModel = "deepseek-chat"
	OpenAIBaseURL        = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "gpt-4o"
)

type openAIBackend struct {
	client openai.Client
	model  string
}

func newOpenAIBackend(baseURL, apiKey, model string) *openAIBackend {
	return &openAIBackend{
		client: openai.NewClient(
			option.WithBaseURL(normalizeBaseURL(baseURL)),
			option.WithAPIKey(apiKey),
		),
		model: model,
	}
}

func (o *openAIBackend) Generate(ctx context.Context, req Request) (string, error) {
	param := openai.ChatCompletionNewParams{
		Model:       o.model,
		Messages:    openAIMessages(req),
		Temperature: openai.Float(0.8),
	}

	resp, err := o.client.Chat.Completions.New(ctx, param)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func openAIMessages(req Request) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	messages = append(messages, openai.SystemMessage(req.System))
	for _, m := range req.History {
		switch m.Role {
		case chat.RoleUser:
			messages = append(messages, openai.UserMessage(m.Content))
		case chat.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		}
	}
	return append(messages, openai.UserMessage(req.Prompt))
}

// normalizeBaseURL 接受完整的 /chat/completions 地址，SDK 需要的是它的前缀。
func normalizeBaseURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return OpenAIBaseURL + "/"
	}
	u = strings.TrimRight(u, "/")
	u = strings.TrimSuffix(u, "/chat/completions")
	return u + "/"
}
