package ai

import (
	"context"

	"github.com/zhouzirui/chobits/backend/internal/model/chat"
)

// Request 一次模型调用的输入。History 只包含用户和助手消息。
type Request struct {
	System  string
	History []chat.Message
	Prompt  string
}

// Backend 对接一个大模型服务商，返回模型的原始文本。
type Backend interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, req Request) (string, error)

func (f BackendFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
