package notify

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// ErrNoSender 没有配置推送通道
var ErrNoSender = errors.New("push sender not configured")

// Push 一条推送的内容
type Push struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Delivery 单个设备的投递结果
type Delivery struct {
	Token     string `json:"token"`
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Report 一次多播的汇总
type Report struct {
	SuccessCount int        `json:"successCount"`
	FailureCount int        `json:"failureCount"`
	Responses    []Delivery `json:"responses"`
}

// Sender 把推送投递到设备 token。
type Sender interface {
	Send(ctx context.Context, tokens []string, p Push) (Report, error)
}

// FCMSender 通过 Firebase Cloud Messaging 多播。
type FCMSender struct {
	client *messaging.Client
}

// NewFCMSender 用服务账号文件初始化 Firebase。
func NewFCMSender(ctx context.Context, credentialsFile string) (*FCMSender, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase messaging: %w", err)
	}
	return &FCMSender{client: client}, nil
}

func (s *FCMSender) Send(ctx context.Context, tokens []string, p Push) (Report, error) {
	resp, err := s.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
		Tokens:       tokens,
		Notification: &messaging.Notification{Title: p.Title, Body: p.Body},
	})
	if err != nil {
		return Report{}, fmt.Errorf("fcm multicast: %w", err)
	}

	report := Report{
		SuccessCount: resp.SuccessCount,
		FailureCount: resp.FailureCount,
		Responses:    make([]Delivery, 0, len(resp.Responses)),
	}
	for i, r := range resp.Responses {
		d := Delivery{Success: r.Success, MessageID: r.MessageID}
		if i < len(tokens) {
			d.Token = tokens[i]
		}
		if r.Error != nil {
			d.Error = r.Error.Error()
		}
		report.Responses = append(report.Responses, d)
	}
	return report, nil
}
