package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultInterval 定时主动消息的间隔
const DefaultInterval = 6 * time.Hour

// Scheduler 每隔固定时间生成一条随机类别的主动消息。
type Scheduler struct {
	service  *Service
	interval time.Duration
	logger   zerolog.Logger
}

// NewScheduler 创建调度器，interval 非正时使用 DefaultInterval。
func NewScheduler(service *Service, interval time.Duration, logger zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{service: service, interval: interval, logger: logger}
}

// Run 阻塞到 ctx 结束，返回 nil。单次生成失败只记日志。
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("notification scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("notification scheduler stopped")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	t := s.service.randomType()
	s.logger.Info().Str("type", string(t)).Msg("generating scheduled notification")
	if _, err := s.service.Generate(ctx, t, ""); err != nil {
		s.logger.Error().Err(err).Str("type", string(t)).Msg("scheduled notification failed")
	}
}
