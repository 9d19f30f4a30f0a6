package notify

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"slideboard-measure/internal/config"
)

// 通知类型
const (
	TypeSystem     = "SYSTEM"
	TypeEscalation = "ESCALATION"
)

// Notification 发给单个用户的站内通知
type Notification struct {
	TenantID string `json:"tenantId"`
	UserID   string `json:"userId"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Type     string `json:"type"`
	Link     string `json:"link,omitempty"`
}

// Sender 通知投递
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// LogSender 只写日志（未配置投递通道时使用）
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, n Notification) error {
	s.logger.Info("notification",
		zap.String("tenant_id", n.TenantID),
		zap.String("user_id", n.UserID),
		zap.String("type", n.Type),
		zap.String("title", n.Title),
		zap.String("link", n.Link),
	)
	return nil
}

// NewSender 按配置选择投递通道，返回的 closer 在服务退出时调用
func NewSender(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) (Sender, func(), error) {
	noop := func() {}
	switch cfg.Notify.Transport {
	case "http":
		return NewHTTPSender(cfg.Notify.HTTPAddress, cfg.Notify.HTTPToken, logger), noop, nil
	case "redis":
		if redisClient == nil {
			return nil, noop, fmt.Errorf("redis transport requires a redis client")
		}
		return NewStreamSender(redisClient, cfg.Notify.Stream), noop, nil
	case "mqtt":
		s, err := DialMQTTSender(&cfg.MQTT, logger)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case "", "log":
		return NewLogSender(logger), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown notify transport: %s", cfg.Notify.Transport)
	}
}
