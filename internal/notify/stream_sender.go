package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// StreamSender 写入 Redis Stream，由通知服务消费
type StreamSender struct {
	client *redis.Client
	stream string
}

func NewStreamSender(client *redis.Client, stream string) *StreamSender {
	return &StreamSender{client: client, stream: stream}
}

func (s *StreamSender) Send(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"tenant_id": n.TenantID,
			"user_id":   n.UserID,
			"data":      string(data),
			"timestamp": fmt.Sprintf("%d", time.Now().Unix()),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish notification to stream %s: %w", s.stream, err)
	}
	return nil
}
