package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// gatewayResponse 通知网关响应
type gatewayResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// HTTPSender 通过通知网关 HTTP 接口投递
type HTTPSender struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewHTTPSender 创建通知网关客户端
func NewHTTPSender(baseURL, token string, logger *zap.Logger) *HTTPSender {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}

	return &HTTPSender{
		httpClient: client,
		logger:     logger,
	}
}

func (s *HTTPSender) Send(ctx context.Context, n Notification) error {
	var response gatewayResponse
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetBody(n).
		SetResult(&response).
		Post("/api/v1/notifications")
	if err != nil {
		return fmt.Errorf("failed to call notification gateway: %w", err)
	}

	if resp.IsError() {
		s.logger.Warn("Notification gateway returned error status",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("user_id", n.UserID),
		)
		return fmt.Errorf("notification gateway error: status %d", resp.StatusCode())
	}
	if response.Code != 0 && response.Code != 2000 {
		return fmt.Errorf("notification gateway error: %s (code: %d)", response.Message, response.Code)
	}
	return nil
}
