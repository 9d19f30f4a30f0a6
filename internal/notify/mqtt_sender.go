package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"slideboard-measure/internal/config"
)

const mqttPublishTimeout = 5 * time.Second

// publisher mqtt.Client 中用到的部分
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTSender 推送到移动端订阅的主题 <prefix>/<tenant_id>/<user_id>
type MQTTSender struct {
	client      publisher
	topicPrefix string
	qos         byte
	logger      *zap.Logger
	disconnect  func()
}

// DialMQTTSender 连接 Broker 并返回 Sender
func DialMQTTSender(cfg *config.MQTTConfig, logger *zap.Logger) (*MQTTSender, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	s := newMQTTSender(client, cfg.TopicPrefix, cfg.QoS, logger)
	s.disconnect = func() { client.Disconnect(250) }
	return s, nil
}

func newMQTTSender(client publisher, topicPrefix string, qos byte, logger *zap.Logger) *MQTTSender {
	return &MQTTSender{
		client:      client,
		topicPrefix: topicPrefix,
		qos:         qos,
		logger:      logger,
	}
}

// Topic 用户通知主题
func (s *MQTTSender) Topic(tenantID, userID string) string {
	return fmt.Sprintf("%s/%s/%s", s.topicPrefix, tenantID, userID)
}

func (s *MQTTSender) Send(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	topic := s.Topic(n.TenantID, n.UserID)
	token := s.client.Publish(topic, s.qos, false, payload)

	timeout := mqttPublishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("timed out publishing to topic %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}
	return nil
}

// Close 断开连接
func (s *MQTTSender) Close() {
	if s.disconnect != nil {
		s.disconnect()
	}
}
