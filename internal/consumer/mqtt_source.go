package consumer

import (
	"context"
	"fmt"
	"sync"

	mqttcommon "patientvitals/common/mqtt"
	"patientvitals/internal/pipeline"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Subscriber the part of the MQTT client the source needs
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// MQTTSource delivers vitals payloads published on an MQTT topic.
// A message is acknowledged to the broker only through pipeline.Message.Ack,
// so a QoS 1 message whose append failed is redelivered by the broker's
// session instead of being lost.
type MQTTSource struct {
	client Subscriber
	topic  string
	qos    byte
	logger *zap.Logger
}

// NewMQTTSource creates an MQTT source
func NewMQTTSource(client Subscriber, topic string, qos byte, logger *zap.Logger) *MQTTSource {
	return &MQTTSource{
		client: client,
		topic:  topic,
		qos:    qos,
		logger: logger,
	}
}

// Start implements pipeline.Source
func (s *MQTTSource) Start(ctx context.Context) (<-chan pipeline.Message, <-chan error) {
	msgCh := make(chan pipeline.Message)
	errCh := make(chan error, 1)

	var mu sync.RWMutex
	closed := false

	handler := func(m mqtt.Message) error {
		mu.RLock()
		defer mu.RUnlock()
		if closed {
			return fmt.Errorf("source stopped, leaving message on %s unacknowledged", m.Topic())
		}

		msg := pipeline.Message{
			ID:      uuid.NewString(),
			Payload: m.Payload(),
			Ack: func(context.Context) error {
				m.Ack()
				return nil
			},
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msgCh <- msg:
			return nil
		}
	}

	go func() {
		if err := s.client.Subscribe(s.topic, s.qos, handler); err != nil {
			errCh <- err
		} else {
			s.logger.Info("MQTT source started", zap.String("topic", s.topic))
		}

		<-ctx.Done()

		if err := s.client.Unsubscribe(s.topic); err != nil {
			s.logger.Warn("Failed to unsubscribe", zap.String("topic", s.topic), zap.Error(err))
		}

		mu.Lock()
		closed = true
		close(msgCh)
		close(errCh)
		mu.Unlock()
	}()

	return msgCh, errCh
}
