package simulator

import (
	"context"

	rediscommon "patientvitals/common/redis"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Publisher sends one encoded event and returns the broker's message ID
type Publisher interface {
	Publish(ctx context.Context, payload []byte) (string, error)
}

// StreamPublisher XADDs events onto a Redis stream
type StreamPublisher struct {
	client *redis.Client
	stream string
}

// NewStreamPublisher creates a Redis Streams publisher
func NewStreamPublisher(client *redis.Client, stream string) *StreamPublisher {
	return &StreamPublisher{client: client, stream: stream}
}

// Publish implements Publisher
func (p *StreamPublisher) Publish(ctx context.Context, payload []byte) (string, error) {
	return rediscommon.PublishPayload(ctx, p.client, p.stream, payload)
}

// mqttPublisher the part of the MQTT client the publisher needs
type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTPublisher publishes events to an MQTT topic
type MQTTPublisher struct {
	client mqttPublisher
	topic  string
	qos    byte
}

// NewMQTTPublisher creates an MQTT publisher
func NewMQTTPublisher(client mqttPublisher, topic string, qos byte) *MQTTPublisher {
	return &MQTTPublisher{client: client, topic: topic, qos: qos}
}

// Publish implements Publisher. MQTT has no message IDs we can see, so a
// UUID is generated for logging.
func (p *MQTTPublisher) Publish(ctx context.Context, payload []byte) (string, error) {
	done := make(chan error, 1)
	go func() {
		done <- p.client.Publish(p.topic, p.qos, false, payload)
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case err := <-done:
		if err != nil {
			return "", err
		}
		return uuid.NewString(), nil
	}
}
