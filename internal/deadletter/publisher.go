package deadletter

import (
	"context"
	"fmt"

	"github.com/nerrad567/tswrite/internal/infrastructure/mqtt"
)

// JSONPublisher publishes a value as JSON. Satisfied by *mqtt.Client.
type JSONPublisher interface {
	PublishJSON(topic string, v any) error
}

// MQTTPublisher announces records on <prefix>/deadletter/<reason>.
type MQTTPublisher struct {
	client JSONPublisher
	topics mqtt.Topics
}

var _ Sink = (*MQTTPublisher)(nil)

// NewMQTTPublisher creates a publisher sink.
func NewMQTTPublisher(client JSONPublisher, topics mqtt.Topics) *MQTTPublisher {
	return &MQTTPublisher{client: client, topics: topics}
}

// Name identifies the sink in logs.
func (p *MQTTPublisher) Name() string {
	return "mqtt"
}

// Save publishes rec. The MQTT client applies its own publish timeout; ctx
// is only checked before sending.
func (p *MQTTPublisher) Save(ctx context.Context, rec *Record) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("publishing dead letter: %w", err)
	}
	if err := p.client.PublishJSON(p.topics.DeadLetter(string(rec.Reason)), rec); err != nil {
		return fmt.Errorf("publishing dead letter: %w", err)
	}
	return nil
}
