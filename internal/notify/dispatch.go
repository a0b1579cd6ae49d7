// Package notify hands triggered alerts to the external notification
// dispatch service. Trigger events are produced to Kafka and published on
// the redis channel; the dispatcher binary consumes either source and owns
// channel delivery (email/SMS/push stay outside this service).
package notify

import (
	"context"
	"encoding/json"

	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/alerts"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/cache"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/logger"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

// TriggerTopic carries alert trigger events to the dispatcher.
const TriggerTopic = "alert.triggers"

// Producer forwards trigger events to Kafka. It implements the alert
// engine's Sink; a delivery failure is logged and never rolls back the
// triggering transition.
type Producer struct {
	producer *kafka.Producer
}

// NewProducer connects a Kafka producer to the given broker.
func NewProducer(broker string) (*Producer, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{"bootstrap.servers": broker})
	if err != nil {
		return nil, err
	}
	return &Producer{producer: p}, nil
}

// AlertTriggered publishes one trigger event. Keyed by user id so one
// user's notifications stay ordered within a partition.
func (p *Producer) AlertTriggered(_ context.Context, event alerts.TriggerEvent) {
	value, err := json.Marshal(event)
	if err != nil {
		logger.Log.Error("Failed to marshal trigger event", zap.Error(err))
		return
	}

	topic := TriggerTopic
	err = p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(event.UserID),
		Value:          value,
	}, nil)
	if err != nil {
		logger.Log.Error("Failed to produce trigger event",
			zap.String("alert_id", event.AlertID),
			zap.Error(err),
		)
	}
}

// Close flushes and releases the underlying producer.
func (p *Producer) Close() {
	p.producer.Flush(5000)
	p.producer.Close()
}

// RedisPublisher mirrors trigger events onto the redis pub/sub channel.
// It implements the alert engine's Sink and backs the dispatcher's redis
// source when Kafka is not deployed.
type RedisPublisher struct{}

// AlertTriggered publishes one trigger event on the redis channel. Redis
// pub/sub is fire-and-forget, so a publish failure is logged and dropped.
func (RedisPublisher) AlertTriggered(_ context.Context, event alerts.TriggerEvent) {
	value, err := json.Marshal(event)
	if err != nil {
		logger.Log.Error("Failed to marshal trigger event", zap.Error(err))
		return
	}

	if err := cache.PublishMessage(cache.ChannelAlertTriggers, string(value)); err != nil {
		logger.Log.Warn("Failed to publish trigger event to redis", zap.Error(err))
	}
}

// Dispatcher is the external collaborator contract: deliver one trigger
// event to a user over a configured channel.
type Dispatcher interface {
	Deliver(ctx context.Context, event alerts.TriggerEvent) error
}

// LogDispatcher is the default Dispatcher: it records the delivery instead
// of sending anything. Real email/SMS/push integrations replace it.
type LogDispatcher struct{}

// Deliver logs the would-be notification.
func (LogDispatcher) Deliver(_ context.Context, event alerts.TriggerEvent) error {
	logger.Log.Info("Dispatching alert notification",
		zap.String("user_id", event.UserID),
		zap.String("symbol", event.Symbol),
		zap.String("direction", string(event.Direction)),
		zap.Float64("target", event.TargetPrice),
		zap.Float64("current_price", event.CurrentPrice),
		zap.String("message", event.Message),
	)
	return nil
}
