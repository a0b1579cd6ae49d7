package main

import (
	"context"
	"encoding/json"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/alerts"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/cache"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/logger"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/notify"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

func main() {
	source := flag.String("source", "kafka", "Trigger event source: kafka or redis")
	broker := flag.String("kafka", "localhost:9094", "Kafka bootstrap servers")
	group := flag.String("group", "alert-dispatch-group", "Kafka consumer group id")
	redisAddr := flag.String("redis", "localhost:6379", "Redis address (redis source)")
	flag.Parse()

	logger.InitLogger()
	defer logger.Sync()

	// External channels (email, SMS, push) plug in here; the logging
	// dispatcher is the default.
	var dispatcher notify.Dispatcher = notify.LogDispatcher{}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch *source {
	case "redis":
		runRedis(ctx, *redisAddr, dispatcher)
	default:
		runKafka(ctx, *broker, *group, dispatcher)
	}

	logger.Log.Info("Dispatcher shutting down")
}

func runKafka(ctx context.Context, broker, group string, dispatcher notify.Dispatcher) {
	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers": broker,
		"group.id":          group,
		"auto.offset.reset": "earliest",
	})
	if err != nil {
		logger.Log.Fatal("Failed to create Kafka consumer", zap.Error(err))
	}
	defer consumer.Close()

	if err := consumer.Subscribe(notify.TriggerTopic, nil); err != nil {
		logger.Log.Fatal("Failed to subscribe to trigger topic", zap.Error(err))
	}

	logger.Log.Info("Dispatcher listening for alert triggers",
		zap.String("topic", notify.TriggerTopic),
		zap.String("group", group),
	)

	for ctx.Err() == nil {
		msg, err := consumer.ReadMessage(time.Second)
		if err != nil {
			if kerr, ok := err.(kafka.Error); ok && kerr.IsTimeout() {
				continue
			}
			logger.Log.Error("Kafka consumer error", zap.Error(err))
			continue
		}
		deliver(ctx, dispatcher, msg.Value)
	}
}

// runRedis consumes the trigger pub/sub channel instead of Kafka. Redis
// pub/sub is fire-and-forget, so triggers published while the dispatcher is
// down are lost; Kafka is the durable path.
func runRedis(ctx context.Context, addr string, dispatcher notify.Dispatcher) {
	if err := cache.InitRedis(addr); err != nil {
		logger.Log.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	subscriber, err := cache.NewRedisSubscriber(cache.ChannelAlertTriggers)
	if err != nil {
		logger.Log.Fatal("Failed to subscribe to trigger channel", zap.Error(err))
	}
	defer subscriber.Close()

	logger.Log.Info("Dispatcher listening for alert triggers",
		zap.String("channel", cache.ChannelAlertTriggers),
	)

	for ctx.Err() == nil {
		msg, err := subscriber.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Log.Error("Redis subscriber error", zap.Error(err))
			continue
		}
		deliver(ctx, dispatcher, []byte(msg.Payload))
	}
}

// deliver parses one trigger event and hands it to the dispatcher. Each
// trigger is delivered at most once per channel; a failed delivery is
// logged and dropped, never retried into a duplicate.
func deliver(ctx context.Context, dispatcher notify.Dispatcher, payload []byte) {
	var event alerts.TriggerEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		logger.Log.Error("Failed to parse trigger event", zap.Error(err))
		return
	}

	if err := dispatcher.Deliver(ctx, event); err != nil {
		logger.Log.Error("Failed to deliver alert notification",
			zap.String("alert_id", event.AlertID),
			zap.String("user_id", event.UserID),
			zap.Error(err),
		)
	}
}
