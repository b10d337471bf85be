// Package producer provides Kafka producer functionality for the notifications.ready topic.
package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/stargan-id/jaga-gizi-alerting/internal/events"
)

const (
	// writeTimeout is the maximum time to wait for a Kafka write operation.
	writeTimeout = 10 * time.Second
	// dialTimeout bounds the best-effort topic creation at startup.
	dialTimeout = 5 * time.Second
)

// Producer publishes NotificationReady dispatch requests to Kafka.
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// ParseBrokers splits a comma-separated broker list and trims whitespace.
func ParseBrokers(brokers string) []string {
	if strings.TrimSpace(brokers) == "" {
		return nil
	}
	list := strings.Split(brokers, ",")
	out := list[:0]
	for _, b := range list {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// NewProducer creates a new Kafka producer with the specified brokers and topic.
// The producer is configured for at-least-once delivery semantics with synchronous writes.
func NewProducer(brokers string, topic string) (*Producer, error) {
	brokerList := ParseBrokers(brokers)
	if len(brokerList) == 0 {
		return nil, fmt.Errorf("brokers cannot be empty")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}

	slog.Info("Initializing Kafka producer",
		"brokers", brokerList,
		"topic", topic,
	)

	createTopicIfNotExists(brokerList[0], topic)

	// Messages are keyed by user_id so one recipient's requests stay ordered on a partition.
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokerList...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: writeTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
	}, nil
}

// Publish serializes a dispatch request to JSON and writes it to Kafka.
func (p *Producer) Publish(ctx context.Context, ready *events.NotificationReady) error {
	payload, err := json.Marshal(ready)
	if err != nil {
		return fmt.Errorf("failed to marshal notification ready event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(ready.UserID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "schema_version", Value: []byte(strconv.Itoa(ready.SchemaVersion))},
			{Key: "priority", Value: []byte(ready.Priority)},
			{Key: "alert_id", Value: []byte(ready.AlertID)},
		},
		Time: time.Unix(ready.CreatedAt, 0),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	slog.Debug("Published notification ready event",
		"notification_id", ready.NotificationID,
		"alert_id", ready.AlertID,
		"user_id", ready.UserID,
		"priority", ready.Priority,
	)
	return nil
}

// Close gracefully closes the Kafka writer and releases resources.
func (p *Producer) Close() error {
	slog.Info("Closing Kafka producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		slog.Error("Error closing Kafka producer", "error", err)
		return err
	}
	return nil
}

// createTopicIfNotExists creates the topic on the controller broker. Failures are logged only;
// clusters with auto-creation or pre-provisioned topics do not need it.
func createTopicIfNotExists(broker, topic string) {
	dialer := &kafka.Dialer{Timeout: dialTimeout}
	conn, err := dialer.Dial("tcp", broker)
	if err != nil {
		slog.Warn("Could not connect to Kafka to ensure topic", "broker", broker, "topic", topic, "error", err)
		return
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		slog.Warn("Could not find Kafka controller", "topic", topic, "error", err)
		return
	}
	ctrlConn, err := dialer.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		slog.Warn("Could not connect to Kafka controller", "topic", topic, "error", err)
		return
	}
	defer ctrlConn.Close()

	err = ctrlConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     3,
		ReplicationFactor: 1,
	})
	if err != nil {
		slog.Debug("Topic creation skipped", "topic", topic, "error", err)
		return
	}
	slog.Info("Ensured Kafka topic exists", "topic", topic)
}

// LogPublisher logs dispatch requests instead of sending them. It is used when no broker is configured.
type LogPublisher struct {
	Logger *slog.Logger
}

// Publish logs the request at info level.
func (l LogPublisher) Publish(_ context.Context, ready *events.NotificationReady) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Notification ready (no broker configured)",
		"notification_id", ready.NotificationID,
		"alert_id", ready.AlertID,
		"user_id", ready.UserID,
		"channels", ready.Channels,
		"dispatch_after", time.Unix(ready.DispatchAfter, 0).UTC(),
	)
	return nil
}

// Close does nothing.
func (LogPublisher) Close() error { return nil }
