package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"catalog/internal/util"
)

// MessageHandler processes one message. Returning an error leaves the
// offset uncommitted.
type MessageHandler func(ctx context.Context, msg kafka.Message) error

// messageReader is the part of *kafka.Reader the consumers use.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader  messageReader
	logger  *zap.Logger
	topic   string
	groupID string
}

func newReader(brokers []string, groupID, topic string, l *zap.Logger) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:                brokers,
		GroupID:                groupID,
		Topic:                  topic,
		MinBytes:               1,
		MaxBytes:               10e6,
		MaxWait:                500 * time.Millisecond,
		ReadBatchTimeout:       time.Second,
		Logger:                 debugLogger(l),
		ErrorLogger:            errorLogger(l),
		HeartbeatInterval:      3 * time.Second,
		PartitionWatchInterval: 5 * time.Second,
		MaxAttempts:            3,
	})
}

func NewConsumer(brokers []string, groupID, topic string, l *zap.Logger) *Consumer {
	l = l.With(zap.String("kafka_component", "consumer"), zap.String("topic", topic))
	return &Consumer{
		reader:  newReader(brokers, groupID, topic, l),
		logger:  l,
		topic:   topic,
		groupID: groupID,
	}
}

// Run fetches, handles and commits messages one at a time until ctx ends.
func (c *Consumer) Run(ctx context.Context, handler MessageHandler) error {
	c.logger.Info("Kafka consumer starting", zap.String("group_id", c.groupID))
	backoff := util.NewBackoff(500*time.Millisecond, 30*time.Second, 2)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return c.close()
			}
			c.logger.Error("Failed to fetch message from Kafka", zap.Error(err))
			if waitErr := backoff.Wait(ctx); waitErr != nil {
				return c.close()
			}
			continue
		}
		backoff.Reset()

		if err := handler(ctx, msg); err != nil {
			c.logger.Error("Error handling Kafka message, will not commit offset",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("Failed to commit offset for Kafka message",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			continue
		}
		c.logger.Debug("Kafka message offset committed",
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset))
	}
}

func (c *Consumer) close() error {
	if err := c.reader.Close(); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Error("Failed to close Kafka consumer", zap.Error(err))
		return fmt.Errorf("failed to close Kafka consumer: %w", err)
	}
	c.logger.Info("Kafka consumer closed.")
	return nil
}

// MessageID returns the producer-assigned key, falling back to the
// message coordinates when the key is empty.
func MessageID(msg kafka.Message) string {
	if len(msg.Key) > 0 {
		return string(msg.Key)
	}
	return fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
}
