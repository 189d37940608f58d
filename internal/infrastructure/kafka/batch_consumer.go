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

// BatchHandler processes a whole batch. Returning an error leaves the
// batch uncommitted.
type BatchHandler func(ctx context.Context, msgs []kafka.Message) error

// BatchConsumer groups messages into batches of at most size, waiting no
// longer than window for a batch to fill once its first message arrived.
// Offsets are committed only after the handler accepted the batch.
type BatchConsumer struct {
	reader  messageReader
	size    int
	window  time.Duration
	logger  *zap.Logger
	topic   string
	groupID string
}

func NewBatchConsumer(brokers []string, groupID, topic string, size int, window time.Duration, l *zap.Logger) *BatchConsumer {
	l = l.With(zap.String("kafka_component", "batch_consumer"), zap.String("topic", topic))
	return newBatchConsumer(newReader(brokers, groupID, topic, l), groupID, topic, size, window, l)
}

func newBatchConsumer(reader messageReader, groupID, topic string, size int, window time.Duration, l *zap.Logger) *BatchConsumer {
	if size < 1 {
		size = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &BatchConsumer{
		reader:  reader,
		size:    size,
		window:  window,
		logger:  l,
		topic:   topic,
		groupID: groupID,
	}
}

// commitTimeout bounds the offset commit of a handled batch, which still
// runs when ctx ended during the handler.
const commitTimeout = 10 * time.Second

func (c *BatchConsumer) Run(ctx context.Context, handler BatchHandler) error {
	c.logger.Info("Kafka batch consumer starting",
		zap.String("group_id", c.groupID),
		zap.Int("batch_size", c.size),
		zap.Duration("batch_window", c.window))
	backoff := util.NewBackoff(500*time.Millisecond, 30*time.Second, 2)

	for {
		batch, err := c.collect(ctx)
		if ctx.Err() != nil {
			return c.close()
		}
		if err != nil {
			c.logger.Error("Failed to fetch batch from Kafka", zap.Int("fetched", len(batch)), zap.Error(err))
			if len(batch) == 0 {
				if waitErr := backoff.Wait(ctx); waitErr != nil {
					return c.close()
				}
				continue
			}
		}
		backoff.Reset()

		last := batch[len(batch)-1]
		if err := handler(ctx, batch); err != nil {
			c.logger.Error("Error handling Kafka batch, will not commit offsets",
				zap.Int("messages", len(batch)),
				zap.Int64("last_offset", last.Offset),
				zap.Error(err))
			continue
		}

		commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
		err = c.reader.CommitMessages(commitCtx, batch...)
		cancel()
		if err != nil {
			c.logger.Error("Failed to commit batch offsets",
				zap.Int("messages", len(batch)),
				zap.Int64("last_offset", last.Offset),
				zap.Error(err))
			continue
		}
		c.logger.Debug("Kafka batch offsets committed",
			zap.Int("messages", len(batch)),
			zap.Int64("last_offset", last.Offset))
	}
}

// collect blocks for the first message, then keeps fetching until the batch
// is full or the window closes. Messages fetched before an error are
// returned together with it.
func (c *BatchConsumer) collect(ctx context.Context) ([]kafka.Message, error) {
	first, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	batch := make([]kafka.Message, 0, c.size)
	batch = append(batch, first)

	windowCtx, cancel := context.WithTimeout(ctx, c.window)
	defer cancel()

	for len(batch) < c.size {
		msg, err := c.reader.FetchMessage(windowCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				break
			}
			return batch, err
		}
		batch = append(batch, msg)
	}
	return batch, nil
}

func (c *BatchConsumer) close() error {
	if err := c.reader.Close(); err != nil {
		c.logger.Error("Failed to close Kafka batch consumer", zap.Error(err))
		return fmt.Errorf("failed to close Kafka batch consumer: %w", err)
	}
	c.logger.Info("Kafka batch consumer closed.")
	return nil
}
