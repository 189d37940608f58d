package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"catalog/internal/app/batch"
	kafka_infra "catalog/internal/infrastructure/kafka"
)

type BatchProcessor interface {
	Process(ctx context.Context, msgs []batch.Message) (*batch.Result, error)
}

type CatalogBatchConsumer struct {
	processor BatchProcessor
	logger    *zap.Logger
}

func NewCatalogBatchConsumer(p BatchProcessor, l *zap.Logger) *CatalogBatchConsumer {
	return &CatalogBatchConsumer{processor: p, logger: l}
}

// HandleBatch hands a delivered batch to the processor. Per-message
// failures are already absorbed by the processor, so an error here means
// the batch was interrupted and must not be committed.
func (c *CatalogBatchConsumer) HandleBatch(ctx context.Context, msgs []kafka.Message) error {
	batchMsgs := make([]batch.Message, len(msgs))
	for i, m := range msgs {
		batchMsgs[i] = batch.Message{ID: kafka_infra.MessageID(m), Body: m.Value}
	}

	result, err := c.processor.Process(ctx, batchMsgs)
	if err != nil {
		c.logger.Warn("Catalog batch interrupted", zap.Int("messages", len(msgs)), zap.Error(err))
		return err
	}

	for _, o := range result.Outcomes {
		if o.Status != batch.StatusCreated {
			c.logger.Info("Catalog message not created",
				zap.String("message_id", o.MessageID),
				zap.String("status", string(o.Status)),
				zap.String("reason", o.Reason),
				zap.Error(o.Err))
		}
	}
	return nil
}
