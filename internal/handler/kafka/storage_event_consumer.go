package kafka

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/aws/aws-lambda-go/events"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"catalog/internal/app/ingest"
)

type FileIngester interface {
	Ingest(ctx context.Context, bucket, key string) (ingest.Summary, error)
}

// StorageEventConsumer turns S3-style bucket notifications into ingest
// runs, one per record.
type StorageEventConsumer struct {
	ingester FileIngester
	logger   *zap.Logger
}

func NewStorageEventConsumer(i FileIngester, l *zap.Logger) *StorageEventConsumer {
	return &StorageEventConsumer{ingester: i, logger: l}
}

// HandleMessage never fails the message: a bad event or a failed file is
// logged and the offset is committed, leaving the file for manual
// follow-up.
func (c *StorageEventConsumer) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var event events.S3Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		c.logger.Error("Error unmarshalling storage event", zap.Error(err), zap.ByteString("raw_message", msg.Value))
		return nil
	}
	if len(event.Records) == 0 {
		c.logger.Debug("Storage event without records", zap.Int64("offset", msg.Offset))
		return nil
	}

	for _, record := range event.Records {
		bucket := record.S3.Bucket.Name
		key, err := url.QueryUnescape(record.S3.Object.Key)
		if err != nil {
			c.logger.Error("Invalid object key in storage event",
				zap.String("bucket", bucket),
				zap.String("raw_key", record.S3.Object.Key),
				zap.Error(err))
			continue
		}

		l := c.logger.With(zap.String("bucket", bucket), zap.String("key", key), zap.String("event", record.EventName))
		summary, err := c.ingester.Ingest(ctx, bucket, key)
		if err != nil {
			l.Error("CSV ingest failed", zap.Error(err))
			continue
		}
		if summary.Skipped {
			continue
		}
		l.Info("CSV ingest completed",
			zap.Int("total_rows", summary.TotalRows),
			zap.Int("enqueued", summary.Enqueued),
			zap.Int("errors", summary.Errors))
	}
	return nil
}
