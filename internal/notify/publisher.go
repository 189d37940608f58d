package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"catalog/internal/domain"
	"catalog/internal/metrics"
)

// Topic is a notification destination that accepts a subject and a body.
type Topic interface {
	Publish(ctx context.Context, subject string, body []byte) error
}

// Publisher announces created products. Notify never returns an error:
// delivery is advisory and must not be confused with a write failure.
type Publisher struct {
	topic  Topic
	logger *zap.Logger
	now    func() time.Time
}

// NewPublisher accepts a nil topic; notifications are then skipped with a
// warning.
func NewPublisher(topic Topic, logger *zap.Logger) *Publisher {
	return &Publisher{topic: topic, logger: logger, now: time.Now}
}

func Subject(total int) string {
	return fmt.Sprintf("Catalog batch processed (%d)", total)
}

func (p *Publisher) Notify(ctx context.Context, products []domain.Product) {
	if len(products) == 0 {
		return
	}
	if p.topic == nil {
		p.logger.Warn("Notification destination is not configured, skipping", zap.Int("total", len(products)))
		metrics.Notifications.WithLabelValues("skipped").Inc()
		return
	}

	event := domain.NewProductsCreatedEvent(products, p.now())
	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal products created event", zap.Int("total", event.Total), zap.Error(err))
		metrics.Notifications.WithLabelValues("failed").Inc()
		return
	}

	if err := p.topic.Publish(ctx, Subject(event.Total), body); err != nil {
		p.logger.Error("Failed to publish products created notification", zap.Int("total", event.Total), zap.Error(err))
		metrics.Notifications.WithLabelValues("failed").Inc()
		return
	}

	p.logger.Info("Products created notification published", zap.Int("total", event.Total))
	metrics.Notifications.WithLabelValues("sent").Inc()
}
