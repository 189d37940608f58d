package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"catalog/internal/domain"
	"catalog/internal/util"
)

// ProductQueue enqueues sanitized product rows. The message key is a fresh
// id that doubles as the message id on the consuming side.
type ProductQueue struct {
	producer Producer
	topic    string
}

func NewProductQueue(producer Producer, topic string) *ProductQueue {
	return &ProductQueue{producer: producer, topic: topic}
}

func (q *ProductQueue) PublishRow(ctx context.Context, in domain.ProductInput) (string, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("failed to marshal product row: %w", err)
	}
	messageID := util.GenerateUUID()
	if err := q.producer.Produce(ctx, q.topic, []byte(messageID), body); err != nil {
		return "", err
	}
	return messageID, nil
}
