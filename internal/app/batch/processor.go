package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"catalog/internal/app/catalog"
	"catalog/internal/domain"
	"catalog/internal/metrics"
)

type Status string

const (
	StatusCreated Status = "created"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Message is one queue delivery. Body is untrusted.
type Message struct {
	ID   string
	Body []byte
}

type MessageOutcome struct {
	MessageID string
	Status    Status
	Product   *domain.Product
	Reason    string
	Err       error
}

// Result lists one outcome per message in delivery order.
type Result struct {
	Outcomes []MessageOutcome
	Created  []domain.Product
}

type ProductCreator interface {
	CreateProduct(ctx context.Context, in domain.ProductInput) (*domain.Product, error)
}

type Notifier interface {
	Notify(ctx context.Context, products []domain.Product)
}

// notifyTimeout bounds the notification sent after ctx has already ended.
const notifyTimeout = 10 * time.Second

type Processor struct {
	creator  ProductCreator
	notifier Notifier
	workers  int
	logger   *zap.Logger
}

// NewProcessor builds a processor that handles up to workers messages of a
// batch at once. workers <= 1 processes messages sequentially.
func NewProcessor(creator ProductCreator, notifier Notifier, workers int, logger *zap.Logger) (*Processor, error) {
	if creator == nil {
		return nil, fmt.Errorf("%w: batch processor needs a product writer", domain.ErrConfiguration)
	}
	if workers < 1 {
		workers = 1
	}
	return &Processor{creator: creator, notifier: notifier, workers: workers, logger: logger}, nil
}

// Process isolates every message: a failure is recorded in its outcome and
// never stops its siblings. A notification is sent only when at least one
// product was created, even if ctx ended meanwhile. The returned error is
// non-nil only when ctx ended before anything was created, in which case the
// batch should be redelivered.
func (p *Processor) Process(ctx context.Context, msgs []Message) (*Result, error) {
	start := time.Now()
	defer func() {
		metrics.BatchDuration.Observe(time.Since(start).Seconds())
	}()
	metrics.BatchSize.Observe(float64(len(msgs)))

	outcomes := make([]MessageOutcome, len(msgs))
	if p.workers == 1 || len(msgs) < 2 {
		for i, msg := range msgs {
			outcomes[i] = p.processMessage(ctx, msg)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(p.workers)
		for i, msg := range msgs {
			i, msg := i, msg
			g.Go(func() error {
				outcomes[i] = p.processMessage(ctx, msg)
				return nil
			})
		}
		_ = g.Wait()
	}

	result := &Result{Outcomes: outcomes}
	for _, o := range outcomes {
		metrics.BatchMessages.WithLabelValues(string(o.Status)).Inc()
		if o.Status == StatusCreated {
			result.Created = append(result.Created, *o.Product)
		}
	}

	p.logger.Info("Batch processed",
		zap.Int("messages", len(msgs)),
		zap.Int("created", len(result.Created)),
		zap.Duration("duration", time.Since(start)))

	if len(result.Created) == 0 {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("batch interrupted: %w", err)
		}
		return result, nil
	}

	if p.notifier != nil {
		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		p.notifier.Notify(notifyCtx, result.Created)
	}
	return result, nil
}

func (p *Processor) processMessage(ctx context.Context, msg Message) MessageOutcome {
	outcome := MessageOutcome{MessageID: msg.ID}
	l := p.logger.With(zap.String("message_id", msg.ID))

	var raw any
	if err := json.Unmarshal(msg.Body, &raw); err != nil {
		l.Warn("Dropping message with unparseable payload", zap.Error(err))
		outcome.Status = StatusSkipped
		outcome.Reason = "unparseable payload"
		outcome.Err = fmt.Errorf("%w: %w", domain.ErrMalformedInput, err)
		return outcome
	}

	in, err := catalog.SanitizeAndValidate(raw)
	if err != nil {
		var vErr *domain.ValidationError
		if errors.As(err, &vErr) {
			l.Warn("Skipping message that failed validation", zap.Strings("errors", vErr.Messages()))
			outcome.Reason = strings.Join(vErr.Messages(), "; ")
		} else {
			l.Warn("Dropping malformed product message", zap.Error(err))
			outcome.Reason = "malformed product"
		}
		outcome.Status = StatusSkipped
		outcome.Err = err
		return outcome
	}

	product, err := p.creator.CreateProduct(ctx, in)
	if err != nil {
		l.Error("Failed to create product from message", zap.Error(err))
		outcome.Status = StatusFailed
		outcome.Err = err
		return outcome
	}

	metrics.ProductsCreated.WithLabelValues("batch").Inc()
	outcome.Status = StatusCreated
	outcome.Product = product
	return outcome
}
