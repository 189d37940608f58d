package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"catalog/internal/domain"
)

type fakeCreator struct {
	mu      sync.Mutex
	created []domain.ProductInput
	failOn  map[string]error
}

func (c *fakeCreator) CreateProduct(_ context.Context, in domain.ProductInput) (*domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.failOn[in.Title]; ok {
		return nil, err
	}
	c.created = append(c.created, in)
	return &domain.Product{
		CatalogRecord: domain.CatalogRecord{
			ID:    fmt.Sprintf("id-%s", in.Title),
			Title: in.Title,
			Price: in.Price,
		},
		Count: int64(in.Count),
	}, nil
}

type recordingNotifier struct {
	calls    int
	products []domain.Product
}

func (n *recordingNotifier) Notify(_ context.Context, products []domain.Product) {
	n.calls++
	n.products = products
}

func msg(id, body string) Message {
	return Message{ID: id, Body: []byte(body)}
}

func newTestProcessor(t *testing.T, creator ProductCreator, notifier Notifier, workers int) *Processor {
	t.Helper()
	p, err := NewProcessor(creator, notifier, workers, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	return p
}

func TestProcessSkipsInvalidMessageAndNotifiesCreated(t *testing.T) {
	for _, workers := range []int{1, 3} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			creator := &fakeCreator{}
			notifier := &recordingNotifier{}
			p := newTestProcessor(t, creator, notifier, workers)

			result, err := p.Process(context.Background(), []Message{
				msg("m1", `{"title":"Mug","price":29.99,"count":10}`),
				msg("m2", `{"title":"","price":5,"count":1}`),
				msg("m3", `{"title":"Plate","price":12.5,"count":2}`),
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if len(creator.created) != 2 {
				t.Fatalf("expected 2 writes, got %d", len(creator.created))
			}
			if len(result.Created) != 2 || result.Created[0].Title != "Mug" || result.Created[1].Title != "Plate" {
				t.Fatalf("unexpected created list: %+v", result.Created)
			}
			wantStatus := []Status{StatusCreated, StatusSkipped, StatusCreated}
			for i, o := range result.Outcomes {
				if o.Status != wantStatus[i] {
					t.Fatalf("outcome %d: expected %s, got %s", i, wantStatus[i], o.Status)
				}
			}
			if result.Outcomes[1].MessageID != "m2" || result.Outcomes[1].Reason == "" {
				t.Fatalf("expected skipped outcome to carry a reason: %+v", result.Outcomes[1])
			}

			if notifier.calls != 1 || len(notifier.products) != 2 {
				t.Fatalf("expected one notification with 2 products, got %d calls / %d products", notifier.calls, len(notifier.products))
			}
		})
	}
}

func TestProcessZeroCreatedSendsNoNotification(t *testing.T) {
	notifier := &recordingNotifier{}
	p := newTestProcessor(t, &fakeCreator{}, notifier, 1)

	result, err := p.Process(context.Background(), []Message{
		msg("m1", `not json`),
		msg("m2", `{"price":0,"count":5}`),
		msg("m3", `[1,2,3]`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Created) != 0 {
		t.Fatalf("expected nothing created, got %d", len(result.Created))
	}
	for _, o := range result.Outcomes {
		if o.Status != StatusSkipped {
			t.Fatalf("expected skipped outcome, got %+v", o)
		}
	}
	if !errors.Is(result.Outcomes[0].Err, domain.ErrMalformedInput) || !errors.Is(result.Outcomes[2].Err, domain.ErrMalformedInput) {
		t.Fatalf("expected malformed input for m1 and m3: %+v", result.Outcomes)
	}
	var vErr *domain.ValidationError
	if !errors.As(result.Outcomes[1].Err, &vErr) || len(vErr.Fields) != 2 {
		t.Fatalf("expected title and price errors for m2: %+v", result.Outcomes[1])
	}
	if notifier.calls != 0 {
		t.Fatalf("expected no notification, got %d", notifier.calls)
	}
}

func TestProcessIsolatesWriteFailures(t *testing.T) {
	creator := &fakeCreator{failOn: map[string]error{
		"Lamp": domain.ErrDuplicateID,
		"Vase": fmt.Errorf("%w: timeout", domain.ErrStoreUnavailable),
	}}
	notifier := &recordingNotifier{}
	p := newTestProcessor(t, creator, notifier, 1)

	result, err := p.Process(context.Background(), []Message{
		msg("m1", `{"title":"Lamp","price":1,"count":1}`),
		msg("m2", `{"title":"Vase","price":1,"count":1}`),
		msg("m3", `{"title":"Cup","price":1,"count":1}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Outcomes[0].Status != StatusFailed || !errors.Is(result.Outcomes[0].Err, domain.ErrDuplicateID) {
		t.Fatalf("unexpected first outcome: %+v", result.Outcomes[0])
	}
	if result.Outcomes[1].Status != StatusFailed || !errors.Is(result.Outcomes[1].Err, domain.ErrStoreUnavailable) {
		t.Fatalf("unexpected second outcome: %+v", result.Outcomes[1])
	}
	if result.Outcomes[2].Status != StatusCreated {
		t.Fatalf("unexpected third outcome: %+v", result.Outcomes[2])
	}
	if notifier.calls != 1 || len(notifier.products) != 1 {
		t.Fatalf("expected notification with 1 product, got %d calls / %+v", notifier.calls, notifier.products)
	}
}

func TestProcessInterruptedBeforeAnyWriteIsRedelivered(t *testing.T) {
	notifier := &recordingNotifier{}
	creator := &fakeCreator{failOn: map[string]error{"Mug": context.Canceled}}
	p := newTestProcessor(t, creator, notifier, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Process(ctx, []Message{msg("m1", `{"title":"Mug","price":1,"count":1}`)})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if notifier.calls != 0 {
		t.Fatal("batch without writes must not notify")
	}
}

// cancellingCreator commits the first product and then ends the batch context.
type cancellingCreator struct {
	fakeCreator
	cancel context.CancelFunc
}

func (c *cancellingCreator) CreateProduct(ctx context.Context, in domain.ProductInput) (*domain.Product, error) {
	if len(c.created) > 0 {
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, context.Canceled)
	}
	product, err := c.fakeCreator.CreateProduct(ctx, in)
	c.cancel()
	return product, err
}

type ctxNotifier struct {
	recordingNotifier
	ctxErr error
}

func (n *ctxNotifier) Notify(ctx context.Context, products []domain.Product) {
	n.ctxErr = ctx.Err()
	n.recordingNotifier.Notify(ctx, products)
}

func TestProcessInterruptedAfterWriteStillNotifies(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	creator := &cancellingCreator{cancel: cancel}
	notifier := &ctxNotifier{}
	p := newTestProcessor(t, creator, notifier, 1)

	result, err := p.Process(ctx, []Message{
		msg("m1", `{"title":"Mug","price":1,"count":1}`),
		msg("m2", `{"title":"Plate","price":1,"count":1}`),
	})
	if err != nil {
		t.Fatalf("batch with committed writes must not be redelivered, got %v", err)
	}
	if len(result.Created) != 1 || result.Created[0].Title != "Mug" {
		t.Fatalf("unexpected created list: %+v", result.Created)
	}
	if result.Outcomes[1].Status != StatusFailed {
		t.Fatalf("expected second message to fail, got %+v", result.Outcomes[1])
	}
	if notifier.calls != 1 || len(notifier.products) != 1 {
		t.Fatalf("expected one notification with 1 product, got %d calls / %+v", notifier.calls, notifier.products)
	}
	if notifier.ctxErr != nil {
		t.Fatalf("notification context must outlive the batch context, got %v", notifier.ctxErr)
	}
}

func TestNewProcessorRequiresCreator(t *testing.T) {
	if _, err := NewProcessor(nil, nil, 1, zaptest.NewLogger(t)); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestProcessWithoutNotifier(t *testing.T) {
	p := newTestProcessor(t, &fakeCreator{}, nil, 1)

	result, err := p.Process(context.Background(), []Message{msg("m1", `{"title":"Mug","price":1,"count":1}`)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Created) != 1 {
		t.Fatalf("expected 1 created, got %d", len(result.Created))
	}
}
