package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"catalog/internal/domain"
)

type fakeRepo struct {
	mu      sync.Mutex
	records map[string]domain.CatalogRecord
	stock   map[string]domain.StockRecord
	err     error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		records: make(map[string]domain.CatalogRecord),
		stock:   make(map[string]domain.StockRecord),
	}
}

func (r *fakeRepo) CreateWithStock(_ context.Context, record domain.CatalogRecord, stock domain.StockRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if _, ok := r.records[record.ID]; ok {
		return domain.ErrDuplicateID
	}
	if _, ok := r.stock[stock.ProductID]; ok {
		return domain.ErrDuplicateID
	}
	r.records[record.ID] = record
	r.stock[stock.ProductID] = stock
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, id string) (*domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	p := domain.NewProduct(record, r.stock[id])
	return &p, nil
}

func (r *fakeRepo) List(context.Context) ([]domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	products := make([]domain.Product, 0, len(r.records))
	for id, record := range r.records {
		products = append(products, domain.NewProduct(record, r.stock[id]))
	}
	return products, nil
}

func newTestService(t *testing.T, repo *fakeRepo) *productService {
	return NewProductService(repo, zaptest.NewLogger(t)).(*productService)
}

func TestCreateProductWritesMatchingRecords(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo)

	in, err := Sanitize(map[string]any{"title": "  Mug  ", "price": 29.99, "count": float64(10)})
	if err != nil {
		t.Fatalf("unexpected sanitize error: %v", err)
	}

	product, err := svc.CreateProduct(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if product.ID == "" || product.Title != "Mug" || product.Count != 10 {
		t.Fatalf("unexpected product: %+v", product)
	}
	if _, ok := repo.records[product.ID]; !ok {
		t.Fatal("catalog record missing")
	}
	if s, ok := repo.stock[product.ID]; !ok || s.Count != 10 {
		t.Fatalf("stock record missing or wrong: %+v", s)
	}
}

func TestCreateProductNeverClobbersEarlierWrites(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()

	first, err := svc.CreateProduct(ctx, domain.ProductInput{Title: "Mug", Price: 1, Count: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.CreateProduct(ctx, domain.ProductInput{Title: "Plate", Price: 2, Count: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ID == second.ID {
		t.Fatal("expected distinct ids")
	}
	if repo.records[first.ID].Title != "Mug" || repo.stock[first.ID].Count != 1 {
		t.Fatal("first product was overwritten")
	}
}

func TestCreateProductRejectsInvalidInputWithoutWriting(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo)

	_, err := svc.CreateProduct(context.Background(), domain.ProductInput{Price: 0, Count: 5})

	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(vErr.Fields) != 2 {
		t.Fatalf("expected title and price errors, got %v", vErr.Fields)
	}
	if len(repo.records) != 0 {
		t.Fatal("no write should happen for invalid input")
	}
}

func TestCreateProductReportsCollisionAsConflict(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo)
	svc.newID = func() string { return "fixed" }

	in := domain.ProductInput{Title: "Mug", Price: 1, Count: 1}
	if _, err := svc.CreateProduct(context.Background(), in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := svc.CreateProduct(context.Background(), in)
	if !errors.Is(err, domain.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	if len(repo.records) != 1 || len(repo.stock) != 1 {
		t.Fatal("collision must not add records")
	}
}

func TestCreateProductPropagatesStoreErrors(t *testing.T) {
	repo := newFakeRepo()
	repo.err = fmt.Errorf("%w: connection refused", domain.ErrStoreUnavailable)
	svc := newTestService(t, repo)

	_, err := svc.CreateProduct(context.Background(), domain.ProductInput{Title: "Mug", Price: 1, Count: 1})
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestGetProduct(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()

	created, err := svc.CreateProduct(ctx, domain.ProductInput{Title: "Mug", Price: 1, Count: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := svc.GetProduct(ctx, created.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *got != *created {
		t.Fatalf("expected %+v, got %+v", created, got)
	}

	if _, err := svc.GetProduct(ctx, "missing"); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestListProductsWrapsErrors(t *testing.T) {
	repo := newFakeRepo()
	repo.err = errors.New("boom")
	svc := newTestService(t, repo)

	if _, err := svc.ListProducts(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
