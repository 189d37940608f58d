package product_repo

import (
	"context"

	"catalog/internal/domain"
)

type ProductRepository interface {
	// CreateWithStock writes both halves of a product atomically. It fails
	// with domain.ErrDuplicateID when either key is already taken.
	CreateWithStock(ctx context.Context, record domain.CatalogRecord, stock domain.StockRecord) error
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	List(ctx context.Context) ([]domain.Product, error)
}
