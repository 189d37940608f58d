package catalog

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"catalog/internal/domain"
	"catalog/internal/repository/product_repo"
	"catalog/internal/util"
)

// ProductService owns the atomic product creation protocol shared by the
// HTTP API and the batch processor.
type ProductService interface {
	CreateProduct(ctx context.Context, in domain.ProductInput) (*domain.Product, error)
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
}

type productService struct {
	repo   product_repo.ProductRepository
	newID  func() string
	logger *zap.Logger
}

func NewProductService(repo product_repo.ProductRepository, logger *zap.Logger) ProductService {
	return &productService{
		repo:   repo,
		newID:  util.GenerateUUID,
		logger: logger,
	}
}

// CreateProduct validates in, assigns a fresh id and writes the catalog and
// stock records in one transaction. Every call mints a new id, so a retry
// never collides with an earlier attempt.
func (s *productService) CreateProduct(ctx context.Context, in domain.ProductInput) (*domain.Product, error) {
	if fieldErrs := Validate(in); len(fieldErrs) > 0 {
		return nil, domain.NewValidationError(fieldErrs)
	}

	record := domain.CatalogRecord{
		ID:          s.newID(),
		Title:       in.Title,
		Description: in.Description,
		Price:       in.Price,
		Image:       in.Image,
	}
	stock := domain.StockRecord{ProductID: record.ID, Count: int64(in.Count)}

	if err := s.repo.CreateWithStock(ctx, record, stock); err != nil {
		switch {
		case errors.Is(err, domain.ErrDuplicateID):
			s.logger.Warn("Product id collision, nothing was written", zap.String("product_id", record.ID), zap.Error(err))
		case errors.Is(err, domain.ErrStoreUnavailable):
			s.logger.Warn("Product store unavailable", zap.String("product_id", record.ID), zap.Error(err))
		default:
			s.logger.Error("Failed to write product", zap.String("product_id", record.ID), zap.Error(err))
		}
		return nil, fmt.Errorf("create product: %w", err)
	}

	s.logger.Info("Product created", zap.String("product_id", record.ID), zap.String("title", record.Title), zap.Int64("count", stock.Count))

	product := domain.NewProduct(record, stock)
	return &product, nil
}

func (s *productService) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	product, err := s.repo.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			s.logger.Debug("Product not found", zap.String("product_id", productID))
			return nil, err
		}
		s.logger.Error("Failed to get product from repository", zap.String("product_id", productID), zap.Error(err))
		return nil, fmt.Errorf("get product: %w", err)
	}
	return product, nil
}

func (s *productService) ListProducts(ctx context.Context) ([]domain.Product, error) {
	products, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Error("Failed to list products from repository", zap.Error(err))
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}
