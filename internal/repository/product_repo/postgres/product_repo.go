package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"catalog/internal/domain"
	"catalog/internal/repository/product_repo"
)

type pgProductRepository struct {
	db     *sql.DB
	logger *zap.Logger

	insertProductQuery string
	insertStockQuery   string
	selectByIDQuery    string
	selectAllQuery     string
}

func NewProductRepository(db *sql.DB, productsTable, stockTable string, l *zap.Logger) (product_repo.ProductRepository, error) {
	if productsTable == "" || stockTable == "" {
		return nil, fmt.Errorf("%w: products and stock table names are required", domain.ErrConfiguration)
	}
	products := pq.QuoteIdentifier(productsTable)
	stock := pq.QuoteIdentifier(stockTable)

	selectColumns := fmt.Sprintf(
		`SELECT p.id, p.title, p.description, p.price, p.image, COALESCE(s.count, 0) FROM %s p LEFT JOIN %s s ON s.product_id = p.id`,
		products, stock)

	return &pgProductRepository{
		db:                 db,
		logger:             l,
		insertProductQuery: fmt.Sprintf(`INSERT INTO %s (id, title, description, price, image) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (id) DO NOTHING`, products),
		insertStockQuery:   fmt.Sprintf(`INSERT INTO %s (product_id, count) VALUES ($1, $2) ON CONFLICT (product_id) DO NOTHING`, stock),
		selectByIDQuery:    selectColumns + ` WHERE p.id = $1`,
		selectAllQuery:     selectColumns + ` ORDER BY p.title, p.id`,
	}, nil
}

func (r *pgProductRepository) CreateWithStock(ctx context.Context, record domain.CatalogRecord, stock domain.StockRecord) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to begin transaction for product creation", zap.String("product_id", record.ID), zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", classify(err))
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Panic during product creation transaction, rolling back", zap.String("product_id", record.ID))
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			r.logger.Warn("Rolling back product creation transaction", zap.String("product_id", record.ID), zap.Error(err))
			_ = tx.Rollback()
		} else {
			if err = tx.Commit(); err != nil {
				r.logger.Error("Failed to commit product creation transaction", zap.String("product_id", record.ID), zap.Error(err))
				err = fmt.Errorf("failed to commit product %s: %w", record.ID, classify(err))
			} else {
				r.logger.Debug("Product creation transaction committed", zap.String("product_id", record.ID))
			}
		}
	}()

	if err = insertOnce(ctx, tx, r.insertProductQuery, record.ID, record.Title, record.Description, record.Price, nullString(record.Image)); err != nil {
		return fmt.Errorf("tx failed to insert catalog record %s: %w", record.ID, err)
	}
	if err = insertOnce(ctx, tx, r.insertStockQuery, stock.ProductID, stock.Count); err != nil {
		return fmt.Errorf("tx failed to insert stock record %s: %w", stock.ProductID, err)
	}
	return nil
}

// insertOnce runs a conditional insert and reports ErrDuplicateID when the
// target key already held a row.
func insertOnce(ctx context.Context, q domain.Querier, query string, args ...any) error {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return classify(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check insert result: %w", err)
	}
	if affected == 0 {
		return domain.ErrDuplicateID
	}
	return nil
}

func (r *pgProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	product, err := scanProduct(r.db.QueryRowContext(ctx, r.selectByIDQuery, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}
		r.logger.Error("Failed to get product by ID", zap.String("product_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get product by ID %s: %w", id, classify(err))
	}
	return product, nil
}

func (r *pgProductRepository) List(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, r.selectAllQuery)
	if err != nil {
		r.logger.Error("Failed to query products", zap.Error(err))
		return nil, fmt.Errorf("failed to list products: %w", classify(err))
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			r.logger.Error("Failed to scan product row", zap.Error(err))
			return nil, fmt.Errorf("failed to scan product row: %w", err)
		}
		products = append(products, *product)
	}
	if err = rows.Err(); err != nil {
		r.logger.Error("Rows error for product list", zap.Error(err))
		return nil, fmt.Errorf("rows error: %w", classify(err))
	}
	return products, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var (
		p     domain.Product
		image sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Title, &p.Description, &p.Price, &image, &p.Count); err != nil {
		return nil, err
	}
	p.Image = image.String
	return &p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// classify maps driver failures onto the domain taxonomy, keeping the cause
// in the chain.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "23505":
			return fmt.Errorf("%w: %s", domain.ErrDuplicateID, pqErr.Message)
		case pqErr.Code == "55P03":
			return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
		}
		switch pqErr.Code.Class() {
		case "08", "40", "53", "57":
			return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
		}
		return err
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return err
}
