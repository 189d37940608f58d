package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"catalog/internal/config"
	"catalog/internal/domain"
	"catalog/internal/infrastructure/database"
	"catalog/internal/metrics"
	"catalog/internal/repository/product_repo"
	postgres_product_repo "catalog/internal/repository/product_repo/postgres"
	"catalog/internal/util"
	"catalog/migrations"
)

//go:embed catalog.json
var catalogJSON []byte

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	appLogger, err := util.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create zap logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	products, err := loadCatalog(catalogJSON)
	if err != nil {
		appLogger.Fatal("Failed to decode sample catalog", zap.Error(err))
	}

	dbConfig := database.DBConfig{
		Host:     cfg.DBConfig.Host,
		Port:     cfg.DBConfig.Port,
		User:     cfg.DBConfig.User,
		Password: cfg.DBConfig.Password,
		DBName:   cfg.DBConfig.Name,
		SSLMode:  cfg.DBConfig.SSLMode,
	}
	db, err := database.ConnectWithRetry(ctx, dbConfig, cfg.DBConfig.ConnectRetries, appLogger)
	if err != nil {
		appLogger.Fatal("Could not connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := database.RunMigrations(migrations.FS, dbConfig, appLogger); err != nil {
		appLogger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	repo, err := postgres_product_repo.NewProductRepository(db, cfg.ProductsTable, cfg.StockTable, appLogger.With(zap.String("component", "ProductRepository")))
	if err != nil {
		appLogger.Fatal("Failed to create product repository", zap.Error(err))
	}

	created, skipped, err := seed(ctx, repo, products, appLogger)
	if err != nil {
		appLogger.Fatal("Seeding failed", zap.Int("created", created), zap.Int("skipped", skipped), zap.Error(err))
	}
	appLogger.Info("Seeding finished", zap.Int("created", created), zap.Int("skipped", skipped))
}

func loadCatalog(data []byte) ([]domain.Product, error) {
	var products []domain.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// seed writes every product under its fixed id and skips ids that already
// exist.
func seed(ctx context.Context, repo product_repo.ProductRepository, products []domain.Product, l *zap.Logger) (created, skipped int, err error) {
	for _, p := range products {
		err := repo.CreateWithStock(ctx, p.CatalogRecord, domain.StockRecord{ProductID: p.ID, Count: p.Count})
		switch {
		case err == nil:
			created++
			metrics.ProductsCreated.WithLabelValues("seed").Inc()
			l.Info("Seeded product", zap.String("product_id", p.ID), zap.String("title", p.Title))
		case errors.Is(err, domain.ErrDuplicateID):
			skipped++
			l.Info("Product already exists, skipping", zap.String("product_id", p.ID), zap.String("title", p.Title))
		default:
			return created, skipped, fmt.Errorf("seed product %s: %w", p.ID, err)
		}
	}
	return created, skipped, nil
}
