package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"catalog/internal/app/batch"
	"catalog/internal/app/catalog"
	"catalog/internal/config"
	http_products "catalog/internal/handler/http/products"
	"catalog/internal/handler/http/server"
	kafka_handler "catalog/internal/handler/kafka"
	"catalog/internal/infrastructure/database"
	"catalog/internal/infrastructure/kafka"
	"catalog/internal/infrastructure/rabbitmq"
	"catalog/internal/notify"
	postgres_product_repo "catalog/internal/repository/product_repo/postgres"
	"catalog/internal/util"
	"catalog/migrations"
)

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
	appLogger.Info("Product Service starting...")

	if err := cfg.ValidateCatalog(); err != nil {
		appLogger.Fatal("Invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbConfig := database.DBConfig{
		Host:     cfg.DBConfig.Host,
		Port:     cfg.DBConfig.Port,
		User:     cfg.DBConfig.User,
		Password: cfg.DBConfig.Password,
		DBName:   cfg.DBConfig.Name,
		SSLMode:  cfg.DBConfig.SSLMode,
	}
	appLogger.Info("Waiting for database to be available...")
	db, err := database.ConnectWithRetry(ctx, dbConfig, cfg.DBConfig.ConnectRetries, appLogger)
	if err != nil {
		appLogger.Fatal("Could not connect to database. Exiting.", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			appLogger.Error("Error closing database connection", zap.Error(err))
		} else {
			appLogger.Info("Database connection closed.")
		}
	}()

	appLogger.Info("Running database migrations...")
	if err := database.RunMigrations(migrations.FS, dbConfig, appLogger); err != nil {
		appLogger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	productRepository, err := postgres_product_repo.NewProductRepository(db, cfg.ProductsTable, cfg.StockTable,
		appLogger.With(zap.String("component", "ProductRepository")))
	if err != nil {
		appLogger.Fatal("Failed to create product repository", zap.Error(err))
	}
	productService := catalog.NewProductService(productRepository, appLogger.With(zap.String("component", "ProductService")))

	var topic notify.Topic
	if cfg.NotifyExchange == "" {
		appLogger.Warn("NOTIFY_EXCHANGE is empty, batch notifications are disabled")
	} else {
		rabbitTopic, err := rabbitmq.NewTopic(cfg.RabbitMQURL, cfg.NotifyExchange, cfg.NotifyRoutingKey,
			appLogger.With(zap.String("component", "NotificationTopic")))
		if err != nil {
			appLogger.Error("Invalid notification topic, batch notifications are disabled", zap.Error(err))
		} else {
			topic = rabbitTopic
			defer rabbitTopic.Close()
		}
	}
	notifier := notify.NewPublisher(topic, appLogger.With(zap.String("component", "NotificationPublisher")))

	processor, err := batch.NewProcessor(productService, notifier, cfg.CatalogBatchWorkers,
		appLogger.With(zap.String("component", "BatchProcessor")))
	if err != nil {
		appLogger.Fatal("Failed to create batch processor", zap.Error(err))
	}

	brokers := cfg.GetKafkaBrokers()
	topicCtx, cancelTopics := context.WithTimeout(ctx, 30*time.Second)
	if err := kafka.EnsureTopics(topicCtx, brokers, []string{cfg.KafkaCatalogTopic}, appLogger); err != nil {
		appLogger.Warn("Failed to ensure Kafka topics", zap.Error(err))
	}
	cancelTopics()

	batchConsumer := kafka.NewBatchConsumer(brokers, cfg.KafkaCatalogGroup, cfg.KafkaCatalogTopic,
		cfg.CatalogBatchSize, cfg.CatalogBatchWindow, appLogger)
	catalogHandler := kafka_handler.NewCatalogBatchConsumer(processor, appLogger.With(zap.String("component", "CatalogBatchConsumer")))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := batchConsumer.Run(ctx, catalogHandler.HandleBatch); err != nil {
			appLogger.Error("Catalog batch consumer stopped with error", zap.Error(err))
		}
	}()
	appLogger.Info("Catalog batch consumer started",
		zap.String("topic", cfg.KafkaCatalogTopic),
		zap.Int("batch_size", cfg.CatalogBatchSize))

	r := server.NewRouter(cfg.CORSAllowedOrigins)
	http_products.RegisterRoutes(r, productService, appLogger)

	srv := server.NewServer(fmt.Sprintf(":%d", cfg.HTTPPort), r)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()
	appLogger.Info("Product Service started", zap.String("address", srv.Addr))

	<-ctx.Done()

	appLogger.Info("Shutting down Product Service...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Product Service graceful shutdown failed", zap.Error(err))
	}
	wg.Wait()
	appLogger.Info("Product Service stopped.")
}
