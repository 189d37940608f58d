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

	"catalog/internal/app/ingest"
	"catalog/internal/config"
	http_imports "catalog/internal/handler/http/imports"
	"catalog/internal/handler/http/server"
	kafka_handler "catalog/internal/handler/kafka"
	"catalog/internal/infrastructure/kafka"
	"catalog/internal/infrastructure/storage"
	"catalog/internal/util"
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
	appLogger.Info("Import Service starting...")

	if err := cfg.ValidateImport(); err != nil {
		appLogger.Fatal("Invalid configuration", zap.Error(err))
	}
	if cfg.ImportBucket == "" {
		appLogger.Warn("IMPORT_BUCKET is empty, upload URLs cannot be issued")
	}
	if len(cfg.AuthCredentials) == 0 {
		appLogger.Warn("AUTH_CREDENTIALS is empty, every import request will be rejected")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	objectStore, err := storage.NewClient(storage.Config{
		Endpoint:  cfg.S3Config.Endpoint,
		AccessKey: cfg.S3Config.AccessKey,
		SecretKey: cfg.S3Config.SecretKey,
		UseSSL:    cfg.S3Config.UseSSL,
		Region:    cfg.S3Config.Region,
	}, appLogger.With(zap.String("component", "ObjectStore")))
	if err != nil {
		appLogger.Fatal("Failed to create object storage client", zap.Error(err))
	}

	brokers := cfg.GetKafkaBrokers()
	topicCtx, cancelTopics := context.WithTimeout(ctx, 30*time.Second)
	if err := kafka.EnsureTopics(topicCtx, brokers, []string{cfg.KafkaCatalogTopic, cfg.KafkaStorageEventsTopic}, appLogger); err != nil {
		appLogger.Warn("Failed to ensure Kafka topics", zap.Error(err))
	}
	cancelTopics()

	kafkaProducer, err := kafka.NewProducer(brokers, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to create Kafka producer", zap.Error(err))
	}
	defer func() {
		if err := kafkaProducer.Close(); err != nil {
			appLogger.Error("Error closing Kafka producer", zap.Error(err))
		}
	}()
	productQueue := kafka.NewProductQueue(kafkaProducer, cfg.KafkaCatalogTopic)

	reader, err := ingest.NewReader(objectStore, productQueue, ingest.Config{
		IncomingPrefix:     cfg.ImportIncomingPrefix,
		ArchivePrefix:      cfg.ImportArchivePrefix,
		Encoding:           cfg.ImportCSVEncoding,
		PublishConcurrency: cfg.ImportPublishConcurrency,
	}, appLogger.With(zap.String("component", "CSVIngestReader")))
	if err != nil {
		appLogger.Fatal("Failed to create CSV ingest reader", zap.Error(err))
	}

	storageConsumer := kafka.NewConsumer(brokers, cfg.KafkaStorageEventsGroup, cfg.KafkaStorageEventsTopic, appLogger)
	storageHandler := kafka_handler.NewStorageEventConsumer(reader, appLogger.With(zap.String("component", "StorageEventConsumer")))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := storageConsumer.Run(ctx, storageHandler.HandleMessage); err != nil {
			appLogger.Error("Storage event consumer stopped with error", zap.Error(err))
		}
	}()
	appLogger.Info("Storage event consumer started", zap.String("topic", cfg.KafkaStorageEventsTopic))

	importHandler := http_imports.NewImportHandler(objectStore, cfg.ImportBucket, cfg.ImportIncomingPrefix, cfg.ImportURLTTL,
		appLogger.With(zap.String("component", "ImportHTTPHandler")))

	r := server.NewRouter(cfg.CORSAllowedOrigins)
	http_imports.RegisterRoutes(r, importHandler, cfg.AuthCredentials, appLogger)

	srv := server.NewServer(fmt.Sprintf(":%d", cfg.HTTPPort), r)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()
	appLogger.Info("Import Service started", zap.String("address", srv.Addr))

	<-ctx.Done()

	appLogger.Info("Shutting down Import Service...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Import Service graceful shutdown failed", zap.Error(err))
	}
	wg.Wait()
	appLogger.Info("Import Service stopped.")
}
