package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IngestRows counts CSV rows by outcome (enqueued, invalid, publish_failed).
	IngestRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_ingest_rows_total",
		Help: "Total number of CSV rows read by the ingest reader",
	}, []string{"status"})

	// IngestFiles counts storage objects by outcome (processed, skipped, parse_error, read_error).
	IngestFiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_ingest_files_total",
		Help: "Total number of storage objects seen by the ingest reader",
	}, []string{"status"})

	ArchiveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_ingest_archive_failures_total",
		Help: "Total number of source files that could not be moved to the archive prefix",
	})

	// BatchMessages counts queue messages by outcome (created, skipped, failed).
	BatchMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_batch_messages_total",
		Help: "Total number of queue messages handled by the batch processor",
	}, []string{"outcome"})

	BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_batch_duration_seconds",
		Help:    "Duration of batch processing in seconds",
		Buckets: prometheus.DefBuckets,
	})

	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_batch_size",
		Help:    "Number of messages delivered per batch",
		Buckets: []float64{1, 2, 5, 10, 25, 50},
	})

	// Notifications counts batch notifications by status (sent, failed, skipped).
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_notifications_total",
		Help: "Total number of batch notifications attempted",
	}, []string{"status"})

	// ProductsCreated counts committed products by source (http, batch, seed).
	ProductsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_products_created_total",
		Help: "Total number of products written to the catalog",
	}, []string{"source"})

	// BrokerHealthy is 1 while the notification broker connection is open.
	BrokerHealthy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_notification_broker_healthy",
		Help: "Current health of the notification broker connection (1 healthy, 0 unhealthy)",
	})
)
