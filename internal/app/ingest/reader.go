package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"catalog/internal/app/catalog"
	"catalog/internal/domain"
	"catalog/internal/metrics"
)

const (
	EncodingUTF8        = "utf-8"
	EncodingWindows1252 = "windows-1252"
)

type ObjectStore interface {
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	CopyObject(ctx context.Context, bucket, srcKey, dstKey string) error
	DeleteObject(ctx context.Context, bucket, key string) error
}

// RowPublisher enqueues one sanitized row and returns its message id.
type RowPublisher interface {
	PublishRow(ctx context.Context, in domain.ProductInput) (string, error)
}

type Config struct {
	IncomingPrefix     string
	ArchivePrefix      string
	Encoding           string
	PublishConcurrency int
}

// Summary counts every row of one file. Errors covers rows that failed
// validation as well as rows whose publish failed.
type Summary struct {
	Bucket    string `json:"bucket"`
	Key       string `json:"key"`
	Skipped   bool   `json:"skipped,omitempty"`
	TotalRows int    `json:"totalRows"`
	Enqueued  int    `json:"enqueued"`
	Errors    int    `json:"errors"`
}

type Reader struct {
	store     ObjectStore
	publisher RowPublisher
	cfg       Config
	logger    *zap.Logger
}

func NewReader(store ObjectStore, publisher RowPublisher, cfg Config, logger *zap.Logger) (*Reader, error) {
	if cfg.IncomingPrefix == "" || cfg.ArchivePrefix == "" {
		return nil, fmt.Errorf("%w: incoming and archive prefixes are required", domain.ErrConfiguration)
	}
	if cfg.IncomingPrefix == cfg.ArchivePrefix {
		return nil, fmt.Errorf("%w: archive prefix must differ from incoming prefix", domain.ErrConfiguration)
	}
	switch strings.ToLower(cfg.Encoding) {
	case "", EncodingUTF8, "utf8":
		cfg.Encoding = EncodingUTF8
	case EncodingWindows1252, "cp1252":
		cfg.Encoding = EncodingWindows1252
	default:
		return nil, fmt.Errorf("%w: unsupported CSV encoding %q", domain.ErrConfiguration, cfg.Encoding)
	}
	if cfg.PublishConcurrency < 1 {
		cfg.PublishConcurrency = 1
	}
	return &Reader{store: store, publisher: publisher, cfg: cfg, logger: logger}, nil
}

// Accepts reports whether key is a CSV file under the incoming prefix.
func (r *Reader) Accepts(key string) bool {
	return strings.HasPrefix(key, r.cfg.IncomingPrefix) &&
		strings.EqualFold(path.Ext(key), ".csv")
}

func (r *Reader) ArchiveKey(key string) string {
	return r.cfg.ArchivePrefix + strings.TrimPrefix(key, r.cfg.IncomingPrefix)
}

// Ingest streams bucket/key row by row and enqueues every valid row. The
// source object is moved to the archive prefix once the stream ends, even
// when parsing failed; a parse error is returned only after that attempt.
func (r *Reader) Ingest(ctx context.Context, bucket, key string) (Summary, error) {
	summary := Summary{Bucket: bucket, Key: key}
	l := r.logger.With(zap.String("bucket", bucket), zap.String("key", key))

	if !r.Accepts(key) {
		l.Info("Ignoring object outside the incoming CSV prefix")
		metrics.IngestFiles.WithLabelValues("skipped").Inc()
		summary.Skipped = true
		return summary, nil
	}

	body, err := r.store.GetObject(ctx, bucket, key)
	if err != nil {
		l.Error("Failed to open object for ingest", zap.Error(err))
		metrics.IngestFiles.WithLabelValues("read_error").Inc()
		return summary, fmt.Errorf("open %s/%s: %w", bucket, key, err)
	}

	streamErr := r.stream(ctx, body, &summary, l)
	if err := body.Close(); err != nil {
		l.Warn("Failed to close object body", zap.Error(err))
	}

	r.archive(ctx, bucket, key, l)

	l.Info("CSV ingest finished",
		zap.Int("total_rows", summary.TotalRows),
		zap.Int("enqueued", summary.Enqueued),
		zap.Int("errors", summary.Errors),
		zap.Bool("parse_failed", streamErr != nil))

	if streamErr != nil {
		metrics.IngestFiles.WithLabelValues("parse_error").Inc()
		return summary, fmt.Errorf("%w: csv %s/%s: %w", domain.ErrMalformedInput, bucket, key, streamErr)
	}
	metrics.IngestFiles.WithLabelValues("processed").Inc()
	return summary, nil
}

func (r *Reader) stream(ctx context.Context, body io.Reader, summary *Summary, l *zap.Logger) error {
	cr := csv.NewReader(r.decode(body))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		l.Warn("CSV object is empty")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	for i, h := range header {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}

	var (
		enqueued atomic.Int64
		failed   atomic.Int64
		rows     int
		g        errgroup.Group
	)
	g.SetLimit(r.cfg.PublishConcurrency)

	for {
		record, readErr := cr.Read()
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			err = readErr
			break
		}
		rows++
		row := rows

		in, vErr := catalog.SanitizeAndValidate(rowToRaw(header, record))
		if vErr != nil {
			l.Warn("Skipping invalid CSV row", zap.Int("row", row), zap.Error(vErr))
			metrics.IngestRows.WithLabelValues("invalid").Inc()
			failed.Add(1)
			continue
		}

		g.Go(func() error {
			messageID, pubErr := r.publisher.PublishRow(ctx, in)
			if pubErr != nil {
				l.Error("Failed to enqueue CSV row", zap.Int("row", row), zap.Error(pubErr))
				metrics.IngestRows.WithLabelValues("publish_failed").Inc()
				failed.Add(1)
				return nil
			}
			l.Debug("CSV row enqueued", zap.Int("row", row), zap.String("message_id", messageID))
			metrics.IngestRows.WithLabelValues("enqueued").Inc()
			enqueued.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	summary.TotalRows = rows
	summary.Enqueued = int(enqueued.Load())
	summary.Errors = int(failed.Load())
	return err
}

func (r *Reader) decode(body io.Reader) io.Reader {
	if r.cfg.Encoding == EncodingWindows1252 {
		return transform.NewReader(body, charmap.Windows1252.NewDecoder())
	}
	return transform.NewReader(body, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}

// archiveTimeout bounds the archive move, which runs even after ctx ended.
const archiveTimeout = 30 * time.Second

// archive moves key under the archive prefix. A failed copy leaves the
// source untouched; failures are logged and never retried.
func (r *Reader) archive(ctx context.Context, bucket, key string, l *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()

	dst := r.ArchiveKey(key)
	l = l.With(zap.String("archive_key", dst))

	if err := r.store.CopyObject(ctx, bucket, key, dst); err != nil {
		l.Error("Failed to copy object to archive, source left in place", zap.Error(err))
		metrics.ArchiveFailures.Inc()
		return
	}
	if err := r.store.DeleteObject(ctx, bucket, key); err != nil {
		l.Error("Archived copy written but source delete failed", zap.Error(err))
		metrics.ArchiveFailures.Inc()
		return
	}
	l.Info("Source object archived")
}

func rowToRaw(header, record []string) domain.RawProduct {
	raw := make(domain.RawProduct, len(header))
	for i, name := range header {
		if name == "" || i >= len(record) {
			continue
		}
		raw[name] = record[i]
	}
	return raw
}
