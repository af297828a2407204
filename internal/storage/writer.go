package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"cve-crawler/pkg/models"
)

// Publisher receives records after they were persisted.
type Publisher interface {
	Publish(ctx context.Context, records []models.VulnerabilityRecord) error
}

type WriterConfig struct {
	BatchSize  int           `mapstructure:"batch_size"`
	Retries    int           `mapstructure:"write_retries"`
	RetryDelay time.Duration `mapstructure:"write_retry_delay"`
}

// BatchWriter flushes accumulated records to a Store in sub-batches of at
// most BatchSize. A failed sub-batch is resubmitted whole up to Retries
// times; upserts are idempotent so replaying already-applied keys is safe.
type BatchWriter struct {
	store     Store
	cfg       WriterConfig
	publisher Publisher
	log       *logrus.Logger
}

func NewBatchWriter(store Store, cfg WriterConfig, log *logrus.Logger) *BatchWriter {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &BatchWriter{store: store, cfg: cfg, log: log}
}

// WithPublisher makes the writer forward every persisted sub-batch to p.
func (w *BatchWriter) WithPublisher(p Publisher) *BatchWriter {
	w.publisher = p
	return w
}

// Flush persists records and returns once every sub-batch has completed.
// The returned error combines the failures of all sub-batches that could
// not be written.
func (w *BatchWriter) Flush(ctx context.Context, records []models.VulnerabilityRecord) error {
	var errs error
	for start := 0; start < len(records); start += w.cfg.BatchSize {
		end := min(start+w.cfg.BatchSize, len(records))
		chunk := records[start:end]

		if err := w.writeChunk(ctx, chunk); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("records %d-%d: %w", start, end-1, err))
			continue
		}

		if w.publisher != nil {
			if err := w.publisher.Publish(ctx, chunk); err != nil {
				w.log.WithError(err).WithField("count", len(chunk)).Warn("publish records failed")
			}
		}
	}
	return errs
}

func (w *BatchWriter) writeChunk(ctx context.Context, chunk []models.VulnerabilityRecord) error {
	var err error
	for attempt := 0; attempt <= w.cfg.Retries; attempt++ {
		if attempt > 0 {
			w.log.WithError(err).WithFields(logrus.Fields{
				"attempt": attempt,
				"count":   len(chunk),
			}).Warn("bulk upsert failed, retrying")
			if !sleepCtx(ctx, w.cfg.RetryDelay) {
				return ctx.Err()
			}
		}
		if err = w.store.BulkUpsert(ctx, chunk); err == nil {
			return nil
		}
	}
	return err
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
