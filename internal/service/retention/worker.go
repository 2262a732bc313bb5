// Package retention удаляет принятые order-api заказы старше окна хранения.
package retention

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

const (
	defaultInterval  = 10 * time.Minute
	defaultBatchSize = 500
)

var (
	retentionRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foodies_retention_runs_total",
		Help: "Total number of received order retention runs grouped by result.",
	}, []string{"result"})
	retentionDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "foodies_retention_deleted_total",
		Help: "Total number of received orders deleted after the retention period.",
	})
	retentionLastDeleted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "foodies_retention_last_deleted",
		Help: "Number of received orders deleted during the last retention run.",
	})
)

// Purger удаляет устаревшие принятые заказы.
type Purger interface {
	DeleteReceivedBefore(ctx context.Context, before time.Time, limit int) (int, error)
}

// Options задает параметры воркера.
type Options struct {
	Logger    *log.Entry
	Interval  time.Duration
	BatchSize int
	Now       func() time.Time
}

// Option настраивает Worker.
type Option func(*Options)

// WithLogger задает logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithInterval задает интервал между запусками.
func WithInterval(interval time.Duration) Option {
	return func(opts *Options) {
		opts.Interval = interval
	}
}

// WithBatchSize задает размер порции одного удаления.
func WithBatchSize(batchSize int) Option {
	return func(opts *Options) {
		opts.BatchSize = batchSize
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(opts *Options) {
		opts.Now = now
	}
}

// Worker периодически удаляет заказы, принятые раньше now-period. Вместе с заказом
// уходит и его ключ идемпотентности, поэтому повтор старше окна будет принят заново.
type Worker struct {
	repo      Purger
	period    time.Duration
	logger    *log.Entry
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// NewWorker создает воркер. period <= 0 отключает удаление.
func NewWorker(repo Purger, period time.Duration, options ...Option) *Worker {
	opts := Options{
		Interval:  defaultInterval,
		BatchSize: defaultBatchSize,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "retention-worker")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Worker{
		repo:      repo,
		period:    period,
		logger:    logger,
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
		now:       now,
	}
}

// Run запускает периодическую очистку до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.period <= 0 {
		w.logger.Info("received order retention is disabled")
		return
	}

	w.purge(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.purge(ctx)
		}
	}
}

func (w *Worker) purge(ctx context.Context) {
	deleted, err := w.DeleteExpired(ctx, w.now().UTC().Add(-w.period))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		retentionRunsTotal.WithLabelValues("error").Inc()
		w.logger.WithError(err).Warn("retention run failed")
		return
	}

	retentionRunsTotal.WithLabelValues("ok").Inc()
	retentionLastDeleted.Set(float64(deleted))
	if deleted > 0 {
		w.logger.WithField("deleted", deleted).Info("expired received orders deleted")
	}
}

// DeleteExpired удаляет все заказы, принятые раньше before, порциями batchSize.
func (w *Worker) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	totalDeleted := 0
	for {
		if err := ctx.Err(); err != nil {
			return totalDeleted, err
		}

		deleted, err := w.repo.DeleteReceivedBefore(ctx, before, w.batchSize)
		if err != nil {
			return totalDeleted, err
		}

		totalDeleted += deleted
		if deleted > 0 {
			retentionDeletedTotal.Add(float64(deleted))
		}

		if deleted < w.batchSize {
			break
		}
	}

	return totalDeleted, nil
}
