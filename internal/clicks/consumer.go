package clicks

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Kosench/go-link-resolver/internal/metrics"
	"github.com/Kosench/go-link-resolver/internal/model"
)

// Store is the persistence side of the pipeline.
type Store interface {
	RecordClicks(ctx context.Context, clicks []model.Click) error
}

type ConsumerConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	FlushTimeout  time.Duration
}

// Consumer drains click events into the store in batches, flushing when a
// batch fills up, when the interval elapses, and once more on shutdown.
type Consumer struct {
	store  Store
	events <-chan model.Click
	cfg    ConsumerConfig
	logger *zap.Logger
}

func NewConsumer(store Store, events <-chan model.Click, cfg ConsumerConfig, logger *zap.Logger) *Consumer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Consumer{
		store:  store,
		events: events,
		cfg:    cfg,
		logger: logger.Named("clicks"),
	}
}

// Run blocks until ctx is done or the event channel is closed.
func (c *Consumer) Run(ctx context.Context) {
	batch := make([]model.Click, 0, c.cfg.BatchSize)
	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			batch = c.drain(batch)
			c.flush(batch)
			return
		case event, ok := <-c.events:
			if !ok {
				c.flush(batch)
				return
			}
			batch = append(batch, event)
			if len(batch) >= c.cfg.BatchSize {
				c.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				c.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

// drain collects events already buffered at shutdown without waiting for more.
func (c *Consumer) drain(batch []model.Click) []model.Click {
	for {
		select {
		case event, ok := <-c.events:
			if !ok {
				return batch
			}
			batch = append(batch, event)
		default:
			return batch
		}
	}
}

func (c *Consumer) flush(batch []model.Click) {
	if len(batch) == 0 {
		return
	}

	// Detached from the run context so the final flush still completes on shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.FlushTimeout)
	defer cancel()

	if err := c.store.RecordClicks(ctx, batch); err != nil {
		metrics.ClicksDropped.WithLabelValues("flush_failed").Add(float64(len(batch)))
		c.logger.Error("click batch flush failed", zap.Int("count", len(batch)), zap.Error(err))
		return
	}

	metrics.ClicksRecorded.Add(float64(len(batch)))
	c.logger.Debug("click batch flushed", zap.Int("count", len(batch)))
}
