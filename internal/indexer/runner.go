package indexer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"poktIndex/internal/metrics"
	"poktIndex/internal/progress"
	"poktIndex/internal/record"
	"poktIndex/internal/storage"
)

// DefaultBatchSize is the number of blocks per flush.
const DefaultBatchSize = 1000

// RunConfig holds runtime settings for the indexer.
type RunConfig struct {
	FromBlock         uint64
	ToBlock           uint64
	BatchSize         uint64
	PerPage           int
	MaxRetries        int
	RetryBackoff      time.Duration
	MaxRetryBackoff   time.Duration
	CheckpointEnabled bool
}

func (c RunConfig) retrier(sink progress.Sink, logger *zap.Logger) *Retrier {
	return &Retrier{
		Retries:    c.MaxRetries,
		Backoff:    c.RetryBackoff,
		MaxBackoff: c.MaxRetryBackoff,
		Sink:       sink,
		Logger:     logger,
	}
}

// Deps are the collaborators of a Runner. State and Sink are optional.
type Deps struct {
	Gateway Gateway
	Writer  storage.Writer
	State   StateStore
	Sink    progress.Sink
}

// Runner ingests block ranges and flushes them to storage in batches.
type Runner struct {
	cfg      RunConfig
	deps     Deps
	ingestor *Ingestor
	registry *record.Registry
	logger   *zap.Logger
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, deps Deps, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Sink == nil {
		deps.Sink = progress.Nop
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = DefaultPerPage
	}
	return &Runner{
		cfg:      cfg,
		deps:     deps,
		ingestor: NewIngestor(deps.Gateway, cfg.retrier(deps.Sink, logger), cfg.PerPage, logger),
		registry: record.DefaultRegistry(),
		logger:   logger,
	}
}

// Run resolves the configured range and ingests it. ToBlock 0 means the
// chain's latest height minus one; a saved checkpoint moves FromBlock forward.
func (r *Runner) Run(ctx context.Context) error {
	if r.deps.Gateway == nil {
		return fmt.Errorf("gateway is nil")
	}

	from, to, ok, err := r.ResolveRange(ctx)
	if err != nil {
		return err
	}
	if !ok {
		r.logger.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
		r.deps.Sink.Emit(progress.Counts(0, 0))
		return nil
	}
	return r.IngestRange(ctx, from, to)
}

// ResolveRange returns the inclusive range Run would ingest and whether it is non-empty.
func (r *Runner) ResolveRange(ctx context.Context) (uint64, uint64, bool, error) {
	from := r.cfg.FromBlock
	to := r.cfg.ToBlock
	if to == 0 {
		hs, ok := r.deps.Gateway.(HeightSource)
		if !ok {
			return 0, 0, false, fmt.Errorf("to block not set and gateway cannot report the chain height")
		}
		latest, err := hs.Height(ctx)
		if err != nil {
			return 0, 0, false, fmt.Errorf("get latest height: %w", err)
		}
		if latest == 0 {
			return from, 0, false, nil
		}
		to = latest - 1
	}

	if r.cfg.CheckpointEnabled && r.deps.State != nil {
		last, ok, err := r.deps.State.Load(ctx)
		if err != nil {
			return 0, 0, false, fmt.Errorf("load checkpoint: %w", err)
		}
		if ok && last >= from {
			from = last + 1
			r.logger.Info("resume from checkpoint", zap.Uint64("last_flushed", last), zap.Uint64("from", from))
		}
	}
	if from == 0 {
		// height 0 asks the node for its latest block
		from = 1
	}
	return from, to, from <= to, nil
}

// IngestRange processes [from, to] in ascending order, flushing every
// BatchSize blocks and once more for the trailing partial batch. A Counts
// event follows every flush and the range always ends with one.
// On failure the open batch is discarded; earlier flushes stay durable.
func (r *Runner) IngestRange(ctx context.Context, from, to uint64) error {
	if r.deps.Writer == nil {
		return fmt.Errorf("writer is nil")
	}
	if to < from {
		return fmt.Errorf("to block must be >= from block")
	}

	n := r.cfg.BatchSize
	batch := NewBatch(from)
	var i uint64
	for h := from; ; h++ {
		if i != 0 && i%n == 0 {
			if err := r.flush(ctx, batch, batch.Start, h-1); err != nil {
				return err
			}
			r.deps.Sink.Emit(progress.Counts(len(batch.Headers), len(batch.Txs)))
			batch = NewBatch(h)
		}

		unit, err := r.ingestor.IngestBlock(ctx, h)
		if err != nil {
			return err
		}
		batch.Add(unit)
		i++

		if h == to {
			break
		}
	}

	if !batch.Empty() {
		if err := r.flush(ctx, batch, batch.Start, to); err != nil {
			return err
		}
	}
	r.deps.Sink.Emit(progress.Counts(len(batch.Headers), len(batch.Txs)))
	return nil
}

func (r *Runner) flush(ctx context.Context, batch *Batch, start, end uint64) error {
	began := time.Now()
	tables, err := batch.Tables(r.registry)
	if err != nil {
		return fmt.Errorf("flush [%d,%d]: %w", start, end, err)
	}
	defer func() {
		for _, t := range tables {
			t.Record.Release()
		}
	}()

	for _, t := range tables {
		if err := r.deps.Writer.Append(ctx, t.Target, t.Record, start, end); err != nil {
			return fmt.Errorf("append %s [%d,%d]: %w", t.Target, start, end, err)
		}
	}

	if r.cfg.CheckpointEnabled && r.deps.State != nil {
		if err := r.deps.State.Save(ctx, end); err != nil {
			return fmt.Errorf("save checkpoint: %w", err)
		}
	}

	metrics.FlushDuration.Observe(time.Since(began).Seconds())
	metrics.LastFlushedBlock.Set(float64(end))
	r.logger.Info("batch flushed",
		zap.Uint64("from", start),
		zap.Uint64("to", end),
		zap.Int("headers", len(batch.Headers)),
		zap.Int("txs", len(batch.Txs)),
		zap.Int("tables", len(tables)),
		zap.Int("dropped_msgs", batch.Dropped),
	)
	return nil
}
