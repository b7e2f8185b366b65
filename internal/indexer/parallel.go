package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"poktIndex/internal/metrics"
	"poktIndex/internal/progress"
	"poktIndex/internal/storage"
)

// RangeGateway is a Gateway owned by one chunk and closed when the chunk ends.
type RangeGateway interface {
	Gateway
	Close()
}

// GatewayFactory opens a fresh connection for one chunk.
type GatewayFactory func() (RangeGateway, error)

// ParallelConfig splits [Run.FromBlock, Run.ToBlock] into ChunkSize chunks and
// ingests up to Workers of them at a time.
type ParallelConfig struct {
	Run       RunConfig
	Workers   int
	ChunkSize uint64
}

// ChunkError records a chunk that failed.
type ChunkError struct {
	Range BlockRange
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk [%d,%d]: %v", e.Range.From, e.Range.To, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// RunParallel ingests every chunk as an independent Runner. A failing chunk is
// logged and counted; the others keep going. Every chunk failure is returned,
// joined. Checkpoints are not written in this mode.
func RunParallel(ctx context.Context, cfg ParallelConfig, factory GatewayFactory, writer storage.Writer, sink progress.Sink, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if factory == nil {
		return fmt.Errorf("gateway factory is nil")
	}
	if cfg.Run.ToBlock == 0 {
		return fmt.Errorf("to block must be resolved before a parallel run")
	}
	from := cfg.Run.FromBlock
	if from == 0 {
		from = 1
	}
	chunkSize := cfg.ChunkSize
	if chunkSize == 0 {
		chunkSize = cfg.Run.BatchSize
	}
	if chunkSize == 0 {
		chunkSize = DefaultBatchSize
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	chunks, err := SplitRange(from, cfg.Run.ToBlock, chunkSize)
	if err != nil {
		return err
	}

	runCfg := cfg.Run
	runCfg.CheckpointEnabled = false

	var (
		mu     sync.Mutex
		errs   []error
		failed atomic.Int32
	)

	pool := pond.NewPool(workers)
	defer pool.StopAndWait()
	group := pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	logger.Info("parallel ingestion",
		zap.Uint64("from", from),
		zap.Uint64("to", cfg.Run.ToBlock),
		zap.Int("chunks", len(chunks)),
		zap.Int("workers", workers),
	)

	for _, chunk := range chunks {
		chunk := chunk
		group.Submit(func() {
			if err := groupCtx.Err(); err != nil {
				return
			}
			if err := ingestChunk(groupCtx, runCfg, chunk, factory, writer, sink, logger); err != nil {
				logger.Error("chunk failed",
					zap.Uint64("from", chunk.From),
					zap.Uint64("to", chunk.To),
					zap.Uint64("blocks", chunk.Len()),
					zap.Error(err),
				)
				metrics.ChunksFailed.Inc()
				failed.Add(1)
				mu.Lock()
				errs = append(errs, &ChunkError{Range: chunk, Err: err})
				mu.Unlock()
				return
			}
			metrics.ChunksCompleted.Inc()
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		logger.Warn("chunk group encountered error", zap.Error(err))
	}

	if n := failed.Load(); n > 0 {
		logger.Warn("parallel ingestion finished with failures", zap.Int32("failed_chunks", n), zap.Int("chunks", len(chunks)))
	}
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func ingestChunk(ctx context.Context, cfg RunConfig, chunk BlockRange, factory GatewayFactory, writer storage.Writer, sink progress.Sink, logger *zap.Logger) error {
	gw, err := factory()
	if err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	defer gw.Close()

	runner := NewRunner(cfg, Deps{Gateway: gw, Writer: writer, Sink: sink}, logger.With(
		zap.Uint64("chunk_from", chunk.From),
		zap.Uint64("chunk_to", chunk.To),
	))
	return runner.IngestRange(ctx, chunk.From, chunk.To)
}
