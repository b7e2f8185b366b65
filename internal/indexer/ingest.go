package indexer

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"poktIndex/internal/metrics"
	"poktIndex/internal/pokt"
	"poktIndex/internal/progress"
	"poktIndex/internal/record"
)

// BlockUnit is everything one block contributes to a batch.
// Dropped counts transactions whose message was empty or unrecognised.
type BlockUnit struct {
	Height  uint64
	Header  record.Flat
	Txs     []record.Flat
	Msgs    map[record.Bucket][]record.Flat
	Dropped int
}

// Ingestor fetches and flattens single blocks.
type Ingestor struct {
	gw       Gateway
	retrier  *Retrier
	registry *record.Registry
	perPage  int
	logger   *zap.Logger
}

func NewIngestor(gw Gateway, retrier *Retrier, perPage int, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retrier == nil {
		retrier = &Retrier{Logger: logger}
	}
	return &Ingestor{
		gw:       gw,
		retrier:  retrier,
		registry: record.DefaultRegistry(),
		perPage:  perPage,
		logger:   logger,
	}
}

// IngestBlock fetches the header and every transaction page of height
// concurrently and flattens them. Either fetch failing fails the block.
func (i *Ingestor) IngestBlock(ctx context.Context, height uint64) (BlockUnit, error) {
	var (
		header *pokt.BlockHeader
		txs    []*pokt.Transaction
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		txs, err = NewTxPager(i.gw, i.retrier, height, i.perPage).Drain(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		header, err = i.fetchHeader(gctx, height)
		return err
	})
	if err := g.Wait(); err != nil {
		return BlockUnit{}, fmt.Errorf("ingest block %d: %w", height, err)
	}

	unit := BlockUnit{
		Height: height,
		Header: record.FlattenHeader(header),
		Txs:    make([]record.Flat, 0, len(txs)),
		Msgs:   make(map[record.Bucket][]record.Flat),
	}
	for _, tx := range txs {
		unit.Txs = append(unit.Txs, record.FlattenTx(tx))

		routed, err := i.registry.Extract(tx)
		if err != nil {
			return BlockUnit{}, fmt.Errorf("ingest block %d: %w", height, err)
		}
		if routed == nil {
			unit.Dropped++
			continue
		}
		unit.Msgs[routed.Bucket] = append(unit.Msgs[routed.Bucket], routed.Record)
	}
	if unit.Dropped > 0 {
		metrics.MessagesDropped.Add(float64(unit.Dropped))
		i.logger.Debug("transactions without a routable message",
			zap.Uint64("height", height),
			zap.Int("dropped", unit.Dropped),
		)
	}
	return unit, nil
}

func (i *Ingestor) fetchHeader(ctx context.Context, height uint64) (*pokt.BlockHeader, error) {
	var header *pokt.BlockHeader
	err := i.retrier.Do(ctx, Op{Stage: progress.StageBlock, Height: height}, func(ctx context.Context) error {
		resp, err := i.gw.Block(ctx, height)
		if err != nil {
			return err
		}
		if resp == nil || resp.Block == nil || resp.Block.Header == nil {
			return ErrEmptyBlock
		}
		header = resp.Block.Header
		return nil
	})
	return header, err
}
