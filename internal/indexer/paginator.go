package indexer

import (
	"context"

	"poktIndex/internal/pokt"
	"poktIndex/internal/progress"
)

// DefaultPerPage is the page size requested from /v1/query/blocktxs.
const DefaultPerPage = 1000

// Gateway is the slice of the Pocket RPC the ingestion pipeline needs.
type Gateway interface {
	Block(ctx context.Context, height uint64) (*pokt.BlockResponse, error)
	BlockTxs(ctx context.Context, height uint64, page, perPage int) (*pokt.BlockTxsResponse, error)
}

// HeightSource reports the chain's latest height.
type HeightSource interface {
	Height(ctx context.Context) (uint64, error)
}

// TxBatch is one non-empty page of transactions, or the end marker.
type TxBatch struct {
	Page int
	Txs  []*pokt.Transaction
	End  bool
}

// TxPager walks the transaction pages of one block in increasing page order.
// It is single-use: a new pager starts again from page 1.
type TxPager struct {
	gw      Gateway
	retrier *Retrier
	height  uint64
	perPage int

	page int
	done bool
	err  error
}

func NewTxPager(gw Gateway, retrier *Retrier, height uint64, perPage int) *TxPager {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if retrier == nil {
		retrier = &Retrier{}
	}
	return &TxPager{gw: gw, retrier: retrier, height: height, perPage: perPage}
}

// Next returns the next non-empty page. After the last page it returns a batch
// with End set, and keeps returning it. A fetch error is sticky.
func (p *TxPager) Next(ctx context.Context) (TxBatch, error) {
	if p.err != nil {
		return TxBatch{}, p.err
	}
	if p.done {
		return TxBatch{End: true}, nil
	}

	p.page++
	page := p.page
	var resp *pokt.BlockTxsResponse
	err := p.retrier.Do(ctx, Op{Stage: progress.StageTxs, Height: p.height, Page: page}, func(ctx context.Context) error {
		var err error
		resp, err = p.gw.BlockTxs(ctx, p.height, page, p.perPage)
		return err
	})
	if err != nil {
		p.err = err
		return TxBatch{}, err
	}

	if resp == nil || len(resp.Txs) == 0 {
		p.done = true
		return TxBatch{End: true}, nil
	}
	if resp.PageTotal == nil || int64(*resp.PageTotal) <= int64(page) {
		p.done = true
	}
	return TxBatch{Page: page, Txs: resp.Txs}, nil
}

// Drain collects every transaction of the block.
func (p *TxPager) Drain(ctx context.Context) ([]*pokt.Transaction, error) {
	var txs []*pokt.Transaction
	for {
		b, err := p.Next(ctx)
		if err != nil {
			return nil, err
		}
		if b.End {
			return txs, nil
		}
		txs = append(txs, b.Txs...)
	}
}
