package indexer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poktIndex/internal/pokt"
)

func TestTxPagerStopsAtFirstEmptyPage(t *testing.T) {
	for p := 1; p <= 4; p++ {
		sizes := make([]int, p)
		for i := range sizes {
			sizes[i] = 2
		}
		gw := newFakeGateway().withTxs(10, sizes...)
		// overstate the page count so only the empty page ends the walk
		gw.pageTotal[10] = p + 5

		pager := NewTxPager(gw, &Retrier{}, 10, 2)
		for i := 1; i <= p; i++ {
			b, err := pager.Next(context.Background())
			require.NoError(t, err)
			require.False(t, b.End)
			assert.Equal(t, i, b.Page)
			assert.Len(t, b.Txs, 2)
		}
		b, err := pager.Next(context.Background())
		require.NoError(t, err)
		assert.True(t, b.End)

		b, err = pager.Next(context.Background())
		require.NoError(t, err)
		assert.True(t, b.End)

		want := make([]int, 0, p+1)
		for i := 1; i <= p+1; i++ {
			want = append(want, i)
		}
		assert.Equal(t, want, gw.calls(10), "pages fetched for P=%d", p)
	}
}

func TestTxPagerStopsAtPageTotal(t *testing.T) {
	gw := newFakeGateway().withTxs(5, 3, 1)
	txs, err := NewTxPager(gw, &Retrier{}, 5, 3).Drain(context.Background())
	require.NoError(t, err)
	assert.Len(t, txs, 4)
	assert.Equal(t, []int{1, 2}, gw.calls(5))
}

type scriptedGateway struct {
	fakeGateway
	responses []*pokt.BlockTxsResponse
	fetched   int
}

func (s *scriptedGateway) BlockTxs(ctx context.Context, height uint64, page, perPage int) (*pokt.BlockTxsResponse, error) {
	s.fetched++
	if page > len(s.responses) {
		return nil, errors.New("fetched past the scripted pages")
	}
	return s.responses[page-1], nil
}

func TestTxPagerStopConditions(t *testing.T) {
	total := pokt.Int64(10)
	tx := sendTx(1, 0)
	tests := []struct {
		name      string
		responses []*pokt.BlockTxsResponse
		txs       int
		fetched   int
	}{
		{"nil response", []*pokt.BlockTxsResponse{nil}, 0, 1},
		{"nil page total", []*pokt.BlockTxsResponse{{Txs: []*pokt.Transaction{tx}}}, 1, 1},
		{"nil txs", []*pokt.BlockTxsResponse{{PageTotal: &total}}, 0, 1},
		{"empty second page", []*pokt.BlockTxsResponse{{Txs: []*pokt.Transaction{tx}, PageTotal: &total}, {Txs: []*pokt.Transaction{}, PageTotal: &total}}, 1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &scriptedGateway{responses: tt.responses}
			txs, err := NewTxPager(gw, &Retrier{}, 1, 0).Drain(context.Background())
			require.NoError(t, err)
			assert.Len(t, txs, tt.txs)
			assert.Equal(t, tt.fetched, gw.fetched)
		})
	}
}

func TestTxPagerRetriesThenFails(t *testing.T) {
	gw := newFakeGateway().withTxs(3, 1, 1)
	gw.txFailures[pageKey{3, 2}] = 2

	txs, err := NewTxPager(gw, &Retrier{Retries: 2}, 3, 1).Drain(context.Background())
	require.NoError(t, err)
	assert.Len(t, txs, 2)

	gw = newFakeGateway().withTxs(3, 1, 1)
	gw.txFailures[pageKey{3, 2}] = 3
	pager := NewTxPager(gw, &Retrier{Retries: 2}, 3, 1)
	_, err = pager.Drain(context.Background())
	var exceeded *RetriesExceededError
	require.True(t, errors.As(err, &exceeded))
	assert.Equal(t, 2, exceeded.Page)

	_, again := pager.Next(context.Background())
	assert.Equal(t, err, again)
}
