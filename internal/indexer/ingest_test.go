package indexer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poktIndex/internal/pokt"
	"poktIndex/internal/record"
	"poktIndex/internal/storage"
)

func TestIngestBlockRoutesAndDrops(t *testing.T) {
	gw := newFakeGateway().withTxs(42, 3)
	page := gw.pages[42][0]
	page[1].StdTx.Msg = &pokt.Msg{Type: "pos/NotAThing", Value: []byte(`{}`)}
	page[2].StdTx = nil

	unit, err := NewIngestor(gw, nil, 10, nil).IngestBlock(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, uint64(42), unit.Height)
	assert.Equal(t, int64(42), unit.Header[record.ColHeight])
	assert.Len(t, unit.Txs, 3)
	assert.Equal(t, 2, unit.Dropped)
	require.Len(t, unit.Msgs[record.BucketSend], 1)
	assert.Equal(t, "42-0", unit.Msgs[record.BucketSend][0][record.ColTxHash])
}

func TestIngestBlockMalformedMessageFails(t *testing.T) {
	gw := newFakeGateway().withTxs(3, 1)
	gw.pages[3][0][0].StdTx.Msg.Value = []byte(`{"amount":`)

	_, err := NewIngestor(gw, nil, 10, nil).IngestBlock(context.Background(), 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest block 3")
}

func TestIngestBlockNonTransientHeaderError(t *testing.T) {
	boom := errors.New("bad request")
	gw := newFakeGateway()
	gw.blockErr = boom

	_, err := NewIngestor(gw, &Retrier{Retries: 5}, 10, nil).IngestBlock(context.Background(), 3)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, gw.blockCalls[3])
}

func TestBatchTables(t *testing.T) {
	gw := newFakeGateway().withTxs(1, 2)
	unit, err := NewIngestor(gw, nil, 10, nil).IngestBlock(context.Background(), 1)
	require.NoError(t, err)

	b := NewBatch(1)
	assert.True(t, b.Empty())
	b.Add(unit)
	assert.False(t, b.Empty())

	tables, err := b.Tables(record.DefaultRegistry())
	require.NoError(t, err)
	defer func() {
		for _, tb := range tables {
			tb.Record.Release()
		}
	}()

	var targets []string
	for _, tb := range tables {
		targets = append(targets, tb.Target)
	}
	assert.Equal(t, []string{storage.TargetHeaders, storage.TargetTxs, sendTarget}, targets)
	assert.Equal(t, int64(2), tables[2].Record.NumRows())
}

func TestBatchTablesUnknownBucket(t *testing.T) {
	b := NewBatch(1)
	b.Msgs[record.Bucket{Module: "x", Type: "y"}] = []record.Flat{{record.ColHeight: int64(1)}}
	_, err := b.Tables(record.DefaultRegistry())
	require.Error(t, err)
}
