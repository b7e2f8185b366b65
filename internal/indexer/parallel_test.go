package indexer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poktIndex/internal/progress"
	"poktIndex/internal/storage"
)

type gatewayPool struct {
	mu     sync.Mutex
	opened []*fakeGateway
	setup  func(*fakeGateway)
}

func (p *gatewayPool) factory() (RangeGateway, error) {
	gw := newFakeGateway()
	if p.setup != nil {
		p.setup(gw)
	}
	p.mu.Lock()
	p.opened = append(p.opened, gw)
	p.mu.Unlock()
	return gw, nil
}

func sortedByStart(calls []appendCall) []appendCall {
	sort.Slice(calls, func(i, j int) bool { return calls[i].start < calls[j].start })
	return calls
}

func TestRunParallelCoversRange(t *testing.T) {
	pool := &gatewayPool{}
	w := &fakeWriter{}
	var rec progress.Recorder
	cfg := ParallelConfig{
		Run:       RunConfig{FromBlock: 1, ToBlock: 10, CheckpointEnabled: true},
		Workers:   3,
		ChunkSize: 3,
	}

	require.NoError(t, RunParallel(context.Background(), cfg, pool.factory, w, &rec, nil))

	assert.Equal(t, []appendCall{
		{target: storage.TargetHeaders, rows: 3, start: 1, end: 3},
		{target: storage.TargetHeaders, rows: 3, start: 4, end: 6},
		{target: storage.TargetHeaders, rows: 3, start: 7, end: 9},
		{target: storage.TargetHeaders, rows: 1, start: 10, end: 10},
	}, sortedByStart(w.target(storage.TargetHeaders)))
	assert.Len(t, rec.Filter(progress.KindCounts), 4)

	require.Len(t, pool.opened, 4)
	for _, gw := range pool.opened {
		assert.True(t, gw.closed)
	}
}

func TestRunParallelCollectsChunkFailures(t *testing.T) {
	pool := &gatewayPool{setup: func(gw *fakeGateway) { gw.blockFailures[5] = 1 }}
	w := &fakeWriter{}
	cfg := ParallelConfig{
		Run:     RunConfig{FromBlock: 1, ToBlock: 9, BatchSize: 3},
		Workers: 2,
	}

	err := RunParallel(context.Background(), cfg, pool.factory, w, nil, nil)
	require.Error(t, err)

	var chunkErr *ChunkError
	require.True(t, errors.As(err, &chunkErr))
	assert.Equal(t, BlockRange{From: 4, To: 6}, chunkErr.Range)
	var exceeded *RetriesExceededError
	require.True(t, errors.As(err, &exceeded))
	assert.Equal(t, uint64(5), exceeded.Height)

	assert.Equal(t, []appendCall{
		{target: storage.TargetHeaders, rows: 3, start: 1, end: 3},
		{target: storage.TargetHeaders, rows: 3, start: 7, end: 9},
	}, sortedByStart(w.target(storage.TargetHeaders)))
	for _, gw := range pool.opened {
		assert.True(t, gw.closed)
	}
}

func TestRunParallelFactoryFailure(t *testing.T) {
	boom := errors.New("dial")
	factory := func() (RangeGateway, error) { return nil, boom }
	cfg := ParallelConfig{Run: RunConfig{FromBlock: 1, ToBlock: 4}, ChunkSize: 2}

	err := RunParallel(context.Background(), cfg, factory, &fakeWriter{}, nil, nil)
	require.ErrorIs(t, err, boom)
}

func TestRunParallelNeedsResolvedRange(t *testing.T) {
	pool := &gatewayPool{}
	err := RunParallel(context.Background(), ParallelConfig{Run: RunConfig{FromBlock: 1}}, pool.factory, &fakeWriter{}, nil, nil)
	require.Error(t, err)
	assert.Empty(t, pool.opened)
}
