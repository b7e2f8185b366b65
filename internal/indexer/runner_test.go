package indexer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poktIndex/internal/progress"
	"poktIndex/internal/record"
	"poktIndex/internal/storage"
)

var sendTarget = storage.MsgTarget(record.BucketSend.Path())

func TestIngestRangeFlushBoundaries(t *testing.T) {
	gw := newFakeGateway().withTxs(100, 1).withTxs(102, 2, 1)
	w := &fakeWriter{}
	var rec progress.Recorder
	state := &memState{}

	r := NewRunner(RunConfig{BatchSize: 2, PerPage: 2, CheckpointEnabled: true}, Deps{Gateway: gw, Writer: w, State: state, Sink: &rec}, nil)
	require.NoError(t, r.IngestRange(context.Background(), 100, 102))

	assert.Equal(t, []appendCall{
		{target: storage.TargetHeaders, rows: 2, start: 100, end: 101},
		{target: storage.TargetHeaders, rows: 1, start: 102, end: 102},
	}, w.target(storage.TargetHeaders))
	assert.Equal(t, []appendCall{
		{target: storage.TargetTxs, rows: 1, start: 100, end: 101},
		{target: storage.TargetTxs, rows: 3, start: 102, end: 102},
	}, w.target(storage.TargetTxs))
	assert.Equal(t, []appendCall{
		{target: sendTarget, rows: 1, start: 100, end: 101},
		{target: sendTarget, rows: 3, start: 102, end: 102},
	}, w.target(sendTarget))

	assert.Equal(t, []progress.Event{progress.Counts(2, 1), progress.Counts(1, 3)}, rec.Filter(progress.KindCounts))
	assert.Empty(t, rec.Filter(progress.KindError))
	assert.Equal(t, []uint64{101, 102}, state.saves)
	assert.Equal(t, []int{1}, gw.calls(101))
	assert.Equal(t, []int{1, 2}, gw.calls(102))
}

func TestIngestRangeFlushCount(t *testing.T) {
	for _, tc := range []struct {
		blocks, batch uint64
	}{
		{1, 1}, {1, 5}, {5, 5}, {6, 5}, {10, 3}, {12, 4}, {7, 100},
	} {
		w := &fakeWriter{}
		var rec progress.Recorder
		r := NewRunner(RunConfig{BatchSize: tc.batch}, Deps{Gateway: newFakeGateway(), Writer: w, Sink: &rec}, nil)
		require.NoError(t, r.IngestRange(context.Background(), 1, tc.blocks))

		flushes := w.target(storage.TargetHeaders)
		want := int((tc.blocks + tc.batch - 1) / tc.batch)
		require.Len(t, flushes, want, "blocks=%d batch=%d", tc.blocks, tc.batch)
		assert.Len(t, rec.Filter(progress.KindCounts), want)

		next := uint64(1)
		for _, f := range flushes {
			assert.Equal(t, next, f.start)
			assert.Equal(t, f.end-f.start+1, uint64(f.rows))
			assert.LessOrEqual(t, uint64(f.rows), tc.batch)
			next = f.end + 1
		}
		assert.Equal(t, tc.blocks+1, next)
		assert.Empty(t, w.target(storage.TargetTxs))
	}
}

func TestIngestRangeAbortsOnExhaustedRetries(t *testing.T) {
	const retries = 2
	gw := newFakeGateway().withTxs(100, 1)
	gw.blockFailures[101] = retries + 1
	w := &fakeWriter{}
	var rec progress.Recorder

	r := NewRunner(RunConfig{BatchSize: 10, MaxRetries: retries}, Deps{Gateway: gw, Writer: w, Sink: &rec}, nil)
	err := r.IngestRange(context.Background(), 100, 102)

	var exceeded *RetriesExceededError
	require.True(t, errors.As(err, &exceeded))
	assert.Equal(t, uint64(101), exceeded.Height)
	assert.Equal(t, progress.StageBlock, exceeded.Stage)
	assert.Empty(t, w.calls)
	assert.Empty(t, rec.Filter(progress.KindCounts))
	assert.GreaterOrEqual(t, len(rec.Filter(progress.KindError)), retries+1)
	assert.Zero(t, gw.blockCalls[102])
}

func TestIngestRangeKeepsEarlierFlushes(t *testing.T) {
	gw := newFakeGateway()
	gw.blockFailures[101] = 1
	w := &fakeWriter{}
	var rec progress.Recorder
	state := &memState{}

	r := NewRunner(RunConfig{BatchSize: 1, CheckpointEnabled: true}, Deps{Gateway: gw, Writer: w, State: state, Sink: &rec}, nil)
	require.Error(t, r.IngestRange(context.Background(), 100, 102))

	assert.Equal(t, []appendCall{{target: storage.TargetHeaders, rows: 1, start: 100, end: 100}}, w.target(storage.TargetHeaders))
	assert.Equal(t, []progress.Event{progress.Counts(1, 0)}, rec.Filter(progress.KindCounts))
	assert.Equal(t, []uint64{100}, state.saves)
}

func TestIngestRangeRetriesTransientFailures(t *testing.T) {
	gw := newFakeGateway().withTxs(7, 1, 1)
	gw.blockFailures[7] = 2
	gw.emptyBlocks[8] = 1
	gw.txFailures[pageKey{7, 2}] = 1
	w := &fakeWriter{}
	var rec progress.Recorder

	r := NewRunner(RunConfig{BatchSize: 10, PerPage: 1, MaxRetries: 3}, Deps{Gateway: gw, Writer: w, Sink: &rec}, nil)
	require.NoError(t, r.IngestRange(context.Background(), 7, 8))

	assert.Equal(t, []appendCall{{target: storage.TargetHeaders, rows: 2, start: 7, end: 8}}, w.target(storage.TargetHeaders))
	assert.Equal(t, []appendCall{{target: storage.TargetTxs, rows: 2, start: 7, end: 8}}, w.target(storage.TargetTxs))
	assert.Len(t, rec.Filter(progress.KindError), 4)
	assert.Equal(t, []progress.Event{progress.Counts(2, 2)}, rec.Filter(progress.KindCounts))
}

func TestIngestRangeWriterFailure(t *testing.T) {
	boom := errors.New("disk full")
	w := &fakeWriter{err: boom}
	state := &memState{}
	r := NewRunner(RunConfig{BatchSize: 5, CheckpointEnabled: true}, Deps{Gateway: newFakeGateway(), Writer: w, State: state}, nil)

	err := r.IngestRange(context.Background(), 1, 3)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "append headers [1,3]")
	assert.Empty(t, state.saves)
}

func TestIngestRangeInvalid(t *testing.T) {
	r := NewRunner(RunConfig{}, Deps{Gateway: newFakeGateway(), Writer: &fakeWriter{}}, nil)
	require.Error(t, r.IngestRange(context.Background(), 5, 4))

	r = NewRunner(RunConfig{}, Deps{Gateway: newFakeGateway()}, nil)
	require.Error(t, r.IngestRange(context.Background(), 1, 1))
}

type zeroHeight struct{ *fakeGateway }

func (zeroHeight) Height(context.Context) (uint64, error) { return 0, nil }

func TestResolveRange(t *testing.T) {
	tests := []struct {
		name       string
		cfg        RunConfig
		state      *memState
		gw         Gateway
		from, to   uint64
		ok         bool
		shouldFail bool
	}{
		{name: "explicit", cfg: RunConfig{FromBlock: 10, ToBlock: 20}, from: 10, to: 20, ok: true},
		{name: "latest minus one", cfg: RunConfig{FromBlock: 10}, from: 10, to: 499, ok: true},
		{name: "from zero", cfg: RunConfig{ToBlock: 3}, from: 1, to: 3, ok: true},
		{name: "resume", cfg: RunConfig{FromBlock: 100, ToBlock: 160, CheckpointEnabled: true}, state: &memState{last: 150, ok: true}, from: 151, to: 160, ok: true},
		{name: "checkpoint behind from", cfg: RunConfig{FromBlock: 100, ToBlock: 160, CheckpointEnabled: true}, state: &memState{last: 50, ok: true}, from: 100, to: 160, ok: true},
		{name: "checkpoint disabled", cfg: RunConfig{FromBlock: 100, ToBlock: 160}, state: &memState{last: 150, ok: true}, from: 100, to: 160, ok: true},
		{name: "caught up", cfg: RunConfig{FromBlock: 100, ToBlock: 160, CheckpointEnabled: true}, state: &memState{last: 160, ok: true}, from: 161, to: 160},
		{name: "empty chain", gw: zeroHeight{newFakeGateway()}, to: 0},
		{name: "no height source", gw: struct{ Gateway }{newFakeGateway()}, shouldFail: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := tt.gw
			if gw == nil {
				gw = newFakeGateway()
			}
			deps := Deps{Gateway: gw, Writer: &fakeWriter{}}
			if tt.state != nil {
				deps.State = tt.state
			}
			from, to, ok, err := NewRunner(tt.cfg, deps, nil).ResolveRange(context.Background())
			if tt.shouldFail {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.from, from)
			}
			assert.Equal(t, tt.to, to)
		})
	}
}

func TestRunNothingToSync(t *testing.T) {
	w := &fakeWriter{}
	var rec progress.Recorder
	state := &memState{last: 20, ok: true}
	r := NewRunner(RunConfig{FromBlock: 10, ToBlock: 20, CheckpointEnabled: true}, Deps{Gateway: newFakeGateway(), Writer: w, State: state, Sink: &rec}, nil)

	require.NoError(t, r.Run(context.Background()))
	assert.Empty(t, w.calls)
	assert.Equal(t, []progress.Event{progress.Counts(0, 0)}, rec.Events())
}

func TestRunResumesFromCheckpoint(t *testing.T) {
	w := &fakeWriter{}
	state := &memState{last: 12, ok: true}
	r := NewRunner(RunConfig{FromBlock: 10, ToBlock: 15, BatchSize: 100, CheckpointEnabled: true}, Deps{Gateway: newFakeGateway(), Writer: w, State: state}, nil)

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, []appendCall{{target: storage.TargetHeaders, rows: 3, start: 13, end: 15}}, w.target(storage.TargetHeaders))
	assert.Equal(t, uint64(15), state.last)
}
