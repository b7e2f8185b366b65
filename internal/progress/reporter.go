package progress

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"poktIndex/internal/metrics"
)

// Totals aggregates events across every producer.
type Totals struct {
	Blocks int64
	Txs    int64
	Errors int64
}

// Reporter is the single consumer of a progress channel. It keeps running
// totals, mirrors them into metrics and logs them periodically.
type Reporter struct {
	logger   *zap.Logger
	interval time.Duration

	mu     sync.Mutex
	totals Totals
}

func NewReporter(logger *zap.Logger, interval time.Duration) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{logger: logger, interval: interval}
}

// Emit applies one event. Reporter can be used directly as a Sink.
func (r *Reporter) Emit(e Event) {
	r.mu.Lock()
	switch e.Kind {
	case KindError:
		r.totals.Errors++
	case KindCounts:
		r.totals.Blocks += int64(e.Headers)
		r.totals.Txs += int64(e.Txs)
	}
	r.mu.Unlock()

	switch e.Kind {
	case KindError:
		metrics.FetchErrors.WithLabelValues(string(e.Stage)).Inc()
		r.logger.Debug("fetch attempt failed",
			zap.String("stage", string(e.Stage)),
			zap.Uint64("height", e.Height),
			zap.Int("page", e.Page),
		)
	case KindCounts:
		metrics.BlocksIngested.Add(float64(e.Headers))
		metrics.TxsIngested.Add(float64(e.Txs))
	}
}

// Totals returns a snapshot of the running totals.
func (r *Reporter) Totals() Totals {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totals
}

// Run consumes events until ch is closed or ctx is done, then returns the totals.
func (r *Reporter) Run(ctx context.Context, ch <-chan Event) Totals {
	var tick <-chan time.Time
	if r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return r.Totals()
		case <-tick:
			r.log("progress")
		case e, ok := <-ch:
			if !ok {
				r.log("progress complete")
				return r.Totals()
			}
			r.Emit(e)
		}
	}
}

func (r *Reporter) log(msg string) {
	t := r.Totals()
	r.logger.Info(msg,
		zap.Int64("blocks", t.Blocks),
		zap.Int64("txs", t.Txs),
		zap.Int64("errors", t.Errors),
	)
}
