package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"poktIndex/internal/pokt"
	"poktIndex/internal/progress"
)

// ErrEmptyBlock is returned when the node answers a block query without a header.
var ErrEmptyBlock = errors.New("block response has no header")

// Op identifies the fetch a Retrier is running. Page is 0 for block fetches.
type Op struct {
	Stage  progress.Stage
	Height uint64
	Page   int
}

func (o Op) String() string {
	if o.Page > 0 {
		return fmt.Sprintf("%s height=%d page=%d", o.Stage, o.Height, o.Page)
	}
	return fmt.Sprintf("%s height=%d", o.Stage, o.Height)
}

// RetriesExceededError is returned once a transient failure outlives the retry budget.
type RetriesExceededError struct {
	Op
	Attempts int
	Err      error
}

func (e *RetriesExceededError) Error() string {
	return fmt.Sprintf("out of retries fetching %s after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *RetriesExceededError) Unwrap() error { return e.Err }

// Retrier runs a fetch with a bounded number of retries.
//
// The operation always runs once. Each transient failure emits an Error event,
// then consumes one unit of Retries; a transient failure with no budget left
// ends with *RetriesExceededError. Retries of 0 or -1 allow a single attempt.
// Other errors emit one Error event and are returned unchanged.
type Retrier struct {
	Retries    int
	Backoff    time.Duration
	MaxBackoff time.Duration
	Sink       progress.Sink
	Logger     *zap.Logger
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return pokt.IsError(err) || errors.Is(err, ErrEmptyBlock)
}

func (r *Retrier) Do(ctx context.Context, op Op, fn func(context.Context) error) error {
	sink := r.Sink
	if sink == nil {
		sink = progress.Nop
	}
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	budget := r.Retries
	delay := r.Backoff
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		// a failure caused by cancellation is not a fetch error
		if ctx.Err() != nil {
			return err
		}
		sink.Emit(progress.Error(op.Stage, op.Height, op.Page))
		if !IsTransient(err) {
			return err
		}
		if budget <= 0 {
			return &RetriesExceededError{Op: op, Attempts: attempt, Err: err}
		}
		budget--

		logger.Warn("fetch failed, retrying",
			zap.String("stage", string(op.Stage)),
			zap.Uint64("height", op.Height),
			zap.Int("page", op.Page),
			zap.Int("attempt", attempt),
			zap.Int("retries_left", budget),
			zap.Error(err),
		)

		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
		if r.MaxBackoff > 0 && delay > r.MaxBackoff {
			delay = r.MaxBackoff
		}
	}
}
