package storage

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/apache/arrow/go/v17/arrow"
)

// Dataset targets.
const (
	TargetHeaders = "headers"
	TargetTxs     = "txs"
	TargetMsgs    = "tx_msgs"
)

// MsgTarget returns the dataset target of a message bucket path ("pos/Send").
func MsgTarget(bucketPath string) string {
	return path.Join(TargetMsgs, bucketPath)
}

// Writer appends a table covering the inclusive height range [start, end] to a
// named dataset. Writers must be safe for concurrent use by disjoint ranges.
type Writer interface {
	Append(ctx context.Context, target string, rec arrow.Record, start, end uint64) error
}

// FileName is the file name of the i-th file written for [start, end].
func FileName(start, end uint64, i int) string {
	return fmt.Sprintf("block_%d-%d-%d.parquet", start, end, i)
}

// Fanout appends to every writer in order and stops at the first failure.
type Fanout []Writer

func (f Fanout) Append(ctx context.Context, target string, rec arrow.Record, start, end uint64) error {
	for _, w := range f {
		if err := w.Append(ctx, target, rec, start, end); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every writer that has a Close method.
func (f Fanout) Close() error {
	var errs []error
	for _, w := range f {
		if c, ok := w.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
