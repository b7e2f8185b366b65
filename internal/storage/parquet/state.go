package parquet

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"poktIndex/internal/storage"
)

var fileNamePattern = regexp.MustCompile(`^block_(\d+)-(\d+)-(\d+)\.parquet$`)

// LastIndexed returns the highest end height written to the headers dataset
// under root. The txs dataset may end earlier, since a batch without
// transactions writes no txs file, but never later.
func LastIndexed(root string) (uint64, bool, error) {
	headers, hok, err := maxEnd(filepath.Join(root, storage.TargetHeaders))
	if err != nil {
		return 0, false, err
	}
	txs, tok, err := maxEnd(filepath.Join(root, storage.TargetTxs))
	if err != nil {
		return 0, false, err
	}
	if !hok && !tok {
		return 0, false, nil
	}
	if tok && (!hok || txs > headers) {
		return 0, false, fmt.Errorf("txs dataset ends at %d past headers dataset end %d", txs, headers)
	}
	return headers, true, nil
}

func maxEnd(dir string) (uint64, bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("read dataset dir: %w", err)
	}
	var (
		last  uint64
		found bool
	)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := fileNamePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		end, err := strconv.ParseUint(m[2], 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("parse %s: %w", e.Name(), err)
		}
		if !found || end > last {
			last, found = end, true
		}
	}
	return last, found, nil
}

// DatasetState reads the resume point from the dataset file names.
// Save is a no-op.
type DatasetState struct {
	Root string
}

func (s DatasetState) Load(ctx context.Context) (uint64, bool, error) {
	return LastIndexed(s.Root)
}

func (s DatasetState) Save(ctx context.Context, lastFlushed uint64) error {
	return nil
}
