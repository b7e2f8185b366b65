package storage

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
)

// JsonlWriter appends every table as JSON lines to <root>/<target>.jsonl.
// It is meant for debugging and small exports.
type JsonlWriter struct {
	root string
	mu   sync.Mutex
}

func NewJsonlWriter(root string) *JsonlWriter {
	return &JsonlWriter{root: root}
}

// Path is the file a target is written to.
func (s *JsonlWriter) Path(target string) string {
	return filepath.Join(s.root, filepath.FromSlash(target)+".jsonl")
}

func (s *JsonlWriter) Append(ctx context.Context, target string, rec arrow.Record, start, end uint64) error {
	if rec.NumRows() == 0 {
		return nil
	}

	path := s.Path(target)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if err := array.RecordToJSON(rec, writer); err != nil {
		return fmt.Errorf("write %s [%d,%d]: %w", target, start, end, err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}
