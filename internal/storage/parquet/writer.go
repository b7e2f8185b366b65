package parquet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/memory"
	arrowparquet "github.com/apache/arrow/go/v17/parquet"
	"github.com/apache/arrow/go/v17/parquet/compress"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"
	"go.uber.org/zap"

	"poktIndex/internal/metrics"
	"poktIndex/internal/record"
	"poktIndex/internal/storage"
)

// Config configures a Writer.
type Config struct {
	Root        string
	Compression string // snappy, zstd, gzip, none
}

// Writer stores every appended table as one Parquet file under
// <root>/<target>/block_<start>-<end>-<i>.parquet.
type Writer struct {
	root   string
	props  *arrowparquet.WriterProperties
	logger *zap.Logger
}

func NewWriter(cfg Config, logger *zap.Logger) (*Writer, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("parquet root dir is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	codec, err := codecFor(cfg.Compression)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create parquet root: %w", err)
	}
	return &Writer{
		root: cfg.Root,
		props: arrowparquet.NewWriterProperties(
			arrowparquet.WithCompression(codec),
			arrowparquet.WithAllocator(memory.DefaultAllocator),
		),
		logger: logger,
	}, nil
}

func codecFor(name string) (compress.Compression, error) {
	switch strings.ToLower(name) {
	case "", "snappy":
		return compress.Codecs.Snappy, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "none":
		return compress.Codecs.Uncompressed, nil
	default:
		return compress.Codecs.Uncompressed, fmt.Errorf("unsupported parquet compression %q", name)
	}
}

// EnsureLayout creates the headers, txs and per-bucket message directories.
func (w *Writer) EnsureLayout(buckets []record.Bucket) error {
	dirs := []string{storage.TargetHeaders, storage.TargetTxs}
	for _, b := range buckets {
		dirs = append(dirs, storage.MsgTarget(b.Path()))
	}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(w.root, filepath.FromSlash(d)), 0o755); err != nil {
			return fmt.Errorf("create dataset dir %s: %w", d, err)
		}
	}
	return nil
}

func (w *Writer) Append(ctx context.Context, target string, rec arrow.Record, start, end uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Encode(rec, w.props)
	if err != nil {
		return fmt.Errorf("encode %s: %w", target, err)
	}

	dir := filepath.Join(w.root, filepath.FromSlash(target))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dataset dir: %w", err)
	}
	path, err := writeNew(dir, start, end, data)
	if err != nil {
		return err
	}

	metrics.RowsAppended.WithLabelValues("parquet").Add(float64(rec.NumRows()))
	w.logger.Debug("parquet file written",
		zap.String("path", path),
		zap.Int64("rows", rec.NumRows()),
		zap.Int("bytes", len(data)),
	)
	return nil
}

// writeNew claims the first free block_<start>-<end>-<i> name in dir.
func writeNew(dir string, start, end uint64, data []byte) (string, error) {
	for i := 0; ; i++ {
		path := filepath.Join(dir, storage.FileName(start, end, i))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create parquet file: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("write parquet file: %w", err)
		}
		if err := f.Close(); err != nil {
			os.Remove(path)
			return "", fmt.Errorf("close parquet file: %w", err)
		}
		return path, nil
	}
}

// Encode serialises rec as a complete Parquet file. A nil props uses the
// library defaults.
func Encode(rec arrow.Record, props *arrowparquet.WriterProperties) ([]byte, error) {
	if props == nil {
		props = arrowparquet.NewWriterProperties()
	}
	var buf bytes.Buffer
	fw, err := pqarrow.NewFileWriter(rec.Schema(), &buf, props, pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	if err != nil {
		return nil, fmt.Errorf("create parquet writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return nil, fmt.Errorf("write record: %w", err)
	}
	if err := fw.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}
