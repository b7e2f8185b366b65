package clickhouse

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/apache/arrow/go/v17/arrow"
	"go.uber.org/zap"

	"poktIndex/internal/metrics"
	"poktIndex/internal/record"
	"poktIndex/internal/storage"
)

// Config configures the ClickHouse sink.
type Config struct {
	Addr     string
	Database string
	Username string
	Password string
	TLS      bool
}

// Open connects to ClickHouse over the native protocol.
func Open(cfg Config) (clickhouse.Conn, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("clickhouse addr is required")
	}
	opts := &clickhouse.Options{
		Addr:     []string{cfg.Addr},
		Protocol: clickhouse.Native,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	}
	if cfg.TLS {
		opts.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return clickhouse.Open(opts)
}

// Writer inserts every appended table into a ClickHouse table named after
// its target.
type Writer struct {
	conn     clickhouse.Conn
	database string
	logger   *zap.Logger

	mu      sync.Mutex
	created map[string]bool
}

func NewWriter(conn clickhouse.Conn, database string, logger *zap.Logger) (*Writer, error) {
	if conn == nil {
		return nil, fmt.Errorf("clickhouse conn is nil")
	}
	if database == "" {
		database = "default"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{conn: conn, database: database, logger: logger, created: make(map[string]bool)}, nil
}

// EnsureTables creates the headers, txs and per-bucket tables of reg.
func (w *Writer) EnsureTables(ctx context.Context, reg *record.Registry) error {
	if err := w.ensure(ctx, storage.TargetHeaders, record.HeaderSchema); err != nil {
		return err
	}
	if err := w.ensure(ctx, storage.TargetTxs, record.TxSchema); err != nil {
		return err
	}
	for _, b := range reg.Buckets() {
		schema, _ := reg.SchemaFor(b)
		if err := w.ensure(ctx, storage.MsgTarget(b.Path()), schema); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) ensure(ctx context.Context, target string, schema *arrow.Schema) error {
	table := TableName(target)
	w.mu.Lock()
	done := w.created[table]
	w.mu.Unlock()
	if done {
		return nil
	}

	ddl, err := CreateTableSQL(w.database, table, schema)
	if err != nil {
		return fmt.Errorf("table %s: %w", table, err)
	}
	if err := w.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}

	w.mu.Lock()
	w.created[table] = true
	w.mu.Unlock()
	return nil
}

func (w *Writer) Append(ctx context.Context, target string, rec arrow.Record, start, end uint64) error {
	if err := w.ensure(ctx, target, rec.Schema()); err != nil {
		return err
	}
	rows, err := Rows(rec)
	if err != nil {
		return fmt.Errorf("convert %s: %w", target, err)
	}

	table := TableName(target)
	batch, err := w.conn.PrepareBatch(ctx, InsertSQL(w.database, table, rec.Schema()))
	if err != nil {
		return fmt.Errorf("prepare insert %s: %w", table, err)
	}
	for _, row := range rows {
		if err := batch.Append(row...); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append row to %s: %w", table, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch to %s: %w", table, err)
	}

	metrics.RowsAppended.WithLabelValues("clickhouse").Add(float64(len(rows)))
	w.logger.Debug("clickhouse batch inserted",
		zap.String("table", table),
		zap.Int("rows", len(rows)),
		zap.Uint64("from", start),
		zap.Uint64("to", end),
	)
	return nil
}

func (w *Writer) Close() error {
	return w.conn.Close()
}
