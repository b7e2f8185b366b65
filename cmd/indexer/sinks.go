package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"poktIndex/internal/config"
	"poktIndex/internal/indexer"
	"poktIndex/internal/record"
	"poktIndex/internal/storage"
	"poktIndex/internal/storage/clickhouse"
	"poktIndex/internal/storage/parquet"
	"poktIndex/internal/storage/postgres"
	"poktIndex/internal/storage/s3"
)

// buildWriter opens every configured sink in the order they were listed.
func buildWriter(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.Fanout, error) {
	var out storage.Fanout
	for _, name := range cfg.Sinks {
		w, err := openSink(ctx, name, cfg, logger.With(zap.String("sink", name)))
		if err != nil {
			_ = out.Close()
			return nil, fmt.Errorf("open %s sink: %w", name, err)
		}
		out = append(out, w)
	}
	return out, nil
}

func openSink(ctx context.Context, name string, cfg config.Config, logger *zap.Logger) (storage.Writer, error) {
	reg := record.DefaultRegistry()
	switch name {
	case config.SinkParquet:
		w, err := parquet.NewWriter(parquet.Config{Root: cfg.IndexDir, Compression: cfg.Compression}, logger)
		if err != nil {
			return nil, err
		}
		if err := w.EnsureLayout(reg.Buckets()); err != nil {
			return nil, err
		}
		return w, nil
	case config.SinkS3:
		s3cfg := s3.Config{
			Bucket:          cfg.S3.Bucket,
			Prefix:          cfg.S3.Prefix,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		}
		client, err := s3.NewClient(ctx, s3cfg)
		if err != nil {
			return nil, err
		}
		return s3.NewWriter(client, s3cfg, logger)
	case config.SinkClickHouse:
		conn, err := clickhouse.Open(clickhouse.Config{
			Addr:     cfg.ClickHouse.Addr,
			Database: cfg.ClickHouse.Database,
			Username: cfg.ClickHouse.Username,
			Password: cfg.ClickHouse.Password,
			TLS:      cfg.ClickHouse.TLS,
		})
		if err != nil {
			return nil, err
		}
		w, err := clickhouse.NewWriter(conn, cfg.ClickHouse.Database, logger)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		if err := w.EnsureTables(ctx, reg); err != nil {
			_ = w.Close()
			return nil, err
		}
		return w, nil
	case config.SinkJSONL:
		return storage.NewJsonlWriter(cfg.JSONLDir), nil
	default:
		return nil, fmt.Errorf("unknown sink %q", name)
	}
}

// buildState returns the checkpoint store selected by cfg and its closer.
func buildState(ctx context.Context, cfg config.Config) (indexer.StateStore, func(), error) {
	switch cfg.State {
	case config.StatePostgres:
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		return &postgres.StateStore{Store: store, Name: cfg.StateName}, store.Close, nil
	case config.StateDataset:
		return parquet.DatasetState{Root: cfg.IndexDir}, func() {}, nil
	default:
		return indexer.NewFileStateStore(cfg.Checkpoint), func() {}, nil
	}
}
