package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"poktIndex/internal/config"
	"poktIndex/internal/indexer"
	"poktIndex/internal/metrics"
	"poktIndex/internal/pokt"
	"poktIndex/internal/progress"
	"poktIndex/internal/storage"
)

func main() {
	root := &cobra.Command{
		Use:          "indexer",
		Short:        "Pocket Network block indexer",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Ingest a block range into the configured sinks",
		RunE:  runIndexer,
	}

	runCmd.Flags().String("rpc", "", "Pocket RPC URL")
	runCmd.Flags().Duration("rpc-timeout", 30*time.Second, "per-request RPC timeout")
	runCmd.Flags().Uint64("from", 0, "start block (inclusive), 0 means resume or 1")
	runCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest height minus one")
	runCmd.Flags().Uint64("batch-size", indexer.DefaultBatchSize, "blocks per flush")
	runCmd.Flags().Int("per-page", indexer.DefaultPerPage, "transactions per blocktxs page")
	runCmd.Flags().Int("retries", 100, "retries per fetch")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().Duration("max-retry-backoff", 30*time.Second, "retry backoff cap")
	runCmd.Flags().Int("workers", 1, "parallel chunk workers, 1 runs sequentially")
	runCmd.Flags().Uint64("chunk-size", 0, "blocks per parallel chunk, 0 means batch-size")
	runCmd.Flags().String("index-dir", "./data/index", "parquet dataset root")
	runCmd.Flags().String("compression", "snappy", "parquet compression (snappy, zstd, gzip, none)")
	runCmd.Flags().StringSlice("sinks", []string{config.SinkParquet}, "sinks (parquet, s3, clickhouse, jsonl)")
	runCmd.Flags().String("state", config.StateFile, "checkpoint backend (file, postgres, dataset)")
	runCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	runCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	runCmd.Flags().String("pg-dsn", "", "Postgres DSN for the postgres state backend")
	runCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	runCmd.Flags().Duration("progress-interval", 10*time.Second, "progress log interval")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	blockCmd := &cobra.Command{
		Use:   "block <height>",
		Short: "Ingest a single block and print a summary",
		Args:  cobra.ExactArgs(1),
		RunE:  runBlock,
	}

	blockCmd.Flags().String("rpc", "", "Pocket RPC URL")
	blockCmd.Flags().Int("per-page", indexer.DefaultPerPage, "transactions per blocktxs page")
	blockCmd.Flags().Int("retries", 100, "retries per fetch")
	blockCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(blockCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runIndexer(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, logger); err != nil {
				logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	clientOpts := pokt.Options{Timeout: cfg.RPCTimeout, Logger: logger}
	client, err := pokt.NewClient(cfg.RPCURL, clientOpts)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer client.Close()

	writer, err := buildWriter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := writer.Close(); err != nil {
			logger.Warn("close sinks", zap.Error(err))
		}
	}()

	state, closeState, err := buildState(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeState()

	// the reporter outlives ctx so that blocked producers can always finish
	events := make(chan progress.Event, 64)
	reporter := progress.NewReporter(logger, cfg.ProgressInterval)
	totals := make(chan progress.Totals, 1)
	go func() {
		totals <- reporter.Run(context.WithoutCancel(ctx), events)
	}()
	sink := progress.NewChanSink(events)

	runCfg := indexer.RunConfig{
		FromBlock:         cfg.FromBlock,
		ToBlock:           cfg.ToBlock,
		BatchSize:         cfg.BatchSize,
		PerPage:           cfg.PerPage,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
		MaxRetryBackoff:   cfg.MaxRetryBackoff,
		CheckpointEnabled: cfg.CheckpointEnabled,
	}
	runner := indexer.NewRunner(runCfg, indexer.Deps{
		Gateway: client,
		Writer:  writer,
		State:   state,
		Sink:    sink,
	}, logger)

	logger.Info("indexer start",
		zap.String("rpc", client.Endpoint()),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.Int("workers", cfg.Workers),
		zap.Strings("sinks", cfg.Sinks),
		zap.String("state", cfg.State),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
	)

	started := time.Now()
	if cfg.Workers > 1 {
		err = runParallel(ctx, cfg, runner, runCfg, clientOpts, writer, sink, logger)
	} else {
		err = runner.Run(ctx)
	}

	close(events)
	final := <-totals
	logger.Info("indexer finished",
		zap.Int64("blocks", final.Blocks),
		zap.Int64("txs", final.Txs),
		zap.Int64("errors", final.Errors),
		zap.Duration("elapsed", time.Since(started)),
		zap.Error(err),
	)
	return err
}

func runParallel(ctx context.Context, cfg config.Config, runner *indexer.Runner, runCfg indexer.RunConfig, opts pokt.Options, writer storage.Writer, sink progress.Sink, logger *zap.Logger) error {
	from, to, ok, err := runner.ResolveRange(ctx)
	if err != nil {
		return err
	}
	if !ok {
		logger.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
		return nil
	}
	runCfg.FromBlock, runCfg.ToBlock = from, to

	factory := pokt.Factory{Endpoint: cfg.RPCURL, Options: opts}
	return indexer.RunParallel(ctx, indexer.ParallelConfig{
		Run:       runCfg,
		Workers:   cfg.Workers,
		ChunkSize: cfg.ChunkSize,
	}, func() (indexer.RangeGateway, error) {
		c, err := factory.New()
		if err != nil {
			return nil, err
		}
		return c, nil
	}, writer, sink, logger)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
