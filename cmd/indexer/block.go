package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"poktIndex/internal/config"
	"poktIndex/internal/indexer"
	"poktIndex/internal/pokt"
)

type blockSummary struct {
	Height  uint64         `json:"height"`
	ChainID any            `json:"chain_id"`
	Time    any            `json:"time"`
	Txs     int            `json:"txs"`
	Msgs    map[string]int `json:"msgs"`
	Dropped int            `json:"dropped"`
}

func runBlock(cmd *cobra.Command, args []string) error {
	height, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil || height == 0 {
		return fmt.Errorf("invalid height %q", args[0])
	}

	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc is required")
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := pokt.NewClient(cfg.RPCURL, pokt.Options{Timeout: cfg.RPCTimeout, Logger: logger})
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer client.Close()

	retrier := &indexer.Retrier{
		Retries:    cfg.MaxRetries,
		Backoff:    cfg.RetryBackoff,
		MaxBackoff: cfg.MaxRetryBackoff,
		Logger:     logger,
	}
	unit, err := indexer.NewIngestor(client, retrier, cfg.PerPage, logger).IngestBlock(ctx, height)
	if err != nil {
		return err
	}

	summary := blockSummary{
		Height:  unit.Height,
		ChainID: unit.Header["chain_id"],
		Time:    unit.Header["time"],
		Txs:     len(unit.Txs),
		Msgs:    make(map[string]int, len(unit.Msgs)),
		Dropped: unit.Dropped,
	}
	for b, recs := range unit.Msgs {
		summary.Msgs[b.String()] = len(recs)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
