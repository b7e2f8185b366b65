package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Ingestion metrics
var (
	BlocksIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexer_blocks_ingested_total",
		Help: "The total number of block headers flushed to storage",
	})

	TxsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexer_txs_ingested_total",
		Help: "The total number of transactions flushed to storage",
	})

	FetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "indexer_fetch_errors_total",
		Help: "The total number of failed RPC fetch attempts by stage",
	}, []string{"stage"})

	MessagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexer_messages_dropped_total",
		Help: "Transactions whose message was empty or of an unrecognised type",
	})

	LastFlushedBlock = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "indexer_last_flushed_block",
		Help: "The end height of the most recent successful flush",
	})
)

// Storage metrics
var (
	FlushDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "indexer_flush_duration_seconds",
		Help:    "Time spent building and appending one batch",
		Buckets: prometheus.DefBuckets,
	})

	RowsAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "indexer_rows_appended_total",
		Help: "Rows appended per storage sink",
	}, []string{"sink"})
)

// Orchestration metrics
var (
	ChunksFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexer_chunks_failed_total",
		Help: "Block range chunks that ended in an error",
	})

	ChunksCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexer_chunks_completed_total",
		Help: "Block range chunks ingested completely",
	})
)

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
