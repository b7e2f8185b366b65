package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Sink names accepted by the sinks key.
const (
	SinkParquet    = "parquet"
	SinkS3         = "s3"
	SinkClickHouse = "clickhouse"
	SinkJSONL      = "jsonl"
)

// State backends accepted by the state key.
const (
	StateFile     = "file"
	StatePostgres = "postgres"
	StateDataset  = "dataset"
)

// S3 configures the Parquet object mirror.
type S3 struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// ClickHouse configures the analytical sink.
type ClickHouse struct {
	Addr     string
	Database string
	Username string
	Password string
	TLS      bool
}

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL     string
	RPCTimeout time.Duration

	FromBlock       uint64
	ToBlock         uint64
	BatchSize       uint64
	PerPage         int
	MaxRetries      int
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration

	Workers   int
	ChunkSize uint64

	IndexDir    string
	Compression string
	Sinks       []string
	JSONLDir    string
	S3          S3
	ClickHouse  ClickHouse

	State             string
	Checkpoint        string
	CheckpointEnabled bool
	StateName         string
	PGDSN             string

	MetricsAddr      string
	ProgressInterval time.Duration
	LogLevel         string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INDEXER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("rpc-timeout", 30*time.Second)
	v.SetDefault("batch-size", uint64(1000))
	v.SetDefault("per-page", 1000)
	v.SetDefault("retries", 100)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("max-retry-backoff", 30*time.Second)
	v.SetDefault("workers", 1)
	v.SetDefault("index-dir", "./data/index")
	v.SetDefault("compression", "snappy")
	v.SetDefault("sinks", []string{SinkParquet})
	v.SetDefault("jsonl-dir", "./data/jsonl")
	v.SetDefault("s3-region", "us-east-1")
	v.SetDefault("clickhouse-database", "default")
	v.SetDefault("state", StateFile)
	v.SetDefault("checkpoint", "./data/checkpoint.json")
	v.SetDefault("checkpoint-enabled", true)
	v.SetDefault("state-name", "pokt")
	v.SetDefault("progress-interval", 10*time.Second)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:          v.GetString("rpc"),
		RPCTimeout:      v.GetDuration("rpc-timeout"),
		FromBlock:       v.GetUint64("from"),
		ToBlock:         v.GetUint64("to"),
		BatchSize:       v.GetUint64("batch-size"),
		PerPage:         v.GetInt("per-page"),
		MaxRetries:      v.GetInt("retries"),
		RetryBackoff:    v.GetDuration("retry-backoff"),
		MaxRetryBackoff: v.GetDuration("max-retry-backoff"),
		Workers:         v.GetInt("workers"),
		ChunkSize:       v.GetUint64("chunk-size"),
		IndexDir:        v.GetString("index-dir"),
		Compression:     v.GetString("compression"),
		Sinks:           getStringSlice(v, "sinks"),
		JSONLDir:        v.GetString("jsonl-dir"),
		S3: S3{
			Bucket:          v.GetString("s3-bucket"),
			Prefix:          v.GetString("s3-prefix"),
			Region:          v.GetString("s3-region"),
			Endpoint:        v.GetString("s3-endpoint"),
			AccessKeyID:     v.GetString("s3-access-key-id"),
			SecretAccessKey: v.GetString("s3-secret-access-key"),
		},
		ClickHouse: ClickHouse{
			Addr:     v.GetString("clickhouse-addr"),
			Database: v.GetString("clickhouse-database"),
			Username: v.GetString("clickhouse-username"),
			Password: v.GetString("clickhouse-password"),
			TLS:      v.GetBool("clickhouse-tls"),
		},
		State:             strings.ToLower(v.GetString("state")),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		StateName:         v.GetString("state-name"),
		PGDSN:             v.GetString("pg-dsn"),
		MetricsAddr:       v.GetString("metrics-addr"),
		ProgressInterval:  v.GetDuration("progress-interval"),
		LogLevel:          v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate checks the settings a run depends on.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc is required")
	}
	if c.ToBlock != 0 && c.FromBlock > c.ToBlock {
		return fmt.Errorf("from block %d is after to block %d", c.FromBlock, c.ToBlock)
	}
	if len(c.Sinks) == 0 {
		return fmt.Errorf("at least one sink is required")
	}
	for _, s := range c.Sinks {
		switch s {
		case SinkParquet, SinkJSONL:
		case SinkS3:
			if c.S3.Bucket == "" {
				return fmt.Errorf("s3 sink needs s3-bucket")
			}
		case SinkClickHouse:
			if c.ClickHouse.Addr == "" {
				return fmt.Errorf("clickhouse sink needs clickhouse-addr")
			}
		default:
			return fmt.Errorf("unknown sink %q", s)
		}
	}
	switch c.State {
	case StateFile, StateDataset:
	case StatePostgres:
		if c.PGDSN == "" {
			return fmt.Errorf("postgres state needs pg-dsn")
		}
	default:
		return fmt.Errorf("unknown state backend %q", c.State)
	}
	return nil
}

// HasSink reports whether name is one of the configured sinks.
func (c Config) HasSink(name string) bool {
	for _, s := range c.Sinks {
		if s == name {
			return true
		}
	}
	return false
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
