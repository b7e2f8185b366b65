package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"poktIndex/internal/metrics"
	"poktIndex/internal/storage"
	"poktIndex/internal/storage/parquet"
)

// Config configures the bucket mirror.
type Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// PutObjectAPI is the part of the S3 client the writer uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
}

// maxKeyAttempts bounds how many taken keys Append skips for one range.
const maxKeyAttempts = 1000

// Writer uploads every appended table as a Parquet object, using the same
// key layout as the local dataset. Objects are created with If-None-Match so
// an existing block_<start>-<end>-<i> key is never overwritten; the next free
// index is used instead, matching the local writer.
type Writer struct {
	client PutObjectAPI
	bucket string
	prefix string
	logger *zap.Logger

	mu  sync.Mutex
	seq map[string]int
}

// NewClient builds an S3 client from the default AWS config chain, with
// optional static credentials and a custom endpoint.
func NewClient(ctx context.Context, cfg Config) (*awss3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg.Credentials = aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     cfg.AccessKeyID,
				SecretAccessKey: cfg.SecretAccessKey,
			}, nil
		})
	}
	return awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func NewWriter(client PutObjectAPI, cfg Config, logger *zap.Logger) (*Writer, error) {
	if client == nil {
		return nil, fmt.Errorf("s3 client is nil")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: logger,
		seq:    make(map[string]int),
	}, nil
}

// next returns the first index worth trying for target and [start, end].
func (w *Writer) next(id string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seq[id]
}

func (w *Writer) claimed(id string, i int) {
	w.mu.Lock()
	if w.seq[id] <= i {
		w.seq[id] = i + 1
	}
	w.mu.Unlock()
}

func (w *Writer) Append(ctx context.Context, target string, rec arrow.Record, start, end uint64) error {
	data, err := parquet.Encode(rec, nil)
	if err != nil {
		return fmt.Errorf("encode %s: %w", target, err)
	}

	dir := path.Join(w.prefix, target)
	id := fmt.Sprintf("%s/%d-%d", dir, start, end)

	var key string
	for i, n := w.next(id), 0; ; i, n = i+1, n+1 {
		if n == maxKeyAttempts {
			return fmt.Errorf("no free object key for %s [%d, %d]", target, start, end)
		}
		key = path.Join(dir, storage.FileName(start, end, i))
		err = w.put(ctx, key, data, rec.NumRows(), start, end)
		if err == nil {
			w.claimed(id, i)
			break
		}
		if !isPreconditionFailed(err) {
			return fmt.Errorf("put s3://%s/%s: %w", w.bucket, key, err)
		}
		w.claimed(id, i)
	}

	metrics.RowsAppended.WithLabelValues("s3").Add(float64(rec.NumRows()))
	w.logger.Debug("parquet object uploaded",
		zap.String("bucket", w.bucket),
		zap.String("key", key),
		zap.Int("bytes", len(data)),
	)
	return nil
}

func (w *Writer) put(ctx context.Context, key string, data []byte, rows int64, start, end uint64) error {
	_, err := w.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/vnd.apache.parquet"),
		IfNoneMatch: aws.String("*"),
		Metadata: map[string]string{
			"start_block": strconv.FormatUint(start, 10),
			"end_block":   strconv.FormatUint(end, 10),
			"rows":        strconv.FormatInt(rows, 10),
		},
	})
	return err
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed"
}
