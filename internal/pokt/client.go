package pokt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultTimeout = 30 * time.Second
	DefaultOrder   = "desc"
)

// Options configures a Client.
type Options struct {
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to the Pocket RPC query API over HTTP JSON.
// It is safe for concurrent use.
type Client struct {
	endpoint string
	http     *http.Client
	logger   *zap.Logger
}

// NewClient creates a client for the node or portal at endpoint.
func NewClient(endpoint string, opts Options) (*Client, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("rpc endpoint is required")
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return nil, fmt.Errorf("rpc endpoint %q must be an http(s) url", endpoint)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	} else if hc.Timeout == 0 {
		hc.Timeout = opts.Timeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{endpoint: endpoint, http: hc, logger: logger}, nil
}

// Endpoint returns the base URL the client was created with.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Close releases idle connections held by the client.
func (c *Client) Close() {
	if c.http != nil {
		c.http.CloseIdleConnections()
	}
}

// Height returns the latest committed height reported by the node.
func (c *Client) Height(ctx context.Context) (uint64, error) {
	var resp *HeightResponse
	if err := c.doJSON(ctx, heightPath, struct{}{}, &resp); err != nil {
		return 0, err
	}
	if resp == nil || resp.Height < 0 {
		return 0, &Error{Kind: KindDecode, Path: heightPath, Err: fmt.Errorf("missing height")}
	}
	return uint64(resp.Height), nil
}

// Block fetches the block at height. A nil Block in the response is returned as-is;
// callers decide whether that is retriable.
func (c *Client) Block(ctx context.Context, height uint64) (*BlockResponse, error) {
	var resp *BlockResponse
	if err := c.doJSON(ctx, blockPath, HeightRequest{Height: height}, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// BlockTxs fetches one 1-indexed page of the transactions committed at height.
// A null body yields a nil response and no error.
func (c *Client) BlockTxs(ctx context.Context, height uint64, page, perPage int) (*BlockTxsResponse, error) {
	req := BlockTxsRequest{
		Height:  height,
		Page:    page,
		PerPage: perPage,
		Prove:   false,
		Order:   DefaultOrder,
	}
	var resp *BlockTxsResponse
	if err := c.doJSON(ctx, blockTxsPath, req, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, path string, payload any, out any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &Error{Kind: KindTransport, Path: path, Err: err}
	}
	body, readErr := io.ReadAll(resp.Body)
	_ = drainAndClose(resp.Body)
	if readErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &Error{Kind: KindTransport, Path: path, StatusCode: resp.StatusCode, Err: readErr}
	}

	if resp.StatusCode >= 300 {
		e := &Error{Kind: KindStatus, Path: path, StatusCode: resp.StatusCode}
		if embedded := parseErrorBody(path, body); embedded != nil {
			e.Code = embedded.Code
			e.Message = embedded.Message
		} else {
			e.Message = strings.TrimSpace(truncate(string(body), 256))
		}
		c.logger.Debug("rpc http error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("message", e.Message),
		)
		return e
	}

	if embedded := parseErrorBody(path, body); embedded != nil {
		embedded.StatusCode = resp.StatusCode
		return embedded
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Kind: KindDecode, Path: path, StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}

func drainAndClose(rc io.ReadCloser) error {
	if rc == nil {
		return nil
	}
	_, _ = io.Copy(io.Discard, rc)
	return rc.Close()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Factory builds independent clients against one endpoint, one per ingestion range.
type Factory struct {
	Endpoint string
	Options  Options
}

// New returns a fresh client.
func (f Factory) New() (*Client, error) {
	return NewClient(f.Endpoint, f.Options)
}
