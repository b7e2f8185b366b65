package indexer

import (
	"context"
	"fmt"
	"sync"

	"github.com/apache/arrow/go/v17/arrow"

	"poktIndex/internal/pokt"
	"poktIndex/internal/storage"
)

type pageKey struct {
	height uint64
	page   int
}

// fakeGateway serves blocks from memory. Every height has a header unless
// listed in missing; pages[h] holds the transaction pages of h.
type fakeGateway struct {
	mu sync.Mutex

	pages         map[uint64][][]*pokt.Transaction
	pageTotal     map[uint64]int
	blockFailures map[uint64]int
	txFailures    map[pageKey]int
	emptyBlocks   map[uint64]int
	blockErr      error

	blockCalls map[uint64]int
	txCalls    []pageKey
	closed     bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		pages:         make(map[uint64][][]*pokt.Transaction),
		pageTotal:     make(map[uint64]int),
		blockFailures: make(map[uint64]int),
		txFailures:    make(map[pageKey]int),
		emptyBlocks:   make(map[uint64]int),
		blockCalls:    make(map[uint64]int),
	}
}

// withTxs gives height one page per element of sizes.
func (f *fakeGateway) withTxs(height uint64, sizes ...int) *fakeGateway {
	var pages [][]*pokt.Transaction
	for p, n := range sizes {
		var page []*pokt.Transaction
		for i := 0; i < n; i++ {
			page = append(page, sendTx(height, p*1000+i))
		}
		pages = append(pages, page)
	}
	f.pages[height] = pages
	return f
}

func sendTx(height uint64, index int) *pokt.Transaction {
	return &pokt.Transaction{
		Hash:     fmt.Sprintf("%d-%d", height, index),
		Height:   pokt.Int64(height),
		Index:    pokt.Int64(index),
		TxResult: &pokt.TxResult{Code: 0},
		StdTx: &pokt.StdTx{Msg: &pokt.Msg{
			Type:  pokt.MsgTypeSend,
			Value: []byte(`{"from_address":"a","to_address":"b","amount":"1"}`),
		}},
	}
}

func (f *fakeGateway) Block(ctx context.Context, height uint64) (*pokt.BlockResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockCalls[height]++
	if f.blockErr != nil {
		return nil, f.blockErr
	}
	if f.blockFailures[height] > 0 {
		f.blockFailures[height]--
		return nil, &pokt.Error{Kind: pokt.KindTransport, Path: "/v1/query/block", Err: fmt.Errorf("connection reset")}
	}
	if f.emptyBlocks[height] > 0 {
		f.emptyBlocks[height]--
		return &pokt.BlockResponse{}, nil
	}
	return &pokt.BlockResponse{Block: &pokt.Block{Header: &pokt.BlockHeader{
		ChainID: "testnet",
		Height:  pokt.Int64(height),
		Time:    "2021-07-01T00:00:00Z",
		NumTxs:  pokt.Int64(f.txCount(height)),
	}}}, nil
}

func (f *fakeGateway) txCount(height uint64) int {
	n := 0
	for _, p := range f.pages[height] {
		n += len(p)
	}
	return n
}

func (f *fakeGateway) BlockTxs(ctx context.Context, height uint64, page, perPage int) (*pokt.BlockTxsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := pageKey{height, page}
	f.txCalls = append(f.txCalls, key)
	if f.txFailures[key] > 0 {
		f.txFailures[key]--
		return nil, &pokt.Error{Kind: pokt.KindStatus, Path: "/v1/query/blocktxs", StatusCode: 502}
	}

	pages := f.pages[height]
	total := len(pages)
	if t, ok := f.pageTotal[height]; ok {
		total = t
	}
	pt := pokt.Int64(total)
	resp := &pokt.BlockTxsResponse{PageTotal: &pt}
	if page <= len(pages) {
		resp.Txs = pages[page-1]
	} else {
		resp.Txs = []*pokt.Transaction{}
	}
	return resp, nil
}

func (f *fakeGateway) Height(ctx context.Context) (uint64, error) {
	return 500, nil
}

func (f *fakeGateway) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeGateway) calls(height uint64) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int
	for _, k := range f.txCalls {
		if k.height == height {
			out = append(out, k.page)
		}
	}
	return out
}

type appendCall struct {
	target     string
	rows       int64
	start, end uint64
}

type fakeWriter struct {
	mu    sync.Mutex
	calls []appendCall
	err   error
}

func (w *fakeWriter) Append(ctx context.Context, target string, rec arrow.Record, start, end uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.calls = append(w.calls, appendCall{target: target, rows: rec.NumRows(), start: start, end: end})
	return nil
}

func (w *fakeWriter) target(name string) []appendCall {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []appendCall
	for _, c := range w.calls {
		if c.target == name {
			out = append(out, c)
		}
	}
	return out
}

var _ storage.Writer = (*fakeWriter)(nil)

type memState struct {
	mu    sync.Mutex
	last  uint64
	ok    bool
	saves []uint64
}

func (s *memState) Load(ctx context.Context) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.ok, nil
}

func (s *memState) Save(ctx context.Context, last uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last, s.ok = last, true
	s.saves = append(s.saves, last)
	return nil
}
