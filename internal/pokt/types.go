package pokt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Int64 decodes integers the node returns either as JSON numbers or as quoted strings.
type Int64 int64

func (i *Int64) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*i = 0
			return nil
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer %q: %w", s, err)
		}
		*i = Int64(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	v, err := n.Int64()
	if err != nil {
		return fmt.Errorf("invalid integer %s: %w", n, err)
	}
	*i = Int64(v)
	return nil
}

func (i Int64) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(i), 10)), nil
}

// HeightRequest is the body of /v1/query/block and /v1/query/height.
type HeightRequest struct {
	Height uint64 `json:"height"`
}

// BlockTxsRequest is the body of /v1/query/blocktxs.
type BlockTxsRequest struct {
	Height  uint64 `json:"height"`
	Page    int    `json:"page"`
	PerPage int    `json:"per_page"`
	Prove   bool   `json:"prove"`
	Order   string `json:"order"`
}

// HeightResponse is returned by /v1/query/height.
type HeightResponse struct {
	Height Int64 `json:"height"`
}

// BlockResponse is returned by /v1/query/block.
type BlockResponse struct {
	Block     *Block     `json:"block"`
	BlockMeta *BlockMeta `json:"block_meta"`
}

// BlockTxsResponse is one page of /v1/query/blocktxs.
// Nil PageTotal or Txs means the node has nothing more to report.
type BlockTxsResponse struct {
	Txs        []*Transaction `json:"txs"`
	TotalTxs   *Int64         `json:"total_txs"`
	PageTotal  *Int64         `json:"page_total"`
	TotalCount *Int64         `json:"total_count"`
}

type Consensus struct {
	Block Int64 `json:"block"`
	App   Int64 `json:"app"`
}

type PartSetHeader struct {
	Total Int64  `json:"total"`
	Hash  string `json:"hash"`
}

type BlockID struct {
	Hash  string         `json:"hash"`
	Parts *PartSetHeader `json:"parts"`
}

// BlockHeader is the tendermint header of a Pocket block.
type BlockHeader struct {
	Version            *Consensus `json:"version"`
	ChainID            string     `json:"chain_id"`
	Height             Int64      `json:"height"`
	Time               string     `json:"time"`
	NumTxs             Int64      `json:"num_txs"`
	TotalTxs           Int64      `json:"total_txs"`
	LastBlockID        *BlockID   `json:"last_block_id"`
	LastCommitHash     string     `json:"last_commit_hash"`
	DataHash           string     `json:"data_hash"`
	ValidatorsHash     string     `json:"validators_hash"`
	NextValidatorsHash string     `json:"next_validators_hash"`
	ConsensusHash      string     `json:"consensus_hash"`
	AppHash            string     `json:"app_hash"`
	LastResultsHash    string     `json:"last_results_hash"`
	EvidenceHash       string     `json:"evidence_hash"`
	ProposerAddress    string     `json:"proposer_address"`
}

type BlockMeta struct {
	BlockID *BlockID     `json:"block_id"`
	Header  *BlockHeader `json:"header"`
}

type BlockData struct {
	Txs []string `json:"txs"`
}

type Block struct {
	Header *BlockHeader `json:"header"`
	Data   *BlockData   `json:"data"`
}

// TxResult is the delivery result attached to a transaction.
type TxResult struct {
	Code        Int64    `json:"code"`
	Data        string   `json:"data"`
	Log         string   `json:"log"`
	Info        string   `json:"info"`
	Events      []string `json:"events"`
	Codespace   string   `json:"codespace"`
	Signer      string   `json:"signer"`
	Recipient   string   `json:"recipient"`
	MessageType string   `json:"message_type"`
}

type TxProof struct {
	RootHash string `json:"root_hash"`
	Data     string `json:"data"`
}

type Coin struct {
	Amount Int64  `json:"amount"`
	Denom  string `json:"denom"`
}

type Signature struct {
	PubKey    string `json:"pub_key"`
	Signature string `json:"signature"`
}

// Msg is the amino-JSON message envelope. Value is decoded lazily per type.
type Msg struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

type StdTx struct {
	Entropy   Int64      `json:"entropy"`
	Fee       []Coin     `json:"fee"`
	Memo      string     `json:"memo"`
	Msg       *Msg       `json:"msg"`
	Signature *Signature `json:"signature"`
}

// Transaction is a committed transaction as returned by /v1/query/blocktxs.
type Transaction struct {
	Hash     string    `json:"hash"`
	Height   Int64     `json:"height"`
	Index    Int64     `json:"index"`
	TxResult *TxResult `json:"tx_result"`
	Tx       string    `json:"tx"`
	Proof    *TxProof  `json:"proof"`
	StdTx    *StdTx    `json:"stdTx"`
}
