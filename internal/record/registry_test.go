package record

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poktIndex/internal/pokt"
)

func txWithMsg(msgType, value string) *pokt.Transaction {
	tx := &pokt.Transaction{
		Hash:     "ABCDEF",
		Height:   1200,
		Index:    4,
		TxResult: &pokt.TxResult{Code: 0, MessageType: "send"},
		StdTx:    &pokt.StdTx{Entropy: 99, Memo: "hi"},
	}
	if msgType != "" || value != "" {
		tx.StdTx.Msg = &pokt.Msg{Type: msgType, Value: json.RawMessage(value)}
	}
	return tx
}

func TestExtractMessageRoutesEveryWireType(t *testing.T) {
	tests := []struct {
		wire   string
		value  string
		bucket Bucket
	}{
		{pokt.MsgTypeAppStake, `{"pubkey":{"type":"crypto/ed25519_public_key","value":"aa"},"chains":["0001"],"value":"1000"}`, BucketAppStake},
		{pokt.MsgTypeAppBeginUnstake, `{"application_address":"app1"}`, BucketAppBeginUnstake},
		{pokt.MsgTypeAppUnjail, `{"address":"app1"}`, BucketAppUnjail},
		{pokt.MsgTypeDaoTransfer, `{"from_address":"a","to_address":"b","amount":"5","action":"dao_transfer"}`, BucketDaoTransfer},
		{pokt.MsgTypeChangeParam, `{"address":"a","param_key":"pos/StakeMinimum","param_value":"MTUwMDA="}`, BucketChangeParam},
		{pokt.MsgTypeUpgrade, `{"address":"a","upgrade":{"Height":"100","Version":"RC-0.6.0","OldUpgradeHeight":"0","Features":["RSCAL:1"]}}`, BucketUpgrade},
		{pokt.MsgTypeStake, `{"public_key":{"type":"t","value":"v"},"chains":["0021"],"value":"15000000000","service_url":"https://n:443"}`, BucketStake},
		{pokt.MsgTypeStake8, `{"public_key":{"type":"t","value":"v"},"chains":["0021"],"value":"15000000000","service_url":"https://n:443","output_address":"o"}`, BucketStake},
		{pokt.MsgTypeBeginUnstake, `{"validator_address":"v"}`, BucketBeginUnstake},
		{pokt.MsgTypeBeginUnstake8, `{"validator_address":"v","signer_address":"s"}`, BucketBeginUnstake},
		{pokt.MsgTypeUnjail, `{"address":"v"}`, BucketUnjail},
		{pokt.MsgTypeUnjail8, `{"address":"v","signer_address":"s"}`, BucketUnjail},
		{pokt.MsgTypeSend, `{"from_address":"a","to_address":"b","amount":"42"}`, BucketSend},
		{pokt.MsgTypeClaim, `{"header":{"app_public_key":"k","chain":"0021","session_height":"1"},"merkle_root":{"merkleHash":"h","range":{"lower":"0","upper":"9"}},"total_proofs":"3","from_address":"f","evidence_type":1,"expiration_height":"0"}`, BucketClaim},
		{pokt.MsgTypeProof, `{"merkle_proofs":{"index":2,"target_range":{"merkleHash":"t","range":{"lower":"1","upper":"2"}}},"leaf":{"type":"pocketcore/relay_proof","value":{"request_hash":"r","entropy":"5","aat":{"version":"0.0.1"}}},"evidence_type":1}`, BucketProof},
	}

	reg := DefaultRegistry()
	for _, tt := range tests {
		t.Run(tt.wire, func(t *testing.T) {
			routed, err := ExtractMessage(txWithMsg(tt.wire, tt.value))
			require.NoError(t, err)
			require.NotNil(t, routed)
			assert.Equal(t, tt.bucket, routed.Bucket)
			assert.Equal(t, int64(1200), routed.Record[ColHeight])
			assert.Equal(t, "ABCDEF", routed.Record[ColTxHash])
			assert.Equal(t, tt.wire, routed.Record[ColMsgType])

			schema, ok := reg.SchemaFor(routed.Bucket)
			require.True(t, ok)
			rec, err := BuildTable(schema, []Flat{routed.Record})
			require.NoError(t, err)
			rec.Release()
		})
	}
}

func TestExtractMessageSilentDrop(t *testing.T) {
	tests := []struct {
		name string
		tx   *pokt.Transaction
	}{
		{"nil tx", nil},
		{"no stdTx", &pokt.Transaction{Hash: "x", Height: 1}},
		{"no msg", txWithMsg("", "")},
		{"empty type", txWithMsg("", `{"a":1}`)},
		{"blank type", txWithMsg("   ", `{"a":1}`)},
		{"unknown type", txWithMsg("pocketcore/unknown", `{"a":1}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			routed, err := ExtractMessage(tt.tx)
			require.NoError(t, err)
			assert.Nil(t, routed)
		})
	}
}

func TestExtractMessageMalformed(t *testing.T) {
	_, err := ExtractMessage(txWithMsg(pokt.MsgTypeSend, `{"amount":{"nested":true}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), pokt.MsgTypeSend)

	_, err = ExtractMessage(&pokt.Transaction{Hash: "y", StdTx: &pokt.StdTx{Msg: &pokt.Msg{Type: pokt.MsgTypeClaim}}})
	require.Error(t, err)
}

func TestRegistryBuckets(t *testing.T) {
	buckets := DefaultRegistry().Buckets()
	require.Len(t, buckets, 12)
	assert.Equal(t, BucketAppBeginUnstake, buckets[0])
	assert.Equal(t, BucketSend, buckets[len(buckets)-1])

	b, ok := DefaultRegistry().Lookup(pokt.MsgTypeStake8)
	require.True(t, ok)
	assert.Equal(t, "pos/MsgStake", b.String())
	assert.Equal(t, "pos/MsgStake", b.Path())

	_, ok = DefaultRegistry().Lookup("pos/Unknown")
	assert.False(t, ok)
}

func TestRegisterRejectsConflicts(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("x/a", BucketSend, sendSchema, flattenSend))
	require.Error(t, r.Register("x/a", BucketSend, sendSchema, flattenSend))
	require.Error(t, r.Register("x/b", BucketSend, claimSchema, flattenSend))
	require.Error(t, r.Register("", BucketSend, sendSchema, flattenSend))
}

func TestFlattenHeaderAndTx(t *testing.T) {
	h := &pokt.BlockHeader{
		ChainID:     "mainnet",
		Height:      7,
		Time:        "2020-07-28T15:00:00.123456Z",
		NumTxs:      2,
		Version:     &pokt.Consensus{Block: 10, App: 0},
		LastBlockID: &pokt.BlockID{Hash: "prev", Parts: &pokt.PartSetHeader{Total: 1, Hash: "parts"}},
	}
	hf := FlattenHeader(h)
	assert.Equal(t, int64(7), hf[ColHeight])
	assert.Equal(t, "prev", hf["last_block_hash"])

	tx := txWithMsg(pokt.MsgTypeSend, `{}`)
	tx.StdTx.Fee = []pokt.Coin{{Amount: 10000, Denom: "upokt"}}
	tf := FlattenTx(tx)
	assert.Equal(t, int64(1200), tf[ColHeight])
	assert.Equal(t, int64(10000), tf["fee_amount"])
	assert.Equal(t, pokt.MsgTypeSend, tf[ColMsgType])

	hdr, err := BuildTable(HeaderSchema, []Flat{hf})
	require.NoError(t, err)
	hdr.Release()
	txs, err := BuildTable(TxSchema, []Flat{tf})
	require.NoError(t, err)
	txs.Release()
}
