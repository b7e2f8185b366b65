package record

import (
	"github.com/apache/arrow/go/v17/arrow"
)

// Column names shared by several tables.
const (
	ColHeight     = "height"
	ColTxHash     = "tx_hash"
	ColTxIndex    = "tx_index"
	ColMsgType    = "msg_type"
	ColResultCode = "result_code"
)

const schemaNameKey = "name"

var (
	int64Type  = arrow.PrimitiveTypes.Int64
	uint64Type = arrow.PrimitiveTypes.Uint64
	boolType   = arrow.FixedWidthTypes.Boolean
	stringType = arrow.BinaryTypes.String
	tsType     = arrow.FixedWidthTypes.Timestamp_ms
	listType   = arrow.ListOf(arrow.BinaryTypes.String)
)

func newSchema(name string, fields ...arrow.Field) *arrow.Schema {
	md := arrow.NewMetadata([]string{schemaNameKey}, []string{name})
	return arrow.NewSchema(fields, &md)
}

// SchemaName returns the table name stored in a schema's metadata.
func SchemaName(s *arrow.Schema) string {
	if s == nil {
		return ""
	}
	md := s.Metadata()
	if i := md.FindKey(schemaNameKey); i >= 0 {
		return md.Values()[i]
	}
	return ""
}

func req(name string, t arrow.DataType) arrow.Field {
	return arrow.Field{Name: name, Type: t, Nullable: false}
}

func opt(name string, t arrow.DataType) arrow.Field {
	return arrow.Field{Name: name, Type: t, Nullable: true}
}

// HeaderSchema is the table layout of the headers dataset.
var HeaderSchema = newSchema("headers",
	req(ColHeight, int64Type),
	opt("chain_id", stringType),
	opt("time", tsType),
	opt("num_txs", int64Type),
	opt("total_txs", int64Type),
	opt("version_block", int64Type),
	opt("version_app", int64Type),
	opt("last_block_hash", stringType),
	opt("last_block_parts_total", int64Type),
	opt("last_block_parts_hash", stringType),
	opt("last_commit_hash", stringType),
	opt("data_hash", stringType),
	opt("validators_hash", stringType),
	opt("next_validators_hash", stringType),
	opt("consensus_hash", stringType),
	opt("app_hash", stringType),
	opt("last_results_hash", stringType),
	opt("evidence_hash", stringType),
	opt("proposer_address", stringType),
)

// TxSchema is the table layout of the txs dataset.
var TxSchema = newSchema("txs",
	req(ColHeight, int64Type),
	req("hash", stringType),
	opt("index", int64Type),
	opt(ColResultCode, int64Type),
	opt("result_data", stringType),
	opt("result_log", stringType),
	opt("result_info", stringType),
	opt("result_events", listType),
	opt("result_codespace", stringType),
	opt("signer", stringType),
	opt("recipient", stringType),
	opt("message_type", stringType),
	opt("tx", stringType),
	opt("proof_root_hash", stringType),
	opt("proof_data", stringType),
	opt("entropy", int64Type),
	opt("fee_amount", int64Type),
	opt("fee_denom", stringType),
	opt("memo", stringType),
	opt(ColMsgType, stringType),
	opt("signature_pub_key", stringType),
	opt("signature", stringType),
)

// msgSchema prefixes the columns every message table carries.
func msgSchema(b Bucket, fields ...arrow.Field) *arrow.Schema {
	base := []arrow.Field{
		req(ColHeight, int64Type),
		req(ColTxHash, stringType),
		opt(ColTxIndex, int64Type),
		opt(ColMsgType, stringType),
		opt(ColResultCode, int64Type),
	}
	return newSchema("tx_msgs/"+b.Path(), append(base, fields...)...)
}

var (
	sendSchema = msgSchema(BucketSend,
		opt("from_address", stringType),
		opt("to_address", stringType),
		opt("amount", int64Type),
	)
	stakeSchema = msgSchema(BucketStake,
		opt("public_key_type", stringType),
		opt("public_key", stringType),
		opt("chains", listType),
		opt("value", int64Type),
		opt("service_url", stringType),
		opt("output_address", stringType),
	)
	beginUnstakeSchema = msgSchema(BucketBeginUnstake,
		opt("validator_address", stringType),
		opt("signer_address", stringType),
	)
	unjailSchema = msgSchema(BucketUnjail,
		opt("address", stringType),
		opt("signer_address", stringType),
	)
	appStakeSchema = msgSchema(BucketAppStake,
		opt("public_key_type", stringType),
		opt("public_key", stringType),
		opt("chains", listType),
		opt("value", int64Type),
	)
	appBeginUnstakeSchema = msgSchema(BucketAppBeginUnstake,
		opt("application_address", stringType),
	)
	appUnjailSchema = msgSchema(BucketAppUnjail,
		opt("address", stringType),
	)
	daoTransferSchema = msgSchema(BucketDaoTransfer,
		opt("from_address", stringType),
		opt("to_address", stringType),
		opt("amount", int64Type),
		opt("action", stringType),
	)
	changeParamSchema = msgSchema(BucketChangeParam,
		opt("address", stringType),
		opt("param_key", stringType),
		opt("param_value", stringType),
	)
	upgradeSchema = msgSchema(BucketUpgrade,
		opt("address", stringType),
		opt("upgrade_height", int64Type),
		opt("upgrade_version", stringType),
		opt("old_upgrade_height", int64Type),
		opt("features", listType),
	)
	claimSchema = msgSchema(BucketClaim,
		opt("app_public_key", stringType),
		opt("chain", stringType),
		opt("session_height", int64Type),
		opt("merkle_root", stringType),
		opt("range_lower", uint64Type),
		opt("range_upper", uint64Type),
		opt("total_proofs", int64Type),
		opt("from_address", stringType),
		opt("evidence_type", int64Type),
		opt("expiration_height", int64Type),
	)
	proofSchema = msgSchema(BucketProof,
		opt("merkle_proof_index", int64Type),
		opt("target_merkle_hash", stringType),
		opt("target_range_lower", uint64Type),
		opt("target_range_upper", uint64Type),
		opt("leaf_type", stringType),
		opt("is_challenge", boolType),
		opt("request_hash", stringType),
		opt("entropy", int64Type),
		opt("session_block_height", int64Type),
		opt("servicer_pub_key", stringType),
		opt("blockchain", stringType),
		opt("aat_version", stringType),
		opt("aat_app_pub_key", stringType),
		opt("aat_client_pub_key", stringType),
		opt("aat_signature", stringType),
		opt("relay_signature", stringType),
		opt("evidence_type", int64Type),
	)
)
