package record

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/apache/arrow/go/v17/arrow"

	"poktIndex/internal/pokt"
)

// Message buckets.
var (
	BucketAppStake        = Bucket{Module: "apps", Type: "MsgAppStake"}
	BucketAppBeginUnstake = Bucket{Module: "apps", Type: "MsgAppBeginUnstake"}
	BucketAppUnjail       = Bucket{Module: "apps", Type: "MsgAppUnjail"}
	BucketDaoTransfer     = Bucket{Module: "gov", Type: "msg_dao_transfer"}
	BucketChangeParam     = Bucket{Module: "gov", Type: "msg_change_param"}
	BucketUpgrade         = Bucket{Module: "gov", Type: "msg_upgrade"}
	BucketStake           = Bucket{Module: "pos", Type: "MsgStake"}
	BucketBeginUnstake    = Bucket{Module: "pos", Type: "MsgBeginUnstake"}
	BucketUnjail          = Bucket{Module: "pos", Type: "MsgUnjail"}
	BucketSend            = Bucket{Module: "pos", Type: "Send"}
	BucketClaim           = Bucket{Module: "pocketcore", Type: "claim"}
	BucketProof           = Bucket{Module: "pocketcore", Type: "proof"}
)

// flattenFunc decodes a message value and adds its columns to base.
type flattenFunc func(base Flat, value json.RawMessage) error

type entry struct {
	bucket  Bucket
	schema  *arrow.Schema
	flatten flattenFunc
}

// Registry routes wire message types to buckets, schemas and flatteners.
type Registry struct {
	byWire   map[string]entry
	byBucket map[Bucket]*arrow.Schema
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byWire:   make(map[string]entry),
		byBucket: make(map[Bucket]*arrow.Schema),
	}
}

// Register routes wireType to bucket. Several wire types may share a bucket
// as long as they share its schema.
func (r *Registry) Register(wireType string, bucket Bucket, schema *arrow.Schema, fn flattenFunc) error {
	if wireType == "" {
		return fmt.Errorf("register %s: empty wire type", bucket)
	}
	if _, ok := r.byWire[wireType]; ok {
		return fmt.Errorf("register %s: wire type %q already registered", bucket, wireType)
	}
	if existing, ok := r.byBucket[bucket]; ok && !existing.Equal(schema) {
		return fmt.Errorf("register %s: schema differs from the bucket's registered schema", bucket)
	}
	r.byWire[wireType] = entry{bucket: bucket, schema: schema, flatten: fn}
	r.byBucket[bucket] = schema
	return nil
}

func (r *Registry) mustRegister(wireType string, bucket Bucket, schema *arrow.Schema, fn flattenFunc) {
	if err := r.Register(wireType, bucket, schema, fn); err != nil {
		panic(err)
	}
}

// Lookup returns the bucket for a wire message type.
func (r *Registry) Lookup(wireType string) (Bucket, bool) {
	e, ok := r.byWire[wireType]
	return e.bucket, ok
}

// SchemaFor returns the schema of a bucket.
func (r *Registry) SchemaFor(b Bucket) (*arrow.Schema, bool) {
	s, ok := r.byBucket[b]
	return s, ok
}

// Buckets returns every registered bucket ordered by module then type.
func (r *Registry) Buckets() []Bucket {
	out := make([]Bucket, 0, len(r.byBucket))
	for b := range r.byBucket {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Module != out[j].Module {
			return out[i].Module < out[j].Module
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// Extract routes the message embedded in tx. It returns nil, nil when the
// transaction carries no message or one of an unrecognised type.
func (r *Registry) Extract(tx *pokt.Transaction) (*Routed, error) {
	if tx == nil || tx.StdTx == nil || tx.StdTx.Msg == nil {
		return nil, nil
	}
	msg := tx.StdTx.Msg
	if strings.TrimSpace(msg.Type) == "" {
		return nil, nil
	}
	e, ok := r.byWire[msg.Type]
	if !ok {
		return nil, nil
	}

	f := Flat{
		ColHeight:  int64(tx.Height),
		ColTxHash:  tx.Hash,
		ColTxIndex: int64(tx.Index),
		ColMsgType: msg.Type,
	}
	if tx.TxResult != nil {
		f[ColResultCode] = int64(tx.TxResult.Code)
	}
	if err := e.flatten(f, msg.Value); err != nil {
		return nil, fmt.Errorf("flatten %s message in tx %s at height %d: %w", msg.Type, tx.Hash, tx.Height, err)
	}
	return &Routed{Bucket: e.bucket, Record: f}, nil
}

var defaultRegistry = buildDefaultRegistry()

// DefaultRegistry returns the registry of every Pocket message type the indexer stores.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// ExtractMessage routes tx through the default registry.
func ExtractMessage(tx *pokt.Transaction) (*Routed, error) {
	return defaultRegistry.Extract(tx)
}

func buildDefaultRegistry() *Registry {
	r := NewRegistry()

	r.mustRegister(pokt.MsgTypeAppStake, BucketAppStake, appStakeSchema, flattenAppStake)
	r.mustRegister(pokt.MsgTypeAppBeginUnstake, BucketAppBeginUnstake, appBeginUnstakeSchema, flattenAppBeginUnstake)
	r.mustRegister(pokt.MsgTypeAppUnjail, BucketAppUnjail, appUnjailSchema, flattenAppUnjail)

	r.mustRegister(pokt.MsgTypeDaoTransfer, BucketDaoTransfer, daoTransferSchema, flattenDaoTransfer)
	r.mustRegister(pokt.MsgTypeChangeParam, BucketChangeParam, changeParamSchema, flattenChangeParam)
	r.mustRegister(pokt.MsgTypeUpgrade, BucketUpgrade, upgradeSchema, flattenUpgrade)

	r.mustRegister(pokt.MsgTypeStake, BucketStake, stakeSchema, flattenStake)
	r.mustRegister(pokt.MsgTypeStake8, BucketStake, stakeSchema, flattenStake)
	r.mustRegister(pokt.MsgTypeBeginUnstake, BucketBeginUnstake, beginUnstakeSchema, flattenBeginUnstake)
	r.mustRegister(pokt.MsgTypeBeginUnstake8, BucketBeginUnstake, beginUnstakeSchema, flattenBeginUnstake)
	r.mustRegister(pokt.MsgTypeUnjail, BucketUnjail, unjailSchema, flattenUnjail)
	r.mustRegister(pokt.MsgTypeUnjail8, BucketUnjail, unjailSchema, flattenUnjail)
	r.mustRegister(pokt.MsgTypeSend, BucketSend, sendSchema, flattenSend)

	r.mustRegister(pokt.MsgTypeClaim, BucketClaim, claimSchema, flattenClaim)
	r.mustRegister(pokt.MsgTypeProof, BucketProof, proofSchema, flattenProof)
	return r
}

func decode(value json.RawMessage, out any) error {
	if len(value) == 0 {
		return fmt.Errorf("missing message value")
	}
	if err := json.Unmarshal(value, out); err != nil {
		return fmt.Errorf("decode message value: %w", err)
	}
	return nil
}

func flattenSend(f Flat, value json.RawMessage) error {
	var m pokt.MsgSend
	if err := decode(value, &m); err != nil {
		return err
	}
	f["from_address"] = m.FromAddress
	f["to_address"] = m.ToAddress
	f["amount"] = int64(m.Amount)
	return nil
}

func putPublicKey(f Flat, pk *pokt.PublicKey) {
	if pk == nil {
		return
	}
	f["public_key_type"] = pk.Type
	f["public_key"] = pk.Value
}

func flattenStake(f Flat, value json.RawMessage) error {
	var m pokt.MsgValidatorStake
	if err := decode(value, &m); err != nil {
		return err
	}
	putPublicKey(f, m.PublicKey)
	f["chains"] = m.Chains
	f["value"] = int64(m.Value)
	f["service_url"] = m.ServiceURL
	f["output_address"] = nilIfEmpty(m.OutputAddress)
	return nil
}

func flattenBeginUnstake(f Flat, value json.RawMessage) error {
	var m pokt.MsgValidatorBeginUnstake
	if err := decode(value, &m); err != nil {
		return err
	}
	f["validator_address"] = m.ValidatorAddress
	f["signer_address"] = nilIfEmpty(m.SignerAddress)
	return nil
}

func flattenUnjail(f Flat, value json.RawMessage) error {
	var m pokt.MsgValidatorUnjail
	if err := decode(value, &m); err != nil {
		return err
	}
	f["address"] = m.Address
	f["signer_address"] = nilIfEmpty(m.SignerAddress)
	return nil
}

func flattenAppStake(f Flat, value json.RawMessage) error {
	var m pokt.MsgAppStake
	if err := decode(value, &m); err != nil {
		return err
	}
	putPublicKey(f, m.PubKey)
	f["chains"] = m.Chains
	f["value"] = int64(m.Value)
	return nil
}

func flattenAppBeginUnstake(f Flat, value json.RawMessage) error {
	var m pokt.MsgAppBeginUnstake
	if err := decode(value, &m); err != nil {
		return err
	}
	f["application_address"] = m.ApplicationAddress
	return nil
}

func flattenAppUnjail(f Flat, value json.RawMessage) error {
	var m pokt.MsgAppUnjail
	if err := decode(value, &m); err != nil {
		return err
	}
	f["address"] = m.Address
	return nil
}

func flattenDaoTransfer(f Flat, value json.RawMessage) error {
	var m pokt.MsgDaoTransfer
	if err := decode(value, &m); err != nil {
		return err
	}
	f["from_address"] = m.FromAddress
	f["to_address"] = m.ToAddress
	f["amount"] = int64(m.Amount)
	f["action"] = m.Action
	return nil
}

func flattenChangeParam(f Flat, value json.RawMessage) error {
	var m pokt.MsgChangeParam
	if err := decode(value, &m); err != nil {
		return err
	}
	f["address"] = m.Address
	f["param_key"] = m.ParamKey
	// param_value is amino JSON of arbitrary shape; strings are stored unquoted
	var s string
	switch {
	case len(m.ParamValue) == 0 || string(m.ParamValue) == "null":
		f["param_value"] = nil
	case json.Unmarshal(m.ParamValue, &s) == nil:
		f["param_value"] = s
	default:
		f["param_value"] = string(m.ParamValue)
	}
	return nil
}

func flattenUpgrade(f Flat, value json.RawMessage) error {
	var m pokt.MsgUpgrade
	if err := decode(value, &m); err != nil {
		return err
	}
	f["address"] = m.Address
	if u := m.Upgrade; u != nil {
		f["upgrade_height"] = int64(u.Height)
		f["upgrade_version"] = u.Version
		f["old_upgrade_height"] = int64(u.OldUpgradeHeight)
		f["features"] = u.Features
	}
	return nil
}

func flattenClaim(f Flat, value json.RawMessage) error {
	var m pokt.MsgClaim
	if err := decode(value, &m); err != nil {
		return err
	}
	f["app_public_key"] = m.Header.AppPublicKey
	f["chain"] = m.Header.Chain
	f["session_height"] = int64(m.Header.SessionHeight)
	if m.MerkleRoot != nil {
		f["merkle_root"] = m.MerkleRoot.MerkleHash
		if m.MerkleRoot.Range != nil {
			f["range_lower"] = nilIfEmpty(m.MerkleRoot.Range.Lower)
			f["range_upper"] = nilIfEmpty(m.MerkleRoot.Range.Upper)
		}
	}
	f["total_proofs"] = int64(m.TotalProofs)
	f["from_address"] = m.FromAddress
	f["evidence_type"] = int64(m.EvidenceType)
	f["expiration_height"] = int64(m.ExpirationHeight)
	return nil
}

func flattenProof(f Flat, value json.RawMessage) error {
	var m pokt.MsgProof
	if err := decode(value, &m); err != nil {
		return err
	}
	if mp := m.MerkleProofs; mp != nil {
		f["merkle_proof_index"] = int64(mp.Index)
		if tr := mp.TargetRange; tr != nil {
			f["target_merkle_hash"] = tr.MerkleHash
			if tr.Range != nil {
				f["target_range_lower"] = nilIfEmpty(tr.Range.Lower)
				f["target_range_upper"] = nilIfEmpty(tr.Range.Upper)
			}
		}
	}
	f["evidence_type"] = int64(m.EvidenceType)
	if m.Leaf == nil {
		return nil
	}
	f["leaf_type"] = m.Leaf.Type
	f["is_challenge"] = m.Leaf.IsChallenge()
	rp, err := m.Leaf.Relay()
	if err != nil {
		return fmt.Errorf("decode relay proof: %w", err)
	}
	if rp == nil {
		return nil
	}
	f["request_hash"] = rp.RequestHash
	f["entropy"] = int64(rp.Entropy)
	f["session_block_height"] = int64(rp.SessionBlockHeight)
	f["servicer_pub_key"] = rp.ServicerPubKey
	f["blockchain"] = rp.Blockchain
	f["relay_signature"] = rp.Signature
	if rp.AAT != nil {
		f["aat_version"] = rp.AAT.Version
		f["aat_app_pub_key"] = rp.AAT.AppPubKey
		f["aat_client_pub_key"] = rp.AAT.ClientPubKey
		f["aat_signature"] = rp.AAT.Signature
	}
	return nil
}
