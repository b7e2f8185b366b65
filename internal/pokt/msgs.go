package pokt

import "encoding/json"

// Wire message types carried in StdTx.Msg.Type.
const (
	MsgTypeAppStake        = "apps/MsgAppStake"
	MsgTypeAppBeginUnstake = "apps/MsgAppBeginUnstake"
	MsgTypeAppUnjail       = "apps/MsgAppUnjail"
	MsgTypeDaoTransfer     = "gov/msg_dao_transfer"
	MsgTypeChangeParam     = "gov/msg_change_param"
	MsgTypeUpgrade         = "gov/msg_upgrade"
	MsgTypeStake           = "pos/MsgStake"
	MsgTypeStake8          = "pos/8.0MsgStake"
	MsgTypeBeginUnstake    = "pos/MsgBeginUnstake"
	MsgTypeBeginUnstake8   = "pos/8.0MsgBeginUnstake"
	MsgTypeUnjail          = "pos/MsgUnjail"
	MsgTypeUnjail8         = "pos/8.0MsgUnjail"
	MsgTypeSend            = "pos/Send"
	MsgTypeClaim           = "pocketcore/claim"
	MsgTypeProof           = "pocketcore/proof"
	relayProofLeafType     = "pocketcore/relay_proof"
	challengeProofLeafType = "pocketcore/challenge_proof"
)

type PublicKey struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type MsgSend struct {
	FromAddress string `json:"from_address"`
	ToAddress   string `json:"to_address"`
	Amount      Int64  `json:"amount"`
}

type MsgAppStake struct {
	PubKey *PublicKey `json:"pubkey"`
	Chains []string   `json:"chains"`
	Value  Int64      `json:"value"`
}

type MsgAppBeginUnstake struct {
	ApplicationAddress string `json:"application_address"`
}

type MsgAppUnjail struct {
	Address string `json:"address"`
}

type MsgValidatorStake struct {
	PublicKey     *PublicKey `json:"public_key"`
	Chains        []string   `json:"chains"`
	Value         Int64      `json:"value"`
	ServiceURL    string     `json:"service_url"`
	OutputAddress string     `json:"output_address"`
}

type MsgValidatorBeginUnstake struct {
	ValidatorAddress string `json:"validator_address"`
	SignerAddress    string `json:"signer_address"`
}

type MsgValidatorUnjail struct {
	Address       string `json:"address"`
	SignerAddress string `json:"signer_address"`
}

type MsgDaoTransfer struct {
	FromAddress string `json:"from_address"`
	ToAddress   string `json:"to_address"`
	Amount      Int64  `json:"amount"`
	Action      string `json:"action"`
}

type MsgChangeParam struct {
	Address    string          `json:"address"`
	ParamKey   string          `json:"param_key"`
	ParamValue json.RawMessage `json:"param_value"`
}

type Upgrade struct {
	Height           Int64    `json:"Height"`
	Version          string   `json:"Version"`
	OldUpgradeHeight Int64    `json:"OldUpgradeHeight"`
	Features         []string `json:"Features"`
}

type MsgUpgrade struct {
	Address string   `json:"address"`
	Upgrade *Upgrade `json:"upgrade"`
}

type SessionHeader struct {
	AppPublicKey  string `json:"app_public_key"`
	Chain         string `json:"chain"`
	SessionHeight Int64  `json:"session_height"`
}

type Range struct {
	Lower string `json:"lower"`
	Upper string `json:"upper"`
}

type HashRange struct {
	MerkleHash string `json:"merkleHash"`
	Range      *Range `json:"range"`
}

type MsgClaim struct {
	Header           SessionHeader `json:"header"`
	MerkleRoot       *HashRange    `json:"merkle_root"`
	TotalProofs      Int64         `json:"total_proofs"`
	FromAddress      string        `json:"from_address"`
	EvidenceType     Int64         `json:"evidence_type"`
	ExpirationHeight Int64         `json:"expiration_height"`
}

type MerkleProof struct {
	Index       Int64       `json:"index"`
	HashRanges  []HashRange `json:"hash_ranges"`
	TargetRange *HashRange  `json:"target_range"`
}

type AAT struct {
	Version      string `json:"version"`
	AppPubKey    string `json:"app_pub_key"`
	ClientPubKey string `json:"client_pub_key"`
	Signature    string `json:"signature"`
}

type RelayProof struct {
	RequestHash        string `json:"request_hash"`
	Entropy            Int64  `json:"entropy"`
	SessionBlockHeight Int64  `json:"session_block_height"`
	ServicerPubKey     string `json:"servicer_pub_key"`
	Blockchain         string `json:"blockchain"`
	AAT                *AAT   `json:"aat"`
	Signature          string `json:"signature"`
}

// ProofLeaf is either a relay proof or a challenge proof; only relay proofs are decoded.
type ProofLeaf struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// Relay decodes the leaf as a relay proof. It returns nil for challenge proofs.
func (l *ProofLeaf) Relay() (*RelayProof, error) {
	if l == nil || l.Type != relayProofLeafType {
		return nil, nil
	}
	var rp RelayProof
	if err := json.Unmarshal(l.Value, &rp); err != nil {
		return nil, err
	}
	return &rp, nil
}

// IsChallenge reports whether the leaf is a challenge proof.
func (l *ProofLeaf) IsChallenge() bool {
	return l != nil && l.Type == challengeProofLeafType
}

type MsgProof struct {
	MerkleProofs *MerkleProof `json:"merkle_proofs"`
	Leaf         *ProofLeaf   `json:"leaf"`
	EvidenceType Int64        `json:"evidence_type"`
}
