package record

import (
	"poktIndex/internal/pokt"
)

// FlattenHeader maps a block header onto the headers table columns.
func FlattenHeader(h *pokt.BlockHeader) Flat {
	if h == nil {
		return Flat{}
	}
	f := Flat{
		ColHeight:              int64(h.Height),
		"chain_id":             h.ChainID,
		"time":                 nilIfEmpty(h.Time),
		"num_txs":              int64(h.NumTxs),
		"total_txs":            int64(h.TotalTxs),
		"last_commit_hash":     h.LastCommitHash,
		"data_hash":            h.DataHash,
		"validators_hash":      h.ValidatorsHash,
		"next_validators_hash": h.NextValidatorsHash,
		"consensus_hash":       h.ConsensusHash,
		"app_hash":             h.AppHash,
		"last_results_hash":    h.LastResultsHash,
		"evidence_hash":        h.EvidenceHash,
		"proposer_address":     h.ProposerAddress,
	}
	if h.Version != nil {
		f["version_block"] = int64(h.Version.Block)
		f["version_app"] = int64(h.Version.App)
	}
	if h.LastBlockID != nil {
		f["last_block_hash"] = h.LastBlockID.Hash
		if h.LastBlockID.Parts != nil {
			f["last_block_parts_total"] = int64(h.LastBlockID.Parts.Total)
			f["last_block_parts_hash"] = h.LastBlockID.Parts.Hash
		}
	}
	return f
}

// FlattenTx maps a transaction onto the txs table columns.
func FlattenTx(tx *pokt.Transaction) Flat {
	if tx == nil {
		return Flat{}
	}
	f := Flat{
		ColHeight: int64(tx.Height),
		"hash":    tx.Hash,
		"index":   int64(tx.Index),
		"tx":      tx.Tx,
	}
	if r := tx.TxResult; r != nil {
		f[ColResultCode] = int64(r.Code)
		f["result_data"] = r.Data
		f["result_log"] = r.Log
		f["result_info"] = r.Info
		f["result_events"] = r.Events
		f["result_codespace"] = r.Codespace
		f["signer"] = r.Signer
		f["recipient"] = r.Recipient
		f["message_type"] = r.MessageType
	}
	if p := tx.Proof; p != nil {
		f["proof_root_hash"] = p.RootHash
		f["proof_data"] = p.Data
	}
	if s := tx.StdTx; s != nil {
		f["entropy"] = int64(s.Entropy)
		f["memo"] = s.Memo
		if len(s.Fee) > 0 {
			var total int64
			for _, c := range s.Fee {
				total += int64(c.Amount)
			}
			f["fee_amount"] = total
			f["fee_denom"] = s.Fee[0].Denom
		}
		if s.Msg != nil {
			f[ColMsgType] = s.Msg.Type
		}
		if s.Signature != nil {
			f["signature_pub_key"] = s.Signature.PubKey
			f["signature"] = s.Signature.Signature
		}
	}
	return f
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
