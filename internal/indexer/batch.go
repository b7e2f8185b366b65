package indexer

import (
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"

	"poktIndex/internal/record"
	"poktIndex/internal/storage"
)

// Batch buffers flattened records between two flushes. It is owned by one
// IngestRange call.
type Batch struct {
	Start   uint64
	Headers []record.Flat
	Txs     []record.Flat
	Msgs    map[record.Bucket][]record.Flat
	Dropped int
}

func NewBatch(start uint64) *Batch {
	return &Batch{Start: start, Msgs: make(map[record.Bucket][]record.Flat)}
}

// Add merges one block into the batch.
func (b *Batch) Add(u BlockUnit) {
	b.Headers = append(b.Headers, u.Header)
	b.Txs = append(b.Txs, u.Txs...)
	for bucket, recs := range u.Msgs {
		b.Msgs[bucket] = append(b.Msgs[bucket], recs...)
	}
	b.Dropped += u.Dropped
}

// Empty reports whether nothing is buffered.
func (b *Batch) Empty() bool {
	if len(b.Headers) > 0 || len(b.Txs) > 0 {
		return false
	}
	for _, recs := range b.Msgs {
		if len(recs) > 0 {
			return false
		}
	}
	return true
}

// Table is one built table and the dataset it is appended to.
type Table struct {
	Target string
	Record arrow.Record
}

// Tables builds every non-empty table of the batch: headers, txs, then one per
// message bucket in registry order. Nothing is returned unless all tables build.
func (b *Batch) Tables(reg *record.Registry) ([]Table, error) {
	var tables []Table
	release := func() {
		for _, t := range tables {
			t.Record.Release()
		}
	}
	add := func(target string, schema *arrow.Schema, recs []record.Flat) error {
		if len(recs) == 0 {
			return nil
		}
		rec, err := record.BuildTable(schema, recs)
		if err != nil {
			return fmt.Errorf("build %s table: %w", target, err)
		}
		tables = append(tables, Table{Target: target, Record: rec})
		return nil
	}

	if err := add(storage.TargetHeaders, record.HeaderSchema, b.Headers); err != nil {
		release()
		return nil, err
	}
	if err := add(storage.TargetTxs, record.TxSchema, b.Txs); err != nil {
		release()
		return nil, err
	}
	for _, bucket := range reg.Buckets() {
		recs := b.Msgs[bucket]
		if len(recs) == 0 {
			continue
		}
		schema, _ := reg.SchemaFor(bucket)
		if err := add(storage.MsgTarget(bucket.Path()), schema, recs); err != nil {
			release()
			return nil, err
		}
	}
	for bucket, recs := range b.Msgs {
		if _, ok := reg.SchemaFor(bucket); !ok && len(recs) > 0 {
			release()
			return nil, fmt.Errorf("no schema registered for bucket %s", bucket)
		}
	}
	return tables, nil
}
