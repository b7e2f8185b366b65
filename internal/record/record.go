package record

import (
	"fmt"
	"path"
)

// Flat maps column name to a scalar value, or []string for list columns.
// A Flat is never mutated once returned by a flattener.
type Flat map[string]any

// Bucket identifies the output dataset for one message kind.
type Bucket struct {
	Module string
	Type   string
}

func (b Bucket) String() string {
	return b.Module + "/" + b.Type
}

// Path is the dataset path of the bucket relative to the message root.
func (b Bucket) Path() string {
	return path.Join(b.Module, b.Type)
}

// Routed is a flattened message tagged with its bucket.
type Routed struct {
	Bucket Bucket
	Record Flat
}

// CastError reports a record that does not conform to a table schema.
type CastError struct {
	Table  string
	Row    int
	Column string
	Value  any
	Reason string
}

func (e *CastError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("cast %s row %d: %s", e.Table, e.Row, e.Reason)
	}
	return fmt.Sprintf("cast %s row %d column %q (%v): %s", e.Table, e.Row, e.Column, e.Value, e.Reason)
}
