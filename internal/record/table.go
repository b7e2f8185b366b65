package record

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

var allocator memory.Allocator = memory.NewGoAllocator()

// BuildTable assembles records column by column into one Arrow record of the
// given schema. A record that has a column absent from the schema, a null in a
// non-nullable column, or a value not convertible to its column type fails the
// whole table with a *CastError. The caller owns the returned record.
func BuildTable(schema *arrow.Schema, records []Flat) (arrow.Record, error) {
	name := SchemaName(schema)
	for row, rec := range records {
		for col := range rec {
			if !schema.HasField(col) {
				return nil, &CastError{Table: name, Row: row, Column: col, Value: rec[col], Reason: "column not in schema"}
			}
		}
	}

	b := array.NewRecordBuilder(allocator, schema)
	defer b.Release()
	b.Reserve(len(records))

	for i, field := range schema.Fields() {
		fb := b.Field(i)
		for row, rec := range records {
			v := rec[field.Name]
			if isNull(v) {
				if !field.Nullable {
					return nil, &CastError{Table: name, Row: row, Column: field.Name, Reason: "null in non-nullable column"}
				}
				fb.AppendNull()
				continue
			}
			if err := appendValue(fb, field.Type, v); err != nil {
				return nil, &CastError{Table: name, Row: row, Column: field.Name, Value: v, Reason: err.Error()}
			}
		}
	}
	return b.NewRecord(), nil
}

func isNull(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case []string:
		return x == nil
	case []any:
		return x == nil
	}
	return false
}

func appendValue(fb array.Builder, dt arrow.DataType, v any) error {
	switch bld := fb.(type) {
	case *array.Int64Builder:
		n, err := toInt64(v)
		if err != nil {
			return err
		}
		bld.Append(n)
	case *array.Uint64Builder:
		n, err := toUint64(v)
		if err != nil {
			return err
		}
		bld.Append(n)
	case *array.Float64Builder:
		n, err := toFloat64(v)
		if err != nil {
			return err
		}
		bld.Append(n)
	case *array.BooleanBuilder:
		x, err := toBool(v)
		if err != nil {
			return err
		}
		bld.Append(x)
	case *array.StringBuilder:
		s, err := toString(v)
		if err != nil {
			return err
		}
		bld.Append(s)
	case *array.TimestampBuilder:
		ts, err := toTimestamp(v, dt.(*arrow.TimestampType).Unit)
		if err != nil {
			return err
		}
		bld.Append(ts)
	case *array.ListBuilder:
		items, err := toStrings(v)
		if err != nil {
			return err
		}
		vb, ok := bld.ValueBuilder().(*array.StringBuilder)
		if !ok {
			return fmt.Errorf("unsupported list element type %s", dt)
		}
		bld.Append(true)
		for _, s := range items {
			vb.Append(s)
		}
	default:
		return fmt.Errorf("unsupported column type %s", dt)
	}
	return nil
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", x)
		}
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case float64:
		if x != math.Trunc(x) || x > math.MaxInt64 || x < math.MinInt64 {
			return 0, fmt.Errorf("%v is not an int64", x)
		}
		return int64(x), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	}
	return 0, fmt.Errorf("cannot convert %T to int64", v)
}

func toUint64(v any) (uint64, error) {
	switch x := v.(type) {
	case uint64:
		return x, nil
	case uint32:
		return uint64(x), nil
	case int64, int, int32:
		n, _ := toInt64(x)
		if n < 0 {
			return 0, fmt.Errorf("%d is negative", n)
		}
		return uint64(n), nil
	case float64:
		if x != math.Trunc(x) || x < 0 || x > math.MaxUint64 {
			return 0, fmt.Errorf("%v is not a uint64", x)
		}
		return uint64(x), nil
	case string:
		return strconv.ParseUint(strings.TrimSpace(x), 10, 64)
	}
	return 0, fmt.Errorf("cannot convert %T to uint64", v)
}

func toFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	}
	return 0, fmt.Errorf("cannot convert %T to float64", v)
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(x))
	}
	return false, fmt.Errorf("cannot convert %T to bool", v)
}

func toString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case int:
		return strconv.Itoa(x), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case bool:
		return strconv.FormatBool(x), nil
	}
	return "", fmt.Errorf("cannot convert %T to string", v)
}

func toTimestamp(v any, unit arrow.TimeUnit) (arrow.Timestamp, error) {
	var t time.Time
	switch x := v.(type) {
	case time.Time:
		t = x
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(x))
		if err != nil {
			return 0, err
		}
		t = parsed
	case int64:
		return arrow.Timestamp(x), nil
	default:
		return 0, fmt.Errorf("cannot convert %T to timestamp", v)
	}
	switch unit {
	case arrow.Second:
		return arrow.Timestamp(t.Unix()), nil
	case arrow.Millisecond:
		return arrow.Timestamp(t.UnixMilli()), nil
	case arrow.Microsecond:
		return arrow.Timestamp(t.UnixMicro()), nil
	default:
		return arrow.Timestamp(t.UnixNano()), nil
	}
}

func toStrings(v any) ([]string, error) {
	switch x := v.(type) {
	case []string:
		return x, nil
	case []any:
		out := make([]string, len(x))
		for i, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("list item %d is %T, not string", i, item)
			}
			out[i] = s
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot convert %T to list<string>", v)
}
