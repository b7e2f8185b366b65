package clickhouse

import (
	"fmt"
	"strings"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"

	"poktIndex/internal/record"
)

// TableName maps a dataset target to a ClickHouse table name:
// "tx_msgs/pos/Send" becomes "tx_msgs_pos_send".
func TableName(target string) string {
	return strings.ToLower(strings.NewReplacer("/", "_", "-", "_", ".", "_").Replace(target))
}

func columnType(f arrow.Field) (string, error) {
	var base string
	switch f.Type.ID() {
	case arrow.INT64:
		base = "Int64"
	case arrow.UINT64:
		base = "UInt64"
	case arrow.FLOAT64:
		base = "Float64"
	case arrow.BOOL:
		base = "Bool"
	case arrow.STRING:
		base = "String"
	case arrow.TIMESTAMP:
		base = "DateTime64(3, 'UTC')"
	case arrow.LIST:
		// arrays cannot be Nullable; a null list is stored empty
		return "Array(String)", nil
	default:
		return "", fmt.Errorf("column %s: unsupported type %s", f.Name, f.Type)
	}
	if f.Nullable {
		return "Nullable(" + base + ")", nil
	}
	return base, nil
}

// orderBy picks the sorting key of a table.
func orderBy(schema *arrow.Schema) string {
	if _, ok := schema.FieldsByName(record.ColTxHash); ok {
		return "(" + record.ColHeight + ", " + record.ColTxHash + ")"
	}
	if _, ok := schema.FieldsByName("hash"); ok {
		return "(" + record.ColHeight + ", hash)"
	}
	return "(" + record.ColHeight + ")"
}

// CreateTableSQL renders the DDL of a table holding records of schema.
func CreateTableSQL(database, table string, schema *arrow.Schema) (string, error) {
	cols := make([]string, 0, schema.NumFields())
	for _, f := range schema.Fields() {
		typ, err := columnType(f)
		if err != nil {
			return "", err
		}
		cols = append(cols, fmt.Sprintf("  `%s` %s", f.Name, typ))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s`.`%s` (\n%s\n) ENGINE = ReplacingMergeTree ORDER BY %s",
		database, table, strings.Join(cols, ",\n"), orderBy(schema)), nil
}

// InsertSQL renders the batch insert statement for schema.
func InsertSQL(database, table string, schema *arrow.Schema) string {
	names := make([]string, 0, schema.NumFields())
	for _, f := range schema.Fields() {
		names = append(names, "`"+f.Name+"`")
	}
	return fmt.Sprintf("INSERT INTO `%s`.`%s` (%s)", database, table, strings.Join(names, ", "))
}

// Rows converts rec into driver rows in column order. Nulls become nil.
func Rows(rec arrow.Record) ([][]any, error) {
	rows := make([][]any, rec.NumRows())
	for i := range rows {
		rows[i] = make([]any, rec.NumCols())
	}
	for c, col := range rec.Columns() {
		for i := range rows {
			v, err := value(col, i)
			if err != nil {
				return nil, fmt.Errorf("column %s row %d: %w", rec.ColumnName(c), i, err)
			}
			rows[i][c] = v
		}
	}
	return rows, nil
}

func value(col arrow.Array, i int) (any, error) {
	if col.IsNull(i) {
		if _, ok := col.(*array.List); ok {
			return []string{}, nil
		}
		return nil, nil
	}
	switch a := col.(type) {
	case *array.Int64:
		return a.Value(i), nil
	case *array.Uint64:
		return a.Value(i), nil
	case *array.Float64:
		return a.Value(i), nil
	case *array.Boolean:
		return a.Value(i), nil
	case *array.String:
		return a.Value(i), nil
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(i).ToTime(unit).UTC(), nil
	case *array.List:
		start, end := a.ValueOffsets(i)
		values, ok := a.ListValues().(*array.String)
		if !ok {
			return nil, fmt.Errorf("unsupported list element %s", a.ListValues().DataType())
		}
		out := make([]string, 0, end-start)
		for j := start; j < end; j++ {
			out = append(out, values.Value(int(j)))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported array %s", col.DataType())
	}
}
