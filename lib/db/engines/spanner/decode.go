package spanner

import (
	"fmt"

	sp "cloud.google.com/go/spanner"
	sppb "cloud.google.com/go/spanner/apiv1/spannerpb"
	"github.com/ValentinKolb/dBench/lib/codec"
	"github.com/ValentinKolb/dBench/lib/schema"
	"google.golang.org/protobuf/types/known/structpb"
)

// decodeRow converts every column of a result row into the kind the
// catalog declares for it. Columns the table does not declare keep the
// kind of their Spanner type.
func decodeRow(row *sp.Row, table schema.Table) (codec.Fields, error) {
	names := row.ColumnNames()
	out := make(codec.Fields, len(names))
	for i, name := range names {
		var gcv sp.GenericColumnValue
		if err := row.Column(i, &gcv); err != nil {
			return nil, fmt.Errorf("column %s: %w", name, err)
		}
		raw, err := decodeColumn(gcv)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", name, err)
		}
		// a NULL column is reported as absent, the same as a missing document field
		if raw == nil {
			continue
		}
		v, err := table.Decode(name, raw)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

// decodeColumn returns the native cell of a column: []byte, int64 or
// string. Every other column type is rendered in its string form, NULL is
// nil.
func decodeColumn(gcv sp.GenericColumnValue) (any, error) {
	if gcv.Value == nil {
		return nil, nil
	}
	if _, ok := gcv.Value.GetKind().(*structpb.Value_NullValue); ok {
		return nil, nil
	}

	switch gcv.Type.GetCode() {
	case sppb.TypeCode_BYTES:
		var b []byte
		if err := gcv.Decode(&b); err != nil {
			return nil, err
		}
		return b, nil
	case sppb.TypeCode_INT64:
		var n int64
		if err := gcv.Decode(&n); err != nil {
			return nil, err
		}
		return n, nil
	case sppb.TypeCode_STRING:
		var s string
		if err := gcv.Decode(&s); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return fmt.Sprint(gcv.Value.AsInterface()), nil
	}
}

// toRow converts a field map into the column map of an InsertOrUpdate
// mutation. Null values are left out so the stored column stays untouched.
func toRow(fields codec.Fields) map[string]interface{} {
	row := make(map[string]interface{}, len(fields))
	for name, v := range fields {
		if v.IsNull() {
			continue
		}
		row[name] = v.Wire()
	}
	return row
}
