package builder

import (
	"fmt"
	"math"
	"reflect"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// normalizeKey maps a key value to the representation used for grouping, so
// values read through different column types still meet: integers become
// int64, byte slices become strings and UUIDs their canonical text form.
func normalizeKey(v any) any {
	switch k := v.(type) {
	case nil:
		return nil
	case int:
		return int64(k)
	case int8:
		return int64(k)
	case int16:
		return int64(k)
	case int32:
		return int64(k)
	case uint:
		if uint64(k) > math.MaxInt64 {
			return k
		}
		return int64(k)
	case uint8:
		return int64(k)
	case uint16:
		return int64(k)
	case uint32:
		return int64(k)
	case uint64:
		if k > math.MaxInt64 {
			return k
		}
		return int64(k)
	case []byte:
		return string(k)
	case [16]byte:
		return uuid.UUID(k).String()
	case uuid.UUID:
		return k.String()
	case pgtype.UUID:
		if !k.Valid {
			return nil
		}
		return uuid.UUID(k.Bytes).String()
	case pgtype.Int8:
		if !k.Valid {
			return nil
		}
		return k.Int64
	case pgtype.Int4:
		if !k.Valid {
			return nil
		}
		return int64(k.Int32)
	case pgtype.Text:
		if !k.Valid {
			return nil
		}
		return k.String
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		return normalizeKey(rv.Elem().Interface())
	}
	if !rv.Type().Comparable() {
		return fmt.Sprint(v)
	}
	return v
}

// isZeroValue checks if a value is the zero value for its type.
func isZeroValue(v interface{}) bool {
	if v == nil {
		return true
	}

	val := reflect.ValueOf(v)
	switch val.Kind() {
	case reflect.Ptr, reflect.Interface:
		return val.IsNil()
	case reflect.Slice, reflect.Map, reflect.Chan, reflect.Func:
		return val.IsNil()
	default:
		return val.IsZero()
	}
}

// collectKeys returns the distinct non-empty normalized values of column,
// in first-seen order.
func collectKeys(rows []Row, column string) []any {
	seen := make(map[any]bool, len(rows))
	keys := make([]any, 0, len(rows))
	for _, row := range rows {
		key := normalizeKey(row[column])
		if isZeroValue(key) || seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	return keys
}

// distinctKeys normalizes keys and drops empty values and duplicates.
func distinctKeys(keys []any) []any {
	rows := make([]Row, len(keys))
	for i, k := range keys {
		rows[i] = Row{"k": k}
	}
	return collectKeys(rows, "k")
}
