package builder

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/marshallshelly/pebble-relations/pkg/registry"
	"github.com/marshallshelly/pebble-relations/pkg/schema"
)

// collectRows reads every row into a column map and closes rows.
func collectRows(rows pgx.Rows) ([]Row, error) {
	defer rows.Close()

	fieldDescriptions := rows.FieldDescriptions()
	results := make([]Row, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(Row, len(fieldDescriptions))
		for i, fd := range fieldDescriptions {
			if i < len(values) {
				row[fd.Name] = values[i]
			}
		}
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Decode maps result rows onto structs registered in reg. Column values are
// assigned to their Go fields, attached associations are decoded recursively
// into the relationship fields.
func Decode[T any](reg *registry.Registry, rows []Row) ([]T, error) {
	var zero T
	table, err := reg.GetOrRegister(zero)
	if err != nil {
		return nil, err
	}

	results := make([]T, len(rows))
	for i, row := range rows {
		if err := decodeRow(reg, table, row, reflect.ValueOf(&results[i]).Elem()); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// DecodeOne maps a single row; a nil row yields nil.
func DecodeOne[T any](reg *registry.Registry, row Row) (*T, error) {
	if row == nil {
		return nil, nil
	}
	items, err := Decode[T](reg, []Row{row})
	if err != nil {
		return nil, err
	}
	return &items[0], nil
}

func decodeRow(reg *registry.Registry, table *schema.TableMetadata, row Row, dest reflect.Value) error {
	for _, col := range table.Columns {
		value, ok := row[col.Name]
		if !ok {
			continue
		}
		field := dest.FieldByName(col.GoField)
		if !field.IsValid() || !field.CanSet() {
			continue
		}
		if err := assign(field, value); err != nil {
			return fmt.Errorf("column %s: %w", col.Name, err)
		}
	}

	for i := range table.Relationships {
		rel := &table.Relationships[i]
		value, ok := row[rel.Name]
		if !ok || rel.SourceField == "" {
			continue
		}
		field := dest.FieldByName(rel.SourceField)
		if !field.IsValid() || !field.CanSet() {
			continue
		}
		target, err := reg.Target(rel)
		if err != nil {
			return err
		}
		if err := decodeRelation(reg, target, field, value); err != nil {
			return fmt.Errorf("relationship %s: %w", rel.Name, err)
		}
	}
	return nil
}

func decodeRelation(reg *registry.Registry, target *schema.TableMetadata, field reflect.Value, value any) error {
	switch v := value.(type) {
	case nil:
		field.Set(reflect.Zero(field.Type()))
		return nil

	case []Row:
		if field.Kind() != reflect.Slice {
			return fmt.Errorf("cannot decode a collection into %s", field.Type())
		}
		slice := reflect.MakeSlice(field.Type(), len(v), len(v))
		for i, row := range v {
			if err := decodeInto(reg, target, slice.Index(i), row); err != nil {
				return err
			}
		}
		field.Set(slice)
		return nil

	case Row:
		if field.Kind() == reflect.Slice {
			return fmt.Errorf("cannot decode a single row into %s", field.Type())
		}
		return decodeInto(reg, target, field, v)
	}
	return fmt.Errorf("unexpected association value %T", value)
}

// decodeInto decodes row into elem, allocating when elem is a pointer.
func decodeInto(reg *registry.Registry, target *schema.TableMetadata, elem reflect.Value, row Row) error {
	if elem.Kind() == reflect.Pointer {
		ptr := reflect.New(elem.Type().Elem())
		if err := decodeRow(reg, target, row, ptr.Elem()); err != nil {
			return err
		}
		elem.Set(ptr)
		return nil
	}
	return decodeRow(reg, target, row, elem)
}

// assign stores a driver value into a struct field. Direct assignment and
// conversion win, then sql.Scanner, then a JSON round trip for documents and
// arrays.
func assign(field reflect.Value, value any) error {
	if value == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}

	target := field.Type()
	isPtr := target.Kind() == reflect.Pointer
	if isPtr {
		target = target.Elem()
	}
	if b, ok := value.([16]byte); ok && target.Kind() == reflect.String {
		value = uuid.UUID(b).String()
	}
	src := reflect.ValueOf(value)

	var out reflect.Value
	switch {
	case src.Type().AssignableTo(target):
		out = src
	case src.Type().ConvertibleTo(target) && convertible(src.Kind(), target.Kind()):
		out = src.Convert(target)
	default:
		ptr := reflect.New(target)
		if scanner, ok := ptr.Interface().(sql.Scanner); ok {
			if err := scanner.Scan(value); err != nil {
				return err
			}
		} else {
			data, err := json.Marshal(value)
			if err != nil {
				return fmt.Errorf("cannot assign %T to %s", value, field.Type())
			}
			if err := json.Unmarshal(data, ptr.Interface()); err != nil {
				return fmt.Errorf("cannot assign %T to %s", value, field.Type())
			}
		}
		out = ptr.Elem()
	}

	if isPtr {
		ptr := reflect.New(target)
		ptr.Elem().Set(out)
		field.Set(ptr)
		return nil
	}
	field.Set(out)
	return nil
}

// convertible rejects conversions reflect allows but that change meaning,
// such as int to string.
func convertible(from, to reflect.Kind) bool {
	if to == reflect.String {
		return from == reflect.String || from == reflect.Slice || from == reflect.Array
	}
	return true
}
