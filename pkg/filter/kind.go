package filter

import (
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/marshallshelly/pebble-relations/pkg/runtime"
)

// Kind is the closed set of value types a filter can bind.
type Kind int

const (
	KindInvalid Kind = iota
	KindNull
	KindBool
	KindInt
	KindFloat
	KindString
	KindUUID
	KindTime
	KindDate
	KindList
)

var kindNames = [...]string{
	KindInvalid: "invalid",
	KindNull:    "null",
	KindBool:    "bool",
	KindInt:     "int",
	KindFloat:   "float",
	KindString:  "string",
	KindUUID:    "uuid",
	KindTime:    "time",
	KindDate:    "date",
	KindList:    "list",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Date is a calendar date without a time of day.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate returns the calendar date of t.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

var (
	timeType = reflect.TypeOf(time.Time{})
	dateType = reflect.TypeOf(Date{})
	uuidType = reflect.TypeOf(uuid.UUID{})
)

// KindOf classifies a filter value. Non-nil pointers are classified by the
// value they point to, nil pointers are null.
func KindOf(value any) (Kind, error) {
	if value == nil {
		return KindNull, nil
	}

	v := reflect.ValueOf(value)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return KindNull, nil
		}
		v = v.Elem()
	}

	switch v.Type() {
	case timeType:
		return KindTime, nil
	case dateType:
		return KindDate, nil
	case uuidType:
		return KindUUID, nil
	}

	switch v.Kind() {
	case reflect.Bool:
		return KindBool, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return KindInt, nil
	case reflect.Float32, reflect.Float64:
		return KindFloat, nil
	case reflect.String:
		return KindString, nil
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			break
		}
		return KindList, nil
	}

	return KindInvalid, &runtime.UnsupportedValueTypeError{Type: fmt.Sprintf("%T", value)}
}

// Normalize dereferences pointers and converts the value to the canonical Go
// type of its kind: int64, float64, string, bool, time.Time, Date, []any or nil.
func Normalize(value any) (any, Kind, error) {
	kind, err := KindOf(value)
	if err != nil {
		return nil, kind, err
	}
	if kind == KindNull {
		return nil, kind, nil
	}

	v := reflect.ValueOf(value)
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}

	switch kind {
	case KindBool:
		return v.Bool(), kind, nil
	case KindInt:
		if v.CanInt() {
			return v.Int(), kind, nil
		}
		if v.Uint() > math.MaxInt64 {
			return nil, KindInvalid, &runtime.UnsupportedValueTypeError{Type: fmt.Sprintf("%T above bigint range", value)}
		}
		return int64(v.Uint()), kind, nil
	case KindFloat:
		return v.Float(), kind, nil
	case KindString:
		return v.String(), kind, nil
	case KindUUID:
		return v.Interface().(uuid.UUID).String(), kind, nil
	case KindTime:
		return v.Interface().(time.Time), kind, nil
	case KindDate:
		return v.Interface().(Date), kind, nil
	case KindList:
		items := make([]any, v.Len())
		for i := range items {
			items[i] = v.Index(i).Interface()
		}
		return items, kind, nil
	}

	return nil, KindInvalid, &runtime.UnsupportedValueTypeError{Type: fmt.Sprintf("%T", value)}
}
