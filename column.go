package changetrail

import (
	"math/big"
	"reflect"
	"time"
)

// timeLayouts are the textual forms a patch may use for date and timestamp columns.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// alignRow returns a copy of row in which every value that holds the same
// column value as its patch counterpart, only in another Go representation,
// is replaced by the patch value. Drivers return NUMERIC as text and DATE as
// time.Time, while patches decoded from JSON or YAML carry numbers and strings.
func alignRow(row, patch map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		if p, ok := patch[k]; ok && sameColumnValue(v, p) {
			v = p
		}
		out[k] = v
	}
	return out
}

func sameColumnValue(stored, v any) bool {
	switch s := stored.(type) {
	case string:
		if isNumeric(v) {
			return ratEqual(s, v)
		}
	case time.Time:
		if str, ok := v.(string); ok {
			return timeEqual(s, str)
		}
	default:
		if str, ok := v.(string); ok && isNumeric(stored) {
			return ratEqual(str, stored)
		}
	}
	return false
}

func ratEqual(text string, n any) bool {
	a, ok := new(big.Rat).SetString(text)
	if !ok {
		return false
	}
	b, ok := toRat(reflect.ValueOf(n))
	return ok && a.Cmp(b) == 0
}

func toRat(v reflect.Value) (*big.Rat, bool) {
	switch {
	case v.CanInt():
		return new(big.Rat).SetInt64(v.Int()), true
	case v.CanUint():
		return new(big.Rat).SetUint64(v.Uint()), true
	case v.CanFloat():
		r := new(big.Rat).SetFloat64(v.Float())
		return r, r != nil
	}
	return nil, false
}

func timeEqual(stored time.Time, text string) bool {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t.Equal(stored)
		}
	}
	return false
}
