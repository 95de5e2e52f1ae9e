package changetrail

import (
	"math"
	"math/big"
	"reflect"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// EqualFunc reports whether the old and new value of a field are the same.
type EqualFunc func(before, after any) bool

var deepOptions = []cmp.Option{
	cmpopts.EquateEmpty(),
	cmp.Exporter(func(reflect.Type) bool { return true }),
	cmp.FilterValues(bothNumeric, cmp.Comparer(numericEqual)),
}

// DeepEqual compares values structurally. Numbers of different Go types are
// equal when they hold the same numeric value, and nil and empty maps or
// slices are treated as equal.
func DeepEqual(a, b any) bool {
	return cmp.Equal(a, b, deepOptions...)
}

// ShallowEqual compares comparable values with == and reference values
// (maps, slices, funcs, channels, pointers) by identity.
func ShallowEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Slice:
		return va.Len() == vb.Len() && va.Pointer() == vb.Pointer()
	case reflect.Map, reflect.Func, reflect.Chan, reflect.Pointer, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	}
	if !va.Comparable() || !vb.Comparable() {
		return false
	}
	return va.Equal(vb)
}

func bothNumeric(x, y any) bool {
	return isNumeric(x) && isNumeric(y)
}

func isNumeric(v any) bool {
	if v == nil {
		return false
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func numericEqual(x, y any) bool {
	vx, vy := reflect.ValueOf(x), reflect.ValueOf(y)
	switch {
	case vx.CanInt() && vy.CanInt():
		return vx.Int() == vy.Int()
	case vx.CanUint() && vy.CanUint():
		return vx.Uint() == vy.Uint()
	case vx.CanInt() && vy.CanUint():
		return vx.Int() >= 0 && uint64(vx.Int()) == vy.Uint()
	case vx.CanUint() && vy.CanInt():
		return vy.Int() >= 0 && vx.Uint() == uint64(vy.Int())
	case vx.CanFloat() && vy.CanFloat():
		return vx.Float() == vy.Float()
	}
	// Mixed integer and float: compare exactly, without rounding the integer.
	fx, okx := exactFloat(vx)
	fy, oky := exactFloat(vy)
	return okx && oky && fx.Cmp(fy) == 0
}

// exactFloat returns v as an exact big.Float. NaN has no exact value.
func exactFloat(v reflect.Value) (*big.Float, bool) {
	switch {
	case v.CanInt():
		return new(big.Float).SetInt64(v.Int()), true
	case v.CanUint():
		return new(big.Float).SetUint64(v.Uint()), true
	case v.CanFloat():
		f := v.Float()
		if math.IsNaN(f) {
			return nil, false
		}
		return new(big.Float).SetFloat64(f), true
	}
	return nil, false
}
