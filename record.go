package changetrail

import (
	"reflect"
	"strings"
)

// fieldsOf flattens a map with string keys or a struct into field key/value pairs.
// When partial is set, nil reference fields are treated as absent.
func fieldsOf(arg string, v any, partial bool) (map[string]any, error) {
	if v == nil {
		return nil, &InvalidInputError{Arg: arg, Value: v}
	}
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}

	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Pointer {
		if val.IsNil() {
			return nil, &InvalidInputError{Arg: arg, Value: v}
		}
		val = val.Elem()
	}

	switch val.Kind() {
	case reflect.Map:
		if val.Type().Key().Kind() != reflect.String {
			return nil, &InvalidInputError{Arg: arg, Value: v}
		}
		out := make(map[string]any, val.Len())
		iter := val.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().Interface()
		}
		return out, nil
	case reflect.Struct:
		out := make(map[string]any, val.NumField())
		collectFields(val, partial, out)
		return out, nil
	}
	return nil, &InvalidInputError{Arg: arg, Value: v}
}

func collectFields(val reflect.Value, partial bool, out map[string]any) {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		sf := typ.Field(i)
		fv := val.Field(i)

		if sf.Anonymous && sf.IsExported() && sf.Tag.Get("json") == "" {
			inner := fv
			if inner.Kind() == reflect.Pointer {
				if inner.IsNil() {
					continue
				}
				inner = inner.Elem()
			}
			if inner.Kind() == reflect.Struct {
				collectFields(inner, partial, out)
				continue
			}
		}
		if !sf.IsExported() {
			continue
		}
		key, ok := fieldKey(sf)
		if !ok {
			continue
		}

		switch fv.Kind() {
		case reflect.Pointer, reflect.Interface:
			if fv.IsNil() {
				if !partial {
					out[key] = nil
				}
				continue
			}
			out[key] = fv.Elem().Interface()
		case reflect.Map, reflect.Slice:
			if fv.IsNil() && partial {
				continue
			}
			out[key] = fv.Interface()
		default:
			out[key] = fv.Interface()
		}
	}
}

// fieldKey returns the json name of a struct field, or the field name when untagged.
func fieldKey(sf reflect.StructField) (string, bool) {
	tag := sf.Tag.Get("json")
	if tag == "-" {
		return "", false
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		name = sf.Name
	}
	return name, true
}
