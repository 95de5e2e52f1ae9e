package changetrail

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Displayer lets a value control how it appears in change descriptions.
type Displayer interface {
	DisplayString() string
}

// DisplayFunc renders a field value for a change description.
type DisplayFunc func(v any) string

// DisplayString renders v with a fixed, deterministic rule:
// nil is "null", times are RFC 3339, numbers never use exponents,
// and composite values are encoded as JSON.
func DisplayString(v any) string {
	if v == nil {
		return "null"
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "null"
		}
		if ownRendering(rv.Type()) {
			break
		}
		if v = rv.Elem().Interface(); v == nil {
			return "null"
		}
		rv = reflect.ValueOf(v)
	}

	switch x := v.(type) {
	case Displayer:
		return x.DisplayString()
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	case error:
		return x.Error()
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		return strconv.FormatBool(x)
	}

	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 32)
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64)
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		if s, err := marshalJSON(v); err == nil {
			return s
		}
	}
	return fmt.Sprintf("%v", v)
}

var (
	displayerType = reflect.TypeOf((*Displayer)(nil)).Elem()
	stringerType  = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()
	errorType     = reflect.TypeOf((*error)(nil)).Elem()
)

// ownRendering reports whether pointer type p renders through methods its
// element type lacks (pointer receivers), so it must not be dereferenced.
func ownRendering(p reflect.Type) bool {
	for _, it := range []reflect.Type{displayerType, stringerType, errorType} {
		if p.Implements(it) && !p.Elem().Implements(it) {
			return true
		}
	}
	return false
}

// marshalJSON encodes v without HTML escaping and without a trailing newline.
func marshalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// capitalize upper-cases the first character of key and leaves the rest untouched.
func capitalize(key string) string {
	r, size := utf8.DecodeRuneInString(key)
	if r == utf8.RuneError {
		return key
	}
	return string(unicode.ToUpper(r)) + key[size:]
}
