package fieldrule

import (
	"encoding/json"
	"reflect"
	"strconv"
)

// Canonical converts v to one of float64, string, []string, bool or nil.
// Pointers are dereferenced, every numeric kind becomes float64, and string
// slices of any element type become []string. Empty strings and empty slices
// count as missing and become nil.
func Canonical(v any) any {
	if v == nil {
		return nil
	}
	switch x := v.(type) {
	case float64:
		return x
	case string:
		if x == "" {
			return nil
		}
		return x
	case []string:
		if len(x) == 0 {
			return nil
		}
		return append([]string(nil), x...)
	case bool:
		return x
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return Canonical(rv.Elem().Interface())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32:
		return rv.Float()
	case reflect.Slice, reflect.Array:
		if rv.Len() == 0 {
			return nil
		}
		out := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			switch e := Canonical(rv.Index(i).Interface()).(type) {
			case string:
				out = append(out, e)
			case float64:
				out = append(out, strconv.FormatFloat(e, 'f', -1, 64))
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}
	return v
}

// typeOf reports the declared Type a canonical value satisfies.
func typeOf(v any) Type {
	switch v.(type) {
	case float64:
		return TypeNumber
	case []string:
		return TypeArray
	case bool:
		return TypeBool
	}
	return TypeString
}
