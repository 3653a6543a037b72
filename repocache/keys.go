package repocache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Separator joins cache key segments.
const Separator = "::"

// Keys builds deterministic cache keys from a method name and its arguments.
// Values of the same shape always produce the same key across runs: map keys
// are sorted, pointers are dereferenced, and complex values fall back to
// JSON. An optional prefix scopes keys, e.g. per entity or tenant.
type Keys struct {
	prefix string
}

func NewKeys() *Keys { return &Keys{} }

func NewKeysWithPrefix(prefix string) *Keys { return &Keys{prefix: prefix} }

// Serialize renders method plus args into one key.
func (k *Keys) Serialize(method string, args ...any) string {
	parts := make([]string, 0, len(args)+2)
	if k.prefix != "" {
		parts = append(parts, k.prefix)
	}
	parts = append(parts, method)
	for _, arg := range args {
		parts = append(parts, serializeValue(arg))
	}
	return strings.Join(parts, Separator)
}

func serializeValue(v any) string {
	if v == nil {
		return "nil"
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		// identity-only values: the address is the best stable handle we have
		return fmt.Sprintf("%s:%p", rv.Kind(), v)
	case reflect.Pointer:
		if rv.IsNil() {
			return "nil"
		}
		return serializeValue(rv.Elem().Interface())
	case reflect.Slice:
		if rv.IsNil() {
			return "slice:nil"
		}
		return serializeSeq("slice", rv)
	case reflect.Array:
		return serializeSeq("array", rv)
	case reflect.Map:
		if rv.IsNil() {
			return "map:nil"
		}
		return serializeMap(rv)
	case reflect.Struct:
		return serializeStruct(rv)
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return fmt.Sprintf("%v", v)
	default:
		return jsonFallback(v)
	}
}

func serializeSeq(kind string, rv reflect.Value) string {
	parts := make([]string, rv.Len())
	for i := range parts {
		parts[i] = serializeValue(rv.Index(i).Interface())
	}
	return fmt.Sprintf("%s[%d]:{%s}", kind, len(parts), strings.Join(parts, ","))
}

// serializeMap renders pairs sorted by serialized key, so iteration order
// never leaks into the cache key.
func serializeMap(rv reflect.Value) string {
	pairs := make([]string, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		pairs = append(pairs, serializeValue(iter.Key().Interface())+"="+serializeValue(iter.Value().Interface()))
	}
	sort.Strings(pairs)
	return fmt.Sprintf("map[%d]:{%s}", len(pairs), strings.Join(pairs, ","))
}

func serializeStruct(rv reflect.Value) string {
	rt := rv.Type()
	parts := make([]string, 0, rv.NumField())
	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		parts = append(parts, field.Name+":"+serializeValue(rv.Field(i).Interface()))
	}
	return fmt.Sprintf("struct:{%s}", strings.Join(parts, ","))
}

func jsonFallback(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("fallback:%s", reflect.TypeOf(v).String())
	}
	return "json:" + string(data)
}
