// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package vgirpc

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind is the tag of a [Value].
type Kind int8

const (
	KindNil    Kind = iota // absent value, also used for void results
	KindInt                // signed 64-bit integer
	KindBytes              // opaque byte sequence
	KindString             // UTF-8 string
	KindList               // ordered sequence of values
	KindMap                // key-unique mapping of values to values
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindInt:
		return "int"
	case KindBytes:
		return "bytes"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a tagged union carried as a remote function argument or result.
// The zero Value is nil. Values are immutable once constructed; accessors
// return the underlying slices, which callers must not modify.
type Value struct {
	kind Kind
	i    int64
	b    []byte
	s    string
	list []Value
	m    []MapEntry
}

// MapEntry is one key/value pair of a map [Value].
type MapEntry struct {
	Key   Value
	Value Value
}

// Nil returns the nil value.
func Nil() Value { return Value{} }

// Int returns an integer value.
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// Bytes returns a byte-sequence value. A nil slice is stored as empty.
func Bytes(b []byte) Value {
	if b == nil {
		b = []byte{}
	}
	return Value{kind: KindBytes, b: b}
}

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// List returns a list value holding vs in order. The slice is copied, so
// List() with no arguments is an empty (not nil) list.
func List(vs ...Value) Value {
	items := make([]Value, len(vs))
	copy(items, vs)
	return Value{kind: KindList, list: items}
}

// Map returns a map value. When the same key appears more than once the
// last entry wins, so the result is always key-unique.
func Map(entries ...MapEntry) Value {
	out := make([]MapEntry, 0, len(entries))
	for _, e := range entries {
		replaced := false
		for i := range out {
			if out[i].Key.Equal(e.Key) {
				out[i].Value = e.Value
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, e)
		}
	}
	return Value{kind: KindMap, m: out}
}

// StringMap returns a map value with string keys, ordered by key.
func StringMap(m map[string]Value) Value {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	entries := make([]MapEntry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, MapEntry{Key: String(k), Value: m[k]})
	}
	return Value{kind: KindMap, m: entries}
}

// ValueOf converts a native Go value to a [Value]. Supported inputs are nil,
// Value, signed and unsigned integers that fit in int64, string, []byte,
// []Value, []any, []string, []int64, map[string]Value and map[string]any.
func ValueOf(x any) (Value, error) {
	switch v := x.(type) {
	case nil:
		return Nil(), nil
	case Value:
		return v, nil
	case int:
		return Int(int64(v)), nil
	case int8:
		return Int(int64(v)), nil
	case int16:
		return Int(int64(v)), nil
	case int32:
		return Int(int64(v)), nil
	case int64:
		return Int(v), nil
	case uint8:
		return Int(int64(v)), nil
	case uint16:
		return Int(int64(v)), nil
	case uint32:
		return Int(int64(v)), nil
	case uint:
		if uint64(v) > 1<<63-1 {
			return Value{}, fmt.Errorf("uint %d overflows int64", v)
		}
		return Int(int64(v)), nil
	case uint64:
		if v > 1<<63-1 {
			return Value{}, fmt.Errorf("uint64 %d overflows int64", v)
		}
		return Int(int64(v)), nil
	case string:
		return String(v), nil
	case []byte:
		return Bytes(v), nil
	case []Value:
		return List(v...), nil
	case []string:
		items := make([]Value, len(v))
		for i, s := range v {
			items[i] = String(s)
		}
		return Value{kind: KindList, list: items}, nil
	case []int64:
		items := make([]Value, len(v))
		for i, n := range v {
			items[i] = Int(n)
		}
		return Value{kind: KindList, list: items}, nil
	case []any:
		items := make([]Value, len(v))
		for i, e := range v {
			item, err := ValueOf(e)
			if err != nil {
				return Value{}, fmt.Errorf("list element [%d]: %w", i, err)
			}
			items[i] = item
		}
		return Value{kind: KindList, list: items}, nil
	case map[string]Value:
		return StringMap(v), nil
	case map[string]any:
		m := make(map[string]Value, len(v))
		for k, e := range v {
			item, err := ValueOf(e)
			if err != nil {
				return Value{}, fmt.Errorf("map value %q: %w", k, err)
			}
			m[k] = item
		}
		return StringMap(m), nil
	default:
		return Value{}, fmt.Errorf("cannot convert %T to Value", x)
	}
}

// Kind returns the value's tag.
func (v Value) Kind() Kind { return v.kind }

// IsNil reports whether v is the nil value.
func (v Value) IsNil() bool { return v.kind == KindNil }

// AsInt returns the integer held by v.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsBytes returns the byte sequence held by v.
func (v Value) AsBytes() ([]byte, bool) { return v.b, v.kind == KindBytes }

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsList returns the elements of a list value.
func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	if v.list == nil {
		return []Value{}, true
	}
	return v.list, true
}

// AsMap returns the entries of a map value.
func (v Value) AsMap() ([]MapEntry, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	if v.m == nil {
		return []MapEntry{}, true
	}
	return v.m, true
}

// Lookup returns the map entry for key.
func (v Value) Lookup(key Value) (Value, bool) {
	for _, e := range v.m {
		if e.Key.Equal(key) {
			return e.Value, true
		}
	}
	return Value{}, false
}

// Len returns the number of elements of a list or entries of a map, and 0
// for every other kind.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.list)
	case KindMap:
		return len(v.m)
	}
	return 0
}

// Equal reports whether v and o have the same kind and contents. Map
// comparison ignores entry order.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNil:
		return true
	case KindInt:
		return v.i == o.i
	case KindBytes:
		return bytes.Equal(v.b, o.b)
	case KindString:
		return v.s == o.s
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for _, e := range v.m {
			ov, ok := o.Lookup(e.Key)
			if !ok || !ov.Equal(e.Value) {
				return false
			}
		}
		return true
	}
	return false
}

// Interface returns v as a plain Go value for display and encoding:
// nil, int64, []byte, string, []any or map[string]any. Map keys that are
// not strings or bytes are rendered with [Value.String].
func (v Value) Interface() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindBytes:
		return v.b
	case KindString:
		return v.s
	case KindList:
		out := make([]any, len(v.list))
		for i, e := range v.list {
			out[i] = e.Interface()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for _, e := range v.m {
			out[e.Key.keyString()] = e.Value.Interface()
		}
		return out
	}
	return nil
}

func (v Value) keyString() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindBytes:
		return string(v.b)
	}
	return v.String()
}

func (v Value) String() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindBytes:
		return fmt.Sprintf("0x%x", v.b)
	case KindString:
		return strconv.Quote(v.s)
	case KindList:
		parts := make([]string, len(v.list))
		for i, e := range v.list {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindMap:
		parts := make([]string, len(v.m))
		for i, e := range v.m {
			parts[i] = e.Key.String() + ": " + e.Value.String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return v.kind.String()
}
