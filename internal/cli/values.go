// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Query-farm/vgi-llist/vgirpc"
)

// ParseValue converts a command-line argument into a value.
//
//	null           nil
//	42, -7         integer
//	0xdeadbeef     bytes
//	[1, "a"]       list (JSON)
//	{"k": 1}       map (JSON)
//	"42"           string (JSON, to force a string)
//	anything else  string
func ParseValue(s string) (vgirpc.Value, error) {
	if s == "null" {
		return vgirpc.Nil(), nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		b, err := hex.DecodeString(s[2:])
		if err != nil {
			return vgirpc.Value{}, fmt.Errorf("invalid hex bytes %q: %w", s, err)
		}
		return vgirpc.Bytes(b), nil
	}
	if s != "" && strings.ContainsRune(`[{"`, rune(s[0])) {
		return parseJSONValue(s)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return vgirpc.Int(n), nil
	}
	return vgirpc.String(s), nil
}

// ParseValues parses every argument with [ParseValue].
func ParseValues(args []string) ([]vgirpc.Value, error) {
	values := make([]vgirpc.Value, len(args))
	for i, arg := range args {
		v, err := ParseValue(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		values[i] = v
	}
	return values, nil
}

func parseJSONValue(s string) (vgirpc.Value, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var x any
	if err := dec.Decode(&x); err != nil {
		return vgirpc.Value{}, fmt.Errorf("invalid JSON value %q: %w", s, err)
	}
	if dec.More() {
		return vgirpc.Value{}, fmt.Errorf("invalid JSON value %q: trailing data", s)
	}
	return fromJSON(x)
}

func fromJSON(x any) (vgirpc.Value, error) {
	switch v := x.(type) {
	case nil:
		return vgirpc.Nil(), nil
	case string:
		return vgirpc.String(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return vgirpc.Value{}, fmt.Errorf("number %s is not a 64-bit integer", v)
		}
		return vgirpc.Int(n), nil
	case []any:
		items := make([]vgirpc.Value, len(v))
		for i, e := range v {
			item, err := fromJSON(e)
			if err != nil {
				return vgirpc.Value{}, err
			}
			items[i] = item
		}
		return vgirpc.List(items...), nil
	case map[string]any:
		m := make(map[string]vgirpc.Value, len(v))
		for k, e := range v {
			item, err := fromJSON(e)
			if err != nil {
				return vgirpc.Value{}, err
			}
			m[k] = item
		}
		return vgirpc.StringMap(m), nil
	default:
		return vgirpc.Value{}, fmt.Errorf("unsupported JSON value %v (%T)", v, v)
	}
}

// plain converts a value into JSON- and YAML-friendly Go values. Bytes are
// rendered as 0x-prefixed hex so they parse back with [ParseValue].
func plain(v vgirpc.Value) any {
	switch v.Kind() {
	case vgirpc.KindBytes:
		b, _ := v.AsBytes()
		return "0x" + hex.EncodeToString(b)
	case vgirpc.KindList:
		items, _ := v.AsList()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = plain(item)
		}
		return out
	case vgirpc.KindMap:
		entries, _ := v.AsMap()
		out := make(map[string]any, len(entries))
		for _, e := range entries {
			out[mapKey(e.Key)] = plain(e.Value)
		}
		return out
	}
	return v.Interface()
}

func mapKey(k vgirpc.Value) string {
	switch k.Kind() {
	case vgirpc.KindString:
		s, _ := k.AsString()
		return s
	case vgirpc.KindBytes:
		b, _ := k.AsBytes()
		return "0x" + hex.EncodeToString(b)
	}
	return k.String()
}
