// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package vgirpc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroValueIsNil(t *testing.T) {
	var v Value
	assert.True(t, v.IsNil())
	assert.Equal(t, KindNil, v.Kind())
	assert.True(t, v.Equal(Nil()))
	assert.Nil(t, v.Interface())
	assert.Equal(t, "nil", v.String())
}

func TestAccessorsMatchKind(t *testing.T) {
	n, ok := Int(-3).AsInt()
	assert.True(t, ok)
	assert.Equal(t, int64(-3), n)

	_, ok = String("3").AsInt()
	assert.False(t, ok, "no cross-kind coercion")

	b, ok := Bytes(nil).AsBytes()
	assert.True(t, ok)
	assert.NotNil(t, b)
	assert.Empty(t, b)

	_, ok = Bytes([]byte("x")).AsString()
	assert.False(t, ok)

	items, ok := List().AsList()
	assert.True(t, ok)
	assert.NotNil(t, items)

	_, ok = Int(1).AsList()
	assert.False(t, ok)

	entries, ok := Map().AsMap()
	assert.True(t, ok)
	assert.NotNil(t, entries)
}

func TestMapLastDuplicateWins(t *testing.T) {
	m := Map(
		MapEntry{Key: String("a"), Value: Int(1)},
		MapEntry{Key: String("b"), Value: Int(2)},
		MapEntry{Key: String("a"), Value: Int(3)},
	)
	assert.Equal(t, 2, m.Len())
	v, ok := m.Lookup(String("a"))
	require.True(t, ok)
	assert.True(t, v.Equal(Int(3)))

	_, ok = m.Lookup(Bytes([]byte("a")))
	assert.False(t, ok, "string and bytes keys are distinct")
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"ints", Int(1), Int(1), true},
		{"different ints", Int(1), Int(2), false},
		{"int vs string", Int(1), String("1"), false},
		{"bytes", Bytes([]byte{1, 2}), Bytes([]byte{1, 2}), true},
		{"empty bytes vs nil bytes", Bytes(nil), Bytes([]byte{}), true},
		{"nested lists", List(Int(1), List(String("x"))), List(Int(1), List(String("x"))), true},
		{"list order matters", List(Int(1), Int(2)), List(Int(2), Int(1)), false},
		{
			"map order ignored",
			Map(MapEntry{Key: String("a"), Value: Int(1)}, MapEntry{Key: String("b"), Value: Int(2)}),
			Map(MapEntry{Key: String("b"), Value: Int(2)}, MapEntry{Key: String("a"), Value: Int(1)}),
			true,
		},
		{
			"map values differ",
			Map(MapEntry{Key: String("a"), Value: Int(1)}),
			Map(MapEntry{Key: String("a"), Value: Int(2)}),
			false,
		},
		{"empty list vs empty map", List(), Map(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Equal(tt.b))
			assert.Equal(t, tt.want, tt.b.Equal(tt.a))
		})
	}
}

func TestValueOf(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    Value
		wantErr string
	}{
		{name: "nil", in: nil, want: Nil()},
		{name: "int", in: 7, want: Int(7)},
		{name: "int32", in: int32(-7), want: Int(-7)},
		{name: "uint8", in: uint8(255), want: Int(255)},
		{name: "max uint64 fits", in: uint64(math.MaxInt64), want: Int(math.MaxInt64)},
		{name: "uint64 overflow", in: uint64(math.MaxInt64) + 1, wantErr: "overflows int64"},
		{name: "string", in: "s", want: String("s")},
		{name: "bytes", in: []byte{9}, want: Bytes([]byte{9})},
		{name: "strings", in: []string{"a", "b"}, want: List(String("a"), String("b"))},
		{name: "int64s", in: []int64{1, 2}, want: List(Int(1), Int(2))},
		{name: "any list", in: []any{1, "x", nil}, want: List(Int(1), String("x"), Nil())},
		{
			name: "any map",
			in:   map[string]any{"n": 1, "l": []any{"x"}},
			want: StringMap(map[string]Value{"n": Int(1), "l": List(String("x"))}),
		},
		{name: "value passthrough", in: List(Int(1)), want: List(Int(1))},
		{name: "float unsupported", in: 1.5, wantErr: "cannot convert float64"},
		{name: "nested unsupported", in: []any{true}, wantErr: "list element [0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValueOf(tt.in)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Truef(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestInterface(t *testing.T) {
	v := Map(
		MapEntry{Key: String("name"), Value: String("x")},
		MapEntry{Key: Bytes([]byte("raw")), Value: Bytes([]byte{1})},
		MapEntry{Key: Int(7), Value: List(Int(1), Nil())},
	)
	assert.Equal(t, map[string]any{
		"name": "x",
		"raw":  []byte{1},
		"7":    []any{int64(1), nil},
	}, v.Interface())
}

func TestString(t *testing.T) {
	v := List(Int(1), String("a"), Bytes([]byte{0xff}), Map(MapEntry{Key: String("k"), Value: Nil()}))
	assert.Equal(t, `[1, "a", 0xff, {"k": nil}]`, v.String())
	assert.Equal(t, "kind(9)", Kind(9).String())
}
