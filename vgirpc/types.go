// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package vgirpc

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Child indices of valueType.
const (
	valueKindField = iota
	valueIntField
	valueBytesField
	valueStrField
	valueNestedField
)

// valueType is the Arrow struct that carries one Value. Exactly one payload
// child is non-null, chosen by kind. Lists and maps cannot be expressed as a
// recursive Arrow type, so they are serialized into the nested child as an
// embedded IPC stream (listSchema or mapSchema), the same way
// ArrowSerializable parameters are embedded as binary.
var valueType = arrow.StructOf(
	arrow.Field{Name: "kind", Type: arrow.PrimitiveTypes.Int8},
	arrow.Field{Name: "int", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	arrow.Field{Name: "bytes", Type: arrow.BinaryTypes.Binary, Nullable: true},
	arrow.Field{Name: "str", Type: arrow.BinaryTypes.String, Nullable: true},
	arrow.Field{Name: "nested", Type: arrow.BinaryTypes.Binary, Nullable: true},
)

// listSchema holds one list element per row.
var listSchema = arrow.NewSchema([]arrow.Field{
	{Name: "value", Type: valueType},
}, nil)

// mapSchema holds one map entry per row.
var mapSchema = arrow.NewSchema([]arrow.Field{
	{Name: "key", Type: valueType},
	{Name: "value", Type: valueType},
}, nil)

// appendValue appends v as one row of a valueType struct builder.
func appendValue(sb *array.StructBuilder, v Value) error {
	sb.Append(true)
	kb := sb.FieldBuilder(valueKindField).(*array.Int8Builder)
	ib := sb.FieldBuilder(valueIntField).(*array.Int64Builder)
	bb := sb.FieldBuilder(valueBytesField).(*array.BinaryBuilder)
	strb := sb.FieldBuilder(valueStrField).(*array.StringBuilder)
	nb := sb.FieldBuilder(valueNestedField).(*array.BinaryBuilder)

	kb.Append(int8(v.kind))

	if v.kind == KindInt {
		ib.Append(v.i)
	} else {
		ib.AppendNull()
	}
	if v.kind == KindBytes {
		bb.Append(v.b)
	} else {
		bb.AppendNull()
	}
	if v.kind == KindString {
		strb.Append(v.s)
	} else {
		strb.AppendNull()
	}

	switch v.kind {
	case KindList:
		data, err := encodeList(v.list)
		if err != nil {
			return err
		}
		nb.Append(data)
	case KindMap:
		data, err := encodeMap(v.m)
		if err != nil {
			return err
		}
		nb.Append(data)
	case KindNil, KindInt, KindBytes, KindString:
		nb.AppendNull()
	default:
		return fmt.Errorf("unsupported value kind %v", v.kind)
	}
	return nil
}

// buildValueArray builds a valueType array with one row per value.
func buildValueArray(mem memory.Allocator, values []Value) (arrow.Array, error) {
	sb := array.NewStructBuilder(mem, valueType)
	defer sb.Release()
	for i, v := range values {
		if err := appendValue(sb, v); err != nil {
			return nil, fmt.Errorf("value [%d]: %w", i, err)
		}
	}
	return sb.NewArray(), nil
}

// encodeList serializes values as an IPC stream of listSchema rows.
func encodeList(values []Value) ([]byte, error) {
	mem := memory.NewGoAllocator()
	arr, err := buildValueArray(mem, values)
	if err != nil {
		return nil, fmt.Errorf("list element: %w", err)
	}
	defer arr.Release()

	batch := array.NewRecordBatch(listSchema, []arrow.Array{arr}, int64(len(values)))
	defer batch.Release()
	return writeIPCBytes(listSchema, batch)
}

// encodeMap serializes entries as an IPC stream of mapSchema rows.
func encodeMap(entries []MapEntry) ([]byte, error) {
	mem := memory.NewGoAllocator()
	keys := make([]Value, len(entries))
	items := make([]Value, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
		items[i] = e.Value
	}
	keyArr, err := buildValueArray(mem, keys)
	if err != nil {
		return nil, fmt.Errorf("map key: %w", err)
	}
	defer keyArr.Release()
	itemArr, err := buildValueArray(mem, items)
	if err != nil {
		return nil, fmt.Errorf("map value: %w", err)
	}
	defer itemArr.Release()

	batch := array.NewRecordBatch(mapSchema, []arrow.Array{keyArr, itemArr}, int64(len(entries)))
	defer batch.Release()
	return writeIPCBytes(mapSchema, batch)
}

// writeIPCBytes writes a single-batch IPC stream into memory.
func writeIPCBytes(schema *arrow.Schema, batch arrow.RecordBatch) ([]byte, error) {
	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema))
	if err := w.Write(batch); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeValue serializes a single value as an IPC stream.
func EncodeValue(v Value) ([]byte, error) {
	return encodeList([]Value{v})
}

// DecodeValue reverses [EncodeValue].
func DecodeValue(data []byte) (Value, error) {
	values, err := decodeList(data)
	if err != nil {
		return Value{}, err
	}
	if len(values) != 1 {
		return Value{}, fmt.Errorf("expected 1 encoded value, got %d", len(values))
	}
	return values[0], nil
}

// valueColumn returns the named column of batch as a valueType struct array.
func valueColumn(batch arrow.RecordBatch, name string) (*array.Struct, error) {
	indices := batch.Schema().FieldIndices(name)
	if len(indices) == 0 {
		return nil, fmt.Errorf("missing %q column", name)
	}
	col, ok := batch.Column(indices[0]).(*array.Struct)
	if !ok {
		return nil, fmt.Errorf("column %q: expected Struct array, got %T", name, batch.Column(indices[0]))
	}
	if !arrow.TypeEqual(col.DataType(), valueType) {
		return nil, fmt.Errorf("column %q: unexpected value type %v", name, col.DataType())
	}
	return col, nil
}

// decodeList reads an IPC stream written by encodeList.
func decodeList(data []byte) ([]Value, error) {
	reader, err := ipc.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("reading list IPC: %w", err)
	}
	defer reader.Release()

	values := []Value{}
	for reader.Next() {
		batch := reader.RecordBatch()
		col, err := valueColumn(batch, "value")
		if err != nil {
			return nil, fmt.Errorf("list: %w", err)
		}
		for i := 0; i < col.Len(); i++ {
			v, err := valueAt(col, i)
			if err != nil {
				return nil, fmt.Errorf("list element [%d]: %w", len(values), err)
			}
			values = append(values, v)
		}
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("reading list batch: %w", err)
	}
	return values, nil
}

// decodeMap reads an IPC stream written by encodeMap. Duplicate keys are
// rejected rather than merged.
func decodeMap(data []byte) ([]MapEntry, error) {
	reader, err := ipc.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("reading map IPC: %w", err)
	}
	defer reader.Release()

	entries := []MapEntry{}
	for reader.Next() {
		batch := reader.RecordBatch()
		keyCol, err := valueColumn(batch, "key")
		if err != nil {
			return nil, fmt.Errorf("map: %w", err)
		}
		itemCol, err := valueColumn(batch, "value")
		if err != nil {
			return nil, fmt.Errorf("map: %w", err)
		}
		for i := 0; i < keyCol.Len(); i++ {
			k, err := valueAt(keyCol, i)
			if err != nil {
				return nil, fmt.Errorf("map key [%d]: %w", len(entries), err)
			}
			for _, e := range entries {
				if e.Key.Equal(k) {
					return nil, fmt.Errorf("duplicate map key %s", k)
				}
			}
			v, err := valueAt(itemCol, i)
			if err != nil {
				return nil, fmt.Errorf("map value %s: %w", k, err)
			}
			entries = append(entries, MapEntry{Key: k, Value: v})
		}
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("reading map batch: %w", err)
	}
	return entries, nil
}

// valueAt decodes row idx of a valueType struct array. Payloads are copied
// out of Arrow memory so the result outlives the batch.
func valueAt(col *array.Struct, idx int) (Value, error) {
	kindArr, ok := col.Field(valueKindField).(*array.Int8)
	if !ok || kindArr.IsNull(idx) {
		return Value{}, fmt.Errorf("missing value kind")
	}
	kind := Kind(kindArr.Value(idx))

	switch kind {
	case KindNil:
		return Nil(), nil
	case KindInt:
		c := col.Field(valueIntField).(*array.Int64)
		if c.IsNull(idx) {
			return Value{}, fmt.Errorf("int value is null")
		}
		return Int(c.Value(idx)), nil
	case KindBytes:
		c := col.Field(valueBytesField).(*array.Binary)
		if c.IsNull(idx) {
			return Value{}, fmt.Errorf("bytes value is null")
		}
		return Bytes(bytes.Clone(c.Value(idx))), nil
	case KindString:
		c := col.Field(valueStrField).(*array.String)
		if c.IsNull(idx) {
			return Value{}, fmt.Errorf("string value is null")
		}
		return String(strings.Clone(c.Value(idx))), nil
	case KindList:
		c := col.Field(valueNestedField).(*array.Binary)
		if c.IsNull(idx) {
			return Value{}, fmt.Errorf("list value is null")
		}
		items, err := decodeList(c.Value(idx))
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindList, list: items}, nil
	case KindMap:
		c := col.Field(valueNestedField).(*array.Binary)
		if c.IsNull(idx) {
			return Value{}, fmt.Errorf("map value is null")
		}
		entries, err := decodeMap(c.Value(idx))
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindMap, m: entries}, nil
	default:
		return Value{}, fmt.Errorf("unknown value kind %d", int8(kind))
	}
}
