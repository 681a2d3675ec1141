// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package conformance

import (
	"context"
	"fmt"

	"github.com/Query-farm/vgi-llist/vgirpc"
)

// argAt returns positional argument i, or a TypeError naming the missing
// parameter.
func argAt(args []vgirpc.Value, i int, name string) (vgirpc.Value, error) {
	if i >= len(args) {
		return vgirpc.Value{}, &vgirpc.RpcError{
			Type:    "TypeError",
			Message: fmt.Sprintf("missing required argument %q (position %d)", name, i),
		}
	}
	return args[i], nil
}

func kindError(name string, want vgirpc.Kind, got vgirpc.Value) error {
	return &vgirpc.RpcError{
		Type:    "TypeError",
		Message: fmt.Sprintf("argument %q must be %s, got %s", name, want, got.Kind()),
	}
}

func stringArg(args []vgirpc.Value, i int, name string) (string, error) {
	v, err := argAt(args, i, name)
	if err != nil {
		return "", err
	}
	s, ok := v.AsString()
	if !ok {
		return "", kindError(name, vgirpc.KindString, v)
	}
	return s, nil
}

func intArg(args []vgirpc.Value, i int, name string) (int64, error) {
	v, err := argAt(args, i, name)
	if err != nil {
		return 0, err
	}
	n, ok := v.AsInt()
	if !ok {
		return 0, kindError(name, vgirpc.KindInt, v)
	}
	return n, nil
}

func listArg(args []vgirpc.Value, i int, name string) ([]vgirpc.Value, error) {
	v, err := argAt(args, i, name)
	if err != nil {
		return nil, err
	}
	items, ok := v.AsList()
	if !ok {
		return nil, kindError(name, vgirpc.KindList, v)
	}
	return items, nil
}

// optionalString returns argument i, or def when the argument is absent or
// nil.
func optionalString(args []vgirpc.Value, i int, name, def string) (string, error) {
	if i >= len(args) || args[i].IsNil() {
		return def, nil
	}
	return stringArg(args, i, name)
}

func optionalInt(args []vgirpc.Value, i int, name string, def int64) (int64, error) {
	if i >= len(args) || args[i].IsNil() {
		return def, nil
	}
	return intArg(args, i, name)
}

// kindEcho returns a function that echoes its single argument after
// checking its kind.
func kindEcho(want vgirpc.Kind) vgirpc.Function {
	return func(_ context.Context, _ *vgirpc.CallContext, args []vgirpc.Value) (vgirpc.Value, error) {
		v, err := argAt(args, 0, "value")
		if err != nil {
			return vgirpc.Value{}, err
		}
		if v.Kind() != want {
			return vgirpc.Value{}, kindError("value", want, v)
		}
		return v, nil
	}
}
