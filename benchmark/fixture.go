// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package benchmark provides fixture functions for measuring call overhead
// and value encoding cost across transports.
package benchmark

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Query-farm/vgi-llist/vgirpc"
)

// Package is the package name the fixtures are registered under.
const Package = "bench"

// RegisterFunctions registers the benchmark fixture functions on the server.
func RegisterFunctions(server *vgirpc.Server) {
	server.Register(Package, "noop", noop)
	server.Register(Package, "add", add)
	server.Register(Package, "greet", greet)
	server.Register(Package, "roundtrip_values", roundtripValues)
	server.Register(Package, "generate", generate)
}

// Handler implementations

func noop(context.Context, *vgirpc.CallContext, []vgirpc.Value) (vgirpc.Value, error) {
	return vgirpc.Nil(), nil
}

func add(_ context.Context, _ *vgirpc.CallContext, args []vgirpc.Value) (vgirpc.Value, error) {
	var sum int64
	for i, arg := range args {
		n, ok := arg.AsInt()
		if !ok {
			return vgirpc.Value{}, &vgirpc.RpcError{Type: "TypeError", Message: fmt.Sprintf("argument %d must be int, got %s", i, arg.Kind())}
		}
		sum += n
	}
	return vgirpc.Int(sum), nil
}

func greet(_ context.Context, _ *vgirpc.CallContext, args []vgirpc.Value) (vgirpc.Value, error) {
	if len(args) != 1 {
		return vgirpc.Value{}, &vgirpc.RpcError{Type: "TypeError", Message: fmt.Sprintf("greet takes 1 argument, got %d", len(args))}
	}
	name, ok := args[0].AsString()
	if !ok {
		return vgirpc.Value{}, &vgirpc.RpcError{Type: "TypeError", Message: "name must be a string"}
	}
	return vgirpc.String("Hello, " + name + "!"), nil
}

// roundtripValues summarises a mapping and a list of tags as
// "{'k': v, ...}:[t, ...]" with keys and tags sorted.
func roundtripValues(_ context.Context, _ *vgirpc.CallContext, args []vgirpc.Value) (vgirpc.Value, error) {
	if len(args) != 2 {
		return vgirpc.Value{}, &vgirpc.RpcError{Type: "TypeError", Message: fmt.Sprintf("roundtrip_values takes 2 arguments, got %d", len(args))}
	}
	entries, ok := args[0].AsMap()
	if !ok {
		return vgirpc.Value{}, &vgirpc.RpcError{Type: "TypeError", Message: "mapping must be a map"}
	}
	tags, ok := args[1].AsList()
	if !ok {
		return vgirpc.Value{}, &vgirpc.RpcError{Type: "TypeError", Message: "tags must be a list"}
	}

	mappingParts := make([]string, 0, len(entries))
	for _, e := range entries {
		mappingParts = append(mappingParts, fmt.Sprintf("%s: %s", e.Key, e.Value))
	}
	sort.Strings(mappingParts)

	tagParts := make([]string, 0, len(tags))
	sortedTags := append([]vgirpc.Value(nil), tags...)
	sort.SliceStable(sortedTags, func(i, j int) bool {
		a, _ := sortedTags[i].AsInt()
		b, _ := sortedTags[j].AsInt()
		return a < b
	})
	for _, t := range sortedTags {
		tagParts = append(tagParts, t.String())
	}

	return vgirpc.String("{" + strings.Join(mappingParts, ", ") + "}:[" + strings.Join(tagParts, ", ") + "]"), nil
}

// generate returns a list of count integers 0..count-1.
func generate(_ context.Context, _ *vgirpc.CallContext, args []vgirpc.Value) (vgirpc.Value, error) {
	if len(args) != 1 {
		return vgirpc.Value{}, &vgirpc.RpcError{Type: "TypeError", Message: fmt.Sprintf("generate takes 1 argument, got %d", len(args))}
	}
	count, ok := args[0].AsInt()
	if !ok || count < 0 {
		return vgirpc.Value{}, &vgirpc.RpcError{Type: "ValueError", Message: fmt.Sprintf("count must be a non-negative int, got %s", args[0])}
	}
	items := make([]vgirpc.Value, count)
	for i := range items {
		items[i] = vgirpc.Int(int64(i))
	}
	return vgirpc.List(items...), nil
}
