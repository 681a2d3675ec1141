// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package conformance

import (
	"context"
	"fmt"
	"time"

	"github.com/Query-farm/vgi-llist/vgirpc"
)

// Package is the package name the conformance functions are registered
// under.
const Package = "conformance"

// RegisterFunctions registers all conformance functions on the server.
func RegisterFunctions(server *vgirpc.Server) {
	reg := func(name string, fn vgirpc.Function) { server.Register(Package, name, fn) }

	// Kind echo
	reg("echo_nil", kindEcho(vgirpc.KindNil))
	reg("echo_int", kindEcho(vgirpc.KindInt))
	reg("echo_bytes", kindEcho(vgirpc.KindBytes))
	reg("echo_string", kindEcho(vgirpc.KindString))
	reg("echo_list", kindEcho(vgirpc.KindList))
	reg("echo_map", kindEcho(vgirpc.KindMap))

	// Void returns
	reg("void_noop", voidNoop)
	reg("void_with_param", voidWithParam)

	// Argument shapes
	reg("echo_args", echoArgs)
	reg("count_args", countArgs)
	reg("echo_key", echoKey)
	reg("concatenate", concatenate)
	reg("with_defaults", withDefaults)

	// Error propagation
	reg("raise_value_error", raiseError("ValueError"))
	reg("raise_runtime_error", raiseError("RuntimeError"))
	reg("raise_type_error", raiseError("TypeError"))
	reg("raise_panic", raisePanic)

	// Client-directed logging
	reg("echo_with_info_log", echoWithInfoLog)
	reg("echo_with_multi_logs", echoWithMultiLogs)
	reg("echo_with_log_extras", echoWithLogExtras)

	// Deadlines
	reg("sleep", sleep)
}

// --- Void ---

func voidNoop(context.Context, *vgirpc.CallContext, []vgirpc.Value) (vgirpc.Value, error) {
	return vgirpc.Nil(), nil
}

func voidWithParam(_ context.Context, _ *vgirpc.CallContext, args []vgirpc.Value) (vgirpc.Value, error) {
	if _, err := intArg(args, 0, "value"); err != nil {
		return vgirpc.Value{}, err
	}
	return vgirpc.Nil(), nil
}

// --- Argument shapes ---

func echoArgs(_ context.Context, _ *vgirpc.CallContext, args []vgirpc.Value) (vgirpc.Value, error) {
	return vgirpc.List(args...), nil
}

func countArgs(_ context.Context, _ *vgirpc.CallContext, args []vgirpc.Value) (vgirpc.Value, error) {
	return vgirpc.Int(int64(len(args))), nil
}

func echoKey(_ context.Context, ctx *vgirpc.CallContext, _ []vgirpc.Value) (vgirpc.Value, error) {
	return vgirpc.StringMap(map[string]vgirpc.Value{
		"namespace": vgirpc.String(ctx.Key.Namespace),
		"set":       vgirpc.String(ctx.Key.SetName),
		"user_key":  ctx.Key.UserKey,
	}), nil
}

func concatenate(_ context.Context, _ *vgirpc.CallContext, args []vgirpc.Value) (vgirpc.Value, error) {
	prefix, err := stringArg(args, 0, "prefix")
	if err != nil {
		return vgirpc.Value{}, err
	}
	suffix, err := stringArg(args, 1, "suffix")
	if err != nil {
		return vgirpc.Value{}, err
	}
	separator, err := optionalString(args, 2, "separator", "-")
	if err != nil {
		return vgirpc.Value{}, err
	}
	return vgirpc.String(prefix + separator + suffix), nil
}

func withDefaults(_ context.Context, _ *vgirpc.CallContext, args []vgirpc.Value) (vgirpc.Value, error) {
	required, err := intArg(args, 0, "required")
	if err != nil {
		return vgirpc.Value{}, err
	}
	optionalStr, err := optionalString(args, 1, "optional_str", "default")
	if err != nil {
		return vgirpc.Value{}, err
	}
	optionalN, err := optionalInt(args, 2, "optional_int", 42)
	if err != nil {
		return vgirpc.Value{}, err
	}
	return vgirpc.String(fmt.Sprintf("required=%d, optional_str=%s, optional_int=%d",
		required, optionalStr, optionalN)), nil
}

// --- Error propagation ---

func raiseError(errType string) vgirpc.Function {
	return func(_ context.Context, _ *vgirpc.CallContext, args []vgirpc.Value) (vgirpc.Value, error) {
		message, err := stringArg(args, 0, "message")
		if err != nil {
			return vgirpc.Value{}, err
		}
		return vgirpc.Value{}, &vgirpc.RpcError{Type: errType, Message: message}
	}
}

func raisePanic(_ context.Context, _ *vgirpc.CallContext, args []vgirpc.Value) (vgirpc.Value, error) {
	message, err := stringArg(args, 0, "message")
	if err != nil {
		return vgirpc.Value{}, err
	}
	panic(message)
}

// --- Client-directed logging ---

func echoWithInfoLog(_ context.Context, ctx *vgirpc.CallContext, args []vgirpc.Value) (vgirpc.Value, error) {
	value, err := stringArg(args, 0, "value")
	if err != nil {
		return vgirpc.Value{}, err
	}
	ctx.ClientLogf(vgirpc.LogInfo, "info: %s", value)
	return vgirpc.String(value), nil
}

func echoWithMultiLogs(_ context.Context, ctx *vgirpc.CallContext, args []vgirpc.Value) (vgirpc.Value, error) {
	value, err := stringArg(args, 0, "value")
	if err != nil {
		return vgirpc.Value{}, err
	}
	ctx.ClientLogf(vgirpc.LogDebug, "debug: %s", value)
	ctx.ClientLogf(vgirpc.LogInfo, "info: %s", value)
	ctx.ClientLogf(vgirpc.LogWarn, "warn: %s", value)
	return vgirpc.String(value), nil
}

func echoWithLogExtras(_ context.Context, ctx *vgirpc.CallContext, args []vgirpc.Value) (vgirpc.Value, error) {
	value, err := stringArg(args, 0, "value")
	if err != nil {
		return vgirpc.Value{}, err
	}
	ctx.ClientLog(vgirpc.LogInfo, "echo_with_extras",
		vgirpc.KV{Key: "source", Value: "conformance"},
		vgirpc.KV{Key: "detail", Value: value},
	)
	return vgirpc.String(value), nil
}

// --- Deadlines ---

// sleep waits for the given number of milliseconds, or until the request
// deadline passes.
func sleep(ctx context.Context, _ *vgirpc.CallContext, args []vgirpc.Value) (vgirpc.Value, error) {
	ms, err := intArg(args, 0, "ms")
	if err != nil {
		return vgirpc.Value{}, err
	}
	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
		return vgirpc.Int(ms), nil
	case <-ctx.Done():
		return vgirpc.Value{}, &vgirpc.RpcError{Type: "TimeoutError", Message: fmt.Sprintf("sleep(%d) interrupted: %v", ms, ctx.Err())}
	}
}
