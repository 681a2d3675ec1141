// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package vgirpc

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
)

// DispatchHook provides observability callpoints around server-side dispatch.
// Implementations must be safe for concurrent use (HTTP transport is concurrent).
type DispatchHook interface {
	OnDispatchStart(ctx context.Context, info DispatchInfo) (context.Context, HookToken)
	OnDispatchEnd(ctx context.Context, token HookToken, info DispatchInfo, stats *CallStatistics, err error)
}

// CallHook provides observability callpoints around client-side calls.
// OnCallStart may add entries to info.Metadata; they are sent as request
// metadata (this is how trace context reaches the server).
// Implementations must be safe for concurrent use.
type CallHook interface {
	OnCallStart(ctx context.Context, info *CallInfo) (context.Context, HookToken)
	OnCallEnd(ctx context.Context, token HookToken, info *CallInfo, err error)
}

// HookToken is an opaque value returned by a start callback and passed back
// to the matching end callback. Only meaningful to the hook that created it.
type HookToken interface{}

// DispatchInfo carries call metadata passed to dispatch hooks.
type DispatchInfo struct {
	Method            string            // MethodExecute or MethodDescribe
	Package           string            // remote package name
	Function          string            // remote function name
	ServerID          string            // Server identifier
	RequestID         string            // Client-supplied request identifier
	TransportMetadata map[string]string // Request batch custom metadata
}

// CallInfo carries call metadata passed to client call hooks.
type CallInfo struct {
	Package   string
	Function  string
	RequestID string
	Transport string // transport name, e.g. "http" or "pipe"
	Key       Key
	NumArgs   int
	Metadata  map[string]string
}

// CallStatistics holds per-call I/O counters.
type CallStatistics struct {
	InputBatches  int64
	OutputBatches int64
	InputRows     int64
	OutputRows    int64
	InputBytes    int64
	OutputBytes   int64
}

// RecordInput records one input batch with the given row count and buffer size.
func (s *CallStatistics) RecordInput(numRows, bufferBytes int64) {
	s.InputBatches++
	s.InputRows += numRows
	s.InputBytes += bufferBytes
}

// RecordOutput records one output batch with the given row count and buffer size.
func (s *CallStatistics) RecordOutput(numRows, bufferBytes int64) {
	s.OutputBatches++
	s.OutputRows += numRows
	s.OutputBytes += bufferBytes
}

// batchBufferSize returns the total top-level buffer size in bytes across all
// columns in a record batch.
func batchBufferSize(batch arrow.RecordBatch) int64 {
	var total int64
	for i := int64(0); i < batch.NumCols(); i++ {
		col := batch.Column(int(i))
		for _, buf := range col.Data().Buffers() {
			if buf != nil {
				total += int64(buf.Len())
			}
		}
	}
	return total
}
