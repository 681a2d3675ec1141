// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package vgirpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// BatchKind classifies a received batch based on its metadata.
type BatchKind int

const (
	BatchData  BatchKind = iota // regular data batch
	BatchLog                    // client-directed log batch
	BatchError                  // error/exception batch
)

// classifyBatch returns the kind of a response batch from its metadata.
func classifyBatch(meta arrow.Metadata) BatchKind {
	level, ok := meta.GetValue(MetaLogLevel)
	if !ok {
		return BatchData
	}
	if LogLevel(level) == LogException {
		return BatchError
	}
	return BatchLog
}

// requestSchema is the schema of the single-row request batch.
var requestSchema = arrow.NewSchema([]arrow.Field{
	{Name: "namespace", Type: arrow.BinaryTypes.String},
	{Name: "set", Type: arrow.BinaryTypes.String},
	{Name: "user_key", Type: valueType},
	{Name: "args", Type: arrow.BinaryTypes.Binary},
}, nil)

// resultSchema is the schema of response streams.
var resultSchema = arrow.NewSchema([]arrow.Field{
	{Name: "result", Type: valueType},
}, nil)

// Request represents a parsed RPC request from the wire.
type Request struct {
	Method    string
	Version   string
	RequestID string
	LogLevel  string
	Package   string
	Function  string
	Timeout   time.Duration
	Key       Key
	Args      []Value
	Metadata  map[string]string
	// Size is the buffer size of the request batch, for call statistics.
	Size int64
}

// WriteRequest writes req as one complete IPC stream. Entries of
// req.Metadata never override the protocol keys.
func WriteRequest(w io.Writer, req *Request) error {
	keys := []string{MetaMethod, MetaRequestVersion}
	vals := []string{req.Method, ProtocolVersion}
	add := func(k, v string) {
		if v == "" {
			return
		}
		keys = append(keys, k)
		vals = append(vals, v)
	}
	add(MetaRequestID, req.RequestID)
	add(MetaPackage, req.Package)
	add(MetaFunction, req.Function)
	add(MetaLogLevel, req.LogLevel)
	if req.Timeout > 0 {
		add(MetaTimeoutMillis, strconv.FormatInt(req.Timeout.Milliseconds(), 10))
	}

	extra := make([]string, 0, len(req.Metadata))
	for k := range req.Metadata {
		if !strings.HasPrefix(k, "vgi_rpc.") {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		add(k, req.Metadata[k])
	}

	mem := memory.NewGoAllocator()

	nsBuilder := array.NewStringBuilder(mem)
	defer nsBuilder.Release()
	nsBuilder.Append(req.Key.Namespace)

	setBuilder := array.NewStringBuilder(mem)
	defer setBuilder.Release()
	setBuilder.Append(req.Key.SetName)

	userKey, err := buildValueArray(mem, []Value{req.Key.UserKey})
	if err != nil {
		return fmt.Errorf("encoding user key: %w", err)
	}
	defer userKey.Release()

	args, err := encodeList(req.Args)
	if err != nil {
		return fmt.Errorf("encoding arguments: %w", err)
	}
	argsBuilder := array.NewBinaryBuilder(mem, arrow.BinaryTypes.Binary)
	defer argsBuilder.Release()
	argsBuilder.Append(args)

	cols := []arrow.Array{nsBuilder.NewArray(), setBuilder.NewArray(), userKey, argsBuilder.NewArray()}
	defer cols[0].Release()
	defer cols[1].Release()
	defer cols[3].Release()

	batch := array.NewRecordBatchWithMetadata(requestSchema, cols, 1, arrow.NewMetadata(keys, vals))
	defer batch.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(requestSchema))
	if err := writer.Write(batch); err != nil {
		return fmt.Errorf("writing request batch: %w", err)
	}
	return writer.Close()
}

// ReadRequest reads one complete IPC stream from the reader and extracts
// the method, call target, key and arguments from the first batch.
func ReadRequest(r io.Reader) (*Request, error) {
	reader, err := ipc.NewReader(r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading request IPC stream: %w", err)
	}
	defer reader.Release()

	if !reader.Next() {
		if err := reader.Err(); err != nil {
			return nil, fmt.Errorf("reading request batch: %w", err)
		}
		return nil, io.EOF
	}

	batch := reader.RecordBatch()
	req, parseErr := parseRequestBatch(batch)

	// Drain remaining batches (read to EOS) so the transport is clean
	// even when the request is rejected.
	for reader.Next() {
		// discard
	}
	if parseErr != nil {
		return nil, parseErr
	}
	return req, nil
}

// parseRequestBatch validates the request batch and decodes its contents.
func parseRequestBatch(batch arrow.RecordBatch) (*Request, error) {
	var meta arrow.Metadata
	if rb, ok := batch.(arrow.RecordBatchWithMetadata); ok {
		meta = rb.Metadata()
	}

	method, ok := meta.GetValue(MetaMethod)
	if !ok {
		return nil, &RpcError{
			Type:    "ProtocolError",
			Message: "Missing 'vgi_rpc.method' in request batch custom_metadata",
		}
	}

	version, ok := meta.GetValue(MetaRequestVersion)
	if !ok {
		return nil, &RpcError{
			Type:    "VersionError",
			Message: "Missing 'vgi_rpc.request_version' in request batch custom_metadata",
		}
	}
	if version != ProtocolVersion {
		return nil, &RpcError{
			Type:    "VersionError",
			Message: fmt.Sprintf("Unsupported request version %q, expected %q", version, ProtocolVersion),
		}
	}

	if batch.NumRows() != 1 {
		return nil, &RpcError{
			Type:    "ProtocolError",
			Message: fmt.Sprintf("Expected 1 row in request batch, got %d", batch.NumRows()),
		}
	}

	req := &Request{
		Method:   method,
		Version:  version,
		Metadata: make(map[string]string, meta.Len()),
		Size:     batchBufferSize(batch),
	}
	for i := range meta.Len() {
		req.Metadata[meta.Keys()[i]] = meta.Values()[i]
	}
	req.RequestID, _ = meta.GetValue(MetaRequestID)
	req.LogLevel, _ = meta.GetValue(MetaLogLevel)
	req.Package, _ = meta.GetValue(MetaPackage)
	req.Function, _ = meta.GetValue(MetaFunction)

	if v, ok := meta.GetValue(MetaTimeoutMillis); ok {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil || ms < 0 {
			return nil, &RpcError{
				Type:    "ProtocolError",
				Message: fmt.Sprintf("Invalid 'vgi_rpc.timeout_ms' value %q", v),
			}
		}
		req.Timeout = time.Duration(ms) * time.Millisecond
	}

	if method == MethodExecute && (req.Package == "" || req.Function == "") {
		return nil, &RpcError{
			Type:    "ProtocolError",
			Message: "Execute request requires 'vgi_rpc.package' and 'vgi_rpc.function'",
		}
	}

	if err := decodeRequestColumns(batch, req); err != nil {
		return nil, &RpcError{Type: "TypeError", Message: fmt.Sprintf("request deserialization: %v", err)}
	}
	return req, nil
}

// decodeRequestColumns reads the key and argument columns of row 0.
func decodeRequestColumns(batch arrow.RecordBatch, req *Request) error {
	schema := batch.Schema()
	stringAt := func(name string) (string, error) {
		indices := schema.FieldIndices(name)
		if len(indices) == 0 {
			return "", fmt.Errorf("missing %q column", name)
		}
		col, ok := batch.Column(indices[0]).(*array.String)
		if !ok {
			return "", fmt.Errorf("column %q: expected String array, got %T", name, batch.Column(indices[0]))
		}
		return strings.Clone(col.Value(0)), nil
	}

	var err error
	if req.Key.Namespace, err = stringAt("namespace"); err != nil {
		return err
	}
	if req.Key.SetName, err = stringAt("set"); err != nil {
		return err
	}

	userKey, err := valueColumn(batch, "user_key")
	if err != nil {
		return err
	}
	if req.Key.UserKey, err = valueAt(userKey, 0); err != nil {
		return fmt.Errorf("user key: %w", err)
	}

	indices := schema.FieldIndices("args")
	if len(indices) == 0 {
		return fmt.Errorf("missing %q column", "args")
	}
	argsCol, ok := batch.Column(indices[0]).(*array.Binary)
	if !ok {
		return fmt.Errorf("column %q: expected Binary array, got %T", "args", batch.Column(indices[0]))
	}
	if req.Args, err = decodeList(argsCol.Value(0)); err != nil {
		return fmt.Errorf("arguments: %w", err)
	}
	return nil
}

// emptyBatch creates a zero-row batch with the given schema.
func emptyBatch(schema *arrow.Schema) arrow.RecordBatch {
	mem := memory.NewGoAllocator()
	cols := make([]arrow.Array, schema.NumFields())
	for i, f := range schema.Fields() {
		cols[i] = makeEmptyArray(mem, f.Type)
	}
	batch := array.NewRecordBatch(schema, cols, 0)
	for _, c := range cols {
		c.Release()
	}
	return batch
}

// makeEmptyArray creates a zero-length array of the given type.
func makeEmptyArray(mem memory.Allocator, dt arrow.DataType) arrow.Array {
	builder := array.NewBuilder(mem, dt)
	defer builder.Release()
	return builder.NewArray()
}

// writeMetaBatch writes a zero-row batch carrying only custom metadata.
func writeMetaBatch(w *ipc.Writer, schema *arrow.Schema, keys, vals []string) error {
	meta := arrow.NewMetadata(keys, vals)
	batch := emptyBatch(schema)
	defer batch.Release()

	batchWithMeta := array.NewRecordBatchWithMetadata(schema, batch.Columns(), 0, meta)
	defer batchWithMeta.Release()

	return w.Write(batchWithMeta)
}

// writeLogBatch writes a zero-row batch with log metadata.
func writeLogBatch(w *ipc.Writer, schema *arrow.Schema, msg LogMessage, serverID, requestID string) error {
	keys := []string{MetaLogLevel, MetaLogMessage}
	vals := []string{string(msg.Level), msg.Message}

	if len(msg.Extras) > 0 {
		extraJSON, err := json.Marshal(msg.Extras)
		if err != nil {
			extraJSON = []byte(`{}`)
		}
		keys = append(keys, MetaLogExtra)
		vals = append(vals, string(extraJSON))
	}
	if serverID != "" {
		keys = append(keys, MetaServerID)
		vals = append(vals, serverID)
	}
	if requestID != "" {
		keys = append(keys, MetaRequestID)
		vals = append(vals, requestID)
	}
	return writeMetaBatch(w, schema, keys, vals)
}

// writeErrorBatch writes a zero-row batch with EXCEPTION-level metadata.
func writeErrorBatch(w *ipc.Writer, schema *arrow.Schema, err error, serverID, requestID string, debug bool) error {
	keys := []string{MetaLogLevel, MetaLogMessage, MetaLogExtra}
	_, message := exceptionOf(err)
	vals := []string{string(LogException), message, buildErrorExtra(err, debug)}

	if serverID != "" {
		keys = append(keys, MetaServerID)
		vals = append(vals, serverID)
	}
	if requestID != "" {
		keys = append(keys, MetaRequestID)
		vals = append(vals, requestID)
	}
	return writeMetaBatch(w, schema, keys, vals)
}

// writeResultResponse writes logs followed by the one-row result batch and
// returns the result batch buffer size.
func writeResultResponse(w io.Writer, logs []LogMessage, result Value, serverID, requestID string) (int64, error) {
	mem := memory.NewGoAllocator()
	arr, err := buildValueArray(mem, []Value{result})
	if err != nil {
		return 0, fmt.Errorf("serialize result: %w", err)
	}
	defer arr.Release()

	batch := array.NewRecordBatch(resultSchema, []arrow.Array{arr}, 1)
	defer batch.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(resultSchema))
	defer writer.Close()

	for _, logMsg := range logs {
		if err := writeLogBatch(writer, resultSchema, logMsg, serverID, requestID); err != nil {
			return 0, fmt.Errorf("writing log batch: %w", err)
		}
	}
	if err := writer.Write(batch); err != nil {
		return 0, err
	}
	return batchBufferSize(batch), nil
}

// WriteResultResponse writes a complete IPC stream: schema + log batches +
// result batch + EOS.
func WriteResultResponse(w io.Writer, logs []LogMessage, result Value, serverID, requestID string) error {
	_, err := writeResultResponse(w, logs, result, serverID, requestID)
	return err
}

// WriteErrorResponse writes a complete IPC stream containing log batches
// followed by an error batch.
func WriteErrorResponse(w io.Writer, logs []LogMessage, err error, serverID, requestID string, debug bool) error {
	writer := ipc.NewWriter(w, ipc.WithSchema(resultSchema))
	defer writer.Close()

	for _, logMsg := range logs {
		if werr := writeLogBatch(writer, resultSchema, logMsg, serverID, requestID); werr != nil {
			return fmt.Errorf("writing log batch: %w", werr)
		}
	}
	return writeErrorBatch(writer, resultSchema, err, serverID, requestID, debug)
}

// Response is a decoded response stream. Exactly one of Result (when Err is
// nil) or Err is meaningful.
type Response struct {
	Result    Value
	Err       *RpcError
	Logs      []LogMessage
	ServerID  string
	RequestID string
}

// ReadResponse reads one complete response stream. Protocol and transport
// failures are returned as errors; a remote exception is returned in
// Response.Err. The stream is always consumed to EOS when readable.
func ReadResponse(r io.Reader) (*Response, error) {
	reader, err := ipc.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("reading response IPC stream: %w", err)
	}
	defer reader.Release()

	resp := &Response{}
	var decodeErr error
	gotResult := false

	for reader.Next() {
		batch := reader.RecordBatch()
		var meta arrow.Metadata
		if rb, ok := batch.(arrow.RecordBatchWithMetadata); ok {
			meta = rb.Metadata()
		}
		if v, ok := meta.GetValue(MetaServerID); ok {
			resp.ServerID = v
		}
		if v, ok := meta.GetValue(MetaRequestID); ok {
			resp.RequestID = v
		}

		switch classifyBatch(meta) {
		case BatchError:
			message, _ := meta.GetValue(MetaLogMessage)
			extra, _ := meta.GetValue(MetaLogExtra)
			resp.Err = parseErrorBatch(message, extra, resp.RequestID)
		case BatchLog:
			level, _ := meta.GetValue(MetaLogLevel)
			message, _ := meta.GetValue(MetaLogMessage)
			msg := LogMessage{Level: LogLevel(level), Message: message}
			if extra, ok := meta.GetValue(MetaLogExtra); ok {
				_ = json.Unmarshal([]byte(extra), &msg.Extras)
			}
			resp.Logs = append(resp.Logs, msg)
		case BatchData:
			if decodeErr != nil || gotResult {
				continue
			}
			if batch.NumRows() != 1 {
				decodeErr = fmt.Errorf("expected 1 row in result batch, got %d", batch.NumRows())
				continue
			}
			col, err := valueColumn(batch, "result")
			if err != nil {
				decodeErr = fmt.Errorf("result batch: %w", err)
				continue
			}
			if resp.Result, err = valueAt(col, 0); err != nil {
				decodeErr = fmt.Errorf("result value: %w", err)
				continue
			}
			gotResult = true
		}
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("reading response batch: %w", err)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	if resp.Err == nil && !gotResult {
		return nil, fmt.Errorf("response stream carried no result")
	}
	return resp, nil
}
