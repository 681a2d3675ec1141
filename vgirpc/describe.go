// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package vgirpc

import (
	"fmt"
	"io"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// describeSchema has one row per registered function.
var describeSchema = arrow.NewSchema([]arrow.Field{
	{Name: "name", Type: arrow.BinaryTypes.String},
	{Name: "package", Type: arrow.BinaryTypes.String},
	{Name: "function", Type: arrow.BinaryTypes.String},
}, nil)

// Describe metadata keys.
const (
	MetaProtocolName    = "vgi_rpc.protocol_name"
	MetaDescribeVersion = "vgi_rpc.describe_version"
	DescribeVersion     = "3"
)

// FunctionInfo names one function registered on a server.
type FunctionInfo struct {
	Package  string `json:"package" yaml:"package"`
	Function string `json:"function" yaml:"function"`
}

// Name returns the qualified package.function name.
func (f FunctionInfo) Name() string {
	return qualifiedName(f.Package, f.Function)
}

// buildDescribeBatch builds the __describe__ response batch and metadata.
func (s *Server) buildDescribeBatch() (arrow.RecordBatch, arrow.Metadata) {
	mem := memory.NewGoAllocator()

	names := s.availableFunctions()

	nameBuilder := array.NewStringBuilder(mem)
	defer nameBuilder.Release()
	packageBuilder := array.NewStringBuilder(mem)
	defer packageBuilder.Release()
	functionBuilder := array.NewStringBuilder(mem)
	defer functionBuilder.Release()

	for _, name := range names {
		info := s.functions[name]
		nameBuilder.Append(name)
		packageBuilder.Append(info.Package)
		functionBuilder.Append(info.Name)
	}

	cols := []arrow.Array{nameBuilder.NewArray(), packageBuilder.NewArray(), functionBuilder.NewArray()}
	for _, c := range cols {
		defer c.Release()
	}

	batch := array.NewRecordBatch(describeSchema, cols, int64(len(names)))

	keys := []string{
		MetaProtocolName,
		MetaRequestVersion,
		MetaDescribeVersion,
	}
	vals := []string{
		"GoRpcServer",
		ProtocolVersion,
		DescribeVersion,
	}
	if s.serviceName != "" {
		vals[0] = s.serviceName
	}
	if s.serverID != "" {
		keys = append(keys, MetaServerID)
		vals = append(vals, s.serverID)
	}
	return batch, arrow.NewMetadata(keys, vals)
}

// serveDescribe handles the __describe__ introspection request.
func (s *Server) serveDescribe(w io.Writer, _ *Request) error {
	batch, meta := s.buildDescribeBatch()
	defer batch.Release()

	batchWithMeta := array.NewRecordBatchWithMetadata(
		describeSchema, batch.Columns(), batch.NumRows(), meta)
	defer batchWithMeta.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(describeSchema))
	if err := writer.Write(batchWithMeta); err != nil {
		return err
	}
	return writer.Close()
}

// ReadDescribe reads a __describe__ response stream. An EXCEPTION batch is
// returned as an *RpcError.
func ReadDescribe(r io.Reader) ([]FunctionInfo, error) {
	reader, err := ipc.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("reading describe IPC stream: %w", err)
	}
	defer reader.Release()

	functions := []FunctionInfo{}
	var rpcErr *RpcError
	for reader.Next() {
		batch := reader.RecordBatch()
		var meta arrow.Metadata
		if rb, ok := batch.(arrow.RecordBatchWithMetadata); ok {
			meta = rb.Metadata()
		}
		if classifyBatch(meta) == BatchError {
			message, _ := meta.GetValue(MetaLogMessage)
			extra, _ := meta.GetValue(MetaLogExtra)
			requestID, _ := meta.GetValue(MetaRequestID)
			rpcErr = parseErrorBatch(message, extra, requestID)
			continue
		}
		if batch.NumRows() == 0 {
			continue
		}
		idx := batch.Schema().FieldIndices("name")
		if len(idx) == 0 {
			return nil, fmt.Errorf("describe batch: missing %q column", "name")
		}
		col, ok := batch.Column(idx[0]).(*array.String)
		if !ok {
			return nil, fmt.Errorf("describe batch: expected String array, got %T", batch.Column(idx[0]))
		}
		for i := 0; i < col.Len(); i++ {
			name := col.Value(i)
			dot := strings.LastIndexByte(name, '.')
			if dot < 0 {
				functions = append(functions, FunctionInfo{Function: strings.Clone(name)})
				continue
			}
			functions = append(functions, FunctionInfo{
				Package:  strings.Clone(name[:dot]),
				Function: strings.Clone(name[dot+1:]),
			})
		}
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("reading describe batch: %w", err)
	}
	if rpcErr != nil {
		return nil, rpcErr
	}
	return functions, nil
}
