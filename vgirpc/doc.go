// Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package vgirpc implements the vgi_rpc remote function protocol, an
// Apache Arrow IPC-based mechanism for invoking named functions against a
// keyed record.
//
// A call names a package and a function, carries a [Key] (namespace, set
// and user key) and a positional list of [Value] arguments, and returns a
// single [Value] or an [RpcError]. Requests and responses are Arrow IPC
// streams whose per-batch custom metadata carries the method, request ID,
// log level, deadline, log messages and error information.
//
// # Values
//
// [Value] is a tagged union of nil, 64-bit integers, byte strings, UTF-8
// strings, lists and string-keyed maps. Lists and maps nest arbitrarily;
// on the wire they are embedded as IPC bytes inside a struct column.
// [ValueOf] converts plain Go values and [Value.Interface] converts back.
//
// # Server
//
// [Server.Register] binds a [Function] to a package and function name.
// Functions receive a [CallContext] for sending log messages back to the
// caller; returning an error produces an EXCEPTION batch on the response.
// Panics are recovered and reported as RuntimeError.
//
// # Client
//
// [Client.Execute] encodes a request, sends it over a [Transport] and
// decodes the response. Server log messages are relayed to the client's
// slog logger. [CallHook] and [DispatchHook] wrap each call for tracing
// and metrics; see the vgiotel and vgiprom subpackages.
//
// # HTTP transport
//
// [HttpServer] wraps a [Server] and exposes it over HTTP with the
// following URL routes (default prefix /vgi):
//
//	POST /vgi/execute        remote function call
//	POST /vgi/__describe__   function listing (Arrow)
//	GET  /vgi/               HTML landing page
//	GET  /vgi/functions      HTML function listing
//
// All request and response bodies use Content-Type
// application/vnd.apache.arrow.stream and may be zstd-compressed.
// [HttpTransport] is the matching client.
//
// # Transports
//
// The stdio transport ([Server.RunStdio], [Server.Serve]) reads and
// writes Arrow IPC streams on an io.Reader/io.Writer pair. [PipeTransport]
// and [SpawnTransport] are the client side, the latter for worker
// subprocesses.
package vgirpc
