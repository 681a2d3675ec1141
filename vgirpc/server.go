// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package vgirpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
)

// Function is the handler for one remote function. args holds the positional
// arguments in call order. A void function returns [Nil].
type Function func(ctx context.Context, call *CallContext, args []Value) (Value, error)

// functionInfo stores the registration details for one remote function.
type functionInfo struct {
	Package string
	Name    string
	Handler Function
}

func qualifiedName(packageName, functionName string) string {
	return packageName + "." + functionName
}

// Server is the RPC server that dispatches incoming execute requests to
// registered functions.
type Server struct {
	functions    map[string]*functionInfo
	serverID     string
	serviceName  string
	dispatchHook DispatchHook
	debugErrors  bool
}

// NewServer creates a new RPC server.
func NewServer() *Server {
	return &Server{
		functions: make(map[string]*functionInfo),
	}
}

// SetServerID sets a server identifier included in response metadata.
func (s *Server) SetServerID(id string) {
	s.serverID = id
}

// SetServiceName sets a logical service name used by observability hooks.
func (s *Server) SetServiceName(name string) {
	s.serviceName = name
}

// ServiceName returns the logical service name, or empty string if not set.
func (s *Server) ServiceName() string {
	return s.serviceName
}

// SetDispatchHook registers a hook that is called around each RPC dispatch.
func (s *Server) SetDispatchHook(hook DispatchHook) {
	s.dispatchHook = hook
}

// SetDebugErrors controls whether error responses include full stack traces
// with file paths and function names. When false (the default), error responses
// contain only the error type and message.
func (s *Server) SetDebugErrors(enabled bool) {
	s.debugErrors = enabled
}

// Register makes fn callable as packageName.functionName. It panics on empty
// names, a nil handler or a duplicate registration.
func (s *Server) Register(packageName, functionName string, fn Function) {
	if packageName == "" || functionName == "" {
		panic(fmt.Sprintf("vgirpc: registering %q.%q: package and function names must not be empty", packageName, functionName))
	}
	if fn == nil {
		panic(fmt.Sprintf("vgirpc: registering %q: handler must not be nil", qualifiedName(packageName, functionName)))
	}
	name := qualifiedName(packageName, functionName)
	if _, exists := s.functions[name]; exists {
		panic(fmt.Sprintf("vgirpc: registering %q: already registered", name))
	}
	s.functions[name] = &functionInfo{
		Package: packageName,
		Name:    functionName,
		Handler: fn,
	}
}

// RunStdio runs the server loop reading from stdin and writing to stdout.
// If stdin or stdout is connected to a terminal, a warning is printed to
// stderr.
func (s *Server) RunStdio() {
	// Ignore SIGPIPE so writes to closed pipes return errors instead of
	// killing the process.
	signal.Ignore(syscall.SIGPIPE)

	if isTerminal(os.Stdin) || isTerminal(os.Stdout) {
		fmt.Fprintln(os.Stderr,
			"WARNING: This process communicates via Arrow IPC on stdin/stdout "+
				"and is not intended to be run interactively.\n"+
				"It should be launched as a subprocess by an RPC client.")
	}
	s.Serve(os.Stdin, os.Stdout)
}

// isTerminal reports whether f is connected to a terminal.
func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// Serve runs the server loop on the given reader/writer pair.
func (s *Server) Serve(r io.Reader, w io.Writer) {
	s.ServeWithContext(context.Background(), r, w)
}

// ServeWithContext runs the server loop on the given reader/writer pair with a context.
func (s *Server) ServeWithContext(ctx context.Context, r io.Reader, w io.Writer) {
	for {
		err := s.serveOne(ctx, r, w)
		if err != nil {
			if err == io.EOF {
				return
			}
			// Only log unexpected errors (not broken pipe / connection reset)
			if !isTransportClosed(err) {
				slog.Error("serve loop error", "err", err)
			}
			return
		}
	}
}

// serveOne handles one complete RPC request-response cycle.
func (s *Server) serveOne(ctx context.Context, r io.Reader, w io.Writer) error {
	req, err := ReadRequest(r)
	if err != nil {
		if err == io.EOF {
			return io.EOF
		}
		var rpcErr *RpcError
		if errors.As(err, &rpcErr) {
			_ = WriteErrorResponse(w, nil, rpcErr, s.serverID, "", s.debugErrors)
			return nil // continue serving
		}
		return err // transport error, stop serving
	}

	switch req.Method {
	case MethodDescribe:
		return s.serveDescribe(w, req)
	case MethodExecute:
		_, transportErr := s.dispatch(ctx, w, req)
		return transportErr
	default:
		_ = WriteErrorResponse(w, nil, &RpcError{
			Type:    "ProtocolError",
			Message: fmt.Sprintf("Unknown method: '%s'", req.Method),
		}, s.serverID, req.RequestID, s.debugErrors)
		return nil
	}
}

// dispatch runs one execute request and writes its response to w.
// Returns handlerErr (application error reported to hook) and transportErr
// (I/O error for the serve loop).
func (s *Server) dispatch(ctx context.Context, w io.Writer, req *Request) (handlerErr, transportErr error) {
	info, ok := s.functions[qualifiedName(req.Package, req.Function)]
	if !ok {
		handlerErr = &RpcError{
			Type: "AttributeError",
			Message: fmt.Sprintf("Unknown function: '%s'. Available functions: %v",
				qualifiedName(req.Package, req.Function), s.availableFunctions()),
		}
		return handlerErr, WriteErrorResponse(w, nil, handlerErr, s.serverID, req.RequestID, s.debugErrors)
	}

	dispatchInfo := DispatchInfo{
		Method:            req.Method,
		Package:           info.Package,
		Function:          info.Name,
		ServerID:          s.serverID,
		RequestID:         req.RequestID,
		TransportMetadata: req.Metadata,
	}

	var hookToken HookToken
	var hookActive bool
	stats := &CallStatistics{}

	if s.dispatchHook != nil {
		func() {
			defer func() {
				if rv := recover(); rv != nil {
					slog.Error("dispatch hook start panic", "err", rv)
				}
			}()
			var hookCtx context.Context
			hookCtx, hookToken = s.dispatchHook.OnDispatchStart(ctx, dispatchInfo)
			if hookCtx != nil {
				ctx = hookCtx
			}
			hookActive = true
		}()
	}

	handlerErr, transportErr = s.serveExecute(ctx, w, req, info, stats)

	// Hook end (panic-safe)
	if hookActive {
		func() {
			defer func() {
				if rv := recover(); rv != nil {
					slog.Error("dispatch hook end panic", "err", rv)
				}
			}()
			s.dispatchHook.OnDispatchEnd(ctx, hookToken, dispatchInfo, stats, handlerErr)
		}()
	}

	return handlerErr, transportErr
}

// serveExecute calls the handler and writes either its result or its error.
func (s *Server) serveExecute(ctx context.Context, w io.Writer, req *Request, info *functionInfo, stats *CallStatistics) (handlerErr, transportErr error) {
	stats.RecordInput(1, req.Size)

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	callCtx := &CallContext{
		Ctx:       ctx,
		RequestID: req.RequestID,
		ServerID:  s.serverID,
		Package:   info.Package,
		Function:  info.Name,
		Key:       req.Key,
	}
	// An unknown level enables everything; the client filters again.
	callCtx.LogLevel, _ = ParseLogLevel(req.LogLevel)

	result, callErr := callHandler(ctx, callCtx, info.Handler, req.Args)
	logs := callCtx.takeLogs()

	if callErr != nil {
		if err := WriteErrorResponse(w, logs, callErr, s.serverID, req.RequestID, s.debugErrors); err != nil {
			return callErr, fmt.Errorf("writing error response: %w", err)
		}
		return callErr, nil
	}

	size, err := writeResultResponse(w, logs, result, s.serverID, req.RequestID)
	if err != nil {
		return nil, fmt.Errorf("writing result response: %w", err)
	}
	stats.RecordOutput(1, size)
	return nil, nil
}

// callHandler invokes fn, converting a panic into a RuntimeError.
func callHandler(ctx context.Context, call *CallContext, fn Function, args []Value) (result Value, err error) {
	defer func() {
		if rv := recover(); rv != nil {
			result = Value{}
			err = &RpcError{Type: "RuntimeError", Message: fmt.Sprintf("%v", rv)}
		}
	}()
	return fn(ctx, call, args)
}

// isTransportClosed returns true for errors that indicate the transport was closed normally.
func isTransportClosed(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "EOF")
}

func (s *Server) availableFunctions() []string {
	names := make([]string, 0, len(s.functions))
	for name := range s.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
