package vgirpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
)

// ErrRpc is a sentinel for use with errors.Is to check whether any error in a
// chain is an *RpcError.
var ErrRpc = &RpcError{}

// RpcError is an exception reported by the remote side: the function raised,
// the function was not found, or the request was rejected.
type RpcError struct {
	Type      string // e.g. "ValueError", "AttributeError"
	Message   string
	Traceback string
	RequestID string
}

func (e *RpcError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Is supports errors.Is by matching any *RpcError target.
func (e *RpcError) Is(target error) bool {
	_, ok := target.(*RpcError)
	return ok
}

// stackFrame represents a single frame in a Go stack trace,
// matching the Python wire format for error batch log_extra.
type stackFrame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

// errorExtra is the JSON structure written to vgi_rpc.log_extra
// for EXCEPTION-level log batches.
type errorExtra struct {
	ExceptionType    string       `json:"exception_type"`
	ExceptionMessage string       `json:"exception_message"`
	Traceback        string       `json:"traceback,omitempty"`
	Frames           []stackFrame `json:"frames,omitempty"`
}

// exceptionOf returns the wire exception type and message for err. An
// *RpcError anywhere in the chain supplies the type; its own message is used
// only when err is the RpcError itself, so wrapping context is kept.
func exceptionOf(err error) (typ, message string) {
	var rpcErr *RpcError
	if !errors.As(err, &rpcErr) {
		return fmt.Sprintf("%T", err), err.Error()
	}
	if rpcErr == err {
		return rpcErr.Type, rpcErr.Message
	}
	return rpcErr.Type, err.Error()
}

// buildErrorExtra creates the JSON string for vgi_rpc.log_extra from an error.
// Stack information is only included when debug is set.
func buildErrorExtra(err error, debug bool) string {
	var extra errorExtra
	extra.ExceptionType, extra.ExceptionMessage = exceptionOf(err)

	if debug {
		buf := make([]byte, 4096)
		n := runtime.Stack(buf, false)
		extra.Traceback = string(buf[:n])

		pcs := make([]uintptr, 10)
		n = runtime.Callers(2, pcs)
		if n > 0 {
			callersFrames := runtime.CallersFrames(pcs[:n])
			for len(extra.Frames) < 5 {
				frame, more := callersFrames.Next()
				extra.Frames = append(extra.Frames, stackFrame{
					File:     frame.File,
					Line:     frame.Line,
					Function: frame.Function,
				})
				if !more {
					break
				}
			}
		}
	}

	data, _ := json.Marshal(extra)
	return string(data)
}

// parseErrorBatch rebuilds an *RpcError from EXCEPTION batch metadata.
func parseErrorBatch(message, extraJSON, requestID string) *RpcError {
	rpcErr := &RpcError{
		Type:      "RemoteError",
		Message:   message,
		RequestID: requestID,
	}
	if extraJSON == "" {
		return rpcErr
	}
	var extra errorExtra
	if err := json.Unmarshal([]byte(extraJSON), &extra); err != nil {
		return rpcErr
	}
	if extra.ExceptionType != "" {
		rpcErr.Type = extra.ExceptionType
	}
	if extra.ExceptionMessage != "" {
		rpcErr.Message = extra.ExceptionMessage
	}
	rpcErr.Traceback = extra.Traceback
	return rpcErr
}
