// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package vgirpc

import (
	"context"
	"fmt"
)

// CallContext is handed to a [Function] for one call. Messages logged
// through it are returned to the caller ahead of the result.
type CallContext struct {
	// Ctx carries the call's cancellation and the client's deadline.
	Ctx       context.Context
	RequestID string
	ServerID  string
	Package   string
	Function  string
	Key       Key
	// LogLevel is the minimum severity the client asked for.
	LogLevel LogLevel

	logs []LogMessage
}

// ClientLog queues a message for the caller if the client's LogLevel
// enables it.
func (ctx *CallContext) ClientLog(level LogLevel, msg string, extras ...KV) {
	if !ctx.LogLevel.Enables(level) {
		return
	}
	m := LogMessage{Level: level, Message: msg}
	for _, kv := range extras {
		if m.Extras == nil {
			m.Extras = make(map[string]string, len(extras))
		}
		m.Extras[kv.Key] = kv.Value
	}
	ctx.logs = append(ctx.logs, m)
}

// ClientLogf is ClientLog with a format string and no extras.
func (ctx *CallContext) ClientLogf(level LogLevel, format string, args ...any) {
	if ctx.LogLevel.Enables(level) {
		ctx.ClientLog(level, fmt.Sprintf(format, args...))
	}
}

// takeLogs hands over the queued messages.
func (ctx *CallContext) takeLogs() []LogMessage {
	logs := ctx.logs
	ctx.logs = nil
	return logs
}
