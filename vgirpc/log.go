// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package vgirpc

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// LogLevel is the severity of a server-directed log message, and the
// minimum severity a client asks the server to send back.
type LogLevel string

// Levels, most severe first.
const (
	LogException LogLevel = "EXCEPTION"
	LogError     LogLevel = "ERROR"
	LogWarn      LogLevel = "WARN"
	LogInfo      LogLevel = "INFO"
	LogDebug     LogLevel = "DEBUG"
	LogTrace     LogLevel = "TRACE"
)

var levelOrder = []LogLevel{LogException, LogError, LogWarn, LogInfo, LogDebug, LogTrace}

// ParseLogLevel parses a level name case-insensitively. The empty string
// parses to the empty level, which enables everything.
func ParseLogLevel(s string) (LogLevel, error) {
	if s == "" {
		return "", nil
	}
	level := LogLevel(strings.ToUpper(s))
	if !slices.Contains(levelOrder, level) {
		return "", fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// rank orders levels by severity; unknown levels rank below TRACE.
func (l LogLevel) rank() int {
	if i := slices.Index(levelOrder, l); i >= 0 {
		return i
	}
	return len(levelOrder)
}

// Enables reports whether a message at level passes a minimum of l.
func (l LogLevel) Enables(level LogLevel) bool {
	if l == "" {
		return true
	}
	return level.rank() <= l.rank()
}

// slogLevel maps a protocol level onto the slog level used when a client
// relays server-directed messages.
func slogLevel(level LogLevel) slog.Level {
	switch level {
	case LogException, LogError:
		return slog.LevelError
	case LogWarn:
		return slog.LevelWarn
	case LogInfo:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// KV is one structured extra attached to a log message.
type KV struct {
	Key   string
	Value string
}

// LogMessage is a server-directed log message carried in a zero-row batch
// ahead of the result.
type LogMessage struct {
	Level   LogLevel
	Message string
	Extras  map[string]string
}
