// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package vgirpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{
		"":          "",
		"debug":     LogDebug,
		"Warn":      LogWarn,
		"EXCEPTION": LogException,
	} {
		got, err := ParseLogLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLogLevel("verbose")
	assert.ErrorContains(t, err, `unknown log level "verbose"`)
}

func TestLogLevelEnables(t *testing.T) {
	tests := []struct {
		min, level LogLevel
		want       bool
	}{
		{LogInfo, LogWarn, true},
		{LogInfo, LogInfo, true},
		{LogInfo, LogDebug, false},
		{LogException, LogError, false},
		{LogTrace, LogTrace, true},
		{"", LogTrace, true},
		{LogDebug, "CUSTOM", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.min.Enables(tt.level), "%s enables %s", tt.min, tt.level)
	}
}

func TestCallContextLogs(t *testing.T) {
	call := &CallContext{LogLevel: LogInfo}
	call.ClientLog(LogDebug, "dropped")
	call.ClientLogf(LogDebug, "dropped %d", 2)
	call.ClientLogf(LogWarn, "kept %d", 1)
	call.ClientLog(LogInfo, "with extras", KV{Key: "a", Value: "1"}, KV{Key: "a", Value: "2"})

	logs := call.takeLogs()
	require.Len(t, logs, 2)
	assert.Equal(t, LogMessage{Level: LogWarn, Message: "kept 1"}, logs[0])
	assert.Equal(t, map[string]string{"a": "2"}, logs[1].Extras)
	assert.Empty(t, call.takeLogs())
}
