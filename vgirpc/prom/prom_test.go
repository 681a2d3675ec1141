// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package vgiprom

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Query-farm/vgi-llist/vgirpc"
)

func TestOutcome(t *testing.T) {
	assert.Equal(t, OutcomeOK, outcome(nil))
	assert.Equal(t, OutcomeRemoteError, outcome(&vgirpc.RpcError{Type: "ValueError"}))
	assert.Equal(t, OutcomeRemoteError, outcome(errors.Join(errors.New("ctx"), &vgirpc.RpcError{})))
	assert.Equal(t, OutcomeTransportError, outcome(errors.New("broken pipe")))
}

func TestCallCollectorCountsCalls(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCallCollector(reg)
	require.NoError(t, err)

	ctx := context.Background()
	size := &vgirpc.CallInfo{Package: "llist", Function: "size"}
	add := &vgirpc.CallInfo{Package: "llist", Function: "add"}

	for _, call := range []struct {
		info *vgirpc.CallInfo
		err  error
	}{
		{size, nil},
		{size, nil},
		{add, &vgirpc.RpcError{Type: "CapacityExceeded"}},
		{add, errors.New("connection reset")},
	} {
		callCtx, token := c.OnCallStart(ctx, call.info)
		c.OnCallEnd(callCtx, token, call.info, call.err)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Calls().WithLabelValues("llist", "size", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Calls().WithLabelValues("llist", "add", OutcomeRemoteError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Calls().WithLabelValues("llist", "add", OutcomeTransportError)))

	expected := `
# HELP vgi_rpc_client_calls_total Remote function calls by package, function and outcome.
# TYPE vgi_rpc_client_calls_total counter
vgi_rpc_client_calls_total{function="add",outcome="remote_error",package="llist"} 1
vgi_rpc_client_calls_total{function="add",outcome="transport_error",package="llist"} 1
vgi_rpc_client_calls_total{function="size",outcome="ok",package="llist"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "vgi_rpc_client_calls_total"))
	assert.Equal(t, 2, testutil.CollectAndCount(c.duration))
}

func TestCallCollectorDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewCallCollector(reg)
	require.NoError(t, err)

	_, err = NewCallCollector(reg)
	var already prometheus.AlreadyRegisteredError
	assert.ErrorAs(t, err, &already)
}

func TestCallCollectorUnregistered(t *testing.T) {
	c, err := NewCallCollector(nil)
	require.NoError(t, err)
	info := &vgirpc.CallInfo{Package: "llist", Function: "scan"}
	c.OnCallEnd(context.Background(), "not a time", info, nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Calls().WithLabelValues("llist", "scan", OutcomeOK)))
	assert.Equal(t, 0, testutil.CollectAndCount(c.duration))
}
