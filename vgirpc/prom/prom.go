// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package vgiprom exports client call metrics to Prometheus.
//
//	collector, err := vgiprom.NewCallCollector(prometheus.DefaultRegisterer)
//	client := vgirpc.NewClient(transport, vgirpc.WithCallHook(collector))
package vgiprom

import (
	"context"
	"errors"
	"time"

	"github.com/Query-farm/vgi-llist/vgirpc"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vgi_rpc"

// CallCollector is a [vgirpc.CallHook] that counts calls and observes their
// latency, labelled by package, function and outcome.
type CallCollector struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewCallCollector creates the collector's metrics and registers them with
// reg. A nil reg leaves them unregistered.
func NewCallCollector(reg prometheus.Registerer) (*CallCollector, error) {
	c := &CallCollector{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "calls_total",
			Help:      "Remote function calls by package, function and outcome.",
		}, []string{"package", "function", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "call_duration_seconds",
			Help:      "Latency of remote function calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"package", "function"}),
	}
	if reg != nil {
		for _, col := range []prometheus.Collector{c.calls, c.duration} {
			if err := reg.Register(col); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

// Outcome labels.
const (
	OutcomeOK             = "ok"
	OutcomeRemoteError    = "remote_error"
	OutcomeTransportError = "transport_error"
)

func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, vgirpc.ErrRpc):
		return OutcomeRemoteError
	default:
		return OutcomeTransportError
	}
}

// OnCallStart implements [vgirpc.CallHook].
func (c *CallCollector) OnCallStart(ctx context.Context, _ *vgirpc.CallInfo) (context.Context, vgirpc.HookToken) {
	return ctx, time.Now()
}

// OnCallEnd implements [vgirpc.CallHook].
func (c *CallCollector) OnCallEnd(_ context.Context, token vgirpc.HookToken, info *vgirpc.CallInfo, err error) {
	c.calls.WithLabelValues(info.Package, info.Function, outcome(err)).Inc()
	if start, ok := token.(time.Time); ok {
		c.duration.WithLabelValues(info.Package, info.Function).Observe(time.Since(start).Seconds())
	}
}

// Calls returns the call counter, for tests and custom exposition.
func (c *CallCollector) Calls() *prometheus.CounterVec { return c.calls }
