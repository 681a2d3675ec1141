// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package conformance provides test fixtures for the vgi_rpc remote
// function protocol. [RegisterFunctions] registers the "conformance"
// package: kind echoes for every [vgirpc.Value] kind, argument-shape probes,
// error propagation, client-directed logging and deadline handling.
//
// [Lists] is an in-memory reference implementation of the server-side
// "llist" package, used to exercise [llist.List] end to end and to run a
// local server for the llist command.
//
// [llist.List]: https://pkg.go.dev/github.com/Query-farm/vgi-llist/llist#List
package conformance
