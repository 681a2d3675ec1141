// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package llist

import (
	"errors"
	"fmt"

	"github.com/Query-farm/vgi-llist/vgirpc"
)

// ErrDecoding is a sentinel for use with errors.Is to check whether a
// failure was a reply of the wrong shape rather than a remote or transport
// error.
var ErrDecoding = errors.New("llist: unexpected reply shape")

// OpError tags a failure with the list operation that produced it. Err is
// the unmodified error from the invoker, or a *DecodingError.
type OpError struct {
	Op  string // remote function name, e.g. "size"
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("llist %s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// DecodingError reports a reply whose kind does not match the shape the
// operation expects.
type DecodingError struct {
	Want   vgirpc.Kind
	Got    vgirpc.Kind
	Detail string
}

func (e *DecodingError) Error() string {
	msg := fmt.Sprintf("expected %s reply, got %s", e.Want, e.Got)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Is makes errors.Is(err, ErrDecoding) match.
func (e *DecodingError) Is(target error) bool {
	return target == ErrDecoding
}
