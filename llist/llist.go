// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package llist is a client handle for a large list stored in one bin of a
// remote record. All list logic runs in the server-side "llist" package; a
// [List] only shapes each operation into one remote call and decodes the
// reply.
//
//	client := vgirpc.NewClient(transport)
//	list := llist.New(client, nil, vgirpc.NewKey("test", "demo", vgirpc.String("k1")), "scores", "")
//	if err := list.AddAll(ctx, vgirpc.Int(1), vgirpc.Int(2)); err != nil { ... }
//	n, err := list.Size(ctx)
package llist

import (
	"context"
	"fmt"

	"github.com/Query-farm/vgi-llist/vgirpc"
)

// PackageName is the remote package every list operation is dispatched to.
const PackageName = "llist"

// Remote function names.
const (
	fnAdd            = "add"
	fnAddAll         = "add_all"
	fnRemove         = "remove"
	fnFind           = "find"
	fnFindThenFilter = "find_then_filter"
	fnScan           = "scan"
	fnFilter         = "filter"
	fnDestroy        = "destroy"
	fnSize           = "size"
	fnConfig         = "config"
	fnSetCapacity    = "set_capacity"
	fnGetCapacity    = "get_capacity"
)

// Invoker performs one remote function call. [vgirpc.Client] implements it.
type Invoker interface {
	Execute(ctx context.Context, policy *vgirpc.Policy, key vgirpc.Key, packageName, functionName string, args ...vgirpc.Value) (vgirpc.Value, error)
}

// List is a handle to the list in one bin of one record. It holds no list
// state and is safe for concurrent use.
type List struct {
	invoker    Invoker
	policy     *vgirpc.Policy
	key        vgirpc.Key
	bin        vgirpc.Value
	userModule vgirpc.Value
}

// New returns a handle for the list stored in binName of the record at key.
// userModule names the server-side module that configures a list when add
// creates it; an empty userModule is sent as nil. policy may be nil.
func New(invoker Invoker, policy *vgirpc.Policy, key vgirpc.Key, binName, userModule string) *List {
	l := &List{
		invoker: invoker,
		policy:  policy,
		key:     key,
		bin:     vgirpc.String(binName),
	}
	if userModule != "" {
		l.userModule = vgirpc.String(userModule)
	}
	return l
}

// Key returns the record the list is bound to.
func (l *List) Key() vgirpc.Key { return l.key }

// Bin returns the bin name the list is stored in.
func (l *List) Bin() string {
	s, _ := l.bin.AsString()
	return s
}

func (l *List) call(ctx context.Context, fn string, args ...vgirpc.Value) (vgirpc.Value, error) {
	result, err := l.invoker.Execute(ctx, l.policy, l.key, PackageName, fn, args...)
	if err != nil {
		return vgirpc.Value{}, &OpError{Op: fn, Err: err}
	}
	return result, nil
}

// exec runs a void operation; the reply value is ignored.
func (l *List) exec(ctx context.Context, fn string, args ...vgirpc.Value) error {
	_, err := l.call(ctx, fn, args...)
	return err
}

func (l *List) callList(ctx context.Context, fn string, args ...vgirpc.Value) ([]vgirpc.Value, error) {
	result, err := l.call(ctx, fn, args...)
	if err != nil {
		return nil, err
	}
	items, err := decodeList(result)
	if err != nil {
		return nil, &OpError{Op: fn, Err: err}
	}
	return items, nil
}

func (l *List) callInt(ctx context.Context, fn string, args ...vgirpc.Value) (int64, error) {
	result, err := l.call(ctx, fn, args...)
	if err != nil {
		return 0, err
	}
	n, err := decodeInt(result)
	if err != nil {
		return 0, &OpError{Op: fn, Err: err}
	}
	return n, nil
}

// Add appends value, creating the list with the user module if needed.
func (l *List) Add(ctx context.Context, value vgirpc.Value) error {
	return l.exec(ctx, fnAdd, l.bin, value, l.userModule)
}

// AddAll appends values in one call. The values travel as a single list
// argument; zero values still make the call with an empty list.
func (l *List) AddAll(ctx context.Context, values ...vgirpc.Value) error {
	return l.exec(ctx, fnAddAll, l.bin, vgirpc.List(values...), l.userModule)
}

// Remove deletes value from the list.
func (l *List) Remove(ctx context.Context, value vgirpc.Value) error {
	return l.exec(ctx, fnRemove, l.bin, value)
}

// Find returns the elements matching value. No match is an empty slice.
func (l *List) Find(ctx context.Context, value vgirpc.Value) ([]vgirpc.Value, error) {
	return l.callList(ctx, fnFind, l.bin, value)
}

// FindThenFilter returns the elements matching value that also pass the
// named server-side filter called with filterArgs.
func (l *List) FindThenFilter(ctx context.Context, value vgirpc.Value, filterName string, filterArgs ...vgirpc.Value) ([]vgirpc.Value, error) {
	return l.callList(ctx, fnFindThenFilter, l.bin, value, l.userModule, vgirpc.String(filterName), filterArgList(filterArgs))
}

// Scan returns every element in list order.
func (l *List) Scan(ctx context.Context) ([]vgirpc.Value, error) {
	return l.callList(ctx, fnScan, l.bin)
}

// Filter returns the elements that pass the named server-side filter called
// with filterArgs.
func (l *List) Filter(ctx context.Context, filterName string, filterArgs ...vgirpc.Value) ([]vgirpc.Value, error) {
	return l.callList(ctx, fnFilter, l.bin, l.userModule, vgirpc.String(filterName), filterArgList(filterArgs))
}

// Destroy removes the list and its bin.
func (l *List) Destroy(ctx context.Context) error {
	return l.exec(ctx, fnDestroy, l.bin)
}

// Size returns the number of elements.
func (l *List) Size(ctx context.Context) (int64, error) {
	return l.callInt(ctx, fnSize, l.bin)
}

// Config returns the list's server-side configuration.
func (l *List) Config(ctx context.Context) (map[string]vgirpc.Value, error) {
	result, err := l.call(ctx, fnConfig, l.bin)
	if err != nil {
		return nil, err
	}
	config, err := decodeStringMap(result)
	if err != nil {
		return nil, &OpError{Op: fnConfig, Err: err}
	}
	return config, nil
}

// SetCapacity sets the maximum number of elements the list holds.
func (l *List) SetCapacity(ctx context.Context, capacity int64) error {
	return l.exec(ctx, fnSetCapacity, l.bin, vgirpc.Int(capacity))
}

// Capacity returns the maximum number of elements the list holds.
func (l *List) Capacity(ctx context.Context) (int64, error) {
	return l.callInt(ctx, fnGetCapacity, l.bin)
}

// filterArgList packs filter arguments into the single list slot the remote
// filter functions take. No arguments give an empty list.
func filterArgList(args []vgirpc.Value) vgirpc.Value {
	return vgirpc.List(args...)
}

func decodeList(v vgirpc.Value) ([]vgirpc.Value, error) {
	items, ok := v.AsList()
	if !ok {
		return nil, &DecodingError{Want: vgirpc.KindList, Got: v.Kind()}
	}
	return items, nil
}

func decodeInt(v vgirpc.Value) (int64, error) {
	n, ok := v.AsInt()
	if !ok {
		return 0, &DecodingError{Want: vgirpc.KindInt, Got: v.Kind()}
	}
	return n, nil
}

// decodeStringMap accepts string or bytes keys.
func decodeStringMap(v vgirpc.Value) (map[string]vgirpc.Value, error) {
	entries, ok := v.AsMap()
	if !ok {
		return nil, &DecodingError{Want: vgirpc.KindMap, Got: v.Kind()}
	}
	out := make(map[string]vgirpc.Value, len(entries))
	for _, e := range entries {
		var key string
		switch e.Key.Kind() {
		case vgirpc.KindString:
			key, _ = e.Key.AsString()
		case vgirpc.KindBytes:
			b, _ := e.Key.AsBytes()
			key = string(b)
		default:
			return nil, &DecodingError{
				Want:   vgirpc.KindMap,
				Got:    vgirpc.KindMap,
				Detail: fmt.Sprintf("key %s is a %s, not a string", e.Key, e.Key.Kind()),
			}
		}
		if _, dup := out[key]; dup {
			return nil, &DecodingError{
				Want:   vgirpc.KindMap,
				Got:    vgirpc.KindMap,
				Detail: fmt.Sprintf("duplicate key %q", key),
			}
		}
		out[key] = e.Value
	}
	return out, nil
}
