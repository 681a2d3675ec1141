// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package conformance

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Query-farm/vgi-llist/vgirpc"
)

// ListPackage is the package name the reference list functions are
// registered under.
const ListPackage = "llist"

// Exception types raised by the reference list functions.
const (
	ErrListNotFound     = "ListNotFound"
	ErrCapacityExceeded = "CapacityExceeded"
	ErrUnknownFilter    = "UnknownFilter"
)

// Lists is an in-memory reference implementation of the server-side list
// package. Each list lives under the key's record and a bin name passed as
// the first argument of every function. Lists is safe for concurrent use.
type Lists struct {
	mu    sync.Mutex
	lists map[string]*storedList
}

type storedList struct {
	items    []vgirpc.Value
	capacity int64
	module   vgirpc.Value
}

// listFunc handles one list function. lst is nil when the list does not
// exist yet; args excludes the bin name.
type listFunc func(call *vgirpc.CallContext, id string, lst *storedList, args []vgirpc.Value) (vgirpc.Value, error)

// NewLists returns an empty list store.
func NewLists() *Lists {
	return &Lists{lists: map[string]*storedList{}}
}

// Register registers the list functions on server under [ListPackage].
func (l *Lists) Register(server *vgirpc.Server) {
	l.register(server, "add", 2, l.add)
	l.register(server, "add_all", 2, l.addAll)
	l.register(server, "remove", 1, existing(l.remove))
	l.register(server, "find", 1, existing(l.find))
	l.register(server, "find_then_filter", 4, existing(l.findThenFilter))
	l.register(server, "scan", 0, existing(l.scan))
	l.register(server, "filter", 3, existing(l.filter))
	l.register(server, "destroy", 0, existing(l.destroy))
	l.register(server, "size", 0, existing(l.size))
	l.register(server, "config", 0, existing(l.config))
	l.register(server, "set_capacity", 1, existing(l.setCapacity))
	l.register(server, "get_capacity", 0, existing(l.getCapacity))
}

// Len returns the number of lists currently stored.
func (l *Lists) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lists)
}

func (l *Lists) register(server *vgirpc.Server, name string, nargs int, fn listFunc) {
	server.Register(ListPackage, name, func(_ context.Context, call *vgirpc.CallContext, args []vgirpc.Value) (vgirpc.Value, error) {
		if len(args) != nargs+1 {
			return vgirpc.Value{}, &vgirpc.RpcError{
				Type:    "TypeError",
				Message: fmt.Sprintf("%s takes %d arguments, got %d", name, nargs+1, len(args)),
			}
		}
		bin, err := stringArg(args, 0, "bin")
		if err != nil {
			return vgirpc.Value{}, err
		}
		id := call.Key.String() + "/" + bin

		l.mu.Lock()
		defer l.mu.Unlock()
		return fn(call, id, l.lists[id], args[1:])
	})
}

// existing rejects calls against a list that has not been created.
func existing(fn listFunc) listFunc {
	return func(call *vgirpc.CallContext, id string, lst *storedList, args []vgirpc.Value) (vgirpc.Value, error) {
		if lst == nil {
			return vgirpc.Value{}, &vgirpc.RpcError{Type: ErrListNotFound, Message: fmt.Sprintf("no list at %s", id)}
		}
		return fn(call, id, lst, args)
	}
}

func (l *Lists) create(id string, lst *storedList, module vgirpc.Value) *storedList {
	if lst != nil {
		return lst
	}
	lst = &storedList{module: module}
	l.lists[id] = lst
	return lst
}

func (lst *storedList) append(items ...vgirpc.Value) error {
	if lst.capacity > 0 && int64(len(lst.items)+len(items)) > lst.capacity {
		return &vgirpc.RpcError{
			Type:    ErrCapacityExceeded,
			Message: fmt.Sprintf("adding %d items to %d would exceed capacity %d", len(items), len(lst.items), lst.capacity),
		}
	}
	lst.items = append(lst.items, items...)
	return nil
}

func (lst *storedList) matches(v vgirpc.Value) []vgirpc.Value {
	out := []vgirpc.Value{}
	for _, item := range lst.items {
		if item.Equal(v) {
			out = append(out, item)
		}
	}
	return out
}

func (l *Lists) add(call *vgirpc.CallContext, id string, lst *storedList, args []vgirpc.Value) (vgirpc.Value, error) {
	call.ClientLog(vgirpc.LogDebug, "add", vgirpc.KV{Key: "list", Value: id}, vgirpc.KV{Key: "value", Value: args[0].String()})
	return vgirpc.Nil(), l.create(id, lst, args[1]).append(args[0])
}

func (l *Lists) addAll(call *vgirpc.CallContext, id string, lst *storedList, args []vgirpc.Value) (vgirpc.Value, error) {
	items, err := listArg(args, 0, "values")
	if err != nil {
		return vgirpc.Value{}, err
	}
	call.ClientLog(vgirpc.LogDebug, "add_all", vgirpc.KV{Key: "list", Value: id}, vgirpc.KV{Key: "count", Value: fmt.Sprint(len(items))})
	return vgirpc.Nil(), l.create(id, lst, args[1]).append(items...)
}

func (l *Lists) remove(_ *vgirpc.CallContext, _ string, lst *storedList, args []vgirpc.Value) (vgirpc.Value, error) {
	kept := lst.items[:0]
	for _, item := range lst.items {
		if !item.Equal(args[0]) {
			kept = append(kept, item)
		}
	}
	lst.items = kept
	return vgirpc.Nil(), nil
}

func (l *Lists) find(_ *vgirpc.CallContext, _ string, lst *storedList, args []vgirpc.Value) (vgirpc.Value, error) {
	return vgirpc.List(lst.matches(args[0])...), nil
}

func (l *Lists) findThenFilter(_ *vgirpc.CallContext, _ string, lst *storedList, args []vgirpc.Value) (vgirpc.Value, error) {
	return applyFilter(lst.matches(args[0]), args[2], args[3])
}

func (l *Lists) scan(_ *vgirpc.CallContext, _ string, lst *storedList, _ []vgirpc.Value) (vgirpc.Value, error) {
	return vgirpc.List(lst.items...), nil
}

func (l *Lists) filter(_ *vgirpc.CallContext, _ string, lst *storedList, args []vgirpc.Value) (vgirpc.Value, error) {
	return applyFilter(lst.items, args[1], args[2])
}

func (l *Lists) destroy(call *vgirpc.CallContext, id string, _ *storedList, _ []vgirpc.Value) (vgirpc.Value, error) {
	delete(l.lists, id)
	call.ClientLog(vgirpc.LogInfo, "destroyed", vgirpc.KV{Key: "list", Value: id})
	return vgirpc.Nil(), nil
}

func (l *Lists) size(_ *vgirpc.CallContext, _ string, lst *storedList, _ []vgirpc.Value) (vgirpc.Value, error) {
	return vgirpc.Int(int64(len(lst.items))), nil
}

func (l *Lists) config(_ *vgirpc.CallContext, _ string, lst *storedList, _ []vgirpc.Value) (vgirpc.Value, error) {
	return vgirpc.StringMap(map[string]vgirpc.Value{
		"Capacity":   vgirpc.Int(lst.capacity),
		"ItemCount":  vgirpc.Int(int64(len(lst.items))),
		"UserModule": lst.module,
	}), nil
}

func (l *Lists) setCapacity(_ *vgirpc.CallContext, _ string, lst *storedList, args []vgirpc.Value) (vgirpc.Value, error) {
	n, err := intArg(args, 0, "capacity")
	if err != nil {
		return vgirpc.Value{}, err
	}
	if n < 0 {
		return vgirpc.Value{}, &vgirpc.RpcError{Type: "ValueError", Message: fmt.Sprintf("capacity must not be negative, got %d", n)}
	}
	lst.capacity = n
	return vgirpc.Nil(), nil
}

func (l *Lists) getCapacity(_ *vgirpc.CallContext, _ string, lst *storedList, _ []vgirpc.Value) (vgirpc.Value, error) {
	return vgirpc.Int(lst.capacity), nil
}

// filters are the named filters understood by filter and find_then_filter.
// Each receives the filter arguments and reports whether an item is kept.
var filters = map[string]func(args []vgirpc.Value) (func(vgirpc.Value) bool, error){
	"all": func([]vgirpc.Value) (func(vgirpc.Value) bool, error) {
		return func(vgirpc.Value) bool { return true }, nil
	},
	"ge": intBound(func(n, bound int64) bool { return n >= bound }),
	"le": intBound(func(n, bound int64) bool { return n <= bound }),
	"kind": func(args []vgirpc.Value) (func(vgirpc.Value) bool, error) {
		if len(args) != 1 {
			return nil, &vgirpc.RpcError{Type: "ValueError", Message: fmt.Sprintf("kind takes 1 argument, got %d", len(args))}
		}
		want, err := stringArg(args, 0, "kind")
		if err != nil {
			return nil, err
		}
		return func(v vgirpc.Value) bool { return v.Kind().String() == want }, nil
	},
}

// FilterNames returns the names of the filters the reference list
// functions support.
func FilterNames() []string {
	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func intBound(keep func(n, bound int64) bool) func(args []vgirpc.Value) (func(vgirpc.Value) bool, error) {
	return func(args []vgirpc.Value) (func(vgirpc.Value) bool, error) {
		if len(args) != 1 {
			return nil, &vgirpc.RpcError{Type: "ValueError", Message: fmt.Sprintf("bound filters take 1 argument, got %d", len(args))}
		}
		bound, err := intArg(args, 0, "bound")
		if err != nil {
			return nil, err
		}
		return func(v vgirpc.Value) bool {
			n, ok := v.AsInt()
			return ok && keep(n, bound)
		}, nil
	}
}

func applyFilter(items []vgirpc.Value, nameArg, argsArg vgirpc.Value) (vgirpc.Value, error) {
	name, ok := nameArg.AsString()
	if !ok {
		return vgirpc.Value{}, &vgirpc.RpcError{Type: "TypeError", Message: fmt.Sprintf("filter name must be a string, got %s", nameArg.Kind())}
	}
	fargs, ok := argsArg.AsList()
	if !ok {
		return vgirpc.Value{}, &vgirpc.RpcError{Type: "TypeError", Message: fmt.Sprintf("filter arguments must be a list, got %s", argsArg.Kind())}
	}
	build, ok := filters[name]
	if !ok {
		return vgirpc.Value{}, &vgirpc.RpcError{Type: ErrUnknownFilter, Message: fmt.Sprintf("unknown filter %q", name)}
	}
	keep, err := build(fargs)
	if err != nil {
		return vgirpc.Value{}, err
	}
	out := []vgirpc.Value{}
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return vgirpc.List(out...), nil
}
