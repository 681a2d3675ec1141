// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package llist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/Query-farm/vgi-llist/vgirpc"
)

type call struct {
	Policy   *vgirpc.Policy
	Key      vgirpc.Key
	Package  string
	Function string
	Args     []vgirpc.Value
}

// recordingInvoker records every call and answers from reply.
type recordingInvoker struct {
	mu    sync.Mutex
	calls []call
	reply func(fn string) (vgirpc.Value, error)
}

func (r *recordingInvoker) Execute(_ context.Context, policy *vgirpc.Policy, key vgirpc.Key, packageName, functionName string, args ...vgirpc.Value) (vgirpc.Value, error) {
	r.mu.Lock()
	r.calls = append(r.calls, call{
		Policy:   policy,
		Key:      key,
		Package:  packageName,
		Function: functionName,
		Args:     append([]vgirpc.Value(nil), args...),
	})
	r.mu.Unlock()
	if r.reply == nil {
		return vgirpc.Nil(), nil
	}
	return r.reply(functionName)
}

func (r *recordingInvoker) Calls() []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]call(nil), r.calls...)
}

func replyWith(v vgirpc.Value) func(string) (vgirpc.Value, error) {
	return func(string) (vgirpc.Value, error) { return v, nil }
}

var (
	testKey    = vgirpc.NewKey("test", "demo", vgirpc.String("k1"))
	testPolicy = &vgirpc.Policy{LogLevel: vgirpc.LogInfo}
	bin        = vgirpc.String("scores")
	module     = vgirpc.String("my_module")
)

func newTestList(inv Invoker) *List {
	return New(inv, testPolicy, testKey, "scores", "my_module")
}

func assertArgs(t *testing.T, want, got []vgirpc.Value) {
	t.Helper()
	require.Len(t, got, len(want), "argument count")
	for i := range want {
		assert.Truef(t, want[i].Equal(got[i]), "arg %d: want %s, got %s", i, want[i], got[i])
	}
}

func TestOperationsIssueDocumentedCalls(t *testing.T) {
	ctx := context.Background()
	v := vgirpc.Int(7)

	tests := []struct {
		name     string
		reply    vgirpc.Value
		run      func(l *List) error
		function string
		args     []vgirpc.Value
	}{
		{
			name:     "add",
			run:      func(l *List) error { return l.Add(ctx, v) },
			function: "add",
			args:     []vgirpc.Value{bin, v, module},
		},
		{
			name:     "add all",
			run:      func(l *List) error { return l.AddAll(ctx, vgirpc.Int(1), vgirpc.Int(2)) },
			function: "add_all",
			args:     []vgirpc.Value{bin, vgirpc.List(vgirpc.Int(1), vgirpc.Int(2)), module},
		},
		{
			name:     "remove",
			run:      func(l *List) error { return l.Remove(ctx, v) },
			function: "remove",
			args:     []vgirpc.Value{bin, v},
		},
		{
			name:  "find",
			reply: vgirpc.List(v),
			run: func(l *List) error {
				_, err := l.Find(ctx, v)
				return err
			},
			function: "find",
			args:     []vgirpc.Value{bin, v},
		},
		{
			name:  "find then filter",
			reply: vgirpc.List(),
			run: func(l *List) error {
				_, err := l.FindThenFilter(ctx, v, "range", vgirpc.Int(1), vgirpc.Int(9))
				return err
			},
			function: "find_then_filter",
			args:     []vgirpc.Value{bin, v, module, vgirpc.String("range"), vgirpc.List(vgirpc.Int(1), vgirpc.Int(9))},
		},
		{
			name:  "scan",
			reply: vgirpc.List(),
			run: func(l *List) error {
				_, err := l.Scan(ctx)
				return err
			},
			function: "scan",
			args:     []vgirpc.Value{bin},
		},
		{
			name:  "filter",
			reply: vgirpc.List(),
			run: func(l *List) error {
				_, err := l.Filter(ctx, "even", vgirpc.String("x"))
				return err
			},
			function: "filter",
			args:     []vgirpc.Value{bin, module, vgirpc.String("even"), vgirpc.List(vgirpc.String("x"))},
		},
		{
			name:     "destroy",
			run:      func(l *List) error { return l.Destroy(ctx) },
			function: "destroy",
			args:     []vgirpc.Value{bin},
		},
		{
			name:  "size",
			reply: vgirpc.Int(3),
			run: func(l *List) error {
				_, err := l.Size(ctx)
				return err
			},
			function: "size",
			args:     []vgirpc.Value{bin},
		},
		{
			name:  "config",
			reply: vgirpc.StringMap(nil),
			run: func(l *List) error {
				_, err := l.Config(ctx)
				return err
			},
			function: "config",
			args:     []vgirpc.Value{bin},
		},
		{
			name:     "set capacity",
			run:      func(l *List) error { return l.SetCapacity(ctx, 100) },
			function: "set_capacity",
			args:     []vgirpc.Value{bin, vgirpc.Int(100)},
		},
		{
			name:  "get capacity",
			reply: vgirpc.Int(100),
			run: func(l *List) error {
				_, err := l.Capacity(ctx)
				return err
			},
			function: "get_capacity",
			args:     []vgirpc.Value{bin},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &recordingInvoker{reply: replyWith(tt.reply)}
			require.NoError(t, tt.run(newTestList(inv)))

			calls := inv.Calls()
			require.Len(t, calls, 1)
			c := calls[0]
			assert.Equal(t, PackageName, c.Package)
			assert.Equal(t, tt.function, c.Function)
			assert.Same(t, testPolicy, c.Policy)
			assert.Equal(t, testKey.Namespace, c.Key.Namespace)
			assert.Equal(t, testKey.SetName, c.Key.SetName)
			assert.True(t, testKey.UserKey.Equal(c.Key.UserKey))
			assertArgs(t, tt.args, c.Args)
		})
	}
}

func TestEmptyUserModuleIsNil(t *testing.T) {
	inv := &recordingInvoker{}
	l := New(inv, nil, testKey, "scores", "")

	require.NoError(t, l.Add(context.Background(), vgirpc.Int(1)))

	calls := inv.Calls()
	require.Len(t, calls, 1)
	assert.Nil(t, calls[0].Policy)
	require.Len(t, calls[0].Args, 3)
	assert.True(t, calls[0].Args[2].IsNil())
}

func TestAddAllWithNoValuesSendsEmptyList(t *testing.T) {
	inv := &recordingInvoker{}
	require.NoError(t, newTestList(inv).AddAll(context.Background()))

	calls := inv.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Args, 3)
	values := calls[0].Args[1]
	assert.Equal(t, vgirpc.KindList, values.Kind())
	assert.Equal(t, 0, values.Len())
}

func TestFilterArgumentsAreWrappedNotSpread(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		run      func(l *List) error
		slot     int
		wantArgs int
		want     vgirpc.Value
	}{
		{
			name: "filter without args",
			run: func(l *List) error {
				_, err := l.Filter(ctx, "all")
				return err
			},
			slot:     3,
			wantArgs: 4,
			want:     vgirpc.List(),
		},
		{
			name: "filter with three args",
			run: func(l *List) error {
				_, err := l.Filter(ctx, "between", vgirpc.Int(1), vgirpc.Int(5), vgirpc.String("incl"))
				return err
			},
			slot:     3,
			wantArgs: 4,
			want:     vgirpc.List(vgirpc.Int(1), vgirpc.Int(5), vgirpc.String("incl")),
		},
		{
			name: "find then filter without args",
			run: func(l *List) error {
				_, err := l.FindThenFilter(ctx, vgirpc.Int(1), "all")
				return err
			},
			slot:     4,
			wantArgs: 5,
			want:     vgirpc.List(),
		},
		{
			name: "find then filter with a list arg",
			run: func(l *List) error {
				_, err := l.FindThenFilter(ctx, vgirpc.Int(1), "in", vgirpc.List(vgirpc.Int(2)))
				return err
			},
			slot:     4,
			wantArgs: 5,
			want:     vgirpc.List(vgirpc.List(vgirpc.Int(2))),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &recordingInvoker{reply: replyWith(vgirpc.List())}
			require.NoError(t, tt.run(newTestList(inv)))

			calls := inv.Calls()
			require.Len(t, calls, 1)
			require.Len(t, calls[0].Args, tt.wantArgs)
			got := calls[0].Args[tt.slot]
			assert.Truef(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestFilterArgList(t *testing.T) {
	empty := filterArgList(nil)
	assert.Equal(t, vgirpc.KindList, empty.Kind())
	items, ok := empty.AsList()
	require.True(t, ok)
	assert.NotNil(t, items)
	assert.Empty(t, items)

	args := []vgirpc.Value{vgirpc.Int(1), vgirpc.Int(2)}
	packed := filterArgList(args)
	args[0] = vgirpc.Int(99)
	assert.True(t, packed.Equal(vgirpc.List(vgirpc.Int(1), vgirpc.Int(2))), "packing copies the arguments")
}

func TestScalarOperationsRejectOtherShapes(t *testing.T) {
	ctx := context.Background()
	replies := map[string]vgirpc.Value{
		"list":   vgirpc.List(vgirpc.Int(1)),
		"map":    vgirpc.StringMap(map[string]vgirpc.Value{"n": vgirpc.Int(1)}),
		"string": vgirpc.String("1"),
		"nil":    vgirpc.Nil(),
	}
	ops := map[string]func(l *List) (int64, error){
		"size":         func(l *List) (int64, error) { return l.Size(ctx) },
		"get_capacity": func(l *List) (int64, error) { return l.Capacity(ctx) },
	}

	for opName, op := range ops {
		for replyName, reply := range replies {
			t.Run(opName+"/"+replyName, func(t *testing.T) {
				inv := &recordingInvoker{reply: replyWith(reply)}
				n, err := op(newTestList(inv))
				require.Error(t, err)
				assert.Zero(t, n)
				assert.ErrorIs(t, err, ErrDecoding)

				var opErr *OpError
				require.ErrorAs(t, err, &opErr)
				assert.Equal(t, opName, opErr.Op)

				var decErr *DecodingError
				require.ErrorAs(t, err, &decErr)
				assert.Equal(t, vgirpc.KindInt, decErr.Want)
				assert.Equal(t, reply.Kind(), decErr.Got)
				assert.False(t, errors.Is(err, vgirpc.ErrRpc))
			})
		}
	}
}

func TestScalarOperationsDecodeInt(t *testing.T) {
	inv := &recordingInvoker{reply: func(fn string) (vgirpc.Value, error) {
		if fn == "size" {
			return vgirpc.Int(42), nil
		}
		return vgirpc.Int(1000), nil
	}}
	l := newTestList(inv)

	size, err := l.Size(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), size)

	capacity, err := l.Capacity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1000), capacity)
}

func TestListOperationsRejectOtherShapes(t *testing.T) {
	ctx := context.Background()
	ops := map[string]func(l *List) ([]vgirpc.Value, error){
		"find":             func(l *List) ([]vgirpc.Value, error) { return l.Find(ctx, vgirpc.Int(1)) },
		"find_then_filter": func(l *List) ([]vgirpc.Value, error) { return l.FindThenFilter(ctx, vgirpc.Int(1), "f") },
		"scan":             func(l *List) ([]vgirpc.Value, error) { return l.Scan(ctx) },
		"filter":           func(l *List) ([]vgirpc.Value, error) { return l.Filter(ctx, "f") },
	}
	for opName, op := range ops {
		t.Run(opName, func(t *testing.T) {
			inv := &recordingInvoker{reply: replyWith(vgirpc.Int(5))}
			items, err := op(newTestList(inv))
			require.Error(t, err)
			assert.Nil(t, items)
			assert.ErrorIs(t, err, ErrDecoding)

			var decErr *DecodingError
			require.ErrorAs(t, err, &decErr)
			assert.Equal(t, vgirpc.KindList, decErr.Want)
			assert.Equal(t, vgirpc.KindInt, decErr.Got)
		})
	}
}

func TestScanEmptyListIsNotAnError(t *testing.T) {
	inv := &recordingInvoker{reply: replyWith(vgirpc.List())}
	items, err := newTestList(inv).Scan(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestScanPreservesOrder(t *testing.T) {
	want := []vgirpc.Value{vgirpc.Int(3), vgirpc.String("b"), vgirpc.Bytes([]byte{1}), vgirpc.Int(1)}
	inv := &recordingInvoker{reply: replyWith(vgirpc.List(want...))}
	items, err := newTestList(inv).Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, items, len(want))
	for i := range want {
		assert.True(t, want[i].Equal(items[i]), "item %d", i)
	}
}

func TestConfigPreservesEveryPair(t *testing.T) {
	reply := vgirpc.Map(
		vgirpc.MapEntry{Key: vgirpc.String("Capacity"), Value: vgirpc.Int(100)},
		vgirpc.MapEntry{Key: vgirpc.String("StoreMode"), Value: vgirpc.String("list")},
		vgirpc.MapEntry{Key: vgirpc.Bytes([]byte("KeyType")), Value: vgirpc.String("atomic")},
		vgirpc.MapEntry{Key: vgirpc.String("Thresholds"), Value: vgirpc.List(vgirpc.Int(1), vgirpc.Int(2))},
		vgirpc.MapEntry{Key: vgirpc.String("Empty"), Value: vgirpc.Nil()},
	)
	inv := &recordingInvoker{reply: replyWith(reply)}

	config, err := newTestList(inv).Config(context.Background())
	require.NoError(t, err)
	require.Len(t, config, 5)
	assert.True(t, config["Capacity"].Equal(vgirpc.Int(100)))
	assert.True(t, config["StoreMode"].Equal(vgirpc.String("list")))
	assert.True(t, config["KeyType"].Equal(vgirpc.String("atomic")))
	assert.True(t, config["Thresholds"].Equal(vgirpc.List(vgirpc.Int(1), vgirpc.Int(2))))
	assert.True(t, config["Empty"].IsNil())
}

func TestConfigDecodingErrors(t *testing.T) {
	tests := []struct {
		name   string
		reply  vgirpc.Value
		detail string
	}{
		{name: "list reply", reply: vgirpc.List()},
		{name: "int reply", reply: vgirpc.Int(1)},
		{
			name:   "int key",
			reply:  vgirpc.Map(vgirpc.MapEntry{Key: vgirpc.Int(1), Value: vgirpc.Int(2)}),
			detail: "not a string",
		},
		{
			name: "string and bytes keys collide",
			reply: vgirpc.Map(
				vgirpc.MapEntry{Key: vgirpc.String("a"), Value: vgirpc.Int(1)},
				vgirpc.MapEntry{Key: vgirpc.Bytes([]byte("a")), Value: vgirpc.Int(2)},
			),
			detail: "duplicate key",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &recordingInvoker{reply: replyWith(tt.reply)}
			config, err := newTestList(inv).Config(context.Background())
			require.Error(t, err)
			assert.Nil(t, config)
			assert.ErrorIs(t, err, ErrDecoding)
			if tt.detail != "" {
				assert.Contains(t, err.Error(), tt.detail)
			}
		})
	}
}

func TestVoidOperationsIgnoreReply(t *testing.T) {
	inv := &recordingInvoker{reply: replyWith(vgirpc.String("OK"))}
	l := newTestList(inv)
	ctx := context.Background()

	assert.NoError(t, l.Add(ctx, vgirpc.Int(1)))
	assert.NoError(t, l.AddAll(ctx, vgirpc.Int(1)))
	assert.NoError(t, l.Remove(ctx, vgirpc.Int(1)))
	assert.NoError(t, l.Destroy(ctx))
	assert.NoError(t, l.SetCapacity(ctx, 10))
	assert.Len(t, inv.Calls(), 5)
}

func TestInvokerErrorsPropagateUnmodified(t *testing.T) {
	remote := &vgirpc.RpcError{Type: "CapacityExceeded", Message: "capacity exceeded"}
	transport := fmt.Errorf("HTTP round trip: %w", context.DeadlineExceeded)

	for _, cause := range []error{remote, transport} {
		inv := &recordingInvoker{reply: func(string) (vgirpc.Value, error) { return vgirpc.Value{}, cause }}
		l := newTestList(inv)

		err := l.Add(context.Background(), vgirpc.Int(1))
		require.Error(t, err)

		var opErr *OpError
		require.ErrorAs(t, err, &opErr)
		assert.Equal(t, "add", opErr.Op)
		assert.Same(t, cause, opErr.Err)
		assert.False(t, errors.Is(err, ErrDecoding))

		_, err = l.Size(context.Background())
		require.ErrorAs(t, err, &opErr)
		assert.Equal(t, "size", opErr.Op)
		assert.Same(t, cause, opErr.Err)
	}

	inv := &recordingInvoker{reply: func(string) (vgirpc.Value, error) { return vgirpc.Value{}, remote }}
	_, err := newTestList(inv).Scan(context.Background())
	var rpcErr *vgirpc.RpcError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, "CapacityExceeded", rpcErr.Type)
	assert.ErrorIs(t, err, vgirpc.ErrRpc)
	assert.Equal(t, "llist scan: CapacityExceeded: capacity exceeded", err.Error())
}

func TestEveryCallIsAFreshRoundTrip(t *testing.T) {
	n := int64(0)
	var mu sync.Mutex
	inv := &recordingInvoker{reply: func(string) (vgirpc.Value, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return vgirpc.Int(n), nil
	}}
	l := newTestList(inv)

	first, err := l.Size(context.Background())
	require.NoError(t, err)
	second, err := l.Size(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(2), second)
	assert.Len(t, inv.Calls(), 2)
}

func TestConcurrentCallsAreIndependent(t *testing.T) {
	inv := &recordingInvoker{reply: func(fn string) (vgirpc.Value, error) {
		if fn == "size" {
			return vgirpc.Int(10), nil
		}
		return vgirpc.Nil(), nil
	}}
	l := newTestList(inv)

	const workers = 16
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			n, err := l.Size(ctx)
			if err != nil {
				return err
			}
			if n != 10 {
				return fmt.Errorf("size = %d", n)
			}
			return nil
		})
		g.Go(func() error {
			return l.Add(ctx, vgirpc.Int(int64(i)))
		})
	}
	require.NoError(t, g.Wait())

	calls := inv.Calls()
	require.Len(t, calls, 2*workers)

	added := map[int64]bool{}
	sizes := 0
	for _, c := range calls {
		switch c.Function {
		case "size":
			sizes++
			assertArgs(t, []vgirpc.Value{bin}, c.Args)
		case "add":
			require.Len(t, c.Args, 3)
			v, ok := c.Args[1].AsInt()
			require.True(t, ok)
			added[v] = true
			assert.True(t, c.Args[0].Equal(bin))
			assert.True(t, c.Args[2].Equal(module))
		default:
			t.Fatalf("unexpected function %q", c.Function)
		}
	}
	assert.Equal(t, workers, sizes)
	assert.Len(t, added, workers)
}

func TestAccessors(t *testing.T) {
	l := newTestList(&recordingInvoker{})
	assert.Equal(t, "scores", l.Bin())
	assert.Equal(t, "test", l.Key().Namespace)
}
