// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package vgirpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Key identifies the remote record a call runs against. It is passed
// through to the server unmodified.
type Key struct {
	Namespace string
	SetName   string
	UserKey   Value
}

// NewKey returns a Key for the given namespace, set and user key.
func NewKey(namespace, setName string, userKey Value) Key {
	return Key{Namespace: namespace, SetName: setName, UserKey: userKey}
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Namespace, k.SetName, k.UserKey)
}

// Policy carries per-call settings. A nil *Policy means no timeout and
// server-side default logging.
type Policy struct {
	// Timeout bounds the whole call, including rate limiting. Zero means no
	// limit beyond the caller's context.
	Timeout time.Duration
	// LogLevel is the minimum severity of server-directed log messages the
	// server should send back. Empty sends all.
	LogLevel LogLevel
}

// Transport carries one encoded request to a server and hands the response
// stream to read. Implementations must be safe for concurrent use.
type Transport interface {
	Name() string
	RoundTrip(ctx context.Context, method string, request []byte, read func(io.Reader) error) error
	Close() error
}

// PipeTransport speaks the protocol over a reader/writer pair, such as the
// stdout/stdin of a worker process. Round trips are serialized. Once a round
// trip fails mid-stream the transport is unusable.
type PipeTransport struct {
	mu     sync.Mutex
	r      io.Reader
	w      io.Writer
	closer func() error
	broken error
}

// NewPipeTransport returns a transport that writes requests to w and reads
// responses from r. Close closes w and r when they implement io.Closer.
func NewPipeTransport(r io.Reader, w io.Writer) *PipeTransport {
	return &PipeTransport{
		r: r,
		w: w,
		closer: func() error {
			var errs []error
			if c, ok := w.(io.Closer); ok {
				errs = append(errs, c.Close())
			}
			if c, ok := r.(io.Closer); ok {
				errs = append(errs, c.Close())
			}
			return errors.Join(errs...)
		},
	}
}

// SpawnTransport starts the worker command and returns a transport over its
// stdin and stdout. The worker's stderr is passed through. Close ends the
// worker's input and waits for it to exit.
func SpawnTransport(ctx context.Context, name string, args ...string) (*PipeTransport, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting worker %s: %w", name, err)
	}
	return &PipeTransport{
		r: stdout,
		w: stdin,
		closer: func() error {
			_ = stdin.Close()
			return cmd.Wait()
		},
	}, nil
}

// Name implements [Transport].
func (t *PipeTransport) Name() string { return "pipe" }

// RoundTrip implements [Transport]. The context is checked before the
// request is written; a blocking read cannot be interrupted.
func (t *PipeTransport) RoundTrip(ctx context.Context, _ string, request []byte, read func(io.Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.broken != nil {
		return fmt.Errorf("pipe transport unusable: %w", t.broken)
	}
	if _, err := t.w.Write(request); err != nil {
		t.broken = err
		return fmt.Errorf("writing request: %w", err)
	}
	if err := read(t.r); err != nil {
		t.broken = err
		return err
	}
	return nil
}

// Close implements [Transport].
func (t *PipeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closer == nil {
		return nil
	}
	closer := t.closer
	t.closer = nil
	if t.broken == nil {
		t.broken = io.ErrClosedPipe
	}
	return closer()
}

// Client invokes remote functions over a [Transport]. It is safe for
// concurrent use.
type Client struct {
	transport Transport
	logger    *slog.Logger
	limiter   *rate.Limiter

	mu    sync.RWMutex
	hooks []CallHook
}

// ClientOption configures a [Client].
type ClientOption func(*Client)

// WithLogger sets the logger that receives server-directed log messages.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCallHook adds an observability hook around each call.
func WithCallHook(hook CallHook) ClientOption {
	return func(c *Client) {
		c.hooks = append(c.hooks, hook)
	}
}

// WithRateLimit limits calls to rps per second with the given burst. Calls
// wait for a token. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewClient creates a client over transport.
func NewClient(transport Transport, opts ...ClientOption) *Client {
	c := &Client{
		transport: transport,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddCallHook adds an observability hook around each subsequent call.
func (c *Client) AddCallHook(hook CallHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, hook)
}

// Execute calls packageName.functionName against key with the positional
// args and returns the decoded result. An exception raised by the server is
// returned as an *RpcError, unwrapped.
func (c *Client) Execute(ctx context.Context, policy *Policy, key Key, packageName, functionName string, args ...Value) (Value, error) {
	if packageName == "" || functionName == "" {
		return Value{}, fmt.Errorf("vgirpc: package and function names must not be empty")
	}
	if policy == nil {
		policy = &Policy{}
	}
	if policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, policy.Timeout)
		defer cancel()
	}

	info := &CallInfo{
		Package:   packageName,
		Function:  functionName,
		RequestID: uuid.NewString(),
		Transport: c.transport.Name(),
		Key:       key,
		NumArgs:   len(args),
		Metadata:  map[string]string{},
	}

	ctx, hooks, tokens := c.startHooks(ctx, info)
	result, err := c.execute(ctx, policy, info, args)
	c.endHooks(ctx, hooks, tokens, info, err)
	return result, err
}

func (c *Client) execute(ctx context.Context, policy *Policy, info *CallInfo, args []Value) (Value, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Value{}, fmt.Errorf("%s: rate limit: %w", qualifiedName(info.Package, info.Function), err)
		}
	}

	req := &Request{
		Method:    MethodExecute,
		RequestID: info.RequestID,
		LogLevel:  string(policy.LogLevel),
		Package:   info.Package,
		Function:  info.Function,
		Key:       info.Key,
		Args:      args,
		Metadata:  info.Metadata,
	}
	if deadline, ok := ctx.Deadline(); ok {
		req.Timeout = time.Until(deadline)
		if req.Timeout <= 0 {
			return Value{}, fmt.Errorf("%s: %w", qualifiedName(info.Package, info.Function), context.DeadlineExceeded)
		}
	}

	var buf bytes.Buffer
	if err := WriteRequest(&buf, req); err != nil {
		return Value{}, fmt.Errorf("%s: encoding request: %w", qualifiedName(info.Package, info.Function), err)
	}

	var resp *Response
	err := c.transport.RoundTrip(ctx, MethodExecute, buf.Bytes(), func(r io.Reader) error {
		var err error
		resp, err = ReadResponse(r)
		return err
	})
	if err != nil {
		return Value{}, fmt.Errorf("%s: %w", qualifiedName(info.Package, info.Function), err)
	}

	c.relayLogs(ctx, info, resp)
	if resp.Err != nil {
		if resp.Err.RequestID == "" {
			resp.Err.RequestID = info.RequestID
		}
		return Value{}, resp.Err
	}
	return resp.Result, nil
}

// relayLogs forwards server-directed log messages to the client logger.
func (c *Client) relayLogs(ctx context.Context, info *CallInfo, resp *Response) {
	for _, msg := range resp.Logs {
		attrs := []slog.Attr{
			slog.String("function", qualifiedName(info.Package, info.Function)),
			slog.String("request_id", info.RequestID),
		}
		if resp.ServerID != "" {
			attrs = append(attrs, slog.String("server_id", resp.ServerID))
		}
		for k, v := range msg.Extras {
			attrs = append(attrs, slog.String(k, v))
		}
		c.logger.LogAttrs(ctx, slogLevel(msg.Level), msg.Message, attrs...)
	}
}

func (c *Client) startHooks(ctx context.Context, info *CallInfo) (context.Context, []CallHook, []HookToken) {
	c.mu.RLock()
	hooks := append([]CallHook(nil), c.hooks...)
	c.mu.RUnlock()

	tokens := make([]HookToken, len(hooks))
	for i, hook := range hooks {
		func() {
			defer func() {
				if rv := recover(); rv != nil {
					c.logger.Error("call hook start panic", "err", rv)
				}
			}()
			hookCtx, token := hook.OnCallStart(ctx, info)
			if hookCtx != nil {
				ctx = hookCtx
			}
			tokens[i] = token
		}()
	}
	return ctx, hooks, tokens
}

func (c *Client) endHooks(ctx context.Context, hooks []CallHook, tokens []HookToken, info *CallInfo, err error) {
	for i := len(hooks) - 1; i >= 0; i-- {
		func() {
			defer func() {
				if rv := recover(); rv != nil {
					c.logger.Error("call hook end panic", "err", rv)
				}
			}()
			hooks[i].OnCallEnd(ctx, tokens[i], info, err)
		}()
	}
}

// Describe lists the functions registered on the server.
func (c *Client) Describe(ctx context.Context) ([]FunctionInfo, error) {
	var buf bytes.Buffer
	if err := WriteRequest(&buf, &Request{Method: MethodDescribe, RequestID: uuid.NewString()}); err != nil {
		return nil, fmt.Errorf("describe: encoding request: %w", err)
	}
	var functions []FunctionInfo
	var remoteErr *RpcError
	err := c.transport.RoundTrip(ctx, MethodDescribe, buf.Bytes(), func(r io.Reader) error {
		var err error
		functions, err = ReadDescribe(r)
		// A remote exception still consumed the whole stream.
		if errors.As(err, &remoteErr) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("describe: %w", err)
	}
	if remoteErr != nil {
		return nil, remoteErr
	}
	return functions, nil
}

// Close releases the transport.
func (c *Client) Close() error {
	return c.transport.Close()
}
