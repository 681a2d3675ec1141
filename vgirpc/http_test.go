// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package vgirpc

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// headerRecorder is an http.RoundTripper that keeps the headers of every
// response it sees.
type headerRecorder struct {
	mu      sync.Mutex
	headers []http.Header
}

func (h *headerRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := http.DefaultTransport.RoundTrip(req)
	if err == nil {
		h.mu.Lock()
		h.headers = append(h.headers, resp.Header.Clone())
		h.mu.Unlock()
	}
	return resp, err
}

func (h *headerRecorder) last() http.Header {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.headers[len(h.headers)-1]
}

func newHTTPClient(t *testing.T, url string, opts ...HttpOption) *Client {
	t.Helper()
	transport, err := NewHttpTransport(url, opts...)
	require.NoError(t, err)
	client := NewClient(transport)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestHttpExecute(t *testing.T) {
	ts := httptest.NewServer(NewHttpServer(newTestServer()))
	defer ts.Close()
	client := newHTTPClient(t, ts.URL)
	ctx := context.Background()

	got, err := client.Execute(ctx, nil, NewKey("ns", "set", Int(1)), "test", "echo", String("a"), Int(2))
	require.NoError(t, err)
	assert.True(t, got.Equal(List(String("a"), Int(2))))

	_, err = client.Execute(ctx, nil, Key{}, "test", "fail")
	var rpcErr *RpcError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, "ValueError", rpcErr.Type)

	_, err = client.Execute(ctx, nil, Key{}, "test", "missing")
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, "AttributeError", rpcErr.Type)

	functions, err := client.Describe(ctx)
	require.NoError(t, err)
	assert.Len(t, functions, 6)
}

func TestHttpCompression(t *testing.T) {
	httpServer := NewHttpServer(newTestServer())
	httpServer.SetCompressionLevel(3)
	ts := httptest.NewServer(httpServer)
	defer ts.Close()

	recorder := &headerRecorder{}
	client := newHTTPClient(t, ts.URL,
		WithHTTPClient(&http.Client{Transport: recorder}),
		WithRequestCompression(3),
	)

	payload := String(string(bytes.Repeat([]byte("compressible "), 200)))
	got, err := client.Execute(context.Background(), nil, Key{}, "test", "echo", payload)
	require.NoError(t, err)
	assert.True(t, got.Equal(List(payload)))
	assert.Equal(t, "zstd", recorder.last().Get("Content-Encoding"))
}

func TestHttpServerWithoutCompression(t *testing.T) {
	ts := httptest.NewServer(NewHttpServer(newTestServer()))
	defer ts.Close()

	recorder := &headerRecorder{}
	client := newHTTPClient(t, ts.URL, WithHTTPClient(&http.Client{Transport: recorder}))

	_, err := client.Execute(context.Background(), nil, Key{}, "test", "echo")
	require.NoError(t, err)
	assert.Empty(t, recorder.last().Get("Content-Encoding"))
	assert.Equal(t, arrowContentType, recorder.last().Get("Content-Type"))
}

func TestHttpPrefix(t *testing.T) {
	httpServer := NewHttpServer(newTestServer())
	httpServer.SetPrefix("/rpc/")
	ts := httptest.NewServer(httpServer)
	defer ts.Close()

	client := newHTTPClient(t, ts.URL+"/", WithPrefix("/rpc"))
	_, err := client.Execute(context.Background(), nil, Key{}, "test", "echo")
	require.NoError(t, err)

	wrong := newHTTPClient(t, ts.URL)
	_, err = wrong.Execute(context.Background(), nil, Key{}, "test", "echo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected HTTP 404")
	assert.NotErrorIs(t, err, ErrRpc)
}

func TestHttpStatusCodes(t *testing.T) {
	ts := httptest.NewServer(NewHttpServer(newTestServer()))
	defer ts.Close()

	post := func(t *testing.T, contentType, function string) (*http.Response, *Response) {
		t.Helper()
		var body bytes.Buffer
		require.NoError(t, WriteRequest(&body, &Request{Method: MethodExecute, Package: "test", Function: function}))
		resp, err := http.Post(ts.URL+"/vgi/execute", contentType, &body)
		require.NoError(t, err)
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		decoded, err := ReadResponse(bytes.NewReader(data))
		require.NoError(t, err)
		return resp, decoded
	}

	tests := []struct {
		name        string
		contentType string
		function    string
		wantStatus  int
		wantType    string
	}{
		{"ok", arrowContentType, "echo", http.StatusOK, ""},
		{"value error", arrowContentType, "fail", http.StatusBadRequest, "ValueError"},
		{"unknown function", arrowContentType, "missing", http.StatusNotFound, "AttributeError"},
		{"panic", arrowContentType, "panic", http.StatusInternalServerError, "RuntimeError"},
		{"wrong content type", "application/json", "echo", http.StatusUnsupportedMediaType, "*errors.errorString"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, decoded := post(t, tt.contentType, tt.function)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantType == "" {
				assert.Nil(t, decoded.Err)
				return
			}
			require.NotNil(t, decoded.Err)
			assert.Equal(t, tt.wantType, decoded.Err.Type)
		})
	}
}

func TestHttpRejectsDescribeOnExecuteEndpoint(t *testing.T) {
	ts := httptest.NewServer(NewHttpServer(newTestServer()))
	defer ts.Close()

	var body bytes.Buffer
	require.NoError(t, WriteRequest(&body, &Request{Method: MethodDescribe}))
	resp, err := http.Post(ts.URL+"/vgi/execute", arrowContentType, &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	decoded, err := ReadResponse(resp.Body)
	require.NoError(t, err)
	require.NotNil(t, decoded.Err)
	assert.Equal(t, "ProtocolError", decoded.Err.Type)
}

func TestHttpCompressedRequestBody(t *testing.T) {
	ts := httptest.NewServer(NewHttpServer(newTestServer()))
	defer ts.Close()

	var body bytes.Buffer
	require.NoError(t, WriteRequest(&body, &Request{
		Method: MethodExecute, Package: "test", Function: "echo", Args: []Value{Int(9)},
	}))
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	compressed := enc.EncodeAll(body.Bytes(), nil)
	require.NoError(t, enc.Close())

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/vgi/execute", bytes.NewReader(compressed))
	require.NoError(t, err)
	req.Header.Set("Content-Type", arrowContentType)
	req.Header.Set("Content-Encoding", "zstd")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	decoded, err := ReadResponse(resp.Body)
	require.NoError(t, err)
	assert.True(t, decoded.Result.Equal(List(Int(9))))
}

func TestHttpPassesClientMetadata(t *testing.T) {
	server := newTestServer()
	dispatch := &recordingDispatchHook{ended: make(chan DispatchInfo, 1), stats: make(chan CallStatistics, 1)}
	server.SetDispatchHook(dispatch)
	ts := httptest.NewServer(NewHttpServer(server))
	defer ts.Close()

	client := newHTTPClient(t, ts.URL)
	_, err := client.Execute(context.Background(), nil, Key{}, "test", "echo")
	require.NoError(t, err)

	<-dispatch.stats
	info := <-dispatch.ended
	assert.NotEmpty(t, info.TransportMetadata["remote_addr"])
	assert.Contains(t, info.TransportMetadata["user_agent"], "Go-http-client")
}

func TestAcceptsZstd(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{"", false},
		{"gzip", false},
		{"zstd", true},
		{"gzip, ZSTD;q=0.5", true},
		{"zstdx", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.Header.Set("Accept-Encoding", tt.header)
		assert.Equal(t, tt.want, acceptsZstd(r), tt.header)
	}
}

func TestHttpPages(t *testing.T) {
	server := newTestServer()
	server.SetServiceName("List<Service>")
	ts := httptest.NewServer(NewHttpServer(server))
	defer ts.Close()

	get := func(path string) (int, string, string) {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, resp.Header.Get("Content-Type"), string(body)
	}

	status, ct, body := get("/vgi/")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "text/html; charset=utf-8", ct)
	assert.Contains(t, body, "<h1>List&lt;Service&gt;</h1>")
	assert.Contains(t, body, "6 remote functions in 1 packages")
	assert.Contains(t, body, "srv-test")

	status, _, body = get("/vgi/functions")
	assert.Equal(t, http.StatusOK, status)
	for _, fn := range []string{"deadline", "echo", "fail", "key", "log", "panic"} {
		assert.Contains(t, body, `<span class="fn">`+fn+`</span>`)
	}

	status, ct, body = get("/elsewhere")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "text/html; charset=utf-8", ct)
	assert.Contains(t, body, "POST /vgi/execute")
}

func TestHttpFunctionsPageWithoutFunctions(t *testing.T) {
	ts := httptest.NewServer(NewHttpServer(NewServer()))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/vgi/functions")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "No functions registered.")
	assert.Contains(t, string(body), "<h1>GoRpcServer</h1>")
}
