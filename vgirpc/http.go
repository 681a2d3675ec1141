// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package vgirpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const (
	arrowContentType = "application/vnd.apache.arrow.stream"
	zstdEncoding     = "zstd"
	defaultPrefix    = "/vgi"
	maxErrorBody     = 512
)

// HttpServer serves RPC requests over HTTP. Each request body is one IPC
// request stream; each response body is one IPC response stream.
type HttpServer struct {
	server  *Server
	prefix  string
	mux     *http.ServeMux
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewHttpServer creates a new HTTP server wrapping an RPC server.
func NewHttpServer(server *Server) *HttpServer {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Sprintf("vgirpc: creating zstd decoder: %v", err))
	}
	h := &HttpServer{
		server:  server,
		decoder: decoder,
	}
	h.SetPrefix(defaultPrefix)
	return h
}

// SetPrefix sets the URL path prefix of the RPC endpoints (default "/vgi").
// GET on the prefix serves an HTML landing page and GET prefix/functions
// lists the registered functions.
func (h *HttpServer) SetPrefix(prefix string) {
	h.prefix = strings.TrimRight(prefix, "/")
	h.mux = http.NewServeMux()
	h.mux.HandleFunc(fmt.Sprintf("POST %s/%s", h.prefix, MethodExecute), h.handleExecute)
	h.mux.HandleFunc(fmt.Sprintf("POST %s/%s", h.prefix, MethodDescribe), h.handleDescribe)
	h.mux.HandleFunc(fmt.Sprintf("GET %s/{$}", h.prefix), h.handleLandingPage)
	h.mux.HandleFunc(fmt.Sprintf("GET %s/functions", h.prefix), h.handleDescribePage)
	h.mux.HandleFunc("/", h.handleNotFound)
}

// SetCompressionLevel enables zstd compression of response bodies for
// clients that send "Accept-Encoding: zstd". A level of 0 or less disables it.
func (h *HttpServer) SetCompressionLevel(level int) {
	if h.encoder != nil {
		_ = h.encoder.Close()
		h.encoder = nil
	}
	if level <= 0 {
		return
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		panic(fmt.Sprintf("vgirpc: creating zstd encoder: %v", err))
	}
	h.encoder = encoder
}

// ServeHTTP implements http.Handler.
func (h *HttpServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// readBody returns the decoded request body.
func (h *HttpServer) readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	switch enc := r.Header.Get("Content-Encoding"); enc {
	case "", "identity":
		return body, nil
	case zstdEncoding:
		return h.decoder.DecodeAll(body, nil)
	default:
		return nil, fmt.Errorf("unsupported content encoding: %s", enc)
	}
}

// handleExecute dispatches one execute request.
func (h *HttpServer) handleExecute(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != arrowContentType {
		h.writeHttpError(w, r, http.StatusUnsupportedMediaType,
			fmt.Errorf("unsupported content type: %s", ct))
		return
	}

	body, err := h.readBody(r)
	if err != nil {
		h.writeHttpError(w, r, http.StatusBadRequest, err)
		return
	}

	req, err := ReadRequest(bytes.NewReader(body))
	if err != nil {
		h.writeHttpError(w, r, http.StatusBadRequest, err)
		return
	}
	if req.Method != MethodExecute {
		h.writeHttpError(w, r, http.StatusBadRequest,
			&RpcError{Type: "ProtocolError", Message: fmt.Sprintf("Method '%s' sent to execute endpoint", req.Method)})
		return
	}

	if remote := r.RemoteAddr; remote != "" {
		req.Metadata["remote_addr"] = remote
	}
	if ua := r.UserAgent(); ua != "" {
		req.Metadata["user_agent"] = ua
	}

	var buf bytes.Buffer
	handlerErr, transportErr := h.server.dispatch(r.Context(), &buf, req)
	if transportErr != nil {
		h.writeHttpError(w, r, http.StatusInternalServerError, transportErr)
		return
	}
	h.writeArrow(w, r, httpStatus(handlerErr), buf.Bytes())
}

// httpStatus maps a handler error onto a response status code.
func httpStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var rpcErr *RpcError
	if errors.As(err, &rpcErr) {
		switch rpcErr.Type {
		case "TypeError", "ValueError":
			return http.StatusBadRequest
		case "AttributeError":
			return http.StatusNotFound
		}
	}
	return http.StatusInternalServerError
}

// handleDescribe serves the __describe__ introspection request.
func (h *HttpServer) handleDescribe(w http.ResponseWriter, r *http.Request) {
	body, err := h.readBody(r)
	if err != nil {
		h.writeHttpError(w, r, http.StatusBadRequest, err)
		return
	}

	req, err := ReadRequest(bytes.NewReader(body))
	if err != nil {
		h.writeHttpError(w, r, http.StatusBadRequest, err)
		return
	}

	var buf bytes.Buffer
	if err := h.server.serveDescribe(&buf, req); err != nil {
		h.writeHttpError(w, r, http.StatusInternalServerError, err)
		return
	}
	h.writeArrow(w, r, http.StatusOK, buf.Bytes())
}

func (h *HttpServer) writeHttpError(w http.ResponseWriter, r *http.Request, statusCode int, err error) {
	var buf bytes.Buffer
	_ = WriteErrorResponse(&buf, nil, err, h.server.serverID, "", h.server.debugErrors)
	h.writeArrow(w, r, statusCode, buf.Bytes())
}

func (h *HttpServer) writeArrow(w http.ResponseWriter, r *http.Request, statusCode int, data []byte) {
	w.Header().Set("Content-Type", arrowContentType)
	if h.encoder != nil && acceptsZstd(r) {
		data = h.encoder.EncodeAll(data, nil)
		w.Header().Set("Content-Encoding", zstdEncoding)
	}
	w.WriteHeader(statusCode)
	_, _ = w.Write(data)
}

func acceptsZstd(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.EqualFold(name, zstdEncoding) {
			return true
		}
	}
	return false
}

// HttpTransport is a client [Transport] that POSTs each request to an
// [HttpServer]. It is safe for concurrent use.
type HttpTransport struct {
	baseURL string
	prefix  string
	client  *http.Client
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// HttpOption configures an [HttpTransport].
type HttpOption func(*HttpTransport) error

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) HttpOption {
	return func(t *HttpTransport) error {
		t.client = c
		return nil
	}
}

// WithPrefix sets the URL path prefix of the RPC endpoints (default "/vgi").
func WithPrefix(prefix string) HttpOption {
	return func(t *HttpTransport) error {
		t.prefix = strings.TrimRight(prefix, "/")
		return nil
	}
}

// WithRequestCompression compresses request bodies with zstd at the given
// level. A level of 0 or less leaves requests uncompressed.
func WithRequestCompression(level int) HttpOption {
	return func(t *HttpTransport) error {
		if level <= 0 {
			return nil
		}
		encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if err != nil {
			return fmt.Errorf("creating zstd encoder: %w", err)
		}
		t.encoder = encoder
		return nil
	}
}

// NewHttpTransport creates a transport for the server at baseURL, e.g.
// "http://localhost:8080".
func NewHttpTransport(baseURL string, opts ...HttpOption) (*HttpTransport, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	t := &HttpTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		prefix:  defaultPrefix,
		client:  http.DefaultClient,
		decoder: decoder,
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			decoder.Close()
			return nil, err
		}
	}
	return t, nil
}

// Name implements [Transport].
func (t *HttpTransport) Name() string { return "http" }

// RoundTrip implements [Transport].
func (t *HttpTransport) RoundTrip(ctx context.Context, method string, request []byte, read func(io.Reader) error) error {
	body := request
	if t.encoder != nil {
		body = t.encoder.EncodeAll(request, nil)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+t.prefix+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", arrowContentType)
	httpReq.Header.Set("Accept-Encoding", zstdEncoding)
	if t.encoder != nil {
		httpReq.Header.Set("Content-Encoding", zstdEncoding)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("HTTP round trip: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading HTTP response: %w", err)
	}

	if ct := resp.Header.Get("Content-Type"); ct != arrowContentType {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		return fmt.Errorf("unexpected HTTP %d response (%s): %s", resp.StatusCode, ct, strings.TrimSpace(string(data)))
	}

	if resp.Header.Get("Content-Encoding") == zstdEncoding {
		if data, err = t.decoder.DecodeAll(data, nil); err != nil {
			return fmt.Errorf("decompressing HTTP response: %w", err)
		}
	}
	return read(bytes.NewReader(data))
}

// Close implements [Transport].
func (t *HttpTransport) Close() error {
	if t.encoder != nil {
		_ = t.encoder.Close()
	}
	t.decoder.Close()
	t.client.CloseIdleConnections()
	return nil
}
