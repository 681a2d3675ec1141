// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Command vgi-llist-conformance serves the conformance fixtures and the
// reference list package. By default it speaks the protocol on stdin and
// stdout; --http serves on a random local port (printed as PORT:n) and
// --unix PATH serves on a Unix socket.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Query-farm/vgi-llist/conformance"
	"github.com/Query-farm/vgi-llist/vgirpc"
)

func main() {
	server := vgirpc.NewServer()
	server.SetDebugErrors(true)
	server.SetServiceName("LlistConformance")
	conformance.RegisterFunctions(server)
	conformance.NewLists().Register(server)

	switch {
	case len(os.Args) > 1 && os.Args[1] == "--http":
		serveHTTP(server)
	case len(os.Args) > 2 && os.Args[1] == "--unix":
		serveUnix(server, os.Args[2])
	default:
		server.RunStdio()
	}
}

func serveHTTP(server *vgirpc.Server) {
	httpServer := vgirpc.NewHttpServer(server)
	httpServer.SetCompressionLevel(3)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to listen: %v\n", err)
		os.Exit(1)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	fmt.Printf("PORT:%d\n", port)
	os.Stdout.Sync()

	srv := &http.Server{Handler: httpServer}

	// Exit cleanly on SIGTERM/SIGINT so coverage data is flushed when built
	// with -cover.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		_ = srv.Shutdown(context.Background())
	}()

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Fprintf(os.Stderr, "http serve error: %v\n", err)
		os.Exit(1)
	}
}

func serveUnix(server *vgirpc.Server, path string) {
	_ = os.Remove(path)

	listener, err := net.Listen("unix", path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to listen on unix socket: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("UNIX:%s\n", path)
	os.Stdout.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			break
		}
		server.ServeWithContext(ctx, conn, conn)
		_ = conn.Close()
	}
	_ = os.Remove(path)
}
