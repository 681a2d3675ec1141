// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Query-farm/vgi-llist/internal/config"
	"github.com/Query-farm/vgi-llist/llist"
	"github.com/Query-farm/vgi-llist/vgirpc"
	vgiotel "github.com/Query-farm/vgi-llist/vgirpc/otel"
)

// Session is a connected client built from the configuration.
type Session struct {
	Config   *config.Config
	Client   *vgirpc.Client
	Logger   *slog.Logger
	Renderer *Renderer

	tracer *sdktrace.TracerProvider
}

// NewSession connects to the configured server. Logs and traces go to
// stderr, results to stdout.
func NewSession(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) (*Session, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	transport, err := newTransport(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := &Session{
		Config:   cfg,
		Logger:   logger,
		Renderer: NewRenderer(stdout, cfg.Output),
		Client: vgirpc.NewClient(transport,
			vgirpc.WithLogger(logger),
			vgirpc.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
		),
	}

	if cfg.Trace {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(stderr), stdouttrace.WithPrettyPrint())
		if err != nil {
			_ = s.Client.Close()
			return nil, fmt.Errorf("creating trace exporter: %w", err)
		}
		s.tracer = sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
		otelCfg := vgiotel.DefaultConfig()
		otelCfg.TracerProvider = s.tracer
		otelCfg.Propagator = propagation.TraceContext{}
		otelCfg.EnableMetrics = false
		otelCfg.ServiceName = "llist"
		vgiotel.InstrumentClient(s.Client, otelCfg)
	}
	return s, nil
}

func newTransport(ctx context.Context, cfg *config.Config) (vgirpc.Transport, error) {
	switch cfg.Transport {
	case config.TransportHTTP:
		t, err := vgirpc.NewHttpTransport(cfg.URL,
			vgirpc.WithPrefix(cfg.Prefix),
			vgirpc.WithRequestCompression(cfg.CompressionLevel),
		)
		if err != nil {
			return nil, err
		}
		return t, nil
	case config.TransportExec:
		argv := cfg.CommandArgs()
		if len(argv) == 0 {
			return nil, fmt.Errorf("command is required for the %s transport", config.TransportExec)
		}
		t, err := vgirpc.SpawnTransport(ctx, argv[0], argv[1:]...)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
}

// Policy returns the per-call policy from the configuration.
func (s *Session) Policy() *vgirpc.Policy {
	// Validate has already rejected unknown levels.
	level, _ := vgirpc.ParseLogLevel(s.Config.RemoteLogLevel)
	return &vgirpc.Policy{Timeout: s.Config.Timeout, LogLevel: level}
}

// List returns the handle for the configured record and bin.
func (s *Session) List() (*llist.List, error) {
	if s.Config.Key == "" {
		return nil, errors.New("key is required (--key or LLIST_KEY)")
	}
	userKey, err := ParseValue(s.Config.Key)
	if err != nil {
		return nil, fmt.Errorf("key: %w", err)
	}
	key := vgirpc.NewKey(s.Config.Namespace, s.Config.Set, userKey)
	return llist.New(s.Client, s.Policy(), key, s.Config.Bin, s.Config.UserModule), nil
}

// Close flushes traces and releases the transport.
func (s *Session) Close(ctx context.Context) error {
	var errs []error
	if s.tracer != nil {
		errs = append(errs, s.tracer.Shutdown(ctx))
	}
	errs = append(errs, s.Client.Close())
	return errors.Join(errs...)
}

// withSession runs fn with a session built from the command's config.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, s *Session) error) error {
	ctx := cmd.Context()
	s, err := NewSession(ctx, GetConfig(ctx), cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	err = fn(ctx, s)
	if closeErr := s.Close(ctx); closeErr != nil {
		s.Logger.Debug("closing session", "err", closeErr)
	}
	return err
}

// withList runs fn with the configured list handle.
func withList(cmd *cobra.Command, fn func(ctx context.Context, l *llist.List, r *Renderer) error) error {
	return withSession(cmd, func(ctx context.Context, s *Session) error {
		l, err := s.List()
		if err != nil {
			return err
		}
		return fn(ctx, l, s.Renderer)
	})
}
