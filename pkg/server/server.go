// Package server accepts mediarelay connections and serves one request on each.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"k8s.io/klog/v2"

	"github.com/jetstack/mediarelay/internal/handshake"
	"github.com/jetstack/mediarelay/pkg/logs"
)

const metricsShutdownTimeout = 5 * time.Second

// Server serves mediarelay connections.
type Server struct {
	cfg       Config
	keys      *handshake.KeyPair
	storage   Storage
	processor Processor
	sem       *semaphore.Weighted
}

// New validates cfg and returns a server that uses keys for every handshake. The key pair
// is only read after this point.
func New(cfg Config, keys *handshake.KeyPair, storage Storage, processor Processor) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if keys == nil {
		return nil, fmt.Errorf("server key pair cannot be nil")
	}
	if storage == nil || processor == nil {
		return nil, fmt.Errorf("storage and processor are required")
	}

	return &Server{
		cfg:       cfg,
		keys:      keys,
		storage:   storage,
		processor: processor,
		sem:       semaphore.NewWeighted(int64(cfg.MaxConnections)),
	}, nil
}

// ListenAndServe listens on the configured address and, if configured, serves metrics,
// until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address(), err)
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return s.Serve(ctx, ln)
	})
	if s.cfg.MetricsAddress != "" {
		group.Go(func() error {
			return serveMetrics(ctx, s.cfg.MetricsAddress)
		})
	}
	return group.Wait()
}

// Serve accepts connections on ln until ctx is cancelled, then closes ln and waits for the
// connections in flight. At most MaxConnections connections are served at once; further
// clients wait in the listen backlog.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	log := klog.FromContext(ctx).WithName("server")
	if fp, err := handshake.Fingerprint(s.keys.Public()); err == nil {
		log.Info("Accepting connections", "address", ln.Addr().String(), "keyFingerprint", fp)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()

	// In-flight connections finish their request after shutdown starts; the frame
	// timeout bounds how long a silent peer can hold one open.
	connCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return nil
		}

		nc, err := ln.Accept()
		if err != nil {
			s.sem.Release(1)
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				log.Info("Stopped accepting connections")
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				log.Error(err, "Temporary accept failure")
				continue
			}
			return fmt.Errorf("failed to accept connection: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer s.sem.Release(1)
			s.newConn(nc, log).serve(connCtx)
		}()
	}
}

func serveMetrics(ctx context.Context, addr string) error {
	log := klog.FromContext(ctx).WithName("metrics")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(err, "Failed to shut down metrics server")
		}
	}()

	log.V(logs.Debug).Info("Serving metrics", "address", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server failed: %w", err)
	}
	return nil
}
