package litepool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/jirevwe/litepool/pool"
	"github.com/jirevwe/litepool/static"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultAddr     = "127.0.0.1:7878"
	DefaultPoolSize = 4
)

type Server struct {
	addr       string
	timeout    time.Duration
	handler    Handler
	journal    Journal
	logger     *slog.Logger
	workerPool pool.Pool
	metrics    *serverMetrics

	mu       sync.Mutex
	listener net.Listener

	// closed once the server is accepting connections or has failed to listen
	ready     chan struct{}
	readyOnce sync.Once
}

type Options struct {
	Addr     string
	PoolSize int

	// Timeout bounds the whole exchange on one connection, zero disables it
	Timeout time.Duration

	// Handler answers connections. When nil a PageHandler is built from
	// Mux and Pages.
	Handler Handler
	Mux     *Mux
	Pages   static.Source

	// Journal is optional
	Journal Journal

	Logger *slog.Logger

	// Registerer receives pool and server metrics when set
	Registerer prometheus.Registerer
}

func NewServer(opts *Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}

	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}

	if opts.PoolSize == 0 {
		opts.PoolSize = DefaultPoolSize
	}

	if opts.Handler == nil {
		if opts.Mux == nil {
			opts.Mux = DefaultMux()
		}
		if opts.Pages == nil {
			opts.Pages = static.NewDir(".")
		}
		opts.Handler = NewPageHandler(opts.Mux, opts.Pages)
	}

	var poolMetrics *pool.Metrics
	var metrics *serverMetrics
	if opts.Registerer != nil {
		poolMetrics = pool.NewMetrics("litepool", opts.Registerer)
		metrics = newServerMetrics("litepool", opts.Registerer)
	}

	workerPool, err := pool.New(opts.PoolSize, opts.Logger, poolMetrics)
	if err != nil {
		return nil, err
	}

	return &Server{
		addr:       opts.Addr,
		timeout:    opts.Timeout,
		handler:    opts.Handler,
		journal:    opts.Journal,
		logger:     opts.Logger,
		workerPool: workerPool,
		metrics:    metrics,
		ready:      make(chan struct{}),
	}, nil
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		_ = s.workerPool.Stop()
		s.markReady()
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln and hands each one to the worker pool
// until ctx is cancelled. It then closes ln, waits for the pool to finish
// every accepted connection and returns the pool's shutdown error.
// A Server serves at most once.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	serveDone := make(chan struct{})
	defer close(serveDone)

	go func() {
		select {
		case <-ctx.Done():
			s.logger.Info("closing listener")
			_ = ln.Close()
		case <-serveDone:
		}
	}()

	s.logger.Info(fmt.Sprintf("listening on %s", ln.Addr()))
	s.markReady()

	var acceptErr error
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}

			s.metrics.acceptFailed()
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.logger.Warn(err.Error(), "func", "listener.Accept")
				time.Sleep(5 * time.Millisecond)
				continue
			}

			acceptErr = fmt.Errorf("accept failed: %w", err)
			break
		}

		s.metrics.connAccepted()

		task := &connTask{
			// accepted connections are answered even after shutdown starts
			ctx:      context.WithoutCancel(ctx),
			id:       ulid.Make().String(),
			conn:     conn,
			accepted: time.Now(),
			timeout:  s.timeout,
			handler:  s.handler,
			journal:  s.journal,
			metrics:  s.metrics,
			log:      s.logger,
		}

		if err = s.workerPool.AddWork(task); err != nil {
			s.metrics.connRejected()
			s.logger.Error(err.Error(), "request_id", task.id)
			_ = conn.Close()
		}
	}

	_ = ln.Close()
	return errors.Join(acceptErr, s.workerPool.Stop())
}

func (s *Server) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// Addr blocks until the server is listening and returns the bound address.
// It returns nil if ListenAndServe failed to listen.
func (s *Server) Addr() net.Addr {
	<-s.ready

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
