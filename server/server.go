// Package server exposes a running posterarr instance over HTTP and
// triggers scheduled runs.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/s0up4200/posterarr/history"
	"github.com/s0up4200/posterarr/processor"
	"github.com/s0up4200/posterarr/state"
)

// ErrClosed is returned by Trigger once the server has been closed
var ErrClosed = errors.New("server closed")

// Runner executes batch runs
type Runner interface {
	Run(ctx context.Context, names []string) (processor.Summary, error)
	Running() bool
	LastSummary() (processor.Summary, bool)
}

// HistoryReader returns recent changes
type HistoryReader interface {
	Recent(ctx context.Context, limit int, skipDryRun bool) ([]history.Change, error)
}

// Config holds server settings
type Config struct {
	Addr      string
	Libraries []string

	// Interval between scheduled runs; zero disables the scheduler
	Interval   time.Duration
	RunOnStart bool

	CORSOrigins []string
	// RateLimit is the number of API requests allowed per client per minute;
	// zero disables limiting
	RateLimit int
}

// Option configures a Server
type Option func(*Server)

// WithHistory enables GET /api/history
func WithHistory(h HistoryReader) Option {
	return func(s *Server) {
		s.history = h
	}
}

// WithState exposes cooldowns, quota and cache size in the status response
func WithState(st *state.State) Option {
	return func(s *Server) {
		s.state = st
	}
}

// Server serves the HTTP API and owns the background run goroutine
type Server struct {
	runner  Runner
	history HistoryReader
	state   *state.State
	cfg     Config
	logger  zerolog.Logger

	// set while a triggered run goroutine is alive
	busy atomic.Bool
	wg   sync.WaitGroup

	// guards closed and wg.Add against Close
	mu     sync.Mutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a server
func New(runner Runner, cfg Config, logger zerolog.Logger, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		runner: runner,
		cfg:    cfg,
		logger: logger.With().Str("component", "server").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Trigger starts a run in the background. It returns
// processor.ErrRunInProgress when a run is already active and ErrClosed
// after Close.
func (s *Server) Trigger() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.runner.Running() || !s.busy.CompareAndSwap(false, true) {
		return processor.ErrRunInProgress
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.busy.Store(false)

		_, err := s.runner.Run(s.ctx, s.cfg.Libraries)
		switch {
		case err == nil:
		case errors.Is(err, processor.ErrRunInProgress):
			s.logger.Debug().Msg("Run already in progress")
		case errors.Is(err, context.Canceled):
			s.logger.Info().Msg("Run cancelled")
		default:
			s.logger.Error().Err(err).Msg("Run failed")
		}
	}()
	return nil
}

// Start serves HTTP on the configured address and runs the scheduler until
// ctx is cancelled, then shuts down gracefully and waits for an active run
// to stop.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	if s.cfg.Interval > 0 || s.cfg.RunOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.schedule(ctx)
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	s.logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn().Err(err).Msg("HTTP server shutdown")
	}

	s.Close()
	return serveErr
}

// Close cancels any active run and waits for background goroutines
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
}
