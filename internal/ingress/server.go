package ingress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/roach88/txrelay/internal/store"
	"github.com/roach88/txrelay/internal/tx"
)

// Submitter is the subset of *store.Store the ingress server uses.
type Submitter interface {
	Create(ctx context.Context, records []tx.Record) error
	Get(ctx context.Context, id string) (tx.Record, error)
	CountByStatus(ctx context.Context) (map[tx.Status]int, error)
	Ping(ctx context.Context) error
}

var _ Submitter = (*store.Store)(nil)

// Notifier is woken after a successful submission.
type Notifier interface {
	Notify()
}

// Defaults for Config fields left at zero.
const (
	DefaultListen       = "127.0.0.1:8480"
	DefaultRateLimit    = 100.0
	DefaultBurst        = 200
	DefaultMaxBatch     = 1000
	DefaultMaxBodyBytes = 8 << 20
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Config controls the HTTP listener.
type Config struct {
	// Listen is the TCP address to serve on.
	Listen string

	// RateLimit is the sustained requests per second across all clients.
	// Negative disables limiting.
	RateLimit float64

	// Burst is the token bucket size.
	Burst int

	// MaxBatch caps the number of records in one submission.
	MaxBatch int

	// MaxBodyBytes caps the request body size.
	MaxBodyBytes int64
}

func (c *Config) withDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.Burst <= 0 {
		c.Burst = DefaultBurst
	}
	if c.MaxBatch <= 0 {
		c.MaxBatch = DefaultMaxBatch
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
}

// Server is the ingress HTTP server.
type Server struct {
	store    Submitter
	notifier Notifier
	cfg      Config
	ids      IDGenerator
	now      func() time.Time
	limiter  *rate.Limiter // nil when unlimited
	handler  http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithIDGenerator sets the submission id generator. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Server) {
		s.ids = g
	}
}

// WithClock sets the clock used to stamp new records.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// New creates a Server. notifier may be nil.
func New(st Submitter, notifier Notifier, cfg Config, opts ...Option) *Server {
	cfg.withDefaults()

	s := &Server{
		store:    st,
		notifier: notifier,
		cfg:      cfg,
		ids:      UUIDv7Generator{},
		now:      time.Now,
	}
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst)
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/transactions", s.handleSubmit)
	mux.HandleFunc("GET /v1/transactions/{id}", s.handleGet)
	mux.HandleFunc("GET /v1/stats", s.handleStats)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	s.handler = s.limit(mux)

	return s
}

// Config returns the effective configuration.
func (s *Server) Config() Config {
	return s.cfg
}

// Handler returns the HTTP handler with rate limiting applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on Config.Listen and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("ingress listen %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
// It returns nil after a requested shutdown and the listener error otherwise.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("ingress listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("ingress serve: %w", err)
	case <-ctx.Done():
	}

	slog.Info("ingress shutting down")
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("ingress shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ingress serve: %w", err)
	}
	return nil
}

// limit rejects requests beyond the token bucket with 429.
func (s *Server) limit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "request rate exceeded", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}
