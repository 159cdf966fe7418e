package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/swarmchat/core"
	"github.com/hupe1980/swarmchat/logging"
	"github.com/hupe1980/swarmchat/pipeline"
)

// ChatService is the orchestrator as seen by the HTTP layer.
type ChatService interface {
	Chat(ctx context.Context, key core.ConversationKey, text string) (pipeline.Result, error)
	Reset(key core.ConversationKey)
}

// Options configures a Server.
type Options struct {
	Addr string
	// RateLimit is the sustained requests per second allowed per client
	// address; zero disables limiting.
	RateLimit         float64
	RateBurst         int
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	// Metrics records HTTP requests; nil disables it.
	Metrics HTTPRecorder
	// Gatherer backs GET /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// Tracer defaults to the global otel tracer "swarmchat/http".
	Tracer trace.Tracer
	Logger logging.Logger
}

// Server serves the chat API.
type Server struct {
	chat    ChatService
	opts    Options
	logger  logging.Logger
	limiter *rateLimiter
	handler http.Handler
}

// New builds a Server around chat.
func New(chat ChatService, optFns ...func(o *Options)) *Server {
	opts := Options{
		Addr:              ":5000",
		ReadHeaderTimeout: 10 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		Logger:            logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("swarmchat/http")
	}

	s := &Server{
		chat:   chat,
		opts:   opts,
		logger: logging.OrNoOp(opts.Logger),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/reset", s.handleReset)
	mux.HandleFunc("GET /health", s.handleHealth)
	if opts.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	middlewares := []Middleware{
		RequestID(),
		Recovery(s.logger),
		RequestLogger(s.logger),
		OTelTracing(opts.Tracer),
	}
	if opts.Metrics != nil {
		middlewares = append(middlewares, Metrics(opts.Metrics))
	}
	if opts.RateLimit > 0 {
		s.limiter = newRateLimiter(opts.RateLimit, opts.RateBurst)
		middlewares = append(middlewares, s.limiter.RateLimit())
	}
	s.handler = Chain(mux, middlewares...)

	return s
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.opts.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	if s.limiter != nil {
		go s.limiter.run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
