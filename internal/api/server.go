// Package api is the external HTTP surface of the service.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ordbridge/teleburnd/internal/guard"
	"github.com/ordbridge/teleburnd/internal/logging"
	"github.com/ordbridge/teleburnd/internal/metrics"
	"github.com/ordbridge/teleburnd/internal/rpc"
	"github.com/ordbridge/teleburnd/internal/simulate"
	"github.com/ordbridge/teleburnd/internal/txbuild"
	"github.com/ordbridge/teleburnd/internal/verify"
	"github.com/ordbridge/teleburnd/pkg/types"
)

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	ListenAddr     string
	AllowedOrigins []string
	TrustProxy     bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ListenAddr:     "127.0.0.1:8480",
		AllowedOrigins: []string{"*"},
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
	}
}

// Server is the external HTTP API server.
type Server struct {
	config     *ServerConfig
	httpServer *http.Server
	mu         sync.Mutex
	running    bool

	builder  *txbuild.Builder
	runner   *simulate.Runner
	verifier *verify.Service
	pool     *rpc.Pool

	limiter   *guard.RateLimiter
	kill      *guard.KillSwitch
	collector *metrics.Collector
}

// NewServer creates the API server. All dependencies are injected; the
// server owns none of their lifecycles.
func NewServer(cfg *ServerConfig) *Server {
	if cfg == nil {
		cfg = DefaultServerConfig()
	}
	return &Server{config: cfg}
}

// SetBuilder sets the transaction builder.
func (s *Server) SetBuilder(b *txbuild.Builder) { s.builder = b }

// SetRunner sets the dry-run runner.
func (s *Server) SetRunner(r *simulate.Runner) { s.runner = r }

// SetVerifier sets the verification service.
func (s *Server) SetVerifier(v *verify.Service) { s.verifier = v }

// SetPool sets the RPC pool used for health reporting.
func (s *Server) SetPool(p *rpc.Pool) { s.pool = p }

// SetRateLimiter sets the request rate limiter.
func (s *Server) SetRateLimiter(l *guard.RateLimiter) { s.limiter = l }

// SetKillSwitch sets the kill switch checked on every mutating request.
func (s *Server) SetKillSwitch(k *guard.KillSwitch) { s.kill = k }

// SetMetrics sets the metrics collector.
func (s *Server) SetMetrics(c *metrics.Collector) { s.collector = c }

// Start starts the HTTP server. Non-blocking; errors after startup are
// logged, not returned.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:              s.config.ListenAddr,
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       s.config.IdleTimeout,
	}

	go func() {
		logging.Info("HTTP API server starting",
			"addr", s.config.ListenAddr,
			logging.Component("api"))

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("HTTP server error",
				logging.Err(err),
				logging.Component("api"))
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
	}
	logging.Info("API server stopped", logging.Component("api"))
	return nil
}

// buildRouter builds the HTTP router with all handlers.
func (s *Server) buildRouter() http.Handler {
	mux := http.NewServeMux()

	// Mutating endpoints get the full middleware chain.
	mux.HandleFunc("/v1/teleburn/seal", s.withMiddleware(s.handleSeal))
	mux.HandleFunc("/v1/teleburn/retire", s.withMiddleware(s.handleRetire))
	mux.HandleFunc("/v1/teleburn/simulate", s.withMiddleware(s.handleSimulate))

	// Read-only endpoints skip the kill switch but keep rate limiting.
	mux.HandleFunc("/v1/verify", s.withReadMiddleware(s.handleVerify))
	mux.HandleFunc("/v1/derive", s.withReadMiddleware(s.handleDerive))

	// Health endpoints bypass limits entirely.
	mux.HandleFunc("/v1/health", s.handleHealth)
	mux.HandleFunc("/health", s.handleHealthCheck)

	if s.collector != nil {
		mux.Handle("/v1/metrics", s.collector.Handler())
	}

	// Wrap the whole tree so preflight OPTIONS to unknown paths still get
	// CORS headers instead of a bare 404.
	return s.globalCORSMiddleware(mux)
}

func (s *Server) globalCORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.setCORSHeaders(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withMiddleware is the chain for mutating endpoints: CORS, kill switch,
// rate limit, then the handler.
func (s *Server) withMiddleware(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.checkKillSwitch(w, r) {
			return
		}
		if !s.checkRateLimit(w, r) {
			return
		}
		s.instrument(handler)(w, r)
	}
}

// withReadMiddleware is the chain for read-only endpoints: rate limit
// only. The kill switch stops retirements, not questions about them.
func (s *Server) withReadMiddleware(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.checkRateLimit(w, r) {
			return
		}
		s.instrument(handler)(w, r)
	}
}

// checkKillSwitch short-circuits the request when the switch is active.
func (s *Server) checkKillSwitch(w http.ResponseWriter, r *http.Request) bool {
	if s.kill == nil {
		return true
	}
	state := s.kill.Check()
	if s.collector != nil {
		s.collector.SetKillSwitch(state.Active)
	}
	if !state.Active {
		return true
	}

	logging.Warn("kill switch rejected request",
		"path", r.URL.Path,
		logging.Component("api"))
	w.Header().Set("Retry-After", strconv.Itoa(int(state.RetryAfter.Seconds())))
	writeErrorCode(w, http.StatusServiceUnavailable, state.Message, types.CodeKillSwitchActive)
	return false
}

// checkRateLimit applies the per-identity window and sets the standard
// rate headers on every response.
func (s *Server) checkRateLimit(w http.ResponseWriter, r *http.Request) bool {
	if s.limiter == nil {
		return true
	}

	identity := guard.Identity(r, s.config.TrustProxy)
	res := s.limiter.Check(identity)

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.Reset.Unix(), 10))

	if res.Allowed {
		return true
	}

	if s.collector != nil {
		s.collector.RecordRateLimited()
	}
	logging.Warn("rate limit exceeded",
		"identity", identity,
		"path", r.URL.Path,
		logging.Component("api"))
	retryAfter := int(time.Until(res.Reset).Seconds()) + 1
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	writeErrorCode(w, http.StatusTooManyRequests, "rate limit exceeded", types.CodeRateLimited)
	return false
}

// instrument wraps a handler with request metrics.
func (s *Server) instrument(handler http.HandlerFunc) http.HandlerFunc {
	if s.collector == nil {
		return handler
	}
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		handler(sw, r)
		s.collector.RecordRequest(r.URL.Path, strconv.Itoa(sw.status), time.Since(start))
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// setCORSHeaders sets CORS headers on the response.
func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = "*"
	}

	allowed := false
	for _, o := range s.config.AllowedOrigins {
		if o == "*" || o == origin {
			allowed = true
			break
		}
	}
	if allowed {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")
	}
}
