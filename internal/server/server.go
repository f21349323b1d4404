// Package server exposes the ingestion pipeline over HTTP.
package server

import (
	"context"
	"net"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/toricodesthings/ocr-ingest-service/internal/config"
	"github.com/toricodesthings/ocr-ingest-service/internal/httpx"
	"github.com/toricodesthings/ocr-ingest-service/internal/ingest"
)

const Version = "1.0.0"

type Server struct {
	cfg  config.Config
	proc *ingest.Processor
	log  *zap.Logger

	requestSem *semaphore.Weighted
	limiters   atomic.Pointer[sync.Map] // per-IP *rate.Limiter
	metrics    serverMetrics
}

type serverMetrics struct {
	mu            sync.RWMutex
	totalRequests int64
	activeReqs    int64
}

func (m *serverMetrics) incActive() {
	m.mu.Lock()
	m.activeReqs++
	m.totalRequests++
	m.mu.Unlock()
}

func (m *serverMetrics) decActive() {
	m.mu.Lock()
	m.activeReqs--
	m.mu.Unlock()
}

func (m *serverMetrics) get() (total, active int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalRequests, m.activeReqs
}

func New(cfg config.Config, proc *ingest.Processor, log *zap.Logger) *Server {
	if cfg.MaxConcurrentRequests <= 0 {
		cfg.MaxConcurrentRequests = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		cfg:        cfg,
		proc:       proc,
		log:        log,
		requestSem: semaphore.NewWeighted(cfg.MaxConcurrentRequests),
	}
	s.limiters.Store(&sync.Map{})
	return s
}

// Handler returns the full middleware-wrapped mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", httpx.WithMethod(http.MethodGet, s.handleHealth))
	mux.HandleFunc("/metrics", httpx.WithAPIKey(s.cfg.APIKey, s.handleMetrics))

	mux.HandleFunc("/ocr-file", s.guard(s.handleOCRFile))
	mux.HandleFunc("/ocr-json", s.guard(s.handleOCRJSON))
	mux.HandleFunc("/ocr-preview", s.guard(s.handlePreview))

	return httpx.WithLogging(s.log, httpx.WithRecovery(s.log, mux))
}

// guard is the chain shared by every processing endpoint.
func (s *Server) guard(h http.HandlerFunc) http.HandlerFunc {
	return httpx.WithAPIKey(s.cfg.APIKey,
		s.withRateLimit(
			httpx.WithMethod(http.MethodPost,
				s.withConcurrencyLimit(h))))
}

// HTTPServer builds the listener-side server with the configured timeouts.
func (s *Server) HTTPServer() *http.Server {
	maxHeaderBytes := 1 << 20
	if s.cfg.MaxHeaderBytes > 0 {
		maxHeaderBytes = s.cfg.MaxHeaderBytes
	}
	return &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
		ErrorLog:          zap.NewStdLog(s.log),
	}
}

// Housekeeping logs load stats and resets the rate limiter map every
// CleanupInterval until ctx is done.
func (s *Server) Housekeeping(ctx context.Context) {
	interval := s.cfg.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		total, active := s.metrics.get()
		s.log.Info("stats",
			zap.Int64("active", active),
			zap.Int64("total", total),
			zap.Int("goroutines", runtime.NumGoroutine()),
			zap.Uint64("mem_mb", m.Alloc/(1<<20)),
		)
		s.limiters.Store(&sync.Map{})
	}
}

// ---------- Middleware ----------

func (s *Server) withConcurrencyLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.requestSem.Acquire(r.Context(), 1); err != nil {
			httpx.WriteErr(w, http.StatusServiceUnavailable, "capacity", "Service at capacity")
			return
		}
		defer s.requestSem.Release(1)

		s.metrics.incActive()
		defer s.metrics.decActive()

		next(w, r)
	}
}

func (s *Server) withRateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.rateLimiter(clientIP(r)).Allow() {
			w.Header().Set("Retry-After", "60")
			httpx.WriteErr(w, http.StatusTooManyRequests, "rate_limit", "Rate limit exceeded")
			return
		}
		next(w, r)
	}
}

func (s *Server) rateLimiter(ip string) *rate.Limiter {
	m := s.limiters.Load()
	if v, ok := m.Load(ip); ok {
		return v.(*rate.Limiter)
	}

	every := s.cfg.RateLimitEvery
	if every <= 0 {
		every = 600 * time.Millisecond // ~100/min
	}
	burst := s.cfg.RateLimitBurst
	if burst <= 0 {
		burst = 20
	}

	v, _ := m.LoadOrStore(ip, rate.NewLimiter(rate.Every(every), burst))
	return v.(*rate.Limiter)
}

func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		if idx := strings.Index(ip, ","); idx > 0 {
			return strings.TrimSpace(ip[:idx])
		}
		return strings.TrimSpace(ip)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
