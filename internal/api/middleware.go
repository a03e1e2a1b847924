package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"dispatchdesk/internal/logging"
	"dispatchdesk/internal/metrics"
)

func (s *Server) logger(r *http.Request) *slog.Logger {
	return logging.FromContext(r.Context())
}

// requestLog attaches a request-scoped logger and records one line and the
// HTTP metrics per request. Routes are labelled by their chi pattern.
func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		l := s.Log.With("requestId", middleware.GetReqID(r.Context()))
		r = r.WithContext(logging.WithLogger(r.Context(), l))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		code := strconv.Itoa(status)
		dur := time.Since(start)
		metrics.HTTPRequests.WithLabelValues(r.Method, route, code).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, route, code).Observe(dur.Seconds())
		l.Debug("http request", "method", r.Method, "route", route, "status", status, "duration", dur)
	})
}

// operatorLimiter hands out one token bucket per operator.
type operatorLimiter struct {
	mu    sync.Mutex
	rps   rate.Limit
	burst int
	byOp  map[string]*rate.Limiter
}

func newOperatorLimiter(rps float64, burst int) *operatorLimiter {
	if burst < 1 {
		burst = 1
	}
	return &operatorLimiter{rps: rate.Limit(rps), burst: burst, byOp: map[string]*rate.Limiter{}}
}

func (l *operatorLimiter) allow(op string) bool {
	l.mu.Lock()
	lim, ok := l.byOp[op]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.byOp[op] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(principal(r).Operator) {
			w.Header().Set("Retry-After", "1")
			writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) cors(next http.Handler) http.Handler {
	if len(s.allowOrigins) == 0 {
		return next
	}
	allowed := map[string]bool{}
	for _, o := range s.allowOrigins {
		allowed[o] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowed["*"] || allowed[origin]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Operator, X-Role")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
