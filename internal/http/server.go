package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"fintrack/internal/log"
	"fintrack/internal/services"
	appweb "fintrack/web"
)

// LedgerService is the subset of the ledger service used by the handlers.
type LedgerService interface {
	Resources() []string
	Ledger(ctx context.Context, resource, userID string) (services.LedgerView, error)
	Entry(ctx context.Context, resource, userID, key string) (services.Entry, error)
	Save(ctx context.Context, req services.SaveRequest) (services.SaveResult, error)
	Delete(ctx context.Context, resource, userID, key string) error
	Overview(ctx context.Context, userID string, month time.Time) (services.Overview, error)
}

// ReadinessCheck reports whether a dependency can serve requests.
type ReadinessCheck func(ctx context.Context) error

type Server struct {
	http.Server
	templates   *template.Template
	ledgers     LedgerService
	logger      *log.Logger
	rateLimiter *rateLimiter
	metrics     *securityMetrics
	timeout     time.Duration
	readiness   map[string]ReadinessCheck
	now         func() time.Time
	started     time.Time

	shutdownOnce sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Server) { s.logger = logger.WithComponent(log.ComponentHTTP) }
}

// WithRequestTimeout bounds every store call made by a handler.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// WithReadinessCheck adds a named dependency check to /readyz.
func WithReadinessCheck(name string, check ReadinessCheck) Option {
	return func(s *Server) { s.readiness[name] = check }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, ledgers LedgerService, opts ...Option) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		ledgers:     ledgers,
		logger:      log.New(log.DefaultConfig()).WithComponent(log.ComponentHTTP),
		rateLimiter: newRateLimiter(),
		metrics:     &securityMetrics{},
		timeout:     7 * time.Second,
		readiness:   make(map[string]ReadinessCheck),
		now:         time.Now,
		started:     time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	// Parse embedded templates at startup.
	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.WithComponent(log.ComponentTemplate).Warn("Failed parsing templates",
			log.FieldErrorType, log.ErrorTypeInternal, log.FieldError, err)
	}
	s.templates = t

	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "public, max-age=3600, immutable")
			static.ServeHTTP(w, r)
		}))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /{$}", s.withSecurityHeaders(s.handleDashboard))
	mux.HandleFunc("POST /ui/entries", s.withSecurityHeaders(s.handleDashboardSave))

	mux.HandleFunc("GET /api/resources", s.withSecurityHeaders(s.handleListResources))
	mux.HandleFunc("GET /api/{resource}", s.withSecurityHeaders(s.handleGetLedger))
	mux.HandleFunc("GET /api/{resource}/{key}", s.withSecurityHeaders(s.handleGetEntry))
	mux.HandleFunc("POST /api/{resource}", s.withSecurityHeaders(s.handleSaveEntry))
	mux.HandleFunc("DELETE /api/{resource}/{key}", s.withSecurityHeaders(s.handleDeleteEntry))

	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// withSecurityHeaders adds security headers, rate limiting, and request logging to responses
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" || len(requestID) > 64 {
			requestID = generateRequestID()
		}

		ctx := log.WithRequestID(log.WithLogger(r.Context(), s.logger), requestID)
		r = r.WithContext(ctx)
		logger := log.FromContext(ctx)

		if detectSuspiciousRequest(r, s.metrics) {
			logger.WarnContext(ctx, "Suspicious request",
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldUserAgent, r.Header.Get("User-Agent"))
		}

		// Writes are rate limited per client
		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP, s.metrics) {
			logger.WithComponent(log.ComponentRateLimit).WarnContext(ctx, "Rate limit exceeded", log.FieldClientIP, clientIP, log.FieldMethod, r.Method, log.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, please try again later")
			return
		}

		w.Header().Set("X-Request-ID", requestID)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self' https://unpkg.com; style-src 'self' 'unsafe-inline'; img-src 'self' data:; connect-src 'self'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		fields := log.NewFields().
			WithHTTPResponse(r.Method, r.URL.Path, rw.statusCode, time.Since(start).Milliseconds())
		fields[log.FieldClientIP] = clientIP
		switch {
		case rw.statusCode >= 500:
			logger.ErrorContext(ctx, "Request completed", fields.ToSlice()...)
		case rw.statusCode >= 400:
			logger.WarnContext(ctx, "Request completed", fields.ToSlice()...)
		default:
			logger.InfoContext(ctx, "Request completed", fields.ToSlice()...)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
