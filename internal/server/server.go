package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/assessment-wizard/internal/apiclient"
	"github.com/jonathan/assessment-wizard/internal/assessment"
	"github.com/jonathan/assessment-wizard/internal/events"
	"github.com/jonathan/assessment-wizard/internal/interview"
	"github.com/jonathan/assessment-wizard/internal/logging"
	"github.com/jonathan/assessment-wizard/internal/reports"
	"github.com/jonathan/assessment-wizard/internal/server/middleware"
	"github.com/jonathan/assessment-wizard/internal/server/ratelimit"
	"github.com/jonathan/assessment-wizard/internal/store"
)

// Options configures a Server.
type Options struct {
	Addr string
	// NewAPI builds the assessment API client for one session. Tokens yields
	// the bearer token most recently presented by the session's owner.
	NewAPI   func(tokens apiclient.TokenSource) assessment.API
	Sessions SessionRepository
	// Store holds per-session payloads. Optional.
	Store *store.Store
	// Events receives every session event in addition to SSE subscribers. Optional.
	Events      events.Publisher
	Reports     *reports.Builder
	Transcriber interview.Transcriber
	Defaults    assessment.Defaults
	// JWT validates bearer tokens. When nil tokens are optional and passed through.
	JWT *JWTService
	// RateLimit defaults to ratelimit.LoadConfig().
	RateLimit     *ratelimit.Config
	PollInterval  time.Duration
	FrameInterval time.Duration
	// SessionIdle closes live sessions unused for this long; they reload
	// from the repository on next access. Zero keeps them until deleted.
	SessionIdle time.Duration
	Logger      *zap.Logger
}

// Server serves the assessment HTTP API.
type Server struct {
	httpServer    *http.Server
	handler       http.Handler
	newAPI        func(apiclient.TokenSource) assessment.API
	sessions      SessionRepository
	store         *store.Store
	broker        *events.Broker
	events        events.Publisher
	reports       *reports.Builder
	transcriber   interview.Transcriber
	defaults      assessment.Defaults
	rateLimiter   *ratelimit.Limiter
	pollInterval  time.Duration
	frameInterval time.Duration
	logger        *zap.Logger
	registry      *registry
}

// New creates a server. NewAPI and Sessions are required.
func New(opts Options) (*Server, error) {
	if opts.NewAPI == nil {
		return nil, errors.New("assessment API factory is required")
	}
	if opts.Sessions == nil {
		return nil, errors.New("session repository is required")
	}
	if opts.RateLimit == nil {
		opts.RateLimit = ratelimit.LoadConfig()
	}
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}

	logger := logging.OrNop(opts.Logger)
	s := &Server{
		newAPI:        opts.NewAPI,
		sessions:      opts.Sessions,
		store:         opts.Store,
		broker:        events.NewBroker(logger),
		events:        opts.Events,
		reports:       opts.Reports,
		transcriber:   opts.Transcriber,
		defaults:      opts.Defaults,
		rateLimiter:   ratelimit.NewLimiter(opts.RateLimit),
		pollInterval:  opts.PollInterval,
		frameInterval: opts.FrameInterval,
		logger:        logger,
	}
	s.registry = newRegistry(s, opts.SessionIdle)

	var validator middleware.TokenValidator
	if opts.JWT != nil {
		validator = opts.JWT.AsTokenValidator()
	}
	auth := middleware.AuthMiddleware(validator)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	api := http.NewServeMux()
	api.HandleFunc("POST /sessions", s.handleCreateSession)
	api.HandleFunc("GET /sessions", s.handleListSessions)
	api.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	api.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)
	api.HandleFunc("GET /sessions/{id}/steps", s.handleListSteps)
	api.HandleFunc("GET /sessions/{id}/events", s.handleEvents)

	api.HandleFunc("POST /sessions/{id}/start", s.handleStart)
	api.HandleFunc("POST /sessions/{id}/back", s.handleBack)
	api.HandleFunc("POST /sessions/{id}/resume", s.handleUploadResume)
	api.HandleFunc("POST /sessions/{id}/analysis/wait", s.handleAwaitAnalysis)
	api.HandleFunc("POST /sessions/{id}/analysis/skip", s.handleSkipAnalysis)
	api.HandleFunc("GET /sessions/{id}/jobs", s.handleJobs)
	api.HandleFunc("POST /sessions/{id}/path", s.handleSelectPath)

	api.HandleFunc("POST /sessions/{id}/sections/{kind}/generate", s.handleGenerate)
	api.HandleFunc("GET /sessions/{id}/sections/current", s.handleSection)
	api.HandleFunc("PUT /sessions/{id}/sections/{kind}/answers/{index}", s.handleAnswer)
	api.HandleFunc("POST /sessions/{id}/sections/{kind}/submit", s.handleSubmit)
	api.HandleFunc("GET /sessions/{id}/results", s.handleResults)
	api.HandleFunc("GET /sessions/{id}/insights", s.handleInsights)

	api.HandleFunc("POST /sessions/{id}/interview/start", s.handleStartInterview)
	api.HandleFunc("POST /sessions/{id}/interview/reply", s.handleReply)
	api.HandleFunc("POST /sessions/{id}/interview/frame", s.handleFrame)
	api.HandleFunc("GET /sessions/{id}/interview", s.handleInterviewStatus)

	api.HandleFunc("POST /sessions/{id}/report", s.handleReport)

	mux.Handle("/sessions", auth(api))
	mux.Handle("/sessions/", auth(api))

	s.handler = s.withRateLimit(s.withLogging(s.withCORS(mux)))
	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // analysis waits and SSE streams outlive any fixed limit
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("addr", ln.Addr().String()))
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	// SSE streams end when the broker closes, so shutdown does not wait on them.
	_ = s.broker.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := s.httpServer.Shutdown(shutdownCtx)
	<-errCh
	s.Close()
	if err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Close releases sessions, subscriptions and the rate limiter. It is idempotent.
func (s *Server) Close() {
	s.rateLimiter.Stop()
	s.registry.closeAll()
	_ = s.broker.Close()
}

// withCORS adds CORS headers.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit rejects clients over their budget with 429.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(s.extractClientID(r), r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for request logs.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush keeps SSE working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// withLogging logs each request with its status and duration.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response.
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("failed to encode JSON response", zap.Error(err))
	}
}

// errorResponse writes an error JSON response.
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// fail maps err to a status and a message fit for end users.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}
	msg := assessment.UserMessage(err)
	var verr *ErrValidation
	switch {
	case errors.As(err, &verr):
		msg = verr.Error()
	case errors.Is(err, ErrSessionNotFound):
		msg = ErrSessionNotFound.Error()
	case status == http.StatusInternalServerError:
		msg = "internal server error"
	}
	s.errorResponse(w, status, msg)
}

// extractClientID identifies the client by remote IP.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}
}

func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}
	if info.RetryAfter > 0 {
		secs := int(info.RetryAfter.Seconds()) + 1
		response["retry_after"] = secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	s.logger.Warn("rate limit exceeded",
		zap.Int("limit", info.Limit),
		zap.Time("reset", info.ResetTime))
	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
