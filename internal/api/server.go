// Package api serves the ambrose HTTP API: the per-user task views,
// device polling and provider webhooks.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/nhle/ambrose/internal/refresh"
	"github.com/nhle/ambrose/internal/service"
	ambsync "github.com/nhle/ambrose/internal/sync"
)

// maxBody bounds request bodies, webhook payloads included.
const maxBody = 1 << 20

// UserResolver returns the id of the user making the request, or "" when
// the request is anonymous.
type UserResolver func(r *http.Request) string

// HeaderUser resolves the user from the X-User-ID header, as set by an
// authenticating proxy.
func HeaderUser(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithUserResolver replaces the X-User-ID header lookup.
func WithUserResolver(fn UserResolver) Option {
	return func(s *Server) { s.resolve = fn }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithSyncStatus exposes scheduler state at /api/sync.
func WithSyncStatus(fn func() []ambsync.SyncStatus) Option {
	return func(s *Server) { s.syncStatus = fn }
}

// WithHealthCheck makes /healthz report 503 when check fails.
func WithHealthCheck(check func(ctx context.Context) error) Option {
	return func(s *Server) { s.health = check }
}

// Server holds the handlers and their dependencies.
type Server struct {
	accounts   *service.AccountService
	users      *service.UserService
	logger     *zap.Logger
	resolve    UserResolver
	metrics    http.Handler
	syncStatus func() []ambsync.SyncStatus
	health     func(ctx context.Context) error
}

// NewServer builds the router.
func NewServer(accounts *service.AccountService, users *service.UserService, opts ...Option) http.Handler {
	s := &Server{
		accounts: accounts,
		users:    users,
		logger:   zap.NewNop(),
		resolve:  HeaderUser,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Get("/device/{uuid}/lights", s.deviceVisit)
	r.Route("/hooks", func(r chi.Router) {
		r.Post("/devops/{accountID}", s.releaseHook)
		r.Post("/github/{accountID}/{taskID}", s.githubHook)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireUser)

		r.Get("/accounts", s.listAccounts)
		r.Post("/accounts/{accountID}/refresh", s.refreshAccount)

		r.Get("/tasks", s.listTasks)
		r.Post("/tasks/viewed", s.markViewed)
		r.Get("/tasks/{taskID}", s.getTask)
		r.Patch("/tasks/{taskID}", s.updateTask)
		r.Delete("/tasks/{taskID}", s.deleteTask)

		r.Get("/devices", s.listDevices)
		r.Get("/devices/{deviceID}/lights", s.deviceLights)

		r.Get("/messages", s.listMessages)
		r.Get("/messages/kinds", s.messageKinds)
		r.Get("/messages/{messageID}/render", s.renderMessage)

		r.Get("/gauges", s.listGauges)

		if s.syncStatus != nil {
			r.Get("/sync", s.listSync)
		}
	})

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type syncView struct {
	AccountID string          `json:"account_id"`
	Nickname  string          `json:"nickname"`
	Provider  string          `json:"provider"`
	State     string          `json:"state"`
	LastSync  *time.Time      `json:"last_sync,omitempty"`
	Error     string          `json:"error,omitempty"`
	AuthError bool            `json:"auth_error"`
	Result    *refresh.Result `json:"result,omitempty"`
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listSync(w http.ResponseWriter, _ *http.Request) {
	statuses := s.syncStatus()
	views := make([]syncView, 0, len(statuses))
	for _, st := range statuses {
		v := syncView{
			AccountID: st.AccountID,
			Nickname:  st.Nickname,
			Provider:  string(st.Provider),
			State:     st.State.String(),
			AuthError: st.AuthError,
			Result:    st.Result,
		}
		if !st.LastSync.IsZero() {
			last := st.LastSync
			v.LastSync = &last
		}
		if st.Error != nil {
			v.Error = st.Error.Error()
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, views)
}
