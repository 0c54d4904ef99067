// Package httpserver exposes the REST API. Every privileged route is
// registered through Guard.Protect.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/arquivo-manager/internal/limiter"
	"github.com/and161185/arquivo-manager/internal/model"
	"github.com/and161185/arquivo-manager/internal/service"
)

// EventLister reads the security event log.
type EventLister interface {
	List(ctx context.Context, f model.EventFilter) ([]model.SecurityEvent, error)
}

// Instrumenter wraps handlers with request metrics and serves them.
type Instrumenter interface {
	Instrument(next http.Handler) http.Handler
	Handler() http.Handler
}

// Services are the application services behind the routes.
type Services struct {
	Auth      service.AuthService
	Accounts  service.AccountService
	Resources service.ResourceService
	Events    EventLister
}

// Server wires services into HTTP handlers.
type Server struct {
	svc        Services
	guard      *Guard
	log        *zap.Logger
	metrics    Instrumenter
	ready      func(context.Context) error
	maxUpload  int64
	trustProxy bool
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics instruments every route and serves /metrics.
func WithMetrics(m Instrumenter) Option {
	return func(s *Server) { s.metrics = m }
}

// WithReadiness sets the check behind /readyz.
func WithReadiness(fn func(context.Context) error) Option {
	return func(s *Server) { s.ready = fn }
}

// WithMaxUpload caps multipart bodies.
func WithMaxUpload(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithTrustProxy makes X-Forwarded-For the source of client addresses.
func WithTrustProxy(v bool) Option {
	return func(s *Server) { s.trustProxy = v }
}

// New constructs the HTTP server.
func New(svc Services, guard *Guard, log *zap.Logger, opts ...Option) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{svc: svc, guard: guard, log: log, maxUpload: service.DefaultMaxUploadSize}
	for _, o := range opts {
		o(s)
	}
	return s
}

var adminOrOperator = []model.Role{model.RoleAdmin, model.RoleOperator}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	g := s.guard
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("POST /api/auth/register", s.register)
	mux.Handle("GET /api/auth/validate-role", g.Protect(Rule{Action: "validate_role", TokenOnly: true}, s.validateRole))

	mux.Handle("GET /api/users/profile", g.Protect(Rule{Action: "view_profile"}, s.profile))
	mux.Handle("PUT /api/users/profile", g.Protect(Rule{Action: "update_profile"}, s.updateProfile))
	mux.Handle("POST /api/users/invite", g.Protect(Rule{
		Action: "invite_user", AdminOnly: true, Limit: limiter.ActionInviteUser,
	}, s.invite))
	mux.Handle("PUT /api/users/update-user", g.Protect(Rule{
		Action: "update_user", AdminOnly: true, Limit: limiter.ActionUpdateUser,
	}, s.updateUser))

	// Uploads register metadata and grants; the storage tier in front of the API
	// keeps the bytes and serves file_url.
	mux.Handle("POST /api/files/upload", g.Protect(Rule{
		Action: "upload_file", Roles: adminOrOperator, LogInvalidToken: true,
	}, s.upload))
	mux.Handle("DELETE /api/files/{id}", g.Protect(Rule{
		Action: "delete_file", Owner: model.ResourceFile, Limit: limiter.ActionDeleteFile,
	}, s.deleteFile))
	mux.Handle("POST /api/categories", g.Protect(Rule{Action: "create_category", Roles: adminOrOperator}, s.createCategory))
	mux.Handle("PUT /api/categories/{id}", g.Protect(Rule{Action: "update_category", AdminOnly: true}, s.updateCategory))
	mux.Handle("DELETE /api/categories/{id}", g.Protect(Rule{
		Action: "delete_category", Owner: model.ResourceCategory, Limit: limiter.ActionDeleteCategory,
	}, s.deleteCategory))
	mux.Handle("POST /api/groups", g.Protect(Rule{Action: "create_group", Roles: adminOrOperator}, s.createGroup))
	mux.Handle("PUT /api/groups/{id}", g.Protect(Rule{
		Action: "update_group", Owner: model.ResourceGroup, Limit: limiter.ActionUpdateGroup,
	}, s.updateGroup))
	mux.Handle("DELETE /api/groups/{id}", g.Protect(Rule{
		Action: "delete_group", Owner: model.ResourceGroup, Limit: limiter.ActionDeleteGroup,
	}, s.deleteGroup))
	mux.Handle("GET /api/groups/{id}/members", g.Protect(Rule{
		Action: "view_group_members", Owner: model.ResourceGroup,
	}, s.groupMembers))
	mux.Handle("POST /api/groups/{id}/members", g.Protect(Rule{
		Action: "manage_group_members", Owner: model.ResourceGroup, Limit: limiter.ActionManageGroupMembers,
	}, s.setGroupMembers))

	mux.Handle("GET /api/security/events", g.Protect(Rule{Action: "view_security_events", AdminOnly: true}, s.securityEvents))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /readyz", s.readyz)

	var h http.Handler = mux
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
		h = s.metrics.Instrument(mux)
	}
	return chain(h,
		ClientIP(s.trustProxy),
		Logging(s.log),
		Recover(s.log),
		SecurityHeaders,
	)
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.log.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
