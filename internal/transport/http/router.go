// Package httptransport assembles the HTTP surface: middleware, gates and routes.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"chapel/internal/gate"
	newsletterhandler "chapel/internal/newsletter/handler"
	postshandler "chapel/internal/posts/handler"
	"chapel/internal/promote"
	"chapel/internal/upload"
	"chapel/pkg/domain"
	"chapel/pkg/platform/httputil"
	"chapel/pkg/platform/middleware/admin"
	"chapel/pkg/platform/middleware/metadata"
	"chapel/pkg/platform/middleware/request"
	"chapel/pkg/platform/middleware/requesttime"
	"chapel/pkg/requestcontext"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Dependencies are the handlers and settings the router wires together.
type Dependencies struct {
	Logger *slog.Logger
	Gate   *gate.Gate

	Posts      *postshandler.Handler
	Upload     *upload.Handler
	Newsletter *newsletterhandler.Handler
	Promote    *promote.Handler

	PromoteSecret     string
	Metrics           http.Handler
	HealthChecks      map[string]HealthCheck
	CORSOrigins       []string
	RequestTimeout    time.Duration
	NewsletterTimeout time.Duration
	Production        bool
}

// NewRouter builds the chi router. Every /api/admin/* path sits behind either
// the strict admin gate or the promote shared secret.
func NewRouter(d Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(request.RequestID)
	r.Use(request.Recovery(d.Logger))
	r.Use(request.Logger(d.Logger))
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(securityHeaders(d.Production))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", request.HeaderRequestID},
		ExposedHeaders:   []string{request.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Group(func(r chi.Router) {
		r.Use(request.Timeout(d.RequestTimeout))
		mountBounded(r, d)
	})

	r.Group(func(r chi.Router) {
		r.Use(request.Timeout(d.NewsletterTimeout))
		r.Use(d.Gate.RequireRoles(domain.RoleAdmin, domain.RoleSuperAdmin))
		d.Newsletter.RegisterSend(r)
	})

	return r
}

// mountBounded registers every route that runs under the default request timeout.
func mountBounded(r chi.Router, d Dependencies) {
	r.Get("/healthz", healthHandler(d.HealthChecks, d.Logger))
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}

	d.Posts.RegisterPublic(r)
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(10, time.Minute))
		d.Newsletter.RegisterSubscriptions(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(d.Gate.RequireAdmin())
		r.Post("/api/posts", d.Posts.HandleCreate)
		d.Posts.RegisterAdmin(r)
		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(30, time.Minute))
			d.Upload.Register(r)
		})
		r.HandleFunc("/api/admin/*", func(w http.ResponseWriter, _ *http.Request) {
			httputil.WriteErrorCode(w, http.StatusNotFound, "NOT_FOUND", "Not found")
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(d.Gate.RequireAuth())
		r.Get("/api/me", handleMe)
	})

	r.Group(func(r chi.Router) {
		r.Use(admin.RequireSharedSecret(d.PromoteSecret, d.Logger))
		d.Promote.Register(r)
	})
}

func securityHeaders(production bool) func(http.Handler) http.Handler {
	return secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLRedirect:        production,
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:      !production,
	}).Handler
}

// MeResponse describes the caller as the gate resolved them.
type MeResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

func handleMe(w http.ResponseWriter, r *http.Request) {
	p, ok := requestcontext.PrincipalFrom(r.Context())
	if !ok {
		httputil.WriteErrorCode(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MeResponse{ID: p.UserID, Email: p.Email, Name: p.Name, Role: p.Role.String()})
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		status := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.WarnContext(ctx, "health check failed",
					"request_id", requestcontext.RequestID(ctx),
					"check", name,
					"error", err,
				)
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
