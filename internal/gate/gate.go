// Package gate authorizes requests before content handlers run.
//
// Every policy shares one pipeline: read the bearer token, verify it with the
// identity provider, then resolve the user's role record. The policies differ
// only in which tables they consult and which records they accept. Accepted
// requests carry a requestcontext.Principal; rejected ones get a
// {"error","code"} body and never reach the handler.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"chapel/internal/audit"
	"chapel/internal/authz/models"
	"chapel/internal/identity"
	"chapel/pkg/domain"
	"chapel/pkg/email"
	"chapel/pkg/platform/httputil"
	"chapel/pkg/platform/tracing"
	"chapel/pkg/requestcontext"
)

const tracerName = "chapel/internal/gate"

// Policy names used in logs, metrics and spans.
const (
	PolicyAdmin = "admin"
	PolicyRoles = "roles"
	PolicyAuth  = "auth"
)

// DecisionRecorder counts gate outcomes.
type DecisionRecorder interface {
	ObserveGateDecision(policy, outcome, code string)
}

// Gate builds authorization middleware. It holds no per-request state.
type Gate struct {
	verifier IdentityVerifier
	resolver RoleResolver
	logger   *slog.Logger
	recorder DecisionRecorder
	auditor  audit.Publisher
	tracer   trace.Tracer
}

// Option configures a Gate.
type Option func(*Gate)

func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

func WithDecisionRecorder(r DecisionRecorder) Option {
	return func(g *Gate) { g.recorder = r }
}

func WithAuditor(p audit.Publisher) Option {
	return func(g *Gate) { g.auditor = p }
}

func WithTracer(t trace.Tracer) Option {
	return func(g *Gate) { g.tracer = t }
}

func New(verifier IdentityVerifier, resolver RoleResolver, opts ...Option) *Gate {
	g := &Gate{
		verifier: verifier,
		resolver: resolver,
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// decideFunc applies a policy to a verified identity.
type decideFunc func(ctx context.Context, ident *identity.Identity) (*requestcontext.Principal, *rejection)

// RequireAdmin accepts only users whose admin_users row has an administrator role.
func (g *Gate) RequireAdmin() func(http.Handler) http.Handler {
	return g.middleware(PolicyAdmin, g.decideAdmin)
}

// RequireRoles accepts users whose admin_users or profiles row carries one of
// roles. The admin row is checked first. It panics when roles is empty.
func (g *Gate) RequireRoles(roles ...domain.Role) func(http.Handler) http.Handler {
	if len(roles) == 0 {
		panic("gate: RequireRoles needs at least one role")
	}
	allowed := append([]domain.Role(nil), roles...)
	return g.middleware(PolicyRoles, func(ctx context.Context, ident *identity.Identity) (*requestcontext.Principal, *rejection) {
		return g.decideRoles(ctx, ident, allowed)
	})
}

// RequireAuth accepts any verified token. The role comes from profiles when a
// row exists and defaults to user otherwise.
func (g *Gate) RequireAuth() func(http.Handler) http.Handler {
	return g.middleware(PolicyAuth, g.decideAuth)
}

func (g *Gate) middleware(policy string, decide decideFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ident, rej := g.evaluate(r, policy, decide)
			if rej != nil {
				g.writeRejection(w, r, policy, ident, rej)
				return
			}

			g.recordDecision(policy, "allow", "")
			g.logger.DebugContext(r.Context(), "gate accepted",
				"request_id", requestcontext.RequestID(r.Context()),
				"policy", policy,
				"user_id", principal.UserID,
				"role", principal.Role,
			)
			next.ServeHTTP(w, r.WithContext(requestcontext.WithPrincipal(r.Context(), *principal)))
		})
	}
}

// evaluate runs header extraction, verification and the policy decision.
// A panic anywhere in these steps becomes AUTH_FAILED.
func (g *Gate) evaluate(r *http.Request, policy string, decide decideFunc) (principal *requestcontext.Principal, ident *identity.Identity, rej *rejection) {
	ctx, span := tracing.StartSpan(r.Context(), g.tracer, "gate."+policy,
		trace.WithAttributes(tracing.AttrPolicy.String(policy)))
	defer func() {
		if rec := recover(); rec != nil {
			principal = nil
			rej = errAuthFailed(fmt.Errorf("panic in gate: %v", rec))
		}
		if rej != nil {
			span.SetAttributes(tracing.AttrCode.String(rej.code))
			if rej.status >= http.StatusInternalServerError {
				tracing.RecordError(span, rej.cause)
			}
		}
		span.End()
	}()

	token, rej := bearerToken(r.Header)
	if rej != nil {
		return nil, nil, rej
	}

	ident, err := g.verifier.Verify(ctx, token)
	if err != nil {
		return nil, nil, fromVerifyError(err)
	}
	if ident == nil || ident.ID == "" {
		return nil, nil, reject(http.StatusUnauthorized, CodeUserNotFound, "User not found")
	}
	span.SetAttributes(tracing.AttrUserID.String(ident.ID))

	principal, rej = decide(ctx, ident)
	return principal, ident, rej
}

func bearerToken(h http.Header) (string, *rejection) {
	values, present := h["Authorization"]
	if !present || len(values) == 0 || values[0] == "" {
		return "", errHeaderMissing()
	}
	// net/http trims trailing whitespace, so "Bearer " arrives as "Bearer".
	if values[0] == "Bearer" {
		return "", errTokenEmpty()
	}
	token, ok := strings.CutPrefix(values[0], "Bearer ")
	if !ok {
		return "", errHeaderInvalid()
	}
	if strings.TrimSpace(token) == "" {
		return "", errTokenEmpty()
	}
	return token, nil
}

func (g *Gate) decideAdmin(ctx context.Context, ident *identity.Identity) (*requestcontext.Principal, *rejection) {
	rec, err := g.resolver.ResolveAdmin(ctx, ident.ID)
	if err != nil {
		return nil, fromResolveError(err)
	}
	if rec == nil {
		return nil, errNotAdmin()
	}
	if !rec.Role.IsAdmin() {
		return nil, errInsufficientRole()
	}
	return principalFrom(ident, rec), nil
}

func (g *Gate) decideRoles(ctx context.Context, ident *identity.Identity, allowed []domain.Role) (*requestcontext.Principal, *rejection) {
	admin, err := g.resolver.ResolveAdmin(ctx, ident.ID)
	if err != nil {
		return nil, fromResolveError(err)
	}
	if admin != nil && admin.Role.In(allowed) {
		return principalFrom(ident, admin), nil
	}

	profile, err := g.resolver.ResolveProfile(ctx, ident.ID)
	if err != nil {
		return nil, fromResolveError(err)
	}
	if profile != nil && profile.Role.In(allowed) {
		return principalFrom(ident, profile), nil
	}
	return nil, errRoleRequired(allowed)
}

func (g *Gate) decideAuth(ctx context.Context, ident *identity.Identity) (*requestcontext.Principal, *rejection) {
	profile, err := g.resolver.ResolveProfile(ctx, ident.ID)
	if err != nil {
		return nil, fromResolveError(err)
	}
	if profile == nil {
		return &requestcontext.Principal{
			UserID: ident.ID,
			Email:  ident.Email,
			Name:   email.DisplayName(ident.Email),
			Role:   domain.RoleUser,
		}, nil
	}
	return principalFrom(ident, profile), nil
}

// principalFrom prefers the stored record and falls back to token data.
func principalFrom(ident *identity.Identity, rec *models.Record) *requestcontext.Principal {
	p := &requestcontext.Principal{
		UserID: ident.ID,
		Email:  rec.Email,
		Name:   rec.Name,
		Role:   rec.Role,
	}
	if p.Email == "" {
		p.Email = ident.Email
	}
	if p.Name == "" {
		p.Name = email.DisplayName(p.Email)
	}
	return p
}

func (g *Gate) writeRejection(w http.ResponseWriter, r *http.Request, policy string, ident *identity.Identity, rej *rejection) {
	ctx := r.Context()
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"policy", policy,
		"code", rej.code,
		"status", rej.status,
		"path", r.URL.Path,
	}
	if ident != nil {
		attrs = append(attrs, "user_id", ident.ID)
	}
	if rej.cause != nil {
		attrs = append(attrs, "error", rej.cause)
	}
	action := audit.ActionGateRejected
	if rej.status >= http.StatusInternalServerError {
		action = audit.ActionGateFailed
		g.logger.ErrorContext(ctx, "gate failed", attrs...)
	} else {
		g.logger.WarnContext(ctx, "gate rejected", attrs...)
	}

	g.recordDecision(policy, "deny", rej.code)
	if g.auditor != nil {
		event := audit.Event{Action: action, Code: rej.code, Policy: policy}
		if ident != nil {
			event.UserID = ident.ID
			event.Email = ident.Email
		}
		g.auditor.Emit(ctx, event.WithRequest(ctx, r.Method, r.URL.Path))
	}

	httputil.WriteErrorCode(w, rej.status, rej.code, rej.message)
}

func (g *Gate) recordDecision(policy, outcome, code string) {
	if g.recorder != nil {
		g.recorder.ObserveGateDecision(policy, outcome, code)
	}
}
