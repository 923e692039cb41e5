package httptransport

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"

	"chapel/internal/audit"
	"chapel/internal/authz"
	authzmodels "chapel/internal/authz/models"
	authzstore "chapel/internal/authz/store"
	"chapel/internal/gate"
	"chapel/internal/identity"
	newsletterhandler "chapel/internal/newsletter/handler"
	"chapel/internal/newsletter/sender"
	newsletterservice "chapel/internal/newsletter/service"
	newsletterstore "chapel/internal/newsletter/store"
	"chapel/internal/platform/metrics"
	postshandler "chapel/internal/posts/handler"
	postsservice "chapel/internal/posts/service"
	postsstore "chapel/internal/posts/store"
	"chapel/internal/promote"
	"chapel/internal/upload"
	"chapel/pkg/domain"
	"chapel/pkg/platform/middleware/request"
	"chapel/pkg/testutil"
)

const promoteSecret = "operator-secret"

type RouterSuite struct {
	suite.Suite
	subscribers *newsletterstore.InMemoryStore
	audit       *audit.Recorder
	healthErr   error
	router      http.Handler
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	m := metrics.New()
	s.audit = &audit.Recorder{}
	s.healthErr = nil

	roles := authzstore.NewInMemory()
	s.Require().NoError(roles.UpsertAdmin(ctx, authzmodels.AdminUser{ID: "pastor", Email: "pastor@church.kr", Name: "Pastor", Role: domain.RoleAdmin}))
	s.Require().NoError(roles.SaveProfile(ctx, authzmodels.Profile{ID: "member", Email: "member@church.kr", FullName: "Member", Role: domain.RoleUser}))

	verifier := identity.ProviderFunc(func(_ context.Context, token string) (*identity.Identity, error) {
		switch token {
		case "pastor-token":
			return &identity.Identity{ID: "pastor", Email: "pastor@church.kr"}, nil
		case "member-token":
			return &identity.Identity{ID: "member", Email: "member@church.kr"}, nil
		}
		return nil, identity.ErrTokenInvalid
	})
	g := gate.New(verifier, authz.NewResolver(roles), gate.WithLogger(logger), gate.WithDecisionRecorder(m), gate.WithAuditor(s.audit))

	storage, err := upload.NewLocalStorage(s.T().TempDir())
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = storage.Close() })

	s.subscribers = newsletterstore.NewInMemory()
	newsletterSvc := newsletterservice.New(s.subscribers, sender.NewLogSender(logger))

	s.router = NewRouter(Dependencies{
		Logger:        logger,
		Gate:          g,
		Posts:         postshandler.New(postsservice.New(postsstore.NewInMemory()), logger),
		Upload:        upload.New(storage, logger),
		Newsletter:    newsletterhandler.New(newsletterSvc, logger),
		Promote:       promote.NewHandler(promote.NewService(roles), s.audit, logger),
		PromoteSecret: promoteSecret,
		Metrics:       m.Handler(),
		HealthChecks: map[string]HealthCheck{
			"database": func(context.Context) error { return s.healthErr },
		},
		CORSOrigins: []string{"http://localhost:3000"},
	})
}

func (s *RouterSuite) TestAdminRoutesRejectUnauthenticated() {
	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/admin/posts"},
		{http.MethodPost, "/api/admin/posts"},
		{http.MethodPatch, "/api/admin/posts/00000000-0000-0000-0000-000000000000/status"},
		{http.MethodDelete, "/api/admin/posts/00000000-0000-0000-0000-000000000000"},
		{http.MethodPost, "/api/admin/promote"},
		{http.MethodGet, "/api/admin/unknown"},
		{http.MethodPost, "/api/posts"},
		{http.MethodPost, "/api/upload"},
		{http.MethodDelete, "/api/upload/file.txt"},
		{http.MethodPost, "/api/email/newsletter"},
	}
	for _, rt := range routes {
		s.Run(rt.method+" "+rt.path, func() {
			rr := testutil.DoRequest(s.router, httptest.NewRequest(rt.method, rt.path, nil))
			s.Equal(http.StatusUnauthorized, rr.Code, rr.Body.String())
		})
	}
}

func (s *RouterSuite) TestAdminRoutesRejectNonAdmin() {
	req := testutil.WithBearer(httptest.NewRequest(http.MethodGet, "/api/admin/posts", nil), "member-token")
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertError(s.T(), rr, http.StatusForbidden, gate.CodeNotAdmin)
}

func (s *RouterSuite) TestAdminCanCreateAndPublicCanList() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/posts", map[string]string{
		"title": "Easter", "content": "Sunday 10am", "status": "published",
	})
	rr := testutil.DoRequest(s.router, testutil.WithBearer(req, "pastor-token"))
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())

	rr = testutil.DoRequest(s.router, httptest.NewRequest(http.MethodGet, "/api/posts/announcements", nil))
	s.Require().Equal(http.StatusOK, rr.Code)
	resp := testutil.UnmarshalResponse[postshandler.ListResponse](s.T(), rr)
	s.Require().Len(resp.Posts, 1)
	s.Equal("pastor@church.kr", resp.Posts[0].AuthorEmail)
	s.NotEmpty(rr.Header().Get(request.HeaderRequestID))
}

func (s *RouterSuite) TestNewsletterWithoutHeaderNeverQueriesSubscribers() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/email/newsletter", map[string]any{
		"newsletter": map[string]string{"title": "t", "content": "c"},
	})
	rr := testutil.DoRequest(s.router, req)

	testutil.AssertError(s.T(), rr, http.StatusUnauthorized, gate.CodeAuthHeaderMissing)
	s.Zero(s.subscribers.ListCalls)
	s.NotEmpty(s.audit.Events())
}

func (s *RouterSuite) TestNewsletterAllowedForAdmin() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/email/newsletter", map[string]any{
		"newsletter": map[string]string{"title": "t", "content": "c"},
	})
	rr := testutil.DoRequest(s.router, testutil.WithBearer(req, "pastor-token"))
	s.Equal(http.StatusOK, rr.Code, rr.Body.String())
	s.Equal(1, s.subscribers.ListCalls)
}

func (s *RouterSuite) TestMe() {
	req := testutil.WithBearer(httptest.NewRequest(http.MethodGet, "/api/me", nil), "member-token")
	rr := testutil.DoRequest(s.router, req)
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	me := testutil.UnmarshalResponse[MeResponse](s.T(), rr)
	s.Equal("member", me.ID)
	s.Equal("user", me.Role)

	rr = testutil.DoRequest(s.router, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	s.Equal(http.StatusUnauthorized, rr.Code)
}

func (s *RouterSuite) TestPromoteUsesSharedSecretNotUserToken() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/admin/promote", map[string]string{"uid": "member"})
	rr := testutil.DoRequest(s.router, testutil.WithBearer(req, "pastor-token"))
	s.Equal(http.StatusUnauthorized, rr.Code)

	req = testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/admin/promote", map[string]string{"uid": "member"})
	rr = testutil.DoRequest(s.router, testutil.WithBearer(req, promoteSecret))
	s.Equal(http.StatusOK, rr.Code, rr.Body.String())

	admin := testutil.WithBearer(httptest.NewRequest(http.MethodGet, "/api/admin/posts", nil), "member-token")
	s.Equal(http.StatusOK, testutil.DoRequest(s.router, admin).Code, "promoted member passes the strict gate")
}

func (s *RouterSuite) TestSubscribeIsPublic() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/newsletter/subscribe", map[string]string{"email": "new@church.kr"})
	rr := testutil.DoRequest(s.router, req)
	s.Equal(http.StatusOK, rr.Code, rr.Body.String())
}

func (s *RouterSuite) TestHealthz() {
	rr := testutil.DoRequest(s.router, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	s.Equal(http.StatusOK, rr.Code)

	s.healthErr = errors.New("connection refused")
	rr = testutil.DoRequest(s.router, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	s.Equal(http.StatusServiceUnavailable, rr.Code)
	s.Contains(rr.Body.String(), `"database":"unavailable"`)
}

func (s *RouterSuite) TestMetricsExposeGateDecisions() {
	testutil.DoRequest(s.router, httptest.NewRequest(http.MethodGet, "/api/admin/posts", nil))

	rr := testutil.DoRequest(s.router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	s.Equal(http.StatusOK, rr.Code)
	s.Contains(rr.Body.String(), "chapel_gate_decisions_total")
}

func (s *RouterSuite) TestSecurityHeaders() {
	rr := testutil.DoRequest(s.router, httptest.NewRequest(http.MethodGet, "/api/posts/announcements", nil))
	s.Equal("DENY", rr.Header().Get("X-Frame-Options"))
	s.Equal("nosniff", rr.Header().Get("X-Content-Type-Options"))
}
