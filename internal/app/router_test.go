package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saas-project/saas/apitypes"
	"github.com/saas-project/saas/internal/auth"
	"github.com/saas-project/saas/internal/dashboard"
	"github.com/saas-project/saas/internal/observability"
	"github.com/saas-project/saas/internal/platform/httpx"
	"github.com/saas-project/saas/internal/shared"
	"github.com/saas-project/saas/internal/view"
	"github.com/saas-project/saas/jobs"
)

type emptyRepo struct{}

func (emptyRepo) CreateUser(context.Context, *auth.User) error { return nil }
func (emptyRepo) FindByEmail(context.Context, string) (*auth.User, error) {
	return nil, httpx.ErrNotFound
}
func (emptyRepo) FindByID(context.Context, uuid.UUID) (*auth.User, error) {
	return nil, httpx.ErrNotFound
}
func (emptyRepo) UpdatePasswordHash(context.Context, uuid.UUID, string) error { return nil }
func (emptyRepo) CreateSession(context.Context, string, uuid.UUID, time.Time, string, string) error {
	return nil
}
func (emptyRepo) DeleteSession(context.Context, string) error { return nil }
func (emptyRepo) PurgeSessions(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func testConfig(guard string) *Config {
	return &Config{
		AppEnv:             "development",
		AppRequestTimeout:  5 * time.Second,
		SharedPackages:     []string{apitypes.PackageName},
		DashboardGuard:     guard,
		RateLimitPerMinute: 1000,
		AccessTTL:          time.Minute,
		RefreshTTL:         time.Hour,
	}
}

// seededRepo serves a single account.
type seededRepo struct {
	emptyRepo
	user *auth.User
}

func (r seededRepo) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	if email != r.user.Email {
		return nil, httpx.ErrNotFound
	}
	copied := *r.user
	return &copied, nil
}

func (r seededRepo) FindByID(_ context.Context, id uuid.UUID) (*auth.User, error) {
	if id != r.user.ID {
		return nil, httpx.ErrNotFound
	}
	copied := *r.user
	return &copied, nil
}

func testHasher() *auth.PasswordHasher {
	return &auth.PasswordHasher{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16}
}

func newTestRouter(t *testing.T, guard string) http.Handler {
	return newTestRouterWithRepo(t, guard, emptyRepo{})
}

func newTestRouterWithRepo(t *testing.T, guard string, repo auth.Repository) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := testConfig(guard)
	metrics := observability.NewMetrics()
	templates, err := view.NewEngine(view.Options{Strict: true})
	require.NoError(t, err)
	sessions := shared.NewSessionManager(client, "saas_session", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf-secret")

	svc := auth.NewService(repo, auth.ServiceConfig{
		Hasher:       testHasher(),
		Access:       auth.NewTokenIssuer("access", cfg.AccessTTL, auth.AudienceAccess, nil),
		Refresh:      auth.NewTokenIssuer("refresh", cfg.RefreshTTL, auth.AudienceRefresh, nil),
		RefreshStore: auth.NewRedisRefreshStore(client),
		Events:       metrics,
	})
	checker, err := dashboard.NewChecker(cfg.DashboardGuard, svc)
	require.NoError(t, err)
	gate := dashboard.NewGate(checker, dashboard.WithRecorder(metrics))

	return NewRouter(RouterParams{
		Config:           cfg,
		Templates:        templates,
		SessionManager:   sessions,
		CSRFManager:      csrf,
		AuthHandler:      auth.NewHandler(nil, svc, templates, sessions, csrf, auth.CookieConfig{}),
		DashboardHandler: dashboard.NewHandler(nil, gate, templates, csrf),
		JobHandler:       jobs.NewHandler(nil, nil),
		Metrics:          metrics,
	})
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	return res
}

func TestHealthz(t *testing.T) {
	res := serve(newTestRouter(t, dashboard.ModeOff), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"status":"ok"}`, res.Body.String())
	assert.Equal(t, "nosniff", res.Header().Get("X-Content-Type-Options"))
	assert.Empty(t, res.Header().Get("Set-Cookie"))
}

func TestRootRedirectsToDashboard(t *testing.T) {
	res := serve(newTestRouter(t, dashboard.ModeOff), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/dashboard", res.Header().Get("Location"))
}

func TestDashboardPassthroughByDefault(t *testing.T) {
	res := serve(newTestRouter(t, dashboard.ModeOff), httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "<section>")
	assert.Contains(t, res.Body.String(), "</section>")
}

func TestDashboardGuardedModesRedirect(t *testing.T) {
	for _, mode := range []string{dashboard.ModeSession, dashboard.ModeToken} {
		t.Run(mode, func(t *testing.T) {
			res := serve(newTestRouter(t, mode), httptest.NewRequest(http.MethodGet, "/dashboard", nil))
			assert.Equal(t, http.StatusSeeOther, res.Code)
			assert.Equal(t, "/auth/login?next=%2Fdashboard", res.Header().Get("Location"))
		})
	}
}

func TestSharedTypesEndpoint(t *testing.T) {
	res := serve(newTestRouter(t, dashboard.ModeOff), httptest.NewRequest(http.MethodGet, "/api/types", nil))
	require.Equal(t, http.StatusOK, res.Code)

	var body struct {
		Packages []apitypes.PackageShape `json:"packages"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.Len(t, body.Packages, 1)
	assert.Equal(t, apitypes.Describe(), body.Packages[0])
}

func TestCSRFRequiredForBrowserForms(t *testing.T) {
	router := newTestRouter(t, dashboard.ModeOff)
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusForbidden, serve(router, req).Code)
}

func TestLoginFormRoundTripWithCSRF(t *testing.T) {
	router := newTestRouter(t, dashboard.ModeOff)

	page := serve(router, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	require.Equal(t, http.StatusOK, page.Code)
	cookies := page.Result().Cookies()
	require.NotEmpty(t, cookies)

	body := page.Body.String()
	const marker = `name="csrf_token" value="`
	start := strings.Index(body, marker)
	require.GreaterOrEqual(t, start, 0)
	token := body[start+len(marker):]
	token = token[:strings.Index(token, `"`)]

	form := "csrf_token=" + token + "&email=ada%40example.com&password=password123"
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	res := serve(router, req)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "Invalid email or password")
}

func csrfTokenFrom(t *testing.T, body string) string {
	t.Helper()
	const marker = `name="csrf_token" value="`
	start := strings.Index(body, marker)
	require.GreaterOrEqual(t, start, 0)
	token := body[start+len(marker):]
	return token[:strings.Index(token, `"`)]
}

func TestBrowserSignInReachesDashboard(t *testing.T) {
	for _, mode := range []string{dashboard.ModeSession, dashboard.ModeToken} {
		t.Run(mode, func(t *testing.T) {
			hash, err := testHasher().Hash("password123")
			require.NoError(t, err)
			user := &auth.User{ID: uuid.New(), Email: "ada@example.com", PasswordHash: hash, IsActive: true}
			router := newTestRouterWithRepo(t, mode, seededRepo{user: user})

			site, err := url.Parse("http://saas.test/")
			require.NoError(t, err)
			jar, err := cookiejar.New(nil)
			require.NoError(t, err)
			send := func(req *http.Request) *httptest.ResponseRecorder {
				for _, c := range jar.Cookies(site) {
					req.AddCookie(c)
				}
				res := serve(router, req)
				jar.SetCookies(site, res.Result().Cookies())
				return res
			}

			res := send(httptest.NewRequest(http.MethodGet, "/dashboard", nil))
			require.Equal(t, http.StatusSeeOther, res.Code)
			loginURL := res.Header().Get("Location")

			page := send(httptest.NewRequest(http.MethodGet, loginURL, nil))
			require.Equal(t, http.StatusOK, page.Code)
			form := url.Values{
				"csrf_token": {csrfTokenFrom(t, page.Body.String())},
				"email":      {"ada@example.com"},
				"password":   {"password123"},
				"next":       {"/dashboard"},
			}
			req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			res = send(req)
			require.Equal(t, http.StatusSeeOther, res.Code, res.Body.String())

			location := res.Header().Get("Location")
			for hops := 0; hops < 5; hops++ {
				res = send(httptest.NewRequest(http.MethodGet, location, nil))
				if res.Code != http.StatusSeeOther {
					break
				}
				location = res.Header().Get("Location")
			}
			require.Equal(t, http.StatusOK, res.Code, "stuck redirecting at %s", location)
			assert.Equal(t, "/dashboard", location)
			assert.Contains(t, res.Body.String(), "ada@example.com")

			res = send(httptest.NewRequest(http.MethodGet, "/auth/login?next=%2Fdashboard", nil))
			require.Equal(t, http.StatusSeeOther, res.Code)
			assert.Equal(t, "/dashboard", res.Header().Get("Location"))
			assert.Equal(t, http.StatusOK, send(httptest.NewRequest(http.MethodGet, "/dashboard", nil)).Code)
		})
	}
}

func TestAPIIsCSRFExempt(t *testing.T) {
	router := newTestRouter(t, dashboard.ModeOff)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"ada@example.com","password":"password123"}`))
	req.Header.Set("Content-Type", "application/json")
	res := serve(router, req)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "application/problem+json", res.Header().Get("Content-Type"))
	assert.Empty(t, res.Header().Get("Set-Cookie"))
}

func TestAuthAPIRateLimited(t *testing.T) {
	router := newTestRouter(t, dashboard.ModeOff)
	var last *httptest.ResponseRecorder
	for i := 0; i < 200; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
		req.RemoteAddr = "203.0.113.9:1234"
		last = serve(router, req)
		if last.Code == http.StatusTooManyRequests {
			break
		}
	}
	require.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Equal(t, "60", last.Header().Get("Retry-After"))
}

func TestStaticAssetsAndJobsHealth(t *testing.T) {
	router := newTestRouter(t, dashboard.ModeOff)

	res := serve(router, httptest.NewRequest(http.MethodGet, "/static/css/app.css", nil))
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Header().Get("Content-Type"), "text/css")
	assert.Equal(t, "public, max-age=3600", res.Header().Get("Cache-Control"))

	res = serve(router, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"queue":"default","pending":0}`, res.Body.String())
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	router := newTestRouter(t, dashboard.ModeOff)
	serve(router, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	res := serve(router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `saas_dashboard_gate_total{decision="allow"} 1`)
	assert.Contains(t, res.Body.String(), `saas_http_requests_total{code="200",route="/dashboard`)
}
