package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/guard"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/password"
	userrepo "github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
	"github.com/dmitrijs2005/authkeeper/internal/server/users"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

type testServer struct {
	router http.Handler
	repo   *userrepo.MemoryRepository
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()

	issuer, err := auth.NewIssuer(auth.IssuerConfig{
		AccessSecret: "access-secret", RefreshSecret: "refresh-secret",
		AccessTTL: 15 * time.Minute, RefreshTTL: 24 * time.Hour,
	}, nil)
	require.NoError(t, err)

	repo := userrepo.NewMemoryRepository()
	hasher := password.NewHasher(password.Params{MemoryKiB: 64, Iterations: 1, Parallelism: 1})
	log := logging.NewNop()
	svc := users.NewService(repo, hasher, issuer, log)

	return &testServer{
		router: NewRouter(svc, guard.New(issuer, repo, log), log, opts),
		repo:   repo,
	}
}

type reqOpt func(*http.Request)

func withCookie(name, value string) reqOpt {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: name, Value: value}) }
}

func withBearer(token string) reqOpt {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func do(h http.Handler, method, path, body string, opts ...reqOpt) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.RemoteAddr = "10.0.0.1:1234"
	for _, o := range opts {
		o(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func cookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

const aliceJSON = `{"username":"alice","email":"a@x.com","password":"secret123"}`

func (s *testServer) registerAndLogin(t *testing.T) (access, refresh string) {
	t.Helper()
	rec := do(s.router, http.MethodPost, "/v1/users/register", aliceJSON)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(s.router, http.MethodPost, "/v1/users/login", `{"email":"a@x.com","password":"secret123"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decode(t, rec)["data"].(map[string]any)
	return data["accessToken"].(string), data["refreshToken"].(string)
}

func TestRegister(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := do(s.router, http.MethodPost, "/v1/users/register", aliceJSON)
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, users.MsgRegistered, body["message"])
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "a@x.com", data["email"])
	assert.NotContains(t, rec.Body.String(), "secret123")
	assert.NotContains(t, rec.Body.String(), "argon2id")

	stored, err := s.repo.GetUserByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", stored.PasswordHash)

	rec = do(s.router, http.MethodPost, "/v1/users/register", aliceJSON)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, users.MsgUserExists, decode(t, rec)["message"])

	rec = do(s.router, http.MethodPost, "/v1/users/register", `{"username":"bob"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, users.MsgFieldsRequired, decode(t, rec)["message"])

	rec = do(s.router, http.MethodPost, "/v1/users/register", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBodyLimit(t *testing.T) {
	s := newTestServer(t, Options{})

	big := `{"username":"` + strings.Repeat("a", maxBodyBytes) + `","email":"a@x.com","password":"p"}`
	rec := do(s.router, http.MethodPost, "/v1/users/register", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestLogin(t *testing.T) {
	s := newTestServer(t, Options{})
	do(s.router, http.MethodPost, "/v1/users/register", aliceJSON)

	rec := do(s.router, http.MethodPost, "/v1/users/login", `{"email":"a@x.com","password":"secret123"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, users.MsgLoggedIn, body["message"])
	data := body["data"].(map[string]any)
	assert.NotEmpty(t, data["accessToken"])
	assert.NotEmpty(t, data["refreshToken"])
	assert.Equal(t, "alice", data["user"].(map[string]any)["username"])

	ac := cookie(rec, common.AccessTokenCookie)
	require.NotNil(t, ac)
	assert.True(t, ac.HttpOnly)
	assert.False(t, ac.Secure)
	assert.Equal(t, data["accessToken"], ac.Value)
	require.NotNil(t, cookie(rec, common.RefreshTokenCookie))
}

func TestLogin_SecureCookiesInProduction(t *testing.T) {
	s := newTestServer(t, Options{Production: true})
	do(s.router, http.MethodPost, "/v1/users/register", aliceJSON)

	rec := do(s.router, http.MethodPost, "/v1/users/login", `{"email":"a@x.com","password":"secret123"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, cookie(rec, common.AccessTokenCookie).Secure)
	assert.True(t, cookie(rec, common.RefreshTokenCookie).Secure)
}

func TestLogin_Failures(t *testing.T) {
	s := newTestServer(t, Options{})
	do(s.router, http.MethodPost, "/v1/users/register", aliceJSON)

	rec := do(s.router, http.MethodPost, "/v1/users/login", `{"email":"a@x.com","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, users.MsgIncorrectPassword, decode(t, rec)["message"])
	assert.Nil(t, cookie(rec, common.AccessTokenCookie))

	rec = do(s.router, http.MethodPost, "/v1/users/login", `{"email":"nobody@x.com","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, users.MsgIncorrectPassword, decode(t, rec)["message"])

	rec = do(s.router, http.MethodPost, "/v1/users/login", `{"email":"a@x.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, users.MsgCredentialsRequired, decode(t, rec)["message"])
}

func TestRefresh(t *testing.T) {
	s := newTestServer(t, Options{})
	_, refresh := s.registerAndLogin(t)

	// body
	rec := do(s.router, http.MethodPost, "/v1/users/refresh", `{"refreshToken":"`+refresh+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decode(t, rec)["data"].(map[string]any)
	next := data["refreshToken"].(string)
	assert.NotEqual(t, refresh, next)
	assert.Equal(t, next, cookie(rec, common.RefreshTokenCookie).Value)

	// the superseded token is refused
	rec = do(s.router, http.MethodPost, "/v1/users/refresh", "", withCookie(common.RefreshTokenCookie, refresh))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, users.MsgRefreshTokenStale, decode(t, rec)["message"])

	// cookie
	rec = do(s.router, http.MethodPost, "/v1/users/refresh", "", withCookie(common.RefreshTokenCookie, next))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(s.router, http.MethodPost, "/v1/users/refresh", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, users.MsgUnauthorizedRequest, decode(t, rec)["message"])

	rec = do(s.router, http.MethodPost, "/v1/users/refresh", `{"refreshToken":"a.b.c"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, users.MsgInvalidRefreshToken, decode(t, rec)["message"])
}

func TestLogoutThenRefreshFails(t *testing.T) {
	s := newTestServer(t, Options{})
	access, refresh := s.registerAndLogin(t)

	rec := do(s.router, http.MethodPost, "/v1/users/logout", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, guard.MsgNoToken, decode(t, rec)["message"])

	rec = do(s.router, http.MethodPost, "/v1/users/logout", "", withBearer(access))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, users.MsgLoggedOut, decode(t, rec)["message"])
	cleared := cookie(rec, common.AccessTokenCookie)
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)

	rec = do(s.router, http.MethodPost, "/v1/users/refresh", `{"refreshToken":"`+refresh+`"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMe(t *testing.T) {
	s := newTestServer(t, Options{})
	access, refresh := s.registerAndLogin(t)

	rec := do(s.router, http.MethodGet, "/v1/users/me", "", withCookie(common.AccessTokenCookie, access))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a@x.com", decode(t, rec)["data"].(map[string]any)["email"])

	rec = do(s.router, http.MethodGet, "/v1/users/me", "", withBearer(refresh))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, guard.MsgInvalidToken, decode(t, rec)["message"])
}

type stubSessions struct {
	logoutErr error
	panics    bool
}

func (s *stubSessions) Register(context.Context, string, string, string) (*models.PublicUser, error) {
	if s.panics {
		panic("boom")
	}
	return nil, common.NewError(common.ErrorInternal, users.MsgInternal)
}

func (s *stubSessions) Login(context.Context, string, string) (*users.LoginResult, error) {
	return nil, errors.New("unclassified")
}

func (s *stubSessions) Logout(context.Context, string) error { return s.logoutErr }

func (s *stubSessions) RefreshToken(context.Context, string) (*users.TokenPair, error) {
	return nil, common.NewError(common.ErrorInternal, users.MsgInternal)
}

type stubGuard struct{}

func (stubGuard) Authenticate(_ context.Context, token string) (*models.PublicUser, error) {
	if token == "" {
		return nil, common.NewError(common.ErrorUnauthorized, guard.MsgNoToken)
	}
	return &models.PublicUser{ID: "u-1"}, nil
}

func TestServerErrors(t *testing.T) {
	stub := &stubSessions{logoutErr: errors.New("db down")}
	r := NewRouter(stub, stubGuard{}, logging.NewNop(), Options{})

	rec := do(r, http.MethodPost, "/v1/users/logout", "", withBearer("t"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, users.MsgLogoutFailed, decode(t, rec)["message"])

	rec = do(r, http.MethodPost, "/v1/users/register", aliceJSON)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, users.MsgInternal, decode(t, rec)["message"])

	rec = do(r, http.MethodPost, "/v1/users/login", `{"email":"a@x.com","password":"p"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "unclassified")

	rec = do(r, http.MethodPost, "/v1/users/refresh", `{"refreshToken":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	stub.panics = true
	rec = do(r, http.MethodPost, "/v1/users/register", aliceJSON)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, Options{RateLimitPerSecond: 0.001, RateLimitBurst: 2})

	body := `{"email":"a@x.com","password":"p"}`
	assert.NotEqual(t, http.StatusTooManyRequests, do(s.router, http.MethodPost, "/v1/users/login", body).Code)
	assert.NotEqual(t, http.StatusTooManyRequests, do(s.router, http.MethodPost, "/v1/users/login", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(s.router, http.MethodPost, "/v1/users/login", body).Code)

	// other clients keep their own budget
	other := do(s.router, http.MethodPost, "/v1/users/login", body, func(r *http.Request) { r.RemoteAddr = "10.0.0.2:1" })
	assert.NotEqual(t, http.StatusTooManyRequests, other.Code)

	// health checks are not limited
	assert.Equal(t, http.StatusOK, do(s.router, http.MethodGet, "/healthz", "").Code)
}

func TestIPLimiter_SweepsIdleBuckets(t *testing.T) {
	now := time.Unix(0, 0)
	l := newIPLimiter(1, 1)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))
	assert.Len(t, l.buckets, 1)

	now = now.Add(10 * time.Minute)
	assert.True(t, l.allow("b"))
	assert.Len(t, l.buckets, 1)

	assert.Nil(t, newIPLimiter(0, 5))
}

func TestHealthReadyMetrics(t *testing.T) {
	ready := errors.New("db down")
	m := metrics.New()
	s := newTestServer(t, Options{
		Metrics: m,
		Ready:   func(context.Context) error { return ready },
	})

	rec := do(s.router, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(s.router, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ready = nil
	rec = do(s.router, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(s.router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `authkeeper_http_request_duration_seconds_count{method="GET",route="/readyz",status="200"} 1`)
}

func TestRequestID(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := do(s.router, http.MethodGet, "/healthz", "")
	assert.Len(t, rec.Header().Get(requestIDHeader), 26)

	rec = do(s.router, http.MethodGet, "/healthz", "", func(r *http.Request) { r.Header.Set(requestIDHeader, "from-proxy") })
	assert.Equal(t, "from-proxy", rec.Header().Get(requestIDHeader))
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, Options{CORSOrigin: "http://localhost:5173"})

	rec := do(s.router, http.MethodOptions, "/v1/users/login", "", func(r *http.Request) {
		r.Header.Set("Origin", "http://localhost:5173")
		r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = do(s.router, http.MethodGet, "/healthz", "", func(r *http.Request) { r.Header.Set("Origin", "http://evil.example") })
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
