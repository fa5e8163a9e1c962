package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Skotchmaster/shop_auth/internal/apierr"
	"github.com/Skotchmaster/shop_auth/internal/events"
	"github.com/Skotchmaster/shop_auth/internal/logging"
	"github.com/Skotchmaster/shop_auth/internal/metrics"
	"github.com/Skotchmaster/shop_auth/internal/middleware"
	"github.com/Skotchmaster/shop_auth/internal/models"
	"github.com/Skotchmaster/shop_auth/internal/repo"
	"github.com/Skotchmaster/shop_auth/internal/service"
	tu "github.com/Skotchmaster/shop_auth/internal/testutil"
	"github.com/Skotchmaster/shop_auth/internal/tokens"
)

type testEnv struct {
	e     *echo.Echo
	db    *gorm.DB
	mr    *miniredis.Miniredis
	codec *tokens.Codec
}

func newTestEnv(t *testing.T, demo bool) *testEnv {
	t.Helper()

	db := tu.InitTestDB(t)
	store, mr := tu.NewTestStore(t)
	codec := tokens.NewCodec([]byte(tu.Secret), tu.Issuer, tu.AccessTTL, tu.RefreshTTL)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	r := repo.New(db)

	svc := &service.AuthService{Repo: r, Store: store, Codec: codec, Events: events.Nop{}, Metrics: m}
	accts := &service.AccountService{Auth: svc}
	cookies := CookieConfig{Secure: true, SameSite: http.SameSiteNoneMode, MaxAge: tu.RefreshTTL}

	d := &Deps{
		Log:            logging.NewWithWriter(&bytes.Buffer{}, "error"),
		AllowedOrigins: []string{"http://localhost:3000"},
		Gate:           &middleware.Authenticator{Codec: codec, Users: r, Metrics: m},
		Auth:           &AuthHTTP{Svc: svc, Accts: accts, Cookies: cookies, Metrics: m},
		People:         &PeopleHTTP{Accts: accts},
		Ready:          map[string]Check{"redis": store.Ping},
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	if demo {
		d.Dev = &DevHTTP{Accts: accts, Cookies: cookies}
	}

	return &testEnv{e: NewServer(d), db: db, mr: mr, codec: codec}
}

func (env *testEnv) do(t *testing.T, method, path string, body any, opts ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	return tu.DoJSONRequest(t, env.e, method, path, body, opts...)
}

func (env *testEnv) login(t *testing.T, username, password string) (string, *http.Cookie) {
	t.Helper()

	rec := env.do(t, http.MethodPost, "/auth/login", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ck := tu.CookieFrom(rec, RefreshCookieName)
	require.NotNil(t, ck)
	return tu.DecodeJSON(t, rec)["accessToken"].(string), ck
}

func requireError(t *testing.T, rec *httptest.ResponseRecorder, status int, code, path string) {
	t.Helper()

	require.Equal(t, status, rec.Code, rec.Body.String())
	var b apierr.Body
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	assert.Equal(t, status, b.Status)
	assert.Equal(t, code, b.Code)
	assert.Equal(t, path, b.Path)
	assert.NotEmpty(t, b.Message)
}

func TestLogin_SetsRefreshCookie(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, false)
	u := tu.CreateUser(t, env.db, "john", "Secret1!", models.RoleUser)

	rec := env.do(t, http.MethodPost, "/auth/login", map[string]string{"username": "john", "password": "Secret1!"})
	require.Equal(t, http.StatusOK, rec.Code)

	body := tu.DecodeJSON(t, rec)
	assert.NotEmpty(t, body["accessToken"])
	assert.Equal(t, "john", body["username"])
	assert.EqualValues(t, u.ID, body["id"])

	raw := rec.Header().Get(echo.HeaderSetCookie)
	assert.Contains(t, raw, "refreshToken=")
	assert.Contains(t, raw, "HttpOnly")
	assert.Contains(t, raw, "Secure")
	assert.Contains(t, raw, "Path=/")
	assert.Contains(t, raw, "SameSite=None")
	assert.Contains(t, raw, "Max-Age=604800")

	stored, err := env.mr.Get("refresh:john")
	require.NoError(t, err)
	assert.Equal(t, tu.CookieFrom(rec, RefreshCookieName).Value, stored)
}

func TestLogin_Errors(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, false)
	tu.CreateUser(t, env.db, "john", "Secret1!", models.RoleUser)
	tu.CreateUser(t, env.db, "locked", "Secret1!", models.RoleUser)
	tu.LockUser(t, env.db, "locked")

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"blank fields", map[string]string{}, 400, apierr.CodeValidation},
		{"wrong password", map[string]string{"username": "john", "password": "x"}, 401, apierr.CodeBadCredentials},
		{"unknown user", map[string]string{"username": "ghost", "password": "x"}, 401, apierr.CodeBadCredentials},
		{"locked", map[string]string{"username": "locked", "password": "Secret1!"}, 423, apierr.CodeAccountLocked},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := env.do(t, http.MethodPost, "/auth/login", tt.body)
			requireError(t, rec, tt.status, tt.code, "/auth/login")
			assert.Nil(t, tu.CookieFrom(rec, RefreshCookieName))
		})
	}
}

func TestLogin_MalformedBody(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, false)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)

	requireError(t, rec, 400, apierr.CodeMessageNotReadable, "/auth/login")
}

func TestLogin_StoreDown(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, false)
	tu.CreateUser(t, env.db, "john", "Secret1!", models.RoleUser)
	env.mr.Close()

	rec := env.do(t, http.MethodPost, "/auth/login", map[string]string{"username": "john", "password": "Secret1!"})
	requireError(t, rec, 500, apierr.CodeInternal, "/auth/login")
	assert.NotContains(t, rec.Body.String(), "accessToken")
	assert.Nil(t, tu.CookieFrom(rec, RefreshCookieName))
}

func TestRefresh_NoCookie(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, false)
	rec := env.do(t, http.MethodPost, "/auth/refresh", nil)
	requireError(t, rec, 400, apierr.CodeMissingCookie, "/auth/refresh")
}

func TestRefresh_Success(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, false)
	tu.CreateUser(t, env.db, "john", "Secret1!", models.RoleUser)
	_, ck := env.login(t, "john", "Secret1!")

	rec := env.do(t, http.MethodPost, "/auth/refresh", nil, tu.WithCookie(ck))
	require.Equal(t, http.StatusOK, rec.Code)
	access := tu.DecodeJSON(t, rec)["access_token"].(string)

	claims, err := env.codec.VerifyAccess(access)
	require.NoError(t, err)
	assert.Equal(t, "john", claims.Username)

	rec = env.do(t, http.MethodGet, "/people/profile", nil, tu.WithBearer(access))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "john", tu.DecodeJSON(t, rec)["username"])
}

func TestRefresh_GhostUser(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, true)
	rec := env.do(t, http.MethodPost, "/auth/refresh-dev/_issue-refresh?username=ghost", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ck := tu.CookieFrom(rec, RefreshCookieName)
	require.NotNil(t, ck)

	rec = env.do(t, http.MethodPost, "/auth/refresh", nil, tu.WithCookie(ck))
	requireError(t, rec, 401, apierr.CodeUserNotFound, "/auth/refresh")
}

func TestRefresh_FirstLoginCookieIsReplaced(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, false)
	tu.CreateUser(t, env.db, "john", "Secret1!", models.RoleUser)
	_, first := env.login(t, "john", "Secret1!")
	_, second := env.login(t, "john", "Secret1!")

	rec := env.do(t, http.MethodPost, "/auth/refresh", nil, tu.WithCookie(first))
	requireError(t, rec, 401, apierr.CodeInvalidRefreshToken, "/auth/refresh")

	rec = env.do(t, http.MethodPost, "/auth/refresh", nil, tu.WithCookie(second))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRefresh_ExpiredCookie(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, false)
	past := tokens.NewCodec([]byte(tu.Secret), tu.Issuer, time.Minute, time.Minute,
		tokens.WithClock(func() time.Time { return time.Now().Add(-time.Hour) }))
	tok, _, err := past.MintRefresh("john")
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/auth/refresh", nil, tu.WithCookie(&http.Cookie{Name: RefreshCookieName, Value: tok}))
	requireError(t, rec, 401, apierr.CodeTokenExpired, "/auth/refresh")
}

func TestProtected_ExpiredAccessToken(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, false)
	tu.CreateUser(t, env.db, "john", "Secret1!", models.RoleUser)
	past := tokens.NewCodec([]byte(tu.Secret), tu.Issuer, time.Minute, time.Minute,
		tokens.WithClock(func() time.Time { return time.Now().Add(-time.Hour) }))
	tok, exp, err := past.MintAccess("john", models.RoleUser)
	require.NoError(t, err)
	require.True(t, exp.Before(time.Now()))

	rec := env.do(t, http.MethodGet, "/people/profile", nil, tu.WithBearer(tok))
	requireError(t, rec, 401, apierr.CodeTokenExpired, "/people/profile")

	// anonymous routes ignore the broken header
	rec = env.do(t, http.MethodGet, "/health/live", nil, tu.WithBearer(tok))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProtected_Unauthenticated(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, false)
	rec := env.do(t, http.MethodGet, "/people/profile", nil)
	requireError(t, rec, 401, apierr.CodeUnauthorized, "/people/profile")

	rec = env.do(t, http.MethodGet, "/people/profile", nil, tu.WithBearer("junk"))
	requireError(t, rec, 401, apierr.CodeInvalidAccessToken, "/people/profile")
}

func TestLogout(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, false)
	tu.CreateUser(t, env.db, "john", "Secret1!", models.RoleUser)
	_, ck := env.login(t, "john", "Secret1!")

	rec := env.do(t, http.MethodPost, "/auth/logout", nil, tu.WithCookie(ck))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Logged out successfully", tu.DecodeJSON(t, rec)["message"])

	raw := rec.Header().Get(echo.HeaderSetCookie)
	assert.Contains(t, raw, "refreshToken=;")
	assert.Contains(t, raw, "Max-Age=0")
	assert.Contains(t, raw, "HttpOnly")
	assert.False(t, env.mr.Exists("refresh:john"))

	rec = env.do(t, http.MethodPost, "/auth/refresh", nil, tu.WithCookie(ck))
	requireError(t, rec, 401, apierr.CodeInvalidRefreshToken, "/auth/refresh")
}

func TestLogout_Errors(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodPost, "/auth/logout", nil)
	requireError(t, rec, 400, apierr.CodeMissingCookie, "/auth/logout")

	rec = env.do(t, http.MethodPost, "/auth/logout", nil,
		tu.WithCookie(&http.Cookie{Name: RefreshCookieName, Value: "a.b.c"}))
	requireError(t, rec, 401, apierr.CodeInvalidRefreshToken, "/auth/logout")
}

func TestRegistration(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, false)
	body := map[string]string{"username": "john", "password": "Secret1!"}

	rec := env.do(t, http.MethodPost, "/auth/registration", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := tu.DecodeJSON(t, rec)
	assert.Equal(t, "john", got["username"])
	assert.Equal(t, models.RoleUser, got["role"])

	rec = env.do(t, http.MethodPost, "/auth/registration", body)
	requireError(t, rec, 409, apierr.CodeUserAlreadyExists, "/auth/registration")

	rec = env.do(t, http.MethodPost, "/auth/registration", map[string]string{"username": "jane", "password": "weak"})
	requireError(t, rec, 400, apierr.CodeValidation, "/auth/registration")

	env.login(t, "john", "Secret1!")
}

func TestDeactivateAndRestore(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, false)
	tu.CreateUser(t, env.db, "john", "Secret1!", models.RoleUser)
	access, _ := env.login(t, "john", "Secret1!")
	creds := map[string]string{"username": "john", "password": "Secret1!"}

	rec := env.do(t, http.MethodPatch, "/people/restore-account", creds)
	requireError(t, rec, 409, apierr.CodeAccountActive, "/people/restore-account")

	rec = env.do(t, http.MethodPost, "/people/deactivate-account", nil, tu.WithBearer(access))
	require.Equal(t, http.StatusOK, rec.Code)

	// the principal is locked now: privileged operations answer 423
	rec = env.do(t, http.MethodPatch, "/people/deactivate-account", nil, tu.WithBearer(access))
	requireError(t, rec, 423, apierr.CodeAccountLocked, "/people/deactivate-account")

	rec = env.do(t, http.MethodPost, "/auth/login", creds)
	requireError(t, rec, 423, apierr.CodeAccountLocked, "/auth/login")

	rec = env.do(t, http.MethodPost, "/people/restore-account", map[string]string{"username": "john", "password": "bad"})
	requireError(t, rec, 401, apierr.CodeBadCredentials, "/people/restore-account")

	rec = env.do(t, http.MethodPost, "/people/restore-account", creds)
	require.Equal(t, http.StatusOK, rec.Code)
	env.login(t, "john", "Secret1!")
}

func TestAllCustomers_AdminOnly(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, false)
	tu.CreateUser(t, env.db, "john", "Secret1!", models.RoleUser)
	tu.CreateUser(t, env.db, "root", "Secret1!", models.RoleAdmin)
	tu.CreateUser(t, env.db, "jane", "Secret1!", models.RoleUser)
	userAccess, _ := env.login(t, "john", "Secret1!")
	adminAccess, _ := env.login(t, "root", "Secret1!")

	rec := env.do(t, http.MethodGet, "/people/all-customers", nil, tu.WithBearer(userAccess))
	requireError(t, rec, 403, apierr.CodeAccessDenied, "/people/all-customers")

	rec = env.do(t, http.MethodGet, "/people/all-customers", nil, tu.WithBearer(adminAccess))
	require.Equal(t, http.StatusOK, rec.Code)
	var users []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	require.Len(t, users, 2)
	assert.Equal(t, "john", users[0]["username"])
	assert.Equal(t, "jane", users[1]["username"])
	assert.NotContains(t, rec.Body.String(), "passwordHash")

	rec = env.do(t, http.MethodGet, "/people/all-customers?page=2&size=1", nil, tu.WithBearer(adminAccess))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	require.Len(t, users, 1)
	assert.Equal(t, "jane", users[0]["username"])
}

func TestDevHelpers(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, true)
	tu.CreateUser(t, env.db, "root", "Secret1!", models.RoleAdmin)
	adminAccess, ck := env.login(t, "root", "Secret1!")

	rec := env.do(t, http.MethodPost, "/auth/dev/_lock?username=root", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, tu.DecodeJSON(t, rec)["locked"])

	rec = env.do(t, http.MethodGet, "/people/all-customers", nil, tu.WithBearer(adminAccess))
	requireError(t, rec, 423, apierr.CodeAccountLocked, "/people/all-customers")

	rec = env.do(t, http.MethodPost, "/auth/dev/_unlock?username=root", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPatch, "/auth/dev/_demote?username=root", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// the role is re-resolved per request and the refresh entry is gone
	rec = env.do(t, http.MethodGet, "/people/all-customers", nil, tu.WithBearer(adminAccess))
	requireError(t, rec, 403, apierr.CodeAccessDenied, "/people/all-customers")
	rec = env.do(t, http.MethodPost, "/auth/refresh", nil, tu.WithCookie(ck))
	requireError(t, rec, 401, apierr.CodeInvalidRefreshToken, "/auth/refresh")

	rec = env.do(t, http.MethodPost, "/auth/dev/_lock", nil)
	requireError(t, rec, 400, apierr.CodeValidation, "/auth/dev/_lock")

	rec = env.do(t, http.MethodPost, "/auth/logout-dev/_issue-invalid", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	bad := tu.CookieFrom(rec, RefreshCookieName)
	rec = env.do(t, http.MethodPost, "/auth/logout", nil, tu.WithCookie(bad))
	requireError(t, rec, 401, apierr.CodeInvalidRefreshToken, "/auth/logout")

	rec = env.do(t, http.MethodPost, "/auth/logout-dev/_issue-refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	demo := tu.CookieFrom(rec, RefreshCookieName)
	rec = env.do(t, http.MethodPost, "/auth/logout", nil, tu.WithCookie(demo))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDevHelpers_DisabledByDefault(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, false)
	rec := env.do(t, http.MethodPost, "/auth/dev/_lock?username=root", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, false)
	tu.CreateUser(t, env.db, "john", "Secret1!", models.RoleUser)
	env.login(t, "john", "Secret1!")
	env.do(t, http.MethodPost, "/auth/refresh", nil)

	rec := env.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `auth_logins_total{code="",outcome="ok"} 1`)
	assert.Contains(t, rec.Body.String(), `auth_refreshes_total{code="MISSING_COOKIE",outcome="failed"} 1`)

	env.mr.Close()
	rec = env.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCORS_AllowsConfiguredOriginWithCredentials(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, false)
	rec := env.do(t, http.MethodOptions, "/auth/refresh", nil, func(r *http.Request) {
		r.Header.Set(echo.HeaderOrigin, "http://localhost:3000")
		r.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
	})
	assert.Equal(t, "http://localhost:3000", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, "true", rec.Header().Get(echo.HeaderAccessControlAllowCredentials))
}
