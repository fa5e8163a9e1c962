// Package testutil holds the fixtures shared by the package tests: an in-memory
// identity database, a miniredis-backed refresh store and user seeding helpers.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Skotchmaster/shop_auth/internal/hash"
	"github.com/Skotchmaster/shop_auth/internal/models"
	"github.com/Skotchmaster/shop_auth/internal/refreshstore"
)

const (
	Secret     = "test-jwt-secret"
	Issuer     = "ADMIN"
	AccessTTL  = 60 * time.Minute
	RefreshTTL = 7 * 24 * time.Hour
)

func InitTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every pooled connection would get its own empty :memory: database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}
	return db
}

func NewTestStore(t *testing.T) (*refreshstore.RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := refreshstore.NewRedisClient("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return refreshstore.NewRedisStore(client, "refresh:", RefreshTTL), mr
}

// CreateUser seeds an identity with a bcrypt hash of password.
func CreateUser(t *testing.T, db *gorm.DB, username, password, role string) *models.User {
	t.Helper()

	pw, err := hash.HashPassword(password)
	require.NoError(t, err)
	u := &models.User{Username: username, PasswordHash: pw, Role: role}
	require.NoError(t, db.WithContext(context.Background()).Create(u).Error)
	return u
}

func LockUser(t *testing.T, db *gorm.DB, username string) {
	t.Helper()

	require.NoError(t, db.Model(&models.User{}).Where("username = ?", username).Update("deleted", true).Error)
}

// DoJSONRequest runs a request through the full echo stack, middleware included.
func DoJSONRequest(t *testing.T, e *echo.Echo, method, path string, body any, opts ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader = http.NoBody
	if body != nil {
		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
		rd = &buf
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for _, o := range opts {
		o(req)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func WithCookie(c *http.Cookie) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(c) }
}

func WithBearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set(echo.HeaderAuthorization, "Bearer "+token) }
}

// CookieFrom returns the named cookie set on the response, or nil.
func CookieFrom(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func DecodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}
