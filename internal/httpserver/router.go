package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/shop_auth/internal/apierr"
	"github.com/Skotchmaster/shop_auth/internal/middleware"
	"github.com/Skotchmaster/shop_auth/internal/models"
)

type Check func(ctx context.Context) error

type Deps struct {
	Log            *slog.Logger
	AllowedOrigins []string

	Gate   *middleware.Authenticator
	Auth   *AuthHTTP
	People *PeopleHTTP
	// Dev is nil unless demo helpers are enabled.
	Dev *DevHTTP

	Ready   map[string]Check
	Metrics http.Handler
}

// NewServer builds the echo instance with the middleware chain and all routes.
func NewServer(d *Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = apierr.HTTPErrorHandler

	e.Use(middleware.Common(d.AllowedOrigins)...)
	e.Use(middleware.RequestLogger(d.Log))
	e.Use(d.Gate.Authenticate)

	Register(e, d)
	return e
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", ready(d.Ready))
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics))
	}

	auth := e.Group("/auth")
	auth.POST("/login", d.Auth.Login)
	auth.POST("/registration", d.Auth.Register)
	auth.POST("/refresh", d.Auth.Refresh)
	auth.POST("/logout", d.Auth.LogOut)

	people := e.Group("/people")
	people.GET("/profile", d.People.Profile, middleware.RequireAuth)
	people.Match([]string{http.MethodPost, http.MethodPatch}, "/deactivate-account",
		d.People.Deactivate, middleware.RequireRole(models.RoleUser))
	people.Match([]string{http.MethodPost, http.MethodPatch}, "/restore-account", d.People.Restore)
	people.GET("/all-customers", d.People.AllCustomers, middleware.RequireRole(models.RoleAdmin))

	if d.Dev != nil {
		dev := e.Group("/auth/dev")
		dev.POST("/_lock", d.Dev.Lock)
		dev.POST("/_unlock", d.Dev.Unlock)
		dev.PATCH("/_demote", d.Dev.Demote)

		e.POST("/auth/refresh-dev/_issue-refresh", d.Dev.IssueRefresh)

		logoutDev := e.Group("/auth/logout-dev")
		logoutDev.POST("/_issue-refresh", d.Dev.IssueRefresh)
		logoutDev.POST("/_issue-invalid", d.Dev.IssueInvalid)
		logoutDev.POST("/_clear-cookie", d.Dev.ClearCookie)
	}
}

func ready(checks map[string]Check) echo.HandlerFunc {
	names := make([]string, 0, len(checks))
	for n := range checks {
		names = append(names, n)
	}
	sort.Strings(names)

	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		res := echo.Map{}
		for _, n := range names {
			if err := checks[n](ctx); err != nil {
				status = http.StatusServiceUnavailable
				res[n] = err.Error()
				continue
			}
			res[n] = "ok"
		}
		return c.JSON(status, res)
	}
}
