package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Skotchmaster/shop_auth/internal/apierr"
	"github.com/Skotchmaster/shop_auth/internal/logging"
	"github.com/Skotchmaster/shop_auth/internal/metrics"
	"github.com/Skotchmaster/shop_auth/internal/service"
)

type AuthHTTP struct {
	Svc     *service.AuthService
	Accts   *service.AccountService
	Cookies CookieConfig
	Metrics *metrics.Metrics
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req service.Registration
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "Malformed JSON request")
	}

	user, err := h.Accts.Register(ctx, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"id": user.ID, "username": user.Username, "role": user.Role,
	})
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req service.Credentials
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		h.count(logins, err)
		return echo.NewHTTPError(http.StatusBadRequest, "Malformed JSON request")
	}

	res, err := h.Svc.Login(ctx, req)
	h.count(logins, err)
	if err != nil {
		return err
	}

	c.SetCookie(h.Cookies.Refresh(res.RefreshToken, res.RefreshExp))
	return c.JSON(http.StatusOK, echo.Map{
		"accessToken": res.AccessToken,
		"id":          res.User.ID,
		"username":    res.User.Username,
	})
}

func refreshCookie(c echo.Context) string {
	ck, err := c.Cookie(RefreshCookieName)
	if err != nil {
		return ""
	}
	return ck.Value
}

func (h *AuthHTTP) Refresh(c echo.Context) error {
	res, err := h.Svc.Refresh(c.Request().Context(), refreshCookie(c))
	h.count(refreshes, err)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"access_token": res.AccessToken})
}

func (h *AuthHTTP) LogOut(c echo.Context) error {
	err := h.Svc.LogOut(c.Request().Context(), refreshCookie(c))
	h.count(logouts, err)
	if err != nil {
		return err
	}
	c.SetCookie(h.Cookies.Clear())
	return c.JSON(http.StatusOK, echo.Map{"message": "Logged out successfully"})
}

// count records an operation outcome labelled with the error code the client sees.
func (h *AuthHTTP) count(pick func(*metrics.Metrics) *prometheus.CounterVec, err error) {
	if h.Metrics == nil {
		return
	}
	vec := pick(h.Metrics)
	if err == nil {
		vec.WithLabelValues(metrics.OK, "").Inc()
		return
	}
	vec.WithLabelValues(metrics.Failed, apierr.From(err).Code).Inc()
}

func logins(m *metrics.Metrics) *prometheus.CounterVec    { return m.Logins }
func refreshes(m *metrics.Metrics) *prometheus.CounterVec { return m.Refreshes }
func logouts(m *metrics.Metrics) *prometheus.CounterVec   { return m.Logouts }
