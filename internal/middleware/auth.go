package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/shop_auth/internal/apierr"
	"github.com/Skotchmaster/shop_auth/internal/logging"
	"github.com/Skotchmaster/shop_auth/internal/metrics"
	"github.com/Skotchmaster/shop_auth/internal/models"
	"github.com/Skotchmaster/shop_auth/internal/principal"
	"github.com/Skotchmaster/shop_auth/internal/repo"
	"github.com/Skotchmaster/shop_auth/internal/tokens"
)

// CtxAuthError holds the deferred *apierr.Error of a rejected bearer token.
const CtxAuthError = "auth_error"

const bearerPrefix = "Bearer "

type IdentityLookup interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
}

// Authenticator resolves the bearer token of every request into a principal.
// Token problems are deferred, so anonymous routes keep working with a bad
// header; only RequireAuth and RequireRole turn them into responses.
type Authenticator struct {
	Codec   *tokens.Codec
	Users   IdentityLookup
	Metrics *metrics.Metrics
}

func (a *Authenticator) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		if !strings.HasPrefix(header, bearerPrefix) {
			a.decision("anonymous")
			return next(c)
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))

		ctx := c.Request().Context()
		l := logging.FromContext(ctx)

		claims, err := a.Codec.VerifyAccess(token)
		if err != nil {
			if errors.Is(err, tokens.ErrTokenExpired) {
				a.deferErr(c, apierr.AccessTokenExpired, "expired")
			} else {
				a.deferErr(c, apierr.InvalidAccessToken, "invalid")
			}
			l.Debug("bearer_rejected", "error", err)
			return next(c)
		}

		user, err := a.Users.FindByUsername(ctx, claims.Username)
		if err != nil {
			if errors.Is(err, repo.ErrUserNotFound) {
				a.deferErr(c, apierr.UserNotFound, "user_not_found")
				return next(c)
			}
			a.decision("error")
			l.Error("identity_lookup_failed", "username", claims.Username, "error", err)
			return &apierr.Error{
				Status:  apierr.Internal.Status,
				Code:    apierr.Internal.Code,
				Message: apierr.Internal.Message,
				Err:     err,
			}
		}

		p := principal.FromUser(user)
		ctx = principal.IntoContext(ctx, p)
		ctx = logging.IntoContext(ctx, l.With("username", p.Username))
		c.SetRequest(c.Request().WithContext(ctx))
		a.decision("authenticated")
		return next(c)
	}
}

func (a *Authenticator) deferErr(c echo.Context, e *apierr.Error, decision string) {
	c.Set(CtxAuthError, e)
	a.decision(decision)
}

func (a *Authenticator) decision(d string) {
	if a.Metrics != nil {
		a.Metrics.GateDecisions.WithLabelValues(d).Inc()
	}
}

// Principal returns the authenticated caller, if any.
func Principal(c echo.Context) (principal.Principal, bool) {
	return principal.FromContext(c.Request().Context())
}

func authFailure(c echo.Context) error {
	if e, ok := c.Get(CtxAuthError).(*apierr.Error); ok {
		return e
	}
	return apierr.Unauthorized
}

// RequireAuth rejects anonymous calls with the deferred token error, or
// UNAUTHORIZED when no token was sent.
func RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, ok := Principal(c); !ok {
			return authFailure(c)
		}
		return next(c)
	}
}

func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := Principal(c)
			if !ok {
				return authFailure(c)
			}
			if err := principal.EnsureRole(p, roles...); err != nil {
				return apierr.AccessDenied
			}
			return next(c)
		}
	}
}
