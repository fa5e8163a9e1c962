package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	ecM "github.com/labstack/echo/v4/middleware"
)

func Common(allowedOrigins []string) []echo.MiddlewareFunc {
	mw := []echo.MiddlewareFunc{
		ecM.Recover(),
		ecM.RequestID(),
		ecM.Secure(),
	}
	if len(allowedOrigins) > 0 {
		mw = append(mw, ecM.CORSWithConfig(ecM.CORSConfig{
			AllowOrigins:     allowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
			AllowHeaders:     []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderXRequestID},
			AllowCredentials: true,
		}))
	}
	return mw
}
