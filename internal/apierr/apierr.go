// Package apierr translates domain errors into the JSON error body every
// endpoint returns: {status, code, message, path}.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/shop_auth/internal/service"
	"github.com/Skotchmaster/shop_auth/internal/tokens"
)

const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeMessageNotReadable  = "MESSAGE_NOT_READABLE"
	CodeMissingCookie       = "MISSING_COOKIE"
	CodeBadCredentials      = "BAD_CREDENTIALS"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeInvalidAccessToken  = "INVALID_ACCESS_TOKEN"
	CodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
	CodeTokenExpired        = "TOKEN_EXPIRED"
	CodeUserNotFound        = "USER_NOT_FOUND"
	CodeAccessDenied        = "ACCESS_DENIED"
	CodeNotFound            = "NOT_FOUND"
	CodeMethodNotAllowed    = "METHOD_NOT_ALLOWED"
	CodeUserAlreadyExists   = "USER_ALREADY_EXISTS"
	CodeAccountActive       = "ACCOUNT_ALREADY_ACTIVE"
	CodeAccountLocked       = "ACCOUNT_LOCKED"
	CodeInternal            = "INTERNAL_ERROR"
)

const lockedMessage = "Your account is deactivated. Would you like to restore it?"

type Error struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

type Body struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path"`
}

func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

var (
	Unauthorized       = New(http.StatusUnauthorized, CodeUnauthorized, "Authentication is required to access this resource")
	InvalidAccessToken = New(http.StatusUnauthorized, CodeInvalidAccessToken, "Invalid access token")
	AccessTokenExpired = New(http.StatusUnauthorized, CodeTokenExpired, "The access token has expired")
	UserNotFound       = New(http.StatusUnauthorized, CodeUserNotFound, "The username was not found.")
	AccessDenied       = New(http.StatusForbidden, CodeAccessDenied, "Access is denied")
	AccountLocked      = New(http.StatusLocked, CodeAccountLocked, lockedMessage)
	Internal           = New(http.StatusInternalServerError, CodeInternal, "Internal server error")
)

// From maps any error onto its transport representation. Unknown errors become
// 500 INTERNAL_ERROR and never leak their text.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return fromHTTPError(he)
	}

	wrap := func(status int, code, msg string) *Error {
		return &Error{Status: status, Code: code, Message: msg, Err: err}
	}
	switch {
	case errors.Is(err, service.ErrValidation):
		return wrap(http.StatusBadRequest, CodeValidation, validationMessage(err))
	case errors.Is(err, service.ErrMissingCookie):
		return wrap(http.StatusBadRequest, CodeMissingCookie, "Required cookie 'refreshToken' is missing")
	case errors.Is(err, service.ErrBadCredentials):
		return wrap(http.StatusUnauthorized, CodeBadCredentials, "Invalid username or password")
	case errors.Is(err, service.ErrInvalidRefreshToken):
		return wrap(http.StatusUnauthorized, CodeInvalidRefreshToken, "Invalid refresh token")
	case errors.Is(err, service.ErrTokenExpired):
		return wrap(http.StatusUnauthorized, CodeTokenExpired, "The refresh token has expired.")
	case errors.Is(err, tokens.ErrInvalidToken):
		return wrap(http.StatusUnauthorized, CodeInvalidAccessToken, "Invalid access token")
	case errors.Is(err, service.ErrUserNotFound):
		return wrap(http.StatusUnauthorized, CodeUserNotFound, "The username was not found.")
	case errors.Is(err, service.ErrUnauthorized):
		return wrap(http.StatusUnauthorized, CodeUnauthorized, Unauthorized.Message)
	case errors.Is(err, service.ErrAccessDenied):
		return wrap(http.StatusForbidden, CodeAccessDenied, AccessDenied.Message)
	case errors.Is(err, service.ErrUserAlreadyExist):
		return wrap(http.StatusConflict, CodeUserAlreadyExists, "A user with this username already exists")
	case errors.Is(err, service.ErrAccountAlreadyActive):
		return wrap(http.StatusConflict, CodeAccountActive, "The account is already active")
	case errors.Is(err, service.ErrAccountLocked):
		return wrap(http.StatusLocked, CodeAccountLocked, lockedMessage)
	default:
		return wrap(http.StatusInternalServerError, CodeInternal, Internal.Message)
	}
}

func fromHTTPError(he *echo.HTTPError) *Error {
	msg := http.StatusText(he.Code)
	if s, ok := he.Message.(string); ok && s != "" {
		msg = s
	}
	e := &Error{Status: he.Code, Message: msg, Err: he}
	switch he.Code {
	case http.StatusBadRequest:
		e.Code = CodeMessageNotReadable
	case http.StatusUnauthorized:
		e.Code = CodeUnauthorized
	case http.StatusForbidden:
		e.Code = CodeAccessDenied
	case http.StatusNotFound:
		e.Code = CodeNotFound
	case http.StatusMethodNotAllowed:
		e.Code = CodeMethodNotAllowed
	default:
		if he.Code >= 500 {
			e.Code, e.Message = CodeInternal, Internal.Message
		} else {
			e.Code = strings.ToUpper(strings.ReplaceAll(http.StatusText(he.Code), " ", "_"))
		}
	}
	return e
}

func validationMessage(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, service.ErrValidation.Error()+": "); i >= 0 {
		return msg[i+len(service.ErrValidation.Error())+2:]
	}
	return msg
}

// HTTPErrorHandler writes the structured body for every error that reaches echo.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	e := From(err)
	body := Body{
		Status:  e.Status,
		Code:    e.Code,
		Message: e.Message,
		Path:    c.Request().URL.Path,
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(e.Status)
		return
	}
	_ = c.JSON(e.Status, body)
}
