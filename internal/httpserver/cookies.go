package httpserver

import (
	"net/http"
	"time"
)

const RefreshCookieName = "refreshToken"

// CookieConfig describes the refresh cookie. It is always HttpOnly and scoped
// to the whole site.
type CookieConfig struct {
	Secure   bool
	SameSite http.SameSite
	MaxAge   time.Duration
}

func (cc CookieConfig) Refresh(value string, exp time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     RefreshCookieName,
		Value:    value,
		Path:     "/",
		Expires:  exp,
		MaxAge:   int(cc.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cc.Secure,
		SameSite: cc.SameSite,
	}
}

// Clear expires the refresh cookie. net/http writes a negative MaxAge as Max-Age=0.
func (cc CookieConfig) Clear() *http.Cookie {
	return &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cc.Secure,
		SameSite: cc.SameSite,
	}
}
