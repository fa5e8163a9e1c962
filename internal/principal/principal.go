package principal

import (
	"context"
	"errors"
	"slices"

	"github.com/Skotchmaster/shop_auth/internal/models"
)

var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrAccessDenied  = errors.New("access denied")
	ErrAccountLocked = errors.New("account locked")
)

// Principal is the caller resolved for a single request. It lives only in the
// request context.
type Principal struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Active   bool   `json:"active"`
}

func FromUser(u *models.User) Principal {
	return Principal{ID: u.ID, Username: u.Username, Role: u.Role, Active: u.Active()}
}

type ctxKey struct{}

func IntoContext(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}

// EnsureActive rejects a locked account. Privileged operations call it first.
func EnsureActive(p Principal) error {
	if !p.Active {
		return ErrAccountLocked
	}
	return nil
}

func EnsureRole(p Principal, roles ...string) error {
	if !slices.Contains(roles, p.Role) {
		return ErrAccessDenied
	}
	return nil
}

// Require returns the request principal or ErrUnauthorized for an anonymous call.
func Require(ctx context.Context) (Principal, error) {
	p, ok := FromContext(ctx)
	if !ok {
		return Principal{}, ErrUnauthorized
	}
	return p, nil
}
