package events

import (
	"context"
	"time"
)

const (
	TypeUserRegistered  = "user_registered"
	TypeUserLoggedIn    = "user_logged_in"
	TypeUserLoggedOut   = "user_logged_out"
	TypeTokenRefreshed  = "token_refreshed"
	TypeAccountLocked   = "account_locked"
	TypeAccountRestored = "account_restored"
	TypeRoleChanged     = "role_changed"
)

type Event struct {
	Type     string    `json:"type"`
	UserID   uint      `json:"userID"`
	Username string    `json:"username"`
	Role     string    `json:"role,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher delivers auth events. Implementations must not block the caller on
// broker availability.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
