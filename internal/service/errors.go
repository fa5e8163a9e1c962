package service

import (
	"errors"

	"github.com/Skotchmaster/shop_auth/internal/principal"
	"github.com/Skotchmaster/shop_auth/internal/refreshstore"
	"github.com/Skotchmaster/shop_auth/internal/repo"
	"github.com/Skotchmaster/shop_auth/internal/tokens"
)

var (
	ErrValidation           = errors.New("validation")             // 400
	ErrMissingCookie        = errors.New("refresh cookie missing") // 400
	ErrBadCredentials       = errors.New("bad credentials")        // 401
	ErrInvalidRefreshToken  = errors.New("invalid refresh token")  // 401
	ErrAccountAlreadyActive = errors.New("account already active") // 409
	ErrStoreUnavailable     = errors.New("store unavailable")      // 500
)

// Kinds owned by lower layers, surfaced unchanged.
var (
	ErrTokenExpired     = tokens.ErrTokenExpired
	ErrUserNotFound     = repo.ErrUserNotFound
	ErrUserAlreadyExist = repo.ErrUserAlreadyExist
	ErrAccountLocked    = principal.ErrAccountLocked
	ErrAccessDenied     = principal.ErrAccessDenied
	ErrUnauthorized     = principal.ErrUnauthorized
)

func storeErr(err error) error {
	if errors.Is(err, refreshstore.ErrUnavailable) {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return err
}
