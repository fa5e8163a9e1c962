package tokens

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

var errEmptyUsername = errors.New("username claim is empty")

type AccessClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

func (c AccessClaims) Validate() error {
	if c.Username == "" {
		return errEmptyUsername
	}
	return nil
}

type RefreshClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func (c RefreshClaims) Validate() error {
	if c.Username == "" {
		return errEmptyUsername
	}
	return nil
}
