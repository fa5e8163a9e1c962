package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Codec mints and verifies the HS256 access and refresh tokens.
// It holds no state besides its configuration and is safe for concurrent use.
type Codec struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

type Option func(*Codec)

func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

func NewCodec(secret []byte, issuer string, accessTTL, refreshTTL time.Duration, opts ...Option) *Codec {
	c := &Codec{
		secret:     secret,
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Codec) AccessTTL() time.Duration  { return c.accessTTL }
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

func (c *Codec) registered(kind string, ttl time.Duration) jwt.RegisteredClaims {
	iat := c.now()
	return jwt.RegisteredClaims{
		Issuer:    c.issuer,
		Subject:   kind,
		IssuedAt:  jwt.NewNumericDate(iat),
		ExpiresAt: jwt.NewNumericDate(iat.Add(ttl)),
		ID:        uuid.NewString(),
	}
}

func (c *Codec) MintAccess(username, role string) (string, time.Time, error) {
	claims := AccessClaims{
		Username:         username,
		Role:             role,
		RegisteredClaims: c.registered(KindAccess, c.accessTTL),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return token, claims.ExpiresAt.Time, nil
}

func (c *Codec) MintRefresh(username string) (string, time.Time, error) {
	claims := RefreshClaims{
		Username:         username,
		RegisteredClaims: c.registered(KindRefresh, c.refreshTTL),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return token, claims.ExpiresAt.Time, nil
}

func (c *Codec) VerifyAccess(token string) (*AccessClaims, error) {
	var claims AccessClaims
	if err := c.parse(token, KindAccess, &claims); err != nil {
		return nil, err
	}
	return &claims, nil
}

func (c *Codec) VerifyRefresh(token string) (*RefreshClaims, error) {
	var claims RefreshClaims
	if err := c.parse(token, KindRefresh, &claims); err != nil {
		return nil, err
	}
	return &claims, nil
}

func (c *Codec) parse(token, kind string, claims jwt.Claims) error {
	p := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithSubject(kind),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	tkn, err := p.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return classify(err)
	}
	if !tkn.Valid {
		return ErrInvalidToken
	}
	return nil
}

// classify maps parser errors onto the two codec kinds. A token counts as expired
// only when expiry is its sole problem: the signature has already been checked by
// then, and kind or issuer mismatches win over expiry.
func classify(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) &&
		!errors.Is(err, jwt.ErrTokenInvalidIssuer) &&
		!errors.Is(err, jwt.ErrTokenInvalidSubject) &&
		!errors.Is(err, errEmptyUsername) {
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	}
	return fmt.Errorf("%w: %v", ErrInvalidToken, err)
}
