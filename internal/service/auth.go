package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/Skotchmaster/shop_auth/internal/events"
	"github.com/Skotchmaster/shop_auth/internal/hash"
	"github.com/Skotchmaster/shop_auth/internal/logging"
	"github.com/Skotchmaster/shop_auth/internal/metrics"
	"github.com/Skotchmaster/shop_auth/internal/models"
	"github.com/Skotchmaster/shop_auth/internal/refreshstore"
	"github.com/Skotchmaster/shop_auth/internal/tokens"
	"github.com/Skotchmaster/shop_auth/internal/util"
)

// UserRepo is the identity lookup and mutation surface the services rely on.
type UserRepo interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByID(ctx context.Context, id uint) (*models.User, error)
	CreateUserIfNotExists(ctx context.Context, u *models.User) error
	SetDeleted(ctx context.Context, username string, deleted bool) error
	SetRole(ctx context.Context, username, role string) error
	ListByRole(ctx context.Context, role string, page util.Page) ([]models.User, error)
}

type AuthService struct {
	Repo    UserRepo
	Store   refreshstore.Store
	Codec   *tokens.Codec
	Events  events.Publisher
	Metrics *metrics.Metrics
}

type LoginResult struct {
	AccessToken  string
	RefreshToken string
	AccessExp    time.Time
	RefreshExp   time.Time
	User         *models.User
}

type RefreshResult struct {
	AccessToken string
	AccessExp   time.Time
}

func (h *AuthService) Login(ctx context.Context, in Credentials) (*LoginResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login", "username", in.Username)

	if err := validate(in); err != nil {
		l.Warn("login_failed", "status", 400, "reason", "validation", "error", err)
		return nil, err
	}

	user, err := h.Repo.FindByUsername(ctx, in.Username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			l.Warn("login_failed", "status", 401, "reason", "unknown username")
			return nil, ErrBadCredentials
		}
		l.Error("login_failed", "status", 500, "reason", "db_error", "error", err)
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !hash.CheckPassword(user.PasswordHash, in.Password) {
		l.Warn("login_failed", "status", 401, "reason", "wrong password")
		return nil, ErrBadCredentials
	}
	if !user.Active() {
		l.Warn("login_failed", "status", 423, "reason", "account locked")
		return nil, ErrAccountLocked
	}

	res, err := h.issueSession(ctx, user)
	if err != nil {
		l.Error("login_failed", "status", 500, "error", err)
		return nil, err
	}

	h.publish(ctx, events.TypeUserLoggedIn, user)
	l.Info("login_success", "status", 200, "user_id", user.ID)
	return res, nil
}

// issueSession mints both tokens and persists the refresh token. Nothing is
// returned unless the refresh token was stored.
func (h *AuthService) issueSession(ctx context.Context, user *models.User) (*LoginResult, error) {
	access, accessExp, err := h.Codec.MintAccess(user.Username, user.Role)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := h.Codec.MintRefresh(user.Username)
	if err != nil {
		return nil, err
	}
	if err := h.Store.Save(ctx, user.Username, refresh); err != nil {
		return nil, storeErr(err)
	}
	h.minted(tokens.KindAccess)
	h.minted(tokens.KindRefresh)

	return &LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
		User:         user,
	}, nil
}

// Refresh mints a new access token from the stored refresh token. The refresh
// token itself is not rotated and stays valid until it expires or is replaced.
func (h *AuthService) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")

	if refreshToken == "" {
		l.Warn("refresh_failed", "status", 400, "reason", "no refresh cookie")
		return nil, ErrMissingCookie
	}

	claims, err := h.Codec.VerifyRefresh(refreshToken)
	if err != nil {
		if errors.Is(err, tokens.ErrTokenExpired) {
			l.Warn("refresh_failed", "status", 401, "reason", "expired")
			return nil, ErrTokenExpired
		}
		l.Warn("refresh_failed", "status", 401, "reason", "invalid", "error", err)
		return nil, ErrInvalidRefreshToken
	}
	l = l.With("username", claims.Username)

	user, err := h.Repo.FindByUsername(ctx, claims.Username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			l.Warn("refresh_failed", "status", 401, "reason", "user not found")
			return nil, ErrUserNotFound
		}
		l.Error("refresh_failed", "status", 500, "reason", "db_error", "error", err)
		return nil, fmt.Errorf("find user: %w", err)
	}

	stored, err := h.Store.Get(ctx, claims.Username)
	if err != nil {
		if errors.Is(err, refreshstore.ErrNotFound) {
			l.Warn("refresh_failed", "status", 401, "reason", "no stored token")
			return nil, ErrInvalidRefreshToken
		}
		l.Error("refresh_failed", "status", 500, "reason", "store", "error", err)
		return nil, storeErr(err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(refreshToken)) != 1 {
		l.Warn("refresh_failed", "status", 401, "reason", "token replaced")
		return nil, ErrInvalidRefreshToken
	}

	if !user.Active() {
		l.Warn("refresh_failed", "status", 423, "reason", "account locked")
		return nil, ErrAccountLocked
	}

	access, exp, err := h.Codec.MintAccess(user.Username, user.Role)
	if err != nil {
		l.Error("refresh_failed", "status", 500, "error", err)
		return nil, err
	}
	h.minted(tokens.KindAccess)

	h.publish(ctx, events.TypeTokenRefreshed, user)
	l.Info("refresh_success", "status", 200)
	return &RefreshResult{AccessToken: access, AccessExp: exp}, nil
}

func (h *AuthService) LogOut(ctx context.Context, refreshToken string) error {
	l := logging.FromContext(ctx).With("svc", "auth.logout")

	if refreshToken == "" {
		l.Warn("logout_failed", "status", 400, "reason", "no refresh cookie")
		return ErrMissingCookie
	}

	claims, err := h.Codec.VerifyRefresh(refreshToken)
	if err != nil {
		l.Warn("logout_failed", "status", 401, "reason", "invalid", "error", err)
		return ErrInvalidRefreshToken
	}
	l = l.With("username", claims.Username)

	if err := h.Store.Delete(ctx, claims.Username); err != nil {
		l.Error("logout_failed", "status", 500, "reason", "store", "error", err)
		return storeErr(err)
	}

	h.publish(ctx, events.TypeUserLoggedOut, &models.User{Username: claims.Username})
	l.Info("logout_success", "status", 200)
	return nil
}

func (h *AuthService) minted(kind string) {
	if h.Metrics != nil {
		h.Metrics.TokensMinted.WithLabelValues(kind).Inc()
	}
}

// publish is fire and forget: a broker problem never fails an auth operation.
func (h *AuthService) publish(ctx context.Context, typ string, u *models.User) {
	if h.Events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	ev := events.Event{Type: typ, UserID: u.ID, Username: u.Username, Role: u.Role}
	if err := h.Events.Publish(ctx, ev); err != nil {
		logging.FromContext(ctx).Warn("kafka_publish_error", "type", typ, "error", err)
	}
}
