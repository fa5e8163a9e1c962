package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Skotchmaster/shop_auth/internal/events"
	"github.com/Skotchmaster/shop_auth/internal/hash"
	"github.com/Skotchmaster/shop_auth/internal/logging"
	"github.com/Skotchmaster/shop_auth/internal/models"
	"github.com/Skotchmaster/shop_auth/internal/principal"
	"github.com/Skotchmaster/shop_auth/internal/tokens"
	"github.com/Skotchmaster/shop_auth/internal/util"
)

// AccountService covers the identity lifecycle around the session core:
// registration, self-service lock/restore and operator role changes.
type AccountService struct {
	Auth *AuthService
}

func (s *AccountService) Register(ctx context.Context, in Registration) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register", "username", in.Username)

	if err := validate(in); err != nil {
		l.Warn("register_failed", "status", 400, "reason", "validation", "error", err)
		return nil, err
	}

	pwHash, err := hash.HashPassword(in.Password)
	if err != nil {
		l.Error("register_failed", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, err
	}
	user := &models.User{
		Username:     in.Username,
		PasswordHash: pwHash,
		Role:         models.RoleUser,
	}
	if err := s.Auth.Repo.CreateUserIfNotExists(ctx, user); err != nil {
		if errors.Is(err, ErrUserAlreadyExist) {
			l.Warn("register_failed", "status", 409, "reason", "user already exist")
			return nil, err
		}
		l.Error("register_failed", "status", 500, "reason", "db_error", "error", err)
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.Auth.publish(ctx, events.TypeUserRegistered, user)
	l.Info("register_success", "status", 201, "user_id", user.ID)
	return user, nil
}

func (s *AccountService) Profile(ctx context.Context, p principal.Principal) (*models.User, error) {
	return s.Auth.Repo.FindByID(ctx, p.ID)
}

// Deactivate locks the caller's own account. Only an active customer may do it.
func (s *AccountService) Deactivate(ctx context.Context, p principal.Principal) error {
	l := logging.FromContext(ctx).With("svc", "people.deactivate", "username", p.Username)

	if err := principal.EnsureRole(p, models.RoleUser); err != nil {
		return err
	}
	if err := principal.EnsureActive(p); err != nil {
		return err
	}
	if err := s.Auth.Repo.SetDeleted(ctx, p.Username, true); err != nil {
		l.Error("deactivate_failed", "status", 500, "error", err)
		return err
	}

	s.Auth.publish(ctx, events.TypeAccountLocked, &models.User{ID: p.ID, Username: p.Username, Role: p.Role})
	l.Info("deactivate_success", "status", 200)
	return nil
}

// Restore reactivates a locked account after re-checking its credentials. It is
// reachable without a bearer token so a locked user can get back in.
func (s *AccountService) Restore(ctx context.Context, in Credentials) error {
	l := logging.FromContext(ctx).With("svc", "people.restore", "username", in.Username)

	if err := validate(in); err != nil {
		return err
	}
	user, err := s.Auth.Repo.FindByUsername(ctx, in.Username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			l.Warn("restore_failed", "status", 401, "reason", "unknown username")
			return ErrBadCredentials
		}
		return fmt.Errorf("find user: %w", err)
	}
	if !hash.CheckPassword(user.PasswordHash, in.Password) {
		l.Warn("restore_failed", "status", 401, "reason", "wrong password")
		return ErrBadCredentials
	}
	if user.Active() {
		l.Warn("restore_failed", "status", 409, "reason", "already active")
		return ErrAccountAlreadyActive
	}
	if err := s.Auth.Repo.SetDeleted(ctx, user.Username, false); err != nil {
		return err
	}

	s.Auth.publish(ctx, events.TypeAccountRestored, user)
	l.Info("restore_success", "status", 200)
	return nil
}

// SetLocked is the operator switch behind the demo helpers and the CLI.
func (s *AccountService) SetLocked(ctx context.Context, username string, locked bool) error {
	if err := s.Auth.Repo.SetDeleted(ctx, username, locked); err != nil {
		return err
	}
	typ := events.TypeAccountRestored
	if locked {
		typ = events.TypeAccountLocked
	}
	s.Auth.publish(ctx, typ, &models.User{Username: username})
	return nil
}

// SetRole changes the role and drops the stored refresh token, so the next
// session starts from a fresh login with the new role.
func (s *AccountService) SetRole(ctx context.Context, username, role string) error {
	if role != models.RoleUser && role != models.RoleAdmin {
		return fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}
	if err := s.Auth.Repo.SetRole(ctx, username, role); err != nil {
		return err
	}
	if err := s.Auth.Store.Delete(ctx, username); err != nil {
		return storeErr(err)
	}
	s.Auth.publish(ctx, events.TypeRoleChanged, &models.User{Username: username, Role: role})
	logging.FromContext(ctx).Info("role_changed", "username", username, "role", role)
	return nil
}

func (s *AccountService) ListCustomers(ctx context.Context, p principal.Principal, page util.Page) ([]models.User, error) {
	if err := principal.EnsureRole(p, models.RoleAdmin); err != nil {
		return nil, err
	}
	if err := principal.EnsureActive(p); err != nil {
		return nil, err
	}
	return s.Auth.Repo.ListByRole(ctx, models.RoleUser, page)
}

// IssueRefresh mints and stores a refresh token for any username without a
// password check. Only the demo helpers call it.
func (s *AccountService) IssueRefresh(ctx context.Context, username string) (string, time.Time, error) {
	if username == "" {
		return "", time.Time{}, fmt.Errorf("%w: username is required", ErrValidation)
	}
	token, exp, err := s.Auth.Codec.MintRefresh(username)
	if err != nil {
		return "", time.Time{}, err
	}
	if err := s.Auth.Store.Save(ctx, username, token); err != nil {
		return "", time.Time{}, storeErr(err)
	}
	s.Auth.minted(tokens.KindRefresh)
	return token, exp, nil
}
