package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Skotchmaster/shop_auth/internal/models"
	"github.com/Skotchmaster/shop_auth/internal/util"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrUserAlreadyExist = errors.New("user already exist")
)

// FindByUsername matches the username exactly; lookups are case-sensitive.
func (r *GormRepo) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *GormRepo) FindByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *GormRepo) CreateUserIfNotExists(ctx context.Context, u *models.User) error {
	tx := r.DB.WithContext(ctx).Where("username = ?", u.Username).FirstOrCreate(u)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrUserAlreadyExist
	}
	return nil
}

// SetDeleted locks (true) or restores (false) an account.
func (r *GormRepo) SetDeleted(ctx context.Context, username string, deleted bool) error {
	return r.update(ctx, username, "deleted", deleted)
}

func (r *GormRepo) SetRole(ctx context.Context, username, role string) error {
	return r.update(ctx, username, "role", role)
}

func (r *GormRepo) update(ctx context.Context, username, column string, value any) error {
	tx := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("username = ?", username).
		Update(column, value)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *GormRepo) ListByRole(ctx context.Context, role string, page util.Page) ([]models.User, error) {
	var users []models.User
	err := r.DB.WithContext(ctx).
		Where("role = ?", role).
		Order("id").
		Offset(page.Offset()).
		Limit(page.Limit()).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}
