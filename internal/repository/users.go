package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"Routinely/internal/model"
	apperrors "Routinely/pkg/errors"
)

// UserRepo 用户访问层，调度器只关心投递地址、时区和免打扰窗口
type UserRepo struct {
	db *gorm.DB
}

func NewUserRepo(db *gorm.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *UserRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.UserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepo) GetByPublicID(ctx context.Context, publicID int64) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).First(&user, "public_id = ?", publicID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.UserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepo) GetByChatID(ctx context.Context, chatID int64) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).First(&user, "chat_id = ?", chatID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.UserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateQuietWindow 更新免打扰窗口，两个值要么都为空要么都合法，由服务层校验
func (r *UserRepo) UpdateQuietWindow(ctx context.Context, id int64, start, end string) error {
	return r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"quiet_start": start,
			"quiet_end":   end,
		}).Error
}
