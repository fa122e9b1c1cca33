package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"Routinely/internal/model"
	"Routinely/internal/repository"
	apperrors "Routinely/pkg/errors"
	"Routinely/pkg/logger"
	"Routinely/pkg/snowflake"
	"Routinely/storage/database"
	"Routinely/utils"
)

// UserService 用户注册与免打扰窗口管理
type UserService struct {
	users UserStore
	opts  Options
}

var (
	userService *UserService
	userOnce    sync.Once
)

func User() *UserService {
	userOnce.Do(func() {
		userService = NewUserService(
			repository.NewUserRepo(database.DB()),
			OptionsFromConfig(),
		)
	})
	return userService
}

func NewUserService(users UserStore, opts Options) *UserService {
	return &UserService{users: users, opts: opts}
}

// Register 注册用户。chat 已存在时返回已有用户（幂等）。
// 未显式给出免打扰窗口的用户拿全局默认窗口。
func (s *UserService) Register(ctx context.Context, chatID int64, timezone, quietStart, quietEnd string) (*model.User, error) {
	if existing, err := s.users.GetByChatID(ctx, chatID); err == nil {
		return existing, nil
	} else if err != apperrors.UserNotFound {
		return nil, err
	}

	if timezone == "" {
		timezone = "UTC"
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, apperrors.InvalidRequest
	}

	if quietStart == "" && quietEnd == "" {
		quietStart = s.opts.DefaultQuietStart
		quietEnd = s.opts.DefaultQuietEnd
	}
	if err := validateQuietWindow(quietStart, quietEnd); err != nil {
		return nil, err
	}

	publicID, err := snowflake.NextID()
	if err != nil {
		return nil, err
	}

	user := &model.User{
		PublicID:   publicID,
		ChatID:     chatID,
		Timezone:   timezone,
		QuietStart: quietStart,
		QuietEnd:   quietEnd,
		Status:     model.UserStatusActive,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	logger.Logger.Info("User registered",
		zap.Int64("user_id", user.ID),
		zap.Int64("chat_id", chatID),
		zap.String("timezone", timezone),
	)
	return user, nil
}

func (s *UserService) Get(ctx context.Context, publicID int64) (*model.User, error) {
	return s.users.GetByPublicID(ctx, publicID)
}

func (s *UserService) GetByChatID(ctx context.Context, chatID int64) (*model.User, error) {
	return s.users.GetByChatID(ctx, chatID)
}

// UpdateQuietWindow 更新免打扰窗口，传空字符串对表示关闭窗口
func (s *UserService) UpdateQuietWindow(ctx context.Context, publicID int64, start, end string) (*model.User, error) {
	user, err := s.users.GetByPublicID(ctx, publicID)
	if err != nil {
		return nil, err
	}

	if err := validateQuietWindow(start, end); err != nil {
		return nil, err
	}

	if err := s.users.UpdateQuietWindow(ctx, user.ID, start, end); err != nil {
		return nil, err
	}

	user.QuietStart = start
	user.QuietEnd = end
	return user, nil
}

// validateQuietWindow 两个值要么都为空（无窗口），要么都是合法时刻
func validateQuietWindow(start, end string) error {
	if start == "" && end == "" {
		return nil
	}
	if start == "" || end == "" {
		return apperrors.QuietWindowInvalid
	}
	if _, err := utils.ParseClock(start); err != nil {
		return apperrors.QuietWindowInvalid
	}
	if _, err := utils.ParseClock(end); err != nil {
		return apperrors.QuietWindowInvalid
	}
	return nil
}
