package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/thiagotlz/medcontrol/internal/model"
)

// SettingsRepository 用户通知配置数据访问接口
type SettingsRepository interface {
	GetByUserID(ctx context.Context, userID string) (*model.UserNotificationSettings, error)
	Create(ctx context.Context, settings *model.UserNotificationSettings) error
	Update(ctx context.Context, settings *model.UserNotificationSettings) error
}

type settingsRepo struct {
	db *gorm.DB
}

func NewSettingsRepo(db *gorm.DB) SettingsRepository {
	return &settingsRepo{db: db}
}

func (r *settingsRepo) GetByUserID(ctx context.Context, userID string) (*model.UserNotificationSettings, error) {
	var settings model.UserNotificationSettings
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&settings).Error
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (r *settingsRepo) Create(ctx context.Context, settings *model.UserNotificationSettings) error {
	return r.db.WithContext(ctx).Create(settings).Error
}

func (r *settingsRepo) Update(ctx context.Context, settings *model.UserNotificationSettings) error {
	return r.db.WithContext(ctx).Save(settings).Error
}
