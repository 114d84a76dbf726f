package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/thiagotlz/medcontrol/internal/model"
)

// NotificationLogRepository 通知日志数据访问接口（仅追加 + 定期清理）
type NotificationLogRepository interface {
	Create(ctx context.Context, log *model.NotificationLog) error
	ListByMedication(ctx context.Context, medicationID string, limit int) ([]model.NotificationLog, error)
	// Purge 删除早于阈值的日志，返回删除条数
	Purge(ctx context.Context, before time.Time) (int64, error)
}

type notificationLogRepo struct {
	db *gorm.DB
}

func NewNotificationLogRepo(db *gorm.DB) NotificationLogRepository {
	return &notificationLogRepo{db: db}
}

func (r *notificationLogRepo) Create(ctx context.Context, log *model.NotificationLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *notificationLogRepo) ListByMedication(ctx context.Context, medicationID string, limit int) ([]model.NotificationLog, error) {
	if limit <= 0 {
		limit = 20
	}
	var logs []model.NotificationLog
	err := r.db.WithContext(ctx).
		Where("medication_id = ?", medicationID).
		Order("sent_at DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

func (r *notificationLogRepo) Purge(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("sent_at < ?", before).
		Delete(&model.NotificationLog{})
	return result.RowsAffected, result.Error
}
