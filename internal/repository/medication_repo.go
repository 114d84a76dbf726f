package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/thiagotlz/medcontrol/internal/model"
)

// MedicationRepository 药品数据访问接口
type MedicationRepository interface {
	Create(ctx context.Context, medication *model.Medication) error
	GetByID(ctx context.Context, id string) (*model.Medication, error)
	ListByUser(ctx context.Context, userID string, activeOnly bool) ([]model.Medication, error)
	// ListActiveForScheduling 返回全部启用中的药品（附属主用户），供补充触发器遍历
	ListActiveForScheduling(ctx context.Context) ([]model.Medication, error)
	Update(ctx context.Context, medication *model.Medication) error
	Delete(ctx context.Context, id string) error
}

type medicationRepo struct {
	db *gorm.DB
}

func NewMedicationRepo(db *gorm.DB) MedicationRepository {
	return &medicationRepo{db: db}
}

func (r *medicationRepo) Create(ctx context.Context, medication *model.Medication) error {
	return r.db.WithContext(ctx).Create(medication).Error
}

func (r *medicationRepo) GetByID(ctx context.Context, id string) (*model.Medication, error) {
	var medication model.Medication
	err := r.db.WithContext(ctx).
		Where("medication_id = ?", id).
		First(&medication).Error
	if err != nil {
		return nil, err
	}
	return &medication, nil
}

func (r *medicationRepo) ListByUser(ctx context.Context, userID string, activeOnly bool) ([]model.Medication, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if activeOnly {
		q = q.Where("active = ?", true)
	}

	var medications []model.Medication
	if err := q.Order("created_at DESC").Find(&medications).Error; err != nil {
		return nil, err
	}
	return medications, nil
}

func (r *medicationRepo) ListActiveForScheduling(ctx context.Context) ([]model.Medication, error) {
	var medications []model.Medication
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("active = ?", true).
		Order("start_time ASC").
		Find(&medications).Error
	if err != nil {
		return nil, err
	}
	return medications, nil
}

func (r *medicationRepo) Update(ctx context.Context, medication *model.Medication) error {
	return r.db.WithContext(ctx).Save(medication).Error
}

func (r *medicationRepo) Delete(ctx context.Context, id string) error {
	// medication_doses / notification_logs 由外键级联删除
	return r.db.WithContext(ctx).
		Where("medication_id = ?", id).
		Delete(&model.Medication{}).Error
}
