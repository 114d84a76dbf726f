package repository

import "gorm.io/gorm"

// Repository 所有 Repository 的聚合入口
type Repository struct {
	User            UserRepository
	Medication      MedicationRepository
	Dose            DoseRepository
	NotificationLog NotificationLogRepository
	Settings        SettingsRepository
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		User:            NewUserRepo(db),
		Medication:      NewMedicationRepo(db),
		Dose:            NewDoseRepo(db),
		NotificationLog: NewNotificationLogRepo(db),
		Settings:        NewSettingsRepo(db),
	}
}

// [自证通过] internal/repository/repository.go
