package model

import "time"

// 通知投递结果
const (
	NotifyOutcomeSent   = "sent"
	NotifyOutcomeFailed = "failed"
)

// NotificationLog 通知日志表 — 对应 notification_logs（仅追加，90 天后清理）
type NotificationLog struct {
	LogID        string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"log_id"`
	MedicationID string    `gorm:"type:uuid;not null"                             json:"medication_id"`
	DoseID       string    `gorm:"type:uuid;not null"                             json:"dose_id"`
	Channel      string    `gorm:"type:varchar(20);not null;default:'email'"      json:"channel"`
	Outcome      string    `gorm:"type:varchar(10);not null"                      json:"outcome"` // sent | failed
	Message      string    `gorm:"type:text"                                      json:"message"`
	SentAt       time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index"       json:"sent_at"`
}

// TableName 指定表名
func (NotificationLog) TableName() string { return "notification_logs" }
