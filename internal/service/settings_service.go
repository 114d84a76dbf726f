package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/thiagotlz/medcontrol/internal/dto"
	"github.com/thiagotlz/medcontrol/internal/model"
	"github.com/thiagotlz/medcontrol/internal/repository"
	"github.com/thiagotlz/medcontrol/pkg/mailer"
)

// ErrSettingsIncomplete 通知配置不完整，无法执行发信操作
var ErrSettingsIncomplete = errors.New("通知配置不完整，请先填写推送邮箱与 SMTP 凭据")

// SettingsService 通知配置业务接口
type SettingsService interface {
	// Get 返回用户通知配置，首次访问时创建默认配置
	Get(ctx context.Context, userID string) (*dto.SettingsResponse, error)
	Update(ctx context.Context, userID string, req *dto.UpdateSettingsRequest) (*dto.SettingsResponse, error)
	Status(ctx context.Context, userID string) (*dto.SettingsStatusResponse, error)
	// SendTest 用当前配置发送测试邮件，验证 SMTP 连通性与网关地址
	SendTest(ctx context.Context, userID string) (*dto.TestEmailResponse, error)
}

type settingsService struct {
	repo   *repository.Repository
	sender mailer.Sender
	logger *zap.Logger
}

// NewSettingsService 创建 SettingsService 实例
func NewSettingsService(repo *repository.Repository, sender mailer.Sender, logger *zap.Logger) SettingsService {
	return &settingsService{repo: repo, sender: sender, logger: logger}
}

func (s *settingsService) Get(ctx context.Context, userID string) (*dto.SettingsResponse, error) {
	settings, err := s.getOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toSettingsResponse(settings), nil
}

func (s *settingsService) Update(ctx context.Context, userID string, req *dto.UpdateSettingsRequest) (*dto.SettingsResponse, error) {
	settings, err := s.getOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.PushoverEmail != nil {
		settings.PushoverEmail = req.PushoverEmail
	}
	if req.SMTPHost != nil {
		settings.SMTPHost = req.SMTPHost
	}
	if req.SMTPPort != nil {
		settings.SMTPPort = req.SMTPPort
	}
	if req.SMTPSecure != nil {
		settings.SMTPSecure = *req.SMTPSecure
	}
	if req.SMTPUser != nil {
		settings.SMTPUser = req.SMTPUser
	}
	if req.SMTPPassword != nil {
		settings.SMTPPassword = req.SMTPPassword
	}
	if req.Enabled != nil {
		settings.NotificationsEnabled = *req.Enabled
	}

	if err := s.repo.Settings.Update(ctx, settings); err != nil {
		s.logger.Error("更新通知配置失败", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	return toSettingsResponse(settings), nil
}

func (s *settingsService) Status(ctx context.Context, userID string) (*dto.SettingsStatusResponse, error) {
	settings, err := s.getOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &dto.SettingsStatusResponse{
		Enabled:          settings.NotificationsEnabled,
		HasPushoverEmail: settings.HasPushoverEmail(),
		HasSMTPConfig:    settings.HasValidSMTPConfig(),
		FullyConfigured:  settings.FullyConfigured(),
	}, nil
}

func (s *settingsService) SendTest(ctx context.Context, userID string) (*dto.TestEmailResponse, error) {
	settings, err := s.getOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !settings.HasPushoverEmail() || !settings.HasValidSMTPConfig() {
		return nil, ErrSettingsIncomplete
	}

	cfg := smtpConfigOf(settings)

	// 先做连通性预检，给出比投递失败更准确的错误
	if err := s.sender.Verify(ctx, cfg); err != nil {
		return &dto.TestEmailResponse{
			Delivered: false,
			Detail:    fmt.Sprintf("SMTP 连接失败: %v", err),
		}, nil
	}

	msg := &mailer.Message{
		To:      *settings.PushoverEmail,
		Subject: "MedControl 测试通知",
		Text:    "这是一封测试邮件。收到此邮件说明您的通知配置工作正常。",
		HTML:    testEmailHTML(time.Now()),
	}
	if err := s.sender.Send(ctx, cfg, msg); err != nil {
		s.logger.Warn("测试邮件发送失败", zap.String("user_id", userID), zap.Error(err))
		return &dto.TestEmailResponse{
			Delivered: false,
			Detail:    fmt.Sprintf("发送失败: %v", err),
		}, nil
	}

	return &dto.TestEmailResponse{Delivered: true}, nil
}

// getOrCreate 惰性创建默认配置（通知默认开启，凭据留空）
func (s *settingsService) getOrCreate(ctx context.Context, userID string) (*model.UserNotificationSettings, error) {
	settings, err := s.repo.Settings.GetByUserID(ctx, userID)
	if err == nil {
		return settings, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	settings = &model.UserNotificationSettings{
		UserID:               userID,
		NotificationsEnabled: true,
	}
	if err := s.repo.Settings.Create(ctx, settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// smtpConfigOf 将用户配置转为一次投递用的 SMTP 凭据
func smtpConfigOf(settings *model.UserNotificationSettings) *mailer.SMTPConfig {
	cfg := &mailer.SMTPConfig{Secure: settings.SMTPSecure}
	if settings.SMTPHost != nil {
		cfg.Host = *settings.SMTPHost
	}
	if settings.SMTPPort != nil {
		cfg.Port = *settings.SMTPPort
	}
	if settings.SMTPUser != nil {
		cfg.User = *settings.SMTPUser
	}
	if settings.SMTPPassword != nil {
		cfg.Password = *settings.SMTPPassword
	}
	return cfg
}

func toSettingsResponse(settings *model.UserNotificationSettings) *dto.SettingsResponse {
	return &dto.SettingsResponse{
		PushoverEmail:   settings.PushoverEmail,
		SMTPHost:        settings.SMTPHost,
		SMTPPort:        settings.SMTPPort,
		SMTPSecure:      settings.SMTPSecure,
		SMTPUser:        settings.SMTPUser,
		SMTPPasswordSet: settings.SMTPPassword != nil && *settings.SMTPPassword != "",
		Enabled:         settings.NotificationsEnabled,
		UpdatedAt:       settings.UpdatedAt.Format(time.RFC3339),
	}
}

func testEmailHTML(now time.Time) string {
	return fmt.Sprintf(`<div style="font-family:sans-serif">
<h2>✅ MedControl 测试通知</h2>
<p>收到此邮件说明您的通知配置工作正常。</p>
<p style="color:#888;font-size:12px">发送时间: %s</p>
</div>`, now.Format("2006-01-02 15:04:05"))
}
