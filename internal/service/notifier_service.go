package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/thiagotlz/medcontrol/config"
	"github.com/thiagotlz/medcontrol/internal/model"
	"github.com/thiagotlz/medcontrol/internal/repository"
	"github.com/thiagotlz/medcontrol/internal/schedule"
	pkgerrors "github.com/thiagotlz/medcontrol/pkg/errors"
	"github.com/thiagotlz/medcontrol/pkg/mailer"
)

// DispatchReport 单次到期扫描的处理结果
type DispatchReport struct {
	Due        int // 窗口内到期剂量数
	Sent       int // 投递成功
	Suppressed int // 配置缺失/关闭而静默跳过（同样置为 sent）
	Failed     int // 投递失败（剂量保持 pending，下个周期重试）
	Conflicts  int // 状态已被其他操作抢先迁移
}

// CleanupReport 单次清理的处理结果
type CleanupReport struct {
	DosesRemoved int64
	LogsRemoved  int64
}

// NotifierService 通知调度业务接口：三个定时触发器的执行体
type NotifierService interface {
	// DispatchDue 扫描 [now, now+tolerance] 内到期的 pending 剂量并逐个投递
	DispatchDue(ctx context.Context, now time.Time) (*DispatchReport, error)
	// Replenish 为未来 pending 不足水位线的启用药品补充剂量计划
	Replenish(ctx context.Context, now time.Time) (int64, error)
	// Cleanup 删除超过保留期的终态剂量与通知日志
	Cleanup(ctx context.Context, now time.Time) (*CleanupReport, error)
}

type notifierService struct {
	cfg    *config.Config
	repo   *repository.Repository
	sender mailer.Sender
	logger *zap.Logger
}

// NewNotifierService 创建 NotifierService 实例
func NewNotifierService(cfg *config.Config, repo *repository.Repository, sender mailer.Sender, logger *zap.Logger) NotifierService {
	return &notifierService{cfg: cfg, repo: repo, sender: sender, logger: logger}
}

func (s *notifierService) DispatchDue(ctx context.Context, now time.Time) (*DispatchReport, error) {
	due, err := s.repo.Dose.FindDue(ctx, now, s.cfg.Scheduler.DueTolerance)
	if err != nil {
		s.logger.Error("扫描到期剂量失败", zap.Error(err))
		return nil, err
	}

	report := &DispatchReport{Due: len(due)}
	if len(due) == 0 {
		return report, nil
	}

	s.logger.Info("处理到期提醒", zap.Int("count", len(due)))

	// 同一次扫描内按用户缓存配置，避免重复查询
	settingsCache := make(map[string]*model.UserNotificationSettings)

	for i := range due {
		s.dispatchOne(ctx, &due[i], settingsCache, report)
	}

	return report, nil
}

// dispatchOne 处理单条到期剂量。单条失败不中断整个扫描。
func (s *notifierService) dispatchOne(ctx context.Context, dose *repository.DueDose, cache map[string]*model.UserNotificationSettings, report *DispatchReport) {
	settings, ok := cache[dose.UserID]
	if !ok {
		var err error
		settings, err = s.repo.Settings.GetByUserID(ctx, dose.UserID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Error("查询通知配置失败",
				zap.String("user_id", dose.UserID), zap.Error(err))
			report.Failed++
			return
		}
		cache[dose.UserID] = settings // 未配置时缓存 nil
	}

	// 配置缺失、通知关闭或凭据不全：静默置 sent，不再重试
	if settings == nil || !settings.NotificationsEnabled ||
		!settings.HasPushoverEmail() || !settings.HasValidSMTPConfig() {
		if err := s.markSent(ctx, dose.DoseID); err != nil {
			if errors.Is(err, pkgerrors.ErrStatusConflict) {
				report.Conflicts++
				return
			}
			report.Failed++
			return
		}
		s.logger.Debug("通知配置不可用，剂量静默跳过",
			zap.String("user_id", dose.UserID), zap.String("dose_id", dose.DoseID))
		report.Suppressed++
		return
	}

	msg := buildReminderEmail(*settings.PushoverEmail, dose)
	if err := s.sender.Send(ctx, smtpConfigOf(settings), msg); err != nil {
		// 投递失败：剂量保持 pending（容差窗口内下个周期重试），仅记日志
		s.logNotification(ctx, dose, model.NotifyOutcomeFailed, err.Error())
		s.logger.Warn("提醒投递失败",
			zap.String("medication", dose.MedicationName),
			zap.String("user_id", dose.UserID),
			zap.Error(err))
		report.Failed++
		return
	}

	if err := s.markSent(ctx, dose.DoseID); err != nil {
		if errors.Is(err, pkgerrors.ErrStatusConflict) {
			report.Conflicts++
			return
		}
		s.logger.Error("标记剂量已通知失败",
			zap.String("dose_id", dose.DoseID), zap.Error(err))
		report.Failed++
		return
	}

	s.logNotification(ctx, dose, model.NotifyOutcomeSent, "邮件发送成功")
	s.logger.Info("提醒已发送",
		zap.String("medication", dose.MedicationName),
		zap.String("user", dose.UserName))
	report.Sent++
}

func (s *notifierService) markSent(ctx context.Context, doseID string) error {
	return s.repo.Dose.UpdateStatusIf(ctx, doseID, model.DoseStatusPending, model.DoseStatusSent, nil)
}

// logNotification 写通知日志。日志失败只告警，不影响主流程。
func (s *notifierService) logNotification(ctx context.Context, dose *repository.DueDose, outcome, message string) {
	entry := &model.NotificationLog{
		MedicationID: dose.MedicationID,
		DoseID:       dose.DoseID,
		Channel:      "email",
		Outcome:      outcome,
		Message:      message,
		SentAt:       time.Now(),
	}
	if err := s.repo.NotificationLog.Create(ctx, entry); err != nil {
		s.logger.Warn("记录通知日志失败", zap.Error(err))
	}
}

func (s *notifierService) Replenish(ctx context.Context, now time.Time) (int64, error) {
	medications, err := s.repo.Medication.ListActiveForScheduling(ctx)
	if err != nil {
		s.logger.Error("查询启用药品失败", zap.Error(err))
		return 0, err
	}

	loc := s.cfg.Scheduler.Location()
	var totalCreated int64

	for i := range medications {
		m := &medications[i]

		pending, err := s.repo.Dose.CountFuturePending(ctx, m.MedicationID, now)
		if err != nil {
			s.logger.Error("统计未来剂量失败",
				zap.String("medication_id", m.MedicationID), zap.Error(err))
			continue
		}
		if pending >= int64(s.cfg.Scheduler.LowWaterMark) {
			continue
		}

		times, err := schedule.NextOccurrences(m.StartTime, m.FrequencyHours, now, s.cfg.Scheduler.HorizonDays, loc)
		if err != nil {
			// 规则非法的存量数据：跳过并告警，不中断其他药品
			s.logger.Warn("药品复发规则无效，跳过补充",
				zap.String("medication_id", m.MedicationID), zap.Error(err))
			continue
		}

		doses := make([]model.MedicationDose, 0, len(times))
		for _, t := range times {
			doses = append(doses, model.MedicationDose{
				MedicationID:  m.MedicationID,
				ScheduledTime: t,
				Status:        model.DoseStatusPending,
			})
		}

		inserted, err := s.repo.Dose.InsertMissing(ctx, doses)
		if err != nil {
			s.logger.Error("补充剂量失败",
				zap.String("medication_id", m.MedicationID), zap.Error(err))
			continue
		}
		totalCreated += inserted
	}

	if totalCreated > 0 {
		s.logger.Info("剂量计划已补充", zap.Int64("created", totalCreated))
	}
	return totalCreated, nil
}

func (s *notifierService) Cleanup(ctx context.Context, now time.Time) (*CleanupReport, error) {
	report := &CleanupReport{}

	doseCutoff := now.AddDate(0, 0, -s.cfg.Scheduler.DoseRetentionDays)
	removed, err := s.repo.Dose.Cleanup(ctx, doseCutoff)
	if err != nil {
		s.logger.Error("清理历史剂量失败", zap.Error(err))
		return nil, err
	}
	report.DosesRemoved = removed

	logCutoff := now.AddDate(0, 0, -s.cfg.Scheduler.LogRetentionDays)
	purged, err := s.repo.NotificationLog.Purge(ctx, logCutoff)
	if err != nil {
		s.logger.Error("清理通知日志失败", zap.Error(err))
		return report, err
	}
	report.LogsRemoved = purged

	if report.DosesRemoved > 0 || report.LogsRemoved > 0 {
		s.logger.Info("过期数据已清理",
			zap.Int64("doses_removed", report.DosesRemoved),
			zap.Int64("logs_removed", report.LogsRemoved))
	}
	return report, nil
}

// buildReminderEmail 构造提醒邮件（发往推送网关邮箱，由网关转手机推送）
func buildReminderEmail(to string, dose *repository.DueDose) *mailer.Message {
	dosage := "按处方"
	if dose.Dosage != nil && *dose.Dosage != "" {
		dosage = *dose.Dosage
	}

	text := fmt.Sprintf("该服药了: %s\n剂量: %s\n计划时间: %s",
		dose.MedicationName, dosage, dose.ScheduledTime.Format("15:04"))

	html := fmt.Sprintf(`<div style="font-family:sans-serif;max-width:480px">
<h2 style="color:#1e40af">⏰ 该服药了！</h2>
<p style="font-size:18px"><strong>💊 %s</strong></p>
<p>剂量: %s</p>
<p>计划时间: %s</p>`,
		dose.MedicationName, dosage, dose.ScheduledTime.Format("2006-01-02 15:04"))
	if dose.Description != nil && *dose.Description != "" {
		html += fmt.Sprintf(`<p style="color:#555">%s</p>`, *dose.Description)
	}
	html += `</div>`

	return &mailer.Message{
		To:      to,
		Subject: fmt.Sprintf("💊 服药提醒: %s", dose.MedicationName),
		Text:    text,
		HTML:    html,
	}
}
