package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/thiagotlz/medcontrol/internal/model"
	"github.com/thiagotlz/medcontrol/pkg/mailer"
)

// ── Mock Sender ──

type mockSender struct {
	sent      []*mailer.Message
	sendErr   error
	verifyErr error
}

func (m *mockSender) Send(_ context.Context, _ *mailer.SMTPConfig, msg *mailer.Message) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mockSender) Verify(_ context.Context, _ *mailer.SMTPConfig) error {
	return m.verifyErr
}

// ── 测试辅助 ──

func setupTestNotifier() (NotifierService, *testMocks, *mockSender) {
	repo, mocks := newTestRepo()
	sender := &mockSender{}
	svc := NewNotifierService(testConfig(), repo, sender, zap.NewNop())
	return svc, mocks, sender
}

// seedDueDose 写入一个在容差窗口内到期的剂量及其药品与用户
func seedDueDose(mocks *testMocks, userID string, now time.Time) string {
	if _, ok := mocks.users.users[userID]; !ok {
		mocks.users.users[userID] = &model.User{
			UserID: userID, Name: "测试用户", Email: userID + "@test.com",
		}
	}
	medID := "med-" + userID
	mocks.medications.medications[medID] = &model.Medication{
		MedicationID:   medID,
		UserID:         userID,
		Name:           "测试药品",
		FrequencyHours: 8,
		StartTime:      "08:00",
		Active:         true,
	}
	mocks.doses.InsertMissing(context.Background(), []model.MedicationDose{
		{MedicationID: medID, ScheduledTime: now.Add(time.Minute), Status: model.DoseStatusPending},
	})

	due, _ := mocks.doses.FindDue(context.Background(), now, 2*time.Minute)
	for _, d := range due {
		if d.UserID == userID {
			return d.DoseID
		}
	}
	return ""
}

// fullyConfiguredSettings 返回可用的通知配置
func fullyConfiguredSettings(userID string) *model.UserNotificationSettings {
	return &model.UserNotificationSettings{
		UserID:               userID,
		PushoverEmail:        strPtr(userID + "@pomail.net"),
		SMTPHost:             strPtr("smtp.test.com"),
		SMTPPort:             intPtr(587),
		SMTPUser:             strPtr("sender@test.com"),
		SMTPPassword:         strPtr("app-password"),
		NotificationsEnabled: true,
	}
}

// ── 到期扫描测试 ──

func TestDispatchDue_SendsAndMarksSent(t *testing.T) {
	svc, mocks, sender := setupTestNotifier()
	now := time.Now()

	doseID := seedDueDose(mocks, "user-1", now)
	mocks.settings.settings["user-1"] = fullyConfiguredSettings("user-1")

	report, err := svc.DispatchDue(context.Background(), now)
	if err != nil {
		t.Fatalf("期望扫描成功，实际返回错误: %v", err)
	}
	if report.Due != 1 || report.Sent != 1 {
		t.Errorf("期望 Due=1 Sent=1，实际 %+v", report)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("期望发送 1 封邮件，实际 %d", len(sender.sent))
	}
	if sender.sent[0].To != "user-1@pomail.net" {
		t.Errorf("期望发往推送网关邮箱，实际 %s", sender.sent[0].To)
	}

	dose, _ := mocks.doses.GetByID(context.Background(), doseID)
	if dose.Status != model.DoseStatusSent {
		t.Errorf("期望剂量状态 sent，实际 %s", dose.Status)
	}
	if len(mocks.logs.logs) != 1 || mocks.logs.logs[0].Outcome != model.NotifyOutcomeSent {
		t.Errorf("期望 1 条 sent 日志，实际 %+v", mocks.logs.logs)
	}
}

func TestDispatchDue_NoSettings_Suppressed(t *testing.T) {
	svc, mocks, sender := setupTestNotifier()
	now := time.Now()

	doseID := seedDueDose(mocks, "user-1", now)
	// 用户从未配置通知

	report, err := svc.DispatchDue(context.Background(), now)
	if err != nil {
		t.Fatalf("期望扫描成功，实际返回错误: %v", err)
	}
	if report.Suppressed != 1 || report.Sent != 0 {
		t.Errorf("期望 Suppressed=1，实际 %+v", report)
	}
	if len(sender.sent) != 0 {
		t.Errorf("配置缺失不应发送邮件，实际发送 %d 封", len(sender.sent))
	}

	// 静默跳过同样置 sent，避免每分钟重复处理
	dose, _ := mocks.doses.GetByID(context.Background(), doseID)
	if dose.Status != model.DoseStatusSent {
		t.Errorf("期望剂量状态 sent，实际 %s", dose.Status)
	}
}

func TestDispatchDue_Disabled_Suppressed(t *testing.T) {
	svc, mocks, sender := setupTestNotifier()
	now := time.Now()

	seedDueDose(mocks, "user-1", now)
	settings := fullyConfiguredSettings("user-1")
	settings.NotificationsEnabled = false
	mocks.settings.settings["user-1"] = settings

	report, _ := svc.DispatchDue(context.Background(), now)
	if report.Suppressed != 1 {
		t.Errorf("期望 Suppressed=1，实际 %+v", report)
	}
	if len(sender.sent) != 0 {
		t.Error("通知关闭不应发送邮件")
	}
}

func TestDispatchDue_IncompleteSMTP_Suppressed(t *testing.T) {
	svc, mocks, sender := setupTestNotifier()
	now := time.Now()

	seedDueDose(mocks, "user-1", now)
	settings := fullyConfiguredSettings("user-1")
	settings.SMTPPassword = nil // 凭据不全
	mocks.settings.settings["user-1"] = settings

	report, _ := svc.DispatchDue(context.Background(), now)
	if report.Suppressed != 1 {
		t.Errorf("期望 Suppressed=1，实际 %+v", report)
	}
	if len(sender.sent) != 0 {
		t.Error("凭据不全不应发送邮件")
	}
}

func TestDispatchDue_SendFailure_StaysPending(t *testing.T) {
	svc, mocks, sender := setupTestNotifier()
	now := time.Now()

	doseID := seedDueDose(mocks, "user-1", now)
	mocks.settings.settings["user-1"] = fullyConfiguredSettings("user-1")
	sender.sendErr = errors.New("连接被拒绝")

	report, err := svc.DispatchDue(context.Background(), now)
	if err != nil {
		t.Fatalf("单条失败不应中断扫描: %v", err)
	}
	if report.Failed != 1 || report.Sent != 0 {
		t.Errorf("期望 Failed=1，实际 %+v", report)
	}

	// 投递失败剂量保持 pending，窗口内下个周期重试
	dose, _ := mocks.doses.GetByID(context.Background(), doseID)
	if dose.Status != model.DoseStatusPending {
		t.Errorf("期望剂量保持 pending，实际 %s", dose.Status)
	}
	if len(mocks.logs.logs) != 1 || mocks.logs.logs[0].Outcome != model.NotifyOutcomeFailed {
		t.Errorf("期望 1 条 failed 日志，实际 %+v", mocks.logs.logs)
	}
}

func TestDispatchDue_OutsideWindow_Ignored(t *testing.T) {
	svc, mocks, _ := setupTestNotifier()
	now := time.Now()

	mocks.users.users["user-1"] = &model.User{UserID: "user-1", Name: "测试用户", Email: "u@test.com"}
	mocks.medications.medications["med-1"] = &model.Medication{
		MedicationID: "med-1", UserID: "user-1", Name: "测试药品", Active: true,
	}
	mocks.doses.InsertMissing(context.Background(), []model.MedicationDose{
		// 容差窗口（2 分钟）之外
		{MedicationID: "med-1", ScheduledTime: now.Add(10 * time.Minute), Status: model.DoseStatusPending},
		// 已过期
		{MedicationID: "med-1", ScheduledTime: now.Add(-time.Minute), Status: model.DoseStatusPending},
	})

	report, _ := svc.DispatchDue(context.Background(), now)
	if report.Due != 0 {
		t.Errorf("窗口外剂量不应被处理，实际 Due=%d", report.Due)
	}
}

// ── 剂量补充测试 ──

func TestReplenish_BelowWaterMark(t *testing.T) {
	svc, mocks, _ := setupTestNotifier()
	now := time.Now()

	mocks.medications.medications["med-1"] = &model.Medication{
		MedicationID:   "med-1",
		UserID:         "user-1",
		Name:           "补充药品",
		FrequencyHours: 8,
		StartTime:      "08:00",
		Active:         true,
	}

	created, err := svc.Replenish(context.Background(), now)
	if err != nil {
		t.Fatalf("期望补充成功，实际返回错误: %v", err)
	}
	if created == 0 {
		t.Error("无未来剂量时应补充新计划，实际为 0")
	}

	count, _ := mocks.doses.CountFuturePending(context.Background(), "med-1", now)
	if count != created {
		t.Errorf("期望未来剂量数 %d，实际 %d", created, count)
	}
}

func TestReplenish_AboveWaterMark_Skipped(t *testing.T) {
	svc, mocks, _ := setupTestNotifier()
	now := time.Now()

	mocks.medications.medications["med-1"] = &model.Medication{
		MedicationID:   "med-1",
		UserID:         "user-1",
		Name:           "充足药品",
		FrequencyHours: 8,
		StartTime:      "08:00",
		Active:         true,
	}
	var seed []model.MedicationDose
	for i := 1; i <= 12; i++ {
		seed = append(seed, model.MedicationDose{
			MedicationID:  "med-1",
			ScheduledTime: now.Add(time.Duration(i) * time.Hour),
			Status:        model.DoseStatusPending,
		})
	}
	mocks.doses.InsertMissing(context.Background(), seed)

	created, err := svc.Replenish(context.Background(), now)
	if err != nil {
		t.Fatalf("期望补充成功，实际返回错误: %v", err)
	}
	if created != 0 {
		t.Errorf("未来剂量高于水位线不应补充，实际补充 %d", created)
	}
}

func TestReplenish_Idempotent(t *testing.T) {
	svc, mocks, _ := setupTestNotifier()
	now := time.Now()

	mocks.medications.medications["med-1"] = &model.Medication{
		MedicationID:   "med-1",
		UserID:         "user-1",
		Name:           "幂等药品",
		FrequencyHours: 24,
		StartTime:      "08:00",
		Active:         true,
	}

	first, _ := svc.Replenish(context.Background(), now)
	if first == 0 {
		t.Fatal("首次补充应产生剂量")
	}
	// 24 小时频率 7 天窗口低于水位线，第二次仍会尝试，但唯一约束保证不重复
	second, _ := svc.Replenish(context.Background(), now)
	if second != 0 {
		t.Errorf("重复补充不应产生新剂量，实际 %d", second)
	}
}

func TestReplenish_InactiveSkipped(t *testing.T) {
	svc, mocks, _ := setupTestNotifier()
	now := time.Now()

	mocks.medications.medications["med-1"] = &model.Medication{
		MedicationID:   "med-1",
		UserID:         "user-1",
		Name:           "停用药品",
		FrequencyHours: 8,
		StartTime:      "08:00",
		Active:         false,
	}

	created, _ := svc.Replenish(context.Background(), now)
	if created != 0 {
		t.Errorf("停用药品不应补充剂量，实际 %d", created)
	}
}

// ── 清理测试 ──

func TestCleanup_RemovesOldTerminalOnly(t *testing.T) {
	svc, mocks, _ := setupTestNotifier()
	now := time.Now()

	mocks.medications.medications["med-1"] = &model.Medication{
		MedicationID: "med-1", UserID: "user-1", Name: "清理药品", Active: true,
	}
	old := now.AddDate(0, 0, -40)
	mocks.doses.InsertMissing(context.Background(), []model.MedicationDose{
		{MedicationID: "med-1", ScheduledTime: old, Status: model.DoseStatusTaken},
		{MedicationID: "med-1", ScheduledTime: old.Add(time.Hour), Status: model.DoseStatusMissed},
		// 过期但仍 pending 的剂量不清理
		{MedicationID: "med-1", ScheduledTime: old.Add(2 * time.Hour), Status: model.DoseStatusPending},
		// 保留期内的终态剂量不清理
		{MedicationID: "med-1", ScheduledTime: now.AddDate(0, 0, -5), Status: model.DoseStatusTaken},
	})
	mocks.logs.logs = append(mocks.logs.logs,
		&model.NotificationLog{LogID: "log-old", SentAt: now.AddDate(0, 0, -100)},
		&model.NotificationLog{LogID: "log-new", SentAt: now.AddDate(0, 0, -10)},
	)

	report, err := svc.Cleanup(context.Background(), now)
	if err != nil {
		t.Fatalf("期望清理成功，实际返回错误: %v", err)
	}
	if report.DosesRemoved != 2 {
		t.Errorf("期望清理 2 条终态剂量，实际 %d", report.DosesRemoved)
	}
	if report.LogsRemoved != 1 {
		t.Errorf("期望清理 1 条日志，实际 %d", report.LogsRemoved)
	}
	if len(mocks.doses.doses) != 2 {
		t.Errorf("期望剩余 2 条剂量，实际 %d", len(mocks.doses.doses))
	}
}
