package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/thiagotlz/medcontrol/internal/model"
)

func setupTestExportService() (ExportService, *testMocks) {
	repo, mocks := newTestRepo()
	svc := NewExportService(testConfig(), repo, zap.NewNop())
	return svc, mocks
}

func seedExportData(mocks *testMocks, now time.Time) {
	mocks.users.users["user-1"] = &model.User{UserID: "user-1", Name: "导出用户", Email: "export@test.com"}
	mocks.medications.medications["med-1"] = &model.Medication{
		MedicationID:   "med-1",
		UserID:         "user-1",
		Name:           "导出药品",
		Dosage:         strPtr("500mg"),
		FrequencyHours: 8,
		StartTime:      "08:00",
		Active:         true,
	}
	takenAt := now.Add(-8 * time.Hour)
	mocks.doses.InsertMissing(context.Background(), []model.MedicationDose{
		{MedicationID: "med-1", ScheduledTime: now.Add(-8 * time.Hour), Status: model.DoseStatusTaken, TakenAt: &takenAt},
		{MedicationID: "med-1", ScheduledTime: now.Add(-4 * time.Hour), Status: model.DoseStatusMissed},
		{MedicationID: "med-1", ScheduledTime: now.Add(4 * time.Hour), Status: model.DoseStatusPending},
	})
}

// ── Excel 导出测试 ──

func TestExportHistory_Success(t *testing.T) {
	svc, mocks := setupTestExportService()
	seedExportData(mocks, time.Now())

	buf, filename, err := svc.ExportHistory(context.Background(), "user-1", 30)
	if err != nil {
		t.Fatalf("期望导出成功，实际返回错误: %v", err)
	}
	if !strings.HasSuffix(filename, ".xlsx") {
		t.Errorf("期望 .xlsx 文件名，实际 %s", filename)
	}

	// 导出内容必须是可解析的工作簿且包含所有剂量行
	f, err := excelize.OpenReader(buf)
	if err != nil {
		t.Fatalf("导出内容不是合法的 Excel: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("服药记录")
	if err != nil {
		t.Fatalf("读取工作表失败: %v", err)
	}
	// 标题 + 汇总 + 表头 + 3 条数据
	if len(rows) != 6 {
		t.Errorf("期望 6 行，实际 %d", len(rows))
	}
	if rows[3][0] != "导出药品" {
		t.Errorf("期望首条数据为导出药品，实际 %s", rows[3][0])
	}
}

func TestExportHistory_NoDoses(t *testing.T) {
	svc, _ := setupTestExportService()

	_, _, err := svc.ExportHistory(context.Background(), "user-1", 30)
	if !errors.Is(err, ErrExportNoDoses) {
		t.Errorf("期望 ErrExportNoDoses，实际 %v", err)
	}
}

// ── ICS 导出测试 ──

func TestExportCalendar_ContainsUpcomingDoses(t *testing.T) {
	svc, mocks := setupTestExportService()
	seedExportData(mocks, time.Now())

	content, filename, err := svc.ExportCalendar(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("期望导出成功，实际返回错误: %v", err)
	}
	if filename != "medcontrol.ics" {
		t.Errorf("期望文件名 medcontrol.ics，实际 %s", filename)
	}
	if !strings.Contains(content, "BEGIN:VCALENDAR") {
		t.Error("期望 VCALENDAR 头，实际缺失")
	}
	// 仅 1 条未来 pending 剂量应进日历
	if got := strings.Count(content, "BEGIN:VEVENT"); got != 1 {
		t.Errorf("期望 1 个 VEVENT，实际 %d", got)
	}
	if !strings.Contains(content, "导出药品") {
		t.Error("期望事件标题包含药品名")
	}
}

func TestExportCalendar_EmptyStillValid(t *testing.T) {
	svc, _ := setupTestExportService()

	content, _, err := svc.ExportCalendar(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("期望导出成功，实际返回错误: %v", err)
	}
	if !strings.Contains(content, "BEGIN:VCALENDAR") || !strings.Contains(content, "END:VCALENDAR") {
		t.Error("空日历仍应是合法的 VCALENDAR")
	}
}
