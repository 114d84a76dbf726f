package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/thiagotlz/medcontrol/config"
	"github.com/thiagotlz/medcontrol/internal/model"
	"github.com/thiagotlz/medcontrol/internal/repository"
)

// ── 导出模块业务错误 ──

var (
	ErrExportNoDoses      = errors.New("所选时间段内无服药记录")
	ErrExportGenerateFail = errors.New("生成 Excel 文件失败")
)

// ExportService 导出业务接口
//
// 设计说明：
//   - 服药记录导出为 Excel (.xlsx)，含状态明细与依从率汇总
//   - 未来剂量导出为 iCalendar (.ics)，可订阅到手机日历
//   - 导出内容以 bytes.Buffer / string 返回，由 Handler 层设置响应头后写入
type ExportService interface {
	// ExportHistory 导出近 periodDays 天的服药记录为 Excel
	ExportHistory(ctx context.Context, userID string, periodDays int) (*bytes.Buffer, string, error)
	// ExportCalendar 导出计划窗口内的未来剂量为 ICS 日历
	ExportCalendar(ctx context.Context, userID string) (string, string, error)
}

type exportService struct {
	cfg    *config.Config
	repo   *repository.Repository
	logger *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(cfg *config.Config, repo *repository.Repository, logger *zap.Logger) ExportService {
	return &exportService{cfg: cfg, repo: repo, logger: logger}
}

// 状态中文名
var doseStatusNames = map[string]string{
	model.DoseStatusPending: "待服用",
	model.DoseStatusSent:    "已提醒",
	model.DoseStatusTaken:   "已服用",
	model.DoseStatusMissed:  "已错过",
}

func (s *exportService) ExportHistory(ctx context.Context, userID string, periodDays int) (*bytes.Buffer, string, error) {
	if periodDays <= 0 {
		periodDays = 30
	}
	since := time.Now().AddDate(0, 0, -periodDays)

	doses, err := s.repo.Dose.ListByUserSince(ctx, userID, since)
	if err != nil {
		s.logger.Error("查询服药记录失败", zap.Error(err))
		return nil, "", err
	}
	if len(doses) == 0 {
		return nil, "", ErrExportNoDoses
	}

	stats, err := s.repo.Dose.UserStats(ctx, userID, since)
	if err != nil {
		s.logger.Error("统计服药记录失败", zap.Error(err))
		return nil, "", err
	}

	loc := s.cfg.Scheduler.Location()

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "服药记录"
	idx, _ := f.NewSheet(sheetName)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	f.SetColWidth(sheetName, "A", "A", 24)
	f.SetColWidth(sheetName, "B", "B", 14)
	f.SetColWidth(sheetName, "C", "D", 20)
	f.SetColWidth(sheetName, "E", "E", 10)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	// 标题与汇总行
	f.SetCellValue(sheetName, "A1", fmt.Sprintf("服药记录（近 %d 天）", periodDays))
	f.MergeCell(sheetName, "A1", "E1")
	f.SetCellStyle(sheetName, "A1", "A1", headerStyle)

	f.SetCellValue(sheetName, "A2", fmt.Sprintf(
		"共 %d 次 · 已服 %d · 错过 %d · 依从率 %d%%",
		stats.Total, stats.Taken, stats.Missed, AdherenceRate(stats.Taken, stats.Missed)))
	f.MergeCell(sheetName, "A2", "E2")

	// 表头
	headers := []string{"药品", "剂量", "计划时间", "实际服用时间", "状态"}
	for i, h := range headers {
		f.SetCellValue(sheetName, cell(colName(i), 3), h)
	}

	// 数据行
	row := 4
	for i := range doses {
		d := &doses[i]

		name, dosage := "-", "-"
		if d.Medication != nil {
			name = d.Medication.Name
			if d.Medication.Dosage != nil && *d.Medication.Dosage != "" {
				dosage = *d.Medication.Dosage
			}
		}

		takenAt := "-"
		if d.TakenAt != nil {
			takenAt = d.TakenAt.In(loc).Format("2006-01-02 15:04")
		}

		statusName := d.Status
		if zh, ok := doseStatusNames[d.Status]; ok {
			statusName = zh
		}

		f.SetCellValue(sheetName, cell("A", row), name)
		f.SetCellValue(sheetName, cell("B", row), dosage)
		f.SetCellValue(sheetName, cell("C", row), d.ScheduledTime.In(loc).Format("2006-01-02 15:04"))
		f.SetCellValue(sheetName, cell("D", row), takenAt)
		f.SetCellValue(sheetName, cell("E", row), statusName)
		row++
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("服药记录_%s.xlsx", time.Now().In(loc).Format("20060102"))
	return buf, filename, nil
}

func (s *exportService) ExportCalendar(ctx context.Context, userID string) (string, string, error) {
	until := time.Now().AddDate(0, 0, s.cfg.Scheduler.HorizonDays)
	doses, err := s.repo.Dose.ListUpcomingByUser(ctx, userID, until)
	if err != nil {
		s.logger.Error("查询未来剂量失败", zap.Error(err))
		return "", "", err
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//MedControl//服药计划//ZH")

	now := time.Now()
	for i := range doses {
		d := &doses[i]

		summary := "服药提醒"
		description := ""
		if d.Medication != nil {
			summary = fmt.Sprintf("💊 %s", d.Medication.Name)
			if d.Medication.Dosage != nil && *d.Medication.Dosage != "" {
				description = fmt.Sprintf("剂量: %s", *d.Medication.Dosage)
			}
		}

		evt := cal.AddEvent(fmt.Sprintf("%s@medcontrol", d.DoseID))
		evt.SetDtStampTime(now)
		evt.SetStartAt(d.ScheduledTime)
		evt.SetEndAt(d.ScheduledTime.Add(15 * time.Minute))
		evt.SetSummary(summary)
		if description != "" {
			evt.SetDescription(description)
		}
	}

	return cal.Serialize(), "medcontrol.ics", nil
}

// ── 辅助函数 ──

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
