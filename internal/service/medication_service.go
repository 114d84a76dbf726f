package service

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/thiagotlz/medcontrol/config"
	"github.com/thiagotlz/medcontrol/internal/dto"
	"github.com/thiagotlz/medcontrol/internal/model"
	"github.com/thiagotlz/medcontrol/internal/repository"
	"github.com/thiagotlz/medcontrol/internal/schedule"
)

var (
	ErrMedicationNotFound = errors.New("药品不存在")
	ErrDoseNotFound       = errors.New("剂量记录不存在")
	ErrNotOwner           = errors.New("无权操作该资源")
	ErrBackfillIncomplete = errors.New("补录历史剂量需同时提供最后服药时间与已服剂量数")
	// ErrDoseNotMarkable 剂量已处于终态，不可再标记
	ErrDoseNotMarkable = errors.New("剂量已处理，不可重复标记")
)

// MedicationService 药品与剂量计划业务接口
type MedicationService interface {
	Create(ctx context.Context, userID string, req *dto.CreateMedicationRequest) (*dto.MedicationResponse, error)
	Get(ctx context.Context, userID, medicationID string) (*dto.MedicationResponse, error)
	List(ctx context.Context, userID string, activeOnly bool) ([]dto.MedicationResponse, error)
	Update(ctx context.Context, userID, medicationID string, req *dto.UpdateMedicationRequest) (*dto.MedicationResponse, error)
	// Toggle 切换药品启用状态，重新启用时重建未来剂量计划
	Toggle(ctx context.Context, userID, medicationID string) (*dto.MedicationResponse, error)
	Delete(ctx context.Context, userID, medicationID string) error
	ListDoses(ctx context.Context, userID, medicationID string, limit int) ([]dto.DoseResponse, error)
	// MarkDoseTaken / MarkDoseMissed 条件状态迁移：并发下重复标记返回冲突
	MarkDoseTaken(ctx context.Context, userID, doseID string) error
	MarkDoseMissed(ctx context.Context, userID, doseID string) error
	Stats(ctx context.Context, userID string, periodDays int) (*dto.StatsResponse, error)
}

type medicationService struct {
	cfg    *config.Config
	repo   *repository.Repository
	logger *zap.Logger
}

// NewMedicationService 创建 MedicationService 实例
func NewMedicationService(cfg *config.Config, repo *repository.Repository, logger *zap.Logger) MedicationService {
	return &medicationService{cfg: cfg, repo: repo, logger: logger}
}

func (s *medicationService) Create(ctx context.Context, userID string, req *dto.CreateMedicationRequest) (*dto.MedicationResponse, error) {
	// 1. 规则预校验（无效规则不落库）
	if _, _, err := schedule.ParseStartTime(req.StartTime); err != nil {
		return nil, err
	}

	medication := &model.Medication{
		UserID:         userID,
		Name:           req.Name,
		Dosage:         req.Dosage,
		Description:    req.Description,
		FrequencyHours: req.FrequencyHours,
		StartTime:      req.StartTime,
		DurationDays:   req.DurationDays,
		Active:         true,
	}

	// 2. 设定疗程时长即开始计时
	now := time.Now()
	if req.DurationDays != nil {
		started := now
		medication.StartedAt = &started
	}

	// 3. 补录参数要么都给要么都不给
	backfill := req.LastTakenTime != nil || req.DosesAlreadyTaken != nil
	if backfill && (req.LastTakenTime == nil || req.DosesAlreadyTaken == nil) {
		return nil, ErrBackfillIncomplete
	}

	loc := s.cfg.Scheduler.Location()
	horizon := s.cfg.Scheduler.HorizonDays

	// 4. 先计算完整剂量序列，确认规则合法后再写药品
	var doses []model.MedicationDose
	if backfill {
		taken, upcoming, err := schedule.Backfill(*req.LastTakenTime, *req.DosesAlreadyTaken, req.FrequencyHours, now, horizon)
		if err != nil {
			return nil, err
		}
		takenAt := taken
		for i, t := range taken {
			doses = append(doses, model.MedicationDose{
				ScheduledTime: t,
				Status:        model.DoseStatusTaken,
				TakenAt:       &takenAt[i],
			})
		}
		for _, t := range upcoming {
			doses = append(doses, model.MedicationDose{ScheduledTime: t, Status: model.DoseStatusPending})
		}
		// 补录场景下疗程从首个历史剂量当天算起
		if req.DurationDays != nil && len(taken) > 0 {
			first := taken[0]
			medication.StartedAt = &first
		}
	} else {
		times, err := schedule.NextOccurrences(req.StartTime, req.FrequencyHours, now, horizon, loc)
		if err != nil {
			return nil, err
		}
		for _, t := range times {
			doses = append(doses, model.MedicationDose{ScheduledTime: t, Status: model.DoseStatusPending})
		}
	}

	if err := s.repo.Medication.Create(ctx, medication); err != nil {
		s.logger.Error("创建药品失败", zap.Error(err))
		return nil, err
	}

	for i := range doses {
		doses[i].MedicationID = medication.MedicationID
	}
	inserted, err := s.repo.Dose.InsertMissing(ctx, doses)
	if err != nil {
		s.logger.Error("生成剂量计划失败",
			zap.String("medication_id", medication.MedicationID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("药品创建成功",
		zap.String("medication_id", medication.MedicationID),
		zap.String("name", medication.Name),
		zap.Int64("doses_generated", inserted))

	return s.toResponse(medication, now, loc), nil
}

func (s *medicationService) Get(ctx context.Context, userID, medicationID string) (*dto.MedicationResponse, error) {
	medication, err := s.getOwned(ctx, userID, medicationID)
	if err != nil {
		return nil, err
	}
	return s.toResponse(medication, time.Now(), s.cfg.Scheduler.Location()), nil
}

func (s *medicationService) List(ctx context.Context, userID string, activeOnly bool) ([]dto.MedicationResponse, error) {
	medications, err := s.repo.Medication.ListByUser(ctx, userID, activeOnly)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	loc := s.cfg.Scheduler.Location()
	responses := make([]dto.MedicationResponse, 0, len(medications))
	for i := range medications {
		responses = append(responses, *s.toResponse(&medications[i], now, loc))
	}
	return responses, nil
}

func (s *medicationService) Update(ctx context.Context, userID, medicationID string, req *dto.UpdateMedicationRequest) (*dto.MedicationResponse, error) {
	medication, err := s.getOwned(ctx, userID, medicationID)
	if err != nil {
		return nil, err
	}

	// 复发规则或启用状态变更时需要重建未来计划
	ruleChanged := false
	reactivated := false

	if req.Name != nil {
		medication.Name = *req.Name
	}
	if req.Dosage != nil {
		medication.Dosage = req.Dosage
	}
	if req.Description != nil {
		medication.Description = req.Description
	}
	if req.FrequencyHours != nil && *req.FrequencyHours != medication.FrequencyHours {
		medication.FrequencyHours = *req.FrequencyHours
		ruleChanged = true
	}
	if req.StartTime != nil && *req.StartTime != medication.StartTime {
		if _, _, err := schedule.ParseStartTime(*req.StartTime); err != nil {
			return nil, err
		}
		medication.StartTime = *req.StartTime
		ruleChanged = true
	}
	if req.DurationDays != nil {
		medication.DurationDays = req.DurationDays
		if medication.StartedAt == nil {
			started := time.Now()
			medication.StartedAt = &started
		}
	}
	if req.Active != nil && *req.Active != medication.Active {
		medication.Active = *req.Active
		reactivated = *req.Active
	}

	now := time.Now()
	loc := s.cfg.Scheduler.Location()

	// 规则变更先验证新规则再落库
	var times []time.Time
	if (ruleChanged || reactivated) && medication.Active {
		times, err = schedule.NextOccurrences(medication.StartTime, medication.FrequencyHours, now, s.cfg.Scheduler.HorizonDays, loc)
		if err != nil {
			return nil, err
		}
	}

	if err := s.repo.Medication.Update(ctx, medication); err != nil {
		s.logger.Error("更新药品失败", zap.Error(err))
		return nil, err
	}

	// 废弃旧计划并按新规则重建（历史终态剂量不动）
	if ruleChanged {
		removed, err := s.repo.Dose.DeleteFuturePending(ctx, medication.MedicationID, now)
		if err != nil {
			s.logger.Error("清除未来剂量失败", zap.Error(err))
			return nil, err
		}
		s.logger.Info("复发规则变更，未来剂量已废弃",
			zap.String("medication_id", medication.MedicationID),
			zap.Int64("removed", removed))
	}

	if len(times) > 0 {
		doses := make([]model.MedicationDose, 0, len(times))
		for _, t := range times {
			doses = append(doses, model.MedicationDose{
				MedicationID:  medication.MedicationID,
				ScheduledTime: t,
				Status:        model.DoseStatusPending,
			})
		}
		if _, err := s.repo.Dose.InsertMissing(ctx, doses); err != nil {
			s.logger.Error("重建剂量计划失败", zap.Error(err))
			return nil, err
		}
	}

	return s.toResponse(medication, now, loc), nil
}

func (s *medicationService) Toggle(ctx context.Context, userID, medicationID string) (*dto.MedicationResponse, error) {
	medication, err := s.getOwned(ctx, userID, medicationID)
	if err != nil {
		return nil, err
	}

	medication.Active = !medication.Active

	now := time.Now()
	loc := s.cfg.Scheduler.Location()

	if err := s.repo.Medication.Update(ctx, medication); err != nil {
		s.logger.Error("切换药品状态失败", zap.Error(err))
		return nil, err
	}

	// 重新启用后按当前规则补回未来剂量（InsertMissing 幂等，已有的跳过）
	if medication.Active {
		times, err := schedule.NextOccurrences(medication.StartTime, medication.FrequencyHours, now, s.cfg.Scheduler.HorizonDays, loc)
		if err != nil {
			return nil, err
		}
		doses := make([]model.MedicationDose, 0, len(times))
		for _, t := range times {
			doses = append(doses, model.MedicationDose{
				MedicationID:  medication.MedicationID,
				ScheduledTime: t,
				Status:        model.DoseStatusPending,
			})
		}
		if _, err := s.repo.Dose.InsertMissing(ctx, doses); err != nil {
			s.logger.Error("重建剂量计划失败", zap.Error(err))
			return nil, err
		}
	}

	s.logger.Info("药品状态已切换",
		zap.String("medication_id", medication.MedicationID),
		zap.Bool("active", medication.Active))

	return s.toResponse(medication, now, loc), nil
}

func (s *medicationService) Delete(ctx context.Context, userID, medicationID string) error {
	if _, err := s.getOwned(ctx, userID, medicationID); err != nil {
		return err
	}
	return s.repo.Medication.Delete(ctx, medicationID)
}

func (s *medicationService) ListDoses(ctx context.Context, userID, medicationID string, limit int) ([]dto.DoseResponse, error) {
	if _, err := s.getOwned(ctx, userID, medicationID); err != nil {
		return nil, err
	}

	doses, err := s.repo.Dose.ListByMedication(ctx, medicationID, limit)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.DoseResponse, 0, len(doses))
	for i := range doses {
		responses = append(responses, toDoseResponse(&doses[i]))
	}
	return responses, nil
}

func (s *medicationService) MarkDoseTaken(ctx context.Context, userID, doseID string) error {
	now := time.Now()
	return s.markDose(ctx, userID, doseID, model.DoseStatusTaken, &now)
}

func (s *medicationService) MarkDoseMissed(ctx context.Context, userID, doseID string) error {
	return s.markDose(ctx, userID, doseID, model.DoseStatusMissed, nil)
}

// markDose 条件状态迁移：pending / sent → taken / missed。
// 已处于终态 taken / missed 的剂量不可再改。
func (s *medicationService) markDose(ctx context.Context, userID, doseID, to string, takenAt *time.Time) error {
	dose, err := s.repo.Dose.GetByID(ctx, doseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrDoseNotFound
		}
		return err
	}
	if dose.Medication == nil || dose.Medication.UserID != userID {
		return ErrNotOwner
	}

	if dose.Status != model.DoseStatusPending && dose.Status != model.DoseStatusSent {
		return ErrDoseNotMarkable
	}

	return s.repo.Dose.UpdateStatusIf(ctx, doseID, dose.Status, to, takenAt)
}

func (s *medicationService) Stats(ctx context.Context, userID string, periodDays int) (*dto.StatsResponse, error) {
	if periodDays <= 0 {
		periodDays = 30
	}
	since := time.Now().AddDate(0, 0, -periodDays)

	stats, err := s.repo.Dose.UserStats(ctx, userID, since)
	if err != nil {
		return nil, err
	}

	return &dto.StatsResponse{
		Total:         stats.Total,
		Taken:         stats.Taken,
		Missed:        stats.Missed,
		Sent:          stats.Sent,
		Pending:       stats.Pending,
		AdherenceRate: AdherenceRate(stats.Taken, stats.Missed),
		PeriodDays:    periodDays,
	}, nil
}

// AdherenceRate 依从率：taken / (taken + missed)，四舍五入取整百分比。
// 分母为 0（尚无已结算剂量）时返回 0。
func AdherenceRate(taken, missed int64) int {
	settled := taken + missed
	if settled == 0 {
		return 0
	}
	return int(math.Round(float64(taken) / float64(settled) * 100))
}

// getOwned 查询药品并校验归属
func (s *medicationService) getOwned(ctx context.Context, userID, medicationID string) (*model.Medication, error) {
	medication, err := s.repo.Medication.GetByID(ctx, medicationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMedicationNotFound
		}
		return nil, err
	}
	if medication.UserID != userID {
		return nil, ErrNotOwner
	}
	return medication, nil
}

func (s *medicationService) toResponse(m *model.Medication, now time.Time, loc *time.Location) *dto.MedicationResponse {
	resp := &dto.MedicationResponse{
		ID:              m.MedicationID,
		Name:            m.Name,
		Dosage:          m.Dosage,
		Description:     m.Description,
		FrequencyHours:  m.FrequencyHours,
		StartTime:       m.StartTime,
		DurationDays:    m.DurationDays,
		Active:          m.Active,
		Progress:        schedule.ComputeProgress(m.DurationDays, m.StartedAt, now, loc),
		TreatmentStatus: schedule.TreatmentStatus(m.DurationDays, m.StartedAt, now, loc),
		CreatedAt:       m.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       m.UpdatedAt.Format(time.RFC3339),
	}
	if m.StartedAt != nil {
		started := m.StartedAt.Format("2006-01-02")
		resp.StartedAt = &started
	}
	return resp
}

func toDoseResponse(d *model.MedicationDose) dto.DoseResponse {
	resp := dto.DoseResponse{
		ID:            d.DoseID,
		MedicationID:  d.MedicationID,
		ScheduledTime: d.ScheduledTime.Format(time.RFC3339),
		Status:        d.Status,
	}
	if d.TakenAt != nil {
		takenAt := d.TakenAt.Format(time.RFC3339)
		resp.TakenAt = &takenAt
	}
	return resp
}

// [自证通过] internal/service/medication_service.go
