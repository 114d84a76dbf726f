package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/thiagotlz/medcontrol/internal/model"
	"github.com/thiagotlz/medcontrol/internal/repository"
	pkgerrors "github.com/thiagotlz/medcontrol/pkg/errors"
)

// ── Mock UserRepository ──

type mockUserRepo struct {
	users map[string]*model.User // key: user_id
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

func (m *mockUserRepo) Create(_ context.Context, user *model.User) error {
	if user.UserID == "" {
		user.UserID = "user-" + user.Email
	}
	m.users[user.UserID] = user
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) Update(_ context.Context, user *model.User) error {
	m.users[user.UserID] = user
	return nil
}

// ── Mock MedicationRepository ──

type mockMedicationRepo struct {
	medications map[string]*model.Medication
	nextID      int
}

func newMockMedicationRepo() *mockMedicationRepo {
	return &mockMedicationRepo{medications: make(map[string]*model.Medication)}
}

func (m *mockMedicationRepo) Create(_ context.Context, medication *model.Medication) error {
	if medication.MedicationID == "" {
		m.nextID++
		medication.MedicationID = fmt.Sprintf("med-%d", m.nextID)
	}
	m.medications[medication.MedicationID] = medication
	return nil
}

func (m *mockMedicationRepo) GetByID(_ context.Context, id string) (*model.Medication, error) {
	if med, ok := m.medications[id]; ok {
		return med, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockMedicationRepo) ListByUser(_ context.Context, userID string, activeOnly bool) ([]model.Medication, error) {
	var result []model.Medication
	for _, med := range m.medications {
		if med.UserID != userID {
			continue
		}
		if activeOnly && !med.Active {
			continue
		}
		result = append(result, *med)
	}
	return result, nil
}

func (m *mockMedicationRepo) ListActiveForScheduling(_ context.Context) ([]model.Medication, error) {
	var result []model.Medication
	for _, med := range m.medications {
		if med.Active {
			result = append(result, *med)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].MedicationID < result[j].MedicationID
	})
	return result, nil
}

func (m *mockMedicationRepo) Update(_ context.Context, medication *model.Medication) error {
	m.medications[medication.MedicationID] = medication
	return nil
}

func (m *mockMedicationRepo) Delete(_ context.Context, id string) error {
	delete(m.medications, id)
	return nil
}

// ── Mock DoseRepository ──

type mockDoseRepo struct {
	doses       map[string]*model.MedicationDose
	medications *mockMedicationRepo // 联结查询需要药品与用户信息
	users       *mockUserRepo
	nextID      int
}

func newMockDoseRepo(meds *mockMedicationRepo, users *mockUserRepo) *mockDoseRepo {
	return &mockDoseRepo{
		doses:       make(map[string]*model.MedicationDose),
		medications: meds,
		users:       users,
	}
}

func (m *mockDoseRepo) InsertMissing(_ context.Context, doses []model.MedicationDose) (int64, error) {
	var inserted int64
	for i := range doses {
		d := doses[i]
		if m.existsForTime(d.MedicationID, d.ScheduledTime) {
			continue
		}
		if d.DoseID == "" {
			m.nextID++
			d.DoseID = fmt.Sprintf("dose-%d", m.nextID)
		}
		if d.Status == "" {
			d.Status = model.DoseStatusPending
		}
		m.doses[d.DoseID] = &d
		inserted++
	}
	return inserted, nil
}

func (m *mockDoseRepo) existsForTime(medicationID string, t time.Time) bool {
	for _, d := range m.doses {
		if d.MedicationID == medicationID && d.ScheduledTime.Equal(t) {
			return true
		}
	}
	return false
}

func (m *mockDoseRepo) GetByID(_ context.Context, id string) (*model.MedicationDose, error) {
	d, ok := m.doses[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *d
	if med, ok := m.medications.medications[d.MedicationID]; ok {
		copied.Medication = med
	}
	return &copied, nil
}

func (m *mockDoseRepo) FindDue(_ context.Context, now time.Time, tolerance time.Duration) ([]repository.DueDose, error) {
	var due []repository.DueDose
	for _, d := range m.doses {
		if d.Status != model.DoseStatusPending {
			continue
		}
		if d.ScheduledTime.Before(now) || d.ScheduledTime.After(now.Add(tolerance)) {
			continue
		}
		med, ok := m.medications.medications[d.MedicationID]
		if !ok || !med.Active {
			continue
		}
		user := m.users.users[med.UserID]
		if user == nil {
			continue
		}
		due = append(due, repository.DueDose{
			DoseID:         d.DoseID,
			MedicationID:   med.MedicationID,
			ScheduledTime:  d.ScheduledTime,
			MedicationName: med.Name,
			Dosage:         med.Dosage,
			Description:    med.Description,
			FrequencyHours: med.FrequencyHours,
			UserID:         user.UserID,
			UserName:       user.Name,
			UserEmail:      user.Email,
		})
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].ScheduledTime.Before(due[j].ScheduledTime)
	})
	return due, nil
}

func (m *mockDoseRepo) ListByMedication(_ context.Context, medicationID string, limit int) ([]model.MedicationDose, error) {
	if limit <= 0 {
		limit = 10
	}
	var result []model.MedicationDose
	for _, d := range m.doses {
		if d.MedicationID == medicationID {
			result = append(result, *d)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ScheduledTime.After(result[j].ScheduledTime)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *mockDoseRepo) ListUpcomingByUser(_ context.Context, userID string, until time.Time) ([]model.MedicationDose, error) {
	var result []model.MedicationDose
	for _, d := range m.doses {
		med, ok := m.medications.medications[d.MedicationID]
		if !ok || med.UserID != userID || !med.Active {
			continue
		}
		if d.Status != model.DoseStatusPending || d.ScheduledTime.After(until) {
			continue
		}
		copied := *d
		copied.Medication = med
		result = append(result, copied)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ScheduledTime.Before(result[j].ScheduledTime)
	})
	return result, nil
}

func (m *mockDoseRepo) ListByUserSince(_ context.Context, userID string, since time.Time) ([]model.MedicationDose, error) {
	var result []model.MedicationDose
	for _, d := range m.doses {
		med, ok := m.medications.medications[d.MedicationID]
		if !ok || med.UserID != userID {
			continue
		}
		if d.ScheduledTime.Before(since) {
			continue
		}
		copied := *d
		copied.Medication = med
		result = append(result, copied)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ScheduledTime.After(result[j].ScheduledTime)
	})
	return result, nil
}

func (m *mockDoseRepo) CountFuturePending(_ context.Context, medicationID string, now time.Time) (int64, error) {
	var count int64
	for _, d := range m.doses {
		if d.MedicationID == medicationID && d.Status == model.DoseStatusPending && d.ScheduledTime.After(now) {
			count++
		}
	}
	return count, nil
}

func (m *mockDoseRepo) DeleteFuturePending(_ context.Context, medicationID string, now time.Time) (int64, error) {
	var removed int64
	for id, d := range m.doses {
		if d.MedicationID == medicationID && d.Status == model.DoseStatusPending && d.ScheduledTime.After(now) {
			delete(m.doses, id)
			removed++
		}
	}
	return removed, nil
}

func (m *mockDoseRepo) UpdateStatusIf(_ context.Context, id, from, to string, takenAt *time.Time) error {
	d, ok := m.doses[id]
	if !ok || d.Status != from {
		return pkgerrors.ErrStatusConflict
	}
	d.Status = to
	if takenAt != nil {
		d.TakenAt = takenAt
	}
	return nil
}

func (m *mockDoseRepo) Cleanup(_ context.Context, before time.Time) (int64, error) {
	var removed int64
	for id, d := range m.doses {
		if !d.ScheduledTime.Before(before) {
			continue
		}
		terminal := false
		for _, st := range model.TerminalDoseStatuses {
			if d.Status == st {
				terminal = true
				break
			}
		}
		if terminal {
			delete(m.doses, id)
			removed++
		}
	}
	return removed, nil
}

func (m *mockDoseRepo) UserStats(_ context.Context, userID string, since time.Time) (*repository.DoseStats, error) {
	stats := &repository.DoseStats{}
	for _, d := range m.doses {
		med, ok := m.medications.medications[d.MedicationID]
		if !ok || med.UserID != userID || d.ScheduledTime.Before(since) {
			continue
		}
		stats.Total++
		switch d.Status {
		case model.DoseStatusTaken:
			stats.Taken++
		case model.DoseStatusMissed:
			stats.Missed++
		case model.DoseStatusSent:
			stats.Sent++
		case model.DoseStatusPending:
			stats.Pending++
		}
	}
	return stats, nil
}

// ── Mock NotificationLogRepository ──

type mockNotificationLogRepo struct {
	logs   []*model.NotificationLog
	nextID int
}

func newMockNotificationLogRepo() *mockNotificationLogRepo {
	return &mockNotificationLogRepo{}
}

func (m *mockNotificationLogRepo) Create(_ context.Context, log *model.NotificationLog) error {
	if log.LogID == "" {
		m.nextID++
		log.LogID = fmt.Sprintf("log-%d", m.nextID)
	}
	m.logs = append(m.logs, log)
	return nil
}

func (m *mockNotificationLogRepo) ListByMedication(_ context.Context, medicationID string, limit int) ([]model.NotificationLog, error) {
	if limit <= 0 {
		limit = 20
	}
	var result []model.NotificationLog
	for _, l := range m.logs {
		if l.MedicationID == medicationID {
			result = append(result, *l)
		}
	}
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *mockNotificationLogRepo) Purge(_ context.Context, before time.Time) (int64, error) {
	var kept []*model.NotificationLog
	var removed int64
	for _, l := range m.logs {
		if l.SentAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, l)
	}
	m.logs = kept
	return removed, nil
}

// ── Mock SettingsRepository ──

type mockSettingsRepo struct {
	settings map[string]*model.UserNotificationSettings
}

func newMockSettingsRepo() *mockSettingsRepo {
	return &mockSettingsRepo{settings: make(map[string]*model.UserNotificationSettings)}
}

func (m *mockSettingsRepo) GetByUserID(_ context.Context, userID string) (*model.UserNotificationSettings, error) {
	if s, ok := m.settings[userID]; ok {
		return s, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockSettingsRepo) Create(_ context.Context, settings *model.UserNotificationSettings) error {
	m.settings[settings.UserID] = settings
	return nil
}

func (m *mockSettingsRepo) Update(_ context.Context, settings *model.UserNotificationSettings) error {
	m.settings[settings.UserID] = settings
	return nil
}

// ── 测试辅助 ──

type testMocks struct {
	users       *mockUserRepo
	medications *mockMedicationRepo
	doses       *mockDoseRepo
	logs        *mockNotificationLogRepo
	settings    *mockSettingsRepo
}

func newTestRepo() (*repository.Repository, *testMocks) {
	users := newMockUserRepo()
	medications := newMockMedicationRepo()
	doses := newMockDoseRepo(medications, users)
	logs := newMockNotificationLogRepo()
	settings := newMockSettingsRepo()

	repo := &repository.Repository{
		User:            users,
		Medication:      medications,
		Dose:            doses,
		NotificationLog: logs,
		Settings:        settings,
	}
	return repo, &testMocks{
		users:       users,
		medications: medications,
		doses:       doses,
		logs:        logs,
		settings:    settings,
	}
}
